// Copyright (C) 2025 Feesim Authors.
// See LICENSE for copying information.

package accounting

import "github.com/feesim/feesim/billing"

// Rollup accumulates a single unit's usage within one month. MaxSizeKB
// only ever rises; UpdateTrafficKB sums all write traffic.
type Rollup struct {
	MaxSizeKB       int64
	UpdateTrafficKB int64
}

// Ledger records per-unit usage rollups by month. A month materializes
// on first write, at which point every unit in the carry-over seed
// table starts with its end-of-month occupancy as the size watermark.
// Reads never materialize a month: they answer from the seed table as
// if the month had just been created.
type Ledger struct {
	months map[Month]map[string]*Rollup
	seeds  map[string]int64
}

// NewLedger returns an empty ledger with no carry-over seeds.
func NewLedger() *Ledger {
	return &Ledger{
		months: make(map[Month]map[string]*Rollup),
		seeds:  make(map[string]int64),
	}
}

// Usage returns the usage recorded for the unit in the given month
// without materializing anything.
func (ledger *Ledger) Usage(month Month, unitID string) billing.Usage {
	if rollups, ok := ledger.months[month]; ok {
		if rollup, ok := rollups[unitID]; ok {
			return billing.Usage{
				MaxSizeKB:       rollup.MaxSizeKB,
				UpdateTrafficKB: rollup.UpdateTrafficKB,
			}
		}
		return billing.Usage{}
	}
	return billing.Usage{MaxSizeKB: ledger.seeds[unitID]}
}

// View returns a read-only billing view of the given month.
func (ledger *Ledger) View(month Month) billing.View {
	return monthView{ledger: ledger, month: month}
}

type monthView struct {
	ledger *Ledger
	month  Month
}

func (view monthView) Usage(unitID string) billing.Usage {
	return view.ledger.Usage(view.month, unitID)
}

// Touch materializes the month if it does not exist yet.
func (ledger *Ledger) Touch(month Month) {
	ledger.materialize(month)
}

// ObserveSize raises the unit's size watermark to sizeKB if it is
// higher than the current watermark.
func (ledger *Ledger) ObserveSize(month Month, unitID string, sizeKB int64) {
	rollup := ledger.rollup(month, unitID)
	if sizeKB > rollup.MaxSizeKB {
		rollup.MaxSizeKB = sizeKB
	}
}

// AddTraffic adds kb to the unit's update traffic for the month.
func (ledger *Ledger) AddTraffic(month Month, unitID string, kb int64) {
	ledger.rollup(month, unitID).UpdateTrafficKB += kb
}

// Reseed replaces the carry-over seed table with a copy of sizes.
// Months already materialized keep the seeds they started with.
func (ledger *Ledger) Reseed(sizes map[string]int64) {
	seeds := make(map[string]int64, len(sizes))
	for unitID, sizeKB := range sizes {
		seeds[unitID] = sizeKB
	}
	ledger.seeds = seeds
}

func (ledger *Ledger) materialize(month Month) map[string]*Rollup {
	rollups, ok := ledger.months[month]
	if !ok {
		rollups = make(map[string]*Rollup, len(ledger.seeds))
		for unitID, sizeKB := range ledger.seeds {
			rollups[unitID] = &Rollup{MaxSizeKB: sizeKB}
		}
		ledger.months[month] = rollups
	}
	return rollups
}

func (ledger *Ledger) rollup(month Month, unitID string) *Rollup {
	rollups := ledger.materialize(month)
	rollup, ok := rollups[unitID]
	if !ok {
		rollup = &Rollup{}
		rollups[unitID] = rollup
	}
	return rollup
}
