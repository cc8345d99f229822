// Copyright (C) 2025 Feesim Authors.
// See LICENSE for copying information.

// Package billing computes monthly fees from recorded storage usage.
package billing

import (
	"github.com/shopspring/decimal"

	"github.com/feesim/feesim/pricing"
)

const (
	// KBPerMB is the divisor for converting kilobytes to megabytes.
	KBPerMB = 1000

	// DefaultAllowance is the free plan fee allowance in currency units.
	DefaultAllowance = 1000
)

// Usage holds a single unit's billable usage for one month. MaxSizeKB is
// the highest occupancy observed during the month, UpdateTrafficKB the
// accumulated write traffic.
type Usage struct {
	MaxSizeKB       int64
	UpdateTrafficKB int64
}

// View reports per-unit usage for a single month.
type View interface {
	// Usage returns the usage recorded for the given unit. Units with
	// no recorded activity report zero usage.
	Usage(unitID string) Usage
}

// Override returns a view that reports the given usage for one unit and
// delegates to base for all others. It is used to price an operation
// before committing it.
func Override(base View, unitID string, usage Usage) View {
	return overrideView{base: base, unitID: unitID, usage: usage}
}

type overrideView struct {
	base   View
	unitID string
	usage  Usage
}

func (view overrideView) Usage(unitID string) Usage {
	if unitID == view.unitID {
		return view.usage
	}
	return view.base.Usage(unitID)
}

// Totals holds the fee components for one month. StorageFee and
// UpdateFee are sums of per-unit fees, each rounded up to a whole
// currency unit. UsageFee is the amount by which the exact fee total
// exceeds the allowance, rounded up.
type Totals struct {
	StorageFee int64
	UpdateFee  int64
	UsageFee   int64
}

// Calculator prices monthly usage against a fee schedule.
type Calculator struct {
	schedule  *pricing.Schedule
	allowance int64
}

// NewCalculator returns a calculator for the given schedule. A zero
// allowance selects DefaultAllowance.
func NewCalculator(schedule *pricing.Schedule, allowance int64) *Calculator {
	if allowance == 0 {
		allowance = DefaultAllowance
	}
	return &Calculator{schedule: schedule, allowance: allowance}
}

// Totals computes the fee components for the usage reported by view.
// On the free tier only free tier units are charged. For settled months
// update traffic no longer counts, neither toward the update fee nor
// toward the allowance overage.
func (calc *Calculator) Totals(view View, freeTier, settled bool) Totals {
	var totals Totals
	exact := decimal.Zero

	for _, unit := range calc.schedule.Units() {
		if freeTier && !unit.FreeTier {
			continue
		}
		usage := view.Usage(unit.ID)

		if usage.MaxSizeKB > 0 {
			fee := unitFee(usage.MaxSizeKB, unit.StoreRate)
			totals.StorageFee += ceil(fee)
			exact = exact.Add(fee)
		}

		traffic := usage.UpdateTrafficKB
		if settled {
			traffic = 0
		}
		if traffic > 0 {
			fee := unitFee(traffic, unit.UpdateRate)
			totals.UpdateFee += ceil(fee)
			exact = exact.Add(fee)
		}
	}

	overage := exact.Sub(decimal.NewFromInt(calc.allowance))
	if overage.IsPositive() {
		totals.UsageFee = ceil(overage)
	}
	return totals
}

// ExceedsAllowance reports whether the usage in view puts the summed
// per-unit fees of free tier units over the allowance. Settlement is
// ignored here: admission always prices the full month's traffic.
func (calc *Calculator) ExceedsAllowance(view View) bool {
	var total int64
	for _, unit := range calc.schedule.Units() {
		if !unit.FreeTier {
			continue
		}
		usage := view.Usage(unit.ID)

		if usage.MaxSizeKB > 0 {
			total += ceil(unitFee(usage.MaxSizeKB, unit.StoreRate))
		}
		if usage.UpdateTrafficKB > 0 {
			total += ceil(unitFee(usage.UpdateTrafficKB, unit.UpdateRate))
		}
	}
	return total > calc.allowance
}

// unitFee returns the exact fee for kb kilobytes at a per-megabyte
// rate. Kilobytes round up to whole megabytes before pricing.
func unitFee(kb int64, rate decimal.Decimal) decimal.Decimal {
	mb := (kb + KBPerMB - 1) / KBPerMB
	return decimal.NewFromInt(mb).Mul(rate)
}

func ceil(d decimal.Decimal) int64 {
	return d.Ceil().IntPart()
}
