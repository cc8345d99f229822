// Copyright (C) 2025 Feesim Authors.
// See LICENSE for copying information.

// Package pricing defines the fee schedule for simulated storage units.
package pricing

import (
	"github.com/shopspring/decimal"
	"github.com/zeebo/errs"
)

// Error is the pricing error class.
var Error = errs.Class("pricing error")

// Category groups storage units by hardware class. Units in the same
// category share durability characteristics but not prices.
type Category string

// Known unit categories.
const (
	CategoryA Category = "A"
	CategoryB Category = "B"
)

// Unit describes a single storage unit and its price structure. Rates
// are per megabyte per month: StoreRate applies to the highest occupancy
// observed during the month, UpdateRate to accumulated write traffic.
// FreeTier marks units available to free plan accounts.
type Unit struct {
	ID         string
	Category   Category
	StoreRate  decimal.Decimal
	UpdateRate decimal.Decimal
	FreeTier   bool
}

// Schedule is an ordered, immutable set of storage units. Order is
// significant: reports list units in schedule order.
type Schedule struct {
	units []Unit
	byID  map[string]int
}

// NewSchedule builds a schedule from the given units. Unit IDs must be
// unique and non-empty, every unit needs a known category, and rates
// must not be negative.
func NewSchedule(units []Unit) (*Schedule, error) {
	if len(units) == 0 {
		return nil, Error.New("schedule requires at least one unit")
	}

	byID := make(map[string]int, len(units))
	for i, unit := range units {
		if unit.ID == "" {
			return nil, Error.New("unit ID must not be empty")
		}
		if _, ok := byID[unit.ID]; ok {
			return nil, Error.New("duplicate unit ID %q", unit.ID)
		}
		switch unit.Category {
		case CategoryA, CategoryB:
		default:
			return nil, Error.New("unit %q has unknown category %q", unit.ID, unit.Category)
		}
		if unit.StoreRate.IsNegative() || unit.UpdateRate.IsNegative() {
			return nil, Error.New("unit %q has a negative rate", unit.ID)
		}
		byID[unit.ID] = i
	}

	return &Schedule{units: units, byID: byID}, nil
}

// Lookup returns the unit registered under id.
func (schedule *Schedule) Lookup(id string) (Unit, bool) {
	i, ok := schedule.byID[id]
	if !ok {
		return Unit{}, false
	}
	return schedule.units[i], true
}

// Units returns all units in schedule order. Callers must not modify
// the returned slice.
func (schedule *Schedule) Units() []Unit { return schedule.units }

// Len returns the number of units in the schedule.
func (schedule *Schedule) Len() int { return len(schedule.units) }

// DefaultSchedule returns the built-in reference schedule used when no
// override is configured: two free tier units in category A and two
// paid units in category B.
func DefaultSchedule() *Schedule {
	schedule, err := NewSchedule([]Unit{
		{
			ID:         "storage_A1",
			Category:   CategoryA,
			StoreRate:  decimal.RequireFromString("0.01"),
			UpdateRate: decimal.RequireFromString("0.0005"),
			FreeTier:   true,
		},
		{
			ID:         "storage_A2",
			Category:   CategoryA,
			StoreRate:  decimal.RequireFromString("0.001"),
			UpdateRate: decimal.RequireFromString("0.01"),
			FreeTier:   true,
		},
		{
			ID:         "storage_B1",
			Category:   CategoryB,
			StoreRate:  decimal.RequireFromString("0.01"),
			UpdateRate: decimal.RequireFromString("0.001"),
			FreeTier:   false,
		},
		{
			ID:         "storage_B2",
			Category:   CategoryB,
			StoreRate:  decimal.RequireFromString("0.0001"),
			UpdateRate: decimal.RequireFromString("0.5"),
			FreeTier:   false,
		},
	})
	if err != nil {
		panic(err)
	}
	return schedule
}
