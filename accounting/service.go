// Copyright (C) 2025 Feesim Authors.
// See LICENSE for copying information.

// Package accounting applies storage operations and tracks the usage
// they accrue for billing.
package accounting

import (
	"context"
	"time"

	"github.com/spacemonkeygo/monkit/v3"
	"github.com/zeebo/errs"
	"go.uber.org/zap"

	"github.com/feesim/feesim/billing"
	"github.com/feesim/feesim/pricing"
)

var (
	// Error is the accounting error class.
	Error = errs.Class("accounting error")

	// ErrFileExists is returned when uploading under a taken name.
	ErrFileExists = errs.Class("file already exists")

	// ErrUnknownUnit is returned for unit IDs missing from the schedule.
	ErrUnknownUnit = errs.Class("invalid storage name")

	// ErrUnitNotOnFreePlan is returned when a free plan account
	// addresses a paid unit.
	ErrUnitNotOnFreePlan = errs.Class("this storage location is not available on the free plan")

	// ErrFileNotFound is returned when the named file does not exist.
	ErrFileNotFound = errs.Class("file does not exist")

	// ErrWrongUnit is returned when the file lives in a different unit
	// than the one named.
	ErrWrongUnit = errs.Class("file is not in the specified storage")

	// ErrFeeLimit is returned when an operation would push free plan
	// fees over the allowance.
	ErrFeeLimit = errs.Class("free plan fee limit exceeded")

	mon = monkit.Package()
)

// Config contains configurable values for the accounting service.
type Config struct {
	FreePlan      bool  `help:"bill the account as a free plan account" default:"true"`
	FreeAllowance int64 `help:"free plan fee allowance per month" default:"1000"`
}

// Service applies storage operations, accumulates their usage in a
// ledger, and prices each affected month. It is not safe for concurrent
// use.
//
// architecture: Service
type Service struct {
	log      *zap.Logger
	schedule *pricing.Schedule
	calc     *billing.Calculator
	freePlan bool

	inventory *Inventory
	ledger    *Ledger
	occupied  map[string]int64

	closed  map[Month]*CloseReport
	settled map[Month]bool
}

// NewService creates an accounting service for the given schedule.
func NewService(log *zap.Logger, schedule *pricing.Schedule, config Config) *Service {
	return &Service{
		log:       log,
		schedule:  schedule,
		calc:      billing.NewCalculator(schedule, config.FreeAllowance),
		freePlan:  config.FreePlan,
		inventory: NewInventory(),
		ledger:    NewLedger(),
		occupied:  make(map[string]int64),
		closed:    make(map[Month]*CloseReport),
		settled:   make(map[Month]bool),
	}
}

// Upload stores a new file and returns the fee totals of the month
// containing at, with the operation applied.
func (service *Service) Upload(ctx context.Context, at time.Time, unitID, name string, sizeKB int64) (_ billing.Totals, err error) {
	defer mon.Task()(&ctx)(&err)

	if sizeKB < 0 {
		return billing.Totals{}, Error.New("negative size %d for file %q", sizeKB, name)
	}
	if _, ok := service.inventory.Lookup(name); ok {
		return billing.Totals{}, ErrFileExists.New("%q", name)
	}
	unit, err := service.unit(unitID)
	if err != nil {
		return billing.Totals{}, err
	}

	month := MonthOf(at)
	if err := service.admit(month, unit.ID, service.occupied[unit.ID]+sizeKB, sizeKB); err != nil {
		return billing.Totals{}, err
	}

	service.inventory.Put(FileInfo{Name: name, SizeKB: sizeKB, UnitID: unit.ID})
	service.occupied[unit.ID] += sizeKB
	service.ledger.ObserveSize(month, unit.ID, service.occupied[unit.ID])
	service.ledger.AddTraffic(month, unit.ID, sizeKB)

	service.log.Debug("file uploaded",
		zap.String("unit", unit.ID),
		zap.String("file", name),
		zap.Int64("size_kb", sizeKB))

	return service.charge(month), nil
}

// Delete removes a stored file. The freed space lowers occupancy but
// leaves the month's size watermark untouched; the removed bytes count
// as update traffic.
func (service *Service) Delete(ctx context.Context, at time.Time, unitID, name string) (_ billing.Totals, err error) {
	defer mon.Task()(&ctx)(&err)

	unit, err := service.unit(unitID)
	if err != nil {
		return billing.Totals{}, err
	}
	info, ok := service.inventory.Lookup(name)
	if !ok {
		return billing.Totals{}, ErrFileNotFound.New("%q", name)
	}
	if info.UnitID != unit.ID {
		return billing.Totals{}, ErrWrongUnit.New("%q is stored in %q", name, info.UnitID)
	}

	// A delete never raises the watermark; only its traffic is simulated.
	month := MonthOf(at)
	watermark := service.ledger.Usage(month, unit.ID).MaxSizeKB
	if err := service.admit(month, unit.ID, watermark, info.SizeKB); err != nil {
		return billing.Totals{}, err
	}

	service.inventory.Remove(name)
	service.occupied[unit.ID] -= info.SizeKB
	service.ledger.AddTraffic(month, unit.ID, info.SizeKB)

	service.log.Debug("file deleted",
		zap.String("unit", unit.ID),
		zap.String("file", name),
		zap.Int64("size_kb", info.SizeKB))

	return service.charge(month), nil
}

// Update replaces a stored file's contents. Traffic counts both the
// old and the new size.
func (service *Service) Update(ctx context.Context, at time.Time, unitID, name string, sizeKB int64) (_ billing.Totals, err error) {
	defer mon.Task()(&ctx)(&err)

	if sizeKB < 0 {
		return billing.Totals{}, Error.New("negative size %d for file %q", sizeKB, name)
	}
	unit, err := service.unit(unitID)
	if err != nil {
		return billing.Totals{}, err
	}
	info, ok := service.inventory.Lookup(name)
	if !ok {
		return billing.Totals{}, ErrFileNotFound.New("%q", name)
	}
	if info.UnitID != unit.ID {
		return billing.Totals{}, ErrWrongUnit.New("%q is stored in %q", name, info.UnitID)
	}

	month := MonthOf(at)
	delta := sizeKB - info.SizeKB
	traffic := info.SizeKB + sizeKB
	if err := service.admit(month, unit.ID, service.occupied[unit.ID]+delta, traffic); err != nil {
		return billing.Totals{}, err
	}

	service.inventory.Put(FileInfo{Name: name, SizeKB: sizeKB, UnitID: unit.ID})
	service.occupied[unit.ID] += delta
	service.ledger.ObserveSize(month, unit.ID, service.occupied[unit.ID])
	service.ledger.AddTraffic(month, unit.ID, traffic)

	service.log.Debug("file updated",
		zap.String("unit", unit.ID),
		zap.String("file", name),
		zap.Int64("size_kb", sizeKB))

	return service.charge(month), nil
}

// UnitSize pairs a unit with its occupancy at close time.
type UnitSize struct {
	UnitID string
	SizeKB int64
}

// CloseReport is the result of closing a month. Sizes lists every
// schedule unit's end-of-month occupancy in schedule order.
type CloseReport struct {
	Month Month
	Sizes []UnitSize
	Fees  billing.Totals
}

func (report *CloseReport) clone() CloseReport {
	sizes := make([]UnitSize, len(report.Sizes))
	copy(sizes, report.Sizes)
	return CloseReport{Month: report.Month, Sizes: sizes, Fees: report.Fees}
}

// CloseMonth finalizes the month preceding at: it prices that month,
// snapshots current occupancy as the carry-over seeds for months
// created later, and settles the month's update fees. Closing an
// already closed month returns the original report unchanged.
func (service *Service) CloseMonth(ctx context.Context, at time.Time) (_ CloseReport, err error) {
	defer mon.Task()(&ctx)(&err)

	month := MonthOf(at).Previous()
	if report, ok := service.closed[month]; ok {
		return report.clone(), nil
	}

	service.ledger.Touch(month)
	totals := service.charge(month)

	sizes := make([]UnitSize, 0, service.schedule.Len())
	snapshot := make(map[string]int64, service.schedule.Len())
	for _, unit := range service.schedule.Units() {
		kb := service.occupied[unit.ID]
		sizes = append(sizes, UnitSize{UnitID: unit.ID, SizeKB: kb})
		snapshot[unit.ID] = kb
	}
	service.ledger.Reseed(snapshot)
	service.settled[month] = true

	report := &CloseReport{Month: month, Sizes: sizes, Fees: totals}
	service.closed[month] = report

	service.log.Info("month closed",
		zap.Stringer("month", month),
		zap.Int64("storage_fee", totals.StorageFee),
		zap.Int64("update_fee", totals.UpdateFee),
		zap.Int64("usage_fee", totals.UsageFee))

	return report.clone(), nil
}

// Fees returns the fee totals for the given month without recording
// anything.
func (service *Service) Fees(ctx context.Context, month Month) (_ billing.Totals, err error) {
	defer mon.Task()(&ctx)(&err)
	return service.charge(month), nil
}

// Occupied returns the unit's current occupancy in kilobytes.
func (service *Service) Occupied(unitID string) int64 {
	return service.occupied[unitID]
}

// File returns the stored record for name.
func (service *Service) File(name string) (FileInfo, bool) {
	return service.inventory.Lookup(name)
}

// Files returns the number of stored files.
func (service *Service) Files() int {
	return service.inventory.Count()
}

// StoredIn returns the files stored in the given unit, ordered by name.
func (service *Service) StoredIn(unitID string) []FileInfo {
	return service.inventory.StoredIn(unitID)
}

// unit resolves a unit ID against the schedule and checks that the
// account's plan may use it.
func (service *Service) unit(unitID string) (pricing.Unit, error) {
	unit, ok := service.schedule.Lookup(unitID)
	if !ok {
		return pricing.Unit{}, ErrUnknownUnit.New("%q", unitID)
	}
	if service.freePlan && !unit.FreeTier {
		return pricing.Unit{}, ErrUnitNotOnFreePlan.New("%q", unitID)
	}
	return unit, nil
}

// admit prices the month as if the operation had been applied, raising
// the unit's size watermark to sizeKB and adding trafficKB of update
// traffic, and rejects the operation when free plan fees would exceed
// the allowance.
func (service *Service) admit(month Month, unitID string, sizeKB, trafficKB int64) error {
	if !service.freePlan {
		return nil
	}

	usage := service.ledger.Usage(month, unitID)
	if sizeKB > usage.MaxSizeKB {
		usage.MaxSizeKB = sizeKB
	}
	usage.UpdateTrafficKB += trafficKB

	view := billing.Override(service.ledger.View(month), unitID, usage)
	if service.calc.ExceedsAllowance(view) {
		return ErrFeeLimit.New("unit %q", unitID)
	}
	return nil
}

// charge prices the month and publishes the totals as metrics.
func (service *Service) charge(month Month) billing.Totals {
	totals := service.calc.Totals(service.ledger.View(month), service.freePlan, service.settled[month])
	mon.IntVal("storage_fee_total").Observe(totals.StorageFee)
	mon.IntVal("update_fee_total").Observe(totals.UpdateFee)
	mon.IntVal("usage_fee_total").Observe(totals.UsageFee)
	return totals
}
