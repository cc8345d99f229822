// Copyright (C) 2025 Feesim Authors.
// See LICENSE for copying information.

package accounting_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/feesim/feesim/accounting"
	"github.com/feesim/feesim/billing"
	"github.com/feesim/feesim/pricing"
	"github.com/feesim/feesim/private/testcontext"
)

func date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

func newFreePlan(t *testing.T) *accounting.Service {
	return accounting.NewService(zaptest.NewLogger(t), pricing.DefaultSchedule(),
		accounting.Config{FreePlan: true})
}

func TestMonthLifecycle(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	service := newFreePlan(t)

	totals, err := service.Upload(ctx, date(2024, time.January, 5), "storage_A1", "f1", 500)
	require.NoError(t, err)
	assert.Equal(t, billing.Totals{StorageFee: 1, UpdateFee: 1}, totals)
	assert.EqualValues(t, 500, service.Occupied("storage_A1"))

	info, ok := service.File("f1")
	require.True(t, ok)
	assert.Equal(t, accounting.FileInfo{Name: "f1", SizeKB: 500, UnitID: "storage_A1"}, info)

	totals, err = service.Update(ctx, date(2024, time.January, 10), "storage_A1", "f1", 2500000)
	require.NoError(t, err)
	assert.Equal(t, billing.Totals{StorageFee: 25, UpdateFee: 2}, totals)
	assert.EqualValues(t, 2500000, service.Occupied("storage_A1"))

	totals, err = service.Delete(ctx, date(2024, time.January, 15), "storage_A1", "f1")
	require.NoError(t, err)
	assert.Equal(t, billing.Totals{StorageFee: 25, UpdateFee: 3}, totals)
	assert.EqualValues(t, 0, service.Occupied("storage_A1"))
	assert.Equal(t, 0, service.Files())

	report, err := service.CloseMonth(ctx, date(2024, time.February, 1))
	require.NoError(t, err)
	assert.Equal(t, january, report.Month)
	assert.Equal(t, []accounting.UnitSize{
		{UnitID: "storage_A1", SizeKB: 0},
		{UnitID: "storage_A2", SizeKB: 0},
		{UnitID: "storage_B1", SizeKB: 0},
		{UnitID: "storage_B2", SizeKB: 0},
	}, report.Sizes)
	assert.Equal(t, billing.Totals{StorageFee: 25, UpdateFee: 3}, report.Fees)

	// Closing settles the month's update fees.
	fees, err := service.Fees(ctx, january)
	require.NoError(t, err)
	assert.Equal(t, billing.Totals{StorageFee: 25}, fees)

	totals, err = service.Upload(ctx, date(2024, time.February, 10), "storage_A1", "f2", 100)
	require.NoError(t, err)
	assert.Equal(t, billing.Totals{StorageFee: 1, UpdateFee: 1}, totals)

	// Closing again returns the original report, even later in the
	// month and even though writes have happened since.
	again, err := service.CloseMonth(ctx, date(2024, time.February, 20))
	require.NoError(t, err)
	assert.Equal(t, report, again)

	// Reports are independent copies.
	report.Sizes[0].SizeKB = 999
	again, err = service.CloseMonth(ctx, date(2024, time.February, 1))
	require.NoError(t, err)
	assert.EqualValues(t, 0, again.Sizes[0].SizeKB)
}

func TestValidationOrder(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	service := newFreePlan(t)
	jan := date(2024, time.January, 5)

	_, err := service.Upload(ctx, jan, "storage_A1", "f1", 500)
	require.NoError(t, err)

	_, err = service.Upload(ctx, jan, "storage_A1", "f1", 10)
	assert.True(t, accounting.ErrFileExists.Has(err))

	// A taken name rejects before the unit is even looked at.
	_, err = service.Upload(ctx, jan, "storage_X", "f1", 10)
	assert.True(t, accounting.ErrFileExists.Has(err))

	_, err = service.Upload(ctx, jan, "storage_X", "f2", 10)
	assert.True(t, accounting.ErrUnknownUnit.Has(err))

	_, err = service.Upload(ctx, jan, "storage_B1", "f2", 10)
	assert.True(t, accounting.ErrUnitNotOnFreePlan.Has(err))

	_, err = service.Delete(ctx, jan, "storage_X", "nope")
	assert.True(t, accounting.ErrUnknownUnit.Has(err))

	// Plan eligibility outranks file checks on delete and update.
	_, err = service.Delete(ctx, jan, "storage_B1", "f1")
	assert.True(t, accounting.ErrUnitNotOnFreePlan.Has(err))

	_, err = service.Delete(ctx, jan, "storage_A1", "nope")
	assert.True(t, accounting.ErrFileNotFound.Has(err))

	_, err = service.Delete(ctx, jan, "storage_A2", "f1")
	assert.True(t, accounting.ErrWrongUnit.Has(err))

	_, err = service.Update(ctx, jan, "storage_A1", "nope", 50)
	assert.True(t, accounting.ErrFileNotFound.Has(err))

	_, err = service.Update(ctx, jan, "storage_A2", "f1", 50)
	assert.True(t, accounting.ErrWrongUnit.Has(err))

	_, err = service.Upload(ctx, jan, "storage_A1", "f2", -5)
	require.Error(t, err)
	assert.True(t, accounting.Error.Has(err))
	assert.False(t, accounting.ErrFeeLimit.Has(err))

	_, err = service.Update(ctx, jan, "storage_A1", "f1", -5)
	require.Error(t, err)
	assert.True(t, accounting.Error.Has(err))

	// None of the rejections touched state.
	assert.EqualValues(t, 500, service.Occupied("storage_A1"))
	assert.Equal(t, 1, service.Files())
}

func TestAdmission(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	service := newFreePlan(t)

	// Summed fees land exactly on the allowance: still admitted.
	totals, err := service.Upload(ctx, date(2024, time.January, 5), "storage_A2", "big", 90900000)
	require.NoError(t, err)
	assert.Equal(t, billing.Totals{StorageFee: 91, UpdateFee: 909}, totals)

	// One more kilobyte of traffic crosses the allowance.
	_, err = service.Upload(ctx, date(2024, time.January, 6), "storage_A2", "more", 1)
	assert.True(t, accounting.ErrFeeLimit.Has(err))

	// Deleting the file would double its traffic, so even a delete
	// can be rejected.
	_, err = service.Delete(ctx, date(2024, time.January, 7), "storage_A2", "big")
	assert.True(t, accounting.ErrFeeLimit.Has(err))

	// The rejections left no trace.
	fees, err := service.Fees(ctx, january)
	require.NoError(t, err)
	assert.Equal(t, billing.Totals{StorageFee: 91, UpdateFee: 909}, fees)
	assert.EqualValues(t, 90900000, service.Occupied("storage_A2"))
	assert.Equal(t, 1, service.Files())
	_, ok := service.File("more")
	assert.False(t, ok)
}

func TestDeleteKeepsWatermark(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	service := newFreePlan(t)

	_, err := service.Upload(ctx, date(2024, time.January, 5), "storage_A1", "f1", 500)
	require.NoError(t, err)
	_, err = service.Delete(ctx, date(2024, time.January, 6), "storage_A1", "f1")
	require.NoError(t, err)

	// Storage still bills the month's high-water mark.
	fees, err := service.Fees(ctx, january)
	require.NoError(t, err)
	assert.Equal(t, billing.Totals{StorageFee: 1, UpdateFee: 1}, fees)
}

func TestDeleteWithCarriedOccupancy(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	service := newFreePlan(t)

	// Occupancy grows close to the allowance over several months
	// without a close in between, so later months read a zero
	// watermark while occupancy is large.
	_, err := service.Upload(ctx, date(2024, time.January, 5), "storage_A1", "tiny", 1000)
	require.NoError(t, err)
	_, err = service.Upload(ctx, date(2024, time.January, 6), "storage_A1", "f1", 92000000)
	require.NoError(t, err)
	_, err = service.Upload(ctx, date(2024, time.February, 10), "storage_A1", "f2", 3899000)
	require.NoError(t, err)
	_, err = service.Upload(ctx, date(2024, time.March, 15), "storage_A1", "f3", 3900000)
	require.NoError(t, err)
	require.EqualValues(t, 99800000, service.Occupied("storage_A1"))

	_, err = service.Upload(ctx, date(2024, time.May, 5), "storage_A2", "spill", 100)
	require.NoError(t, err)

	// The delete must not price the carried occupancy as May
	// watermark: only its own traffic joins the admission check.
	totals, err := service.Delete(ctx, date(2024, time.May, 6), "storage_A1", "tiny")
	require.NoError(t, err)
	assert.Equal(t, billing.Totals{StorageFee: 1, UpdateFee: 2}, totals)
	assert.EqualValues(t, 99799000, service.Occupied("storage_A1"))
}

func TestSeedCarryOver(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	service := newFreePlan(t)

	_, err := service.Upload(ctx, date(2024, time.January, 5), "storage_A1", "f1", 600)
	require.NoError(t, err)

	report, err := service.CloseMonth(ctx, date(2024, time.February, 1))
	require.NoError(t, err)
	assert.Equal(t, []accounting.UnitSize{
		{UnitID: "storage_A1", SizeKB: 600},
		{UnitID: "storage_A2", SizeKB: 0},
		{UnitID: "storage_B1", SizeKB: 0},
		{UnitID: "storage_B2", SizeKB: 0},
	}, report.Sizes)
	assert.Equal(t, billing.Totals{StorageFee: 1, UpdateFee: 1}, report.Fees)

	// Before any February write the carried-over occupancy is already
	// visible to pricing.
	fees, err := service.Fees(ctx, february)
	require.NoError(t, err)
	assert.Equal(t, billing.Totals{StorageFee: 1}, fees)

	// A February month that only ever deletes still bills storage for
	// the carried-over occupancy.
	totals, err := service.Delete(ctx, date(2024, time.February, 10), "storage_A1", "f1")
	require.NoError(t, err)
	assert.Equal(t, billing.Totals{StorageFee: 1, UpdateFee: 1}, totals)

	report, err = service.CloseMonth(ctx, date(2024, time.March, 1))
	require.NoError(t, err)
	assert.Equal(t, february, report.Month)
	assert.Equal(t, billing.Totals{StorageFee: 1, UpdateFee: 1}, report.Fees)
	assert.Equal(t, []accounting.UnitSize{
		{UnitID: "storage_A1", SizeKB: 0},
		{UnitID: "storage_A2", SizeKB: 0},
		{UnitID: "storage_B1", SizeKB: 0},
		{UnitID: "storage_B2", SizeKB: 0},
	}, report.Sizes)
}

func TestConservation(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	service := newFreePlan(t)
	jan := date(2024, time.January, 5)

	_, err := service.Upload(ctx, jan, "storage_A1", "f1", 1200)
	require.NoError(t, err)
	_, err = service.Upload(ctx, jan, "storage_A2", "f2", 340)
	require.NoError(t, err)
	_, err = service.Upload(ctx, jan, "storage_A1", "f3", 60)
	require.NoError(t, err)
	_, err = service.Update(ctx, jan, "storage_A1", "f1", 900)
	require.NoError(t, err)
	_, err = service.Delete(ctx, jan, "storage_A2", "f2")
	require.NoError(t, err)
	_, err = service.Upload(ctx, jan, "storage_A2", "f4", 75)
	require.NoError(t, err)
	_, err = service.Update(ctx, jan, "storage_A2", "f4", 25)
	require.NoError(t, err)

	// Occupancy always equals the sum of the files currently stored.
	for _, unitID := range []string{"storage_A1", "storage_A2", "storage_B1", "storage_B2"} {
		var sum int64
		for _, info := range service.StoredIn(unitID) {
			sum += info.SizeKB
		}
		assert.Equal(t, sum, service.Occupied(unitID), unitID)
	}
	assert.EqualValues(t, 960, service.Occupied("storage_A1"))
	assert.EqualValues(t, 25, service.Occupied("storage_A2"))
	assert.Equal(t, 3, service.Files())
}

func TestOperationLogging(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	core, logs := observer.New(zapcore.DebugLevel)
	service := accounting.NewService(zap.New(core), pricing.DefaultSchedule(),
		accounting.Config{FreePlan: true})

	_, err := service.Upload(ctx, date(2024, time.January, 5), "storage_A1", "f1", 500)
	require.NoError(t, err)
	_, err = service.Update(ctx, date(2024, time.January, 6), "storage_A1", "f1", 700)
	require.NoError(t, err)
	_, err = service.Delete(ctx, date(2024, time.January, 7), "storage_A1", "f1")
	require.NoError(t, err)

	// Rejections are expected outcomes and stay out of the log.
	_, err = service.Delete(ctx, date(2024, time.January, 8), "storage_A1", "f1")
	require.Error(t, err)

	entries := logs.All()
	require.Len(t, entries, 3)
	assert.Equal(t, "file uploaded", entries[0].Message)
	assert.Equal(t, "file updated", entries[1].Message)
	assert.Equal(t, "file deleted", entries[2].Message)
	for _, entry := range entries {
		assert.Equal(t, zapcore.DebugLevel, entry.Level)
	}

	fields := entries[0].ContextMap()
	assert.Equal(t, "storage_A1", fields["unit"])
	assert.Equal(t, "f1", fields["file"])
	assert.EqualValues(t, 500, fields["size_kb"])

	// Delete logs the size of the removed contents.
	assert.EqualValues(t, 700, entries[2].ContextMap()["size_kb"])
}

func TestPaidPlan(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	service := accounting.NewService(zaptest.NewLogger(t), pricing.DefaultSchedule(),
		accounting.Config{FreePlan: false})

	totals, err := service.Upload(ctx, date(2024, time.January, 5), "storage_B1", "f1", 5000)
	require.NoError(t, err)
	assert.Equal(t, billing.Totals{StorageFee: 1, UpdateFee: 1}, totals)

	// No allowance check applies, but the overage still reports how
	// far fees run past it.
	totals, err = service.Upload(ctx, date(2024, time.January, 6), "storage_A1", "f2", 200000000)
	require.NoError(t, err)
	assert.Equal(t, billing.Totals{StorageFee: 2001, UpdateFee: 101, UsageFee: 1101}, totals)
}

func TestIndependentAccounts(t *testing.T) {
	ctx := testcontext.New(t)

	free := newFreePlan(t)
	paid := accounting.NewService(zaptest.NewLogger(t), pricing.DefaultSchedule(),
		accounting.Config{FreePlan: false})

	ctx.Go(func() error {
		_, err := free.Upload(ctx, date(2024, time.January, 5), "storage_A1", "f1", 500)
		return err
	})
	ctx.Go(func() error {
		_, err := paid.Upload(ctx, date(2024, time.January, 5), "storage_B1", "f1", 500)
		return err
	})
	ctx.Cleanup()

	assert.EqualValues(t, 500, free.Occupied("storage_A1"))
	assert.EqualValues(t, 0, free.Occupied("storage_B1"))
	assert.EqualValues(t, 500, paid.Occupied("storage_B1"))

	files := paid.StoredIn("storage_B1")
	require.Len(t, files, 1)
	assert.Equal(t, "f1", files[0].Name)
}
