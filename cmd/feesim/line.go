// Copyright (C) 2025 Feesim Authors.
// See LICENSE for copying information.

package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/zeebo/errs"

	"github.com/feesim/feesim/accounting"
	"github.com/feesim/feesim/billing"
)

// Operation names accepted on input lines.
const (
	opUpload = "UPLOAD"
	opDelete = "DELETE"
	opUpdate = "UPDATE"
	opCalc   = "CALC"
)

// timestampLayouts lists accepted timestamp formats, most specific
// first. Fractional seconds after the seconds field parse with the
// same layouts.
var timestampLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
}

// session feeds operation lines to an accounting service and formats
// the responses.
type session struct {
	service *accounting.Service
}

func newSession(service *accounting.Service) *session {
	return &session{service: service}
}

// Handle parses a single operation line and returns its response line.
// Lines have the form "<timestamp> <operation> [args...]".
func (s *session) Handle(ctx context.Context, line string) string {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return "ERROR: empty command"
	}
	if len(fields) < 2 {
		return "ERROR: invalid command format or value"
	}

	at, err := parseTimestamp(fields[0])
	if err != nil {
		return "ERROR: invalid command format or value"
	}

	op := strings.ToUpper(fields[1])
	switch {
	case op == opUpload && len(fields) == 5:
		size, err := strconv.ParseInt(fields[4], 10, 64)
		if err != nil {
			return "ERROR: invalid command format or value"
		}
		totals, err := s.service.Upload(ctx, at, fields[2], fields[3], size)
		if err != nil {
			return rejectionLine(opUpload, err)
		}
		return respond(opUpload, totals)

	case op == opDelete && len(fields) == 4:
		totals, err := s.service.Delete(ctx, at, fields[2], fields[3])
		if err != nil {
			return rejectionLine(opDelete, err)
		}
		return respond(opDelete, totals)

	case op == opUpdate && len(fields) == 5:
		size, err := strconv.ParseInt(fields[4], 10, 64)
		if err != nil {
			return "ERROR: invalid command format or value"
		}
		totals, err := s.service.Update(ctx, at, fields[2], fields[3], size)
		if err != nil {
			return rejectionLine(opUpdate, err)
		}
		return respond(opUpdate, totals)

	case op == opCalc && len(fields) == 2:
		report, err := s.service.CloseMonth(ctx, at)
		if err != nil {
			return rejectionLine(opCalc, err)
		}
		return formatReport(report)

	default:
		return op + ": invalid command format"
	}
}

func parseTimestamp(value string) (time.Time, error) {
	for _, layout := range timestampLayouts {
		if at, err := time.Parse(layout, value); err == nil {
			return at, nil
		}
	}
	return time.Time{}, errs.New("invalid timestamp %q", value)
}

// rejectionLine maps a service rejection to its response line.
func rejectionLine(op string, err error) string {
	switch {
	case accounting.ErrFileExists.Has(err):
		return op + ": file already exists"
	case accounting.ErrUnknownUnit.Has(err):
		return op + ": invalid storage name"
	case accounting.ErrUnitNotOnFreePlan.Has(err):
		return op + ": this storage location is not available on the free plan"
	case accounting.ErrFileNotFound.Has(err):
		return op + ": file does not exist"
	case accounting.ErrWrongUnit.Has(err):
		return op + ": file is not in the specified storage"
	case accounting.ErrFeeLimit.Has(err):
		return op + ": free plan fee limit exceeded"
	default:
		return "ERROR: invalid command format or value"
	}
}

func respond(op string, totals billing.Totals) string {
	return fmt.Sprintf("%s: %d %d %d", op, totals.StorageFee, totals.UpdateFee, totals.UsageFee)
}

func formatReport(report accounting.CloseReport) string {
	sizes := make([]string, 0, len(report.Sizes))
	for _, size := range report.Sizes {
		sizes = append(sizes, strconv.FormatInt(size.SizeKB, 10))
	}
	return fmt.Sprintf("CALC: [%s] %d %d %d",
		strings.Join(sizes, " "),
		report.Fees.StorageFee, report.Fees.UpdateFee, report.Fees.UsageFee)
}
