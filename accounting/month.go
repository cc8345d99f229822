// Copyright (C) 2025 Feesim Authors.
// See LICENSE for copying information.

package accounting

import "time"

// Month identifies a calendar month. It is a comparable value type and
// can be used as a map key.
type Month struct {
	Year  int
	Month time.Month
}

// MonthOf returns the month containing t.
func MonthOf(t time.Time) Month {
	return Month{Year: t.Year(), Month: t.Month()}
}

// Previous returns the month before m.
func (m Month) Previous() Month {
	return MonthOf(m.Time().AddDate(0, 0, -1))
}

// Time returns the first instant of the month in UTC.
func (m Month) Time() time.Time {
	return time.Date(m.Year, m.Month, 1, 0, 0, 0, 0, time.UTC)
}

// String formats the month as YYYY-MM.
func (m Month) String() string {
	return m.Time().Format("2006-01")
}
