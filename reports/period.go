package reports

import (
	"fmt"
	"time"
)

// =============================================================================
// PERIOD - reporting windows
// =============================================================================

// Period is the half-open window [Start, End) a report covers, matching the
// store's From/To filters.
//
// Examples:
//   - Calendar year 2026: Jan 1 2026 - Jan 1 2027
//   - Fiscal year 2026 starting July: Jul 1 2026 - Jul 1 2027
//   - Rolling: the twelve months ending at the reference day
type Period struct {
	Start time.Time
	End   time.Time
}

func (p Period) String() string {
	return "[" + p.Start.Format("2006-01-02") + ", " + p.End.Format("2006-01-02") + ")"
}

// PeriodType defines how periods are calculated.
type PeriodType string

const (
	PeriodCalendarYear PeriodType = "calendar_year" // Jan 1 - Dec 31
	PeriodFiscalYear   PeriodType = "fiscal_year"   // starts at FiscalYearStart
	PeriodQuarter      PeriodType = "quarter"       // calendar quarter
	PeriodMonth        PeriodType = "month"
	PeriodRolling      PeriodType = "rolling" // twelve months ending at the reference day
)

// ParsePeriodType validates a period name from a query string.
func ParsePeriodType(s string) (PeriodType, error) {
	switch t := PeriodType(s); t {
	case PeriodCalendarYear, PeriodFiscalYear, PeriodQuarter, PeriodMonth, PeriodRolling:
		return t, nil
	}
	return "", fmt.Errorf("unknown period %q", s)
}

// PeriodConfig determines which period a date falls into.
type PeriodConfig struct {
	Type PeriodType

	// First month of the fiscal year (1-12). Zero means January.
	FiscalYearStart time.Month
}

// PeriodFor returns the period that contains at. All periods are in UTC and
// start at midnight.
func (pc PeriodConfig) PeriodFor(at time.Time) Period {
	at = at.UTC()
	year, month, day := at.Date()

	switch pc.Type {
	case PeriodFiscalYear:
		start := pc.FiscalYearStart
		if start < time.January || start > time.December {
			start = time.January
		}
		from := date(year, start, 1)
		// before this year's fiscal start, we're in the previous fiscal year
		if at.Before(from) {
			from = date(year-1, start, 1)
		}
		return Period{Start: from, End: from.AddDate(1, 0, 0)}

	case PeriodQuarter:
		q := (int(month) - 1) / 3
		from := date(year, time.Month(q*3+1), 1)
		return Period{Start: from, End: from.AddDate(0, 3, 0)}

	case PeriodMonth:
		from := date(year, month, 1)
		return Period{Start: from, End: from.AddDate(0, 1, 0)}

	case PeriodRolling:
		end := date(year, month, day).AddDate(0, 0, 1)
		return Period{Start: end.AddDate(-1, 0, 0), End: end}

	default:
		from := date(year, time.January, 1)
		return Period{Start: from, End: from.AddDate(1, 0, 0)}
	}
}

func date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}
