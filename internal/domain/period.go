package domain

import (
	"fmt"
	"strings"
	"time"
)

// Period identifies a ranking window.
type Period string

const (
	PeriodDaily   Period = "daily"
	PeriodWeekly  Period = "weekly"
	PeriodMonthly Period = "monthly"
	PeriodAllTime Period = "all_time"
)

// Periods lists every period in the order ranking results are reported.
var Periods = []Period{PeriodDaily, PeriodWeekly, PeriodMonthly, PeriodAllTime}

// DateLayout is the calendar-day format stored for aggregates and period starts.
const DateLayout = "2006-01-02"

// allTimeStart is the fixed period_start recorded for the all-time period.
var allTimeStart = time.Date(1970, time.January, 1, 0, 0, 0, 0, time.UTC)

// ParsePeriod accepts the canonical names plus the dashed "all-time" spelling.
func ParsePeriod(s string) (Period, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "daily", "day":
		return PeriodDaily, nil
	case "weekly", "week":
		return PeriodWeekly, nil
	case "monthly", "month":
		return PeriodMonthly, nil
	case "all_time", "all-time", "alltime", "all":
		return PeriodAllTime, nil
	default:
		return "", fmt.Errorf("unknown period %q", s)
	}
}

// Window is the half-open interval [Start, End) a period covers.
type Window struct {
	Period Period
	Start  time.Time
	End    time.Time
}

// Bounded reports whether queries should apply Start as a lower bound.
func (w Window) Bounded() bool {
	return w.Period != PeriodAllTime
}

// StartDate returns Start formatted as a calendar day, the period_start key.
func (w Window) StartDate() string {
	return w.Start.Format(DateLayout)
}

// WindowFor computes the window for a period relative to now.
//
// Windows always end at the start of the current UTC day so that only
// complete days are ranked. The reference day is yesterday: the weekly window
// starts on the Monday of yesterday's week and the monthly window on the first
// of yesterday's month. The ranking batch and the read path must both resolve
// windows through this function.
func WindowFor(p Period, now time.Time) Window {
	now = now.UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	yesterday := today.AddDate(0, 0, -1)

	var start time.Time
	switch p {
	case PeriodDaily:
		start = yesterday
	case PeriodWeekly:
		weekday := int(yesterday.Weekday())
		if weekday == 0 {
			weekday = 7
		}
		start = yesterday.AddDate(0, 0, -(weekday - 1))
	case PeriodMonthly:
		start = time.Date(yesterday.Year(), yesterday.Month(), 1, 0, 0, 0, 0, time.UTC)
	default:
		start = allTimeStart
	}

	return Window{Period: p, Start: start, End: today}
}

// StreakWindow returns the inclusive calendar-day range used for the
// activity-day streak proxy: the 30 days ending yesterday.
func StreakWindow(now time.Time, days int) (from, to string) {
	now = now.UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	yesterday := today.AddDate(0, 0, -1)
	return yesterday.AddDate(0, 0, -(days - 1)).Format(DateLayout), yesterday.Format(DateLayout)
}
