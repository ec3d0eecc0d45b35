package domain

import (
	"fmt"
	"strings"
	"time"
)

type RankingType string

const (
	RankingDaily   RankingType = "daily"
	RankingWeekly  RankingType = "weekly"
	RankingMonthly RankingType = "monthly"
	RankingYearly  RankingType = "yearly"
)

func ParseRankingType(raw string) (RankingType, error) {
	switch t := RankingType(strings.ToLower(strings.TrimSpace(raw))); t {
	case RankingDaily, RankingWeekly, RankingMonthly, RankingYearly:
		return t, nil
	default:
		return "", NewValidationError("ranking_type", fmt.Sprintf("unknown type %q", raw))
	}
}

// Period is a half-open window [Start, End) expressed in UTC.
type Period struct {
	Type  RankingType
	Start time.Time
	End   time.Time
}

// PeriodFor returns the period of type t containing at, with boundaries at
// local midnight in loc. Weeks start on Monday.
func PeriodFor(t RankingType, at time.Time, loc *time.Location) (Period, error) {
	if loc == nil {
		loc = time.UTC
	}
	local := at.In(loc)
	y, m, d := local.Date()

	var start, end time.Time
	switch t {
	case RankingDaily:
		start = time.Date(y, m, d, 0, 0, 0, 0, loc)
		end = start.AddDate(0, 0, 1)
	case RankingWeekly:
		offset := (int(local.Weekday()) + 6) % 7
		start = time.Date(y, m, d-offset, 0, 0, 0, 0, loc)
		end = start.AddDate(0, 0, 7)
	case RankingMonthly:
		start = time.Date(y, m, 1, 0, 0, 0, 0, loc)
		end = start.AddDate(0, 1, 0)
	case RankingYearly:
		start = time.Date(y, 1, 1, 0, 0, 0, 0, loc)
		end = start.AddDate(1, 0, 0)
	default:
		return Period{}, NewValidationError("ranking_type", fmt.Sprintf("unknown type %q", t))
	}
	return Period{Type: t, Start: start.UTC(), End: end.UTC()}, nil
}

// Previous is the period immediately before p.
func (p Period) Previous(loc *time.Location) Period {
	prev, _ := PeriodFor(p.Type, p.Start.Add(-time.Nanosecond), loc)
	return prev
}

func (p Period) Contains(at time.Time) bool {
	return !at.Before(p.Start) && at.Before(p.End)
}

func (p Period) ClosedAt(now time.Time) bool {
	return !now.Before(p.End)
}

// CalendarDays is the number of calendar days from `from` to `to` as seen in
// loc. Dates are compared on a UTC grid so DST transitions never shift the count.
func CalendarDays(from, to time.Time, loc *time.Location) int {
	if loc == nil {
		loc = time.UTC
	}
	fy, fm, fd := from.In(loc).Date()
	ty, tm, td := to.In(loc).Date()
	a := time.Date(fy, fm, fd, 0, 0, 0, 0, time.UTC)
	b := time.Date(ty, tm, td, 0, 0, 0, 0, time.UTC)
	return int(b.Sub(a).Hours() / 24)
}
