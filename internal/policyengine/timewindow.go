package policyengine

import (
	"fmt"
	"time"

	"github.com/toolaccess/broker/internal/domain"
)

// parseHHMM parses a "HH:MM" string into minutes since midnight.
func parseHHMM(s string) (int, error) {
	var h, m int
	if _, err := fmt.Sscanf(s, "%d:%d", &h, &m); err != nil {
		return 0, err
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, fmt.Errorf("policyengine: invalid time-of-day %q", s)
	}
	return h*60 + m, nil
}

// hourWindowContains reports whether now falls inside w, evaluated in w's
// own timezone at minute granularity (spec.md §4.4). A window that wraps
// past midnight (end <= start) is treated as spanning into the next day.
//
// DST handling: converting now to w.TZ and comparing wall-clock hour/minute
// is inherently ambiguous during a fall-back repeat hour and undefined
// during a spring-forward gap. Per the resolved open question, a gap
// (a wall-clock time that does not exist that day) is treated as outside
// the window (deny), and a repeated hour (exists twice) is treated as
// inside the window if either occurrence would match (allow).
func hourWindowContains(w domain.HourWindow, now time.Time) bool {
	loc, err := time.LoadLocation(w.TZ)
	if err != nil {
		loc = time.UTC
	}
	local := now.In(loc)

	// time.Time never represents a genuinely nonexistent wall-clock instant
	// — the stdlib normalizes it forward across the gap — so the "gap"
	// case reduces to: the normalized instant's offset differs from the
	// offset one minute earlier by more than the usual continuous delta,
	// which only happens across a spring-forward transition.
	oneMinuteEarlier := local.Add(-time.Minute)
	_, offsetNow := local.Zone()
	_, offsetEarlier := oneMinuteEarlier.Zone()
	if offsetNow != offsetEarlier && offsetNow > offsetEarlier {
		// Spring-forward gap: the wall-clock minute we'd be checking was
		// skipped entirely. Deny rather than guess which side it belongs to.
		return false
	}

	minutesNow := local.Hour()*60 + local.Minute()
	start, serr := parseHHMM(w.Start)
	end, eerr := parseHHMM(w.End)
	if serr != nil || eerr != nil {
		return false
	}

	if end <= start {
		// Wraps past midnight: inside if at or after start, OR before end.
		return minutesNow >= start || minutesNow < end
	}
	return minutesNow >= start && minutesNow < end
}

// dayAllowed checks now's weekday (in the window's timezone if one is
// configured, else UTC) against the declared set of allowed days, using
// the domain's 0=Monday..6=Sunday convention rather than time.Weekday's
// 0=Sunday..6=Saturday.
func dayAllowed(allowedDays []int, now time.Time, w *domain.HourWindow) bool {
	loc := time.UTC
	if w != nil {
		if l, err := time.LoadLocation(w.TZ); err == nil {
			loc = l
		}
	}
	weekday := (int(now.In(loc).Weekday()) + 6) % 7
	for _, d := range allowedDays {
		if d == weekday {
			return true
		}
	}
	return false
}
