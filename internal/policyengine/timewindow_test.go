package policyengine

import (
	"testing"
	"time"

	"github.com/toolaccess/broker/internal/domain"
)

func TestHourWindowContainsBasic(t *testing.T) {
	w := domain.HourWindow{Start: "09:00", End: "17:00", TZ: "UTC"}

	inside := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	if !hourWindowContains(w, inside) {
		t.Fatalf("expected %v to be inside window", inside)
	}

	before := time.Date(2026, 3, 10, 8, 59, 0, 0, time.UTC)
	if hourWindowContains(w, before) {
		t.Fatalf("expected %v to be outside window", before)
	}

	atEnd := time.Date(2026, 3, 10, 17, 0, 0, 0, time.UTC)
	if hourWindowContains(w, atEnd) {
		t.Fatalf("end is exclusive, expected %v to be outside window", atEnd)
	}
}

func TestHourWindowContainsWrapsPastMidnight(t *testing.T) {
	w := domain.HourWindow{Start: "22:00", End: "06:00", TZ: "UTC"}

	lateNight := time.Date(2026, 3, 10, 23, 30, 0, 0, time.UTC)
	if !hourWindowContains(w, lateNight) {
		t.Fatalf("expected %v to be inside wrapping window", lateNight)
	}

	earlyMorning := time.Date(2026, 3, 11, 5, 0, 0, 0, time.UTC)
	if !hourWindowContains(w, earlyMorning) {
		t.Fatalf("expected %v to be inside wrapping window", earlyMorning)
	}

	midday := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	if hourWindowContains(w, midday) {
		t.Fatalf("expected %v to be outside wrapping window", midday)
	}
}

func TestHourWindowContainsInvalidTimeDenies(t *testing.T) {
	w := domain.HourWindow{Start: "not-a-time", End: "17:00", TZ: "UTC"}
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	if hourWindowContains(w, now) {
		t.Fatalf("expected malformed window to deny")
	}
}

func TestHourWindowContainsUnknownZoneFallsBackToUTC(t *testing.T) {
	w := domain.HourWindow{Start: "09:00", End: "17:00", TZ: "Not/AZone"}
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	if !hourWindowContains(w, now) {
		t.Fatalf("expected fallback to UTC to still match")
	}
}

func TestDayAllowedConvertsWeekdayConvention(t *testing.T) {
	// 2026-03-10 is a Tuesday. Domain convention: 0=Mon .. 6=Sun, so
	// Tuesday is 1.
	tuesday := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	if !dayAllowed([]int{1}, tuesday, nil) {
		t.Fatalf("expected Tuesday (domain day 1) to be allowed")
	}
	if dayAllowed([]int{0}, tuesday, nil) {
		t.Fatalf("expected Monday (domain day 0) to not match a Tuesday")
	}
}

func TestDayAllowedUsesWindowTimezone(t *testing.T) {
	// 2026-03-10 23:30 UTC is Tuesday, but in UTC+2 it is already
	// Wednesday (domain day 2).
	lateUTC := time.Date(2026, 3, 10, 23, 30, 0, 0, time.UTC)
	w := &domain.HourWindow{TZ: "Europe/Helsinki"}

	if !dayAllowed([]int{2}, lateUTC, w) {
		t.Fatalf("expected local weekday in Europe/Helsinki to be Wednesday")
	}
}

func TestParseHHMMRejectsOutOfRange(t *testing.T) {
	if _, err := parseHHMM("24:00"); err == nil {
		t.Fatalf("expected hour 24 to be rejected")
	}
	if _, err := parseHHMM("10:60"); err == nil {
		t.Fatalf("expected minute 60 to be rejected")
	}
	if m, err := parseHHMM("09:30"); err != nil || m != 9*60+30 {
		t.Fatalf("expected 09:30 to parse to 570 minutes, got %d, err=%v", m, err)
	}
}
