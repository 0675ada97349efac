package domain

import (
	"testing"
	"time"
)

func hours(v float64) *float64 { return &v }

func TestCompletionRatio(t *testing.T) {
	cases := []struct {
		name      string
		status    string
		estimated *float64
		actual    *float64
		want      float64
	}{
		{"terminal status is always complete", "done", hours(10), hours(2), 100},
		{"cancelled counts as complete", "cancelled", nil, nil, 100},
		{"no estimate", "in_progress", nil, hours(5), 0},
		{"zero estimate", "in_progress", hours(0), hours(5), 0},
		{"no actual", "in_progress", hours(10), nil, 0},
		{"zero actual", "in_progress", hours(10), hours(0), 0},
		{"half done", "in_progress", hours(10), hours(5), 50},
		{"rounded to two decimals", "in_progress", hours(3), hours(1), 33.33},
		{"overrun capped below complete", "in_progress", hours(10), hours(25), 99.99},
		{"exactly at estimate capped", "in_progress", hours(10), hours(10), 99.99},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := CompletionRatio(tc.status, tc.estimated, tc.actual)
			if got != tc.want {
				t.Fatalf("expected %.2f, got %.2f", tc.want, got)
			}
		})
	}
}

func TestOverdue(t *testing.T) {
	now := time.Date(2026, 8, 30, 15, 0, 0, 0, time.UTC)
	past := time.Date(2026, 8, 27, 9, 0, 0, 0, time.UTC)
	today := time.Date(2026, 8, 30, 23, 0, 0, 0, time.UTC)
	future := time.Date(2026, 9, 2, 0, 0, 0, 0, time.UTC)

	if over, days := Overdue(now, nil, "in_progress"); over || days != 0 {
		t.Fatalf("task without due date must not be overdue, got %v/%d", over, days)
	}
	if over, days := Overdue(now, &past, "done"); over || days != 0 {
		t.Fatalf("terminal task must not be overdue, got %v/%d", over, days)
	}
	if over, days := Overdue(now, &past, "in_progress"); !over || days != 3 {
		t.Fatalf("expected overdue by 3 days, got %v/%d", over, days)
	}
	if over, days := Overdue(now, &today, "in_progress"); over || days != 0 {
		t.Fatalf("due today is not overdue, got %v/%d", over, days)
	}
	if over, days := Overdue(now, &future, "in_progress"); over || days != 0 {
		t.Fatalf("future due date is not overdue, got %v/%d", over, days)
	}
}

func TestDaysInState(t *testing.T) {
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)

	if got := DaysInState(now, now.Add(-49*time.Hour)); got != 2 {
		t.Fatalf("expected 2 whole days, got %d", got)
	}
	if got := DaysInState(now, now.Add(time.Hour)); got != 0 {
		t.Fatalf("future status change clamps to 0, got %d", got)
	}
}

func TestDateKey(t *testing.T) {
	d := time.Date(2026, 2, 5, 23, 59, 0, 0, time.UTC)
	if got := DateKey(d); got != 20260205 {
		t.Fatalf("expected 20260205, got %d", got)
	}
}

func TestNewDimDate(t *testing.T) {
	d := NewDimDate(time.Date(2026, 8, 29, 10, 30, 0, 0, time.UTC)) // a Saturday
	if !d.IsWeekend {
		t.Fatalf("expected weekend")
	}
	if d.Quarter != 3 {
		t.Fatalf("expected quarter 3, got %d", d.Quarter)
	}
	if d.DayName != "Saturday" {
		t.Fatalf("expected Saturday, got %s", d.DayName)
	}
	if !d.FullDate.Equal(time.Date(2026, 8, 29, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("full date must be truncated to midnight, got %v", d.FullDate)
	}
}

func TestTaskFactChanged(t *testing.T) {
	base := TaskFact{
		Title:           "fix login",
		ProjectKey:      3,
		AssigneeKey:     4,
		ReporterKey:     5,
		StatusKey:       6,
		PriorityKey:     7,
		EstimatedHours:  hours(8),
		CompletionRatio: 25,
	}

	same := base
	if base.Changed(same) {
		t.Fatalf("identical facts must not report change")
	}

	rekeyed := base
	rekeyed.AssigneeKey = UnknownDimKey
	if !base.Changed(rekeyed) {
		t.Fatalf("dimension key drift must report change")
	}

	nilEstimate := base
	nilEstimate.EstimatedHours = nil
	if !base.Changed(nilEstimate) {
		t.Fatalf("nil vs set pointer must report change")
	}
}
