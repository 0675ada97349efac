package domain

import (
	"time"

	"github.com/google/uuid"
)

// TaskFact is the task fact row. Facts are SCD Type 1: changed rows are
// overwritten in place and dimension keys are re-resolved on every sync.
type TaskFact struct {
	TaskFactKey     int64
	TaskID          uuid.UUID
	TenantID        uuid.UUID
	ProjectKey      int64
	AssigneeKey     int64
	ReporterKey     int64
	StatusKey       int64
	PriorityKey     int64
	CreatedDateKey  int
	DueDateKey      *int
	Title           string
	EstimatedHours  *float64
	ActualHours     *float64
	DaysInState     int
	IsOverdue       bool
	DaysOverdue     int
	CompletionRatio float64
	SourceUpdatedAt time.Time
	ETLBatchID      uuid.UUID
}

// Changed mirrors the dimension drift check: null-safe inequality across
// tracked fields. Dimension keys are excluded here because they are always
// recomputed; comparing them separately decides whether an update is needed
// even when the business attributes held still.
func (f TaskFact) Changed(other TaskFact) bool {
	return f.Title != other.Title ||
		f.ProjectKey != other.ProjectKey ||
		f.AssigneeKey != other.AssigneeKey ||
		f.ReporterKey != other.ReporterKey ||
		f.StatusKey != other.StatusKey ||
		f.PriorityKey != other.PriorityKey ||
		!EqualPtr(f.EstimatedHours, other.EstimatedHours) ||
		!EqualPtr(f.ActualHours, other.ActualHours) ||
		!EqualPtr(f.DueDateKey, other.DueDateKey) ||
		f.DaysInState != other.DaysInState ||
		f.IsOverdue != other.IsOverdue ||
		f.DaysOverdue != other.DaysOverdue ||
		f.CompletionRatio != other.CompletionRatio
}

// TimeLogFact is one time entry projected into the warehouse.
type TimeLogFact struct {
	TimeLogKey  int64
	TimeEntryID uuid.UUID
	TenantID    uuid.UUID
	TaskID      uuid.UUID
	UserKey     int64
	ProjectKey  int64
	DateKey     int
	EntryDate   time.Time
	Hours       float64
	ETLBatchID  uuid.UUID
}

func (f TimeLogFact) Changed(other TimeLogFact) bool {
	return f.UserKey != other.UserKey ||
		f.ProjectKey != other.ProjectKey ||
		f.DateKey != other.DateKey ||
		f.Hours != other.Hours
}

// DaysInState is the whole-day age of the task's current status.
func DaysInState(now, statusChangedAt time.Time) int {
	if statusChangedAt.After(now) {
		return 0
	}
	return int(now.Sub(statusChangedAt).Hours() / 24)
}

// Overdue evaluates the overdue flag and day count. A task with no due date,
// or in a terminal status, is never overdue.
func Overdue(now time.Time, dueDate *time.Time, status string) (bool, int) {
	if dueDate == nil || IsTerminalStatus(status) {
		return false, 0
	}
	due := time.Date(dueDate.Year(), dueDate.Month(), dueDate.Day(), 0, 0, 0, 0, now.Location())
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	if !due.Before(today) {
		return false, 0
	}
	days := int(today.Sub(due).Hours() / 24)
	if days < 0 {
		days = 0
	}
	return true, days
}

// maxOpenRatio caps the proportional ratio strictly below 100 so that only
// terminal tasks report full completion.
const maxOpenRatio = 99.99

// CompletionRatio derives the percent-complete metric: 100 for terminal
// statuses regardless of hours, 0 with no usable estimate, otherwise the
// actual/estimated proportion capped just under 100.
func CompletionRatio(status string, estimatedHours, actualHours *float64) float64 {
	if IsTerminalStatus(status) {
		return 100
	}
	if estimatedHours == nil || *estimatedHours <= 0 {
		return 0
	}
	actual := 0.0
	if actualHours != nil {
		actual = *actualHours
	}
	if actual <= 0 {
		return 0
	}
	ratio := actual / *estimatedHours * 100
	if ratio > maxOpenRatio {
		return maxOpenRatio
	}
	// round to two decimals to match the numeric(5,2) column
	return float64(int(ratio*100+0.5)) / 100
}
