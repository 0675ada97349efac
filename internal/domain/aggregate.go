package domain

import (
	"time"

	"github.com/google/uuid"
)

// Aggregate rows are fully derived from fact/dimension state and recomputed
// with replace semantics; they carry no independent lifecycle.

// DailyTaskMetrics groups task facts by date, project and status.
type DailyTaskMetrics struct {
	DateKey             int
	TenantID            uuid.UUID
	ProjectKey          int64
	StatusKey           int64
	TaskCount           int
	OverdueCount        int
	TotalEstimatedHours float64
	TotalActualHours    float64
	AvgCompletionRatio  float64
	ComputedAt          time.Time
}

// UserWorkload summarizes open and overdue tasks plus logged hours per user.
type UserWorkload struct {
	DateKey          int
	TenantID         uuid.UUID
	UserKey          int64
	OpenTaskCount    int
	OverdueTaskCount int
	LoggedHours      float64
	ComputedAt       time.Time
}
