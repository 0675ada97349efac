package domain

import (
	"time"

	"github.com/google/uuid"
)

// Operational source records. The ETL engine reads these shapes and never
// writes back to the source.

type SourceUser struct {
	ID       uuid.UUID
	TenantID uuid.UUID
	Email    string
	FullName string
	Role     string
	IsActive bool
}

type SourceProject struct {
	ID       uuid.UUID
	TenantID uuid.UUID
	Name     string
	Status   string
	OwnerID  *uuid.UUID
	StartsOn *time.Time
	EndsOn   *time.Time
}

type SourceTask struct {
	ID              uuid.UUID
	TenantID        uuid.UUID
	ProjectID       uuid.UUID
	Title           string
	Status          string
	Priority        string
	AssigneeID      *uuid.UUID
	ReporterID      *uuid.UUID
	EstimatedHours  *float64
	ActualHours     *float64
	DueDate         *time.Time
	StatusChangedAt time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

type SourceTimeEntry struct {
	ID        uuid.UUID
	TenantID  uuid.UUID
	TaskID    uuid.UUID
	UserID    uuid.UUID
	EntryDate time.Time
	Hours     float64
	UpdatedAt time.Time
}

// StatusDef enumerates a task lifecycle state as tracked by the status
// dimension. The set is source-system wide, shared across tenants.
type StatusDef struct {
	Code       string
	Name       string
	IsTerminal bool
	SortOrder  int
}

// PriorityDef enumerates a task priority level.
type PriorityDef struct {
	Code      string
	Name      string
	SortOrder int
}

// StatusCatalog is the lifecycle vocabulary of the task source.
func StatusCatalog() []StatusDef {
	return []StatusDef{
		{Code: "todo", Name: "To Do", IsTerminal: false, SortOrder: 1},
		{Code: "in_progress", Name: "In Progress", IsTerminal: false, SortOrder: 2},
		{Code: "in_review", Name: "In Review", IsTerminal: false, SortOrder: 3},
		{Code: "blocked", Name: "Blocked", IsTerminal: false, SortOrder: 4},
		{Code: "done", Name: "Done", IsTerminal: true, SortOrder: 5},
		{Code: "cancelled", Name: "Cancelled", IsTerminal: true, SortOrder: 6},
	}
}

// PriorityCatalog is the priority vocabulary of the task source.
func PriorityCatalog() []PriorityDef {
	return []PriorityDef{
		{Code: "low", Name: "Low", SortOrder: 1},
		{Code: "medium", Name: "Medium", SortOrder: 2},
		{Code: "high", Name: "High", SortOrder: 3},
		{Code: "urgent", Name: "Urgent", SortOrder: 4},
	}
}

// IsTerminalStatus reports whether a status code ends the task lifecycle.
func IsTerminalStatus(code string) bool {
	for _, def := range StatusCatalog() {
		if def.Code == code {
			return def.IsTerminal
		}
	}
	return false
}
