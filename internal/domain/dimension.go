package domain

import (
	"time"

	"github.com/google/uuid"
)

// UnknownDimKey is the surrogate key of the seeded unknown member present in
// every dimension table. Facts resolve missing references to it instead of
// failing the row.
const UnknownDimKey int64 = -1

// DimVersion carries the SCD Type 2 bookkeeping columns shared by every
// versioned dimension row.
type DimVersion struct {
	EffectiveFrom time.Time
	ExpiresAt     *time.Time
	IsCurrent     bool
	Version       int
	SourceSystem  string
	ETLBatchID    uuid.UUID
}

// DimUser is one version row of the user dimension.
type DimUser struct {
	UserKey  int64
	UserID   uuid.UUID
	TenantID uuid.UUID
	Email    string
	FullName string
	Role     string
	IsActive bool
	DimVersion
}

// Changed reports whether any tracked attribute drifted from the source row.
func (d DimUser) Changed(src SourceUser) bool {
	return d.Email != src.Email ||
		d.FullName != src.FullName ||
		d.Role != src.Role ||
		d.IsActive != src.IsActive
}

// DimProject is one version row of the project dimension.
type DimProject struct {
	ProjectKey int64
	ProjectID  uuid.UUID
	TenantID   uuid.UUID
	Name       string
	Status     string
	OwnerID    *uuid.UUID
	StartsOn   *time.Time
	EndsOn     *time.Time
	DimVersion
}

func (d DimProject) Changed(src SourceProject) bool {
	return d.Name != src.Name ||
		d.Status != src.Status ||
		!EqualPtr(d.OwnerID, src.OwnerID) ||
		!EqualDatePtr(d.StartsOn, src.StartsOn) ||
		!EqualDatePtr(d.EndsOn, src.EndsOn)
}

// DimStatus is one version row of the status dimension.
type DimStatus struct {
	StatusKey  int64
	StatusCode string
	StatusName string
	IsTerminal bool
	SortOrder  int
	DimVersion
}

func (d DimStatus) Changed(def StatusDef) bool {
	return d.StatusName != def.Name ||
		d.IsTerminal != def.IsTerminal ||
		d.SortOrder != def.SortOrder
}

// DimPriority is one version row of the priority dimension.
type DimPriority struct {
	PriorityKey  int64
	PriorityCode string
	PriorityName string
	SortOrder    int
	DimVersion
}

func (d DimPriority) Changed(def PriorityDef) bool {
	return d.PriorityName != def.Name || d.SortOrder != def.SortOrder
}

// DimDate is one calendar row of the date dimension. Date attributes never
// change, so the table is range-loaded rather than versioned.
type DimDate struct {
	DateKey   int
	FullDate  time.Time
	Year      int
	Quarter   int
	Month     int
	MonthName string
	Day       int
	DayOfWeek int
	DayName   string
	IsWeekend bool
}

// DateKey converts a date to the warehouse yyyymmdd integer key.
func DateKey(t time.Time) int {
	y, m, d := t.Date()
	return y*10000 + int(m)*100 + d
}

// NewDimDate derives the calendar attributes for one day.
func NewDimDate(t time.Time) DimDate {
	y, m, d := t.Date()
	wd := t.Weekday()
	return DimDate{
		DateKey:   DateKey(t),
		FullDate:  time.Date(y, m, d, 0, 0, 0, 0, time.UTC),
		Year:      y,
		Quarter:   (int(m)-1)/3 + 1,
		Month:     int(m),
		MonthName: m.String(),
		Day:       d,
		DayOfWeek: int(wd),
		DayName:   wd.String(),
		IsWeekend: wd == time.Saturday || wd == time.Sunday,
	}
}
