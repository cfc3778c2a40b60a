// internal/domain/complaint/complaint.go
package complaint

import (
	"database/sql"
	"time"
)

// Status is the lifecycle state of a complaint.
type Status string

const (
	StatusSubmitted  Status = "submitted"
	StatusInProgress Status = "in_progress"
	StatusEscalated  Status = "escalated"
	StatusResolved   Status = "resolved"
	StatusRejected   Status = "rejected"
)

// TerminalStatuses are the statuses that stop any further evaluation.
func TerminalStatuses() []Status {
	return []Status{StatusResolved, StatusRejected}
}

// IsTerminal reports whether no more follow-ups or escalations may happen.
// An escalated complaint is not terminal.
func (s Status) IsTerminal() bool {
	return s == StatusResolved || s == StatusRejected
}

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusSubmitted, StatusInProgress, StatusEscalated, StatusResolved, StatusRejected:
		return true
	}
	return false
}

// Score is the ordinal encoding fed to the decision model.
// Unknown statuses score like "submitted".
func (s Status) Score() int {
	switch s {
	case StatusRejected:
		return 0
	case StatusSubmitted:
		return 1
	case StatusInProgress:
		return 2
	case StatusEscalated:
		return 3
	case StatusResolved:
		return 4
	default:
		return 1
	}
}

// Complaint is a civic issue report. The engine only reads it and updates Status.
type Complaint struct {
	ID                 string
	Status             Status
	Category           string
	OfficialSummary    sql.NullString
	Landmark           sql.NullString
	ImageURL           sql.NullString
	AssignedDepartment sql.NullString // FK to departments.id, set once by the reasoning step
	SLAHours           sql.NullInt64  // NULL when the reasoning step did not produce one
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// SLAHoursOr returns the complaint SLA budget, or def when it is missing or not positive.
func (c *Complaint) SLAHoursOr(def int) int {
	if c.SLAHours.Valid && c.SLAHours.Int64 > 0 {
		return int(c.SLAHours.Int64)
	}
	return def
}

// SLADeadline is created_at plus the SLA budget.
func (c *Complaint) SLADeadline(defaultSLAHours int) time.Time {
	return c.CreatedAt.Add(time.Duration(c.SLAHoursOr(defaultSLAHours)) * time.Hour)
}
