package department

import (
	"database/sql"
	"time"
)

// DefaultPriority is used when a complaint has no department or the lookup failed.
const DefaultPriority = 5

// Department is a municipal department that complaints get routed to.
type Department struct {
	ID              string
	Name            string
	ContactEmail    string
	EscalationEmail sql.NullString
	PriorityLevel   int // 1-10, higher is more urgent
	CreatedAt       time.Time
}

// EscalationTarget returns the supervisory address, falling back to the contact email.
func (d *Department) EscalationTarget() string {
	if d.EscalationEmail.Valid && d.EscalationEmail.String != "" {
		return d.EscalationEmail.String
	}
	return d.ContactEmail
}
