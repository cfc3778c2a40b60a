// internal/domain/complaint/action.go
package complaint

import "time"

// ActionType classifies an entry of the complaint timeline.
type ActionType string

const (
	ActionSubmitted    ActionType = "submitted"
	ActionEmailSent    ActionType = "email_sent"
	ActionFollowUp     ActionType = "follow_up"
	ActionEscalated    ActionType = "escalated"
	ActionStatusChange ActionType = "status_change"
)

// Action is one append-only entry of the complaint timeline.
// Corresponds to the 'complaint_actions' table.
type Action struct {
	ID          int64
	ComplaintID string
	Type        ActionType
	Description string
	Metadata    map[string]any
	CreatedAt   time.Time
}
