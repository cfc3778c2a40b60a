// internal/domain/notification/sender.go
package notification

import (
	"context"

	"civic_followup_engine/internal/domain/department"
)

// ComplaintNotice carries what a department needs to know about a new complaint.
type ComplaintNotice struct {
	ComplaintID string
	Category    string
	Summary     string
	Location    string
	ImageURL    string
}

// Sender delivers notifications to departments and escalation contacts.
// A nil error means the notification was accepted for delivery.
type Sender interface {
	SendComplaintNotification(ctx context.Context, dept *department.Department, notice ComplaintNotice) error
	SendFollowUp(ctx context.Context, dept *department.Department, complaintID, category string, daysPending int) error
	SendEscalation(ctx context.Context, targetEmail, departmentName, complaintID, category, reason string) error
}
