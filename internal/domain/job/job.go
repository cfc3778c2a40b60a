// internal/domain/job/job.go
package job

import (
	"fmt"
	"time"
)

// Kind distinguishes single-fire evaluations from the periodic sweep.
type Kind string

const (
	KindOneShot   Kind = "one_shot"
	KindRecurring Kind = "recurring"
)

// SweepID identifies the recurring sweep job.
const SweepID = "followup_sweep"

// ScheduledJob describes a pending timer. It lives only in scheduler memory.
type ScheduledJob struct {
	ID          string    `json:"id"`
	ComplaintID string    `json:"complaint_id,omitempty"`
	RunAt       time.Time `json:"run_at"`
	Kind        Kind      `json:"kind"`
}

// FollowUpJobID is the deterministic id of a complaint's first-evaluation job.
func FollowUpJobID(complaintID string) string {
	return fmt.Sprintf("complaint_%s_followup", complaintID)
}
