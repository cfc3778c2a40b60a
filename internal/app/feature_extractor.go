package app

import (
	"time"

	"civic_followup_engine/internal/domain/complaint"
	"civic_followup_engine/internal/domain/decision"
	"civic_followup_engine/internal/domain/department"
)

const defaultSLAHours = 72

// FeatureExtractor turns complaint state into a decision.Features vector.
// It holds no mutable state; Compute is a pure function of its arguments.
type FeatureExtractor struct {
	defaultSLAHours int
	defaultPriority int
}

func NewFeatureExtractor(defaultSLA int) *FeatureExtractor {
	if defaultSLA <= 0 {
		defaultSLA = defaultSLAHours
	}
	return &FeatureExtractor{
		defaultSLAHours: defaultSLA,
		defaultPriority: department.DefaultPriority,
	}
}

// DefaultSLAHours is the SLA applied to complaints without one.
func (e *FeatureExtractor) DefaultSLAHours() int {
	return e.defaultSLAHours
}

// Compute derives the features at instant now. dept may be nil when no
// department is assigned or the lookup failed.
func (e *FeatureExtractor) Compute(c *complaint.Complaint, dept *department.Department, followups int, now time.Time) decision.Features {
	age := now.Sub(c.CreatedAt)
	days := age.Hours() / 24
	if days < 0 {
		days = 0
	}

	priority := e.defaultPriority
	if dept != nil && dept.PriorityLevel > 0 {
		priority = dept.PriorityLevel
	}

	return decision.Features{
		TimeSinceSLABreach:  now.Sub(c.SLADeadline(e.defaultSLAHours)).Hours(),
		CategoryPriority:    priority,
		NumberOfFollowups:   followups,
		DaysSinceSubmission: days,
		StatusScore:         c.Status.Score(),
	}
}
