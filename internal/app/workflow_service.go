package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"civic_followup_engine/internal/domain/complaint"
	"civic_followup_engine/internal/domain/decision"
	"civic_followup_engine/internal/domain/department"
	"civic_followup_engine/internal/domain/notification"
	idb "civic_followup_engine/internal/infra/database"
)

const sharedEvaluationTimeout = 60 * time.Second

// Outcome is the result of one evaluation. Expected negative results are
// outcomes, not errors.
type Outcome string

const (
	OutcomeNotFound            Outcome = "not_found"
	OutcomeSkippedTerminal     Outcome = "skipped_terminal"
	OutcomeSkippedNoDepartment Outcome = "skipped_no_department"
	OutcomeFollowUpSent        Outcome = "follow_up_sent"
	OutcomeEscalated           Outcome = "escalated"
	OutcomeNotificationFailed  Outcome = "notification_failed"
)

// Settled reports whether the evaluation reached a state that need not be
// retried soon: a notification went out or the complaint is closed.
func (o Outcome) Settled() bool {
	switch o {
	case OutcomeFollowUpSent, OutcomeEscalated, OutcomeSkippedTerminal:
		return true
	}
	return false
}

// DecisionModel is the read side of the classifier.
type DecisionModel interface {
	Predict(f decision.Features) (decision.Action, float64)
	Explain(f decision.Features) decision.Explanation
}

// DecisionEvent is published after every model decision.
type DecisionEvent struct {
	ID          string            `json:"id"`
	ComplaintID string            `json:"complaint_id"`
	Action      decision.Action   `json:"action"`
	Confidence  float64           `json:"confidence"`
	Features    decision.Features `json:"features"`
	Outcome     Outcome           `json:"outcome"`
	Reason      string            `json:"reason,omitempty"`
	DecidedAt   time.Time         `json:"decided_at"`
}

// DecisionPublisher streams decision events to downstream consumers.
type DecisionPublisher interface {
	PublishDecision(ctx context.Context, event DecisionEvent) error
}

// WorkflowService evaluates a complaint and carries out the chosen action.
type WorkflowService interface {
	EvaluateComplaint(ctx context.Context, complaintID string) (Outcome, error)
}

// WorkflowServiceImpl implements WorkflowService.
type WorkflowServiceImpl struct {
	complaintRepo complaint.Repository
	deptRepo      department.Repository
	sender        notification.Sender
	extractor     *FeatureExtractor
	model         DecisionModel
	publisher     DecisionPublisher // optional
	logger        *logrus.Entry
	now           func() time.Time
	inflight      singleflight.Group
}

func NewWorkflowServiceImpl(
	cr complaint.Repository,
	dr department.Repository,
	sender notification.Sender,
	extractor *FeatureExtractor,
	model DecisionModel,
	publisher DecisionPublisher,
	logger *logrus.Entry,
) *WorkflowServiceImpl {
	return &WorkflowServiceImpl{
		complaintRepo: cr,
		deptRepo:      dr,
		sender:        sender,
		extractor:     extractor,
		model:         model,
		publisher:     publisher,
		logger:        logger.WithField("component", "workflow"),
		now:           time.Now,
	}
}

// EvaluateComplaint runs one evaluation. Concurrent calls for the same
// complaint share a single execution and its result. The shared execution
// runs detached from the caller that started it, bounded by
// sharedEvaluationTimeout; a caller whose ctx ends stops waiting but does not
// abort the run for the others.
func (s *WorkflowServiceImpl) EvaluateComplaint(ctx context.Context, complaintID string) (Outcome, error) {
	ch := s.inflight.DoChan(complaintID, func() (any, error) {
		runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sharedEvaluationTimeout)
		defer cancel()
		return s.evaluate(runCtx, complaintID)
	})

	select {
	case res := <-ch:
		if res.Shared {
			s.logger.WithField("complaint_id", complaintID).Debug("Joined in-flight evaluation")
		}
		outcome, _ := res.Val.(Outcome)
		return outcome, res.Err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (s *WorkflowServiceImpl) evaluate(ctx context.Context, complaintID string) (Outcome, error) {
	logCtx := s.logger.WithField("complaint_id", complaintID)

	// 1. Fetch complaint
	c, err := s.complaintRepo.GetByID(ctx, complaintID)
	if err != nil {
		if errors.Is(err, idb.ErrComplaintNotFound) {
			logCtx.Warn("Complaint not found, nothing to evaluate")
			return OutcomeNotFound, nil
		}
		return "", fmt.Errorf("failed to get complaint %s: %w", complaintID, err)
	}
	if c.Status.IsTerminal() {
		logCtx.WithField("status", c.Status).Info("Complaint is closed, skipping evaluation")
		return OutcomeSkippedTerminal, nil
	}

	// 2. Department, follow-up count, features
	dept, err := s.lookupDepartment(ctx, c)
	if err != nil {
		return "", err
	}
	followups, err := s.complaintRepo.CountActions(ctx, c.ID, complaint.ActionFollowUp)
	if err != nil {
		return "", fmt.Errorf("failed to count follow-ups for complaint %s: %w", c.ID, err)
	}
	features := s.extractor.Compute(c, dept, followups, s.now())

	// 3. Predict
	action, confidence := s.model.Predict(features)
	logCtx = logCtx.WithFields(logrus.Fields{
		"action":     action,
		"confidence": fmt.Sprintf("%.3f", confidence),
	})
	logCtx.WithField("features", features).Info("Decision made")

	if dept == nil {
		logCtx.Warn("No usable department for complaint, skipping action")
		s.publish(ctx, c.ID, action, confidence, features, OutcomeSkippedNoDepartment, "")
		return OutcomeSkippedNoDepartment, nil
	}

	// 4/5. Execute
	if action == decision.ActionEscalate {
		reason := escalationReason(features)
		outcome, err := s.escalate(ctx, logCtx, c, dept, reason)
		s.publish(ctx, c.ID, action, confidence, features, outcome, reason)
		return outcome, err
	}
	outcome, err := s.followUp(ctx, logCtx, c, dept, features)
	s.publish(ctx, c.ID, action, confidence, features, outcome, "")
	return outcome, err
}

// lookupDepartment returns nil without error when the complaint has no
// department or the department is missing from the directory.
func (s *WorkflowServiceImpl) lookupDepartment(ctx context.Context, c *complaint.Complaint) (*department.Department, error) {
	if !c.AssignedDepartment.Valid || c.AssignedDepartment.String == "" {
		return nil, nil
	}
	dept, err := s.deptRepo.GetByID(ctx, c.AssignedDepartment.String)
	if err != nil {
		if errors.Is(err, idb.ErrDepartmentNotFound) {
			s.logger.WithFields(logrus.Fields{
				"complaint_id":  c.ID,
				"department_id": c.AssignedDepartment.String,
			}).Warn("Assigned department not found in directory")
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get department %s: %w", c.AssignedDepartment.String, err)
	}
	return dept, nil
}

// escalationReason follows the precedence of the escalation rule.
func escalationReason(f decision.Features) string {
	switch {
	case f.TimeSinceSLABreach > 24:
		return fmt.Sprintf("SLA breached by %d hours", int(f.TimeSinceSLABreach))
	case f.NumberOfFollowups >= 2:
		return fmt.Sprintf("%d follow-up attempts with no resolution", f.NumberOfFollowups)
	default:
		return "High priority issue requiring urgent attention"
	}
}

func (s *WorkflowServiceImpl) escalate(ctx context.Context, logCtx *logrus.Entry, c *complaint.Complaint, dept *department.Department, reason string) (Outcome, error) {
	target := dept.EscalationTarget()
	if err := s.sender.SendEscalation(ctx, target, dept.Name, c.ID, c.Category, reason); err != nil {
		logCtx.WithError(err).Error("Failed to send escalation, complaint left unchanged")
		return OutcomeNotificationFailed, nil
	}

	if err := s.complaintRepo.UpdateStatus(ctx, c.ID, complaint.StatusEscalated); err != nil {
		return OutcomeEscalated, fmt.Errorf("escalation sent but failed to update status of complaint %s: %w", c.ID, err)
	}
	entry := &complaint.Action{
		ComplaintID: c.ID,
		Type:        complaint.ActionEscalated,
		Description: fmt.Sprintf("Complaint escalated to supervisor. Reason: %s", reason),
		Metadata: map[string]any{
			"reason":           reason,
			"escalation_email": target,
		},
	}
	if err := s.complaintRepo.AppendAction(ctx, entry); err != nil {
		return OutcomeEscalated, fmt.Errorf("escalation sent but failed to log action for complaint %s: %w", c.ID, err)
	}
	logCtx.WithFields(logrus.Fields{"reason": reason, "escalation_email": target}).Info("Complaint escalated")
	return OutcomeEscalated, nil
}

func (s *WorkflowServiceImpl) followUp(ctx context.Context, logCtx *logrus.Entry, c *complaint.Complaint, dept *department.Department, f decision.Features) (Outcome, error) {
	days := int(f.DaysSinceSubmission)
	if err := s.sender.SendFollowUp(ctx, dept, c.ID, c.Category, days); err != nil {
		logCtx.WithError(err).Error("Failed to send follow-up")
		return OutcomeNotificationFailed, nil
	}

	entry := &complaint.Action{
		ComplaintID: c.ID,
		Type:        complaint.ActionFollowUp,
		Description: fmt.Sprintf("Follow-up email sent to %s (Day %d)", dept.Name, days),
		Metadata:    map[string]any{"days_pending": days},
	}
	if err := s.complaintRepo.AppendAction(ctx, entry); err != nil {
		return OutcomeFollowUpSent, fmt.Errorf("follow-up sent but failed to log action for complaint %s: %w", c.ID, err)
	}
	logCtx.WithField("days_pending", days).Info("Follow-up sent")
	return OutcomeFollowUpSent, nil
}

func (s *WorkflowServiceImpl) publish(ctx context.Context, complaintID string, action decision.Action, confidence float64, f decision.Features, outcome Outcome, reason string) {
	if s.publisher == nil {
		return
	}
	event := DecisionEvent{
		ID:          uuid.NewString(),
		ComplaintID: complaintID,
		Action:      action,
		Confidence:  confidence,
		Features:    f,
		Outcome:     outcome,
		Reason:      reason,
		DecidedAt:   s.now().UTC(),
	}
	if err := s.publisher.PublishDecision(ctx, event); err != nil {
		s.logger.WithError(err).WithField("complaint_id", complaintID).Warn("Failed to publish decision event")
	}
}
