package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"civic_followup_engine/internal/domain/complaint"
	"civic_followup_engine/internal/domain/department"
	"civic_followup_engine/internal/domain/job"
	"civic_followup_engine/internal/domain/notification"
	idb "civic_followup_engine/internal/infra/database"
)

var ErrComplaintClosed = errors.New("complaint is already resolved or rejected")

// EvaluationScheduler is the part of the job scheduler the creation flow needs.
type EvaluationScheduler interface {
	ScheduleFirstEvaluation(complaintID string, createdAt time.Time, slaHours int) job.ScheduledJob
}

// IntakeResult reports what OnComplaintCreated did.
type IntakeResult struct {
	NotificationSent bool             `json:"notification_sent"`
	Job              job.ScheduledJob `json:"job"`
}

// IntakeService runs the engine side of complaint creation: notify the
// assigned department and schedule the first evaluation.
type IntakeService struct {
	complaintRepo complaint.Repository
	deptRepo      department.Repository
	sender        notification.Sender
	scheduler     EvaluationScheduler
	extractor     *FeatureExtractor
	logger        *logrus.Entry
}

func NewIntakeService(
	cr complaint.Repository,
	dr department.Repository,
	sender notification.Sender,
	scheduler EvaluationScheduler,
	extractor *FeatureExtractor,
	logger *logrus.Entry,
) *IntakeService {
	return &IntakeService{
		complaintRepo: cr,
		deptRepo:      dr,
		sender:        sender,
		scheduler:     scheduler,
		extractor:     extractor,
		logger:        logger.WithField("component", "intake"),
	}
}

// OnComplaintCreated is called once the complaint row exists and its
// department and SLA have been assigned. A failed notification is logged and
// does not prevent scheduling.
func (s *IntakeService) OnComplaintCreated(ctx context.Context, complaintID string) (*IntakeResult, error) {
	logCtx := s.logger.WithField("complaint_id", complaintID)

	c, err := s.complaintRepo.GetByID(ctx, complaintID)
	if err != nil {
		if errors.Is(err, idb.ErrComplaintNotFound) {
			return nil, idb.ErrComplaintNotFound
		}
		return nil, fmt.Errorf("failed to get complaint %s: %w", complaintID, err)
	}
	if c.Status.IsTerminal() {
		return nil, ErrComplaintClosed
	}

	result := &IntakeResult{}
	if c.AssignedDepartment.Valid && c.AssignedDepartment.String != "" {
		result.NotificationSent = s.notifyDepartment(ctx, logCtx, c)
	} else {
		logCtx.Warn("Complaint has no assigned department, initial notification skipped")
	}

	result.Job = s.scheduler.ScheduleFirstEvaluation(c.ID, c.CreatedAt, c.SLAHoursOr(s.extractor.DefaultSLAHours()))
	logCtx.WithFields(logrus.Fields{
		"job_id": result.Job.ID,
		"run_at": result.Job.RunAt,
	}).Info("Workflow initialized for complaint")
	return result, nil
}

func (s *IntakeService) notifyDepartment(ctx context.Context, logCtx *logrus.Entry, c *complaint.Complaint) bool {
	dept, err := s.deptRepo.GetByID(ctx, c.AssignedDepartment.String)
	if err != nil {
		if errors.Is(err, idb.ErrDepartmentNotFound) {
			logCtx.WithField("department_id", c.AssignedDepartment.String).Error("Assigned department not found")
		} else {
			logCtx.WithError(err).Error("Failed to look up department")
		}
		return false
	}

	notice := notification.ComplaintNotice{
		ComplaintID: c.ID,
		Category:    c.Category,
		Summary:     c.OfficialSummary.String,
		Location:    c.Landmark.String,
		ImageURL:    c.ImageURL.String,
	}
	if err := s.sender.SendComplaintNotification(ctx, dept, notice); err != nil {
		logCtx.WithError(err).Error("Failed to send initial notification")
		return false
	}

	entry := &complaint.Action{
		ComplaintID: c.ID,
		Type:        complaint.ActionEmailSent,
		Description: fmt.Sprintf("Initial notification sent to %s", dept.Name),
		Metadata: map[string]any{
			"department": dept.Name,
			"email":      dept.ContactEmail,
		},
	}
	if err := s.complaintRepo.AppendAction(ctx, entry); err != nil {
		logCtx.WithError(err).Error("Initial notification sent but failed to log action")
	}
	return true
}
