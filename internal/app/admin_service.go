package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"civic_followup_engine/internal/domain/complaint"
	"civic_followup_engine/internal/domain/decision"
	"civic_followup_engine/internal/domain/department"
	idb "civic_followup_engine/internal/infra/database"
)

// Custom application-level errors for admin service
var ErrAdminNotAuthorized = fmt.Errorf("performing user is not authorized as an admin")
var ErrInvalidStatus = fmt.Errorf("unknown complaint status")
var ErrStatusUnchanged = fmt.Errorf("complaint already has this status")

// ComplaintExplanation is the on-demand view of what the engine would do now.
type ComplaintExplanation struct {
	ComplaintID string               `json:"complaint_id"`
	Status      complaint.Status     `json:"status"`
	Features    decision.Features    `json:"features"`
	Explanation decision.Explanation `json:"explanation"`
	ComputedAt  time.Time            `json:"computed_at"`
}

type AdminService struct {
	complaintRepo   complaint.Repository
	deptRepo        department.Repository
	extractor       *FeatureExtractor
	model           DecisionModel
	adminTelegramID int64
	now             func() time.Time
}

func NewAdminService(cr complaint.Repository, dr department.Repository, extractor *FeatureExtractor, model DecisionModel, adminID int64) *AdminService {
	return &AdminService{
		complaintRepo:   cr,
		deptRepo:        dr,
		extractor:       extractor,
		model:           model,
		adminTelegramID: adminID,
		now:             time.Now,
	}
}

// Authorize checks a Telegram user against the configured admin.
func (s *AdminService) Authorize(telegramID int64) error {
	if s.adminTelegramID == 0 || telegramID != s.adminTelegramID {
		return ErrAdminNotAuthorized
	}
	return nil
}

// UpdateComplaintStatus changes the status and records a status_change entry.
func (s *AdminService) UpdateComplaintStatus(ctx context.Context, actor string, complaintID string, newStatus complaint.Status, notes string) (*complaint.Complaint, error) {
	if !newStatus.Valid() {
		return nil, ErrInvalidStatus
	}

	c, err := s.complaintRepo.GetByID(ctx, complaintID)
	if err != nil {
		if errors.Is(err, idb.ErrComplaintNotFound) {
			return nil, idb.ErrComplaintNotFound // Propagate specific error
		}
		return nil, fmt.Errorf("failed to get complaint for status update: %w", err)
	}
	oldStatus := c.Status
	if oldStatus == newStatus {
		return c, ErrStatusUnchanged
	}

	if err := s.complaintRepo.UpdateStatus(ctx, c.ID, newStatus); err != nil {
		return nil, fmt.Errorf("failed to update complaint status in repository: %w", err)
	}
	c.Status = newStatus

	description := fmt.Sprintf("Admin %s changed status from '%s' to '%s'", actor, oldStatus, newStatus)
	if notes != "" {
		description += fmt.Sprintf(". Notes: %s", notes)
	}
	entry := &complaint.Action{
		ComplaintID: c.ID,
		Type:        complaint.ActionStatusChange,
		Description: description,
		Metadata: map[string]any{
			"old_status":  string(oldStatus),
			"new_status":  string(newStatus),
			"admin":       actor,
			"admin_notes": notes,
		},
	}
	if err := s.complaintRepo.AppendAction(ctx, entry); err != nil {
		return c, fmt.Errorf("status updated but failed to log action: %w", err)
	}
	return c, nil
}

// ExplainComplaint computes the features of a complaint as of now and explains
// the action the engine would take. It never sends anything.
func (s *AdminService) ExplainComplaint(ctx context.Context, complaintID string) (*ComplaintExplanation, error) {
	c, err := s.complaintRepo.GetByID(ctx, complaintID)
	if err != nil {
		if errors.Is(err, idb.ErrComplaintNotFound) {
			return nil, idb.ErrComplaintNotFound
		}
		return nil, fmt.Errorf("failed to get complaint for explanation: %w", err)
	}

	var dept *department.Department
	if c.AssignedDepartment.Valid && c.AssignedDepartment.String != "" {
		dept, err = s.deptRepo.GetByID(ctx, c.AssignedDepartment.String)
		if err != nil && !errors.Is(err, idb.ErrDepartmentNotFound) {
			return nil, fmt.Errorf("failed to get department for explanation: %w", err)
		}
	}

	followups, err := s.complaintRepo.CountActions(ctx, c.ID, complaint.ActionFollowUp)
	if err != nil {
		return nil, fmt.Errorf("failed to count follow-ups for explanation: %w", err)
	}

	now := s.now()
	features := s.extractor.Compute(c, dept, followups, now)
	return &ComplaintExplanation{
		ComplaintID: c.ID,
		Status:      c.Status,
		Features:    features,
		Explanation: s.model.Explain(features),
		ComputedAt:  now.UTC(),
	}, nil
}

// ExplainDecision explains an arbitrary feature vector.
func (s *AdminService) ExplainDecision(f decision.Features) decision.Explanation {
	return s.model.Explain(f)
}

// ListPending returns complaints that are neither resolved nor rejected.
func (s *AdminService) ListPending(ctx context.Context) ([]*complaint.Complaint, error) {
	complaints, err := s.complaintRepo.ListNonTerminal(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending complaints: %w", err)
	}
	return complaints, nil
}

// Timeline returns the actions of a complaint, oldest first.
func (s *AdminService) Timeline(ctx context.Context, complaintID string) ([]*complaint.Action, error) {
	if _, err := s.complaintRepo.GetByID(ctx, complaintID); err != nil {
		if errors.Is(err, idb.ErrComplaintNotFound) {
			return nil, idb.ErrComplaintNotFound
		}
		return nil, fmt.Errorf("failed to get complaint for timeline: %w", err)
	}
	actions, err := s.complaintRepo.ListActions(ctx, complaintID)
	if err != nil {
		return nil, fmt.Errorf("failed to list actions: %w", err)
	}
	return actions, nil
}
