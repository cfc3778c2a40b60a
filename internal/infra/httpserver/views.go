package httpserver

import (
	"time"

	"civic_followup_engine/internal/domain/complaint"
)

type complaintView struct {
	ID                 string           `json:"id"`
	Status             complaint.Status `json:"status"`
	Category           string           `json:"category"`
	OfficialSummary    *string          `json:"official_summary,omitempty"`
	Landmark           *string          `json:"landmark,omitempty"`
	AssignedDepartment *string          `json:"assigned_department,omitempty"`
	SLAHours           *int64           `json:"sla_hours,omitempty"`
	CreatedAt          time.Time        `json:"created_at"`
	UpdatedAt          time.Time        `json:"updated_at"`
}

func newComplaintView(c *complaint.Complaint) complaintView {
	v := complaintView{
		ID:        c.ID,
		Status:    c.Status,
		Category:  c.Category,
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
	}
	if c.OfficialSummary.Valid {
		v.OfficialSummary = &c.OfficialSummary.String
	}
	if c.Landmark.Valid {
		v.Landmark = &c.Landmark.String
	}
	if c.AssignedDepartment.Valid {
		v.AssignedDepartment = &c.AssignedDepartment.String
	}
	if c.SLAHours.Valid {
		v.SLAHours = &c.SLAHours.Int64
	}
	return v
}

type actionView struct {
	ID          int64                `json:"id"`
	Type        complaint.ActionType `json:"action_type"`
	Description string               `json:"description"`
	Metadata    map[string]any       `json:"metadata,omitempty"`
	CreatedAt   time.Time            `json:"created_at"`
}

func newActionView(a *complaint.Action) actionView {
	return actionView{
		ID:          a.ID,
		Type:        a.Type,
		Description: a.Description,
		Metadata:    a.Metadata,
		CreatedAt:   a.CreatedAt,
	}
}
