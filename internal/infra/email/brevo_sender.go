// Package email delivers department notifications through the Brevo
// transactional email API.
package email

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"strings"
	"time"

	brevo "github.com/getbrevo/brevo-go/lib"
	"github.com/sirupsen/logrus"

	"civic_followup_engine/internal/domain/department"
	"civic_followup_engine/internal/domain/notification"
)

//go:embed templates/*.html
var templateFS embed.FS

var templates = template.Must(template.ParseFS(templateFS, "templates/*.html"))

const (
	tagPrefix           = "civicagent"
	tagNotification     = "complaint_notification"
	tagFollowUp         = "follow_up"
	tagEscalation       = "escalation"
	defaultBrevoBaseURL = "https://api.brevo.com/v3"
)

// Config configures the Brevo sender.
type Config struct {
	APIKey           string
	SenderEmail      string
	SenderName       string
	BaseURL          string
	DashboardBaseURL string
}

// BrevoSender implements notification.Sender.
type BrevoSender struct {
	cfg    Config
	client *brevo.APIClient
	logger *logrus.Entry
}

var _ notification.Sender = (*BrevoSender)(nil)

func NewBrevoSender(cfg Config, logger *logrus.Entry) *BrevoSender {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBrevoBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	cfg.DashboardBaseURL = strings.TrimRight(cfg.DashboardBaseURL, "/")

	apiCfg := brevo.NewConfiguration()
	apiCfg.BasePath = cfg.BaseURL
	apiCfg.HTTPClient = &http.Client{Timeout: 15 * time.Second}
	apiCfg.AddDefaultHeader("api-key", cfg.APIKey)

	return &BrevoSender{
		cfg:    cfg,
		client: brevo.NewAPIClient(apiCfg),
		logger: logger.WithField("component", "brevo"),
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func (s *BrevoSender) dashboardURL(complaintID string) string {
	return fmt.Sprintf("%s/admin-complaints/%s", s.cfg.DashboardBaseURL, complaintID)
}

func (s *BrevoSender) SendComplaintNotification(ctx context.Context, dept *department.Department, notice notification.ComplaintNotice) error {
	body, err := render("complaint_notification.html", map[string]any{
		"DepartmentName": dept.Name,
		"ComplaintID":    notice.ComplaintID,
		"Category":       notice.Category,
		"Location":       notice.Location,
		"Summary":        notice.Summary,
		"ImageURL":       notice.ImageURL,
		"DashboardURL":   s.dashboardURL(notice.ComplaintID),
	})
	if err != nil {
		return err
	}
	subject := fmt.Sprintf("[CivicAgent] New %s Complaint - %s", notice.Category, shortID(notice.ComplaintID))
	return s.send(ctx, brevo.SendSmtpEmailTo{Email: dept.ContactEmail, Name: dept.Name}, subject, body, tagNotification, notice.ComplaintID)
}

func (s *BrevoSender) SendFollowUp(ctx context.Context, dept *department.Department, complaintID, category string, daysPending int) error {
	body, err := render("follow_up.html", map[string]any{
		"DepartmentName": dept.Name,
		"ComplaintID":    complaintID,
		"Category":       category,
		"DaysPending":    daysPending,
		"DashboardURL":   s.dashboardURL(complaintID),
	})
	if err != nil {
		return err
	}
	subject := fmt.Sprintf("[CivicAgent] Follow-up Required - %s (%d days pending)", shortID(complaintID), daysPending)
	return s.send(ctx, brevo.SendSmtpEmailTo{Email: dept.ContactEmail, Name: dept.Name}, subject, body, tagFollowUp, complaintID)
}

func (s *BrevoSender) SendEscalation(ctx context.Context, targetEmail, departmentName, complaintID, category, reason string) error {
	body, err := render("escalation.html", map[string]any{
		"DepartmentName": departmentName,
		"ComplaintID":    complaintID,
		"Category":       category,
		"Reason":         reason,
		"DashboardURL":   s.dashboardURL(complaintID),
	})
	if err != nil {
		return err
	}
	subject := fmt.Sprintf("[CivicAgent] ESCALATED - %s - %s", shortID(complaintID), category)
	return s.send(ctx, brevo.SendSmtpEmailTo{Email: targetEmail}, subject, body, tagEscalation, complaintID)
}

func render(name string, data map[string]any) (string, error) {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("render %s: %w", name, err)
	}
	return buf.String(), nil
}

func (s *BrevoSender) send(ctx context.Context, to brevo.SendSmtpEmailTo, subject, html, tag, complaintID string) error {
	if to.Email == "" {
		return fmt.Errorf("no recipient address for complaint %s", complaintID)
	}
	msg := brevo.SendSmtpEmail{
		Sender:      &brevo.SendSmtpEmailSender{Email: s.cfg.SenderEmail, Name: s.cfg.SenderName},
		To:          []brevo.SendSmtpEmailTo{to},
		Subject:     subject,
		HtmlContent: html,
		Tags:        []string{tagPrefix, tag},
	}

	created, _, err := s.client.TransactionalEmailsApi.SendTransacEmail(ctx, msg)
	if err != nil {
		var apiErr brevo.GenericSwaggerError
		if errors.As(err, &apiErr) {
			return fmt.Errorf("brevo returned %s: %s", apiErr.Error(), strings.TrimSpace(string(apiErr.Body())))
		}
		return fmt.Errorf("brevo request failed: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"recipient":    to.Email,
		"tag":          tag,
		"complaint_id": complaintID,
		"message_id":   created.MessageId,
	}).Info("Email sent")
	return nil
}
