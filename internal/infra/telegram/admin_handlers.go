package telegram

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v3"

	"civic_followup_engine/internal/app"
	"civic_followup_engine/internal/domain/complaint"
	"civic_followup_engine/internal/domain/decision"
	"civic_followup_engine/internal/domain/job"
	idb "civic_followup_engine/internal/infra/database"
)

const (
	msgUnauthorized = "Error: you are not allowed to run this command."
	maxPendingShown = 20
)

// AdminOps is the part of app.AdminService the bot talks to.
type AdminOps interface {
	Authorize(telegramID int64) error
	UpdateComplaintStatus(ctx context.Context, actor, complaintID string, status complaint.Status, notes string) (*complaint.Complaint, error)
	ExplainComplaint(ctx context.Context, complaintID string) (*app.ComplaintExplanation, error)
	ListPending(ctx context.Context) ([]*complaint.Complaint, error)
	Timeline(ctx context.Context, complaintID string) ([]*complaint.Action, error)
}

// JobLister exposes the scheduler's pending timers.
type JobLister interface {
	PendingJobs() []job.ScheduledJob
	SweepJob() job.ScheduledJob
}

// OpsCommands renders the replies of the admin commands. It knows nothing
// about telebot so the replies can be checked directly.
type OpsCommands struct {
	admin  AdminOps
	jobs   JobLister
	loc    *time.Location
	logger *logrus.Entry
}

func NewOpsCommands(admin AdminOps, jobs JobLister, loc *time.Location, logger *logrus.Entry) *OpsCommands {
	if loc == nil {
		loc = time.UTC
	}
	return &OpsCommands{admin: admin, jobs: jobs, loc: loc, logger: logger}
}

// Explain handles /explain <complaint_id>.
func (o *OpsCommands) Explain(ctx context.Context, args []string) string {
	if len(args) != 1 {
		return "Invalid command format. Use: /explain <complaint_id>"
	}
	exp, err := o.admin.ExplainComplaint(ctx, args[0])
	if err != nil {
		return o.failure("explain complaint", args[0], err)
	}

	var b strings.Builder
	b.WriteString(fmt.Sprintf("Complaint %s (%s)\n", exp.ComplaintID, exp.Status))
	b.WriteString(fmt.Sprintf("Decision: %s, confidence %.1f%%\n", exp.Explanation.Action, exp.Explanation.Confidence*100))
	b.WriteString(exp.Explanation.Text)
	b.WriteString("\n\nFeatures:\n")
	vector := exp.Features.Vector()
	for i, f := range decision.FeatureOrder {
		b.WriteString(fmt.Sprintf("  %s = %.2f\n", f, vector[i]))
	}
	b.WriteString("Importance:\n")
	for _, fi := range exp.Explanation.Importance {
		b.WriteString(fmt.Sprintf("  %s %.3f\n", fi.Feature, fi.Importance))
	}
	return strings.TrimRight(b.String(), "\n")
}

// SetStatus handles /set_status <complaint_id> <status> [notes...].
func (o *OpsCommands) SetStatus(ctx context.Context, actor string, args []string) string {
	if len(args) < 2 {
		return "Invalid command format. Use: /set_status <complaint_id> <status> [notes]"
	}
	id, status := args[0], complaint.Status(strings.ToLower(args[1]))
	notes := strings.Join(args[2:], " ")

	c, err := o.admin.UpdateComplaintStatus(ctx, actor, id, status, notes)
	if err != nil {
		return o.failure("update status", id, err)
	}
	return fmt.Sprintf("Complaint %s is now %s.", c.ID, c.Status)
}

// Pending handles /pending.
func (o *OpsCommands) Pending(ctx context.Context) string {
	complaints, err := o.admin.ListPending(ctx)
	if err != nil {
		return o.failure("list pending complaints", "", err)
	}
	if len(complaints) == 0 {
		return "No open complaints."
	}

	var b strings.Builder
	b.WriteString(fmt.Sprintf("--- Open complaints: %d ---\n", len(complaints)))
	for i, c := range complaints {
		if i == maxPendingShown {
			b.WriteString(fmt.Sprintf("... and %d more", len(complaints)-maxPendingShown))
			break
		}
		b.WriteString(fmt.Sprintf("%s [%s] %s, opened %s\n",
			c.ID, c.Status, c.Category, c.CreatedAt.In(o.loc).Format("2006-01-02 15:04")))
	}
	return strings.TrimRight(b.String(), "\n")
}

// Timeline handles /timeline <complaint_id>.
func (o *OpsCommands) Timeline(ctx context.Context, args []string) string {
	if len(args) != 1 {
		return "Invalid command format. Use: /timeline <complaint_id>"
	}
	actions, err := o.admin.Timeline(ctx, args[0])
	if err != nil {
		return o.failure("load timeline", args[0], err)
	}
	if len(actions) == 0 {
		return fmt.Sprintf("Complaint %s has no recorded actions.", args[0])
	}

	var b strings.Builder
	b.WriteString(fmt.Sprintf("--- Timeline of %s ---\n", args[0]))
	for _, a := range actions {
		b.WriteString(fmt.Sprintf("%s  %s: %s\n", a.CreatedAt.In(o.loc).Format("2006-01-02 15:04"), a.Type, a.Description))
	}
	return strings.TrimRight(b.String(), "\n")
}

// Jobs handles /jobs.
func (o *OpsCommands) Jobs() string {
	sweep := o.jobs.SweepJob()
	pending := o.jobs.PendingJobs()

	var b strings.Builder
	b.WriteString(fmt.Sprintf("Sweep %s next run: %s\n", sweep.ID, o.formatRun(sweep.RunAt)))
	if len(pending) == 0 {
		b.WriteString("No first evaluations pending.")
		return b.String()
	}
	b.WriteString(fmt.Sprintf("First evaluations pending: %d\n", len(pending)))
	for _, j := range pending {
		b.WriteString(fmt.Sprintf("%s at %s\n", j.ComplaintID, o.formatRun(j.RunAt)))
	}
	return strings.TrimRight(b.String(), "\n")
}

// ApplyStatusButton handles a press on one of the StatusButtons. args is
// [status, complaint_id].
func (o *OpsCommands) ApplyStatusButton(ctx context.Context, actor string, args []string) string {
	if len(args) != 2 {
		return "Unknown action."
	}
	status, id := complaint.Status(args[0]), args[1]
	_, err := o.admin.UpdateComplaintStatus(ctx, actor, id, status, "set from Telegram alert")
	switch {
	case err == nil:
		return fmt.Sprintf("Marked as %s.", status)
	case errors.Is(err, app.ErrStatusUnchanged):
		return fmt.Sprintf("Already %s.", status)
	case errors.Is(err, idb.ErrComplaintNotFound):
		return "Complaint not found."
	default:
		o.logger.WithError(err).WithField("complaint_id", id).Error("Failed to apply status button")
		return "An error occurred."
	}
}

func (o *OpsCommands) formatRun(t time.Time) string {
	if t.IsZero() {
		return "not scheduled"
	}
	return t.In(o.loc).Format("2006-01-02 15:04")
}

func (o *OpsCommands) failure(op, complaintID string, err error) string {
	switch {
	case errors.Is(err, idb.ErrComplaintNotFound):
		return fmt.Sprintf("Complaint %s not found.", complaintID)
	case errors.Is(err, app.ErrInvalidStatus):
		return "Unknown status. Use one of: submitted, in_progress, escalated, resolved, rejected."
	case errors.Is(err, app.ErrStatusUnchanged):
		return fmt.Sprintf("Complaint %s already has this status.", complaintID)
	}
	o.logger.WithError(err).WithField("complaint_id", complaintID).Errorf("Failed to %s", op)
	return fmt.Sprintf("An error occurred while trying to %s: %s", op, err.Error())
}

// actorName is how a Telegram user shows up in the complaint timeline.
func actorName(u *telebot.User) string {
	if u.Username != "" {
		return "@" + u.Username
	}
	return fmt.Sprintf("telegram:%d", u.ID)
}

// RegisterAdminHandlers registers the ops commands and the status button callback.
// Every handler is gated by AdminOps.Authorize.
func RegisterAdminHandlers(ctx context.Context, b *telebot.Bot, ops *OpsCommands, baseLogger *logrus.Entry) {
	guarded := func(command string, reply func(c telebot.Context) string) telebot.HandlerFunc {
		return func(c telebot.Context) error {
			handlerLogger := baseLogger.WithFields(logrus.Fields{
				"handler":   command,
				"sender_id": c.Sender().ID,
			})
			handlerLogger.Info("Command received")

			if err := ops.admin.Authorize(c.Sender().ID); err != nil {
				handlerLogger.Warn("Unauthorized access attempt")
				return c.Send(msgUnauthorized)
			}
			return c.Send(reply(c))
		}
	}

	b.Handle("/explain", guarded("/explain", func(c telebot.Context) string {
		return ops.Explain(ctx, c.Args())
	}))
	b.Handle("/set_status", guarded("/set_status", func(c telebot.Context) string {
		return ops.SetStatus(ctx, actorName(c.Sender()), c.Args())
	}))
	b.Handle("/pending", guarded("/pending", func(c telebot.Context) string {
		return ops.Pending(ctx)
	}))
	b.Handle("/timeline", guarded("/timeline", func(c telebot.Context) string {
		return ops.Timeline(ctx, c.Args())
	}))
	b.Handle("/jobs", guarded("/jobs", func(c telebot.Context) string {
		return ops.Jobs()
	}))

	b.Handle(&telebot.Btn{Unique: statusButtonUnique}, func(c telebot.Context) error {
		if err := ops.admin.Authorize(c.Sender().ID); err != nil {
			baseLogger.WithField("sender_id", c.Sender().ID).Warn("Unauthorized status button press")
			return c.Respond(&telebot.CallbackResponse{Text: msgUnauthorized})
		}
		// Callback data is "<status>|<complaint_id>".
		return c.Respond(&telebot.CallbackResponse{Text: ops.ApplyStatusButton(ctx, actorName(c.Sender()), c.Args())})
	})
}
