package telegram

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/telebot.v3"

	"civic_followup_engine/internal/app"
	"civic_followup_engine/internal/domain/complaint"
	"civic_followup_engine/internal/domain/decision"
	"civic_followup_engine/internal/domain/department"
	"civic_followup_engine/internal/domain/job"
	"civic_followup_engine/internal/domain/notification"
	idb "civic_followup_engine/internal/infra/database"
)

const complaintID = "0b7e3c52-8f3a-4d61-a8a4-93d1c0f2e6aa"

type sentMessage struct {
	chatID int64
	text   string
	opts   *telebot.SendOptions
}

type fakeClient struct {
	sent []sentMessage
	err  error
}

func (f *fakeClient) SendMessage(chatID int64, text string, opts *telebot.SendOptions) error {
	f.sent = append(f.sent, sentMessage{chatID, text, opts})
	return f.err
}

type fakeSender struct {
	escalations int
	followUps   int
	err         error
}

func (f *fakeSender) SendComplaintNotification(context.Context, *department.Department, notification.ComplaintNotice) error {
	return f.err
}

func (f *fakeSender) SendFollowUp(context.Context, *department.Department, string, string, int) error {
	f.followUps++
	return f.err
}

func (f *fakeSender) SendEscalation(context.Context, string, string, string, string, string) error {
	f.escalations++
	return f.err
}

func nullEntry() *logrus.Entry {
	l, _ := test.NewNullLogger()
	return logrus.NewEntry(l)
}

func TestEscalationAlerts_MirrorsAcceptedEscalation(t *testing.T) {
	inner := &fakeSender{}
	client := &fakeClient{}
	alerts := NewEscalationAlerts(inner, client, -100123, nullEntry())

	err := alerts.SendEscalation(context.Background(), "chief@roads.gov", "Roads", complaintID, "pothole", "SLA breached by 28 hours")
	require.NoError(t, err)
	assert.Equal(t, 1, inner.escalations)

	require.Len(t, client.sent, 1)
	msg := client.sent[0]
	assert.Equal(t, int64(-100123), msg.chatID)
	assert.Contains(t, msg.text, complaintID)
	assert.Contains(t, msg.text, "SLA breached by 28 hours")
	assert.Contains(t, msg.text, "chief@roads.gov")

	markup := msg.opts.ReplyMarkup
	require.NotNil(t, markup)
	require.Len(t, markup.InlineKeyboard, 2)
	assert.Equal(t, statusButtonUnique, markup.InlineKeyboard[1][0].Unique)
	assert.Equal(t, "resolved|"+complaintID, markup.InlineKeyboard[1][0].Data)
}

func TestEscalationAlerts_SkipsFailedEscalation(t *testing.T) {
	inner := &fakeSender{err: errors.New("brevo down")}
	client := &fakeClient{}
	alerts := NewEscalationAlerts(inner, client, 1, nullEntry())

	err := alerts.SendEscalation(context.Background(), "a@b.c", "Roads", complaintID, "pothole", "r")
	assert.Error(t, err)
	assert.Empty(t, client.sent)
}

func TestEscalationAlerts_TelegramFailureIsNotFatal(t *testing.T) {
	logger, hook := test.NewNullLogger()
	alerts := NewEscalationAlerts(&fakeSender{}, &fakeClient{err: errors.New("chat not found")}, 1, logrus.NewEntry(logger))

	err := alerts.SendEscalation(context.Background(), "a@b.c", "Roads", complaintID, "pothole", "r")
	assert.NoError(t, err)
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, logrus.ErrorLevel, hook.LastEntry().Level)
}

func TestEscalationAlerts_PassesFollowUpsThrough(t *testing.T) {
	inner := &fakeSender{}
	client := &fakeClient{}
	alerts := NewEscalationAlerts(inner, client, 1, nullEntry())

	require.NoError(t, alerts.SendFollowUp(context.Background(), &department.Department{Name: "Roads"}, complaintID, "pothole", 3))
	assert.Equal(t, 1, inner.followUps)
	assert.Empty(t, client.sent)
}

type fakeAdmin struct {
	updates []complaint.Status
	current complaint.Status
}

func (f *fakeAdmin) Authorize(id int64) error {
	if id != 42 {
		return app.ErrAdminNotAuthorized
	}
	return nil
}

func (f *fakeAdmin) UpdateComplaintStatus(_ context.Context, _ string, id string, status complaint.Status, _ string) (*complaint.Complaint, error) {
	if !status.Valid() {
		return nil, app.ErrInvalidStatus
	}
	if id != complaintID {
		return nil, idb.ErrComplaintNotFound
	}
	if status == f.current {
		return nil, app.ErrStatusUnchanged
	}
	f.updates = append(f.updates, status)
	f.current = status
	return &complaint.Complaint{ID: id, Status: status}, nil
}

func (f *fakeAdmin) ExplainComplaint(_ context.Context, id string) (*app.ComplaintExplanation, error) {
	if id != complaintID {
		return nil, idb.ErrComplaintNotFound
	}
	return &app.ComplaintExplanation{
		ComplaintID: id,
		Status:      complaint.StatusSubmitted,
		Features:    decision.Features{TimeSinceSLABreach: 28, CategoryPriority: 5, DaysSinceSubmission: 1.6, StatusScore: 1},
		Explanation: decision.Explanation{
			Action:     decision.ActionEscalate,
			Confidence: 0.885,
			TopFeature: decision.FeatureTimeSinceSLABreach,
			Importance: []decision.FeatureImportance{{Feature: decision.FeatureTimeSinceSLABreach, Importance: 2.1}},
			Text:       "Escalation recommended.",
		},
	}, nil
}

func (f *fakeAdmin) ListPending(context.Context) ([]*complaint.Complaint, error) {
	out := make([]*complaint.Complaint, 25)
	for i := range out {
		out[i] = &complaint.Complaint{ID: complaintID, Status: complaint.StatusSubmitted, Category: "water", CreatedAt: time.Date(2026, 10, 1, 4, 30, 0, 0, time.UTC)}
	}
	return out, nil
}

func (f *fakeAdmin) Timeline(_ context.Context, id string) ([]*complaint.Action, error) {
	if id != complaintID {
		return nil, idb.ErrComplaintNotFound
	}
	return []*complaint.Action{{Type: complaint.ActionFollowUp, Description: "Follow-up email sent to Roads (Day 3)", CreatedAt: time.Date(2026, 10, 4, 0, 0, 0, 0, time.UTC)}}, nil
}

type fakeJobs struct{ pending []job.ScheduledJob }

func (f fakeJobs) PendingJobs() []job.ScheduledJob { return f.pending }

func (f fakeJobs) SweepJob() job.ScheduledJob {
	return job.ScheduledJob{ID: job.SweepID, Kind: job.KindRecurring, RunAt: time.Date(2026, 10, 15, 10, 0, 0, 0, time.UTC)}
}

func newOps(admin *fakeAdmin, jobs fakeJobs) *OpsCommands {
	return NewOpsCommands(admin, jobs, time.UTC, nullEntry())
}

func TestOpsCommands_Explain(t *testing.T) {
	ops := newOps(&fakeAdmin{}, fakeJobs{})

	reply := ops.Explain(context.Background(), []string{complaintID})
	assert.Contains(t, reply, "Decision: escalate, confidence 88.5%")
	assert.Contains(t, reply, "time_since_sla_breach = 28.00")
	assert.Contains(t, reply, "Escalation recommended.")

	assert.Equal(t, "Complaint nope not found.", ops.Explain(context.Background(), []string{"nope"}))
	assert.Contains(t, ops.Explain(context.Background(), nil), "Use: /explain")
}

func TestOpsCommands_SetStatus(t *testing.T) {
	admin := &fakeAdmin{current: complaint.StatusSubmitted}
	ops := newOps(admin, fakeJobs{})
	ctx := context.Background()

	assert.Equal(t, "Complaint "+complaintID+" is now resolved.", ops.SetStatus(ctx, "@ops", []string{complaintID, "RESOLVED", "pothole", "filled"}))
	assert.Contains(t, ops.SetStatus(ctx, "@ops", []string{complaintID, "resolved"}), "already has this status")
	assert.Contains(t, ops.SetStatus(ctx, "@ops", []string{complaintID, "closed"}), "Unknown status")
	assert.Contains(t, ops.SetStatus(ctx, "@ops", []string{complaintID}), "Use: /set_status")
	assert.Equal(t, []complaint.Status{complaint.StatusResolved}, admin.updates)
}

func TestOpsCommands_PendingIsCapped(t *testing.T) {
	ops := newOps(&fakeAdmin{}, fakeJobs{})

	reply := ops.Pending(context.Background())
	assert.Contains(t, reply, "Open complaints: 25")
	assert.Contains(t, reply, "... and 5 more")
	assert.Contains(t, reply, "opened 2026-10-01 04:30")
}

func TestOpsCommands_TimelineAndJobs(t *testing.T) {
	ops := newOps(&fakeAdmin{}, fakeJobs{pending: []job.ScheduledJob{{
		ID: job.FollowUpJobID(complaintID), ComplaintID: complaintID, Kind: job.KindOneShot,
		RunAt: time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC),
	}}})

	assert.Contains(t, ops.Timeline(context.Background(), []string{complaintID}), "follow_up: Follow-up email sent to Roads (Day 3)")

	jobs := ops.Jobs()
	assert.Contains(t, jobs, "Sweep followup_sweep next run: 2026-10-15 10:00")
	assert.Contains(t, jobs, complaintID+" at 2026-10-17 12:00")

	empty := newOps(&fakeAdmin{}, fakeJobs{}).Jobs()
	assert.Contains(t, empty, "No first evaluations pending.")
}

func TestOpsCommands_ApplyStatusButton(t *testing.T) {
	admin := &fakeAdmin{current: complaint.StatusEscalated}
	ops := newOps(admin, fakeJobs{})
	ctx := context.Background()

	assert.Equal(t, "Marked as resolved.", ops.ApplyStatusButton(ctx, "@ops", []string{"resolved", complaintID}))
	assert.Equal(t, "Already resolved.", ops.ApplyStatusButton(ctx, "@ops", []string{"resolved", complaintID}))
	assert.Equal(t, "Complaint not found.", ops.ApplyStatusButton(ctx, "@ops", []string{"rejected", "missing"}))
	assert.Equal(t, "Unknown action.", ops.ApplyStatusButton(ctx, "@ops", []string{"resolved"}))
}

func TestStartAndHelpText(t *testing.T) {
	assert.Contains(t, startText(true, "Asha"), "Hello, Asha!")
	assert.Contains(t, startText(false, "Asha"), "Ask an administrator")
	assert.Contains(t, helpText(true), "/set_status")
	assert.Equal(t, "No commands are available to you.", helpText(false))
}

func TestActorName(t *testing.T) {
	assert.Equal(t, "@ops_lead", actorName(&telebot.User{ID: 7, Username: "ops_lead"}))
	assert.Equal(t, "telegram:7", actorName(&telebot.User{ID: 7}))
}
