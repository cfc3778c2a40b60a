package httpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"civic_followup_engine/internal/app"
	"civic_followup_engine/internal/domain/complaint"
	"civic_followup_engine/internal/domain/decision"
	"civic_followup_engine/internal/domain/job"
	idb "civic_followup_engine/internal/infra/database"
)

const knownID = "6f1c2a9e-3b7d-4c5e-9a1f-2d3e4f5a6b7c"

type fakeIntake struct{}

func (fakeIntake) OnComplaintCreated(_ context.Context, id string) (*app.IntakeResult, error) {
	if id != knownID {
		return nil, idb.ErrComplaintNotFound
	}
	return &app.IntakeResult{
		NotificationSent: true,
		Job:              job.ScheduledJob{ID: job.FollowUpJobID(id), ComplaintID: id, Kind: job.KindOneShot},
	}, nil
}

type fakeAdmin struct {
	lastActor  string
	lastStatus complaint.Status
}

func (f *fakeAdmin) UpdateComplaintStatus(_ context.Context, actor, id string, status complaint.Status, _ string) (*complaint.Complaint, error) {
	if !status.Valid() {
		return nil, app.ErrInvalidStatus
	}
	if id != knownID {
		return nil, idb.ErrComplaintNotFound
	}
	f.lastActor, f.lastStatus = actor, status
	return &complaint.Complaint{ID: id, Status: status, Category: "pothole"}, nil
}

func (f *fakeAdmin) ExplainComplaint(_ context.Context, id string) (*app.ComplaintExplanation, error) {
	if id != knownID {
		return nil, idb.ErrComplaintNotFound
	}
	return &app.ComplaintExplanation{
		ComplaintID: id,
		Status:      complaint.StatusSubmitted,
		Explanation: decision.Explanation{Action: decision.ActionFollowUp, Confidence: 0.97, TopFeature: decision.FeatureTimeSinceSLABreach},
	}, nil
}

func (f *fakeAdmin) ExplainDecision(feat decision.Features) decision.Explanation {
	action := decision.ActionFollowUp
	if feat.EscalationRuleMet() {
		action = decision.ActionEscalate
	}
	return decision.Explanation{Action: action, Confidence: 0.9}
}

func (f *fakeAdmin) ListPending(context.Context) ([]*complaint.Complaint, error) {
	return []*complaint.Complaint{{ID: knownID, Status: complaint.StatusInProgress, Category: "water"}}, nil
}

func (f *fakeAdmin) Timeline(_ context.Context, id string) ([]*complaint.Action, error) {
	if id != knownID {
		return nil, idb.ErrComplaintNotFound
	}
	return []*complaint.Action{
		{ID: 1, ComplaintID: id, Type: complaint.ActionEmailSent, Description: "Initial notification sent to Roads"},
	}, nil
}

type fakeWorkflow struct{}

func (fakeWorkflow) EvaluateComplaint(_ context.Context, id string) (app.Outcome, error) {
	if id != knownID {
		return app.OutcomeNotFound, nil
	}
	return app.OutcomeEscalated, nil
}

type fakeJobs struct{}

func (fakeJobs) PendingJobs() []job.ScheduledJob {
	return []job.ScheduledJob{{ID: job.FollowUpJobID(knownID), ComplaintID: knownID, Kind: job.KindOneShot, RunAt: time.Unix(0, 0).UTC()}}
}

func (fakeJobs) SweepJob() job.ScheduledJob {
	return job.ScheduledJob{ID: job.SweepID, Kind: job.KindRecurring}
}

func newTestServer() (*httptest.Server, *fakeAdmin) {
	logger, _ := test.NewNullLogger()
	admin := &fakeAdmin{}
	srv := New(fakeIntake{}, admin, fakeWorkflow{}, fakeJobs{}, logrus.NewEntry(logger))
	return httptest.NewServer(srv.Router()), admin
}

func doJSON(t *testing.T, method, url, body string) (*http.Response, map[string]interface{}) {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var decoded map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	return resp, decoded
}

func TestHealthz(t *testing.T) {
	ts, _ := newTestServer()
	defer ts.Close()

	resp, body := doJSON(t, http.MethodGet, ts.URL+"/healthz", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])
}

func TestIntake(t *testing.T) {
	ts, _ := newTestServer()
	defer ts.Close()

	resp, body := doJSON(t, http.MethodPost, ts.URL+"/complaints/"+knownID+"/intake", "")
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Equal(t, true, body["notification_sent"])
	assert.Equal(t, "complaint_"+knownID+"_followup", body["job"].(map[string]interface{})["id"])

	resp, _ = doJSON(t, http.MethodPost, ts.URL+"/complaints/not-a-uuid/intake", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = doJSON(t, http.MethodPost, ts.URL+"/complaints/00000000-0000-0000-0000-000000000000/intake", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestEvaluate(t *testing.T) {
	ts, _ := newTestServer()
	defer ts.Close()

	resp, body := doJSON(t, http.MethodPost, ts.URL+"/complaints/"+knownID+"/evaluate", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "escalated", body["outcome"])

	resp, body = doJSON(t, http.MethodPost, ts.URL+"/complaints/00000000-0000-0000-0000-000000000000/evaluate", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "not_found", body["outcome"])
}

func TestExplanation(t *testing.T) {
	ts, _ := newTestServer()
	defer ts.Close()

	resp, body := doJSON(t, http.MethodGet, ts.URL+"/complaints/"+knownID+"/explanation", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	exp := body["explanation"].(map[string]interface{})
	assert.Equal(t, "follow_up", exp["action"])
	assert.Equal(t, "time_since_sla_breach", exp["top_feature"])
}

func TestStatusUpdate(t *testing.T) {
	ts, admin := newTestServer()
	defer ts.Close()

	resp, body := doJSON(t, http.MethodPut, ts.URL+"/complaints/"+knownID+"/status",
		`{"status":"resolved","admin_notes":"fixed","actor":"ops@city.gov"}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "resolved", body["status"])
	assert.Equal(t, "ops@city.gov", admin.lastActor)

	resp, _ = doJSON(t, http.MethodPut, ts.URL+"/complaints/"+knownID+"/status", `{"status":"closed"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = doJSON(t, http.MethodPut, ts.URL+"/complaints/"+knownID+"/status", `{"state":"resolved"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestTimelineAndPending(t *testing.T) {
	ts, _ := newTestServer()
	defer ts.Close()

	resp, body := doJSON(t, http.MethodGet, ts.URL+"/complaints/"+knownID+"/timeline", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	actions := body["actions"].([]interface{})
	require.Len(t, actions, 1)
	assert.Equal(t, "email_sent", actions[0].(map[string]interface{})["action_type"])

	resp, body = doJSON(t, http.MethodGet, ts.URL+"/complaints/pending", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, body["complaints"], 1)
}

func TestExplainDecision(t *testing.T) {
	ts, _ := newTestServer()
	defer ts.Close()

	payload := fmt.Sprintf(`{"time_since_sla_breach":%v,"category_priority":5,"number_of_followups":0,"days_since_submission":1.6,"status_score":1}`, 28.0)
	resp, body := doJSON(t, http.MethodPost, ts.URL+"/decisions/explain", payload)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "escalate", body["action"])

	resp, _ = doJSON(t, http.MethodPost, ts.URL+"/decisions/explain", `{"number_of_followups":-1}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestJobs(t *testing.T) {
	ts, _ := newTestServer()
	defer ts.Close()

	resp, body := doJSON(t, http.MethodGet, ts.URL+"/scheduler/jobs", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, job.SweepID, body["sweep"].(map[string]interface{})["id"])
	assert.Len(t, body["pending"], 1)
}
