package app

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"

	"civic_followup_engine/internal/classifier"
	"civic_followup_engine/internal/domain/complaint"
	"civic_followup_engine/internal/domain/department"
	"civic_followup_engine/internal/domain/job"
	"civic_followup_engine/internal/domain/notification"
	idb "civic_followup_engine/internal/infra/database"
)

var (
	modelOnce sync.Once
	model     *classifier.Classifier
	modelErr  error
)

func trainedClassifier(t *testing.T) *classifier.Classifier {
	t.Helper()
	modelOnce.Do(func() {
		var m *classifier.Model
		m, modelErr = classifier.Train(classifier.DefaultTrainingConfig())
		if modelErr == nil {
			model, modelErr = classifier.New(m)
		}
	})
	require.NoError(t, modelErr)
	return model
}

func nullLogger() *logrus.Entry {
	l, _ := test.NewNullLogger()
	return logrus.NewEntry(l)
}

type memComplaints struct {
	mu         sync.Mutex
	complaints map[string]*complaint.Complaint
	actions    []*complaint.Action
	getErr     error
	appendErr  error
}

func newMemComplaints(cs ...*complaint.Complaint) *memComplaints {
	m := &memComplaints{complaints: map[string]*complaint.Complaint{}}
	for _, c := range cs {
		m.complaints[c.ID] = c
	}
	return m
}

func (m *memComplaints) GetByID(_ context.Context, id string) (*complaint.Complaint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	c, ok := m.complaints[id]
	if !ok {
		return nil, idb.ErrComplaintNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *memComplaints) UpdateStatus(_ context.Context, id string, status complaint.Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.complaints[id]
	if !ok {
		return idb.ErrComplaintNotFound
	}
	c.Status = status
	return nil
}

func (m *memComplaints) ListNonTerminal(context.Context) ([]*complaint.Complaint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*complaint.Complaint
	for _, c := range m.complaints {
		if !c.Status.IsTerminal() {
			cp := *c
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memComplaints) AppendAction(_ context.Context, a *complaint.Action) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.appendErr != nil {
		return m.appendErr
	}
	a.ID = int64(len(m.actions) + 1)
	m.actions = append(m.actions, a)
	return nil
}

func (m *memComplaints) CountActions(_ context.Context, id string, t complaint.ActionType) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, a := range m.actions {
		if a.ComplaintID == id && a.Type == t {
			n++
		}
	}
	return n, nil
}

func (m *memComplaints) ListActions(_ context.Context, id string) ([]*complaint.Action, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*complaint.Action
	for _, a := range m.actions {
		if a.ComplaintID == id {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *memComplaints) actionsOf(t complaint.ActionType) []*complaint.Action {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*complaint.Action
	for _, a := range m.actions {
		if a.Type == t {
			out = append(out, a)
		}
	}
	return out
}

func (m *memComplaints) status(id string) complaint.Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.complaints[id].Status
}

type memDepartments map[string]*department.Department

func (m memDepartments) GetByID(_ context.Context, id string) (*department.Department, error) {
	d, ok := m[id]
	if !ok {
		return nil, idb.ErrDepartmentNotFound
	}
	return d, nil
}

func (m memDepartments) ListAll(context.Context) ([]*department.Department, error) {
	out := make([]*department.Department, 0, len(m))
	for _, d := range m {
		out = append(out, d)
	}
	return out, nil
}

type sentEscalation struct {
	target, deptName, complaintID, reason string
}

type recordingSender struct {
	mu          sync.Mutex
	notices     []notification.ComplaintNotice
	followUps   []int
	escalations []sentEscalation
	err         error
	block       chan struct{}
	entered     chan struct{}
	ctxErrs     []error
}

func (s *recordingSender) SendComplaintNotification(_ context.Context, _ *department.Department, n notification.ComplaintNotice) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.notices = append(s.notices, n)
	return nil
}

func (s *recordingSender) SendFollowUp(ctx context.Context, _ *department.Department, _, _ string, days int) error {
	if s.entered != nil {
		s.entered <- struct{}{}
	}
	if s.block != nil {
		<-s.block
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ctxErrs = append(s.ctxErrs, ctx.Err())
	if s.err != nil {
		return s.err
	}
	s.followUps = append(s.followUps, days)
	return nil
}

func (s *recordingSender) SendEscalation(_ context.Context, target, deptName, id, _, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.escalations = append(s.escalations, sentEscalation{target, deptName, id, reason})
	return nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []DecisionEvent
	err    error
}

func (p *recordingPublisher) PublishDecision(_ context.Context, e DecisionEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return p.err
}

type recordingScheduler struct {
	calls   map[string]int
	created map[string]time.Time
}

func (s *recordingScheduler) ScheduleFirstEvaluation(id string, createdAt time.Time, slaHours int) job.ScheduledJob {
	if s.calls == nil {
		s.calls = map[string]int{}
		s.created = map[string]time.Time{}
	}
	s.calls[id] = slaHours
	s.created[id] = createdAt
	return job.ScheduledJob{ID: job.FollowUpJobID(id), ComplaintID: id, Kind: job.KindOneShot}
}

var errStore = errors.New("connection reset")

func roads() *department.Department {
	return &department.Department{
		ID:              "dept-roads",
		Name:            "Roads",
		ContactEmail:    "roads@city.gov",
		EscalationEmail: sql.NullString{String: "chief.roads@city.gov", Valid: true},
		PriorityLevel:   5,
	}
}

func newComplaint(id string, createdAt time.Time, slaHours int64, deptID string) *complaint.Complaint {
	c := &complaint.Complaint{
		ID:              id,
		Status:          complaint.StatusSubmitted,
		Category:        "pothole",
		OfficialSummary: sql.NullString{String: "Deep pothole near the market", Valid: true},
		Landmark:        sql.NullString{String: "MG Road", Valid: true},
		CreatedAt:       createdAt,
		UpdatedAt:       createdAt,
	}
	if slaHours > 0 {
		c.SLAHours = sql.NullInt64{Int64: slaHours, Valid: true}
	}
	if deptID != "" {
		c.AssignedDepartment = sql.NullString{String: deptID, Valid: true}
	}
	return c
}
