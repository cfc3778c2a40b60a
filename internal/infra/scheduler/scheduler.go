package scheduler

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"civic_followup_engine/internal/app" // For WorkflowService interface
	"civic_followup_engine/internal/domain/complaint"
	"civic_followup_engine/internal/domain/job"
)

const (
	firstEvaluationFraction = 0.8
	minAgeForSweep          = 24 * time.Hour
	minLeadTime             = time.Second
)

// ComplaintLister is the part of the complaint store the sweep reads.
type ComplaintLister interface {
	ListNonTerminal(ctx context.Context) ([]*complaint.Complaint, error)
}

// Config holds the immutable scheduler settings.
type Config struct {
	SweepInterval      time.Duration
	ReevaluationWindow time.Duration
	EvaluationTimeout  time.Duration
	Concurrency        int
	DefaultSLAHours    int
	Location           *time.Location
}

// SweepSummary counts what one sweep did.
type SweepSummary struct {
	Listed    int
	Due       int
	Settled   int
	Unsettled int
}

type oneShotEntry struct {
	entryID cron.EntryID
	gen     uint64
	job     job.ScheduledJob
}

// FollowUpScheduler owns every time-based trigger of the engine: one
// first-evaluation job per new complaint and the recurring sweep.
type FollowUpScheduler struct {
	cronEngine *cron.Cron
	workflow   app.WorkflowService
	complaints ComplaintLister
	cfg        Config
	logger     *logrus.Entry
	now        func() time.Time

	mu      sync.Mutex
	oneShot map[string]oneShotEntry // keyed by job id
	nextGen uint64

	evalMu        sync.Mutex
	lastEvaluated map[string]time.Time // complaint id -> last settled evaluation

	sweepJob   cron.Job
	sweepEntry cron.EntryID
	started    sync.WaitGroup
}

func NewFollowUpScheduler(workflow app.WorkflowService, complaints ComplaintLister, cfg Config, logger *logrus.Entry) *FollowUpScheduler {
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	logCtx := logger.WithField("component", "scheduler")
	cronLogger := cron.PrintfLogger(logCtx)

	return &FollowUpScheduler{
		cronEngine: cron.New(
			cron.WithLocation(cfg.Location),
			cron.WithChain(cron.Recover(cronLogger)),
		),
		workflow:      workflow,
		complaints:    complaints,
		cfg:           cfg,
		logger:        logCtx,
		now:           time.Now,
		oneShot:       make(map[string]oneShotEntry),
		lastEvaluated: make(map[string]time.Time),
	}
}

// onceSchedule fires a single time at the given instant.
type onceSchedule struct {
	at time.Time
}

func (o onceSchedule) Next(t time.Time) time.Time {
	if t.Before(o.at) {
		return o.at
	}
	return time.Time{} // never again
}

// Start registers the sweep, starts the cron engine and runs one sweep right
// away so evaluations missed while the process was down are picked up.
func (s *FollowUpScheduler) Start() {
	s.logger.WithFields(logrus.Fields{
		"sweep_interval": s.cfg.SweepInterval,
		"timezone":       s.cfg.Location.String(),
	}).Info("Starting follow-up scheduler...")

	cronLogger := cron.PrintfLogger(s.logger)
	s.sweepJob = cron.NewChain(cron.SkipIfStillRunning(cronLogger)).Then(cron.FuncJob(s.runSweep))
	s.sweepEntry = s.cronEngine.Schedule(cron.Every(s.cfg.SweepInterval), s.sweepJob)

	s.cronEngine.Start()

	s.started.Add(1)
	go func() {
		defer s.started.Done()
		s.sweepJob.Run()
	}()
	s.logger.Info("Follow-up scheduler started.")
}

func (s *FollowUpScheduler) Stop() {
	s.logger.Info("Stopping follow-up scheduler...")
	ctx := s.cronEngine.Stop() // Stops the scheduler from adding new jobs, waits for running jobs.
	<-ctx.Done()               // Wait for graceful shutdown
	s.started.Wait()
	s.logger.Info("Follow-up scheduler gracefully stopped.")
}

// ScheduleFirstEvaluation schedules the one-shot evaluation at 80% of the SLA
// budget counted from createdAt. Scheduling the same complaint again replaces
// the pending job.
func (s *FollowUpScheduler) ScheduleFirstEvaluation(complaintID string, createdAt time.Time, slaHours int) job.ScheduledJob {
	if slaHours <= 0 {
		slaHours = s.cfg.DefaultSLAHours
	}
	delay := time.Duration(float64(slaHours) * firstEvaluationFraction * float64(time.Hour))
	return s.scheduleOnce(complaintID, createdAt.Add(delay))
}

func (s *FollowUpScheduler) scheduleOnce(complaintID string, runAt time.Time) job.ScheduledJob {
	if earliest := s.now().Add(minLeadTime); runAt.Before(earliest) {
		runAt = earliest
	}
	scheduled := job.ScheduledJob{
		ID:          job.FollowUpJobID(complaintID),
		ComplaintID: complaintID,
		RunAt:       runAt.In(s.cfg.Location),
		Kind:        job.KindOneShot,
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.oneShot[scheduled.ID]; ok {
		s.cronEngine.Remove(existing.entryID)
		s.logger.WithField("job_id", scheduled.ID).Debug("Replacing pending first-evaluation job")
	}
	s.nextGen++
	gen := s.nextGen
	entryID := s.cronEngine.Schedule(onceSchedule{at: runAt}, cron.FuncJob(func() {
		s.runFirstEvaluation(scheduled.ID, complaintID, gen)
	}))
	s.oneShot[scheduled.ID] = oneShotEntry{entryID: entryID, gen: gen, job: scheduled}

	s.logger.WithFields(logrus.Fields{
		"job_id":       scheduled.ID,
		"complaint_id": complaintID,
		"run_at":       scheduled.RunAt.Format(time.RFC3339),
	}).Info("Scheduled first evaluation")
	return scheduled
}

func (s *FollowUpScheduler) runFirstEvaluation(jobID, complaintID string, gen uint64) {
	s.mu.Lock()
	current, ok := s.oneShot[jobID]
	if !ok || current.gen != gen {
		s.mu.Unlock()
		return // replaced after it was picked up for running
	}
	delete(s.oneShot, jobID)
	s.mu.Unlock()
	s.cronEngine.Remove(current.entryID)

	logCtx := s.logger.WithFields(logrus.Fields{"job_id": jobID, "complaint_id": complaintID})
	if s.settledRecently(complaintID, s.now()) {
		logCtx.Info("First-evaluation job skipped, complaint already settled by a sweep")
		return
	}
	logCtx.Info("First-evaluation job triggered")
	s.evaluate(context.Background(), complaintID)
}

// PendingJobs returns the one-shot jobs that have not fired yet, soonest first.
func (s *FollowUpScheduler) PendingJobs() []job.ScheduledJob {
	s.mu.Lock()
	jobs := make([]job.ScheduledJob, 0, len(s.oneShot))
	for _, e := range s.oneShot {
		jobs = append(jobs, e.job)
	}
	s.mu.Unlock()

	sort.Slice(jobs, func(i, j int) bool {
		if jobs[i].RunAt.Equal(jobs[j].RunAt) {
			return jobs[i].ID < jobs[j].ID
		}
		return jobs[i].RunAt.Before(jobs[j].RunAt)
	})
	return jobs
}

// SweepJob describes the recurring sweep. RunAt is zero before Start.
func (s *FollowUpScheduler) SweepJob() job.ScheduledJob {
	sj := job.ScheduledJob{ID: job.SweepID, Kind: job.KindRecurring}
	if s.sweepEntry != 0 {
		sj.RunAt = s.cronEngine.Entry(s.sweepEntry).Next
	}
	return sj
}

func (s *FollowUpScheduler) runSweep() {
	s.logger.Info("Follow-up sweep triggered.")
	summary, err := s.Sweep(context.Background())
	if err != nil {
		s.logger.WithError(err).Error("Error during follow-up sweep")
		return
	}
	s.logger.WithFields(logrus.Fields{
		"listed":    summary.Listed,
		"due":       summary.Due,
		"settled":   summary.Settled,
		"unsettled": summary.Unsettled,
	}).Info("Follow-up sweep finished.")
}

// Sweep evaluates every due non-terminal complaint, at most Concurrency at a time.
func (s *FollowUpScheduler) Sweep(ctx context.Context) (SweepSummary, error) {
	complaints, err := s.complaints.ListNonTerminal(ctx)
	if err != nil {
		return SweepSummary{}, err
	}

	summary := SweepSummary{Listed: len(complaints)}
	now := s.now()
	s.forgetClosed(complaints)
	var settled, unsettled atomic.Int64

	var g errgroup.Group
	g.SetLimit(s.cfg.Concurrency)
	for _, c := range complaints {
		if !s.isDue(c, now) {
			continue
		}
		summary.Due++
		id := c.ID
		g.Go(func() error {
			if s.evaluate(ctx, id) {
				settled.Add(1)
			} else {
				unsettled.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait() // evaluations never return errors to the group

	summary.Settled = int(settled.Load())
	summary.Unsettled = int(unsettled.Load())
	return summary, nil
}

// isDue: at least 80% of the SLA has elapsed or the complaint is a day old,
// and it has not been settled by this process within the re-evaluation window.
func (s *FollowUpScheduler) isDue(c *complaint.Complaint, now time.Time) bool {
	age := now.Sub(c.CreatedAt)
	sla := time.Duration(c.SLAHoursOr(s.cfg.DefaultSLAHours)) * time.Hour
	threshold := time.Duration(float64(sla) * firstEvaluationFraction)
	if age < threshold && age < minAgeForSweep {
		return false
	}

	return !s.settledRecently(c.ID, now)
}

// settledRecently reports whether an evaluation of the complaint settled
// within the re-evaluation window.
func (s *FollowUpScheduler) settledRecently(complaintID string, now time.Time) bool {
	s.evalMu.Lock()
	last, ok := s.lastEvaluated[complaintID]
	s.evalMu.Unlock()
	return ok && now.Sub(last) < s.cfg.ReevaluationWindow
}

// forgetClosed drops window entries of complaints that are no longer open.
func (s *FollowUpScheduler) forgetClosed(open []*complaint.Complaint) {
	ids := make(map[string]struct{}, len(open))
	for _, c := range open {
		ids[c.ID] = struct{}{}
	}
	s.evalMu.Lock()
	defer s.evalMu.Unlock()
	for id := range s.lastEvaluated {
		if _, ok := ids[id]; !ok {
			delete(s.lastEvaluated, id)
		}
	}
}

// evaluate runs one evaluation and reports whether it settled.
func (s *FollowUpScheduler) evaluate(ctx context.Context, complaintID string) bool {
	logCtx := s.logger.WithField("complaint_id", complaintID)

	if s.cfg.EvaluationTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.EvaluationTimeout)
		defer cancel()
	}

	outcome, err := s.workflow.EvaluateComplaint(ctx, complaintID)
	if err != nil {
		logCtx.WithError(err).WithField("outcome", outcome).Error("Evaluation failed")
	} else {
		logCtx.WithField("outcome", outcome).Debug("Evaluation finished")
	}

	if !outcome.Settled() {
		return false
	}
	s.evalMu.Lock()
	s.lastEvaluated[complaintID] = s.now()
	s.evalMu.Unlock()
	return true
}
