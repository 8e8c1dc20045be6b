package scheduler

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/wonny/quantsnap/pkg/logger"
)

// Scheduler triggers jobs on cron expressions in a fixed timezone.
// A job never overlaps itself: a trigger that arrives while the previous
// run is still going is recorded as skipped.
// ⭐ SSOT: 스케줄 관리는 이 스케줄러에서만
type Scheduler struct {
	cron     *cron.Cron
	location *time.Location
	logger   *logger.Logger

	mu      sync.RWMutex
	jobs    map[string]*entry
	history map[string]*JobHistory

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type entry struct {
	job     Job
	id      cron.EntryID
	running atomic.Bool
}

// New creates a scheduler evaluating cron expressions in loc (nil → UTC)
func New(loc *time.Location, log *logger.Logger) *Scheduler {
	if loc == nil {
		loc = time.UTC
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron:     cron.New(cron.WithLocation(loc)),
		location: loc,
		logger:   log.WithField("module", "scheduler"),
		jobs:     make(map[string]*entry),
		history:  make(map[string]*JobHistory),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// AddJob adds a job to the scheduler
func (s *Scheduler) AddJob(job Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	name := job.Name()
	if _, exists := s.jobs[name]; exists {
		return fmt.Errorf("job %s already exists", name)
	}

	e := &entry{job: job}
	id, err := s.cron.AddFunc(job.Schedule(), func() {
		_, _ = s.trigger(s.ctx, e)
	})
	if err != nil {
		return fmt.Errorf("failed to schedule job %s: %w", name, err)
	}
	e.id = id

	s.jobs[name] = e
	s.history[name] = &JobHistory{}

	s.logger.WithFields(map[string]interface{}{
		"job":      name,
		"schedule": job.Schedule(),
		"timezone": s.location.String(),
	}).Info("Job added to scheduler")

	return nil
}

// Start starts the scheduler
func (s *Scheduler) Start() {
	s.logger.Info("Starting scheduler")
	s.cron.Start()

	for name, next := range s.NextRuns() {
		s.logger.WithFields(map[string]interface{}{
			"job":      name,
			"next_run": next.Format(time.RFC3339),
		}).Info("Next run scheduled")
	}
}

// Stop stops triggering, cancels running jobs and waits for them
func (s *Scheduler) Stop() {
	s.logger.Info("Stopping scheduler")
	s.cancel()
	<-s.cron.Stop().Done()
	s.wg.Wait()
	s.logger.Info("Scheduler stopped")
}

// RunJob runs a job immediately in the background
func (s *Scheduler) RunJob(name string) error {
	e, err := s.lookup(name)
	if err != nil {
		return err
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		_, _ = s.trigger(s.ctx, e)
	}()
	return nil
}

// Trigger runs a job now and waits for it
func (s *Scheduler) Trigger(ctx context.Context, name string) (JobResult, error) {
	e, err := s.lookup(name)
	if err != nil {
		return JobResult{}, err
	}
	return s.trigger(ctx, e)
}

func (s *Scheduler) lookup(name string) (*entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, exists := s.jobs[name]
	if !exists {
		return nil, fmt.Errorf("job %s not found", name)
	}
	return e, nil
}

// trigger executes one run unless one is already in flight
func (s *Scheduler) trigger(ctx context.Context, e *entry) (JobResult, error) {
	name := e.job.Name()
	start := time.Now()

	if !e.running.CompareAndSwap(false, true) {
		result := JobResult{JobName: name, StartTime: start, EndTime: start, Skipped: true}
		s.record(result)
		s.logger.WithField("job", name).Warn("Previous run still in progress, trigger skipped")
		return result, nil
	}
	defer e.running.Store(false)

	s.logger.WithField("job", name).Info("Job started")

	err := e.job.Run(ctx)

	end := time.Now()
	result := JobResult{
		JobName:   name,
		StartTime: start,
		EndTime:   end,
		Duration:  end.Sub(start),
		Success:   err == nil,
	}
	if err != nil {
		result.Error = err.Error()
	}
	s.record(result)

	if err != nil {
		s.logger.WithFields(map[string]interface{}{
			"job":      name,
			"duration": result.Duration.String(),
			"error":    err.Error(),
		}).Error("Job failed")
	} else {
		s.logger.WithFields(map[string]interface{}{
			"job":      name,
			"duration": result.Duration.String(),
		}).Info("Job completed successfully")
	}

	return result, err
}

func (s *Scheduler) record(result JobResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if history, exists := s.history[result.JobName]; exists {
		history.AddResult(result)
	}
}

// NextRuns returns the next fire time of every job
func (s *Scheduler) NextRuns() map[string]time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]time.Time, len(s.jobs))
	for name, e := range s.jobs {
		out[name] = s.cron.Entry(e.id).Next
	}
	return out
}

// GetJobHistory returns a copy of the history for a job
func (s *Scheduler) GetJobHistory(name string) (*JobHistory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	history, exists := s.history[name]
	if !exists {
		return nil, fmt.Errorf("job %s not found", name)
	}
	return &JobHistory{Results: history.GetLatestResults(len(history.Results))}, nil
}

// GetAllJobs returns registered job names, sorted
func (s *Scheduler) GetAllJobs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.jobs))
	for name := range s.jobs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// GetJobStats returns statistics for all jobs
func (s *Scheduler) GetJobStats() map[string]JobStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := make(map[string]JobStats, len(s.jobs))
	for name, e := range s.jobs {
		history := s.history[name]
		success, failed, skipped := history.counts()

		st := JobStats{
			JobName:      name,
			Schedule:     e.job.Schedule(),
			TotalRuns:    success + failed,
			SuccessCount: success,
			FailureCount: failed,
			SkippedCount: skipped,
			SuccessRate:  history.GetSuccessRate(),
			Running:      e.running.Load(),
		}

		for i := range history.Results {
			r := history.Results[i]
			if r.Skipped {
				continue
			}
			st.LastRun = &r.StartTime
			if r.Success {
				st.LastSuccess = &r.StartTime
			} else {
				st.LastFailure = &r.StartTime
			}
		}

		if next := s.cron.Entry(e.id).Next; !next.IsZero() {
			st.NextRun = &next
		}
		stats[name] = st
	}

	return stats
}

// JobStats represents statistics for a job
type JobStats struct {
	JobName      string     `json:"job_name"`
	Schedule     string     `json:"schedule"`
	TotalRuns    int        `json:"total_runs"`
	SuccessCount int        `json:"success_count"`
	FailureCount int        `json:"failure_count"`
	SkippedCount int        `json:"skipped_count"`
	SuccessRate  float64    `json:"success_rate"`
	Running      bool       `json:"running"`
	LastRun      *time.Time `json:"last_run,omitempty"`
	LastSuccess  *time.Time `json:"last_success,omitempty"`
	LastFailure  *time.Time `json:"last_failure,omitempty"`
	NextRun      *time.Time `json:"next_run,omitempty"`
}
