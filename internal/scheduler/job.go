package scheduler

import (
	"context"
	"time"
)

// Job represents a scheduled job
// ⭐ SSOT: 스케줄 작업 인터페이스는 여기서만 정의
type Job interface {
	// Name returns the job name
	Name() string

	// Run executes the job once. An error is recorded but never retried:
	// the next trigger is the retry.
	Run(ctx context.Context) error

	// Schedule returns a standard 5-field cron expression,
	// e.g. "0 18 * * 1-5" (weekdays at 18:00 in the scheduler's timezone)
	Schedule() string
}

// JobResult represents the result of a job execution
type JobResult struct {
	JobName   string        `json:"job_name"`
	StartTime time.Time     `json:"start_time"`
	EndTime   time.Time     `json:"end_time"`
	Duration  time.Duration `json:"duration"`
	Success   bool          `json:"success"`
	Skipped   bool          `json:"skipped,omitempty"` // previous run still in flight
	Error     string        `json:"error,omitempty"`
}

const maxHistory = 100

// JobHistory stores job execution history
type JobHistory struct {
	Results []JobResult
}

// AddResult appends a result, keeping the newest maxHistory
func (h *JobHistory) AddResult(result JobResult) {
	h.Results = append(h.Results, result)
	if len(h.Results) > maxHistory {
		h.Results = h.Results[len(h.Results)-maxHistory:]
	}
}

// GetLatestResults returns the latest N results, oldest first
func (h *JobHistory) GetLatestResults(n int) []JobResult {
	if n > len(h.Results) {
		n = len(h.Results)
	}
	if n <= 0 {
		return []JobResult{}
	}
	out := make([]JobResult, n)
	copy(out, h.Results[len(h.Results)-n:])
	return out
}

// counts splits executed runs into successes and failures; skips are
// neither
func (h *JobHistory) counts() (success, failed, skipped int) {
	for _, r := range h.Results {
		switch {
		case r.Skipped:
			skipped++
		case r.Success:
			success++
		default:
			failed++
		}
	}
	return success, failed, skipped
}

// GetSuccessRate returns successes over executed runs (0.0 - 1.0)
func (h *JobHistory) GetSuccessRate() float64 {
	success, failed, _ := h.counts()
	if success+failed == 0 {
		return 0.0
	}
	return float64(success) / float64(success+failed)
}
