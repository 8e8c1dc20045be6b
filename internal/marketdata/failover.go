package marketdata

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/wonny/quantsnap/internal/contracts"
	"github.com/wonny/quantsnap/internal/metrics"
	"github.com/wonny/quantsnap/pkg/logger"
)

// Policy is the retry, timeout and concurrency budget of one run
type Policy struct {
	Workers        int
	MaxAttempts    int           // per source
	InitialBackoff time.Duration // doubles after every failed attempt
	MaxBackoff     time.Duration
	Timeout        time.Duration // per request
	SymbolBudget   time.Duration // every source, one symbol
}

// DefaultPolicy mirrors the pipeline defaults
func DefaultPolicy() Policy {
	return Policy{
		Workers:        4,
		MaxAttempts:    3,
		InitialBackoff: 500 * time.Millisecond,
		MaxBackoff:     4 * time.Second,
		Timeout:        15 * time.Second,
		SymbolBudget:   60 * time.Second,
	}
}

// Backoff returns the wait before retry number attempt (1-based)
func (p Policy) Backoff(attempt int) time.Duration {
	d := p.InitialBackoff
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= p.MaxBackoff {
			return p.MaxBackoff
		}
	}
	if d > p.MaxBackoff {
		return p.MaxBackoff
	}
	return d
}

// FetchOutcome is either a history or a failure for one symbol
type FetchOutcome struct {
	Symbol       contracts.Symbol
	History      contracts.PriceHistory
	Failure      *contracts.FetchFailure
	Source       string // source that produced History
	FallbackUsed bool
	Attempts     []contracts.SourceAttempt
}

// OK reports whether a history was produced
func (o FetchOutcome) OK() bool {
	return o.Failure == nil
}

// Status maps the outcome to the exported per-symbol status
func (o FetchOutcome) Status() contracts.FetchStatus {
	switch {
	case o.Failure != nil:
		return contracts.StatusFailed
	case o.FallbackUsed:
		return contracts.StatusFallbackUsed
	default:
		return contracts.StatusOK
	}
}

// Fetcher tries sources in a fixed order with bounded retries.
// One Fetcher serves one run: its limiter is the run's request budget.
// ⭐ SSOT: 가격 수집 재시도/폴백 정책은 여기서만
type Fetcher struct {
	sources []Source
	limiter *rate.Limiter
	policy  Policy
	metrics *metrics.Metrics
	logger  *logger.Logger

	sleep func(ctx context.Context, d time.Duration) error
}

// NewFetcher creates a fetcher over sources (primary first). A nil limiter
// means unlimited.
func NewFetcher(sources []Source, limiter *rate.Limiter, policy Policy, m *metrics.Metrics, log *logger.Logger) *Fetcher {
	if limiter == nil {
		limiter = rate.NewLimiter(rate.Inf, 1)
	}
	if policy.Workers <= 0 {
		policy.Workers = 1
	}
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = 1
	}
	return &Fetcher{
		sources: sources,
		limiter: limiter,
		policy:  policy,
		metrics: m,
		logger:  log.WithField("module", "marketdata"),
		sleep:   sleepCtx,
	}
}

// Fetch never returns an error: exhaustion is reported in the outcome.
func (f *Fetcher) Fetch(ctx context.Context, symbol contracts.Symbol, rng contracts.DateRange) FetchOutcome {
	outcome := FetchOutcome{Symbol: symbol}

	budgetCtx := ctx
	if f.policy.SymbolBudget > 0 {
		var cancel context.CancelFunc
		budgetCtx, cancel = context.WithTimeout(ctx, f.policy.SymbolBudget)
		defer cancel()
	}

	for i, src := range f.sources {
		history, attempt := f.trySource(budgetCtx, src, symbol, rng)
		if attempt.Err == "" {
			outcome.History = history
			outcome.Source = src.Name()
			outcome.FallbackUsed = i > 0
			outcome.Attempts = append(outcome.Attempts, attempt)
			return outcome
		}

		outcome.Attempts = append(outcome.Attempts, attempt)
		f.logger.WithFields(map[string]interface{}{
			"symbol":   symbol,
			"source":   src.Name(),
			"attempts": attempt.Attempts,
			"error":    attempt.Err,
		}).Warn("Source exhausted, trying next")

		if budgetCtx.Err() != nil {
			break
		}
	}

	outcome.Failure = &contracts.FetchFailure{Symbol: symbol, Attempts: outcome.Attempts}
	return outcome
}

// trySource runs up to MaxAttempts requests against one source
func (f *Fetcher) trySource(ctx context.Context, src Source, symbol contracts.Symbol, rng contracts.DateRange) (contracts.PriceHistory, contracts.SourceAttempt) {
	attempt := contracts.SourceAttempt{Source: src.Name()}
	var lastErr error

	for n := 1; n <= f.policy.MaxAttempts; n++ {
		if n > 1 {
			if err := f.sleep(ctx, f.policy.Backoff(n-1)); err != nil {
				lastErr = fmt.Errorf("%v (budget: %w)", lastErr, err)
				break
			}
		}

		attempt.Attempts = n
		history, err := f.request(ctx, src, symbol, rng)
		if err == nil {
			f.metrics.ObserveSourceAttempt(src.Name(), metrics.AttemptSuccess)
			return history, attempt
		}

		lastErr = err
		f.metrics.ObserveSourceAttempt(src.Name(), attemptLabel(err))

		if isPermanent(err) || ctx.Err() != nil {
			break
		}
	}

	attempt.Err = lastErr.Error()
	return contracts.PriceHistory{}, attempt
}

// request performs one rate-limited, time-bounded call and normalizes the
// result. A normalized history without a single positive close counts as
// ErrNoData.
func (f *Fetcher) request(ctx context.Context, src Source, symbol contracts.Symbol, rng contracts.DateRange) (contracts.PriceHistory, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return contracts.PriceHistory{}, fmt.Errorf("rate limiter: %w", err)
	}

	reqCtx := ctx
	if f.policy.Timeout > 0 {
		var cancel context.CancelFunc
		reqCtx, cancel = context.WithTimeout(ctx, f.policy.Timeout)
		defer cancel()
	}

	history, err := src.FetchHistory(reqCtx, symbol, rng)
	if err != nil {
		return contracts.PriceHistory{}, err
	}

	history.Symbol = symbol
	history.Source = src.Name()
	history = Normalize(history, rng)
	if !hasPositiveClose(history) {
		return contracts.PriceHistory{}, fmt.Errorf("%s: %w in range %s..%s", src.Name(), ErrNoData, rng.FromDate(), rng.ToDate())
	}
	return history, nil
}

// FetchAll fetches every symbol on a bounded worker pool. Each worker writes
// only its symbol's slot; the map is assembled after every worker is done.
func (f *Fetcher) FetchAll(ctx context.Context, symbols []contracts.Symbol, rng contracts.DateRange) map[contracts.Symbol]FetchOutcome {
	slots := make([]FetchOutcome, len(symbols))

	f.logger.WithFields(map[string]interface{}{
		"symbols": len(symbols),
		"from":    rng.FromDate(),
		"to":      rng.ToDate(),
		"workers": f.policy.Workers,
	}).Info("Starting history fetch")

	jobs := make(chan int, len(symbols))
	for i := range symbols {
		jobs <- i
	}
	close(jobs)

	var wg sync.WaitGroup
	for w := 0; w < f.policy.Workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				slots[i] = f.Fetch(ctx, symbols[i], rng)
			}
		}()
	}
	wg.Wait()

	out := make(map[contracts.Symbol]FetchOutcome, len(symbols))
	success, fallback, failed := 0, 0, 0
	for _, o := range slots {
		out[o.Symbol] = o
		switch o.Status() {
		case contracts.StatusOK:
			success++
		case contracts.StatusFallbackUsed:
			fallback++
		default:
			failed++
		}
	}

	f.logger.WithFields(map[string]interface{}{
		"ok":       success,
		"fallback": fallback,
		"failed":   failed,
	}).Info("History fetch completed")

	return out
}

func attemptLabel(err error) string {
	switch {
	case errors.Is(err, ErrRateLimited):
		return metrics.AttemptRateLimited
	case errors.Is(err, ErrNoData):
		return metrics.AttemptNoData
	default:
		return metrics.AttemptError
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
