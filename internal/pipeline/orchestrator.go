package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/wonny/quantsnap/internal/contracts"
	"github.com/wonny/quantsnap/internal/export"
	"github.com/wonny/quantsnap/internal/horizon"
	"github.com/wonny/quantsnap/internal/indicators"
	"github.com/wonny/quantsnap/internal/marketdata"
	"github.com/wonny/quantsnap/internal/metrics"
	"github.com/wonny/quantsnap/internal/pipelineconfig"
	"github.com/wonny/quantsnap/internal/recommend"
	"github.com/wonny/quantsnap/internal/storage"
	"github.com/wonny/quantsnap/internal/universe"
	"github.com/wonny/quantsnap/pkg/logger"
)

// Orchestrator runs resolve → fetch → compute → rank → persist → export
// ⭐ SSOT: 파이프라인 조율은 여기서만
type Orchestrator struct {
	resolver *universe.Resolver
	sources  map[string]marketdata.Source
	store    storage.Store
	metrics  *metrics.Metrics
	logger   *logger.Logger

	now   func() time.Time
	newID func() string
}

// Option customizes an Orchestrator
type Option func(*Orchestrator)

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// WithRunIDs replaces the uuid run id generator
func WithRunIDs(newID func() string) Option {
	return func(o *Orchestrator) { o.newID = newID }
}

// NewOrchestrator creates an orchestrator. sources holds every market data
// source that may be named in fetch.sources; the config picks the order.
func NewOrchestrator(
	resolver *universe.Resolver,
	sources []marketdata.Source,
	store storage.Store,
	m *metrics.Metrics,
	log *logger.Logger,
	opts ...Option,
) *Orchestrator {
	byName := make(map[string]marketdata.Source, len(sources))
	for _, s := range sources {
		byName[s.Name()] = s
	}

	o := &Orchestrator{
		resolver: resolver,
		sources:  byName,
		store:    store,
		metrics:  m,
		logger:   log.WithField("module", "pipeline"),
		now:      time.Now,
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// run carries the per-invocation state
type run struct {
	o      *Orchestrator
	cfg    *pipelineconfig.Config
	result *contracts.RunResult
	logger *logger.Logger
	start  time.Time
}

// Run executes one pipeline invocation.
//
// Only configuration errors and final-write errors (PersistenceError,
// ExportError) are returned; per-symbol failures end up in the result's
// statuses. The returned result is never nil.
func (o *Orchestrator) Run(ctx context.Context, cfg *pipelineconfig.Config) (*contracts.RunResult, error) {
	start := o.now()
	runID := o.newID()

	r := &run{
		o:      o,
		cfg:    cfg,
		result: contracts.NewRunResult(runID, start.UTC()),
		logger: o.logger.WithField("run_id", runID),
		start:  start,
	}

	// 설정 검증은 모든 부수효과보다 먼저
	if cfg == nil {
		return r.fail(contracts.NewConfigurationError("", "configuration is required"))
	}
	if err := pipelineconfig.Validate(cfg); err != nil {
		return r.fail(err)
	}
	if o.store == nil {
		return r.fail(contracts.NewConfigurationError("storage", "no store configured"))
	}

	sources, err := o.sourcesFor(cfg.Fetch.Sources)
	if err != nil {
		return r.fail(err)
	}
	selector, err := universe.SelectorFor(cfg.Universe)
	if err != nil {
		return r.fail(err)
	}
	hash, err := pipelineconfig.Hash(cfg)
	if err != nil {
		return r.fail(fmt.Errorf("hash config: %w", err))
	}

	loc, _ := time.LoadLocation(cfg.App.Timezone) // validated above
	r.result.Mode = strings.ToLower(strings.TrimSpace(cfg.Universe.Mode))
	r.result.Timezone = cfg.App.Timezone
	r.result.ConfigHash = hash
	r.result.Range = contracts.LookbackRange(start.In(loc), cfg.Pipeline.LookbackDays)

	r.logger.WithFields(map[string]interface{}{
		"mode":        r.result.Mode,
		"max_symbols": cfg.Universe.MaxSymbols,
		"sources":     cfg.Fetch.Sources,
		"from":        r.result.Range.FromDate(),
		"to":          r.result.Range.ToDate(),
		"config_hash": hash,
	}).Info("Starting pipeline run")

	// Resolving
	if err := r.stage(contracts.StateResolving, 0, func() (int, error) {
		symbols, err := o.resolver.Resolve(ctx, selector, cfg.Universe.MaxSymbols)
		r.result.Symbols = symbols
		return len(symbols), err
	}); err != nil {
		return r.fail(err)
	}

	// Fetching
	if err := r.stage(contracts.StateFetching, len(r.result.Symbols), func() (int, error) {
		return r.fetch(ctx, sources)
	}); err != nil {
		return r.fail(err)
	}

	// Computing
	if err := r.stage(contracts.StateComputing, len(r.result.Histories), func() (int, error) {
		return r.compute(), nil
	}); err != nil {
		return r.fail(err)
	}

	// Ranking
	if err := r.stage(contracts.StateRanking, len(r.result.Indicators), func() (int, error) {
		return r.rank()
	}); err != nil {
		return r.fail(err)
	}

	r.result.GeneratedAt = o.now().UTC()
	r.result.FinishedAt = r.result.GeneratedAt

	if r.result.SuccessCount() == 0 {
		return r.skip()
	}

	// Persisting: the snapshot is staged first so an export problem can
	// never follow a committed batch unnoticed.
	var staged *export.Staged
	if err := r.stage(contracts.StatePersisting, r.result.PriceRowCount(), func() (int, error) {
		var err error
		staged, err = export.NewWriter(cfg.Export.Path, o.logger).Stage(r.result, r.recentRuns(ctx))
		if err != nil {
			return 0, err
		}
		if err := o.store.WriteBatch(ctx, r.result); err != nil {
			staged.Discard()
			return 0, err
		}
		return r.result.PriceRowCount(), nil
	}); err != nil {
		return r.fail(err)
	}

	// Exporting
	if err := r.stage(contracts.StateExporting, len(r.result.Recommendations), func() (int, error) {
		if err := staged.Commit(); err != nil {
			return 0, err
		}
		return len(r.result.Recommendations), nil
	}); err != nil {
		// DB batch is already committed at this point; flag the run row so
		// readers can tell the snapshot file is behind
		r.logger.Warn("Batch committed but snapshot was not published")
		if markErr := o.store.SetRunStatus(ctx, r.result.RunID, storage.RunStatusExportFailed); markErr != nil {
			r.logger.WithError(markErr).Error("Failed to flag run as export_failed")
		}
		return r.fail(err)
	}

	return r.done(metrics.RunDone)
}

// sourcesFor returns the configured sources in failover order
func (o *Orchestrator) sourcesFor(names []string) ([]marketdata.Source, error) {
	out := make([]marketdata.Source, 0, len(names))
	for _, name := range names {
		src, ok := o.sources[strings.ToLower(strings.TrimSpace(name))]
		if !ok {
			return nil, contracts.NewConfigurationError("fetch.sources", "source %q is not available", name)
		}
		out = append(out, src)
	}
	return out, nil
}

// stage moves the state machine forward and records timing and counts
func (r *run) stage(state contracts.State, input int, fn func() (int, error)) error {
	if !contracts.CanTransition(r.result.State, state) && r.result.State != state {
		return fmt.Errorf("illegal transition %s → %s", r.result.State, state)
	}
	r.result.State = state

	started := time.Now()
	output, err := fn()

	sr := contracts.StageResult{
		State:       state,
		InputCount:  input,
		OutputCount: output,
		DurationMs:  time.Since(started).Milliseconds(),
	}
	if err != nil {
		sr.Error = err.Error()
	}
	r.result.Stages = append(r.result.Stages, sr)

	r.logger.WithFields(map[string]interface{}{
		"state":       state.String(),
		"input":       input,
		"output":      output,
		"duration_ms": sr.DurationMs,
	}).Debug("Stage finished")

	return err
}

func (r *run) fetch(ctx context.Context, sources []marketdata.Source) (int, error) {
	f := r.cfg.Fetch
	limiter := rate.NewLimiter(rate.Limit(f.RequestsPerSecond), f.Burst)
	fetcher := marketdata.NewFetcher(sources, limiter, policyFrom(f), r.o.metrics, r.logger)

	outcomes := fetcher.FetchAll(ctx, r.result.Symbols, r.result.Range)

	// cancellation would otherwise look like every source failing
	if err := ctx.Err(); err != nil {
		return 0, fmt.Errorf("fetch interrupted: %w", err)
	}

	for _, symbol := range r.result.Symbols {
		out := outcomes[symbol]
		status := contracts.SymbolStatus{
			Symbol: symbol,
			Status: out.Status(),
			Source: out.Source,
		}
		if out.OK() {
			r.result.Histories[symbol] = out.History
		} else {
			status.Reason = out.Failure.Error()
		}
		r.result.Statuses = append(r.result.Statuses, status)
	}

	return len(r.result.Histories), nil
}

func (r *run) compute() int {
	engine := indicators.NewEngine(r.cfg.IndicatorConfig(), r.logger)
	r.result.Indicators = engine.ComputeAll(r.result.Histories)

	for _, symbol := range r.result.Symbols {
		set, ok := r.result.Indicators[symbol]
		if !ok {
			continue
		}
		if missing := indicators.Unavailable(set); len(missing) > 0 {
			r.logger.WithFields(map[string]interface{}{
				"symbol":      symbol.String(),
				"unavailable": len(missing),
				"first":       missing[0].Error(),
			}).Debug("Indicators unavailable")
		}
	}

	return len(r.result.Indicators)
}

func (r *run) rank() (int, error) {
	window := r.cfg.Indicators.ShortWindow
	w := r.cfg.Pipeline.Weights
	engine := recommend.NewEngine(recommend.Config{
		Weights: recommend.Weights{
			Return:     w.Return,
			Volatility: w.Volatility,
			Momentum:   w.Momentum,
		},
		RequiredIndicators: r.cfg.Pipeline.RequiredIndicators,
		ExpectedReturn:     indicators.NameExpectedReturn,
		Volatility:         indicators.VolatilityName(window),
		Momentum:           indicators.MomentumName(window),
	}, r.logger)

	// resolution order keeps the input deterministic
	sets := make([]contracts.IndicatorSet, 0, len(r.result.Indicators))
	for _, symbol := range r.result.Symbols {
		if set, ok := r.result.Indicators[symbol]; ok {
			sets = append(sets, set)
		}
	}

	recs, err := engine.Recommend(sets, r.cfg.Pipeline.TargetAnnualReturn, r.cfg.Pipeline.MaxRecommendations)
	if err != nil {
		return 0, err
	}
	r.result.Recommendations = recs
	r.result.Horizons = horizon.Build(r.result.Histories)
	return len(recs), nil
}

// recentRuns lists the runs shown in the snapshot with the current run
// first. A read failure only shortens the list.
func (r *run) recentRuns(ctx context.Context) []storage.RunSummary {
	current := storage.Summarize(r.result)
	stored, err := r.o.store.RecentRuns(ctx, export.RecentRunsLimit-1)
	if err != nil {
		r.logger.WithError(err).Warn("Failed to read recent runs for snapshot")
		return []storage.RunSummary{current}
	}
	return append([]storage.RunSummary{current}, stored...)
}

// skip finishes a run that produced no usable history. The previous
// snapshot and stored batch stay as they are.
func (r *run) skip() (*contracts.RunResult, error) {
	r.result.Skipped = true
	for _, state := range []contracts.State{contracts.StatePersisting, contracts.StateExporting} {
		_ = r.stage(state, 0, func() (int, error) { return 0, nil })
	}

	r.logger.WithFields(map[string]interface{}{
		"symbols": len(r.result.Symbols),
	}).Warn("No symbol fetched, persistence and export skipped")

	return r.done(metrics.RunSkipped)
}

func (r *run) done(status string) (*contracts.RunResult, error) {
	r.result.State = contracts.StateDone
	elapsed := r.o.now().Sub(r.start)
	r.o.metrics.ObserveRun(r.result, status, elapsed)

	counts := r.result.StatusCounts()
	r.logger.WithFields(map[string]interface{}{
		"status":          status,
		"symbols":         len(r.result.Symbols),
		"ok":              counts[contracts.StatusOK],
		"fallback_used":   counts[contracts.StatusFallbackUsed],
		"failed":          counts[contracts.StatusFailed],
		"recommendations": len(r.result.Recommendations),
		"duration":        elapsed.String(),
	}).Info("Pipeline run finished")

	return r.result, nil
}

func (r *run) fail(err error) (*contracts.RunResult, error) {
	r.result.State = contracts.StateFailed
	if r.result.FinishedAt.IsZero() {
		r.result.FinishedAt = r.o.now().UTC()
	}
	r.o.metrics.ObserveRun(r.result, metrics.RunFailed, r.o.now().Sub(r.start))
	r.logger.WithError(err).Error("Pipeline run failed")
	return r.result, err
}

func policyFrom(f pipelineconfig.Fetch) marketdata.Policy {
	return marketdata.Policy{
		Workers:        f.Workers,
		MaxAttempts:    f.MaxAttempts,
		InitialBackoff: f.InitialBackoff,
		MaxBackoff:     f.MaxBackoff,
		Timeout:        f.Timeout,
		SymbolBudget:   f.SymbolBudget,
	}
}
