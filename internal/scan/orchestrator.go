// Package scan drives the end-to-end signal scan: universe selection,
// bounded fan-out across coins, the per-coin fetch → features → bots →
// aggregation pipeline, batched persistence and run bookkeeping. A
// scan is time-boxed; when the budget runs out the orchestrator stops
// dispatching, cancels in-flight coins and finalizes with whatever
// completed.
package scan

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/CodyDvorak/CryptoOracle-sub001/internal/aggregation"
	"github.com/CodyDvorak/CryptoOracle-sub001/internal/bots"
	"github.com/CodyDvorak/CryptoOracle-sub001/internal/config"
	"github.com/CodyDvorak/CryptoOracle-sub001/internal/db"
	"github.com/CodyDvorak/CryptoOracle-sub001/internal/feed"
	"github.com/CodyDvorak/CryptoOracle-sub001/internal/market"
	"github.com/CodyDvorak/CryptoOracle-sub001/internal/metrics"
)

const (
	// stopMargin is how close to the deadline the orchestrator stops
	// dispatching new coins.
	stopMargin = 20 * time.Second

	// flushEvery is how many processed coins trigger a counter flush.
	flushEvery = 10

	// persistAttempts bounds retries of a failed coin-result write
	// before the run is declared failed.
	persistAttempts = 3

	// Candle depths per timeframe. Daily and 4h are the required
	// feeds; hourly and weekly only sharpen alignment.
	dailyDepth  = 180
	fourHDepth  = 168
	hourlyDepth = 168
	weeklyDepth = 104

	// universeOverfetch pads the universe request so stablecoin and
	// scope filtering still leaves a full lineup.
	universeOverfetch = 25
)

// Store is the persistence surface the orchestrator needs.
type Store interface {
	InsertScanRun(ctx context.Context, run *db.ScanRun) error
	UpdateScanRunCounters(ctx context.Context, runID uuid.UUID, totalCoins, totalBots, totalSignals int) error
	CompleteScanRun(ctx context.Context, runID uuid.UUID, totalCoins, totalBots, totalSignals int) error
	FailScanRun(ctx context.Context, runID uuid.UUID, errMsg string) error
	GetScanRun(ctx context.Context, runID uuid.UUID) (*db.ScanRun, error)
	StaleRunningScans(ctx context.Context, olderThan time.Duration) ([]*db.ScanRun, error)
	SaveCoinResult(ctx context.Context, rec *db.Recommendation, preds []*db.BotPrediction) error
}

// MarketData is the router surface the per-coin pipeline consumes.
type MarketData interface {
	Universe(ctx context.Context, q market.UniverseQuery) ([]market.Coin, error)
	OHLCV(ctx context.Context, symbol string, tf market.Timeframe, limit int) (*market.Series, error)
	Quote(ctx context.Context, symbol string) (*market.Quote, error)
	Derivatives(ctx context.Context, symbol string) (*market.DerivativesMetrics, error)
	Options(ctx context.Context, symbol string) (*market.OptionsMetrics, error)
	OnChain(ctx context.Context, symbol string) (*market.OnChainMetrics, error)
	Sentiment(ctx context.Context, symbol string) (*market.SentimentMetrics, error)
}

// aggregator is the slice of aggregation.Engine the pipeline calls.
type aggregator interface {
	Process(ctx context.Context, in aggregation.Input) *aggregation.Result
}

// SnapshotFunc loads the adaptive-weights snapshot a scan pins at
// start. Failures degrade to a nil snapshot (all bots at weight 1).
type SnapshotFunc func(ctx context.Context) (*bots.WeightsSnapshot, error)

// Spec is one scan request. Zero fields fall back to the profile
// named by ScanType.
type Spec struct {
	ScanType            string  `json:"scan_type"`
	FilterScope         string  `json:"filter_scope,omitempty"`
	MinPrice            float64 `json:"min_price,omitempty"`
	MaxPrice            float64 `json:"max_price,omitempty"`
	CoinLimit           int     `json:"coin_limit,omitempty"`
	ConfidenceThreshold float64 `json:"confidence_threshold,omitempty"`
	UseDeepAI           bool    `json:"use_deep_ai,omitempty"`
}

// Status is the inbound view of a run's progress.
type Status struct {
	RunID       uuid.UUID  `json:"run_id"`
	Status      string     `json:"status"`
	Processed   int        `json:"processed"`
	Total       int        `json:"total"`
	Signals     int        `json:"signals"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Error       *string    `json:"error,omitempty"`
}

// Options carries the orchestrator's optional collaborators.
type Options struct {
	Config      config.ScanConfig
	Feed        *feed.Publisher
	LLMEngine   aggregator // used when the profile enables AI refinement
	PlainEngine aggregator // used otherwise
	Snapshots   SnapshotFunc
}

// Orchestrator owns scan lifecycles. Start returns as soon as the run
// row exists; the scan itself runs on a worker goroutine bounded by
// the profile's deadline budget.
type Orchestrator struct {
	store    Store
	md       MarketData
	registry *bots.Registry

	cfg       config.ScanConfig
	feed      *feed.Publisher
	llmEng    aggregator
	plainEng  aggregator
	snapshots SnapshotFunc

	wg  sync.WaitGroup
	log zerolog.Logger
}

// NewOrchestrator wires an orchestrator. Missing engines default to a
// bare aggregation engine with neither panel nor journal.
func NewOrchestrator(store Store, md MarketData, registry *bots.Registry, opts Options) *Orchestrator {
	plain := opts.PlainEngine
	if plain == nil {
		plain = aggregation.NewEngine(nil, nil)
	}
	llmEng := opts.LLMEngine
	if llmEng == nil {
		llmEng = plain
	}
	snapshots := opts.Snapshots
	if snapshots == nil {
		snapshots = func(context.Context) (*bots.WeightsSnapshot, error) { return nil, nil }
	}

	return &Orchestrator{
		store:     store,
		md:        md,
		registry:  registry,
		cfg:       opts.Config,
		feed:      opts.Feed,
		llmEng:    llmEng,
		plainEng:  plain,
		snapshots: snapshots,
		log:       log.With().Str("component", "scan").Logger(),
	}
}

// Start creates the run row and hands the scan to a worker. It only
// fails when the row cannot be created; everything after that is
// reported through the run's status.
func (o *Orchestrator) Start(ctx context.Context, spec Spec) (uuid.UUID, error) {
	profile := o.cfg.Profile(spec.ScanType)
	spec = withProfileDefaults(spec, o.cfg, profile)

	run := &db.ScanRun{
		ID:                  uuid.New(),
		StartedAt:           time.Now().UTC(),
		Status:              db.ScanStatusRunning,
		ScanType:            spec.ScanType,
		FilterScope:         db.FilterScope(spec.FilterScope),
		CoinLimit:           spec.CoinLimit,
		ConfidenceThreshold: spec.ConfidenceThreshold,
		TotalBots:           o.registry.Len(),
	}
	if spec.MinPrice > 0 {
		run.MinPrice = &spec.MinPrice
	}
	if spec.MaxPrice > 0 {
		run.MaxPrice = &spec.MaxPrice
	}

	if err := o.store.InsertScanRun(ctx, run); err != nil {
		return uuid.Nil, fmt.Errorf("failed to create scan run: %w", err)
	}

	metrics.ScansStarted.WithLabelValues(spec.ScanType).Inc()
	o.feed.PublishScanStatus(feed.ScanStatusEvent{
		RunID:    run.ID,
		Status:   string(db.ScanStatusRunning),
		ScanType: spec.ScanType,
		At:       run.StartedAt,
	})

	workerCtx := context.WithoutCancel(ctx)
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		o.run(workerCtx, run, spec, profile)
	}()

	return run.ID, nil
}

// Status reads a run's progress from the store.
func (o *Orchestrator) Status(ctx context.Context, runID uuid.UUID) (*Status, error) {
	run, err := o.store.GetScanRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	if run == nil {
		return nil, nil
	}

	return &Status{
		RunID:       run.ID,
		Status:      string(run.Status),
		Processed:   run.TotalCoins,
		Total:       run.CoinLimit,
		Signals:     run.TotalSignals,
		StartedAt:   run.StartedAt,
		CompletedAt: run.CompletedAt,
		Error:       run.Error,
	}, nil
}

// Wait blocks until every in-flight scan worker has returned. Used
// during shutdown.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

// ReapStaleRuns fails any run left in running state by a crashed
// process. Called once at startup.
func (o *Orchestrator) ReapStaleRuns(ctx context.Context) error {
	ceiling := 10*time.Minute + time.Minute
	stale, err := o.store.StaleRunningScans(ctx, ceiling)
	if err != nil {
		return err
	}
	for _, run := range stale {
		if err := o.store.FailScanRun(ctx, run.ID, "orphaned by process restart"); err != nil {
			return err
		}
		o.log.Warn().Str("run_id", run.ID.String()).Msg("Reaped stale scan run")
	}
	return nil
}

// run executes one scan to completion.
func (o *Orchestrator) run(ctx context.Context, run *db.ScanRun, spec Spec, profile config.ScanProfileConfig) {
	deadline := run.StartedAt.Add(profile.GetDeadlineBudget())
	runCtx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	logger := o.log.With().Str("run_id", run.ID.String()).Str("scan_type", spec.ScanType).Logger()

	snapshot, err := o.snapshots(runCtx)
	if err != nil {
		logger.Warn().Err(err).Msg("Weights snapshot unavailable, bots run at weight 1")
		snapshot = nil
	}
	enabled := o.registry.Enabled(snapshot)

	universe, err := o.resolveUniverse(runCtx, spec)
	if err != nil {
		o.finalizeFailed(ctx, run, spec, fmt.Sprintf("universe selection failed: %v", err))
		return
	}
	logger.Info().
		Int("universe", len(universe)).
		Int("bots", len(enabled)).
		Time("deadline", deadline).
		Msg("Scan started")

	concurrency := profile.Concurrency
	if concurrency <= 0 {
		concurrency = 5
	}

	prog := &progress{totalBots: len(enabled)}
	var wg sync.WaitGroup
	sem := make(chan struct{}, concurrency)

dispatch:
	for _, coin := range universe {
		if runCtx.Err() != nil {
			break
		}
		if time.Until(deadline) < stopMargin {
			logger.Info().Int("dispatched", prog.dispatched).Msg("Deadline near, dispatch stopped")
			break
		}

		select {
		case sem <- struct{}{}:
		case <-runCtx.Done():
			break dispatch
		}

		prog.dispatched++
		wg.Add(1)
		go func(c market.Coin) {
			defer wg.Done()
			defer func() { <-sem }()
			o.runCoin(runCtx, run, spec, profile, snapshot, enabled, c, prog, cancel)
		}(coin)

		if n := prog.processedCount(); n > 0 && n%flushEvery == 0 {
			o.flushCounters(runCtx, run.ID, prog)
		}
	}

	// Give in-flight coins a bounded grace after the deadline; they
	// observe runCtx cancellation and must exit without writing.
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	graceEnd := time.Until(deadline) + o.cfg.GetCancelGrace()
	if graceEnd < o.cfg.GetCancelGrace() {
		graceEnd = o.cfg.GetCancelGrace()
	}
	select {
	case <-done:
	case <-time.After(graceEnd):
		logger.Warn().Msg("Coin tasks did not drain within grace period")
	}

	if msg, failed := prog.failure(); failed {
		o.finalizeFailed(ctx, run, spec, msg)
		return
	}

	o.finalizeCompleted(ctx, run, spec, prog)
}

func (o *Orchestrator) finalizeCompleted(ctx context.Context, run *db.ScanRun, spec Spec, prog *progress) {
	finCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	processed, signals := prog.totals()
	if err := o.store.CompleteScanRun(finCtx, run.ID, processed, prog.totalBots, signals); err != nil {
		o.log.Error().Err(err).Str("run_id", run.ID.String()).Msg("Failed to finalize scan run")
	}

	elapsed := time.Since(run.StartedAt)
	metrics.ScansFinished.WithLabelValues(spec.ScanType, string(db.ScanStatusCompleted)).Inc()
	metrics.ScanDuration.WithLabelValues(spec.ScanType).Observe(elapsed.Seconds())

	o.feed.PublishScanStatus(feed.ScanStatusEvent{
		RunID:        run.ID,
		Status:       string(db.ScanStatusCompleted),
		ScanType:     spec.ScanType,
		TotalCoins:   processed,
		TotalSignals: signals,
		At:           time.Now().UTC(),
	})

	o.log.Info().
		Str("run_id", run.ID.String()).
		Int("coins", processed).
		Int("signals", signals).
		Dur("elapsed", elapsed).
		Msg("Scan completed")
}

func (o *Orchestrator) finalizeFailed(ctx context.Context, run *db.ScanRun, spec Spec, msg string) {
	finCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	if err := o.store.FailScanRun(finCtx, run.ID, msg); err != nil {
		o.log.Error().Err(err).Str("run_id", run.ID.String()).Msg("Failed to mark scan run failed")
	}

	metrics.ScansFinished.WithLabelValues(spec.ScanType, string(db.ScanStatusFailed)).Inc()

	o.feed.PublishScanStatus(feed.ScanStatusEvent{
		RunID:    run.ID,
		Status:   string(db.ScanStatusFailed),
		ScanType: spec.ScanType,
		Error:    msg,
		At:       time.Now().UTC(),
	})
}

func (o *Orchestrator) flushCounters(ctx context.Context, runID uuid.UUID, prog *progress) {
	processed, signals := prog.totals()
	if err := o.store.UpdateScanRunCounters(ctx, runID, processed, prog.totalBots, signals); err != nil {
		o.log.Debug().Err(err).Msg("Counter flush failed")
	}
}

// persistWithRetry writes one coin result, retrying transient store
// failures with jitter. Exhausting the attempts is a run-fatal error.
func (o *Orchestrator) persistWithRetry(ctx context.Context, res *aggregation.Result) error {
	var lastErr error
	for attempt := 1; attempt <= persistAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		lastErr = o.store.SaveCoinResult(ctx, res.Recommendation, res.Predictions)
		if lastErr == nil {
			return nil
		}
		if attempt < persistAttempts {
			select {
			case <-time.After(retryJitter()):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	return fmt.Errorf("persist failed after %d attempts: %w", persistAttempts, lastErr)
}

// retryJitter returns a 100-400ms backoff delay.
func retryJitter() time.Duration {
	return 100*time.Millisecond + time.Duration(rand.Int64N(int64(300*time.Millisecond)))
}

// withProfileDefaults fills a spec's zero fields from its profile.
func withProfileDefaults(spec Spec, cfg config.ScanConfig, profile config.ScanProfileConfig) Spec {
	if spec.ScanType == "" {
		spec.ScanType = cfg.DefaultProfile
	}
	if spec.FilterScope == "" {
		spec.FilterScope = profile.FilterScope
	}
	if spec.FilterScope == "" {
		spec.FilterScope = string(db.FilterScopeAll)
	}
	if spec.CoinLimit <= 0 {
		spec.CoinLimit = profile.CoinLimit
	}
	if spec.ConfidenceThreshold <= 0 {
		spec.ConfidenceThreshold = profile.ConfidenceThreshold
	}
	return spec
}
