package scan

import (
	"context"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/CodyDvorak/CryptoOracle-sub001/internal/aggregation"
	"github.com/CodyDvorak/CryptoOracle-sub001/internal/bots"
	"github.com/CodyDvorak/CryptoOracle-sub001/internal/config"
	"github.com/CodyDvorak/CryptoOracle-sub001/internal/db"
	"github.com/CodyDvorak/CryptoOracle-sub001/internal/feed"
	"github.com/CodyDvorak/CryptoOracle-sub001/internal/indicators"
	"github.com/CodyDvorak/CryptoOracle-sub001/internal/market"
	"github.com/CodyDvorak/CryptoOracle-sub001/internal/metrics"
)

// progress accumulates run counters across coin workers. A persist
// failure latches the run into the failed state.
type progress struct {
	mu         sync.Mutex
	totalBots  int
	dispatched int
	processed  int
	skipped    int
	signals    int
	failMsg    string
	failed     bool
}

func (p *progress) markProcessed() {
	p.mu.Lock()
	p.processed++
	p.mu.Unlock()
}

func (p *progress) markSkipped() {
	p.mu.Lock()
	p.skipped++
	p.mu.Unlock()
}

func (p *progress) markSignal() {
	p.mu.Lock()
	p.processed++
	p.signals++
	p.mu.Unlock()
}

func (p *progress) markFailed(msg string) {
	p.mu.Lock()
	if !p.failed {
		p.failed = true
		p.failMsg = msg
	}
	p.mu.Unlock()
}

func (p *progress) processedCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.processed
}

func (p *progress) totals() (processed, signals int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.processed, p.signals
}

func (p *progress) failure() (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.failMsg, p.failed
}

// resolveUniverse fetches the candidate list and applies stablecoin
// and scope filtering, trimming to the requested limit.
func (o *Orchestrator) resolveUniverse(ctx context.Context, spec Spec) ([]market.Coin, error) {
	coins, err := o.md.Universe(ctx, market.UniverseQuery{
		Limit:    spec.CoinLimit + universeOverfetch,
		MinPrice: spec.MinPrice,
		MaxPrice: spec.MaxPrice,
	})
	if err != nil {
		return nil, err
	}

	filtered := filterUniverse(coins, spec.FilterScope, o.cfg)
	if len(filtered) > spec.CoinLimit {
		filtered = filtered[:spec.CoinLimit]
	}
	return filtered, nil
}

// filterUniverse drops stablecoins always and majors when the scope
// is alt-only. Matching is by upper-cased ticker.
func filterUniverse(coins []market.Coin, scope string, cfg config.ScanConfig) []market.Coin {
	excluded := make(map[string]bool, len(cfg.Stablecoins)+len(cfg.MajorCoins))
	for _, s := range cfg.Stablecoins {
		excluded[strings.ToUpper(s)] = true
	}
	altOnly := scope == string(db.FilterScopeAlt)
	if altOnly {
		for _, s := range cfg.MajorCoins {
			excluded[strings.ToUpper(s)] = true
		}
	}

	out := coins[:0:0]
	for _, c := range coins {
		if excluded[strings.ToUpper(c.Symbol)] {
			metrics.CoinsSkipped.WithLabelValues(metrics.SkipReasonStablecoin).Inc()
			continue
		}
		out = append(out, c)
	}
	return out
}

// coinFeeds holds everything fetched for one coin before feature
// extraction. Optional feeds stay nil when no provider serves them.
type coinFeeds struct {
	daily       *market.Series
	fourHour    *market.Series
	hourly      *market.Series
	weekly      *market.Series
	quote       *market.Quote
	derivatives *market.DerivativesMetrics
	options     *market.OptionsMetrics
	onChain     *market.OnChainMetrics
	sentiment   *market.SentimentMetrics
}

// runCoin executes the full pipeline for one coin. cancelRun tears the
// whole scan down when persistence is exhausted.
func (o *Orchestrator) runCoin(ctx context.Context, run *db.ScanRun, spec Spec, profile config.ScanProfileConfig,
	snapshot *bots.WeightsSnapshot, enabled []bots.Bot, coin market.Coin, prog *progress, cancelRun context.CancelFunc) {

	coinCtx, cancel := context.WithTimeout(ctx, o.cfg.GetPerCoinTimeout())
	defer cancel()

	start := time.Now()
	defer func() { metrics.CoinDuration.Observe(time.Since(start).Seconds()) }()

	logger := o.log.With().Str("run_id", run.ID.String()).Str("symbol", coin.Symbol).Logger()

	feeds, err := o.fetchFeeds(coinCtx, coin.Symbol)
	if err != nil {
		switch {
		case ctx.Err() != nil:
			metrics.CoinsSkipped.WithLabelValues(metrics.SkipReasonCancelled).Inc()
		case coinCtx.Err() != nil:
			metrics.CoinsSkipped.WithLabelValues(metrics.SkipReasonDeadline).Inc()
		default:
			metrics.CoinsSkipped.WithLabelValues(metrics.SkipReasonNoOHLCV).Inc()
			logger.Debug().Err(err).Msg("No daily candles, coin skipped")
		}
		prog.markSkipped()
		return
	}

	features := assembleFeatures(coin, feeds)
	votes := o.collectVotes(enabled, features)

	engine := o.plainEng
	if profile.UseLLM || spec.UseDeepAI {
		engine = o.llmEng
	}

	result := engine.Process(coinCtx, aggregation.Input{
		RunID:       run.ID,
		Coin:        coin,
		Votes:       votes,
		Features:    features,
		Snapshot:    snapshot,
		EnabledBots: len(enabled),
	})
	if result == nil {
		metrics.CoinsProcessed.Inc()
		prog.markProcessed()
		return
	}

	// Thresholds are on the user-facing 1-10 scale; stored confidence
	// is normalized to [0,1].
	if spec.ConfidenceThreshold > 0 && result.Recommendation.AvgConfidence != nil &&
		*result.Recommendation.AvgConfidence*10 < spec.ConfidenceThreshold {
		metrics.CoinsProcessed.Inc()
		prog.markProcessed()
		return
	}

	if err := o.persistWithRetry(coinCtx, result); err != nil {
		if ctx.Err() != nil || coinCtx.Err() != nil {
			metrics.CoinsSkipped.WithLabelValues(metrics.SkipReasonCancelled).Inc()
			prog.markSkipped()
			return
		}
		logger.Error().Err(err).Msg("Coin result write exhausted retries, failing run")
		prog.markFailed("persistence failed for " + coin.Symbol + ": " + err.Error())
		cancelRun()
		return
	}

	rec := result.Recommendation
	metrics.CoinsProcessed.Inc()
	metrics.RecommendationsCreated.WithLabelValues(string(rec.ConsensusDirection), rec.MarketRegime).Inc()
	prog.markSignal()

	o.feed.PublishRecommendation(feed.RecommendationEvent{
		RunID:            run.ID,
		RecommendationID: rec.ID,
		Ticker:           rec.Ticker,
		Coin:             rec.Coin,
		Direction:        string(rec.ConsensusDirection),
		Confidence:       valueOrZero(rec.AvgConfidence),
		MarketRegime:     rec.MarketRegime,
		At:               rec.CreatedAt,
	})

	logger.Info().
		Str("direction", string(rec.ConsensusDirection)).
		Int("bots", rec.BotCount).
		Msg("Signal recorded")
}

// fetchFeeds pulls candles and context metrics for one symbol. Daily
// candles are the hard requirement; everything else degrades to nil.
func (o *Orchestrator) fetchFeeds(ctx context.Context, symbol string) (*coinFeeds, error) {
	feeds := &coinFeeds{}

	daily, err := o.md.OHLCV(ctx, symbol, market.Timeframe1d, dailyDepth)
	if err != nil {
		return nil, err
	}
	feeds.daily = daily

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		feeds.fourHour, _ = o.md.OHLCV(gctx, symbol, market.Timeframe4h, fourHDepth)
		return nil
	})
	g.Go(func() error {
		feeds.hourly, _ = o.md.OHLCV(gctx, symbol, market.Timeframe1h, hourlyDepth)
		return nil
	})
	g.Go(func() error {
		feeds.weekly, _ = o.md.OHLCV(gctx, symbol, market.Timeframe1w, weeklyDepth)
		return nil
	})
	g.Go(func() error {
		feeds.quote, _ = o.md.Quote(gctx, symbol)
		return nil
	})
	g.Go(func() error {
		feeds.derivatives, _ = o.md.Derivatives(gctx, symbol)
		return nil
	})
	g.Go(func() error {
		feeds.options, _ = o.md.Options(gctx, symbol)
		return nil
	})
	g.Go(func() error {
		feeds.onChain, _ = o.md.OnChain(gctx, symbol)
		return nil
	})
	g.Go(func() error {
		feeds.sentiment, _ = o.md.Sentiment(gctx, symbol)
		return nil
	})
	_ = g.Wait()

	return feeds, nil
}

// assembleFeatures computes per-timeframe indicator vectors and packs
// them with the context metrics into one feature set.
func assembleFeatures(coin market.Coin, feeds *coinFeeds) *bots.FeatureSet {
	fs := &bots.FeatureSet{
		Symbol:         coin.Symbol,
		Price:          coin.Price,
		DailySeries:    feeds.daily,
		FourHourSeries: feeds.fourHour,
		Quote:          feeds.quote,
		Derivatives:    feeds.derivatives,
		Options:        feeds.options,
		OnChain:        feeds.onChain,
		Sentiment:      feeds.sentiment,
	}
	if fs.Price == 0 && feeds.daily != nil {
		fs.Price = feeds.daily.LastClose()
	}

	fs.Daily = computeVector(feeds.daily)
	fs.FourHour = computeVector(feeds.fourHour)
	fs.Hourly = computeVector(feeds.hourly)
	fs.Weekly = computeVector(feeds.weekly)
	return fs
}

func computeVector(s *market.Series) *indicators.FeatureVector {
	if s == nil {
		return nil
	}
	fv, err := indicators.Compute(s)
	if err != nil {
		return nil
	}
	return fv
}

// collectVotes runs every enabled bot against the feature set. A
// panicking bot loses its vote, never the scan.
func (o *Orchestrator) collectVotes(enabled []bots.Bot, fs *bots.FeatureSet) []*bots.Vote {
	votes := make([]*bots.Vote, 0, len(enabled))
	for _, b := range enabled {
		vote := o.safeAnalyze(b, fs)
		if vote == nil {
			continue
		}
		metrics.BotVotes.WithLabelValues(string(b.Category()), string(vote.Direction)).Inc()
		votes = append(votes, vote)
	}
	return votes
}

func (o *Orchestrator) safeAnalyze(b bots.Bot, fs *bots.FeatureSet) (vote *bots.Vote) {
	defer func() {
		if r := recover(); r != nil {
			metrics.BotPanics.WithLabelValues(b.Name()).Inc()
			o.log.Error().
				Str("bot", b.Name()).
				Str("symbol", fs.Symbol).
				Interface("panic", r).
				Msg("Bot panicked, vote dropped")
			vote = nil
		}
	}()

	v, err := b.Analyze(fs)
	if err != nil {
		o.log.Debug().Err(err).Str("bot", b.Name()).Str("symbol", fs.Symbol).Msg("Bot error")
		return nil
	}
	return v
}

func valueOrZero(f *float64) float64 {
	if f == nil {
		return 0
	}
	return *f
}
