// Package metrics registers the scanner's Prometheus metrics and
// serves them. All metrics use promauto on the default registry;
// label sets are bounded (provider names, data kinds, bot categories,
// outcome statuses) so cardinality stays flat.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Scan pipeline metrics.
var (
	ScansStarted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cryptooracle_scans_started_total",
		Help: "Scans started, by scan type",
	}, []string{"scan_type"})

	ScansFinished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cryptooracle_scans_finished_total",
		Help: "Scans finished, by scan type and final status",
	}, []string{"scan_type", "status"})

	ScanDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "cryptooracle_scan_duration_seconds",
		Help:    "Wall-clock scan duration",
		Buckets: []float64{30, 60, 120, 240, 480, 600, 900},
	}, []string{"scan_type"})

	CoinsProcessed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cryptooracle_coins_processed_total",
		Help: "Coins fully processed across all scans",
	})

	CoinsSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cryptooracle_coins_skipped_total",
		Help: "Coins skipped during scans, by reason",
	}, []string{"reason"})

	CoinDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "cryptooracle_coin_duration_seconds",
		Help:    "Per-coin pipeline duration (fetch, features, bots, aggregation, persist)",
		Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 90},
	})

	RecommendationsCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cryptooracle_recommendations_total",
		Help: "Recommendations persisted, by consensus direction and market regime",
	}, []string{"direction", "regime"})

	BotVotes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cryptooracle_bot_votes_total",
		Help: "Bot votes cast, by bot category and direction",
	}, []string{"category", "direction"})

	BotPanics = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cryptooracle_bot_panics_total",
		Help: "Bot analyses that panicked and were counted as abstentions",
	}, []string{"bot"})

	AIRefinements = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cryptooracle_ai_refinements_total",
		Help: "AI refinement consultations, by result",
	}, []string{"result"}) // refined, unavailable, skipped
)

// Reasons for skipped coins (bounded set).
const (
	SkipReasonNoOHLCV   = "no_ohlcv"
	SkipReasonDeadline  = "deadline"
	SkipReasonCancelled = "cancelled"
	SkipReasonStablecoin = "stablecoin"
)

// Provider router metrics.
var (
	ProviderRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cryptooracle_provider_requests_total",
		Help: "Provider fetch attempts, by provider, data kind and outcome",
	}, []string{"provider", "kind", "outcome"})

	ProviderCooldowns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cryptooracle_provider_cooldowns_total",
		Help: "Rate-limit cooldowns entered, by provider",
	}, []string{"provider"})

	KindUnavailable = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cryptooracle_kind_unavailable_total",
		Help: "Fetches where every provider for a kind failed",
	}, []string{"kind"})

	CacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cryptooracle_cache_hits_total",
		Help: "Market cache hits, by data kind",
	}, []string{"kind"})

	CacheMisses = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cryptooracle_cache_misses_total",
		Help: "Market cache misses, by data kind",
	}, []string{"kind"})
)

// Provider request outcomes (bounded set).
const (
	OutcomeOK          = "ok"
	OutcomeRateLimited = "rate_limited"
	OutcomeTransient   = "transient"
	OutcomePermanent   = "permanent"
	OutcomeUnsupported = "unsupported"
)

// Outcome tracker metrics.
var (
	PricePointsSampled = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cryptooracle_price_points_total",
		Help: "Price samples appended by the outcome tracker",
	})

	TPSLEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cryptooracle_tpsl_events_total",
		Help: "Take-profit and stop-loss hits detected",
	}, []string{"event_type"})

	OutcomesSettled = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cryptooracle_outcomes_settled_total",
		Help: "Predictions settled, by final status",
	}, []string{"status"})

	PendingPredictions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "cryptooracle_pending_predictions",
		Help: "Open predictions awaiting an outcome",
	})
)

// Adaptive weighting metrics.
var (
	WeightAdjustments = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cryptooracle_weight_adjustments_total",
		Help: "Bot weight changes applied by the daily pass, by band",
	}, []string{"band"}) // strong, good, hold, poor

	BotsDisabled = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cryptooracle_bots_disabled_total",
		Help: "Bots auto-disabled for low accuracy",
	})

	BotsReenabled = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cryptooracle_bots_reenabled_total",
		Help: "Bots re-enabled into probation",
	})

	BotsEnabled = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "cryptooracle_bots_enabled",
		Help: "Bots eligible to vote in the next scan",
	})
)

// Scheduler metrics.
var (
	JobRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cryptooracle_job_runs_total",
		Help: "Scheduled job executions, by job and result",
	}, []string{"job", "result"}) // ok, error

	JobSkips = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cryptooracle_job_skips_total",
		Help: "Scheduled job slots skipped because the previous run was still in flight",
	}, []string{"job"})
)

// API metrics.
var (
	APIRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cryptooracle_api_requests_total",
		Help: "API requests, by method, route and status code",
	}, []string{"method", "route", "status"})

	APIRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "cryptooracle_api_request_duration_seconds",
		Help:    "API request latency",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
	}, []string{"method", "route"})
)

// Resource pool gauges, refreshed by the Updater.
var (
	DBConnsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "cryptooracle_db_connections_active",
		Help: "Acquired connections in the pgx pool",
	})

	DBConnsIdle = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "cryptooracle_db_connections_idle",
		Help: "Idle connections in the pgx pool",
	})

	RedisConnsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "cryptooracle_redis_connections_active",
		Help: "In-use connections in the Redis pool",
	})

	RedisConnsIdle = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "cryptooracle_redis_connections_idle",
		Help: "Idle connections in the Redis pool",
	})
)
