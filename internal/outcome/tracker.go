// Package outcome closes the loop on bot predictions: it samples
// prices for coins with open predictions, detects take-profit and
// stop-loss crossings, and settles whatever remains at the 24h, 48h
// and 7d horizons. Every write is idempotent; re-running a sweep over
// already-settled predictions changes nothing.
package outcome

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/CodyDvorak/CryptoOracle-sub001/internal/db"
	"github.com/CodyDvorak/CryptoOracle-sub001/internal/market"
	"github.com/CodyDvorak/CryptoOracle-sub001/internal/metrics"
)

const (
	horizon24h = 24 * time.Hour
	horizon48h = 48 * time.Hour
	horizon7d  = 7 * 24 * time.Hour

	// partialProgress is how far toward target a losing prediction
	// must have travelled at its best to count as partial.
	partialProgress = 0.5

	defaultBatchSize = 500
)

// Store is the persistence surface the tracker needs.
type Store interface {
	PendingCoinSymbols(ctx context.Context) ([]string, error)
	PendingPredictions(ctx context.Context, limit int) ([]*db.BotPrediction, error)
	InsertPricePoints(ctx context.Context, points []*db.PricePoint) error
	LatestPrice(ctx context.Context, coin string) (*db.PricePoint, error)
	PriceHistory(ctx context.Context, coin string, since time.Time) ([]*db.PricePoint, error)
	RecordTPSLHit(ctx context.Context, event *db.TPSLEvent, status db.OutcomeStatus) (bool, error)
	FinalizeHorizonOutcome(ctx context.Context, predictionID uuid.UUID, status db.OutcomeStatus, price, plPercent float64, checkedAt time.Time) (bool, error)
	RecordProbationPrediction(ctx context.Context, botName string, correct bool) error
}

// Quoter is the market surface used for price sampling.
type Quoter interface {
	Quote(ctx context.Context, symbol string) (*market.Quote, error)
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithBatchSize caps how many open predictions one sweep loads.
func WithBatchSize(n int) Option {
	return func(t *Tracker) {
		if n > 0 {
			t.batchSize = n
		}
	}
}

// WithClock overrides the time source. Tests only.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// Tracker runs the sampling and evaluation sweeps.
type Tracker struct {
	store     Store
	quotes    Quoter
	batchSize int
	now       func() time.Time
	log       zerolog.Logger
}

// NewTracker wires a tracker over the store and quote source.
func NewTracker(store Store, quotes Quoter, opts ...Option) *Tracker {
	t := &Tracker{
		store:     store,
		quotes:    quotes,
		batchSize: defaultBatchSize,
		now:       func() time.Time { return time.Now().UTC() },
		log:       log.With().Str("component", "outcome").Logger(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// SamplePrices appends one price point per coin that still has open
// predictions. Coins whose quote is unavailable are skipped; the
// batch persists whatever could be fetched.
func (t *Tracker) SamplePrices(ctx context.Context) error {
	symbols, err := t.store.PendingCoinSymbols(ctx)
	if err != nil {
		return fmt.Errorf("failed to list pending coins: %w", err)
	}
	if len(symbols) == 0 {
		return nil
	}

	now := t.now()
	points := make([]*db.PricePoint, 0, len(symbols))
	for _, sym := range symbols {
		if err := ctx.Err(); err != nil {
			return err
		}
		quote, err := t.quotes.Quote(ctx, sym)
		if err != nil {
			t.log.Debug().Err(err).Str("symbol", sym).Msg("Price sample unavailable")
			continue
		}
		points = append(points, &db.PricePoint{
			Coin:       sym,
			Price:      quote.Price,
			Volume24h:  quote.Volume24h,
			MarketCap:  quote.MarketCap,
			RecordedAt: now,
		})
	}

	if err := t.store.InsertPricePoints(ctx, points); err != nil {
		return fmt.Errorf("failed to persist price samples: %w", err)
	}

	metrics.PricePointsSampled.Add(float64(len(points)))
	t.log.Debug().Int("coins", len(symbols)).Int("sampled", len(points)).Msg("Price sweep done")
	return nil
}

// EvaluateOpenPredictions runs one TP/SL and horizon sweep over the
// open prediction backlog.
func (t *Tracker) EvaluateOpenPredictions(ctx context.Context) error {
	preds, err := t.store.PendingPredictions(ctx, t.batchSize)
	if err != nil {
		return fmt.Errorf("failed to load open predictions: %w", err)
	}
	if len(preds) == 0 {
		return nil
	}

	prices := map[string]*db.PricePoint{}
	settled := 0
	for _, pred := range preds {
		if err := ctx.Err(); err != nil {
			return err
		}

		price, ok := prices[pred.CoinSymbol]
		if !ok {
			price, err = t.store.LatestPrice(ctx, pred.CoinSymbol)
			if err != nil {
				t.log.Warn().Err(err).Str("symbol", pred.CoinSymbol).Msg("No price for open prediction")
				prices[pred.CoinSymbol] = nil
				continue
			}
			prices[pred.CoinSymbol] = price
		}
		if price == nil {
			continue
		}

		done, err := t.evaluate(ctx, pred, price.Price)
		if err != nil {
			return err
		}
		if done {
			settled++
		}
	}

	if settled > 0 {
		t.log.Info().Int("open", len(preds)).Int("settled", settled).Msg("Outcome sweep done")
	}
	return nil
}

// evaluate settles one prediction if the current price or its age
// warrants it.
func (t *Tracker) evaluate(ctx context.Context, pred *db.BotPrediction, price float64) (bool, error) {
	if pred.EntryPrice == nil || pred.TargetPrice == nil || pred.StopLoss == nil {
		return false, nil
	}

	if event, status := t.checkTPSL(pred, price); event != nil {
		settled, err := t.store.RecordTPSLHit(ctx, event, status)
		if err != nil {
			return false, err
		}
		if settled {
			metrics.TPSLEvents.WithLabelValues(string(event.EventType)).Inc()
			metrics.OutcomesSettled.WithLabelValues(string(status)).Inc()
			if err := t.store.RecordProbationPrediction(ctx, pred.BotName, status == db.OutcomeSuccess); err != nil {
				t.log.Warn().Err(err).Str("bot", pred.BotName).Msg("Probation counter update failed")
			}
		}
		return settled, nil
	}

	return t.checkHorizon(ctx, pred, price)
}

// checkTPSL reports the first TP or SL crossing, if any. TP wins when
// a single observation satisfies both sides.
func (t *Tracker) checkTPSL(pred *db.BotPrediction, price float64) (*db.TPSLEvent, db.OutcomeStatus) {
	entry := *pred.EntryPrice
	target := *pred.TargetPrice
	stop := *pred.StopLoss
	dir := directionSign(pred.PositionDirection)

	var eventType db.TPSLEventType
	var status db.OutcomeStatus
	switch {
	case dir > 0 && price >= target, dir < 0 && price <= target:
		eventType = db.EventTakeProfit
		status = db.OutcomeSuccess
	case dir > 0 && price <= stop, dir < 0 && price >= stop:
		eventType = db.EventStopLoss
		status = db.OutcomeFailed
	default:
		return nil, ""
	}

	now := t.now()
	hours := now.Sub(pred.Timestamp).Hours()
	pl := leveragedPL(dir, entry, price, pred.Leverage)
	return &db.TPSLEvent{
		PredictionID:      pred.ID,
		EventType:         eventType,
		EntryPrice:        pred.EntryPrice,
		TargetPrice:       pred.TargetPrice,
		ActualHitPrice:    &price,
		HitAt:             now,
		HoursToHit:        &hours,
		ProfitLossPercent: &pl,
	}, status
}

// checkHorizon settles by age. The 24h and 48h sweeps only bank clear
// successes; everything still open at 7d settles for good, with the
// price history deciding between partial and failed.
func (t *Tracker) checkHorizon(ctx context.Context, pred *db.BotPrediction, price float64) (bool, error) {
	now := t.now()
	age := now.Sub(pred.Timestamp)
	if age < horizon24h {
		return false, nil
	}

	entry := *pred.EntryPrice
	dir := directionSign(pred.PositionDirection)
	correct := dir*(price-entry) > 0
	pl := leveragedPL(dir, entry, price, pred.Leverage)

	var status db.OutcomeStatus
	switch {
	case correct:
		status = db.OutcomeSuccess
	case age < horizon7d:
		// Wrong side of entry but the week is not over; the TP may
		// still print.
		return false, nil
	default:
		status = db.OutcomeFailed
		best, err := t.bestProgress(ctx, pred)
		if err != nil {
			return false, err
		}
		if best >= partialProgress {
			status = db.OutcomePartial
		}
	}

	settled, err := t.store.FinalizeHorizonOutcome(ctx, pred.ID, status, price, pl, now)
	if err != nil {
		return false, err
	}
	if settled {
		metrics.OutcomesSettled.WithLabelValues(string(status)).Inc()
		if err := t.store.RecordProbationPrediction(ctx, pred.BotName, status == db.OutcomeSuccess); err != nil {
			t.log.Warn().Err(err).Str("bot", pred.BotName).Msg("Probation counter update failed")
		}
	}
	return settled, nil
}

// bestProgress returns the prediction's maximum favorable excursion
// as a fraction of the entry-to-target distance.
func (t *Tracker) bestProgress(ctx context.Context, pred *db.BotPrediction) (float64, error) {
	history, err := t.store.PriceHistory(ctx, pred.CoinSymbol, pred.Timestamp)
	if err != nil {
		return 0, fmt.Errorf("failed to load price history: %w", err)
	}

	entry := *pred.EntryPrice
	target := *pred.TargetPrice
	span := target - entry
	if span == 0 {
		return 0, nil
	}

	best := 0.0
	for _, p := range history {
		progress := (p.Price - entry) / span
		if progress > best {
			best = progress
		}
	}
	return best, nil
}

func directionSign(d db.Direction) float64 {
	if d == db.DirectionShort {
		return -1
	}
	return 1
}

// leveragedPL is the realized P/L percentage of a position closed at
// price, signed by direction and scaled by leverage.
func leveragedPL(dir, entry, price float64, leverage int) float64 {
	if entry == 0 {
		return 0
	}
	lev := float64(leverage)
	if lev < 1 {
		lev = 1
	}
	return dir * (price - entry) / entry * 100 * lev
}
