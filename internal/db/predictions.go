package db

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog/log"
)

// OutcomeStatus represents the evaluation state of a prediction (database enum)
type OutcomeStatus string

const (
	OutcomePending OutcomeStatus = "pending"
	OutcomeSuccess OutcomeStatus = "success"
	OutcomeFailed  OutcomeStatus = "failed"
	OutcomePartial OutcomeStatus = "partial"
)

// TPSLEventType distinguishes take-profit from stop-loss hits (database enum)
type TPSLEventType string

const (
	EventTakeProfit TPSLEventType = "TAKE_PROFIT"
	EventStopLoss   TPSLEventType = "STOP_LOSS"
)

// BotPrediction represents a single bot's persisted call for one coin
// in one scan. Outcome fields start empty and are filled by the tracker.
type BotPrediction struct {
	ID                uuid.UUID
	RunID             uuid.UUID
	BotName           string
	CoinSymbol        string
	CoinName          string
	EntryPrice        *float64
	TargetPrice       *float64
	StopLoss          *float64
	PositionDirection Direction
	ConfidenceScore   int // whole number in [1,10] at rest
	Leverage          int
	Timestamp         time.Time
	MarketRegime      string
	OutcomeStatus     OutcomeStatus
	OutcomeCheckedAt  *time.Time
	OutcomePrice      *float64
	ProfitLossPercent *float64
}

// TPSLEvent records the first take-profit or stop-loss hit for a
// prediction. At most one row exists per prediction.
type TPSLEvent struct {
	PredictionID      uuid.UUID
	EventType         TPSLEventType
	EntryPrice        *float64
	TargetPrice       *float64
	ActualHitPrice    *float64
	HitAt             time.Time
	HoursToHit        *float64
	ProfitLossPercent *float64
}

const insertBotPredictionSQL = `
	INSERT INTO bot_predictions (
		id, run_id, bot_name, coin_symbol, coin_name, entry_price,
		target_price, stop_loss, position_direction, confidence_score,
		leverage, timestamp, market_regime, outcome_status
	) VALUES (
		$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14
	)
`

func botPredictionArgs(pred *BotPrediction) []interface{} {
	return []interface{}{
		pred.ID,
		pred.RunID,
		pred.BotName,
		pred.CoinSymbol,
		pred.CoinName,
		SanitizeFloatPtr(pred.EntryPrice),
		SanitizeFloatPtr(pred.TargetPrice),
		SanitizeFloatPtr(pred.StopLoss),
		pred.PositionDirection,
		pred.ConfidenceScore,
		pred.Leverage,
		pred.Timestamp,
		pred.MarketRegime,
		pred.OutcomeStatus,
	}
}

const selectPredictionColumns = `
	id, run_id, bot_name, coin_symbol, coin_name, entry_price,
	target_price, stop_loss, position_direction, confidence_score,
	leverage, timestamp, market_regime, outcome_status,
	outcome_checked_at, outcome_price, profit_loss_percent
`

func scanBotPrediction(row pgx.Row) (*BotPrediction, error) {
	var pred BotPrediction
	if err := row.Scan(
		&pred.ID,
		&pred.RunID,
		&pred.BotName,
		&pred.CoinSymbol,
		&pred.CoinName,
		&pred.EntryPrice,
		&pred.TargetPrice,
		&pred.StopLoss,
		&pred.PositionDirection,
		&pred.ConfidenceScore,
		&pred.Leverage,
		&pred.Timestamp,
		&pred.MarketRegime,
		&pred.OutcomeStatus,
		&pred.OutcomeCheckedAt,
		&pred.OutcomePrice,
		&pred.ProfitLossPercent,
	); err != nil {
		return nil, fmt.Errorf("failed to scan prediction row: %w", err)
	}
	return &pred, nil
}

// PendingPredictions returns open predictions, oldest first, capped at limit
func (db *DB) PendingPredictions(ctx context.Context, limit int) ([]*BotPrediction, error) {
	query := `
		SELECT ` + selectPredictionColumns + `
		FROM bot_predictions
		WHERE outcome_status = $1
		ORDER BY timestamp ASC
		LIMIT $2
	`

	rows, err := db.pool.Query(ctx, query, OutcomePending, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending predictions: %w", err)
	}
	defer rows.Close()

	var preds []*BotPrediction
	for rows.Next() {
		pred, err := scanBotPrediction(rows)
		if err != nil {
			return nil, err
		}
		preds = append(preds, pred)
	}

	return preds, rows.Err()
}

// PendingCoinSymbols returns the distinct coins referenced by open
// predictions. The tracker samples prices only for these.
func (db *DB) PendingCoinSymbols(ctx context.Context) ([]string, error) {
	query := `
		SELECT DISTINCT coin_symbol
		FROM bot_predictions
		WHERE outcome_status = $1
	`

	rows, err := db.pool.Query(ctx, query, OutcomePending)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending coins: %w", err)
	}
	defer rows.Close()

	var symbols []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("failed to scan coin symbol: %w", err)
		}
		symbols = append(symbols, s)
	}

	return symbols, rows.Err()
}

// RecordTPSLHit atomically inserts the hit event and finalizes the
// prediction. Re-running for an already-finalized prediction is a no-op:
// the event insert hits the unique prediction_id constraint and the
// update is guarded on outcome_status = pending. The returned bool is
// true only when this call performed the settle.
func (db *DB) RecordTPSLHit(ctx context.Context, event *TPSLEvent, status OutcomeStatus) (bool, error) {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, `
		UPDATE bot_predictions
		SET outcome_status = $2, outcome_checked_at = $3,
		    outcome_price = $4, profit_loss_percent = $5
		WHERE id = $1 AND outcome_status = $6
	`,
		event.PredictionID,
		status,
		event.HitAt,
		SanitizeFloatPtr(event.ActualHitPrice),
		SanitizeFloatPtr(event.ProfitLossPercent),
		OutcomePending,
	)
	if err != nil {
		return false, fmt.Errorf("failed to finalize prediction: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Already finalized by an earlier sweep; nothing to do
		return false, nil
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO tpsl_events (
			prediction_id, event_type, entry_price, target_price,
			actual_hit_price, hit_at, hours_to_hit, profit_loss_percent
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (prediction_id) DO NOTHING
	`,
		event.PredictionID,
		event.EventType,
		SanitizeFloatPtr(event.EntryPrice),
		SanitizeFloatPtr(event.TargetPrice),
		SanitizeFloatPtr(event.ActualHitPrice),
		event.HitAt,
		SanitizeFloatPtr(event.HoursToHit),
		SanitizeFloatPtr(event.ProfitLossPercent),
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert TP/SL event: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("failed to commit TP/SL hit: %w", err)
	}

	log.Debug().
		Str("prediction_id", event.PredictionID.String()).
		Str("event_type", string(event.EventType)).
		Msg("TP/SL hit recorded")

	return true, nil
}

// FinalizeHorizonOutcome settles a prediction evaluated at a horizon
// without a TP/SL hit. Idempotent: only pending rows are touched. The
// returned bool is true only when this call performed the settle.
func (db *DB) FinalizeHorizonOutcome(ctx context.Context, predictionID uuid.UUID, status OutcomeStatus, price float64, plPercent float64, checkedAt time.Time) (bool, error) {
	query := `
		UPDATE bot_predictions
		SET outcome_status = $2, outcome_checked_at = $3,
		    outcome_price = $4, profit_loss_percent = $5
		WHERE id = $1 AND outcome_status = $6
	`

	tag, err := db.pool.Exec(ctx, query,
		predictionID,
		status,
		checkedAt,
		SanitizeFloat(price),
		SanitizeFloat(plPercent),
		OutcomePending,
	)
	if err != nil {
		return false, fmt.Errorf("failed to finalize horizon outcome: %w", err)
	}

	return tag.RowsAffected() > 0, nil
}

// PredictionsByRunAndCoin returns a coin's prediction rows within a run
func (db *DB) PredictionsByRunAndCoin(ctx context.Context, runID uuid.UUID, coinSymbol string) ([]*BotPrediction, error) {
	query := `
		SELECT ` + selectPredictionColumns + `
		FROM bot_predictions
		WHERE run_id = $1 AND coin_symbol = $2
		ORDER BY bot_name
	`

	rows, err := db.pool.Query(ctx, query, runID, coinSymbol)
	if err != nil {
		return nil, fmt.Errorf("failed to query predictions: %w", err)
	}
	defer rows.Close()

	var preds []*BotPrediction
	for rows.Next() {
		pred, err := scanBotPrediction(rows)
		if err != nil {
			return nil, err
		}
		preds = append(preds, pred)
	}

	return preds, rows.Err()
}

// OutcomeWindowStats holds per-(bot, regime) aggregates over settled
// predictions inside a rolling window. Consumed by the weighting engine.
type OutcomeWindowStats struct {
	BotName          string
	MarketRegime     string
	TotalPredictions int
	CorrectCount     int
	WinCount         int
	AvgProfitLoss    *float64
}

// OutcomeStatsSince aggregates settled outcomes per (bot, regime) for
// predictions stamped after the cutoff. Correct means the call settled
// as success; a win is any settle with positive realized P/L.
func (db *DB) OutcomeStatsSince(ctx context.Context, cutoff time.Time) ([]*OutcomeWindowStats, error) {
	query := `
		SELECT bot_name, market_regime,
		       COUNT(*) AS total,
		       COUNT(*) FILTER (WHERE outcome_status = 'success') AS correct,
		       COUNT(*) FILTER (WHERE profit_loss_percent > 0) AS wins,
		       AVG(profit_loss_percent) AS avg_pl
		FROM bot_predictions
		WHERE outcome_status <> 'pending' AND timestamp >= $1
		GROUP BY bot_name, market_regime
	`

	rows, err := db.pool.Query(ctx, query, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to query outcome stats: %w", err)
	}
	defer rows.Close()

	var stats []*OutcomeWindowStats
	for rows.Next() {
		var s OutcomeWindowStats
		if err := rows.Scan(&s.BotName, &s.MarketRegime, &s.TotalPredictions, &s.CorrectCount, &s.WinCount, &s.AvgProfitLoss); err != nil {
			return nil, fmt.Errorf("failed to scan outcome stats: %w", err)
		}
		stats = append(stats, &s)
	}

	return stats, rows.Err()
}
