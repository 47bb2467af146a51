package db

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog/log"
)

// Direction represents a trade direction (database enum)
type Direction string

const (
	DirectionLong  Direction = "LONG"
	DirectionShort Direction = "SHORT"
)

// Recommendation represents the aggregated per-coin output of a scan.
// Rows are append-only; a recommendation is never mutated after insert.
type Recommendation struct {
	ID                      uuid.UUID
	RunID                   uuid.UUID
	Coin                    string
	Ticker                  string
	CurrentPrice            *float64
	ConsensusDirection      Direction
	AvgConfidence           *float64 // [0,1]
	BotCount                int
	LongBots                int
	ShortBots               int
	AvgEntry                *float64
	AvgTakeProfit           *float64
	AvgStopLoss             *float64
	Predicted24h            *float64
	Predicted48h            *float64
	Predicted7d             *float64
	PredictedChange24h      *float64
	PredictedChange48h      *float64
	PredictedChange7d       *float64
	MarketRegime            string
	RegimeConfidence        *float64
	AIReasoning             *string
	ActionPlan              *string
	RiskAssessment          *string
	MarketContext           *string
	TimeframeAlignmentScore *float64
	DominantTimeframeRegime *string
	OnchainSignal           *string
	SocialSentimentScore    *float64
	CreatedAt               time.Time
}

const insertRecommendationSQL = `
	INSERT INTO recommendations (
		id, run_id, coin, ticker, current_price, consensus_direction,
		avg_confidence, bot_count, long_bots, short_bots, avg_entry,
		avg_take_profit, avg_stop_loss, predicted_24h, predicted_48h,
		predicted_7d, predicted_change_24h, predicted_change_48h,
		predicted_change_7d, market_regime, regime_confidence,
		ai_reasoning, action_plan, risk_assessment, market_context,
		timeframe_alignment_score, dominant_timeframe_regime,
		onchain_signal, social_sentiment_score, created_at
	) VALUES (
		$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15,
		$16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26, $27, $28,
		$29, $30
	)
`

func recommendationArgs(rec *Recommendation) []interface{} {
	return []interface{}{
		rec.ID,
		rec.RunID,
		rec.Coin,
		rec.Ticker,
		SanitizeFloatPtr(rec.CurrentPrice),
		rec.ConsensusDirection,
		SanitizeFloatPtr(rec.AvgConfidence),
		rec.BotCount,
		rec.LongBots,
		rec.ShortBots,
		SanitizeFloatPtr(rec.AvgEntry),
		SanitizeFloatPtr(rec.AvgTakeProfit),
		SanitizeFloatPtr(rec.AvgStopLoss),
		SanitizeFloatPtr(rec.Predicted24h),
		SanitizeFloatPtr(rec.Predicted48h),
		SanitizeFloatPtr(rec.Predicted7d),
		SanitizeFloatPtr(rec.PredictedChange24h),
		SanitizeFloatPtr(rec.PredictedChange48h),
		SanitizeFloatPtr(rec.PredictedChange7d),
		rec.MarketRegime,
		SanitizeFloatPtr(rec.RegimeConfidence),
		rec.AIReasoning,
		rec.ActionPlan,
		rec.RiskAssessment,
		rec.MarketContext,
		SanitizeFloatPtr(rec.TimeframeAlignmentScore),
		rec.DominantTimeframeRegime,
		rec.OnchainSignal,
		SanitizeFloatPtr(rec.SocialSentimentScore),
		rec.CreatedAt,
	}
}

// SaveCoinResult persists one recommendation together with its per-bot
// prediction rows in a single transaction. Either all rows land or none:
// a cancelled or failed coin task must not leave partial state behind.
func (db *DB) SaveCoinResult(ctx context.Context, rec *Recommendation, preds []*BotPrediction) error {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	batch := &pgx.Batch{}
	batch.Queue(insertRecommendationSQL, recommendationArgs(rec)...)
	for _, pred := range preds {
		batch.Queue(insertBotPredictionSQL, botPredictionArgs(pred)...)
	}

	br := tx.SendBatch(ctx, batch)
	for i := 0; i < batch.Len(); i++ {
		if _, err := br.Exec(); err != nil {
			_ = br.Close()
			return fmt.Errorf("failed to persist coin result (stmt %d): %w", i, err)
		}
	}
	if err := br.Close(); err != nil {
		return fmt.Errorf("failed to close batch: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit coin result: %w", err)
	}

	log.Debug().
		Str("run_id", rec.RunID.String()).
		Str("ticker", rec.Ticker).
		Int("bot_count", rec.BotCount).
		Msg("Coin result persisted")

	return nil
}

// ListRecommendationsByRun returns all recommendations for a run,
// strongest confidence first.
func (db *DB) ListRecommendationsByRun(ctx context.Context, runID uuid.UUID) ([]*Recommendation, error) {
	query := `
		SELECT id, run_id, coin, ticker, current_price, consensus_direction,
		       avg_confidence, bot_count, long_bots, short_bots, avg_entry,
		       avg_take_profit, avg_stop_loss, predicted_24h, predicted_48h,
		       predicted_7d, predicted_change_24h, predicted_change_48h,
		       predicted_change_7d, market_regime, regime_confidence,
		       ai_reasoning, action_plan, risk_assessment, market_context,
		       timeframe_alignment_score, dominant_timeframe_regime,
		       onchain_signal, social_sentiment_score, created_at
		FROM recommendations
		WHERE run_id = $1
		ORDER BY avg_confidence DESC NULLS LAST
	`

	rows, err := db.pool.Query(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list recommendations: %w", err)
	}
	defer rows.Close()

	var recs []*Recommendation
	for rows.Next() {
		rec, err := scanRecommendation(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}

	return recs, rows.Err()
}

func scanRecommendation(row pgx.Row) (*Recommendation, error) {
	var rec Recommendation
	if err := row.Scan(
		&rec.ID,
		&rec.RunID,
		&rec.Coin,
		&rec.Ticker,
		&rec.CurrentPrice,
		&rec.ConsensusDirection,
		&rec.AvgConfidence,
		&rec.BotCount,
		&rec.LongBots,
		&rec.ShortBots,
		&rec.AvgEntry,
		&rec.AvgTakeProfit,
		&rec.AvgStopLoss,
		&rec.Predicted24h,
		&rec.Predicted48h,
		&rec.Predicted7d,
		&rec.PredictedChange24h,
		&rec.PredictedChange48h,
		&rec.PredictedChange7d,
		&rec.MarketRegime,
		&rec.RegimeConfidence,
		&rec.AIReasoning,
		&rec.ActionPlan,
		&rec.RiskAssessment,
		&rec.MarketContext,
		&rec.TimeframeAlignmentScore,
		&rec.DominantTimeframeRegime,
		&rec.OnchainSignal,
		&rec.SocialSentimentScore,
		&rec.CreatedAt,
	); err != nil {
		return nil, fmt.Errorf("failed to scan recommendation row: %w", err)
	}
	return &rec, nil
}

// TopRecommendations returns the highest-confidence recommendations for
// a run, capped at limit.
func (db *DB) TopRecommendations(ctx context.Context, runID uuid.UUID, limit int) ([]*Recommendation, error) {
	query := `
		SELECT id, run_id, coin, ticker, current_price, consensus_direction,
		       avg_confidence, bot_count, long_bots, short_bots, avg_entry,
		       avg_take_profit, avg_stop_loss, predicted_24h, predicted_48h,
		       predicted_7d, predicted_change_24h, predicted_change_48h,
		       predicted_change_7d, market_regime, regime_confidence,
		       ai_reasoning, action_plan, risk_assessment, market_context,
		       timeframe_alignment_score, dominant_timeframe_regime,
		       onchain_signal, social_sentiment_score, created_at
		FROM recommendations
		WHERE run_id = $1
		ORDER BY avg_confidence DESC NULLS LAST
		LIMIT $2
	`

	rows, err := db.pool.Query(ctx, query, runID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query top recommendations: %w", err)
	}
	defer rows.Close()

	var recs []*Recommendation
	for rows.Next() {
		rec, err := scanRecommendation(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}

	return recs, rows.Err()
}
