package db

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// WeightChange is one entry in a bot's append-only weight history
type WeightChange struct {
	At     time.Time `json:"at"`
	From   float64   `json:"from"`
	To     float64   `json:"to"`
	Reason string    `json:"reason"`
}

// BotAccuracyMetrics tracks a bot's performance within one market
// regime. One row per (bot_name, market_regime) pair.
type BotAccuracyMetrics struct {
	BotName            string
	MarketRegime       string
	TotalPredictions   int
	CorrectPredictions int
	AccuracyRate       *float64
	AvgProfitLoss      *float64
	WinRate            *float64
	Last7dAccuracy     *float64
	Last30dAccuracy    *float64
	CurrentWeight      float64
	IsEnabled          bool
	AutoDisabledAt     *time.Time
	AutoDisabledReason *string
	WeightHistory      []WeightChange
	UpdatedAt          time.Time
}

// BotGuardrails holds per-bot probation state and trading limits.
// Guardrails apply to the bot across all regimes.
type BotGuardrails struct {
	BotName                  string
	IsOnProbation            bool
	ProbationStart           *time.Time
	ProbationEnd             *time.Time
	ProbationPredictions     int
	ProbationCorrect         int
	TimesDisabled            int
	TimesReenabled           int
	PermanentlyDisabled      bool
	MaxLeverage              int
	MinConfidenceRequired    float64
	StopLossMultiplier       float64
	MaxPositionSizePercent   float64
	IsProbationMode          bool
	UpdatedAt                time.Time
}

const selectMetricsColumns = `
	bot_name, market_regime, total_predictions, correct_predictions,
	accuracy_rate, avg_profit_loss, win_rate, last_7d_accuracy,
	last_30d_accuracy, current_weight, is_enabled, auto_disabled_at,
	auto_disabled_reason, weight_history, updated_at
`

func scanBotMetrics(row pgx.Row) (*BotAccuracyMetrics, error) {
	var m BotAccuracyMetrics
	var history []byte
	if err := row.Scan(
		&m.BotName,
		&m.MarketRegime,
		&m.TotalPredictions,
		&m.CorrectPredictions,
		&m.AccuracyRate,
		&m.AvgProfitLoss,
		&m.WinRate,
		&m.Last7dAccuracy,
		&m.Last30dAccuracy,
		&m.CurrentWeight,
		&m.IsEnabled,
		&m.AutoDisabledAt,
		&m.AutoDisabledReason,
		&history,
		&m.UpdatedAt,
	); err != nil {
		return nil, fmt.Errorf("failed to scan bot metrics row: %w", err)
	}
	if len(history) > 0 {
		if err := json.Unmarshal(history, &m.WeightHistory); err != nil {
			return nil, fmt.Errorf("failed to decode weight history for %s: %w", m.BotName, err)
		}
	}
	return &m, nil
}

// GetBotMetrics retrieves one (bot, regime) metrics row, or nil if the
// pair has never been rolled up
func (db *DB) GetBotMetrics(ctx context.Context, botName, regime string) (*BotAccuracyMetrics, error) {
	query := `
		SELECT ` + selectMetricsColumns + `
		FROM bot_accuracy_metrics
		WHERE bot_name = $1 AND market_regime = $2
	`

	m, err := scanBotMetrics(db.pool.QueryRow(ctx, query, botName, regime))
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, err
	}
	return m, nil
}

// ListBotMetrics returns every metrics row. The scan orchestrator loads
// this once at run start and works from the in-memory copy.
func (db *DB) ListBotMetrics(ctx context.Context) ([]*BotAccuracyMetrics, error) {
	query := `
		SELECT ` + selectMetricsColumns + `
		FROM bot_accuracy_metrics
		ORDER BY bot_name, market_regime
	`

	rows, err := db.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query bot metrics: %w", err)
	}
	defer rows.Close()

	var metrics []*BotAccuracyMetrics
	for rows.Next() {
		m, err := scanBotMetrics(rows)
		if err != nil {
			return nil, err
		}
		metrics = append(metrics, m)
	}

	return metrics, rows.Err()
}

// UpsertRollup writes recomputed accuracy figures for a (bot, regime)
// pair. Weight and enablement are owned by the daily adjustment and are
// deliberately left untouched on conflict.
func (db *DB) UpsertRollup(ctx context.Context, m *BotAccuracyMetrics) error {
	query := `
		INSERT INTO bot_accuracy_metrics (
			bot_name, market_regime, total_predictions, correct_predictions,
			accuracy_rate, avg_profit_loss, win_rate, last_7d_accuracy,
			last_30d_accuracy, current_weight, is_enabled
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (bot_name, market_regime) DO UPDATE SET
			total_predictions = EXCLUDED.total_predictions,
			correct_predictions = EXCLUDED.correct_predictions,
			accuracy_rate = EXCLUDED.accuracy_rate,
			avg_profit_loss = EXCLUDED.avg_profit_loss,
			win_rate = EXCLUDED.win_rate,
			last_7d_accuracy = EXCLUDED.last_7d_accuracy,
			last_30d_accuracy = EXCLUDED.last_30d_accuracy,
			updated_at = NOW()
	`

	_, err := db.pool.Exec(ctx, query,
		m.BotName,
		m.MarketRegime,
		m.TotalPredictions,
		m.CorrectPredictions,
		SanitizeFloatPtr(m.AccuracyRate),
		SanitizeFloatPtr(m.AvgProfitLoss),
		SanitizeFloatPtr(m.WinRate),
		SanitizeFloatPtr(m.Last7dAccuracy),
		SanitizeFloatPtr(m.Last30dAccuracy),
		m.CurrentWeight,
		m.IsEnabled,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert rollup for %s/%s: %w", m.BotName, m.MarketRegime, err)
	}

	return nil
}

// UpdateBotWeight sets a new weight and appends the change to the
// weight history in a single statement. The history entry captures the
// pre-update weight because SET expressions see the old row.
func (db *DB) UpdateBotWeight(ctx context.Context, botName, regime string, newWeight float64, reason string) error {
	query := `
		UPDATE bot_accuracy_metrics
		SET current_weight = $3,
		    weight_history = weight_history || jsonb_build_array(jsonb_build_object(
		        'at', NOW(), 'from', current_weight, 'to', $3::float8, 'reason', $4::text)),
		    updated_at = NOW()
		WHERE bot_name = $1 AND market_regime = $2
	`

	tag, err := db.pool.Exec(ctx, query, botName, regime, newWeight, reason)
	if err != nil {
		return fmt.Errorf("failed to update weight for %s/%s: %w", botName, regime, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("no metrics row for %s/%s", botName, regime)
	}

	return nil
}

// DisableBot marks a (bot, regime) pair disabled with a reason
func (db *DB) DisableBot(ctx context.Context, botName, regime, reason string) error {
	query := `
		UPDATE bot_accuracy_metrics
		SET is_enabled = FALSE, auto_disabled_at = NOW(),
		    auto_disabled_reason = $3, updated_at = NOW()
		WHERE bot_name = $1 AND market_regime = $2
	`

	_, err := db.pool.Exec(ctx, query, botName, regime, reason)
	if err != nil {
		return fmt.Errorf("failed to disable %s/%s: %w", botName, regime, err)
	}

	return nil
}

// ReenableBot clears the disabled flags on every regime row for a bot
func (db *DB) ReenableBot(ctx context.Context, botName string) error {
	query := `
		UPDATE bot_accuracy_metrics
		SET is_enabled = TRUE, auto_disabled_at = NULL,
		    auto_disabled_reason = NULL, updated_at = NOW()
		WHERE bot_name = $1
	`

	_, err := db.pool.Exec(ctx, query, botName)
	if err != nil {
		return fmt.Errorf("failed to re-enable %s: %w", botName, err)
	}

	return nil
}

// DisabledBotsSince returns names of bots whose every disabled row has
// been disabled for at least the given duration. These are candidates
// for re-enable with probation.
func (db *DB) DisabledBotsSince(ctx context.Context, minAge time.Duration) ([]string, error) {
	query := `
		SELECT DISTINCT bot_name
		FROM bot_accuracy_metrics
		WHERE is_enabled = FALSE
		  AND auto_disabled_at < NOW() - $1::interval
	`

	rows, err := db.pool.Query(ctx, query, fmt.Sprintf("%d seconds", int(minAge.Seconds())))
	if err != nil {
		return nil, fmt.Errorf("failed to query disabled bots: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, fmt.Errorf("failed to scan bot name: %w", err)
		}
		names = append(names, n)
	}

	return names, rows.Err()
}

const selectGuardrailsColumns = `
	bot_name, is_on_probation, probation_start, probation_end,
	probation_predictions_count, probation_correct_count, times_disabled,
	times_reenabled, permanently_disabled, max_leverage,
	min_confidence_required, stop_loss_multiplier,
	max_position_size_percent, is_probation_mode, updated_at
`

func scanGuardrails(row pgx.Row) (*BotGuardrails, error) {
	var g BotGuardrails
	if err := row.Scan(
		&g.BotName,
		&g.IsOnProbation,
		&g.ProbationStart,
		&g.ProbationEnd,
		&g.ProbationPredictions,
		&g.ProbationCorrect,
		&g.TimesDisabled,
		&g.TimesReenabled,
		&g.PermanentlyDisabled,
		&g.MaxLeverage,
		&g.MinConfidenceRequired,
		&g.StopLossMultiplier,
		&g.MaxPositionSizePercent,
		&g.IsProbationMode,
		&g.UpdatedAt,
	); err != nil {
		return nil, fmt.Errorf("failed to scan guardrails row: %w", err)
	}
	return &g, nil
}

// GetBotGuardrails retrieves a bot's guardrails, or nil when the bot
// has never been disabled or put on probation
func (db *DB) GetBotGuardrails(ctx context.Context, botName string) (*BotGuardrails, error) {
	query := `
		SELECT ` + selectGuardrailsColumns + `
		FROM bot_guardrails
		WHERE bot_name = $1
	`

	g, err := scanGuardrails(db.pool.QueryRow(ctx, query, botName))
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, err
	}
	return g, nil
}

// ListGuardrails returns guardrails for every bot that has a row
func (db *DB) ListGuardrails(ctx context.Context) ([]*BotGuardrails, error) {
	query := `
		SELECT ` + selectGuardrailsColumns + `
		FROM bot_guardrails
		ORDER BY bot_name
	`

	rows, err := db.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query guardrails: %w", err)
	}
	defer rows.Close()

	var all []*BotGuardrails
	for rows.Next() {
		g, err := scanGuardrails(rows)
		if err != nil {
			return nil, err
		}
		all = append(all, g)
	}

	return all, rows.Err()
}

// UpsertBotGuardrails inserts or fully replaces a bot's guardrails row
func (db *DB) UpsertBotGuardrails(ctx context.Context, g *BotGuardrails) error {
	query := `
		INSERT INTO bot_guardrails (
			bot_name, is_on_probation, probation_start, probation_end,
			probation_predictions_count, probation_correct_count,
			times_disabled, times_reenabled, permanently_disabled,
			max_leverage, min_confidence_required, stop_loss_multiplier,
			max_position_size_percent, is_probation_mode
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (bot_name) DO UPDATE SET
			is_on_probation = EXCLUDED.is_on_probation,
			probation_start = EXCLUDED.probation_start,
			probation_end = EXCLUDED.probation_end,
			probation_predictions_count = EXCLUDED.probation_predictions_count,
			probation_correct_count = EXCLUDED.probation_correct_count,
			times_disabled = EXCLUDED.times_disabled,
			times_reenabled = EXCLUDED.times_reenabled,
			permanently_disabled = EXCLUDED.permanently_disabled,
			max_leverage = EXCLUDED.max_leverage,
			min_confidence_required = EXCLUDED.min_confidence_required,
			stop_loss_multiplier = EXCLUDED.stop_loss_multiplier,
			max_position_size_percent = EXCLUDED.max_position_size_percent,
			is_probation_mode = EXCLUDED.is_probation_mode,
			updated_at = NOW()
	`

	_, err := db.pool.Exec(ctx, query,
		g.BotName,
		g.IsOnProbation,
		g.ProbationStart,
		g.ProbationEnd,
		g.ProbationPredictions,
		g.ProbationCorrect,
		g.TimesDisabled,
		g.TimesReenabled,
		g.PermanentlyDisabled,
		g.MaxLeverage,
		g.MinConfidenceRequired,
		g.StopLossMultiplier,
		g.MaxPositionSizePercent,
		g.IsProbationMode,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert guardrails for %s: %w", g.BotName, err)
	}

	return nil
}

// RecordProbationPrediction bumps a probationary bot's counters after a
// prediction settles
func (db *DB) RecordProbationPrediction(ctx context.Context, botName string, correct bool) error {
	query := `
		UPDATE bot_guardrails
		SET probation_predictions_count = probation_predictions_count + 1,
		    probation_correct_count = probation_correct_count + CASE WHEN $2 THEN 1 ELSE 0 END,
		    updated_at = NOW()
		WHERE bot_name = $1 AND is_on_probation = TRUE
	`

	_, err := db.pool.Exec(ctx, query, botName, correct)
	if err != nil {
		return fmt.Errorf("failed to record probation prediction for %s: %w", botName, err)
	}

	return nil
}
