package db

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog/log"
)

// ScanStatus represents scan run status (database enum)
type ScanStatus string

const (
	ScanStatusRunning   ScanStatus = "running"
	ScanStatusCompleted ScanStatus = "completed"
	ScanStatusFailed    ScanStatus = "failed"
)

// FilterScope restricts the scan universe (database enum)
type FilterScope string

const (
	FilterScopeAll FilterScope = "all"
	FilterScopeAlt FilterScope = "alt"
)

// ScanRun represents one orchestrated scan
type ScanRun struct {
	ID                  uuid.UUID
	StartedAt           time.Time
	CompletedAt         *time.Time
	Status              ScanStatus
	ScanType            string
	FilterScope         FilterScope
	MinPrice            *float64
	MaxPrice            *float64
	CoinLimit           int
	ConfidenceThreshold float64
	TotalCoins          int
	TotalBots           int
	TotalSignals        int
	Error               *string
}

// InsertScanRun creates the row for a newly started scan
func (db *DB) InsertScanRun(ctx context.Context, run *ScanRun) error {
	query := `
		INSERT INTO scan_runs (
			id, started_at, status, scan_type, filter_scope, min_price,
			max_price, coin_limit, confidence_threshold, total_coins,
			total_bots, total_signals
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12
		)
	`

	_, err := db.pool.Exec(ctx, query,
		run.ID,
		run.StartedAt,
		run.Status,
		run.ScanType,
		run.FilterScope,
		SanitizeFloatPtr(run.MinPrice),
		SanitizeFloatPtr(run.MaxPrice),
		run.CoinLimit,
		run.ConfidenceThreshold,
		run.TotalCoins,
		run.TotalBots,
		run.TotalSignals,
	)
	if err != nil {
		return fmt.Errorf("failed to insert scan run: %w", err)
	}

	log.Debug().
		Str("run_id", run.ID.String()).
		Str("scan_type", run.ScanType).
		Msg("Scan run created")

	return nil
}

// UpdateScanRunCounters refreshes the progress counters of a running scan
func (db *DB) UpdateScanRunCounters(ctx context.Context, runID uuid.UUID, totalCoins, totalBots, totalSignals int) error {
	query := `
		UPDATE scan_runs
		SET total_coins = $2, total_bots = $3, total_signals = $4
		WHERE id = $1
	`

	_, err := db.pool.Exec(ctx, query, runID, totalCoins, totalBots, totalSignals)
	if err != nil {
		return fmt.Errorf("failed to update scan run counters: %w", err)
	}

	return nil
}

// CompleteScanRun marks a scan as completed with its final counters
func (db *DB) CompleteScanRun(ctx context.Context, runID uuid.UUID, totalCoins, totalBots, totalSignals int) error {
	query := `
		UPDATE scan_runs
		SET status = $2, completed_at = NOW(),
		    total_coins = $3, total_bots = $4, total_signals = $5
		WHERE id = $1
	`

	_, err := db.pool.Exec(ctx, query, runID, ScanStatusCompleted, totalCoins, totalBots, totalSignals)
	if err != nil {
		return fmt.Errorf("failed to complete scan run: %w", err)
	}

	log.Info().
		Str("run_id", runID.String()).
		Int("total_coins", totalCoins).
		Int("total_signals", totalSignals).
		Msg("Scan run completed")

	return nil
}

// FailScanRun marks a scan as failed with an error message
func (db *DB) FailScanRun(ctx context.Context, runID uuid.UUID, errMsg string) error {
	query := `
		UPDATE scan_runs
		SET status = $2, completed_at = NOW(), error = $3
		WHERE id = $1
	`

	_, err := db.pool.Exec(ctx, query, runID, ScanStatusFailed, errMsg)
	if err != nil {
		return fmt.Errorf("failed to mark scan run failed: %w", err)
	}

	log.Warn().
		Str("run_id", runID.String()).
		Str("error", errMsg).
		Msg("Scan run failed")

	return nil
}

// GetScanRun fetches a scan run by id
func (db *DB) GetScanRun(ctx context.Context, runID uuid.UUID) (*ScanRun, error) {
	query := `
		SELECT id, started_at, completed_at, status, scan_type, filter_scope,
		       min_price, max_price, coin_limit, confidence_threshold,
		       total_coins, total_bots, total_signals, error
		FROM scan_runs
		WHERE id = $1
	`

	var run ScanRun
	err := db.pool.QueryRow(ctx, query, runID).Scan(
		&run.ID,
		&run.StartedAt,
		&run.CompletedAt,
		&run.Status,
		&run.ScanType,
		&run.FilterScope,
		&run.MinPrice,
		&run.MaxPrice,
		&run.CoinLimit,
		&run.ConfidenceThreshold,
		&run.TotalCoins,
		&run.TotalBots,
		&run.TotalSignals,
		&run.Error,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get scan run: %w", err)
	}

	return &run, nil
}

// ListRecentScanRuns returns the most recent scan runs, newest first
func (db *DB) ListRecentScanRuns(ctx context.Context, limit int) ([]*ScanRun, error) {
	query := `
		SELECT id, started_at, completed_at, status, scan_type, filter_scope,
		       min_price, max_price, coin_limit, confidence_threshold,
		       total_coins, total_bots, total_signals, error
		FROM scan_runs
		ORDER BY started_at DESC
		LIMIT $1
	`

	rows, err := db.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list scan runs: %w", err)
	}
	defer rows.Close()

	var runs []*ScanRun
	for rows.Next() {
		var run ScanRun
		if err := rows.Scan(
			&run.ID,
			&run.StartedAt,
			&run.CompletedAt,
			&run.Status,
			&run.ScanType,
			&run.FilterScope,
			&run.MinPrice,
			&run.MaxPrice,
			&run.CoinLimit,
			&run.ConfidenceThreshold,
			&run.TotalCoins,
			&run.TotalBots,
			&run.TotalSignals,
			&run.Error,
		); err != nil {
			return nil, fmt.Errorf("failed to scan run row: %w", err)
		}
		runs = append(runs, &run)
	}

	return runs, rows.Err()
}

// StaleRunningScans returns runs still marked running whose deadline
// passed more than the grace period ago. The orchestrator reaps these
// at startup after a crash.
func (db *DB) StaleRunningScans(ctx context.Context, olderThan time.Duration) ([]*ScanRun, error) {
	query := `
		SELECT id, started_at, completed_at, status, scan_type, filter_scope,
		       min_price, max_price, coin_limit, confidence_threshold,
		       total_coins, total_bots, total_signals, error
		FROM scan_runs
		WHERE status = $1 AND started_at < NOW() - $2::interval
	`

	rows, err := db.pool.Query(ctx, query, ScanStatusRunning, fmt.Sprintf("%d seconds", int(olderThan.Seconds())))
	if err != nil {
		return nil, fmt.Errorf("failed to query stale scans: %w", err)
	}
	defer rows.Close()

	var runs []*ScanRun
	for rows.Next() {
		var run ScanRun
		if err := rows.Scan(
			&run.ID,
			&run.StartedAt,
			&run.CompletedAt,
			&run.Status,
			&run.ScanType,
			&run.FilterScope,
			&run.MinPrice,
			&run.MaxPrice,
			&run.CoinLimit,
			&run.ConfidenceThreshold,
			&run.TotalCoins,
			&run.TotalBots,
			&run.TotalSignals,
			&run.Error,
		); err != nil {
			return nil, fmt.Errorf("failed to scan run row: %w", err)
		}
		runs = append(runs, &run)
	}

	return runs, rows.Err()
}
