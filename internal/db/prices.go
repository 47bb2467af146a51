package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// PricePoint is one sampled price observation for a coin. The table is
// append-only; samples are never updated or deleted.
type PricePoint struct {
	Coin       string
	Price      float64
	Volume24h  *float64
	MarketCap  *float64
	RecordedAt time.Time
}

// InsertPricePoints appends a batch of samples in one round trip
func (db *DB) InsertPricePoints(ctx context.Context, points []*PricePoint) error {
	if len(points) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, p := range points {
		batch.Queue(`
			INSERT INTO price_points (coin, price, volume_24h, market_cap, recorded_at)
			VALUES ($1, $2, $3, $4, $5)
		`, p.Coin, p.Price, SanitizeFloatPtr(p.Volume24h), SanitizeFloatPtr(p.MarketCap), p.RecordedAt)
	}

	results := db.pool.SendBatch(ctx, batch)
	defer results.Close()

	for range points {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("failed to insert price point: %w", err)
		}
	}

	return nil
}

// LatestPrice returns the most recent sample for a coin, or nil if the
// coin has never been sampled
func (db *DB) LatestPrice(ctx context.Context, coin string) (*PricePoint, error) {
	query := `
		SELECT coin, price, volume_24h, market_cap, recorded_at
		FROM price_points
		WHERE coin = $1
		ORDER BY recorded_at DESC
		LIMIT 1
	`

	var p PricePoint
	err := db.pool.QueryRow(ctx, query, coin).Scan(&p.Coin, &p.Price, &p.Volume24h, &p.MarketCap, &p.RecordedAt)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query latest price: %w", err)
	}

	return &p, nil
}

// PriceHistory returns samples for a coin since the cutoff, oldest first
func (db *DB) PriceHistory(ctx context.Context, coin string, since time.Time) ([]*PricePoint, error) {
	query := `
		SELECT coin, price, volume_24h, market_cap, recorded_at
		FROM price_points
		WHERE coin = $1 AND recorded_at >= $2
		ORDER BY recorded_at ASC
	`

	rows, err := db.pool.Query(ctx, query, coin, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query price history: %w", err)
	}
	defer rows.Close()

	var points []*PricePoint
	for rows.Next() {
		var p PricePoint
		if err := rows.Scan(&p.Coin, &p.Price, &p.Volume24h, &p.MarketCap, &p.RecordedAt); err != nil {
			return nil, fmt.Errorf("failed to scan price point: %w", err)
		}
		points = append(points, &p)
	}

	return points, rows.Err()
}
