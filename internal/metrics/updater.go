package metrics

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// Updater refreshes the slow-moving gauges on an interval: connection
// pool stats plus the open-prediction and enabled-bot counts read from
// the store.
type Updater struct {
	pool     *pgxpool.Pool
	redis    *redis.Client
	interval time.Duration
}

// NewUpdater creates an updater. Either client may be nil; that gauge
// family is simply left untouched.
func NewUpdater(pool *pgxpool.Pool, rdb *redis.Client, interval time.Duration) *Updater {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Updater{pool: pool, redis: rdb, interval: interval}
}

// Start runs the refresh loop until the context is cancelled.
func (u *Updater) Start(ctx context.Context) {
	ticker := time.NewTicker(u.interval)
	defer ticker.Stop()

	u.refresh(ctx)

	for {
		select {
		case <-ticker.C:
			u.refresh(ctx)
		case <-ctx.Done():
			log.Debug().Msg("Metrics updater stopped")
			return
		}
	}
}

func (u *Updater) refresh(ctx context.Context) {
	if u.pool != nil {
		stat := u.pool.Stat()
		DBConnsActive.Set(float64(stat.AcquiredConns()))
		DBConnsIdle.Set(float64(stat.IdleConns()))

		var pending int64
		err := u.pool.QueryRow(ctx,
			`SELECT COUNT(*) FROM bot_predictions WHERE outcome_status = 'pending'`,
		).Scan(&pending)
		if err == nil {
			PendingPredictions.Set(float64(pending))
		}

		var enabled int64
		err = u.pool.QueryRow(ctx, `
			SELECT COUNT(DISTINCT bot_name) FROM bot_accuracy_metrics
			WHERE is_enabled = TRUE
		`).Scan(&enabled)
		if err == nil {
			BotsEnabled.Set(float64(enabled))
		}
	}

	if u.redis != nil {
		stats := u.redis.PoolStats()
		RedisConnsActive.Set(float64(stats.TotalConns - stats.IdleConns))
		RedisConnsIdle.Set(float64(stats.IdleConns))
	}
}
