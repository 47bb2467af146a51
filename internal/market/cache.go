package market

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// cacheOpTimeout bounds every cache operation so a slow Redis can
// never stall a provider call path.
const cacheOpTimeout = 500 * time.Millisecond

const cacheKeyPrefix = "cryptooracle"

// Cache is a Redis-backed cache for provider responses. A nil *Cache
// is a no-op, so the router runs unchanged without Redis configured.
// Cache errors are logged and treated as misses.
type Cache struct {
	client *redis.Client
}

// NewCache wraps a Redis client. Returns nil when client is nil.
func NewCache(client *redis.Client) *Cache {
	if client == nil {
		return nil
	}
	return &Cache{client: client}
}

// Health checks the Redis connection.
func (c *Cache) Health(ctx context.Context) error {
	if c == nil || c.client == nil {
		return fmt.Errorf("cache not initialized")
	}
	cctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := c.client.Ping(cctx).Err(); err != nil {
		return fmt.Errorf("redis health check failed: %w", err)
	}
	return nil
}

func cacheKey(kind DataKind, parts ...string) string {
	elems := append([]string{cacheKeyPrefix, string(kind)}, parts...)
	return strings.Join(elems, ":")
}

func (c *Cache) getJSON(ctx context.Context, key string, out any) bool {
	if c == nil || c.client == nil {
		return false
	}

	cctx, cancel := context.WithTimeout(ctx, cacheOpTimeout)
	defer cancel()

	cached, err := c.client.Get(cctx, key).Result()
	if err != nil {
		if err != redis.Nil {
			log.Debug().Err(err).Str("key", key).Msg("Redis get error - treating as cache miss")
		}
		return false
	}

	if err := json.Unmarshal([]byte(cached), out); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("Failed to unmarshal cached entry")
		return false
	}
	return true
}

func (c *Cache) setJSON(ctx context.Context, key string, v any, ttl time.Duration) {
	if c == nil || c.client == nil || ttl <= 0 {
		return
	}

	data, err := json.Marshal(v)
	if err != nil {
		log.Warn().Err(err).Str("key", key).Msg("Failed to marshal cache entry")
		return
	}

	cctx, cancel := context.WithTimeout(ctx, cacheOpTimeout)
	defer cancel()

	if err := c.client.Set(cctx, key, data, ttl).Err(); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("Failed to write cache entry")
	}
}

// Universe returns a cached top-coins result for the query, if any.
func (c *Cache) Universe(ctx context.Context, q UniverseQuery) ([]Coin, bool) {
	var coins []Coin
	if c.getJSON(ctx, universeKey(q), &coins) {
		return coins, true
	}
	return nil, false
}

// StoreUniverse caches a top-coins result.
func (c *Cache) StoreUniverse(ctx context.Context, q UniverseQuery, coins []Coin, ttl time.Duration) {
	c.setJSON(ctx, universeKey(q), coins, ttl)
}

func universeKey(q UniverseQuery) string {
	return cacheKey(KindUniverse, fmt.Sprintf("%d:%g:%g", q.Limit, q.MinPrice, q.MaxPrice))
}

// Series returns a cached candle series, if any.
func (c *Cache) Series(ctx context.Context, symbol string, tf Timeframe, limit int) (*Series, bool) {
	var s Series
	if c.getJSON(ctx, seriesKey(symbol, tf, limit), &s) {
		return &s, true
	}
	return nil, false
}

// StoreSeries caches a candle series.
func (c *Cache) StoreSeries(ctx context.Context, s *Series, limit int, ttl time.Duration) {
	if s == nil {
		return
	}
	c.setJSON(ctx, seriesKey(s.Symbol, s.Timeframe, limit), s, ttl)
}

func seriesKey(symbol string, tf Timeframe, limit int) string {
	return cacheKey(KindOHLCV, symbol, string(tf), fmt.Sprintf("%d", limit))
}

// Quote returns a cached price snapshot, if any.
func (c *Cache) Quote(ctx context.Context, symbol string) (*Quote, bool) {
	var q Quote
	if c.getJSON(ctx, cacheKey(KindQuote, symbol), &q) {
		return &q, true
	}
	return nil, false
}

// StoreQuote caches a price snapshot.
func (c *Cache) StoreQuote(ctx context.Context, q *Quote, ttl time.Duration) {
	if q == nil {
		return
	}
	c.setJSON(ctx, cacheKey(KindQuote, q.Symbol), q, ttl)
}

// Derivatives returns cached futures metrics, if any.
func (c *Cache) Derivatives(ctx context.Context, symbol string) (*DerivativesMetrics, bool) {
	var m DerivativesMetrics
	if c.getJSON(ctx, cacheKey(KindDerivatives, symbol), &m) {
		return &m, true
	}
	return nil, false
}

// StoreDerivatives caches futures metrics.
func (c *Cache) StoreDerivatives(ctx context.Context, m *DerivativesMetrics, ttl time.Duration) {
	if m == nil {
		return
	}
	c.setJSON(ctx, cacheKey(KindDerivatives, m.Symbol), m, ttl)
}

// Options returns cached options metrics, if any.
func (c *Cache) Options(ctx context.Context, symbol string) (*OptionsMetrics, bool) {
	var m OptionsMetrics
	if c.getJSON(ctx, cacheKey(KindOptions, symbol), &m) {
		return &m, true
	}
	return nil, false
}

// StoreOptions caches options metrics.
func (c *Cache) StoreOptions(ctx context.Context, m *OptionsMetrics, ttl time.Duration) {
	if m == nil {
		return
	}
	c.setJSON(ctx, cacheKey(KindOptions, m.Symbol), m, ttl)
}

// OnChain returns cached on-chain metrics, if any.
func (c *Cache) OnChain(ctx context.Context, symbol string) (*OnChainMetrics, bool) {
	var m OnChainMetrics
	if c.getJSON(ctx, cacheKey(KindOnChain, symbol), &m) {
		return &m, true
	}
	return nil, false
}

// StoreOnChain caches on-chain metrics.
func (c *Cache) StoreOnChain(ctx context.Context, m *OnChainMetrics, ttl time.Duration) {
	if m == nil {
		return
	}
	c.setJSON(ctx, cacheKey(KindOnChain, m.Symbol), m, ttl)
}

// Sentiment returns cached sentiment metrics, if any.
func (c *Cache) Sentiment(ctx context.Context, symbol string) (*SentimentMetrics, bool) {
	var m SentimentMetrics
	if c.getJSON(ctx, cacheKey(KindSentiment, symbol), &m) {
		return &m, true
	}
	return nil, false
}

// StoreSentiment caches sentiment metrics.
func (c *Cache) StoreSentiment(ctx context.Context, m *SentimentMetrics, ttl time.Duration) {
	if m == nil {
		return
	}
	c.setJSON(ctx, cacheKey(KindSentiment, m.Symbol), m, ttl)
}
