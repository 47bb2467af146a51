package market

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
)

// Circuit breaker thresholds for provider calls. A provider trips
// after mostly failing across a minimum sample and re-opens for one
// probe call after the open timeout.
const (
	breakerMinRequests     = 5
	breakerFailureRatio    = 0.6
	breakerOpenTimeout     = 60 * time.Second
	breakerHalfOpenMaxReqs = 1
	breakerCountInterval   = 60 * time.Second
)

// ProviderBudget describes one provider's admission and caching knobs.
type ProviderBudget struct {
	RequestsPerSecond float64
	RequestsPerMinute int
	Burst             int
	Timeout           time.Duration // per-call deadline
	CacheTTL          time.Duration
	Cooldown          time.Duration // base cooldown after an unhinted rate limit
}

// Registration binds a named provider client to its budget. The client
// may implement any subset of the provider interfaces; the router
// routes each capability separately.
type Registration struct {
	Name   string
	Client any
	Budget ProviderBudget
}

// RouterConfig lists the per-kind provider fallback orders.
type RouterConfig struct {
	CryptoOrder    []string
	FuturesOrder   []string
	OptionsOrder   []string
	OnChainOrder   []string
	SentimentOrder []string
}

type routeEntry struct {
	name     string
	client   any
	timeout  time.Duration
	cacheTTL time.Duration
	budget   *budget
	breaker  *gobreaker.CircuitBreaker
}

// Router serves market data through ordered provider fallback. Each
// call consults the cache, then walks the providers for the requested
// kind in configured order, skipping any that are cooling down, out of
// budget, or circuit-open. Failures are classified: rate limits start
// a cooldown, transient errors get one jittered retry on the same
// provider, permanent and unsupported outcomes move straight to the
// next provider. When every provider fails the result is an
// UnavailableError, never a zero-filled record.
type Router struct {
	cache   *Cache
	entries map[string]*routeEntry

	universe  []*routeEntry
	ohlcv     []*routeEntry
	quote     []*routeEntry
	derivs    []*routeEntry
	options   []*routeEntry
	onchain   []*routeEntry
	sentiment []*routeEntry

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewRouter builds a router from provider registrations and per-kind
// orders. A nil cache disables caching.
func NewRouter(cfg RouterConfig, regs []Registration, cache *Cache) (*Router, error) {
	r := &Router{
		cache:   cache,
		entries: make(map[string]*routeEntry, len(regs)),
		now:     time.Now,
		sleep:   sleepCtx,
	}

	for _, reg := range regs {
		if reg.Name == "" || reg.Client == nil {
			return nil, fmt.Errorf("registration needs a name and a client")
		}
		if _, dup := r.entries[reg.Name]; dup {
			return nil, fmt.Errorf("provider %q registered twice", reg.Name)
		}
		name := reg.Name
		r.entries[name] = &routeEntry{
			name:     name,
			client:   reg.Client,
			timeout:  reg.Budget.Timeout,
			cacheTTL: reg.Budget.CacheTTL,
			budget:   newBudget(reg.Budget.RequestsPerSecond, reg.Budget.Burst, reg.Budget.RequestsPerMinute, reg.Budget.Cooldown),
			breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
				Name:        "market-" + name,
				MaxRequests: breakerHalfOpenMaxReqs,
				Interval:    breakerCountInterval,
				Timeout:     breakerOpenTimeout,
				ReadyToTrip: func(counts gobreaker.Counts) bool {
					ratio := float64(counts.TotalFailures) / float64(counts.Requests)
					return counts.Requests >= breakerMinRequests && ratio >= breakerFailureRatio
				},
				OnStateChange: func(cbName string, from, to gobreaker.State) {
					log.Warn().
						Str("breaker", cbName).
						Str("from", from.String()).
						Str("to", to.String()).
						Msg("Provider circuit state changed")
				},
			}),
		}
	}

	var err error
	if r.universe, err = r.resolve("universe", cfg.CryptoOrder, func(c any) bool { _, ok := c.(UniverseProvider); return ok }); err != nil {
		return nil, err
	}
	if r.ohlcv, err = r.resolve("ohlcv", cfg.CryptoOrder, func(c any) bool { _, ok := c.(OHLCVProvider); return ok }); err != nil {
		return nil, err
	}
	if r.quote, err = r.resolve("quote", cfg.CryptoOrder, func(c any) bool { _, ok := c.(QuoteProvider); return ok }); err != nil {
		return nil, err
	}
	if r.derivs, err = r.resolve("derivatives", cfg.FuturesOrder, func(c any) bool { _, ok := c.(DerivativesProvider); return ok }); err != nil {
		return nil, err
	}
	if r.options, err = r.resolve("options", cfg.OptionsOrder, func(c any) bool { _, ok := c.(OptionsProvider); return ok }); err != nil {
		return nil, err
	}
	if r.onchain, err = r.resolve("onchain", cfg.OnChainOrder, func(c any) bool { _, ok := c.(OnChainProvider); return ok }); err != nil {
		return nil, err
	}
	if r.sentiment, err = r.resolve("sentiment", cfg.SentimentOrder, func(c any) bool { _, ok := c.(SentimentProvider); return ok }); err != nil {
		return nil, err
	}

	return r, nil
}

// resolve turns a configured order into route entries, keeping only
// clients that implement the capability. An order that resolves to
// nothing is a misconfiguration.
func (r *Router) resolve(kind string, order []string, implements func(any) bool) ([]*routeEntry, error) {
	out := make([]*routeEntry, 0, len(order))
	for _, name := range order {
		e, ok := r.entries[name]
		if !ok {
			return nil, fmt.Errorf("provider %q in %s order is not registered", name, kind)
		}
		if implements(e.client) {
			out = append(out, e)
		}
	}
	if len(order) > 0 && len(out) == 0 {
		return nil, fmt.Errorf("no registered provider serves %s", kind)
	}
	return out, nil
}

// Universe lists the top coins by market cap.
func (r *Router) Universe(ctx context.Context, q UniverseQuery) ([]Coin, error) {
	if coins, ok := r.cache.Universe(ctx, q); ok {
		return coins, nil
	}
	v, e, err := r.fetch(ctx, KindUniverse, "", r.universe, func(ctx context.Context, e *routeEntry) (any, error) {
		return e.client.(UniverseProvider).TopCoins(ctx, q)
	})
	if err != nil {
		return nil, err
	}
	coins := v.([]Coin)
	r.cache.StoreUniverse(ctx, q, coins, e.cacheTTL)
	return coins, nil
}

// OHLCV fetches candle history for a symbol.
func (r *Router) OHLCV(ctx context.Context, symbol string, tf Timeframe, limit int) (*Series, error) {
	symbol = CanonicalSymbol(symbol)
	if s, ok := r.cache.Series(ctx, symbol, tf, limit); ok {
		return s, nil
	}
	v, e, err := r.fetch(ctx, KindOHLCV, symbol, r.ohlcv, func(ctx context.Context, e *routeEntry) (any, error) {
		return e.client.(OHLCVProvider).OHLCV(ctx, symbol, tf, limit)
	})
	if err != nil {
		return nil, err
	}
	s := v.(*Series)
	r.cache.StoreSeries(ctx, s, limit, e.cacheTTL)
	return s, nil
}

// Quote fetches the current price snapshot for a symbol.
func (r *Router) Quote(ctx context.Context, symbol string) (*Quote, error) {
	symbol = CanonicalSymbol(symbol)
	if q, ok := r.cache.Quote(ctx, symbol); ok {
		return q, nil
	}
	v, e, err := r.fetch(ctx, KindQuote, symbol, r.quote, func(ctx context.Context, e *routeEntry) (any, error) {
		return e.client.(QuoteProvider).Quote(ctx, symbol)
	})
	if err != nil {
		return nil, err
	}
	q := v.(*Quote)
	r.cache.StoreQuote(ctx, q, e.cacheTTL)
	return q, nil
}

// Derivatives fetches futures metrics for a symbol.
func (r *Router) Derivatives(ctx context.Context, symbol string) (*DerivativesMetrics, error) {
	symbol = CanonicalSymbol(symbol)
	if m, ok := r.cache.Derivatives(ctx, symbol); ok {
		return m, nil
	}
	v, e, err := r.fetch(ctx, KindDerivatives, symbol, r.derivs, func(ctx context.Context, e *routeEntry) (any, error) {
		return e.client.(DerivativesProvider).Derivatives(ctx, symbol)
	})
	if err != nil {
		return nil, err
	}
	m := v.(*DerivativesMetrics)
	r.cache.StoreDerivatives(ctx, m, e.cacheTTL)
	return m, nil
}

// Options fetches options metrics for a symbol.
func (r *Router) Options(ctx context.Context, symbol string) (*OptionsMetrics, error) {
	symbol = CanonicalSymbol(symbol)
	if m, ok := r.cache.Options(ctx, symbol); ok {
		return m, nil
	}
	v, e, err := r.fetch(ctx, KindOptions, symbol, r.options, func(ctx context.Context, e *routeEntry) (any, error) {
		return e.client.(OptionsProvider).Options(ctx, symbol)
	})
	if err != nil {
		return nil, err
	}
	m := v.(*OptionsMetrics)
	r.cache.StoreOptions(ctx, m, e.cacheTTL)
	return m, nil
}

// OnChain fetches on-chain metrics for a symbol.
func (r *Router) OnChain(ctx context.Context, symbol string) (*OnChainMetrics, error) {
	symbol = CanonicalSymbol(symbol)
	if m, ok := r.cache.OnChain(ctx, symbol); ok {
		return m, nil
	}
	v, e, err := r.fetch(ctx, KindOnChain, symbol, r.onchain, func(ctx context.Context, e *routeEntry) (any, error) {
		return e.client.(OnChainProvider).OnChain(ctx, symbol)
	})
	if err != nil {
		return nil, err
	}
	m := v.(*OnChainMetrics)
	r.cache.StoreOnChain(ctx, m, e.cacheTTL)
	return m, nil
}

// Sentiment fetches social sentiment metrics for a symbol.
func (r *Router) Sentiment(ctx context.Context, symbol string) (*SentimentMetrics, error) {
	symbol = CanonicalSymbol(symbol)
	if m, ok := r.cache.Sentiment(ctx, symbol); ok {
		return m, nil
	}
	v, e, err := r.fetch(ctx, KindSentiment, symbol, r.sentiment, func(ctx context.Context, e *routeEntry) (any, error) {
		return e.client.(SentimentProvider).Sentiment(ctx, symbol)
	})
	if err != nil {
		return nil, err
	}
	m := v.(*SentimentMetrics)
	r.cache.StoreSentiment(ctx, m, e.cacheTTL)
	return m, nil
}

// fetch walks the ordered routes until one serves the request.
func (r *Router) fetch(ctx context.Context, kind DataKind, symbol string, routes []*routeEntry, call func(context.Context, *routeEntry) (any, error)) (any, *routeEntry, error) {
	var lastErr error

	for _, e := range routes {
		if symbol != "" {
			if ss, ok := e.client.(SymbolSupporter); ok && !ss.SupportsSymbol(symbol) {
				lastErr = Unsupported(e.name, string(kind)+":"+symbol)
				continue
			}
		}

		now := r.now()
		if until := e.budget.coolingUntil(now); !until.IsZero() {
			log.Debug().
				Str("provider", e.name).
				Str("kind", string(kind)).
				Time("until", until).
				Msg("Provider cooling down, skipping")
			continue
		}
		if !e.budget.allow(now) {
			log.Debug().
				Str("provider", e.name).
				Str("kind", string(kind)).
				Msg("Provider budget exhausted, skipping")
			continue
		}

		v, err := r.callOnce(ctx, e, call)
		if err == nil {
			e.budget.settle()
			return v, e, nil
		}
		lastErr = err

		switch {
		case errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests):
			log.Debug().
				Str("provider", e.name).
				Str("kind", string(kind)).
				Msg("Provider circuit open, skipping")
		case IsRateLimited(err):
			hint := RetryAfterHint(err)
			e.budget.cool(r.now(), hint)
			log.Warn().
				Str("provider", e.name).
				Str("kind", string(kind)).
				Dur("reset_hint", hint).
				Msg("Provider rate limited, cooling down")
		case IsTransient(err):
			if serr := r.sleep(ctx, retryDelay()); serr != nil {
				return nil, nil, serr
			}
			v, err = r.callOnce(ctx, e, call)
			if err == nil {
				e.budget.settle()
				return v, e, nil
			}
			lastErr = err
			if IsRateLimited(err) {
				e.budget.cool(r.now(), RetryAfterHint(err))
			}
			log.Debug().
				Str("provider", e.name).
				Str("kind", string(kind)).
				Err(err).
				Msg("Provider retry failed, moving on")
		default:
			log.Debug().
				Str("provider", e.name).
				Str("kind", string(kind)).
				Err(err).
				Msg("Provider cannot serve request, moving on")
		}
	}

	if ctx.Err() != nil {
		return nil, nil, ctx.Err()
	}
	return nil, nil, &UnavailableError{Kind: kind, Symbol: symbol, Last: lastErr}
}

// failedCall carries a permanent or unsupported outcome through the
// breaker without counting it as a provider failure: the provider
// answered, it just cannot serve this request.
type failedCall struct{ err error }

func (r *Router) callOnce(ctx context.Context, e *routeEntry, call func(context.Context, *routeEntry) (any, error)) (any, error) {
	cctx := ctx
	if e.timeout > 0 {
		var cancel context.CancelFunc
		cctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	out, err := e.breaker.Execute(func() (interface{}, error) {
		v, err := call(cctx, e)
		if err != nil && (IsPermanent(err) || IsUnsupported(err)) {
			return failedCall{err: err}, nil
		}
		if err != nil {
			return nil, err
		}
		return v, nil
	})
	if err != nil {
		return nil, err
	}
	if fc, ok := out.(failedCall); ok {
		return nil, fc.err
	}
	return out, nil
}

// retryDelay returns the jittered pause before the single transient
// retry: 100-400ms.
func retryDelay() time.Duration {
	return 100*time.Millisecond + rand.N(300*time.Millisecond)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
