package market

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedProvider is a sentiment provider whose responses are driven
// by call number, with call and symbol recording.
type scriptedProvider struct {
	name    string
	allowed map[string]bool // nil allows every symbol

	mu      sync.Mutex
	calls   int
	symbols []string
	respond func(call int, symbol string) (*SentimentMetrics, error)
}

func (p *scriptedProvider) Name() string { return p.name }

func (p *scriptedProvider) SupportsSymbol(symbol string) bool {
	if p.allowed == nil {
		return true
	}
	return p.allowed[symbol]
}

func (p *scriptedProvider) Sentiment(ctx context.Context, symbol string) (*SentimentMetrics, error) {
	p.mu.Lock()
	p.calls++
	n := p.calls
	p.symbols = append(p.symbols, symbol)
	p.mu.Unlock()
	return p.respond(n, symbol)
}

func (p *scriptedProvider) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func sentimentFrom(provider, symbol string) *SentimentMetrics {
	score := 0.5
	return &SentimentMetrics{
		Symbol:         symbol,
		Score:          &score,
		Classification: ClassifySentiment(score),
		Provider:       provider,
		At:             time.Now().UTC(),
	}
}

func alwaysServe(p *scriptedProvider) *scriptedProvider {
	p.respond = func(_ int, symbol string) (*SentimentMetrics, error) {
		return sentimentFrom(p.name, symbol), nil
	}
	return p
}

func openBudget() ProviderBudget {
	return ProviderBudget{
		RequestsPerSecond: 1000,
		RequestsPerMinute: 100000,
		Burst:             1000,
		Timeout:           time.Second,
		Cooldown:          30 * time.Second,
	}
}

func sentimentRouter(t *testing.T, cache *Cache, regs ...Registration) *Router {
	t.Helper()
	order := make([]string, 0, len(regs))
	for _, reg := range regs {
		order = append(order, reg.Name)
	}
	r, err := NewRouter(RouterConfig{SentimentOrder: order}, regs, cache)
	require.NoError(t, err)
	r.sleep = func(ctx context.Context, d time.Duration) error { return nil }
	return r
}

func TestRouterPrefersFirstProvider(t *testing.T) {
	primary := alwaysServe(&scriptedProvider{name: "primary"})
	secondary := alwaysServe(&scriptedProvider{name: "secondary"})
	r := sentimentRouter(t, nil,
		Registration{Name: "primary", Client: primary, Budget: openBudget()},
		Registration{Name: "secondary", Client: secondary, Budget: openBudget()},
	)

	m, err := r.Sentiment(context.Background(), "BTC")
	require.NoError(t, err)
	assert.Equal(t, "primary", m.Provider)
	assert.Equal(t, 1, primary.callCount())
	assert.Equal(t, 0, secondary.callCount())
}

func TestRouterFallsBackOnPermanentError(t *testing.T) {
	primary := &scriptedProvider{name: "primary"}
	primary.respond = func(int, string) (*SentimentMetrics, error) {
		return nil, Permanent("primary", "sentiment", fmt.Errorf("not covered"))
	}
	secondary := alwaysServe(&scriptedProvider{name: "secondary"})
	r := sentimentRouter(t, nil,
		Registration{Name: "primary", Client: primary, Budget: openBudget()},
		Registration{Name: "secondary", Client: secondary, Budget: openBudget()},
	)

	m, err := r.Sentiment(context.Background(), "BTC")
	require.NoError(t, err)
	assert.Equal(t, "secondary", m.Provider)
	// no retry for permanent failures
	assert.Equal(t, 1, primary.callCount())
	assert.Equal(t, 1, secondary.callCount())
}

func TestRouterRetriesTransientOnce(t *testing.T) {
	primary := &scriptedProvider{name: "primary"}
	primary.respond = func(call int, symbol string) (*SentimentMetrics, error) {
		if call == 1 {
			return nil, Transient("primary", "sentiment", fmt.Errorf("connection reset"))
		}
		return sentimentFrom("primary", symbol), nil
	}
	secondary := alwaysServe(&scriptedProvider{name: "secondary"})
	r := sentimentRouter(t, nil,
		Registration{Name: "primary", Client: primary, Budget: openBudget()},
		Registration{Name: "secondary", Client: secondary, Budget: openBudget()},
	)

	var slept []time.Duration
	r.sleep = func(ctx context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}

	m, err := r.Sentiment(context.Background(), "BTC")
	require.NoError(t, err)
	assert.Equal(t, "primary", m.Provider)
	assert.Equal(t, 2, primary.callCount())
	assert.Equal(t, 0, secondary.callCount())

	require.Len(t, slept, 1)
	assert.GreaterOrEqual(t, slept[0], 100*time.Millisecond)
	assert.Less(t, slept[0], 400*time.Millisecond)
}

func TestRouterTransientRetryFailureMovesOn(t *testing.T) {
	primary := &scriptedProvider{name: "primary"}
	primary.respond = func(int, string) (*SentimentMetrics, error) {
		return nil, Transient("primary", "sentiment", fmt.Errorf("timeout"))
	}
	secondary := alwaysServe(&scriptedProvider{name: "secondary"})
	r := sentimentRouter(t, nil,
		Registration{Name: "primary", Client: primary, Budget: openBudget()},
		Registration{Name: "secondary", Client: secondary, Budget: openBudget()},
	)

	m, err := r.Sentiment(context.Background(), "BTC")
	require.NoError(t, err)
	assert.Equal(t, "secondary", m.Provider)
	assert.Equal(t, 2, primary.callCount())
	assert.Equal(t, 1, secondary.callCount())
}

func TestRouterRateLimitStartsCooldown(t *testing.T) {
	primary := &scriptedProvider{name: "primary"}
	primary.respond = func(call int, symbol string) (*SentimentMetrics, error) {
		if call == 1 {
			return nil, RateLimited("primary", "sentiment", 45*time.Second, fmt.Errorf("429"))
		}
		return sentimentFrom("primary", symbol), nil
	}
	secondary := alwaysServe(&scriptedProvider{name: "secondary"})
	r := sentimentRouter(t, nil,
		Registration{Name: "primary", Client: primary, Budget: openBudget()},
		Registration{Name: "secondary", Client: secondary, Budget: openBudget()},
	)

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	now := base
	r.now = func() time.Time { return now }

	// rate limit answered by the fallback, cooldown armed
	m, err := r.Sentiment(context.Background(), "BTC")
	require.NoError(t, err)
	assert.Equal(t, "secondary", m.Provider)
	assert.Equal(t, 1, primary.callCount())

	// still cooling: primary skipped without a call
	m, err = r.Sentiment(context.Background(), "BTC")
	require.NoError(t, err)
	assert.Equal(t, "secondary", m.Provider)
	assert.Equal(t, 1, primary.callCount())

	// hint elapsed: primary serves again
	now = base.Add(46 * time.Second)
	m, err = r.Sentiment(context.Background(), "BTC")
	require.NoError(t, err)
	assert.Equal(t, "primary", m.Provider)
	assert.Equal(t, 2, primary.callCount())
}

func TestRouterAllProvidersFail(t *testing.T) {
	primary := &scriptedProvider{name: "primary"}
	primary.respond = func(int, string) (*SentimentMetrics, error) {
		return nil, Permanent("primary", "sentiment", fmt.Errorf("no data"))
	}
	secondary := &scriptedProvider{name: "secondary"}
	secondary.respond = func(int, string) (*SentimentMetrics, error) {
		return nil, Permanent("secondary", "sentiment", fmt.Errorf("no data"))
	}
	r := sentimentRouter(t, nil,
		Registration{Name: "primary", Client: primary, Budget: openBudget()},
		Registration{Name: "secondary", Client: secondary, Budget: openBudget()},
	)

	_, err := r.Sentiment(context.Background(), "BTC")
	require.Error(t, err)
	assert.True(t, IsUnavailable(err))

	var unavailable *UnavailableError
	require.ErrorAs(t, err, &unavailable)
	assert.Equal(t, KindSentiment, unavailable.Kind)
	assert.Equal(t, "BTC", unavailable.Symbol)
}

func TestRouterSkipsUncoveredSymbols(t *testing.T) {
	primary := alwaysServe(&scriptedProvider{name: "primary", allowed: map[string]bool{"ETH": true}})
	secondary := alwaysServe(&scriptedProvider{name: "secondary"})
	r := sentimentRouter(t, nil,
		Registration{Name: "primary", Client: primary, Budget: openBudget()},
		Registration{Name: "secondary", Client: secondary, Budget: openBudget()},
	)

	m, err := r.Sentiment(context.Background(), "BTC")
	require.NoError(t, err)
	assert.Equal(t, "secondary", m.Provider)
	assert.Equal(t, 0, primary.callCount())

	m, err = r.Sentiment(context.Background(), "ETH")
	require.NoError(t, err)
	assert.Equal(t, "primary", m.Provider)
	assert.Equal(t, 1, primary.callCount())
}

func TestRouterNoCoverageAnywhere(t *testing.T) {
	only := alwaysServe(&scriptedProvider{name: "only", allowed: map[string]bool{}})
	r := sentimentRouter(t, nil, Registration{Name: "only", Client: only, Budget: openBudget()})

	_, err := r.Sentiment(context.Background(), "BTC")
	require.Error(t, err)
	assert.True(t, IsUnavailable(err))
	assert.Equal(t, 0, only.callCount())
}

func TestRouterServesFromCache(t *testing.T) {
	cache, _ := setupCache(t)
	only := alwaysServe(&scriptedProvider{name: "only"})
	budget := openBudget()
	budget.CacheTTL = time.Minute
	r := sentimentRouter(t, cache, Registration{Name: "only", Client: only, Budget: budget})

	m, err := r.Sentiment(context.Background(), "BTC")
	require.NoError(t, err)
	assert.Equal(t, "only", m.Provider)
	assert.Equal(t, 1, only.callCount())

	m, err = r.Sentiment(context.Background(), "BTC")
	require.NoError(t, err)
	assert.Equal(t, "only", m.Provider)
	require.NotNil(t, m.Score)
	assert.Equal(t, 0.5, *m.Score)
	assert.Equal(t, 1, only.callCount())
}

func TestRouterBudgetExhaustionSkips(t *testing.T) {
	primary := alwaysServe(&scriptedProvider{name: "primary"})
	secondary := alwaysServe(&scriptedProvider{name: "secondary"})

	tight := openBudget()
	tight.RequestsPerSecond = 0.001
	tight.Burst = 1
	r := sentimentRouter(t, nil,
		Registration{Name: "primary", Client: primary, Budget: tight},
		Registration{Name: "secondary", Client: secondary, Budget: openBudget()},
	)

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return now }

	m, err := r.Sentiment(context.Background(), "BTC")
	require.NoError(t, err)
	assert.Equal(t, "primary", m.Provider)

	// burst spent, clock frozen: primary has no tokens left
	m, err = r.Sentiment(context.Background(), "BTC")
	require.NoError(t, err)
	assert.Equal(t, "secondary", m.Provider)
	assert.Equal(t, 1, primary.callCount())
}

func TestRouterBreakerOpensAfterRepeatedFailures(t *testing.T) {
	primary := &scriptedProvider{name: "primary"}
	primary.respond = func(int, string) (*SentimentMetrics, error) {
		return nil, Transient("primary", "sentiment", fmt.Errorf("flaky"))
	}
	secondary := alwaysServe(&scriptedProvider{name: "secondary"})
	r := sentimentRouter(t, nil,
		Registration{Name: "primary", Client: primary, Budget: openBudget()},
		Registration{Name: "secondary", Client: secondary, Budget: openBudget()},
	)

	// Two failed calls per fetch; the breaker trips on the fifth
	// failure, so from then on primary is skipped without being called.
	for i := 0; i < 4; i++ {
		m, err := r.Sentiment(context.Background(), "BTC")
		require.NoError(t, err)
		assert.Equal(t, "secondary", m.Provider)
	}

	assert.Equal(t, 5, primary.callCount())
	assert.Equal(t, 4, secondary.callCount())
}

func TestRouterCanonicalizesSymbols(t *testing.T) {
	only := alwaysServe(&scriptedProvider{name: "only"})
	r := sentimentRouter(t, nil, Registration{Name: "only", Client: only, Budget: openBudget()})

	m, err := r.Sentiment(context.Background(), "miota")
	require.NoError(t, err)
	assert.Equal(t, "IOTA", m.Symbol)
	assert.Equal(t, []string{"IOTA"}, only.symbols)
}

func TestRouterSleepHonorsContext(t *testing.T) {
	primary := &scriptedProvider{name: "primary"}
	primary.respond = func(int, string) (*SentimentMetrics, error) {
		return nil, Transient("primary", "sentiment", fmt.Errorf("flaky"))
	}
	r := sentimentRouter(t, nil, Registration{Name: "primary", Client: primary, Budget: openBudget()})
	r.sleep = sleepCtx

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.Sentiment(ctx, "BTC")
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
}

type inertClient struct{}

func (inertClient) Name() string { return "inert" }

func TestNewRouterValidation(t *testing.T) {
	valid := alwaysServe(&scriptedProvider{name: "a"})

	t.Run("unregistered provider in order", func(t *testing.T) {
		_, err := NewRouter(
			RouterConfig{SentimentOrder: []string{"missing"}},
			[]Registration{{Name: "a", Client: valid, Budget: openBudget()}},
			nil,
		)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "not registered")
	})

	t.Run("duplicate registration", func(t *testing.T) {
		_, err := NewRouter(
			RouterConfig{},
			[]Registration{
				{Name: "a", Client: valid, Budget: openBudget()},
				{Name: "a", Client: valid, Budget: openBudget()},
			},
			nil,
		)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "registered twice")
	})

	t.Run("missing name or client", func(t *testing.T) {
		_, err := NewRouter(RouterConfig{}, []Registration{{Name: "", Client: valid}}, nil)
		require.Error(t, err)
		_, err = NewRouter(RouterConfig{}, []Registration{{Name: "a", Client: nil}}, nil)
		require.Error(t, err)
	})

	t.Run("order without a capable provider", func(t *testing.T) {
		_, err := NewRouter(
			RouterConfig{SentimentOrder: []string{"inert"}},
			[]Registration{{Name: "inert", Client: inertClient{}, Budget: openBudget()}},
			nil,
		)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no registered provider serves")
	})
}
