package market

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

const coinGeckoName = "coingecko"

// ClientOptions carries the per-provider settings a client needs.
// BaseURL overrides the provider's default endpoint, mainly for tests.
type ClientOptions struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// CoinGeckoClient serves the coin universe and spot quotes from the
// CoinGecko REST API. The free /ohlc endpoint carries no volume, so
// this client deliberately does not serve candle history; volume-less
// candles would poison every volume indicator downstream.
type CoinGeckoClient struct {
	rest *restClient

	mu  sync.RWMutex
	ids map[string]string // canonical symbol -> coingecko id
}

// NewCoinGeckoClient creates a CoinGecko REST client. An API key is
// optional; without one the public endpoints and their tighter budget
// apply.
func NewCoinGeckoClient(opts ClientOptions) *CoinGeckoClient {
	base := opts.BaseURL
	if base == "" {
		base = "https://api.coingecko.com/api/v3"
	}
	headers := map[string]string{}
	if opts.APIKey != "" {
		headers["x-cg-demo-api-key"] = opts.APIKey
	}

	c := &CoinGeckoClient{
		rest: newRESTClient(coinGeckoName, base, opts.Timeout, headers),
		ids:  make(map[string]string, len(coinGeckoSeedIDs)),
	}
	for sym, id := range coinGeckoSeedIDs {
		c.ids[sym] = id
	}
	return c
}

// Name implements the provider interfaces.
func (c *CoinGeckoClient) Name() string { return coinGeckoName }

// coinGeckoSeedIDs covers majors whose CoinGecko id differs from the
// lowercased ticker. TopCoins responses extend the map at runtime.
var coinGeckoSeedIDs = map[string]string{
	"BTC":  "bitcoin",
	"ETH":  "ethereum",
	"BNB":  "binancecoin",
	"SOL":  "solana",
	"XRP":  "ripple",
	"ADA":  "cardano",
	"DOGE": "dogecoin",
	"DOT":  "polkadot",
	"POL":  "polygon-ecosystem-token",
	"AVAX": "avalanche-2",
	"LINK": "chainlink",
	"LTC":  "litecoin",
	"UNI":  "uniswap",
	"ATOM": "cosmos",
	"XLM":  "stellar",
	"NEAR": "near",
	"IOTA": "iota",
	"TON":  "the-open-network",
	"SHIB": "shiba-inu",
	"TRX":  "tron",
	"BCH":  "bitcoin-cash",
	"XMR":  "monero",
}

func (c *CoinGeckoClient) coinID(symbol string) string {
	c.mu.RLock()
	id, ok := c.ids[symbol]
	c.mu.RUnlock()
	if ok {
		return id
	}
	return strings.ToLower(symbol)
}

func (c *CoinGeckoClient) learnID(symbol, id string) {
	if symbol == "" || id == "" {
		return
	}
	c.mu.Lock()
	c.ids[symbol] = id
	c.mu.Unlock()
}

// TopCoins lists the universe ordered by market cap.
func (c *CoinGeckoClient) TopCoins(ctx context.Context, q UniverseQuery) ([]Coin, error) {
	limit := q.Limit
	if limit <= 0 || limit > 250 {
		limit = 250
	}

	query := url.Values{}
	query.Set("vs_currency", "usd")
	query.Set("order", "market_cap_desc")
	query.Set("per_page", strconv.Itoa(limit))
	query.Set("page", "1")
	query.Set("sparkline", "false")
	query.Set("price_change_percentage", "24h")

	var rows []struct {
		ID            string  `json:"id"`
		Symbol        string  `json:"symbol"`
		Name          string  `json:"name"`
		CurrentPrice  float64 `json:"current_price"`
		MarketCap     float64 `json:"market_cap"`
		MarketCapRank int     `json:"market_cap_rank"`
		TotalVolume   float64 `json:"total_volume"`
		Change24h     float64 `json:"price_change_percentage_24h"`
	}
	if err := c.rest.getJSON(ctx, "top_coins", "/coins/markets", query, &rows); err != nil {
		return nil, err
	}

	coins := make([]Coin, 0, len(rows))
	for _, r := range rows {
		sym := CanonicalSymbol(r.Symbol)
		c.learnID(sym, r.ID)
		coins = append(coins, Coin{
			Symbol:    sym,
			Name:      r.Name,
			Price:     r.CurrentPrice,
			MarketCap: r.MarketCap,
			Volume24h: r.TotalVolume,
			Change24h: r.Change24h,
			Rank:      r.MarketCapRank,
		})
	}

	log.Debug().
		Str("provider", coinGeckoName).
		Int("requested", limit).
		Int("returned", len(coins)).
		Msg("Fetched coin universe")

	return filterUniverse(coins, q), nil
}

// Quote fetches the current price with market cap and 24h volume.
func (c *CoinGeckoClient) Quote(ctx context.Context, symbol string) (*Quote, error) {
	id := c.coinID(symbol)

	query := url.Values{}
	query.Set("ids", id)
	query.Set("vs_currencies", "usd")
	query.Set("include_market_cap", "true")
	query.Set("include_24hr_vol", "true")
	query.Set("include_24hr_change", "true")

	var resp map[string]struct {
		USD          *float64 `json:"usd"`
		USDMarketCap *float64 `json:"usd_market_cap"`
		USDVolume    *float64 `json:"usd_24h_vol"`
		USDChange    *float64 `json:"usd_24h_change"`
	}
	if err := c.rest.getJSON(ctx, "quote", "/simple/price", query, &resp); err != nil {
		return nil, err
	}

	row, ok := resp[id]
	if !ok || row.USD == nil {
		return nil, Permanent(coinGeckoName, "quote", fmt.Errorf("no price for id %q", id))
	}

	return &Quote{
		Symbol:    symbol,
		Price:     *row.USD,
		Volume24h: row.USDVolume,
		MarketCap: row.USDMarketCap,
		Change24h: row.USDChange,
		Provider:  coinGeckoName,
		At:        time.Now(),
	}, nil
}
