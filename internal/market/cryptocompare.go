package market

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

const cryptoCompareName = "cryptocompare"

// CryptoCompareClient serves the coin universe, candle history, and
// quotes from the CryptoCompare min-api. CryptoCompare reports errors
// inside a 200 envelope, so every response is checked for the error
// marker before use.
type CryptoCompareClient struct {
	rest *restClient
}

// NewCryptoCompareClient creates a CryptoCompare REST client.
func NewCryptoCompareClient(opts ClientOptions) *CryptoCompareClient {
	base := opts.BaseURL
	if base == "" {
		base = "https://min-api.cryptocompare.com/data"
	}
	headers := map[string]string{}
	if opts.APIKey != "" {
		headers["authorization"] = "Apikey " + opts.APIKey
	}
	return &CryptoCompareClient{
		rest: newRESTClient(cryptoCompareName, base, opts.Timeout, headers),
	}
}

// Name implements the provider interfaces.
func (c *CryptoCompareClient) Name() string { return cryptoCompareName }

// envelopeError classifies CryptoCompare's in-band errors. Rate-limit
// rejections also arrive this way, as a 200 with a message.
func envelopeError(op, response, message string) error {
	if response != "Error" {
		return nil
	}
	if strings.Contains(strings.ToLower(message), "rate limit") {
		return RateLimited(cryptoCompareName, op, 0, fmt.Errorf("%s", message))
	}
	return Permanent(cryptoCompareName, op, fmt.Errorf("%s", message))
}

// TopCoins lists the universe by market cap. The endpoint pages at 100
// rows, so larger limits fan out over consecutive pages.
func (c *CryptoCompareClient) TopCoins(ctx context.Context, q UniverseQuery) ([]Coin, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = 100
	}
	const pageSize = 100
	pages := (limit + pageSize - 1) / pageSize
	if pages > 5 {
		pages = 5
	}

	coins := make([]Coin, 0, limit)
	for page := 0; page < pages; page++ {
		query := url.Values{}
		query.Set("limit", strconv.Itoa(pageSize))
		query.Set("page", strconv.Itoa(page))
		query.Set("tsym", "USD")

		var resp struct {
			Response string `json:"Response"`
			Message  string `json:"Message"`
			Data     []struct {
				CoinInfo struct {
					Name     string `json:"Name"`
					FullName string `json:"FullName"`
				} `json:"CoinInfo"`
				Raw struct {
					USD struct {
						Price     float64 `json:"PRICE"`
						MarketCap float64 `json:"MKTCAP"`
						Volume24h float64 `json:"TOTALVOLUME24HTO"`
						Change24h float64 `json:"CHANGEPCT24HOUR"`
					} `json:"USD"`
				} `json:"RAW"`
			} `json:"Data"`
		}
		if err := c.rest.getJSON(ctx, "top_coins", "/top/mktcapfull", query, &resp); err != nil {
			return nil, err
		}
		if err := envelopeError("top_coins", resp.Response, resp.Message); err != nil {
			return nil, err
		}

		for i, row := range resp.Data {
			coins = append(coins, Coin{
				Symbol:    CanonicalSymbol(row.CoinInfo.Name),
				Name:      row.CoinInfo.FullName,
				Price:     row.Raw.USD.Price,
				MarketCap: row.Raw.USD.MarketCap,
				Volume24h: row.Raw.USD.Volume24h,
				Change24h: row.Raw.USD.Change24h,
				Rank:      page*pageSize + i + 1,
			})
		}
		if len(resp.Data) < pageSize {
			break
		}
	}

	log.Debug().
		Str("provider", cryptoCompareName).
		Int("requested", limit).
		Int("returned", len(coins)).
		Msg("Fetched coin universe")

	return filterUniverse(coins, q), nil
}

// OHLCV fetches candle history. Daily and weekly bars come from
// histoday, hourly and 4h bars from histohour with aggregation.
func (c *CryptoCompareClient) OHLCV(ctx context.Context, symbol string, tf Timeframe, limit int) (*Series, error) {
	if limit <= 0 {
		return nil, Permanent(cryptoCompareName, "ohlcv", fmt.Errorf("limit must be positive, got %d", limit))
	}

	var path string
	aggregate := 0
	switch tf {
	case Timeframe1h:
		path = "/v2/histohour"
	case Timeframe4h:
		path = "/v2/histohour"
		aggregate = 4
	case Timeframe1d:
		path = "/v2/histoday"
	case Timeframe1w:
		path = "/v2/histoday"
		aggregate = 7
	default:
		return nil, Unsupported(cryptoCompareName, "ohlcv:"+string(tf))
	}

	query := url.Values{}
	query.Set("fsym", symbol)
	query.Set("tsym", "USD")
	query.Set("limit", strconv.Itoa(limit))
	if aggregate > 0 {
		query.Set("aggregate", strconv.Itoa(aggregate))
	}

	var resp struct {
		Response string `json:"Response"`
		Message  string `json:"Message"`
		Data     struct {
			Data []struct {
				Time     int64   `json:"time"`
				Open     float64 `json:"open"`
				High     float64 `json:"high"`
				Low      float64 `json:"low"`
				Close    float64 `json:"close"`
				VolumeTo float64 `json:"volumeto"`
			} `json:"Data"`
		} `json:"Data"`
	}
	if err := c.rest.getJSON(ctx, "ohlcv", path, query, &resp); err != nil {
		return nil, err
	}
	if err := envelopeError("ohlcv", resp.Response, resp.Message); err != nil {
		return nil, err
	}

	rows := resp.Data.Data
	// The API returns limit+1 bars, the last one still forming.
	if len(rows) > limit {
		rows = rows[len(rows)-limit:]
	}

	candles := make([]Candle, 0, len(rows))
	for _, r := range rows {
		candles = append(candles, Candle{
			OpenTime: time.Unix(r.Time, 0).UTC(),
			Open:     r.Open,
			High:     r.High,
			Low:      r.Low,
			Close:    r.Close,
			Volume:   r.VolumeTo,
		})
	}

	return &Series{
		Symbol:    symbol,
		Timeframe: tf,
		Candles:   candles,
		Provider:  cryptoCompareName,
		FetchedAt: time.Now(),
	}, nil
}

// Quote fetches the current price with market cap and 24h volume.
func (c *CryptoCompareClient) Quote(ctx context.Context, symbol string) (*Quote, error) {
	query := url.Values{}
	query.Set("fsyms", symbol)
	query.Set("tsyms", "USD")

	var resp struct {
		Response string `json:"Response"`
		Message  string `json:"Message"`
		Raw      map[string]struct {
			USD struct {
				Price     float64 `json:"PRICE"`
				MarketCap float64 `json:"MKTCAP"`
				Volume24h float64 `json:"TOTALVOLUME24HTO"`
				Change24h float64 `json:"CHANGEPCT24HOUR"`
			} `json:"USD"`
		} `json:"RAW"`
	}
	if err := c.rest.getJSON(ctx, "quote", "/pricemultifull", query, &resp); err != nil {
		return nil, err
	}
	if err := envelopeError("quote", resp.Response, resp.Message); err != nil {
		return nil, err
	}

	row, ok := resp.Raw[symbol]
	if !ok {
		return nil, Permanent(cryptoCompareName, "quote", fmt.Errorf("no price for %q", symbol))
	}

	usd := row.USD
	return &Quote{
		Symbol:    symbol,
		Price:     usd.Price,
		Volume24h: &usd.Volume24h,
		MarketCap: &usd.MarketCap,
		Change24h: &usd.Change24h,
		Provider:  cryptoCompareName,
		At:        time.Now(),
	}, nil
}
