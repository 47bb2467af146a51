package market

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"
)

const coinalyzeName = "coinalyze"

// CoinalyzeClient serves futures metrics from the Coinalyze API.
// Readings are taken from the Binance USDT perpetual, Coinalyze's
// exchange code "A", which carries the deepest liquidity for nearly
// every listed asset.
type CoinalyzeClient struct {
	rest *restClient
	now  func() time.Time
}

// NewCoinalyzeClient creates a Coinalyze REST client. The API requires
// a key on every call.
func NewCoinalyzeClient(opts ClientOptions) *CoinalyzeClient {
	base := opts.BaseURL
	if base == "" {
		base = "https://api.coinalyze.net/v1"
	}
	headers := map[string]string{}
	if opts.APIKey != "" {
		headers["api_key"] = opts.APIKey
	}
	return &CoinalyzeClient{
		rest: newRESTClient(coinalyzeName, base, opts.Timeout, headers),
		now:  time.Now,
	}
}

// Name implements the provider interfaces.
func (c *CoinalyzeClient) Name() string { return coinalyzeName }

func coinalyzeSymbol(symbol string) string {
	return fmt.Sprintf("%sUSDT_PERP.A", symbol)
}

type coinalyzeValue struct {
	Symbol string  `json:"symbol"`
	Value  float64 `json:"value"`
	Update int64   `json:"update"`
}

func (c *CoinalyzeClient) currentValue(ctx context.Context, op, path string, symbol string, extra url.Values) (*float64, error) {
	query := url.Values{}
	query.Set("symbols", coinalyzeSymbol(symbol))
	for k, vs := range extra {
		for _, v := range vs {
			query.Add(k, v)
		}
	}

	var rows []coinalyzeValue
	if err := c.rest.getJSON(ctx, op, path, query, &rows); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, Unsupported(coinalyzeName, op+":"+symbol)
	}
	v := rows[0].Value
	return &v, nil
}

// Derivatives fetches funding rate, USD open interest, and the latest
// hourly long/short ratio. Sub-metrics fail independently; the call
// errors only when all three are lost.
func (c *CoinalyzeClient) Derivatives(ctx context.Context, symbol string) (*DerivativesMetrics, error) {
	m := &DerivativesMetrics{
		Symbol:   symbol,
		Provider: coinalyzeName,
		At:       c.now(),
	}
	var firstErr error

	funding, err := c.currentValue(ctx, "funding_rate", "/funding-rate", symbol, nil)
	if err != nil {
		firstErr = err
	} else {
		m.FundingRate = funding
	}

	oiParams := url.Values{}
	oiParams.Set("convert_to_usd", "true")
	oi, err := c.currentValue(ctx, "open_interest", "/open-interest", symbol, oiParams)
	if err != nil {
		if firstErr == nil {
			firstErr = err
		}
	} else {
		m.OpenInterest = oi
	}

	ratio, err := c.longShortRatio(ctx, symbol)
	if err != nil {
		if firstErr == nil {
			firstErr = err
		}
	} else {
		m.LongShortRatio = ratio
	}

	if m.FundingRate == nil && m.OpenInterest == nil && m.LongShortRatio == nil {
		if firstErr != nil {
			return nil, firstErr
		}
		return nil, Unsupported(coinalyzeName, "derivatives:"+symbol)
	}
	return m, nil
}

// longShortRatio reads the most recent point of the hourly ratio
// history; Coinalyze has no current-value endpoint for this metric.
func (c *CoinalyzeClient) longShortRatio(ctx context.Context, symbol string) (*float64, error) {
	now := c.now()
	query := url.Values{}
	query.Set("symbols", coinalyzeSymbol(symbol))
	query.Set("interval", "1hour")
	query.Set("from", strconv.FormatInt(now.Add(-3*time.Hour).Unix(), 10))
	query.Set("to", strconv.FormatInt(now.Unix(), 10))

	var rows []struct {
		Symbol  string `json:"symbol"`
		History []struct {
			T int64   `json:"t"`
			R float64 `json:"r"`
			L float64 `json:"l"`
			S float64 `json:"s"`
		} `json:"history"`
	}
	if err := c.rest.getJSON(ctx, "long_short_ratio", "/long-short-ratio-history", query, &rows); err != nil {
		return nil, err
	}
	if len(rows) == 0 || len(rows[0].History) == 0 {
		return nil, Unsupported(coinalyzeName, "long_short_ratio:"+symbol)
	}

	last := rows[0].History[len(rows[0].History)-1]
	r := last.R
	return &r, nil
}
