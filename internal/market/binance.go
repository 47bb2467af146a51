package market

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/common"
	"github.com/adshao/go-binance/v2/futures"
	"github.com/rs/zerolog/log"
)

const binanceName = "binance"

// BinanceClient serves candle history and quotes from the Binance spot
// API and funding, open interest, and long/short readings from the
// USD-M futures API. Assets are addressed as USDT pairs.
type BinanceClient struct {
	spot *binance.Client
	fut  *futures.Client
}

// NewBinanceClient creates a Binance client. Market data endpoints
// work without credentials.
func NewBinanceClient(opts ClientOptions) *BinanceClient {
	spot := binance.NewClient(opts.APIKey, "")
	fut := binance.NewFuturesClient(opts.APIKey, "")

	if opts.Timeout > 0 {
		spot.HTTPClient = &http.Client{Timeout: opts.Timeout}
		fut.HTTPClient = &http.Client{Timeout: opts.Timeout}
	}
	if opts.BaseURL != "" {
		spot.BaseURL = opts.BaseURL
		fut.BaseURL = opts.BaseURL
	}

	return &BinanceClient{spot: spot, fut: fut}
}

// Name implements the provider interfaces.
func (c *BinanceClient) Name() string { return binanceName }

// pair maps a canonical symbol onto its Binance USDT pair.
func (c *BinanceClient) pair(symbol string) (string, error) {
	if symbol == "" || symbol == "USDT" {
		return "", Unsupported(binanceName, "pair:"+symbol)
	}
	return symbol + "USDT", nil
}

// classifyBinanceErr maps go-binance failures onto typed outcomes.
// Binance signals rate limiting with code -1003 and transient server
// trouble with the -1000 family; everything else coded is permanent.
func classifyBinanceErr(op string, err error) error {
	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case -1003, -1015:
			return RateLimited(binanceName, op, 0, err)
		case -1000, -1001, -1007:
			return Transient(binanceName, op, err)
		default:
			return Permanent(binanceName, op, err)
		}
	}
	return Transient(binanceName, op, err)
}

var binanceIntervals = map[Timeframe]string{
	Timeframe1h: "1h",
	Timeframe4h: "4h",
	Timeframe1d: "1d",
	Timeframe1w: "1w",
}

// OHLCV fetches candle history from the spot klines endpoint.
func (c *BinanceClient) OHLCV(ctx context.Context, symbol string, tf Timeframe, limit int) (*Series, error) {
	pair, err := c.pair(symbol)
	if err != nil {
		return nil, err
	}
	interval, ok := binanceIntervals[tf]
	if !ok {
		return nil, Unsupported(binanceName, "ohlcv:"+string(tf))
	}

	klines, err := c.spot.NewKlinesService().
		Symbol(pair).
		Interval(interval).
		Limit(limit).
		Do(ctx)
	if err != nil {
		return nil, classifyBinanceErr("ohlcv", err)
	}

	candles := make([]Candle, 0, len(klines))
	for _, k := range klines {
		open, err1 := strconv.ParseFloat(k.Open, 64)
		high, err2 := strconv.ParseFloat(k.High, 64)
		low, err3 := strconv.ParseFloat(k.Low, 64)
		closePrice, err4 := strconv.ParseFloat(k.Close, 64)
		quoteVol, err5 := strconv.ParseFloat(k.QuoteAssetVolume, 64)
		if err1 != nil || err2 != nil || err3 != nil || err4 != nil || err5 != nil {
			return nil, Transient(binanceName, "ohlcv", fmt.Errorf("malformed kline for %s", pair))
		}
		candles = append(candles, Candle{
			OpenTime: time.UnixMilli(k.OpenTime).UTC(),
			Open:     open,
			High:     high,
			Low:      low,
			Close:    closePrice,
			Volume:   quoteVol,
		})
	}

	log.Debug().
		Str("provider", binanceName).
		Str("symbol", symbol).
		Str("timeframe", string(tf)).
		Int("candles", len(candles)).
		Msg("Fetched candle history")

	return &Series{
		Symbol:    symbol,
		Timeframe: tf,
		Candles:   candles,
		Provider:  binanceName,
		FetchedAt: time.Now(),
	}, nil
}

// Quote fetches the 24h ticker for a symbol.
func (c *BinanceClient) Quote(ctx context.Context, symbol string) (*Quote, error) {
	pair, err := c.pair(symbol)
	if err != nil {
		return nil, err
	}

	stats, err := c.spot.NewListPriceChangeStatsService().Symbol(pair).Do(ctx)
	if err != nil {
		return nil, classifyBinanceErr("quote", err)
	}
	if len(stats) == 0 {
		return nil, Permanent(binanceName, "quote", fmt.Errorf("no ticker for %s", pair))
	}

	t := stats[0]
	price, err := strconv.ParseFloat(t.LastPrice, 64)
	if err != nil {
		return nil, Transient(binanceName, "quote", fmt.Errorf("malformed ticker for %s", pair))
	}

	q := &Quote{
		Symbol:   symbol,
		Price:    price,
		Provider: binanceName,
		At:       time.Now(),
	}
	if v, err := strconv.ParseFloat(t.QuoteVolume, 64); err == nil {
		q.Volume24h = &v
	}
	if v, err := strconv.ParseFloat(t.PriceChangePercent, 64); err == nil {
		q.Change24h = &v
	}
	return q, nil
}

// Derivatives fetches funding rate, open interest, and the global
// long/short account ratio from the USD-M futures API. Sub-metrics
// fail independently; the call errors only when all three are lost.
func (c *BinanceClient) Derivatives(ctx context.Context, symbol string) (*DerivativesMetrics, error) {
	pair, err := c.pair(symbol)
	if err != nil {
		return nil, err
	}

	m := &DerivativesMetrics{
		Symbol:   symbol,
		Provider: binanceName,
		At:       time.Now(),
	}
	var firstErr error
	markPrice := 0.0

	premium, err := c.fut.NewPremiumIndexService().Symbol(pair).Do(ctx)
	if err != nil {
		firstErr = classifyBinanceErr("derivatives", err)
	} else if len(premium) > 0 {
		if rate, err := strconv.ParseFloat(premium[0].LastFundingRate, 64); err == nil {
			m.FundingRate = &rate
		}
		if mp, err := strconv.ParseFloat(premium[0].MarkPrice, 64); err == nil {
			markPrice = mp
		}
	}

	oi, err := c.fut.NewGetOpenInterestService().Symbol(pair).Do(ctx)
	if err != nil {
		if firstErr == nil {
			firstErr = classifyBinanceErr("derivatives", err)
		}
	} else if oi != nil && markPrice > 0 {
		if contracts, err := strconv.ParseFloat(oi.OpenInterest, 64); err == nil {
			notional := contracts * markPrice
			m.OpenInterest = &notional
		}
	}

	ratios, err := c.fut.NewLongShortRatioService().Symbol(pair).Period("1h").Limit(1).Do(ctx)
	if err != nil {
		if firstErr == nil {
			firstErr = classifyBinanceErr("derivatives", err)
		}
	} else if len(ratios) > 0 {
		if r, err := strconv.ParseFloat(ratios[0].LongShortRatio, 64); err == nil {
			m.LongShortRatio = &r
		}
	}

	if m.FundingRate == nil && m.OpenInterest == nil && m.LongShortRatio == nil {
		if firstErr != nil {
			return nil, firstErr
		}
		return nil, Transient(binanceName, "derivatives", fmt.Errorf("no futures data for %s", pair))
	}
	return m, nil
}
