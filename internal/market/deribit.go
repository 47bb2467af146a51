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

const deribitName = "deribit"

// deribitCurrencies is the set of assets with listed options on
// Deribit. Everything else is unsupported by construction, not a
// failure.
var deribitCurrencies = map[string]bool{
	"BTC": true,
	"ETH": true,
	"SOL": true,
	"XRP": true,
}

// DeribitClient derives options metrics from the Deribit public API:
// put/call ratio and max pain from the option book summary, implied
// volatility from the DVOL index.
type DeribitClient struct {
	rest *restClient
	now  func() time.Time
}

// NewDeribitClient creates a Deribit REST client. The public market
// data endpoints need no credentials.
func NewDeribitClient(opts ClientOptions) *DeribitClient {
	base := opts.BaseURL
	if base == "" {
		base = "https://www.deribit.com/api/v2"
	}
	return &DeribitClient{
		rest: newRESTClient(deribitName, base, opts.Timeout, nil),
		now:  time.Now,
	}
}

// Name implements the provider interfaces.
func (c *DeribitClient) Name() string { return deribitName }

// SupportsSymbol reports whether Deribit lists options for the asset.
func (c *DeribitClient) SupportsSymbol(symbol string) bool {
	return deribitCurrencies[symbol]
}

type deribitError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (c *DeribitClient) classify(op string, e *deribitError) error {
	if e == nil {
		return nil
	}
	// 10028 is Deribit's in-band too_many_requests code.
	if e.Code == 10028 {
		return RateLimited(deribitName, op, 0, fmt.Errorf("%s", e.Message))
	}
	return Permanent(deribitName, op, fmt.Errorf("deribit error %d: %s", e.Code, e.Message))
}

type bookEntry struct {
	InstrumentName  string  `json:"instrument_name"`
	OpenInterest    float64 `json:"open_interest"`
	Volume          float64 `json:"volume"`
	UnderlyingPrice float64 `json:"underlying_price"`
}

// Options computes the options metrics for one asset.
func (c *DeribitClient) Options(ctx context.Context, symbol string) (*OptionsMetrics, error) {
	if !c.SupportsSymbol(symbol) {
		return nil, Unsupported(deribitName, "options:"+symbol)
	}

	query := url.Values{}
	query.Set("currency", symbol)
	query.Set("kind", "option")

	var resp struct {
		Result []bookEntry   `json:"result"`
		Error  *deribitError `json:"error"`
	}
	if err := c.rest.getJSON(ctx, "options", "/public/get_book_summary_by_currency", query, &resp); err != nil {
		return nil, err
	}
	if err := c.classify("options", resp.Error); err != nil {
		return nil, err
	}
	if len(resp.Result) == 0 {
		return nil, Unsupported(deribitName, "options:"+symbol)
	}

	m := &OptionsMetrics{
		Symbol:   symbol,
		Provider: deribitName,
		At:       c.now(),
	}

	var putOI, callOI, totalOI, totalVolume float64
	byExpiry := make(map[string][]strikeOI)
	for _, e := range resp.Result {
		expiry, strike, isPut, ok := parseDeribitInstrument(e.InstrumentName)
		if !ok {
			continue
		}
		if isPut {
			putOI += e.OpenInterest
		} else {
			callOI += e.OpenInterest
		}
		totalOI += e.OpenInterest
		totalVolume += e.Volume
		byExpiry[expiry] = append(byExpiry[expiry], strikeOI{strike: strike, oi: e.OpenInterest, put: isPut})
	}

	if callOI > 0 {
		ratio := putOI / callOI
		m.PutCallRatio = &ratio
	}
	if pain, ok := maxPainStrike(byExpiry); ok {
		m.MaxPain = &pain
	}
	if totalOI > 0 {
		// Daily contract turnover above open interest marks a burst of
		// positioning rather than routine rolling.
		unusual := totalVolume/totalOI > 1.0
		m.UnusualActivity = &unusual
	}

	if iv, err := c.volatilityIndex(ctx, symbol); err != nil {
		log.Debug().
			Str("provider", deribitName).
			Str("symbol", symbol).
			Err(err).
			Msg("No volatility index reading")
	} else {
		m.ImpliedVolatility = iv
	}

	return m, nil
}

// volatilityIndex reads the latest hourly DVOL close, Deribit's
// annualized implied volatility index.
func (c *DeribitClient) volatilityIndex(ctx context.Context, symbol string) (*float64, error) {
	now := c.now()
	query := url.Values{}
	query.Set("currency", symbol)
	query.Set("resolution", "3600")
	query.Set("start_timestamp", strconv.FormatInt(now.Add(-6*time.Hour).UnixMilli(), 10))
	query.Set("end_timestamp", strconv.FormatInt(now.UnixMilli(), 10))

	var resp struct {
		Result struct {
			Data [][]float64 `json:"data"`
		} `json:"result"`
		Error *deribitError `json:"error"`
	}
	if err := c.rest.getJSON(ctx, "volatility_index", "/public/get_volatility_index_data", query, &resp); err != nil {
		return nil, err
	}
	if err := c.classify("volatility_index", resp.Error); err != nil {
		return nil, err
	}
	if len(resp.Result.Data) == 0 {
		return nil, Unsupported(deribitName, "volatility_index:"+symbol)
	}

	// Each entry is [timestamp, open, high, low, close].
	last := resp.Result.Data[len(resp.Result.Data)-1]
	if len(last) < 5 {
		return nil, Transient(deribitName, "volatility_index", fmt.Errorf("malformed index entry"))
	}
	iv := last[4]
	return &iv, nil
}

type strikeOI struct {
	strike float64
	oi     float64
	put    bool
}

// parseDeribitInstrument splits names like BTC-27JUN25-100000-C.
// Fractional strikes use "d" as the decimal mark (XRP-27JUN25-0d55-P).
func parseDeribitInstrument(name string) (expiry string, strike float64, isPut bool, ok bool) {
	parts := strings.Split(name, "-")
	if len(parts) != 4 {
		return "", 0, false, false
	}
	s, err := strconv.ParseFloat(strings.ReplaceAll(parts[2], "d", "."), 64)
	if err != nil {
		return "", 0, false, false
	}
	switch parts[3] {
	case "C":
		return parts[1], s, false, true
	case "P":
		return parts[1], s, true, true
	default:
		return "", 0, false, false
	}
}

// maxPainStrike computes the classic max-pain strike for the expiry
// carrying the most open interest: the strike at which the combined
// intrinsic value paid out to option holders is smallest.
func maxPainStrike(byExpiry map[string][]strikeOI) (float64, bool) {
	var best []strikeOI
	bestOI := 0.0
	for _, entries := range byExpiry {
		total := 0.0
		for _, e := range entries {
			total += e.oi
		}
		if total > bestOI {
			bestOI = total
			best = entries
		}
	}
	if bestOI == 0 {
		return 0, false
	}

	seen := make(map[float64]bool)
	strikes := make([]float64, 0, len(best))
	for _, e := range best {
		if !seen[e.strike] {
			seen[e.strike] = true
			strikes = append(strikes, e.strike)
		}
	}

	painAt := func(settle float64) float64 {
		pain := 0.0
		for _, e := range best {
			if e.put {
				if e.strike > settle {
					pain += e.oi * (e.strike - settle)
				}
			} else {
				if settle > e.strike {
					pain += e.oi * (settle - e.strike)
				}
			}
		}
		return pain
	}

	bestStrike := strikes[0]
	bestPain := painAt(bestStrike)
	for _, k := range strikes[1:] {
		if p := painAt(k); p < bestPain {
			bestPain = p
			bestStrike = k
		}
	}
	return bestStrike, true
}
