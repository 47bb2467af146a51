package market

import (
	"context"
	"net/url"
	"time"
)

const blockflowName = "blockflow"

// blockflowAssets is the coverage list of the Blockflow metrics API.
// On-chain analytics only exist for chains with indexed ledgers, so
// the allowlist is static and short.
var blockflowAssets = map[string]bool{
	"BTC": true, "ETH": true, "SOL": true, "XRP": true, "ADA": true,
	"AVAX": true, "DOT": true, "POL": true, "LINK": true, "UNI": true,
	"LTC": true, "DOGE": true, "TRX": true, "ATOM": true, "NEAR": true,
	"XLM": true, "BCH": true, "ETC": true, "ALGO": true, "FIL": true,
}

// BlockflowClient serves whale, exchange-flow, and network activity
// readings from the Blockflow on-chain metrics API.
type BlockflowClient struct {
	rest *restClient
	now  func() time.Time
}

// NewBlockflowClient creates a Blockflow REST client. The API requires
// a key on every call.
func NewBlockflowClient(opts ClientOptions) *BlockflowClient {
	base := opts.BaseURL
	if base == "" {
		base = "https://api.blockflow.dev/v1"
	}
	headers := map[string]string{}
	if opts.APIKey != "" {
		headers["X-API-Key"] = opts.APIKey
	}
	return &BlockflowClient{
		rest: newRESTClient(blockflowName, base, opts.Timeout, headers),
		now:  time.Now,
	}
}

// Name implements the provider interfaces.
func (c *BlockflowClient) Name() string { return blockflowName }

// SupportsSymbol reports whether the asset's chain is indexed.
func (c *BlockflowClient) SupportsSymbol(symbol string) bool {
	return blockflowAssets[symbol]
}

// OnChain fetches the 24h on-chain metrics for one asset.
func (c *BlockflowClient) OnChain(ctx context.Context, symbol string) (*OnChainMetrics, error) {
	if !c.SupportsSymbol(symbol) {
		return nil, Unsupported(blockflowName, "onchain:"+symbol)
	}

	query := url.Values{}
	query.Set("window", "24h")

	var resp struct {
		Asset              string   `json:"asset"`
		WhaleScore         *float64 `json:"whale_score"`
		ExchangeNetflowUSD *float64 `json:"exchange_netflow_usd"`
		ActiveAddrChange   *float64 `json:"active_addresses_change_pct"`
		Signal             string   `json:"signal"`
	}
	if err := c.rest.getJSON(ctx, "onchain", "/metrics/"+symbol, query, &resp); err != nil {
		return nil, err
	}

	signal := resp.Signal
	switch signal {
	case SignalAccumulation, SignalDistribution, SignalNeutral:
	default:
		signal = SignalNeutral
	}

	return &OnChainMetrics{
		Symbol:          symbol,
		WhaleActivity:   resp.WhaleScore,
		ExchangeFlows:   resp.ExchangeNetflowUSD,
		NetworkActivity: resp.ActiveAddrChange,
		OverallSignal:   signal,
		Provider:        blockflowName,
		At:              c.now(),
	}, nil
}
