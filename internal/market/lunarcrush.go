package market

import (
	"context"
	"fmt"
	"time"
)

const lunarCrushName = "lunarcrush"

// LunarCrushClient serves social sentiment from the LunarCrush public
// API. LunarCrush reports sentiment as percent-bullish in [0, 100];
// the client rescales everything onto [-1, 1] so downstream consumers
// see one scale regardless of provider.
type LunarCrushClient struct {
	rest *restClient
	now  func() time.Time
}

// NewLunarCrushClient creates a LunarCrush REST client. The API
// requires a bearer token on every call.
func NewLunarCrushClient(opts ClientOptions) *LunarCrushClient {
	base := opts.BaseURL
	if base == "" {
		base = "https://lunarcrush.com/api4/public"
	}
	headers := map[string]string{}
	if opts.APIKey != "" {
		headers["Authorization"] = "Bearer " + opts.APIKey
	}
	return &LunarCrushClient{
		rest: newRESTClient(lunarCrushName, base, opts.Timeout, headers),
		now:  time.Now,
	}
}

// Name implements the provider interfaces.
func (c *LunarCrushClient) Name() string { return lunarCrushName }

func rescaleSentiment(percentBullish float64) float64 {
	score := (percentBullish - 50) / 50
	if score > 1 {
		score = 1
	}
	if score < -1 {
		score = -1
	}
	return score
}

// Sentiment fetches the social sentiment snapshot for one asset.
func (c *LunarCrushClient) Sentiment(ctx context.Context, symbol string) (*SentimentMetrics, error) {
	var resp struct {
		Data struct {
			Symbol          string             `json:"symbol"`
			Sentiment       *float64           `json:"sentiment"` // percent bullish, 0-100
			Interactions24h *float64           `json:"interactions_24h"`
			SocialVolume24h *float64           `json:"social_volume_24h"`
			GalaxyScore     *float64           `json:"galaxy_score"`
			TypesSentiment  map[string]float64 `json:"types_sentiment"`
		} `json:"data"`
	}
	if err := c.rest.getJSON(ctx, "sentiment", "/coins/"+symbol+"/v1", nil, &resp); err != nil {
		return nil, err
	}
	if resp.Data.Sentiment == nil {
		return nil, Permanent(lunarCrushName, "sentiment", fmt.Errorf("no sentiment for %q", symbol))
	}

	score := rescaleSentiment(*resp.Data.Sentiment)

	m := &SentimentMetrics{
		Symbol:         symbol,
		Score:          &score,
		Classification: ClassifySentiment(score),
		Provider:       lunarCrushName,
		At:             c.now(),
	}

	if resp.Data.Interactions24h != nil {
		m.Volume = resp.Data.Interactions24h
	} else if resp.Data.SocialVolume24h != nil {
		m.Volume = resp.Data.SocialVolume24h
	}

	if len(resp.Data.TypesSentiment) > 0 {
		m.Sources = make(map[string]float64, len(resp.Data.TypesSentiment))
		for source, pct := range resp.Data.TypesSentiment {
			m.Sources[source] = rescaleSentiment(pct)
		}
	}

	return m, nil
}
