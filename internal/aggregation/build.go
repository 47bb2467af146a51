package aggregation

import (
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/CodyDvorak/CryptoOracle-sub001/internal/bots"
	"github.com/CodyDvorak/CryptoOracle-sub001/internal/db"
)

// Result pairs a recommendation row with its per-bot prediction rows.
// The scan persists the pair in one transaction.
type Result struct {
	Recommendation *db.Recommendation
	Predictions    []*db.BotPrediction
}

// Build shapes a draft into persistable rows: median price targets
// from the winning side, confidence-scaled horizon predictions,
// integer per-bot confidences, and non-finite numbers replaced with
// NULL. Fresh row ids are assigned here; everything upstream of Build
// is deterministic.
func Build(in Input, d *Draft, now time.Time) *Result {
	if d == nil {
		return nil
	}

	var entries, takes, stops []float64
	for _, v := range d.Gated {
		if v.Direction != d.Direction {
			continue
		}
		entries = append(entries, v.Entry)
		takes = append(takes, v.TakeProfit)
		stops = append(stops, v.StopLoss)
	}

	dirSign := 1.0
	if d.Direction == bots.DirectionShort {
		dirSign = -1
	}

	price := in.Coin.Price
	move24 := dirSign * horizon24hPct * d.Confidence
	move48 := dirSign * horizon48hPct * d.Confidence
	move7d := dirSign * horizon7dPct * d.Confidence

	rec := &db.Recommendation{
		ID:                      uuid.New(),
		RunID:                   in.RunID,
		Coin:                    in.Coin.Name,
		Ticker:                  in.Coin.Symbol,
		CurrentPrice:            finitePtr(price),
		ConsensusDirection:      db.Direction(d.Direction),
		AvgConfidence:           finitePtr(d.Confidence),
		BotCount:                len(d.Gated),
		LongBots:                d.LongVotes,
		ShortBots:               d.ShortVotes,
		AvgEntry:                finitePtr(median(entries)),
		AvgTakeProfit:           finitePtr(median(takes)),
		AvgStopLoss:             finitePtr(median(stops)),
		Predicted24h:            finitePtr(price * (1 + move24)),
		Predicted48h:            finitePtr(price * (1 + move48)),
		Predicted7d:             finitePtr(price * (1 + move7d)),
		PredictedChange24h:      finitePtr(move24 * 100),
		PredictedChange48h:      finitePtr(move48 * 100),
		PredictedChange7d:       finitePtr(move7d * 100),
		MarketRegime:            string(d.Regime.Label),
		RegimeConfidence:        finitePtr(d.Regime.Confidence),
		TimeframeAlignmentScore: finitePtr(float64(d.Alignment)),
		DominantTimeframeRegime: strPtr(d.DominantTF),
		CreatedAt:               now,
	}

	if fs := in.Features; fs != nil {
		if fs.OnChain != nil {
			rec.OnchainSignal = strPtr(fs.OnChain.OverallSignal)
		}
		if fs.Sentiment != nil && fs.Sentiment.Score != nil {
			rec.SocialSentimentScore = finitePtr(*fs.Sentiment.Score)
		}
	}

	var riskParts []string
	if d.AI != nil {
		rec.AIReasoning = strPtr(d.AI.Reasoning)
		rec.ActionPlan = strPtr(d.AI.ActionPlan)
		rec.MarketContext = strPtr(d.AI.MarketContext)
		if d.AI.RiskAssessment != "" {
			riskParts = append(riskParts, d.AI.RiskAssessment)
		}
	}
	if len(d.Flags) > 0 {
		riskParts = append(riskParts, "Flags: "+strings.Join(d.Flags, ", "))
	}
	rec.RiskAssessment = strPtr(strings.Join(riskParts, " "))

	preds := make([]*db.BotPrediction, 0, len(d.Gated))
	for i, v := range d.Gated {
		preds = append(preds, &db.BotPrediction{
			ID:                uuid.New(),
			RunID:             in.RunID,
			BotName:           v.BotName,
			CoinSymbol:        in.Coin.Symbol,
			CoinName:          in.Coin.Name,
			EntryPrice:        finitePtr(v.Entry),
			TargetPrice:       finitePtr(v.TakeProfit),
			StopLoss:          finitePtr(v.StopLoss),
			PositionDirection: db.Direction(v.Direction),
			ConfidenceScore:   roundScore(d.Effective[i]),
			Leverage:          v.Leverage,
			Timestamp:         now,
			MarketRegime:      string(d.Regime.Label),
			OutcomeStatus:     db.OutcomePending,
		})
	}

	return &Result{Recommendation: rec, Predictions: preds}
}

// roundScore rounds an effective confidence to the integer 1..10 the
// prediction row carries.
func roundScore(eff float64) int {
	score := int(math.Round(eff))
	if score < 1 {
		return 1
	}
	if score > 10 {
		return 10
	}
	return score
}

// finitePtr returns the value as a pointer, nil for NaN and Inf so
// the column lands as NULL instead of an unrepresentable float.
func finitePtr(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
