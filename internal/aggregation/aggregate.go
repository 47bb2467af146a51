// Package aggregation turns one coin's bot votes into at most one
// recommendation: gate, regime-weight, tally, boost, then optionally
// refine through the AI review panel before shaping the rows a scan
// persists.
package aggregation

import (
	"sort"

	"github.com/google/uuid"

	"github.com/CodyDvorak/CryptoOracle-sub001/internal/bots"
	"github.com/CodyDvorak/CryptoOracle-sub001/internal/indicators"
	"github.com/CodyDvorak/CryptoOracle-sub001/internal/llm"
	"github.com/CodyDvorak/CryptoOracle-sub001/internal/market"
)

// Input is everything the pipeline observes for one coin: the votes
// the bot bank produced, the feature snapshot those bots voted on,
// and the adaptive weights fixed at scan start.
type Input struct {
	RunID    uuid.UUID
	Coin     market.Coin
	Votes    []*bots.Vote
	Features *bots.FeatureSet
	Snapshot *bots.WeightsSnapshot

	// EnabledBots is how many bots ran, voting or not. It fixes the
	// abstention count reported to the review panel.
	EnabledBots int
}

// Draft is the aggregated view of one coin after gating, weighting
// and every boost, before AI refinement and persistence shaping.
type Draft struct {
	Direction  bots.Direction
	Confidence float64 // 0..1
	Agreement  float64 // winning-side share of gated votes, 0..1
	Alignment  int     // timeframe alignment score: 0, 25, 50, 75 or 100
	DominantTF string  // modal regime label across available timeframes
	Regime     indicators.Regime

	// Gated holds the votes that survived the confidence gate, in
	// input order; Effective carries their regime-weighted
	// confidences, parallel to Gated.
	Gated     []*bots.Vote
	Effective []float64

	LongVotes   int
	ShortVotes  int
	Abstentions int

	Flags []string

	// AI is the primary seat's verdict once the panel has run.
	AI      *llm.Refinement
	Refined bool
}

// Aggregate runs the deterministic half of the pipeline. It returns
// nil when the coin carries no signal worth keeping: every vote gated
// out, or a dead-even tally.
func Aggregate(in Input) *Draft {
	gated := make([]*bots.Vote, 0, len(in.Votes))
	for _, v := range in.Votes {
		if v == nil || v.Confidence < minVoteConfidence {
			continue
		}
		if v.Direction != bots.DirectionLong && v.Direction != bots.DirectionShort {
			continue
		}
		gated = append(gated, v)
	}
	if len(gated) == 0 {
		return nil
	}

	regime := dailyRegime(in.Features)
	regimeStr := string(regime.Label)

	// Effective confidences stay floats through the tallies; the
	// clamp keeps a heavily down-weighted vote from vanishing and a
	// boosted one from dominating.
	eff := make([]float64, len(gated))
	for i, v := range gated {
		eff[i] = clamp(float64(v.Confidence)*multiplierFor(v.Category, regime.Label), 1, 10)
	}

	var longScore, shortScore float64
	var longWeight, shortWeight float64
	var longCount, shortCount int
	for i, v := range gated {
		w := in.Snapshot.Weight(v.BotName, regimeStr)
		if v.Direction == bots.DirectionLong {
			longScore += eff[i] * w
			longWeight += w
			longCount++
		} else {
			shortScore += eff[i] * w
			shortWeight += w
			shortCount++
		}
	}

	direction := bots.DirectionLong
	winScore, winWeight, winCount := longScore, longWeight, longCount
	switch {
	case longScore > shortScore:
	case shortScore > longScore:
		direction = bots.DirectionShort
		winScore, winWeight, winCount = shortScore, shortWeight, shortCount
	default:
		// Score tie: the side with the higher median raw confidence
		// wins. A full tie means no signal.
		longMed := medianConfidence(gated, bots.DirectionLong)
		shortMed := medianConfidence(gated, bots.DirectionShort)
		if shortMed > longMed {
			direction = bots.DirectionShort
			winScore, winWeight, winCount = shortScore, shortWeight, shortCount
		} else if longMed == shortMed {
			return nil
		}
	}

	// Base confidence is the bot-weighted mean effective confidence
	// of the winning side, normalized to [0,1].
	confidence := winScore / winWeight / 10

	agreement := float64(winCount) / float64(len(gated))

	var flags []string
	switch {
	case agreement >= strongConsensusShare:
		confidence *= strongConsensusBoost
		flags = append(flags, FlagStrongConsensus)
	case agreement < weakConsensusShare:
		confidence *= weakConsensusPenalty
		flags = append(flags, FlagHighUncertainty)
	}

	contrarians := 0
	for _, v := range gated {
		if v.Category == bots.CategoryContrarian && v.Direction == direction && v.Confidence >= contrarianMinConfidence {
			contrarians++
		}
	}
	if contrarians >= contrarianMinVotes {
		confidence *= contrarianBoost
		flags = append(flags, FlagContrarianBoost)
	}

	alignment, dominant := timeframeAlignment(in.Features)
	confidence *= alignmentBoost(alignment)

	nudge := 1.0
	if sentimentMatches(in.Features, direction) {
		nudge *= sentimentNudge
	}
	if onChainMatches(in.Features, direction) {
		nudge *= onChainNudge
	}
	if nudge > maxNudge {
		nudge = maxNudge
	}
	confidence *= nudge

	abstentions := in.EnabledBots - len(in.Votes)
	if abstentions < 0 {
		abstentions = 0
	}

	return &Draft{
		Direction:   direction,
		Confidence:  clamp(confidence, 0, 1),
		Agreement:   agreement,
		Alignment:   alignment,
		DominantTF:  dominant,
		Regime:      regime,
		Gated:       gated,
		Effective:   eff,
		LongVotes:   longCount,
		ShortVotes:  shortCount,
		Abstentions: abstentions,
		Flags:       flags,
	}
}

// dailyRegime is the regime the weighting keys on. Without daily
// features the coin is treated as directionless chop.
func dailyRegime(fs *bots.FeatureSet) indicators.Regime {
	if fs == nil || fs.Daily == nil {
		return indicators.Regime{Label: indicators.RegimeSideways}
	}
	return fs.Daily.Regime
}

// timeframeAlignment scores how many of the 1h/4h/1d/1w regimes agree
// with the daily read, 25 points each, and names the modal regime
// across the timeframes that were available. Missing timeframes count
// as disagreement; a missing daily zeroes the score.
func timeframeAlignment(fs *bots.FeatureSet) (int, string) {
	if fs == nil || fs.Daily == nil {
		return 0, ""
	}

	ref := fs.Daily.Regime.Label
	frames := []*indicators.FeatureVector{fs.Hourly, fs.FourHour, fs.Daily, fs.Weekly}

	matches := 0
	counts := make(map[indicators.RegimeLabel]int, 4)
	for _, fv := range frames {
		if fv == nil {
			continue
		}
		counts[fv.Regime.Label]++
		if fv.Regime.Label == ref {
			matches++
		}
	}

	// Modal label across timeframes; the daily read wins ties.
	dominant, best := ref, counts[ref]
	for label, n := range counts {
		if n > best {
			dominant, best = label, n
		}
	}

	return matches * 25, string(dominant)
}

func sentimentMatches(fs *bots.FeatureSet, dir bots.Direction) bool {
	if fs == nil || fs.Sentiment == nil {
		return false
	}
	switch fs.Sentiment.Classification {
	case market.SentimentBullish, market.SentimentVeryBullish:
		return dir == bots.DirectionLong
	case market.SentimentBearish, market.SentimentVeryBearish:
		return dir == bots.DirectionShort
	}
	return false
}

func onChainMatches(fs *bots.FeatureSet, dir bots.Direction) bool {
	if fs == nil || fs.OnChain == nil {
		return false
	}
	switch fs.OnChain.OverallSignal {
	case market.SignalAccumulation:
		return dir == bots.DirectionLong
	case market.SignalDistribution:
		return dir == bots.DirectionShort
	}
	return false
}

// medianConfidence is the median raw confidence of one side's votes.
func medianConfidence(votes []*bots.Vote, dir bots.Direction) float64 {
	vals := make([]float64, 0, len(votes))
	for _, v := range votes {
		if v.Direction == dir {
			vals = append(vals, float64(v.Confidence))
		}
	}
	return median(vals)
}

// median of a slice, averaging the two central values for even
// counts. Zero for an empty slice.
func median(vals []float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	sorted := append([]float64(nil), vals...)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
