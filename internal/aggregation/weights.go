package aggregation

import (
	"github.com/CodyDvorak/CryptoOracle-sub001/internal/bots"
	"github.com/CodyDvorak/CryptoOracle-sub001/internal/indicators"
)

// Pipeline tuning. These values are the testable contract of the
// aggregation stage; change them and the scenario tests change with
// them.
const (
	// minVoteConfidence gates raw votes before any weighting. A vote
	// below the floor is dropped and never persisted.
	minVoteConfidence = 6

	// Consensus tiers on the winning side's share of gated votes.
	strongConsensusShare = 0.80
	weakConsensusShare   = 0.50
	strongConsensusBoost = 1.15
	weakConsensusPenalty = 0.7

	// Contrarian amplification: at least this many contrarian votes on
	// the winning side at or above the confidence bar. Applied once.
	contrarianMinVotes      = 3
	contrarianMinConfidence = 7
	contrarianBoost         = 1.15

	// External-signal nudges. Multiplicative, jointly capped.
	sentimentNudge = 1.10
	onChainNudge   = 1.05
	maxNudge       = 1.15

	// AI refinement: consulted only above the floor, verdicts clipped
	// to the ceiling. Two-seat disagreement beyond refineDisagreement
	// takes the minimum; agreement within refineAgreementBand earns
	// the boost.
	refineMinConfidence  = 0.75
	refineCeiling        = 0.95
	refineDisagreement   = 0.10
	refineAgreementBand  = 0.05
	refineAgreementBoost = 1.08

	// Horizon move sizes at full confidence, as fractions of price.
	horizon24hPct = 0.02
	horizon48hPct = 0.04
	horizon7dPct  = 0.08
)

// Flags attached to drafts. They ride into the refinement prompt, the
// analysis journal and the persisted risk assessment.
const (
	FlagStrongConsensus = "STRONG_CONSENSUS"
	FlagHighUncertainty = "HIGH_UNCERTAINTY"
	FlagContrarianBoost = "CONTRARIAN_BOOST"
)

// regimeMultipliers scales a vote's effective confidence by how its
// category behaves in the prevailing daily regime: directional
// categories are turned up in trending tape and down in chop, mean
// reversion is the mirror image, volatility strategies peak when the
// regime is VOLATILE. Categories absent from the table (pattern,
// on-chain, sentiment, specialized, ai) keep their raw confidence
// everywhere.
var regimeMultipliers = map[bots.Category]map[indicators.RegimeLabel]float64{
	bots.CategoryTrend: {
		indicators.RegimeBull:     1.3,
		indicators.RegimeBear:     1.3,
		indicators.RegimeSideways: 0.7,
		indicators.RegimeVolatile: 0.9,
	},
	bots.CategoryMeanReversion: {
		indicators.RegimeBull:     0.7,
		indicators.RegimeBear:     0.7,
		indicators.RegimeSideways: 1.3,
		indicators.RegimeVolatile: 0.9,
	},
	bots.CategoryMomentum: {
		indicators.RegimeBull:     1.2,
		indicators.RegimeBear:     1.2,
		indicators.RegimeSideways: 0.8,
		indicators.RegimeVolatile: 1.0,
	},
	bots.CategoryVolume: {
		indicators.RegimeBull:     1.0,
		indicators.RegimeBear:     1.0,
		indicators.RegimeSideways: 1.0,
		indicators.RegimeVolatile: 1.2,
	},
	bots.CategoryVolatility: {
		indicators.RegimeBull:     0.9,
		indicators.RegimeBear:     0.9,
		indicators.RegimeSideways: 0.9,
		indicators.RegimeVolatile: 1.4,
	},
	bots.CategoryContrarian: {
		indicators.RegimeBull:     0.8,
		indicators.RegimeBear:     0.8,
		indicators.RegimeSideways: 1.1,
		indicators.RegimeVolatile: 1.0,
	},
	bots.CategoryDerivatives: {
		indicators.RegimeBull:     1.1,
		indicators.RegimeBear:     1.1,
		indicators.RegimeSideways: 1.0,
		indicators.RegimeVolatile: 1.1,
	},
}

// multiplierFor returns the regime multiplier for a category, 1.0 for
// categories or regimes outside the table.
func multiplierFor(cat bots.Category, regime indicators.RegimeLabel) float64 {
	row, ok := regimeMultipliers[cat]
	if !ok {
		return 1.0
	}
	m, ok := row[regime]
	if !ok {
		return 1.0
	}
	return m
}

// alignmentBoost maps the timeframe alignment score to its confidence
// multiplier. Full agreement across 1h/4h/1d/1w is rewarded, a daily
// read contradicted by every other timeframe is penalized.
func alignmentBoost(score int) float64 {
	switch {
	case score >= 100:
		return 1.30
	case score >= 75:
		return 1.20
	case score >= 50:
		return 1.00
	case score >= 25:
		return 0.90
	default:
		return 0.80
	}
}
