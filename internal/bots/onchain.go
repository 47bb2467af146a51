package bots

import (
	"fmt"
	"math"

	"github.com/CodyDvorak/CryptoOracle-sub001/internal/market"
)

// onChainBots read chain activity: who is moving coins and where.
// Their data only exists for the allowlisted majors, so they abstain
// on most of the universe.
func onChainBots() []Bot {
	return []Bot{
		&rule{name: "whale_watcher", category: CategoryOnChain, analyze: analyzeWhaleWatcher},
		&rule{name: "exchange_flow", category: CategoryOnChain, analyze: analyzeExchangeFlow},
		&rule{name: "network_pulse", category: CategoryOnChain, analyze: analyzeNetworkPulse},
	}
}

func analyzeWhaleWatcher(f *FeatureSet) *signal {
	oc := f.OnChain
	if oc == nil {
		return nil
	}
	activity, ok := val(oc.WhaleActivity)
	if !ok || activity < 70 {
		return nil
	}
	conf := clampConf(6 + int((activity-70)/15))
	switch oc.OverallSignal {
	case market.SignalAccumulation:
		return &signal{
			dir:        DirectionLong,
			confidence: conf,
			leverage:   defaultLeverage,
			takeProfit: 7, stopLoss: 4,
			rationale: fmt.Sprintf("whales accumulating, activity %.0f", activity),
		}
	case market.SignalDistribution:
		return &signal{
			dir:        DirectionShort,
			confidence: conf,
			leverage:   defaultLeverage,
			takeProfit: 7, stopLoss: 4,
			rationale: fmt.Sprintf("whales distributing, activity %.0f", activity),
		}
	}
	return nil
}

func analyzeExchangeFlow(f *FeatureSet) *signal {
	oc := f.OnChain
	if oc == nil {
		return nil
	}
	flows, ok := val(oc.ExchangeFlows)
	if !ok {
		return nil
	}
	const floor = 25e6 // USD over 24h
	if math.Abs(flows) < floor {
		return nil
	}
	conf := clampConf(6 + int(math.Abs(flows)/floor/2))
	if flows < 0 {
		return &signal{
			dir:        DirectionLong,
			confidence: conf,
			leverage:   defaultLeverage,
			takeProfit: 6, stopLoss: 3.5,
			rationale: fmt.Sprintf("$%.0fM net flow off exchanges", -flows/1e6),
		}
	}
	return &signal{
		dir:        DirectionShort,
		confidence: conf,
		leverage:   defaultLeverage,
		takeProfit: 6, stopLoss: 3.5,
		rationale: fmt.Sprintf("$%.0fM net flow onto exchanges", flows/1e6),
	}
}

func analyzeNetworkPulse(f *FeatureSet) *signal {
	oc := f.OnChain
	if oc == nil {
		return nil
	}
	activity, ok := val(oc.NetworkActivity)
	if !ok || math.Abs(activity) < 20 {
		return nil
	}
	if activity > 0 {
		return &signal{
			dir:        DirectionLong,
			confidence: 6,
			leverage:   defaultLeverage,
			takeProfit: 6, stopLoss: 4,
			rationale: fmt.Sprintf("active addresses up %.0f%%", activity),
		}
	}
	return &signal{
		dir:        DirectionShort,
		confidence: 6,
		leverage:   defaultLeverage,
		takeProfit: 6, stopLoss: 4,
		rationale: fmt.Sprintf("active addresses down %.0f%%", -activity),
	}
}
