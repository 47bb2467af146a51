package bots

import "time"

// Guardrails are the limits applied to a bot on probation.
type Guardrails struct {
	MaxLeverage        int     `json:"max_leverage"`
	MinConfidence      float64 `json:"min_confidence"`       // 0..1, votes below conf*10 are dropped
	StopLossMultiplier float64 `json:"stop_loss_multiplier"` // <1 tightens the stop distance
	MaxPositionPercent float64 `json:"max_position_percent"`
}

// DefaultProbationGuardrails are the limits a re-enabled bot trades
// under until it proves itself again.
func DefaultProbationGuardrails() Guardrails {
	return Guardrails{
		MaxLeverage:        3,
		MinConfidence:      0.70,
		StopLossMultiplier: 0.50,
		MaxPositionPercent: 2,
	}
}

func (g Guardrails) orDefaults() Guardrails {
	d := DefaultProbationGuardrails()
	if g.MaxLeverage <= 0 {
		g.MaxLeverage = d.MaxLeverage
	}
	if g.MinConfidence <= 0 {
		g.MinConfidence = d.MinConfidence
	}
	if g.StopLossMultiplier <= 0 {
		g.StopLossMultiplier = d.StopLossMultiplier
	}
	if g.MaxPositionPercent <= 0 {
		g.MaxPositionPercent = d.MaxPositionPercent
	}
	return g
}

// BotState is one bot's adaptive standing at snapshot time.
type BotState struct {
	Enabled     bool               `json:"enabled"`
	OnProbation bool               `json:"on_probation"`
	Guardrails  Guardrails         `json:"guardrails,omitempty"`
	Weights     map[string]float64 `json:"weights,omitempty"` // regime label → weight
}

// WeightsSnapshot is an immutable view of the adaptive weights,
// taken once at scan start so every coin in a run sees the same
// standings. A nil snapshot means "everything enabled at weight 1".
type WeightsSnapshot struct {
	TakenAt time.Time           `json:"taken_at"`
	States  map[string]BotState `json:"states"`
}

// Weight returns the bot's weight for a regime, defaulting to 1.0
// for bots or regimes the snapshot has never seen.
func (s *WeightsSnapshot) Weight(botName, regime string) float64 {
	if s == nil {
		return 1
	}
	st, ok := s.States[botName]
	if !ok {
		return 1
	}
	w, ok := st.Weights[regime]
	if !ok || w <= 0 {
		return 1
	}
	return w
}

// State returns the bot's standing and whether the snapshot has one.
func (s *WeightsSnapshot) State(botName string) (BotState, bool) {
	if s == nil {
		return BotState{}, false
	}
	st, ok := s.States[botName]
	return st, ok
}
