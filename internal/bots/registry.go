package bots

import (
	"fmt"
	"sort"

	"github.com/rs/zerolog/log"
)

// Registry holds the shipped bot catalog plus any operator overrides.
// The catalog order is stable: category blocks in a fixed sequence,
// bots in declaration order within each.
type Registry struct {
	bots      []Bot
	byName    map[string]Bot
	overrides map[string]bool // name → enabled
}

// NewRegistry builds the full shipped catalog.
func NewRegistry() *Registry {
	var all []Bot
	all = append(all, trendBots()...)
	all = append(all, meanReversionBots()...)
	all = append(all, momentumBots()...)
	all = append(all, volumeBots()...)
	all = append(all, volatilityBots()...)
	all = append(all, patternBots()...)
	all = append(all, derivativesBots()...)
	all = append(all, contrarianBots()...)
	all = append(all, onChainBots()...)
	all = append(all, sentimentBots()...)
	all = append(all, specializedBots()...)
	all = append(all, ensembleBots()...)

	byName := make(map[string]Bot, len(all))
	for _, b := range all {
		if _, dup := byName[b.Name()]; dup {
			panic(fmt.Sprintf("bots: duplicate bot name %q in catalog", b.Name()))
		}
		byName[b.Name()] = b
	}
	return &Registry{
		bots:      all,
		byName:    byName,
		overrides: make(map[string]bool),
	}
}

// All returns every bot in catalog order, ignoring enablement.
func (r *Registry) All() []Bot {
	out := make([]Bot, len(r.bots))
	copy(out, r.bots)
	return out
}

// Len reports the catalog size.
func (r *Registry) Len() int { return len(r.bots) }

// Lookup finds a bot by name.
func (r *Registry) Lookup(name string) (Bot, bool) {
	b, ok := r.byName[name]
	return b, ok
}

// Names returns the sorted bot names, mostly for config validation
// and the export path.
func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.byName))
	for name := range r.byName {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// ApplyOverrides installs operator enable/disable decisions from an
// imported catalog file. Unknown bot names are rejected so a typo
// cannot silently leave a bot running.
func (r *Registry) ApplyOverrides(o *CatalogOverrides) error {
	if o == nil {
		return nil
	}
	for _, ov := range o.Bots {
		if _, ok := r.byName[ov.Name]; !ok {
			return fmt.Errorf("bots: override for unknown bot %q", ov.Name)
		}
	}
	for _, ov := range o.Bots {
		if ov.Enabled == nil {
			continue
		}
		r.overrides[ov.Name] = *ov.Enabled
		if !*ov.Enabled {
			log.Info().Str("bot", ov.Name).Msg("bot disabled by catalog override")
		}
	}
	return nil
}

// Enabled returns the bots allowed to vote under the given weights
// snapshot, in catalog order. Bots the snapshot marks disabled are
// dropped; bots on probation are wrapped so their votes obey the
// guardrails. A nil snapshot enables the whole catalog.
func (r *Registry) Enabled(snap *WeightsSnapshot) []Bot {
	out := make([]Bot, 0, len(r.bots))
	for _, b := range r.bots {
		if enabled, ok := r.overrides[b.Name()]; ok && !enabled {
			continue
		}
		st, ok := snap.State(b.Name())
		if !ok {
			out = append(out, b)
			continue
		}
		if !st.Enabled {
			continue
		}
		if st.OnProbation {
			out = append(out, &probationBot{Bot: b, guard: st.Guardrails.orDefaults()})
			continue
		}
		out = append(out, b)
	}
	return out
}

// probationBot wraps a bot that was re-enabled after an auto-disable.
// It raises the vote floor, caps leverage and tightens the stop, but
// keeps the bot's identity so weights keep accruing to its name.
type probationBot struct {
	Bot
	guard Guardrails
}

func (p *probationBot) Analyze(f *FeatureSet) (*Vote, error) {
	v, err := p.Bot.Analyze(f)
	if err != nil || v == nil {
		return v, err
	}
	if float64(v.Confidence) < p.guard.MinConfidence*10 {
		return nil, nil
	}
	if v.Leverage > p.guard.MaxLeverage {
		v.Leverage = p.guard.MaxLeverage
	}
	if m := p.guard.StopLossMultiplier; m > 0 && m < 1 {
		v.StopLoss = v.Entry - (v.Entry-v.StopLoss)*m
	}
	return v, nil
}
