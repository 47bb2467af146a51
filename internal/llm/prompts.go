package llm

import (
	"fmt"
	"strings"
)

// maxRefinementPromptTokens caps the user prompt so recalled analyses
// cannot crowd out the tally the model is actually reviewing.
const maxRefinementPromptTokens = 4000

// RefinementInput carries everything the refinement prompt mentions
// about a draft recommendation.
type RefinementInput struct {
	Symbol           string
	CurrentPrice     float64
	Direction        string  // "LONG" or "SHORT"
	Confidence       float64 // pre-refinement, 0..1
	Regime           string
	RegimeConfidence float64
	AlignmentScore   int // 0..100 across timeframes
	LongVotes        int
	ShortVotes       int
	Abstentions      int
	Agreement        float64 // winning-side share of voting bots, 0..1
	Notes            []string
	Sentiment        string // preformatted summary, "" when unavailable
	OnChain          string
	Past             []PastAnalysis
}

// BuildRefinementPrompt renders the user prompt for one draft
// recommendation. Deterministic for a given input, so the two panel
// seats review identical text.
func BuildRefinementPrompt(in RefinementInput) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Review the following draft trading recommendation for %s and refine its confidence.\n\n", in.Symbol)

	fmt.Fprintf(&b, "DRAFT RECOMMENDATION:\nDirection: %s\nConfidence: %.2f\nCurrent Price: $%s\n\n",
		in.Direction, in.Confidence, formatPrice(in.CurrentPrice))

	fmt.Fprintf(&b, "MARKET REGIME:\n%s (regime confidence %.2f)\nTimeframe alignment score: %d/100\n\n",
		in.Regime, in.RegimeConfidence, in.AlignmentScore)

	fmt.Fprintf(&b, "BOT TALLY:\n%d LONG votes, %d SHORT votes, %d abstained\nWinning-side agreement: %.0f%%\n",
		in.LongVotes, in.ShortVotes, in.Abstentions, in.Agreement*100)
	if len(in.Notes) > 0 {
		fmt.Fprintf(&b, "Flags: %s\n", strings.Join(in.Notes, ", "))
	}
	b.WriteString("\n")

	if in.Sentiment != "" {
		fmt.Fprintf(&b, "SENTIMENT:\n%s\n\n", in.Sentiment)
	}
	if in.OnChain != "" {
		fmt.Fprintf(&b, "ON-CHAIN:\n%s\n\n", in.OnChain)
	}

	if past := formatPastAnalyses(in.Past); past != "" {
		b.WriteString(past)
		b.WriteString("\n")
	}

	b.WriteString(`Provide your assessment in the following JSON format:
{
  "refined_confidence": 0.0-0.95,
  "reasoning": "why the draft confidence should move, or hold",
  "action_plan": "entry/exit guidance for this setup",
  "risk_assessment": "what invalidates the setup",
  "market_context": "one-line read of current conditions",
  "risks": ["list", "of", "specific", "risks"]
}`)

	return truncateToTokenLimit(b.String(), maxRefinementPromptTokens)
}

// formatPastAnalyses renders recalled analyses for the prompt. Empty
// input renders nothing rather than an empty section header.
func formatPastAnalyses(past []PastAnalysis) string {
	if len(past) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString("SIMILAR PAST ANALYSES:\n")

	for i, p := range past {
		if i >= 5 {
			break
		}

		content := p.Content
		if len(content) > 280 {
			content = content[:280] + "..."
		}

		fmt.Fprintf(&b, "%d. [%s] %s at confidence %.2f (%s regime)\n   %s\n",
			i+1,
			p.CreatedAt.Format("2006-01-02"),
			p.Direction,
			p.Confidence,
			p.Regime,
			content,
		)
	}

	return b.String()
}

// formatPrice keeps sub-cent coins readable without padding majors
func formatPrice(price float64) string {
	if price >= 1 {
		return fmt.Sprintf("%.2f", price)
	}
	return fmt.Sprintf("%.6f", price)
}

// estimateTokens provides rough token estimation (4 chars ≈ 1 token)
func estimateTokens(text string) int {
	return len(text) / 4
}

// truncateToTokenLimit truncates text to fit within the token limit
func truncateToTokenLimit(text string, maxTokens int) string {
	maxChars := maxTokens * 4

	if len(text) <= maxChars {
		return text
	}

	truncated := text[:maxChars-50]
	truncated += "\n\n[Context truncated to fit token limit]\n"

	return truncated
}

const refinementSystemPrompt = `You are a senior reviewer for a cryptocurrency signal engine.

A bank of deterministic strategy bots has already voted on this coin and the engine has combined their votes into a draft recommendation. Your role is to sanity-check that draft against the broader context and refine its confidence.

Key responsibilities:
- Judge whether the bot tally, regime, and alignment genuinely support the draft confidence
- Weigh sentiment and on-chain context the bots may have underused
- Compare against similar past analyses and how those setups resolved
- Name the concrete risks that would invalidate the setup

Guidelines:
- You adjust confidence; you never flip the direction
- Lower confidence when signals conflict or the tally is thin
- Raise confidence only when independent evidence lines up
- Never output a refined confidence above 0.95
- Be specific: "funding flips positive" beats "market risk"

Respond ONLY with valid JSON in the specified format. Do not include explanatory text outside the JSON.`
