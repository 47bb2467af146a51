//nolint:goconst // Test files use repeated strings for clarity
package llm

import (
	"strings"
	"testing"
	"time"
)

func TestBuildRefinementPrompt(t *testing.T) {
	in := RefinementInput{
		Symbol:          "BTC",
		CurrentPrice:    67250.50,
		Direction:       "LONG",
		Confidence:      0.82,
		Regime:          "BULL",
		RegimeConfidence: 0.9,
		AlignmentScore:  75,
		LongVotes:       31,
		ShortVotes:      9,
		Abstentions:     14,
		Agreement:       0.775,
		Notes:           []string{"CONTRARIAN_BOOST"},
		Sentiment:       "Fear & Greed index at 72 (Greed)",
		OnChain:         "Exchange netflow negative over 24h",
	}

	prompt := BuildRefinementPrompt(in)

	wantFragments := []string{
		"BTC",
		"DRAFT RECOMMENDATION:",
		"Direction: LONG",
		"Confidence: 0.82",
		"Current Price: $67250.50",
		"MARKET REGIME:",
		"BULL",
		"Timeframe alignment score: 75/100",
		"BOT TALLY:",
		"31 LONG votes, 9 SHORT votes, 14 abstained",
		"Winning-side agreement: 78%",
		"Flags: CONTRARIAN_BOOST",
		"SENTIMENT:",
		"Fear & Greed index at 72 (Greed)",
		"ON-CHAIN:",
		"Exchange netflow negative over 24h",
		"refined_confidence",
		"risk_assessment",
		"market_context",
	}

	for _, frag := range wantFragments {
		if !strings.Contains(prompt, frag) {
			t.Errorf("Prompt missing fragment %q", frag)
		}
	}
}

func TestBuildRefinementPrompt_OptionalSections(t *testing.T) {
	in := RefinementInput{
		Symbol:       "ETH",
		CurrentPrice: 3120.0,
		Direction:    "SHORT",
		Confidence:   0.78,
		Regime:       "BEAR",
		LongVotes:    5,
		ShortVotes:   28,
		Abstentions:  21,
		Agreement:    0.85,
	}

	prompt := BuildRefinementPrompt(in)

	if strings.Contains(prompt, "SENTIMENT:") {
		t.Error("Prompt should omit SENTIMENT section when no sentiment data provided")
	}
	if strings.Contains(prompt, "ON-CHAIN:") {
		t.Error("Prompt should omit ON-CHAIN section when no on-chain data provided")
	}
	if strings.Contains(prompt, "SIMILAR PAST ANALYSES:") {
		t.Error("Prompt should omit past analyses section when none provided")
	}
	if strings.Contains(prompt, "Flags:") {
		t.Error("Prompt should omit flags line when no notes provided")
	}
}

func TestBuildRefinementPrompt_PastAnalyses(t *testing.T) {
	in := RefinementInput{
		Symbol:       "SOL",
		CurrentPrice: 145.25,
		Direction:    "LONG",
		Confidence:   0.80,
		Regime:       "BULL",
		LongVotes:    30,
		ShortVotes:   10,
		Abstentions:  14,
		Agreement:    0.75,
		Past: []PastAnalysis{
			{
				Content:    "Strong LONG consensus during uptrend, TP hit in 26h",
				Direction:  "LONG",
				Confidence: 0.84,
				Regime:     "BULL",
				CreatedAt:  time.Date(2026, 7, 12, 14, 0, 0, 0, time.UTC),
			},
		},
	}

	prompt := BuildRefinementPrompt(in)

	if !strings.Contains(prompt, "SIMILAR PAST ANALYSES:") {
		t.Fatal("Prompt should include past analyses section")
	}
	if !strings.Contains(prompt, "2026-07-12") {
		t.Error("Past analysis should include formatted date")
	}
	if !strings.Contains(prompt, "LONG at confidence 0.84 (BULL regime)") {
		t.Error("Past analysis should include direction, confidence, and regime")
	}
	if !strings.Contains(prompt, "TP hit in 26h") {
		t.Error("Past analysis should include its content")
	}
}

func TestFormatPastAnalyses(t *testing.T) {
	t.Run("Empty returns empty string", func(t *testing.T) {
		if got := formatPastAnalyses(nil); got != "" {
			t.Errorf("Expected empty string, got %q", got)
		}
	})

	t.Run("Caps at five entries", func(t *testing.T) {
		past := make([]PastAnalysis, 8)
		for i := range past {
			past[i] = PastAnalysis{
				Content:    "entry",
				Direction:  "LONG",
				Confidence: 0.7,
				Regime:     "BULL",
				CreatedAt:  time.Now(),
			}
		}

		got := formatPastAnalyses(past)

		if strings.Contains(got, "6. [") {
			t.Error("Should not include a sixth entry")
		}
		if !strings.Contains(got, "5. [") {
			t.Error("Should include the fifth entry")
		}
	})

	t.Run("Truncates long content", func(t *testing.T) {
		past := []PastAnalysis{
			{
				Content:    strings.Repeat("x", 500),
				Direction:  "SHORT",
				Confidence: 0.6,
				Regime:     "BEAR",
				CreatedAt:  time.Now(),
			},
		}

		got := formatPastAnalyses(past)

		if !strings.Contains(got, "...") {
			t.Error("Long content should be truncated with ellipsis")
		}
		if strings.Contains(got, strings.Repeat("x", 300)) {
			t.Error("Content should be cut well below its original length")
		}
	})
}

func TestFormatPrice(t *testing.T) {
	tests := []struct {
		name  string
		price float64
		want  string
	}{
		{"Large price", 67250.50, "67250.50"},
		{"Unit price", 1.0, "1.00"},
		{"Sub-dollar price", 0.000123, "0.000123"},
		{"Small altcoin price", 0.085, "0.085000"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := formatPrice(tt.price); got != tt.want {
				t.Errorf("formatPrice(%v) = %q, want %q", tt.price, got, tt.want)
			}
		})
	}
}

func TestTruncateToTokenLimit(t *testing.T) {
	t.Run("Short text unchanged", func(t *testing.T) {
		text := "short prompt"
		if got := truncateToTokenLimit(text, 100); got != text {
			t.Errorf("Short text should pass through unchanged, got %q", got)
		}
	})

	t.Run("Long text truncated with marker", func(t *testing.T) {
		text := strings.Repeat("a", 10000)
		got := truncateToTokenLimit(text, 100)

		if len(got) >= len(text) {
			t.Error("Long text should be shortened")
		}
		if !strings.Contains(got, "[Context truncated to fit token limit]") {
			t.Error("Truncated text should carry the truncation marker")
		}
	})
}

func TestEstimateTokens(t *testing.T) {
	if got := estimateTokens("12345678"); got != 2 {
		t.Errorf("Expected 2 tokens for 8 chars, got %d", got)
	}
	if got := estimateTokens(""); got != 0 {
		t.Errorf("Expected 0 tokens for empty string, got %d", got)
	}
}
