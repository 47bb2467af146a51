package db

import (
	"math"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestScanRun_Defaults tests ScanRun default values
func TestScanRun_Defaults(t *testing.T) {
	run := &ScanRun{
		ID:          uuid.New(),
		StartedAt:   time.Now(),
		Status:      ScanStatusRunning,
		ScanType:    "standard",
		FilterScope: FilterScopeAll,
		CoinLimit:   100,
	}

	assert.NotEqual(t, uuid.Nil, run.ID)
	assert.Equal(t, ScanStatusRunning, run.Status)
	assert.Nil(t, run.CompletedAt)
	assert.Nil(t, run.Error)
	assert.Equal(t, 0, run.TotalCoins)
	assert.Equal(t, 0, run.TotalSignals)
}

// TestScanStatus_Values tests ScanStatus constants
func TestScanStatus_Values(t *testing.T) {
	assert.Equal(t, ScanStatus("running"), ScanStatusRunning)
	assert.Equal(t, ScanStatus("completed"), ScanStatusCompleted)
	assert.Equal(t, ScanStatus("failed"), ScanStatusFailed)
}

// TestFilterScope_Values tests FilterScope constants
func TestFilterScope_Values(t *testing.T) {
	assert.Equal(t, FilterScope("all"), FilterScopeAll)
	assert.Equal(t, FilterScope("alt"), FilterScopeAlt)
}

// TestOutcomeStatus_Values tests OutcomeStatus constants
func TestOutcomeStatus_Values(t *testing.T) {
	assert.Equal(t, OutcomeStatus("pending"), OutcomePending)
	assert.Equal(t, OutcomeStatus("success"), OutcomeSuccess)
	assert.Equal(t, OutcomeStatus("failed"), OutcomeFailed)
	assert.Equal(t, OutcomeStatus("partial"), OutcomePartial)
}

// TestDirection_Values tests Direction constants
func TestDirection_Values(t *testing.T) {
	assert.Equal(t, Direction("LONG"), DirectionLong)
	assert.Equal(t, Direction("SHORT"), DirectionShort)
}

func TestTPSLEventType_Values(t *testing.T) {
	assert.Equal(t, TPSLEventType("TAKE_PROFIT"), EventTakeProfit)
	assert.Equal(t, TPSLEventType("STOP_LOSS"), EventStopLoss)
}

// TestBotPrediction_Initialization tests a freshly created prediction
func TestBotPrediction_Initialization(t *testing.T) {
	entry := 50000.0
	target := 55000.0
	stop := 47500.0

	pred := &BotPrediction{
		ID:                uuid.New(),
		RunID:             uuid.New(),
		BotName:           "RSI Reversal Bot",
		CoinSymbol:        "BTC",
		CoinName:          "Bitcoin",
		EntryPrice:        &entry,
		TargetPrice:       &target,
		StopLoss:          &stop,
		PositionDirection: DirectionLong,
		ConfidenceScore:   7,
		Leverage:          3,
		Timestamp:         time.Now(),
		MarketRegime:      "BULL",
		OutcomeStatus:     OutcomePending,
	}

	assert.Equal(t, OutcomePending, pred.OutcomeStatus)
	assert.Nil(t, pred.OutcomeCheckedAt)
	assert.Nil(t, pred.OutcomePrice)
	assert.Nil(t, pred.ProfitLossPercent)
	assert.GreaterOrEqual(t, pred.ConfidenceScore, 1)
	assert.LessOrEqual(t, pred.ConfidenceScore, 10)
}

// TestBotPredictionArgs_Order verifies insert args line up with the
// statement's placeholders
func TestBotPredictionArgs_Order(t *testing.T) {
	entry := 100.0
	pred := &BotPrediction{
		ID:                uuid.New(),
		RunID:             uuid.New(),
		BotName:           "MACD Crossover Bot",
		CoinSymbol:        "ETH",
		CoinName:          "Ethereum",
		EntryPrice:        &entry,
		PositionDirection: DirectionShort,
		ConfidenceScore:   8,
		Leverage:          5,
		Timestamp:         time.Now(),
		MarketRegime:      "BEAR",
		OutcomeStatus:     OutcomePending,
	}

	args := botPredictionArgs(pred)
	require.Len(t, args, 14)
	assert.Equal(t, pred.ID, args[0])
	assert.Equal(t, pred.RunID, args[1])
	assert.Equal(t, "MACD Crossover Bot", args[2])
	assert.Equal(t, "ETH", args[3])
	assert.Equal(t, DirectionShort, args[8])
	assert.Equal(t, 8, args[9])
	assert.Equal(t, OutcomePending, args[13])
}

// TestBotPredictionArgs_SanitizesNaN verifies NaN prices land as NULL
func TestBotPredictionArgs_SanitizesNaN(t *testing.T) {
	nan := math.NaN()
	pred := &BotPrediction{
		ID:                uuid.New(),
		RunID:             uuid.New(),
		BotName:           "Volume Spike Bot",
		CoinSymbol:        "SOL",
		CoinName:          "Solana",
		EntryPrice:        &nan,
		TargetPrice:       &nan,
		PositionDirection: DirectionLong,
		ConfidenceScore:   6,
		Leverage:          2,
		Timestamp:         time.Now(),
		MarketRegime:      "SIDEWAYS",
		OutcomeStatus:     OutcomePending,
	}

	args := botPredictionArgs(pred)
	assert.Nil(t, args[5]) // entry_price
	assert.Nil(t, args[6]) // target_price
	assert.Nil(t, args[7]) // stop_loss was already nil
}

// TestRecommendationArgs_SanitizesNonFinite verifies Inf confidence
// lands as NULL
func TestRecommendationArgs_SanitizesNonFinite(t *testing.T) {
	inf := math.Inf(1)
	price := 2.34
	rec := &Recommendation{
		ID:                 uuid.New(),
		RunID:              uuid.New(),
		Coin:               "Cardano",
		Ticker:             "ADA",
		CurrentPrice:       &price,
		ConsensusDirection: DirectionLong,
		AvgConfidence:      &inf,
		BotCount:           54,
		MarketRegime:       "BULL",
		CreatedAt:          time.Now(),
	}

	args := recommendationArgs(rec)
	require.Len(t, args, 30)
	assert.Equal(t, "Cardano", args[2])
	assert.Equal(t, "ADA", args[3])
	require.NotNil(t, args[4])
	assert.Nil(t, args[6]) // avg_confidence
}

// TestWeightChange_JSONShape tests the history entry field names
func TestWeightChange_JSONShape(t *testing.T) {
	change := WeightChange{
		At:     time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		From:   1.0,
		To:     1.3,
		Reason: "accuracy 0.74 over 30d",
	}

	assert.Equal(t, 1.0, change.From)
	assert.Equal(t, 1.3, change.To)
	assert.NotEmpty(t, change.Reason)
}

// TestBotGuardrails_ProbationDefaults tests probation guardrail values
func TestBotGuardrails_ProbationDefaults(t *testing.T) {
	now := time.Now()
	end := now.Add(7 * 24 * time.Hour)

	g := &BotGuardrails{
		BotName:                "Ichimoku Cloud Bot",
		IsOnProbation:          true,
		ProbationStart:         &now,
		ProbationEnd:           &end,
		MaxLeverage:            3,
		MinConfidenceRequired:  0.70,
		StopLossMultiplier:     0.50,
		MaxPositionSizePercent: 2,
		IsProbationMode:        true,
	}

	assert.True(t, g.IsOnProbation)
	assert.Equal(t, 3, g.MaxLeverage)
	assert.Equal(t, 0.70, g.MinConfidenceRequired)
	assert.Equal(t, 0.50, g.StopLossMultiplier)
	assert.False(t, g.PermanentlyDisabled)
	assert.Equal(t, 0, g.ProbationPredictions)
}
