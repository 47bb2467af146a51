// Scanner is the signal engine daemon: it serves the scan API, runs
// scheduled scans, samples prices for open predictions and keeps the
// adaptive bot weights current.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/CodyDvorak/CryptoOracle-sub001/internal/aggregation"
	"github.com/CodyDvorak/CryptoOracle-sub001/internal/api"
	"github.com/CodyDvorak/CryptoOracle-sub001/internal/bots"
	"github.com/CodyDvorak/CryptoOracle-sub001/internal/config"
	"github.com/CodyDvorak/CryptoOracle-sub001/internal/db"
	"github.com/CodyDvorak/CryptoOracle-sub001/internal/feed"
	"github.com/CodyDvorak/CryptoOracle-sub001/internal/llm"
	"github.com/CodyDvorak/CryptoOracle-sub001/internal/market"
	"github.com/CodyDvorak/CryptoOracle-sub001/internal/memory"
	"github.com/CodyDvorak/CryptoOracle-sub001/internal/metrics"
	"github.com/CodyDvorak/CryptoOracle-sub001/internal/outcome"
	"github.com/CodyDvorak/CryptoOracle-sub001/internal/scan"
	"github.com/CodyDvorak/CryptoOracle-sub001/internal/scheduler"
	"github.com/CodyDvorak/CryptoOracle-sub001/internal/weighting"
)

// weightPassHour is the UTC hour the daily weight adjustment runs.
const weightPassHour = 6

func main() {
	configPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.ValidateAndLoad(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	format := "json"
	if cfg.App.Environment == "development" {
		format = "console"
	}
	config.InitLogger(cfg.App.LogLevel, format)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if vaultCfg := config.GetVaultConfigFromEnv(); vaultCfg.Enabled {
		if err := config.LoadSecretsFromVault(ctx, cfg, vaultCfg); err != nil {
			log.Fatal().Err(err).Msg("Failed to load secrets from Vault")
		}
	}

	log.Info().
		Str("version", cfg.App.Version).
		Str("environment", cfg.App.Environment).
		Msg("Starting CryptoOracle scanner")

	database, err := db.NewWithDSN(ctx, cfg.Database.GetDSN())
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer database.Close()

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.GetRedisAddr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer func() {
		if err := rdb.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close redis client")
		}
	}()
	cache := market.NewCache(rdb)

	publisher, err := feed.NewPublisher(feed.Config{
		URL:    cfg.NATS.URL,
		Prefix: cfg.NATS.SubjectPrefix,
	})
	if err != nil {
		// The feed is best-effort; the engine runs without it.
		log.Warn().Err(err).Msg("Realtime feed unavailable")
		publisher = nil
	} else {
		defer publisher.Close()
	}

	router, err := buildRouter(cfg, cache)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build market data router")
	}

	registry, err := buildRegistry(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build bot registry")
	}
	log.Info().Int("bots", registry.Len()).Msg("Bot registry ready")

	embeddings := llm.NewEmbeddingClient(llm.EmbeddingConfig{
		Endpoint: cfg.LLM.EmbeddingsEndpoint,
		Model:    cfg.LLM.EmbeddingsModel,
		Timeout:  cfg.LLM.GetTimeout(),
	})
	journal := memory.NewJournal(memory.NewStore(database.Pool()), embeddings.Embed)

	engineLLM := aggregation.NewEngine(buildPanel(cfg), journal)
	enginePlain := aggregation.NewEngine(nil, journal)

	weights := weighting.NewEngine(database, cfg.Weighting)

	orchestrator := scan.NewOrchestrator(database, router, registry, scan.Options{
		Config:      cfg.Scan,
		Feed:        publisher,
		LLMEngine:   engineLLM,
		PlainEngine: enginePlain,
		Snapshots:   weights.LoadSnapshot,
	})
	if err := orchestrator.ReapStaleRuns(ctx); err != nil {
		log.Warn().Err(err).Msg("Failed to reap stale scan runs")
	}

	tracker := outcome.NewTracker(database, router,
		outcome.WithBatchSize(cfg.Outcome.PendingBatchSize))

	sched := scheduler.New()
	sched.Every("price_sampling", cfg.Outcome.GetSamplingInterval(), tracker.SamplePrices)
	sched.Every("outcome_sweep", cfg.Outcome.GetEvaluationInterval(), tracker.EvaluateOpenPredictions)
	sched.Every("metric_rollup", cfg.Weighting.GetRollupInterval(), weights.Rollup)
	sched.DailyAt("weight_pass", weightPassHour, func(ctx context.Context) error {
		if err := weights.AdjustWeights(ctx); err != nil {
			return err
		}
		if err := weights.ReviewDisabled(ctx); err != nil {
			return err
		}
		return weights.ResolveProbations(ctx)
	})
	if cfg.Scheduler.Enabled {
		sched.Every("scheduled_scan", cfg.Scheduler.GetScanInterval(), func(ctx context.Context) error {
			_, err := orchestrator.Start(ctx, scan.Spec{ScanType: cfg.Scheduler.ScanProfile})
			return err
		})
	}
	go sched.Run(ctx)

	var metricsSrv *metrics.Server
	if cfg.Monitoring.EnableMetrics {
		metricsSrv = metrics.NewServer(cfg.Monitoring.PrometheusPort, log.Logger)
		go func() {
			if err := metricsSrv.Start(); err != nil {
				log.Error().Err(err).Msg("Metrics server failed")
			}
		}()
		updater := metrics.NewUpdater(database.Pool(), rdb, 15*time.Second)
		go updater.Start(ctx)
	}

	apiSrv := api.NewServer(api.Config{
		Host:  cfg.API.Host,
		Port:  cfg.API.Port,
		Scans: orchestrator,
		Store: database,
	})
	go func() {
		if err := apiSrv.Start(); err != nil {
			log.Fatal().Err(err).Msg("API server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := apiSrv.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("API shutdown failed")
	}
	if metricsSrv != nil {
		if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Metrics shutdown failed")
		}
	}

	// Let in-flight scans finish their finalization writes.
	orchestrator.Wait()
	if publisher != nil {
		if err := publisher.Flush(5 * time.Second); err != nil {
			log.Warn().Err(err).Msg("Feed flush failed")
		}
	}

	log.Info().Msg("Scanner stopped")
}

// buildRouter registers every enabled provider client under the
// configured fallback orders.
func buildRouter(cfg *config.Config, cache *market.Cache) (*market.Router, error) {
	var regs []market.Registration
	for name, cc := range cfg.Providers.Clients {
		if !cc.Enabled {
			continue
		}
		client := newProviderClient(name, cc)
		if client == nil {
			log.Warn().Str("provider", name).Msg("Unknown provider client, skipped")
			continue
		}
		regs = append(regs, market.Registration{
			Name:   name,
			Client: client,
			Budget: market.ProviderBudget{
				RequestsPerSecond: cc.RequestsPerSecond,
				RequestsPerMinute: cc.RequestsPerMinute,
				Burst:             cc.Burst,
				Timeout:           cc.GetTimeout(),
				CacheTTL:          cc.GetCacheTTL(),
				Cooldown:          cc.GetCooldown(),
			},
		})
	}

	return market.NewRouter(market.RouterConfig{
		CryptoOrder:    cfg.Providers.CryptoOrder,
		FuturesOrder:   cfg.Providers.FuturesOrder,
		OptionsOrder:   cfg.Providers.OptionsOrder,
		OnChainOrder:   cfg.Providers.OnChainOrder,
		SentimentOrder: cfg.Providers.SentimentOrder,
	}, regs, cache)
}

func newProviderClient(name string, cc config.ProviderClientConfig) any {
	opts := market.ClientOptions{
		BaseURL: cc.BaseURL,
		APIKey:  cc.APIKey,
		Timeout: cc.GetTimeout(),
	}
	switch name {
	case "coingecko":
		return market.NewCoinGeckoClient(opts)
	case "binance":
		return market.NewBinanceClient(opts)
	case "cryptocompare":
		return market.NewCryptoCompareClient(opts)
	case "coinalyze":
		return market.NewCoinalyzeClient(opts)
	case "deribit":
		return market.NewDeribitClient(opts)
	case "blockflow":
		return market.NewBlockflowClient(opts)
	case "lunarcrush":
		return market.NewLunarCrushClient(opts)
	default:
		return nil
	}
}

// buildRegistry assembles the bot catalog, applying the optional
// override file and the config-level disabled list.
func buildRegistry(cfg *config.Config) (*bots.Registry, error) {
	registry := bots.NewRegistry()

	if cfg.Bots.OverridesPath != "" {
		overrides, err := bots.ImportCatalogFile(cfg.Bots.OverridesPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load bot overrides: %w", err)
		}
		if err := registry.ApplyOverrides(overrides); err != nil {
			return nil, fmt.Errorf("failed to apply bot overrides: %w", err)
		}
	}

	if len(cfg.Bots.Disabled) > 0 {
		off := false
		forced := &bots.CatalogOverrides{Version: bots.CatalogSchemaVersion}
		for _, name := range cfg.Bots.Disabled {
			forced.Bots = append(forced.Bots, bots.BotOverride{Name: name, Enabled: &off})
		}
		if err := registry.ApplyOverrides(forced); err != nil {
			return nil, fmt.Errorf("failed to disable configured bots: %w", err)
		}
	}

	return registry, nil
}

// buildPanel wires the two-seat AI review panel, or nothing when no
// gateway is configured.
func buildPanel(cfg *config.Config) *llm.Panel {
	if cfg.LLM.Endpoint == "" || cfg.LLM.PrimaryModel == "" {
		return nil
	}

	primary := llm.ClientConfig{
		Endpoint:    cfg.LLM.Endpoint,
		Model:       cfg.LLM.PrimaryModel,
		Temperature: cfg.LLM.Temperature,
		MaxTokens:   cfg.LLM.MaxTokens,
		Timeout:     cfg.LLM.GetTimeout(),
	}
	seats := []llm.PanelSeat{
		{Name: cfg.LLM.PrimaryModel, Client: llm.NewClient(primary)},
	}
	if cfg.LLM.FallbackModel != "" {
		secondary := primary
		secondary.Model = cfg.LLM.FallbackModel
		seats = append(seats, llm.PanelSeat{Name: cfg.LLM.FallbackModel, Client: llm.NewClient(secondary)})
	}
	return llm.NewPanel(seats)
}
