package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/bbalbale/SigmaSightCloneEdgar-sub016/internal/batch"
	"github.com/bbalbale/SigmaSightCloneEdgar-sub016/internal/config"
	"github.com/bbalbale/SigmaSightCloneEdgar-sub016/internal/database"
	"github.com/bbalbale/SigmaSightCloneEdgar-sub016/internal/marketdata"
	"github.com/bbalbale/SigmaSightCloneEdgar-sub016/internal/modules/correlation"
	"github.com/bbalbale/SigmaSightCloneEdgar-sub016/internal/modules/factors"
	"github.com/bbalbale/SigmaSightCloneEdgar-sub016/internal/modules/portfolio"
	"github.com/bbalbale/SigmaSightCloneEdgar-sub016/internal/modules/stress"
	"github.com/bbalbale/SigmaSightCloneEdgar-sub016/internal/modules/volatility"
	"github.com/bbalbale/SigmaSightCloneEdgar-sub016/internal/pricecache"
	"github.com/bbalbale/SigmaSightCloneEdgar-sub016/internal/reliability"
	"github.com/bbalbale/SigmaSightCloneEdgar-sub016/internal/results"
	"github.com/bbalbale/SigmaSightCloneEdgar-sub016/internal/scheduler"
	"github.com/bbalbale/SigmaSightCloneEdgar-sub016/internal/server"
	"github.com/bbalbale/SigmaSightCloneEdgar-sub016/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLog := logger.New(logger.Config{Level: "info"})
		bootLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.DevMode,
	})
	logger.SetGlobalLogger(log)

	log.Info().Str("data_dir", cfg.DataDir).Msg("Starting SigmaSight batch risk engine")

	// Databases
	marketDB, err := database.New(database.Config{
		Path:    cfg.MarketDBPath(),
		Profile: database.ProfileMarket,
		Name:    "market",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open market database")
	}
	defer marketDB.Close()

	analyticsDB, err := database.New(database.Config{
		Path:    cfg.AnalyticsDBPath(),
		Profile: database.ProfileAnalytics,
		Name:    "analytics",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open analytics database")
	}
	defer analyticsDB.Close()

	if err := marketDB.EnsureSchema(marketdata.Schema); err != nil {
		log.Fatal().Err(err).Msg("Failed to apply market schema")
	}
	for _, ddl := range []string{portfolio.Schema, factors.Schema, stress.Schema, results.Schema} {
		if err := analyticsDB.EnsureSchema(ddl); err != nil {
			log.Fatal().Err(err).Msg("Failed to apply analytics schema")
		}
	}

	// Seed definitions are resolved once at startup; engines never see
	// free-text factor names.
	startupCtx, cancelStartup := context.WithTimeout(context.Background(), 30*time.Second)
	registry, err := factors.LoadRegistry(startupCtx, analyticsDB.Conn(), log)
	if err != nil {
		cancelStartup()
		log.Fatal().Err(err).Msg("Failed to load factor registry")
	}
	scenarios, err := stress.LoadScenarios(startupCtx, analyticsDB.Conn(), log)
	cancelStartup()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load stress scenarios")
	}

	// Pipeline wiring
	calendar := marketdata.NewCalendar()
	priceRepo := marketdata.NewPriceRepository(marketDB.Conn(), log)
	provider := marketdata.NewHTTPQuoteProvider(cfg.QuoteFeedURL, cfg.QuoteFeedAPIKey, log)
	cache := pricecache.New(priceRepo, log)
	portfolioRepo := portfolio.NewRepository(analyticsDB.Conn(), log)
	resultsRepo := results.NewRepository(analyticsDB.Conn(), log)
	runsRepo := results.NewBatchRunRepository(analyticsDB.Conn(), log)

	orchestrator := batch.NewOrchestrator(batch.Deps{
		Calendar:   calendar,
		Collector:  marketdata.NewCollector(provider, priceRepo, log),
		Cache:      cache,
		Portfolios: portfolioRepo,
		Registry:   registry,
		Scenarios:  scenarios,
		FactorEngine: factors.NewFactorBetaEngine(registry, factors.FactorBetaEngineConfig{
			MinObservations: cfg.MinRegressionObs,
			Lambda:          cfg.RidgeLambda,
		}, log),
		MarketEngine: factors.NewMarketBetaEngine(registry, factors.DualWindowEngineConfig{
			MinObservations: cfg.MinRegressionObs,
		}, log),
		RateEngine: factors.NewInterestRateBetaEngine(registry, factors.DualWindowEngineConfig{
			MinObservations: cfg.MinRegressionObs,
		}, log),
		CorrelationEngine: correlation.NewEngine(correlation.EngineConfig{
			MinOverlap:       cfg.MinCorrelationObs,
			ClusterThreshold: cfg.ClusterThreshold,
		}, log),
		StressEngine: stress.NewEngine(stress.EngineConfig{
			MaxLossFraction: cfg.MaxLossFraction,
		}, log),
		VolatilityEngine: volatility.NewEngine(volatility.EngineConfig{
			MinObservations: cfg.MinVolatilityObs,
			Horizon:         cfg.ForecastHorizon,
		}, log),
		Results: resultsRepo,
		Runs:    runsRepo,
	}, batch.Config{
		HistoryDays:         cfg.HistoryDays,
		DefaultLookbackDays: cfg.LookbackDays,
		Workers:             cfg.BatchWorkers,
	}, log)

	// Background jobs
	sched := scheduler.New(log)
	registerJobs(sched, orchestrator, marketDB, analyticsDB, cfg, log)
	sched.Start()
	defer sched.Stop()

	// HTTP server
	srv := server.New(server.Config{
		Log:          log,
		Port:         cfg.Port,
		DevMode:      cfg.DevMode,
		MarketDB:     marketDB,
		AnalyticsDB:  analyticsDB,
		Calendar:     calendar,
		Cache:        cache,
		Orchestrator: orchestrator,
		Portfolios:   portfolioRepo,
		Results:      resultsRepo,
		Runs:         runsRepo,
	})

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	log.Info().Int("port", cfg.Port).Msg("Server started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Stopped")
}

func registerJobs(
	sched *scheduler.Scheduler,
	orchestrator *batch.Orchestrator,
	marketDB, analyticsDB *database.DB,
	cfg *config.Config,
	log zerolog.Logger,
) {
	databases := []*database.DB{marketDB, analyticsDB}

	// Nightly batch after US market close, weekdays
	nightly := scheduler.NewNightlyBatchJob(orchestrator, 0, log)
	if err := sched.AddJob("30 21 * * MON-FRI", nightly); err != nil {
		log.Fatal().Err(err).Msg("Failed to register nightly batch job")
	}

	maintenance := reliability.NewMaintenanceJob(databases, cfg.DataDir, log)
	if err := sched.AddJob("0 2 * * *", maintenance); err != nil {
		log.Fatal().Err(err).Msg("Failed to register maintenance job")
	}

	if !cfg.Backup.Enabled {
		log.Info().Msg("Backups disabled")
		return
	}

	store, err := reliability.NewS3Store(context.Background(), cfg.Backup, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize backup store")
	}
	backupService := reliability.NewBackupService(databases, store, cfg.DataDir, cfg.Backup.Keep, log)
	backupJob := reliability.NewWeeklyBackupJob(backupService, 0, log)
	if err := sched.AddJob("0 3 * * SUN", backupJob); err != nil {
		log.Fatal().Err(err).Msg("Failed to register backup job")
	}
}
