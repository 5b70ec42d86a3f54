package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"server/internal/adapter/repo"
	"server/internal/credits"
	"server/internal/gateway"
	"server/internal/infra"
	"server/internal/infra/credentials"
	"server/internal/inject"
	"server/internal/jobs"
	"server/internal/poller"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv, "poller")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("poller: db connection failed")
	}
	defer pool.Close()
	runner := infra.NewSQLRunner(pool, logger)

	cache, err := infra.NewCache(ctx, cfg)
	if err != nil {
		logger.Warn().Err(err).Msg("poller: redis unavailable, debouncing locally only")
	}
	if cache != nil {
		defer cache.Close()
	}

	clientSecret := cfg.GatewayClientSecret
	if clientSecret == "" {
		if stored, err := credentials.NewStore(runner).GatewayClientSecret(ctx); err == nil {
			clientSecret = stored
		}
	}
	gw, err := gateway.NewClient(gateway.Options{
		BaseURL:        cfg.GatewayBaseURL,
		ClientID:       cfg.GatewayClientID,
		ClientSecret:   clientSecret,
		Logger:         &logger,
		RequestTimeout: cfg.GatewayTimeout,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("poller: failed to build gateway client")
	}

	templates := repo.NewTemplateRepository(runner, cache)
	ledger := credits.NewLedger(credits.NewLimits(cfg), logger)
	engine := inject.NewEngine(runner, templates, logger)
	jobService := jobs.NewService(runner, gw, ledger, engine, logger)

	coordinator := poller.NewCoordinator(runner, gw, jobService, cache, logger, poller.NewOptions(cfg))
	if err := coordinator.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal().Err(err).Msg("poller: stopped with error")
	}
}
