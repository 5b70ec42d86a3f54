package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"server/internal/adapter/repo"
	"server/internal/credits"
	"server/internal/gateway"
	"server/internal/http/handlers"
	httpapi "server/internal/http/httpapi"
	"server/internal/infra"
	"server/internal/infra/credentials"
	"server/internal/infra/geoip"
	"server/internal/inject"
	"server/internal/jobs"
	mw "server/internal/middleware"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv, "api")

	ctx := context.Background()
	pool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect database")
	}
	defer pool.Close()
	runner := infra.NewSQLRunner(pool, logger)

	cache, err := infra.NewCache(ctx, cfg)
	if err != nil {
		logger.Warn().Err(err).Msg("redis unavailable, continuing without cache")
	}
	if cache != nil {
		defer cache.Close()
	}

	// Gateway credentials come from the environment, falling back to the
	// stored integration token.
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
		logger.Fatal().Err(err).Msg("failed to build gateway client")
	}

	templates := repo.NewTemplateRepository(runner, cache)
	injected := repo.NewInjectedRepository(runner)
	jobRepo := repo.NewJobRepository(runner)
	ledger := credits.NewLedger(credits.NewLimits(cfg), logger)
	engine := inject.NewEngine(runner, templates, logger)
	jobService := jobs.NewService(runner, gw, ledger, engine, logger)

	var lookup mw.CountryLookup
	if resolver, err := geoip.NewResolver(cfg.GeoIPDBPath); err != nil {
		logger.Warn().Err(err).Msg("geoip unavailable, locale detection degraded")
	} else if resolver != nil {
		lookup = resolver.CountryCode
		if closer, ok := resolver.(*geoip.Resolver); ok {
			defer closer.Close()
		}
	}

	app := &handlers.App{
		SQL:       runner,
		Jobs:      jobService,
		Ledger:    ledger,
		JobRepo:   jobRepo,
		Templates: templates,
		Injected:  injected,
		Logger:    logger,
	}
	router := httpapi.NewRouter(app, cfg, logger, lookup)
	server := infra.NewHTTPServer(cfg, router)

	go func() {
		logger.Info().Msgf("API listening on :%s", cfg.Port)
		if err := server.Start(); err != nil {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	logger.Info().Msg("server stopped")
}
