package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/pneutrack/console/cmd/console/cli"
	"github.com/pneutrack/console/internal/app"
	"github.com/pneutrack/console/internal/auth"
	"github.com/pneutrack/console/internal/fetch"
	"github.com/pneutrack/console/internal/observability"
	"github.com/pneutrack/console/internal/platform/cache"
	"github.com/pneutrack/console/internal/rbac"
	"github.com/pneutrack/console/internal/resources"
	"github.com/pneutrack/console/internal/shared"
	"github.com/pneutrack/console/internal/view"
	"github.com/pneutrack/console/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)
	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB}

	if len(os.Args) > 1 && os.Args[1] == "jobs" {
		jobsCLI := cli.NewJobsCLI(redisOpts)
		defer func() { _ = jobsCLI.Close() }()
		if err := jobsCLI.Run(ctx, os.Args[2:], os.Stdout); err != nil {
			logger.Error("jobs command", slog.Any("error", err))
			os.Exit(1)
		}
		return
	}

	redisClient, err := cache.New(ctx, cache.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	recorder, closeAudit, err := app.OpenAudit(ctx, cfg, logger)
	if err != nil {
		logger.Error("open login audit", slog.Any("error", err))
		os.Exit(1)
	}
	defer closeAudit()

	metrics := observability.NewMetrics()
	services := app.NewServices(cfg, redisClient, logger, recorder, metrics)

	profiles := shared.NewProfileManager(redisClient, cfg.ProfileCookie, cfg.SessionTTL, cfg.IsProduction())
	csrfManager := shared.NewCSRFManager(cfg.CSRFSecret)

	templates, err := view.NewEngine()
	if err != nil {
		logger.Error("parse templates", slog.Any("error", err))
		os.Exit(1)
	}

	fetcher, err := fetch.NewFetcher(cfg.APIBaseURL, &http.Client{Timeout: cfg.FetchTimeout}, logger.With(slog.String("component", "fetch")))
	if err != nil {
		logger.Error("init fetcher", slog.Any("error", err))
		os.Exit(1)
	}
	fetcher.WithObserver(metrics)

	resourceHandler := resources.NewHandler(
		logger,
		resources.DefaultCatalogue(),
		fetcher,
		fetch.NewRegistry(30*time.Minute),
		func(profile string) fetch.TokenSource { return services.Sessions.TokenSource(profile) },
		templates,
		csrfManager,
		cfg.DefaultPageSize,
	)

	authHandler := auth.NewHandler(logger, services.Sessions, services.Resolver, templates, profiles, csrfManager)
	authHandler.OnLogout(resourceHandler.ForgetProfile)

	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	jobsClient := jobs.NewClient(redisOpts)
	defer func() {
		if err := jobsClient.Close(); err != nil {
			logger.Warn("jobs client close", slog.Any("error", err))
		}
	}()

	router := app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             cfg,
		Templates:          templates,
		Profiles:           profiles,
		CSRFManager:        csrfManager,
		Sessions:           services.Sessions,
		Resolver:           services.Resolver,
		AuthHandler:        authHandler,
		ResourceHandler:    resourceHandler,
		PermissionsHandler: rbac.NewPermissionsHandler(logger, services.Resolver, templates, csrfManager),
		JobHandler:         jobs.NewHandler(inspector, jobsClient, logger),
		Metrics:            metrics,
	})

	if cfg.RefreshScheduler {
		services.Scheduler.Start(ctx)
		defer services.Scheduler.Stop()
	} else {
		logger.Info("in-process refresh scheduler disabled, expecting the worker sweep")
	}

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
