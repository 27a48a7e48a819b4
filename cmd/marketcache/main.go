package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/urfave/cli/v2"

	"marketcache/internal/api"
	"marketcache/internal/config"
	"marketcache/internal/logger"
	"marketcache/internal/storage"
)

func main() {
	app := &cli.App{
		Name:  "marketcache",
		Usage: "market data cache and multi-provider aggregation service",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to the YAML configuration file",
				EnvVars: []string{"MARKETCACHE_CONFIG"},
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "run the admin API, cache sweep and background sync",
				Action: runServe,
			},
			{
				Name:   "sync",
				Usage:  "run one full sync pass and exit",
				Action: runSync,
			},
			{
				Name:  "migrate",
				Usage: "apply or roll back the Postgres snapshot schema",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "down", Usage: "roll back every migration"},
				},
				Action: runMigrate,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func loadConfig(cctx *cli.Context) (*config.Config, logger.Logger, error) {
	cfg, err := config.Load(cctx.String("config"))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	log := logger.NewLogger(cfg.Logging)
	logger.SetGlobalLogger(log)
	return cfg, log, nil
}

func runServe(cctx *cli.Context) error {
	cfg, log, err := loadConfig(cctx)
	if err != nil {
		return err
	}
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(cctx.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := build(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer app.Close()

	if err := app.startSweep(ctx); err != nil {
		return err
	}

	stopSync := func() {}
	if cfg.Sync.Enabled {
		stopSync = app.sync.Start(ctx, cfg.Sync.Interval)
	}

	metricsPath := ""
	if cfg.Monitoring.PrometheusEnabled {
		metricsPath = cfg.Monitoring.PrometheusPath
	}
	server := api.NewServer(cfg.Server, api.Deps{
		Market:  app.aggregator,
		Cache:   app.cache,
		Sync:    app.sync,
		Storage: app.store,
		Jobs:    app.runner,
		Metrics: app.metrics,
		Logger:  log,
	}, api.WithStatsOldest(cfg.Cache.StatsOldest), api.WithMetricsPath(metricsPath))

	errCh := make(chan error, 1)
	go func() { errCh <- server.Start() }()

	select {
	case <-ctx.Done():
		log.Info("Shutdown signal received")
	case err := <-errCh:
		if err != nil {
			log.Error("API server failed", "error", err)
		}
	}

	stopSync()
	<-app.runner.Stop().Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Stop(shutdownCtx)
}

func runSync(cctx *cli.Context) error {
	cfg, log, err := loadConfig(cctx)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cctx.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := build(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer app.Close()

	if !app.sync.Configured() {
		return fmt.Errorf("sync requires %s credentials", cfg.Sync.Exchange)
	}
	return app.sync.RunFull(ctx)
}

func runMigrate(cctx *cli.Context) error {
	cfg, log, err := loadConfig(cctx)
	if err != nil {
		return err
	}
	if cfg.Storage.Driver != storage.DriverPostgres {
		return fmt.Errorf("migrations need storage driver %q, configured %q", storage.DriverPostgres, cfg.Storage.Driver)
	}

	db, err := storage.Open(cctx.Context, cfg.Storage.Postgres, log)
	if err != nil {
		return err
	}
	defer db.Close()

	migrator, err := storage.NewMigrator(db, log)
	if err != nil {
		return err
	}
	if cctx.Bool("down") {
		return migrator.Down()
	}
	if err := migrator.Up(); err != nil {
		return err
	}
	version, err := migrator.Version()
	if err != nil {
		return err
	}
	log.Info("Schema is up to date", "version", version)
	return nil
}

