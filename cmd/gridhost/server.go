package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/robbyt/go-supervisor/supervisor"
	"github.com/urfave/cli/v3"

	"github.com/atlanticdynamic/gridhost/internal/cache"
	"github.com/atlanticdynamic/gridhost/internal/config"
	"github.com/atlanticdynamic/gridhost/internal/creds"
	"github.com/atlanticdynamic/gridhost/internal/pack"
	"github.com/atlanticdynamic/gridhost/internal/refresh"
	"github.com/atlanticdynamic/gridhost/internal/sandbox"
	"github.com/atlanticdynamic/gridhost/internal/server"
	"github.com/atlanticdynamic/gridhost/internal/store"
)

var serverCmd = &cli.Command{
	Name:  "server",
	Usage: "Start the gridhost server",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Usage:   "Path to TOML configuration file",
			Aliases: []string{"c"},
		},
		&cli.StringFlag{
			Name:    "listen",
			Usage:   "Address to bind the HTTP API (overrides config)",
			Aliases: []string{"l"},
		},
	},
	Action: func(ctx context.Context, cmd *cli.Command) error {
		configPath := cmd.String("config")
		if configPath == "" {
			return cli.Exit("--config flag is required", 1)
		}

		cfg, err := config.NewConfig(configPath)
		if err != nil {
			return cli.Exit(fmt.Errorf("failed to load config: %w", err), 1)
		}
		if listen := cmd.String("listen"); listen != "" {
			cfg.Listen = listen
		}
		if err := cfg.Validate(); err != nil {
			return cli.Exit(err, 1)
		}

		SetupLogger(cfg.LogLevel)
		logger := slog.Default()

		st, err := store.Open(cfg.DBPath)
		if err != nil {
			return cli.Exit(fmt.Errorf("failed to open store: %w", err), 1)
		}
		defer func() {
			if err := st.Close(); err != nil {
				logger.Error("failed to close store", "error", err)
			}
		}()

		credStore := creds.NewMemoryStore(cfg.Credentials)
		sb := sandbox.New(credStore, cfg.Sandbox.CacheDirs,
			cfg.SandboxTimeout(), cfg.SandboxGrace(), logger)
		cacheSvc := cache.New(st.Cache, st.Instances, logger)
		notifier := refresh.NewNotifier(cfg.Refresh.WebhookURL, cfg.WebhookTimeout(), logger)
		queue := refresh.New(st.Refresh, notifier, cfg.PendingWindow(), logger)
		importer := pack.NewImporter(st.Definitions, st.Instances, credStore, logger)

		handlers := server.NewHandlers(st, cacheSvc, queue, importer, sb, logger)
		runner, err := server.NewRunner(cfg.Listen, handlers.Routes(), logger)
		if err != nil {
			return cli.Exit(fmt.Errorf("failed to create server: %w", err), 1)
		}

		super, err := supervisor.New(
			supervisor.WithRunnables(runner),
			supervisor.WithLogHandler(logger.Handler()),
			supervisor.WithContext(ctx),
		)
		if err != nil {
			return cli.Exit(fmt.Errorf("failed to create supervisor: %w", err), 1)
		}
		if err := super.Run(); err != nil {
			return cli.Exit(fmt.Errorf("failed to run server: %w", err), 1)
		}

		logger.Info("Server shutdown complete")
		return nil
	},
}
