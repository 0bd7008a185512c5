// Copyright 2026 The Tmux Builder Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/spf13/pflag"

	"github.com/cocreateceo/tmux-builder-sub002/cmd/tmux-builder/cli"
	"github.com/cocreateceo/tmux-builder-sub002/lib/activitylog"
	"github.com/cocreateceo/tmux-builder-sub002/lib/broadcast"
	"github.com/cocreateceo/tmux-builder-sub002/lib/config"
	"github.com/cocreateceo/tmux-builder-sub002/lib/httpapi"
	"github.com/cocreateceo/tmux-builder-sub002/lib/marker"
	"github.com/cocreateceo/tmux-builder-sub002/lib/orchestrator"
	"github.com/cocreateceo/tmux-builder-sub002/lib/pushchannel"
	"github.com/cocreateceo/tmux-builder-sub002/lib/service"
	"github.com/cocreateceo/tmux-builder-sub002/lib/session"
	"github.com/cocreateceo/tmux-builder-sub002/lib/tmux"
	"github.com/cocreateceo/tmux-builder-sub002/lib/version"
)

func serveCommand() *cli.Command {
	var configPath string
	var debug bool
	return &cli.Command{
		Name:    "serve",
		Summary: "Run the orchestrator daemon",
		Description: `Run the orchestrator: the tmux server for agent sessions, the
controller HTTP API and the progress push channel.

On start, sessions left non-terminal by a previous run are marked
ERROR and their tmux sessions killed. On SIGINT or SIGTERM every live
session is ended with ERROR "orchestrator stopped".`,
		Usage: "tmux-builder serve [--config PATH] [--debug]",
		Flags: func() *pflag.FlagSet {
			flagSet := newFlagSet("serve")
			flagSet.StringVar(&configPath, "config", "", "path to tmux-builder.yaml (default $"+config.EnvironmentVariable+")")
			flagSet.BoolVar(&debug, "debug", false, "log at debug level")
			return flagSet
		},
		Examples: []cli.Example{
			{Description: "Run with an explicit config", Command: "tmux-builder serve --config ~/.config/tmux-builder/tmux-builder.yaml"},
		},
		Run: func(ctx context.Context, args []string, _ *slog.Logger) error {
			if len(args) > 0 {
				return fmt.Errorf("unexpected argument %q", args[0])
			}
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			level := slog.LevelInfo
			if debug {
				level = slog.LevelDebug
			}
			logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
			slog.SetDefault(logger)
			return serve(ctx, cfg, logger)
		},
	}
}

func loadConfig(path string) (*config.Config, error) {
	var cfg *config.Config
	var err error
	if path != "" {
		cfg, err = config.LoadFile(path)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// serve runs the daemon until ctx is cancelled.
func serve(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	if err := cfg.EnsurePaths(); err != nil {
		return err
	}
	overflow, err := broadcast.ParseOverflowPolicy(cfg.Broadcast.Overflow)
	if err != nil {
		return err
	}

	notifyBinary, err := cfg.NotifyBinaryPath()
	if err != nil {
		logger.Warn("notify channel disabled, agents can only report through markers", "error", err)
		notifyBinary = ""
	}

	logger.Info("starting tmux-builder",
		"version", version.Info(),
		"environment", cfg.Environment,
		"root", cfg.Paths.Root,
		"tmux_socket", cfg.Tmux.Socket,
		"address", cfg.HTTP.Address,
	)

	layout := session.Layout{Root: cfg.Paths.Root}
	logs := activitylog.NewStore(func(id string) string { return layout.Paths(id).ActivityLog })
	broadcaster := broadcast.New(logs, broadcast.Options{
		Replay:    cfg.Broadcast.Replay,
		QueueSize: cfg.Broadcast.QueueSize,
		Overflow:  overflow,
		Logger:    logger,
	})
	terminal := tmux.NewServer(cfg.Tmux.Socket, cfg.Tmux.ConfigFile)

	orch := orchestrator.New(terminal, broadcaster, logs, orchestrator.Options{
		Layout:        layout,
		NotifyBinary:  notifyBinary,
		AgentCommand:  cfg.Tmux.AgentCommand,
		SessionPrefix: cfg.Tmux.SessionPrefix,
		CaptureLines:  cfg.Tmux.CaptureLines,
		Timing: orchestrator.Timing{
			StartupDelay:      cfg.Timing.StartupDelay,
			PollInterval:      cfg.Timing.PollInterval,
			SettleDelay:       cfg.Timing.SettleDelay,
			ReadyTimeout:      cfg.Timing.ReadyTimeout,
			AckTimeout:        cfg.Timing.AckTimeout,
			Attempts:          cfg.Timing.Attempts,
			Backoff:           cfg.Timing.Backoff,
			BackoffMax:        cfg.Timing.BackoffMax,
			ProcessingTimeout: cfg.Timing.ProcessingTimeout,
			SessionTimeout:    cfg.Timing.SessionTimeout,
		},
		ArchiveLogs: cfg.Broadcast.ArchiveLogs,
		Watcher:     marker.NewWatcher(),
		Logger:      logger,
	})

	recovered, err := orch.Recover()
	if len(recovered) > 0 {
		logger.Info("failed sessions left by a previous run", "sessions", recovered)
	}
	if err != nil {
		logger.Warn("recovering sessions", "error", err)
	}

	stream := pushchannel.NewHandler(orch, pushchannel.Options{
		Heartbeat:   cfg.Broadcast.Heartbeat,
		PongTimeout: cfg.Broadcast.PongTimeout,
		Logger:      logger,
	})
	gin.SetMode(gin.ReleaseMode)
	router := httpapi.NewRouter(orch, stream, logger)

	server := service.NewHTTPServer(service.HTTPServerConfig{
		Address:         cfg.HTTP.Address,
		Handler:         router,
		ShutdownTimeout: cfg.HTTP.ShutdownTimeout,
		WriteTimeout:    cfg.HTTP.WriteTimeout,
		Logger:          logger,
	})
	serveErr := server.Serve(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	shutdownErr := orch.Shutdown(shutdownCtx)
	if shutdownErr != nil {
		shutdownErr = fmt.Errorf("stopping sessions: %w", shutdownErr)
	}
	logger.Info("tmux-builder stopped")
	return errors.Join(serveErr, shutdownErr)
}
