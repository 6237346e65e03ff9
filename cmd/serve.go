package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jhh003/limbusguide/internal/api"
	"github.com/jhh003/limbusguide/internal/app"
	"github.com/jhh003/limbusguide/internal/config"
	"github.com/jhh003/limbusguide/internal/log"
)

// sessionSweepInterval is how often expired group import sessions are
// reaped in the background. Sessions are also checked lazily on access.
const sessionSweepInterval = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "启动知识库与管理 API 服务",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := newLogger(cfg)
	slog.SetDefault(logger)
	logger.Info("starting limbusguide", "version", AppVersion, "db", cfg.DBPath)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := app.Setup(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing application: %w", err)
	}
	defer func() {
		if closeErr := a.Close(); closeErr != nil {
			logger.Warn("shutdown error", "error", closeErr)
		}
	}()

	go a.Manager.RunSessionSweeper(ctx, sessionSweepInterval)

	if !cfg.Server.Enabled {
		logger.Info("admin API disabled, running knowledge base only")
		<-ctx.Done()
		return nil
	}

	srv, err := api.NewServer(a.Manager, a.Retriever, cfg.Server, logger)
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}

	if err := srv.Run(ctx); err != nil {
		return fmt.Errorf("admin HTTP server: %w", err)
	}
	return nil
}

// newLogger builds the process logger from configuration.
func newLogger(cfg *config.Config) log.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.LogLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	return log.New(log.Config{Level: level, JSON: cfg.LogJSON})
}
