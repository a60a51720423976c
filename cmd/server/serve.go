package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/wavetermdev/waveterm-sub010/internal/domain/hub"
	"github.com/wavetermdev/waveterm-sub010/internal/infrastructure/config"
	"github.com/wavetermdev/waveterm-sub010/internal/infrastructure/logging"
	"github.com/wavetermdev/waveterm-sub010/internal/infrastructure/monitoring"
	"github.com/wavetermdev/waveterm-sub010/internal/infrastructure/server"
)

func serveCmd() *cobra.Command {
	var (
		configPath string
		port       string
		dev        bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the server",
		Long: `Run the HTTP and websocket server.

Configuration comes from defaults, then the YAML or TOML file named by
--config (or WAVESRV_CONFIG), then WAVESRV_* environment variables, then
flags.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if configPath != "" {
				if err := os.Setenv(config.ConfigFileEnv, configPath); err != nil {
					return err
				}
			}
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("port") {
				cfg.Server.Port = port
			}
			if dev {
				cfg.Logging.Development = true
				cfg.Logging.Level = "debug"
			}
			return runServe(cmd.Context(), cfg)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Config file (.yaml, .yml or .toml)")
	cmd.Flags().StringVarP(&port, "port", "p", "", "Server port")
	cmd.Flags().BoolVar(&dev, "dev", false, "Development mode (console logs, debug level)")

	return cmd
}

func runServe(parent context.Context, cfg *config.Config) error {
	if parent == nil {
		parent = context.Background()
	}
	logger, err := logging.New(logging.Config{
		Level:       cfg.Logging.Level,
		Development: cfg.Logging.Development,
		OutputPaths: cfg.Logging.OutputPaths,
	})
	if err != nil {
		return err
	}
	defer logger.Close()

	authKey, err := cfg.Auth.ResolveKey()
	if err != nil {
		return err
	}
	if authKey == "" {
		return fmt.Errorf("an auth key is required: set %s_AUTH_KEY or %s_AUTH_KEY_FILE", config.EnvPrefix, config.EnvPrefix)
	}

	h, err := hub.New(cfg, authKey, monitoring.NewMetrics(), logger.Logger)
	if err != nil {
		return err
	}
	srv := server.NewServer(cfg, h, logger.Logger)

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(srv.Run)
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down gracefully...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.D())
		defer cancel()
		srvErr := srv.Shutdown(shutdownCtx)
		if err := h.Close(shutdownCtx); err != nil {
			logger.Warn("hub close incomplete", zap.Error(err))
		}
		return srvErr
	})

	logger.Info("wavesrv starting",
		zap.String("version", version),
		zap.String("addr", cfg.Server.Addr()),
		zap.Bool("development", cfg.Logging.Development),
	)
	return g.Wait()
}
