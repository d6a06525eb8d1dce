package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"productivity/config"
	phttp "productivity/http"
	"productivity/logging"
	"productivity/ml"
)

var (
	configPath string
	modelPath  string
	port       int
)

var rootCmd = &cobra.Command{
	Use:   "productivity-api",
	Short: "Serve garment worker productivity predictions over HTTP",
	Long: `Loads a trained model artifact once at startup and serves

  GET  /             health check
  POST /predict      {"incentive": <0..150>} -> {"predicted_productivity": <float>}
  GET  /ws/predict   the same prediction over a websocket`,
	SilenceUsage: true,
	RunE:         runServer,
}

func init() {
	rootCmd.Flags().StringVar(&configPath, "config", "", "path to config.yaml")
	rootCmd.Flags().StringVar(&modelPath, "model", "", "model artifact path (overrides model.path)")
	rootCmd.Flags().IntVar(&port, "port", 0, "listen port (overrides http.port)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runServer(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if modelPath != "" {
		cfg.Model.Path = modelPath
	}
	if port != 0 {
		cfg.Http.Port = port
	}

	logger := logging.FromConfig(cfg)
	defer logger.Sync()

	model, err := ml.LoadModel(cfg.Model.Path)
	if err != nil {
		logger.Fatal("failed to load model", zap.String("path", cfg.Model.Path), zap.Error(err))
	}
	logger.Info("model loaded", zap.String("path", cfg.Model.Path), zap.String("feature", model.Feature()))

	serverConfig := phttp.DefaultServerConfig()
	serverConfig.Port = cfg.Http.Port
	serverConfig.AllowedOrigins = cfg.Http.AllowedOrigins
	serverConfig.MaxBodyBytes = cfg.Http.MaxBodyBytes
	server := phttp.NewServer(serverConfig, model, logger)
	if err := server.Listen(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(server.Start)
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Stop(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return fmt.Errorf("server: %w", err)
	}
	logger.Info("exiting")
	return nil
}
