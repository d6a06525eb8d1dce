package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"productivity/client"
	"productivity/config"
	phttp "productivity/http"
	"productivity/logging"
	"productivity/ui"
)

var (
	configPath string
	apiURL     string
	port       int
)

var rootCmd = &cobra.Command{
	Use:          "productivity-ui",
	Short:        "Serve the productivity prediction form",
	SilenceUsage: true,
	RunE:         runUI,
}

func init() {
	rootCmd.Flags().StringVar(&configPath, "config", "", "path to config.yaml")
	rootCmd.Flags().StringVar(&apiURL, "api-url", "", "prediction service base URL (overrides ui.api_url)")
	rootCmd.Flags().IntVar(&port, "port", 0, "listen port (overrides ui.port)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runUI(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if apiURL != "" {
		cfg.UI.APIURL = apiURL
	}
	if port != 0 {
		cfg.UI.Port = port
	}

	logger := logging.FromConfig(cfg)
	defer logger.Sync()

	api := client.New(cfg.UI.APIURL)
	handler, err := ui.NewHandler(api, logger)
	if err != nil {
		return err
	}
	mux := http.NewServeMux()
	handler.Register(mux)

	chain := phttp.Chain(
		phttp.RecoveryMiddleware(logger),
		phttp.LoggerMiddleware(logger),
		phttp.SecurityHeadersMiddleware,
		phttp.RequestSizeMiddleware(64<<10),
	)
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.UI.Port),
		Handler:           chain(mux),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      30 * time.Second,
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if msg, err := api.Health(ctx); err != nil {
		logger.Warn("prediction service not reachable yet", zap.String("api_url", api.BaseURL()), zap.Error(err))
	} else {
		logger.Info("prediction service reachable", zap.String("api_url", api.BaseURL()), zap.String("message", msg))
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("starting UI server", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
