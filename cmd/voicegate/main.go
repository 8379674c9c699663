// Package main provides the CLI entry point for the voicegate webhook service.
//
// Voicegate sits between a voice engine and a customer-data API: it receives
// function-call webhook events for live phone calls, resolves parameters from
// per-call session context, invokes the backend with bounded retry, and
// returns spoken-safe response envelopes.
//
// # Basic Usage
//
// Start the server:
//
//	voicegate serve --config voicegate.yaml
//
// # Environment Variables
//
// The configuration file supports ${VAR} expansion, so secrets are usually
// provided via environment:
//
//   - VOICEGATE_CONFIG: Path to configuration file (default: voicegate.yaml)
//   - BACKEND_API_KEY: Customer-data API key
//   - WEBHOOK_TOKEN: Shared bearer token the voice engine presents
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/haasonsaas/voicegate/internal/backend"
	"github.com/haasonsaas/voicegate/internal/callctx"
	"github.com/haasonsaas/voicegate/internal/config"
	"github.com/haasonsaas/voicegate/internal/dispatch"
	"github.com/haasonsaas/voicegate/internal/ingress"
	"github.com/haasonsaas/voicegate/internal/observability"
	"github.com/haasonsaas/voicegate/internal/tools"
)

// Build information, populated by ldflags:
//
//	go build -ldflags "-X main.version=v1.0.0 -X main.commit=$(git rev-parse HEAD)"
var (
	version = "dev"
	commit  = "none"
)

func main() {
	if err := buildRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "voicegate",
		Short:        "Voicegate - voice assistant function-call middleware",
		Version:      fmt.Sprintf("%s (commit: %s)", version, commit),
		SilenceUsage: true,
	}
	rootCmd.AddCommand(buildServeCmd(), buildVersionCmd())
	return rootCmd
}

func buildVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("voicegate %s (commit: %s)\n", version, commit)
		},
	}
}

func buildServeCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the webhook server",
		Long: `Start the voicegate webhook server.

The server will:
1. Load configuration from the specified file (or voicegate.yaml)
2. Open the session context store (memory or postgres)
3. Register the tool catalog against the customer-data API
4. Serve /webhooks/voice, /healthz and /metrics

Graceful shutdown is handled on SIGINT/SIGTERM signals.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), resolveConfigPath(configPath))
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to YAML configuration file")
	return cmd
}

func resolveConfigPath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if env := os.Getenv("VOICEGATE_CONFIG"); env != "" {
		return env
	}
	return "voicegate.yaml"
}

func runServe(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger := observability.NewLogger(observability.LogConfig{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	logger.Info(ctx, "starting voicegate",
		"version", version, "commit", commit, "config", configPath)

	registry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(registry)

	store, err := openStore(cfg, metrics)
	if err != nil {
		return err
	}
	defer store.Close()

	client, err := backend.NewClient(backend.Config{
		BaseURL:           cfg.Backend.BaseURL,
		APIKey:            cfg.Backend.APIKey,
		Timeout:           cfg.Backend.Timeout,
		MaxRetries:        cfg.Backend.MaxRetries,
		RetryInitialDelay: cfg.Backend.RetryInitialDelay,
	}, logger, metrics)
	if err != nil {
		return err
	}
	cache := backend.NewSearchCache(cfg.Backend.SearchCacheTTL)

	toolRegistry, err := tools.NewRegistry(tools.Catalog(client, cache)...)
	if err != nil {
		return err
	}
	logger.Info(ctx, "tool catalog registered", "tools", toolRegistry.Len())

	dispatcher := dispatch.New(toolRegistry, store, logger, metrics, cfg.Dispatch.Budget)
	auth := ingress.NewAuthenticator(cfg.Auth.WebhookToken, cfg.Auth.WebhookSecret)
	handler := ingress.NewHandler(auth, dispatcher, store, logger, metrics)
	server := ingress.NewServer(cfg.Server, handler, registry, logger)

	serveErr := make(chan error, 1)
	go func() { serveErr <- server.Start() }()

	sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-serveErr:
		return err
	case <-sigCtx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	logger.Info(ctx, "voicegate stopped")
	return <-serveErr
}

func openStore(cfg *config.Config, metrics *observability.Metrics) (callctx.Store, error) {
	switch cfg.Session.Store {
	case config.StorePostgres:
		return callctx.NewPostgresStore(
			cfg.Session.PostgresDSN,
			cfg.Session.TTL,
			cfg.Session.ReapInterval,
		)
	default:
		return callctx.NewMemoryStore(
			cfg.Session.TTL,
			cfg.Session.ReapInterval,
			callctx.WithMetrics(metrics),
		), nil
	}
}
