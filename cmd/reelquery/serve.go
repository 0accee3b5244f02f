package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/reelquery/reelquery/internal/server"
)

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP answer server",
		Long: `Start the HTTP server:
  POST /v1/answer         answer a request
  POST /v1/plan           dry run a request
  GET  /v1/catalog        list the endpoint catalog
  GET  /v1/queries        recent queries, or an export with ?format=jsonl|csv
  GET  /healthz, /readyz  liveness and readiness
  GET  /metrics           Prometheus metrics`,
		RunE: runServe,
	}

	cmd.Flags().IntP("port", "p", 0, "HTTP server port (overrides config)")
	cmd.Flags().String("host", "", "HTTP server host (overrides config)")
	cmd.Flags().Bool("index", false, "index the endpoint catalog into Qdrant before serving")

	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, log, err := globalConfig(cmd)
	if err != nil {
		return err
	}

	// Override from flags
	if cmd.Flags().Changed("port") {
		cfg.Port, _ = cmd.Flags().GetInt("port")
	}
	if cmd.Flags().Changed("host") {
		cfg.Host, _ = cmd.Flags().GetString("host")
	}

	log.Info("Starting reelquery server", "version", version, "addr", cfg.Address())

	a, err := newApp(cfg, log)
	if err != nil {
		return err
	}

	if index, _ := cmd.Flags().GetBool("index"); index && cfg.Retrieval.Type == "qdrant" {
		ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Minute)
		_, err := indexCatalog(ctx, a)
		cancel()
		if err != nil {
			// Retrieval degrades to keywords; serving is still useful.
			log.Warn("Catalog indexing failed", "error", err)
		}
	}

	if _, err := a.watchOverrides(cmd.Context()); err != nil {
		// Serving with the table loaded at startup is still correct.
		log.Warn("Overrides watcher not started", "error", err)
	}

	srvCfg := server.DefaultConfig()
	srvCfg.Host = cfg.Host
	srvCfg.Port = cfg.Port
	srvCfg.Version = version
	srvCfg.MetricsPath = cfg.Observability.MetricsPath

	srv, err := server.New(srvCfg, server.Deps{
		Planner:  a.planner,
		Catalog:  a.catalog,
		QueryLog: a.queryLog,
		Metrics:  a.metrics,
		Health:   a.health,
		Closers:  []func(context.Context) error{a.close},
	}, log)
	if err != nil {
		_ = a.close(context.Background())
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case err := <-errCh:
		_ = a.close(context.Background())
		return err
	case <-ctx.Done():
		log.Info("Shutdown signal received")
	}

	if err := srv.Stop(context.Background()); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
