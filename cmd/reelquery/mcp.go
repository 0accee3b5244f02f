package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/reelquery/reelquery/internal/client"
	"github.com/reelquery/reelquery/internal/endpoint"
	"github.com/reelquery/reelquery/internal/mcp"
)

func mcpCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Serve the planner as MCP tools over stdio",
		Long: `Mcp speaks the Model Context Protocol on stdin and stdout so an
assistant host can call reelquery_answer, reelquery_plan and
reelquery_catalog. Logs go to stderr.

With --server the tools forward to a running 'reelquery serve'.`,
		RunE: runMCP,
	}
	cmd.Flags().String("server", "", "forward tool calls to a running server at this URL")
	cmd.Flags().Duration("timeout", 90*time.Second, "per call timeout when forwarding")
	return cmd
}

func runMCP(cmd *cobra.Command, _ []string) error {
	cfg, log, err := globalConfig(cmd)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	deps := mcp.Deps{Catalog: endpoint.DefaultCatalog()}
	if addr, _ := cmd.Flags().GetString("server"); addr != "" {
		timeout, _ := cmd.Flags().GetDuration("timeout")
		deps.Planner = client.New(client.Config{BaseURL: addr, Timeout: timeout})
		log.Info("Forwarding MCP tools", "server", addr)
	} else {
		a, err := newApp(cfg, log)
		if err != nil {
			return err
		}
		defer func() { _ = a.close(context.Background()) }()
		if _, err := a.watchOverrides(ctx); err != nil {
			log.Warn("Overrides watcher not started", "error", err)
		}
		deps.Planner = a.planner
		deps.Catalog = a.catalog
	}

	s := mcp.New(deps, version)
	err = mcp.ServeStdio(ctx, s, cmd.InOrStdin(), cmd.OutOrStdout(), log)
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
