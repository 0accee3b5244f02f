package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/reelquery/reelquery/internal/client"
	"github.com/reelquery/reelquery/internal/planner"
	"github.com/reelquery/reelquery/internal/server"
)

func answerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "answer [request.json]",
		Short: "Answer one request and print the result envelope",
		Long: `Answer reads a request (query text plus extracted entities) as JSON
from the named file, or from stdin when the file is omitted or "-",
and prints the result envelope as JSON.

Example request:
  {"query": "movies with Pacino and De Niro",
   "entities": [{"type": "person", "value": "Al Pacino", "confidence": 0.9},
                {"type": "person", "value": "Robert De Niro", "confidence": 0.9}]}`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOnce(cmd, args, func(ctx context.Context, p server.Planner, req planner.Request) (any, error) {
				return p.Answer(ctx, req)
			})
		},
	}
	addRequestFlags(cmd)
	return cmd
}

func planCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plan [request.json]",
		Short: "Show the tree, endpoint and call a request would use, without calling the API",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOnce(cmd, args, func(ctx context.Context, p server.Planner, req planner.Request) (any, error) {
				return p.Plan(ctx, req)
			})
		},
	}
	addRequestFlags(cmd)
	return cmd
}

func addRequestFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("query", "q", "", "query text (overrides the request file)")
	cmd.Flags().Duration("timeout", 60*time.Second, "overall timeout")
	cmd.Flags().Bool("compact", false, "print compact JSON")
	cmd.Flags().String("server", "", "send the request to a running server at this URL instead of answering locally")
}

type runFunc func(ctx context.Context, p server.Planner, req planner.Request) (any, error)

func runOnce(cmd *cobra.Command, args []string, run runFunc) error {
	req, err := readRequest(cmd, args)
	if err != nil {
		return err
	}

	timeout, _ := cmd.Flags().GetDuration("timeout")
	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	var p server.Planner
	if addr, _ := cmd.Flags().GetString("server"); addr != "" {
		p = client.New(client.Config{BaseURL: addr, Timeout: timeout})
	} else {
		cfg, log, err := globalConfig(cmd)
		if err != nil {
			return err
		}
		a, err := newApp(cfg, log)
		if err != nil {
			return err
		}
		defer func() { _ = a.close(context.Background()) }()
		p = a.planner
	}

	result, err := run(ctx, p, req)
	if err != nil {
		return err
	}

	compact, _ := cmd.Flags().GetBool("compact")
	return printJSON(cmd.OutOrStdout(), result, !compact)
}

// readRequest decodes the request from the named file or stdin. With
// --query and no file, the request is the query text alone.
func readRequest(cmd *cobra.Command, args []string) (planner.Request, error) {
	var req planner.Request
	text, _ := cmd.Flags().GetString("query")

	var r io.Reader
	switch {
	case len(args) == 1 && args[0] != "-":
		f, err := os.Open(args[0])
		if err != nil {
			return req, fmt.Errorf("failed to open request: %w", err)
		}
		defer f.Close()
		r = f
	case len(args) == 0 && text != "":
		req.Query = text
		return req, nil
	default:
		r = cmd.InOrStdin()
	}

	if err := json.NewDecoder(r).Decode(&req); err != nil {
		return req, fmt.Errorf("failed to decode request: %w", err)
	}
	if text != "" {
		req.Query = text
	}
	return req, nil
}

func printJSON(w io.Writer, v any, indent bool) error {
	enc := json.NewEncoder(w)
	if indent {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(v)
}
