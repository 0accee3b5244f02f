// Package mcp exposes the planner as Model Context Protocol tools, so an
// assistant host can answer film and TV questions through reelquery.
package mcp

import (
	"context"
	"io"
	"log/slog"

	"github.com/mark3labs/mcp-go/server"

	"github.com/reelquery/reelquery/internal/endpoint"
	"github.com/reelquery/reelquery/internal/pkg/logger"
	"github.com/reelquery/reelquery/internal/planner"
)

// Planner answers and plans requests.
type Planner interface {
	Answer(ctx context.Context, req planner.Request) (*planner.ResultEnvelope, error)
	Plan(ctx context.Context, req planner.Request) (*planner.Plan, error)
}

// Deps are the services behind the tools.
type Deps struct {
	Planner Planner
	Catalog *endpoint.Catalog
}

const instructions = `reelquery answers questions about movies and TV shows against a
discovery API. Call reelquery_answer with the user's text and any entities
you extracted (type, value, confidence). Call reelquery_plan to see which
endpoint and parameters would be used without calling the API.`

// New creates the MCP server with every tool and resource registered.
func New(deps Deps, version string) *server.MCPServer {
	if deps.Catalog == nil {
		deps.Catalog = endpoint.DefaultCatalog()
	}

	s := server.NewMCPServer(
		"reelquery",
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
		server.WithRecovery(),
		server.WithInstructions(instructions),
	)

	answer := NewAnswerTool(deps.Planner)
	s.AddTool(answer.Definition(), answer.Handle)

	plan := NewPlanTool(deps.Planner)
	s.AddTool(plan.Definition(), plan.Handle)

	catalog := NewCatalogTool(deps.Catalog)
	s.AddTool(catalog.Definition(), catalog.Handle)

	res := NewCatalogResource(deps.Catalog)
	s.AddResource(res.Resource(), res.Handle)

	return s
}

// ServeStdio serves s over in and out until ctx is done or in closes.
// Protocol errors go to log, never to out.
func ServeStdio(ctx context.Context, s *server.MCPServer, in io.Reader, out io.Writer, log *logger.Logger) error {
	if log == nil {
		log = logger.Discard()
	}
	stdio := server.NewStdioServer(s)
	stdio.SetErrorLogger(slog.NewLogLogger(log.Handler(), slog.LevelError))
	return stdio.Listen(ctx, in, out)
}
