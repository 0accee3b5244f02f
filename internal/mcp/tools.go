package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/reelquery/reelquery/internal/endpoint"
	apperrors "github.com/reelquery/reelquery/internal/pkg/errors"
	"github.com/reelquery/reelquery/internal/planner"
)

// requestOptions are the arguments shared by answer and plan.
func requestOptions() []mcp.ToolOption {
	return []mcp.ToolOption{
		mcp.WithString("query",
			mcp.Description("The user's question, e.g. 'crime dramas on HBO from the 2000s'"),
		),
		mcp.WithArray("entities",
			mcp.Description("Extracted entities in extraction order. Each has type (person, genre, "+
				"company, network, keyword, year, date_range, rating, revenue, runtime, language, "+
				"media_type), value, confidence in [0,1], and optionally operator, role and id"),
			mcp.Items(map[string]any{"type": "object"}),
		),
		mcp.WithString("question_type",
			mcp.Description("list, fact or timeline. Detected from the query when omitted"),
			mcp.Enum("list", "fact", "timeline"),
		),
		mcp.WithString("query_id",
			mcp.Description("Correlation id for logs. Generated when omitted"),
		),
	}
}

// requestFrom decodes tool arguments into a planner request. Unknown
// arguments are rejected, like the HTTP API does.
func requestFrom(req mcp.CallToolRequest) (planner.Request, error) {
	var out planner.Request
	raw, err := json.Marshal(req.GetArguments())
	if err != nil {
		return out, err
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&out); err != nil {
		return out, fmt.Errorf("invalid arguments: %w", err)
	}
	return out, nil
}

// toolError renders a planner error for the host. Internal failures are
// not described beyond their code.
func toolError(op string, err error) *mcp.CallToolResult {
	code := apperrors.CodeOf(err)
	if code == "" || code == apperrors.CodeInternal {
		return mcp.NewToolResultError(fmt.Sprintf("%s failed: internal error", op))
	}
	return mcp.NewToolResultError(fmt.Sprintf("%s failed (%s): %v", op, code, err))
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshaling result: %w", err)
	}
	return mcp.NewToolResultText(string(data)), nil
}

// AnswerTool handles reelquery_answer.
type AnswerTool struct {
	planner Planner
}

// NewAnswerTool creates an AnswerTool.
func NewAnswerTool(p Planner) *AnswerTool {
	return &AnswerTool{planner: p}
}

// Definition returns the MCP tool definition for reelquery_answer.
func (t *AnswerTool) Definition() mcp.Tool {
	opts := append([]mcp.ToolOption{
		mcp.WithDescription("Answer a movie or TV question. Returns the result envelope as JSON: " +
			"entries, the relaxations applied, the final state and the provenance of every step."),
	}, requestOptions()...)
	return mcp.NewTool("reelquery_answer", opts...)
}

// Handle processes the reelquery_answer tool call.
func (t *AnswerTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	r, err := requestFrom(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	env, err := t.planner.Answer(ctx, r)
	if err != nil {
		return toolError("answer", err), nil
	}
	return jsonResult(env)
}

// PlanTool handles reelquery_plan.
type PlanTool struct {
	planner Planner
}

// NewPlanTool creates a PlanTool.
func NewPlanTool(p Planner) *PlanTool {
	return &PlanTool{planner: p}
}

// Definition returns the MCP tool definition for reelquery_plan.
func (t *PlanTool) Definition() mcp.Tool {
	opts := append([]mcp.ToolOption{
		mcp.WithDescription("Dry run a movie or TV question: the constraint tree, the chosen " +
			"endpoint and the call that would be made. The discovery API is not queried."),
	}, requestOptions()...)
	return mcp.NewTool("reelquery_plan", opts...)
}

// Handle processes the reelquery_plan tool call.
func (t *PlanTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	r, err := requestFrom(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	plan, err := t.planner.Plan(ctx, r)
	if err != nil {
		return toolError("plan", err), nil
	}
	return jsonResult(plan)
}

// CatalogTool handles reelquery_catalog.
type CatalogTool struct {
	catalog *endpoint.Catalog
}

// NewCatalogTool creates a CatalogTool.
func NewCatalogTool(c *endpoint.Catalog) *CatalogTool {
	return &CatalogTool{catalog: c}
}

// Definition returns the MCP tool definition for reelquery_catalog.
func (t *CatalogTool) Definition() mcp.Tool {
	return mcp.NewTool("reelquery_catalog",
		mcp.WithDescription("List the endpoints reelquery can call and the constraints each one expresses."),
		mcp.WithString("kind",
			mcp.Description("Only list endpoints of this kind"),
			mcp.Enum(string(endpoint.KindDiscovery), string(endpoint.KindSearch),
				string(endpoint.KindCredits), string(endpoint.KindTrending)),
		),
	)
}

// Handle processes the reelquery_catalog tool call.
func (t *CatalogTool) Handle(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	kind := endpoint.Kind(req.GetString("kind", ""))

	var b strings.Builder
	n := 0
	for _, s := range t.catalog.All() {
		if kind != "" && s.Kind != kind {
			continue
		}
		n++
		fmt.Fprintf(&b, "- %s (%s", s.Path, s.Kind)
		if s.Media != "" {
			fmt.Fprintf(&b, ", %s", s.Media)
		}
		b.WriteString(")\n")
		if len(s.Params) > 0 {
			fmt.Fprintf(&b, "  params: %s\n", strings.Join(s.Params, ", "))
		}
		if s.Description != "" {
			fmt.Fprintf(&b, "  %s\n", s.Description)
		}
	}
	if n == 0 {
		return mcp.NewToolResultText("No endpoints match."), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("%d endpoints:\n\n%s", n, b.String())), nil
}
