package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/reelquery/reelquery/internal/endpoint"
	"github.com/reelquery/reelquery/internal/server"
)

// CatalogURI addresses the endpoint catalog resource.
const CatalogURI = "reelquery://catalog"

// CatalogResource serves the endpoint catalog as JSON.
type CatalogResource struct {
	catalog *endpoint.Catalog
}

// NewCatalogResource creates a CatalogResource.
func NewCatalogResource(c *endpoint.Catalog) *CatalogResource {
	return &CatalogResource{catalog: c}
}

// Resource returns the MCP resource definition.
func (r *CatalogResource) Resource() mcp.Resource {
	return mcp.NewResource(
		CatalogURI,
		"Endpoint catalog",
		mcp.WithResourceDescription("Every endpoint the planner may call, with its kind, media and supported constraints"),
		mcp.WithMIMEType("application/json"),
	)
}

// Handle returns the catalog.
func (r *CatalogResource) Handle(_ context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	specs := r.catalog.All()
	entries := make([]server.CatalogEntry, len(specs))
	for i, s := range specs {
		entries[i] = server.NewCatalogEntry(s)
	}
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshaling catalog: %w", err)
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      req.Params.URI,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}
