// Package qdrant wraps the Qdrant Go client with the few operations the
// planner needs: a dense-vector collection of endpoint descriptions and
// nearest-neighbour lookup over it.
package qdrant

import (
	"time"
)

// Point is one endpoint description to upsert.
type Point struct {
	// ID is a UUID derived from the endpoint path.
	ID string

	Vector  []float32
	Payload EndpointPayload
}

// EndpointPayload is the metadata stored with each description vector.
type EndpointPayload struct {
	Path        string    `json:"path"`
	Kind        string    `json:"kind"`
	Media       string    `json:"media"`
	Description string    `json:"description"`
	Params      []string  `json:"params"`
	IndexedAt   time.Time `json:"indexed_at"`
}

// SearchRequest defines a nearest-neighbour query.
type SearchRequest struct {
	Vector []float32

	// Limit is the maximum number of results to return.
	Limit uint64

	// Filter constrains the search to matching endpoints.
	Filter *SearchFilter

	// ScoreThreshold filters results below this score.
	ScoreThreshold *float32
}

// SearchFilter defines filter conditions for search.
type SearchFilter struct {
	// Kinds restricts results to these endpoint kinds.
	Kinds []string

	// Media restricts results to one media type. Mixed endpoints, stored
	// with an empty media, always match.
	Media string
}

// SearchResult is one scored endpoint.
type SearchResult struct {
	ID      string
	Score   float32
	Payload EndpointPayload
}

// CollectionInfo contains information about a collection.
type CollectionInfo struct {
	// Name is the collection name as stored, prefix included.
	Name string

	PointsCount uint64

	// Status is the collection health status.
	Status string
}
