package retrieval

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/reelquery/reelquery/internal/endpoint"
	apperrors "github.com/reelquery/reelquery/internal/pkg/errors"
	"github.com/reelquery/reelquery/internal/pkg/logger"
	"github.com/reelquery/reelquery/internal/qdrant"
)

// VectorStore is the endpoint collection the vector retriever reads and
// indexes. *qdrant.Collection implements it.
type VectorStore interface {
	Name() string
	Ensure(ctx context.Context) error
	Upsert(ctx context.Context, points []qdrant.Point) error
	Search(ctx context.Context, req qdrant.SearchRequest) ([]qdrant.SearchResult, error)
	Drop(ctx context.Context) error
	Info(ctx context.Context) (*qdrant.CollectionInfo, error)
}

// VectorRetriever embeds the query and looks up the nearest endpoint
// descriptions in a vector store.
type VectorRetriever struct {
	embedder Embedder
	store    VectorStore
	topK     int
	log      *logger.Logger
	now      func() time.Time
}

// NewVectorRetriever creates a retriever returning at most topK matches.
func NewVectorRetriever(embedder Embedder, store VectorStore, topK int, log *logger.Logger) *VectorRetriever {
	if topK <= 0 {
		topK = 8
	}
	if log == nil {
		log = logger.Discard()
	}
	return &VectorRetriever{
		embedder: embedder,
		store:    store,
		topK:     topK,
		log:      log,
		now:      time.Now,
	}
}

// Retrieve implements Retriever. Cosine scores are clamped to [0, 1].
func (r *VectorRetriever) Retrieve(ctx context.Context, query string) ([]endpoint.Match, error) {
	vectors, err := r.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, err
	}

	results, err := r.store.Search(ctx, qdrant.SearchRequest{
		Vector: vectors[0],
		Limit:  uint64(r.topK),
	})
	if err != nil {
		return nil, apperrors.QdrantError("endpoint search failed", err)
	}

	out := make([]endpoint.Match, 0, len(results))
	for _, res := range results {
		if res.Payload.Path == "" {
			continue
		}
		score := float64(res.Score)
		if score < 0 {
			score = 0
		}
		if score > 1 {
			score = 1
		}
		out = append(out, endpoint.Match{Path: res.Payload.Path, Score: score})
	}
	sortMatches(out)
	return out, nil
}

// PointID derives a stable point id from an endpoint path, so re-indexing
// overwrites instead of duplicating.
func PointID(path string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("reelquery:endpoint:"+path)).String()
}

// Index embeds every catalog description and upserts it. It returns the
// number of endpoints written.
func (r *VectorRetriever) Index(ctx context.Context, catalog *endpoint.Catalog) (int, error) {
	specs := catalog.All()
	if len(specs) == 0 {
		return 0, nil
	}

	if err := r.store.Ensure(ctx); err != nil {
		return 0, apperrors.QdrantError("ensuring collection", err)
	}

	texts := make([]string, len(specs))
	for i, s := range specs {
		texts[i] = s.Description
	}
	vectors, err := r.embedder.Embed(ctx, texts)
	if err != nil {
		return 0, fmt.Errorf("embedding catalog: %w", err)
	}

	indexed := r.now().UTC()
	points := make([]qdrant.Point, len(specs))
	for i, s := range specs {
		points[i] = qdrant.Point{
			ID:     PointID(s.Path),
			Vector: vectors[i],
			Payload: qdrant.EndpointPayload{
				Path:        s.Path,
				Kind:        string(s.Kind),
				Media:       string(s.Media),
				Description: s.Description,
				Params:      s.Params,
				IndexedAt:   indexed,
			},
		}
	}
	if err := r.store.Upsert(ctx, points); err != nil {
		return 0, apperrors.QdrantError("upserting endpoints", err)
	}

	r.log.Info("Indexed endpoint catalog", "collection", r.store.Name(), "endpoints", len(points))
	return len(points), nil
}

// Reset drops the collection so the next Index starts empty. Endpoints
// removed from the catalog are otherwise left behind as stale points.
func (r *VectorRetriever) Reset(ctx context.Context) error {
	if err := r.store.Drop(ctx); err != nil {
		return apperrors.QdrantError("dropping collection", err)
	}
	r.log.Info("Dropped endpoint collection", "collection", r.store.Name())
	return nil
}

// Stats reports the point count and status of the collection.
func (r *VectorRetriever) Stats(ctx context.Context) (*qdrant.CollectionInfo, error) {
	info, err := r.store.Info(ctx)
	if err != nil {
		return nil, apperrors.QdrantError("reading collection", err)
	}
	return info, nil
}
