package qdrant

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/qdrant/go-client/qdrant"
)

func TestOpen(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{name: "missing collection", cfg: Config{VectorSize: 768}, wantErr: "collection name"},
		{name: "missing vector size", cfg: Config{Collection: "endpoints"}, wantErr: "vector size"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Open(tt.cfg)
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Open() error = %v, want %q", err, tt.wantErr)
			}
		})
	}

	c, err := Open(Config{Collection: "endpoints", VectorSize: 768})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer c.Close()
	if c.Name() != "reel_endpoints" || c.VectorSize() != 768 || c.timeout != DefaultTimeout {
		t.Errorf("collection = %s size %d timeout %v", c.Name(), c.VectorSize(), c.timeout)
	}
}

func TestCollection_RejectsWrongDimensions(t *testing.T) {
	c, err := Open(Config{Collection: "endpoints", VectorSize: 3})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer c.Close()
	ctx := context.Background()

	err = c.Upsert(ctx, []Point{{
		ID:      "5c1c3e1e-8f2a-5b0e-9a51-0d3b2f6f7c11",
		Vector:  []float32{1, 0},
		Payload: EndpointPayload{Path: "/discover/movie"},
	}})
	if err == nil || !strings.Contains(err.Error(), "/discover/movie") {
		t.Errorf("Upsert() error = %v, want a dimension error naming the endpoint", err)
	}
	if _, err := c.Search(ctx, SearchRequest{Vector: []float32{1, 0, 0, 0}}); err == nil {
		t.Error("Search() accepted a 4-dimension vector for a 3-dimension collection")
	}
	if err := c.Upsert(ctx, nil); err != nil {
		t.Errorf("Upsert(nil) error = %v", err)
	}
}

func TestCollection_Closed(t *testing.T) {
	c, err := Open(Config{Collection: "endpoints", VectorSize: 3})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := c.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}

	ctx := context.Background()
	if _, err := c.Info(ctx); !errors.Is(err, ErrClosed) {
		t.Errorf("Info() error = %v, want ErrClosed", err)
	}
	if _, err := c.Health(ctx); !errors.Is(err, ErrClosed) {
		t.Errorf("Health() error = %v, want ErrClosed", err)
	}
	if err := c.Ensure(ctx); !errors.Is(err, ErrClosed) {
		t.Errorf("Ensure() error = %v, want ErrClosed", err)
	}
}

func TestDescribeHealth(t *testing.T) {
	if got := describeHealth("1.16.0", nil); got != "qdrant 1.16.0, endpoints not indexed" {
		t.Errorf("missing collection: %q", got)
	}
	info := &CollectionInfo{Name: "reel_endpoints", PointsCount: 58, Status: "green"}
	if got := describeHealth("1.16.0", info); got != "qdrant 1.16.0, reel_endpoints green with 58 endpoints" {
		t.Errorf("indexed collection: %q", got)
	}
}

func TestToInfo(t *testing.T) {
	points := uint64(12)
	got := toInfo("reel_endpoints", &qdrant.CollectionInfo{Status: qdrant.CollectionStatus_Yellow, PointsCount: &points})
	if got.Name != "reel_endpoints" || got.PointsCount != 12 || got.Status != "yellow" {
		t.Errorf("info = %+v", got)
	}
	if got := toInfo("reel_endpoints", &qdrant.CollectionInfo{}); got.PointsCount != 0 || got.Status != "unknown" {
		t.Errorf("empty info = %+v", got)
	}
}

func TestPayloadRoundTrip(t *testing.T) {
	indexed := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	in := EndpointPayload{
		Path:        "/person/{person_id}/combined_credits",
		Kind:        "credits",
		Description: "Complete career of one person",
		Params:      []string{"with_people"},
		IndexedAt:   indexed,
	}

	values := qdrant.NewValueMap(payloadMap(in))
	if got := getStringValue(values, "media"); got != MixedMedia {
		t.Errorf("stored media = %q, want %q", got, MixedMedia)
	}

	out := extractPayload(values)
	if out.Path != in.Path || out.Kind != in.Kind || out.Media != "" {
		t.Errorf("payload = %+v", out)
	}
	if len(out.Params) != 1 || out.Params[0] != "with_people" {
		t.Errorf("params = %v", out.Params)
	}
	if !out.IndexedAt.Equal(indexed) {
		t.Errorf("indexed_at = %v", out.IndexedAt)
	}
}

func TestBuildSearchFilter(t *testing.T) {
	if buildSearchFilter(nil) != nil || buildSearchFilter(&SearchFilter{}) != nil {
		t.Error("empty filter should be nil")
	}

	f := buildSearchFilter(&SearchFilter{Kinds: []string{"discovery"}, Media: "tv"})
	if len(f.Must) != 2 {
		t.Fatalf("conditions = %d, want 2", len(f.Must))
	}
	media := f.Must[1].GetField().GetMatch().GetKeywords().GetStrings()
	if len(media) != 2 || media[0] != "tv" || media[1] != MixedMedia {
		t.Errorf("media match = %v, mixed endpoints must stay eligible", media)
	}
}

func TestPointID(t *testing.T) {
	if got := pointID(qdrant.NewIDUUID("5c1c3e1e-8f2a-5b0e-9a51-0d3b2f6f7c11")); got != "5c1c3e1e-8f2a-5b0e-9a51-0d3b2f6f7c11" {
		t.Errorf("uuid id = %s", got)
	}
	if got := pointID(qdrant.NewIDNum(42)); got != "42" {
		t.Errorf("num id = %s", got)
	}
	if pointID(nil) != "" {
		t.Error("nil id")
	}
}
