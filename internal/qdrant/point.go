package qdrant

import (
	"context"
	"fmt"
	"time"

	"github.com/qdrant/go-client/qdrant"
)

// MixedMedia is the media payload stored for endpoints that list both
// movies and TV.
const MixedMedia = "mixed"

// Upsert writes points, replacing any with the same id. Every vector must
// have the collection's size.
func (c *Collection) Upsert(ctx context.Context, points []Point) error {
	if len(points) == 0 {
		return nil
	}
	structs := make([]*qdrant.PointStruct, len(points))
	for i, p := range points {
		if uint64(len(p.Vector)) != c.size {
			return fmt.Errorf("endpoint %s: vector has %d dimensions, collection wants %d", p.Payload.Path, len(p.Vector), c.size)
		}
		structs[i] = pointToQdrant(p)
	}

	ctx, cancel, err := c.call(ctx)
	if err != nil {
		return err
	}
	defer cancel()

	_, err = c.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: c.name,
		Points:         structs,
		Wait:           qdrant.PtrOf(true),
	})
	if err != nil {
		return fmt.Errorf("upserting into %s: %w", c.name, err)
	}
	return nil
}

func pointToQdrant(p Point) *qdrant.PointStruct {
	return &qdrant.PointStruct{
		Id:      qdrant.NewIDUUID(p.ID),
		Vectors: qdrant.NewVectors(p.Vector...),
		Payload: qdrant.NewValueMap(payloadMap(p.Payload)),
	}
}

func payloadMap(p EndpointPayload) map[string]any {
	media := p.Media
	if media == "" {
		media = MixedMedia
	}
	params := make([]any, len(p.Params))
	for i, s := range p.Params {
		params[i] = s
	}
	return map[string]any{
		"path":        p.Path,
		"kind":        p.Kind,
		"media":       media,
		"description": p.Description,
		"params":      params,
		"indexed_at":  p.IndexedAt.UTC().Format(time.RFC3339),
	}
}
