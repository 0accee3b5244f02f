package qdrant

import (
	"context"
	"fmt"
	"strings"

	"github.com/qdrant/go-client/qdrant"
)

// indexedFields are the payload keys search filters match on.
var indexedFields = []string{"kind", "media", "path"}

// Ensure creates the collection with cosine distance and keyword indexes
// on the filterable payload fields. An existing collection is left alone.
func (c *Collection) Ensure(ctx context.Context) error {
	ctx, cancel, err := c.call(ctx)
	if err != nil {
		return err
	}
	defer cancel()

	exists, err := c.client.CollectionExists(ctx, c.name)
	if err != nil {
		return fmt.Errorf("checking %s: %w", c.name, err)
	}
	if exists {
		return nil
	}

	err = c.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: c.name,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     c.size,
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("creating %s: %w", c.name, err)
	}

	for _, field := range indexedFields {
		_, err := c.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
			CollectionName: c.name,
			FieldName:      field,
			FieldType:      qdrant.PtrOf(qdrant.FieldType_FieldTypeKeyword),
		})
		if err != nil && !strings.Contains(err.Error(), "already exists") {
			return fmt.Errorf("indexing %s.%s: %w", c.name, field, err)
		}
	}
	return nil
}

// Drop deletes the collection and every point in it.
func (c *Collection) Drop(ctx context.Context) error {
	ctx, cancel, err := c.call(ctx)
	if err != nil {
		return err
	}
	defer cancel()

	if err := c.client.DeleteCollection(ctx, c.name); err != nil {
		return fmt.Errorf("dropping %s: %w", c.name, err)
	}
	return nil
}

// Info reports the point count and status of the collection.
func (c *Collection) Info(ctx context.Context) (*CollectionInfo, error) {
	ctx, cancel, err := c.call(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()

	info, err := c.client.GetCollectionInfo(ctx, c.name)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", c.name, err)
	}
	return toInfo(c.name, info), nil
}

func toInfo(name string, info *qdrant.CollectionInfo) *CollectionInfo {
	out := &CollectionInfo{Name: name, Status: statusName(info.GetStatus())}
	if info.PointsCount != nil {
		out.PointsCount = *info.PointsCount
	}
	return out
}

func statusName(s qdrant.CollectionStatus) string {
	switch s {
	case qdrant.CollectionStatus_Green:
		return "green"
	case qdrant.CollectionStatus_Yellow:
		return "yellow"
	case qdrant.CollectionStatus_Red:
		return "red"
	default:
		return "unknown"
	}
}
