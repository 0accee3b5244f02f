package qdrant

import (
	"context"
	"fmt"
	"time"

	"github.com/qdrant/go-client/qdrant"
)

// Search returns the endpoints nearest to req.Vector, best first.
func (c *Collection) Search(ctx context.Context, req SearchRequest) ([]SearchResult, error) {
	if uint64(len(req.Vector)) != c.size {
		return nil, fmt.Errorf("query vector has %d dimensions, collection wants %d", len(req.Vector), c.size)
	}
	limit := req.Limit
	if limit == 0 {
		limit = 10
	}

	ctx, cancel, err := c.call(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()

	points, err := c.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: c.name,
		Query:          qdrant.NewQueryDense(req.Vector),
		Limit:          qdrant.PtrOf(limit),
		WithPayload:    qdrant.NewWithPayload(true),
		Filter:         buildSearchFilter(req.Filter),
		ScoreThreshold: req.ScoreThreshold,
	})
	if err != nil {
		return nil, fmt.Errorf("searching %s: %w", c.name, err)
	}

	results := make([]SearchResult, len(points))
	for i, p := range points {
		results[i] = SearchResult{
			ID:      pointID(p.GetId()),
			Score:   p.GetScore(),
			Payload: extractPayload(p.GetPayload()),
		}
	}
	return results, nil
}

func pointID(id *qdrant.PointId) string {
	if id == nil {
		return ""
	}
	switch v := id.PointIdOptions.(type) {
	case *qdrant.PointId_Uuid:
		return v.Uuid
	case *qdrant.PointId_Num:
		return fmt.Sprintf("%d", v.Num)
	default:
		return ""
	}
}

// buildSearchFilter builds a Qdrant filter from SearchFilter.
func buildSearchFilter(f *SearchFilter) *qdrant.Filter {
	if f == nil {
		return nil
	}

	var must []*qdrant.Condition
	if len(f.Kinds) > 0 {
		must = append(must, keywordsCondition("kind", f.Kinds...))
	}
	if f.Media != "" {
		must = append(must, keywordsCondition("media", f.Media, MixedMedia))
	}

	if len(must) == 0 {
		return nil
	}
	return &qdrant.Filter{Must: must}
}

func keywordsCondition(key string, values ...string) *qdrant.Condition {
	return &qdrant.Condition{
		ConditionOneOf: &qdrant.Condition_Field{
			Field: &qdrant.FieldCondition{
				Key: key,
				Match: &qdrant.Match{
					MatchValue: &qdrant.Match_Keywords{
						Keywords: &qdrant.RepeatedStrings{Strings: values},
					},
				},
			},
		},
	}
}

// extractPayload extracts EndpointPayload from a Qdrant payload map.
func extractPayload(payload map[string]*qdrant.Value) EndpointPayload {
	result := EndpointPayload{
		Path:        getStringValue(payload, "path"),
		Kind:        getStringValue(payload, "kind"),
		Media:       getStringValue(payload, "media"),
		Description: getStringValue(payload, "description"),
		Params:      getStringSliceValue(payload, "params"),
	}
	if result.Media == MixedMedia {
		result.Media = ""
	}
	if v := getStringValue(payload, "indexed_at"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			result.IndexedAt = t
		}
	}
	return result
}

func getStringValue(payload map[string]*qdrant.Value, key string) string {
	if v, ok := payload[key]; ok {
		if sv, ok := v.Kind.(*qdrant.Value_StringValue); ok {
			return sv.StringValue
		}
	}
	return ""
}

func getStringSliceValue(payload map[string]*qdrant.Value, key string) []string {
	if v, ok := payload[key]; ok {
		if lv, ok := v.Kind.(*qdrant.Value_ListValue); ok {
			result := make([]string, 0, len(lv.ListValue.Values))
			for _, item := range lv.ListValue.Values {
				if sv, ok := item.Kind.(*qdrant.Value_StringValue); ok {
					result = append(result, sv.StringValue)
				}
			}
			return result
		}
	}
	return nil
}
