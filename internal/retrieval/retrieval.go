// Package retrieval ranks catalog endpoints by semantic similarity to the
// query text. The planner consumes the ranking; it never computes
// embeddings itself.
package retrieval

import (
	"context"
	"sort"
	"strings"

	"github.com/reelquery/reelquery/internal/endpoint"
	"github.com/reelquery/reelquery/internal/pkg/logger"
)

// Retriever returns endpoint paths scored by similarity to query, best
// first. Scores are in [0, 1].
type Retriever interface {
	Retrieve(ctx context.Context, query string) ([]endpoint.Match, error)
}

// CatalogRetriever scores endpoints by keyword overlap between the query
// and each catalog description. It needs no external service.
type CatalogRetriever struct {
	catalog *endpoint.Catalog
	terms   map[string]map[string]bool
}

// NewCatalogRetriever indexes the catalog descriptions.
func NewCatalogRetriever(catalog *endpoint.Catalog) *CatalogRetriever {
	if catalog == nil {
		catalog = endpoint.DefaultCatalog()
	}
	r := &CatalogRetriever{catalog: catalog, terms: make(map[string]map[string]bool)}
	for _, s := range catalog.All() {
		set := make(map[string]bool)
		for _, w := range s.Keywords() {
			if !stopwords[w] {
				set[stem(w)] = true
			}
		}
		r.terms[s.Path] = set
	}
	return r
}

// Retrieve scores every endpoint by the share of query terms found in its
// description. Ties are broken by path.
func (r *CatalogRetriever) Retrieve(_ context.Context, query string) ([]endpoint.Match, error) {
	terms := Terms(query)
	out := make([]endpoint.Match, 0, len(r.terms))
	for _, s := range r.catalog.All() {
		score := 0.0
		if len(terms) > 0 {
			hits := 0
			for _, t := range terms {
				if r.terms[s.Path][t] {
					hits++
				}
			}
			score = float64(hits) / float64(len(terms))
		}
		out = append(out, endpoint.Match{Path: s.Path, Score: score})
	}
	sortMatches(out)
	return out, nil
}

// Terms returns the distinct stemmed content words of text in order of
// first appearance.
func Terms(text string) []string {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	})
	seen := make(map[string]bool, len(words))
	var out []string
	for _, w := range words {
		if stopwords[w] || len(w) < 2 {
			continue
		}
		w = stem(w)
		if !seen[w] {
			seen[w] = true
			out = append(out, w)
		}
	}
	return out
}

func stem(w string) string {
	switch {
	case strings.HasSuffix(w, "ies") && len(w) > 4:
		return w[:len(w)-3] + "y"
	case strings.HasSuffix(w, "ss"):
		return w
	case strings.HasSuffix(w, "s") && len(w) > 3:
		return w[:len(w)-1]
	default:
		return w
	}
}

var stopwords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "as": true, "at": true, "by": true,
	"did": true, "do": true, "does": true, "for": true, "from": true, "has": true, "have": true,
	"in": true, "is": true, "it": true, "me": true, "of": true, "on": true, "one": true,
	"or": true, "show": true, "some": true, "that": true, "the": true, "their": true, "they": true,
	"this": true, "to": true, "was": true, "what": true, "which": true, "who": true, "with": true,
	"id": true,
}

func sortMatches(m []endpoint.Match) {
	sort.SliceStable(m, func(i, j int) bool {
		if m[i].Score != m[j].Score {
			return m[i].Score > m[j].Score
		}
		return m[i].Path < m[j].Path
	})
}

// Fallback tries Primary and degrades to Secondary when it fails. A
// cancelled context is never masked.
type Fallback struct {
	Primary   Retriever
	Secondary Retriever
	Log       *logger.Logger
}

// Retrieve implements Retriever.
func (f *Fallback) Retrieve(ctx context.Context, query string) ([]endpoint.Match, error) {
	matches, err := f.Primary.Retrieve(ctx, query)
	if err == nil {
		return matches, nil
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if f.Log != nil {
		f.Log.Warn("Semantic retrieval failed, using keyword retrieval", "error", err)
	}
	return f.Secondary.Retrieve(ctx, query)
}
