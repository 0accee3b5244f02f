// Package lookup resolves entity names to external ids.
//
// Resolution order is override table, cache, then the search API. The
// resolver holds no package-level state; every dependency is injected.
package lookup

import (
	"context"
	"fmt"
	"sort"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/reelquery/reelquery/internal/entity"
	apperrors "github.com/reelquery/reelquery/internal/pkg/errors"
	"github.com/reelquery/reelquery/internal/pkg/hash"
	"github.com/reelquery/reelquery/internal/pkg/logger"
	"github.com/reelquery/reelquery/internal/tmdb"
)

// Source says where an id came from.
type Source string

// Resolution sources.
const (
	SourceNLU      Source = "nlu"
	SourceOverride Source = "override"
	SourceCache    Source = "cache"
	SourceSearch   Source = "search"
)

// Searcher finds ids by name through the discovery API.
type Searcher interface {
	Search(ctx context.Context, kind, name string) ([]tmdb.Named, error)
}

// Resolution is the outcome for one entity.
type Resolution struct {
	Index  int         `json:"index"`
	Kind   entity.Kind `json:"kind"`
	Name   string      `json:"name"`
	ID     int         `json:"id,omitempty"`
	Source Source      `json:"source,omitempty"`
	Err    error       `json:"-"`
}

// Resolver resolves names to ids.
type Resolver struct {
	overrides   atomic.Pointer[OverrideTable]
	cache       Cache
	search      Searcher
	concurrency int
	log         *logger.Logger
}

// Config configures a resolver.
type Config struct {
	Overrides   *OverrideTable
	Cache       Cache
	Search      Searcher
	Concurrency int
}

// NewResolver creates a resolver. A nil cache disables caching; a nil
// searcher limits resolution to the override table.
func NewResolver(cfg Config, log *logger.Logger) *Resolver {
	if cfg.Overrides == nil {
		cfg.Overrides = DefaultOverrides()
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 8
	}
	if log == nil {
		log = logger.Discard()
	}
	r := &Resolver{
		cache:       cfg.Cache,
		search:      cfg.Search,
		concurrency: cfg.Concurrency,
		log:         log,
	}
	r.overrides.Store(cfg.Overrides)
	return r
}

// Overrides returns the active override table.
func (r *Resolver) Overrides() *OverrideTable {
	return r.overrides.Load()
}

// SetOverrides swaps the override table. Lookups already in flight finish
// against the old table. A nil table is ignored.
func (r *Resolver) SetOverrides(t *OverrideTable) {
	if t == nil {
		return
	}
	r.overrides.Store(t)
}

// searchKind maps entity kinds to search paths. Genres and networks have
// no search endpoint and resolve through the override table only.
func searchKind(k entity.Kind) (string, bool) {
	switch k {
	case entity.KindPerson:
		return "person", true
	case entity.KindCompany:
		return "company", true
	case entity.KindKeyword:
		return "keyword", true
	default:
		return "", false
	}
}

// Resolve returns the id of one name.
func (r *Resolver) Resolve(ctx context.Context, kind entity.Kind, name string) (int, Source, error) {
	if id, ok := r.overrides.Load().Lookup(kind, name); ok {
		return id, SourceOverride, nil
	}

	normalized := Normalize(name)
	key := hash.LookupKey(string(kind), normalized)
	if r.cache != nil {
		id, ok, err := r.cache.Get(ctx, key)
		if err != nil {
			r.log.Warn("Lookup cache read failed", "kind", kind, "error", err)
		} else if ok {
			return id, SourceCache, nil
		}
	}

	path, ok := searchKind(kind)
	if !ok || r.search == nil {
		return 0, "", apperrors.NotFoundError(fmt.Sprintf("%s %q", kind, name))
	}

	hits, err := r.search.Search(ctx, path, name)
	if err != nil {
		return 0, "", apperrors.LookupError(fmt.Sprintf("searching %s %q", kind, name), err)
	}
	id := pick(hits, normalized)
	if id == 0 {
		return 0, "", apperrors.NotFoundError(fmt.Sprintf("%s %q", kind, name))
	}

	if r.cache != nil {
		if err := r.cache.Set(ctx, key, id); err != nil {
			r.log.Warn("Lookup cache write failed", "kind", kind, "error", err)
		}
	}
	return id, SourceSearch, nil
}

// pick prefers an exact name match, then the API's first (most popular)
// hit.
func pick(hits []tmdb.Named, normalized string) int {
	for _, h := range hits {
		if Normalize(h.Name) == normalized {
			return h.ID
		}
	}
	if len(hits) > 0 {
		return hits[0].ID
	}
	return 0
}

// ResolveAll resolves every identity value without an id. Distinct names
// are looked up once, at most Concurrency at a time. The input slice is
// not modified: the result is a copy with ids written in, and values that
// could not be resolved replaced by nil so they never become constraints.
// Lookup failures are reported per entity; only cancellation fails the
// batch.
func (r *Resolver) ResolveAll(ctx context.Context, values []entity.Value) ([]entity.Value, []Resolution, error) {
	out := make([]entity.Value, len(values))
	copy(out, values)

	type job struct {
		kind    entity.Kind
		name    string
		indices []int
	}
	var jobs []*job
	byKey := make(map[string]*job)
	var resolutions []Resolution

	for i, v := range values {
		if v == nil {
			continue
		}
		name := entity.Name(v)
		if name == "" {
			continue
		}
		if id := entity.ResolvedID(v); id > 0 {
			resolutions = append(resolutions, Resolution{Index: i, Kind: v.Kind(), Name: name, ID: id, Source: SourceNLU})
			continue
		}
		key := string(v.Kind()) + "\x00" + Normalize(name)
		j, ok := byKey[key]
		if !ok {
			j = &job{kind: v.Kind(), name: name}
			byKey[key] = j
			jobs = append(jobs, j)
		}
		j.indices = append(j.indices, i)
	}

	type result struct {
		id     int
		source Source
		err    error
	}
	results := make([]result, len(jobs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for n, j := range jobs {
		g.Go(func() error {
			id, source, err := r.Resolve(gctx, j.kind, j.name)
			if err != nil && gctx.Err() != nil {
				return gctx.Err()
			}
			results[n] = result{id: id, source: source, err: err}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	for n, j := range jobs {
		res := results[n]
		for _, i := range j.indices {
			if res.err != nil {
				out[i] = nil
				r.log.Info("Dropping unresolved entity", "kind", j.kind, "name", j.name, "error", res.err)
			} else {
				out[i] = entity.WithID(values[i], res.id)
			}
			resolutions = append(resolutions, Resolution{
				Index: i, Kind: j.kind, Name: entity.Name(values[i]), ID: res.id, Source: res.source, Err: res.err,
			})
		}
	}

	sort.SliceStable(resolutions, func(a, b int) bool { return resolutions[a].Index < resolutions[b].Index })
	return out, resolutions, nil
}
