// Package execute dispatches a parameterized step, enriches and validates
// the results, and orders them.
package execute

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/reelquery/reelquery/internal/constraint"
	"github.com/reelquery/reelquery/internal/endpoint"
	"github.com/reelquery/reelquery/internal/entity"
	"github.com/reelquery/reelquery/internal/inject"
	apperrors "github.com/reelquery/reelquery/internal/pkg/errors"
	"github.com/reelquery/reelquery/internal/pkg/logger"
	"github.com/reelquery/reelquery/internal/provenance"
	"github.com/reelquery/reelquery/internal/tmdb"
)

// API is the discovery API as seen by the engine.
type API interface {
	List(ctx context.Context, path string, params map[string]string) (*tmdb.Page, error)
	Detail(ctx context.Context, media entity.Media, id int) (*tmdb.Item, error)
}

// Config bounds the work done per step.
type Config struct {
	MaxPages          int
	EnrichSample      int
	EnrichConcurrency int
}

// DefaultConfig returns the stock limits.
func DefaultConfig() Config {
	return Config{MaxPages: 3, EnrichSample: 40, EnrichConcurrency: 8}
}

// Input is one execution request.
type Input struct {
	Step  *inject.Step
	Tree  *constraint.Tree
	Media entity.MediaSet
	// Need is the number of valid items after which paging and enrichment
	// stop.
	Need  int
	Trail *provenance.Log
}

// Outcome is the result of one step.
type Outcome struct {
	Entries  []Entry        `json:"entries"`
	Request  inject.Request `json:"-"`
	Fetched  int            `json:"fetched"`
	Pages    int            `json:"pages"`
	Rejected int            `json:"rejected"`
	Enriched int            `json:"enriched"`
	Bypassed bool           `json:"bypassed"`

	// Err is the API failure that ended the step, reported as zero viable
	// results rather than returned.
	Err error `json:"-"`
}

// Engine executes steps.
type Engine struct {
	api     API
	catalog *endpoint.Catalog
	cfg     Config
	log     *logger.Logger
}

// NewEngine creates an engine.
func NewEngine(api API, catalog *endpoint.Catalog, cfg Config, log *logger.Logger) *Engine {
	def := DefaultConfig()
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = def.MaxPages
	}
	if cfg.EnrichSample <= 0 {
		cfg.EnrichSample = def.EnrichSample
	}
	if cfg.EnrichConcurrency <= 0 {
		cfg.EnrichConcurrency = def.EnrichConcurrency
	}
	if catalog == nil {
		catalog = endpoint.DefaultCatalog()
	}
	if log == nil {
		log = logger.Discard()
	}
	return &Engine{api: api, catalog: catalog, cfg: cfg, log: log}
}

// Execute runs the step. API failures end the step with zero entries and
// the failure in Outcome.Err; only cancellation of ctx is returned as an
// error.
func (e *Engine) Execute(ctx context.Context, in Input) (*Outcome, error) {
	trail := in.Trail
	if trail == nil {
		trail = provenance.NewLog(nil)
	}
	need := in.Need
	if need <= 0 {
		need = 20
	}

	spec, ok := e.catalog.Lookup(in.Step.Endpoint)
	if !ok {
		err := apperrors.ValidationError("endpoint not in catalog").WithDetail("endpoint", in.Step.Endpoint)
		return e.failed(trail, &Outcome{}, err), nil
	}
	req, err := inject.Translate(in.Step, spec)
	if err != nil {
		return e.failed(trail, &Outcome{}, err), nil
	}
	out := &Outcome{Request: req}

	bypass := ShouldBypass(in.Tree, req.Path)
	out.Bypassed = bypass
	if bypass {
		trail.Append(provenance.Entry{
			Stage:  provenance.StageExecute,
			Action: provenance.ActionBypassed,
			Key:    constraint.KeyPeople,
			Value:  req.Path,
			Reason: "single person constraint on its credits endpoint",
		})
	}
	check := newValidator(in.Tree, req)

	media := in.Media
	if !media.Movie && !media.TV {
		media = entity.AllMedia()
	}

	paged := spec.Kind != endpoint.KindCredits
	enrichBudget := e.cfg.EnrichSample
	var kept []tmdb.Item
	seen := make(map[string]bool)

	for page := 1; page <= e.cfg.MaxPages; page++ {
		params := req.Params
		if paged {
			params = withPage(req.Params, page)
		}
		result, err := e.api.List(ctx, req.Path, params)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return e.failed(trail, out, err), nil
		}
		out.Pages++
		out.Fetched += len(result.Results)

		var candidates []tmdb.Item
		for _, it := range result.Results {
			m := it.Media(spec.Media)
			k := string(m) + ":" + strconv.Itoa(it.ID)
			if seen[k] {
				continue
			}
			seen[k] = true
			if it.MediaType == "" {
				it.MediaType = string(m)
			}
			if !media.Allows(m) || m != entity.MediaMovie && m != entity.MediaTV {
				out.Rejected++
				continue
			}
			if !bypass && !check.accept(it) {
				out.Rejected++
				continue
			}
			candidates = append(candidates, it)
		}

		if len(in.Step.Revenue) > 0 {
			sample := candidates
			if len(sample) > enrichBudget {
				sample = sample[:enrichBudget]
			}
			enrichBudget -= len(sample)
			matched, enriched, err := e.enrich(ctx, sample, in.Step.Revenue, need-len(kept))
			if err != nil {
				return nil, err
			}
			out.Enriched += enriched
			out.Rejected += len(candidates) - len(matched)
			candidates = matched
		}
		kept = append(kept, candidates...)

		if !paged || len(kept) >= need || page >= result.TotalPages {
			break
		}
		if len(in.Step.Revenue) > 0 && enrichBudget <= 0 {
			break
		}
	}

	SortItems(kept, in.Step.Parameters[inject.ParamSortBy])
	out.Entries = make([]Entry, len(kept))
	for i, it := range kept {
		out.Entries[i] = toEntry(it)
	}

	if out.Rejected > 0 {
		trail.Append(provenance.Entry{
			Stage:  provenance.StageExecute,
			Action: provenance.ActionFiltered,
			Value:  strconv.Itoa(out.Rejected),
			Reason: fmt.Sprintf("%d of %d fetched items failed validation", out.Rejected, out.Fetched),
		})
	}

	e.log.Debug("Executed step",
		"endpoint", req.Path,
		"pages", out.Pages,
		"fetched", out.Fetched,
		"kept", len(out.Entries),
		"enriched", out.Enriched,
		"bypassed", bypass,
	)
	return out, nil
}

func (e *Engine) failed(trail *provenance.Log, out *Outcome, err error) *Outcome {
	out.Err = err
	out.Entries = nil
	trail.Append(provenance.Entry{
		Stage:  provenance.StageExecute,
		Action: provenance.ActionFailed,
		Value:  apperrors.CodeOf(err),
		Reason: err.Error(),
	})
	e.log.Warn("Step failed, treating as zero results", "error", err)
	return out
}

func withPage(params map[string]string, page int) map[string]string {
	out := make(map[string]string, len(params)+1)
	for k, v := range params {
		out[k] = v
	}
	out[inject.ParamPage] = strconv.Itoa(page)
	return out
}

// enrich fetches details for items, at most EnrichConcurrency at a time,
// and keeps the first want items, in input order, whose revenue passes
// every filter. Once want matches are known, fetches for items after the
// last of them are cancelled or skipped; earlier items are always fetched
// so the result does not depend on completion order. Items whose detail
// call fails are dropped.
func (e *Engine) enrich(ctx context.Context, items []tmdb.Item, filters []inject.RevenueFilter, want int) ([]tmdb.Item, int, error) {
	if len(items) == 0 {
		return nil, 0, nil
	}
	results := make([]*tmdb.Item, len(items))
	gate := newEnrichGate(len(items), want)
	var fetched atomic.Int32

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.EnrichConcurrency)
	for i, it := range items {
		g.Go(func() error {
			fctx, ok := gate.start(gctx, i)
			if !ok {
				return nil
			}
			hit := false
			defer func() { gate.finish(i, hit) }()

			detail, err := e.api.Detail(fctx, it.Media(""), it.ID)
			if err != nil {
				if fctx.Err() == nil {
					e.log.Debug("Enrichment failed", "id", it.ID, "error", err)
				}
				return nil
			}
			fetched.Add(1)
			merged := mergeDetail(it, *detail)
			for _, f := range filters {
				if !f.Matches(merged.Revenue) {
					return nil
				}
			}
			results[i] = &merged
			hit = true
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}

	var out []tmdb.Item
	for _, r := range results {
		if r == nil {
			continue
		}
		if want > 0 && len(out) == want {
			break
		}
		out = append(out, *r)
	}
	return out, int(fetched.Load()), nil
}

// enrichGate tracks matched indices during enrichment. cutoff is the index
// of the want-th lowest match; items past it can no longer make the result.
type enrichGate struct {
	mu       sync.Mutex
	want     int
	hits     []int
	cutoff   int
	inflight map[int]context.CancelFunc
}

func newEnrichGate(n, want int) *enrichGate {
	return &enrichGate{want: want, cutoff: n, inflight: make(map[int]context.CancelFunc)}
}

func (g *enrichGate) start(ctx context.Context, i int) (context.Context, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if i > g.cutoff || ctx.Err() != nil {
		return nil, false
	}
	fctx, cancel := context.WithCancel(ctx)
	g.inflight[i] = cancel
	return fctx, true
}

func (g *enrichGate) finish(i int, hit bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if cancel, ok := g.inflight[i]; ok {
		cancel()
		delete(g.inflight, i)
	}
	if !hit || g.want <= 0 {
		return
	}
	pos, _ := slices.BinarySearch(g.hits, i)
	g.hits = slices.Insert(g.hits, pos, i)
	if len(g.hits) < g.want {
		return
	}
	g.cutoff = g.hits[g.want-1]
	for j, cancel := range g.inflight {
		if j > g.cutoff {
			cancel()
			delete(g.inflight, j)
		}
	}
}

// mergeDetail overlays detail fields onto a listing item, keeping the
// listing's credit fields.
func mergeDetail(listing, detail tmdb.Item) tmdb.Item {
	out := detail
	out.Character = listing.Character
	out.Job = listing.Job
	out.Department = listing.Department
	if out.MediaType == "" {
		out.MediaType = listing.MediaType
	}
	if len(out.GenreIDs) == 0 {
		out.GenreIDs = listing.GenreIDs
	}
	if out.VoteCount == 0 {
		out.VoteAverage, out.VoteCount = listing.VoteAverage, listing.VoteCount
	}
	if out.Popularity == 0 {
		out.Popularity = listing.Popularity
	}
	return out
}
