package planner

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/reelquery/reelquery/internal/bus"
	"github.com/reelquery/reelquery/internal/constraint"
	"github.com/reelquery/reelquery/internal/endpoint"
	"github.com/reelquery/reelquery/internal/entity"
	"github.com/reelquery/reelquery/internal/execute"
	"github.com/reelquery/reelquery/internal/lookup"
	"github.com/reelquery/reelquery/internal/observability"
	apperrors "github.com/reelquery/reelquery/internal/pkg/errors"
	"github.com/reelquery/reelquery/internal/provenance"
	"github.com/reelquery/reelquery/internal/query"
	"github.com/reelquery/reelquery/internal/relax"
	"github.com/reelquery/reelquery/internal/tmdb"
)

var fixedNow = func() time.Time { return time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC) }

type apiCall struct {
	path   string
	params map[string]string
}

// fakeAPI answers listings through respond and details from a map.
type fakeAPI struct {
	mu      sync.Mutex
	respond func(path string, params map[string]string) []tmdb.Item
	details map[int]tmdb.Item
	calls   []apiCall
}

func (f *fakeAPI) List(ctx context.Context, path string, params map[string]string) (*tmdb.Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	f.calls = append(f.calls, apiCall{path: path, params: params})
	f.mu.Unlock()

	var items []tmdb.Item
	if f.respond != nil {
		items = f.respond(path, params)
	}
	return &tmdb.Page{Page: 1, Results: items, TotalPages: 1, TotalResults: len(items)}, nil
}

func (f *fakeAPI) Detail(ctx context.Context, media entity.Media, id int) (*tmdb.Item, error) {
	it, ok := f.details[id]
	if !ok {
		return nil, apperrors.NotFoundError("item")
	}
	it.HasDetail = true
	return &it, nil
}

func (f *fakeAPI) paths() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	for i, c := range f.calls {
		out[i] = c.path
	}
	return out
}

type recordingBus struct {
	mu     sync.Mutex
	events map[string][]bus.Event
}

func (b *recordingBus) Publish(_ context.Context, topic string, event bus.Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.events == nil {
		b.events = make(map[string][]bus.Event)
	}
	b.events[topic] = append(b.events[topic], event)
	return nil
}

func (b *recordingBus) Subscribe(context.Context, string, bus.Handler) error { return nil }
func (b *recordingBus) Close() error                                        { return nil }

func (b *recordingBus) on(topic string) []bus.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]bus.Event(nil), b.events[topic]...)
}

type recordingMetrics struct {
	mu          sync.Mutex
	answers     []string
	errors      int
	stages      map[string]int
	relaxations []string
	endpoints   []string
}

func (m *recordingMetrics) RecordAnswer(finalState string, _ int, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.answers = append(m.answers, finalState)
}

func (m *recordingMetrics) RecordAnswerError(error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors++
}

func (m *recordingMetrics) RecordStage(stage string, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stages == nil {
		m.stages = make(map[string]int)
	}
	m.stages[stage]++
}

func (m *recordingMetrics) RecordRelaxation(to string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.relaxations = append(m.relaxations, to)
}

func (m *recordingMetrics) RecordEndpoint(path string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.endpoints = append(m.endpoints, path)
}

func newPlanner(api *fakeAPI, deps Deps) *Planner {
	catalog := endpoint.DefaultCatalog()
	deps.Catalog = catalog
	deps.Engine = execute.NewEngine(api, catalog, execute.DefaultConfig(), nil)
	deps.Now = fixedNow
	return New(deps, DefaultConfig(), nil)
}

func movie(id int, title, date string, popularity float64, genres ...int) tmdb.Item {
	return tmdb.Item{ID: id, Title: title, ReleaseDate: date, Popularity: popularity, GenreIDs: genres, VoteCount: 500, VoteAverage: 7}
}

func entryIDs(entries []execute.Entry) []int {
	out := make([]int, len(entries))
	for i, e := range entries {
		out[i] = e.ID
	}
	return out
}

func equalInts(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func trailHas(trail []provenance.Entry, stage provenance.Stage, action provenance.Action, key string) bool {
	for _, e := range trail {
		if e.Stage == stage && e.Action == action && (key == "" || e.Key == key) {
			return true
		}
	}
	return false
}

func TestAnswer_TwoPeopleUseDiscovery(t *testing.T) {
	api := &fakeAPI{respond: func(path string, _ map[string]string) []tmdb.Item {
		if path != "/discover/movie" {
			return nil
		}
		return []tmdb.Item{
			movie(1, "The Departed", "2006-10-05", 60),
			movie(2, "Shutter Island", "2010-02-13", 80),
			movie(3, "The Wolf of Wall Street", "2013-12-25", 90),
		}
	}}
	p := newPlanner(api, Deps{})

	env, err := p.Answer(context.Background(), Request{
		Query:        "Leonardo DiCaprio movies directed by Martin Scorsese",
		QuestionType: query.QuestionList,
		Entities: []entity.ExtractedEntity{
			{Type: "person", Value: "Leonardo DiCaprio", ID: 6193, Confidence: 0.9},
			{Type: "person", Value: "Martin Scorsese", Role: "director", ID: 1032, Confidence: 0.9},
		},
	})
	if err != nil {
		t.Fatalf("Answer: %v", err)
	}

	if env.Endpoint != "/discover/movie" {
		t.Errorf("Endpoint = %q, want /discover/movie", env.Endpoint)
	}
	if env.FinalState != relax.Strict {
		t.Errorf("FinalState = %s, want STRICT", env.FinalState)
	}
	if env.Metadata.Bypassed {
		t.Error("two people must not trigger the credits bypass")
	}
	if len(env.Relaxations) != 0 {
		t.Errorf("Relaxations = %d, want 0", len(env.Relaxations))
	}
	if !strings.Contains(env.Parameters["with_people"], "6193") {
		t.Errorf("with_people = %q, want 6193", env.Parameters["with_people"])
	}
	if !strings.Contains(env.Parameters["with_crew"], "1032") {
		t.Errorf("with_crew = %q, want 1032", env.Parameters["with_crew"])
	}
	if len(env.Entries) != 3 {
		t.Errorf("Entries = %d, want 3", len(env.Entries))
	}
	if env.ResponseFormat != "list" {
		t.Errorf("ResponseFormat = %q, want list", env.ResponseFormat)
	}
	if !trailHas(env.ProvenanceTrail, provenance.StageScore, provenance.ActionSelected, "endpoint") {
		t.Error("trail misses the endpoint selection")
	}
}

func TestPlan_TwoPeopleTree(t *testing.T) {
	p := newPlanner(&fakeAPI{}, Deps{})

	plan, err := p.Plan(context.Background(), Request{
		Query:        "Leonardo DiCaprio movies directed by Martin Scorsese",
		QuestionType: query.QuestionList,
		Entities: []entity.ExtractedEntity{
			{Type: "person", Value: "Leonardo DiCaprio", ID: 6193},
			{Type: "person", Value: "Martin Scorsese", Role: "director", ID: 1032},
		},
	})
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}

	if !strings.HasPrefix(plan.Tree, "AND(") {
		t.Errorf("Tree = %q, want an AND root", plan.Tree)
	}
	if len(plan.Constraints) != 2 {
		t.Fatalf("Constraints = %d, want 2", len(plan.Constraints))
	}
	for _, c := range plan.Constraints {
		if c.Tier != constraint.Primary.String() {
			t.Errorf("constraint %s tier = %s, want primary", c.Key, c.Tier)
		}
	}
	if plan.Call == nil || plan.Call.Path != "/discover/movie" {
		t.Fatalf("Call = %+v, want /discover/movie", plan.Call)
	}
	if plan.Bypass {
		t.Error("plan must not bypass validation for two people")
	}
}

func TestAnswer_RevenueUpperBound(t *testing.T) {
	api := &fakeAPI{
		respond: func(path string, _ map[string]string) []tmdb.Item {
			if path != "/discover/movie" {
				return nil
			}
			return []tmdb.Item{
				movie(1, "A", "2001-01-01", 10, 27),
				movie(2, "B", "2002-01-01", 40, 27),
				movie(3, "C", "2003-01-01", 30, 27),
				movie(4, "D", "2004-01-01", 20, 27),
				movie(5, "E", "2005-01-01", 50, 27),
			}
		},
		details: map[int]tmdb.Item{
			1: {ID: 1, Title: "A", Revenue: 10_000_000, Popularity: 10, ReleaseDate: "2001-01-01"},
			2: {ID: 2, Title: "B", Revenue: 50_000_000, Popularity: 40, ReleaseDate: "2002-01-01"},
			3: {ID: 3, Title: "C", Revenue: 5_000_000, Popularity: 30, ReleaseDate: "2003-01-01"},
			4: {ID: 4, Title: "D", Popularity: 20, ReleaseDate: "2004-01-01"},
			5: {ID: 5, Title: "E", Revenue: 20_000_000, Popularity: 50, ReleaseDate: "2005-01-01"},
		},
	}
	p := newPlanner(api, Deps{})

	env, err := p.Answer(context.Background(), Request{
		Query:        "horror movies that made less than 25 million",
		QuestionType: query.QuestionList,
		Entities: []entity.ExtractedEntity{
			{Type: "revenue", Value: "25000000", Operator: "less_than"},
			{Type: "genre", Value: "horror", ID: 27},
		},
	})
	if err != nil {
		t.Fatalf("Answer: %v", err)
	}

	if got := env.Parameters["sort_by"]; got != query.SortPopularityDesc {
		t.Errorf("sort_by = %q, want popularity.desc", got)
	}
	if len(env.Metadata.Revenue) != 1 {
		t.Fatalf("Revenue = %+v, want one filter", env.Metadata.Revenue)
	}
	if f := env.Metadata.Revenue[0]; f.Threshold != 25_000_000 || f.Op != entity.LessThan {
		t.Errorf("Revenue[0] = %+v, want {25000000 less_than}", f)
	}
	// 2 earned too much, 4 has no known revenue
	if got, want := entryIDs(env.Entries), []int{5, 3, 1}; !equalInts(got, want) {
		t.Errorf("entries = %v, want %v", got, want)
	}
	if env.FinalState != relax.Strict {
		t.Errorf("FinalState = %s, want STRICT", env.FinalState)
	}
}

func TestAnswer_TimelineOnCredits(t *testing.T) {
	api := &fakeAPI{respond: func(path string, _ map[string]string) []tmdb.Item {
		if !strings.HasPrefix(path, "/person/488/") {
			return nil
		}
		return []tmdb.Item{
			{ID: 3, Title: "Jurassic Park", ReleaseDate: "1993-06-11", Job: "Director"},
			{ID: 1, Title: "Duel", ReleaseDate: "1971-11-13", Job: "Director"},
			{ID: 2, Title: "Jaws", ReleaseDate: "1975-06-20", Job: "Director"},
		}
	}}
	p := newPlanner(api, Deps{})

	env, err := p.Answer(context.Background(), Request{
		Query:        "Steven Spielberg movies in chronological order",
		QuestionType: query.QuestionTimeline,
		Entities: []entity.ExtractedEntity{
			{Type: "person", Value: "Steven Spielberg", ID: 488},
		},
	})
	if err != nil {
		t.Fatalf("Answer: %v", err)
	}

	if !endpoint.IsCredits(env.Endpoint) {
		t.Fatalf("Endpoint = %q, want a credits endpoint", env.Endpoint)
	}
	if !env.Metadata.Bypassed {
		t.Error("single person on credits must bypass validation")
	}
	if got := env.Parameters["sort_by"]; got != query.SortReleaseAsc {
		t.Errorf("sort_by = %q, want release_date.asc", got)
	}
	if got, want := entryIDs(env.Entries), []int{1, 2, 3}; !equalInts(got, want) {
		t.Errorf("entries = %v, want chronological %v", got, want)
	}
	if paths := api.paths(); len(paths) == 0 || !strings.HasPrefix(paths[0], "/person/488/") {
		t.Errorf("called %v, want the person's credits", paths)
	}
	if !trailHas(env.ProvenanceTrail, provenance.StageExecute, provenance.ActionBypassed, "") {
		t.Error("trail misses the bypass")
	}
}

func TestAnswer_ShowsAreTVOnly(t *testing.T) {
	api := &fakeAPI{respond: func(path string, _ map[string]string) []tmdb.Item {
		switch path {
		case "/discover/tv":
			return []tmdb.Item{
				{ID: 1, Name: "The Sopranos", FirstAirDate: "1999-01-10", GenreIDs: []int{80}, VoteAverage: 8.6, VoteCount: 2000},
				{ID: 2, Name: "The Wire", FirstAirDate: "2002-06-02", GenreIDs: []int{80}, VoteAverage: 8.9, VoteCount: 2000},
				{ID: 3, Name: "Boardwalk Empire", FirstAirDate: "2010-09-19", GenreIDs: []int{80}, VoteAverage: 8.0, VoteCount: 1500},
			}
		case "/discover/movie":
			return []tmdb.Item{movie(9, "Heat", "1995-12-15", 50, 80)}
		}
		return nil
	}}
	p := newPlanner(api, Deps{})

	env, err := p.Answer(context.Background(), Request{
		Query:        "best crime shows on HBO",
		QuestionType: query.QuestionList,
		Entities: []entity.ExtractedEntity{
			{Type: "genre", Value: "crime", ID: 80},
			{Type: "network", Value: "HBO", ID: 49},
		},
	})
	if err != nil {
		t.Fatalf("Answer: %v", err)
	}

	if env.Metadata.Media != "tv" {
		t.Errorf("Media = %q, want tv", env.Metadata.Media)
	}
	if env.Endpoint != "/discover/tv" {
		t.Errorf("Endpoint = %q, want /discover/tv", env.Endpoint)
	}
	for _, e := range env.Entries {
		if e.Media != entity.MediaTV {
			t.Errorf("entry %d media = %s, want tv", e.ID, e.Media)
		}
	}
	for _, path := range api.paths() {
		if strings.Contains(path, "movie") {
			t.Errorf("TV-only query called %s", path)
		}
	}
	if got, want := entryIDs(env.Entries), []int{2, 1, 3}; !equalInts(got, want) {
		t.Errorf("entries = %v, want best rated first %v", got, want)
	}
}

func strictEntities() []entity.ExtractedEntity {
	return []entity.ExtractedEntity{
		{Type: "genre", Value: "horror", ID: 27},
		{Type: "year", Value: "1987"},
		{Type: "keyword", Value: "found footage", ID: 163053},
		{Type: "runtime", Value: "90", Operator: "less_than"},
	}
}

func TestAnswer_RelaxesOneTierPerEvent(t *testing.T) {
	api := &fakeAPI{respond: func(path string, params map[string]string) []tmdb.Item {
		if path != "/discover/movie" {
			return nil
		}
		if params["with_keywords"] != "" || params["primary_release_year"] != "" {
			return nil
		}
		return []tmdb.Item{
			movie(1, "Evil Dead II", "1987-03-13", 30, 27),
			movie(2, "Hellraiser", "1987-09-11", 20, 27),
			movie(3, "Prince of Darkness", "1987-10-23", 10, 27),
		}
	}}
	events := &recordingBus{}
	metrics := &recordingMetrics{}
	p := newPlanner(api, Deps{Bus: events, Metrics: metrics})

	env, err := p.Answer(context.Background(), Request{
		Query:        "found footage horror movies from 1987 under 90 minutes",
		QuestionType: query.QuestionList,
		Entities:     strictEntities(),
	})
	if err != nil {
		t.Fatalf("Answer: %v", err)
	}

	if len(env.Relaxations) != 2 {
		t.Fatalf("Relaxations = %d, want 2: %+v", len(env.Relaxations), env.Relaxations)
	}
	first, second := env.Relaxations[0], env.Relaxations[1]
	if first.From != relax.Strict || first.To != relax.RelaxTertiary {
		t.Errorf("first event %s -> %s, want STRICT -> RELAX_TERTIARY", first.From, first.To)
	}
	if len(first.Removed) != 2 || first.Removed[0].Key != "with_keywords" || first.Removed[1].Key != "with_runtime" {
		t.Errorf("first event removed %+v, want keyword and runtime", first.Removed)
	}
	if second.To != relax.RelaxSecondary || len(second.Removed) != 1 || second.Removed[0].Key != "primary_release_year" {
		t.Errorf("second event = %+v, want the year removed", second)
	}
	if !first.Timestamp.Equal(fixedNow()) {
		t.Errorf("event timestamp = %v, want %v", first.Timestamp, fixedNow())
	}
	if env.FinalState != relax.RelaxSecondary {
		t.Errorf("FinalState = %s, want RELAX_SECONDARY", env.FinalState)
	}
	if env.Metadata.Attempts != 3 {
		t.Errorf("Attempts = %d, want 3", env.Metadata.Attempts)
	}
	if len(env.Entries) != 3 {
		t.Errorf("Entries = %d, want 3", len(env.Entries))
	}
	if _, ok := env.Parameters["with_keywords"]; ok {
		t.Error("relaxed step still carries with_keywords")
	}

	if got := len(events.on(bus.TopicRelaxation)); got != 2 {
		t.Errorf("relaxation events published = %d, want 2", got)
	}
	answers := events.on(bus.TopicAnswer)
	if len(answers) != 1 || answers[0].Type != bus.TypeAnswerCompleted {
		t.Errorf("answer events = %+v, want one completed", answers)
	}
	if len(metrics.relaxations) != 2 || len(metrics.answers) != 1 || metrics.answers[0] != string(relax.RelaxSecondary) {
		t.Errorf("metrics = %+v", metrics)
	}
	if !trailHas(env.ProvenanceTrail, provenance.StageRelax, provenance.ActionRemoved, "with_keywords") {
		t.Error("trail misses the relaxed keyword")
	}
}

func TestAnswer_ZeroResultsExhaustsTheLadder(t *testing.T) {
	api := &fakeAPI{}
	log := observability.NewService(10, nil)
	p := newPlanner(api, Deps{QueryLog: log})

	env, err := p.Answer(context.Background(), Request{
		QueryID:      "q-exhaust",
		Query:        "found footage horror movies from 1987 under 90 minutes",
		QuestionType: query.QuestionList,
		Entities:     strictEntities(),
	})
	if err != nil {
		t.Fatalf("Answer: %v", err)
	}

	want := []relax.State{relax.RelaxTertiary, relax.RelaxSecondary, relax.SemanticFallback, relax.GenericDiscovery, relax.Exhausted}
	if len(env.Relaxations) != len(want) {
		t.Fatalf("Relaxations = %d, want %d", len(env.Relaxations), len(want))
	}
	for i, w := range want {
		if env.Relaxations[i].To != w {
			t.Errorf("event %d to %s, want %s", i, env.Relaxations[i].To, w)
		}
	}
	if env.FinalState != relax.Exhausted {
		t.Errorf("FinalState = %s, want EXHAUSTED", env.FinalState)
	}
	if env.Entries == nil || len(env.Entries) != 0 {
		t.Errorf("Entries = %v, want an empty list", env.Entries)
	}
	if env.Metadata.Attempts != 5 {
		t.Errorf("Attempts = %d, want 5", env.Metadata.Attempts)
	}
	if env.QueryID != "q-exhaust" {
		t.Errorf("QueryID = %q", env.QueryID)
	}

	recent := log.Recent(1)
	if len(recent) != 1 || recent[0].FinalState != string(relax.Exhausted) || recent[0].Relaxations != 5 {
		t.Errorf("query log = %+v", recent)
	}
}

type fixedRetriever []endpoint.Match

func (f fixedRetriever) Retrieve(context.Context, string) ([]endpoint.Match, error) {
	return f, nil
}

func TestAnswer_LastRungsDropSymbolicParameters(t *testing.T) {
	api := &fakeAPI{}
	p := newPlanner(api, Deps{Retriever: fixedRetriever{{Path: "/discover/movie", Score: 0.9}}})

	env, err := p.Answer(context.Background(), Request{
		Query:        "horror movies from 1987",
		QuestionType: query.QuestionList,
		Entities: []entity.ExtractedEntity{
			{Type: "genre", Value: "horror", ID: 27},
			{Type: "year", Value: "1987"},
		},
	})
	if err != nil {
		t.Fatalf("Answer: %v", err)
	}
	if env.FinalState != relax.Exhausted {
		t.Fatalf("FinalState = %s, want EXHAUSTED", env.FinalState)
	}

	// STRICT, RELAX_SECONDARY, SEMANTIC_FALLBACK, GENERIC_DISCOVERY; the
	// empty tertiary tier is not re-run.
	api.mu.Lock()
	calls := append([]apiCall(nil), api.calls...)
	api.mu.Unlock()
	if len(calls) != 4 {
		t.Fatalf("calls = %d, want 4: %+v", len(calls), calls)
	}
	if calls[1].params["with_genres"] != "27" || calls[1].params["primary_release_year"] != "" {
		t.Errorf("secondary relaxation call = %v, want the genre only", calls[1].params)
	}
	for i, name := range map[int]string{2: "semantic fallback", 3: "generic discovery"} {
		params := calls[i].params
		for _, key := range []string{"with_genres", "primary_release_year"} {
			if _, ok := params[key]; ok {
				t.Errorf("%s call still sends %s: %v", name, key, params)
			}
		}
		if params["sort_by"] != "popularity.desc" {
			t.Errorf("%s call sort_by = %q, want the list default to survive", name, params["sort_by"])
		}
	}
}

func TestFallbackTree(t *testing.T) {
	tree := constraint.Build([]entity.Value{
		entity.Genre{Name: "crime", ID: 80},
		entity.Person{Name: "Robert De Niro", ID: 380},
		entity.Person{Name: "Al Pacino", ID: 1158},
	})
	catalog := endpoint.DefaultCatalog()
	cand := func(path string) endpoint.Candidate {
		for _, c := range catalog.Candidates(nil) {
			if c.Path == path {
				return c
			}
		}
		t.Fatalf("no candidate %s", path)
		return endpoint.Candidate{}
	}

	credits := fallbackTree(tree, cand("/person/{person_id}/movie_credits")).Flatten()
	if len(credits) != 1 || credits[0].Key != constraint.KeyPeople || entity.ResolvedID(credits[0].Value) != 380 {
		t.Errorf("credits fallback tree = %v, want De Niro only", credits)
	}
	if !fallbackTree(tree, cand("/discover/movie")).Empty() {
		t.Error("discovery fallback tree is not empty")
	}
	if tree.Len() != 3 {
		t.Errorf("source tree changed: %s", tree)
	}
}

func TestAnswer_ExtractionErrorIsFatal(t *testing.T) {
	api := &fakeAPI{}
	events := &recordingBus{}
	metrics := &recordingMetrics{}
	p := newPlanner(api, Deps{Bus: events, Metrics: metrics})

	_, err := p.Answer(context.Background(), Request{
		Query:    "movies set on mars",
		Entities: []entity.ExtractedEntity{{Type: "planet", Value: "Mars"}},
	})
	if !apperrors.IsExtraction(err) {
		t.Fatalf("err = %v, want an extraction error", err)
	}
	if len(api.paths()) != 0 {
		t.Errorf("API called %v after an extraction error", api.paths())
	}
	failed := events.on(bus.TopicAnswer)
	if len(failed) != 1 || failed[0].Type != bus.TypeAnswerFailed {
		t.Errorf("answer events = %+v, want one failure", failed)
	}
	if metrics.errors != 1 {
		t.Errorf("error metric = %d, want 1", metrics.errors)
	}
}

func TestAnswer_InvalidRequest(t *testing.T) {
	p := newPlanner(&fakeAPI{}, Deps{})
	_, err := p.Answer(context.Background(), Request{})
	if !apperrors.IsValidation(err) {
		t.Fatalf("err = %v, want a validation error", err)
	}
}

type fakeSearcher struct {
	hits map[string][]tmdb.Named
}

func (f *fakeSearcher) Search(_ context.Context, kind, name string) ([]tmdb.Named, error) {
	return f.hits[kind+":"+strings.ToLower(name)], nil
}

func TestAnswer_ResolvesNames(t *testing.T) {
	api := &fakeAPI{respond: func(path string, params map[string]string) []tmdb.Item {
		if path != "/discover/movie" || params["with_people"] != "31" || params["with_genres"] != "35" {
			return nil
		}
		return []tmdb.Item{
			movie(1, "Big", "1988-06-03", 30, 35),
			movie(2, "Splash", "1984-03-09", 20, 35),
			movie(3, "Turner & Hooch", "1989-07-28", 10, 35),
		}
	}}
	resolver := lookup.NewResolver(lookup.Config{
		Search: &fakeSearcher{hits: map[string][]tmdb.Named{
			"person:tom hanks": {{ID: 31, Name: "Tom Hanks", Popularity: 80}},
		}},
	}, nil)
	p := newPlanner(api, Deps{Resolver: resolver})

	env, err := p.Answer(context.Background(), Request{
		Query:        "Tom Hanks comedy movies",
		QuestionType: query.QuestionList,
		Entities: []entity.ExtractedEntity{
			{Type: "person", Value: "Tom Hanks"},
			{Type: "genre", Value: "comedy"},
			{Type: "person", Value: "Nobody Atall"},
		},
	})
	if err != nil {
		t.Fatalf("Answer: %v", err)
	}

	if len(env.Entries) != 3 {
		t.Fatalf("Entries = %d, want 3 (params %v)", len(env.Entries), env.Parameters)
	}
	if !trailHas(env.ProvenanceTrail, provenance.StageResolve, provenance.ActionKept, "person") {
		t.Error("trail misses the resolved person")
	}
	if !trailHas(env.ProvenanceTrail, provenance.StageResolve, provenance.ActionRemoved, "person") {
		t.Error("trail misses the dropped person")
	}
	if len(env.Metadata.Resolutions) != 3 {
		t.Errorf("Resolutions = %d, want 3", len(env.Metadata.Resolutions))
	}
}

func TestAnswer_SpanPerStage(t *testing.T) {
	exp := tracetest.NewInMemoryExporter()
	tracer := observability.NewTracerWithExporter(exp, true)
	t.Cleanup(func() { _ = tracer.Shutdown(context.Background()) })

	api := &fakeAPI{}
	p := newPlanner(api, Deps{Tracer: tracer})

	_, err := p.Answer(context.Background(), Request{
		Query:        "found footage horror movies from 1987 under 90 minutes",
		QuestionType: query.QuestionList,
		Entities:     strictEntities(),
	})
	if err != nil {
		t.Fatalf("Answer: %v", err)
	}

	seen := make(map[string]bool)
	for _, s := range exp.GetSpans() {
		seen[s.Name] = true
	}
	for _, name := range []string{"planner.build", "planner.score", "planner.inject", "planner.sort", "planner.execute", "planner.relax"} {
		if !seen[name] {
			t.Errorf("missing span %s (got %v)", name, seen)
		}
	}
}

func TestAnswer_CancelledContext(t *testing.T) {
	api := &fakeAPI{respond: func(string, map[string]string) []tmdb.Item { return nil }}
	p := newPlanner(api, Deps{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.Answer(ctx, Request{
		Query:        "horror movies",
		QuestionType: query.QuestionList,
		Entities:     []entity.ExtractedEntity{{Type: "genre", Value: "horror", ID: 27}},
	})
	if err == nil {
		t.Fatal("expected an error for a cancelled context")
	}
}
