// Package planner answers queries end to end: it resolves and parses the
// extracted entities, builds the constraint tree, picks and parameterizes
// an endpoint, executes it, and walks the relaxation ladder until the
// answer is useful or nothing is left to give up.
package planner

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/reelquery/reelquery/internal/bus"
	"github.com/reelquery/reelquery/internal/constraint"
	"github.com/reelquery/reelquery/internal/endpoint"
	"github.com/reelquery/reelquery/internal/entity"
	"github.com/reelquery/reelquery/internal/execute"
	"github.com/reelquery/reelquery/internal/inject"
	"github.com/reelquery/reelquery/internal/lookup"
	"github.com/reelquery/reelquery/internal/observability"
	apperrors "github.com/reelquery/reelquery/internal/pkg/errors"
	"github.com/reelquery/reelquery/internal/pkg/logger"
	"github.com/reelquery/reelquery/internal/provenance"
	"github.com/reelquery/reelquery/internal/query"
	"github.com/reelquery/reelquery/internal/relax"
	"github.com/reelquery/reelquery/internal/retrieval"
)

var validate = validator.New()

// Resolver fills in external ids for named entities.
type Resolver interface {
	ResolveAll(ctx context.Context, values []entity.Value) ([]entity.Value, []lookup.Resolution, error)
}

// Recorder receives planner metrics.
type Recorder interface {
	RecordAnswer(finalState string, results int, latency time.Duration)
	RecordAnswerError(err error)
	RecordStage(stage string, latency time.Duration)
	RecordRelaxation(to string)
	RecordEndpoint(path string)
}

type noopRecorder struct{}

func (noopRecorder) RecordAnswer(string, int, time.Duration) {}
func (noopRecorder) RecordAnswerError(error)                 {}
func (noopRecorder) RecordStage(string, time.Duration)       {}
func (noopRecorder) RecordRelaxation(string)                 {}
func (noopRecorder) RecordEndpoint(string)                   {}

// Config configures the planner.
type Config struct {
	// Thresholds are the result counts below which the planner relaxes.
	Thresholds relax.Thresholds

	// MaxEntries caps the entries returned per answer.
	MaxEntries int
}

// DefaultConfig returns the stock planner settings.
func DefaultConfig() Config {
	return Config{Thresholds: relax.DefaultThresholds(), MaxEntries: 20}
}

// Deps are the collaborators of a planner. Engine is required; every
// other field falls back to a default when nil.
type Deps struct {
	Resolver  Resolver
	Retriever retrieval.Retriever
	Catalog   *endpoint.Catalog
	Scorer    *endpoint.Scorer
	Analyzer  *query.Analyzer
	Pipeline  *inject.Pipeline
	Engine    *execute.Engine

	Bus      bus.Bus
	Metrics  Recorder
	Tracer   *observability.Tracer
	QueryLog *observability.Service

	// Now is the clock used for provenance and event timestamps.
	Now func() time.Time
}

// Planner answers queries.
type Planner struct {
	resolver  Resolver
	retriever retrieval.Retriever
	catalog   *endpoint.Catalog
	scorer    *endpoint.Scorer
	analyzer  *query.Analyzer
	pipeline  *inject.Pipeline
	engine    *execute.Engine

	bus      bus.Bus
	metrics  Recorder
	tracer   *observability.Tracer
	queryLog *observability.Service
	now      func() time.Time

	cfg Config
	log *logger.Logger
}

// New creates a planner.
func New(deps Deps, cfg Config, log *logger.Logger) *Planner {
	def := DefaultConfig()
	if cfg.Thresholds.List <= 0 && cfg.Thresholds.Other <= 0 {
		cfg.Thresholds = def.Thresholds
	}
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = def.MaxEntries
	}
	if log == nil {
		log = logger.Discard()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Catalog == nil {
		deps.Catalog = endpoint.DefaultCatalog()
	}
	if deps.Retriever == nil {
		deps.Retriever = retrieval.NewCatalogRetriever(deps.Catalog)
	}
	if deps.Scorer == nil {
		deps.Scorer = endpoint.NewScorer(endpoint.DefaultScorerConfig(), log)
	}
	if deps.Analyzer == nil {
		deps.Analyzer = query.NewAnalyzer(nil, log)
	}
	if deps.Pipeline == nil {
		deps.Pipeline = inject.NewPipeline(inject.DefaultConfig(), deps.Now, log)
	}
	if deps.Metrics == nil {
		deps.Metrics = noopRecorder{}
	}
	if deps.Tracer == nil {
		deps.Tracer = observability.NoopTracer()
	}
	return &Planner{
		resolver:  deps.Resolver,
		retriever: deps.Retriever,
		catalog:   deps.Catalog,
		scorer:    deps.Scorer,
		analyzer:  deps.Analyzer,
		pipeline:  deps.Pipeline,
		engine:    deps.Engine,
		bus:       deps.Bus,
		metrics:   deps.Metrics,
		tracer:    deps.Tracer,
		queryLog:  deps.QueryLog,
		now:       deps.Now,
		cfg:       cfg,
		log:       log,
	}
}

// run is the state of one query.
type run struct {
	p   *Planner
	req Request
	id  string
	log *logger.Logger

	trail       *provenance.Log
	values      []entity.Value
	resolutions []lookup.Resolution
	analysis    *query.Analysis
	tree        *constraint.Tree
	candidates  []endpoint.Candidate
	timings     map[string]int64

	// last executed attempt
	rule     string
	step     *inject.Step
	outcome  *execute.Outcome
	attempts int
}

// Answer plans, executes and relaxes one query. Malformed entities and
// invalid requests are returned as errors; running out of relaxations is
// not an error and yields an envelope in the EXHAUSTED state.
func (p *Planner) Answer(ctx context.Context, req Request) (*ResultEnvelope, error) {
	start := time.Now()
	r, err := p.prepare(ctx, req)
	if err != nil {
		p.fail(ctx, req, r, err, time.Since(start))
		return nil, err
	}
	ctx = logger.ContextWithQueryID(ctx, r.id)

	state := relax.Strict
	current := r.tree
	var events []relax.Event

	sig, err := r.attempt(ctx, state, current)
	if err != nil {
		p.fail(ctx, req, r, err, time.Since(start))
		return nil, err
	}
	for {
		next, relaxed, ev := relax.Next(state, sig, current)
		if ev == nil {
			break
		}
		ev.Timestamp = p.now().UTC()
		events = append(events, *ev)
		r.recordRelaxation(ctx, *ev)

		state, current = next, relaxed
		if state.Terminal() {
			break
		}
		if !ev.Changed() && (state == relax.RelaxTertiary || state == relax.RelaxSecondary) {
			// same tree, same endpoint, same answer
			continue
		}
		if sig, err = r.attempt(ctx, state, current); err != nil {
			p.fail(ctx, req, r, err, time.Since(start))
			return nil, err
		}
	}

	env := r.envelope(state, events)
	env.Metadata.LatencyMs = time.Since(start).Milliseconds()

	r.log.Info("Answered query",
		"endpoint", env.Endpoint,
		"final_state", env.FinalState,
		"results", len(env.Entries),
		"relaxations", len(env.Relaxations),
		"attempts", r.attempts,
		"latency_ms", env.Metadata.LatencyMs,
	)

	p.metrics.RecordAnswer(string(state), len(env.Entries), time.Since(start))
	p.publish(ctx, bus.TopicAnswer, bus.NewEvent(bus.TypeAnswerCompleted, r.id, AnswerSummary{
		QueryID:     r.id,
		Query:       req.Query,
		Endpoint:    env.Endpoint,
		FinalState:  state,
		Results:     len(env.Entries),
		Relaxations: len(events),
		LatencyMs:   env.Metadata.LatencyMs,
	}))
	if p.queryLog != nil {
		p.queryLog.LogQuery(observability.QueryLogEntry{
			Timestamp:    p.now().UTC(),
			QueryID:      r.id,
			Query:        req.Query,
			QuestionType: string(r.analysis.QuestionType),
			Endpoint:     env.Endpoint,
			FinalState:   string(state),
			Relaxations:  len(events),
			ResultCount:  len(env.Entries),
			LatencyMs:    env.Metadata.LatencyMs,
		})
	}
	return env, nil
}

// Plan runs every stage up to the API call and reports what would be
// executed in the STRICT state.
func (p *Planner) Plan(ctx context.Context, req Request) (*Plan, error) {
	r, err := p.prepare(ctx, req)
	if err != nil {
		return nil, err
	}

	plan := &Plan{
		QueryID:     r.id,
		Analysis:    r.analysis,
		Tree:        r.tree.Signature(),
		Constraints: constraintViews(r.tree),
	}

	sel, err := r.selectEndpoint(ctx, r.tree)
	if err != nil {
		plan.SelectionError = err.Error()
		plan.ProvenanceTrail = r.trail.Entries()
		return plan, nil
	}
	plan.Selection = &sel

	step := r.inject(ctx, sel.Candidate, r.tree, false)
	plan.Step = step
	if spec, ok := p.catalog.Lookup(step.Endpoint); ok {
		if call, err := inject.Translate(step, spec); err == nil {
			plan.Call = &Call{Path: call.Path, Params: call.Params}
			plan.Bypass = execute.ShouldBypass(r.tree, call.Path)
		}
	}
	plan.ProvenanceTrail = r.trail.Entries()
	return plan, nil
}

// prepare validates the request and runs the stages shared by Answer and
// Plan: parse, resolve, analyze, build and retrieve.
func (p *Planner) prepare(ctx context.Context, req Request) (*run, error) {
	id := req.QueryID
	if id == "" {
		id = uuid.NewString()
	}
	r := &run{
		p:       p,
		req:     req,
		id:      id,
		log:     p.log.WithQuery(id),
		trail:   provenance.NewLog(p.now),
		timings: make(map[string]int64),
	}

	ctx = logger.ContextWithQueryID(ctx, id)

	if err := validate.Struct(req); err != nil {
		return r, apperrors.ValidationError("invalid request").WithDetail("reason", err.Error())
	}

	values, err := entity.ParseAll(req.Entities)
	if err != nil {
		return r, err
	}

	if p.resolver != nil {
		err = r.stage(ctx, provenance.StageResolve, func(ctx context.Context) error {
			resolved, resolutions, err := p.resolver.ResolveAll(ctx, values)
			if err != nil {
				return err
			}
			values, r.resolutions = resolved, resolutions
			return nil
		}, attribute.Int("entities", len(values)))
		if err != nil {
			return r, err
		}
		r.traceResolutions()
	}
	r.values = values

	r.analysis = p.analyzer.Analyze(req.Query, req.QuestionType, values)

	_ = r.stage(ctx, provenance.StageBuild, func(context.Context) error {
		r.tree = constraint.Build(values)
		return nil
	})
	for _, l := range r.tree.Flatten() {
		r.trail.Append(provenance.Entry{
			Stage:  provenance.StageBuild,
			Action: provenance.ActionAdded,
			Key:    l.Key,
			Value:  l.Value.Label(),
			Tier:   l.Tier.String(),
			Reason: fmt.Sprintf("%s constraint from entity %d", l.Tier, l.Entity),
		})
	}

	text := req.Query
	if strings.TrimSpace(text) == "" {
		text = r.analysis.Normalized
	}
	var matches []endpoint.Match
	err = r.stage(ctx, provenance.StageScore, func(ctx context.Context) error {
		m, err := p.retriever.Retrieve(ctx, text)
		if err != nil {
			return err
		}
		matches = m
		return nil
	}, attribute.String("step", "retrieve"))
	if err != nil {
		if ctx.Err() != nil {
			return r, ctx.Err()
		}
		r.log.Warn("Endpoint retrieval failed, scoring on coverage and priors only", "error", err)
	}
	r.candidates = p.catalog.Candidates(matches)
	return r, nil
}

// attempt selects, injects and executes once for state and returns the
// signal the relaxation controller needs. Only cancellation is returned
// as an error.
func (r *run) attempt(ctx context.Context, state relax.State, tree *constraint.Tree) (relax.Signal, error) {
	sig := relax.Signal{Min: r.p.cfg.Thresholds.For(r.analysis.QuestionType == query.QuestionList)}

	ch, ok := r.choose(ctx, state, tree)
	if !ok {
		sig.SelectionFailed = true
		return sig, nil
	}
	cand, check, rule := ch.cand, ch.check, ch.rule
	r.p.metrics.RecordEndpoint(cand.Path)

	step := r.inject(ctx, cand, ch.call, ch.minimal)

	var outcome *execute.Outcome
	err := r.stage(ctx, provenance.StageExecute, func(ctx context.Context) error {
		out, err := r.p.engine.Execute(ctx, execute.Input{
			Step:  step,
			Tree:  check,
			Media: r.analysis.Media,
			Need:  r.p.cfg.MaxEntries,
			Trail: r.trail,
		})
		if err != nil {
			return err
		}
		outcome = out
		return out.Err
	}, attribute.String("endpoint", cand.Path), attribute.String("state", string(state)))
	if err != nil && ctx.Err() != nil {
		return sig, ctx.Err()
	}
	if outcome == nil {
		outcome = &execute.Outcome{Err: err}
	}

	r.attempts++
	r.rule, r.step, r.outcome = rule, step, outcome
	sig.Results = len(outcome.Entries)

	r.log.Debug("Attempt finished",
		"state", state,
		"endpoint", cand.Path,
		"results", sig.Results,
		"need", sig.Min,
	)
	return sig, nil
}

// choice is the endpoint for one attempt, the tree its call is built
// from and the tree its results are checked against.
type choice struct {
	cand    endpoint.Candidate
	call    *constraint.Tree
	check   *constraint.Tree
	rule    string
	minimal bool
}

// choose picks the endpoint for state. The ladder's last two rungs ignore
// coverage and drop symbolic filtering: the semantic fallback keeps only
// the person a credits path needs, generic discovery keeps nothing but the
// media hint.
func (r *run) choose(ctx context.Context, state relax.State, tree *constraint.Tree) (choice, bool) {
	none := constraint.Build(nil)

	switch state {
	case relax.SemanticFallback:
		c, ok := r.p.scorer.BestSemantic(r.candidates, tree, r.analysis.Media)
		if !ok {
			r.trail.Record(provenance.StageScore, provenance.ActionFailed, "endpoint", "no media-compatible endpoint for the semantic fallback")
			return choice{}, false
		}
		r.selected(c.Path, "best semantic match, symbolic validation off")
		return choice{cand: c, call: fallbackTree(tree, c), check: none, rule: "semantic_fallback", minimal: true}, true

	case relax.GenericDiscovery:
		spec, ok := r.p.catalog.Discovery(r.analysis.Media.Primary())
		if !ok {
			r.trail.Record(provenance.StageScore, provenance.ActionFailed, "endpoint", "no discovery endpoint for "+string(r.analysis.Media.Primary()))
			return choice{}, false
		}
		for _, c := range r.candidates {
			if c.Path == spec.Path {
				r.selected(c.Path, "media-type discovery")
				return choice{cand: c, call: none, check: none, rule: "generic_discovery", minimal: true}, true
			}
		}
		return choice{}, false

	default:
		sel, err := r.selectEndpoint(ctx, tree)
		if err != nil {
			return choice{}, false
		}
		return choice{cand: sel.Candidate, call: tree, check: tree, rule: sel.Rule}, true
	}
}

// fallbackTree is the call tree of the semantic fallback: empty, or the
// first person when the endpoint is a credits path that needs one.
func fallbackTree(tree *constraint.Tree, c endpoint.Candidate) *constraint.Tree {
	if c.Kind != endpoint.KindCredits {
		return constraint.Build(nil)
	}
	kept := false
	return tree.Without(func(l constraint.Leaf) bool {
		if l.Key != constraint.KeyPeople || kept {
			return true
		}
		kept = true
		return false
	})
}

func (r *run) selectEndpoint(ctx context.Context, tree *constraint.Tree) (endpoint.Selection, error) {
	var sel endpoint.Selection
	err := r.stage(ctx, provenance.StageScore, func(context.Context) error {
		var err error
		sel, err = r.p.scorer.Select(r.candidates, tree, r.analysis.Media)
		return err
	}, attribute.Int("candidates", len(r.candidates)))
	if err != nil {
		r.trail.Append(provenance.Entry{
			Stage:  provenance.StageScore,
			Action: provenance.ActionFailed,
			Key:    "endpoint",
			Value:  apperrors.CodeOf(err),
			Reason: err.Error(),
		})
		return sel, err
	}
	r.selected(sel.Path, fmt.Sprintf("score %.3f, coverage %.2f, rule %s", sel.Score, sel.Coverage, sel.Rule))
	return sel, nil
}

func (r *run) selected(path, reason string) {
	r.trail.Append(provenance.Entry{
		Stage:  provenance.StageScore,
		Action: provenance.ActionSelected,
		Key:    "endpoint",
		Value:  path,
		Reason: reason,
	})
}

// inject runs the four injection phases and the sort override, tracing
// every parameter change.
func (r *run) inject(ctx context.Context, cand endpoint.Candidate, tree *constraint.Tree, minimal bool) *inject.Step {
	var step *inject.Step
	_ = r.stage(ctx, provenance.StageInject, func(context.Context) error {
		step = r.p.pipeline.Run(inject.Input{
			Tree:     tree,
			Values:   r.values,
			Endpoint: cand,
			Analysis: r.analysis,
			Minimal:  minimal,
		})
		return nil
	}, attribute.String("endpoint", cand.Path))
	for _, c := range step.Changes {
		r.trail.Append(changeEntry(provenance.StageInject, c))
	}

	var overrides []query.Override
	_ = r.stage(ctx, provenance.StageSort, func(context.Context) error {
		overrides = inject.ApplySort(step, r.analysis.Sort)
		return nil
	}, attribute.String("intent", string(r.analysis.Sort.Intent)))
	for _, o := range overrides {
		r.trail.Append(provenance.Entry{
			Stage:  provenance.StageSort,
			Action: provenance.ActionOverride,
			Key:    o.Key,
			Value:  o.Value,
			Reason: o.Reason,
		})
	}
	return step
}

func changeEntry(stage provenance.Stage, c inject.Change) provenance.Entry {
	e := provenance.Entry{Stage: stage, Key: c.Key, Value: c.Value, Reason: c.Reason}
	switch {
	case c.Removed:
		e.Action = provenance.ActionRemoved
		e.Value = c.Previous
	case c.From != "":
		e.Action = provenance.ActionOverride
		e.Reason = fmt.Sprintf("%s (was %q from %s)", c.Reason, c.Previous, c.From)
	default:
		e.Action = provenance.ActionAdded
	}
	if e.Reason == "" {
		e.Reason = string(c.Phase) + " phase"
	}
	return e
}

func (r *run) traceResolutions() {
	for _, res := range r.resolutions {
		if res.Err != nil {
			r.trail.Append(provenance.Entry{
				Stage:  provenance.StageResolve,
				Action: provenance.ActionRemoved,
				Key:    string(res.Kind),
				Value:  res.Name,
				Reason: "unresolved: " + res.Err.Error(),
			})
			continue
		}
		r.trail.Append(provenance.Entry{
			Stage:  provenance.StageResolve,
			Action: provenance.ActionKept,
			Key:    string(res.Kind),
			Value:  fmt.Sprintf("%s=%d", res.Name, res.ID),
			Reason: "resolved via " + string(res.Source),
		})
	}
}

func (r *run) recordRelaxation(ctx context.Context, ev relax.Event) {
	_ = r.stage(ctx, provenance.StageRelax, func(context.Context) error { return nil },
		attribute.String("from", string(ev.From)), attribute.String("to", string(ev.To)))

	if len(ev.Removed) == 0 {
		r.trail.Append(provenance.Entry{
			Stage:  provenance.StageRelax,
			Action: provenance.ActionKept,
			Value:  string(ev.To),
			Tier:   ev.TierAfter,
			Reason: ev.Reason,
		})
	}
	for _, rm := range ev.Removed {
		r.trail.Append(provenance.Entry{
			Stage:  provenance.StageRelax,
			Action: provenance.ActionRemoved,
			Key:    rm.Key,
			Value:  rm.Value,
			Tier:   rm.Tier,
			Reason: ev.Reason,
		})
	}

	r.log.Info("Relaxed query", "from", ev.From, "to", ev.To, "removed", len(ev.Removed), "reason", ev.Reason)
	r.p.metrics.RecordRelaxation(string(ev.To))
	r.p.publish(ctx, bus.TopicRelaxation, bus.NewEvent(bus.TypeRelaxed, r.id, RelaxationNotice{QueryID: r.id, Event: ev}))
}

// stage runs fn inside a span named after stage and records its latency.
func (r *run) stage(ctx context.Context, stage provenance.Stage, fn func(context.Context) error, attrs ...attribute.KeyValue) error {
	start := time.Now()
	sctx, span := r.p.tracer.Start(ctx, string(stage), append(attrs, attribute.String("query_id", r.id))...)
	err := fn(sctx)
	observability.EndSpan(span, err)

	elapsed := time.Since(start)
	r.p.metrics.RecordStage(string(stage), elapsed)
	r.timings[string(stage)] += elapsed.Milliseconds()
	return err
}

func (r *run) envelope(state relax.State, events []relax.Event) *ResultEnvelope {
	format := r.req.ResponseFormat
	if format == "" {
		format = string(r.analysis.QuestionType)
	}
	if events == nil {
		events = []relax.Event{}
	}

	env := &ResultEnvelope{
		QueryID:        r.id,
		Entries:        []execute.Entry{},
		ResponseFormat: format,
		Relaxations:    events,
		FinalState:     state,
		Metadata: Metadata{
			QuestionType: r.analysis.QuestionType,
			Media:        r.analysis.Media.String(),
			MediaReason:  r.analysis.MediaReason,
			SortIntent:   r.analysis.Sort.Intent,
			Rule:         r.rule,
			Attempts:     r.attempts,
			Resolutions:  r.resolutions,
			TimingsMs:    r.timings,
		},
	}
	if r.step != nil {
		env.Endpoint = r.step.Endpoint
		env.Parameters = make(map[string]string, len(r.step.Parameters))
		for k, v := range r.step.Parameters {
			env.Parameters[k] = v
		}
		env.Metadata.Revenue = r.step.Revenue
	}
	if r.outcome != nil {
		entries := r.outcome.Entries
		if len(entries) > r.p.cfg.MaxEntries {
			entries = entries[:r.p.cfg.MaxEntries]
		}
		if entries != nil {
			env.Entries = entries
		}
		env.Metadata.Bypassed = r.outcome.Bypassed
		env.Metadata.Fetched = r.outcome.Fetched
		env.Metadata.Rejected = r.outcome.Rejected
	}
	env.ProvenanceTrail = r.trail.Entries()
	return env
}

// fail reports a query that ended with an error.
func (p *Planner) fail(ctx context.Context, req Request, r *run, err error, latency time.Duration) {
	id := req.QueryID
	if r != nil {
		id = r.id
	}
	level := p.log.WithQuery(id).WithError(err)
	if apperrors.IsExtraction(err) || apperrors.IsValidation(err) || stderrors.Is(err, context.Canceled) {
		level.Info("Query rejected")
	} else {
		level.Error("Query failed")
	}

	p.metrics.RecordAnswerError(err)
	p.publish(ctx, bus.TopicAnswer, bus.NewEvent(bus.TypeAnswerFailed, id, AnswerSummary{
		QueryID:   id,
		Query:     req.Query,
		LatencyMs: latency.Milliseconds(),
		Error:     err.Error(),
	}))
	if p.queryLog != nil {
		p.queryLog.LogQuery(observability.QueryLogEntry{
			Timestamp: p.now().UTC(),
			QueryID:   id,
			Query:     req.Query,
			LatencyMs: latency.Milliseconds(),
			Error:     err.Error(),
		})
	}
}

// publish sends an event without letting a bus failure affect the answer.
func (p *Planner) publish(ctx context.Context, topic string, ev bus.Event) {
	if p.bus == nil {
		return
	}
	if err := p.bus.Publish(context.WithoutCancel(ctx), topic, ev); err != nil {
		p.log.WithContext(ctx).Warn("Failed to publish event", "topic", topic, "type", ev.Type, "error", err)
	}
}
