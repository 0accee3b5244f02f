package inject

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/reelquery/reelquery/internal/constraint"
	"github.com/reelquery/reelquery/internal/endpoint"
	"github.com/reelquery/reelquery/internal/entity"
	"github.com/reelquery/reelquery/internal/pkg/logger"
	"github.com/reelquery/reelquery/internal/query"
)

// Parameter keys written by the pipeline besides the constraint keys.
const (
	ParamCastKey      = "with_cast"
	ParamCrewKey      = "with_crew"
	ParamDateFrom     = "release_date.gte"
	ParamDateTo       = "release_date.lte"
	ParamRatingMin    = "vote_average.gte"
	ParamRatingMax    = "vote_average.lte"
	ParamRuntimeMin   = "with_runtime.gte"
	ParamRuntimeMax   = "with_runtime.lte"
	ParamMinVoteCount = "vote_count.gte"
	ParamSortBy       = "sort_by"
	ParamQuery        = "query"
	ParamLanguage     = "language"
	ParamIncludeAdult = "include_adult"
	ParamPage         = "page"
)

// Config holds the defaults the pipeline injects.
type Config struct {
	Language     string
	MinVoteCount int
	// QualityFloor is the rating floor inferred from quality hints.
	QualityFloor float64
}

// DefaultConfig returns the stock defaults.
func DefaultConfig() Config {
	return Config{Language: "en-US", MinVoteCount: query.DefaultMinVoteCount, QualityFloor: 7}
}

// Input is everything a pipeline run reads. None of it is modified.
type Input struct {
	Tree *constraint.Tree
	// Values is index aligned with the source entities.
	Values   []entity.Value
	Endpoint endpoint.Candidate
	Analysis *query.Analysis

	// Minimal limits semantic inference to search text, for calls that
	// have given up symbolic filtering.
	Minimal bool
}

// Pipeline runs the injection phases.
type Pipeline struct {
	cfg Config
	now func() time.Time
	log *logger.Logger
}

// NewPipeline creates a pipeline. now supplies the reference time for
// relative dates; nil means the wall clock.
func NewPipeline(cfg Config, now func() time.Time, log *logger.Logger) *Pipeline {
	if now == nil {
		now = time.Now
	}
	if log == nil {
		log = logger.Discard()
	}
	if cfg.Language == "" {
		cfg.Language = "en-US"
	}
	if cfg.MinVoteCount <= 0 {
		cfg.MinVoteCount = query.DefaultMinVoteCount
	}
	if cfg.QualityFloor <= 0 {
		cfg.QualityFloor = 7
	}
	return &Pipeline{cfg: cfg, now: now, log: log}
}

// Run builds a step. The same input always yields the same parameters.
func (p *Pipeline) Run(in Input) *Step {
	step := NewStep(in.Endpoint.Path, in.Endpoint.Media)

	p.entityPhase(step, in)
	p.constraintPhase(step, in.Tree)
	p.semanticPhase(step, in)
	p.defaultPhase(step, in.Endpoint.Kind)
	p.revenuePhase(step, in.Tree)

	p.log.Debug("Injected parameters",
		"endpoint", step.Endpoint,
		"params", len(step.Parameters),
		"overrides", len(step.Overrides()),
		"fingerprint", step.Fingerprint(),
	)
	return step
}

// entityPhase maps each entity still present in the tree to its parameter.
// Repeated keys are joined with commas; the constraint phase rewrites them
// with the tree's real combinators.
func (p *Pipeline) entityPhase(step *Step, in Input) {
	live := in.Tree.Entities()
	for i, v := range in.Values {
		if v == nil || !live[i] {
			continue
		}
		key, value, ok := entityParam(v)
		if !ok {
			continue
		}
		if cur, set := step.Parameters[key]; set && step.Sources[key] == PhaseEntity {
			value = cur + "," + value
		}
		step.Set(PhaseEntity, key, value, "entity "+string(v.Kind()))
	}
}

func entityParam(v entity.Value) (key, value string, ok bool) {
	switch t := v.(type) {
	case entity.Person:
		return personKey(t.Role), idParam(t.ID), t.ID > 0
	case entity.Genre:
		return constraint.KeyGenres, idParam(t.ID), t.ID > 0
	case entity.Company:
		return constraint.KeyCompanies, idParam(t.ID), t.ID > 0
	case entity.Network:
		return constraint.KeyNetworks, idParam(t.ID), t.ID > 0
	case entity.Keyword:
		return constraint.KeyKeywords, idParam(t.ID), t.ID > 0
	case entity.Year:
		return constraint.KeyYear, strconv.Itoa(t.Year), true
	case entity.Rating:
		return ratingKey(t.Op), formatScore(t.Score), true
	case entity.Runtime:
		return runtimeKey(t.Op), strconv.Itoa(t.Minutes), true
	case entity.Language:
		return constraint.KeyLanguage, t.Code, true
	case entity.DateRange, entity.Revenue, entity.MediaType:
		// ranges belong to the constraint phase, revenue to the revenue phase
		return "", "", false
	default:
		return "", "", false
	}
}

// constraintPhase walks the top level of the tree. Every parameter it
// derives overrides the entity phase.
func (p *Pipeline) constraintPhase(step *Step, tree *constraint.Tree) {
	root := tree.Node(0)

	// AND-ed leaves sharing a parameter are collected first so the join
	// does not depend on map order.
	type andParam struct {
		values []string
	}
	var andKeys []string
	ands := make(map[string]*andParam)
	addAnd := func(key, value string) {
		a, ok := ands[key]
		if !ok {
			a = &andParam{}
			ands[key] = a
			andKeys = append(andKeys, key)
		}
		a.values = append(a.values, value)
	}

	var ranges []entity.DateRange
	var years []int
	for _, c := range root.Children {
		n := tree.Node(c)
		if !n.IsLeaf() {
			p.orGroup(step, tree, n, &ranges)
			continue
		}
		switch v := n.Value.(type) {
		case entity.Person:
			if v.ID > 0 {
				addAnd(personKey(v.Role), idParam(v.ID))
			}
		case entity.Genre, entity.Company, entity.Network, entity.Keyword:
			if id := entity.ResolvedID(v); id > 0 {
				step.Set(PhaseConstraint, n.Key, idParam(id), "constraint "+n.Key)
			}
		case entity.Year:
			years = append(years, v.Year)
		case entity.DateRange:
			ranges = append(ranges, v)
		case entity.Rating:
			setBound(step, ratingKey(v.Op), v.Score, v.Op.IsUpper())
		case entity.Runtime:
			setBound(step, runtimeKey(v.Op), float64(v.Minutes), v.Op.IsUpper())
		case entity.Language:
			step.Set(PhaseConstraint, constraint.KeyLanguage, v.Code, "constraint language")
		case entity.Revenue, entity.MediaType:
		}
	}

	for _, key := range andKeys {
		step.Set(PhaseConstraint, key, strings.Join(ands[key].values, ","), "AND of "+strconv.Itoa(len(ands[key].values))+" constraints")
	}

	if len(ranges) > 0 {
		from, to := spanOf(ranges)
		if d := entity.FormatDate(from); d != "" {
			step.Set(PhaseConstraint, ParamDateFrom, d, "date range")
		}
		if d := entity.FormatDate(to); d != "" {
			step.Set(PhaseConstraint, ParamDateTo, d, "date range")
		}
		step.Delete(PhaseConstraint, constraint.KeyYear, "date range replaces single year")
		return
	}
	if len(years) > 0 {
		step.Set(PhaseConstraint, constraint.KeyYear, strconv.Itoa(years[0]), "constraint year")
	}
}

// orGroup writes one OR group. Years and date ranges collapse into the
// smallest date range covering every alternative.
func (p *Pipeline) orGroup(step *Step, tree *constraint.Tree, group constraint.Node, ranges *[]entity.DateRange) {
	var ids []string
	key := ""
	for _, c := range group.Children {
		n := tree.Node(c)
		key = n.Key
		switch v := n.Value.(type) {
		case entity.Year:
			*ranges = append(*ranges, entity.DateRange{
				From: time.Date(v.Year, time.January, 1, 0, 0, 0, 0, time.UTC),
				To:   time.Date(v.Year, time.December, 31, 0, 0, 0, 0, time.UTC),
			})
		case entity.DateRange:
			*ranges = append(*ranges, v)
		case entity.Language:
			ids = append(ids, v.Code)
		default:
			if id := entity.ResolvedID(v); id > 0 {
				ids = append(ids, idParam(id))
			}
		}
	}
	if len(ids) > 0 {
		step.Set(PhaseConstraint, key, strings.Join(ids, "|"), "OR of "+strconv.Itoa(len(ids))+" constraints")
	}
}

// spanOf returns the bounds covering every range. An open bound on any
// range leaves that side open.
func spanOf(ranges []entity.DateRange) (from, to time.Time) {
	openFrom, openTo := false, false
	for _, r := range ranges {
		if r.From.IsZero() {
			openFrom = true
		} else if from.IsZero() || r.From.Before(from) {
			from = r.From
		}
		if r.To.IsZero() {
			openTo = true
		} else if to.IsZero() || r.To.After(to) {
			to = r.To
		}
	}
	if openFrom {
		from = time.Time{}
	}
	if openTo {
		to = time.Time{}
	}
	return from, to
}

// setBound keeps the strictest of several bounds on one key.
func setBound(step *Step, key string, value float64, upper bool) {
	if cur, ok := step.Parameters[key]; ok && step.Sources[key] == PhaseConstraint {
		if existing, err := strconv.ParseFloat(cur, 64); err == nil {
			if upper && existing <= value || !upper && existing >= value {
				return
			}
		}
	}
	step.Set(PhaseConstraint, key, formatScore(value), "constraint bound")
}

// semanticPhase infers parameters from the query text. It never touches a
// key an earlier phase set.
func (p *Pipeline) semanticPhase(step *Step, in Input) {
	a := in.Analysis
	if a == nil {
		return
	}

	if a.QualityHint && !in.Minimal {
		step.SetIfAbsent(PhaseSemantic, ParamRatingMin, formatScore(p.cfg.QualityFloor), "quality wording")
		step.SetIfAbsent(PhaseSemantic, ParamMinVoteCount, strconv.Itoa(p.cfg.MinVoteCount), "quality wording")
	}

	if a.RelativeYearOffset != nil && !in.Minimal && !step.Has(ParamDateFrom) && !step.Has(ParamDateTo) {
		year := p.now().Year() + *a.RelativeYearOffset
		step.SetIfAbsent(PhaseSemantic, constraint.KeyYear, strconv.Itoa(year), "relative year")
	}

	if in.Endpoint.Kind == endpoint.KindSearch {
		text := strings.Join(searchTerms(a, in.Values), " ")
		if text == "" {
			text = a.Normalized
		}
		step.SetIfAbsent(PhaseSemantic, ParamQuery, text, "search text")
	}
}

// searchTerms prefers the labels of keyword entities, then the query's
// content words.
func searchTerms(a *query.Analysis, values []entity.Value) []string {
	var terms []string
	for _, v := range values {
		if k, ok := v.(entity.Keyword); ok {
			terms = append(terms, k.Name)
		}
	}
	if len(terms) > 0 {
		return terms
	}
	return a.Keywords
}

func (p *Pipeline) defaultPhase(step *Step, kind endpoint.Kind) {
	step.SetIfAbsent(PhaseDefault, ParamLanguage, p.cfg.Language, "default")
	switch kind {
	case endpoint.KindDiscovery, endpoint.KindSearch:
		step.SetIfAbsent(PhaseDefault, ParamIncludeAdult, "false", "default")
		step.SetIfAbsent(PhaseDefault, ParamPage, "1", "default")
	case endpoint.KindTrending:
		step.SetIfAbsent(PhaseDefault, ParamPage, "1", "default")
	}
}

// revenuePhase turns revenue constraints into a sort strategy plus
// post-fetch filters. When bounds disagree, a lower bound wins the sort so
// that the largest earners are fetched first.
func (p *Pipeline) revenuePhase(step *Step, tree *constraint.Tree) {
	var filters []RevenueFilter
	for _, l := range tree.Flatten() {
		if r, ok := l.Value.(entity.Revenue); ok {
			filters = append(filters, RevenueFilter{Threshold: r.Threshold, Op: r.Op})
		}
	}
	if len(filters) == 0 {
		return
	}
	sort.SliceStable(filters, func(i, j int) bool {
		return !filters[i].Op.IsUpper() && filters[j].Op.IsUpper()
	})
	step.Revenue = filters

	sortBy, reason := RevenueSort(filters[0].Op)
	step.Set(PhaseRevenue, ParamSortBy, sortBy, reason)
}

// RevenueSort maps a revenue operator to a sort order. Upper bounds sort by
// popularity so near-zero earners do not crowd out the answer; lower
// bounds sort by revenue. Operators outside the four comparisons are
// treated as lower bounds.
func RevenueSort(op entity.Operator) (sortBy, reason string) {
	switch op {
	case entity.LessThan, entity.LessThanEqual:
		return query.SortPopularityDesc, "revenue upper bound " + string(op)
	case entity.GreaterThan, entity.GreaterThanEqual:
		return query.SortRevenueDesc, "revenue lower bound " + string(op)
	default:
		return query.SortRevenueDesc, "revenue operator " + strconv.Quote(string(op)) + " defaulted to lower bound"
	}
}

// ApplySort applies a sort decision's overrides to the step. It runs after
// the pipeline and again after every relaxation.
func ApplySort(step *Step, d query.SortDecision) []query.Override {
	overrides := d.Overrides(step.Parameters)
	for _, o := range overrides {
		step.Set(PhaseSort, o.Key, o.Value, o.Reason)
	}
	return overrides
}

func personKey(r entity.Role) string {
	switch r {
	case entity.RoleCast:
		return ParamCastKey
	case entity.RoleCrew:
		return ParamCrewKey
	default:
		return constraint.KeyPeople
	}
}

func ratingKey(op entity.Operator) string {
	if op.IsUpper() {
		return ParamRatingMax
	}
	return ParamRatingMin
}

func runtimeKey(op entity.Operator) string {
	if op.IsUpper() {
		return ParamRuntimeMax
	}
	return ParamRuntimeMin
}

func idParam(id int) string {
	return strconv.Itoa(id)
}

func formatScore(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
