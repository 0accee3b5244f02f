package endpoint

import (
	"fmt"
	"math"
	"sort"

	"github.com/reelquery/reelquery/internal/constraint"
	"github.com/reelquery/reelquery/internal/entity"
	apperrors "github.com/reelquery/reelquery/internal/pkg/errors"
	"github.com/reelquery/reelquery/internal/pkg/logger"
)

// ScorerConfig weights the three scoring signals.
type ScorerConfig struct {
	// SemanticWeight weights the retrieval similarity.
	SemanticWeight float64

	// CoverageWeight weights primary-constraint coverage.
	CoverageWeight float64

	// PriorWeight weights the static performance prior.
	PriorWeight float64

	// TieMargin is how far below the leader a credits endpoint may score
	// and still win the single-person tie-break.
	TieMargin float64

	// MinCoverage is the coverage a candidate needs to be selectable.
	MinCoverage float64
}

// DefaultScorerConfig returns the default weights.
func DefaultScorerConfig() ScorerConfig {
	return ScorerConfig{
		SemanticWeight: 0.5,
		CoverageWeight: 0.35,
		PriorWeight:    0.15,
		TieMargin:      0.15,
		MinCoverage:    0.5,
	}
}

// Scored is a candidate with its computed score.
type Scored struct {
	Candidate
	Coverage float64 `json:"coverage"`
	Score    float64 `json:"score"`
}

// Selection is the outcome of endpoint selection.
type Selection struct {
	Scored

	// Rule names the tie-break that picked the endpoint, if any.
	Rule string `json:"rule,omitempty"`

	// Ranking is the full ranking the choice was made from.
	Ranking []Scored `json:"ranking"`
}

// Tie-break rule names.
const (
	RuleBest           = "best_score"
	RulePreferDiscover = "prefer_discovery_multi_tier"
	RulePreferCredits  = "prefer_credits_single_person"
)

// Scorer ranks endpoint candidates against a constraint tree.
type Scorer struct {
	cfg ScorerConfig
	log *logger.Logger
}

// NewScorer creates a scorer.
func NewScorer(cfg ScorerConfig, log *logger.Logger) *Scorer {
	if log == nil {
		log = logger.Discard()
	}
	return &Scorer{cfg: cfg, log: log}
}

// Coverage is the fraction of primary leaves the candidate can express.
// With no primary constraints every candidate covers the query fully.
func Coverage(c Candidate, tree *constraint.Tree) float64 {
	primary := tree.LeavesIn(constraint.Primary)
	if len(primary) == 0 {
		return 1
	}

	counts := make(map[string]int)
	var keys []string
	for _, l := range primary {
		if counts[l.Key] == 0 {
			keys = append(keys, l.Key)
		}
		counts[l.Key]++
	}

	expressed := 0
	for _, k := range keys {
		expressed += c.Expresses(k, counts[k])
	}
	return float64(expressed) / float64(len(primary))
}

// Rank scores every dispatchable candidate allowed by media and orders them
// by score, then kind, then path. A credits listing is scoped to one
// person, so credits endpoints are ranked only when the tree names
// exactly one.
func (s *Scorer) Rank(cands []Candidate, tree *constraint.Tree, media entity.MediaSet) []Scored {
	single := personCount(tree) == 1
	out := make([]Scored, 0, len(cands))
	for _, c := range cands {
		if !media.Allows(c.Media) || !dispatchable(c, single) {
			continue
		}
		cov := Coverage(c, tree)
		score := s.cfg.SemanticWeight*c.SemanticScore +
			s.cfg.CoverageWeight*cov +
			s.cfg.PriorWeight*c.PerformancePrior
		out = append(out, Scored{Candidate: c, Coverage: cov, Score: score})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		if out[i].Kind.rank() != out[j].Kind.rank() {
			return out[i].Kind.rank() < out[j].Kind.rank()
		}
		return out[i].Path < out[j].Path
	})
	return out
}

// Select picks the endpoint for the tree. Candidates below MinCoverage are
// not selectable; if none remain, an endpoint selection error is returned.
//
// Tie-breaks, in order:
//  1. more than one tier present: the best viable discovery endpoint beats
//     a leading search endpoint, however far behind it scores.
//  2. exactly one constraint and it is a person: a credits endpoint within
//     TieMargin of the leader wins.
func (s *Scorer) Select(cands []Candidate, tree *constraint.Tree, media entity.MediaSet) (Selection, error) {
	ranking := s.Rank(cands, tree, media)

	var viable []Scored
	for _, r := range ranking {
		if r.Coverage >= s.cfg.MinCoverage {
			viable = append(viable, r)
		}
	}
	if len(viable) == 0 {
		return Selection{Ranking: ranking}, apperrors.EndpointSelectionError(
			fmt.Sprintf("no endpoint covers at least %.0f%% of the primary constraints", s.cfg.MinCoverage*100)).
			WithDetail("candidates", fmt.Sprintf("%d", len(ranking))).
			WithDetail("media", media.String())
	}

	best := viable[0]
	sel := Selection{Scored: best, Rule: RuleBest, Ranking: ranking}

	if tree.TierCount() > 1 && best.Kind == KindSearch {
		if alt, ok := firstWithin(viable, KindDiscovery, best.Score, math.Inf(1)); ok {
			sel.Scored, sel.Rule = alt, RulePreferDiscover
		}
	}

	if isSinglePerson(tree) && best.Kind != KindCredits {
		if alt, ok := firstWithin(viable, KindCredits, best.Score, s.cfg.TieMargin); ok {
			sel.Scored, sel.Rule = alt, RulePreferCredits
		}
	}

	s.log.Debug("Selected endpoint",
		"path", sel.Path,
		"score", sel.Score,
		"coverage", sel.Coverage,
		"rule", sel.Rule,
		"candidates", len(ranking),
	)
	return sel, nil
}

// BestSemantic returns the media-compatible candidate with the highest
// retrieval score, ignoring coverage. Credits endpoints need a person in
// the tree to fill their path and are skipped otherwise. Ties prefer the
// lower kind rank.
func (s *Scorer) BestSemantic(cands []Candidate, tree *constraint.Tree, media entity.MediaSet) (Candidate, bool) {
	person := personCount(tree) > 0

	var best Candidate
	found := false
	for _, c := range cands {
		if !media.Allows(c.Media) || !dispatchable(c, person) {
			continue
		}
		if !found || c.SemanticScore > best.SemanticScore ||
			(c.SemanticScore == best.SemanticScore && c.Kind.rank() < best.Kind.rank()) {
			best, found = c, true
		}
	}
	return best, found
}

func firstWithin(viable []Scored, kind Kind, leader, margin float64) (Scored, bool) {
	for _, v := range viable {
		if v.Kind == kind && leader-v.Score <= margin {
			return v, true
		}
	}
	return Scored{}, false
}

func isSinglePerson(tree *constraint.Tree) bool {
	leaves := tree.Flatten()
	return len(leaves) == 1 && leaves[0].Key == constraint.KeyPeople
}

func personCount(tree *constraint.Tree) int {
	n := 0
	for _, l := range tree.Flatten() {
		if l.Key == constraint.KeyPeople {
			n++
		}
	}
	return n
}

// dispatchable reports whether the candidate's path can be filled: credits
// endpoints take their person id from the tree.
func dispatchable(c Candidate, person bool) bool {
	return c.Kind != KindCredits || person
}
