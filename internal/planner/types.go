package planner

import (
	"github.com/reelquery/reelquery/internal/constraint"
	"github.com/reelquery/reelquery/internal/endpoint"
	"github.com/reelquery/reelquery/internal/entity"
	"github.com/reelquery/reelquery/internal/execute"
	"github.com/reelquery/reelquery/internal/inject"
	"github.com/reelquery/reelquery/internal/lookup"
	"github.com/reelquery/reelquery/internal/provenance"
	"github.com/reelquery/reelquery/internal/query"
	"github.com/reelquery/reelquery/internal/relax"
)

// Request is one query as handed over by the NLU step.
type Request struct {
	// QueryID identifies the query in logs and events. Generated when empty.
	QueryID string `json:"query_id,omitempty"`

	// Query is the raw user text.
	Query string `json:"query" validate:"required_without=Entities,max=2000"`

	// Entities are the extracted entities, in extraction order.
	Entities []entity.ExtractedEntity `json:"entities"`

	// QuestionType is list, fact or timeline. Detected from the text when
	// empty.
	QuestionType query.QuestionType `json:"question_type,omitempty"`

	// ResponseFormat is echoed to the rendering layer. Defaults to the
	// question type.
	ResponseFormat string `json:"response_format,omitempty"`
}

// ResultEnvelope is the answer handed to the rendering layer.
type ResultEnvelope struct {
	QueryID         string             `json:"query_id"`
	Entries         []execute.Entry    `json:"entries"`
	ResponseFormat  string             `json:"response_format"`
	ProvenanceTrail []provenance.Entry `json:"provenance_trail"`
	Relaxations     []relax.Event      `json:"relaxations"`
	FinalState      relax.State        `json:"final_state"`
	Endpoint        string             `json:"endpoint,omitempty"`
	Parameters      map[string]string  `json:"parameters,omitempty"`
	Metadata        Metadata           `json:"metadata"`
}

// Metadata describes how the answer was produced.
type Metadata struct {
	QuestionType query.QuestionType     `json:"question_type"`
	Media        string                 `json:"media"`
	MediaReason  string                 `json:"media_reason,omitempty"`
	SortIntent   query.SortIntent       `json:"sort_intent"`
	Rule         string                 `json:"rule,omitempty"`
	Revenue      []inject.RevenueFilter `json:"revenue,omitempty"`
	Attempts     int                    `json:"attempts"`
	Bypassed     bool                   `json:"bypassed"`
	Fetched      int                    `json:"fetched"`
	Rejected     int                    `json:"rejected"`
	Resolutions  []lookup.Resolution    `json:"resolutions,omitempty"`

	// TimingsMs holds the time spent per stage, summed over attempts.
	TimingsMs map[string]int64 `json:"timings_ms"`
	LatencyMs int64            `json:"latency_ms"`
}

// ConstraintView is one leaf of the tree as reported by a plan.
type ConstraintView struct {
	Key    string `json:"key"`
	Value  string `json:"value"`
	Tier   string `json:"tier"`
	Entity int    `json:"entity"`
}

// Call is a step rendered in the chosen endpoint's parameter spelling.
type Call struct {
	Path   string            `json:"path"`
	Params map[string]string `json:"params"`
}

// Plan is a dry run: everything up to, but not including, the API call.
type Plan struct {
	QueryID         string              `json:"query_id"`
	Analysis        *query.Analysis     `json:"analysis"`
	Tree            string              `json:"tree"`
	Constraints     []ConstraintView    `json:"constraints"`
	Selection       *endpoint.Selection `json:"selection,omitempty"`
	Step            *inject.Step        `json:"step,omitempty"`
	Call            *Call               `json:"call,omitempty"`
	Bypass          bool                `json:"bypass"`
	ProvenanceTrail []provenance.Entry  `json:"provenance_trail"`

	// SelectionError is set when no endpoint cleared the coverage
	// threshold; an answer would start relaxing from here.
	SelectionError string `json:"selection_error,omitempty"`
}

// AnswerSummary is the payload published for every answered query.
type AnswerSummary struct {
	QueryID     string      `json:"query_id"`
	Query       string      `json:"query"`
	Endpoint    string      `json:"endpoint,omitempty"`
	FinalState  relax.State `json:"final_state"`
	Results     int         `json:"results"`
	Relaxations int         `json:"relaxations"`
	LatencyMs   int64       `json:"latency_ms"`
	Error       string      `json:"error,omitempty"`
}

// RelaxationNotice is the payload published for every relaxation step.
type RelaxationNotice struct {
	QueryID string      `json:"query_id"`
	Event   relax.Event `json:"event"`
}

func constraintViews(tree *constraint.Tree) []ConstraintView {
	leaves := tree.Flatten()
	out := make([]ConstraintView, 0, len(leaves))
	for _, l := range leaves {
		out = append(out, ConstraintView{Key: l.Key, Value: l.Value.Label(), Tier: l.Tier.String(), Entity: l.Entity})
	}
	return out
}
