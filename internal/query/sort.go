package query

import "strconv"

// DefaultMinVoteCount is the vote floor injected with quality sorts.
const DefaultMinVoteCount = 200

// SortDecision is the ordering chosen for a query.
type SortDecision struct {
	Intent SortIntent `json:"intent"`

	// SortBy is the canonical sort value, empty when the query names none.
	SortBy string `json:"sort_by,omitempty"`

	// OnlyIfUnset marks question-type defaults, which never replace an
	// ordering chosen earlier in the pipeline.
	OnlyIfUnset bool `json:"only_if_unset,omitempty"`

	// MinVoteCount is the vote floor that accompanies quality sorts.
	MinVoteCount int `json:"min_vote_count,omitempty"`

	// Matched is the phrase that triggered the intent.
	Matched string `json:"matched,omitempty"`
}

// Override is one parameter change requested by a sort decision.
type Override struct {
	Key    string
	Value  string
	Reason string
}

// Parameter keys touched by the sort strategy.
const (
	KeySortBy       = "sort_by"
	KeyMinVoteCount = "vote_count.gte"
)

// SortStrategy turns query wording into an ordering.
//
// Priority: temporal keywords, then quality keywords, then the
// question-type default (chronological for timelines, popularity for
// lists, nothing for facts).
type SortStrategy struct {
	minVoteCount int
}

// NewSortStrategy creates a strategy that pairs quality sorts with the
// given vote floor.
func NewSortStrategy(minVoteCount int) *SortStrategy {
	if minVoteCount <= 0 {
		minVoteCount = DefaultMinVoteCount
	}
	return &SortStrategy{minVoteCount: minVoteCount}
}

// Decide classifies the text into a sort decision.
func (s *SortStrategy) Decide(text string, qt QuestionType) SortDecision {
	intent, phrase := DetectSortIntent(text)
	switch intent {
	case IntentRecent:
		return SortDecision{Intent: intent, SortBy: SortReleaseDesc, Matched: phrase}
	case IntentChronological:
		return SortDecision{Intent: intent, SortBy: SortReleaseAsc, Matched: phrase}
	case IntentQualityHigh:
		return SortDecision{Intent: intent, SortBy: SortRatingDesc, MinVoteCount: s.minVoteCount, Matched: phrase}
	case IntentQualityLow:
		return SortDecision{Intent: intent, SortBy: SortRatingAsc, MinVoteCount: s.minVoteCount, Matched: phrase}
	}

	switch qt {
	case QuestionTimeline:
		return SortDecision{Intent: IntentChronological, SortBy: SortReleaseAsc, OnlyIfUnset: true, Matched: "question_type=timeline"}
	case QuestionList:
		return SortDecision{Intent: IntentPopular, SortBy: SortPopularityDesc, OnlyIfUnset: true, Matched: "question_type=list"}
	default:
		return SortDecision{Intent: IntentNone}
	}
}

// Overrides returns the parameter changes the decision makes against the
// current parameters. It is pure: applying the same decision to the same
// parameters always yields the same changes, so it can be re-applied after
// every relaxation step.
func (d SortDecision) Overrides(params map[string]string) []Override {
	var out []Override

	if d.SortBy != "" {
		current, set := params[KeySortBy]
		switch {
		case d.OnlyIfUnset && set:
		case current == d.SortBy:
		default:
			out = append(out, Override{Key: KeySortBy, Value: d.SortBy, Reason: "sort intent " + string(d.Intent) + " (" + d.Matched + ")"})
		}
	}

	if d.MinVoteCount > 0 {
		current, _ := strconv.Atoi(params[KeyMinVoteCount])
		if current < d.MinVoteCount {
			out = append(out, Override{
				Key:    KeyMinVoteCount,
				Value:  strconv.Itoa(d.MinVoteCount),
				Reason: "vote floor for " + string(d.Intent),
			})
		}
	}
	return out
}
