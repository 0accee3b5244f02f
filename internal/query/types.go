// Package query classifies the raw query text: question type, media type
// and sort intent. It never extracts entities; those come from the NLU step.
package query

import "github.com/reelquery/reelquery/internal/entity"

// QuestionType is the shape of answer the user asked for.
type QuestionType string

const (
	// QuestionList asks for several items.
	QuestionList QuestionType = "list"

	// QuestionFact asks for a single fact or item.
	QuestionFact QuestionType = "fact"

	// QuestionTimeline asks for items in chronological order.
	QuestionTimeline QuestionType = "timeline"
)

// Valid reports whether q is a known question type.
func (q QuestionType) Valid() bool {
	switch q {
	case QuestionList, QuestionFact, QuestionTimeline:
		return true
	default:
		return false
	}
}

// SortIntent is the ordering the query text asks for.
type SortIntent string

const (
	IntentNone          SortIntent = "none"
	IntentRecent        SortIntent = "temporal_recent"
	IntentChronological SortIntent = "temporal_chronological"
	IntentQualityHigh   SortIntent = "quality_high"
	IntentQualityLow    SortIntent = "quality_low"
	IntentPopular       SortIntent = "question_default"
)

// Canonical sort values. Endpoint-specific date keys are substituted at
// dispatch.
const (
	SortPopularityDesc = "popularity.desc"
	SortRatingDesc     = "vote_average.desc"
	SortRatingAsc      = "vote_average.asc"
	SortReleaseDesc    = "release_date.desc"
	SortReleaseAsc     = "release_date.asc"
	SortRevenueDesc    = "revenue.desc"
)

// Analysis is the result of classifying a query.
type Analysis struct {
	// Original is the raw user query.
	Original string `json:"original"`

	// Normalized is the lowercased, whitespace-collapsed query.
	Normalized string `json:"normalized"`

	// Keywords are the content words of the query.
	Keywords []string `json:"keywords"`

	// QuestionType is the NLU question type, or the detected one when the
	// NLU left it empty.
	QuestionType QuestionType `json:"question_type"`

	// Media is the set of media types the answer may contain.
	Media entity.MediaSet `json:"media"`

	// MediaReason explains how Media was decided.
	MediaReason string `json:"media_reason"`

	// Sort is the detected sort intent.
	Sort SortDecision `json:"sort"`

	// QualityHint is set when the text implies well-rated results without
	// asking for an explicit ordering, e.g. "acclaimed".
	QualityHint bool `json:"quality_hint"`

	// RelativeYearOffset is the year offset implied by phrases like
	// "last year", relative to the reference time. Nil if none.
	RelativeYearOffset *int `json:"relative_year_offset,omitempty"`
}
