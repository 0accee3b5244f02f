package query

import (
	"github.com/reelquery/reelquery/internal/entity"
	"github.com/reelquery/reelquery/internal/pkg/logger"
)

// Analyzer classifies query text with keyword rules.
type Analyzer struct {
	sorter *SortStrategy
	log    *logger.Logger
}

// NewAnalyzer creates a rule-based analyzer.
func NewAnalyzer(sorter *SortStrategy, log *logger.Logger) *Analyzer {
	if log == nil {
		log = logger.Discard()
	}
	if sorter == nil {
		sorter = NewSortStrategy(DefaultMinVoteCount)
	}
	return &Analyzer{sorter: sorter, log: log}
}

// Analyze classifies the raw query. qt is the NLU question type; when it
// is empty or unknown the type is detected from the text. values are the
// parsed entities and feed media classification.
func (a *Analyzer) Analyze(text string, qt QuestionType, values []entity.Value) *Analysis {
	normalized := normalizeQuery(text)

	if !qt.Valid() {
		qt = DetectQuestionType(text)
	}

	media, reason := ClassifyMedia(normalized, values)

	result := &Analysis{
		Original:     text,
		Normalized:   normalized,
		Keywords:     Keywords(text),
		QuestionType: qt,
		Media:        media,
		MediaReason:  reason,
		Sort:         a.sorter.Decide(text, qt),
		QualityHint:  hasAny(normalized, QualityHintPatterns),
	}
	for _, phrase := range byLength(RelativeYearPatterns) {
		if containsPhrase(normalized, phrase) {
			offset := RelativeYearPatterns[phrase]
			result.RelativeYearOffset = &offset
			break
		}
	}

	a.log.Debug("Analyzed query",
		"original", text,
		"question_type", qt,
		"media", media.String(),
		"sort_intent", result.Sort.Intent,
		"keywords", len(result.Keywords),
	)

	return result
}

// ClassifyMedia decides which media types the answer may contain.
//
// A single explicit media_type entity wins. A TV-type entity (a network,
// or a tv media_type) together with TV words is TV only, whatever movie
// words the text also holds. Media_type entities naming both leave the
// query unrestricted. Otherwise TV signals (TV words or a network entity)
// and movie words are collected; a query with signals for only one side is
// restricted to it.
func ClassifyMedia(normalized string, values []entity.Value) (entity.MediaSet, string) {
	var explicit entity.MediaSet
	hasNetwork := false
	for _, v := range values {
		switch t := v.(type) {
		case entity.MediaType:
			switch t.Media {
			case entity.MediaMovie:
				explicit.Movie = true
			case entity.MediaTV:
				explicit.TV = true
			}
		case entity.Network:
			hasNetwork = true
		}
	}
	if m, ok := explicit.Single(); ok {
		return entity.Only(m), "media_type entity"
	}

	tvWords := hasAny(normalized, TVWords)
	if tvWords && (hasNetwork || explicit.TV) {
		return entity.Only(entity.MediaTV), "tv entity and tv wording"
	}
	if explicit.Movie && explicit.TV {
		return entity.AllMedia(), "media_type entities name both"
	}

	tv := tvWords || hasNetwork
	movie := hasAny(normalized, MovieWords)

	switch {
	case tv && !movie:
		if hasNetwork {
			return entity.Only(entity.MediaTV), "network entity"
		}
		return entity.Only(entity.MediaTV), "tv wording"
	case movie && !tv:
		return entity.Only(entity.MediaMovie), "movie wording"
	case tv && movie:
		return entity.AllMedia(), "mixed wording"
	default:
		return entity.AllMedia(), "no media signal"
	}
}
