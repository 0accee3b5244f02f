package query

import (
	"sort"
	"strings"
	"unicode"
)

// SortPatterns maps phrases to sort intents. Longer phrases are tried
// first.
var SortPatterns = map[string]SortIntent{
	"latest":               IntentRecent,
	"newest":               IntentRecent,
	"most recent":          IntentRecent,
	"recent":               IntentRecent,
	"recently released":    IntentRecent,
	"new releases":         IntentRecent,
	"chronological":        IntentChronological,
	"chronologically":      IntentChronological,
	"in order":             IntentChronological,
	"in release order":     IntentChronological,
	"earliest":             IntentChronological,
	"oldest":               IntentChronological,
	"first to last":        IntentChronological,
	"best":                 IntentQualityHigh,
	"top rated":            IntentQualityHigh,
	"top-rated":            IntentQualityHigh,
	"highest rated":        IntentQualityHigh,
	"highest-rated":        IntentQualityHigh,
	"greatest":             IntentQualityHigh,
	"worst":                IntentQualityLow,
	"lowest rated":         IntentQualityLow,
	"lowest-rated":         IntentQualityLow,
	"worst rated":          IntentQualityLow,
	"most hated":           IntentQualityLow,
	"critically panned":    IntentQualityLow,
	"best rated":           IntentQualityHigh,
	"critically acclaimed": IntentQualityHigh,
}

// QualityHintPatterns imply a quality floor without dictating order.
var QualityHintPatterns = []string{
	"acclaimed",
	"award winning",
	"award-winning",
	"good",
	"great",
	"highly rated",
	"well reviewed",
	"well-reviewed",
	"must see",
	"must-see",
}

// RelativeYearPatterns map phrases to a year offset from the reference
// time.
var RelativeYearPatterns = map[string]int{
	"this year": 0,
	"last year": -1,
}

// TimelinePatterns mark a timeline question when the NLU gave none.
var TimelinePatterns = []string{"timeline", "career", "filmography", "in order", "chronological", "over the years"}

// FactPatterns mark a fact question when the NLU gave none.
var FactPatterns = []string{"what was the", "which was the", "who directed", "how many", "what is the", "when did"}

// TVWords and MovieWords classify the media type from text.
var (
	TVWords    = []string{"tv", "tv show", "shows", "series", "sitcom", "sitcoms", "season", "seasons", "episode", "episodes", "miniseries", "docuseries"}
	MovieWords = []string{"movie", "movies", "film", "films", "feature", "features", "cinema", "flick", "flicks"}
)

var stopWords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "as": true, "at": true,
	"be": true, "by": true, "for": true, "from": true, "has": true, "he": true,
	"in": true, "is": true, "it": true, "its": true, "of": true, "on": true,
	"that": true, "the": true, "to": true, "was": true, "will": true, "with": true,
	"i": true, "me": true, "my": true, "we": true, "you": true, "your": true,
	"this": true, "these": true, "those": true, "there": true, "their": true,
	"what": true, "which": true, "who": true, "some": true, "any": true,
	"give": true, "list": true, "find": true, "all": true, "please": true,
}

// normalizeQuery lowercases, strips punctuation except hyphens and
// collapses whitespace.
func normalizeQuery(query string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(query) {
		switch {
		case unicode.IsLetter(r) || unicode.IsNumber(r) || r == '-' || r == '\'':
			b.WriteRune(r)
		default:
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// Keywords returns the content words of a query in order, without
// duplicates.
func Keywords(query string) []string {
	words := strings.Fields(normalizeQuery(query))
	seen := make(map[string]bool, len(words))
	out := make([]string, 0, len(words))
	for _, w := range words {
		w = strings.Trim(w, "-'")
		if len(w) < 2 || stopWords[w] || seen[w] {
			continue
		}
		seen[w] = true
		out = append(out, w)
	}
	return out
}

// containsPhrase matches whole words only, so "best" does not match
// "bestseller".
func containsPhrase(normalized, phrase string) bool {
	return strings.Contains(" "+normalized+" ", " "+phrase+" ")
}

// byLength returns keys longest first, ties broken alphabetically.
func byLength[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if len(keys[i]) != len(keys[j]) {
			return len(keys[i]) > len(keys[j])
		}
		return keys[i] < keys[j]
	})
	return keys
}

// DetectSortIntent returns the highest-priority sort intent named in the
// text and the phrase that matched. Temporal intents outrank quality
// intents; within a class the longest phrase wins.
func DetectSortIntent(text string) (SortIntent, string) {
	normalized := normalizeQuery(text)

	var quality SortIntent
	var qualityPhrase string
	for _, phrase := range byLength(SortPatterns) {
		if !containsPhrase(normalized, phrase) {
			continue
		}
		intent := SortPatterns[phrase]
		switch intent {
		case IntentRecent, IntentChronological:
			return intent, phrase
		default:
			if quality == "" {
				quality, qualityPhrase = intent, phrase
			}
		}
	}
	if quality != "" {
		return quality, qualityPhrase
	}
	return IntentNone, ""
}

// DetectQuestionType guesses the question type from text.
func DetectQuestionType(text string) QuestionType {
	normalized := normalizeQuery(text)
	for _, p := range TimelinePatterns {
		if containsPhrase(normalized, p) {
			return QuestionTimeline
		}
	}
	for _, p := range FactPatterns {
		if containsPhrase(normalized, p) {
			return QuestionFact
		}
	}
	return QuestionList
}

func hasAny(normalized string, words []string) bool {
	for _, w := range words {
		if containsPhrase(normalized, w) {
			return true
		}
	}
	return false
}
