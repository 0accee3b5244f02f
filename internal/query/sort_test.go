package query

import (
	"reflect"
	"testing"
)

func TestDetectSortIntent(t *testing.T) {
	tests := []struct {
		text   string
		want   SortIntent
		phrase string
	}{
		{"latest Nolan movies", IntentRecent, "latest"},
		{"the most recent Pixar films", IntentRecent, "most recent"},
		{"Tarantino movies in release order", IntentChronological, "in release order"},
		{"oldest Hitchcock films", IntentChronological, "oldest"},
		{"best horror movies", IntentQualityHigh, "best"},
		{"critically acclaimed dramas", IntentQualityHigh, "critically acclaimed"},
		{"worst rated sequels", IntentQualityLow, "worst rated"},
		{"newest of the best thrillers", IntentRecent, "newest"},
		{"bestseller adaptations", IntentNone, ""},
		{"movies with Tom Hanks", IntentNone, ""},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			got, phrase := DetectSortIntent(tt.text)
			if got != tt.want || phrase != tt.phrase {
				t.Errorf("DetectSortIntent() = (%s, %q), want (%s, %q)", got, phrase, tt.want, tt.phrase)
			}
		})
	}
}

func TestSortStrategy_Decide(t *testing.T) {
	s := NewSortStrategy(200)

	tests := []struct {
		name   string
		text   string
		qt     QuestionType
		sortBy string
		unset  bool
		votes  int
	}{
		{"temporal beats question type", "latest Scorsese films", QuestionTimeline, SortReleaseDesc, false, 0},
		{"quality adds vote floor", "top rated comedies", QuestionList, SortRatingDesc, false, 200},
		{"low quality adds vote floor", "lowest rated Marvel movies", QuestionList, SortRatingAsc, false, 200},
		{"timeline default", "Tom Hanks movies", QuestionTimeline, SortReleaseAsc, true, 0},
		{"list default", "horror movies", QuestionList, SortPopularityDesc, true, 0},
		{"fact has no default", "who directed Heat", QuestionFact, "", false, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := s.Decide(tt.text, tt.qt)
			if d.SortBy != tt.sortBy {
				t.Errorf("SortBy = %q, want %q", d.SortBy, tt.sortBy)
			}
			if d.OnlyIfUnset != tt.unset {
				t.Errorf("OnlyIfUnset = %v, want %v", d.OnlyIfUnset, tt.unset)
			}
			if d.MinVoteCount != tt.votes {
				t.Errorf("MinVoteCount = %d, want %d", d.MinVoteCount, tt.votes)
			}
		})
	}
}

func TestSortDecision_Overrides(t *testing.T) {
	quality := NewSortStrategy(200).Decide("best thrillers", QuestionList)
	listDefault := NewSortStrategy(200).Decide("thrillers", QuestionList)

	tests := []struct {
		name     string
		decision SortDecision
		params   map[string]string
		want     map[string]string
	}{
		{
			name:     "keyword intent replaces revenue sort",
			decision: quality,
			params:   map[string]string{"sort_by": "revenue.desc"},
			want:     map[string]string{"sort_by": "vote_average.desc", "vote_count.gte": "200"},
		},
		{
			name:     "higher vote floor is kept",
			decision: quality,
			params:   map[string]string{"sort_by": "vote_average.desc", "vote_count.gte": "500"},
			want:     map[string]string{},
		},
		{
			name:     "default fills unset sort",
			decision: listDefault,
			params:   map[string]string{},
			want:     map[string]string{"sort_by": "popularity.desc"},
		},
		{
			name:     "default never replaces existing sort",
			decision: listDefault,
			params:   map[string]string{"sort_by": "revenue.desc"},
			want:     map[string]string{},
		},
		{
			name:     "no intent",
			decision: SortDecision{Intent: IntentNone},
			params:   map[string]string{},
			want:     map[string]string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := map[string]string{}
			for _, o := range tt.decision.Overrides(tt.params) {
				got[o.Key] = o.Value
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Overrides() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSortDecision_OverridesAreStable(t *testing.T) {
	d := NewSortStrategy(0).Decide("best dramas", QuestionList)
	params := map[string]string{"sort_by": "popularity.desc"}

	first := d.Overrides(params)
	for _, o := range first {
		params[o.Key] = o.Value
	}
	if again := d.Overrides(params); len(again) != 0 {
		t.Errorf("re-applying overrides changed params again: %v", again)
	}
}
