package query

import (
	"reflect"
	"testing"

	"github.com/reelquery/reelquery/internal/entity"
)

func TestClassifyMedia(t *testing.T) {
	tests := []struct {
		name   string
		text   string
		values []entity.Value
		want   entity.MediaSet
	}{
		{
			name:   "shows with a network entity are tv only",
			text:   "comedy shows on Netflix",
			values: []entity.Value{entity.Genre{Name: "comedy"}, entity.Network{Name: "Netflix"}},
			want:   entity.MediaSet{TV: true},
		},
		{
			name:   "shows with a media type entity are tv only",
			text:   "best crime shows",
			values: []entity.Value{entity.MediaType{Media: entity.MediaTV}},
			want:   entity.MediaSet{TV: true},
		},
		{
			name:   "explicit movie entity wins over wording",
			text:   "series of films",
			values: []entity.Value{entity.MediaType{Media: entity.MediaMovie}},
			want:   entity.MediaSet{Movie: true},
		},
		{
			name:   "network and shows stay tv only next to movie words",
			text:   "hbo shows based on movies",
			values: []entity.Value{entity.Network{Name: "HBO"}},
			want:   entity.MediaSet{TV: true},
		},
		{
			name: "tv and movie media types with tv wording are tv only",
			text: "shows like the film",
			values: []entity.Value{
				entity.MediaType{Media: entity.MediaTV},
				entity.MediaType{Media: entity.MediaMovie},
			},
			want: entity.MediaSet{TV: true},
		},
		{
			name: "tv and movie media types without tv wording are unrestricted",
			text: "Spielberg films",
			values: []entity.Value{
				entity.MediaType{Media: entity.MediaTV},
				entity.MediaType{Media: entity.MediaMovie},
			},
			want: entity.AllMedia(),
		},
		{
			name:   "network without tv wording but with movie words is mixed",
			text:   "hbo films",
			values: []entity.Value{entity.Network{Name: "HBO"}},
			want:   entity.AllMedia(),
		},
		{
			name: "movie wording",
			text: "Scorsese films",
			want: entity.MediaSet{Movie: true},
		},
		{
			name: "show me is not tv wording",
			text: "show me Nolan movies",
			want: entity.MediaSet{Movie: true},
		},
		{
			name: "no signal is unrestricted",
			text: "Tom Hanks",
			want: entity.AllMedia(),
		},
		{
			name: "both signals are unrestricted",
			text: "movies and tv series by Spielberg",
			want: entity.AllMedia(),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, reason := ClassifyMedia(normalizeQuery(tt.text), tt.values)
			if got != tt.want {
				t.Errorf("ClassifyMedia() = %s (%s), want %s", got, reason, tt.want)
			}
		})
	}
}

func TestAnalyzer_Analyze(t *testing.T) {
	a := NewAnalyzer(nil, nil)

	got := a.Analyze("What were the best HBO shows last year?", "", []entity.Value{entity.Network{Name: "HBO"}})

	if got.QuestionType != QuestionList {
		t.Errorf("QuestionType = %s, want list", got.QuestionType)
	}
	if m, ok := got.Media.Single(); !ok || m != entity.MediaTV {
		t.Errorf("Media = %s, want tv", got.Media)
	}
	if got.Sort.Intent != IntentQualityHigh {
		t.Errorf("Sort.Intent = %s, want %s", got.Sort.Intent, IntentQualityHigh)
	}
	if got.RelativeYearOffset == nil || *got.RelativeYearOffset != -1 {
		t.Errorf("RelativeYearOffset = %v, want -1", got.RelativeYearOffset)
	}
	if got.Normalized != "what were the best hbo shows last year" {
		t.Errorf("Normalized = %q", got.Normalized)
	}
}

func TestAnalyzer_KeepsNLUQuestionType(t *testing.T) {
	a := NewAnalyzer(nil, nil)
	got := a.Analyze("Tom Hanks filmography", QuestionFact, nil)
	if got.QuestionType != QuestionFact {
		t.Errorf("QuestionType = %s, want fact", got.QuestionType)
	}

	got = a.Analyze("Tom Hanks filmography", "", nil)
	if got.QuestionType != QuestionTimeline {
		t.Errorf("detected QuestionType = %s, want timeline", got.QuestionType)
	}
}

func TestAnalyzer_QualityHint(t *testing.T) {
	a := NewAnalyzer(nil, nil)
	if !a.Analyze("highly rated sci-fi", QuestionList, nil).QualityHint {
		t.Error("expected quality hint for 'highly rated'")
	}
	if a.Analyze("sci-fi movies", QuestionList, nil).QualityHint {
		t.Error("unexpected quality hint")
	}
}

func TestKeywords(t *testing.T) {
	got := Keywords("Show me the BEST sci-fi movies, with the best effects!")
	want := []string{"show", "best", "sci-fi", "movies", "effects"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Keywords() = %v, want %v", got, want)
	}
}

func TestDetectQuestionType(t *testing.T) {
	tests := map[string]QuestionType{
		"Kubrick filmography":         QuestionTimeline,
		"how many Oscars did it win":  QuestionFact,
		"who directed Jaws":           QuestionFact,
		"thrillers from the nineties": QuestionList,
	}
	for text, want := range tests {
		if got := DetectQuestionType(text); got != want {
			t.Errorf("DetectQuestionType(%q) = %s, want %s", text, got, want)
		}
	}
}
