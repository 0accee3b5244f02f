package evaluation

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/reelquery/reelquery/internal/endpoint"
	"github.com/reelquery/reelquery/internal/retrieval"
)

func near(a, b float64) bool { return math.Abs(a-b) < 1e-4 }

func TestMetrics(t *testing.T) {
	ranked := []int{3, 0, 1}
	ideal := []int{3, 1}

	tests := []struct {
		name string
		got  float64
		want float64
	}{
		{"ndcg@1", NDCG(ranked, ideal, 1), 1},
		{"ndcg@3", NDCG(ranked, ideal, 3), 3.5 / (3 + 1/math.Log2(3))},
		{"ndcg@0", NDCG(ranked, ideal, 0), 0},
		{"ndcg no relevant", NDCG([]int{0, 0}, []int{0}, 2), 0},
		{"recall@1", Recall(ranked, 2, 1, 1), 0.5},
		{"recall@3", Recall(ranked, 2, 3, 1), 1},
		{"recall@10 clamps", Recall(ranked, 2, 10, 1), 1},
		{"recall none judged", Recall(ranked, 0, 3, 1), 0},
		{"precision@3", Precision(ranked, 3, 1), 2.0 / 3},
		{"precision@2", Precision(ranked, 2, 1), 0.5},
		{"precision empty", Precision(nil, 3, 1), 0},
		{"rr", ReciprocalRank(ranked, 1), 1},
		{"rr second", ReciprocalRank([]int{0, 2}, 1), 0.5},
		{"rr none", ReciprocalRank([]int{0, 0}, 1), 0},
		{"ap", AveragePrecision(ranked, 2, 1), (1 + 2.0/3) / 2},
		{"ap missed endpoint", AveragePrecision([]int{2}, 2, 1), 0.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !near(tt.got, tt.want) {
				t.Errorf("got %.4f, want %.4f", tt.got, tt.want)
			}
		})
	}
}

type fixedRetriever struct {
	matches []endpoint.Match
	err     error
}

func (f fixedRetriever) Retrieve(context.Context, string) ([]endpoint.Match, error) {
	return f.matches, f.err
}

func TestEvaluate(t *testing.T) {
	r := fixedRetriever{matches: []endpoint.Match{
		{Path: "/discover/movie", Score: 0.9},
		{Path: "/search/movie", Score: 0.5},
		{Path: "/person/{person_id}/movie_credits", Score: 0.4},
	}}
	set := &JudgmentSet{Queries: []JudgedQuery{
		{ID: "a", Query: "films with two actors", Relevant: map[string]int{
			"/discover/movie":                   3,
			"/person/{person_id}/movie_credits": 1,
		}},
		{ID: "b", Query: "tom hanks filmography", Relevant: map[string]int{
			"/person/{person_id}/movie_credits": 3,
		}},
	}}

	results, summary, err := NewEvaluator(r).Evaluate(context.Background(), set, nil)
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if len(results) != 2 || summary.QueryCount != 2 {
		t.Fatalf("results = %d, summary = %+v", len(results), summary)
	}
	if results[0].MRR != 1 || !near(results[1].MRR, 1.0/3) {
		t.Errorf("MRR = %v, %v", results[0].MRR, results[1].MRR)
	}
	if results[1].Precision[1] != 0 || results[1].Recall[3] != 1 {
		t.Errorf("b precision@1 = %v recall@3 = %v", results[1].Precision[1], results[1].Recall[3])
	}
	if len(results[0].Ranking) != 3 || results[0].Ranking[0] != "/discover/movie" {
		t.Errorf("ranking = %v", results[0].Ranking)
	}
	if !near(summary.MeanMRR, (1+1.0/3)/2) {
		t.Errorf("mean MRR = %v", summary.MeanMRR)
	}
	for _, k := range DefaultKs {
		if _, ok := summary.MeanNDCG[k]; !ok {
			t.Errorf("mean NDCG@%d missing", k)
		}
	}
}

func TestEvaluateRetrieverError(t *testing.T) {
	set := &JudgmentSet{Queries: []JudgedQuery{{ID: "a", Query: "x"}}}
	_, _, err := NewEvaluator(fixedRetriever{err: errors.New("qdrant down")}).Evaluate(context.Background(), set, []int{1})
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestCatalogRetrieverBaseline(t *testing.T) {
	set := &JudgmentSet{Queries: []JudgedQuery{
		{ID: "trending", Query: "what is trending this week", Relevant: map[string]int{
			"/trending/movie/week": 3,
			"/trending/tv/week":    3,
		}},
	}}
	results, _, err := NewEvaluator(retrieval.NewCatalogRetriever(nil)).Evaluate(context.Background(), set, []int{2})
	if err != nil {
		t.Fatal(err)
	}
	if results[0].MRR == 0 {
		t.Errorf("no trending endpoint retrieved: %v", results[0].Ranking)
	}
}

func TestLoadJudgments(t *testing.T) {
	path := filepath.Join(t.TempDir(), "judgments.yaml")
	data := `queries:
  - query: "crime shows on HBO"
    relevant:
      /discover/tv: 3
  - id: custom
    query: "top rated comedies"
    relevant:
      /discover/movie: 2
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	set, err := LoadJudgments(path)
	if err != nil {
		t.Fatalf("LoadJudgments() error = %v", err)
	}
	if len(set.Queries) != 2 {
		t.Fatalf("queries = %d", len(set.Queries))
	}
	if set.Queries[0].ID != "q1" || set.Queries[1].ID != "custom" {
		t.Errorf("ids = %q, %q", set.Queries[0].ID, set.Queries[1].ID)
	}
	if set.Queries[0].Relevant["/discover/tv"] != 3 {
		t.Errorf("relevant = %v", set.Queries[0].Relevant)
	}

	if err := os.WriteFile(path, []byte("queries:\n  - id: empty\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadJudgments(path); err == nil {
		t.Error("expected error for a query without text")
	}
}
