// Package evaluation measures how well endpoint retrieval ranks the
// catalog against human judgments.
package evaluation

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/reelquery/reelquery/internal/retrieval"
)

// DefaultKs are the cutoffs reported when none are given.
var DefaultKs = []int{1, 3, 5}

// hitGrade is the lowest grade that counts as relevant.
const hitGrade = 1

// Evaluator runs judged queries through a retriever.
type Evaluator struct {
	retriever retrieval.Retriever
}

// NewEvaluator creates an evaluator.
func NewEvaluator(r retrieval.Retriever) *Evaluator {
	return &Evaluator{retriever: r}
}

// LoadJudgments reads a judgment set from a YAML (or JSON) file.
func LoadJudgments(path string) (*JudgmentSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading judgments: %w", err)
	}
	var set JudgmentSet
	if err := yaml.Unmarshal(data, &set); err != nil {
		return nil, fmt.Errorf("parsing judgments: %w", err)
	}
	for i, q := range set.Queries {
		if q.Query == "" {
			return nil, fmt.Errorf("judged query %d has no text", i)
		}
		if q.ID == "" {
			set.Queries[i].ID = fmt.Sprintf("q%d", i+1)
		}
	}
	return &set, nil
}

// EvaluateQuery ranks the catalog for one judged query.
func (e *Evaluator) EvaluateQuery(ctx context.Context, q JudgedQuery, ks []int) (*Result, error) {
	matches, err := e.retriever.Retrieve(ctx, q.Query)
	if err != nil {
		return nil, fmt.Errorf("retrieving %s: %w", q.ID, err)
	}

	ranking := make([]string, len(matches))
	ranked := make([]int, len(matches))
	for i, m := range matches {
		ranking[i] = m.Path
		ranked[i] = q.Relevant[m.Path]
	}

	ideal := make([]int, 0, len(q.Relevant))
	total := 0
	for _, g := range q.Relevant {
		ideal = append(ideal, g)
		if g >= hitGrade {
			total++
		}
	}

	res := &Result{
		QueryID:   q.ID,
		Query:     q.Query,
		Ranking:   ranking,
		NDCG:      make(map[int]float64, len(ks)),
		Recall:    make(map[int]float64, len(ks)),
		Precision: make(map[int]float64, len(ks)),
		MRR:       ReciprocalRank(ranked, hitGrade),
		AP:        AveragePrecision(ranked, total, hitGrade),
	}
	for _, k := range ks {
		res.NDCG[k] = NDCG(ranked, ideal, k)
		res.Recall[k] = Recall(ranked, total, k, hitGrade)
		res.Precision[k] = Precision(ranked, k, hitGrade)
	}
	return res, nil
}

// Evaluate runs every query in set. A failing query aborts the run.
func (e *Evaluator) Evaluate(ctx context.Context, set *JudgmentSet, ks []int) ([]*Result, *Summary, error) {
	if len(ks) == 0 {
		ks = DefaultKs
	}
	results := make([]*Result, 0, len(set.Queries))
	for _, q := range set.Queries {
		r, err := e.EvaluateQuery(ctx, q, ks)
		if err != nil {
			return nil, nil, err
		}
		results = append(results, r)
	}
	return results, Summarize(results), nil
}

// Summarize averages results across queries.
func Summarize(results []*Result) *Summary {
	summary := &Summary{
		QueryCount:    len(results),
		MeanNDCG:      make(map[int]float64),
		MeanRecall:    make(map[int]float64),
		MeanPrecision: make(map[int]float64),
	}
	if len(results) == 0 {
		return summary
	}

	for _, r := range results {
		summary.MeanMRR += r.MRR
		summary.MAP += r.AP
		for k, v := range r.NDCG {
			summary.MeanNDCG[k] += v
		}
		for k, v := range r.Recall {
			summary.MeanRecall[k] += v
		}
		for k, v := range r.Precision {
			summary.MeanPrecision[k] += v
		}
	}

	n := float64(len(results))
	summary.MeanMRR /= n
	summary.MAP /= n
	for k := range summary.MeanNDCG {
		summary.MeanNDCG[k] /= n
	}
	for k := range summary.MeanRecall {
		summary.MeanRecall[k] /= n
	}
	for k := range summary.MeanPrecision {
		summary.MeanPrecision[k] /= n
	}
	return summary
}
