package evaluation

import (
	"math"
	"sort"
)

// The ranked relevance slices below hold the grade of each retrieved
// endpoint in rank order. threshold is the lowest grade counted as a hit.

// NDCG is the normalized discounted cumulative gain at k. ideal holds every
// judged grade for the query, so endpoints the retriever never returned
// still count against it.
func NDCG(ranked, ideal []int, k int) float64 {
	if k <= 0 {
		return 0
	}
	sorted := append([]int(nil), ideal...)
	sort.Sort(sort.Reverse(sort.IntSlice(sorted)))

	idcg := dcg(sorted, k)
	if idcg == 0 {
		return 0
	}
	return dcg(ranked, k) / idcg
}

func dcg(grades []int, k int) float64 {
	k = min(k, len(grades))
	sum := 0.0
	for i := 0; i < k; i++ {
		sum += float64(grades[i]) / math.Log2(float64(i+2))
	}
	return sum
}

// Recall is the share of relevant endpoints found in the top k. total is
// the number of judged endpoints at or above threshold.
func Recall(ranked []int, total, k, threshold int) float64 {
	if total == 0 {
		return 0
	}
	return float64(hits(ranked, k, threshold)) / float64(total)
}

// Precision is the share of the top k that is relevant.
func Precision(ranked []int, k, threshold int) float64 {
	k = min(k, len(ranked))
	if k == 0 {
		return 0
	}
	return float64(hits(ranked, k, threshold)) / float64(k)
}

func hits(ranked []int, k, threshold int) int {
	k = min(k, len(ranked))
	n := 0
	for i := 0; i < k; i++ {
		if ranked[i] >= threshold {
			n++
		}
	}
	return n
}

// ReciprocalRank is 1/rank of the first relevant endpoint.
func ReciprocalRank(ranked []int, threshold int) float64 {
	for i, g := range ranked {
		if g >= threshold {
			return 1.0 / float64(i+1)
		}
	}
	return 0
}

// AveragePrecision averages precision at each relevant rank, over all
// total relevant endpoints.
func AveragePrecision(ranked []int, total, threshold int) float64 {
	if total == 0 {
		return 0
	}
	found := 0
	sum := 0.0
	for i, g := range ranked {
		if g >= threshold {
			found++
			sum += float64(found) / float64(i+1)
		}
	}
	return sum / float64(total)
}
