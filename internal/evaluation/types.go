package evaluation

// JudgedQuery is one query with graded endpoint relevance:
// 0 = wrong, 1 = usable, 2 = good, 3 = the endpoint a human would pick.
type JudgedQuery struct {
	ID       string         `json:"id" yaml:"id"`
	Query    string         `json:"query" yaml:"query"`
	Relevant map[string]int `json:"relevant" yaml:"relevant"` // endpoint path -> grade
}

// JudgmentSet is a file of judged queries.
type JudgmentSet struct {
	Queries []JudgedQuery `json:"queries" yaml:"queries"`
}

// Result holds the retrieval metrics for one query.
type Result struct {
	QueryID   string          `json:"query_id"`
	Query     string          `json:"query"`
	Ranking   []string        `json:"ranking"`
	NDCG      map[int]float64 `json:"ndcg"`      // NDCG@K
	Recall    map[int]float64 `json:"recall"`    // Recall@K
	Precision map[int]float64 `json:"precision"` // Precision@K
	MRR       float64         `json:"mrr"`
	AP        float64         `json:"ap"`
}

// Summary averages metrics over a judgment set.
type Summary struct {
	QueryCount    int             `json:"query_count"`
	MeanNDCG      map[int]float64 `json:"mean_ndcg"`
	MeanRecall    map[int]float64 `json:"mean_recall"`
	MeanPrecision map[int]float64 `json:"mean_precision"`
	MeanMRR       float64         `json:"mean_mrr"`
	MAP           float64         `json:"map"`
}
