package observability

import "time"

// QueryLogEntry represents one answered query.
type QueryLogEntry struct {
	Timestamp    time.Time `json:"timestamp"`
	QueryID      string    `json:"query_id"`
	Query        string    `json:"query"`
	QuestionType string    `json:"question_type,omitempty"`
	Endpoint     string    `json:"endpoint,omitempty"`
	FinalState   string    `json:"final_state"`
	Relaxations  int       `json:"relaxations"`
	ResultCount  int       `json:"result_count"`
	LatencyMs    int64     `json:"latency_ms"`
	Error        string    `json:"error,omitempty"`
}
