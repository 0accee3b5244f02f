package server

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/reelquery/reelquery/internal/endpoint"
	"github.com/reelquery/reelquery/internal/entity"
	"github.com/reelquery/reelquery/internal/observability"
	apperrors "github.com/reelquery/reelquery/internal/pkg/errors"
	"github.com/reelquery/reelquery/internal/planner"
)

// maxBodyBytes bounds request bodies. Entity lists are small.
const maxBodyBytes = 1 << 20

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func decodeRequest(w http.ResponseWriter, r *http.Request) (planner.Request, error) {
	var req planner.Request
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		return req, apperrors.InvalidRequestError("invalid request body: " + err.Error())
	}
	return req, nil
}

// handleAnswer handles POST /v1/answer.
func (s *Server) handleAnswer(w http.ResponseWriter, r *http.Request) {
	req, err := decodeRequest(w, r)
	if err != nil {
		apperrors.WriteError(w, err)
		return
	}

	env, err := s.planner.Answer(r.Context(), req)
	if err != nil {
		apperrors.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, env)
}

// handlePlan handles POST /v1/plan.
func (s *Server) handlePlan(w http.ResponseWriter, r *http.Request) {
	req, err := decodeRequest(w, r)
	if err != nil {
		apperrors.WriteError(w, err)
		return
	}

	plan, err := s.planner.Plan(r.Context(), req)
	if err != nil {
		apperrors.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, plan)
}

// CatalogEntry is the public view of one endpoint.
type CatalogEntry struct {
	Path        string        `json:"path"`
	Kind        endpoint.Kind `json:"kind"`
	Media       entity.Media  `json:"media,omitempty"`
	Params      []string      `json:"params"`
	SingleValue []string      `json:"single_value,omitempty"`
	Prior       float64       `json:"prior"`
	Description string        `json:"description"`
}

// NewCatalogEntry returns the public view of s.
func NewCatalogEntry(s endpoint.Spec) CatalogEntry {
	params := s.Params
	if params == nil {
		params = []string{}
	}
	return CatalogEntry{
		Path:        s.Path,
		Kind:        s.Kind,
		Media:       s.Media,
		Params:      params,
		SingleValue: s.SingleValue,
		Prior:       s.Prior,
		Description: s.Description,
	}
}

// handleCatalog handles GET /v1/catalog.
func (s *Server) handleCatalog(w http.ResponseWriter, r *http.Request) {
	kind := endpoint.Kind(r.URL.Query().Get("kind"))
	specs := s.catalog.All()
	out := make([]CatalogEntry, 0, len(specs))
	for _, spec := range specs {
		if kind != "" && spec.Kind != kind {
			continue
		}
		out = append(out, NewCatalogEntry(spec))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"endpoints": out,
		"total":     len(out),
	})
}

// handleCatalogEntry handles GET /v1/catalog/{path...}.
func (s *Server) handleCatalogEntry(w http.ResponseWriter, r *http.Request) {
	path := "/" + strings.TrimPrefix(r.PathValue("path"), "/")
	spec, ok := s.catalog.Lookup(path)
	if !ok {
		apperrors.WriteError(w, apperrors.NotFoundError("endpoint "+path))
		return
	}
	writeJSON(w, http.StatusOK, NewCatalogEntry(spec))
}

// handleQueries handles GET /v1/queries: recent queries as JSON, or an
// export of a date range as JSON lines or CSV.
func (s *Server) handleQueries(w http.ResponseWriter, r *http.Request) {
	if s.queryLog == nil {
		apperrors.WriteError(w, apperrors.ServiceUnavailableError("query log"))
		return
	}
	q := r.URL.Query()

	format := q.Get("format")
	if format == "" {
		format = "json"
	}
	if format == "json" {
		limit := 50
		if v := q.Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 1 {
				apperrors.WriteError(w, apperrors.InvalidRequestError("limit must be a positive integer"))
				return
			}
			limit = n
		}
		recent := s.queryLog.Recent(limit)
		writeJSON(w, http.StatusOK, map[string]any{"queries": recent, "total": s.queryLog.Len()})
		return
	}
	if format != "jsonl" && format != "csv" {
		apperrors.WriteError(w, apperrors.InvalidRequestError("invalid format, use json, jsonl or csv"))
		return
	}

	var from, to time.Time
	if v := q.Get("from"); v != "" {
		from, _ = time.Parse("2006-01-02", v)
	}
	if v := q.Get("to"); v != "" {
		if day, err := time.Parse("2006-01-02", v); err == nil {
			to = day.Add(24*time.Hour - time.Nanosecond) // inclusive
		}
	}
	if v := q.Get("days"); v != "" {
		days, _ := strconv.Atoi(v)
		to = time.Now()
		from = to.AddDate(0, 0, -days)
	}
	if from.IsZero() {
		to = time.Now()
		from = to.AddDate(0, 0, -7)
	}
	if to.IsZero() {
		to = time.Now()
	}

	queries, err := s.queryLog.GetQueriesInRange(r.Context(), q.Get("state"), from, to)
	if err != nil {
		apperrors.WriteError(w, apperrors.InternalError("reading query log", err))
		return
	}

	filename := fmt.Sprintf("queries_%s_%s.%s", from.Format("20060102"), to.Format("20060102"), format)
	w.Header().Set("Content-Disposition", "attachment; filename="+filename)

	if format == "csv" {
		exportCSV(w, queries)
		return
	}
	exportJSONL(w, queries)
}

func exportJSONL(w http.ResponseWriter, queries []observability.QueryLogEntry) {
	w.Header().Set("Content-Type", "application/x-ndjson")
	enc := json.NewEncoder(w)
	for _, q := range queries {
		_ = enc.Encode(q)
	}
}

func exportCSV(w http.ResponseWriter, queries []observability.QueryLogEntry) {
	w.Header().Set("Content-Type", "text/csv")

	writer := csv.NewWriter(w)
	defer writer.Flush()

	_ = writer.Write([]string{
		"timestamp", "query_id", "query", "question_type", "endpoint",
		"final_state", "relaxations", "results", "latency_ms", "error",
	})
	for _, q := range queries {
		_ = writer.Write([]string{
			q.Timestamp.Format(time.RFC3339),
			q.QueryID,
			q.Query,
			q.QuestionType,
			q.Endpoint,
			q.FinalState,
			strconv.Itoa(q.Relaxations),
			strconv.Itoa(q.ResultCount),
			strconv.FormatInt(q.LatencyMs, 10),
			q.Error,
		})
	}
}
