package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/reelquery/reelquery/internal/execute"
	"github.com/reelquery/reelquery/internal/planner"
	"github.com/reelquery/reelquery/internal/relax"
	"github.com/reelquery/reelquery/internal/server"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.BaseURL != "http://localhost:8080" {
		t.Errorf("BaseURL = %q, want %q", cfg.BaseURL, "http://localhost:8080")
	}
	if cfg.Timeout != 90*time.Second {
		t.Errorf("Timeout = %v, want %v", cfg.Timeout, 90*time.Second)
	}
}

func TestClientNew(t *testing.T) {
	t.Run("default config", func(t *testing.T) {
		c := New(Config{})
		if c.baseURL != "http://localhost:8080" {
			t.Errorf("baseURL = %q, want %q", c.baseURL, "http://localhost:8080")
		}
	})

	t.Run("trailing slash", func(t *testing.T) {
		c := New(Config{BaseURL: "http://custom:9000/"})
		if c.baseURL != "http://custom:9000" {
			t.Errorf("baseURL = %q, want %q", c.baseURL, "http://custom:9000")
		}
	})
}

func TestClientHealth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/healthz" {
			t.Errorf("path = %q, want %q", r.URL.Path, "/healthz")
		}
		if r.Method != http.MethodGet {
			t.Errorf("method = %q, want %q", r.Method, http.MethodGet)
		}
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}))
	defer srv.Close()

	resp, err := New(Config{BaseURL: srv.URL}).Health(context.Background())
	if err != nil {
		t.Fatalf("Health() error = %v", err)
	}
	if resp.Status != "ok" {
		t.Errorf("Status = %q, want ok", resp.Status)
	}
}

// fakePlanner lets the real server handler stand behind the client.
type fakePlanner struct{}

func (fakePlanner) Answer(_ context.Context, req planner.Request) (*planner.ResultEnvelope, error) {
	if req.Query == "fail" {
		return nil, errors.New("boom")
	}
	return &planner.ResultEnvelope{
		QueryID:    "q1",
		FinalState: relax.RelaxTertiary,
		Entries:    []execute.Entry{{ID: 949, Title: "Heat"}},
	}, nil
}

func (fakePlanner) Plan(_ context.Context, req planner.Request) (*planner.Plan, error) {
	return &planner.Plan{QueryID: "p1", Tree: "AND()"}, nil
}

func newServer(t *testing.T, health *server.HealthChecker) *httptest.Server {
	t.Helper()
	s, err := server.New(server.DefaultConfig(), server.Deps{Planner: fakePlanner{}, Health: health}, nil)
	if err != nil {
		t.Fatal(err)
	}
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	return srv
}

func TestClientAnswerUnwrapsEnvelope(t *testing.T) {
	srv := newServer(t, nil)
	c := New(Config{BaseURL: srv.URL})

	env, err := c.Answer(context.Background(), planner.Request{Query: "heat"})
	if err != nil {
		t.Fatalf("Answer() error = %v", err)
	}
	if env.QueryID != "q1" || env.FinalState != relax.RelaxTertiary {
		t.Errorf("envelope = %+v", env)
	}
	if len(env.Entries) != 1 || env.Entries[0].ID != 949 {
		t.Errorf("entries = %+v", env.Entries)
	}

	plan, err := c.Plan(context.Background(), planner.Request{Query: "heat"})
	if err != nil {
		t.Fatalf("Plan() error = %v", err)
	}
	if plan.QueryID != "p1" {
		t.Errorf("plan = %+v", plan)
	}
}

func TestClientAPIError(t *testing.T) {
	srv := newServer(t, nil)
	c := New(Config{BaseURL: srv.URL})

	_, err := c.Answer(context.Background(), planner.Request{Query: "fail"})
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error = %v, want *APIError", err)
	}
	if apiErr.Status != http.StatusInternalServerError || apiErr.Code != "INTERNAL_ERROR" {
		t.Errorf("apiErr = %+v", apiErr)
	}
}

func TestClientCatalog(t *testing.T) {
	srv := newServer(t, nil)
	c := New(Config{BaseURL: srv.URL})

	resp, err := c.Catalog(context.Background(), "trending")
	if err != nil {
		t.Fatalf("Catalog() error = %v", err)
	}
	if resp.Total != 2 || len(resp.Endpoints) != 2 {
		t.Errorf("trending endpoints = %d, want 2", resp.Total)
	}
}

func TestClientReady(t *testing.T) {
	health := server.NewHealthChecker()
	health.Register("discovery_api", true, func(context.Context) (string, error) {
		return "", errors.New("unreachable")
	})
	srv := newServer(t, health)

	status, err := New(Config{BaseURL: srv.URL}).Ready(context.Background())
	if err == nil {
		t.Fatal("expected error for an unhealthy server")
	}
	if status == nil || status.Status != server.StatusUnhealthy {
		t.Fatalf("status = %+v", status)
	}
	if c := status.Components["discovery_api"]; c.Message != "unreachable" {
		t.Errorf("component = %+v", c)
	}
}

func TestClientRecentQueriesWithoutLog(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("limit"); got != "5" {
			t.Errorf("limit = %q, want 5", got)
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		_ = json.NewEncoder(w).Encode(map[string]string{"code": "SERVICE_UNAVAILABLE", "message": "query log unavailable"})
	}))
	defer srv.Close()

	_, err := New(Config{BaseURL: srv.URL}).RecentQueries(context.Background(), 5)
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Code != "SERVICE_UNAVAILABLE" {
		t.Fatalf("error = %v", err)
	}
}
