package server

import (
	"context"
	"encoding/json"
	"net/http"
	"runtime"
	"sort"
	"sync"
	"time"
)

// Component states.
const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

// Probe checks one dependency and returns a short description on success.
type Probe func(ctx context.Context) (string, error)

// probe is a registered dependency check. A failing optional dependency
// degrades the service; a failing required one makes it unhealthy.
type probe struct {
	name     string
	check    Probe
	required bool
}

// HealthChecker runs the registered probes.
type HealthChecker struct {
	mu     sync.RWMutex
	probes []probe
}

// NewHealthChecker creates a checker with no probes.
func NewHealthChecker() *HealthChecker {
	return &HealthChecker{}
}

// Register adds a probe.
func (h *HealthChecker) Register(name string, required bool, check Probe) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.probes = append(h.probes, probe{name: name, check: check, required: required})
}

// HealthStatus represents the overall health status.
type HealthStatus struct {
	Status     string               `json:"status"` // healthy, degraded, unhealthy
	Timestamp  time.Time            `json:"timestamp"`
	Version    string               `json:"version,omitempty"`
	Uptime     string               `json:"uptime,omitempty"`
	Components map[string]Component `json:"components"`
}

// Component represents a component's health.
type Component struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Latency int64  `json:"latency_ms,omitempty"`
}

// Check runs every probe concurrently.
func (h *HealthChecker) Check(ctx context.Context) HealthStatus {
	h.mu.RLock()
	probes := append([]probe(nil), h.probes...)
	h.mu.RUnlock()

	status := HealthStatus{
		Status:     StatusHealthy,
		Timestamp:  time.Now(),
		Components: make(map[string]Component, len(probes)),
	}

	results := make([]Component, len(probes))
	var wg sync.WaitGroup
	for i, p := range probes {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = runProbe(ctx, p)
		}()
	}
	wg.Wait()

	order := make([]int, len(probes))
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(a, b int) bool { return probes[order[a]].name < probes[order[b]].name })

	for _, i := range order {
		p, c := probes[i], results[i]
		status.Components[p.name] = c
		if c.Status == StatusHealthy {
			continue
		}
		if p.required {
			status.Status = StatusUnhealthy
		} else if status.Status == StatusHealthy {
			status.Status = StatusDegraded
		}
	}
	return status
}

func runProbe(ctx context.Context, p probe) Component {
	start := time.Now()
	msg, err := p.check(ctx)
	latency := time.Since(start).Milliseconds()
	if err != nil {
		return Component{Status: StatusUnhealthy, Message: err.Error(), Latency: latency}
	}
	return Component{Status: StatusHealthy, Message: msg, Latency: latency}
}

// HealthHandler handles health check HTTP requests.
type HealthHandler struct {
	checker   *HealthChecker
	startTime time.Time
	version   string
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(checker *HealthChecker, version string) *HealthHandler {
	if checker == nil {
		checker = NewHealthChecker()
	}
	return &HealthHandler{
		checker:   checker,
		startTime: time.Now(),
		version:   version,
	}
}

// HandleHealth handles GET /healthz (simple liveness check).
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// HandleReady handles GET /readyz (readiness check).
func (h *HealthHandler) HandleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := h.checker.Check(ctx)
	status.Version = h.version
	status.Uptime = time.Since(h.startTime).Round(time.Second).String()

	code := http.StatusOK // degraded still serves
	if status.Status == StatusUnhealthy {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, status)
}

// HandleVersion handles GET /v1/version.
func (h *HealthHandler) HandleVersion(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{
		"version":    h.version,
		"uptime":     time.Since(h.startTime).Round(time.Second).String(),
		"go_version": runtime.Version(),
	})
}
