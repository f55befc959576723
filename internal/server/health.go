package server

import (
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"
)

// Health endpoint paths.
const (
	LivenessPath       = "/healthz"
	ReadinessPath      = "/readyz"
	DetailedHealthPath = "/healthz/detailed"
)

// HealthHandlers serves the liveness and readiness endpoints of the process. The
// reachability of monitored clusters is reported but never fails a check:
// an unreachable cluster is data, not a fault of this server.
type HealthHandlers struct {
	sc      *ServerContext
	started time.Time
	ready   atomic.Bool
}

// NewHealthHandlers returns handlers that start out ready. sc may be nil.
func NewHealthHandlers(sc *ServerContext) *HealthHandlers {
	p := &HealthHandlers{sc: sc, started: time.Now()}
	p.ready.Store(true)
	return p
}

// SetReady flips the readiness state.
func (p *HealthHandlers) SetReady(ready bool) { p.ready.Store(ready) }

// Ready reports the readiness flag.
func (p *HealthHandlers) Ready() bool { return p.ready.Load() }

// HealthResponse is the body of /healthz and /readyz.
type HealthResponse struct {
	Status  string            `json:"status"`
	Version string            `json:"version,omitempty"`
	Checks  map[string]string `json:"checks,omitempty"`
}

// DetailedHealthResponse is the body of /healthz/detailed.
type DetailedHealthResponse struct {
	Status          string                 `json:"status"`
	Version         string                 `json:"version,omitempty"`
	Uptime          string                 `json:"uptime"`
	Contexts        *ContextsSummary       `json:"contexts,omitempty"`
	Instrumentation *InstrumentationStatus `json:"instrumentation,omitempty"`
}

// ContextsSummary counts monitored contexts per health label.
type ContextsSummary struct {
	Total            int    `json:"total"`
	Reachable        int    `json:"reachable"`
	Unreachable      int    `json:"unreachable"`
	Checking         int    `json:"checking"`
	Current          string `json:"current,omitempty"`
	CurrentReachable *bool  `json:"current_reachable,omitempty"`
}

// InstrumentationStatus reports which exporters are active.
type InstrumentationStatus struct {
	Enabled         bool   `json:"enabled"`
	MetricsExporter string `json:"metrics_exporter,omitempty"`
	TracingExporter string `json:"tracing_exporter,omitempty"`
}

// Register mounts the health endpoints on router.
func (p *HealthHandlers) Register(router *mux.Router) {
	router.HandleFunc(LivenessPath, p.serveLiveness).Methods(http.MethodGet)
	router.HandleFunc(ReadinessPath, p.serveReadiness).Methods(http.MethodGet)
	router.HandleFunc(DetailedHealthPath, p.serveDetailed).Methods(http.MethodGet)
}

func (p *HealthHandlers) version() string {
	if p.sc == nil || p.sc.Config() == nil {
		return ""
	}
	return p.sc.Config().Version
}

func (p *HealthHandlers) shuttingDown() bool {
	return p.sc != nil && p.sc.IsShutdown()
}

func (p *HealthHandlers) serveLiveness(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok", Version: p.version()})
}

func (p *HealthHandlers) serveReadiness(w http.ResponseWriter, _ *http.Request) {
	checks := map[string]string{"ready": "ok", "shutdown": "ok"}
	status, code := "ok", http.StatusOK

	if !p.Ready() {
		checks["ready"] = "not ready"
		status, code = "not ready", http.StatusServiceUnavailable
	}
	if p.shuttingDown() {
		checks["shutdown"] = "shutting down"
		status, code = "not ready", http.StatusServiceUnavailable
	}
	if inst := p.instrumentation(); inst != nil {
		checks["instrumentation"] = "disabled"
		if inst.Enabled {
			checks["instrumentation"] = "ok"
		}
	}

	writeJSON(w, code, HealthResponse{Status: status, Checks: checks})
}

func (p *HealthHandlers) serveDetailed(w http.ResponseWriter, _ *http.Request) {
	resp := DetailedHealthResponse{
		Status:          "ok",
		Version:         p.version(),
		Uptime:          time.Since(p.started).Truncate(time.Second).String(),
		Contexts:        p.contexts(),
		Instrumentation: p.instrumentation(),
	}

	code := http.StatusOK
	switch {
	case !p.Ready():
		resp.Status, code = "not ready", http.StatusServiceUnavailable
	case p.shuttingDown():
		resp.Status, code = "shutting down", http.StatusServiceUnavailable
	}
	writeJSON(w, code, resp)
}

func (p *HealthHandlers) contexts() *ContextsSummary {
	if p.sc == nil || p.sc.Monitor() == nil {
		return nil
	}
	m := p.sc.Monitor()

	summary := &ContextsSummary{Current: m.CurrentContext()}
	for _, state := range m.HealthStates() {
		summary.Total++
		switch {
		case state.Checking:
			summary.Checking++
		case state.Reachable:
			summary.Reachable++
		default:
			summary.Unreachable++
		}
	}
	if state, ok := m.CurrentContextHealth(); ok {
		reachable := state.Reachable
		summary.CurrentReachable = &reachable
	}
	return summary
}

func (p *HealthHandlers) instrumentation() *InstrumentationStatus {
	if p.sc == nil {
		return nil
	}
	provider := p.sc.InstrumentationProvider()
	if provider == nil || !provider.Enabled() {
		return &InstrumentationStatus{}
	}
	cfg := provider.Config()
	return &InstrumentationStatus{
		Enabled:         true,
		MetricsExporter: cfg.MetricsExporter,
		TracingExporter: cfg.TracingExporter,
	}
}
