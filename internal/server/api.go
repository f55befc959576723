package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/giantswarm/kube-context-monitor/internal/kubeconfig"
	"github.com/giantswarm/kube-context-monitor/internal/logging"
	"github.com/giantswarm/kube-context-monitor/internal/monitor"
)

// APIPrefix is the path prefix of the query API.
const APIPrefix = "/api/v1"

// ContextsResponse is returned by GET /api/v1/contexts.
type ContextsResponse struct {
	Contexts       []kubeconfig.Context `json:"contexts"`
	CurrentContext string               `json:"currentContext,omitempty"`
}

// ContextsHealthResponse is returned by GET /api/v1/contexts/health.
type ContextsHealthResponse struct {
	Contexts []monitor.HealthState `json:"contexts"`
}

// PermissionsResponse is returned by GET /api/v1/permissions.
type PermissionsResponse struct {
	Permissions []monitor.PermissionRecord `json:"permissions"`
}

// CountsResponse is returned by GET /api/v1/resources/counts.
type CountsResponse struct {
	Active bool                    `json:"active"`
	Counts []monitor.ResourceCount `json:"counts"`
}

// ResourcesResponse is returned by GET /api/v1/resources/{kind}.
type ResourcesResponse struct {
	Kind     string                     `json:"kind"`
	Contexts []monitor.ContextResources `json:"contexts"`
}

// CurrentContextResponse is returned by GET /api/v1/current-context.
type CurrentContextResponse struct {
	Name   string               `json:"name"`
	Health *monitor.HealthState `json:"health,omitempty"`
}

// ErrorResponse is the body of every non-2xx API response.
type ErrorResponse struct {
	Error string `json:"error"`
}

type apiHandler struct {
	sc *ServerContext
}

// RegisterAPIRoutes mounts the query API under APIPrefix. Every path also
// answers other methods with 405.
func RegisterAPIRoutes(router *mux.Router, sc *ServerContext) {
	h := &apiHandler{sc: sc}
	api := router.PathPrefix(APIPrefix).Subrouter()

	handle := func(path, method string, fn http.HandlerFunc) {
		api.HandleFunc(path, fn).Methods(method)
		api.HandleFunc(path, methodNotAllowed(method))
	}

	handle("/contexts", http.MethodGet, h.listContexts)
	handle("/contexts/health", http.MethodGet, h.contextsHealth)
	handle("/contexts/{name}/check", http.MethodPost, h.checkContext)
	handle("/permissions", http.MethodGet, h.permissions)
	// counts must be registered before {kind}
	handle("/resources/counts", http.MethodGet, h.resourceCounts)
	handle("/resources/{kind}", http.MethodGet, h.resources)
	handle("/current-context", http.MethodGet, h.currentContext)
}

// methodNotAllowed backs each route for the methods it does not serve. mux
// subrouters lose their method mismatch once a later route matches the
// prefix, so the 405 is registered explicitly.
func methodNotAllowed(allowed string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Allow", allowed)
		writeError(w, http.StatusMethodNotAllowed, r.Method+" is not allowed on "+r.URL.Path)
	}
}

func (h *apiHandler) listContexts(w http.ResponseWriter, r *http.Request) {
	m := h.sc.Monitor()
	writeJSON(w, http.StatusOK, ContextsResponse{
		Contexts:       m.Contexts(),
		CurrentContext: m.CurrentContext(),
	})
}

func (h *apiHandler) contextsHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, ContextsHealthResponse{
		Contexts: sortedHealthStates(h.sc.Monitor().HealthStates()),
	})
}

func (h *apiHandler) checkContext(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	state, err := h.sc.Monitor().CheckNow(r.Context(), name)
	switch {
	case errors.Is(err, monitor.ErrUnknownContext):
		writeError(w, http.StatusNotFound, err.Error())
		return
	case errors.Is(err, monitor.ErrManagerClosed):
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	case err != nil:
		h.sc.Logger().Error("Health check request failed", logging.Context(name), logging.Err(err))
		writeError(w, http.StatusInternalServerError, "health check failed")
		return
	}

	writeJSON(w, http.StatusOK, state)
}

func (h *apiHandler) permissions(w http.ResponseWriter, r *http.Request) {
	records := h.sc.Monitor().Permissions()
	if filter := r.URL.Query()["context"]; len(filter) > 0 {
		keep := toSet(filter)
		filtered := records[:0]
		for _, rec := range records {
			if keep[rec.ContextName] {
				filtered = append(filtered, rec)
			}
		}
		records = filtered
	}
	if records == nil {
		records = []monitor.PermissionRecord{}
	}
	writeJSON(w, http.StatusOK, PermissionsResponse{Permissions: records})
}

func (h *apiHandler) resourceCounts(w http.ResponseWriter, r *http.Request) {
	active := false
	if v := r.URL.Query().Get("active"); v != "" {
		parsed, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "active must be a boolean")
			return
		}
		active = parsed
	}

	m := h.sc.Monitor()
	var counts []monitor.ResourceCount
	if active {
		counts = m.ActiveResourcesCount()
	} else {
		counts = m.ResourcesCount()
	}
	if counts == nil {
		counts = []monitor.ResourceCount{}
	}
	writeJSON(w, http.StatusOK, CountsResponse{Active: active, Counts: counts})
}

func (h *apiHandler) resources(w http.ResponseWriter, r *http.Request) {
	kind := mux.Vars(r)["kind"]
	if _, ok := h.sc.Catalog().Get(kind); !ok {
		writeError(w, http.StatusNotFound, "unknown resource kind "+strconv.Quote(kind))
		return
	}

	m := h.sc.Monitor()
	names := r.URL.Query()["context"]
	if len(names) == 0 {
		names = sortedNames(m.HealthStates())
	}

	writeJSON(w, http.StatusOK, ResourcesResponse{
		Kind:     kind,
		Contexts: m.Resources(names, kind),
	})
}

func (h *apiHandler) currentContext(w http.ResponseWriter, r *http.Request) {
	m := h.sc.Monitor()
	resp := CurrentContextResponse{Name: m.CurrentContext()}
	if state, ok := m.CurrentContextHealth(); ok {
		resp.Health = &state
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}

func sortedHealthStates(states map[string]monitor.HealthState) []monitor.HealthState {
	out := make([]monitor.HealthState, 0, len(states))
	for _, s := range states {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ContextName < out[j].ContextName })
	return out
}

func sortedNames(states map[string]monitor.HealthState) []string {
	names := make([]string, 0, len(states))
	for name := range states {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func toSet(values []string) map[string]bool {
	set := make(map[string]bool, len(values))
	for _, v := range values {
		set[v] = true
	}
	return set
}
