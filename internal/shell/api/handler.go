// Package api provides HTTP handlers for the regiond API.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/artpar/regiond/internal/core/manifest"
	"github.com/artpar/regiond/internal/core/netalloc"
	"github.com/artpar/regiond/internal/core/validate"
	"github.com/artpar/regiond/internal/shell/api/openapi"
	"github.com/artpar/regiond/internal/shell/controller"
	"github.com/artpar/regiond/internal/shell/runtime"
	"github.com/artpar/regiond/internal/shell/store"
)

// =============================================================================
// Handler
// =============================================================================

// Handler provides HTTP handlers for the API.
type Handler struct {
	controller *controller.Controller
	runtime    runtime.Runtime
	logger     *slog.Logger
	spec       *openapi.Generator
}

// NewHandler creates a new API handler.
func NewHandler(ctrl *controller.Controller, rt runtime.Runtime, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}

	spec := openapi.NewGenerator(
		openapi.WithTitle("regiond API"),
		openapi.WithDescription("Multi-tenant game region orchestration API"),
	)
	spec.RegisterResource(openapi.ResourceInfo{
		Name:           "regions",
		Model:          RegionResponse{},
		CreateModel:    CreateRegionRequest{},
		Actions:        []string{"resize", "suspend", "resume"},
		Subresources:   []string{"manifest", "allocation"},
		SupportsDelete: true,
	})

	return &Handler{
		controller: ctrl,
		runtime:    rt,
		logger:     logger,
		spec:       spec,
	}
}

// Routes returns the router with all routes configured.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(h.requestIDHeader)

	// Health endpoints
	r.Get("/health", h.handleHealth)
	r.Get("/ready", h.handleReady)
	r.Get("/openapi.json", h.spec.Handler())

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/platform", h.handlePlatformSummary)
		r.Route("/regions", func(r chi.Router) {
			r.Post("/", h.handleCreateRegion)
			r.Get("/", h.handleListRegions)
			r.Get("/{name}", h.handleGetRegion)
			r.Delete("/{name}", h.handleTerminateRegion)
			r.Post("/{name}/resize", h.handleResizeRegion)
			r.Post("/{name}/suspend", h.handleSuspendRegion)
			r.Post("/{name}/resume", h.handleResumeRegion)
			r.Get("/{name}/manifest", h.handleGetManifest)
			r.Get("/{name}/allocation", h.handleGetAllocation)
		})
	})

	return r
}

// =============================================================================
// Middleware
// =============================================================================

// requestIDHeader copies the request ID to the response header.
func (h *Handler) requestIDHeader(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if reqID := middleware.GetReqID(r.Context()); reqID != "" {
			w.Header().Set("X-Request-ID", reqID)
		}
		next.ServeHTTP(w, r)
	})
}

// =============================================================================
// Health Handlers
// =============================================================================

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, HealthResponse{Status: "healthy"})
}

func (h *Handler) handleReady(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]string)

	// Database (implicit - the store was created at startup)
	checks["database"] = "ok"

	if err := h.runtime.Ping(r.Context()); err != nil {
		checks["engine"] = "failed"
		h.writeJSON(w, http.StatusServiceUnavailable, ReadyResponse{
			Status: "not_ready",
			Checks: checks,
		})
		return
	}
	checks["engine"] = "ok"

	h.writeJSON(w, http.StatusOK, ReadyResponse{
		Status: "ready",
		Checks: checks,
	})
}

// =============================================================================
// Platform Handlers
// =============================================================================

func (h *Handler) handlePlatformSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.controller.Summarize(r.Context())
	if err != nil {
		h.writeControllerError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, summary)
}

// =============================================================================
// Region Handlers
// =============================================================================

func (h *Handler) handleCreateRegion(w http.ResponseWriter, r *http.Request) {
	var req CreateRegionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON", "validation_error", nil)
		return
	}

	region, err := h.controller.Provision(r.Context(), req.Config())
	if err != nil {
		h.writeControllerError(w, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, regionToResponse(region))
}

func (h *Handler) handleListRegions(w http.ResponseWriter, r *http.Request) {
	opts := store.DefaultListOptions()
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			opts.Limit = n
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			opts.Offset = n
		}
	}

	regions, err := h.controller.List(r.Context(), opts)
	if err != nil {
		h.writeControllerError(w, err)
		return
	}

	resp := ListRegionsResponse{Regions: make([]RegionResponse, 0, len(regions))}
	for i := range regions {
		resp.Regions = append(resp.Regions, regionToResponse(&regions[i]))
	}
	resp.Count = len(resp.Regions)
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleGetRegion(w http.ResponseWriter, r *http.Request) {
	region, err := h.controller.Get(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		h.writeControllerError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, regionToResponse(region))
}

func (h *Handler) handleTerminateRegion(w http.ResponseWriter, r *http.Request) {
	region, err := h.controller.Terminate(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		h.writeControllerError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, regionToResponse(region))
}

func (h *Handler) handleResizeRegion(w http.ResponseWriter, r *http.Request) {
	var req ResizeRegionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON", "validation_error", nil)
		return
	}

	region, err := h.controller.Resize(r.Context(), chi.URLParam(r, "name"), controller.ResizeRequest{
		CPUCores:   req.CPUCores,
		MemoryGB:   req.MemoryGB,
		DiskGB:     req.DiskGB,
		MaxPlayers: req.MaxPlayers,
	})
	if err != nil {
		h.writeControllerError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, regionToResponse(region))
}

func (h *Handler) handleSuspendRegion(w http.ResponseWriter, r *http.Request) {
	region, err := h.controller.Suspend(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		h.writeControllerError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, regionToResponse(region))
}

func (h *Handler) handleResumeRegion(w http.ResponseWriter, r *http.Request) {
	region, err := h.controller.Resume(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		h.writeControllerError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, regionToResponse(region))
}

func (h *Handler) handleGetManifest(w http.ResponseWriter, r *http.Request) {
	m, err := h.controller.Manifest(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		h.writeControllerError(w, err)
		return
	}

	if r.URL.Query().Get("format") == "yaml" {
		out, err := manifest.Export(m)
		if err != nil {
			h.writeControllerError(w, err)
			return
		}
		w.Header().Set("Content-Type", "application/yaml")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(out)
		return
	}

	h.writeJSON(w, http.StatusOK, m)
}

func (h *Handler) handleGetAllocation(w http.ResponseWriter, r *http.Request) {
	region, err := h.controller.Get(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		h.writeControllerError(w, err)
		return
	}
	if region.Allocation == nil {
		h.writeError(w, http.StatusNotFound, "region holds no allocation", "no_allocation", nil)
		return
	}
	h.writeJSON(w, http.StatusOK, AllocationResponse{
		Subnet:       region.Allocation.Subnet,
		Gateway:      region.Allocation.Gateway,
		ExternalPort: region.Allocation.ExternalPort,
	})
}

// =============================================================================
// Response Helpers
// =============================================================================

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("failed to encode JSON", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message, code string, violations []string) {
	h.writeJSON(w, status, ErrorResponse{
		Error:      message,
		Code:       code,
		Violations: violations,
	})
}

// writeControllerError maps controller errors to HTTP status codes.
func (h *Handler) writeControllerError(w http.ResponseWriter, err error) {
	var invalid *validate.InvalidConfigError
	switch {
	case errors.As(err, &invalid):
		h.writeError(w, http.StatusBadRequest, "invalid region config", "validation_error", invalid.Violations)
	case errors.Is(err, validate.ErrInvalidConfig):
		h.writeError(w, http.StatusBadRequest, err.Error(), "validation_error", nil)
	case errors.Is(err, controller.ErrRegionNotFound):
		h.writeError(w, http.StatusNotFound, err.Error(), "not_found", nil)
	case errors.Is(err, controller.ErrRegionNotActive),
		errors.Is(err, controller.ErrRegionNotSuspended):
		h.writeError(w, http.StatusConflict, err.Error(), "invalid_state", nil)
	case errors.Is(err, netalloc.ErrAllocationExhausted):
		h.writeError(w, http.StatusServiceUnavailable, err.Error(), "capacity_exhausted", nil)
	default:
		h.logger.Error("request failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, "internal error", "internal_error", nil)
	}
}
