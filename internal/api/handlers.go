package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"shakerisk/internal/types"
)

// RunRequest is the submission payload for one benefit-cost batch.
type RunRequest struct {
	Job       types.JobConfig           `json:"job"`
	Assets    []types.Asset             `json:"assets"`
	Economics []types.RetrofitEconomics `json:"economics,omitempty"`
}

// handleSubmitRun executes a batch synchronously and returns the full
// result. Per-asset failures ride inside the result; only configuration and
// hazard acquisition failures surface as HTTP errors.
func (s *Server) handleSubmitRun(w http.ResponseWriter, r *http.Request) {
	var req RunRequest
	if err := DecodeJSON(w, r, &req); err != nil {
		Error(w, r, err)
		return
	}

	econ := make(map[string]*types.RetrofitEconomics, len(req.Economics))
	for i := range req.Economics {
		econ[req.Economics[i].AssetID] = &req.Economics[i]
	}

	result, err := s.engine.Run(r.Context(), req.Job, req.Assets, econ)
	if err != nil {
		Error(w, r, err)
		return
	}

	JSON(w, r, http.StatusOK, APIResponse{Data: result})
}

// handleGetRun returns one registry record by run ID.
func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")

	run, err := s.runs.GetByID(r.Context(), runID)
	if err != nil {
		Error(w, r, err)
		return
	}

	JSON(w, r, http.StatusOK, APIResponse{Data: run})
}

// handleListRuns returns the registry history for one cache key, newest
// first.
func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	key := r.URL.Query().Get("cache_key")
	if key == "" {
		Error(w, r, types.NewAppErrorWithDetails(types.ErrCodeValidationMissingField,
			"cache_key query parameter is required", nil,
			map[string]any{"parameter": "cache_key"}))
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			Error(w, r, types.NewAppErrorWithDetails(types.ErrCodeValidationInvalidParam,
				"limit must be a non-negative integer", err,
				map[string]any{"parameter": "limit", "value": raw}))
			return
		}
		limit = parsed
	}

	runs, err := s.runs.ListByKey(r.Context(), key, limit)
	if err != nil {
		Error(w, r, err)
		return
	}

	JSON(w, r, http.StatusOK, APIResponse{Data: runs})
}

// handleInvalidate drops one hazard fingerprint from the in-process cache
// and the snapshot store. The next fetch for that key recomputes.
func (s *Server) handleInvalidate(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "cacheKey")

	if err := s.hazards.Invalidate(key); err != nil {
		Error(w, r, err)
		return
	}

	JSON(w, r, http.StatusOK, APIResponse{Data: map[string]string{"invalidated": key}})
}
