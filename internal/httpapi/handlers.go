package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"ContentFeed/internal/domain"
	"ContentFeed/internal/filter"
	"ContentFeed/internal/usecase"
)

const (
	defaultLogLimit = 20
	maxLogLimit     = 100
	maxBodyBytes    = 1 << 20
)

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

type ingestResponse struct {
	Success bool `json:"success"`
	usecase.Report
	DurationMs int64  `json:"duration_ms"`
	Error      string `json:"error,omitempty"`
}

type filterConfigResponse struct {
	Success bool                 `json:"success"`
	Config  domain.FilterRuleSet `json:"config"`
	Message string               `json:"message,omitempty"`
}

type filterConfigRequest struct {
	Config *filter.RuleSetUpdate `json:"config"`
}

type logsResponse struct {
	Success bool                       `json:"success"`
	Logs    []domain.IngestionLogEntry `json:"logs"`
}

type providerLimit struct {
	Configured       bool  `json:"configured"`
	Remaining        int   `json:"remaining"`
	MaxRequests      int   `json:"maxRequests"`
	WindowMs         int64 `json:"windowMs"`
	TimeUntilResetMs int64 `json:"timeUntilReset"`
	IsRateLimited    bool  `json:"isRateLimited"`
}

type rateLimitsResponse struct {
	Success   bool                     `json:"success"`
	Providers map[string]providerLimit `json:"providers"`
	Timestamp time.Time                `json:"timestamp"`
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) ingestStatus(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]bool{"running": s.deps.Ingester.Running()})
}

// ingest runs the pipeline synchronously. The run is detached from the
// request so a dropped client does not abort it halfway.
func (s *Server) ingest(w http.ResponseWriter, r *http.Request) {
	report, err := s.deps.Ingester.Run(context.WithoutCancel(r.Context()))
	if report.Errors == nil {
		report.Errors = []string{}
	}
	switch {
	case errors.Is(err, usecase.ErrRunInProgress):
		s.writeError(w, http.StatusConflict, err.Error())
		return
	case err != nil:
		s.logger.Error("manual ingestion failed", "run_id", report.RunID, "error", err)
		s.writeJSON(w, http.StatusInternalServerError, ingestResponse{
			Report:     report,
			DurationMs: report.Duration.Milliseconds(),
			Error:      err.Error(),
		})
		return
	}

	s.writeJSON(w, http.StatusOK, ingestResponse{
		Success:    report.Status != domain.RunError,
		Report:     report,
		DurationMs: report.Duration.Milliseconds(),
	})
}

func (s *Server) getFilterConfig(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, filterConfigResponse{Success: true, Config: s.deps.Filters.Current()})
}

func (s *Server) updateFilterConfig(w http.ResponseWriter, r *http.Request) {
	var req filterConfigRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON body: %v", err))
		return
	}
	if req.Config == nil {
		s.writeError(w, http.StatusBadRequest, "config is required")
		return
	}

	rules, err := s.deps.Filters.Update(r.Context(), *req.Config)
	switch {
	case filter.IsValidation(err):
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		s.logger.Error("filter config update failed", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to save filter configuration")
		return
	}

	s.writeJSON(w, http.StatusOK, filterConfigResponse{
		Success: true,
		Config:  rules,
		Message: "Filter configuration updated",
	})
}

func (s *Server) resetFilterConfig(w http.ResponseWriter, r *http.Request) {
	rules, err := s.deps.Filters.Reset(r.Context())
	if err != nil {
		s.logger.Error("filter config reset failed", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to reset filter configuration")
		return
	}
	s.writeJSON(w, http.StatusOK, filterConfigResponse{
		Success: true,
		Config:  rules,
		Message: "Filter configuration reset to defaults",
	})
}

func (s *Server) listLogs(w http.ResponseWriter, r *http.Request) {
	limit := defaultLogLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			s.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxLogLimit)
	}

	logs, err := s.deps.Logs.ListLogs(r.Context(), limit)
	if err != nil {
		s.logger.Error("list ingestion logs failed", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to load ingestion logs")
		return
	}
	if logs == nil {
		logs = []domain.IngestionLogEntry{}
	}
	s.writeJSON(w, http.StatusOK, logsResponse{Success: true, Logs: logs})
}

// resetRateLimits clears one provider, or all of them when no provider is
// named, and answers with the refreshed budgets.
func (s *Server) resetRateLimits(w http.ResponseWriter, r *http.Request) {
	provider := chi.URLParam(r, "provider")
	if !s.deps.RateLimits.ResetRateLimit(provider) {
		s.writeError(w, http.StatusNotFound, fmt.Sprintf("unknown provider %q", provider))
		return
	}
	s.rateLimits(w, r)
}

func (s *Server) rateLimits(w http.ResponseWriter, _ *http.Request) {
	statuses := s.deps.RateLimits.RateLimits()
	providers := make(map[string]providerLimit, len(statuses))
	for _, st := range statuses {
		providers[st.Provider] = providerLimit{
			Configured:       st.Configured,
			Remaining:        st.Remaining,
			MaxRequests:      st.MaxRequests,
			WindowMs:         st.Window.Milliseconds(),
			TimeUntilResetMs: st.TimeUntilReset.Milliseconds(),
			IsRateLimited:    st.Limited,
		}
	}
	s.writeJSON(w, http.StatusOK, rateLimitsResponse{
		Success:   true,
		Providers: providers,
		Timestamp: s.now().UTC(),
	})
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, errorResponse{Error: msg})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("encode response failed", "error", err)
	}
}
