package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"codecell/internal/cache"
	"codecell/internal/executor"
	"codecell/internal/monitor"
	"codecell/internal/storage"
)

type Handlers struct {
	exec    *executor.Executor
	store   *cache.Store
	db      *storage.DB
	metrics *monitor.Metrics
}

func NewHandlers(exec *executor.Executor, store *cache.Store, db *storage.DB, metrics *monitor.Metrics) *Handlers {
	return &Handlers{
		exec:    exec,
		store:   store,
		db:      db,
		metrics: metrics,
	}
}

func (h *Handlers) HandleExecute(w http.ResponseWriter, r *http.Request) {
	var req ExecuteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid JSON: "+err.Error(), "INVALID_REQUEST", http.StatusBadRequest, r)
		return
	}

	if req.Code == "" {
		writeError(w, "code is required", "INVALID_REQUEST", http.StatusBadRequest, r)
		return
	}

	if h.exec == nil {
		writeError(w, "execution disabled", "EXECUTION_DISABLED", http.StatusServiceUnavailable, r)
		return
	}

	useCache := true
	if req.UseCache != nil {
		useCache = *req.UseCache
	}

	execReq := executor.Request{
		Code:     req.Code,
		UseCache: useCache,
		CacheTTL: time.Duration(req.CacheTTLHours * float64(time.Hour)),
		Timeout:  req.Timeout.Duration,
	}

	h.metrics.ActiveExecutions.Inc()
	defer h.metrics.ActiveExecutions.Dec()

	result, err := h.exec.Execute(r.Context(), execReq)
	if err != nil {
		// Only context cancellation reaches here; everything else is
		// folded into the result.
		log.Error().Err(err).Str("request_id", RequestIDFromContext(r.Context())).Msg("execution aborted")
		writeError(w, "execution aborted", "EXECUTION_ABORTED", http.StatusInternalServerError, r)
		return
	}

	writeJSON(w, http.StatusOK, ExecuteResponse{
		Success:        result.Success,
		Output:         result.Output,
		Error:          result.Error,
		ExecutionTime:  result.ExecutionTime,
		FromCache:      result.FromCache,
		CacheKey:       result.CacheKey,
		SecurityIssues: result.SecurityIssues,
	})
}

func (h *Handlers) HandleCacheStats(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		writeError(w, "cache disabled", "CACHE_DISABLED", http.StatusServiceUnavailable, r)
		return
	}
	info := h.store.Snapshot()
	h.metrics.CacheEntries.Set(float64(info.TotalEntries))
	h.metrics.CacheSizeBytes.Set(info.TotalSizeMB * 1024 * 1024)
	writeJSON(w, http.StatusOK, info)
}

func (h *Handlers) HandleCacheClear(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		writeError(w, "cache disabled", "CACHE_DISABLED", http.StatusServiceUnavailable, r)
		return
	}
	removed := h.store.ClearAll()
	log.Info().Int("removed", removed).Msg("cache cleared")
	writeJSON(w, http.StatusOK, MaintenanceResponse{Status: "cleared", Removed: removed})
}

func (h *Handlers) HandleCacheCleanup(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		writeError(w, "cache disabled", "CACHE_DISABLED", http.StatusServiceUnavailable, r)
		return
	}
	removed := h.store.CleanupExpired()
	writeJSON(w, http.StatusOK, MaintenanceResponse{Status: "ok", Removed: removed})
}

func (h *Handlers) HandleCacheInvalidate(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		writeError(w, "cache disabled", "CACHE_DISABLED", http.StatusServiceUnavailable, r)
		return
	}

	var req InvalidateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid JSON: "+err.Error(), "INVALID_REQUEST", http.StatusBadRequest, r)
		return
	}
	if req.CacheKey == "" {
		writeError(w, "cache_key is required", "INVALID_REQUEST", http.StatusBadRequest, r)
		return
	}

	writeJSON(w, http.StatusOK, InvalidateResponse{
		Invalidated: h.store.Invalidate(req.CacheKey),
		CacheKey:    req.CacheKey,
	})
}

func (h *Handlers) HandleCacheConfig(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		writeJSON(w, http.StatusOK, CacheConfigResponse{Enabled: false})
		return
	}
	info := h.store.Snapshot()
	writeJSON(w, http.StatusOK, CacheConfigResponse{
		Enabled:         true,
		Directory:       info.Directory,
		MaxSizeMB:       info.MaxSizeMB,
		DefaultTTLHours: h.store.DefaultTTL().Hours(),
	})
}

func (h *Handlers) HandleLearningStats(w http.ResponseWriter, r *http.Request) {
	if h.db == nil {
		writeError(w, "database not configured", "DB_UNAVAILABLE", http.StatusServiceUnavailable, r)
		return
	}

	languages, err := h.db.LanguageStats(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("language stats query failed")
		writeError(w, "query failed", "INTERNAL", http.StatusInternalServerError, r)
		return
	}
	categories, err := h.db.FailureCategories(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("failure category query failed")
		writeError(w, "query failed", "INTERNAL", http.StatusInternalServerError, r)
		return
	}

	writeJSON(w, http.StatusOK, LearningStatsResponse{
		Languages:         languages,
		FailureCategories: categories,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}

func writeError(w http.ResponseWriter, msg, code string, status int, r *http.Request) {
	resp := ErrorResponse{
		Error:     msg,
		Code:      code,
		RequestID: RequestIDFromContext(r.Context()),
	}
	writeJSON(w, status, resp)
}
