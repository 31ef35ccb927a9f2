package api

import (
	"time"

	"codecell/internal/storage"
)

// ExecuteRequest is the API-level request to run a piece of Python code.
// UseCache defaults to true when omitted.
type ExecuteRequest struct {
	Code          string   `json:"code"`
	UseCache      *bool    `json:"use_cache,omitempty"`
	CacheTTLHours float64  `json:"cache_ttl_hours,omitempty"`
	Timeout       Duration `json:"timeout,omitempty"`
}

// Duration wraps time.Duration for JSON marshaling as a string like "10s".
type Duration struct {
	time.Duration
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.String() + `"`), nil
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	s := string(b)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	d.Duration = dur
	return nil
}

// ExecuteResponse is the uniform execution outcome. Failed runs are still
// HTTP 200 with Success=false; transport-level errors use ErrorResponse.
type ExecuteResponse struct {
	Success        bool     `json:"success"`
	Output         string   `json:"output"`
	Error          string   `json:"error,omitempty"`
	ExecutionTime  float64  `json:"execution_time"`
	FromCache      bool     `json:"from_cache"`
	CacheKey       string   `json:"cache_key,omitempty"`
	SecurityIssues []string `json:"security_issues,omitempty"`
}

// InvalidateRequest names a full cache key to remove.
type InvalidateRequest struct {
	CacheKey string `json:"cache_key"`
}

// InvalidateResponse reports whether the key existed.
type InvalidateResponse struct {
	Invalidated bool   `json:"invalidated"`
	CacheKey    string `json:"cache_key"`
}

// MaintenanceResponse is returned by the cache clear and cleanup endpoints.
type MaintenanceResponse struct {
	Status  string `json:"status"`
	Removed int    `json:"removed_entries"`
}

// CacheConfigResponse describes the cache's static configuration.
type CacheConfigResponse struct {
	Enabled         bool    `json:"enabled"`
	Directory       string  `json:"directory,omitempty"`
	MaxSizeMB       float64 `json:"max_size_mb,omitempty"`
	DefaultTTLHours float64 `json:"default_ttl_hours,omitempty"`
}

// LearningStatsResponse aggregates stored execution outcomes.
type LearningStatsResponse struct {
	Languages         []storage.LanguageStats `json:"languages"`
	FailureCategories []storage.CategoryCount `json:"failure_categories"`
}

// ErrorResponse is returned for API errors.
type ErrorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	RequestID string `json:"request_id"`
}

// HealthResponse is returned by the health check endpoint.
type HealthResponse struct {
	Status   string `json:"status"`
	Sandbox  bool   `json:"sandbox"`
	Database bool   `json:"database"`
	Uptime   string `json:"uptime"`
}
