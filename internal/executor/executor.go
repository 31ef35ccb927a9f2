// Package executor ties the static analyzer, result cache, and sandbox
// together into a single Execute pipeline. Every submission produces a
// well-formed Result; faults from the stages below are folded into the
// Result rather than escaping to callers.
package executor

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"codecell/internal/analyzer"
	"codecell/internal/cache"
	"codecell/internal/monitor"
	"codecell/internal/sandbox"
)

// Error categories recorded against failed executions.
const (
	CategoryTimeout  = "timeout"
	CategorySecurity = "security"
	CategorySyntax   = "syntax"
	CategoryRuntime  = "runtime"
)

// Request is a single code submission.
type Request struct {
	Code     string
	UseCache bool
	CacheTTL time.Duration // zero means the cache default
	Timeout  time.Duration // zero means the configured default
}

// Result is the uniform outcome shape for every submission, cached or fresh.
type Result struct {
	Success        bool     `json:"success"`
	Output         string   `json:"output"`
	Error          string   `json:"error,omitempty"`
	ExecutionTime  float64  `json:"execution_time"`
	FromCache      bool     `json:"from_cache"`
	CacheKey       string   `json:"cache_key,omitempty"`
	SecurityIssues []string `json:"security_issues,omitempty"`
}

// Record describes a completed execution for the learning sink.
type Record struct {
	CodeHash      string
	Success       bool
	ExecutionTime float64
	ErrorCategory string
	CodeSnippet   string
}

// Recorder receives execution records after the response is already decided.
// Implementations must not block the caller.
type Recorder interface {
	Record(rec Record)
}

// Sandbox runs code in an isolated process.
type Sandbox interface {
	Run(ctx context.Context, code string, timeout time.Duration) (sandbox.Result, error)
}

// Executor is the orchestration pipeline. Cache, recorder, and metrics are
// optional; the analyzer and sandbox are not.
type Executor struct {
	analyzer *analyzer.Analyzer
	sandbox  Sandbox
	store    *cache.Store
	recorder Recorder
	metrics  *monitor.Metrics
	tracer   *monitor.Tracer

	defaultTimeout time.Duration
	maxOutputLen   int
}

// Option configures optional collaborators on an Executor.
type Option func(*Executor)

func WithCache(store *cache.Store) Option {
	return func(e *Executor) { e.store = store }
}

func WithRecorder(rec Recorder) Option {
	return func(e *Executor) { e.recorder = rec }
}

func WithMetrics(m *monitor.Metrics) Option {
	return func(e *Executor) { e.metrics = m }
}

func New(an *analyzer.Analyzer, sb Sandbox, defaultTimeout time.Duration, maxOutputLen int, opts ...Option) (*Executor, error) {
	if an == nil {
		return nil, errors.New("executor: analyzer is required")
	}
	if sb == nil {
		return nil, errors.New("executor: sandbox is required")
	}
	if defaultTimeout <= 0 {
		defaultTimeout = 10 * time.Second
	}
	e := &Executor{
		analyzer:       an,
		sandbox:        sb,
		tracer:         monitor.NewTracer(),
		defaultTimeout: defaultTimeout,
		maxOutputLen:   maxOutputLen,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Execute runs a submission through the full pipeline: cache lookup, static
// analysis, sandboxed execution, cache write. The error return is reserved
// for context cancellation; everything else is reported inside the Result.
func (e *Executor) Execute(ctx context.Context, req Request) (Result, error) {
	ctx, span := e.tracer.StartSpan(ctx, "execute")
	defer span.End()

	if strings.TrimSpace(req.Code) == "" {
		return Result{Error: "No code provided"}, nil
	}

	timeout := req.Timeout
	if timeout == 0 {
		timeout = e.defaultTimeout
	}

	key := cache.Fingerprint(req.Code, "python", map[string]any{
		"timeout":           timeout.Seconds(),
		"max_output_length": e.maxOutputLen,
	})
	span.SetAttributes(monitor.AttrCacheKey.String(key[:8]))

	if req.UseCache && e.store != nil {
		if cached, ok := e.cacheGet(key); ok {
			span.SetAttributes(monitor.AttrFromCache.Bool(true))
			if e.metrics != nil {
				e.metrics.RecordCacheOp("hit")
			}
			return cached, nil
		}
		if e.metrics != nil {
			e.metrics.RecordCacheOp("miss")
		}
	}

	// Analysis runs after the cache lookup on purpose: anything cached
	// already passed it, and cached entries never re-enter the sandbox.
	report := e.analyzer.Analyze(req.Code)
	if !report.Safe {
		res := Result{
			Error:          "Security violation: " + strings.Join(report.Issues, "; "),
			CacheKey:       key[:8],
			SecurityIssues: report.Issues,
		}
		e.observe(req.Code, res, CategorySecurity)
		return res, nil
	}

	sbRes, err := e.sandbox.Run(ctx, req.Code, timeout)
	span.SetAttributes(
		monitor.AttrExecID.String(sbRes.ID),
		monitor.AttrCodeHash.String(sbRes.CodeHash),
		monitor.AttrExitCode.Int(sbRes.ExitCode),
	)

	res := Result{
		Success:       sbRes.Success,
		Output:        sbRes.Stdout,
		ExecutionTime: sbRes.Elapsed,
		CacheKey:      key[:8],
	}

	switch {
	case errors.Is(err, sandbox.ErrTimeout):
		res.Error = sbRes.Stderr
		e.observe(req.Code, res, CategoryTimeout)
		return res, nil
	case err != nil:
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		log.Error().Err(err).Msg("sandbox execution failed")
		res.Error = fmt.Sprintf("Execution failed: %v", err)
		e.observe(req.Code, res, CategoryRuntime)
		return res, nil
	}

	if !sbRes.Success {
		res.Error = sbRes.Stderr
		e.observe(req.Code, res, categorizeStderr(sbRes.Stderr))
		return res, nil
	}

	if req.UseCache && e.store != nil {
		// Strip volatile fields before caching so replays look identical.
		entry := res
		entry.FromCache = false
		if err := e.store.Set(key, entry, req.CacheTTL); err != nil {
			log.Warn().Err(err).Str("cache_key", key[:8]).Msg("cache write failed")
		} else if e.metrics != nil {
			e.metrics.RecordCacheOp("write")
		}
	}

	e.observe(req.Code, res, "")
	return res, nil
}

func (e *Executor) cacheGet(key string) (Result, bool) {
	raw, ok := e.store.Get(key)
	if !ok {
		return Result{}, false
	}
	var res Result
	if err := json.Unmarshal(raw, &res); err != nil {
		log.Warn().Err(err).Str("cache_key", key[:8]).Msg("cached result is unreadable")
		e.store.Invalidate(key)
		return Result{}, false
	}
	res.FromCache = true
	res.CacheKey = key[:8]
	return res, true
}

// observe updates metrics and hands the outcome to the learning sink.
// category is empty for successes.
func (e *Executor) observe(code string, res Result, category string) {
	if e.metrics != nil {
		status := "success"
		if !res.Success {
			status = "error"
		}
		e.metrics.RecordExecution(status, res.ExecutionTime)
		if category != "" {
			e.metrics.RecordError(category)
		}
		if category == CategorySecurity {
			e.metrics.RecordSecurityReject(category)
		}
		e.metrics.CodeSizeBytes.Observe(float64(len(code)))
		e.metrics.OutputSizeBytes.Observe(float64(len(res.Output)))
	}
	if e.recorder != nil {
		e.recorder.Record(Record{
			CodeHash:      fmt.Sprintf("%x", sha256.Sum256([]byte(code))),
			Success:       res.Success,
			ExecutionTime: res.ExecutionTime,
			ErrorCategory: category,
			CodeSnippet:   snippet(code, 500),
		})
	}
}

// categorizeStderr distinguishes syntax failures from ordinary runtime
// errors using the interpreter's traceback.
func categorizeStderr(stderr string) string {
	if strings.Contains(stderr, "SyntaxError") || strings.Contains(stderr, "IndentationError") {
		return CategorySyntax
	}
	return CategoryRuntime
}

func snippet(code string, max int) string {
	if len(code) <= max {
		return code
	}
	return code[:max]
}
