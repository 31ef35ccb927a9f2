package sandbox

import (
	"bytes"
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Result is the outcome of a single sandboxed execution. Elapsed is wall-clock
// seconds; on timeout it is pinned to the configured limit rather than the
// slightly larger observed duration.
type Result struct {
	ID       string  `json:"id"`
	Stdout   string  `json:"stdout"`
	Stderr   string  `json:"stderr"`
	Success  bool    `json:"success"`
	ExitCode int     `json:"exit_code"`
	Elapsed  float64 `json:"elapsed"`
	CodeHash string  `json:"code_hash"`
	TimedOut bool    `json:"timed_out"`
}

// Runner executes untrusted Python in a fresh subprocess per call. Each
// execution gets its own temp working directory and an isolated interpreter
// (-I: no user site dir, ignores PYTHON* env vars).
type Runner struct {
	opts   Options
	sem    chan struct{}
	active atomic.Int64
	wg     sync.WaitGroup
	mu     sync.Mutex
	closed bool
}

func NewRunner(opts Options) (*Runner, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return &Runner{
		opts: opts,
		sem:  make(chan struct{}, opts.MaxConcurrent),
	}, nil
}

// Run executes code with the given timeout (zero means the configured
// default). On timeout the partial Result is returned together with
// ErrTimeout; a non-zero interpreter exit is not an error, just
// Success=false.
func (r *Runner) Run(ctx context.Context, code string, timeout time.Duration) (Result, error) {
	execID := uuid.New().String()
	codeHash := fmt.Sprintf("%x", sha256.Sum256([]byte(code)))

	logger := log.With().
		Str("exec_id", execID).
		Str("code_hash", codeHash[:16]).
		Logger()

	res := Result{ID: execID, ExitCode: -1, CodeHash: codeHash}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return res, &ExecutionError{ExecID: execID, Op: "acquire_slot", Err: ErrCanceled}
	}
	r.mu.Unlock()

	if code == "" {
		return res, &ExecutionError{ExecID: execID, Op: "validate", Err: fmt.Errorf("%w: code is empty", ErrInvalidRequest)}
	}
	if len(code) > r.opts.MaxCodeLen {
		return res, &ExecutionError{ExecID: execID, Op: "validate",
			Err: fmt.Errorf("%w: code exceeds %d byte limit", ErrInvalidRequest, r.opts.MaxCodeLen)}
	}
	if timeout == 0 {
		timeout = r.opts.DefaultTimeout
	}
	if timeout > r.opts.MaxTimeout {
		return res, &ExecutionError{ExecID: execID, Op: "validate",
			Err: fmt.Errorf("%w: timeout exceeds %s maximum", ErrInvalidRequest, r.opts.MaxTimeout)}
	}

	select {
	case r.sem <- struct{}{}:
		defer func() { <-r.sem }()
	case <-ctx.Done():
		return res, &ExecutionError{ExecID: execID, Op: "acquire_slot", Err: ctx.Err()}
	}

	r.wg.Add(1)
	defer r.wg.Done()
	r.active.Add(1)
	defer r.active.Add(-1)

	workDir, err := os.MkdirTemp("", "codecell-exec-*")
	if err != nil {
		return res, &ExecutionError{ExecID: execID, Op: "create_temp_dir", Err: err}
	}
	defer os.RemoveAll(workDir)

	codeFile := filepath.Join(workDir, "main.py")
	if err := os.WriteFile(codeFile, []byte(code), 0600); err != nil {
		return res, &ExecutionError{ExecID: execID, Op: "write_code", Err: err}
	}

	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	// -I isolates the interpreter from the host environment, -B suppresses
	// bytecode caches in the temp dir, -u keeps output ordered on kill.
	cmd := exec.CommandContext(execCtx, r.opts.PythonBin, "-I", "-B", "-u", codeFile) // #nosec G204 -- binary from config, args fixed
	cmd.Dir = workDir
	cmd.Env = []string{"LANG=C.UTF-8", "HOME=" + workDir}

	// Run the child in its own process group so a kill reaches anything it
	// forked, not just the interpreter.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return nil
		}
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
	cmd.WaitDelay = 5 * time.Second

	var stdoutBuf, stderrBuf bytes.Buffer
	cmd.Stdout = &stdoutBuf
	cmd.Stderr = &stderrBuf

	logger.Info().Dur("timeout", timeout).Msg("execution started")

	start := time.Now()
	err = cmd.Run()
	elapsed := time.Since(start)

	res.Stdout = truncateOutput(stdoutBuf.String(), r.opts.MaxOutputLen)
	res.Stderr = truncateOutput(stderrBuf.String(), r.opts.MaxOutputLen)
	res.Elapsed = elapsed.Seconds()

	if execCtx.Err() == context.DeadlineExceeded {
		res.TimedOut = true
		res.Elapsed = timeout.Seconds()
		res.Stderr = fmt.Sprintf("Execution aborted (timeout after %s)", timeout)
		logger.Warn().Dur("timeout", timeout).Msg("execution timed out")
		return res, ErrTimeout
	}
	if ctx.Err() != nil {
		return res, &ExecutionError{ExecID: execID, Op: "run", Err: context.Cause(ctx)}
	}

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
		} else {
			return res, &ExecutionError{ExecID: execID, Op: "spawn", Err: fmt.Errorf("%w: %v", ErrSpawn, err)}
		}
	} else {
		res.ExitCode = 0
		res.Success = true
	}

	logger.Info().
		Int("exit_code", res.ExitCode).
		Dur("duration", elapsed).
		Msg("execution completed")

	return res, nil
}

func (r *Runner) ActiveCount() int64 {
	return r.active.Load()
}

// Close stops accepting work and waits for in-flight executions to drain.
func (r *Runner) Close() error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		log.Info().Msg("all executions drained")
	case <-time.After(30 * time.Second):
		log.Warn().Int64("active", r.active.Load()).Msg("timed out waiting for executions to drain")
	}
	return nil
}

// truncateOutput cuts s at max bytes and appends a marker so callers can tell
// the stream was clipped.
func truncateOutput(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + TruncationMarker
}
