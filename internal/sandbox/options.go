package sandbox

import (
	"fmt"
	"time"
)

// TruncationMarker is appended to any stream cut at MaxOutputLen.
const TruncationMarker = "\n... (output truncated)"

// Options bounds what a single execution may consume.
type Options struct {
	PythonBin      string        // interpreter binary, resolved via PATH
	DefaultTimeout time.Duration // applied when the caller passes no timeout
	MaxTimeout     time.Duration // hard ceiling for any requested timeout
	MaxOutputLen   int           // per-stream truncation threshold in bytes
	MaxCodeLen     int           // submission size ceiling in bytes
	MaxConcurrent  int           // concurrent execution slots
}

// DefaultOptions returns the limits applied when nothing is configured.
func DefaultOptions() Options {
	return Options{
		PythonBin:      "python3",
		DefaultTimeout: 10 * time.Second,
		MaxTimeout:     60 * time.Second,
		MaxOutputLen:   10000,
		MaxCodeLen:     50000,
		MaxConcurrent:  100,
	}
}

func (o Options) Validate() error {
	if o.PythonBin == "" {
		return fmt.Errorf("%w: python_bin is empty", ErrInvalidRequest)
	}
	if o.DefaultTimeout < time.Second || o.DefaultTimeout > o.MaxTimeout {
		return fmt.Errorf("%w: default timeout must be 1s-%s, got %s",
			ErrInvalidRequest, o.MaxTimeout, o.DefaultTimeout)
	}
	if o.MaxTimeout > 60*time.Second {
		return fmt.Errorf("%w: max timeout must be <= 60s, got %s", ErrInvalidRequest, o.MaxTimeout)
	}
	if o.MaxOutputLen < 1 {
		return fmt.Errorf("%w: max output length must be >= 1, got %d", ErrInvalidRequest, o.MaxOutputLen)
	}
	if o.MaxCodeLen < 1 {
		return fmt.Errorf("%w: max code length must be >= 1, got %d", ErrInvalidRequest, o.MaxCodeLen)
	}
	if o.MaxConcurrent < 1 {
		return fmt.Errorf("%w: max concurrent must be >= 1, got %d", ErrInvalidRequest, o.MaxConcurrent)
	}
	return nil
}
