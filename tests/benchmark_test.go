package tests

import (
	"context"
	"fmt"
	"os/exec"
	"sync"
	"testing"
	"time"

	"codecell/internal/analyzer"
	"codecell/internal/cache"
	"codecell/internal/sandbox"
)

func BenchmarkAnalyze(b *testing.B) {
	an := analyzer.New()

	codes := []struct {
		name string
		code string
	}{
		{"benign", "print('hello world')"},
		{"dangerous", "import os\nos.system('id')"},
		{"complex", `
import math
import json

def fib(n):
    if n < 2:
        return n
    return fib(n - 1) + fib(n - 2)

class Runner:
    def run(self):
        for i in range(10):
            print(fib(i))

Runner().run()
`},
	}

	for _, tc := range codes {
		b.Run(tc.name, func(b *testing.B) {
			for i := 0; i < b.N; i++ {
				an.Analyze(tc.code)
			}
		})
	}
}

func BenchmarkFingerprint(b *testing.B) {
	params := map[string]any{"timeout": 10.0, "max_output_length": 10000}
	for i := 0; i < b.N; i++ {
		cache.Fingerprint("print('hello world')", "python", params)
	}
}

func BenchmarkCacheGet(b *testing.B) {
	store, err := cache.New(b.TempDir(), 10, time.Hour)
	if err != nil {
		b.Fatal(err)
	}
	key := cache.Fingerprint("print(1)", "python", nil)
	if err := store.Set(key, map[string]string{"output": "1\n"}, 0); err != nil {
		b.Fatal(err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, ok := store.Get(key); !ok {
			b.Fatal("cache miss")
		}
	}
}

func BenchmarkExecution(b *testing.B) {
	if _, err := exec.LookPath("python3"); err != nil {
		b.Skip("python3 not available")
	}

	runner, err := sandbox.NewRunner(sandbox.DefaultOptions())
	if err != nil {
		b.Fatal(err)
	}
	defer runner.Close()

	ctx := context.Background()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := runner.Run(ctx, "print('hello')", 0); err != nil {
			b.Fatalf("execution failed: %v", err)
		}
	}
}

func BenchmarkConcurrentExecutions(b *testing.B) {
	if _, err := exec.LookPath("python3"); err != nil {
		b.Skip("python3 not available")
	}

	runner, err := sandbox.NewRunner(sandbox.DefaultOptions())
	if err != nil {
		b.Fatal(err)
	}
	defer runner.Close()

	ctx := context.Background()
	concurrencyLevels := []int{5, 20}

	for _, conc := range concurrencyLevels {
		b.Run(fmt.Sprintf("concurrent_%d", conc), func(b *testing.B) {
			for i := 0; i < b.N; i++ {
				var wg sync.WaitGroup
				wg.Add(conc)
				for j := 0; j < conc; j++ {
					go func() {
						defer wg.Done()
						_, _ = runner.Run(ctx, "print('hello')", 0)
					}()
				}
				wg.Wait()
			}
		})
	}
}

func TestInterpreterStartupLatency(t *testing.T) {
	if _, err := exec.LookPath("python3"); err != nil {
		t.Skip("python3 not available")
	}

	runner, err := sandbox.NewRunner(sandbox.DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}
	defer runner.Close()

	ctx := context.Background()

	// Warm up the filesystem cache
	if _, err := runner.Run(ctx, "pass", 0); err != nil {
		t.Fatalf("warmup failed: %v", err)
	}

	const iterations = 5
	var totalDuration time.Duration

	for range iterations {
		start := time.Now()
		res, err := runner.Run(ctx, "print('ok')", 0)
		totalDuration += time.Since(start)

		if err != nil {
			t.Fatalf("execution failed: %v", err)
		}
		if !res.Success {
			t.Fatalf("non-zero exit: %d (stderr: %s)", res.ExitCode, res.Stderr)
		}
	}

	avgLatency := totalDuration / iterations
	t.Logf("Average execution latency: %s", avgLatency)

	if avgLatency > 5*time.Second {
		t.Errorf("average latency too high: %s", avgLatency)
	}
}
