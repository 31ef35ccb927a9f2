package storage

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// fakeStore collects records and can fail a configurable number of times.
type fakeStore struct {
	mu       sync.Mutex
	records  []*ExecutionRecord
	failures int
}

func (f *fakeStore) LogExecution(ctx context.Context, rec *ExecutionRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failures > 0 {
		f.failures--
		return errors.New("transient write failure")
	}
	f.records = append(f.records, rec)
	return nil
}

func (f *fakeStore) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.records)
}

func TestWriter_LogAndFlush(t *testing.T) {
	store := &fakeStore{}
	w := NewWriter(store, 10)
	w.Start()

	for i := 0; i < 5; i++ {
		w.Log(&ExecutionRecord{CodeHash: "abc", Success: true})
	}
	w.Flush(5 * time.Second)

	if got := store.count(); got != 5 {
		t.Errorf("stored %d records, want 5", got)
	}
}

func TestWriter_RetriesTransientFailures(t *testing.T) {
	store := &fakeStore{failures: 2}
	w := NewWriter(store, 10)
	w.Start()

	w.Log(&ExecutionRecord{CodeHash: "abc"})
	w.Flush(10 * time.Second)

	if got := store.count(); got != 1 {
		t.Errorf("stored %d records, want 1 after retries", got)
	}
}

func TestWriter_DropsWhenBufferFull(t *testing.T) {
	store := &fakeStore{}
	w := NewWriter(store, 2)
	// Not started: the buffer cannot drain, so the third Log must drop
	// instead of blocking.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 3; i++ {
			w.Log(&ExecutionRecord{CodeHash: "abc"})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Log blocked on a full buffer")
	}
}

func TestNewWriter_DefaultBuffer(t *testing.T) {
	w := NewWriter(&fakeStore{}, 0)
	if cap(w.ch) != 10000 {
		t.Errorf("buffer cap = %d, want 10000", cap(w.ch))
	}
}
