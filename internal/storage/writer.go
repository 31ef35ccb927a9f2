package storage

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Store is the sink a Writer drains into. *DB satisfies it.
type Store interface {
	LogExecution(ctx context.Context, rec *ExecutionRecord) error
}

// Writer buffers learning records and writes them asynchronously so the
// execution path never waits on the database. Records are dropped, with a
// warning, when the buffer is full.
type Writer struct {
	store Store
	ch    chan *ExecutionRecord
	wg    sync.WaitGroup
	done  chan struct{}
}

func NewWriter(store Store, bufferSize int) *Writer {
	if bufferSize < 1 {
		bufferSize = 10000
	}
	return &Writer{
		store: store,
		ch:    make(chan *ExecutionRecord, bufferSize),
		done:  make(chan struct{}),
	}
}

func (w *Writer) Start() {
	w.wg.Add(1)
	go w.processLoop()
}

func (w *Writer) Log(rec *ExecutionRecord) {
	select {
	case w.ch <- rec:
	default:
		log.Warn().Str("code_hash", rec.CodeHash).Msg("learning buffer full, dropping record")
	}
}

func (w *Writer) Flush(timeout time.Duration) {
	close(w.done)

	doneCh := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(doneCh)
	}()

	select {
	case <-doneCh:
		log.Info().Msg("learning writer flushed")
	case <-time.After(timeout):
		log.Warn().Msg("learning writer flush timed out")
	}
}

func (w *Writer) processLoop() {
	defer w.wg.Done()

	for {
		select {
		case rec := <-w.ch:
			w.writeWithRetry(rec)
		case <-w.done:
			// Drain remaining entries
			for {
				select {
				case rec := <-w.ch:
					w.writeWithRetry(rec)
				default:
					return
				}
			}
		}
	}
}

func (w *Writer) writeWithRetry(rec *ExecutionRecord) {
	const maxRetries = 3

	for attempt := 0; attempt <= maxRetries; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := w.store.LogExecution(ctx, rec)
		cancel()

		if err == nil {
			return
		}

		if attempt < maxRetries {
			backoff := time.Duration(math.Pow(2, float64(attempt))) * 100 * time.Millisecond
			log.Warn().
				Err(err).
				Str("code_hash", rec.CodeHash).
				Int("attempt", attempt+1).
				Dur("backoff", backoff).
				Msg("learning write failed, retrying")
			time.Sleep(backoff)
		} else {
			log.Error().
				Err(err).
				Str("code_hash", rec.CodeHash).
				Msg("learning write failed permanently after retries")
		}
	}
}
