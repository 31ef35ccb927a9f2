// Package cache is a content-addressed, file-backed store for execution
// results. Entries are independent JSON files published with an atomic
// rename, so concurrent readers and writers on the same key never observe
// a partial entry and no entry-level locking is needed.
package cache

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// evictionTarget is the fraction of the size ceiling the store is reduced
// to when eviction triggers.
const evictionTarget = 0.8

// Entry is the persisted form of one cached result. The key is stored in
// the entry itself so a read can cross-check file content against file name.
type Entry struct {
	Result     json.RawMessage `json:"result"`
	CachedAt   float64         `json:"cached_at"`
	ExpiresAt  float64         `json:"expires_at"`
	CacheKey   string          `json:"cache_key"`
	TTLSeconds int64           `json:"ttl_seconds"`
}

// Stats is a snapshot of the operation counters.
type Stats struct {
	Hits     int64 `json:"hits"`
	Misses   int64 `json:"misses"`
	Writes   int64 `json:"writes"`
	Cleanups int64 `json:"cleanups"`
}

// Info combines counters with derived store-level numbers for monitoring.
type Info struct {
	Stats          Stats   `json:"stats"`
	HitRatePercent float64 `json:"hit_rate_percent"`
	TotalEntries   int     `json:"total_entries"`
	TotalSizeMB    float64 `json:"total_size_mb"`
	MaxSizeMB      float64 `json:"max_size_mb"`
	Directory      string  `json:"directory"`
}

// Store owns one cache directory. Construct one per process (or per test)
// and pass it by handle; there is deliberately no package-level instance.
type Store struct {
	dir        string
	maxBytes   int64
	defaultTTL time.Duration

	mu    sync.Mutex
	stats Stats
}

// New opens (creating if needed) a cache directory.
func New(dir string, maxSizeMB int64, defaultTTL time.Duration) (*Store, error) {
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("creating cache directory: %w", err)
	}
	log.Info().Str("dir", dir).Int64("max_size_mb", maxSizeMB).Msg("cache store opened")
	return &Store{
		dir:        dir,
		maxBytes:   maxSizeMB * 1024 * 1024,
		defaultTTL: defaultTTL,
	}, nil
}

func (s *Store) entryPath(key string) string {
	return filepath.Join(s.dir, key+".json")
}

// Get returns the stored result payload for key, or ok=false on a miss.
// Expired and corrupt entries are deleted on read so the store self-heals.
func (s *Store) Get(key string) (json.RawMessage, bool) {
	path := s.entryPath(key)

	data, err := os.ReadFile(path) // #nosec G304 -- path is dir + hex digest
	if err != nil {
		s.count(func(st *Stats) { st.Misses++ })
		return nil, false
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil || entry.CacheKey != key {
		// Corrupt or misfiled entry: remove it rather than serving it.
		if rmErr := os.Remove(path); rmErr != nil && !os.IsNotExist(rmErr) {
			log.Warn().Err(rmErr).Str("key", shortKey(key)).Msg("failed to remove corrupt cache entry")
		} else {
			log.Warn().Str("key", shortKey(key)).Msg("corrupt cache entry removed")
		}
		s.count(func(st *Stats) { st.Misses++ })
		return nil, false
	}

	if nowEpoch() > entry.ExpiresAt {
		if rmErr := os.Remove(path); rmErr != nil && !os.IsNotExist(rmErr) {
			log.Warn().Err(rmErr).Str("key", shortKey(key)).Msg("failed to remove expired cache entry")
		}
		s.count(func(st *Stats) { st.Misses++ })
		log.Debug().Str("key", shortKey(key)).Msg("cache entry expired")
		return nil, false
	}

	s.count(func(st *Stats) { st.Hits++ })
	log.Debug().Str("key", shortKey(key)).Msg("cache hit")
	return entry.Result, true
}

// Set stores result under key. A ttlOverride of zero means the default TTL.
// The entry is written to a temp file and renamed into place, so a
// concurrent Get sees either the old complete entry or the new one.
func (s *Store) Set(key string, result any, ttlOverride time.Duration) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("encoding cache payload: %w", err)
	}

	ttl := s.defaultTTL
	if ttlOverride != 0 {
		ttl = ttlOverride
	}

	now := nowEpoch()
	entry := Entry{
		Result:     payload,
		CachedAt:   now,
		ExpiresAt:  now + ttl.Seconds(),
		CacheKey:   key,
		TTLSeconds: int64(ttl.Seconds()),
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encoding cache entry: %w", err)
	}

	path := s.entryPath(key)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("writing cache entry: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("publishing cache entry: %w", err)
	}

	s.count(func(st *Stats) { st.Writes++ })
	log.Debug().Str("key", shortKey(key)).Msg("cache entry stored")

	s.evictIfOversized()
	return nil
}

// Invalidate removes one entry and reports whether it existed.
func (s *Store) Invalidate(key string) bool {
	err := os.Remove(s.entryPath(key))
	if err != nil {
		return false
	}
	log.Debug().Str("key", shortKey(key)).Msg("cache entry invalidated")
	return true
}

// CleanupExpired removes every expired or unreadable entry and returns
// the number removed. A failure on one entry is logged and skipped; it
// never aborts the pass.
func (s *Store) CleanupExpired() int {
	removed := 0
	now := nowEpoch()

	for _, f := range s.listEntries() {
		data, err := os.ReadFile(f.path) // #nosec G304 -- paths come from our own directory scan
		if err != nil {
			log.Warn().Err(err).Str("file", f.path).Msg("unreadable cache entry during cleanup")
			if os.Remove(f.path) == nil {
				removed++
			}
			continue
		}

		var entry Entry
		if err := json.Unmarshal(data, &entry); err != nil || now > entry.ExpiresAt {
			if rmErr := os.Remove(f.path); rmErr != nil {
				log.Warn().Err(rmErr).Str("file", f.path).Msg("failed to remove cache entry during cleanup")
				continue
			}
			removed++
		}
	}

	if removed > 0 {
		s.count(func(st *Stats) { st.Cleanups++ })
		log.Info().Int("removed", removed).Msg("expired cache entries cleaned up")
	}
	return removed
}

// ClearAll removes every entry and resets the counters.
func (s *Store) ClearAll() int {
	removed := 0
	for _, f := range s.listEntries() {
		if err := os.Remove(f.path); err != nil {
			log.Warn().Err(err).Str("file", f.path).Msg("failed to remove cache entry")
			continue
		}
		removed++
	}

	s.mu.Lock()
	s.stats = Stats{}
	s.mu.Unlock()

	log.Info().Int("removed", removed).Msg("cache cleared")
	return removed
}

// Snapshot returns the counters plus derived size and hit-rate numbers.
func (s *Store) Snapshot() Info {
	s.mu.Lock()
	stats := s.stats
	s.mu.Unlock()

	entries := s.listEntries()
	var totalBytes int64
	for _, f := range entries {
		totalBytes += f.size
	}

	hitRate := 0.0
	if total := stats.Hits + stats.Misses; total > 0 {
		hitRate = float64(stats.Hits) / float64(total) * 100
	}

	return Info{
		Stats:          stats,
		HitRatePercent: round2(hitRate),
		TotalEntries:   len(entries),
		TotalSizeMB:    round2(float64(totalBytes) / (1024 * 1024)),
		MaxSizeMB:      round2(float64(s.maxBytes) / (1024 * 1024)),
		Directory:      s.dir,
	}
}

// DefaultTTL returns the TTL applied when Set is called without override.
func (s *Store) DefaultTTL() time.Duration {
	return s.defaultTTL
}

// evictIfOversized deletes oldest-by-write-time entries until total size
// drops to 80% of the ceiling. This approximates LRU by write time, not
// access time: simpler, and good enough for a result cache whose entries
// are written once and read until they expire.
func (s *Store) evictIfOversized() {
	entries := s.listEntries()

	var totalBytes int64
	for _, f := range entries {
		totalBytes += f.size
	}
	if totalBytes <= s.maxBytes {
		return
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].modTime.Before(entries[j].modTime)
	})

	target := int64(float64(s.maxBytes) * evictionTarget)
	evicted := 0
	for _, f := range entries {
		if totalBytes <= target {
			break
		}
		if err := os.Remove(f.path); err != nil {
			log.Warn().Err(err).Str("file", f.path).Msg("failed to evict cache entry")
			continue
		}
		totalBytes -= f.size
		evicted++
	}

	if evicted > 0 {
		log.Info().Int("evicted", evicted).Int64("size_bytes", totalBytes).Msg("cache size eviction")
	}
}

type entryFile struct {
	path    string
	size    int64
	modTime time.Time
}

func (s *Store) listEntries() []entryFile {
	dirEntries, err := os.ReadDir(s.dir)
	if err != nil {
		log.Warn().Err(err).Str("dir", s.dir).Msg("failed to scan cache directory")
		return nil
	}

	files := make([]entryFile, 0, len(dirEntries))
	for _, de := range dirEntries {
		if de.IsDir() || filepath.Ext(de.Name()) != ".json" {
			continue
		}
		info, err := de.Info()
		if err != nil {
			continue
		}
		files = append(files, entryFile{
			path:    filepath.Join(s.dir, de.Name()),
			size:    info.Size(),
			modTime: info.ModTime(),
		})
	}
	return files
}

func (s *Store) count(update func(*Stats)) {
	s.mu.Lock()
	update(&s.stats)
	s.mu.Unlock()
}

func nowEpoch() float64 {
	return float64(time.Now().UnixNano()) / float64(time.Second)
}

func shortKey(key string) string {
	if len(key) > 8 {
		return key[:8]
	}
	return key
}

func round2(v float64) float64 {
	return float64(int64(v*100+0.5)) / 100
}
