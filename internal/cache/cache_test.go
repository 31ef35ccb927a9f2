package cache

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

type fakeResult struct {
	Output  string `json:"output"`
	Success bool   `json:"success"`
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(t.TempDir(), 100, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func mustSet(t *testing.T, s *Store, key string, result any) {
	t.Helper()
	if err := s.Set(key, result, 0); err != nil {
		t.Fatalf("Set(%s) error = %v", key, err)
	}
}

func TestGetSet_Roundtrip(t *testing.T) {
	s := newTestStore(t)
	key := Fingerprint("print(1)", "python", nil)

	mustSet(t, s, key, fakeResult{Output: "1\n", Success: true})

	raw, ok := s.Get(key)
	if !ok {
		t.Fatal("Get after Set: ok = false, want true")
	}
	var got fakeResult
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatal(err)
	}
	if got.Output != "1\n" || !got.Success {
		t.Errorf("got %+v, want {1\\n true}", got)
	}

	info := s.Snapshot()
	if info.Stats.Hits != 1 || info.Stats.Writes != 1 {
		t.Errorf("stats = %+v, want 1 hit and 1 write", info.Stats)
	}
}

func TestGet_Miss(t *testing.T) {
	s := newTestStore(t)

	if _, ok := s.Get(strings.Repeat("a", 64)); ok {
		t.Error("Get on empty store: ok = true, want false")
	}
	if misses := s.Snapshot().Stats.Misses; misses != 1 {
		t.Errorf("misses = %d, want 1", misses)
	}
}

func TestGet_ExpiredEntryRemoved(t *testing.T) {
	s := newTestStore(t)
	key := Fingerprint("print(1)", "python", nil)

	// A negative TTL yields an already expired entry.
	if err := s.Set(key, fakeResult{Output: "x"}, -time.Second); err != nil {
		t.Fatal(err)
	}

	if _, ok := s.Get(key); ok {
		t.Error("Get on expired entry: ok = true, want false")
	}
	if _, err := os.Stat(s.entryPath(key)); !os.IsNotExist(err) {
		t.Error("expired entry file still on disk after Get")
	}
}

func TestGet_CorruptEntrySelfHeals(t *testing.T) {
	s := newTestStore(t)
	key := Fingerprint("print(1)", "python", nil)
	mustSet(t, s, key, fakeResult{Output: "1\n"})

	if err := os.WriteFile(s.entryPath(key), []byte("{not json"), 0600); err != nil {
		t.Fatal(err)
	}

	if _, ok := s.Get(key); ok {
		t.Error("Get on corrupt entry: ok = true, want false")
	}
	if _, err := os.Stat(s.entryPath(key)); !os.IsNotExist(err) {
		t.Error("corrupt entry file still on disk after Get")
	}

	// The directory scan must agree the entry is gone.
	if n := s.Snapshot().TotalEntries; n != 0 {
		t.Errorf("TotalEntries = %d, want 0", n)
	}
}

func TestGet_KeyMismatchTreatedAsCorrupt(t *testing.T) {
	s := newTestStore(t)
	key := Fingerprint("print(1)", "python", nil)
	other := Fingerprint("print(2)", "python", nil)
	mustSet(t, s, other, fakeResult{Output: "2\n"})

	// Copy the entry for `other` under `key`'s file name: content no
	// longer matches the name, which must fail the integrity cross-check.
	data, err := os.ReadFile(s.entryPath(other))
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(s.entryPath(key), data, 0600); err != nil {
		t.Fatal(err)
	}

	if _, ok := s.Get(key); ok {
		t.Error("Get on misfiled entry: ok = true, want false")
	}
	if _, err := os.Stat(s.entryPath(key)); !os.IsNotExist(err) {
		t.Error("misfiled entry still on disk after Get")
	}
}

func TestInvalidate(t *testing.T) {
	s := newTestStore(t)
	key := Fingerprint("print(1)", "python", nil)
	mustSet(t, s, key, fakeResult{})

	if !s.Invalidate(key) {
		t.Error("Invalidate on existing entry = false, want true")
	}
	if s.Invalidate(key) {
		t.Error("Invalidate on removed entry = true, want false")
	}
}

func TestCleanupExpired(t *testing.T) {
	s := newTestStore(t)

	mustSet(t, s, Fingerprint("a", "python", nil), fakeResult{})
	if err := s.Set(Fingerprint("b", "python", nil), fakeResult{}, -time.Second); err != nil {
		t.Fatal(err)
	}
	if err := s.Set(Fingerprint("c", "python", nil), fakeResult{}, -time.Second); err != nil {
		t.Fatal(err)
	}
	// A corrupt file counts as removable garbage too.
	corrupt := filepath.Join(s.dir, strings.Repeat("d", 64)+".json")
	if err := os.WriteFile(corrupt, []byte("garbage"), 0600); err != nil {
		t.Fatal(err)
	}

	if removed := s.CleanupExpired(); removed != 3 {
		t.Errorf("CleanupExpired() = %d, want 3", removed)
	}
	if n := s.Snapshot().TotalEntries; n != 1 {
		t.Errorf("TotalEntries = %d, want 1", n)
	}
	if cleanups := s.Snapshot().Stats.Cleanups; cleanups != 1 {
		t.Errorf("cleanups = %d, want 1", cleanups)
	}

	// A second pass with nothing to do does not bump the counter.
	if removed := s.CleanupExpired(); removed != 0 {
		t.Errorf("second CleanupExpired() = %d, want 0", removed)
	}
	if cleanups := s.Snapshot().Stats.Cleanups; cleanups != 1 {
		t.Errorf("cleanups after no-op pass = %d, want 1", cleanups)
	}
}

func TestClearAll_ResetsCounters(t *testing.T) {
	s := newTestStore(t)
	key := Fingerprint("print(1)", "python", nil)
	mustSet(t, s, key, fakeResult{})
	s.Get(key)
	s.Get(strings.Repeat("0", 64))

	if removed := s.ClearAll(); removed != 1 {
		t.Errorf("ClearAll() = %d, want 1", removed)
	}

	info := s.Snapshot()
	if info.Stats != (Stats{}) {
		t.Errorf("stats after ClearAll = %+v, want zeroed", info.Stats)
	}
	if info.TotalEntries != 0 {
		t.Errorf("TotalEntries = %d, want 0", info.TotalEntries)
	}
}

func TestEviction_OldestFirstToTarget(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir, 1, time.Hour) // 1MB ceiling
	if err != nil {
		t.Fatal(err)
	}

	// Each entry carries a ~300KB payload; four exceed the 1MB ceiling.
	payload := fakeResult{Output: strings.Repeat("x", 300*1024)}
	keys := []string{
		Fingerprint("a", "python", nil),
		Fingerprint("b", "python", nil),
		Fingerprint("c", "python", nil),
	}
	for i, key := range keys {
		mustSet(t, s, key, payload)
		// Backdate so write order matches mtime order deterministically.
		old := time.Now().Add(-time.Duration(len(keys)-i) * time.Minute)
		if err := os.Chtimes(s.entryPath(key), old, old); err != nil {
			t.Fatal(err)
		}
	}

	last := Fingerprint("d", "python", nil)
	mustSet(t, s, last, payload) // pushes past the ceiling, triggers eviction

	var totalBytes int64
	for _, f := range s.listEntries() {
		totalBytes += f.size
	}
	if ceiling := int64(1024 * 1024); totalBytes > ceiling*8/10 {
		t.Errorf("post-eviction size = %d, want <= %d (80%% of ceiling)", totalBytes, ceiling*8/10)
	}

	// The oldest entries are the evicted ones; the newest write survives.
	if _, err := os.Stat(s.entryPath(keys[0])); !os.IsNotExist(err) {
		t.Error("oldest entry survived eviction, want removed")
	}
	if _, err := os.Stat(s.entryPath(last)); err != nil {
		t.Errorf("newest entry missing after eviction: %v", err)
	}
}

func TestSnapshot_HitRate(t *testing.T) {
	s := newTestStore(t)

	if rate := s.Snapshot().HitRatePercent; rate != 0 {
		t.Errorf("hit rate with no lookups = %v, want 0", rate)
	}

	key := Fingerprint("print(1)", "python", nil)
	mustSet(t, s, key, fakeResult{})
	s.Get(key)                        // hit
	s.Get(strings.Repeat("f", 64))    // miss
	s.Get(key)                        // hit
	s.Get(strings.Repeat("e", 64))    // miss

	if rate := s.Snapshot().HitRatePercent; rate != 50 {
		t.Errorf("hit rate = %v, want 50", rate)
	}
}

func TestSet_AtomicPublish(t *testing.T) {
	s := newTestStore(t)
	key := Fingerprint("print(1)", "python", nil)
	mustSet(t, s, key, fakeResult{Output: "v1"})
	mustSet(t, s, key, fakeResult{Output: "v2"})

	// No staging file may remain after publish.
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		t.Fatal(err)
	}
	for _, de := range entries {
		if strings.HasSuffix(de.Name(), ".tmp") {
			t.Errorf("staging file %s left behind", de.Name())
		}
	}

	raw, ok := s.Get(key)
	if !ok {
		t.Fatal("Get after overwrite: ok = false")
	}
	var got fakeResult
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatal(err)
	}
	if got.Output != "v2" {
		t.Errorf("Output = %q, want v2 (latest write wins)", got.Output)
	}
}
