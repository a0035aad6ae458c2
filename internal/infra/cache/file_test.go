package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/vietddude/deliverycal/internal/core/domain"
)

func TestFileStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	store, err := NewFileStore(filepath.Join(t.TempDir(), "cache"))
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}

	r := domain.DateRange{From: domain.MustParseDate("2024-06-01"), To: domain.MustParseDate("2024-08-30")}
	in := Entry{
		Payload:  json.RawMessage(`[{"plannedDate":"2024-06-03","patternName":"X"}]`),
		CachedAt: time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC),
		Range:    &r,
	}
	if err := store.Put(ctx, SortPatternsKey, in); err != nil {
		t.Fatalf("Put: %v", err)
	}

	out, err := store.Get(ctx, SortPatternsKey)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !out.CachedAt.Equal(in.CachedAt) {
		t.Errorf("cached_at = %v, want %v", out.CachedAt, in.CachedAt)
	}
	if out.Range == nil || *out.Range != r {
		t.Errorf("range = %v, want %v", out.Range, r)
	}
	if string(out.Payload) != string(in.Payload) {
		t.Errorf("payload = %s, want %s", out.Payload, in.Payload)
	}
}

func TestFileStore_FileLayout(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store, _ := NewFileStore(dir)

	_ = store.Put(ctx, PostalCodeKey("56632"), Entry{
		Payload:  json.RawMessage(`{"patternName":"S"}`),
		CachedAt: time.Now(),
	})

	data, err := os.ReadFile(filepath.Join(dir, "postalcode_56632.json"))
	if err != nil {
		t.Fatalf("expected one file per key: %v", err)
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("file is not JSON: %v", err)
	}
	for _, field := range []string{"data", "cached_at"} {
		if _, ok := raw[field]; !ok {
			t.Errorf("file missing %q field", field)
		}
	}
	if _, ok := raw["range"]; ok {
		t.Error("unbounded entry should not carry a range")
	}
}

func TestFileStore_NoTempFilesLeft(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store, _ := NewFileStore(dir)

	for i := 0; i < 3; i++ {
		if err := store.Put(ctx, "k", Entry{Payload: json.RawMessage(`1`), CachedAt: time.Now()}); err != nil {
			t.Fatalf("Put: %v", err)
		}
	}

	files, _ := os.ReadDir(dir)
	if len(files) != 1 {
		names := make([]string, 0, len(files))
		for _, f := range files {
			names = append(names, f.Name())
		}
		t.Errorf("expected a single cache file, got %s", strings.Join(names, ", "))
	}
}

func TestFileStore_CorruptFileIsMiss(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store, _ := NewFileStore(dir)

	if err := os.WriteFile(store.Path(SortPatternsKey), []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := store.Get(ctx, SortPatternsKey); err == nil {
		t.Error("expected decode error from store")
	}

	c := New(store, time.Hour)
	want := domain.DateRange{From: domain.MustParseDate("2024-01-01"), To: domain.MustParseDate("2024-01-02")}
	if _, ok := c.GetRange(ctx, SortPatternsKey, want); ok {
		t.Error("expected corrupt file to be treated as a miss")
	}
}

func TestFileStore_MissingAndDelete(t *testing.T) {
	ctx := context.Background()
	store, _ := NewFileStore(t.TempDir())

	if _, err := store.Get(ctx, "nope"); err != ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if err := store.Delete(ctx, "nope"); err != nil {
		t.Errorf("deleting a missing key should succeed, got %v", err)
	}

	_ = store.Put(ctx, "k", Entry{Payload: json.RawMessage(`1`), CachedAt: time.Now()})
	if err := store.Delete(ctx, "k"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := store.Get(ctx, "k"); err != ErrNotFound {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestNewFileStore_RequiresDir(t *testing.T) {
	if _, err := NewFileStore(""); err == nil {
		t.Error("expected error for empty dir")
	}
}

func TestFileStore_ConcurrentWritersNeverCorrupt(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "cache")

	// Two stores on one directory stand in for two processes.
	stores := make([]*FileStore, 2)
	for i := range stores {
		s, err := NewFileStore(dir)
		if err != nil {
			t.Fatalf("NewFileStore: %v", err)
		}
		stores[i] = s
	}

	const writers = 50
	payloads := make(map[string]bool, writers)
	for i := 0; i < writers; i++ {
		payloads[fmt.Sprintf(`{"writer":%d,"pad":"%s"}`, i, strings.Repeat("x", 4096))] = true
	}

	var wg sync.WaitGroup
	errs := make(chan error, writers*2)
	i := 0
	for payload := range payloads {
		store := stores[i%2]
		i++
		wg.Add(2)
		go func(payload string) {
			defer wg.Done()
			e := Entry{Payload: json.RawMessage(payload), CachedAt: time.Now()}
			if err := store.Put(ctx, SortPatternsKey, e); err != nil {
				errs <- fmt.Errorf("put: %w", err)
			}
		}(payload)
		go func() {
			defer wg.Done()
			e, err := store.Get(ctx, SortPatternsKey)
			if errors.Is(err, ErrNotFound) {
				return
			}
			if err != nil {
				errs <- fmt.Errorf("get: %w", err)
				return
			}
			if !payloads[string(e.Payload)] {
				errs <- fmt.Errorf("read a payload no writer wrote: %.40s", e.Payload)
			}
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Error(err)
	}

	e, err := stores[0].Get(ctx, SortPatternsKey)
	if err != nil {
		t.Fatalf("final Get: %v", err)
	}
	if !payloads[string(e.Payload)] {
		t.Errorf("final payload was not written by any writer")
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("expected only the cache file, found %d entries", len(entries))
	}
}
