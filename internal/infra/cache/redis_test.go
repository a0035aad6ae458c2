package cache

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/vietddude/deliverycal/internal/core/domain"
)

func TestRedisStore(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)

	store, err := NewRedisStore(ctx, RedisConfig{URL: "redis://" + mr.Addr()}, 48*time.Hour)
	if err != nil {
		t.Fatalf("NewRedisStore: %v", err)
	}
	defer store.Close()

	if _, err := store.Get(ctx, SortPatternsKey); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	r := domain.DateRange{From: domain.MustParseDate("2024-06-01"), To: domain.MustParseDate("2024-06-30")}
	in := Entry{Payload: json.RawMessage(`[]`), CachedAt: time.Now().UTC().Truncate(time.Second), Range: &r}
	if err := store.Put(ctx, SortPatternsKey, in); err != nil {
		t.Fatalf("Put: %v", err)
	}

	key := defaultRedisPrefix + SortPatternsKey
	if !mr.Exists(key) {
		t.Fatalf("expected key %s in redis", key)
	}
	if ttl := mr.TTL(key); ttl != 48*time.Hour {
		t.Errorf("expected key expiry 48h, got %v", ttl)
	}

	out, err := store.Get(ctx, SortPatternsKey)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !out.CachedAt.Equal(in.CachedAt) || out.Range == nil || *out.Range != r {
		t.Errorf("round trip mismatch: %+v", out)
	}

	if err := store.Delete(ctx, SortPatternsKey); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if mr.Exists(key) {
		t.Error("expected key to be deleted")
	}
}

func TestRedisStore_CorruptValueIsMiss(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)

	store, err := NewRedisStore(ctx, RedisConfig{URL: "redis://" + mr.Addr(), Prefix: "test:"}, 0)
	if err != nil {
		t.Fatalf("NewRedisStore: %v", err)
	}
	defer store.Close()

	if err := mr.Set("test:k", "garbage"); err != nil {
		t.Fatal(err)
	}

	c := New(store, time.Hour)
	if _, ok := c.Get(ctx, "k"); ok {
		t.Error("expected corrupt value to be treated as a miss")
	}
}

func TestNewRedisStore_BadURL(t *testing.T) {
	if _, err := NewRedisStore(context.Background(), RedisConfig{URL: "not-a-url"}, 0); err == nil {
		t.Error("expected error for invalid URL")
	}
}
