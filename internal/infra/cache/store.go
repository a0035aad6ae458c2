// Package cache persists upstream payloads with a write timestamp and,
// optionally, the date range they were fetched for.
//
// This package contains:
//   - Store: backend abstraction (file, memory, Redis, PostgreSQL)
//   - Cache: freshness and range-coverage policy on top of a Store
package cache

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/vietddude/deliverycal/internal/core/domain"
)

var (
	// ErrNotFound is returned by a Store when no entry exists for a key.
	ErrNotFound = errors.New("cache entry not found")

	// ErrWrite wraps every failure to persist an entry.
	ErrWrite = errors.New("cache write failed")
)

// Entry is a cached payload together with its metadata.
type Entry struct {
	Payload  json.RawMessage   `json:"data"`
	CachedAt time.Time         `json:"cached_at"`
	Range    *domain.DateRange `json:"range,omitempty"`
}

// Clone returns a deep copy so callers never share the store's buffers.
func (e Entry) Clone() Entry {
	out := Entry{
		Payload:  bytes.Clone(e.Payload),
		CachedAt: e.CachedAt,
	}
	if e.Range != nil {
		r := *e.Range
		out.Range = &r
	}
	return out
}

func (e Entry) validate() error {
	if e.CachedAt.IsZero() {
		return errors.New("entry has no write timestamp")
	}
	if len(e.Payload) == 0 || !json.Valid(e.Payload) {
		return errors.New("entry payload is not valid JSON")
	}
	if e.Range != nil {
		if err := e.Range.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Store is a key-addressed persistence backend. Put replaces any previous
// entry for the key as a whole.
type Store interface {
	// Get returns the entry for key, or ErrNotFound
	Get(ctx context.Context, key string) (*Entry, error)

	// Put stores e under key
	Put(ctx context.Context, key string, e Entry) error

	// Delete removes the entry for key; deleting a missing key is not an error
	Delete(ctx context.Context, key string) error
}

// Key helpers
const SortPatternsKey = "sortpatterns"

func PostalCodeKey(postalCode string) string {
	return "postalcode_" + postalCode
}

// sanitizeKey maps a logical key to a name safe for file systems and Redis.
// Unsafe bytes are percent-escaped, so distinct keys keep distinct names.
func sanitizeKey(key string) string {
	var b strings.Builder
	for i := 0; i < len(key); i++ {
		c := key[i]
		if isSafeKeyByte(c) {
			b.WriteByte(c)
			continue
		}
		fmt.Fprintf(&b, "%%%02X", c)
	}
	return b.String()
}

func isSafeKeyByte(c byte) bool {
	switch {
	case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9':
		return true
	case c == '.' || c == '_' || c == '-':
		return true
	}
	return false
}

// kindOf returns the key family used as a metrics label.
func kindOf(key string) string {
	kind, _, _ := strings.Cut(key, "_")
	return kind
}
