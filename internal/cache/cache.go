// Package cache stores extracted timelines keyed by the content they were
// extracted from.
//
// Keys hash the raw input bytes, the extractor identity and the extractor
// configuration, never a path: the same audio analyzed with the same
// settings hits the cache wherever it lives on disk.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/normanking/visemekit/internal/timeline"
)

// Common errors
var (
	ErrMiss       = errors.New("cache miss")
	ErrInvalidKey = errors.New("invalid cache key")
)

// keyDomain separates visemekit keys from other SHA-256 uses of the same bytes.
const keyDomain = "visemekit/timeline/v1"

// Key is a hex-encoded SHA-256 cache key.
type Key string

// Valid reports whether k looks like a key produced by NewKey.
func (k Key) Valid() bool {
	if len(k) != sha256.Size*2 {
		return false
	}
	_, err := hex.DecodeString(string(k))
	return err == nil
}

func (k Key) String() string { return string(k) }

// Short returns the first 12 characters for display.
func (k Key) Short() string {
	if len(k) <= 12 {
		return string(k)
	}
	return string(k[:12])
}

// ParseKey validates a key string.
func ParseKey(s string) (Key, error) {
	k := Key(s)
	if !k.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, s)
	}
	return k, nil
}

// NewKey hashes content together with the extractor identity and config.
func NewKey(content []byte, extractorID string, config map[string]string) Key {
	sum := sha256.Sum256(content)
	return combine(sum[:], extractorID, config)
}

// KeyFromReader streams r through the hash.
func KeyFromReader(r io.Reader, extractorID string, config map[string]string) (Key, error) {
	h := sha256.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", fmt.Errorf("hash content: %w", err)
	}
	return combine(h.Sum(nil), extractorID, config), nil
}

// KeyFromFile hashes the file at path without loading it into memory.
func KeyFromFile(path, extractorID string, config map[string]string) (Key, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	return KeyFromReader(f, extractorID, config)
}

func combine(contentSum []byte, extractorID string, config map[string]string) Key {
	h := sha256.New()
	io.WriteString(h, keyDomain)
	h.Write([]byte{0})
	h.Write(contentSum)
	io.WriteString(h, extractorID)
	h.Write([]byte{0})

	keys := make([]string, 0, len(config))
	for k := range config {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		io.WriteString(h, k)
		h.Write([]byte{'='})
		io.WriteString(h, config[k])
		h.Write([]byte{0})
	}
	return Key(hex.EncodeToString(h.Sum(nil)))
}

// Store is a timeline cache backend. Implementations never evict on their
// own and replace entries atomically.
type Store interface {
	// Get returns ErrMiss for absent entries and a *CacheError (which also
	// matches ErrMiss) for corrupt or unreadable ones.
	Get(ctx context.Context, key Key) (*timeline.Timeline, error)
	Put(ctx context.Context, key Key, tl *timeline.Timeline) error
	Delete(ctx context.Context, key Key) error
	// Clear removes every entry and returns how many were removed.
	Clear(ctx context.Context) (int, error)
	Keys(ctx context.Context) ([]Key, error)
	Close() error
}

// CacheError reports a corrupt or unreadable entry. It matches ErrMiss so
// callers can treat it as a miss and re-extract.
type CacheError struct {
	Key Key
	Op  string
	Err error
}

func (e *CacheError) Error() string {
	return fmt.Sprintf("cache %s %s: %v", e.Op, e.Key.Short(), e.Err)
}

func (e *CacheError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrMiss) true for corrupt entries.
func (e *CacheError) Is(target error) bool { return target == ErrMiss }

// IsCorrupt reports whether err is a *CacheError.
func IsCorrupt(err error) bool {
	var ce *CacheError
	return errors.As(err, &ce)
}
