package cache

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/normanking/visemekit/internal/timeline"
)

const entryExt = ".json"

// FileStore keeps one JSON document per key in a directory. Writes go to a
// temporary file that is renamed over the entry, so readers see either the
// old entry or the complete new one.
type FileStore struct {
	dir string
}

// NewFileStore creates the directory if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create cache directory: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

// Dir returns the cache directory.
func (s *FileStore) Dir() string { return s.dir }

func (s *FileStore) path(key Key) string {
	return filepath.Join(s.dir, string(key)+entryExt)
}

// Get reads and decodes an entry.
func (s *FileStore) Get(ctx context.Context, key Key) (*timeline.Timeline, error) {
	if !key.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(s.path(key))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrMiss
		}
		return nil, &CacheError{Key: key, Op: "read", Err: err}
	}
	return decodeEntry(key, data)
}

// Put writes an entry atomically. A context cancelled before the final
// rename leaves no trace.
func (s *FileStore) Put(ctx context.Context, key Key, tl *timeline.Timeline) error {
	if !key.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	data, err := encodeEntry(key, tl)
	if err != nil {
		return fmt.Errorf("encode entry: %w", err)
	}

	tmp, err := os.CreateTemp(s.dir, ".tmp-"+key.Short()+"-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	cleanup := func() { os.Remove(tmpPath) }

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("close temp file: %w", err)
	}

	if err := ctx.Err(); err != nil {
		cleanup()
		return err
	}

	if err := os.Rename(tmpPath, s.path(key)); err != nil {
		cleanup()
		return fmt.Errorf("rename entry: %w", err)
	}
	return nil
}

// Delete removes an entry; deleting an absent entry is not an error.
func (s *FileStore) Delete(ctx context.Context, key Key) error {
	if !key.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	if err := os.Remove(s.path(key)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("delete entry: %w", err)
	}
	return nil
}

// Clear removes every entry and any leftover temp files.
func (s *FileStore) Clear(ctx context.Context) (int, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return 0, fmt.Errorf("read cache directory: %w", err)
	}

	removed := 0
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return removed, err
		}
		name := e.Name()
		if e.IsDir() {
			continue
		}
		isEntry := strings.HasSuffix(name, entryExt) && Key(strings.TrimSuffix(name, entryExt)).Valid()
		if !isEntry && !strings.HasPrefix(name, ".tmp-") {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, name)); err != nil && !errors.Is(err, os.ErrNotExist) {
			return removed, fmt.Errorf("remove %s: %w", name, err)
		}
		if isEntry {
			removed++
		}
	}
	return removed, nil
}

// Keys lists the stored keys in sorted order.
func (s *FileStore) Keys(ctx context.Context) ([]Key, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("read cache directory: %w", err)
	}
	var keys []Key
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, entryExt) {
			continue
		}
		if k := Key(strings.TrimSuffix(name, entryExt)); k.Valid() {
			keys = append(keys, k)
		}
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys, nil
}

// Close is a no-op.
func (s *FileStore) Close() error { return nil }
