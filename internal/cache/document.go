package cache

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/normanking/visemekit/internal/timeline"
)

// documentVersion is bumped when the entry layout changes; older entries
// decode as corrupt and are re-extracted.
const documentVersion = 1

type entryDocument struct {
	Version   int                `json:"version"`
	Key       Key                `json:"key"`
	CreatedAt time.Time          `json:"created_at"`
	Timeline  *timeline.Timeline `json:"timeline"`
}

func encodeEntry(key Key, tl *timeline.Timeline) ([]byte, error) {
	if tl == nil {
		return nil, fmt.Errorf("nil timeline")
	}
	return json.Marshal(entryDocument{
		Version:   documentVersion,
		Key:       key,
		CreatedAt: time.Now().UTC(),
		Timeline:  tl,
	})
}

func decodeEntry(key Key, data []byte) (*timeline.Timeline, error) {
	var doc entryDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, &CacheError{Key: key, Op: "decode", Err: err}
	}
	if doc.Version != documentVersion {
		return nil, &CacheError{Key: key, Op: "decode", Err: fmt.Errorf("unsupported version %d", doc.Version)}
	}
	if doc.Key != key {
		return nil, &CacheError{Key: key, Op: "decode", Err: fmt.Errorf("entry holds key %s", doc.Key.Short())}
	}
	if doc.Timeline == nil {
		return nil, &CacheError{Key: key, Op: "decode", Err: fmt.Errorf("entry has no timeline")}
	}
	return doc.Timeline, nil
}
