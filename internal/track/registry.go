package track

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// DefaultName is the name given to tracks created without one.
const DefaultName = "LipSync_Controller"

// ErrNotFound is returned for unknown track ids.
var ErrNotFound = errors.New("track not found")

// Registry owns the tracks of one host session.
type Registry struct {
	mu     sync.RWMutex
	tracks map[string]*Track
	order  []string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{tracks: make(map[string]*Track)}
}

// Create makes a new track with a unique name. Taken names get a numeric
// suffix: LipSync_Controller, LipSync_Controller_001, ...
func (r *Registry) Create(name string) *Track {
	if name == "" {
		name = DefaultName
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	unique := name
	for i := 1; r.nameTaken(unique); i++ {
		unique = fmt.Sprintf("%s_%03d", name, i)
	}

	t := New(uuid.New().String(), unique, nil)
	r.tracks[t.id] = t
	r.order = append(r.order, t.id)
	return t
}

func (r *Registry) nameTaken(name string) bool {
	for _, t := range r.tracks {
		if t.name == name {
			return true
		}
	}
	return false
}

// Get returns a track by id.
func (r *Registry) Get(id string) (*Track, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tracks[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return t, nil
}

// Find returns a track by name.
func (r *Registry) Find(name string) (*Track, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, id := range r.order {
		if t := r.tracks[id]; t.name == name {
			return t, true
		}
	}
	return nil, false
}

// Destroy removes a track from the registry.
func (r *Registry) Destroy(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tracks[id]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	delete(r.tracks, id)
	for i, oid := range r.order {
		if oid == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return nil
}

// List returns all tracks in creation order.
func (r *Registry) List() []*Track {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Track, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.tracks[id])
	}
	return out
}
