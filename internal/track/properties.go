package track

import (
	"sort"
	"sync"
)

// Properties is the key-value store a host attaches to a track for its own
// dynamic properties. The engine only touches keys under its own prefix.
type Properties interface {
	Get(key string) (string, bool)
	Set(key, value string)
	Delete(key string)
	Keys() []string
}

// MemoryProperties is an in-memory Properties store.
type MemoryProperties struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewMemoryProperties creates an empty store.
func NewMemoryProperties() *MemoryProperties {
	return &MemoryProperties{values: make(map[string]string)}
}

func (p *MemoryProperties) Get(key string) (string, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	v, ok := p.values[key]
	return v, ok
}

func (p *MemoryProperties) Set(key, value string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.values[key] = value
}

func (p *MemoryProperties) Delete(key string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.values, key)
}

// Keys returns the keys in sorted order.
func (p *MemoryProperties) Keys() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	keys := make([]string, 0, len(p.values))
	for k := range p.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func snapshotProperties(p Properties) map[string]string {
	out := make(map[string]string)
	for _, k := range p.Keys() {
		if v, ok := p.Get(k); ok {
			out[k] = v
		}
	}
	return out
}

func restoreProperties(p Properties, values map[string]string) {
	for _, k := range p.Keys() {
		if _, ok := values[k]; !ok {
			p.Delete(k)
		}
	}
	for k, v := range values {
		p.Set(k, v)
	}
}
