package target

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/normanking/visemekit/internal/binding"
)

// HostAdapter is the built-in adapter: it checks kind-specific capabilities
// and delegates driver storage to a DriverHost.
type HostAdapter struct {
	kind    Kind
	host    DriverHost
	capable func(Target) bool
}

// NewHostAdapter creates an adapter for kind with a capability check.
func NewHostAdapter(kind Kind, host DriverHost, capable func(Target) bool) *HostAdapter {
	return &HostAdapter{kind: kind, host: host, capable: capable}
}

func (a *HostAdapter) Kind() Kind { return a.kind }

// Validate reports whether t exists in the host with this adapter's kind
// and has the capabilities the kind needs.
func (a *HostAdapter) Validate(t Target) bool {
	if t.Kind != a.kind || t.Ref == "" {
		return false
	}
	known, ok := a.host.Lookup(t.Ref)
	if !ok || known.Kind != a.kind {
		return false
	}
	return a.capable == nil || a.capable(t)
}

// Bind attaches b as a driver owned by visemekit.
func (a *HostAdapter) Bind(t Target, b binding.Binding) (Handle, error) {
	if !a.Validate(t) {
		return Handle{}, fmt.Errorf("%w: %s (%s)", ErrRejected, t.Ref, t.Kind)
	}
	if b.TargetRef != t.Ref {
		return Handle{}, fmt.Errorf("%w: binding for %s applied to %s", ErrRejected, b.TargetRef, t.Ref)
	}
	h, err := a.host.AddDriver(t.Ref, Driver{Owner: Owner, Class: b.Class, Expr: b.Expr})
	if err != nil {
		return Handle{}, fmt.Errorf("%w: %s: %w", ErrRejected, t.Ref, err)
	}
	return h, nil
}

// Bindings lists the drivers owned by visemekit on t in host order.
func (a *HostAdapter) Bindings(t Target) []binding.Binding {
	var out []binding.Binding
	for _, d := range a.host.Drivers(t.Ref) {
		if d.Owner != Owner {
			continue
		}
		out = append(out, binding.Binding{TargetRef: t.Ref, Class: d.Class, Expr: d.Expr})
	}
	return out
}

// ClearBindings removes only drivers owned by visemekit.
func (a *HostAdapter) ClearBindings(t Target) int {
	return a.host.RemoveDrivers(t.Ref, Owner)
}

func hasObject(t Target) bool { return t.Object != "" }

func blendWeightCapable(t Target) bool {
	// The basis shape is the rest pose and cannot carry a weight.
	return t.Name != "" && !strings.EqualFold(t.Name, "Basis")
}

func propertyCapable(t Target) bool {
	return t.Object != "" && t.Property != ""
}

// Adapters dispatches targets to the adapter registered for their kind.
type Adapters struct {
	mu     sync.RWMutex
	byKind map[Kind]Adapter
}

// NewAdapters returns an empty registry.
func NewAdapters() *Adapters {
	return &Adapters{byKind: make(map[Kind]Adapter)}
}

// DefaultAdapters registers the built-in adapters for every kind on host.
func DefaultAdapters(host DriverHost) *Adapters {
	a := NewAdapters()
	a.Register(NewHostAdapter(OpacityLayer, host, hasObject))
	a.Register(NewHostAdapter(BlendWeight, host, blendWeightCapable))
	a.Register(NewHostAdapter(BoneProperty, host, propertyCapable))
	a.Register(NewHostAdapter(MaterialParam, host, propertyCapable))
	return a
}

// Register adds or replaces the adapter for its kind.
func (r *Adapters) Register(a Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byKind[a.Kind()] = a
}

// For returns the adapter for kind.
func (r *Adapters) For(kind Kind) (Adapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.byKind[kind]
	return a, ok
}

// Validate reports whether an adapter exists for t and accepts it.
func (r *Adapters) Validate(t Target) bool {
	a, ok := r.For(t.Kind)
	return ok && a.Validate(t)
}

// Kinds lists registered kinds in order.
func (r *Adapters) Kinds() []Kind {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Kind, 0, len(r.byKind))
	for k := range r.byKind {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
