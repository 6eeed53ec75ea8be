// Package scene is an in-memory host for targets and drivers. It stands in
// for a DCC application: it owns the target registry, stores the drivers
// adapters attach, and evaluates them against a controller track.
package scene

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/normanking/visemekit/internal/binding"
	"github.com/normanking/visemekit/internal/target"
	"github.com/normanking/visemekit/internal/track"
)

// ErrDuplicateTarget is returned when a ref is registered twice.
var ErrDuplicateTarget = errors.New("duplicate target ref")

// Scene implements target.DriverHost.
type Scene struct {
	mu      sync.RWMutex
	targets map[string]target.Target
	order   []string
	drivers map[string][]target.Driver
	nextID  int
}

// New creates a scene holding targets.
func New(targets ...target.Target) (*Scene, error) {
	s := &Scene{
		targets: make(map[string]target.Target),
		drivers: make(map[string][]target.Driver),
	}
	for _, t := range targets {
		if err := s.AddTarget(t); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// AddTarget registers a target.
func (s *Scene) AddTarget(t target.Target) error {
	if t.Ref == "" {
		return fmt.Errorf("target %q has no ref", t.Name)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.targets[t.Ref]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateTarget, t.Ref)
	}
	s.targets[t.Ref] = t
	s.order = append(s.order, t.Ref)
	return nil
}

// Targets returns the registered targets in registration order.
func (s *Scene) Targets() []target.Target {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]target.Target, 0, len(s.order))
	for _, ref := range s.order {
		out = append(out, s.targets[ref])
	}
	return out
}

// Lookup returns a target by ref.
func (s *Scene) Lookup(ref string) (target.Target, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.targets[ref]
	return t, ok
}

// AddDriver attaches d to ref. An owner may hold one driver per class on
// a target.
func (s *Scene) AddDriver(ref string, d target.Driver) (target.Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.targets[ref]; !ok {
		return target.Handle{}, fmt.Errorf("%w: %s", target.ErrNotFound, ref)
	}
	for _, existing := range s.drivers[ref] {
		if existing.Owner == d.Owner && existing.Class == d.Class {
			return target.Handle{}, fmt.Errorf("%w: %s class %d", target.ErrDuplicateDriver, ref, d.Class)
		}
	}
	s.nextID++
	s.drivers[ref] = append(s.drivers[ref], d)
	return target.Handle{TargetRef: ref, Class: d.Class, ID: s.nextID}, nil
}

// RemoveDrivers removes the drivers owner created on ref.
func (s *Scene) RemoveDrivers(ref, owner string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	current := s.drivers[ref]
	kept := current[:0]
	removed := 0
	for _, d := range current {
		if d.Owner == owner {
			removed++
			continue
		}
		kept = append(kept, d)
	}
	if len(kept) == 0 {
		delete(s.drivers, ref)
	} else {
		s.drivers[ref] = kept
	}
	return removed
}

// Drivers returns a copy of the drivers on ref.
func (s *Scene) Drivers(ref string) []target.Driver {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]target.Driver, len(s.drivers[ref]))
	copy(out, s.drivers[ref])
	return out
}

// DriverCount returns the number of drivers owner holds across the scene.
func (s *Scene) DriverCount(owner string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, ds := range s.drivers {
		for _, d := range ds {
			if d.Owner == owner {
				n++
			}
		}
	}
	return n
}

// Evaluate returns the weight of every driven target at frame. Drivers on
// one target are summed and clamped to [0, 1].
func (s *Scene) Evaluate(tr *track.Track, frame int) map[string]float64 {
	env := binding.Env{Value: float64(tr.ValueAt(frame)), Frame: frame}

	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]float64, len(s.drivers))
	for ref, ds := range s.drivers {
		sum := 0.0
		for _, d := range ds {
			sum += d.Expr.Eval(env)
		}
		out[ref] = clamp(sum, 0, 1)
	}
	return out
}

// FrameWeights is the evaluated state of one frame.
type FrameWeights struct {
	Frame   int                `json:"frame"`
	Value   int                `json:"value"`
	Weights map[string]float64 `json:"weights"`
}

// Bake evaluates every frame in [from, to].
func (s *Scene) Bake(tr *track.Track, from, to int) []FrameWeights {
	if to < from {
		return nil
	}
	out := make([]FrameWeights, 0, to-from+1)
	for f := from; f <= to; f++ {
		out = append(out, FrameWeights{
			Frame:   f,
			Value:   tr.ValueAt(f),
			Weights: s.Evaluate(tr, f),
		})
	}
	return out
}

// DrivenRefs lists refs that currently carry drivers, sorted.
func (s *Scene) DrivenRefs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	refs := make([]string, 0, len(s.drivers))
	for ref := range s.drivers {
		refs = append(refs, ref)
	}
	sort.Strings(refs)
	return refs
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
