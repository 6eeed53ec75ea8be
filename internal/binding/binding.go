package binding

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrDuplicate is returned when a set already holds a binding for the same
// (target, class) pair.
var ErrDuplicate = errors.New("duplicate binding")

// Key identifies a binding slot.
type Key struct {
	TargetRef string `json:"target"`
	Class     int    `json:"class"`
}

func (k Key) String() string { return fmt.Sprintf("%s#%d", k.TargetRef, k.Class) }

// Binding maps the controller value to one target's weight for one class.
type Binding struct {
	TargetRef string
	Class     int
	Expr      Expr
}

// Key returns the (target, class) slot of the binding.
func (b Binding) Key() Key { return Key{TargetRef: b.TargetRef, Class: b.Class} }

// Eval evaluates the binding expression.
func (b Binding) Eval(env Env) float64 { return b.Expr.Eval(env) }

// String returns the canonical "target#class = expr" form.
func (b Binding) String() string {
	return b.Key().String() + " = " + b.Expr.String()
}

// Set is a collection of bindings with at most one binding per Key, kept
// sorted by target then class.
type Set struct {
	items []Binding
	index map[Key]int
}

// NewSet builds a set, rejecting duplicate keys.
func NewSet(bindings ...Binding) (*Set, error) {
	s := &Set{index: make(map[Key]int, len(bindings))}
	for _, b := range bindings {
		if err := s.Add(b); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Add inserts b in order.
func (s *Set) Add(b Binding) error {
	if s.index == nil {
		s.index = make(map[Key]int)
	}
	k := b.Key()
	if _, ok := s.index[k]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicate, k)
	}
	i := sort.Search(len(s.items), func(i int) bool { return !less(s.items[i].Key(), k) })
	s.items = append(s.items, Binding{})
	copy(s.items[i+1:], s.items[i:])
	s.items[i] = b
	s.reindex()
	return nil
}

// Get returns the binding stored for k.
func (s *Set) Get(k Key) (Binding, bool) {
	if s == nil {
		return Binding{}, false
	}
	i, ok := s.index[k]
	if !ok {
		return Binding{}, false
	}
	return s.items[i], true
}

// Len returns the number of bindings.
func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return len(s.items)
}

// Bindings returns a copy of the bindings in canonical order.
func (s *Set) Bindings() []Binding {
	if s == nil {
		return nil
	}
	out := make([]Binding, len(s.items))
	copy(out, s.items)
	return out
}

// Targets returns the distinct target refs in order.
func (s *Set) Targets() []string {
	if s == nil {
		return nil
	}
	var out []string
	for _, b := range s.items {
		if len(out) == 0 || out[len(out)-1] != b.TargetRef {
			out = append(out, b.TargetRef)
		}
	}
	return out
}

// Strings returns the canonical form of every binding in order.
func (s *Set) Strings() []string {
	if s == nil {
		return nil
	}
	out := make([]string, len(s.items))
	for i, b := range s.items {
		out[i] = b.String()
	}
	return out
}

// Canonical joins Strings with newlines.
func (s *Set) Canonical() string {
	return strings.Join(s.Strings(), "\n")
}

// Equal reports whether both sets hold identical bindings.
func (s *Set) Equal(other *Set) bool {
	return s.Canonical() == other.Canonical()
}

// Clone returns an independent copy.
func (s *Set) Clone() *Set {
	out := &Set{index: make(map[Key]int, s.Len())}
	out.items = s.Bindings()
	out.reindex()
	return out
}

func (s *Set) reindex() {
	for i, b := range s.items {
		s.index[b.Key()] = i
	}
}

func less(a, b Key) bool {
	if a.TargetRef != b.TargetRef {
		return a.TargetRef < b.TargetRef
	}
	return a.Class < b.Class
}
