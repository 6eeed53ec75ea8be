// Package viseme reduces phonetic symbols to a small closed set of visual
// mouth-shape classes.
//
// A Mapping is a bidirectional table: symbol -> class index and
// class index -> target name hint. Class indices are dense from 0, and
// class 0 is always the rest/default shape that unknown symbols fall back to.
package viseme

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Common errors
var (
	ErrSparseClasses = errors.New("class indices are not dense")
	ErrConflict      = errors.New("symbol mapped to more than one class")
	ErrNegativeClass = errors.New("negative class index")
	ErrEmptyMapping  = errors.New("mapping has no classes")
)

// RestClass is the class unmapped symbols resolve to.
const RestClass = 0

// Entry maps one symbol to a class. Hint is the canonical target name hint
// for the class; the first non-empty hint seen for a class wins.
type Entry struct {
	Symbol string
	Index  int
	Hint   string
}

// Class describes one visual class.
type Class struct {
	Index   int
	Hint    string
	Symbols []string
}

// Mapping is the symbol <-> class table. It is read-only after construction.
type Mapping struct {
	name      string
	symbolSet string
	symbols   map[string]int
	classes   []Class
}

// NewMapping builds a Mapping from entries. Symbols are matched
// case-insensitively.
func NewMapping(name, symbolSet string, entries []Entry) (*Mapping, error) {
	if len(entries) == 0 {
		return nil, ErrEmptyMapping
	}

	maxIndex := -1
	for _, e := range entries {
		if e.Index < 0 {
			return nil, fmt.Errorf("%w: symbol %q has index %d", ErrNegativeClass, e.Symbol, e.Index)
		}
		if e.Index > maxIndex {
			maxIndex = e.Index
		}
	}

	classes := make([]Class, maxIndex+1)
	seen := make([]bool, maxIndex+1)
	symbols := make(map[string]int, len(entries))

	for _, e := range entries {
		key := normalize(e.Symbol)
		if prev, ok := symbols[key]; ok && prev != e.Index {
			return nil, fmt.Errorf("%w: %q -> %d and %d", ErrConflict, e.Symbol, prev, e.Index)
		}
		c := &classes[e.Index]
		c.Index = e.Index
		if c.Hint == "" && e.Hint != "" {
			c.Hint = e.Hint
		}
		if _, ok := symbols[key]; !ok {
			c.Symbols = append(c.Symbols, e.Symbol)
		}
		symbols[key] = e.Index
		seen[e.Index] = true
	}

	var missing []int
	for i, ok := range seen {
		if !ok {
			missing = append(missing, i)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: no symbol for classes %v", ErrSparseClasses, missing)
	}

	for i := range classes {
		if classes[i].Hint == "" {
			classes[i].Hint = classes[i].Symbols[0]
		}
	}

	return &Mapping{
		name:      name,
		symbolSet: symbolSet,
		symbols:   symbols,
		classes:   classes,
	}, nil
}

func normalize(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

// Name returns the preset name the mapping was built from.
func (m *Mapping) Name() string { return m.name }

// SymbolSet returns the symbol set identifier (arpabet, rhubarb, ...).
func (m *Mapping) SymbolSet() string { return m.symbolSet }

// NumClasses returns N; valid classes are [0, N).
func (m *Mapping) NumClasses() int { return len(m.classes) }

// HasClass reports whether class is a valid index.
func (m *Mapping) HasClass(class int) bool {
	return class >= 0 && class < len(m.classes)
}

// ClassOf returns the class for symbol. Unmapped symbols resolve to
// RestClass with mapped == false.
func (m *Mapping) ClassOf(symbol string) (class int, mapped bool) {
	if c, ok := m.symbols[normalize(symbol)]; ok {
		return c, true
	}
	return RestClass, false
}

// TargetHint returns the canonical target name hint for class.
func (m *Mapping) TargetHint(class int) string {
	if !m.HasClass(class) {
		return ""
	}
	return m.classes[class].Hint
}

// Symbols returns the symbols that reduce to class.
func (m *Mapping) Symbols(class int) []string {
	if !m.HasClass(class) {
		return nil
	}
	out := make([]string, len(m.classes[class].Symbols))
	copy(out, m.classes[class].Symbols)
	return out
}

// Classes returns a copy of all classes ordered by index.
func (m *Mapping) Classes() []Class {
	out := make([]Class, len(m.classes))
	for i, c := range m.classes {
		out[i] = Class{Index: c.Index, Hint: c.Hint, Symbols: m.Symbols(i)}
	}
	return out
}

// Entries flattens the mapping back into entries, ordered by class then
// symbol insertion order.
func (m *Mapping) Entries() []Entry {
	var out []Entry
	for _, c := range m.classes {
		for _, s := range c.Symbols {
			out = append(out, Entry{Symbol: s, Index: c.Index, Hint: c.Hint})
		}
	}
	return out
}

// MatchTargets applies the auto-match contract: a target name matches a
// class when it contains the class hint, case-insensitively. Each name is
// assigned to at most one class: the longest matching hint wins, then the
// hint found closest to the end of the name, then the lowest index.
// Names keep their input order within a class.
func (m *Mapping) MatchTargets(names []string) map[int][]string {
	out := make(map[int][]string)
	for _, n := range names {
		lower := strings.ToLower(n)
		best, bestLen, bestPos := -1, 0, -1
		for _, c := range m.classes {
			hint := strings.ToLower(c.Hint)
			if hint == "" || len(hint) < bestLen {
				continue
			}
			pos := strings.LastIndex(lower, hint)
			if pos < 0 {
				continue
			}
			if len(hint) > bestLen || pos > bestPos {
				best, bestLen, bestPos = c.Index, len(hint), pos
			}
		}
		if best >= 0 {
			out[best] = append(out[best], n)
		}
	}
	return out
}

// Reduction is the result of reducing a sequence of symbols.
type Reduction struct {
	Classes         []int
	Unmapped        int
	UnmappedSymbols map[string]int
}

// Used returns the distinct classes in ascending order.
func (r Reduction) Used() []int {
	seen := make(map[int]struct{}, len(r.Classes))
	var out []int
	for _, c := range r.Classes {
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	sort.Ints(out)
	return out
}

// Reduce maps every symbol to a class. Nothing is dropped: unmapped
// symbols become RestClass and are counted.
func (m *Mapping) Reduce(symbols []string) Reduction {
	r := Reduction{Classes: make([]int, len(symbols))}
	for i, s := range symbols {
		c, ok := m.ClassOf(s)
		if !ok {
			r.Unmapped++
			if r.UnmappedSymbols == nil {
				r.UnmappedSymbols = make(map[string]int)
			}
			r.UnmappedSymbols[s]++
		}
		r.Classes[i] = c
	}
	return r
}
