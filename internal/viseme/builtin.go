package viseme

import (
	"fmt"
	"sort"
	"strings"
)

// Built-in preset names.
const (
	PresetPrestonBlair = "preston_blair"
	PresetRhubarb      = "rhubarb"
	PresetOculus       = "oculus"
)

// group is one class of a built-in table.
type group struct {
	hint    string
	symbols []string
}

// prestonBlairGroups is the classic nine-shape ARPAbet reduction.
var prestonBlairGroups = []group{
	{"REST", []string{"REST", "SIL", "SP"}},
	{"AH", []string{"AA", "AE", "AH", "AW", "AY", "K", "G", "HH", "NG"}},
	{"EE", []string{"IH", "IY", "EH", "EY", "Y"}},
	{"OH", []string{"AO", "OW", "OY", "ER", "R"}},
	{"OO", []string{"UH", "UW", "W"}},
	{"M", []string{"M", "B", "P"}},
	{"F", []string{"F", "V"}},
	{"L", []string{"L", "D", "T", "N", "DH", "TH"}},
	{"S", []string{"S", "Z", "SH", "ZH", "CH", "JH"}},
}

// rhubarbGroups follows the Rhubarb mouth shapes. Symbols are the shape
// letters Rhubarb emits; hints are the Papagayo-style names with a mouth_
// prefix so one-letter shapes do not match unrelated targets.
var rhubarbGroups = []group{
	{"mouth_rest", []string{"X"}},
	{"mouth_MBP", []string{"A"}},
	{"mouth_etc", []string{"B"}},
	{"mouth_E", []string{"C"}},
	{"mouth_AI", []string{"D"}},
	{"mouth_O", []string{"E"}},
	{"mouth_U", []string{"F"}},
	{"mouth_FV", []string{"G"}},
	{"mouth_L", []string{"H"}},
}

// oculusGroups is the 15-viseme Oculus set keyed by ARPAbet symbols.
var oculusGroups = []group{
	{"viseme_sil", []string{"SIL", "SP", "REST"}},
	{"viseme_PP", []string{"P", "B", "M"}},
	{"viseme_FF", []string{"F", "V"}},
	{"viseme_TH", []string{"TH", "DH"}},
	{"viseme_DD", []string{"T", "D"}},
	{"viseme_kk", []string{"K", "G", "NG"}},
	{"viseme_CH", []string{"CH", "JH", "SH", "ZH"}},
	{"viseme_SS", []string{"S", "Z"}},
	{"viseme_nn", []string{"N", "L"}},
	{"viseme_RR", []string{"R", "ER"}},
	{"viseme_aa", []string{"AA", "AH", "AY", "AW", "HH"}},
	{"viseme_E", []string{"EH", "AE", "EY"}},
	{"viseme_ih", []string{"IH", "IY", "Y"}},
	{"viseme_oh", []string{"AO", "OW", "OY"}},
	{"viseme_ou", []string{"UH", "UW", "W"}},
}

var builtins = map[string]func() *Mapping{
	PresetPrestonBlair: PrestonBlair,
	PresetRhubarb:      Rhubarb,
	PresetOculus:       Oculus,
}

// PrestonBlair returns the nine-class ARPAbet mapping.
func PrestonBlair() *Mapping {
	return mustBuild(PresetPrestonBlair, "arpabet", prestonBlairGroups)
}

// Rhubarb returns the mapping for Rhubarb shape letters X and A-H.
func Rhubarb() *Mapping {
	return mustBuild(PresetRhubarb, "rhubarb", rhubarbGroups)
}

// Oculus returns the 15-class Oculus viseme mapping.
func Oculus() *Mapping {
	return mustBuild(PresetOculus, "arpabet", oculusGroups)
}

// Builtin returns a built-in mapping by name.
func Builtin(name string) (*Mapping, error) {
	fn, ok := builtins[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, fmt.Errorf("unknown built-in preset %q", name)
	}
	return fn(), nil
}

// BuiltinNames lists the built-in preset names.
func BuiltinNames() []string {
	names := make([]string, 0, len(builtins))
	for n := range builtins {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func mustBuild(name, symbolSet string, groups []group) *Mapping {
	var entries []Entry
	for i, g := range groups {
		for _, s := range g.symbols {
			entries = append(entries, Entry{Symbol: s, Index: i, Hint: g.hint})
		}
	}
	m, err := NewMapping(name, symbolSet, entries)
	if err != nil {
		panic(fmt.Sprintf("built-in preset %s: %v", name, err))
	}
	return m
}
