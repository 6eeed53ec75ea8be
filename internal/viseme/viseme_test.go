package viseme

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMapping_Errors(t *testing.T) {
	tests := []struct {
		name    string
		entries []Entry
		wantErr error
	}{
		{
			name:    "empty",
			wantErr: ErrEmptyMapping,
		},
		{
			name: "sparse indices",
			entries: []Entry{
				{Symbol: "X", Index: 0},
				{Symbol: "A", Index: 2},
			},
			wantErr: ErrSparseClasses,
		},
		{
			name: "negative index",
			entries: []Entry{
				{Symbol: "X", Index: -1},
			},
			wantErr: ErrNegativeClass,
		},
		{
			name: "conflicting symbol",
			entries: []Entry{
				{Symbol: "X", Index: 0},
				{Symbol: "A", Index: 1},
				{Symbol: "a", Index: 0},
			},
			wantErr: ErrConflict,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewMapping("test", "custom", tt.entries)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestNewMapping_HintDefaultsToFirstSymbol(t *testing.T) {
	m, err := NewMapping("test", "custom", []Entry{
		{Symbol: "X", Index: 0},
		{Symbol: "A", Index: 1, Hint: "open"},
		{Symbol: "B", Index: 1},
	})
	require.NoError(t, err)

	assert.Equal(t, 2, m.NumClasses())
	assert.Equal(t, "X", m.TargetHint(0))
	assert.Equal(t, "open", m.TargetHint(1))
	assert.Equal(t, []string{"A", "B"}, m.Symbols(1))
	assert.Equal(t, "", m.TargetHint(7))
}

func TestMapping_ClassOf(t *testing.T) {
	m := PrestonBlair()

	tests := []struct {
		symbol     string
		wantClass  int
		wantMapped bool
	}{
		{"AA", 1, true},
		{"aa", 1, true},
		{" iy ", 2, true},
		{"OW", 3, true},
		{"UW", 4, true},
		{"B", 5, true},
		{"V", 6, true},
		{"TH", 7, true},
		{"ZH", 8, true},
		{"SIL", 0, true},
		{"QQ", RestClass, false},
		{"", RestClass, false},
	}

	for _, tt := range tests {
		t.Run(tt.symbol, func(t *testing.T) {
			class, mapped := m.ClassOf(tt.symbol)
			assert.Equal(t, tt.wantClass, class)
			assert.Equal(t, tt.wantMapped, mapped)
		})
	}
}

func TestMapping_ReduceCountsUnmapped(t *testing.T) {
	m := PrestonBlair()

	r := m.Reduce([]string{"AA", "QQ", "M", "QQ", "ZZ", "AA"})

	assert.Equal(t, []int{1, 0, 5, 0, 0, 1}, r.Classes)
	assert.Equal(t, 3, r.Unmapped)
	assert.Equal(t, map[string]int{"QQ": 2, "ZZ": 1}, r.UnmappedSymbols)
	assert.Equal(t, []int{0, 1, 5}, r.Used())

	for _, c := range r.Classes {
		assert.True(t, m.HasClass(c))
	}
}

func TestMapping_ReduceAllMapped(t *testing.T) {
	r := Rhubarb().Reduce([]string{"X", "A", "H"})

	assert.Equal(t, []int{0, 1, 8}, r.Classes)
	assert.Zero(t, r.Unmapped)
	assert.Nil(t, r.UnmappedSymbols)
}

func TestMapping_MatchTargets(t *testing.T) {
	m := PrestonBlair()

	names := []string{"mouth_REST", "Mouth_AH", "mouth_ee", "mouth_M", "mouth_F", "mouth_L", "mouth_S", "jaw_open"}
	got := m.MatchTargets(names)

	assert.Equal(t, []string{"mouth_REST"}, got[0])
	assert.Equal(t, []string{"Mouth_AH"}, got[1])
	assert.Equal(t, []string{"mouth_ee"}, got[2])
	assert.Equal(t, []string{"mouth_M"}, got[5])
	assert.Equal(t, []string{"mouth_F"}, got[6])
	assert.Equal(t, []string{"mouth_L"}, got[7])
	assert.Equal(t, []string{"mouth_S"}, got[8])

	for class, matched := range got {
		assert.NotContains(t, matched, "jaw_open", "class %d", class)
	}
}

func TestMapping_MatchTargetsRhubarb(t *testing.T) {
	m := Rhubarb()

	got := m.MatchTargets([]string{"mouth_rest", "mouth_MBP", "mouth_etc", "mouth_E", "mouth_O", "mouth_U", "Mouth", "MouthOpen", "EyeLid"})

	assert.Equal(t, []string{"mouth_rest"}, got[0])
	assert.Equal(t, []string{"mouth_MBP"}, got[1])
	assert.Equal(t, []string{"mouth_etc"}, got[2])
	assert.Equal(t, []string{"mouth_E"}, got[3])
	assert.Equal(t, []string{"mouth_O"}, got[5])
	assert.Equal(t, []string{"mouth_U"}, got[6])

	for class, matched := range got {
		for _, name := range []string{"Mouth", "MouthOpen", "EyeLid"} {
			assert.NotContains(t, matched, name, "class %d", class)
		}
	}
}

func TestMapping_MatchTargetsOculus(t *testing.T) {
	m := Oculus()

	got := m.MatchTargets([]string{"viseme_sil", "viseme_PP", "viseme_E", "viseme_ih", "viseme_ou"})

	assert.Equal(t, []string{"viseme_sil"}, got[0])
	assert.Equal(t, []string{"viseme_PP"}, got[1])
	assert.Equal(t, []string{"viseme_E"}, got[11])
	assert.Equal(t, []string{"viseme_ih"}, got[12])
	assert.Equal(t, []string{"viseme_ou"}, got[14])
}

func TestMapping_EntriesRebuild(t *testing.T) {
	m := Oculus()

	rebuilt, err := NewMapping(m.Name(), m.SymbolSet(), m.Entries())
	require.NoError(t, err)

	assert.Equal(t, m.Classes(), rebuilt.Classes())
}

func TestBuiltin(t *testing.T) {
	assert.Equal(t, []string{PresetOculus, PresetPrestonBlair, PresetRhubarb}, BuiltinNames())

	for _, name := range BuiltinNames() {
		m, err := Builtin(name)
		require.NoError(t, err)
		assert.Equal(t, name, m.Name())
		assert.Equal(t, 0, m.Classes()[0].Index)
	}

	m, err := Builtin(" Preston_Blair ")
	require.NoError(t, err)
	assert.Equal(t, 9, m.NumClasses())
	assert.Equal(t, 15, Oculus().NumClasses())

	_, err = Builtin("nope")
	assert.Error(t, err)
}
