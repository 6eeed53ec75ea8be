package binding

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiscrete(t *testing.T) {
	e := Discrete(2)

	assert.Equal(t, "eq(value, 2, 1, 0)", e.String())
	assert.Equal(t, 1.0, e.Eval(Env{Value: 2}))
	assert.Equal(t, 0.0, e.Eval(Env{Value: 1}))
	assert.Equal(t, 0.0, e.Eval(Env{Value: 3}))
}

func TestFalloff(t *testing.T) {
	e := Falloff(3, 2)

	assert.Equal(t, "max(0, sub(1, div(abs(sub(value, 3)), 2)))", e.String())

	tests := []struct {
		value float64
		want  float64
	}{
		{3, 1},
		{2, 0.5},
		{4, 0.5},
		{1, 0},
		{0, 0},
		{6, 0},
	}
	for _, tt := range tests {
		assert.InDelta(t, tt.want, e.Eval(Env{Value: tt.value}), 1e-12, "value %v", tt.value)
	}

	assert.Equal(t, Discrete(3).String(), Falloff(3, 0).String())
}

func TestEased(t *testing.T) {
	e := Eased(1, []Point{
		{Frame: 14, Weight: 0.75},
		{Frame: 13, Weight: 0.5},
		{Frame: 14, Weight: 0.8},
	})

	assert.Equal(t, "samples([13:0.5, 14:0.8], eq(value, 1, 1, 0))", e.String())
	assert.Equal(t, 0.5, e.Eval(Env{Value: 0, Frame: 13}))
	assert.Equal(t, 0.8, e.Eval(Env{Value: 0, Frame: 14}))
	assert.Equal(t, 1.0, e.Eval(Env{Value: 1, Frame: 20}), "falls back to discrete")
	assert.Equal(t, 0.0, e.Eval(Env{Value: 0, Frame: 12}))

	assert.Equal(t, Discrete(1).String(), Eased(1, nil).String())
}

func TestDiv_ByZero(t *testing.T) {
	e := Div{A: Const(1), B: Sub{A: ValueRef{}, B: FrameRef{}}}
	assert.Equal(t, 0.0, e.Eval(Env{Value: 5, Frame: 5}))
	assert.Equal(t, 0.5, e.Eval(Env{Value: 7, Frame: 5}))
}

func TestSet_OrderingAndUniqueness(t *testing.T) {
	s, err := NewSet(
		Binding{TargetRef: "mouth_M", Class: 5, Expr: Discrete(5)},
		Binding{TargetRef: "mouth_AH", Class: 1, Expr: Discrete(1)},
		Binding{TargetRef: "mouth_AH", Class: 0, Expr: Discrete(0)},
	)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"mouth_AH#0 = eq(value, 0, 1, 0)",
		"mouth_AH#1 = eq(value, 1, 1, 0)",
		"mouth_M#5 = eq(value, 5, 1, 0)",
	}, s.Strings())
	assert.Equal(t, []string{"mouth_AH", "mouth_M"}, s.Targets())

	err = s.Add(Binding{TargetRef: "mouth_M", Class: 5, Expr: Const(1)})
	assert.ErrorIs(t, err, ErrDuplicate)
	assert.Equal(t, 3, s.Len())

	b, ok := s.Get(Key{TargetRef: "mouth_AH", Class: 1})
	require.True(t, ok)
	assert.Equal(t, 1.0, b.Eval(Env{Value: 1}))
}

func TestSet_EqualAndClone(t *testing.T) {
	a, err := NewSet(Binding{TargetRef: "x", Class: 0, Expr: Discrete(0)})
	require.NoError(t, err)
	b := a.Clone()

	assert.True(t, a.Equal(b))

	require.NoError(t, b.Add(Binding{TargetRef: "y", Class: 1, Expr: Discrete(1)}))
	assert.False(t, a.Equal(b))
	assert.Equal(t, 1, a.Len())

	var empty *Set
	assert.Equal(t, 0, empty.Len())
	assert.True(t, empty.Equal(&Set{}))
}
