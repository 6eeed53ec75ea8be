// Package binding holds the declarative link between the controller track
// and a target parameter.
//
// A Binding's expression is a small AST evaluated once per frame. Every node
// has a canonical String form, so two binding sets can be compared byte for
// byte after a regeneration.
package binding

import (
	"math"
	"sort"
	"strconv"
	"strings"
)

// Env is the evaluation environment for one frame.
type Env struct {
	// Value is the controller track value at Frame.
	Value float64
	Frame int
}

// Expr is a node of the binding expression tree.
type Expr interface {
	Eval(env Env) float64
	String() string
}

// Const is a literal.
type Const float64

func (c Const) Eval(Env) float64 { return float64(c) }
func (c Const) String() string   { return formatFloat(float64(c)) }

// ValueRef reads the controller value.
type ValueRef struct{}

func (ValueRef) Eval(env Env) float64 { return env.Value }
func (ValueRef) String() string       { return "value" }

// FrameRef reads the current frame.
type FrameRef struct{}

func (FrameRef) Eval(env Env) float64 { return float64(env.Frame) }
func (FrameRef) String() string       { return "frame" }

// Sub is A - B.
type Sub struct{ A, B Expr }

func (e Sub) Eval(env Env) float64 { return e.A.Eval(env) - e.B.Eval(env) }
func (e Sub) String() string       { return call("sub", e.A, e.B) }

// Div is A / B; division by zero yields 0.
type Div struct{ A, B Expr }

func (e Div) Eval(env Env) float64 {
	d := e.B.Eval(env)
	if d == 0 {
		return 0
	}
	return e.A.Eval(env) / d
}
func (e Div) String() string { return call("div", e.A, e.B) }

// Abs is |X|.
type Abs struct{ X Expr }

func (e Abs) Eval(env Env) float64 { return math.Abs(e.X.Eval(env)) }
func (e Abs) String() string       { return call("abs", e.X) }

// Max is the larger of A and B.
type Max struct{ A, B Expr }

func (e Max) Eval(env Env) float64 { return math.Max(e.A.Eval(env), e.B.Eval(env)) }
func (e Max) String() string       { return call("max", e.A, e.B) }

// IfEq yields Then when A == B and Else otherwise.
type IfEq struct{ A, B, Then, Else Expr }

func (e IfEq) Eval(env Env) float64 {
	if e.A.Eval(env) == e.B.Eval(env) {
		return e.Then.Eval(env)
	}
	return e.Else.Eval(env)
}
func (e IfEq) String() string { return call("eq", e.A, e.B, e.Then, e.Else) }

// Point is one sampled weight.
type Point struct {
	Frame  int
	Weight float64
}

// Samples looks the frame up in a sorted table and falls back to Else for
// frames without a sample.
type Samples struct {
	Points []Point
	Else   Expr
}

// NewSamples sorts points by frame. Later duplicates win.
func NewSamples(points []Point, fallback Expr) Samples {
	byFrame := make(map[int]float64, len(points))
	for _, p := range points {
		byFrame[p.Frame] = p.Weight
	}
	sorted := make([]Point, 0, len(byFrame))
	for f, w := range byFrame {
		sorted = append(sorted, Point{Frame: f, Weight: w})
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Frame < sorted[j].Frame })
	return Samples{Points: sorted, Else: fallback}
}

func (e Samples) Eval(env Env) float64 {
	i := sort.Search(len(e.Points), func(i int) bool { return e.Points[i].Frame >= env.Frame })
	if i < len(e.Points) && e.Points[i].Frame == env.Frame {
		return e.Points[i].Weight
	}
	return e.Else.Eval(env)
}

func (e Samples) String() string {
	var b strings.Builder
	b.WriteString("samples([")
	for i, p := range e.Points {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(strconv.Itoa(p.Frame))
		b.WriteByte(':')
		b.WriteString(formatFloat(p.Weight))
	}
	b.WriteString("], ")
	b.WriteString(e.Else.String())
	b.WriteByte(')')
	return b.String()
}

func call(name string, args ...Expr) string {
	var b strings.Builder
	b.WriteString(name)
	b.WriteByte('(')
	for i, a := range args {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(a.String())
	}
	b.WriteByte(')')
	return b.String()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// Discrete yields 1 when the controller value equals class and 0 otherwise.
func Discrete(class int) Expr {
	return IfEq{A: ValueRef{}, B: Const(class), Then: Const(1), Else: Const(0)}
}

// Falloff yields max(0, 1 - |value - class| / blendRange). A non-positive
// range degrades to Discrete.
func Falloff(class int, blendRange float64) Expr {
	if blendRange <= 0 {
		return Discrete(class)
	}
	return Max{
		A: Const(0),
		B: Sub{
			A: Const(1),
			B: Div{A: Abs{X: Sub{A: ValueRef{}, B: Const(class)}}, B: Const(blendRange)},
		},
	}
}

// Eased yields the sampled transition weights for class, and the discrete
// weight on frames outside any transition.
func Eased(class int, points []Point) Expr {
	if len(points) == 0 {
		return Discrete(class)
	}
	return NewSamples(points, Discrete(class))
}
