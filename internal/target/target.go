// Package target defines the visual parameters bindings drive and the
// adapters that attach bindings to them.
//
// Each Kind has one Adapter. Adding a kind means adding a Kind value and an
// Adapter and registering it; the engine dispatches through Adapters only.
package target

import (
	"errors"
	"fmt"
	"strings"

	"github.com/normanking/visemekit/internal/binding"
)

// Owner tags drivers created by visemekit so ClearBindings never touches
// drivers a host or user added by hand.
const Owner = "visemekit"

// Common errors
var (
	ErrUnknownKind     = errors.New("unknown target kind")
	ErrNotFound        = errors.New("target not found")
	ErrRejected        = errors.New("target rejected binding")
	ErrDuplicateDriver = errors.New("driver already exists")
)

// Kind is a target capability.
type Kind int

const (
	KindUnknown Kind = iota
	OpacityLayer
	BlendWeight
	BoneProperty
	MaterialParam
)

var kindNames = map[Kind]string{
	OpacityLayer:  "opacity_layer",
	BlendWeight:   "blend_weight",
	BoneProperty:  "bone_property",
	MaterialParam: "material_param",
}

var kindAliases = map[string]Kind{
	"opacity_layer":  OpacityLayer,
	"opacity":        OpacityLayer,
	"layer":          OpacityLayer,
	"gp_layer":       OpacityLayer,
	"blend_weight":   BlendWeight,
	"blendshape":     BlendWeight,
	"blend_shape":    BlendWeight,
	"shape_key":      BlendWeight,
	"morph":          BlendWeight,
	"bone_property":  BoneProperty,
	"bone":           BoneProperty,
	"material_param": MaterialParam,
	"material":       MaterialParam,
	"shader_param":   MaterialParam,
}

func (k Kind) String() string {
	if n, ok := kindNames[k]; ok {
		return n
	}
	return "unknown"
}

// ParseKind accepts canonical names and common aliases (gp_layer, shape_key, ...).
func ParseKind(s string) (Kind, error) {
	norm := strings.ToLower(strings.TrimSpace(s))
	norm = strings.ReplaceAll(norm, "-", "_")
	if k, ok := kindAliases[norm]; ok {
		return k, nil
	}
	return KindUnknown, fmt.Errorf("%w: %q", ErrUnknownKind, s)
}

// MarshalText encodes the canonical name.
func (k Kind) MarshalText() ([]byte, error) {
	if _, ok := kindNames[k]; !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownKind, int(k))
	}
	return []byte(k.String()), nil
}

// UnmarshalText accepts any name ParseKind accepts.
func (k *Kind) UnmarshalText(text []byte) error {
	parsed, err := ParseKind(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// Target is one addressable visual parameter.
type Target struct {
	// Ref is the unique address of the parameter within its host.
	Ref string `json:"ref" yaml:"ref"`
	// Name is matched against class hints.
	Name   string `json:"name" yaml:"name"`
	Kind   Kind   `json:"kind" yaml:"kind"`
	Object string `json:"object,omitempty" yaml:"object,omitempty"`
	// Property names the driven channel for bone and material targets.
	Property string `json:"property,omitempty" yaml:"property,omitempty"`
}

// Driver is a binding expression attached to a target by some owner.
type Driver struct {
	Owner string
	Class int
	Expr  binding.Expr
}

// Handle identifies an attached driver.
type Handle struct {
	TargetRef string
	Class     int
	ID        int
}

// DriverHost is the scene-side store of targets and their drivers.
type DriverHost interface {
	Lookup(ref string) (Target, bool)
	AddDriver(ref string, d Driver) (Handle, error)
	// RemoveDrivers removes the drivers of ref created by owner and
	// returns how many were removed.
	RemoveDrivers(ref, owner string) int
	Drivers(ref string) []Driver
}

// Adapter validates targets of one kind and attaches bindings to them.
type Adapter interface {
	Kind() Kind
	Validate(t Target) bool
	Bind(t Target, b binding.Binding) (Handle, error)
	// Bindings returns the drivers visemekit currently holds on t.
	Bindings(t Target) []binding.Binding
	ClearBindings(t Target) int
}
