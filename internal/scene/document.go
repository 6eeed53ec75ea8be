package scene

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/normanking/visemekit/internal/target"
)

// targetEntry keeps kind as a string so both YAML and JSON documents go
// through ParseKind and its aliases.
type targetEntry struct {
	Ref      string `yaml:"ref"`
	Name     string `yaml:"name"`
	Kind     string `yaml:"kind"`
	Object   string `yaml:"object"`
	Property string `yaml:"property"`
}

type targetDocument struct {
	Targets []targetEntry `yaml:"targets"`
}

// ParseTargets decodes a target registry document. YAML is a superset of
// JSON, so one decoder serves both formats.
func ParseTargets(data []byte) ([]target.Target, error) {
	var doc targetDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode targets: %w", err)
	}

	out := make([]target.Target, 0, len(doc.Targets))
	for i, e := range doc.Targets {
		kind, err := target.ParseKind(e.Kind)
		if err != nil {
			return nil, fmt.Errorf("target %d (%s): %w", i, e.Ref, err)
		}
		ref := e.Ref
		if ref == "" {
			ref = e.Name
			if e.Object != "" {
				ref = e.Object + "/" + e.Name
			}
		}
		name := e.Name
		if name == "" {
			name = ref
		}
		out = append(out, target.Target{
			Ref:      ref,
			Name:     name,
			Kind:     kind,
			Object:   e.Object,
			Property: e.Property,
		})
	}
	return out, nil
}

// LoadTargets reads a target registry document and builds a scene from it.
func LoadTargets(path string) (*Scene, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read targets %s: %w", path, err)
	}
	targets, err := ParseTargets(data)
	if err != nil {
		return nil, fmt.Errorf("parse targets %s: %w", path, err)
	}
	return New(targets...)
}
