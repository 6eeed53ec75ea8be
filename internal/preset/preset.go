// Package preset loads and saves viseme preset documents.
//
// A preset document is the externally authored symbol-to-class table:
//
//	{"presetName": "...", "classes": [{"symbol": "AA", "index": 1, "targetNameHint": "AH"}]}
//
// Documents may be JSON or YAML; the format is chosen by file extension.
package preset

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/normanking/visemekit/internal/viseme"
)

// Common errors
var (
	ErrNotFound      = errors.New("preset not found")
	ErrInvalid       = errors.New("invalid preset document")
	ErrUnknownFormat = errors.New("unknown preset format")
)

// Format is a document encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// FormatFromPath picks the format from a file extension.
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnknownFormat, path)
	}
}

// ClassEntry is one symbol row of a preset document.
type ClassEntry struct {
	Symbol         string `json:"symbol" yaml:"symbol"`
	Index          int    `json:"index" yaml:"index"`
	TargetNameHint string `json:"targetNameHint,omitempty" yaml:"targetNameHint,omitempty"`
}

// Document is a preset document.
type Document struct {
	PresetName  string       `json:"presetName" yaml:"presetName"`
	Description string       `json:"description,omitempty" yaml:"description,omitempty"`
	SymbolSet   string       `json:"symbolSet,omitempty" yaml:"symbolSet,omitempty"`
	Classes     []ClassEntry `json:"classes" yaml:"classes"`
}

// Mapping builds the viseme mapping described by the document.
func (d *Document) Mapping() (*viseme.Mapping, error) {
	if d.PresetName == "" {
		return nil, fmt.Errorf("%w: missing presetName", ErrInvalid)
	}
	entries := make([]viseme.Entry, 0, len(d.Classes))
	for i, c := range d.Classes {
		if strings.TrimSpace(c.Symbol) == "" {
			return nil, fmt.Errorf("%w: class entry %d has no symbol", ErrInvalid, i)
		}
		entries = append(entries, viseme.Entry{
			Symbol: c.Symbol,
			Index:  c.Index,
			Hint:   c.TargetNameHint,
		})
	}
	m, err := viseme.NewMapping(d.PresetName, d.SymbolSet, entries)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrInvalid, d.PresetName, err)
	}
	return m, nil
}

// FromMapping converts a mapping back into a document.
func FromMapping(m *viseme.Mapping, description string) *Document {
	doc := &Document{
		PresetName:  m.Name(),
		Description: description,
		SymbolSet:   m.SymbolSet(),
	}
	for _, e := range m.Entries() {
		doc.Classes = append(doc.Classes, ClassEntry{
			Symbol:         e.Symbol,
			Index:          e.Index,
			TargetNameHint: e.Hint,
		})
	}
	return doc
}

// Parse decodes a document in the given format.
func Parse(data []byte, format Format) (*Document, error) {
	var doc Document
	var err error
	switch format {
	case FormatJSON:
		err = json.Unmarshal(data, &doc)
	case FormatYAML:
		err = yaml.Unmarshal(data, &doc)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return &doc, nil
}

// Encode serializes a document in the given format.
func Encode(doc *Document, format Format) ([]byte, error) {
	switch format {
	case FormatJSON:
		data, err := json.MarshalIndent(doc, "", "  ")
		if err != nil {
			return nil, err
		}
		return append(data, '\n'), nil
	case FormatYAML:
		return yaml.Marshal(doc)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
}

// Load reads a document from disk.
func Load(path string) (*Document, error) {
	format, err := FormatFromPath(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read preset %s: %w", path, err)
	}
	doc, err := Parse(data, format)
	if err != nil {
		return nil, fmt.Errorf("parse preset %s: %w", path, err)
	}
	return doc, nil
}

// Save writes a document to disk, creating parent directories.
func Save(path string, doc *Document) error {
	format, err := FormatFromPath(path)
	if err != nil {
		return err
	}
	data, err := Encode(doc, format)
	if err != nil {
		return fmt.Errorf("encode preset: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create preset dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write preset %s: %w", path, err)
	}
	return nil
}
