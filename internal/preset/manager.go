package preset

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/normanking/visemekit/internal/viseme"
)

var extensions = []string{".json", ".yaml", ".yml"}

// Info describes an available preset.
type Info struct {
	Name    string `json:"name"`
	Path    string `json:"path,omitempty"`
	Builtin bool   `json:"builtin"`
}

// Manager resolves preset names to mappings. Files in the preset directory
// shadow built-in presets of the same name.
type Manager struct {
	dir    string
	logger zerolog.Logger

	mu     sync.RWMutex
	loaded map[string]*viseme.Mapping
}

// NewManager creates a manager over dir. An empty dir serves built-ins only.
func NewManager(dir string, logger zerolog.Logger) *Manager {
	return &Manager{
		dir:    dir,
		logger: logger.With().Str("component", "presets").Logger(),
		loaded: make(map[string]*viseme.Mapping),
	}
}

// Dir returns the preset directory.
func (m *Manager) Dir() string { return m.dir }

// List returns all presets sorted by name.
func (m *Manager) List() ([]Info, error) {
	byName := make(map[string]Info)
	for _, name := range viseme.BuiltinNames() {
		byName[name] = Info{Name: name, Builtin: true}
	}

	if m.dir != "" {
		entries, err := os.ReadDir(m.dir)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("read preset dir: %w", err)
		}
		for _, e := range entries {
			if e.IsDir() || !isPresetFile(e.Name()) {
				continue
			}
			name := presetName(e.Name())
			byName[name] = Info{Name: name, Path: filepath.Join(m.dir, e.Name())}
		}
	}

	out := make([]Info, 0, len(byName))
	for _, info := range byName {
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Get returns the mapping for name, loading and caching it on first use.
func (m *Manager) Get(name string) (*viseme.Mapping, error) {
	m.mu.RLock()
	mapping, ok := m.loaded[name]
	m.mu.RUnlock()
	if ok {
		return mapping, nil
	}

	doc, err := m.Document(name)
	if err != nil {
		return nil, err
	}
	mapping, err = doc.Mapping()
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.loaded[name] = mapping
	m.mu.Unlock()
	return mapping, nil
}

// Document returns the preset document for name, from disk or built-ins.
func (m *Manager) Document(name string) (*Document, error) {
	if path, ok := m.findFile(name); ok {
		doc, err := Load(path)
		if err != nil {
			return nil, err
		}
		m.logger.Debug().Str("preset", name).Str("path", path).Msg("Loaded preset file")
		return doc, nil
	}

	mapping, err := viseme.Builtin(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return FromMapping(mapping, "built-in"), nil
}

// Save writes doc into the preset directory and returns its path.
func (m *Manager) Save(doc *Document, format Format) (string, error) {
	if m.dir == "" {
		return "", fmt.Errorf("no preset directory configured")
	}
	if _, err := doc.Mapping(); err != nil {
		return "", err
	}

	ext := ".json"
	if format == FormatYAML {
		ext = ".yaml"
	}
	path := filepath.Join(m.dir, doc.PresetName+ext)
	if err := Save(path, doc); err != nil {
		return "", err
	}

	m.Invalidate(doc.PresetName)
	m.logger.Info().Str("preset", doc.PresetName).Str("path", path).Msg("Saved preset")
	return path, nil
}

// Invalidate drops a cached mapping so the next Get reloads it.
func (m *Manager) Invalidate(name string) {
	m.mu.Lock()
	delete(m.loaded, name)
	m.mu.Unlock()
}

// InvalidateAll drops every cached mapping.
func (m *Manager) InvalidateAll() {
	m.mu.Lock()
	m.loaded = make(map[string]*viseme.Mapping)
	m.mu.Unlock()
}

func (m *Manager) findFile(name string) (string, bool) {
	if m.dir == "" {
		return "", false
	}
	for _, ext := range extensions {
		path := filepath.Join(m.dir, name+ext)
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path, true
		}
	}
	return "", false
}

func isPresetFile(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range extensions {
		if ext == e {
			return true
		}
	}
	return false
}

func presetName(file string) string {
	return strings.TrimSuffix(filepath.Base(file), filepath.Ext(file))
}
