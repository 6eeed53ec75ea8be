package preset

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/normanking/visemekit/internal/viseme"
)

const simpleJSON = `{
  "presetName": "simple",
  "symbolSet": "custom",
  "classes": [
    {"symbol": "X", "index": 0, "targetNameHint": "rest"},
    {"symbol": "A", "index": 1, "targetNameHint": "open"},
    {"symbol": "M", "index": 2, "targetNameHint": "closed"}
  ]
}`

const simpleYAML = `presetName: simple
symbolSet: custom
classes:
  - symbol: X
    index: 0
    targetNameHint: rest
  - symbol: A
    index: 1
    targetNameHint: open
  - symbol: M
    index: 2
    targetNameHint: closed
`

func TestParse_Formats(t *testing.T) {
	for _, tc := range []struct {
		name   string
		data   string
		format Format
	}{
		{"json", simpleJSON, FormatJSON},
		{"yaml", simpleYAML, FormatYAML},
	} {
		t.Run(tc.name, func(t *testing.T) {
			doc, err := Parse([]byte(tc.data), tc.format)
			require.NoError(t, err)

			m, err := doc.Mapping()
			require.NoError(t, err)

			assert.Equal(t, "simple", m.Name())
			assert.Equal(t, 3, m.NumClasses())
			assert.Equal(t, "closed", m.TargetHint(2))

			class, ok := m.ClassOf("m")
			assert.True(t, ok)
			assert.Equal(t, 2, class)
		})
	}
}

func TestDocument_MappingErrors(t *testing.T) {
	tests := []struct {
		name string
		doc  Document
	}{
		{"missing name", Document{Classes: []ClassEntry{{Symbol: "X", Index: 0}}}},
		{"empty symbol", Document{PresetName: "p", Classes: []ClassEntry{{Symbol: " ", Index: 0}}}},
		{"sparse", Document{PresetName: "p", Classes: []ClassEntry{{Symbol: "X", Index: 0}, {Symbol: "A", Index: 3}}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.doc.Mapping()
			assert.ErrorIs(t, err, ErrInvalid)
		})
	}
}

func TestFromMapping_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	original := viseme.PrestonBlair()

	for _, name := range []string{"pb.json", "pb.yaml"} {
		path := filepath.Join(dir, name)
		require.NoError(t, Save(path, FromMapping(original, "test")))

		doc, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, "test", doc.Description)

		m, err := doc.Mapping()
		require.NoError(t, err)
		assert.Equal(t, original.Classes(), m.Classes())
	}
}

func TestLoad_UnknownExtension(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "preset.txt"))
	assert.ErrorIs(t, err, ErrUnknownFormat)
}

func TestManager_ListAndGet(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "simple.json"), []byte(simpleJSON), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0644))

	m := NewManager(dir, zerolog.Nop())

	infos, err := m.List()
	require.NoError(t, err)

	var names []string
	for _, info := range infos {
		names = append(names, info.Name)
	}
	assert.Equal(t, []string{"oculus", "preston_blair", "rhubarb", "simple"}, names)

	mapping, err := m.Get("simple")
	require.NoError(t, err)
	assert.Equal(t, 3, mapping.NumClasses())

	again, err := m.Get("simple")
	require.NoError(t, err)
	assert.Same(t, mapping, again)

	builtin, err := m.Get("rhubarb")
	require.NoError(t, err)
	assert.Equal(t, 9, builtin.NumClasses())

	_, err = m.Get("missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestManager_FileShadowsBuiltin(t *testing.T) {
	dir := t.TempDir()
	doc := &Document{
		PresetName: "rhubarb",
		Classes: []ClassEntry{
			{Symbol: "X", Index: 0},
			{Symbol: "A", Index: 1},
		},
	}

	m := NewManager(dir, zerolog.Nop())
	path, err := m.Save(doc, FormatYAML)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "rhubarb.yaml"), path)

	mapping, err := m.Get("rhubarb")
	require.NoError(t, err)
	assert.Equal(t, 2, mapping.NumClasses())

	infos, err := m.List()
	require.NoError(t, err)
	for _, info := range infos {
		if info.Name == "rhubarb" {
			assert.False(t, info.Builtin)
		}
	}
}

func TestManager_SaveRejectsInvalid(t *testing.T) {
	m := NewManager(t.TempDir(), zerolog.Nop())
	_, err := m.Save(&Document{PresetName: "bad"}, FormatJSON)
	assert.Error(t, err)
}

func TestWatcher_InvalidatesOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "simple.json")
	require.NoError(t, os.WriteFile(path, []byte(simpleJSON), 0644))

	m := NewManager(dir, zerolog.Nop())
	first, err := m.Get("simple")
	require.NoError(t, err)

	w, err := NewWatcher(m)
	require.NoError(t, err)
	defer w.Close()

	changed := make(chan string, 8)
	w.OnChange(func(name string) {
		select {
		case changed <- name:
		default:
		}
	})

	require.NoError(t, Save(path, &Document{
		PresetName: "simple",
		Classes: []ClassEntry{
			{Symbol: "X", Index: 0},
			{Symbol: "A", Index: 1},
		},
	}))

	select {
	case name := <-changed:
		assert.Equal(t, "simple", name)
	case <-time.After(5 * time.Second):
		t.Fatal("no change notification")
	}

	assert.Eventually(t, func() bool {
		second, err := m.Get("simple")
		return err == nil && second != first && second.NumClasses() == 2
	}, 5*time.Second, 20*time.Millisecond)
}

func TestManager_InvalidateAll(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "simple.json")
	require.NoError(t, os.WriteFile(path, []byte(simpleJSON), 0644))

	m := NewManager(dir, zerolog.Nop())
	first, err := m.Get("simple")
	require.NoError(t, err)
	builtin, err := m.Get("rhubarb")
	require.NoError(t, err)

	require.NoError(t, Save(path, &Document{
		PresetName: "simple",
		Classes:    []ClassEntry{{Symbol: "X", Index: 0}, {Symbol: "A", Index: 1}},
	}))
	cached, err := m.Get("simple")
	require.NoError(t, err)
	assert.Same(t, first, cached, "served from cache until invalidated")

	m.InvalidateAll()

	second, err := m.Get("simple")
	require.NoError(t, err)
	assert.NotSame(t, first, second)
	assert.Equal(t, 2, second.NumClasses())

	reloaded, err := m.Get("rhubarb")
	require.NoError(t, err)
	assert.NotSame(t, builtin, reloaded)
}

func TestWatcher_ErrorDropsCache(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "simple.json")
	require.NoError(t, os.WriteFile(path, []byte(simpleJSON), 0644))

	m := NewManager(dir, zerolog.Nop())
	first, err := m.Get("simple")
	require.NoError(t, err)

	w, err := NewWatcher(m)
	require.NoError(t, err)
	defer w.Close()

	w.handleError(fsnotify.ErrEventOverflow)

	second, err := m.Get("simple")
	require.NoError(t, err)
	assert.NotSame(t, first, second)
	assert.Equal(t, first.NumClasses(), second.NumClasses())
}
