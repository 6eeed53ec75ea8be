package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/normanking/visemekit/internal/session"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetErr(&buf)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return buf.String(), err
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func testWorkspace(t *testing.T) (dir, cfg string) {
	dir = t.TempDir()
	cfg = writeFile(t, dir, "config.yaml", fmt.Sprintf(`
cache:
  backend: file
  dir: %s
presets:
  dir: %s
log:
  console: false
  file: false
extractor:
  name: document
`, filepath.Join(dir, "cache"), filepath.Join(dir, "presets")))
	return dir, cfg
}

const lineTimeline = `{
  "events": [
    {"symbol": "SIL", "start": 0.0, "end": 0.2},
    {"symbol": "HH",  "start": 0.2, "end": 0.5},
    {"symbol": "M",   "start": 0.5, "end": 0.8},
    {"symbol": "SIL", "start": 0.8, "end": 1.0}
  ],
  "duration": 1.0,
  "symbol_set": "arpabet"
}`

const faceTargets = `
targets:
  - {object: Face, name: mouth_REST, kind: opacity}
  - {object: Face, name: mouth_AH, kind: opacity}
  - {object: Face, name: mouth_M, kind: opacity}
`

func TestGeneratePreviewClean(t *testing.T) {
	dir, cfg := testWorkspace(t)
	tl := writeFile(t, dir, "line.json", lineTimeline)
	targets := writeFile(t, dir, "face.yaml", faceTargets)
	out := filepath.Join(dir, "line.session.json")

	stdout, err := execute(t, "--config", cfg, "generate",
		"--timeline", tl, "--targets", targets, "--out", out, "--bake")
	require.NoError(t, err, stdout)
	assert.Contains(t, stdout, "Keyframes:  4")
	assert.Contains(t, stdout, "Bindings:   3")

	doc, err := session.Load(out)
	require.NoError(t, err)
	assert.Equal(t, "preston_blair", doc.Preset)
	assert.Len(t, doc.Bindings, 3)
	assert.NotEmpty(t, doc.Frames)
	assert.Equal(t, 1, doc.Frames[0].Frame)

	stdout, err = execute(t, "--config", cfg, "preview", out, "--at", "0.3")
	require.NoError(t, err, stdout)
	assert.Contains(t, stdout, "AH")

	stdout, err = execute(t, "--config", cfg, "clean", out)
	require.NoError(t, err, stdout)
	assert.Contains(t, stdout, "Keyframes:  4 removed")
	assert.Contains(t, stdout, "Bindings:   3 removed")

	cleaned, err := session.Load(out)
	require.NoError(t, err)
	assert.Empty(t, cleaned.Track.Keyframes)
	assert.Empty(t, cleaned.Bindings)

	stdout, err = execute(t, "--config", cfg, "clean", out)
	require.NoError(t, err, stdout)
	assert.Contains(t, stdout, "Keyframes:  0 removed")
	assert.Contains(t, stdout, "Bindings:   0 removed")
}

const minePreset = `{
  "presetName": "mine",
  "symbolSet": "arpabet",
  "classes": [
    {"symbol": "SIL", "index": 0, "targetNameHint": "REST"},
    {"symbol": "HH",  "index": 1, "targetNameHint": "AH"},
    {"symbol": "M",   "index": 2, "targetNameHint": "M"}
  ]
}`

func TestCleanWithoutPreset(t *testing.T) {
	dir, cfg := testWorkspace(t)
	t.Cleanup(func() { genPreset = "" })
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "presets"), 0755))
	presetPath := writeFile(t, filepath.Join(dir, "presets"), "mine.json", minePreset)
	tl := writeFile(t, dir, "line.json", lineTimeline)
	targets := writeFile(t, dir, "face.yaml", faceTargets)
	out := filepath.Join(dir, "line.session.json")

	stdout, err := execute(t, "--config", cfg, "generate",
		"--timeline", tl, "--targets", targets, "--out", out, "--preset", "mine")
	require.NoError(t, err, stdout)
	assert.Contains(t, stdout, "Keyframes:  4")
	assert.Contains(t, stdout, "Bindings:   3")

	require.NoError(t, os.Remove(presetPath))

	stdout, err = execute(t, "--config", cfg, "clean", out)
	require.NoError(t, err, stdout)
	assert.Contains(t, stdout, "Keyframes:  4 removed")
	assert.Contains(t, stdout, "Warning:    Session not regenerated, removing keyframes only")
	assert.Contains(t, stdout, "preset=mine")

	cleaned, err := session.Load(out)
	require.NoError(t, err)
	assert.Empty(t, cleaned.Track.Keyframes)
	assert.Empty(t, cleaned.Bindings)
}

func TestAnalyzeWithDocumentExtractor(t *testing.T) {
	dir, cfg := testWorkspace(t)
	tl := writeFile(t, dir, "line.json", lineTimeline)

	stdout, err := execute(t, "--config", cfg, "analyze", tl)
	require.NoError(t, err, stdout)
	assert.Contains(t, stdout, "Source:   extracted")
	assert.Contains(t, stdout, "Events:   4")

	stdout, err = execute(t, "--config", cfg, "analyze", tl)
	require.NoError(t, err, stdout)
	assert.Contains(t, stdout, "Source:   cache")

	stdout, err = execute(t, "--config", cfg, "cache", "ls")
	require.NoError(t, err, stdout)
	assert.Contains(t, stdout, "1 entries")

	stdout, err = execute(t, "--config", cfg, "cache", "clear")
	require.NoError(t, err, stdout)
	assert.Contains(t, stdout, "Removed 1 entries")
}

func TestPresetsExportImport(t *testing.T) {
	dir, cfg := testWorkspace(t)
	exported := filepath.Join(dir, "custom.yaml")

	stdout, err := execute(t, "--config", cfg, "presets", "export", "oculus", "--out", exported)
	require.NoError(t, err, stdout)

	data, err := os.ReadFile(exported)
	require.NoError(t, err)
	assert.Contains(t, string(data), "viseme_PP")

	stdout, err = execute(t, "--config", cfg, "presets", "import", exported)
	require.NoError(t, err, stdout)
	assert.FileExists(t, filepath.Join(dir, "presets", "oculus.yaml"))

	stdout, err = execute(t, "--config", cfg, "presets", "ls")
	require.NoError(t, err, stdout)
	assert.Contains(t, stdout, "oculus")
	assert.Contains(t, stdout, "file")
}

func TestParseAssign(t *testing.T) {
	tests := []struct {
		name    string
		values  []string
		want    map[int][]string
		wantErr bool
	}{
		{"single", []string{"1=Face/mouth_AH"}, map[int][]string{1: {"Face/mouth_AH"}}, false},
		{"multiple refs", []string{"5=Face/M, Face/M2"}, map[int][]string{5: {"Face/M", "Face/M2"}}, false},
		{"repeated class", []string{"2=a", "2=b"}, map[int][]string{2: {"a", "b"}}, false},
		{"no separator", []string{"1"}, nil, true},
		{"bad class", []string{"x=a"}, nil, true},
		{"no refs", []string{"1= ,"}, nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseAssign(tt.values)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
