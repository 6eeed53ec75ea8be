package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/normanking/visemekit/internal/preset"
)

// ============== Presets Commands ==============

var (
	presetFormat string
	presetOut    string
)

var presetsCmd = &cobra.Command{
	Use:   "presets",
	Short: "Manage viseme presets",
	Long: `List, inspect, export and import viseme presets. Files in the preset
directory shadow built-in presets of the same name.`,
}

var presetsListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List available presets",
	RunE:    runPresetsList,
}

var presetsShowCmd = &cobra.Command{
	Use:   "show <name>",
	Short: "Show the classes of a preset",
	Args:  cobra.ExactArgs(1),
	RunE:  runPresetsShow,
}

var presetsExportCmd = &cobra.Command{
	Use:   "export <name>",
	Short: "Write a preset document",
	Long:  `Write a preset document to --out, or to stdout when --out is not set.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runPresetsExport,
}

var presetsImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Validate a preset document and copy it into the preset directory",
	Args:  cobra.ExactArgs(1),
	RunE:  runPresetsImport,
}

func init() {
	presetsExportCmd.Flags().StringVarP(&presetFormat, "format", "f", "yaml", "output format: json or yaml")
	presetsExportCmd.Flags().StringVarP(&presetOut, "out", "o", "", "output path (format taken from the extension)")
}

func runPresetsList(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	infos, err := a.presets.List()
	if err != nil {
		return fmt.Errorf("failed to list presets: %w", err)
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "%-20s %-8s %-8s %s\n", "Name", "Source", "Classes", "Path")
	fmt.Fprintln(w, strings.Repeat("-", 70))
	for _, info := range infos {
		source := "file"
		if info.Builtin {
			source = "builtin"
		}
		classes := "?"
		if m, err := a.presets.Get(info.Name); err == nil {
			classes = fmt.Sprint(m.NumClasses())
		}
		fmt.Fprintf(w, "%-20s %-8s %-8s %s\n", info.Name, source, classes, info.Path)
	}
	return nil
}

func runPresetsShow(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	m, err := a.presets.Get(args[0])
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "Preset:     %s\n", m.Name())
	fmt.Fprintf(w, "Symbol set: %s\n", m.SymbolSet())
	fmt.Fprintf(w, "Classes:    %d\n\n", m.NumClasses())
	fmt.Fprintf(w, "%-6s %-12s %s\n", "Class", "Hint", "Symbols")
	fmt.Fprintln(w, strings.Repeat("-", 60))
	for _, c := range m.Classes() {
		fmt.Fprintf(w, "%-6d %-12s %s\n", c.Index, c.Hint, strings.Join(c.Symbols, " "))
	}
	return nil
}

func runPresetsExport(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	doc, err := a.presets.Document(args[0])
	if err != nil {
		return err
	}

	if presetOut != "" {
		if err := preset.Save(presetOut, doc); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Written %s\n", presetOut)
		return nil
	}

	data, err := preset.Encode(doc, preset.Format(strings.ToLower(presetFormat)))
	if err != nil {
		return err
	}
	_, err = cmd.OutOrStdout().Write(data)
	return err
}

func runPresetsImport(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	path := args[0]
	if _, err := os.Stat(path); err != nil {
		return err
	}
	doc, err := preset.Load(path)
	if err != nil {
		return err
	}
	format, err := preset.FormatFromPath(path)
	if err != nil {
		return err
	}
	saved, err := a.presets.Save(doc, format)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Imported %s to %s\n", doc.PresetName, saved)
	return nil
}
