package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jamesainslie/modstack/pkg/modstack/layer"
)

var (
	packName        string
	packVersion     string
	packDescription string
	packOptions     []string
)

var packCmd = &cobra.Command{
	Use:   "pack <mod-dir> <out>",
	Short: "Build a layer package from a loose mod",
	Long: `Diff a modified loose tree against the base game and write a layer
package holding only what changed.

The mod directory is laid out like a deployment root (content/ and
aoc/0010/ for Wii U, the romfs directories for Switch). Each --option
adds an optional sub-tree the user can enable per layer.

Examples:
  modstack pack ./my-mod my-mod.zip
  modstack pack ./my-mod my-mod.zip --option hard=./my-mod-hard`,
	Args: cobra.ExactArgs(2),
	RunE: runPack,
}

func init() {
	packCmd.Flags().StringVar(&packName, "name", "", "layer name (default: mod directory name)")
	packCmd.Flags().StringVar(&packVersion, "version", "", "layer version")
	packCmd.Flags().StringVar(&packDescription, "description", "", "layer description")
	packCmd.Flags().StringArrayVar(&packOptions, "option", nil, "optional sub-tree as name=dir (repeatable)")
	rootCmd.AddCommand(packCmd)
}

// packOption is one --option flag.
type packOption struct {
	name string
	dir  string
}

func parsePackOptions(values []string) ([]packOption, error) {
	opts := make([]packOption, 0, len(values))
	for _, v := range values {
		name, dir, ok := strings.Cut(v, "=")
		name, dir = strings.TrimSpace(name), strings.TrimSpace(dir)
		if !ok || name == "" || dir == "" {
			return nil, fmt.Errorf("invalid --option %q (want name=dir)", v)
		}
		opts = append(opts, packOption{name: name, dir: dir})
	}
	return opts, nil
}

func runPack(cmd *cobra.Command, args []string) error {
	modDir, out := args[0], args[1]
	options, err := parsePackOptions(packOptions)
	if err != nil {
		return err
	}

	b, err := openBase(cfg, true)
	if err != nil {
		return err
	}
	defer b.Close()

	meta := layer.Meta{
		Name:        packName,
		Version:     packVersion,
		Description: packDescription,
	}
	if meta.Name == "" {
		meta.Name = filepath.Base(filepath.Clean(modDir))
	}
	if len(options) > 0 {
		group := layer.OptionGroup{Name: "options"}
		for _, o := range options {
			group.Options = append(group.Options, o.name)
		}
		meta.Groups = []layer.OptionGroup{group}
	}

	w, err := layer.Create(out, meta, b.endian)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	stats, err := layer.Pack(ctx, b.store, modDir, w, layer.PackOptions{Endian: b.endian})
	if err == nil {
		for _, o := range options {
			var s layer.PackStats
			s, err = layer.Pack(ctx, b.store, o.dir, w, layer.PackOptions{Endian: b.endian, Option: o.name})
			if err != nil {
				break
			}
			stats.Changed += s.Changed
			stats.Added += s.Added
			stats.Unchanged += s.Unchanged
		}
	}
	if cerr := w.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(out)
		return err
	}

	printInfo("Packed %s: %d changed, %d added, %d unchanged.", out, stats.Changed, stats.Added, stats.Unchanged)
	return nil
}
