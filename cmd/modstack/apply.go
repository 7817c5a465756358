package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jamesainslie/modstack/pkg/modstack/config"
	"github.com/jamesainslie/modstack/pkg/modstack/manifest"
	"github.com/jamesainslie/modstack/pkg/modstack/output"
	"github.com/jamesainslie/modstack/pkg/modstack/prune"
	"github.com/jamesainslie/modstack/pkg/modstack/unpack"
)

var (
	applyPending  bool
	outputFormat  string
	templateStr   string
	applyNoRecord bool
)

var applyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Merge the enabled layers into the output directory",
	Long: `Merge every enabled layer onto the base game and write the result into
the configured output directory.

Layers apply in the order the config lists them; later layers win. Files
a previous run deployed that no layer provides any more are removed, and
the resource size table is updated so no entry shrinks.

With --pending only the paths in the output's pending log are merged.`,
	Args: cobra.NoArgs,
	RunE: runApply,
}

func init() {
	applyCmd.Flags().BoolVar(&applyPending, "pending", false, "merge only pending changes")
	applyCmd.Flags().StringVarP(&outputFormat, "output", "o", "pretty",
		"output format: "+strings.Join(output.Available(), ", "))
	applyCmd.Flags().StringVar(&templateStr, "template", "", "Go template for -o template")
	applyCmd.Flags().BoolVar(&applyNoRecord, "no-history", false, "do not record the run in history")
	rootCmd.AddCommand(applyCmd)
}

// newUnpacker wires an Unpacker from the configuration.
func newUnpacker(c *config.Config, b *base) (*unpack.Unpacker, error) {
	orphans, err := prune.ParseMethod(c.Unpack.Orphans)
	if err != nil {
		return nil, err
	}

	opts := unpack.Options{
		Workers:       b.tuned.MergeWorkers,
		MemberWorkers: b.tuned.MemberWorkers,
		Orphans:       orphans,
		Pending:       applyPending,
	}
	if !applyNoRecord {
		h, err := manifest.NewHistory(c.History.Path)
		if err != nil {
			return nil, err
		}
		opts.History = h
	}

	refs := make([]unpack.LayerRef, len(c.Layers))
	for i, l := range c.Layers {
		refs[i] = unpack.LayerRef{Path: l.Path, Options: l.Options}
	}
	deploy := unpack.Target{Dir: c.Output, Order: b.endian, Transfer: c.Deploy.Method}
	settings := unpack.Profile{Target: b.endian, Stack: refs}
	return unpack.New(b.store, deploy, settings, opts), nil
}

// formatterFor returns the formatter selected by -o.
func formatterFor(name string) (output.Formatter, error) {
	if name == "template" && templateStr != "" {
		return output.NewTemplateFormatter(templateStr), nil
	}
	return output.Get(name)
}

func runApply(cmd *cobra.Command, args []string) error {
	formatter, err := formatterFor(outputFormat)
	if err != nil {
		return err
	}

	if err := cfg.Validate(); err != nil {
		return err
	}
	b, err := openBase(cfg, true)
	if err != nil {
		return err
	}
	defer b.Close()

	u, err := newUnpacker(cfg, b)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	printVerbose("applying %d layers into %s", len(cfg.Layers), cfg.Output)
	report, err := u.Run(ctx)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	if err := formatter.Format(&buf, report); err != nil {
		return fmt.Errorf("failed to format report: %w", err)
	}
	if !getQuiet() || outputFormat != "pretty" {
		fmt.Print(buf.String())
	}
	return nil
}
