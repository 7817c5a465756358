package main

import (
	"context"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"github.com/jamesainslie/modstack/pkg/modstack/store"
)

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Build the parent index of the base game",
	Long: `Open every archive in the base game, nested ones included, and record
which archive holds each member. Resources that only exist inside an
archive resolve through this index.

Run it once per dump, and again after the dump changes.`,
	Args: cobra.NoArgs,
	RunE: runIndex,
}

func init() {
	rootCmd.AddCommand(indexCmd)
}

func runIndex(cmd *cobra.Command, args []string) error {
	b, err := openBase(cfg, false)
	if err != nil {
		return err
	}
	defer b.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	start := time.Now()
	ix, err := store.BuildIndex(ctx, b.store.Source(), b.endian)
	if err != nil {
		return err
	}
	if err := ix.Save(cfg.Index); err != nil {
		return err
	}

	printInfo("Indexed %d archived resources in %s.", ix.Len(), time.Since(start).Round(time.Millisecond))
	printInfo("Index written to %s", cfg.Index)
	return nil
}
