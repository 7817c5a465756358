package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jamesainslie/modstack/pkg/modstack/manifest"
	"github.com/jamesainslie/modstack/pkg/modstack/types"
)

var pendingCmd = &cobra.Command{
	Use:   "pending",
	Short: "Manage the pending change log",
	Long: `The pending log in the output directory lists resources changed or
deleted since the last deploy. 'modstack apply --pending' merges only
those.

Paths may be given canonically or as stored in a deployment root.`,
}

var pendingAddCmd = &cobra.Command{
	Use:   "add <path>...",
	Short: "Mark resources as changed",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return updatePending(args, (*manifest.Pending).Change)
	},
}

var pendingDeleteCmd = &cobra.Command{
	Use:   "delete <path>...",
	Short: "Mark resources as deleted",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return updatePending(args, (*manifest.Pending).Remove)
	},
}

var pendingShowCmd = &cobra.Command{
	Use:   "show",
	Short: "List pending changes",
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := manifest.LoadPending(cfg.Output)
		if err != nil {
			return err
		}
		if p.Empty() {
			printInfo("Nothing pending.")
			return nil
		}
		for _, f := range p.Files {
			fmt.Printf("M %s\n", f)
		}
		for _, f := range p.Delete {
			fmt.Printf("D %s\n", f)
		}
		return nil
	},
}

var pendingClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Discard the pending log",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := manifest.ClearPending(cfg.Output); err != nil {
			return err
		}
		printInfo("Pending log cleared.")
		return nil
	},
}

func init() {
	pendingCmd.AddCommand(pendingAddCmd)
	pendingCmd.AddCommand(pendingDeleteCmd)
	pendingCmd.AddCommand(pendingShowCmd)
	pendingCmd.AddCommand(pendingClearCmd)
	rootCmd.AddCommand(pendingCmd)
}

// updatePending canonicalizes paths and records them with fn.
func updatePending(paths []string, fn func(*manifest.Pending, ...string)) error {
	if cfg.Output == "" {
		return fmt.Errorf("output is not configured")
	}
	e, err := cfg.Endian()
	if err != nil {
		return err
	}
	p, err := manifest.LoadPending(cfg.Output)
	if err != nil {
		return err
	}

	canon := make([]string, len(paths))
	for i, path := range paths {
		canon[i] = types.Canonicalize(path, e)
	}
	fn(p, canon...)
	if err := p.Save(cfg.Output); err != nil {
		return err
	}
	printInfo("%d changed, %d deleted pending.", len(p.Files), len(p.Delete))
	return nil
}
