package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jamesainslie/modstack/pkg/modstack/config"
	"github.com/jamesainslie/modstack/pkg/modstack/manifest"
	"github.com/jamesainslie/modstack/pkg/modstack/types"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "View apply history",
	Long: `View the history of apply runs.

Each run records the layers applied, the files written, the orphans
removed and a digest of the size table it produced.`,
	RunE: runHistory,
}

var historyShowCmd = &cobra.Command{
	Use:   "show [id]",
	Short: "Show details of a specific run",
	Long:  `Display detailed information about a run by its ID or a unique ID prefix.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runHistoryShow,
}

var historyCleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Clean up old history entries",
	Long:  `Remove history entries older than the retention period.`,
	RunE:  runHistoryClean,
}

var historyLimit int

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "l", 20, "maximum number of entries to show")

	historyCmd.AddCommand(historyShowCmd)
	historyCmd.AddCommand(historyCleanCmd)
	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, args []string) error {
	h, err := manifest.NewHistory(cfg.History.Path)
	if err != nil {
		return fmt.Errorf("failed to open history: %w", err)
	}

	entries, err := h.List(historyLimit)
	if err != nil {
		return fmt.Errorf("failed to list history: %w", err)
	}

	if len(entries) == 0 {
		printInfo("No history entries found.")
		printInfo("Run 'modstack apply' to merge your layers.")
		return nil
	}

	fmt.Printf("\n%-36s  %-13s  %-8s  %-8s  %-12s\n", "ID", "TYPE", "FILES", "REMOVED", "SIZE")
	fmt.Println(strings.Repeat("-", 86))

	for _, entry := range entries {
		fmt.Printf("%-36s  %-13s  %-8d  %-8d  %-12s\n",
			truncateString(entry.ID, 36),
			entry.Operation,
			entry.Summary.TotalFiles,
			entry.Summary.Removed,
			types.FormatSize(entry.Summary.TotalBytes),
		)
	}

	fmt.Println(strings.Repeat("-", 86))
	fmt.Printf("\nShowing %d entries. Use --limit to see more.\n", len(entries))
	fmt.Println("Use 'modstack history show <id>' for details on a specific entry.")
	return nil
}

func runHistoryShow(cmd *cobra.Command, args []string) error {
	h, err := manifest.NewHistory(cfg.History.Path)
	if err != nil {
		return fmt.Errorf("failed to open history: %w", err)
	}

	entry, err := h.Get(args[0])
	if err != nil {
		return fmt.Errorf("failed to get entry: %w", err)
	}

	fmt.Println("\nRun Details")
	fmt.Println(strings.Repeat("=", 60))
	fmt.Printf("ID:         %s\n", entry.ID)
	fmt.Printf("Timestamp:  %s\n", entry.Timestamp.Format("2006-01-02 15:04:05 MST"))
	fmt.Printf("Operation:  %s\n", entry.Operation)
	fmt.Printf("Output:     %s\n", entry.Output)
	fmt.Printf("Layers:     %s\n", strings.Join(entry.Layers, " > "))
	fmt.Printf("Files:      %d\n", entry.Summary.TotalFiles)
	fmt.Printf("Total Size: %s\n", types.FormatSize(entry.Summary.TotalBytes))
	if entry.SizeTable != "" {
		fmt.Printf("Size table: %s\n", entry.SizeTable)
	}

	if len(entry.Files) > 0 {
		fmt.Println("\nFiles:")
		fmt.Println(strings.Repeat("-", 60))
		fmt.Printf("%-12s  %s\n", "SIZE", "PATH")
		fmt.Println(strings.Repeat("-", 60))

		limit := min(len(entry.Files), 50)
		for _, file := range entry.Files[:limit] {
			fmt.Printf("%-12s  %s\n", types.FormatSize(file.Size), file.Path)
		}
		if len(entry.Files) > limit {
			fmt.Printf("\n... and %d more files\n", len(entry.Files)-limit)
		}
	}

	if len(entry.Removed) > 0 {
		fmt.Println("\nRemoved:")
		fmt.Println(strings.Repeat("-", 60))
		for _, p := range entry.Removed {
			fmt.Println(p)
		}
	}
	return nil
}

func runHistoryClean(cmd *cobra.Command, args []string) error {
	h, err := manifest.NewHistory(cfg.History.Path)
	if err != nil {
		return fmt.Errorf("failed to open history: %w", err)
	}

	retentionDays := cfg.History.RetentionDays
	if retentionDays <= 0 {
		retentionDays = config.DefaultRetentionDays
	}

	printInfo("Cleaning history entries older than %d days...", retentionDays)
	removed, err := h.Cleanup(retentionDays)
	if err != nil {
		return fmt.Errorf("failed to clean history: %w", err)
	}

	printInfo("Removed %d entries.", removed)
	return nil
}

// truncateString truncates a string to maxLen, adding "..." if truncated.
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
