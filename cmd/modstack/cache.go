package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jamesainslie/modstack/pkg/modstack/store"
	"github.com/jamesainslie/modstack/pkg/modstack/types"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage the resource cache",
	Long: `Commands for managing the persistent resource cache.

The cache keeps parsed base-game documents between runs so repeat applies
skip re-parsing the dump. Entries are keyed by the bytes they were parsed
from, so a changed dump never serves stale data.`,
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Clear all cached data",
	Long:  `Removes every cached document. The next apply parses the dump again.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := os.Stat(cfg.Cache.Path); os.IsNotExist(err) {
			printInfo("Cache is already empty.")
			return nil
		}

		dc, err := store.OpenDiskCache(cfg.Cache.Path)
		if err != nil {
			return err
		}
		defer dc.Close()

		if err := dc.Clear(); err != nil {
			return fmt.Errorf("failed to clear cache: %w", err)
		}
		printInfo("Cache cleared.")
		return nil
	},
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show cache statistics",
	Long:  `Displays the cache location, entry count and stored size, and the parent index.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Printf("Cache location: %s\n", cfg.Cache.Path)
		if _, err := os.Stat(cfg.Cache.Path); os.IsNotExist(err) {
			fmt.Println("Cache: empty (no cache directory)")
		} else {
			dc, err := store.OpenDiskCache(cfg.Cache.Path)
			if err != nil {
				return err
			}
			st, err := dc.Stats()
			_ = dc.Close()
			if err != nil {
				return fmt.Errorf("failed to read cache stats: %w", err)
			}
			fmt.Printf("Cache entries:  %d\n", st.Entries)
			fmt.Printf("Cache size:     %s\n", types.FormatSize(st.Bytes))
		}

		fmt.Printf("Parent index:   %s\n", cfg.Index)
		info, err := os.Stat(cfg.Index)
		if err != nil {
			fmt.Println("Index:          not built (run 'modstack index')")
			return nil
		}
		ix, err := store.LoadIndex(cfg.Index)
		if err != nil {
			return err
		}
		fmt.Printf("Index entries:  %d\n", ix.Len())
		fmt.Printf("Index built:    %s\n", info.ModTime().Format("2006-01-02 15:04:05"))
		return nil
	},
}

var cachePathCmd = &cobra.Command{
	Use:   "path",
	Short: "Show cache location",
	Long:  `Prints the path to the cache directory.`,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(cfg.Cache.Path)
	},
}

func init() {
	cacheCmd.AddCommand(cacheClearCmd)
	cacheCmd.AddCommand(cacheStatsCmd)
	cacheCmd.AddCommand(cachePathCmd)
	rootCmd.AddCommand(cacheCmd)
}
