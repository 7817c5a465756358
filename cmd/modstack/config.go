package main

import (
	"fmt"
	"os"
	"os/exec"

	"github.com/spf13/cobra"

	"github.com/jamesainslie/modstack/pkg/modstack/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
	Long: `Manage modstack configuration settings.

Configuration is loaded from:
  1. --config, when given
  2. $XDG_CONFIG_HOME/modstack/config.yml (if set)
  3. ~/.config/modstack/config.yml

Environment variables override config file settings using the MODSTACK_ prefix:
  MODSTACK_PLATFORM=wiiu
  MODSTACK_OUTPUT=~/mods/out
  MODSTACK_UNPACK_WORKERS=8`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Long:  `Display the current configuration settings from all sources.`,
	RunE:  runConfigShow,
}

var configEditCmd = &cobra.Command{
	Use:   "edit",
	Short: "Edit configuration file",
	Long: `Open the configuration file in your default editor.

The editor is determined by:
  1. $VISUAL environment variable
  2. $EDITOR environment variable
  3. Falls back to 'vi'

If the config file doesn't exist, a default one will be created first.`,
	RunE: runConfigEdit,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create default configuration file",
	Long:  `Create a default configuration file if one doesn't exist.`,
	RunE:  runConfigInit,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Show configuration file path",
	Long:  `Display the path to the configuration file.`,
	RunE:  runConfigPath,
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configEditCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configPathCmd)
	rootCmd.AddCommand(configCmd)
}

// configFilePath returns --config or the default location.
func configFilePath() (string, error) {
	if cfgFile != "" {
		return cfgFile, nil
	}
	return config.ConfigPath()
}

// envOverrides lists the environment variables config show reports.
var envOverrides = []string{
	"MODSTACK_PLATFORM",
	"MODSTACK_OUTPUT",
	"MODSTACK_INDEX",
	"MODSTACK_DUMP_CONTENT",
	"MODSTACK_DUMP_UPDATE",
	"MODSTACK_DUMP_AOC",
	"MODSTACK_DUMP_PACKED",
	"MODSTACK_DEPLOY_METHOD",
	"MODSTACK_UNPACK_WORKERS",
	"MODSTACK_UNPACK_ORPHANS",
	"MODSTACK_CACHE_CAPACITY",
	"MODSTACK_CACHE_PERSISTENT",
	"MODSTACK_HISTORY_RETENTION_DAYS",
	"MODSTACK_LOGGING_LEVEL",
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	c := cfg
	if c == nil {
		var err error
		if c, err = config.Load(cfgFile); err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
	}

	path, err := configFilePath()
	if err != nil {
		return err
	}
	if _, err := os.Stat(path); err == nil {
		fmt.Printf("Config file: %s\n\n", path)
	} else {
		fmt.Println("Config file: (using defaults, no file found)")
		fmt.Println()
	}

	fmt.Println("Current Configuration:")
	fmt.Println("----------------------")
	fmt.Printf("platform:               %s\n", c.Platform)
	fmt.Printf("dump.content:           %s\n", c.Dump.Content)
	fmt.Printf("dump.update:            %s\n", c.Dump.Update)
	fmt.Printf("dump.aoc:               %s\n", c.Dump.Aoc)
	fmt.Printf("dump.packed:            %s\n", c.Dump.Packed)
	fmt.Printf("output:                 %s\n", c.Output)
	fmt.Printf("index:                  %s\n", c.Index)
	fmt.Printf("deploy.method:          %s\n", c.Deploy.Method)
	fmt.Printf("unpack.workers:         %d\n", c.Unpack.Workers)
	fmt.Printf("unpack.orphans:         %s\n", c.Unpack.Orphans)
	fmt.Printf("cache.capacity:         %d\n", c.Cache.Capacity)
	fmt.Printf("cache.idle_timeout:     %s\n", c.Cache.IdleTimeout)
	fmt.Printf("cache.persistent:       %t\n", c.Cache.Persistent)
	fmt.Printf("cache.path:             %s\n", c.Cache.Path)
	fmt.Printf("history.path:           %s\n", c.History.Path)
	fmt.Printf("history.retention_days: %d\n", c.History.RetentionDays)
	fmt.Printf("logging.level:          %s\n", c.Logging.Level)

	fmt.Println("\nLayers (lowest priority first):")
	fmt.Println("-------------------------------")
	if len(c.Layers) == 0 {
		fmt.Println("(none)")
	}
	for i, l := range c.Layers {
		fmt.Printf("%2d. %s", i+1, l.Path)
		if len(l.Options) > 0 {
			fmt.Printf(" %v", l.Options)
		}
		fmt.Println()
	}

	fmt.Println("\nEnvironment Overrides:")
	fmt.Println("----------------------")
	anyOverrides := false
	for _, name := range envOverrides {
		if val := os.Getenv(name); val != "" {
			fmt.Printf("%s=%s\n", name, val)
			anyOverrides = true
		}
	}
	if !anyOverrides {
		fmt.Println("(none)")
	}
	return nil
}

func runConfigEdit(cmd *cobra.Command, args []string) error {
	path, err := configFilePath()
	if err != nil {
		return err
	}
	if _, err := config.WriteDefault(path); err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}

	editor := os.Getenv("VISUAL")
	if editor == "" {
		editor = os.Getenv("EDITOR")
	}
	if editor == "" {
		editor = "vi"
	}

	printVerbose("Opening %s with %s", path, editor)

	editorCmd := exec.Command(editor, path)
	editorCmd.Stdin = os.Stdin
	editorCmd.Stdout = os.Stdout
	editorCmd.Stderr = os.Stderr
	if err := editorCmd.Run(); err != nil {
		return fmt.Errorf("editor command failed: %w", err)
	}
	return nil
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	path, err := configFilePath()
	if err != nil {
		return err
	}
	if _, err := os.Stat(path); err == nil {
		printInfo("Config file already exists: %s", path)
		printInfo("Use 'modstack config edit' to modify it.")
		return nil
	}

	if _, err := config.WriteDefault(path); err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	printInfo("Created default config file: %s", path)
	return nil
}

func runConfigPath(cmd *cobra.Command, args []string) error {
	path, err := configFilePath()
	if err != nil {
		return err
	}
	fmt.Println(path)

	if _, err := os.Stat(path); err == nil {
		printVerbose("File exists")
	} else if os.IsNotExist(err) {
		printVerbose("File does not exist (will use defaults)")
	}
	return nil
}
