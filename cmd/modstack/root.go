package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jamesainslie/modstack/pkg/modstack/config"
	"github.com/jamesainslie/modstack/pkg/modstack/logging"
	"github.com/jamesainslie/modstack/pkg/modstack/types"
)

var (
	cfgFile string
	cfg     *config.Config

	rootCmd = &cobra.Command{
		Use:   "modstack",
		Short: "Merge stacked game mods into one deployable tree",
		Long: `modstack merges an ordered stack of mod layers onto the unmodified game
files and writes the result, plus an updated resource size table, into
an output directory ready to deploy.

Examples:
  modstack index                     # Build the parent index once per dump
  modstack pack ./my-mod my-mod.zip  # Package a loose mod as a layer
  modstack apply                     # Merge every enabled layer
  modstack apply --pending -o json   # Re-merge only pending changes
  modstack history                   # View past runs`,
		SilenceErrors:     true,
		SilenceUsage:      true,
		PersistentPreRunE: setup,
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			_ = logging.Close()
		},
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ~/.config/modstack/config.yml)")
	rootCmd.PersistentFlags().BoolP("quiet", "q", false, "minimal output")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "debug output")

	_ = viper.BindPFlag("quiet", rootCmd.PersistentFlags().Lookup("quiet"))
	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
}

// setup loads the configuration and starts logging before any command
// runs. A config that fails to load still lets config subcommands work.
func setup(cmd *cobra.Command, args []string) error {
	loaded, err := config.Load(cfgFile)
	if err != nil {
		if cmd.Name() == "version" || (cmd.Parent() != nil && cmd.Parent().Name() == "config") {
			printVerbose("ignoring config error: %v", err)
			return nil
		}
		return err
	}
	cfg = loaded

	console := "warn"
	switch {
	case getVerbose():
		console = "debug"
	case getQuiet():
		console = ""
	}
	settings, err := cfg.LoggingSettings(console)
	if err != nil {
		return err
	}
	return logging.Init(settings)
}

// Execute runs the root command and prints any failure.
func Execute() error {
	err := rootCmd.Execute()
	if err != nil {
		printError("%s", failureMessage(err))
	}
	return err
}

// failureMessage names the resource a run failed on when there is one.
func failureMessage(err error) string {
	pe, ok := types.InnermostPathError(err)
	if !ok {
		return err.Error()
	}
	reason := pe.Kind.Error()
	if pe.Err != nil {
		reason += ": " + pe.Err.Error()
	}
	return fmt.Sprintf("operation failed with %s: %s", pe.Path, reason)
}

func getVerbose() bool {
	return viper.GetBool("verbose")
}

func getQuiet() bool {
	return viper.GetBool("quiet")
}

// printVerbose prints a message if verbose mode is enabled.
func printVerbose(format string, args ...interface{}) {
	if getVerbose() && !getQuiet() {
		fmt.Fprintf(os.Stderr, "[DEBUG] "+format+"\n", args...)
	}
}

// printInfo prints a message if quiet mode is not enabled.
func printInfo(format string, args ...interface{}) {
	if !getQuiet() {
		fmt.Printf(format+"\n", args...)
	}
}

// printError prints an error message to stderr.
func printError(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
}
