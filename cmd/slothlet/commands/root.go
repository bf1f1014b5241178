package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	configPath string
	verbose    bool
)

// Execute runs the root command.
func Execute(ctx context.Context, version, commit, buildDate string) error {
	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "slothlet",
		Short: "Slothlet - dynamic module aggregation runtime",
		Long: `Slothlet discovers unit files on disk and composes them into a single
addressable API namespace.

Features:
  - Directory scanning with merge/flatten rules
  - Lazy materialization with single-flight loading
  - Starlark units with sandboxed imports and cycle detection
  - WASM units via an embedded runtime
  - Namespaced config store with capability-scoped writes`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")

	rootCmd.AddCommand(newLoadCommand(version))
	rootCmd.AddCommand(newCallCommand(version))
	rootCmd.AddCommand(newConfigCommand(version))

	return rootCmd
}
