package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newLoadCommand(version string) *cobra.Command {
	var (
		mounts []string
		lazy   bool
	)

	cmd := &cobra.Command{
		Use:   "load [dir]",
		Short: "Build the API namespace and print its layout",
		Long: `Build the composed API namespace from a root directory and any
configured or flag-supplied mounts, then print the resulting tree.

Printing the tree materializes every deferred subtree, so this also
serves as a full load check of all discovered units.`,
		Example: `  # Load a directory tree as the API root
  slothlet load ./api

  # Add an extra mount on top of the configured ones
  slothlet load ./api --mount math=./extra/math

  # Force eager loading
  slothlet load ./api --lazy=false`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt, err := newRuntime(ctx, version)
			if err != nil {
				return err
			}
			defer rt.close(ctx)

			if len(args) > 0 {
				rt.cfg.Dir = args[0]
			}
			if cmd.Flags().Changed("lazy") {
				rt.cfg.Lazy = lazy
			}
			for _, m := range mounts {
				key, path, ok := strings.Cut(m, "=")
				if !ok {
					return fmt.Errorf("invalid mount %q, expected key=path", m)
				}
				if err := rt.engine.AddAPI(key, path); err != nil {
					return err
				}
			}

			ns, err := rt.namespace(ctx)
			if err != nil {
				return err
			}
			dump, err := ns.Dump(ctx)
			if err != nil {
				return err
			}
			fmt.Print(dump)
			return nil
		},
	}

	cmd.Flags().StringArrayVar(&mounts, "mount", nil, "additional mount as key=path (repeatable)")
	cmd.Flags().BoolVar(&lazy, "lazy", true, "defer unit loading until first access")

	return cmd
}
