package commands

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func newConfigCommand(version string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect and modify the namespaced config store",
	}
	cmd.AddCommand(newConfigGetCommand(version))
	cmd.AddCommand(newConfigSetCommand(version))
	cmd.AddCommand(newConfigReloadCommand(version))
	return cmd
}

func newConfigGetCommand(version string) *cobra.Command {
	return &cobra.Command{
		Use:   "get <key>",
		Short: "Read a fully-qualified config key",
		Example: `  slothlet config get core:engine:mode -c slothlet.cue
  slothlet config get module:mymod:threshold -c slothlet.cue`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt, err := newRuntime(ctx, version)
			if err != nil {
				return err
			}
			defer rt.close(ctx)

			value, err := rt.store.Get(args[0])
			if err != nil {
				return err
			}
			encoded, err := json.Marshal(value)
			if err != nil {
				return err
			}
			fmt.Println(string(encoded))
			return nil
		},
	}
}

func newConfigSetCommand(version string) *cobra.Command {
	var module string

	cmd := &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Write a module-namespace config key",
		Long: `Write a key in a module's own namespace. The write runs under a
token issued for --module, so it is subject to the same capability
checks as a write from inside the module: core and public namespaces
are read-only and foreign module namespaces are denied.`,
		Example: `  slothlet config set threshold 42 --module mymod -c slothlet.cue`,
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt, err := newRuntime(ctx, version)
			if err != nil {
				return err
			}
			defer rt.close(ctx)

			accessor := rt.store.Bind(module)
			if err := accessor.Set(args[0], decodeArg(args[1])); err != nil {
				return err
			}
			rt.logger.Info().Str("module", module).Str("key", args[0]).Msg("config key written")
			return nil
		},
	}

	cmd.Flags().StringVar(&module, "module", "", "module identity to write as")
	_ = cmd.MarkFlagRequired("module")

	return cmd
}

func newConfigReloadCommand(version string) *cobra.Command {
	return &cobra.Command{
		Use:   "reload",
		Short: "Rebuild the store from its defaults source",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt, err := newRuntime(ctx, version)
			if err != nil {
				return err
			}
			defer rt.close(ctx)

			if err := rt.store.Reload(ctx); err != nil {
				return err
			}
			rt.logger.Info().Msg("config store reloaded")
			return nil
		},
	}
}
