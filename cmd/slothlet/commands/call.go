package commands

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newCallCommand(version string) *cobra.Command {
	var (
		mounts []string
		dir    string
	)

	cmd := &cobra.Command{
		Use:   "call <path> [args...]",
		Short: "Invoke a function in the composed API",
		Long: `Invoke a function addressed by its dotted path in the composed API.

Arguments are decoded as JSON where possible (numbers, booleans,
objects, arrays); anything else is passed as a string. Use "." as the
path to invoke a callable root unit.`,
		Example: `  # Call api.string.upper("abc")
  slothlet call string.upper abc --dir ./api

  # Call the root unit itself
  slothlet call . slothlet --dir ./root`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt, err := newRuntime(ctx, version)
			if err != nil {
				return err
			}
			defer rt.close(ctx)

			if dir != "" {
				rt.cfg.Dir = dir
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

			var path []string
			if args[0] != "." {
				path = strings.Split(args[0], ".")
			}
			callArgs := make([]any, 0, len(args)-1)
			for _, raw := range args[1:] {
				callArgs = append(callArgs, decodeArg(raw))
			}

			var result any
			if len(path) == 0 {
				result, err = ns.Invoke(ctx, callArgs...)
			} else {
				result, err = ns.Call(ctx, path, callArgs...)
			}
			if err != nil {
				return err
			}

			encoded, err := json.Marshal(result)
			if err != nil {
				return fmt.Errorf("result is not serializable: %w", err)
			}
			fmt.Println(string(encoded))
			return nil
		},
	}

	cmd.Flags().StringVar(&dir, "dir", "", "root directory to mount")
	cmd.Flags().StringArrayVar(&mounts, "mount", nil, "additional mount as key=path (repeatable)")

	return cmd
}

// decodeArg interprets a CLI argument as JSON when it parses, falling
// back to the raw string.
func decodeArg(raw string) any {
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err == nil {
		return v
	}
	return raw
}
