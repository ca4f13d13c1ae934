package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sells-group/featsource/internal/export"
)

var copyCmd = &cobra.Command{
	Use:   "copy <src-dsn> <src-layer> <dst-dsn> <dst-layer>",
	Short: "Append the features of one layer to another",
	Long:  "Copies every feature of the source layer into an existing target layer, matching fields by name.",
	Args:  cobra.ExactArgs(4),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		same := args[0] == args[2]
		src, err := openCatalog(ctx, args[0], same)
		if err != nil {
			return err
		}
		defer src.Close() //nolint:errcheck

		dst := src
		if !same {
			dst, err = openCatalog(ctx, args[2], true)
			if err != nil {
				return err
			}
			defer dst.Close() //nolint:errcheck
		}

		_, from, err := findLayer(src, args[1])
		if err != nil {
			return err
		}
		_, to, err := findLayer(dst, args[3])
		if err != nil {
			return err
		}

		n, err := export.Copy(ctx, from, to)
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "copied %d features from %s to %s\n", n, from.Path(), to.Path())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(copyCmd)
}
