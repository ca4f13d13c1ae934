package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var rmCmd = &cobra.Command{
	Use:   "rm <dsn> <layer>",
	Short: "Delete a layer from its source",
	Long:  "Closes the layer and deletes its container from the native store. The source is opened for writing.",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		c, err := openCatalog(ctx, args[0], true)
		if err != nil {
			return err
		}
		defer c.Close() //nolint:errcheck

		i, l, err := findLayer(c, args[1])
		if err != nil {
			return err
		}
		path := l.Path()
		if err := c.RemoveLayer(ctx, i); err != nil {
			return err
		}
		zap.L().Info("layer deleted", zap.String("dsn", args[0]), zap.String("layer", path))
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", path)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(rmCmd)
}
