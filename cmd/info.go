package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sells-group/featsource/internal/layer"
)

var infoCount bool

var infoCmd = &cobra.Command{
	Use:   "info <dsn> <layer>",
	Short: "Show the schema of a layer",
	Long:  "Prints the fields and geometry type of a layer given by index, name or path.",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		c, err := openCatalog(ctx, args[0], false)
		if err != nil {
			return err
		}
		defer c.Close() //nolint:errcheck

		_, l, err := findLayer(c, args[1])
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		formatSchema(out, l)

		if infoCount {
			var n int64
			it := l.Iterate()
			for it.Next(ctx) {
				n++
			}
			if err := it.Err(); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(out, "\n%d features\n", n)
		}
		return nil
	},
}

func init() {
	infoCmd.Flags().BoolVar(&infoCount, "count", false, "count features")
	rootCmd.AddCommand(infoCmd)
}

func formatSchema(out io.Writer, l *layer.Layer) {
	_, _ = fmt.Fprintf(out, "Layer:    %s\nPath:     %s\nGeometry: %s\n\n", l.Name(), l.Path(), l.Schema().GeomType())

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "FIELD\tTYPE\tWIDTH\tPRECISION\tNULLABLE\tREAD-ONLY")
	_, _ = fmt.Fprintln(w, "-----\t----\t-----\t---------\t--------\t---------")
	for _, fd := range l.Schema().Fields() {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%t\t%t\n",
			fd.Name, fd.Type, fd.Width, fd.Precision, fd.Nullable, fd.ReadOnly)
	}
	_ = w.Flush()
}
