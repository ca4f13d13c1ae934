package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sells-group/featsource/internal/catalog"
	"github.com/sells-group/featsource/internal/layer"
)

var layersCmd = &cobra.Command{
	Use:   "layers <dsn>",
	Short: "List the layers of a source",
	Long: "Discovers every leaf container of the source and lists the layers that opened. " +
		"DSNs are paths (.gdb, .shp, .yaml), scheme:location pairs such as shapefile:dir or tiger:dir, " +
		"or postgres:// URLs.",
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := openCatalog(cmd.Context(), args[0], false)
		if err != nil {
			return err
		}
		defer c.Close() //nolint:errcheck

		formatLayers(cmd.OutOrStdout(), c)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(layersCmd)
}

// formatLayers writes one row per layer followed by discovery statistics.
func formatLayers(out io.Writer, c *catalog.Catalog) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "INDEX\tNAME\tPATH\tGEOMETRY\tFIELDS\tWRITABLE")
	_, _ = fmt.Fprintln(w, "-----\t----\t----\t--------\t------\t--------")
	for i, l := range c.Layers() {
		_, _ = fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%d\t%t\n",
			i, l.Name(), l.Path(), l.Schema().GeomType(), l.Schema().NumFields(),
			l.TestCapability(layer.CapSequentialWrite))
	}
	_ = w.Flush()

	st := c.Stats()
	_, _ = fmt.Fprintf(out, "\n%d layers, %d groups, %d leaves attempted, %d failed\n",
		c.Len(), st.Groups, st.Attempted, st.Failed)
}
