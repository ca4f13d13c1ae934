package main

import (
	"encoding/json"
	"strconv"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"github.com/twpayne/go-geom/encoding/geojson"

	"github.com/sells-group/featsource/internal/feature"
)

var getLimit int

var getCmd = &cobra.Command{
	Use:   "get <dsn> <layer> [fid]",
	Short: "Print features as GeoJSON",
	Long:  "Prints one feature by FID, or a feature collection of the first --limit features.",
	Args:  cobra.RangeArgs(2, 3),
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
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")

		if len(args) == 3 {
			fid, err := strconv.ParseInt(args[2], 10, 64)
			if err != nil {
				return eris.Wrapf(err, "invalid fid %q", args[2])
			}
			f, err := l.Feature(ctx, fid)
			if err != nil {
				return err
			}
			return enc.Encode(toGeoJSON(f))
		}

		fc := &geojson.FeatureCollection{Features: []*geojson.Feature{}}
		it := l.Iterate()
		for len(fc.Features) < getLimit && it.Next(ctx) {
			fc.Features = append(fc.Features, toGeoJSON(it.Feature()))
		}
		if err := it.Err(); err != nil {
			return err
		}
		return enc.Encode(fc)
	},
}

func init() {
	getCmd.Flags().IntVar(&getLimit, "limit", 10, "maximum features to print without a fid")
	rootCmd.AddCommand(getCmd)
}

func toGeoJSON(f *feature.Feature) *geojson.Feature {
	return &geojson.Feature{
		ID:         strconv.FormatInt(f.FID, 10),
		Geometry:   f.Geometry,
		Properties: f.Properties(),
	}
}
