package export

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/featsource/internal/feature"
	"github.com/sells-group/featsource/internal/layer"
)

// Copy appends every feature of src to dst. Fields are matched by name
// (case-insensitive); dst fields absent from src stay null and read-only
// dst fields are skipped. It stops at the first failure and returns the
// number of features created so far.
func Copy(ctx context.Context, src, dst *layer.Layer) (int64, error) {
	ss, ds := src.Schema(), dst.Schema()
	mapping := make([]int, ds.NumFields())
	for i := range mapping {
		fd := ds.Field(i)
		mapping[i] = -1
		if !fd.ReadOnly {
			mapping[i] = ss.FieldIndex(fd.Name)
		}
	}

	var n int64
	it := src.Iterate()
	for it.Next(ctx) {
		in := it.Feature()
		out := dst.NewFeature()
		for i, j := range mapping {
			if j < 0 || in.IsNull(j) {
				continue
			}
			if err := out.SetIndex(i, in.Value(j)); err != nil {
				return n, feature.Errorf(feature.KindSchema, err,
					"export: %s fid %d field %s", src.Path(), in.FID, ds.Field(i).Name)
			}
		}
		out.Geometry = in.Geometry
		if _, err := dst.CreateFeature(ctx, out); err != nil {
			return n, eris.Wrapf(err, "export: copy %s fid %d to %s", src.Path(), in.FID, dst.Path())
		}
		n++
	}
	if err := it.Err(); err != nil {
		return n, eris.Wrapf(err, "export: read %s", src.Path())
	}
	return n, nil
}
