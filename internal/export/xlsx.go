package export

import (
	"context"
	"regexp"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/featsource/internal/feature"
	"github.com/sells-group/featsource/internal/layer"
)

const maxSheetName = 31

var badSheetChars = regexp.MustCompile(`[\\/?*\[\]:]`)

// sheetName returns a valid, unique worksheet name for a layer.
func sheetName(name string, used map[string]bool) string {
	base := badSheetChars.ReplaceAllString(name, "_")
	if base == "" {
		base = "layer"
	}
	if len(base) > maxSheetName {
		base = base[:maxSheetName]
	}
	n := base
	for i := 2; used[n]; i++ {
		suffix := "_" + strconv.Itoa(i)
		cut := min(len(base), maxSheetName-len(suffix))
		n = base[:cut] + suffix
	}
	used[n] = true
	return n
}

// ToXLSX writes one worksheet per layer with a header row of FID, the
// attribute fields and WKT, then one row per feature.
func ToXLSX(ctx context.Context, path string, layers []*layer.Layer) (int64, error) {
	f := xlsx.NewFile()
	used := make(map[string]bool)
	var total int64

	for _, l := range layers {
		sheet, err := f.AddSheet(sheetName(l.Name(), used))
		if err != nil {
			return total, eris.Wrapf(err, "export: add sheet for %s", l.Path())
		}

		header := sheet.AddRow()
		header.AddCell().SetString("FID")
		for _, fd := range l.Schema().Fields() {
			header.AddCell().SetString(fd.Name)
		}
		header.AddCell().SetString("WKT")

		it := l.Iterate()
		for it.Next(ctx) {
			ft := it.Feature()
			row := sheet.AddRow()
			row.AddCell().SetInt64(ft.FID)
			for i, v := range ft.Values() {
				setCell(row.AddCell(), l.Schema().Field(i).Type, v)
			}
			w, err := encodeWKT(ft.Geometry)
			if err != nil {
				return total, eris.Wrapf(err, "export: %s fid %d", l.Path(), ft.FID)
			}
			row.AddCell().SetString(w)
			total++
		}
		if err := it.Err(); err != nil {
			return total, eris.Wrapf(err, "export: read %s", l.Path())
		}
	}

	if err := f.Save(path); err != nil {
		return total, eris.Wrapf(err, "export: save %s", path)
	}
	return total, nil
}

func setCell(c *xlsx.Cell, t feature.FieldType, v any) {
	switch x := v.(type) {
	case nil:
		return
	case int32:
		c.SetInt64(int64(x))
	case int64:
		c.SetInt64(x)
	case float64:
		c.SetFloat(x)
	case time.Time:
		if t == feature.TypeDate {
			c.SetString(x.Format("2006-01-02"))
			return
		}
		c.SetString(x.Format(time.RFC3339))
	case []byte:
		c.SetString(strconv.Quote(string(x)))
	case string:
		c.SetString(x)
	default:
		c.SetValue(x)
	}
}
