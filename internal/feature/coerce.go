package feature

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

var dateLayouts = []string{"2006-01-02", "20060102", "2006/01/02"}

var dateTimeLayouts = []string{time.RFC3339Nano, "2006-01-02 15:04:05", "2006-01-02T15:04:05", "2006-01-02"}

// Coerce converts a native value into the Go representation of t:
// string, int32, int64, float64, time.Time (date and datetime) or []byte.
// nil, and blank strings for non-string types, coerce to nil.
func Coerce(t FieldType, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	if b, ok := v.([]byte); ok && t != TypeBinary {
		v = string(b)
	}

	switch t {
	case TypeString:
		return toString(v)
	case TypeInteger:
		n, ok, err := toInt64(v)
		if err != nil || !ok {
			return nil, err
		}
		if n < math.MinInt32 || n > math.MaxInt32 {
			return nil, eris.Errorf("value %d overflows integer", n)
		}
		return int32(n), nil
	case TypeInteger64:
		n, ok, err := toInt64(v)
		if err != nil || !ok {
			return nil, err
		}
		return n, nil
	case TypeReal:
		return toFloat64(v)
	case TypeDate:
		tm, err := toTime(v, dateLayouts)
		if err != nil || tm == nil {
			return nil, err
		}
		y, m, d := tm.Date()
		return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), nil
	case TypeDateTime:
		tm, err := toTime(v, dateTimeLayouts)
		if err != nil || tm == nil {
			return nil, err
		}
		return *tm, nil
	case TypeBinary:
		switch x := v.(type) {
		case []byte:
			return x, nil
		case string:
			return []byte(x), nil
		}
		return nil, eris.Errorf("cannot convert %T to binary", v)
	}
	return nil, eris.Errorf("unknown field type %q", t)
}

func toString(v any) (any, error) {
	switch x := v.(type) {
	case string:
		return x, nil
	case int:
		return strconv.Itoa(x), nil
	case int32:
		return strconv.FormatInt(int64(x), 10), nil
	case int64:
		return strconv.FormatInt(x, 10), nil
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32), nil
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), nil
	case bool:
		return strconv.FormatBool(x), nil
	case time.Time:
		return x.Format(time.RFC3339), nil
	}
	return nil, eris.Errorf("cannot convert %T to string", v)
}

// toInt64 returns ok=false for blank strings.
func toInt64(v any) (int64, bool, error) {
	switch x := v.(type) {
	case int:
		return int64(x), true, nil
	case int8:
		return int64(x), true, nil
	case int16:
		return int64(x), true, nil
	case int32:
		return int64(x), true, nil
	case int64:
		return x, true, nil
	case uint8:
		return int64(x), true, nil
	case uint16:
		return int64(x), true, nil
	case uint32:
		return int64(x), true, nil
	case uint64:
		if x > math.MaxInt64 {
			return 0, false, eris.Errorf("value %d overflows integer64", x)
		}
		return int64(x), true, nil
	case float32:
		return floatToInt(float64(x))
	case float64:
		return floatToInt(x)
	case bool:
		if x {
			return 1, true, nil
		}
		return 0, true, nil
	case string:
		s := strings.TrimSpace(x)
		if s == "" {
			return 0, false, nil
		}
		n, err := strconv.ParseInt(strings.TrimPrefix(s, "+"), 10, 64)
		if err != nil {
			return 0, false, eris.Errorf("%q is not an integer", x)
		}
		return n, true, nil
	}
	return 0, false, eris.Errorf("cannot convert %T to integer", v)
}

func floatToInt(f float64) (int64, bool, error) {
	if f != math.Trunc(f) || math.IsInf(f, 0) || math.IsNaN(f) {
		return 0, false, eris.Errorf("%v is not integral", f)
	}
	return int64(f), true, nil
}

func toFloat64(v any) (any, error) {
	switch x := v.(type) {
	case float64:
		return x, nil
	case float32:
		return float64(x), nil
	case string:
		s := strings.TrimSpace(x)
		if s == "" {
			return nil, nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, eris.Errorf("%q is not a number", x)
		}
		return f, nil
	}
	n, ok, err := toInt64(v)
	if err != nil || !ok {
		return nil, err
	}
	return float64(n), nil
}

func toTime(v any, layouts []string) (*time.Time, error) {
	switch x := v.(type) {
	case time.Time:
		return &x, nil
	case string:
		s := strings.TrimSpace(x)
		if s == "" {
			return nil, nil
		}
		for _, layout := range layouts {
			if tm, err := time.Parse(layout, s); err == nil {
				return &tm, nil
			}
		}
		return nil, eris.Errorf("%q is not a recognized date", x)
	}
	return nil, eris.Errorf("cannot convert %T to time", v)
}
