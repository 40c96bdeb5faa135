package gateway

import (
	"cmp"
	"encoding/json"
	"strconv"
	"time"

	"github.com/cockroachdb/apd/v3"

	"github.com/gqlgate/gqlgate/pkg/convert"
	"github.com/gqlgate/gqlgate/pkg/errdefs"
	"github.com/gqlgate/gqlgate/pkg/schema"
)

// integerTypes are the scalars whose sums stay integral.
var integerTypes = map[string]bool{
	"Int":   true,
	"Long":  true,
	"Short": true,
	"Byte":  true,
}

// aggregate computes field f of a row from the list the field aggregates.
// Null members are ignored; over an empty list count is 0 and every other
// function is null.
func aggregate(f schema.FieldConfiguration, list any) (any, error) {
	items := listItems(list)
	fn := f.AggregateFunction()
	if fn == schema.AggregateCount {
		return len(items), nil
	}

	var values []any
	for _, item := range items {
		var v any
		if m, ok := item.(map[string]any); ok {
			v = m[f.AggregateField]
		}
		if v != nil {
			values = append(values, v)
		}
	}
	if len(values) == 0 {
		return nil, nil
	}

	switch fn {
	case schema.AggregateSum, schema.AggregateAvg:
		var total float64
		for _, v := range values {
			n, ok := toFloat(v)
			if !ok {
				return nil, &errdefs.ConversionError{Value: v, Message: "aggregate " + f.Name + " needs numeric values"}
			}
			total += n
		}
		if fn == schema.AggregateAvg {
			return total / float64(len(values)), nil
		}
		if integerTypes[f.Type] {
			return int64(total), nil
		}
		return total, nil
	case schema.AggregateMin, schema.AggregateMax:
		best := values[0]
		for _, v := range values[1:] {
			c, ok := compareValues(v, best)
			if !ok {
				return nil, &errdefs.ConversionError{Value: v, Message: "aggregate " + f.Name + " cannot order mixed values"}
			}
			if (fn == schema.AggregateMin && c < 0) || (fn == schema.AggregateMax && c > 0) {
				best = v
			}
		}
		return best, nil
	}
	return nil, errdefs.Unsupported("aggregate", fn)
}

func listItems(v any) []any {
	switch x := v.(type) {
	case nil:
		return nil
	case []any:
		return x
	case []map[string]any:
		out := make([]any, len(x))
		for i, m := range x {
			out[i] = m
		}
		return out
	default:
		return []any{x}
	}
}

func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int8:
		return float64(x), true
	case int16:
		return float64(x), true
	case int32:
		return float64(x), true
	case int64:
		return float64(x), true
	case json.Number:
		f, err := x.Float64()
		return f, err == nil
	case *apd.Decimal:
		f, err := x.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(x, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// compareValues orders two values of the same kind: numbers, strings,
// dates and times.
func compareValues(a, b any) (int, bool) {
	if x, ok := numeric(a); ok {
		y, ok := numeric(b)
		return cmp.Compare(x, y), ok
	}
	switch x := a.(type) {
	case string:
		y, ok := b.(string)
		return cmp.Compare(x, y), ok
	case time.Time:
		y, ok := b.(time.Time)
		return x.Compare(y), ok
	case convert.Date:
		y, ok := b.(convert.Date)
		return cmp.Compare(x.String(), y.String()), ok
	}
	return 0, false
}

// numeric is toFloat without string parsing.
func numeric(v any) (float64, bool) {
	if _, ok := v.(string); ok {
		return 0, false
	}
	return toFloat(v)
}
