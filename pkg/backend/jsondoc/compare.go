package jsondoc

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/cockroachdb/apd/v3"
)

// toFloat reports the numeric value of v for the number types JSON decoding
// and the scalar converters produce.
func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}

// toDecimal reports the exact decimal value of the number types toFloat
// accepts and of *apd.Decimal.
func toDecimal(v any) (*apd.Decimal, bool) {
	d := new(apd.Decimal)
	switch n := v.(type) {
	case *apd.Decimal:
		return n, n != nil
	case int:
		return d.SetInt64(int64(n)), true
	case int8:
		return d.SetInt64(int64(n)), true
	case int16:
		return d.SetInt64(int64(n)), true
	case int32:
		return d.SetInt64(int64(n)), true
	case int64:
		return d.SetInt64(n), true
	}
	f, ok := toFloat(v)
	if !ok {
		return nil, false
	}
	if _, err := d.SetFloat64(f); err != nil {
		return nil, false
	}
	return d, true
}

func equalValues(a, b any) bool {
	_, aDec := a.(*apd.Decimal)
	_, bDec := b.(*apd.Decimal)
	if aDec || bDec {
		x, ok := toDecimal(a)
		if !ok {
			return false
		}
		y, ok := toDecimal(b)
		return ok && x.Cmp(y) == 0
	}
	if x, ok := toFloat(a); ok {
		y, ok := toFloat(b)
		return ok && x == y
	}
	return reflect.DeepEqual(a, b)
}

// compareValues orders a before b when negative. nil sorts after every
// other value; mismatched types compare by their printed form.
func compareValues(a, b any) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return 1
	case b == nil:
		return -1
	}
	if x, ok := toFloat(a); ok {
		if y, ok := toFloat(b); ok {
			switch {
			case x < y:
				return -1
			case x > y:
				return 1
			default:
				return 0
			}
		}
	}
	if x, ok := a.(string); ok {
		if y, ok := b.(string); ok {
			return strings.Compare(x, y)
		}
	}
	if x, ok := a.(bool); ok {
		if y, ok := b.(bool); ok {
			switch {
			case x == y:
				return 0
			case !x:
				return -1
			default:
				return 1
			}
		}
	}
	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
}
