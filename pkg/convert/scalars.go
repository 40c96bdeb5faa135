package convert

import (
	"encoding/json"
	"fmt"
	"math"
	"net/url"
	"strconv"
	"time"

	"github.com/cockroachdb/apd/v3"

	"github.com/gqlgate/gqlgate/pkg/errdefs"
)

// Date is a calendar date without time or zone.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// DateOf returns the date part of t in t's location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

// ParseDate parses an ISO-8601 calendar date (YYYY-MM-DD).
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return Date{}, err
	}
	return DateOf(t), nil
}

// String returns the date as YYYY-MM-DD.
func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, d.Month, d.Day)
}

// IRI is an absolute resource identifier, as used by triple stores.
type IRI string

// ParseIRI validates s as an absolute IRI.
func ParseIRI(s string) (IRI, error) {
	u, err := url.Parse(s)
	if err != nil {
		return "", err
	}
	if !u.IsAbs() {
		return "", fmt.Errorf("%q is not an absolute IRI", s)
	}
	return IRI(s), nil
}

// Built-in converters.
var (
	Boolean  Converter = booleanConverter{}
	Byte     Converter = intConverter{names: []string{"Byte"}, bits: 8}
	Short    Converter = intConverter{names: []string{"Short"}, bits: 16}
	Int      Converter = intConverter{names: []string{"Int", "Integer"}, bits: 32}
	Long     Converter = intConverter{names: []string{"Long"}, bits: 64}
	Decimal  Converter = decimalConverter{}
	Double   Converter = doubleConverter{}
	Float    Converter = floatConverter{}
	DateConv Converter = dateConverter{}
	DateTime Converter = dateTimeConverter{}
	String   Converter = stringConverter{}
	IRIConv  Converter = iriConverter{}
)

// Builtins returns every built-in converter.
func Builtins() []Converter {
	return []Converter{Boolean, Byte, Short, Int, Long, Decimal, Double, Float, DateConv, DateTime, String, IRIConv}
}

func parseFailure(typeName string, v any, err error) error {
	if err != nil {
		return errdefs.IllegalArgument(typeName, "cannot parse %v (%T): %v", v, v, err)
	}
	return errdefs.IllegalArgument(typeName, "cannot parse %v (%T)", v, v)
}

type booleanConverter struct{}

func (booleanConverter) TypeNames() []string { return []string{"Boolean"} }

func (booleanConverter) Supports(v any) bool {
	_, ok := v.(bool)
	return ok
}

func (booleanConverter) Convert(v any) (any, error) { return v.(bool), nil }

func (booleanConverter) Parse(v any) (any, error) {
	switch x := v.(type) {
	case bool:
		return x, nil
	case string:
		b, err := strconv.ParseBool(x)
		if err != nil {
			return nil, parseFailure("Boolean", v, err)
		}
		return b, nil
	default:
		return nil, parseFailure("Boolean", v, nil)
	}
}

// intConverter handles the signed integer widths. The 32-bit converter also
// accepts Go's int, which is what most callers produce.
type intConverter struct {
	names []string
	bits  int
}

func (c intConverter) TypeNames() []string { return c.names }

func (c intConverter) Supports(v any) bool {
	switch v.(type) {
	case int8:
		return c.bits == 8
	case int16:
		return c.bits == 16
	case int32, int:
		return c.bits == 32
	case int64:
		return c.bits == 64
	default:
		return false
	}
}

func (c intConverter) Convert(v any) (any, error) {
	switch x := v.(type) {
	case int8:
		return int(x), nil
	case int16:
		return int(x), nil
	case int32:
		return int(x), nil
	case int:
		return x, nil
	case int64:
		return x, nil
	default:
		return nil, &errdefs.ConversionError{Value: v, Message: "not an integer"}
	}
}

func (c intConverter) Parse(v any) (any, error) {
	n, err := toInt64(v)
	if err != nil {
		return nil, parseFailure(c.names[0], v, err)
	}
	if c.bits < 64 {
		limit := int64(1) << (c.bits - 1)
		if n < -limit || n >= limit {
			return nil, parseFailure(c.names[0], v, fmt.Errorf("out of %d-bit range", c.bits))
		}
	}
	switch c.bits {
	case 8:
		return int8(n), nil
	case 16:
		return int16(n), nil
	case 32:
		return int32(n), nil
	default:
		return n, nil
	}
}

func toInt64(v any) (int64, error) {
	switch x := v.(type) {
	case int:
		return int64(x), nil
	case int8:
		return int64(x), nil
	case int16:
		return int64(x), nil
	case int32:
		return int64(x), nil
	case int64:
		return x, nil
	case uint8:
		return int64(x), nil
	case uint16:
		return int64(x), nil
	case uint32:
		return int64(x), nil
	case float64:
		if x != math.Trunc(x) || math.IsInf(x, 0) || math.IsNaN(x) {
			return 0, fmt.Errorf("%v is not integral", x)
		}
		return int64(x), nil
	case json.Number:
		return x.Int64()
	case string:
		return strconv.ParseInt(x, 10, 64)
	default:
		return 0, fmt.Errorf("unexpected type")
	}
}

type decimalConverter struct{}

func (decimalConverter) TypeNames() []string { return []string{"Decimal", "BigDecimal"} }

func (decimalConverter) Supports(v any) bool {
	_, ok := v.(*apd.Decimal)
	return ok
}

// Convert renders decimals as strings so no precision is lost on the wire.
func (decimalConverter) Convert(v any) (any, error) {
	return v.(*apd.Decimal).String(), nil
}

func (decimalConverter) Parse(v any) (any, error) {
	switch x := v.(type) {
	case *apd.Decimal:
		return x, nil
	case string:
		d, _, err := apd.NewFromString(x)
		if err != nil {
			return nil, parseFailure("Decimal", v, err)
		}
		return d, nil
	case json.Number:
		d, _, err := apd.NewFromString(x.String())
		if err != nil {
			return nil, parseFailure("Decimal", v, err)
		}
		return d, nil
	case float64:
		d, err := new(apd.Decimal).SetFloat64(x)
		if err != nil {
			return nil, parseFailure("Decimal", v, err)
		}
		return d, nil
	default:
		n, err := toInt64(v)
		if err != nil {
			return nil, parseFailure("Decimal", v, err)
		}
		return apd.New(n, 0), nil
	}
}

type doubleConverter struct{}

// TypeNames includes GraphQL's Float, which is double precision.
func (doubleConverter) TypeNames() []string { return []string{"Double", "Float"} }

func (doubleConverter) Supports(v any) bool {
	_, ok := v.(float64)
	return ok
}

func (doubleConverter) Convert(v any) (any, error) { return v.(float64), nil }

func (doubleConverter) Parse(v any) (any, error) {
	f, err := toFloat64(v)
	if err != nil {
		return nil, parseFailure("Double", v, err)
	}
	return f, nil
}

type floatConverter struct{}

func (floatConverter) TypeNames() []string { return []string{"Float32"} }

func (floatConverter) Supports(v any) bool {
	_, ok := v.(float32)
	return ok
}

func (floatConverter) Convert(v any) (any, error) { return float64(v.(float32)), nil }

func (floatConverter) Parse(v any) (any, error) {
	f, err := toFloat64(v)
	if err != nil {
		return nil, parseFailure("Float32", v, err)
	}
	if math.Abs(f) > math.MaxFloat32 {
		return nil, parseFailure("Float32", v, fmt.Errorf("out of float32 range"))
	}
	return float32(f), nil
}

func toFloat64(v any) (float64, error) {
	switch x := v.(type) {
	case float64:
		return x, nil
	case float32:
		return float64(x), nil
	case json.Number:
		return x.Float64()
	case string:
		return strconv.ParseFloat(x, 64)
	default:
		n, err := toInt64(v)
		if err != nil {
			return 0, err
		}
		return float64(n), nil
	}
}

type dateConverter struct{}

func (dateConverter) TypeNames() []string { return []string{"Date"} }

func (dateConverter) Supports(v any) bool {
	_, ok := v.(Date)
	return ok
}

func (dateConverter) Convert(v any) (any, error) { return v.(Date).String(), nil }

func (dateConverter) Parse(v any) (any, error) {
	switch x := v.(type) {
	case Date:
		return x, nil
	case time.Time:
		return DateOf(x), nil
	case string:
		d, err := ParseDate(x)
		if err != nil {
			return nil, parseFailure("Date", v, err)
		}
		return d, nil
	default:
		return nil, parseFailure("Date", v, nil)
	}
}

type dateTimeConverter struct{}

func (dateTimeConverter) TypeNames() []string { return []string{"DateTime"} }

func (dateTimeConverter) Supports(v any) bool {
	_, ok := v.(time.Time)
	return ok
}

func (dateTimeConverter) Convert(v any) (any, error) {
	return v.(time.Time).Format(time.RFC3339Nano), nil
}

func (dateTimeConverter) Parse(v any) (any, error) {
	switch x := v.(type) {
	case time.Time:
		return x, nil
	case string:
		t, err := time.Parse(time.RFC3339Nano, x)
		if err != nil {
			return nil, parseFailure("DateTime", v, err)
		}
		return t, nil
	default:
		return nil, parseFailure("DateTime", v, nil)
	}
}

type stringConverter struct{}

// TypeNames includes GraphQL's ID, which serializes as a string.
func (stringConverter) TypeNames() []string { return []string{"String", "ID"} }

func (stringConverter) Supports(v any) bool {
	_, ok := v.(string)
	return ok
}

func (stringConverter) Convert(v any) (any, error) { return v.(string), nil }

func (stringConverter) Parse(v any) (any, error) {
	switch x := v.(type) {
	case string:
		return x, nil
	case IRI:
		return string(x), nil
	case int, int8, int16, int32, int64:
		return fmt.Sprintf("%d", x), nil
	case []byte:
		return string(x), nil
	default:
		return nil, parseFailure("String", v, nil)
	}
}

type iriConverter struct{}

func (iriConverter) TypeNames() []string { return []string{"IRI"} }

func (iriConverter) Supports(v any) bool {
	_, ok := v.(IRI)
	return ok
}

func (iriConverter) Convert(v any) (any, error) { return string(v.(IRI)), nil }

func (iriConverter) Parse(v any) (any, error) {
	switch x := v.(type) {
	case IRI:
		return x, nil
	case string:
		iri, err := ParseIRI(x)
		if err != nil {
			return nil, parseFailure("IRI", v, err)
		}
		return iri, nil
	default:
		return nil, parseFailure("IRI", v, nil)
	}
}
