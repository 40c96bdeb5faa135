// Package convert coerces scalar values between their wire representation
// (JSON-compatible values as they appear in GraphQL arguments and
// responses) and the native Go types backends work with.
//
// Each Converter claims one native Go type through Supports and one or more
// GraphQL scalar names through TypeNames. The Router dispatches over the
// registered set:
//
//	router := convert.DefaultRouter()
//	native, err := router.ConvertToValue("2024-01-31", "Date") // convert.Date
//	wire, err := router.ConvertFromValue(native)              // "2024-01-31"
//
// Backend-specific sets are built with NewRouter from any mix of the
// built-in converters and custom ones.
package convert

// Converter converts one native type to and from its wire form.
type Converter interface {
	// TypeNames returns the scalar names this converter parses to, canonical first.
	TypeNames() []string
	// Supports reports whether v has the native type this converter handles.
	Supports(v any) bool
	// Convert turns a supported native value into its wire form.
	Convert(v any) (any, error)
	// Parse turns a wire value into the native type.
	Parse(v any) (any, error)
}
