package convert

import (
	"fmt"
	"strings"

	"github.com/gqlgate/gqlgate/pkg/errdefs"
)

// Router dispatches values to the registered converters.
// It is immutable after construction and safe for concurrent use.
type Router struct {
	converters []Converter
	byName     map[string]Converter
}

// NewRouter returns a Router over converters. Two converters claiming the
// same type name is a configuration error.
func NewRouter(converters ...Converter) (*Router, error) {
	r := &Router{
		converters: make([]Converter, 0, len(converters)),
		byName:     make(map[string]Converter),
	}
	for _, c := range converters {
		if len(c.TypeNames()) == 0 {
			return nil, errdefs.InvalidConfiguration("converters", "converter %T declares no type names", c)
		}
		for _, name := range c.TypeNames() {
			if _, dup := r.byName[name]; dup {
				return nil, errdefs.InvalidConfiguration("converters", "type name %q is claimed by more than one converter", name)
			}
			r.byName[name] = c
		}
		r.converters = append(r.converters, c)
	}
	return r, nil
}

// DefaultRouter returns a Router over the built-in converters.
func DefaultRouter() *Router {
	r, err := NewRouter(Builtins()...)
	if err != nil {
		panic(err)
	}
	return r
}

// Converters returns the registered converters in registration order.
func (r *Router) Converters() []Converter {
	out := make([]Converter, len(r.converters))
	copy(out, r.converters)
	return out
}

// HasType reports whether a converter is registered for typeName.
func (r *Router) HasType(typeName string) bool {
	_, ok := r.byName[typeName]
	return ok
}

// CanConvert reports whether exactly one converter supports v.
func (r *Router) CanConvert(v any) bool {
	c, err := r.resolve(v)
	return err == nil && c != nil
}

// ConvertFromValue turns a native value into its wire form. nil passes
// through. When no converter, or more than one, supports v the result is a
// ConversionError: the registered set is incomplete or ambiguous.
func (r *Router) ConvertFromValue(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	c, err := r.resolve(v)
	if err != nil {
		return nil, err
	}
	return c.Convert(v)
}

// ConvertToValue parses a wire value into the native type registered under
// typeName. nil passes through. An unknown typeName is a configuration
// error; a value the converter cannot parse is an illegal argument.
func (r *Router) ConvertToValue(v any, typeName string) (any, error) {
	c, ok := r.byName[typeName]
	if !ok {
		return nil, errdefs.InvalidConfiguration("type", "no converter registered for type %q", typeName)
	}
	if v == nil {
		return nil, nil
	}
	return c.Parse(v)
}

func (r *Router) resolve(v any) (Converter, error) {
	var match Converter
	var names []string
	for _, c := range r.converters {
		if c.Supports(v) {
			if match == nil {
				match = c
			}
			names = append(names, c.TypeNames()[0])
		}
	}
	switch len(names) {
	case 0:
		return nil, &errdefs.ConversionError{Value: v, Message: "no converter supports this type"}
	case 1:
		return match, nil
	default:
		return nil, &errdefs.ConversionError{
			Value:   v,
			Message: fmt.Sprintf("ambiguous converters: %s", strings.Join(names, ", ")),
		}
	}
}
