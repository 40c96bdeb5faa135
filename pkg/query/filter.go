package query

import (
	"reflect"
	"slices"
	"sort"
	"strings"

	"github.com/gqlgate/gqlgate/pkg/errdefs"
)

// Filter is a predicate tree over fields.
//
// The interface is sealed; FieldFilter and CompositeFilter are the only
// implementations. A composite filter holds the conjunction of its children
// and may nest arbitrarily.
type Filter interface {
	filter()
}

// FieldFilter is a leaf predicate: the field at Field equals Value, or is one
// of Value when Value is a list.
type FieldFilter struct {
	field string
	value any
}

// NewFieldFilter returns a FieldFilter. field is a dotted path and must not be empty.
func NewFieldFilter(field string, value any) (FieldFilter, error) {
	if _, err := splitPath(field); err != nil {
		return FieldFilter{}, err
	}
	return FieldFilter{field: field, value: value}, nil
}

// Field returns the dotted field path.
func (f FieldFilter) Field() string { return f.field }

// Path returns the field path split into segments.
func (f FieldFilter) Path() []string { return strings.Split(f.field, ".") }

// Value returns the compared value.
func (f FieldFilter) Value() any { return f.value }

func (FieldFilter) filter() {}

// CompositeFilter is an ordered conjunction of sub-filters.
type CompositeFilter struct {
	filters []Filter
}

// NewCompositeFilter returns a CompositeFilter holding filters in the given order.
func NewCompositeFilter(filters ...Filter) CompositeFilter {
	return CompositeFilter{filters: slices.Clone(filters)}
}

// Filters returns a copy of the direct sub-filters.
func (f CompositeFilter) Filters() []Filter { return slices.Clone(f.filters) }

// Len returns the number of direct sub-filters.
func (f CompositeFilter) Len() int { return len(f.filters) }

func (CompositeFilter) filter() {}

// Flatten normalizes f into a sequence of filters, one level deep.
//
// A nil filter yields an empty sequence, a FieldFilter yields itself and a
// CompositeFilter yields its direct children without recursing into nested
// composites. Callers that need a deeper flattening use FlattenDeep.
// Any other variant fails with ErrUnsupportedOperation.
func Flatten(f Filter) ([]Filter, error) {
	switch x := f.(type) {
	case nil:
		return []Filter{}, nil
	case CompositeFilter:
		return x.Filters(), nil
	case FieldFilter:
		return []Filter{x}, nil
	default:
		return nil, errdefs.Unsupported("flatten", f)
	}
}

// FlattenDeep returns every FieldFilter in f, depth first, in order.
func FlattenDeep(f Filter) ([]FieldFilter, error) {
	var out []FieldFilter
	var walk func(Filter) error
	walk = func(f Filter) error {
		items, err := Flatten(f)
		if err != nil {
			return err
		}
		for _, item := range items {
			switch x := item.(type) {
			case FieldFilter:
				out = append(out, x)
			case CompositeFilter:
				if err := walk(x); err != nil {
					return err
				}
			default:
				return errdefs.Unsupported("flatten", item)
			}
		}
		return nil
	}
	if err := walk(f); err != nil {
		return nil, err
	}
	return out, nil
}

// FilterEqual reports whether a and b are structurally equal.
func FilterEqual(a, b Filter) bool {
	switch x := a.(type) {
	case nil:
		return b == nil
	case FieldFilter:
		y, ok := b.(FieldFilter)
		return ok && x.field == y.field && reflect.DeepEqual(x.value, y.value)
	case CompositeFilter:
		y, ok := b.(CompositeFilter)
		if !ok || len(x.filters) != len(y.filters) {
			return false
		}
		for i := range x.filters {
			if !FilterEqual(x.filters[i], y.filters[i]) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// FilterFromArgument decomposes a GraphQL filter argument object.
//
// Scalar and list entries become FieldFilters. A nested object becomes a
// nested CompositeFilter whose children carry the dotted path, so
// {name: "IPA", brewery: {name: "X"}} yields
// Composite[Field(name), Composite[Field(brewery.name)]].
// Entries are visited in key order so the result is deterministic.
func FilterFromArgument(arg map[string]any) (CompositeFilter, error) {
	return filterFromObject("", arg)
}

func filterFromObject(prefix string, obj map[string]any) (CompositeFilter, error) {
	names := make([]string, 0, len(obj))
	for name := range obj {
		names = append(names, name)
	}
	sort.Strings(names)

	filters := make([]Filter, 0, len(names))
	for _, name := range names {
		path := name
		if prefix != "" {
			path = prefix + "." + name
		}
		if nested, ok := obj[name].(map[string]any); ok {
			child, err := filterFromObject(path, nested)
			if err != nil {
				return CompositeFilter{}, err
			}
			filters = append(filters, child)
			continue
		}
		ff, err := NewFieldFilter(path, obj[name])
		if err != nil {
			return CompositeFilter{}, err
		}
		filters = append(filters, ff)
	}
	return CompositeFilter{filters: filters}, nil
}
