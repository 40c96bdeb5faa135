package query

import (
	"fmt"
	"reflect"
	"slices"
	"strconv"
	"strings"

	"github.com/gqlgate/gqlgate/pkg/errdefs"
)

// Key identifies an entity for batched or cached loading.
//
// The interface is sealed; FieldKey, CompositeKey and FilterKey are the only
// implementations. Keys are immutable and compare structurally.
type Key interface {
	// String returns the canonical form used as a batch lookup key.
	String() string
	key()
}

// FieldKey binds one field to a value.
type FieldKey struct {
	name  string
	value any
}

// NewFieldKey returns a FieldKey. name must not be empty.
func NewFieldKey(name string, value any) (FieldKey, error) {
	if name == "" {
		return FieldKey{}, errdefs.IllegalArgument("name", "field key name must not be empty")
	}
	return FieldKey{name: name, value: value}, nil
}

// Name returns the field name.
func (k FieldKey) Name() string { return k.name }

// Value returns the bound value.
func (k FieldKey) Value() any { return k.value }

func (k FieldKey) String() string {
	return formatKeyName(k.name) + "=" + formatKeyValue(k.value)
}

func (FieldKey) key() {}

// CompositeKey is an ordered sequence of field keys. Order is significant:
// it follows the declaration order of the type's key fields and backends
// rely on that positional correspondence.
type CompositeKey struct {
	keys []FieldKey
}

// NewCompositeKey returns a CompositeKey holding keys in the given order.
// Duplicates are kept.
func NewCompositeKey(keys ...FieldKey) CompositeKey {
	return CompositeKey{keys: slices.Clone(keys)}
}

// Keys returns a copy of the field keys.
func (k CompositeKey) Keys() []FieldKey { return slices.Clone(k.keys) }

// Len returns the number of field keys.
func (k CompositeKey) Len() int { return len(k.keys) }

// Names returns the field names in order.
func (k CompositeKey) Names() []string {
	names := make([]string, len(k.keys))
	for i, fk := range k.keys {
		names[i] = fk.name
	}
	return names
}

// Value returns the value bound to name.
func (k CompositeKey) Value(name string) (any, bool) {
	for _, fk := range k.keys {
		if fk.name == name {
			return fk.value, true
		}
	}
	return nil, false
}

func (k CompositeKey) String() string {
	parts := make([]string, len(k.keys))
	for i, fk := range k.keys {
		parts[i] = fk.String()
	}
	return strings.Join(parts, "&")
}

func (CompositeKey) key() {}

// FilterKey correlates a filter argument with a nested field path.
type FilterKey struct {
	path  []string
	value any
}

// NewFilterKey returns a FilterKey. path needs at least one segment and no
// segment may be empty.
func NewFilterKey(path []string, value any) (FilterKey, error) {
	if len(path) == 0 {
		return FilterKey{}, errdefs.IllegalArgument("path", "filter key path must have at least one segment")
	}
	for i, s := range path {
		if s == "" {
			return FilterKey{}, errdefs.IllegalArgument("path", "filter key path segment %d is empty", i)
		}
	}
	return FilterKey{path: slices.Clone(path), value: value}, nil
}

// Path returns a copy of the path segments.
func (k FilterKey) Path() []string { return slices.Clone(k.path) }

// DottedPath returns the path joined with ".".
func (k FilterKey) DottedPath() string { return strings.Join(k.path, ".") }

// Value returns the bound value.
func (k FilterKey) Value() any { return k.value }

func (k FilterKey) String() string {
	segments := make([]string, len(k.path))
	for i, s := range k.path {
		segments[i] = formatKeyName(s)
	}
	return strings.Join(segments, ".") + "=" + formatKeyValue(k.value)
}

func (FilterKey) key() {}

// KeyEqual reports whether a and b are structurally equal.
// Composite keys compare element by element, so order matters.
func KeyEqual(a, b Key) bool {
	switch x := a.(type) {
	case nil:
		return b == nil
	case FieldKey:
		y, ok := b.(FieldKey)
		return ok && x.name == y.name && reflect.DeepEqual(x.value, y.value)
	case CompositeKey:
		y, ok := b.(CompositeKey)
		if !ok || len(x.keys) != len(y.keys) {
			return false
		}
		for i := range x.keys {
			if !KeyEqual(x.keys[i], y.keys[i]) {
				return false
			}
		}
		return true
	case FilterKey:
		y, ok := b.(FilterKey)
		return ok && slices.Equal(x.path, y.path) && reflect.DeepEqual(x.value, y.value)
	default:
		return false
	}
}

// KeyString returns a canonical string for k. Keys yield equal strings
// exactly when KeyEqual holds, so the result can index batch-loaded rows.
func KeyString(k Key) string {
	switch x := k.(type) {
	case nil:
		return ""
	case FieldKey:
		return "field:" + x.String()
	case CompositeKey:
		return "composite:" + x.String()
	case FilterKey:
		return "filter:" + x.String()
	default:
		return fmt.Sprintf("%T:%v", k, k)
	}
}

// formatKeyName leaves GraphQL-style names bare and quotes anything else.
func formatKeyName(name string) string {
	for _, r := range name {
		if r != '_' && (r < '0' || r > '9') && (r < 'a' || r > 'z') && (r < 'A' || r > 'Z') {
			return strconv.Quote(name)
		}
	}
	return name
}

// formatKeyValue renders v unambiguously: strings are quoted, nil is a bare
// null and other scalars carry their Go type.
func formatKeyValue(v any) string {
	switch x := v.(type) {
	case nil:
		return "null"
	case string:
		return strconv.Quote(x)
	case bool:
		return strconv.FormatBool(x)
	case []any:
		parts := make([]string, len(x))
		for i, item := range x {
			parts[i] = formatKeyValue(item)
		}
		return "[" + strings.Join(parts, ",") + "]"
	default:
		return fmt.Sprintf("%T(%v)", v, v)
	}
}
