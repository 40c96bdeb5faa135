package schema

import (
	"maps"
	"slices"
	"sort"

	"github.com/ohler55/ojg/jp"
	"github.com/vektah/gqlparser/v2/ast"

	"github.com/gqlgate/gqlgate/pkg/errdefs"
)

// Aggregate functions.
const (
	AggregateCount = "count"
	AggregateSum   = "sum"
	AggregateMin   = "min"
	AggregateMax   = "max"
	AggregateAvg   = "avg"
)

// DefaultQueryPath is the query path used when a type is loaded by key
// rather than through a named root query.
const DefaultQueryPath = "default"

// Configuration is the validated, process-wide mapping from GraphQL types to
// backends. It is built once by Load or Parse and never mutated afterwards,
// so it can be read from any number of goroutines without locking.
type Configuration struct {
	version   string
	sdl       *ast.Schema
	backends  map[string]BackendConfig
	templates map[string]TemplateConfig
	types     map[string]*TypeConfiguration
	typeNames []string
}

// Version returns the configuration format version.
func (c *Configuration) Version() string { return c.version }

// SDL returns the parsed GraphQL schema, or nil when none was configured.
// The returned AST must be treated as read-only.
func (c *Configuration) SDL() *ast.Schema { return c.sdl }

// Backend returns the backend configured under name.
func (c *Configuration) Backend(name string) (BackendConfig, bool) {
	b, ok := c.backends[name]
	return b, ok
}

// BackendNames returns the configured backend names in sorted order.
func (c *Configuration) BackendNames() []string {
	names := slices.Collect(maps.Keys(c.backends))
	sort.Strings(names)
	return names
}

// Template returns the response template configured under name.
func (c *Configuration) Template(name string) (TemplateConfig, bool) {
	t, ok := c.templates[name]
	return t, ok
}

// Templates returns a copy of all response templates.
func (c *Configuration) Templates() map[string]TemplateConfig {
	return maps.Clone(c.templates)
}

// Type returns the configuration of the named object type.
func (c *Configuration) Type(name string) (*TypeConfiguration, bool) {
	t, ok := c.types[name]
	return t, ok
}

// TypeNames returns the configured type names in sorted order.
func (c *Configuration) TypeNames() []string {
	return slices.Clone(c.typeNames)
}

// TypeConfiguration maps one GraphQL object type to a backend.
type TypeConfiguration struct {
	name        string
	backend     string
	table       string
	class       string
	keys        []string
	fields      []FieldConfiguration
	fieldIndex  map[string]int
	queryPaths  map[string]jp.Expr
	querySource map[string]string
}

// Name returns the GraphQL type name.
func (t *TypeConfiguration) Name() string { return t.name }

// Backend returns the backend name.
func (t *TypeConfiguration) Backend() string { return t.backend }

// Table returns the relational table, defaulting to the type name.
func (t *TypeConfiguration) Table() string {
	if t.table == "" {
		return t.name
	}
	return t.table
}

// Class returns the rdf:type IRI of instances.
func (t *TypeConfiguration) Class() string { return t.class }

// Keys returns the identifying field names in declaration order.
func (t *TypeConfiguration) Keys() []string { return slices.Clone(t.keys) }

// IsKey reports whether name is one of the identifying fields.
func (t *TypeConfiguration) IsKey(name string) bool { return slices.Contains(t.keys, name) }

// Fields returns the field configurations in declaration order.
func (t *TypeConfiguration) Fields() []FieldConfiguration { return slices.Clone(t.fields) }

// Field returns the configuration of the named field.
func (t *TypeConfiguration) Field(name string) (FieldConfiguration, bool) {
	i, ok := t.fieldIndex[name]
	if !ok {
		return FieldConfiguration{}, false
	}
	return t.fields[i], true
}

// QueryPath resolves the JSONPath template registered under name.
// An unregistered name fails with ErrIllegalArgument so a misspelled query
// name is reported instead of being treated as "no filter".
func (t *TypeConfiguration) QueryPath(name string) (jp.Expr, error) {
	expr, ok := t.queryPaths[name]
	if !ok {
		return nil, errdefs.IllegalArgument("queryPath", "type %s has no query path named %q", t.name, name)
	}
	return expr, nil
}

// QueryPathSource returns the unparsed JSONPath registered under name.
func (t *TypeConfiguration) QueryPathSource(name string) (string, bool) {
	s, ok := t.querySource[name]
	return s, ok
}

// QueryPathNames returns the registered query path names in sorted order.
func (t *TypeConfiguration) QueryPathNames() []string {
	names := slices.Collect(maps.Keys(t.queryPaths))
	sort.Strings(names)
	return names
}

// FieldConfiguration maps one field. It is a value type; the copies handed
// out by TypeConfiguration do not alias the configuration.
type FieldConfiguration struct {
	Name           string
	Type           string
	Nullable       bool
	List           bool
	AggregateOf    string
	Aggregate      string
	AggregateField string
	Column         string
	Predicate      string
	KeyField       string
}

// IsAggregate reports whether the field is computed from a list field.
func (f FieldConfiguration) IsAggregate() bool { return f.AggregateOf != "" }

// IsReference reports whether the field is an object loaded by key.
func (f FieldConfiguration) IsReference() bool { return f.KeyField != "" }

// ColumnName returns the relational column, defaulting to the field name.
func (f FieldConfiguration) ColumnName() string {
	if f.Column == "" {
		return f.Name
	}
	return f.Column
}

// AggregateFunction returns the aggregate function, defaulting to count.
func (f FieldConfiguration) AggregateFunction() string {
	if f.Aggregate == "" {
		return AggregateCount
	}
	return f.Aggregate
}
