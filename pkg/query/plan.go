package query

import (
	"fmt"
	"math"
	"slices"
	"sort"
	"strings"

	"github.com/gqlgate/gqlgate/pkg/convert"
	"github.com/gqlgate/gqlgate/pkg/errdefs"
	"github.com/gqlgate/gqlgate/pkg/schema"
)

// Reserved argument names. Every other argument must name a field.
const (
	ArgFilter = "filter"
	ArgSort   = "sort"
	ArgFirst  = "first"
	ArgOffset = "offset"
)

// Plan is the backend-neutral description of one fetch.
//
// Keys are alternatives: a row matches when it matches any key. Filters are
// conjunctive. Every key, filter and selected field carries the Origin that
// put it there.
type Plan struct {
	TypeName  string
	QueryName string
	Keys      []Tagged[Key]
	Filters   []Tagged[Filter]
	Sort      []SortCriteria
	// Limit caps the number of rows when Limited is set, so first: 0
	// yields no rows.
	Limit   int
	Limited bool
	Offset  int
	// Selection lists dotted field paths the caller needs. Paths added only
	// to support sorting carry a Sorting origin.
	Selection []Tagged[string]
}

// Fields returns the selected field paths in order.
func (p *Plan) Fields() []string {
	out := make([]string, len(p.Selection))
	for i, s := range p.Selection {
		out[i] = s.Value
	}
	return out
}

// SortAlias returns the alias generated for a sort path that was not part
// of the requested selection.
func (p *Plan) SortAlias(path string) (string, bool) {
	for _, s := range p.Selection {
		if sorting, ok := s.Origin.(Sorting); ok && s.Value == path {
			alias, ok := sorting.fieldPathAliasMap[path]
			return alias, ok
		}
	}
	return "", false
}

// WithKeys returns a copy of p whose keys are replaced by keys.
func (p *Plan) WithKeys(keys ...Tagged[Key]) *Plan {
	cp := *p
	cp.Keys = DedupKeys(keys)
	cp.Filters = slices.Clone(p.Filters)
	cp.Sort = slices.Clone(p.Sort)
	cp.Selection = slices.Clone(p.Selection)
	return &cp
}

func (p *Plan) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s", p.TypeName)
	if p.QueryName != "" {
		fmt.Fprintf(&b, "(%s)", p.QueryName)
	}
	for _, k := range p.Keys {
		fmt.Fprintf(&b, " key[%s]{%s}", k.Origin.Kind(), k.Value)
	}
	for _, f := range p.Filters {
		fmt.Fprintf(&b, " filter[%s]", f.Origin.Kind())
	}
	for _, s := range p.Sort {
		fmt.Fprintf(&b, " sort{%s}", s)
	}
	if p.Limited {
		fmt.Fprintf(&b, " limit=%d", p.Limit)
	}
	if p.Offset > 0 {
		fmt.Fprintf(&b, " offset=%d", p.Offset)
	}
	return b.String()
}

// PlanBuilder turns GraphQL arguments for one type into Plans.
type PlanBuilder struct {
	cfg    *schema.Configuration
	typ    *schema.TypeConfiguration
	router *convert.Router
}

// NewPlanBuilder returns a builder for the configured type typeName.
// A nil router leaves argument values as given.
func NewPlanBuilder(cfg *schema.Configuration, typeName string, router *convert.Router) (*PlanBuilder, error) {
	typ, ok := cfg.Type(typeName)
	if !ok {
		return nil, errdefs.InvalidConfiguration("types", "type %q is not configured", typeName)
	}
	return &PlanBuilder{cfg: cfg, typ: typ, router: router}, nil
}

// Type returns the type configuration plans are built for.
func (b *PlanBuilder) Type() *schema.TypeConfiguration { return b.typ }

// Build constructs the plan for a root query.
//
// Arguments naming key fields form one CompositeKey in key declaration
// order when every key field is given; otherwise they are filters like any
// other field argument. The filter argument becomes a CompositeFilter
// tagged Filtering and each nested path in it also yields a FilterKey.
// Sort paths missing from selection are appended under generated aliases.
func (b *PlanBuilder) Build(queryName string, args map[string]any, selection []string) (*Plan, error) {
	plan := &Plan{TypeName: b.typ.Name(), QueryName: queryName}
	for _, s := range selection {
		plan.Selection = append(plan.Selection, Tag(s, Requested()))
	}

	names := make([]string, 0, len(args))
	for name := range args {
		names = append(names, name)
	}
	sort.Strings(names)

	keyValues := make(map[string]any)
	fieldValues := make(map[string]any)
	var fieldArgs []string
	for _, name := range names {
		value := args[name]
		switch name {
		case ArgFilter:
			if err := b.addFilterArgument(plan, value); err != nil {
				return nil, err
			}
		case ArgSort:
			criteria, err := ParseSort(value)
			if err != nil {
				return nil, err
			}
			if err := b.addSort(plan, criteria); err != nil {
				return nil, err
			}
		case ArgFirst, ArgOffset:
			n, err := nonNegativeInt(name, value)
			if err != nil {
				return nil, err
			}
			if name == ArgFirst {
				plan.Limit, plan.Limited = n, true
			} else {
				plan.Offset = n
			}
		default:
			f, err := b.resolvePath([]string{name})
			if err != nil {
				return nil, err
			}
			if f == nil || f.List || f.IsAggregate() || f.IsReference() {
				return nil, errdefs.IllegalArgument(name, "field cannot be used as an argument of %s", b.typ.Name())
			}
			parsed, err := b.parseValue(f, value)
			if err != nil {
				return nil, err
			}
			if b.typ.IsKey(name) {
				keyValues[name] = parsed
			}
			fieldValues[name] = parsed
			fieldArgs = append(fieldArgs, name)
		}
	}

	keys := b.typ.Keys()
	complete := len(keys) > 0
	for _, k := range keys {
		if _, ok := keyValues[k]; !ok {
			complete = false
		}
	}
	if complete {
		fieldKeys := make([]FieldKey, 0, len(keys))
		for _, k := range keys {
			fk, err := NewFieldKey(k, keyValues[k])
			if err != nil {
				return nil, err
			}
			fieldKeys = append(fieldKeys, fk)
		}
		plan.Keys = append(plan.Keys, Tag[Key](NewCompositeKey(fieldKeys...), Requested()))
	}

	for _, name := range fieldArgs {
		if complete && b.typ.IsKey(name) {
			continue
		}
		ff, err := NewFieldFilter(name, fieldValues[name])
		if err != nil {
			return nil, err
		}
		plan.Filters = append(plan.Filters, Tag[Filter](ff, Requested()))
	}
	return plan, nil
}

// BuildKeyPlan constructs a batch plan that loads every row whose single
// key field equals one of values. Duplicate values collapse into one key.
func (b *PlanBuilder) BuildKeyPlan(values []any, selection []string) (*Plan, error) {
	keys := b.typ.Keys()
	if len(keys) != 1 {
		return nil, errdefs.InvalidConfiguration("types."+b.typ.Name()+".keys", "batch loading needs exactly one key field, have %d", len(keys))
	}
	f, _ := b.typ.Field(keys[0])

	plan := &Plan{TypeName: b.typ.Name(), QueryName: schema.DefaultQueryPath}
	for _, s := range selection {
		plan.Selection = append(plan.Selection, Tag(s, Requested()))
	}
	tagged := make([]Tagged[Key], 0, len(values))
	for _, v := range values {
		parsed, err := b.parseValue(&f, v)
		if err != nil {
			return nil, err
		}
		fk, err := NewFieldKey(keys[0], parsed)
		if err != nil {
			return nil, err
		}
		tagged = append(tagged, Tag[Key](NewCompositeKey(fk), Requested()))
	}
	plan.Keys = DedupKeys(tagged)
	return plan, nil
}

func (b *PlanBuilder) addFilterArgument(plan *Plan, value any) error {
	if value == nil {
		return nil
	}
	obj, ok := value.(map[string]any)
	if !ok {
		return errdefs.IllegalArgument(ArgFilter, "expected an object, got %T", value)
	}
	cf, err := FilterFromArgument(obj)
	if err != nil {
		return err
	}
	if cf.Len() == 0 {
		return nil
	}
	converted, err := b.convertFilter(cf)
	if err != nil {
		return err
	}
	origin := NewFiltering(converted)
	plan.Filters = append(plan.Filters, Tag(converted, Origin(origin)))

	leaves, err := FlattenDeep(converted)
	if err != nil {
		return err
	}
	for _, leaf := range leaves {
		path := leaf.Path()
		if len(path) < 2 {
			continue
		}
		fk, err := NewFilterKey(path, leaf.Value())
		if err != nil {
			return err
		}
		plan.Keys = append(plan.Keys, Tag[Key](fk, Origin(origin)))
	}
	return nil
}

// convertFilter parses every leaf value with the converter of the field it
// addresses. Paths into unconfigured object types keep their values.
func (b *PlanBuilder) convertFilter(f Filter) (Filter, error) {
	switch x := f.(type) {
	case FieldFilter:
		field, err := b.resolvePath(x.Path())
		if err != nil {
			return nil, err
		}
		value := x.value
		if field != nil {
			if value, err = b.parseValue(field, value); err != nil {
				return nil, err
			}
		}
		return FieldFilter{field: x.field, value: value}, nil
	case CompositeFilter:
		children := make([]Filter, 0, len(x.filters))
		for _, child := range x.filters {
			c, err := b.convertFilter(child)
			if err != nil {
				return nil, err
			}
			children = append(children, c)
		}
		return CompositeFilter{filters: children}, nil
	default:
		return nil, errdefs.Unsupported("filter conversion", f)
	}
}

func (b *PlanBuilder) addSort(plan *Plan, criteria []SortCriteria) error {
	if len(criteria) == 0 {
		return nil
	}
	selected := make(map[string]bool, len(plan.Selection))
	for _, s := range plan.Selection {
		selected[s.Value] = true
	}

	aliases := make(map[string]string)
	var added []string
	for i, c := range criteria {
		f, err := b.resolvePath(c.FieldPath)
		if err != nil {
			return err
		}
		if f != nil && (f.List || f.IsReference()) {
			return errdefs.IllegalArgument(ArgSort, "cannot sort by %s", c.Path())
		}
		path := c.Path()
		if selected[path] {
			continue
		}
		if _, dup := aliases[path]; !dup {
			aliases[path] = fmt.Sprintf("_sort%d", i)
			added = append(added, path)
		}
	}

	plan.Sort = append(plan.Sort, criteria...)
	if len(added) == 0 {
		return nil
	}
	origin := NewSorting(criteria, aliases)
	for _, path := range added {
		plan.Selection = append(plan.Selection, Tag(path, Origin(origin)))
	}
	return nil
}

// resolvePath walks path through the configured types. The first segment
// must be a field of the builder's type. Segments beyond a reference to a
// configured type are checked against that type; segments inside an
// unconfigured object type are accepted and yield a nil field.
func (b *PlanBuilder) resolvePath(path []string) (*schema.FieldConfiguration, error) {
	typ := b.typ
	for i, segment := range path {
		f, ok := typ.Field(segment)
		if !ok {
			return nil, errdefs.InvalidConfiguration("arguments."+strings.Join(path, "."), "type %s has no field %q", typ.Name(), segment)
		}
		if i == len(path)-1 {
			return &f, nil
		}
		next, ok := b.cfg.Type(f.Type)
		if !ok {
			return nil, nil
		}
		typ = next
	}
	return nil, nil
}

// parseValue converts a wire argument into the field's native type. Lists
// are converted element-wise; types without a converter pass through.
func (b *PlanBuilder) parseValue(f *schema.FieldConfiguration, value any) (any, error) {
	if b.router == nil || !b.router.HasType(f.Type) {
		return value, nil
	}
	if items, ok := value.([]any); ok {
		out := make([]any, len(items))
		for i, item := range items {
			v, err := b.router.ConvertToValue(item, f.Type)
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		return out, nil
	}
	return b.router.ConvertToValue(value, f.Type)
}

func nonNegativeInt(name string, value any) (int, error) {
	var n int64
	switch v := value.(type) {
	case nil:
		return 0, nil
	case int:
		n = int64(v)
	case int32:
		n = int64(v)
	case int64:
		n = v
	case float64:
		if v != math.Trunc(v) {
			return 0, errdefs.IllegalArgument(name, "expected an integer, got %v", v)
		}
		n = int64(v)
	default:
		return 0, errdefs.IllegalArgument(name, "expected an integer, got %T", value)
	}
	if n < 0 || n > math.MaxInt32 {
		return 0, errdefs.IllegalArgument(name, "out of range: %d", n)
	}
	return int(n), nil
}
