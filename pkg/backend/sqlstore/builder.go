// Package sqlstore serves types from a relational database.
//
// Builder compiles a query.Plan into one parameterized SELECT; Store runs
// it through database/sql. Every statement has an ORDER BY ending in the
// key columns so results are deterministic, and values are always bound as
// parameters, never interpolated.
package sqlstore

import (
	"fmt"
	"strings"

	"github.com/gqlgate/gqlgate/pkg/backend"
	"github.com/gqlgate/gqlgate/pkg/convert"
	"github.com/gqlgate/gqlgate/pkg/errdefs"
	"github.com/gqlgate/gqlgate/pkg/query"
	"github.com/gqlgate/gqlgate/pkg/schema"
)

// Statement is a compiled query and its bound parameters.
type Statement struct {
	SQL  string
	Args []any
}

// Builder compiles plans to SQL for the types of one configuration.
type Builder struct {
	cfg    *schema.Configuration
	router *convert.Router
}

// NewBuilder returns a Builder. A nil router binds values unconverted.
func NewBuilder(cfg *schema.Configuration, router *convert.Router) *Builder {
	return &Builder{cfg: cfg, router: router}
}

// Build compiles plan to
//
//	SELECT cols FROM table WHERE (keys OR ...) AND filters ORDER BY ... LIMIT ? OFFSET ?
//
// Nested filter paths are supported only through reference fields, which
// become IN subqueries against the referenced type's table.
func (b *Builder) Build(plan *query.Plan) (Statement, error) {
	typ, ok := b.cfg.Type(plan.TypeName)
	if !ok {
		return Statement{}, errdefs.InvalidConfiguration("types", "type %q is not configured", plan.TypeName)
	}

	cols := b.columns(typ)
	if len(cols) == 0 {
		return Statement{}, errdefs.InvalidConfiguration("types."+typ.Name(), "no column-backed fields")
	}

	var args []any
	var where []string

	var alternatives []string
	for _, key := range backend.EntityKeys(plan) {
		clause, keyArgs, err := b.compileKey(typ, key)
		if err != nil {
			return Statement{}, err
		}
		alternatives = append(alternatives, clause)
		args = append(args, keyArgs...)
	}
	if len(alternatives) > 0 {
		where = append(where, "("+strings.Join(alternatives, " OR ")+")")
	}

	for _, f := range plan.Filters {
		clause, filterArgs, err := b.compileFilter(typ, f.Value)
		if err != nil {
			return Statement{}, err
		}
		if clause != "" {
			where = append(where, clause)
			args = append(args, filterArgs...)
		}
	}

	var sb strings.Builder
	sb.WriteString("SELECT ")
	sb.WriteString(strings.Join(cols, ", "))
	sb.WriteString(" FROM ")
	sb.WriteString(quoteIdent(typ.Table()))
	if len(where) > 0 {
		sb.WriteString(" WHERE ")
		sb.WriteString(strings.Join(where, " AND "))
	}

	order, err := b.orderBy(typ, plan.Sort)
	if err != nil {
		return Statement{}, err
	}
	sb.WriteString(" ORDER BY ")
	sb.WriteString(order)

	if plan.Limited || plan.Offset > 0 {
		limit := -1
		if plan.Limited {
			limit = plan.Limit
		}
		sb.WriteString(" LIMIT ?")
		args = append(args, limit)
		if plan.Offset > 0 {
			sb.WriteString(" OFFSET ?")
			args = append(args, plan.Offset)
		}
	}

	return Statement{SQL: sb.String(), Args: args}, nil
}

// columns lists the select expressions of every column-backed field,
// aliased to the field name.
func (b *Builder) columns(typ *schema.TypeConfiguration) []string {
	var cols []string
	for _, f := range typ.Fields() {
		if !b.isColumn(f) {
			continue
		}
		col := quoteIdent(f.ColumnName())
		if f.ColumnName() != f.Name {
			col += " AS " + quoteIdent(f.Name)
		}
		cols = append(cols, col)
	}
	return cols
}

func (b *Builder) isColumn(f schema.FieldConfiguration) bool {
	if f.List || f.IsAggregate() || f.IsReference() {
		return false
	}
	if b.router != nil && b.router.HasType(f.Type) {
		return true
	}
	return schema.IsLeafType(b.cfg.SDL(), f.Type)
}

func (b *Builder) column(typ *schema.TypeConfiguration, name string) (string, error) {
	f, ok := typ.Field(name)
	if !ok {
		return "", errdefs.InvalidConfiguration("types."+typ.Name(), "no field %q", name)
	}
	if !b.isColumn(f) {
		return "", &errdefs.UnsupportedError{Operation: "sql column", Kind: typ.Name() + "." + name}
	}
	return quoteIdent(f.ColumnName()), nil
}

func (b *Builder) compileKey(typ *schema.TypeConfiguration, k query.Key) (string, []any, error) {
	var fieldKeys []query.FieldKey
	switch x := k.(type) {
	case query.FieldKey:
		fieldKeys = []query.FieldKey{x}
	case query.CompositeKey:
		fieldKeys = x.Keys()
	default:
		return "", nil, errdefs.Unsupported("sql key", k)
	}

	parts := make([]string, 0, len(fieldKeys))
	var args []any
	for _, fk := range fieldKeys {
		clause, clauseArgs, err := b.compareColumn(typ, fk.Name(), fk.Value())
		if err != nil {
			return "", nil, err
		}
		parts = append(parts, clause)
		args = append(args, clauseArgs...)
	}
	return "(" + strings.Join(parts, " AND ") + ")", args, nil
}

// compileFilter renders f as a parenthesized conjunction. Composite
// children nest as their own groups.
func (b *Builder) compileFilter(typ *schema.TypeConfiguration, f query.Filter) (string, []any, error) {
	items, err := query.Flatten(f)
	if err != nil {
		return "", nil, err
	}
	var parts []string
	var args []any
	for _, item := range items {
		var clause string
		var clauseArgs []any
		switch x := item.(type) {
		case query.FieldFilter:
			clause, clauseArgs, err = b.compileFieldFilter(typ, x.Path(), x.Value())
		case query.CompositeFilter:
			clause, clauseArgs, err = b.compileFilter(typ, x)
		default:
			err = errdefs.Unsupported("sql filter", item)
		}
		if err != nil {
			return "", nil, err
		}
		if clause != "" {
			parts = append(parts, clause)
			args = append(args, clauseArgs...)
		}
	}
	if len(parts) == 0 {
		return "", nil, nil
	}
	return "(" + strings.Join(parts, " AND ") + ")", args, nil
}

func (b *Builder) compileFieldFilter(typ *schema.TypeConfiguration, path []string, value any) (string, []any, error) {
	if len(path) == 1 {
		return b.compareColumn(typ, path[0], value)
	}

	ref, ok := typ.Field(path[0])
	if !ok || !ref.IsReference() {
		return "", nil, &errdefs.UnsupportedError{Operation: "sql nested filter", Kind: typ.Name() + "." + strings.Join(path, ".")}
	}
	target, ok := b.cfg.Type(ref.Type)
	if !ok || len(target.Keys()) != 1 {
		return "", nil, errdefs.InvalidConfiguration("types."+typ.Name()+".fields."+ref.Name, "reference target %q cannot be joined", ref.Type)
	}

	local, err := b.column(typ, ref.KeyField)
	if err != nil {
		return "", nil, err
	}
	remote, err := b.column(target, target.Keys()[0])
	if err != nil {
		return "", nil, err
	}
	inner, args, err := b.compileFieldFilter(target, path[1:], value)
	if err != nil {
		return "", nil, err
	}
	clause := fmt.Sprintf("%s IN (SELECT %s FROM %s WHERE %s)", local, remote, quoteIdent(target.Table()), inner)
	return clause, args, nil
}

func (b *Builder) compareColumn(typ *schema.TypeConfiguration, field string, value any) (string, []any, error) {
	col, err := b.column(typ, field)
	if err != nil {
		return "", nil, err
	}
	wire, err := backend.WireValue(b.router, value)
	if err != nil {
		return "", nil, err
	}
	switch v := wire.(type) {
	case nil:
		return col + " IS NULL", nil, nil
	case []any:
		if len(v) == 0 {
			return "1 = 0", nil, nil
		}
		marks := strings.TrimSuffix(strings.Repeat("?, ", len(v)), ", ")
		return fmt.Sprintf("%s IN (%s)", col, marks), v, nil
	default:
		return col + " = ?", []any{v}, nil
	}
}

// orderBy renders the sort criteria followed by the key columns as a
// deterministic tiebreaker. Without keys the first column is used.
func (b *Builder) orderBy(typ *schema.TypeConfiguration, criteria []query.SortCriteria) (string, error) {
	var parts []string
	seen := make(map[string]bool)
	for _, c := range criteria {
		if len(c.FieldPath) != 1 {
			return "", &errdefs.UnsupportedError{Operation: "sql sort", Kind: typ.Name() + "." + c.Path()}
		}
		col, err := b.column(typ, c.FieldPath[0])
		if err != nil {
			return "", err
		}
		seen[c.FieldPath[0]] = true
		parts = append(parts, fmt.Sprintf("%s %s", col, c.Direction))
	}

	tiebreak := typ.Keys()
	if len(tiebreak) == 0 {
		for _, f := range typ.Fields() {
			if b.isColumn(f) {
				tiebreak = []string{f.Name}
				break
			}
		}
	}
	for _, name := range tiebreak {
		if seen[name] {
			continue
		}
		col, err := b.column(typ, name)
		if err != nil {
			return "", err
		}
		parts = append(parts, col+" ASC")
	}
	return strings.Join(parts, ", "), nil
}

func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}
