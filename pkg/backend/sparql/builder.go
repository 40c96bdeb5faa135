// Package sparql serves types from a remote triple store.
//
// Instances of a type are the subjects of `?_s a <Class>`. Each selectable
// field with a predicate becomes an OPTIONAL triple pattern bound to a
// variable named after the field; a field without a predicate is bound to
// the subject IRI itself, which is how key fields usually map. Filters on
// nested paths follow predicate chains inside FILTER EXISTS groups.
package sparql

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/apd/v3"

	"github.com/gqlgate/gqlgate/pkg/backend"
	"github.com/gqlgate/gqlgate/pkg/convert"
	"github.com/gqlgate/gqlgate/pkg/errdefs"
	"github.com/gqlgate/gqlgate/pkg/query"
	"github.com/gqlgate/gqlgate/pkg/schema"
)

const (
	subjectVar = "?_s"
	xsd        = "http://www.w3.org/2001/XMLSchema#"
)

// Statement is a compiled SELECT query. Columns maps field names to the
// result variables that populate them.
type Statement struct {
	Query   string
	Columns map[string]string
}

// Builder compiles plans to SPARQL for the types of one configuration.
type Builder struct {
	cfg    *schema.Configuration
	router *convert.Router
}

// NewBuilder returns a Builder.
func NewBuilder(cfg *schema.Configuration, router *convert.Router) *Builder {
	return &Builder{cfg: cfg, router: router}
}

// Build compiles plan into a SELECT over the type's class.
func (b *Builder) Build(plan *query.Plan) (Statement, error) {
	typ, ok := b.cfg.Type(plan.TypeName)
	if !ok {
		return Statement{}, errdefs.InvalidConfiguration("types", "type %q is not configured", plan.TypeName)
	}
	if typ.Class() == "" {
		return Statement{}, errdefs.InvalidConfiguration("types."+typ.Name()+".class", "required for sparql backends")
	}
	class, err := iriTerm(typ.Class())
	if err != nil {
		return Statement{}, err
	}

	c := &compiler{b: b}
	columns := make(map[string]string)
	selectVars := []string{subjectVar}
	patterns := []string{subjectVar + " a " + class + " ."}
	for _, f := range typ.Fields() {
		if !b.isValueField(f) {
			continue
		}
		if f.Predicate == "" {
			columns[f.Name] = subjectVar[1:]
			continue
		}
		pred, err := iriTerm(f.Predicate)
		if err != nil {
			return Statement{}, err
		}
		v := "?" + f.Name
		selectVars = append(selectVars, v)
		columns[f.Name] = f.Name
		patterns = append(patterns, fmt.Sprintf("OPTIONAL { %s %s %s . }", subjectVar, pred, v))
	}

	var alternatives []string
	for _, key := range backend.EntityKeys(plan) {
		cond, err := c.key(typ, key)
		if err != nil {
			return Statement{}, err
		}
		alternatives = append(alternatives, cond)
	}
	if len(alternatives) > 0 {
		patterns = append(patterns, "FILTER("+strings.Join(alternatives, " || ")+")")
	}
	for _, f := range plan.Filters {
		cond, err := c.filter(typ, f.Value)
		if err != nil {
			return Statement{}, err
		}
		if cond != "" {
			patterns = append(patterns, "FILTER"+cond)
		}
	}

	order, err := b.orderBy(typ, plan.Sort)
	if err != nil {
		return Statement{}, err
	}
	body := patterns
	if plan.Limited || plan.Offset > 0 {
		body = append([]string{pageSubjects(patterns, order, plan)}, patterns...)
	}

	var sb strings.Builder
	sb.WriteString("SELECT ")
	sb.WriteString(strings.Join(selectVars, " "))
	sb.WriteString(" WHERE {\n")
	for _, p := range body {
		sb.WriteString("  ")
		sb.WriteString(p)
		sb.WriteString("\n")
	}
	sb.WriteString("}")
	sb.WriteString(" ORDER BY ")
	sb.WriteString(order.String())
	return Statement{Query: sb.String(), Columns: columns}, nil
}

// isValueField reports whether f holds a single scalar value.
func (b *Builder) isValueField(f schema.FieldConfiguration) bool {
	if f.List || f.IsAggregate() || f.IsReference() {
		return false
	}
	if b.router != nil && b.router.HasType(f.Type) {
		return true
	}
	return schema.IsLeafType(b.cfg.SDL(), f.Type)
}

// orderTerm is one ORDER BY condition over a result variable.
type orderTerm struct {
	direction query.SortDirection
	variable  string
}

type ordering []orderTerm

// String renders the criteria followed by the subject tiebreaker.
func (o ordering) String() string {
	parts := make([]string, 0, len(o)+1)
	for _, t := range o {
		parts = append(parts, fmt.Sprintf("%s(%s)", t.direction, t.variable))
	}
	parts = append(parts, subjectVar)
	return strings.Join(parts, " ")
}

func (b *Builder) orderBy(typ *schema.TypeConfiguration, criteria []query.SortCriteria) (ordering, error) {
	order := make(ordering, 0, len(criteria))
	for _, c := range criteria {
		if len(c.FieldPath) != 1 {
			return nil, &errdefs.UnsupportedError{Operation: "sparql sort", Kind: typ.Name() + "." + c.Path()}
		}
		f, ok := typ.Field(c.FieldPath[0])
		if !ok || !b.isValueField(f) {
			return nil, &errdefs.UnsupportedError{Operation: "sparql sort", Kind: typ.Name() + "." + c.Path()}
		}
		v := subjectVar
		if f.Predicate != "" {
			v = "?" + f.Name
		}
		order = append(order, orderTerm{direction: c.Direction, variable: v})
	}
	return order, nil
}

// pageSubjects renders a sub-select that pages distinct subjects, so a
// multi-valued predicate cannot shrink a page. Each sort variable
// collapses to the value that orders its subject first.
func pageSubjects(patterns []string, order ordering, plan *query.Plan) string {
	vars := []string{subjectVar}
	inner := make(ordering, len(order))
	for i, t := range order {
		inner[i] = t
		if t.variable == subjectVar {
			continue
		}
		agg := "MIN"
		if t.direction == query.Descending {
			agg = "MAX"
		}
		alias := fmt.Sprintf("?_o%d", i)
		vars = append(vars, fmt.Sprintf("(%s(%s) AS %s)", agg, t.variable, alias))
		inner[i].variable = alias
	}

	var sb strings.Builder
	sb.WriteString("{ SELECT ")
	sb.WriteString(strings.Join(vars, " "))
	sb.WriteString(" WHERE { ")
	sb.WriteString(strings.Join(patterns, " "))
	sb.WriteString(" } GROUP BY ")
	sb.WriteString(subjectVar)
	sb.WriteString(" ORDER BY ")
	sb.WriteString(inner.String())
	if plan.Limited {
		sb.WriteString(" LIMIT " + strconv.Itoa(plan.Limit))
	}
	if plan.Offset > 0 {
		sb.WriteString(" OFFSET " + strconv.Itoa(plan.Offset))
	}
	sb.WriteString(" }")
	return sb.String()
}

// compiler renders conditions, allocating fresh variables for predicate
// chains.
type compiler struct {
	b    *Builder
	next int
}

func (c *compiler) fresh() string {
	c.next++
	return fmt.Sprintf("?_n%d", c.next)
}

func (c *compiler) key(typ *schema.TypeConfiguration, k query.Key) (string, error) {
	var fieldKeys []query.FieldKey
	switch x := k.(type) {
	case query.FieldKey:
		fieldKeys = []query.FieldKey{x}
	case query.CompositeKey:
		fieldKeys = x.Keys()
	default:
		return "", errdefs.Unsupported("sparql key", k)
	}
	parts := make([]string, 0, len(fieldKeys))
	for _, fk := range fieldKeys {
		cond, err := c.leaf(typ, []string{fk.Name()}, fk.Value())
		if err != nil {
			return "", err
		}
		parts = append(parts, cond)
	}
	return "(" + strings.Join(parts, " && ") + ")", nil
}

// filter renders f as a parenthesized conjunction.
func (c *compiler) filter(typ *schema.TypeConfiguration, f query.Filter) (string, error) {
	items, err := query.Flatten(f)
	if err != nil {
		return "", err
	}
	var parts []string
	for _, item := range items {
		var cond string
		switch x := item.(type) {
		case query.FieldFilter:
			cond, err = c.leaf(typ, x.Path(), x.Value())
		case query.CompositeFilter:
			cond, err = c.filter(typ, x)
		default:
			err = errdefs.Unsupported("sparql filter", item)
		}
		if err != nil {
			return "", err
		}
		if cond != "" {
			parts = append(parts, cond)
		}
	}
	if len(parts) == 0 {
		return "", nil
	}
	return "(" + strings.Join(parts, " && ") + ")", nil
}

// leaf renders one path comparison. Top-level fields compare their
// selected variable; nested paths walk predicates inside EXISTS.
func (c *compiler) leaf(typ *schema.TypeConfiguration, path []string, value any) (string, error) {
	cur := typ
	term := subjectVar
	var chain []string
	for _, name := range path[:len(path)-1] {
		f, ok := cur.Field(name)
		if !ok {
			return "", errdefs.InvalidConfiguration("types."+cur.Name(), "no field %q", name)
		}
		next, ok := c.b.cfg.Type(f.Type)
		if !ok {
			return "", &errdefs.UnsupportedError{Operation: "sparql nested filter", Kind: typ.Name() + "." + strings.Join(path, ".")}
		}
		hop := f
		if f.IsReference() {
			hop, _ = cur.Field(f.KeyField)
		}
		if hop.Predicate == "" {
			return "", &errdefs.UnsupportedError{Operation: "sparql nested filter", Kind: typ.Name() + "." + strings.Join(path, ".")}
		}
		pred, err := iriTerm(hop.Predicate)
		if err != nil {
			return "", err
		}
		v := c.fresh()
		chain = append(chain, fmt.Sprintf("%s %s %s .", term, pred, v))
		term = v
		cur = next
	}

	name := path[len(path)-1]
	f, ok := cur.Field(name)
	if !ok {
		return "", errdefs.InvalidConfiguration("types."+cur.Name(), "no field %q", name)
	}
	if !c.b.isValueField(f) {
		return "", &errdefs.UnsupportedError{Operation: "sparql filter", Kind: cur.Name() + "." + name}
	}
	subject := f.Predicate == ""
	if !subject {
		if len(chain) == 0 {
			return compare("?"+f.Name, value, false)
		}
		pred, err := iriTerm(f.Predicate)
		if err != nil {
			return "", err
		}
		v := c.fresh()
		chain = append(chain, fmt.Sprintf("%s %s %s .", term, pred, v))
		term = v
	}
	if len(chain) == 0 {
		return compare(term, value, true)
	}

	group := strings.Join(chain, " ")
	if value == nil {
		return "NOT EXISTS { " + group + " }", nil
	}
	cond, err := compare(term, value, subject)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("EXISTS { %s FILTER(%s) }", group, cond), nil
}

// compare renders term against value. A list is membership and nil is
// absence. Subject terms compare against IRIs.
func compare(term string, value any, subject bool) (string, error) {
	switch v := value.(type) {
	case nil:
		return "!BOUND(" + term + ")", nil
	case []any:
		if len(v) == 0 {
			return "false", nil
		}
		lits := make([]string, len(v))
		for i, item := range v {
			lit, err := literal(item, subject)
			if err != nil {
				return "", err
			}
			lits[i] = lit
		}
		return fmt.Sprintf("%s IN (%s)", term, strings.Join(lits, ", ")), nil
	default:
		lit, err := literal(v, subject)
		if err != nil {
			return "", err
		}
		return term + " = " + lit, nil
	}
}

// literal renders a native value as a SPARQL term.
func literal(v any, asIRI bool) (string, error) {
	switch x := v.(type) {
	case convert.IRI:
		return iriTerm(string(x))
	case string:
		if asIRI {
			return iriTerm(x)
		}
		return quote(x), nil
	case bool:
		return strconv.FormatBool(x), nil
	case int:
		return strconv.Itoa(x), nil
	case int8, int16, int32, int64:
		return fmt.Sprintf("%d", x), nil
	case float32:
		return typed(strconv.FormatFloat(float64(x), 'g', -1, 32), "float"), nil
	case float64:
		return typed(strconv.FormatFloat(x, 'g', -1, 64), "double"), nil
	case *apd.Decimal:
		return typed(x.String(), "decimal"), nil
	case convert.Date:
		return typed(x.String(), "date"), nil
	case time.Time:
		return typed(x.Format(time.RFC3339Nano), "dateTime"), nil
	default:
		return "", errdefs.IllegalArgument("value", "cannot render %T as a SPARQL term", v)
	}
}

func typed(lexical, datatype string) string {
	return quote(lexical) + "^^<" + xsd + datatype + ">"
}

var literalEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\n`, "\r", `\r`, "\t", `\t`)

func quote(s string) string {
	return `"` + literalEscaper.Replace(s) + `"`
}

// iriTerm renders s as <s>, rejecting characters IRIREF excludes.
func iriTerm(s string) (string, error) {
	if s == "" || strings.ContainsAny(s, "<>\"{}|^`\\ \t\n\r") {
		return "", errdefs.IllegalArgument("iri", "invalid IRI %q", s)
	}
	return "<" + s + ">", nil
}
