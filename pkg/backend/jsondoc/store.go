// Package jsondoc serves types from an in-memory JSON document.
//
// Each type selects its rows with a JSONPath registered as a query path.
// Keys and filters of a plan compile into one expr-lang predicate that is
// evaluated against every candidate row; compiled programs are cached by
// expression shape so repeated queries skip compilation.
package jsondoc

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/cockroachdb/apd/v3"
	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/ohler55/ojg/oj"

	"github.com/gqlgate/gqlgate/pkg/backend"
	"github.com/gqlgate/gqlgate/pkg/convert"
	"github.com/gqlgate/gqlgate/pkg/errdefs"
	"github.com/gqlgate/gqlgate/pkg/logging"
	"github.com/gqlgate/gqlgate/pkg/query"
	"github.com/gqlgate/gqlgate/pkg/schema"
)

// Store is a read-only JSON document backend.
type Store struct {
	cfg    *schema.Configuration
	doc    any
	router *convert.Router
	logger *slog.Logger

	programMu    sync.RWMutex
	programCache map[string]*vm.Program
}

// Open parses the JSON file at path into a Store.
func Open(path string, cfg *schema.Configuration, router *convert.Router, logger *slog.Logger) (*Store, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read JSON document: %w", err)
	}
	doc, err := oj.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse JSON document %s: %w", path, err)
	}
	return New(doc, cfg, router, logger), nil
}

// New returns a Store over an already decoded document. doc must not be
// modified afterwards.
func New(doc any, cfg *schema.Configuration, router *convert.Router, logger *slog.Logger) *Store {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Store{
		cfg:          cfg,
		doc:          doc,
		router:       router,
		logger:       logger,
		programCache: make(map[string]*vm.Program),
	}
}

// Fetch selects the rows of plan.TypeName through the query path named by
// plan.QueryName, keeps the rows matching the plan's keys and filters, then
// sorts and pages them.
func (s *Store) Fetch(ctx context.Context, plan *query.Plan) ([]backend.Row, error) {
	typ, ok := s.cfg.Type(plan.TypeName)
	if !ok {
		return nil, errdefs.InvalidConfiguration("types", "type %q is not configured", plan.TypeName)
	}
	name := plan.QueryName
	if name == "" {
		name = schema.DefaultQueryPath
	}
	path, err := typ.QueryPath(name)
	if err != nil {
		return nil, err
	}

	pred, params, err := compilePredicate(plan, s.router)
	if err != nil {
		return nil, err
	}
	var program *vm.Program
	if pred != "" {
		if program, err = s.compileExpr(pred); err != nil {
			return nil, fmt.Errorf("compile %q: %w", pred, err)
		}
	}

	var rows []backend.Row
	for i, candidate := range candidates(path.Get(s.doc)) {
		if i%256 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		if program != nil {
			out, err := expr.Run(program, newEnv(candidate, params))
			if err != nil {
				return nil, fmt.Errorf("eval %q: %w", pred, err)
			}
			if match, _ := out.(bool); !match {
				continue
			}
		}
		row := make(backend.Row, len(candidate))
		for k, v := range candidate {
			row[k] = v
		}
		rows = append(rows, row)
	}

	sortRows(rows, plan.Sort)
	rows = page(rows, plan)

	s.logger.Debug("json fetch",
		"type", plan.TypeName,
		"query", name,
		"predicate", pred,
		"rows", len(rows))
	return rows, nil
}

// candidates turns JSONPath results into row objects. A result that is an
// array contributes its object elements.
func candidates(results []any) []map[string]any {
	var out []map[string]any
	for _, r := range results {
		switch v := r.(type) {
		case map[string]any:
			out = append(out, v)
		case []any:
			for _, item := range v {
				if m, ok := item.(map[string]any); ok {
					out = append(out, m)
				}
			}
		}
	}
	return out
}

// compilePredicate renders plan constraints as an expr-lang expression over
// the env built by newEnv. Paths and values are passed as parameters, so
// plans of the same shape share one compiled program.
func compilePredicate(plan *query.Plan, router *convert.Router) (string, []any, error) {
	c := &predicateCompiler{router: router}

	var alternatives []string
	for _, key := range backend.EntityKeys(plan) {
		part, err := c.key(key)
		if err != nil {
			return "", nil, err
		}
		alternatives = append(alternatives, part)
	}

	var clauses []string
	if len(alternatives) > 0 {
		clauses = append(clauses, "("+strings.Join(alternatives, " || ")+")")
	}
	for _, f := range plan.Filters {
		part, err := c.filter(f.Value)
		if err != nil {
			return "", nil, err
		}
		if part != "" {
			clauses = append(clauses, part)
		}
	}
	return strings.Join(clauses, " && "), c.params, nil
}

type predicateCompiler struct {
	router *convert.Router
	params []any
}

func (c *predicateCompiler) param(v any) string {
	c.params = append(c.params, v)
	return fmt.Sprintf("p[%d]", len(c.params)-1)
}

func (c *predicateCompiler) equals(path string, value any) (string, error) {
	operand, err := c.operand(value)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("eq(get(row, %s), %s)", c.param(path), c.param(operand)), nil
}

// operand converts value for comparison against decoded JSON. Decimals stay
// native so they compare numerically with the document's numbers.
func (c *predicateCompiler) operand(value any) (any, error) {
	switch x := value.(type) {
	case *apd.Decimal:
		return x, nil
	case []any:
		out := make([]any, len(x))
		for i, item := range x {
			w, err := c.operand(item)
			if err != nil {
				return nil, err
			}
			out[i] = w
		}
		return out, nil
	}
	return backend.WireValue(c.router, value)
}

func (c *predicateCompiler) key(k query.Key) (string, error) {
	switch x := k.(type) {
	case query.FieldKey:
		return c.equals(x.Name(), x.Value())
	case query.CompositeKey:
		parts := make([]string, 0, x.Len())
		for _, fk := range x.Keys() {
			part, err := c.equals(fk.Name(), fk.Value())
			if err != nil {
				return "", err
			}
			parts = append(parts, part)
		}
		return "(" + strings.Join(parts, " && ") + ")", nil
	default:
		return "", errdefs.Unsupported("json key", k)
	}
}

func (c *predicateCompiler) filter(f query.Filter) (string, error) {
	items, err := query.Flatten(f)
	if err != nil {
		return "", err
	}
	var parts []string
	for _, item := range items {
		switch x := item.(type) {
		case query.FieldFilter:
			part, err := c.equals(x.Field(), x.Value())
			if err != nil {
				return "", err
			}
			parts = append(parts, part)
		case query.CompositeFilter:
			part, err := c.filter(x)
			if err != nil {
				return "", err
			}
			if part != "" {
				parts = append(parts, part)
			}
		default:
			return "", errdefs.Unsupported("json filter", item)
		}
	}
	if len(parts) == 0 {
		return "", nil
	}
	return "(" + strings.Join(parts, " && ") + ")", nil
}

func newEnv(row map[string]any, params []any) map[string]any {
	return map[string]any{
		"row": row,
		"p":   params,
		"get": getPath,
		"eq":  matches,
	}
}

// getPath reads a dotted path from v. Walking through an array collects the
// values found in each element.
func getPath(v any, path any) any {
	dotted, _ := path.(string)
	cur := v
	for _, segment := range strings.Split(dotted, ".") {
		cur = step(cur, segment)
		if cur == nil {
			return nil
		}
	}
	return cur
}

func step(v any, segment string) any {
	switch x := v.(type) {
	case map[string]any:
		return x[segment]
	case []any:
		var out []any
		for _, item := range x {
			switch next := step(item, segment).(type) {
			case nil:
			case []any:
				out = append(out, next...)
			default:
				out = append(out, next)
			}
		}
		if out == nil {
			return nil
		}
		return out
	default:
		return nil
	}
}

// matches reports whether actual satisfies want. A list want means "one
// of"; a list actual matches when any element does.
func matches(actual, want any) bool {
	if list, ok := want.([]any); ok {
		for _, w := range list {
			if matches(actual, w) {
				return true
			}
		}
		return false
	}
	if list, ok := actual.([]any); ok {
		for _, a := range list {
			if matches(a, want) {
				return true
			}
		}
		return false
	}
	return equalValues(actual, want)
}

func (s *Store) compileExpr(expression string) (*vm.Program, error) {
	s.programMu.RLock()
	if program, ok := s.programCache[expression]; ok {
		s.programMu.RUnlock()
		return program, nil
	}
	s.programMu.RUnlock()

	program, err := expr.Compile(expression, expr.Env(newEnv(nil, nil)), expr.AsBool())
	if err != nil {
		return nil, err
	}

	s.programMu.Lock()
	// Double-check in case another goroutine compiled the same expression.
	if existing, ok := s.programCache[expression]; ok {
		s.programMu.Unlock()
		return existing, nil
	}
	s.programCache[expression] = program
	s.programMu.Unlock()

	return program, nil
}

func sortRows(rows []backend.Row, criteria []query.SortCriteria) {
	if len(criteria) == 0 {
		return
	}
	sort.SliceStable(rows, func(i, j int) bool {
		for _, c := range criteria {
			a, b := getPath(rows[i], c.Path()), getPath(rows[j], c.Path())
			cmp := compareValues(a, b)
			if cmp == 0 {
				continue
			}
			if c.Direction == query.Descending {
				return cmp > 0
			}
			return cmp < 0
		}
		return false
	})
}

func page(rows []backend.Row, plan *query.Plan) []backend.Row {
	if plan.Offset >= len(rows) {
		return []backend.Row{}
	}
	rows = rows[plan.Offset:]
	if plan.Limited && plan.Limit < len(rows) {
		rows = rows[:plan.Limit]
	}
	return rows
}
