package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/vektah/gqlparser/v2"
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/gqlerror"
	"github.com/vektah/gqlparser/v2/validator"

	"github.com/gqlgate/gqlgate/pkg/backend"
	"github.com/gqlgate/gqlgate/pkg/convert"
	"github.com/gqlgate/gqlgate/pkg/errdefs"
	"github.com/gqlgate/gqlgate/pkg/logging"
	"github.com/gqlgate/gqlgate/pkg/query"
	"github.com/gqlgate/gqlgate/pkg/schema"
)

// Executor executes GraphQL queries against the configured backends.
// It holds no per-request state and is safe for concurrent use.
type Executor struct {
	cfg      *schema.Configuration
	sdl      *ast.Schema
	backends *backend.Registry
	router   *convert.Router
	planners map[string]*query.PlanBuilder
	logger   *slog.Logger
}

// NewExecutor creates an executor for cfg. The configuration must carry
// an SDL with a Query type, and every configured type's backend must be
// registered in backends.
func NewExecutor(cfg *schema.Configuration, backends *backend.Registry, router *convert.Router, logger *slog.Logger) (*Executor, error) {
	if logger == nil {
		logger = logging.Nop()
	}
	sdl := cfg.SDL()
	if sdl == nil || sdl.Query == nil {
		return nil, errdefs.InvalidConfiguration("schema", "a GraphQL schema with a Query type is required")
	}

	e := &Executor{
		cfg:      cfg,
		sdl:      sdl,
		backends: backends,
		router:   router,
		planners: make(map[string]*query.PlanBuilder),
		logger:   logger,
	}
	for _, name := range cfg.TypeNames() {
		planner, err := query.NewPlanBuilder(cfg, name, router)
		if err != nil {
			return nil, err
		}
		if _, err := backends.Get(planner.Type().Backend()); err != nil {
			return nil, errdefs.InvalidConfiguration("types."+name+".backend", "backend %q is not available", planner.Type().Backend())
		}
		e.planners[name] = planner
	}
	return e, nil
}

// Execute runs a GraphQL request. Failures are reported in the response;
// a root field that fails is null and its error carries the field's path.
func (e *Executor) Execute(ctx context.Context, req *Request) *Response {
	if req == nil || strings.TrimSpace(req.Query) == "" {
		return &Response{Errors: []Error{{
			Message:    "query is required",
			Extensions: map[string]any{"code": CodeBadRequest},
		}}}
	}

	doc, errs := gqlparser.LoadQuery(e.sdl, req.Query)
	if len(errs) > 0 {
		return &Response{Errors: queryErrors(errs)}
	}

	op, err := selectOperation(doc, req.OperationName)
	if err != nil {
		return &Response{Errors: []Error{newError(err)}}
	}

	vars, err := validator.VariableValues(e.sdl, op, req.Variables)
	if err != nil {
		var gqlErr *gqlerror.Error
		if errors.As(err, &gqlErr) {
			return &Response{Errors: queryErrors(gqlerror.List{gqlErr})}
		}
		return &Response{Errors: []Error{{Message: err.Error(), Extensions: map[string]any{"code": CodeBadRequest}}}}
	}
	vars = normalizeNumbers(vars).(map[string]any)

	start := time.Now()
	data, fieldErrs := e.executeQuery(ctx, op, vars)
	e.logger.Debug("executed query",
		"operation", op.Name,
		"duration", time.Since(start),
		"errors", len(fieldErrs),
	)
	return &Response{Data: data, Errors: fieldErrs}
}

// selectOperation picks the operation to run. A document with several
// operations needs a name, and only queries are executed.
func selectOperation(doc *ast.QueryDocument, name string) (*ast.OperationDefinition, error) {
	var op *ast.OperationDefinition
	switch {
	case name != "":
		op = doc.Operations.ForName(name)
		if op == nil {
			return nil, errdefs.IllegalArgument("operationName", "unknown operation %q", name)
		}
	case len(doc.Operations) == 1:
		op = doc.Operations[0]
	case len(doc.Operations) == 0:
		return nil, errdefs.IllegalArgument("query", "no operation found")
	default:
		return nil, errdefs.IllegalArgument("operationName", "required when the document has several operations")
	}
	if op.Operation != ast.Query {
		return nil, &errdefs.UnsupportedError{Operation: "execute", Kind: string(op.Operation)}
	}
	return op, nil
}

func (e *Executor) executeQuery(ctx context.Context, op *ast.OperationDefinition, vars map[string]any) (any, []Error) {
	data := newObject(len(op.SelectionSet))
	var errs []Error
	intro := &introspector{sdl: e.sdl, vars: vars}

	for _, field := range collectFields(op.SelectionSet, e.sdl.Query.Name, vars) {
		alias := responseKey(field)
		var (
			value any
			err   error
		)
		switch field.Name {
		case "__typename":
			value = e.sdl.Query.Name
		case "__schema":
			value = intro.schema(field.SelectionSet)
		case "__type":
			name, _ := field.ArgumentMap(vars)["name"].(string)
			value = intro.typ(e.sdl.Types[name], field.SelectionSet)
		default:
			value, err = e.resolveRoot(ctx, field, vars)
		}
		if err != nil {
			e.logger.Warn("root field failed", "field", field.Name, "error", err)
			errs = append(errs, newError(err, alias))
			value = nil
		}
		setField(&data, alias, value)
	}
	return data, errs
}

// resolveRoot plans, fetches and shapes one root query field.
func (e *Executor) resolveRoot(ctx context.Context, field *ast.Field, vars map[string]any) (any, error) {
	if field.Definition == nil {
		return nil, errdefs.IllegalArgument(field.Name, "unknown field of %s", e.sdl.Query.Name)
	}
	typeName := field.Definition.Type.Name()
	planner, ok := e.planners[typeName]
	if !ok {
		return nil, errdefs.InvalidConfiguration("types", "type %q returned by %s.%s is not configured", typeName, e.sdl.Query.Name, field.Name)
	}

	plan, err := planner.Build(field.Name, field.ArgumentMap(vars), selectedNames(field.SelectionSet, typeName, vars))
	if err != nil {
		return nil, err
	}
	rows, err := e.fetch(ctx, plan)
	if err != nil {
		return nil, err
	}
	shaped, err := e.shapeRows(ctx, planner.Type(), rows, field.SelectionSet, vars)
	if err != nil {
		return nil, err
	}

	if field.Definition.Type.Elem != nil {
		return shaped, nil
	}
	if len(shaped) == 0 {
		return nil, nil
	}
	return shaped[0], nil
}

// fetch dispatches plan to the backend of its type.
func (e *Executor) fetch(ctx context.Context, plan *query.Plan) ([]backend.Row, error) {
	typ, ok := e.cfg.Type(plan.TypeName)
	if !ok {
		return nil, errdefs.InvalidConfiguration("types", "type %q is not configured", plan.TypeName)
	}
	fetcher, err := e.backends.Get(typ.Backend())
	if err != nil {
		return nil, err
	}
	e.logger.Debug("fetching", "plan", plan.String(), "backend", typ.Backend())
	return fetcher.Fetch(ctx, plan)
}

// normalizeNumbers replaces json.Number values with int64 when they are
// integral and float64 otherwise.
func normalizeNumbers(v any) any {
	switch x := v.(type) {
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return i
		}
		f, _ := x.Float64()
		return f
	case map[string]any:
		for k, item := range x {
			x[k] = normalizeNumbers(item)
		}
		if x == nil {
			return map[string]any{}
		}
		return x
	case []any:
		for i, item := range x {
			x[i] = normalizeNumbers(item)
		}
		return x
	default:
		return v
	}
}
