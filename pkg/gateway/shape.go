package gateway

import (
	"context"
	"fmt"
	"strconv"

	"github.com/dolmen-go/jsonmap"
	"github.com/vektah/gqlparser/v2/ast"

	"github.com/gqlgate/gqlgate/pkg/backend"
	"github.com/gqlgate/gqlgate/pkg/query"
	"github.com/gqlgate/gqlgate/pkg/schema"
)

// references maps the response key of a reference field to the shaped
// target objects, indexed by query.KeyString of their key.
type references map[string]map[string]any

// shapeRows shapes rows of typ to set. Reference fields are loaded for all
// rows at once before any row is shaped.
func (e *Executor) shapeRows(ctx context.Context, typ *schema.TypeConfiguration, rows []backend.Row, set ast.SelectionSet, vars map[string]any) ([]any, error) {
	fields := collectFields(set, typ.Name(), vars)

	refs := make(references)
	for _, f := range fields {
		fc, ok := typ.Field(f.Name)
		if !ok || !fc.IsReference() {
			continue
		}
		loaded, err := e.loadReferences(ctx, fc, rows, f, vars)
		if err != nil {
			return nil, fmt.Errorf("load %s.%s: %w", typ.Name(), f.Name, err)
		}
		refs[responseKey(f)] = loaded
	}

	out := make([]any, len(rows))
	for i, row := range rows {
		obj, err := e.shapeObject(ctx, typ, row, fields, refs, vars)
		if err != nil {
			return nil, err
		}
		out[i] = obj
	}
	return out, nil
}

// loadReferences fetches the targets of reference field fc for every row
// with one key plan and shapes them to the field's selection.
func (e *Executor) loadReferences(ctx context.Context, fc schema.FieldConfiguration, rows []backend.Row, field *ast.Field, vars map[string]any) (map[string]any, error) {
	planner, ok := e.planners[fc.Type]
	if !ok {
		return nil, fmt.Errorf("referenced type %q is not configured", fc.Type)
	}
	keyName := planner.Type().Keys()[0]

	var values []any
	seen := make(map[string]bool)
	for _, row := range rows {
		v := row[fc.KeyField]
		if v == nil {
			continue
		}
		k, err := referenceKey(keyName, v)
		if err != nil {
			return nil, err
		}
		if !seen[k] {
			seen[k] = true
			values = append(values, v)
		}
	}
	loaded := make(map[string]any, len(values))
	if len(values) == 0 {
		return loaded, nil
	}

	plan, err := planner.BuildKeyPlan(values, selectedNames(field.SelectionSet, fc.Type, vars))
	if err != nil {
		return nil, err
	}
	targets, err := e.fetch(ctx, plan)
	if err != nil {
		return nil, err
	}
	shaped, err := e.shapeRows(ctx, planner.Type(), targets, field.SelectionSet, vars)
	if err != nil {
		return nil, err
	}
	for i, target := range targets {
		k, err := referenceKey(keyName, target[keyName])
		if err != nil {
			return nil, err
		}
		loaded[k] = shaped[i]
	}
	e.logger.Debug("loaded references", "type", fc.Type, "keys", len(values), "rows", len(targets))
	return loaded, nil
}

// referenceKey renders a key value so that a parent's key field and the
// target's key compare equal regardless of numeric width. Integral numbers
// render like their decimal string, so an ID held as 7 matches "7".
func referenceKey(name string, v any) (string, error) {
	if f, ok := numeric(v); ok && f == float64(int64(f)) {
		v = strconv.FormatInt(int64(f), 10)
	}
	fk, err := query.NewFieldKey(name, v)
	if err != nil {
		return "", err
	}
	return query.KeyString(fk), nil
}

// shapeObject builds the response object for one row.
func (e *Executor) shapeObject(ctx context.Context, typ *schema.TypeConfiguration, row backend.Row, fields []*ast.Field, refs references, vars map[string]any) (jsonmap.Ordered, error) {
	obj := newObject(len(fields))
	for _, f := range fields {
		alias := responseKey(f)
		if f.Name == "__typename" {
			setField(&obj, alias, typ.Name())
			continue
		}

		fc, configured := typ.Field(f.Name)
		var (
			value any
			err   error
		)
		switch {
		case configured && fc.IsAggregate():
			value, err = aggregate(fc, row[fc.AggregateOf])
			if err == nil {
				value = e.scalar(value, fc.Type)
			}
		case configured && fc.IsReference():
			if v := row[fc.KeyField]; v != nil {
				var k string
				if k, err = referenceKey(e.planners[fc.Type].Type().Keys()[0], v); err == nil {
					value = refs[alias][k]
				}
			}
		default:
			value, err = e.shapeValue(ctx, row[f.Name], f, vars)
		}
		if err != nil {
			return obj, fmt.Errorf("%s.%s: %w", typ.Name(), f.Name, err)
		}
		setField(&obj, alias, value)
	}
	return obj, nil
}

// shapeValue shapes a stored value to field f. Objects of configured types
// are shaped with their configuration; other objects follow the SDL.
func (e *Executor) shapeValue(ctx context.Context, v any, f *ast.Field, vars map[string]any) (any, error) {
	typeName := ""
	if f.Definition != nil {
		typeName = f.Definition.Type.Name()
	}
	if len(f.SelectionSet) == 0 {
		return e.leaf(v, typeName), nil
	}

	if typ, ok := e.cfg.Type(typeName); ok {
		rows, positions := objectRows(v)
		shaped, err := e.shapeRows(ctx, typ, rows, f.SelectionSet, vars)
		if err != nil {
			return nil, err
		}
		if _, isList := v.([]any); !isList {
			if len(shaped) == 0 {
				return nil, nil
			}
			return shaped[0], nil
		}
		out := make([]any, len(positions))
		for i, pos := range positions {
			if pos >= 0 {
				out[i] = shaped[pos]
			}
		}
		return out, nil
	}
	return e.shapeEmbedded(ctx, v, typeName, f.SelectionSet, vars)
}

// objectRows collects the objects of v as rows. positions maps each list
// element to its row, or -1 for elements that are not objects.
func objectRows(v any) ([]backend.Row, []int) {
	switch x := v.(type) {
	case map[string]any:
		return []backend.Row{x}, []int{0}
	case []any:
		rows := make([]backend.Row, 0, len(x))
		positions := make([]int, len(x))
		for i, item := range x {
			m, ok := item.(map[string]any)
			if !ok {
				positions[i] = -1
				continue
			}
			positions[i] = len(rows)
			rows = append(rows, m)
		}
		return rows, positions
	default:
		return nil, nil
	}
}

// shapeEmbedded shapes objects of a type with no backend configuration.
func (e *Executor) shapeEmbedded(ctx context.Context, v any, typeName string, set ast.SelectionSet, vars map[string]any) (any, error) {
	switch x := v.(type) {
	case []any:
		out := make([]any, len(x))
		for i, item := range x {
			shaped, err := e.shapeEmbedded(ctx, item, typeName, set, vars)
			if err != nil {
				return nil, err
			}
			out[i] = shaped
		}
		return out, nil
	case map[string]any:
		fields := collectFields(set, typeName, vars)
		obj := newObject(len(fields))
		for _, f := range fields {
			if f.Name == "__typename" {
				setField(&obj, responseKey(f), typeName)
				continue
			}
			value, err := e.shapeValue(ctx, x[f.Name], f, vars)
			if err != nil {
				return nil, err
			}
			setField(&obj, responseKey(f), value)
		}
		return obj, nil
	default:
		return nil, nil
	}
}

// leaf converts a stored scalar to its response form. Values are read
// through the converter of the declared scalar when one applies, so a
// stored 0/1 becomes a Boolean and a DATETIME column an RFC 3339 string.
func (e *Executor) leaf(v any, typeName string) any {
	if items, ok := v.([]any); ok {
		out := make([]any, len(items))
		for i, item := range items {
			out[i] = e.leaf(item, typeName)
		}
		return out
	}
	return e.scalar(v, typeName)
}

func (e *Executor) scalar(v any, typeName string) any {
	if v == nil || e.router == nil {
		return v
	}
	if e.router.HasType(typeName) {
		if native, err := e.router.ConvertToValue(v, typeName); err == nil {
			v = native
		}
	}
	if e.router.CanConvert(v) {
		if wire, err := e.router.ConvertFromValue(v); err == nil {
			return wire
		}
	}
	return v
}

// plain converts shaped output to maps and slices, the form templates
// address.
func plain(v any) any {
	switch x := v.(type) {
	case jsonmap.Ordered:
		out := make(map[string]any, len(x.Data))
		for k, item := range x.Data {
			out[k] = plain(item)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, item := range x {
			out[i] = plain(item)
		}
		return out
	default:
		return v
	}
}
