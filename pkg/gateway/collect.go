package gateway

import (
	"slices"

	"github.com/dolmen-go/jsonmap"
	"github.com/vektah/gqlparser/v2/ast"
)

// collectFields flattens set into the fields that apply to an object of
// typeName. Fragments whose type condition names another type and
// selections excluded by @skip or @include are dropped. Fields sharing a
// response key merge their sub-selections.
func collectFields(set ast.SelectionSet, typeName string, vars map[string]any) []*ast.Field {
	var fields []*ast.Field
	byAlias := make(map[string]int)

	var walk func(ast.SelectionSet)
	walk = func(set ast.SelectionSet) {
		for _, sel := range set {
			switch s := sel.(type) {
			case *ast.Field:
				if !included(s.Directives, vars) {
					continue
				}
				alias := responseKey(s)
				if i, ok := byAlias[alias]; ok {
					merged := *fields[i]
					merged.SelectionSet = append(slices.Clone(merged.SelectionSet), s.SelectionSet...)
					fields[i] = &merged
					continue
				}
				byAlias[alias] = len(fields)
				fields = append(fields, s)
			case *ast.InlineFragment:
				if included(s.Directives, vars) && appliesTo(s.TypeCondition, typeName) {
					walk(s.SelectionSet)
				}
			case *ast.FragmentSpread:
				if s.Definition != nil && included(s.Directives, vars) && appliesTo(s.Definition.TypeCondition, typeName) {
					walk(s.Definition.SelectionSet)
				}
			}
		}
	}
	walk(set)
	return fields
}

func appliesTo(condition, typeName string) bool {
	return condition == "" || typeName == "" || condition == typeName
}

// included evaluates @skip(if:) and @include(if:).
func included(directives ast.DirectiveList, vars map[string]any) bool {
	if d := directives.ForName("skip"); d != nil {
		if skip, _ := d.ArgumentMap(vars)["if"].(bool); skip {
			return false
		}
	}
	if d := directives.ForName("include"); d != nil {
		if include, _ := d.ArgumentMap(vars)["if"].(bool); !include {
			return false
		}
	}
	return true
}

func responseKey(f *ast.Field) string {
	if f.Alias != "" {
		return f.Alias
	}
	return f.Name
}

// selectedNames returns the distinct field names selected on typeName,
// leaving out meta fields.
func selectedNames(set ast.SelectionSet, typeName string, vars map[string]any) []string {
	var names []string
	for _, f := range collectFields(set, typeName, vars) {
		if f.Name == "__typename" || slices.Contains(names, f.Name) {
			continue
		}
		names = append(names, f.Name)
	}
	return names
}

// newObject returns an empty response object that keeps insertion order.
func newObject(size int) jsonmap.Ordered {
	return jsonmap.Ordered{
		Data:  make(map[string]any, size),
		Order: make([]string, 0, size),
	}
}

func setField(obj *jsonmap.Ordered, key string, value any) {
	if _, ok := obj.Data[key]; !ok {
		obj.Order = append(obj.Order, key)
	}
	obj.Data[key] = value
}
