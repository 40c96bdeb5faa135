package gateway

import (
	"sort"
	"strings"

	"github.com/dolmen-go/jsonmap"
	"github.com/vektah/gqlparser/v2/ast"
)

// introspector answers __schema and __type from the SDL.
type introspector struct {
	sdl  *ast.Schema
	vars map[string]any
}

// object shapes one introspection object of typeName, asking resolve for
// every selected field except __typename.
func (in *introspector) object(set ast.SelectionSet, typeName string, resolve func(f *ast.Field) any) jsonmap.Ordered {
	fields := collectFields(set, typeName, in.vars)
	obj := newObject(len(fields))
	for _, f := range fields {
		if f.Name == "__typename" {
			setField(&obj, responseKey(f), typeName)
			continue
		}
		setField(&obj, responseKey(f), resolve(f))
	}
	return obj
}

func (in *introspector) schema(set ast.SelectionSet) any {
	return in.object(set, "__Schema", func(f *ast.Field) any {
		switch f.Name {
		case "description":
			return nil
		case "queryType":
			return in.typ(in.sdl.Query, f.SelectionSet)
		case "mutationType":
			return in.typ(in.sdl.Mutation, f.SelectionSet)
		case "subscriptionType":
			return in.typ(in.sdl.Subscription, f.SelectionSet)
		case "types":
			names := make([]string, 0, len(in.sdl.Types))
			for name := range in.sdl.Types {
				names = append(names, name)
			}
			sort.Strings(names)
			types := make([]any, 0, len(names))
			for _, name := range names {
				types = append(types, in.typ(in.sdl.Types[name], f.SelectionSet))
			}
			return types
		case "directives":
			names := make([]string, 0, len(in.sdl.Directives))
			for name := range in.sdl.Directives {
				names = append(names, name)
			}
			sort.Strings(names)
			directives := make([]any, 0, len(names))
			for _, name := range names {
				directives = append(directives, in.directive(in.sdl.Directives[name], f.SelectionSet))
			}
			return directives
		}
		return nil
	})
}

// typ describes a named type; nil definitions yield null.
func (in *introspector) typ(def *ast.Definition, set ast.SelectionSet) any {
	if def == nil {
		return nil
	}
	return in.object(set, "__Type", func(f *ast.Field) any {
		switch f.Name {
		case "kind":
			return typeKind(def)
		case "name":
			return def.Name
		case "description":
			return description(def.Description)
		case "fields":
			if def.Kind != ast.Object && def.Kind != ast.Interface {
				return nil
			}
			fields := make([]any, 0, len(def.Fields))
			for _, fd := range def.Fields {
				if strings.HasPrefix(fd.Name, "__") {
					continue
				}
				fields = append(fields, in.field(fd, f.SelectionSet))
			}
			return fields
		case "inputFields":
			if def.Kind != ast.InputObject {
				return nil
			}
			fields := make([]any, 0, len(def.Fields))
			for _, fd := range def.Fields {
				fields = append(fields, in.inputValue(fd.Name, fd.Description, fd.Type, fd.DefaultValue, f.SelectionSet))
			}
			return fields
		case "enumValues":
			if def.Kind != ast.Enum {
				return nil
			}
			values := make([]any, 0, len(def.EnumValues))
			for _, ev := range def.EnumValues {
				values = append(values, in.enumValue(ev, f.SelectionSet))
			}
			return values
		case "interfaces":
			if def.Kind != ast.Object && def.Kind != ast.Interface {
				return nil
			}
			ifaces := make([]any, 0, len(def.Interfaces))
			for _, name := range def.Interfaces {
				ifaces = append(ifaces, in.typ(in.sdl.Types[name], f.SelectionSet))
			}
			return ifaces
		case "possibleTypes":
			if def.Kind != ast.Interface && def.Kind != ast.Union {
				return nil
			}
			possible := in.sdl.GetPossibleTypes(def)
			types := make([]any, 0, len(possible))
			for _, p := range possible {
				types = append(types, in.typ(p, f.SelectionSet))
			}
			return types
		case "isOneOf":
			return false
		}
		return nil
	})
}

func (in *introspector) field(fd *ast.FieldDefinition, set ast.SelectionSet) any {
	return in.object(set, "__Field", func(f *ast.Field) any {
		switch f.Name {
		case "name":
			return fd.Name
		case "description":
			return description(fd.Description)
		case "args":
			return in.arguments(fd.Arguments, f.SelectionSet)
		case "type":
			return in.typeRef(fd.Type, f.SelectionSet)
		case "isDeprecated":
			return fd.Directives.ForName("deprecated") != nil
		case "deprecationReason":
			return deprecationReason(fd.Directives)
		}
		return nil
	})
}

func (in *introspector) arguments(args ast.ArgumentDefinitionList, set ast.SelectionSet) []any {
	out := make([]any, 0, len(args))
	for _, arg := range args {
		out = append(out, in.inputValue(arg.Name, arg.Description, arg.Type, arg.DefaultValue, set))
	}
	return out
}

func (in *introspector) inputValue(name, desc string, t *ast.Type, def *ast.Value, set ast.SelectionSet) any {
	return in.object(set, "__InputValue", func(f *ast.Field) any {
		switch f.Name {
		case "name":
			return name
		case "description":
			return description(desc)
		case "type":
			return in.typeRef(t, f.SelectionSet)
		case "defaultValue":
			if def == nil {
				return nil
			}
			return def.String()
		case "isDeprecated":
			return false
		}
		return nil
	})
}

func (in *introspector) enumValue(ev *ast.EnumValueDefinition, set ast.SelectionSet) any {
	return in.object(set, "__EnumValue", func(f *ast.Field) any {
		switch f.Name {
		case "name":
			return ev.Name
		case "description":
			return description(ev.Description)
		case "isDeprecated":
			return ev.Directives.ForName("deprecated") != nil
		case "deprecationReason":
			return deprecationReason(ev.Directives)
		}
		return nil
	})
}

func (in *introspector) directive(d *ast.DirectiveDefinition, set ast.SelectionSet) any {
	return in.object(set, "__Directive", func(f *ast.Field) any {
		switch f.Name {
		case "name":
			return d.Name
		case "description":
			return description(d.Description)
		case "locations":
			locations := make([]any, len(d.Locations))
			for i, loc := range d.Locations {
				locations[i] = string(loc)
			}
			return locations
		case "args":
			return in.arguments(d.Arguments, f.SelectionSet)
		case "isRepeatable":
			return d.IsRepeatable
		}
		return nil
	})
}

// typeRef describes a type reference, unwrapping NON_NULL and LIST.
func (in *introspector) typeRef(t *ast.Type, set ast.SelectionSet) any {
	if t == nil {
		return nil
	}
	switch {
	case t.NonNull:
		inner := *t
		inner.NonNull = false
		return in.object(set, "__Type", func(f *ast.Field) any {
			switch f.Name {
			case "kind":
				return "NON_NULL"
			case "ofType":
				return in.typeRef(&inner, f.SelectionSet)
			}
			return nil
		})
	case t.Elem != nil:
		return in.object(set, "__Type", func(f *ast.Field) any {
			switch f.Name {
			case "kind":
				return "LIST"
			case "ofType":
				return in.typeRef(t.Elem, f.SelectionSet)
			}
			return nil
		})
	}
	if def := in.sdl.Types[t.NamedType]; def != nil {
		return in.typ(def, set)
	}
	return in.object(set, "__Type", func(f *ast.Field) any {
		switch f.Name {
		case "kind":
			return "SCALAR"
		case "name":
			return t.NamedType
		}
		return nil
	})
}

func typeKind(def *ast.Definition) string {
	switch def.Kind {
	case ast.Scalar:
		return "SCALAR"
	case ast.Interface:
		return "INTERFACE"
	case ast.Union:
		return "UNION"
	case ast.Enum:
		return "ENUM"
	case ast.InputObject:
		return "INPUT_OBJECT"
	default:
		return "OBJECT"
	}
}

func description(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func deprecationReason(directives ast.DirectiveList) any {
	d := directives.ForName("deprecated")
	if d == nil {
		return nil
	}
	if arg := d.Arguments.ForName("reason"); arg != nil && arg.Value != nil {
		return arg.Value.Raw
	}
	return "No longer supported"
}
