package schema

import (
	"fmt"
	"os"

	"github.com/vektah/gqlparser/v2"
	"github.com/vektah/gqlparser/v2/ast"

	"github.com/gqlgate/gqlgate/pkg/errdefs"
)

// ParseSDL parses GraphQL SDL sources into one schema.
func ParseSDL(sources ...*ast.Source) (*ast.Schema, error) {
	s, err := gqlparser.LoadSchema(sources...)
	if err != nil {
		return nil, &errdefs.ConfigError{Path: "schema", Message: fmt.Sprintf("failed to parse GraphQL schema: %v", err)}
	}
	return s, nil
}

// ReadSDLFiles reads SDL files into parser sources.
func ReadSDLFiles(paths []string) ([]*ast.Source, error) {
	sources := make([]*ast.Source, 0, len(paths))
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read schema file %s: %w", path, err)
		}
		sources = append(sources, &ast.Source{Name: path, Input: string(data)})
	}
	return sources, nil
}

// NamedType returns the innermost named type of t, unwrapping lists and non-null.
func NamedType(t *ast.Type) string {
	for t != nil && t.Elem != nil {
		t = t.Elem
	}
	if t == nil {
		return ""
	}
	return t.NamedType
}

// IsList reports whether t is a list type.
func IsList(t *ast.Type) bool {
	return t != nil && t.Elem != nil
}

// IsScalarType reports whether name is a built-in or custom scalar in sdl.
// Without an SDL only the built-in scalars are recognized.
func IsScalarType(sdl *ast.Schema, name string) bool {
	switch name {
	case "Int", "Float", "String", "Boolean", "ID":
		return true
	}
	if sdl == nil {
		return false
	}
	def := sdl.Types[name]
	return def != nil && def.Kind == ast.Scalar
}

// isIntrospectionField returns true if the field name is a built-in introspection field.
func isIntrospectionField(name string) bool {
	return len(name) >= 2 && name[0] == '_' && name[1] == '_'
}

// mergeSDLFields returns the fields of def in SDL order, taking the mapping
// from configured where present. Configured fields missing from the SDL are
// reported against errs.
func mergeSDLFields(typePath string, def *ast.Definition, configured FieldList, errs *errdefs.ConfigErrors) FieldList {
	byName := make(map[string]FieldDocument, len(configured))
	for _, fd := range configured {
		byName[fd.Name] = fd
	}

	merged := make(FieldList, 0, len(def.Fields))
	for _, f := range def.Fields {
		if isIntrospectionField(f.Name) {
			continue
		}
		fd, ok := byName[f.Name]
		if !ok {
			fd = FieldDocument{Name: f.Name}
		}
		delete(byName, f.Name)

		sdlType := NamedType(f.Type)
		if fd.Type == "" {
			fd.Type = sdlType
		} else if fd.Type != sdlType {
			errs.Add(typePath+".fields."+f.Name, "type %q does not match SDL type %q", fd.Type, sdlType)
		}
		if fd.List == nil {
			list := IsList(f.Type)
			fd.List = &list
		}
		if fd.Nullable == nil {
			nullable := !f.Type.NonNull
			fd.Nullable = &nullable
		}
		merged = append(merged, fd)
	}

	for _, fd := range configured {
		if _, missing := byName[fd.Name]; missing {
			errs.Add(typePath+".fields."+fd.Name, "field is not defined on SDL type %s", def.Name)
		}
	}
	return merged
}

// IsLeafType reports whether name is a scalar or enum type in sdl, or a
// built-in scalar when sdl is nil.
func IsLeafType(sdl *ast.Schema, name string) bool {
	if IsScalarType(sdl, name) {
		return true
	}
	if sdl == nil {
		return false
	}
	def := sdl.Types[name]
	return def != nil && def.Kind == ast.Enum
}
