package schema

import (
	"fmt"
	"sort"
	"time"

	"github.com/ohler55/ojg/jp"
	"github.com/vektah/gqlparser/v2/ast"

	"github.com/gqlgate/gqlgate/pkg/errdefs"
)

// validAggregates are the supported aggregate functions.
var validAggregates = map[string]bool{
	AggregateCount: true,
	AggregateSum:   true,
	AggregateMin:   true,
	AggregateMax:   true,
	AggregateAvg:   true,
}

// numericTypes are the scalar types an aggregate field may have.
var numericTypes = map[string]bool{
	"Int":        true,
	"Long":       true,
	"Float":      true,
	"Double":     true,
	"Decimal":    true,
	"BigDecimal": true,
}

// New validates doc against the optional SDL and builds the immutable
// Configuration. All problems found are reported together as
// errdefs.ConfigErrors, which matches ErrInvalidConfiguration.
func New(doc *Document, sdl *ast.Schema) (*Configuration, error) {
	var errs errdefs.ConfigErrors

	if doc.Version != "1" {
		errs.Add("version", "unsupported version %q, expected \"1\"", doc.Version)
	}
	validateBackends(doc.Backends, &errs)
	validateTemplates(doc.Templates, &errs)

	cfg := &Configuration{
		version:   doc.Version,
		sdl:       sdl,
		backends:  make(map[string]BackendConfig, len(doc.Backends)),
		templates: make(map[string]TemplateConfig, len(doc.Templates)),
		types:     make(map[string]*TypeConfiguration, len(doc.Types)),
	}
	for name, b := range doc.Backends {
		if b.Type == BackendSQL && b.Driver == "" {
			b.Driver = "sqlite3"
		}
		cfg.backends[name] = b
	}
	for name, t := range doc.Templates {
		cfg.templates[name] = t
	}

	for name := range doc.Types {
		cfg.typeNames = append(cfg.typeNames, name)
	}
	sort.Strings(cfg.typeNames)

	for _, name := range cfg.typeNames {
		td := doc.Types[name]
		path := "types." + name
		fields := td.Fields
		if sdl != nil {
			def := sdl.Types[name]
			if def == nil || def.Kind != ast.Object {
				errs.Add(path, "type is not an object type in the SDL")
			} else {
				fields = mergeSDLFields(path, def, td.Fields, &errs)
			}
		}
		cfg.types[name] = newTypeConfiguration(name, td, fields, &errs)
	}

	for _, name := range cfg.typeNames {
		validateType(cfg, cfg.types[name], &errs)
	}

	if err := errs.OrNil(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newTypeConfiguration(name string, td TypeDocument, fields FieldList, errs *errdefs.ConfigErrors) *TypeConfiguration {
	tc := &TypeConfiguration{
		name:        name,
		backend:     td.Backend,
		table:       td.Table,
		class:       td.Class,
		keys:        append([]string(nil), td.Keys...),
		fields:      make([]FieldConfiguration, 0, len(fields)),
		fieldIndex:  make(map[string]int, len(fields)),
		queryPaths:  make(map[string]jp.Expr, len(td.QueryPaths)),
		querySource: make(map[string]string, len(td.QueryPaths)),
	}

	for _, fd := range fields {
		if _, dup := tc.fieldIndex[fd.Name]; dup {
			errs.Add(fmt.Sprintf("types.%s.fields.%s", name, fd.Name), "duplicate field")
			continue
		}
		tc.fieldIndex[fd.Name] = len(tc.fields)
		tc.fields = append(tc.fields, FieldConfiguration{
			Name:           fd.Name,
			Type:           fd.Type,
			Nullable:       fd.Nullable == nil || *fd.Nullable,
			List:           fd.List != nil && *fd.List,
			AggregateOf:    fd.AggregateOf,
			Aggregate:      fd.Aggregate,
			AggregateField: fd.AggregateField,
			Column:         fd.Column,
			Predicate:      fd.Predicate,
			KeyField:       fd.KeyField,
		})
	}

	for qname, src := range td.QueryPaths {
		expr, err := jp.ParseString(src)
		if err != nil {
			errs.Add(fmt.Sprintf("types.%s.queryPaths.%s", name, qname), "invalid JSONPath %q: %v", src, err)
			continue
		}
		tc.queryPaths[qname] = expr
		tc.querySource[qname] = src
	}
	return tc
}

func validateBackends(backends map[string]BackendConfig, errs *errdefs.ConfigErrors) {
	for name, b := range backends {
		path := "backends." + name
		switch b.Type {
		case BackendJSON:
			if b.File == "" {
				errs.Add(path+".file", "required for json backends")
			}
		case BackendSQL:
			if b.DSN == "" {
				errs.Add(path+".dsn", "required for sql backends")
			}
		case BackendSPARQL:
			if b.Endpoint == "" {
				errs.Add(path+".endpoint", "required for sparql backends")
			}
			if b.Timeout != "" {
				if _, err := time.ParseDuration(b.Timeout); err != nil {
					errs.Add(path+".timeout", "invalid duration %q", b.Timeout)
				}
			}
		default:
			errs.Add(path+".type", "unknown backend type %q", b.Type)
		}
	}
}

func validateTemplates(templates map[string]TemplateConfig, errs *errdefs.ConfigErrors) {
	for name, t := range templates {
		path := "templates." + name
		if t.MimeType == "" {
			errs.Add(path+".mimeType", "required")
		}
		if (t.Template == "") == (t.File == "") {
			errs.Add(path, "exactly one of template or file is required")
		}
	}
}

func validateType(cfg *Configuration, tc *TypeConfiguration, errs *errdefs.ConfigErrors) {
	path := "types." + tc.name

	backend, ok := cfg.backends[tc.backend]
	switch {
	case tc.backend == "":
		errs.Add(path+".backend", "required")
	case !ok:
		errs.Add(path+".backend", "unknown backend %q", tc.backend)
	case backend.Type == BackendJSON && len(tc.querySource) == 0:
		errs.Add(path+".queryPaths", "at least one query path is required for json backends")
	case backend.Type == BackendSPARQL && tc.class == "":
		errs.Add(path+".class", "required for sparql backends")
	}

	for i, key := range tc.keys {
		f, ok := tc.Field(key)
		switch {
		case !ok:
			errs.Add(fmt.Sprintf("%s.keys[%d]", path, i), "unknown field %q", key)
		case f.List || f.IsAggregate() || f.IsReference():
			errs.Add(fmt.Sprintf("%s.keys[%d]", path, i), "key field %q must be a plain scalar field", key)
		}
	}

	for _, f := range tc.fields {
		fieldPath := path + ".fields." + f.Name
		if f.Type == "" {
			errs.Add(fieldPath+".type", "required")
		}
		if f.IsAggregate() {
			validateAggregate(fieldPath, tc, f, errs)
		} else if f.Aggregate != "" || f.AggregateField != "" {
			errs.Add(fieldPath, "aggregate settings require aggregateOf")
		}
		if f.IsReference() {
			validateReference(fieldPath, cfg, tc, f, errs)
		}
	}
}

// validateAggregate checks the structural prerequisites of an aggregate-of
// field: it must aggregate a list field of the same type, and its own shape
// must fit the aggregate function.
func validateAggregate(fieldPath string, tc *TypeConfiguration, f FieldConfiguration, errs *errdefs.ConfigErrors) {
	target, ok := tc.Field(f.AggregateOf)
	if !ok || !target.List {
		errs.Add(fieldPath, "aggregate field %q: aggregateOf %q must reference a list field of type %s", f.Name, f.AggregateOf, tc.name)
		return
	}
	if f.List {
		errs.Add(fieldPath, "aggregate field %q cannot be a list", f.Name)
	}
	fn := f.AggregateFunction()
	if !validAggregates[fn] {
		errs.Add(fieldPath+".aggregate", "unknown aggregate function %q", fn)
		return
	}
	if fn != AggregateCount && f.AggregateField == "" {
		errs.Add(fieldPath+".aggregateField", "required for aggregate function %q", fn)
	}
	if f.Type != "" && !numericTypes[f.Type] && fn != AggregateMin && fn != AggregateMax {
		errs.Add(fieldPath+".type", "aggregate %q needs a numeric type, got %q", fn, f.Type)
	}
}

func validateReference(fieldPath string, cfg *Configuration, tc *TypeConfiguration, f FieldConfiguration, errs *errdefs.ConfigErrors) {
	local, ok := tc.Field(f.KeyField)
	if !ok {
		errs.Add(fieldPath+".keyField", "unknown field %q", f.KeyField)
	} else if local.List || local.IsReference() || local.IsAggregate() {
		errs.Add(fieldPath+".keyField", "field %q must be a plain scalar field", f.KeyField)
	}
	if f.List {
		errs.Add(fieldPath, "referenced objects cannot be lists")
	}
	target, ok := cfg.types[f.Type]
	if !ok {
		errs.Add(fieldPath+".type", "referenced type %q is not configured", f.Type)
		return
	}
	if len(target.keys) != 1 {
		errs.Add(fieldPath+".type", "referenced type %q must declare exactly one key", f.Type)
	}
}
