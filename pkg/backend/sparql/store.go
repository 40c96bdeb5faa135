package sparql

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/gqlgate/gqlgate/pkg/backend"
	"github.com/gqlgate/gqlgate/pkg/convert"
	"github.com/gqlgate/gqlgate/pkg/logging"
	"github.com/gqlgate/gqlgate/pkg/query"
	"github.com/gqlgate/gqlgate/pkg/schema"
)

// datatypeScalars maps XML Schema datatypes to the scalar names whose
// converters parse them.
var datatypeScalars = map[string]string{
	xsd + "string":             "String",
	xsd + "boolean":            "Boolean",
	xsd + "byte":               "Byte",
	xsd + "short":              "Short",
	xsd + "int":                "Int",
	xsd + "integer":            "Long",
	xsd + "long":               "Long",
	xsd + "nonNegativeInteger": "Long",
	xsd + "decimal":            "Decimal",
	xsd + "double":             "Double",
	xsd + "float":              "Float32",
	xsd + "date":               "Date",
	xsd + "dateTime":           "DateTime",
	xsd + "anyURI":             "IRI",
}

// Store runs compiled plans against a SPARQL endpoint.
type Store struct {
	client  *Client
	builder *Builder
	cfg     *schema.Configuration
	router  *convert.Router
	logger  *slog.Logger
}

// New returns a Store querying through client.
func New(client *Client, cfg *schema.Configuration, router *convert.Router, logger *slog.Logger) *Store {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Store{
		client:  client,
		builder: NewBuilder(cfg, router),
		cfg:     cfg,
		router:  router,
		logger:  logger,
	}
}

// Fetch compiles plan, runs it and decodes one row per subject. When a
// multi-valued predicate yields several solutions for a subject the first
// one wins. Paging applies to subjects, not solutions.
func (s *Store) Fetch(ctx context.Context, plan *query.Plan) ([]backend.Row, error) {
	stmt, err := s.builder.Build(plan)
	if err != nil {
		return nil, err
	}
	s.logger.Debug("sparql fetch", "type", plan.TypeName, "endpoint", s.client.Endpoint())

	results, err := s.client.Select(ctx, stmt.Query)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", plan.TypeName, err)
	}

	typ, _ := s.cfg.Type(plan.TypeName)
	subject := subjectVar[1:]
	seen := make(map[string]bool)
	out := []backend.Row{}
	for _, binding := range results.Results.Bindings {
		if id, ok := binding[subject]; ok {
			if seen[id.Value] {
				continue
			}
			seen[id.Value] = true
		}
		row := make(backend.Row, len(stmt.Columns))
		for field, v := range stmt.Columns {
			term, ok := binding[v]
			if !ok {
				row[field] = nil
				continue
			}
			f, _ := typ.Field(field)
			value, err := s.decode(term, f.Type)
			if err != nil {
				return nil, fmt.Errorf("decode %s.%s: %w", plan.TypeName, field, err)
			}
			row[field] = value
		}
		out = append(out, row)
	}
	return out, nil
}

// decode converts a result term to the native value of scalar typeName.
// Without a converter for typeName the literal's datatype decides.
func (s *Store) decode(t Term, typeName string) (any, error) {
	if t.Type == "bnode" {
		return "_:" + t.Value, nil
	}
	if s.router == nil {
		return t.Value, nil
	}
	if s.router.HasType(typeName) {
		return s.router.ConvertToValue(t.Value, typeName)
	}
	if name, ok := datatypeScalars[t.Datatype]; ok && s.router.HasType(name) {
		return s.router.ConvertToValue(t.Value, name)
	}
	return t.Value, nil
}
