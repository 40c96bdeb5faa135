package sparql

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gqlgate/gqlgate/pkg/convert"
	"github.com/gqlgate/gqlgate/pkg/errdefs"
	"github.com/gqlgate/gqlgate/pkg/query"
	"github.com/gqlgate/gqlgate/pkg/schema"
)

const kbConfig = `
version: "1"
backends:
  kb: {type: sparql, endpoint: "http://localhost/sparql", timeout: 2s}
types:
  Beer:
    backend: kb
    class: http://example.org/Beer
    keys: [id]
    fields:
      id: {type: ID}
      name: {type: String, predicate: http://schema.org/name}
      abv: {type: Float, predicate: http://example.org/abv}
      breweryId: {type: ID, predicate: http://example.org/brewery}
      brewery: {type: Brewery, keyField: breweryId}
      tags: {type: String, list: true, predicate: http://example.org/tag}
  Brewery:
    backend: kb
    class: http://example.org/Brewery
    keys: [id]
    fields:
      id: {type: ID}
      name: {type: String, predicate: http://schema.org/name}
`

const beerPatterns = `SELECT ?_s ?name ?abv ?breweryId WHERE {
  ?_s a <http://example.org/Beer> .
  OPTIONAL { ?_s <http://schema.org/name> ?name . }
  OPTIONAL { ?_s <http://example.org/abv> ?abv . }
  OPTIONAL { ?_s <http://example.org/brewery> ?breweryId . }
`

const beerWhere = `?_s a <http://example.org/Beer> . ` +
	`OPTIONAL { ?_s <http://schema.org/name> ?name . } ` +
	`OPTIONAL { ?_s <http://example.org/abv> ?abv . } ` +
	`OPTIONAL { ?_s <http://example.org/brewery> ?breweryId . }`

// pagedPatterns places the subject-paging sub-select ahead of the patterns.
func pagedPatterns(subselect string) string {
	return strings.Replace(beerPatterns, "WHERE {\n", "WHERE {\n  "+subselect+"\n", 1)
}

func loadConfig(t *testing.T) *schema.Configuration {
	t.Helper()
	cfg, err := schema.Parse([]byte(kbConfig), "")
	require.NoError(t, err)
	return cfg
}

func buildPlan(t *testing.T, cfg *schema.Configuration, args map[string]any) *query.Plan {
	t.Helper()
	planner, err := query.NewPlanBuilder(cfg, "Beer", convert.DefaultRouter())
	require.NoError(t, err)
	plan, err := planner.Build("beers", args, []string{"id", "name"})
	require.NoError(t, err)
	return plan
}

func TestBuild(t *testing.T) {
	cfg := loadConfig(t)
	builder := NewBuilder(cfg, convert.DefaultRouter())

	tests := []struct {
		name string
		args map[string]any
		want string
	}{
		{
			name: "no constraints",
			want: beerPatterns + `} ORDER BY ?_s`,
		},
		{
			name: "key binds the subject",
			args: map[string]any{"id": "http://example.org/b1"},
			want: beerPatterns + "  FILTER((?_s = <http://example.org/b1>))\n} ORDER BY ?_s",
		},
		{
			name: "field argument",
			args: map[string]any{"name": "Orval"},
			want: beerPatterns + "  FILTER(?name = \"Orval\")\n} ORDER BY ?_s",
		},
		{
			name: "typed literal",
			args: map[string]any{"abv": 6.2},
			want: beerPatterns + "  FILTER(?abv = \"6.2\"^^<http://www.w3.org/2001/XMLSchema#double>)\n} ORDER BY ?_s",
		},
		{
			name: "escaped string",
			args: map[string]any{"name": "say \"hi\"\n"},
			want: beerPatterns + "  FILTER(?name = \"say \\\"hi\\\"\\n\")\n} ORDER BY ?_s",
		},
		{
			name: "sort and page",
			args: map[string]any{"sort": "-abv", "first": 2, "offset": 4},
			want: pagedPatterns("{ SELECT ?_s (MAX(?abv) AS ?_o0) WHERE { "+beerWhere+" } GROUP BY ?_s ORDER BY DESC(?_o0) ?_s LIMIT 2 OFFSET 4 }") +
				`} ORDER BY DESC(?abv) ?_s`,
		},
		{
			name: "ascending sort pages by minimum",
			args: map[string]any{"sort": []any{"name", "-id"}, "first": 3},
			want: pagedPatterns("{ SELECT ?_s (MIN(?name) AS ?_o0) WHERE { "+beerWhere+" } GROUP BY ?_s ORDER BY ASC(?_o0) DESC(?_s) ?_s LIMIT 3 }") +
				`} ORDER BY ASC(?name) DESC(?_s) ?_s`,
		},
		{
			name: "first zero",
			args: map[string]any{"first": 0},
			want: pagedPatterns("{ SELECT ?_s WHERE { "+beerWhere+" } GROUP BY ?_s ORDER BY ?_s LIMIT 0 }") +
				`} ORDER BY ?_s`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stmt, err := builder.Build(buildPlan(t, cfg, tt.args))
			require.NoError(t, err)
			assert.Equal(t, tt.want, stmt.Query)
		})
	}
}

func TestBuildColumns(t *testing.T) {
	cfg := loadConfig(t)
	stmt, err := NewBuilder(cfg, convert.DefaultRouter()).Build(buildPlan(t, cfg, nil))
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"id":        "_s",
		"name":      "name",
		"abv":       "abv",
		"breweryId": "breweryId",
	}, stmt.Columns)
}

func TestBuildFilters(t *testing.T) {
	cfg := loadConfig(t)
	builder := NewBuilder(cfg, convert.DefaultRouter())

	tests := []struct {
		name string
		args map[string]any
		want string
	}{
		{
			name: "nested path through reference",
			args: map[string]any{"filter": map[string]any{"brewery": map[string]any{"name": "Westmalle"}}},
			want: `EXISTS { ?_s <http://example.org/brewery> ?_n1 . ?_n1 <http://schema.org/name> ?_n2 . FILTER(?_n2 = "Westmalle") }`,
		},
		{
			name: "nested key compares the referenced subject",
			args: map[string]any{"filter": map[string]any{"brewery": map[string]any{"id": "http://example.org/orval"}}},
			want: `EXISTS { ?_s <http://example.org/brewery> ?_n1 . FILTER(?_n1 = <http://example.org/orval>) }`,
		},
		{
			name: "membership",
			args: map[string]any{"filter": map[string]any{"name": []any{"Orval", "Duvel"}}},
			want: `?name IN ("Orval", "Duvel")`,
		},
		{
			name: "empty membership",
			args: map[string]any{"filter": map[string]any{"name": []any{}}},
			want: `FILTER(false)`,
		},
		{
			name: "null means unbound",
			args: map[string]any{"filter": map[string]any{"abv": nil}},
			want: `FILTER(!BOUND(?abv))`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stmt, err := builder.Build(buildPlan(t, cfg, tt.args))
			require.NoError(t, err)
			assert.Contains(t, stmt.Query, tt.want)
		})
	}
}

func TestBuildBatchKeys(t *testing.T) {
	cfg := loadConfig(t)
	planner, err := query.NewPlanBuilder(cfg, "Brewery", convert.DefaultRouter())
	require.NoError(t, err)
	plan, err := planner.BuildKeyPlan([]any{"http://example.org/w", "http://example.org/o"}, []string{"id"})
	require.NoError(t, err)

	stmt, err := NewBuilder(cfg, convert.DefaultRouter()).Build(plan)
	require.NoError(t, err)
	assert.Contains(t, stmt.Query, `FILTER((?_s = <http://example.org/w>) || (?_s = <http://example.org/o>))`)
}

func TestBuildErrors(t *testing.T) {
	cfg := loadConfig(t)
	builder := NewBuilder(cfg, convert.DefaultRouter())

	_, err := builder.Build(buildPlan(t, cfg, map[string]any{"sort": "brewery.name"}))
	assert.ErrorIs(t, err, errdefs.ErrUnsupportedOperation)

	_, err = builder.Build(buildPlan(t, cfg, map[string]any{"id": "http://example.org/<b1>"}))
	assert.ErrorIs(t, err, errdefs.ErrIllegalArgument)

	_, err = builder.Build(&query.Plan{TypeName: "Hop"})
	assert.ErrorIs(t, err, errdefs.ErrInvalidConfiguration)
}

func TestLiteral(t *testing.T) {
	tests := []struct {
		value any
		iri   bool
		want  string
	}{
		{"x", false, `"x"`},
		{"http://example.org/x", true, `<http://example.org/x>`},
		{convert.IRI("http://example.org/x"), false, `<http://example.org/x>`},
		{true, false, `true`},
		{42, false, `42`},
		{int64(-7), false, `-7`},
		{convert.Date{Year: 2024, Month: 1, Day: 31}, false, `"2024-01-31"^^<http://www.w3.org/2001/XMLSchema#date>`},
	}
	for _, tt := range tests {
		got, err := literal(tt.value, tt.iri)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}

	_, err := literal(struct{}{}, false)
	assert.ErrorIs(t, err, errdefs.ErrIllegalArgument)
}
