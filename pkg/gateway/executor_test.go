package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/ohler55/ojg/oj"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gqlgate/gqlgate/pkg/backend"
	"github.com/gqlgate/gqlgate/pkg/backend/jsondoc"
	"github.com/gqlgate/gqlgate/pkg/convert"
	"github.com/gqlgate/gqlgate/pkg/errdefs"
	"github.com/gqlgate/gqlgate/pkg/query"
	"github.com/gqlgate/gqlgate/pkg/schema"
)

const cellarJSON = `{
  "beers": [
    {"id": "b1", "name": "Westmalle Tripel", "abv": 9.5, "breweryId": "westmalle",
     "style": {"name": "Tripel", "origin": "Belgium"},
     "ingredients": [{"name": "pilsner malt", "grams": 500}, {"name": "hops", "grams": 20}]},
    {"id": "b2", "name": "Orval", "abv": 6.2, "breweryId": "orval",
     "style": {"name": "Pale Ale", "origin": "Belgium"},
     "ingredients": [{"name": "pale malt", "grams": 400}, {"name": "hops", "grams": 30}, {"name": "candi sugar", "grams": 50}]},
    {"id": "b3", "name": "Westmalle Dubbel", "abv": 7.0, "breweryId": "westmalle",
     "style": null, "ingredients": []}
  ],
  "breweries": [
    {"id": "westmalle", "name": "Westmalle", "city": "Malle"},
    {"id": "orval", "name": "Orval", "city": "Villers-devant-Orval"}
  ]
}`

const cellarSDL = `
type Query {
  beers(filter: BeerFilter, sort: [String!], first: Int, offset: Int, name: String): [Beer!]!
  beer(id: ID!): Beer
  breweries(sort: [String!]): [Brewery!]!
}

type Mutation {
  rate(id: ID!): Boolean
}

input BeerFilter {
  name: String
  abv: Float
  breweryId: ID
}

type Beer {
  id: ID!
  name: String!
  abv: Float
  breweryId: ID
  brewery: Brewery
  style: Style
  ingredients: [Ingredient!]!
  ingredientCount: Int
  totalGrams: Int
  heaviest: Int
}

type Style {
  name: String
  origin: String
}

type Ingredient {
  name: String!
  grams: Int
}

type Brewery {
  id: ID!
  name: String!
  city: String
}
`

const cellarConfig = `
version: "1"
backends:
  cellar:
    type: json
    file: cellar.json
templates:
  beers:
    mimeType: text/html
    template: "<ul>{{#each data.beers}}<li>{{this.name}}</li>{{/each}}</ul>"
types:
  Beer:
    backend: cellar
    keys: [id]
    queryPaths:
      beers: "$.beers[*]"
      beer: "$.beers[*]"
      default: "$.beers[*]"
    fields:
      brewery: {keyField: breweryId}
      ingredientCount: {aggregateOf: ingredients}
      totalGrams: {aggregateOf: ingredients, aggregate: sum, aggregateField: grams}
      heaviest: {aggregateOf: ingredients, aggregate: max, aggregateField: grams}
  Brewery:
    backend: cellar
    keys: [id]
    queryPaths:
      breweries: "$.breweries[*]"
      default: "$.breweries[*]"
`

// fetchLog records the plans a backend received.
type fetchLog struct {
	mu    sync.Mutex
	plans []*query.Plan
}

func (l *fetchLog) count(typeName string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, p := range l.plans {
		if p.TypeName == typeName {
			n++
		}
	}
	return n
}

func parseCellarConfig(t *testing.T) *schema.Configuration {
	t.Helper()
	cfg, err := schema.Parse([]byte("schema: |\n"+indent(cellarSDL)+cellarConfig), "")
	require.NoError(t, err)
	return cfg
}

func indent(s string) string {
	return "  " + strings.ReplaceAll(strings.TrimSpace(s), "\n", "\n  ") + "\n"
}

func newTestExecutor(t *testing.T) (*Executor, *schema.Configuration, *fetchLog) {
	t.Helper()
	cfg := parseCellarConfig(t)
	router := convert.DefaultRouter()
	doc, err := oj.ParseString(cellarJSON)
	require.NoError(t, err)
	store := jsondoc.New(doc, cfg, router, nil)

	log := &fetchLog{}
	reg := backend.NewRegistry()
	require.NoError(t, reg.Register("cellar", backend.FetcherFunc(func(ctx context.Context, plan *query.Plan) ([]backend.Row, error) {
		log.mu.Lock()
		log.plans = append(log.plans, plan)
		log.mu.Unlock()
		return store.Fetch(ctx, plan)
	})))

	exec, err := NewExecutor(cfg, reg, router, nil)
	require.NoError(t, err)
	return exec, cfg, log
}

func dataJSON(t *testing.T, resp *Response) string {
	t.Helper()
	require.Empty(t, resp.Errors)
	data, err := json.Marshal(resp.Data)
	require.NoError(t, err)
	return string(data)
}

func TestExecuteQueries(t *testing.T) {
	exec, _, _ := newTestExecutor(t)

	tests := []struct {
		name     string
		query    string
		vars     map[string]any
		expected string
	}{
		{
			name:  "list sorted descending",
			query: `{ beers(sort: ["-abv"]) { name abv } }`,
			expected: `{"beers":[
				{"name":"Westmalle Tripel","abv":9.5},
				{"name":"Westmalle Dubbel","abv":7},
				{"name":"Orval","abv":6.2}]}`,
		},
		{
			name:     "single object by key",
			query:    `{ beer(id: "b2") { id name __typename } }`,
			expected: `{"beer":{"id":"b2","name":"Orval","__typename":"Beer"}}`,
		},
		{
			name:     "missing object is null",
			query:    `{ beer(id: "nope") { name } }`,
			expected: `{"beer":null}`,
		},
		{
			name:     "field argument filters",
			query:    `{ beers(name: "Orval") { id } }`,
			expected: `{"beers":[{"id":"b2"}]}`,
		},
		{
			name:     "filter argument",
			query:    `{ beers(filter: {breweryId: "westmalle"}, sort: ["name"]) { id } }`,
			expected: `{"beers":[{"id":"b3"},{"id":"b1"}]}`,
		},
		{
			name:     "pagination",
			query:    `{ beers(sort: ["name"], first: 1, offset: 1) { name } }`,
			expected: `{"beers":[{"name":"Westmalle Dubbel"}]}`,
		},
		{
			name:     "integer variable",
			query:    `query($n: Int) { beers(sort: ["name"], first: $n) { id } }`,
			vars:     map[string]any{"n": 2},
			expected: `{"beers":[{"id":"b2"},{"id":"b3"}]}`,
		},
		{
			name:  "aliases and fragments",
			query: `query { favourite: beer(id: "b1") { ...names style { name } ... on Beer { ingredients { name } } } } fragment names on Beer { title: name }`,
			expected: `{"favourite":{
				"title":"Westmalle Tripel",
				"style":{"name":"Tripel"},
				"ingredients":[{"name":"pilsner malt"},{"name":"hops"}]}}`,
		},
		{
			name:     "include directive",
			query:    `query($withAbv: Boolean!) { beer(id: "b3") { name abv @include(if: $withAbv) style { name } } }`,
			vars:     map[string]any{"withAbv": false},
			expected: `{"beer":{"name":"Westmalle Dubbel","style":null}}`,
		},
		{
			name:     "skip directive",
			query:    `{ beer(id: "b2") { name @skip(if: true) id } }`,
			expected: `{"beer":{"id":"b2"}}`,
		},
		{
			name:  "aggregates",
			query: `{ beers(sort: ["name"]) { name ingredientCount totalGrams heaviest } }`,
			expected: `{"beers":[
				{"name":"Orval","ingredientCount":3,"totalGrams":480,"heaviest":400},
				{"name":"Westmalle Dubbel","ingredientCount":0,"totalGrams":null,"heaviest":null},
				{"name":"Westmalle Tripel","ingredientCount":2,"totalGrams":520,"heaviest":500}]}`,
		},
		{
			name:     "root typename",
			query:    `{ __typename breweries(sort: ["name"]) { name } }`,
			expected: `{"__typename":"Query","breweries":[{"name":"Orval"},{"name":"Westmalle"}]}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := exec.Execute(context.Background(), &Request{Query: tt.query, Variables: tt.vars})
			assert.JSONEq(t, tt.expected, dataJSON(t, resp))
		})
	}
}

func TestExecuteReferencesAreBatched(t *testing.T) {
	exec, _, log := newTestExecutor(t)

	resp := exec.Execute(context.Background(), &Request{
		Query: `{ beers(sort: ["id"]) { id brewery { name city } } }`,
	})
	assert.JSONEq(t, `{"beers":[
		{"id":"b1","brewery":{"name":"Westmalle","city":"Malle"}},
		{"id":"b2","brewery":{"name":"Orval","city":"Villers-devant-Orval"}},
		{"id":"b3","brewery":{"name":"Westmalle","city":"Malle"}}]}`, dataJSON(t, resp))

	assert.Equal(t, 1, log.count("Beer"))
	require.Equal(t, 1, log.count("Brewery"))
	for _, p := range log.plans {
		if p.TypeName == "Brewery" {
			assert.Len(t, p.Keys, 2, "duplicate brewery keys collapse")
			assert.Equal(t, schema.DefaultQueryPath, p.QueryName)
		}
	}
}

func TestExecuteKeepsSelectionOrder(t *testing.T) {
	exec, _, _ := newTestExecutor(t)

	resp := exec.Execute(context.Background(), &Request{Query: `{ beer(id: "b2") { name id abv } }`})
	data, err := json.Marshal(resp.Data)
	require.NoError(t, err)
	assert.Equal(t, `{"beer":{"name":"Orval","id":"b2","abv":6.2}}`, string(data))
}

func TestExecuteOperationSelection(t *testing.T) {
	exec, _, _ := newTestExecutor(t)
	doc := `query A { beer(id: "b1") { id } } query B { beer(id: "b2") { id } }`

	resp := exec.Execute(context.Background(), &Request{Query: doc, OperationName: "B"})
	assert.JSONEq(t, `{"beer":{"id":"b2"}}`, dataJSON(t, resp))

	resp = exec.Execute(context.Background(), &Request{Query: doc})
	require.Len(t, resp.Errors, 1)
	assert.Equal(t, errdefs.CodeIllegalArgument, resp.Errors[0].Extensions["code"])
	assert.Nil(t, resp.Data)

	resp = exec.Execute(context.Background(), &Request{Query: doc, OperationName: "C"})
	require.Len(t, resp.Errors, 1)
	assert.Contains(t, resp.Errors[0].Message, `"C"`)
}

func TestExecuteRequestErrors(t *testing.T) {
	exec, _, _ := newTestExecutor(t)

	tests := []struct {
		name  string
		query string
		codes []string
	}{
		{"empty query", "  ", []string{CodeBadRequest}},
		{"syntax error", "{ beers {", []string{CodeParseFailed}},
		{"unknown field", "{ beers { colour } }", []string{CodeValidationFailed, CodeParseFailed}},
		{"mutation", `mutation { rate(id: "b1") }`, []string{errdefs.CodeUnsupportedOperation}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := exec.Execute(context.Background(), &Request{Query: tt.query})
			require.NotEmpty(t, resp.Errors)
			assert.Nil(t, resp.Data)
			assert.Contains(t, tt.codes, resp.Errors[0].Extensions["code"])
		})
	}
}

func TestExecuteVariableErrors(t *testing.T) {
	exec, _, _ := newTestExecutor(t)

	resp := exec.Execute(context.Background(), &Request{
		Query: `query($id: ID!) { beer(id: $id) { name } }`,
	})
	require.NotEmpty(t, resp.Errors)
	assert.Nil(t, resp.Data)
}

func TestExecuteFieldErrors(t *testing.T) {
	cfg := parseCellarConfig(t)
	reg := backend.NewRegistry()
	require.NoError(t, reg.Register("cellar", backend.FetcherFunc(func(context.Context, *query.Plan) ([]backend.Row, error) {
		return nil, errors.New("disk on fire")
	})))
	exec, err := NewExecutor(cfg, reg, convert.DefaultRouter(), nil)
	require.NoError(t, err)

	resp := exec.Execute(context.Background(), &Request{Query: `{ beers { name } root: __typename }`})
	require.Len(t, resp.Errors, 1)
	assert.Equal(t, []any{"beers"}, resp.Errors[0].Path)
	assert.Equal(t, errdefs.CodeInternal, resp.Errors[0].Extensions["code"])
	assert.Contains(t, resp.Errors[0].Message, "disk on fire")

	data, err := json.Marshal(resp.Data)
	require.NoError(t, err)
	assert.JSONEq(t, `{"beers":null,"root":"Query"}`, string(data))
}

func TestExecuteIllegalArgument(t *testing.T) {
	exec, _, _ := newTestExecutor(t)

	resp := exec.Execute(context.Background(), &Request{Query: `{ beers(first: -1) { name } }`})
	require.Len(t, resp.Errors, 1)
	assert.Equal(t, errdefs.CodeIllegalArgument, resp.Errors[0].Extensions["code"])
	assert.Equal(t, []any{"beers"}, resp.Errors[0].Path)
}

func TestExecuteIntrospection(t *testing.T) {
	exec, _, _ := newTestExecutor(t)

	resp := exec.Execute(context.Background(), &Request{Query: `{
		__schema { queryType { name } mutationType { name } subscriptionType { name } }
		__type(name: "Brewery") {
			name
			kind
			fields { name type { kind name ofType { name } } }
		}
		missing: __type(name: "Nope") { name }
	}`})
	assert.JSONEq(t, `{
		"__schema": {"queryType": {"name": "Query"}, "mutationType": {"name": "Mutation"}, "subscriptionType": null},
		"__type": {
			"name": "Brewery",
			"kind": "OBJECT",
			"fields": [
				{"name": "id", "type": {"kind": "NON_NULL", "name": null, "ofType": {"name": "ID"}}},
				{"name": "name", "type": {"kind": "NON_NULL", "name": null, "ofType": {"name": "String"}}},
				{"name": "city", "type": {"kind": "SCALAR", "name": "String", "ofType": null}}
			]
		},
		"missing": null
	}`, dataJSON(t, resp))
}

func TestExecuteIntrospectionInputsAndLists(t *testing.T) {
	exec, _, _ := newTestExecutor(t)

	resp := exec.Execute(context.Background(), &Request{Query: `{
		__type(name: "BeerFilter") { kind inputFields { name } fields { name } }
		query: __type(name: "Query") { fields { name type { kind ofType { kind ofType { kind ofType { name } } } } } }
	}`})
	require.Empty(t, resp.Errors)

	data, err := json.Marshal(resp.Data)
	require.NoError(t, err)
	var got struct {
		Type struct {
			Kind        string              `json:"kind"`
			InputFields []map[string]string `json:"inputFields"`
			Fields      []any               `json:"fields"`
		} `json:"__type"`
		Query struct {
			Fields []struct {
				Name string `json:"name"`
				Type any    `json:"type"`
			} `json:"fields"`
		} `json:"query"`
	}
	require.NoError(t, json.Unmarshal(data, &got))

	assert.Equal(t, "INPUT_OBJECT", got.Type.Kind)
	assert.Equal(t, []map[string]string{{"name": "name"}, {"name": "abv"}, {"name": "breweryId"}}, got.Type.InputFields)
	assert.Nil(t, got.Type.Fields)

	require.Len(t, got.Query.Fields, 3)
	assert.Equal(t, "beers", got.Query.Fields[0].Name)
	assert.Equal(t, map[string]any{
		"kind": "NON_NULL",
		"ofType": map[string]any{
			"kind": "LIST",
			"ofType": map[string]any{
				"kind":   "NON_NULL",
				"ofType": map[string]any{"name": "Beer"},
			},
		},
	}, got.Query.Fields[0].Type)
}

func TestNewExecutorErrors(t *testing.T) {
	t.Run("no schema", func(t *testing.T) {
		cfg, err := schema.Parse([]byte(`
version: "1"
backends:
  cellar: {type: json, file: cellar.json}
types:
  Brewery:
    backend: cellar
    keys: [id]
    queryPaths: {default: "$.breweries[*]"}
    fields:
      id: {type: ID}
`), "")
		require.NoError(t, err)
		_, err = NewExecutor(cfg, backend.NewRegistry(), convert.DefaultRouter(), nil)
		assert.ErrorIs(t, err, errdefs.ErrInvalidConfiguration)
	})

	t.Run("backend not registered", func(t *testing.T) {
		_, err := NewExecutor(parseCellarConfig(t), backend.NewRegistry(), convert.DefaultRouter(), nil)
		assert.ErrorIs(t, err, errdefs.ErrInvalidConfiguration)
	})
}

func TestExecuteConcurrent(t *testing.T) {
	exec, _, _ := newTestExecutor(t)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp := exec.Execute(context.Background(), &Request{Query: `{ beers(sort: ["id"]) { id brewery { id } } }`})
			assert.Empty(t, resp.Errors)
		}()
	}
	wg.Wait()
}

func TestReferenceKey(t *testing.T) {
	key := func(v any) string {
		k, err := referenceKey("id", v)
		require.NoError(t, err)
		return k
	}

	assert.Equal(t, key("7"), key(int64(7)))
	assert.Equal(t, key(int32(7)), key(7.0))
	assert.NotEqual(t, key("7"), key(7.5))
	assert.NotEqual(t, key(nil), key("null"))
	assert.NotEqual(t, key("a&id=b"), key("a"))
}
