package jsondoc

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/cockroachdb/apd/v3"
	"github.com/ohler55/ojg/oj"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gqlgate/gqlgate/pkg/backend"
	"github.com/gqlgate/gqlgate/pkg/convert"
	"github.com/gqlgate/gqlgate/pkg/errdefs"
	"github.com/gqlgate/gqlgate/pkg/query"
	"github.com/gqlgate/gqlgate/pkg/schema"
)

const beersJSON = `{
  "beers": [
    {"identifier": "b1", "name": "Westmalle Tripel", "abv": 9.5, "price": 1.5, "brewery": {"name": "Westmalle"}, "ingredients": [{"name": "malt"}, {"name": "hops"}]},
    {"identifier": "b2", "name": "Orval", "abv": 6.2, "price": 2, "brewery": {"name": "Orval"}, "ingredients": [{"name": "hops"}]},
    {"identifier": "b3", "name": "Duvel", "abv": 8.5, "brewery": {"name": "Moortgat"}, "ingredients": []},
    {"identifier": "b4", "name": "Westmalle Dubbel", "abv": 7, "brewery": {"name": "Westmalle"}}
  ]
}`

const beersConfig = `
version: "1"
backends:
  beers: {type: json, file: beers.json}
types:
  Beer:
    backend: beers
    keys: [identifier]
    queryPaths:
      beers: "$.beers[*]"
      default: "$.beers[*]"
      strong: "$.beers[?(@.abv > 8)]"
    fields:
      identifier: {type: ID}
      name: {type: String}
      abv: {type: Float}
      price: {type: Decimal}
      brewery: {type: Brewery}
      ingredients: {type: Ingredient, list: true}
`

func newStore(t *testing.T) (*Store, *schema.Configuration) {
	t.Helper()
	cfg, err := schema.Parse([]byte(beersConfig), "")
	require.NoError(t, err)
	doc, err := oj.ParseString(beersJSON)
	require.NoError(t, err)
	return New(doc, cfg, convert.DefaultRouter(), nil), cfg
}

func build(t *testing.T, cfg *schema.Configuration, queryName string, args map[string]any) *query.Plan {
	t.Helper()
	b, err := query.NewPlanBuilder(cfg, "Beer", convert.DefaultRouter())
	require.NoError(t, err)
	plan, err := b.Build(queryName, args, []string{"identifier", "name"})
	require.NoError(t, err)
	return plan
}

func identifiers(rows []backend.Row) []any {
	out := make([]any, len(rows))
	for i, r := range rows {
		out[i] = r["identifier"]
	}
	return out
}

func TestFetch(t *testing.T) {
	store, cfg := newStore(t)

	tests := []struct {
		name      string
		queryName string
		args      map[string]any
		want      []any
	}{
		{"all", "beers", nil, []any{"b1", "b2", "b3", "b4"}},
		{"by key", "beers", map[string]any{"identifier": "b2"}, []any{"b2"}},
		{"by field", "beers", map[string]any{"name": "Duvel"}, []any{"b3"}},
		{"number filter", "beers", map[string]any{"abv": float64(7)}, []any{"b4"}},
		{"decimal from float", "beers", map[string]any{"filter": map[string]any{"price": 1.5}}, []any{"b1"}},
		{"decimal from string", "beers", map[string]any{"filter": map[string]any{"price": "1.50"}}, []any{"b1"}},
		{"decimal from integer", "beers", map[string]any{"price": int64(2)}, []any{"b2"}},
		{"decimal in list", "beers", map[string]any{"filter": map[string]any{"price": []any{"2", 1.5}}}, []any{"b1", "b2"}},
		{"in list", "beers", map[string]any{"filter": map[string]any{"identifier": []any{"b1", "b3"}}}, []any{"b1", "b3"}},
		{"nested path", "beers", map[string]any{"filter": map[string]any{"brewery": map[string]any{"name": "Westmalle"}}}, []any{"b1", "b4"}},
		{"path through list", "beers", map[string]any{"filter": map[string]any{"ingredients": map[string]any{"name": "malt"}}}, []any{"b1"}},
		{"sorted descending", "beers", map[string]any{"sort": "-abv"}, []any{"b1", "b3", "b4", "b2"}},
		{"sorted by nested path", "beers", map[string]any{"sort": []any{"brewery.name", "-abv"}}, []any{"b3", "b2", "b1", "b4"}},
		{"paged", "beers", map[string]any{"sort": "name", "first": 2, "offset": 1}, []any{"b2", "b4"}},
		{"first zero", "beers", map[string]any{"first": 0}, []any{}},
		{"offset past end", "beers", map[string]any{"offset": 10}, []any{}},
		{"named query path", "strong", nil, []any{"b1", "b3"}},
		{"no match", "beers", map[string]any{"name": "Chimay"}, []any{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rows, err := store.Fetch(context.Background(), build(t, cfg, tt.queryName, tt.args))
			require.NoError(t, err)
			assert.Equal(t, tt.want, identifiers(rows))
		})
	}
}

func TestFetchBatchKeys(t *testing.T) {
	store, cfg := newStore(t)
	b, err := query.NewPlanBuilder(cfg, "Beer", convert.DefaultRouter())
	require.NoError(t, err)

	plan, err := b.BuildKeyPlan([]any{"b4", "b1", "b4"}, []string{"identifier"})
	require.NoError(t, err)

	rows, err := store.Fetch(context.Background(), plan)
	require.NoError(t, err)
	assert.Equal(t, []any{"b1", "b4"}, identifiers(rows))
}

func TestFetchUnknownQueryPath(t *testing.T) {
	store, cfg := newStore(t)
	_, err := store.Fetch(context.Background(), build(t, cfg, "brewers", nil))
	assert.ErrorIs(t, err, errdefs.ErrIllegalArgument)
}

func TestFetchDoesNotShareRows(t *testing.T) {
	store, cfg := newStore(t)
	plan := build(t, cfg, "beers", map[string]any{"identifier": "b1"})

	rows, err := store.Fetch(context.Background(), plan)
	require.NoError(t, err)
	rows[0]["name"] = "changed"

	again, err := store.Fetch(context.Background(), plan)
	require.NoError(t, err)
	assert.Equal(t, "Westmalle Tripel", again[0]["name"])
}

func TestFetchCachesPrograms(t *testing.T) {
	store, cfg := newStore(t)

	_, err := store.Fetch(context.Background(), build(t, cfg, "beers", map[string]any{"name": "Orval"}))
	require.NoError(t, err)
	_, err = store.Fetch(context.Background(), build(t, cfg, "beers", map[string]any{"name": "Duvel"}))
	require.NoError(t, err)

	store.programMu.RLock()
	defer store.programMu.RUnlock()
	assert.Len(t, store.programCache, 1)
}

func TestFetchCanceled(t *testing.T) {
	store, cfg := newStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := store.Fetch(ctx, build(t, cfg, "beers", nil))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestOpen(t *testing.T) {
	cfg, err := schema.Parse([]byte(beersConfig), "")
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "beers.json")
	require.NoError(t, os.WriteFile(path, []byte(beersJSON), 0o644))

	store, err := Open(path, cfg, convert.DefaultRouter(), nil)
	require.NoError(t, err)

	rows, err := store.Fetch(context.Background(), build(t, cfg, "beers", nil))
	require.NoError(t, err)
	assert.Len(t, rows, 4)

	_, err = Open(filepath.Join(t.TempDir(), "missing.json"), cfg, nil, nil)
	assert.Error(t, err)
}

func TestCompareValues(t *testing.T) {
	assert.Equal(t, 0, compareValues(int64(7), 7.0))
	assert.Equal(t, -1, compareValues(int32(1), 2.5))
	assert.Equal(t, 1, compareValues(nil, "a"))
	assert.Equal(t, -1, compareValues("a", nil))
	assert.Equal(t, -1, compareValues(false, true))
	assert.Equal(t, -1, compareValues("Duvel", "Orval"))

	assert.True(t, equalValues(int64(7), 7))
	assert.False(t, equalValues("7", 7))

	price, _, err := apd.NewFromString("1.50")
	require.NoError(t, err)
	assert.True(t, equalValues(1.5, price))
	assert.True(t, equalValues(price, 1.5))
	assert.False(t, equalValues(int64(2), price))
	assert.False(t, equalValues("1.5", price))
}
