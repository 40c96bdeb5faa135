package query

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gqlgate/gqlgate/pkg/convert"
	"github.com/gqlgate/gqlgate/pkg/errdefs"
	"github.com/gqlgate/gqlgate/pkg/schema"
)

const planConfig = `
version: "1"
backends:
  db: {type: sql, dsn: "file:test.db"}
types:
  Beer:
    backend: db
    keys: [brewery, code]
    fields:
      brewery: {type: ID}
      code: {type: Int}
      name: {type: String}
      abv: {type: Float}
      brewedOn: {type: Date}
      breweryRef: {type: Brewery, keyField: brewery}
      ingredients: {type: Ingredient, list: true}
  Brewery:
    backend: db
    keys: [id]
    fields:
      id: {type: ID}
      name: {type: String}
      address: {type: Address}
`

func newBuilder(t *testing.T, typeName string) *PlanBuilder {
	t.Helper()
	cfg, err := schema.Parse([]byte(planConfig), "")
	require.NoError(t, err)
	b, err := NewPlanBuilder(cfg, typeName, convert.DefaultRouter())
	require.NoError(t, err)
	return b
}

func TestBuildCompleteKey(t *testing.T) {
	b := newBuilder(t, "Beer")

	plan, err := b.Build("beer", map[string]any{"code": float64(7), "brewery": "b1"}, []string{"name"})
	require.NoError(t, err)

	assert.Equal(t, "Beer", plan.TypeName)
	assert.Equal(t, "beer", plan.QueryName)
	assert.Empty(t, plan.Filters)
	require.Len(t, plan.Keys, 1)
	assert.Equal(t, OriginRequested, plan.Keys[0].Origin.Kind())

	key, ok := plan.Keys[0].Value.(CompositeKey)
	require.True(t, ok)
	assert.Equal(t, []string{"brewery", "code"}, key.Names())
	code, _ := key.Value("code")
	assert.Equal(t, int32(7), code)
}

func TestBuildPartialKeyBecomesFilters(t *testing.T) {
	b := newBuilder(t, "Beer")

	plan, err := b.Build("beers", map[string]any{"code": float64(7), "name": "IPA"}, nil)
	require.NoError(t, err)

	assert.Empty(t, plan.Keys)
	require.Len(t, plan.Filters, 2)
	assert.True(t, TaggedFilterEqual(Tag[Filter](mustFieldFilter(t, "code", int32(7)), Requested()), plan.Filters[0]))
	assert.True(t, TaggedFilterEqual(Tag[Filter](mustFieldFilter(t, "name", "IPA"), Requested()), plan.Filters[1]))
}

func TestBuildFilterArgument(t *testing.T) {
	b := newBuilder(t, "Beer")

	args := map[string]any{
		"filter": map[string]any{
			"name":       "IPA",
			"breweryRef": map[string]any{"name": "Brouwerij X"},
		},
	}
	plan, err := b.Build("beers", args, []string{"name"})
	require.NoError(t, err)

	require.Len(t, plan.Filters, 1)
	assert.Equal(t, OriginFiltering, plan.Filters[0].Origin.Kind())

	top, err := Flatten(plan.Filters[0].Value)
	require.NoError(t, err)
	assert.Len(t, top, 2)

	require.Len(t, plan.Keys, 1)
	assert.Equal(t, OriginFiltering, plan.Keys[0].Origin.Kind())
	fk, ok := plan.Keys[0].Value.(FilterKey)
	require.True(t, ok)
	assert.Equal(t, "breweryRef.name", fk.DottedPath())
	assert.Equal(t, "Brouwerij X", fk.Value())

	origin, ok := plan.Filters[0].Origin.(Filtering)
	require.True(t, ok)
	assert.True(t, FilterEqual(plan.Filters[0].Value, origin.FilterCriteria()))
}

func TestBuildFilterConvertsValues(t *testing.T) {
	b := newBuilder(t, "Beer")

	args := map[string]any{
		"filter": map[string]any{
			"abv":        []any{float64(5), 6.5},
			"brewedOn":   "2024-01-31",
			"breweryRef": map[string]any{"address": map[string]any{"city": "Gent"}},
		},
	}
	plan, err := b.Build("beers", args, nil)
	require.NoError(t, err)

	leaves, err := FlattenDeep(plan.Filters[0].Value)
	require.NoError(t, err)
	require.Len(t, leaves, 3)

	assert.Equal(t, "abv", leaves[0].Field())
	assert.Equal(t, []any{float64(5), 6.5}, leaves[0].Value())
	assert.Equal(t, "brewedOn", leaves[1].Field())
	assert.Equal(t, convert.Date{Year: 2024, Month: time.January, Day: 31}, leaves[1].Value())
	assert.Equal(t, "breweryRef.address.city", leaves[2].Field())
	assert.Equal(t, "Gent", leaves[2].Value())
}

func TestBuildSortAddsAliasedSelection(t *testing.T) {
	b := newBuilder(t, "Beer")

	args := map[string]any{"sort": []any{"-breweryRef.name", "name"}, "first": 10, "offset": float64(5)}
	plan, err := b.Build("beers", args, []string{"name"})
	require.NoError(t, err)

	require.Len(t, plan.Sort, 2)
	assert.Equal(t, "-breweryRef.name", plan.Sort[0].String())
	assert.Equal(t, 10, plan.Limit)
	assert.True(t, plan.Limited)
	assert.Equal(t, 5, plan.Offset)

	assert.Equal(t, []string{"name", "breweryRef.name"}, plan.Fields())
	assert.Equal(t, OriginRequested, plan.Selection[0].Origin.Kind())
	assert.Equal(t, OriginSorting, plan.Selection[1].Origin.Kind())

	alias, ok := plan.SortAlias("breweryRef.name")
	require.True(t, ok)
	assert.Equal(t, "_sort0", alias)

	_, ok = plan.SortAlias("name")
	assert.False(t, ok)
}

func TestBuildErrors(t *testing.T) {
	b := newBuilder(t, "Beer")

	tests := []struct {
		name    string
		args    map[string]any
		wantErr error
	}{
		{"unknown argument", map[string]any{"color": "amber"}, errdefs.ErrInvalidConfiguration},
		{"unknown filter field", map[string]any{"filter": map[string]any{"color": "amber"}}, errdefs.ErrInvalidConfiguration},
		{"unknown nested field", map[string]any{"filter": map[string]any{"breweryRef": map[string]any{"color": "x"}}}, errdefs.ErrInvalidConfiguration},
		{"unknown sort field", map[string]any{"sort": "color"}, errdefs.ErrInvalidConfiguration},
		{"list field argument", map[string]any{"ingredients": "hops"}, errdefs.ErrIllegalArgument},
		{"reference argument", map[string]any{"breweryRef": "b1"}, errdefs.ErrIllegalArgument},
		{"sort by reference", map[string]any{"sort": "breweryRef"}, errdefs.ErrIllegalArgument},
		{"negative first", map[string]any{"first": -1}, errdefs.ErrIllegalArgument},
		{"fractional offset", map[string]any{"offset": 1.5}, errdefs.ErrIllegalArgument},
		{"filter not an object", map[string]any{"filter": "name"}, errdefs.ErrIllegalArgument},
		{"unparseable value", map[string]any{"code": "seven"}, errdefs.ErrIllegalArgument},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := b.Build("beers", tt.args, nil)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestBuildKeyPlan(t *testing.T) {
	b := newBuilder(t, "Brewery")

	plan, err := b.BuildKeyPlan([]any{"b1", "b2", "b1"}, []string{"id", "name"})
	require.NoError(t, err)

	assert.Equal(t, schema.DefaultQueryPath, plan.QueryName)
	require.Len(t, plan.Keys, 2)
	assert.Equal(t, `composite:id="b1"`, KeyString(plan.Keys[0].Value))
	assert.Equal(t, `composite:id="b2"`, KeyString(plan.Keys[1].Value))

	_, err = newBuilder(t, "Beer").BuildKeyPlan([]any{"x"}, nil)
	assert.ErrorIs(t, err, errdefs.ErrInvalidConfiguration)
}

func TestPlanWithKeys(t *testing.T) {
	b := newBuilder(t, "Brewery")
	plan, err := b.Build("breweries", map[string]any{"name": "X"}, []string{"id"})
	require.NoError(t, err)

	k := NewCompositeKey(mustFieldKey(t, "id", "b1"))
	batched := plan.WithKeys(Tag[Key](k, Requested()), Tag[Key](k, Requested()))
	assert.Len(t, batched.Keys, 1)
	assert.Empty(t, plan.Keys)
	assert.Len(t, batched.Filters, 1)
}

func TestNewPlanBuilderUnknownType(t *testing.T) {
	cfg, err := schema.Parse([]byte(planConfig), "")
	require.NoError(t, err)
	_, err = NewPlanBuilder(cfg, "Hop", nil)
	assert.ErrorIs(t, err, errdefs.ErrInvalidConfiguration)
}

func TestBuildFirstZeroLimits(t *testing.T) {
	b := newBuilder(t, "Beer")

	plan, err := b.Build("beers", map[string]any{"first": 0}, nil)
	require.NoError(t, err)
	assert.True(t, plan.Limited)
	assert.Equal(t, 0, plan.Limit)

	plan, err = b.Build("beers", nil, nil)
	require.NoError(t, err)
	assert.False(t, plan.Limited)
}
