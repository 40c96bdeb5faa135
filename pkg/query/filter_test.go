package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gqlgate/gqlgate/pkg/errdefs"
)

// otherFilter is a Filter variant Flatten was not written for.
type otherFilter struct{}

func (otherFilter) filter() {}

func mustFieldFilter(t *testing.T, field string, value any) FieldFilter {
	t.Helper()
	f, err := NewFieldFilter(field, value)
	require.NoError(t, err)
	return f
}

func TestFlattenFieldFilter(t *testing.T) {
	f := mustFieldFilter(t, "name", "IPA")
	got, err := Flatten(f)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.True(t, FilterEqual(f, got[0]))
}

func TestFlattenCompositeIsShallow(t *testing.T) {
	f1 := mustFieldFilter(t, "name", "IPA")
	f2 := NewCompositeFilter(mustFieldFilter(t, "brewery.name", "Brouwerij X"), mustFieldFilter(t, "brewery.city", "Gent"))
	composite := NewCompositeFilter(f1, f2)

	got, err := Flatten(composite)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.True(t, FilterEqual(f1, got[0]))
	assert.True(t, FilterEqual(f2, got[1]))
}

func TestFlattenNil(t *testing.T) {
	got, err := Flatten(nil)
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestFlattenUnsupportedVariant(t *testing.T) {
	_, err := Flatten(otherFilter{})
	require.Error(t, err)
	assert.ErrorIs(t, err, errdefs.ErrUnsupportedOperation)

	var ue *errdefs.UnsupportedError
	require.ErrorAs(t, err, &ue)
	assert.Equal(t, "query.otherFilter", ue.Kind)

	_, err = FlattenDeep(NewCompositeFilter(otherFilter{}))
	assert.ErrorIs(t, err, errdefs.ErrUnsupportedOperation)
}

func TestFlattenDeep(t *testing.T) {
	composite := NewCompositeFilter(
		mustFieldFilter(t, "name", "IPA"),
		NewCompositeFilter(
			mustFieldFilter(t, "brewery.name", "Brouwerij X"),
			NewCompositeFilter(mustFieldFilter(t, "brewery.address.city", "Gent")),
		),
	)

	got, err := FlattenDeep(composite)
	require.NoError(t, err)

	var fields []string
	for _, f := range got {
		fields = append(fields, f.Field())
	}
	assert.Equal(t, []string{"name", "brewery.name", "brewery.address.city"}, fields)
}

func TestFilterFromArgument(t *testing.T) {
	arg := map[string]any{
		"name":    "IPA",
		"brewery": map[string]any{"name": "Brouwerij X"},
	}

	composite, err := FilterFromArgument(arg)
	require.NoError(t, err)

	top, err := Flatten(composite)
	require.NoError(t, err)
	require.Len(t, top, 2)

	// Entries are visited in key order: brewery before name.
	nested, ok := top[0].(CompositeFilter)
	require.True(t, ok, "expected nested composite, got %T", top[0])
	children, err := Flatten(nested)
	require.NoError(t, err)
	require.Len(t, children, 1)
	assert.True(t, FilterEqual(mustFieldFilter(t, "brewery.name", "Brouwerij X"), children[0]))

	assert.True(t, FilterEqual(mustFieldFilter(t, "name", "IPA"), top[1]))
}

func TestFilterFromArgumentRejectsEmptyName(t *testing.T) {
	_, err := FilterFromArgument(map[string]any{"": 1})
	assert.ErrorIs(t, err, errdefs.ErrIllegalArgument)
}

func TestNewFieldFilterValidatesPath(t *testing.T) {
	f := mustFieldFilter(t, "brewery.name", "X")
	assert.Equal(t, []string{"brewery", "name"}, f.Path())

	_, err := NewFieldFilter("brewery..name", "X")
	assert.ErrorIs(t, err, errdefs.ErrIllegalArgument)
}

func TestFilterEqual(t *testing.T) {
	a := NewCompositeFilter(mustFieldFilter(t, "a", 1), mustFieldFilter(t, "b", 2))
	b := NewCompositeFilter(mustFieldFilter(t, "b", 2), mustFieldFilter(t, "a", 1))

	assert.True(t, FilterEqual(a, NewCompositeFilter(mustFieldFilter(t, "a", 1), mustFieldFilter(t, "b", 2))))
	assert.False(t, FilterEqual(a, b))
	assert.False(t, FilterEqual(a, mustFieldFilter(t, "a", 1)))
	assert.True(t, FilterEqual(nil, nil))
	assert.False(t, FilterEqual(otherFilter{}, otherFilter{}))
}
