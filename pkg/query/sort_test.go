package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gqlgate/gqlgate/pkg/errdefs"
)

func TestParseSort(t *testing.T) {
	tests := []struct {
		name    string
		value   any
		want    []string
		wantErr bool
	}{
		{name: "nil", value: nil, want: nil},
		{name: "single ascending", value: "name", want: []string{"name"}},
		{name: "single descending", value: "-abv", want: []string{"-abv"}},
		{name: "nested path", value: "brewery.name", want: []string{"brewery.name"}},
		{name: "string list", value: []string{"-abv", "name"}, want: []string{"-abv", "name"}},
		{name: "any list", value: []any{"name", "-brewery.name"}, want: []string{"name", "-brewery.name"}},
		{name: "empty", value: "", wantErr: true},
		{name: "empty segment", value: "brewery..name", wantErr: true},
		{name: "non string item", value: []any{1}, wantErr: true},
		{name: "wrong type", value: 42, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseSort(tt.value)
			if tt.wantErr {
				assert.ErrorIs(t, err, errdefs.ErrIllegalArgument)
				return
			}
			require.NoError(t, err)

			var strs []string
			for _, c := range got {
				strs = append(strs, c.String())
			}
			assert.Equal(t, tt.want, strs)
		})
	}
}

func TestSortCriteriaPath(t *testing.T) {
	got, err := ParseSort("-brewery.name")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, []string{"brewery", "name"}, got[0].FieldPath)
	assert.Equal(t, Descending, got[0].Direction)
	assert.Equal(t, "brewery.name", got[0].Path())
}
