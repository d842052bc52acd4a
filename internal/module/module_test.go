package module

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseList(t *testing.T) {
	testCases := []struct {
		name     string
		raw      []string
		expected []Name
		wantErr  bool
	}{
		{name: "ordered names", raw: []string{"moi", "hivdi"}, expected: []Name{Moi, Hivdi}},
		{name: "comma separated", raw: []string{"moi, SAD ,hivdi"}, expected: []Name{Moi, Sad, Hivdi}},
		{name: "duplicates preserved", raw: []string{"moi", "moi"}, expected: []Name{Moi, Moi}},
		{name: "empty entries skipped", raw: []string{"", "priors,"}, expected: []Name{Priors}},
		{name: "error - unknown name", raw: []string{"moi", "geobam"}, wantErr: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			names, err := ParseList(tc.raw)
			if tc.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrUnknownModule))
				var unknown *UnknownError
				require.ErrorAs(t, err, &unknown)
				assert.Equal(t, "geobam", unknown.Name)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.expected, names)
		})
	}
}

func TestAll_CoversEveryStageOnce(t *testing.T) {
	names := All()
	require.Len(t, names, 12)

	seen := map[Name]bool{}
	for _, n := range names {
		assert.False(t, seen[n], "duplicate stage %s", n)
		seen[n] = true
		assert.NotEmpty(t, Schema(n), "stage %s has no baseline variables", n)
	}

	// Mutating the returned slice must not affect the canonical order.
	names[0] = "bogus"
	assert.Equal(t, Neobam, All()[0])
}

func TestParseRunType(t *testing.T) {
	rt, err := ParseRunType(" Constrained ")
	require.NoError(t, err)
	assert.Equal(t, Constrained, rt)

	_, err = ParseRunType("partial")
	assert.ErrorIs(t, err, ErrUnknownRunType)
}

func TestLookup(t *testing.T) {
	spec, ok := Lookup(Hivdi, "Q")
	require.True(t, ok)
	assert.True(t, spec.Series)
	assert.Equal(t, Float64, spec.Type)

	_, ok = Lookup(Hivdi, "does_not_exist")
	assert.False(t, ok)
}
