package sos

import (
	"math"
	"testing"

	"github.com/specialistvlad/sosappend/internal/module"
	"github.com/specialistvlad/sosappend/internal/sosid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testIndex(t *testing.T, steps int, ids ...sosid.Identifier) *sosid.Index {
	t.Helper()
	ix, err := sosid.New("na", ids, sosid.WithTimeSteps(steps))
	require.NoError(t, err)
	return ix
}

func TestEmpty(t *testing.T) {
	ix := testIndex(t, 3, "A", "B")
	a := Empty("na", module.Constrained, ix)

	assert.Equal(t, uint64(0), a.Version)
	assert.Len(t, a.Groups, len(module.All()))
	require.NoError(t, a.Validate())

	hivdi := a.Group(module.Hivdi)
	require.NotNil(t, hivdi)
	assert.False(t, hivdi.Contributed)

	q := hivdi.Variable("Q")
	require.NotNil(t, q)
	assert.Equal(t, 3, q.Width)
	assert.Len(t, q.Values, 6)
	a0 := hivdi.Variable("A0")
	require.NotNil(t, a0)
	assert.Equal(t, 1, a0.Width)

	for _, g := range a.Groups {
		for _, v := range g.Variables {
			for _, val := range v.Values {
				assert.False(t, val.Set, "%s/%s must start missing", g.Module, v.Name)
			}
		}
	}
}

func TestEmpty_NoTimeDimension(t *testing.T) {
	a := Empty("na", module.Unconstrained, testIndex(t, 0, "A"))
	assert.Equal(t, 1, a.Group(module.Swot).Variable("wse").Width)
}

func TestCloneForNextVersion_IsDecoupled(t *testing.T) {
	ix := testIndex(t, 1, "A", "B")
	prev := Empty("na", module.Constrained, ix, WithAttributes(map[string]string{"title": "SoS"}))
	prev.Version = 2
	prev.Group(module.Hivdi).Variable("A0").Values[0] = Number(1)

	next := CloneForNextVersion(prev)
	assert.Equal(t, uint64(3), next.Version)
	assert.Same(t, prev.Index, next.Index)

	next.Group(module.Hivdi).Variable("A0").Values[0] = Number(42)
	next.Group(module.Hivdi).Attributes["edited"] = "yes"
	next.Attributes["title"] = "changed"
	require.NoError(t, next.SetGroup(next.EmptyGroup(module.Moi)))

	assert.Equal(t, Number(1), prev.Group(module.Hivdi).Variable("A0").Values[0])
	assert.NotContains(t, prev.Group(module.Hivdi).Attributes, "edited")
	assert.Equal(t, "SoS", prev.Attributes["title"])

	back := CloneForNextVersion(prev)
	back.Version = prev.Version
	assert.Equal(t, prev, back)
}

func TestSetGroup(t *testing.T) {
	a := Empty("na", module.Constrained, testIndex(t, 2, "A", "B", "C"))

	g := a.EmptyGroup(module.Moi)
	g.Contributed = true
	g.Variable("q").Values[0] = Number(9)
	require.NoError(t, a.SetGroup(g))
	assert.Same(t, g, a.Group(module.Moi))

	testCases := []struct {
		name  string
		group *Group
		want  error
	}{
		{
			name:  "short variable",
			group: &Group{Module: module.Moi, Variables: []*Variable{{Name: "q", Type: module.Float64, Width: 2, Values: make([]Value, 5)}}},
			want:  ErrShape,
		},
		{
			name:  "zero width",
			group: &Group{Module: module.Moi, Variables: []*Variable{{Name: "q", Type: module.Float64, Width: 0}}},
			want:  ErrShape,
		},
		{
			name:  "unknown module",
			group: &Group{Module: "bogus"},
			want:  module.ErrUnknownModule,
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := a.SetGroup(tc.group)
			require.ErrorIs(t, err, tc.want)
			assert.Same(t, g, a.Group(module.Moi), "failed SetGroup must not replace the group")
		})
	}
}

func TestNormalize(t *testing.T) {
	testCases := []struct {
		name string
		typ  module.DataType
		in   Value
		want Value
	}{
		{"float fill", module.Float64, Number(FillFloat64), Missing()},
		{"float nan", module.Float64, Number(math.NaN()), Missing()},
		{"float data", module.Float64, Number(-999), Number(-999)},
		{"int fill", module.Int32, Number(-999), Missing()},
		{"int data", module.Int32, Number(1), Number(1)},
		{"char fill", module.Char, Text("x"), Missing()},
		{"char data", module.Char, Text("y"), Text("y")},
		{"unset", module.Float64, Missing(), Missing()},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Normalize(tc.typ, tc.in))
		})
	}

	assert.Equal(t, Fill(module.Int32), Export(module.Int32, Missing()))
	assert.Equal(t, Number(3), Export(module.Float64, Number(3)))
}

func TestVersionLabel(t *testing.T) {
	assert.Equal(t, "0000", VersionLabel(0))
	assert.Equal(t, "0042", VersionLabel(42))
	assert.Equal(t, "12345", VersionLabel(12345))
}
