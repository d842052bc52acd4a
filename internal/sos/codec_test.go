package sos

import (
	"bytes"
	"testing"
	"time"

	"github.com/specialistvlad/sosappend/internal/module"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"
)

func sampleAggregate(t *testing.T) *Aggregate {
	t.Helper()
	a := Empty("na", module.Unconstrained, testIndex(t, 2, "A", "B"), WithAttributes(map[string]string{"b": "2", "a": "1"}))
	a.Version = 7

	hivdi := a.Group(module.Hivdi)
	hivdi.Contributed = true
	hivdi.Attributes["source"] = "hivdi.json"
	hivdi.Variable("Q").Values[1] = Number(12.5)
	hivdi.Variable("alpha").Values[0] = Number(0.3)

	val := a.Group(module.Validation)
	val.Variable("has_validation").Values[1] = Number(1)
	val.Variables = append(val.Variables, &Variable{
		Name: "flag", Type: module.Char, Width: 1,
		Attributes: map[string]string{}, Values: []Value{Text("q"), Missing()},
	})
	return a
}

func TestCodec_RoundTrip(t *testing.T) {
	written := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	c := Codec{Writer: "worker-1", Now: func() time.Time { return written }}
	a := sampleAggregate(t)

	data, err := c.Encode(a)
	require.NoError(t, err)

	got, header, err := c.Decode(data)
	require.NoError(t, err)
	assert.Equal(t, Format, header.Format)
	assert.Equal(t, "worker-1", header.Writer)
	assert.True(t, written.Equal(header.WrittenAt))

	assert.Equal(t, a.Version, got.Version)
	assert.True(t, a.Index.Equal(got.Index))
	assert.Equal(t, a.Attributes, got.Attributes)
	for _, m := range module.All() {
		assert.Equal(t, a.Group(m), got.Group(m), "group %s", m)
	}
}

func TestCodec_Deterministic(t *testing.T) {
	c := Codec{Writer: "w", Now: func() time.Time { return time.Unix(0, 0) }}
	first, err := c.Encode(sampleAggregate(t))
	require.NoError(t, err)
	second, err := c.Encode(sampleAggregate(t))
	require.NoError(t, err)
	assert.True(t, bytes.Equal(first, second))
}

func TestCodec_FillsGroupsAddedLater(t *testing.T) {
	c := Codec{}
	data, err := c.Encode(sampleAggregate(t))
	require.NoError(t, err)

	var env envelope
	require.NoError(t, msgpack.Unmarshal(data, &env))
	var kept []wireGroup
	for _, g := range env.Aggregate.Groups {
		if g.Module != string(module.Offline) {
			kept = append(kept, g)
		}
	}
	env.Aggregate.Groups = kept
	trimmed, err := msgpack.Marshal(&env)
	require.NoError(t, err)

	got, _, err := c.Decode(trimmed)
	require.NoError(t, err)
	offline := got.Group(module.Offline)
	require.NotNil(t, offline)
	assert.False(t, offline.Contributed)
}

func TestCodec_Rejects(t *testing.T) {
	c := Codec{}
	good, err := c.Encode(sampleAggregate(t))
	require.NoError(t, err)

	mutate := func(f func(*envelope)) []byte {
		var env envelope
		require.NoError(t, msgpack.Unmarshal(good, &env))
		f(&env)
		out, err := msgpack.Marshal(&env)
		require.NoError(t, err)
		return out
	}

	testCases := []struct {
		name string
		data []byte
	}{
		{"garbage", []byte("not msgpack")},
		{"wrong format", mutate(func(e *envelope) { e.Format = "netcdf" })},
		{"bad run type", mutate(func(e *envelope) { e.Aggregate.RunType = "sideways" })},
		{"duplicate ids", mutate(func(e *envelope) { e.Aggregate.ReachIDs = []string{"A", "A"} })},
		{"unknown module", mutate(func(e *envelope) { e.Aggregate.Groups[0].Module = "bogus" })},
		{"short payload", mutate(func(e *envelope) { e.Aggregate.Groups[1].Variables[0].Num = []float64{1} })},
		{"wrong cell count", mutate(func(e *envelope) {
			v := &e.Aggregate.Groups[1].Variables[0]
			v.Set, v.Num = v.Set[:1], v.Num[:1]
		})},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := c.Decode(tc.data)
			assert.ErrorIs(t, err, ErrFormat)
		})
	}
}

func TestCodec_EncodeValidates(t *testing.T) {
	a := sampleAggregate(t)
	delete(a.Groups, module.Sad)
	_, err := Codec{}.Encode(a)
	assert.Error(t, err)
}

func TestCodec_DecodeHeader(t *testing.T) {
	written := time.Date(2026, 5, 4, 3, 2, 1, 0, time.UTC)
	c := Codec{Writer: "w-2", Now: func() time.Time { return written }}
	data, err := c.Encode(sampleAggregate(t))
	require.NoError(t, err)

	h, err := c.DecodeHeader(data)
	require.NoError(t, err)
	assert.Equal(t, "w-2", h.Writer)
	assert.True(t, written.Equal(h.WrittenAt))

	_, err = c.DecodeHeader([]byte{0xc1})
	assert.ErrorIs(t, err, ErrFormat)
}
