package convert

import (
	"reflect"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// roundTrip pushes v through ToGraph and FromGraph for its own type and
// returns the rehydrated value.
func roundTrip(t *testing.T, v any) any {
	t.Helper()
	reg := NewRegistry()
	conv, err := reg.For(reflect.TypeOf(v))
	require.NoError(t, err)
	gv, err := conv.ToGraph(v)
	require.NoError(t, err)
	out, err := conv.FromGraph(gv)
	require.NoError(t, err)
	return out
}

func TestRoundTrip_Primitives(t *testing.T) {
	assert.Equal(t, int(42), roundTrip(t, int(42)))
	assert.Equal(t, int32(-7), roundTrip(t, int32(-7)))
	assert.Equal(t, int64(1<<40), roundTrip(t, int64(1<<40)))
	assert.Equal(t, uint16(65535), roundTrip(t, uint16(65535)))
	assert.Equal(t, 3.25, roundTrip(t, 3.25))
	assert.Equal(t, true, roundTrip(t, true))
	assert.Equal(t, "hello", roundTrip(t, "hello"))
}

func TestRoundTrip_NamedStringType(t *testing.T) {
	type Kind string
	got := roundTrip(t, Kind("widget"))
	assert.Equal(t, Kind("widget"), got)
}

func TestRoundTrip_Timestamp(t *testing.T) {
	// Sub-second precision must survive the canonical string encoding.
	ts := time.Date(2024, 3, 9, 14, 30, 15, 123456789, time.UTC)
	got := roundTrip(t, ts)
	assert.Equal(t, ts, got)
}

func TestTimestamp_EncodedAsCanonicalString(t *testing.T) {
	reg := NewRegistry()
	conv, err := reg.For(reflect.TypeOf(time.Time{}))
	require.NoError(t, err)

	gv, err := conv.ToGraph(time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, "2024-01-02T03:04:05Z", gv)
}

func TestRoundTrip_SliceAndMap(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, roundTrip(t, []string{"a", "b"}))
	assert.Equal(t, []int{1, 2, 3}, roundTrip(t, []int{1, 2, 3}))
	assert.Equal(t, map[string]int64{"x": 1}, roundTrip(t, map[string]int64{"x": 1}))
}

func TestRoundTrip_OptionalPointer(t *testing.T) {
	n := 7
	got := roundTrip(t, &n)
	require.IsType(t, (*int)(nil), got)
	assert.Equal(t, 7, *got.(*int))

	// nil pointer encodes as nil and decodes back to a typed nil.
	reg := NewRegistry()
	conv, err := reg.For(reflect.TypeOf((*int)(nil)))
	require.NoError(t, err)
	gv, err := conv.ToGraph((*int)(nil))
	require.NoError(t, err)
	assert.Nil(t, gv)
	out, err := conv.FromGraph(gv)
	require.NoError(t, err)
	assert.Nil(t, out.(*int))
}

type color int

const (
	red color = iota
	green
)

func TestEnum_EncodesAsName(t *testing.T) {
	conv := Enum(map[color]string{red: "red", green: "green"})

	gv, err := conv.ToGraph(green)
	require.NoError(t, err)
	assert.Equal(t, "green", gv)

	out, err := conv.FromGraph(gv)
	require.NoError(t, err)
	assert.Equal(t, green, out)

	_, err = conv.FromGraph("magenta")
	assert.True(t, IsError(err))
}

func TestConversionError_NamesRuntimeType(t *testing.T) {
	reg := NewRegistry()
	conv, err := reg.For(reflect.TypeOf(int(0)))
	require.NoError(t, err)

	_, err = conv.ToGraph("not an int")
	require.Error(t, err)
	assert.True(t, IsError(err))
	assert.Contains(t, err.Error(), "string")
}

func TestFor_UnsupportedType(t *testing.T) {
	reg := NewRegistry()
	_, err := reg.For(reflect.TypeOf(make(chan int)))
	assert.True(t, IsError(err))
}

func TestRegister_CustomOverridesDefault(t *testing.T) {
	reg := NewRegistry()
	reg.Register(reflect.TypeOf(color(0)), Enum(map[color]string{red: "red"}))

	conv, err := reg.For(reflect.TypeOf(color(0)))
	require.NoError(t, err)
	gv, err := conv.ToGraph(red)
	require.NoError(t, err)
	assert.Equal(t, "red", gv)
}

func TestIntern_TransparentToEquality(t *testing.T) {
	a := Intern("shared")
	b := Intern("sha" + "red")
	assert.Equal(t, a, b)
	assert.Equal(t, "shared", a)
}
