package relation

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type thing struct{ Name string }

func TestRef_SetMarksDirty(t *testing.T) {
	var r Ref[thing]
	assert.Equal(t, Unloaded, r.State())

	v := &thing{Name: "a"}
	r.Set(v)
	assert.Equal(t, Dirty, r.State())
	assert.Same(t, v, r.Cached())

	// Dirty fields never hit the loader.
	got, err := r.Get(context.Background())
	require.NoError(t, err)
	assert.Same(t, v, got)
}

func TestRef_GetResolvesOnce(t *testing.T) {
	var r Ref[thing]
	calls := 0
	v := &thing{Name: "a"}
	r.Bind(func(context.Context) ([]any, error) {
		calls++
		return []any{v}, nil
	})

	got, err := r.Get(context.Background())
	require.NoError(t, err)
	assert.Same(t, v, got)
	assert.Equal(t, Loaded, r.State())

	_, err = r.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestRef_GetEmptyResult(t *testing.T) {
	var r Ref[thing]
	r.Bind(func(context.Context) ([]any, error) { return nil, nil })

	got, err := r.Get(context.Background())
	require.NoError(t, err)
	assert.Nil(t, got, "no related entity is not an error")
	assert.Equal(t, Loaded, r.State())
}

func TestRef_Unbound(t *testing.T) {
	var r Ref[thing]
	_, err := r.Get(context.Background())
	assert.ErrorIs(t, err, ErrUnbound)
}

func TestRef_LoaderError(t *testing.T) {
	var r Ref[thing]
	boom := errors.New("boom")
	r.Bind(func(context.Context) ([]any, error) { return nil, boom })

	_, err := r.Get(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, Unloaded, r.State(), "a failed resolution can be retried")
}

func TestColl_AddAndSet(t *testing.T) {
	var c Coll[thing]
	a, b := &thing{Name: "a"}, &thing{Name: "b"}

	c.Add(a)
	c.Add(b)
	assert.Equal(t, Dirty, c.State())
	assert.Equal(t, []*thing{a, b}, c.Cached())
	assert.Equal(t, []any{a, b}, c.Targets())

	c.Set([]*thing{b})
	assert.Equal(t, []*thing{b}, c.Cached())
}

func TestColl_GetResolvesOnce(t *testing.T) {
	var c Coll[thing]
	calls := 0
	a, b := &thing{Name: "a"}, &thing{Name: "b"}
	c.Bind(func(context.Context) ([]any, error) {
		calls++
		return []any{a, b}, nil
	})

	got, err := c.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []*thing{a, b}, got)

	_, err = c.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestMarkClean(t *testing.T) {
	var c Coll[thing]
	c.MarkClean()
	assert.Equal(t, Unloaded, c.State(), "only dirty fields transition")

	c.Add(&thing{Name: "a"})
	c.MarkClean()
	assert.Equal(t, Loaded, c.State())
	assert.Len(t, c.Cached(), 1, "values survive the transition")
}
