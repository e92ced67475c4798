// Package relation provides the wrapper types entities use for relationship
// fields. Ref[T] holds a single related entity, Coll[T] a collection. Both
// track an explicit load state instead of intercepting attribute access:
// callers invoke Get to force resolution, and the first Get on an unloaded
// field issues exactly one traversal query.
package relation

import (
	"context"
	"errors"
	"reflect"
)

// State is the load state of a relationship field.
type State int

const (
	// Unloaded means the field was never resolved; Get triggers a query.
	Unloaded State = iota
	// Loaded means the field holds values reconciled with storage.
	Loaded
	// Dirty means the field was assigned in memory and not yet saved.
	Dirty
)

// Loader resolves a relationship field's targets from the graph. It is bound
// to a field by the repository when the owning instance is hydrated.
type Loader func(ctx context.Context) ([]any, error)

// ErrUnbound is returned by Get on an unloaded field that was never attached
// to a repository (for example, on a freshly constructed instance).
var ErrUnbound = errors.New("relation: field not bound to a repository")

// Field is the untyped view of a Ref or Coll used by the mapping engine.
// Both *Ref[T] and *Coll[T] implement it.
type Field interface {
	// State reports the current load state.
	State() State
	// Bind attaches the loader used for lazy resolution.
	Bind(Loader)
	// Targets returns the in-memory target instances (entity pointers).
	Targets() []any
	// SetLoaded installs resolved targets and moves the field to Loaded.
	SetLoaded([]any)
	// MarkClean moves a Dirty field to Loaded after a successful save.
	MarkClean()
	// ElemType returns the target entity struct type.
	ElemType() reflect.Type
	// Single reports whether the field holds at most one target.
	Single() bool
}

// Ref is a to-one relationship field.
type Ref[T any] struct {
	state  State
	value  *T
	loader Loader
}

// Set assigns the target in memory and marks the field dirty.
func (r *Ref[T]) Set(v *T) {
	r.value = v
	r.state = Dirty
}

// Get returns the related entity, resolving it from the graph on first
// access. A nil result with nil error means no related entity exists.
func (r *Ref[T]) Get(ctx context.Context) (*T, error) {
	if r.state == Unloaded {
		if r.loader == nil {
			return nil, ErrUnbound
		}
		targets, err := r.loader(ctx)
		if err != nil {
			return nil, err
		}
		r.SetLoaded(targets)
	}
	return r.value, nil
}

// Cached returns the in-memory value without any I/O. It is nil for an
// unloaded field.
func (r *Ref[T]) Cached() *T { return r.value }

func (r *Ref[T]) State() State  { return r.state }
func (r *Ref[T]) Bind(l Loader) { r.loader = l }
func (r *Ref[T]) Single() bool  { return true }

func (r *Ref[T]) Targets() []any {
	if r.value == nil {
		return nil
	}
	return []any{r.value}
}

func (r *Ref[T]) SetLoaded(targets []any) {
	if len(targets) > 0 {
		r.value = targets[0].(*T)
	} else {
		r.value = nil
	}
	r.state = Loaded
}

func (r *Ref[T]) MarkClean() {
	if r.state == Dirty {
		r.state = Loaded
	}
}

func (r *Ref[T]) ElemType() reflect.Type { return reflect.TypeFor[T]() }

// Coll is a to-many relationship field.
type Coll[T any] struct {
	state  State
	values []*T
	loader Loader
}

// Set replaces the collection in memory and marks the field dirty.
func (c *Coll[T]) Set(vs []*T) {
	c.values = vs
	c.state = Dirty
}

// Add appends a target in memory and marks the field dirty.
func (c *Coll[T]) Add(v *T) {
	c.values = append(c.values, v)
	c.state = Dirty
}

// Get returns the related entities, resolving them from the graph on first
// access. Results keep arrival order and are deduplicated by identity.
func (c *Coll[T]) Get(ctx context.Context) ([]*T, error) {
	if c.state == Unloaded {
		if c.loader == nil {
			return nil, ErrUnbound
		}
		targets, err := c.loader(ctx)
		if err != nil {
			return nil, err
		}
		c.SetLoaded(targets)
	}
	return c.values, nil
}

// Cached returns the in-memory values without any I/O.
func (c *Coll[T]) Cached() []*T { return c.values }

func (c *Coll[T]) State() State  { return c.state }
func (c *Coll[T]) Bind(l Loader) { c.loader = l }
func (c *Coll[T]) Single() bool  { return false }

func (c *Coll[T]) Targets() []any {
	out := make([]any, 0, len(c.values))
	for _, v := range c.values {
		out = append(out, v)
	}
	return out
}

func (c *Coll[T]) SetLoaded(targets []any) {
	c.values = make([]*T, 0, len(targets))
	for _, t := range targets {
		c.values = append(c.values, t.(*T))
	}
	c.state = Loaded
}

func (c *Coll[T]) MarkClean() {
	if c.state == Dirty {
		c.state = Loaded
	}
}

func (c *Coll[T]) ElemType() reflect.Type { return reflect.TypeFor[T]() }
