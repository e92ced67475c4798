package norm

import (
	"context"
	"fmt"
	"reflect"

	"github.com/dusk-indust/norm/convert"
	"github.com/dusk-indust/norm/cypher"
	"github.com/dusk-indust/norm/relation"
	"github.com/dusk-indust/norm/schema"
	"github.com/dusk-indust/norm/store"
)

// mapper holds the non-generic machinery shared by every Repository:
// marshalling, hydration, relationship resolution, and write planning.
type mapper struct {
	exec store.Executor
	reg  *schema.Registry
}

// identityOf returns the instance's identity value, or nil while unset.
func identityOf(d *schema.EntityDescriptor, inst any) any {
	f := reflect.ValueOf(inst).Elem().FieldByName(d.Identity.Field)
	if f.IsNil() {
		return nil
	}
	return f.Elem().Interface()
}

// setIdentity installs the identity value on first persist. An identity is
// immutable for the instance's lifetime, so a second call is a no-op.
func setIdentity(d *schema.EntityDescriptor, inst any, id any) error {
	f := reflect.ValueOf(inst).Elem().FieldByName(d.Identity.Field)
	if !f.IsNil() {
		return nil
	}
	switch d.Identity.Kind {
	case schema.StoreAssigned:
		n, ok := id.(int64)
		if !ok {
			return fmt.Errorf("norm: %s.%s: store returned identity %T, want int64",
				d.Name, d.Identity.Field, id)
		}
		f.Set(reflect.ValueOf(&n))
	case schema.Generated:
		s, ok := id.(string)
		if !ok {
			return fmt.Errorf("norm: %s.%s: generated identity %T, want string",
				d.Name, d.Identity.Field, id)
		}
		f.Set(reflect.ValueOf(&s))
	}
	return nil
}

// nodeIdentity extracts the identity value from a returned node.
func nodeIdentity(d *schema.EntityDescriptor, node store.Node) (any, error) {
	if d.Identity.Kind == schema.Generated {
		raw, ok := node.Props[d.Identity.GraphName]
		if !ok {
			return nil, fmt.Errorf("norm: %s: node %d is missing identity property %s",
				d.Name, node.ID, d.Identity.GraphName)
		}
		s, ok := raw.(string)
		if !ok {
			return nil, fmt.Errorf("norm: %s: identity property %s is %T, want string",
				d.Name, d.Identity.GraphName, raw)
		}
		return s, nil
	}
	return node.ID, nil
}

// relField returns the untyped view of a relationship field on inst.
func relField(inst any, rel *schema.RelationshipDescriptor) relation.Field {
	f := reflect.ValueOf(inst).Elem().FieldByName(rel.Field)
	return f.Addr().Interface().(relation.Field)
}

// marshalProps converts the instance's declared properties to graph values
// in declaration order. Interned string properties pass through the
// process-wide intern pool; the stored value is indistinguishable from an
// ordinary string on read-back.
func (m *mapper) marshalProps(d *schema.EntityDescriptor, inst any) ([]cypher.Prop, error) {
	rv := reflect.ValueOf(inst).Elem()
	props := make([]cypher.Prop, 0, len(d.Properties))
	for i := range d.Properties {
		p := &d.Properties[i]
		fv := rv.FieldByName(p.Name)
		if p.Required && fv.IsZero() {
			return nil, &RequiredPropertyError{Entity: d.Name, Field: p.Name}
		}
		gv, err := p.Converter.ToGraph(fv.Interface())
		if err != nil {
			return nil, fmt.Errorf("norm: %s.%s: %w", d.Name, p.Name, err)
		}
		if p.Interned {
			if s, ok := gv.(string); ok {
				gv = convert.Intern(s)
			}
		}
		props = append(props, cypher.Prop{Name: p.GraphName, Value: gv})
	}
	return props, nil
}

// hydrate materializes a node into an entity instance through the session.
// A node whose identity is already cached returns the cached instance
// untouched: no property re-materialization, no relationship state reset.
func (m *mapper) hydrate(sess *Session, d *schema.EntityDescriptor, node store.Node) (any, error) {
	id, err := nodeIdentity(d, node)
	if err != nil {
		return nil, err
	}
	if cached, ok := sess.Get(d.PrimaryLabel(), id); ok {
		return cached, nil
	}

	pv := reflect.New(d.GoType)
	inst := pv.Interface()
	if err := setIdentity(d, inst, id); err != nil {
		return nil, err
	}
	sess.Put(d.PrimaryLabel(), id, inst)

	rv := pv.Elem()
	for i := range d.Properties {
		p := &d.Properties[i]
		raw, ok := node.Props[p.GraphName]
		if !ok || raw == nil {
			continue
		}
		v, err := p.Converter.FromGraph(raw)
		if err != nil {
			return nil, fmt.Errorf("norm: %s.%s: %w", d.Name, p.Name, err)
		}
		if p.Interned {
			if s, ok := v.(string); ok {
				v = convert.Intern(s)
			}
		}
		rv.FieldByName(p.Name).Set(reflect.ValueOf(v))
	}

	m.bindLazy(d, inst)
	return inst, nil
}

// bindLazy attaches a loader to every relationship field so a later Get on
// an unloaded field issues its one traversal query. Each loader runs in a
// fresh session seeded with the owner, keeping cycles terminating.
func (m *mapper) bindLazy(d *schema.EntityDescriptor, inst any) {
	for i := range d.Relationships {
		rel := &d.Relationships[i]
		f := relField(inst, rel)
		f.Bind(func(ctx context.Context) ([]any, error) {
			td, err := rel.Target()
			if err != nil {
				return nil, err
			}
			id := identityOf(d, inst)
			if id == nil {
				return nil, fmt.Errorf("norm: %s.%s: cannot resolve relationship on an unsaved instance",
					d.Name, rel.Field)
			}
			sess := NewSession()
			sess.Put(d.PrimaryLabel(), id, inst)
			q := cypher.Traverse(d, td, rel, id)
			rows, err := m.exec.Execute(ctx, q.Text, q.Params)
			if err != nil {
				return nil, err
			}
			return m.hydrateTargets(sess, td, rows, 0)
		})
	}
}

// hydrateTargets materializes the node found at column col of each row,
// deduplicating by target identity while preserving arrival order.
func (m *mapper) hydrateTargets(sess *Session, td *schema.EntityDescriptor, rows []store.Row, col int) ([]any, error) {
	var out []any
	seen := make(map[any]bool, len(rows))
	for _, row := range rows {
		node, ok := row[col].(store.Node)
		if !ok {
			return nil, fmt.Errorf("norm: %s: traversal returned %T, want a node", td.Name, row[col])
		}
		id, err := nodeIdentity(td, node)
		if err != nil {
			return nil, err
		}
		if seen[id] {
			continue
		}
		seen[id] = true
		inst, err := m.hydrate(sess, td, node)
		if err != nil {
			return nil, err
		}
		out = append(out, inst)
	}
	return out, nil
}
