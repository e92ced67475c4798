package norm

import (
	"context"
	"fmt"

	"github.com/dusk-indust/norm/cypher"
	"github.com/dusk-indust/norm/relation"
	"github.com/dusk-indust/norm/schema"
	"github.com/dusk-indust/norm/store"
)

// writeOp is one entry of a save plan.
type writeOp struct {
	create bool // create-node vs update-node
	inst   any
	desc   *schema.EntityDescriptor

	// edge entries
	rel      *schema.RelationshipDescriptor
	from, to any
	fromDesc *schema.EntityDescriptor
	toDesc   *schema.EntityDescriptor
}

// writePlan is the ordered outcome of cascade planning for one save call.
// Node entries execute first, in plan order, then edge entries; an edge is
// only queued after both endpoints' node entries, so every endpoint has a
// determined identity by the time the edge executes.
type writePlan struct {
	nodes []writeOp
	edges []writeOp

	touched []touchedEntity
}

type touchedEntity struct {
	inst any
	desc *schema.EntityDescriptor
}

type savePlanner struct {
	plan    writePlan
	visited map[any]bool // keyed by instance pointer, not identity
}

// planSave walks the instance's cascaded relationship graph depth-first and
// produces the ordered write plan. The visited set is keyed by object
// reference so unsaved instances and cycles are handled: an instance already
// visited in this walk is never re-queued.
func (m *mapper) planSave(root any, d *schema.EntityDescriptor) (*writePlan, error) {
	p := &savePlanner{visited: make(map[any]bool)}
	if err := p.visit(root, d); err != nil {
		return nil, err
	}
	return &p.plan, nil
}

func (p *savePlanner) visit(inst any, d *schema.EntityDescriptor) error {
	if p.visited[inst] {
		return nil
	}
	p.visited[inst] = true
	p.plan.touched = append(p.plan.touched, touchedEntity{inst: inst, desc: d})

	p.plan.nodes = append(p.plan.nodes, writeOp{
		create: identityOf(d, inst) == nil,
		inst:   inst,
		desc:   d,
	})

	var edges []writeOp
	for i := range d.Relationships {
		rel := &d.Relationships[i]
		f := relField(inst, rel)
		if f.State() != relation.Dirty {
			continue
		}
		td, err := rel.Target()
		if err != nil {
			return err
		}
		for _, tgt := range f.Targets() {
			if rel.Cascade {
				if err := p.visit(tgt, td); err != nil {
					return err
				}
			} else if identityOf(td, tgt) == nil {
				return &UnsavedReferenceError{Entity: d.Name, Field: rel.Field, Target: td.Name}
			}
			edges = append(edges, writeOp{
				rel: rel, from: inst, to: tgt, fromDesc: d, toDesc: td,
			})
		}
	}
	p.plan.edges = append(p.plan.edges, edges...)
	return nil
}

// executeSave runs the plan as an ordered sequence of blocking round trips.
// A failure leaves the store in whatever state the completed prefix
// produced; no rollback is attempted here. On full success every touched
// instance carries an identity and its dirty relationship fields move to
// loaded.
func (m *mapper) executeSave(ctx context.Context, plan *writePlan) error {
	for _, op := range plan.nodes {
		if op.create {
			if err := m.createNode(ctx, op); err != nil {
				return err
			}
		} else if err := m.updateNode(ctx, op); err != nil {
			return err
		}
	}
	for _, op := range plan.edges {
		q := cypher.CreateEdge(op.fromDesc, op.toDesc, op.rel,
			identityOf(op.fromDesc, op.from), identityOf(op.toDesc, op.to))
		if _, err := m.exec.Execute(ctx, q.Text, q.Params); err != nil {
			return err
		}
	}
	for _, t := range plan.touched {
		for i := range t.desc.Relationships {
			relField(t.inst, &t.desc.Relationships[i]).MarkClean()
		}
		m.bindLazy(t.desc, t.inst)
	}
	return nil
}

func (m *mapper) createNode(ctx context.Context, op writeOp) error {
	d := op.desc
	props, err := m.marshalProps(d, op.inst)
	if err != nil {
		return err
	}
	if d.Identity.Kind == schema.Generated {
		id := d.Identity.Generator()
		if err := setIdentity(d, op.inst, id); err != nil {
			return err
		}
		props = append([]cypher.Prop{{Name: d.Identity.GraphName, Value: id}}, props...)
	}
	q := cypher.CreateNode(d, props)
	rows, err := m.exec.Execute(ctx, q.Text, q.Params)
	if err != nil {
		return err
	}
	if d.Identity.Kind == schema.StoreAssigned {
		if len(rows) == 0 || len(rows[0]) == 0 {
			return fmt.Errorf("norm: %s: store returned no identity for created node", d.Name)
		}
		id := normalizeID(rows[0][0])
		if err := setIdentity(d, op.inst, id); err != nil {
			return err
		}
	}
	return nil
}

func (m *mapper) updateNode(ctx context.Context, op writeOp) error {
	d := op.desc
	props, err := m.marshalProps(d, op.inst)
	if err != nil {
		return err
	}
	if len(props) == 0 {
		return nil
	}
	q := cypher.UpdateNode(d, identityOf(d, op.inst), props)
	_, err = m.exec.Execute(ctx, q.Text, q.Params)
	return err
}

// planDelete collects the ordered delete statements for one root identity:
// explicit deletion of the root's incident edges for every declared
// relationship descriptor, then the node itself. Deleting never removes the
// other endpoint unless the descriptor opts into CascadeDelete, and cascade
// deletion never follows Both-direction edges. Endpoint discovery for
// cascade deletion happens at plan time, before any edge is removed.
func (m *mapper) planDelete(ctx context.Context, d *schema.EntityDescriptor, id any,
	visited map[sessionKey]bool) ([]cypher.Query, error) {

	key := sessionKey{label: d.PrimaryLabel(), id: id}
	if visited[key] {
		return nil, nil
	}
	visited[key] = true

	var queries []cypher.Query
	for i := range d.Relationships {
		rel := &d.Relationships[i]
		td, err := rel.Target()
		if err != nil {
			return nil, err
		}
		if rel.CascadeDelete {
			q := cypher.Traverse(d, td, rel, id)
			rows, err := m.exec.Execute(ctx, q.Text, q.Params)
			if err != nil {
				return nil, err
			}
			for _, row := range rows {
				node, ok := row[0].(store.Node)
				if !ok {
					return nil, fmt.Errorf("norm: %s.%s: traversal returned %T, want a node",
						d.Name, rel.Field, row[0])
				}
				tid, err := nodeIdentity(td, node)
				if err != nil {
					return nil, err
				}
				sub, err := m.planDelete(ctx, td, tid, visited)
				if err != nil {
					return nil, err
				}
				queries = append(queries, sub...)
			}
		}
		queries = append(queries, cypher.DeleteEdges(d, rel, id))
	}
	queries = append(queries, cypher.DeleteNode(d, id))
	return queries, nil
}
