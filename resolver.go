package norm

import (
	"context"
	"fmt"

	"github.com/dusk-indust/norm/cypher"
	"github.com/dusk-indust/norm/schema"
	"github.com/dusk-indust/norm/store"
)

// resolveEager resolves one relationship field for a set of owners as part
// of the owning read. One owner issues a single traversal; several owners
// issue a single batched traversal with the owner identity projected per
// row, so the query count per requested fetch is independent of fan-out.
func (m *mapper) resolveEager(ctx context.Context, sess *Session, d *schema.EntityDescriptor,
	rel *schema.RelationshipDescriptor, owners []any) error {

	if len(owners) == 0 {
		return nil
	}
	td, err := rel.Target()
	if err != nil {
		return err
	}

	if len(owners) == 1 {
		owner := owners[0]
		id := identityOf(d, owner)
		q := cypher.Traverse(d, td, rel, id)
		rows, err := m.exec.Execute(ctx, q.Text, q.Params)
		if err != nil {
			return err
		}
		targets, err := m.hydrateTargets(sess, td, rows, 0)
		if err != nil {
			return err
		}
		relField(owner, rel).SetLoaded(targets)
		return nil
	}

	byID := make(map[any]any, len(owners))
	ids := make([]any, 0, len(owners))
	for _, owner := range owners {
		id := identityOf(d, owner)
		if _, dup := byID[id]; dup {
			continue
		}
		byID[id] = owner
		ids = append(ids, id)
	}

	q := cypher.TraverseBatch(d, td, rel, ids)
	rows, err := m.exec.Execute(ctx, q.Text, q.Params)
	if err != nil {
		return err
	}

	grouped := make(map[any][]any, len(ids))
	seen := make(map[[2]any]bool, len(rows))
	for _, row := range rows {
		if len(row) < 2 {
			return fmt.Errorf("norm: %s.%s: batched traversal returned %d columns, want 2",
				d.Name, rel.Field, len(row))
		}
		ownerID := normalizeID(row[0])
		node, ok := row[1].(store.Node)
		if !ok {
			return fmt.Errorf("norm: %s.%s: batched traversal returned %T, want a node",
				d.Name, rel.Field, row[1])
		}
		tid, err := nodeIdentity(td, node)
		if err != nil {
			return err
		}
		if seen[[2]any{ownerID, tid}] {
			continue
		}
		seen[[2]any{ownerID, tid}] = true
		inst, err := m.hydrate(sess, td, node)
		if err != nil {
			return err
		}
		grouped[ownerID] = append(grouped[ownerID], inst)
	}

	for id, owner := range byID {
		relField(owner, rel).SetLoaded(grouped[id])
	}
	return nil
}

// normalizeID widens integer identity projections to int64 so they compare
// equal to identity field values regardless of the backend's integer type.
func normalizeID(v store.Value) any {
	switch n := v.(type) {
	case int:
		return int64(n)
	case int32:
		return int64(n)
	default:
		return v
	}
}
