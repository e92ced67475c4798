// Package cypher constructs the canonical graph statements the mapping
// engine emits and parses derived-query method names into query plans. Every
// statement shape the engine can produce lives here; the rest of the module
// never concatenates query text inline.
package cypher

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/dusk-indust/norm/schema"
	"github.com/dusk-indust/norm/store"
)

// Query is executable query text with its parameter map.
type Query struct {
	Text   string
	Params map[string]any
}

// Prop is one graph property value in declaration order.
type Prop struct {
	Name  string
	Value store.Value
}

func labelExpr(d *schema.EntityDescriptor) string {
	return strings.Join(d.Labels, ":")
}

// idClause renders the identity match for variable v bound to parameter p.
func idClause(d *schema.EntityDescriptor, v, p string) string {
	if d.Identity.Kind == schema.Generated {
		return fmt.Sprintf("%s.%s = $%s", v, d.Identity.GraphName, p)
	}
	return fmt.Sprintf("id(%s) = $%s", v, p)
}

// idExpr renders the identity projection for variable v.
func idExpr(d *schema.EntityDescriptor, v string) string {
	if d.Identity.Kind == schema.Generated {
		return v + "." + d.Identity.GraphName
	}
	return "id(" + v + ")"
}

// CreateNode emits node creation with a property map, returning the
// store-assigned identity.
func CreateNode(d *schema.EntityDescriptor, props []Prop) Query {
	params := make(map[string]any, len(props))
	var b strings.Builder
	fmt.Fprintf(&b, "CREATE (n:%s", labelExpr(d))
	if len(props) > 0 {
		b.WriteString(" {")
		for i, p := range props {
			if i > 0 {
				b.WriteString(", ")
			}
			key := fmt.Sprintf("p%d", i)
			fmt.Fprintf(&b, "%s: $%s", p.Name, key)
			params[key] = p.Value
		}
		b.WriteString("}")
	}
	b.WriteString(") RETURN id(n)")
	return Query{Text: b.String(), Params: params}
}

// UpdateNode emits a property update by identity. props must be non-empty.
func UpdateNode(d *schema.EntityDescriptor, id any, props []Prop) Query {
	params := map[string]any{"id": id}
	var b strings.Builder
	fmt.Fprintf(&b, "MATCH (n:%s) WHERE %s SET ", labelExpr(d), idClause(d, "n", "id"))
	for i, p := range props {
		if i > 0 {
			b.WriteString(", ")
		}
		key := fmt.Sprintf("p%d", i)
		fmt.Fprintf(&b, "n.%s = $%s", p.Name, key)
		params[key] = p.Value
	}
	return Query{Text: b.String(), Params: params}
}

// DeleteNode emits node deletion by identity. Incident-edge deletion is
// emitted separately (see DeleteEdges) and executed first.
func DeleteNode(d *schema.EntityDescriptor, id any) Query {
	return Query{
		Text:   fmt.Sprintf("MATCH (n:%s) WHERE %s DELETE n", labelExpr(d), idClause(d, "n", "id")),
		Params: map[string]any{"id": id},
	}
}

// DeleteEdges emits deletion of the owner's incident edges of the
// descriptor's type, honoring its direction. Both-direction descriptors
// delete edges on either side; endpoint entities are never touched.
func DeleteEdges(d *schema.EntityDescriptor, rel *schema.RelationshipDescriptor, id any) Query {
	var pattern string
	switch rel.Direction {
	case schema.Outgoing:
		pattern = fmt.Sprintf("(n:%s)-[r:%s]->()", labelExpr(d), rel.Type)
	case schema.Incoming:
		pattern = fmt.Sprintf("(n:%s)<-[r:%s]-()", labelExpr(d), rel.Type)
	default:
		pattern = fmt.Sprintf("(n:%s)-[r:%s]-()", labelExpr(d), rel.Type)
	}
	return Query{
		Text:   fmt.Sprintf("MATCH %s WHERE %s DELETE r", pattern, idClause(d, "n", "id")),
		Params: map[string]any{"id": id},
	}
}

// CreateEdge emits edge creation between two persisted identities. The edge
// is stored in the descriptor's declared direction; Both-direction
// descriptors store an owner-to-target edge and match it undirected.
func CreateEdge(d, td *schema.EntityDescriptor, rel *schema.RelationshipDescriptor, ownerID, targetID any) Query {
	arrow := fmt.Sprintf("(a)-[:%s]->(b)", rel.Type)
	if rel.Direction == schema.Incoming {
		arrow = fmt.Sprintf("(a)<-[:%s]-(b)", rel.Type)
	}
	return Query{
		Text: fmt.Sprintf("MATCH (a:%s), (b:%s) WHERE %s AND %s CREATE %s",
			labelExpr(d), labelExpr(td), idClause(d, "a", "from"), idClause(td, "b", "to"), arrow),
		Params: map[string]any{"from": ownerID, "to": targetID},
	}
}

// ByID emits a single-node match by identity.
func ByID(d *schema.EntityDescriptor, id any) Query {
	return Query{
		Text:   fmt.Sprintf("MATCH (n:%s) WHERE %s RETURN n", labelExpr(d), idClause(d, "n", "id")),
		Params: map[string]any{"id": id},
	}
}

// All emits a match over every node carrying the entity's labels.
func All(d *schema.EntityDescriptor) Query {
	return Query{Text: fmt.Sprintf("MATCH (n:%s) RETURN n", labelExpr(d)), Params: map[string]any{}}
}

func traversalPattern(d, td *schema.EntityDescriptor, rel *schema.RelationshipDescriptor) string {
	switch rel.Direction {
	case schema.Outgoing:
		return fmt.Sprintf("(a:%s)-[:%s]->(b:%s)", labelExpr(d), rel.Type, labelExpr(td))
	case schema.Incoming:
		return fmt.Sprintf("(a:%s)<-[:%s]-(b:%s)", labelExpr(d), rel.Type, labelExpr(td))
	default:
		return fmt.Sprintf("(a:%s)-[:%s]-(b:%s)", labelExpr(d), rel.Type, labelExpr(td))
	}
}

// Traverse emits the relationship traversal for one owner.
func Traverse(d, td *schema.EntityDescriptor, rel *schema.RelationshipDescriptor, ownerID any) Query {
	return Query{
		Text: fmt.Sprintf("MATCH %s WHERE %s RETURN b",
			traversalPattern(d, td, rel), idClause(d, "a", "owner")),
		Params: map[string]any{"owner": ownerID},
	}
}

// TraverseBatch emits one traversal covering many owners, projecting each
// row's owner identity alongside the target. This is the shape that keeps
// eager fetching at one query per relationship field.
func TraverseBatch(d, td *schema.EntityDescriptor, rel *schema.RelationshipDescriptor, ownerIDs []any) Query {
	var clause string
	if d.Identity.Kind == schema.Generated {
		clause = fmt.Sprintf("a.%s IN $owners", d.Identity.GraphName)
	} else {
		clause = "id(a) IN $owners"
	}
	return Query{
		Text: fmt.Sprintf("MATCH %s WHERE %s RETURN %s, b",
			traversalPattern(d, td, rel), clause, idExpr(d, "a")),
		Params: map[string]any{"owners": ownerIDs},
	}
}

// Render turns a derived query plan and its converted argument values into
// an executable statement.
func Render(d *schema.EntityDescriptor, dq *DerivedQuery, args []store.Value) Query {
	params := make(map[string]any, len(args))
	var where strings.Builder
	for i, pred := range dq.Predicates {
		if i > 0 {
			if dq.Connectives[i-1] == Or {
				where.WriteString(" OR ")
			} else {
				where.WriteString(" AND ")
			}
		}
		key := fmt.Sprintf("p%d", i)
		fmt.Fprintf(&where, "n.%s %s $%s", pred.Property.GraphName, pred.Op.symbol(), key)
		params[key] = args[i]
	}

	var b strings.Builder
	fmt.Fprintf(&b, "MATCH (n:%s)", labelExpr(d))
	if where.Len() > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(where.String())
	}
	switch dq.Verb {
	case VerbFind:
		b.WriteString(" RETURN n")
	case VerbCount:
		b.WriteString(" RETURN count(n)")
	case VerbAvg:
		fmt.Fprintf(&b, " RETURN avg(n.%s)", dq.Aggregate.GraphName)
	case VerbMax:
		fmt.Fprintf(&b, " RETURN max(n.%s)", dq.Aggregate.GraphName)
	case VerbMin:
		fmt.Fprintf(&b, " RETURN min(n.%s)", dq.Aggregate.GraphName)
	case VerbDelete:
		b.WriteString(" DETACH DELETE n")
	}
	return Query{Text: b.String(), Params: params}
}

// ---------- schema DDL ----------

// kuzuType maps a declared Go type to the Kuzu column type used by DDL.
// Timestamps are stored as their canonical string encoding.
func kuzuType(t reflect.Type) string {
	if t == reflect.TypeFor[time.Time]() {
		return "STRING"
	}
	switch t.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return "INT64"
	case reflect.Float32, reflect.Float64:
		return "DOUBLE"
	case reflect.Bool:
		return "BOOLEAN"
	case reflect.Pointer:
		return kuzuType(t.Elem())
	case reflect.Slice:
		return kuzuType(t.Elem()) + "[]"
	default:
		return "STRING"
	}
}

// NodeDDL emits the Kuzu node table for a descriptor. Store-assigned
// identities become a SERIAL primary key; generated identities use their
// string property.
func NodeDDL(d *schema.EntityDescriptor) string {
	var b strings.Builder
	fmt.Fprintf(&b, "CREATE NODE TABLE IF NOT EXISTS %s(", d.PrimaryLabel())
	if d.Identity.Kind == schema.Generated {
		fmt.Fprintf(&b, "%s STRING", d.Identity.GraphName)
	} else {
		b.WriteString("id SERIAL")
	}
	for _, p := range d.Properties {
		fmt.Fprintf(&b, ", %s %s", p.GraphName, kuzuType(p.Type))
	}
	if d.Identity.Kind == schema.Generated {
		fmt.Fprintf(&b, ", PRIMARY KEY(%s))", d.Identity.GraphName)
	} else {
		b.WriteString(", PRIMARY KEY(id))")
	}
	return b.String()
}

// RelDDL emits the Kuzu relationship tables for a descriptor's declared
// relationships. Targets must be resolvable; node tables must be created
// before relationship tables.
func RelDDL(d *schema.EntityDescriptor) ([]string, error) {
	out := make([]string, 0, len(d.Relationships))
	for i := range d.Relationships {
		rel := &d.Relationships[i]
		td, err := rel.Target()
		if err != nil {
			return nil, err
		}
		from, to := d.PrimaryLabel(), td.PrimaryLabel()
		if rel.Direction == schema.Incoming {
			from, to = to, from
		}
		out = append(out, fmt.Sprintf("CREATE REL TABLE IF NOT EXISTS %s(FROM %s TO %s)", rel.Type, from, to))
	}
	return out, nil
}
