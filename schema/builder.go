package schema

import (
	"reflect"

	"github.com/google/uuid"

	"github.com/dusk-indust/norm/convert"
)

// Definition is the mutable declaration an application builds before
// registering an entity type. It is plain data: nothing is validated until
// the registry builds the descriptor on first use.
type Definition struct {
	name   string
	goType reflect.Type
	labels []string

	id         idDef
	idConflict bool
	props      []propDef
	rels       []relDef

	conflict string // set by Register on duplicate names
}

type idDef struct {
	field     string
	graphName string
	kind      IdentityKind
	generator func() string
}

type propDef struct {
	field     string
	stored    string
	required  bool
	interned  bool
	converter convert.Converter
}

type relDef struct {
	field         string
	typ           string
	target        string
	direction     Direction
	lazy          bool
	cascade       bool
	cascadeDelete bool
}

// Define starts a definition for entity type T under the given name. The
// name is also the primary label.
func Define[T any](name string) *Definition {
	return newDefinition(name, reflect.TypeFor[T]())
}

func newDefinition(name string, t reflect.Type) *Definition {
	return &Definition{name: name, goType: t}
}

// Label appends additional labels after the primary one.
func (d *Definition) Label(labels ...string) *Definition {
	d.labels = append(d.labels, labels...)
	return d
}

// ID declares a store-assigned identity on the given *int64 field.
func (d *Definition) ID(field string) *Definition {
	if d.id.field != "" {
		d.idConflict = true
		return d
	}
	d.id = idDef{field: field, kind: StoreAssigned}
	return d
}

// GeneratedID declares an externally generated identity on the given *string
// field. A nil generator defaults to UUIDs.
func (d *Definition) GeneratedID(field string, gen func() string) *Definition {
	if d.id.field != "" {
		d.idConflict = true
		return d
	}
	if gen == nil {
		gen = uuid.NewString
	}
	d.id = idDef{field: field, kind: Generated, generator: gen}
	return d
}

// IDStored overrides the graph property name of a generated identity.
func (d *Definition) IDStored(graphName string) *Definition {
	d.id.graphName = graphName
	return d
}

// Prop appends a property declaration.
func (d *Definition) Prop(p *PropBuilder) *Definition {
	d.props = append(d.props, p.def)
	return d
}

// Rel appends a relationship declaration.
func (d *Definition) Rel(r *RelBuilder) *Definition {
	d.rels = append(d.rels, r.def)
	return d
}

// PropBuilder declares one property with chained options.
type PropBuilder struct{ def propDef }

// Prop starts a property declaration for the given struct field. The graph
// property name defaults to the field name.
func Prop(field string) *PropBuilder {
	return &PropBuilder{def: propDef{field: field}}
}

// Stored overrides the graph property name.
func (p *PropBuilder) Stored(name string) *PropBuilder {
	p.def.stored = name
	return p
}

// Required rejects saves while the property holds its type's zero value.
// Declare the field as a pointer when zero (0, false, "") is legitimate data
// that must stay distinguishable from absent.
func (p *PropBuilder) Required() *PropBuilder {
	p.def.required = true
	return p
}

// Interned marks the stored value as a deduplicated string reference. Legal
// on string-typed properties only; behaviorally transparent to comparisons
// and predicates.
func (p *PropBuilder) Interned() *PropBuilder {
	p.def.interned = true
	return p
}

// Convert installs a custom converter, overriding the type-derived default.
func (p *PropBuilder) Convert(c convert.Converter) *PropBuilder {
	p.def.converter = c
	return p
}

// RelBuilder declares one relationship with chained options. Direction
// defaults to Outgoing; cardinality is derived from the field's container
// shape (Ref or Coll), not declared here.
type RelBuilder struct{ def relDef }

// Rel starts a relationship declaration for the given struct field and
// relationship type label.
func Rel(field, typ string) *RelBuilder {
	return &RelBuilder{def: relDef{field: field, typ: typ}}
}

// To sets the symbolic target entity name, allowing forward and self
// references. When omitted, the target resolves by the field's Go type.
func (r *RelBuilder) To(name string) *RelBuilder {
	r.def.target = name
	return r
}

// Incoming matches edges from the target to the owner.
func (r *RelBuilder) Incoming() *RelBuilder {
	r.def.direction = Incoming
	return r
}

// Undirected matches edges in either direction.
func (r *RelBuilder) Undirected() *RelBuilder {
	r.def.direction = Both
	return r
}

// Lazy defers resolution until the field is first read.
func (r *RelBuilder) Lazy() *RelBuilder {
	r.def.lazy = true
	return r
}

// Cascade includes the targets' writes when saving the owner.
func (r *RelBuilder) Cascade() *RelBuilder {
	r.def.cascade = true
	return r
}

// CascadeDelete deletes the target entities when deleting the owner.
// Rejected on Both-direction relationships.
func (r *RelBuilder) CascadeDelete() *RelBuilder {
	r.def.cascadeDelete = true
	return r
}
