// Package schema holds the entity metadata registry: the static descriptors
// that map declared Go struct fields to graph labels, properties, and
// relationships. Descriptors are built once per entity type on first use,
// validated at that point, and immutable afterwards.
//
// Entity types are declared with chained definition builders (see Define) or
// loaded from YAML (see Registry.LoadYAML). Registration itself is cheap and
// performs no validation, so forward and self references are legal: a
// relationship's target is recorded symbolically and resolved on first use.
package schema

import (
	"fmt"
	"reflect"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/dusk-indust/norm/convert"
	"github.com/dusk-indust/norm/relation"
)

// Direction is the declared direction of a relationship.
type Direction int

const (
	// Outgoing matches edges from the owner to the target.
	Outgoing Direction = iota
	// Incoming matches edges from the target to the owner.
	Incoming
	// Both matches edges in either direction; traversal patterns omit the
	// direction constraint entirely.
	Both
)

func (d Direction) String() string {
	switch d {
	case Outgoing:
		return "outgoing"
	case Incoming:
		return "incoming"
	case Both:
		return "both"
	}
	return fmt.Sprintf("Direction(%d)", int(d))
}

// IdentityKind selects how an entity's identity value is produced.
type IdentityKind int

const (
	// StoreAssigned identities are integers assigned by the graph store on
	// first create. The identity field must be *int64.
	StoreAssigned IdentityKind = iota
	// Generated identities are produced by a generator function before the
	// first create and stored as an ordinary property. The identity field
	// must be *string.
	Generated
)

// IdentityDescriptor describes an entity's identity field.
type IdentityDescriptor struct {
	Field     string
	GraphName string // property name; meaningful for Generated only
	Kind      IdentityKind
	Generator func() string // Generated only
}

// PropertyDescriptor maps one struct field to a graph property.
type PropertyDescriptor struct {
	Name      string // logical field name, case-sensitive
	GraphName string
	Type      reflect.Type
	Converter convert.Converter
	Required  bool
	Interned  bool
}

// RelationshipDescriptor maps one Ref/Coll struct field to a graph
// relationship type.
type RelationshipDescriptor struct {
	Field         string
	Type          string // relationship type label
	Direction     Direction
	TargetName    string // symbolic target entity name; empty means "by Go type"
	TargetType    reflect.Type
	Collection    bool // derived from the field's container shape
	Lazy          bool
	Cascade       bool
	CascadeDelete bool

	owner *EntityDescriptor
}

// Target resolves the relationship's target descriptor. Resolution is
// deferred to support forward and self references; an unresolvable target is
// a relationship configuration error at first use.
func (rd *RelationshipDescriptor) Target() (*EntityDescriptor, error) {
	reg := rd.owner.registry
	var (
		td  *EntityDescriptor
		err error
	)
	if rd.TargetName != "" {
		td, err = reg.DescribeName(rd.TargetName)
	} else {
		td, err = reg.Describe(rd.TargetType)
	}
	if err != nil {
		return nil, &RelationshipError{
			Entity: rd.owner.Name,
			Field:  rd.Field,
			Reason: fmt.Sprintf("target type not resolvable: %v", err),
		}
	}
	return td, nil
}

// EntityDescriptor is the immutable metadata for one entity type.
type EntityDescriptor struct {
	Name          string
	Labels        []string // first label is primary
	GoType        reflect.Type
	Identity      IdentityDescriptor
	Properties    []PropertyDescriptor
	Relationships []RelationshipDescriptor

	registry *Registry
}

// PrimaryLabel returns the first declared label.
func (d *EntityDescriptor) PrimaryLabel() string { return d.Labels[0] }

// Property returns the descriptor for the logical field name, matched
// case-sensitively.
func (d *EntityDescriptor) Property(name string) (*PropertyDescriptor, bool) {
	for i := range d.Properties {
		if d.Properties[i].Name == name {
			return &d.Properties[i], true
		}
	}
	return nil, false
}

// Relationship returns the descriptor for the given relationship field.
func (d *EntityDescriptor) Relationship(field string) (*RelationshipDescriptor, bool) {
	for i := range d.Relationships {
		if d.Relationships[i].Field == field {
			return &d.Relationships[i], true
		}
	}
	return nil, false
}

// Registry is the process-wide entity metadata registry. Registration is
// cheap; Describe builds, validates, and memoizes descriptors. The first
// build of each type is guarded so concurrent first use is safe, and built
// descriptors are never mutated.
type Registry struct {
	mu     sync.RWMutex
	defs   map[reflect.Type]*Definition
	byName map[string]*Definition
	bound  map[string]reflect.Type
	cache  map[reflect.Type]*EntityDescriptor

	group singleflight.Group
	conv  *convert.Registry
}

// NewRegistry returns an empty registry backed by the given conversion
// registry, or a fresh one if conv is nil.
func NewRegistry(conv *convert.Registry) *Registry {
	if conv == nil {
		conv = convert.NewRegistry()
	}
	return &Registry{
		defs:   make(map[reflect.Type]*Definition),
		byName: make(map[string]*Definition),
		bound:  make(map[string]reflect.Type),
		cache:  make(map[reflect.Type]*EntityDescriptor),
		conv:   conv,
	}
}

// Converters returns the conversion registry descriptors are built against.
func (r *Registry) Converters() *convert.Registry { return r.conv }

// Register records a definition. Validation happens on first Describe, not
// here, so entities may be registered in any order.
func (r *Registry) Register(def *Definition) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if prev, ok := r.byName[def.name]; ok && prev.goType != def.goType {
		def.conflict = fmt.Sprintf("entity name %q already registered for %s", def.name, prev.goType)
	}
	r.defs[def.goType] = def
	r.byName[def.name] = def
}

// Reset clears every registration, binding, and built descriptor. Reserved
// for test isolation.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.defs = make(map[reflect.Type]*Definition)
	r.byName = make(map[string]*Definition)
	r.bound = make(map[string]reflect.Type)
	r.cache = make(map[reflect.Type]*EntityDescriptor)
}

// Describe returns the memoized descriptor for t, building and validating it
// on first use. t may be the entity struct type or a pointer to it.
func (r *Registry) Describe(t reflect.Type) (*EntityDescriptor, error) {
	if t == nil {
		return nil, &ConfigError{Entity: "<nil>", Reason: "nil entity type"}
	}
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}

	r.mu.RLock()
	d := r.cache[t]
	r.mu.RUnlock()
	if d != nil {
		return d, nil
	}

	key := t.PkgPath() + "." + t.Name()
	v, err, _ := r.group.Do(key, func() (any, error) {
		r.mu.RLock()
		d := r.cache[t]
		def := r.defs[t]
		r.mu.RUnlock()
		if d != nil {
			return d, nil
		}
		if def == nil {
			return nil, &ConfigError{Entity: t.String(), Reason: "entity type not registered"}
		}
		built, err := r.build(def)
		if err != nil {
			return nil, err
		}
		r.mu.Lock()
		r.cache[t] = built
		r.mu.Unlock()
		return built, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*EntityDescriptor), nil
}

// DescribeName resolves a registered entity name to its descriptor.
func (r *Registry) DescribeName(name string) (*EntityDescriptor, error) {
	r.mu.RLock()
	def := r.byName[name]
	r.mu.RUnlock()
	if def == nil {
		return nil, &ConfigError{Entity: name, Reason: "entity name not registered"}
	}
	return r.Describe(def.goType)
}

var (
	int64PtrType  = reflect.TypeFor[*int64]()
	stringPtrType = reflect.TypeFor[*string]()
	fieldIface    = reflect.TypeFor[relation.Field]()
)

// build validates a definition against its Go struct type and produces the
// immutable descriptor.
func (r *Registry) build(def *Definition) (*EntityDescriptor, error) {
	if def.conflict != "" {
		return nil, &ConfigError{Entity: def.name, Reason: def.conflict}
	}
	t := def.goType
	if t.Kind() != reflect.Struct {
		return nil, &ConfigError{Entity: def.name, Reason: "entity type must be a struct"}
	}

	d := &EntityDescriptor{
		Name:     def.name,
		Labels:   append([]string{def.name}, def.labels...),
		GoType:   t,
		registry: r,
	}

	if err := r.buildIdentity(def, d); err != nil {
		return nil, err
	}
	if err := r.buildProperties(def, d); err != nil {
		return nil, err
	}
	if err := r.buildRelationships(def, d); err != nil {
		return nil, err
	}
	return d, nil
}

func (r *Registry) buildIdentity(def *Definition, d *EntityDescriptor) error {
	if def.idConflict {
		return &ConfigError{Entity: def.name, Field: def.id.field, Reason: "more than one identity strategy configured"}
	}
	if def.id.field == "" {
		return &ConfigError{Entity: def.name, Reason: "no identity field configured"}
	}
	f, ok := d.GoType.FieldByName(def.id.field)
	if !ok {
		return &ConfigError{Entity: def.name, Field: def.id.field, Reason: "identity field not found on struct"}
	}
	switch def.id.kind {
	case StoreAssigned:
		if f.Type != int64PtrType {
			return &ConfigError{Entity: def.name, Field: def.id.field, Reason: "store-assigned identity field must be *int64"}
		}
	case Generated:
		if f.Type != stringPtrType {
			return &ConfigError{Entity: def.name, Field: def.id.field, Reason: "generated identity field must be *string"}
		}
	}
	gname := def.id.graphName
	if gname == "" {
		gname = def.id.field
	}
	d.Identity = IdentityDescriptor{
		Field:     def.id.field,
		GraphName: gname,
		Kind:      def.id.kind,
		Generator: def.id.generator,
	}
	return nil
}

func (r *Registry) buildProperties(def *Definition, d *EntityDescriptor) error {
	seen := map[string]string{} // graph name -> logical field
	if d.Identity.Kind == Generated {
		seen[d.Identity.GraphName] = d.Identity.Field
	}
	for _, p := range def.props {
		f, ok := d.GoType.FieldByName(p.field)
		if !ok {
			return &ConfigError{Entity: def.name, Field: p.field, Reason: "property field not found on struct"}
		}
		gname := p.stored
		if gname == "" {
			gname = p.field
		}
		if prev, dup := seen[gname]; dup {
			return &ConfigError{Entity: def.name, Field: p.field,
				Reason: fmt.Sprintf("graph property %q already mapped by field %s", gname, prev)}
		}
		seen[gname] = p.field
		if p.interned && f.Type.Kind() != reflect.String {
			return &ConfigError{Entity: def.name, Field: p.field, Reason: "interning is only legal on string-typed properties"}
		}
		conv := p.converter
		if conv == nil {
			var err error
			conv, err = r.conv.For(f.Type)
			if err != nil {
				return &ConfigError{Entity: def.name, Field: p.field,
					Reason: fmt.Sprintf("no converter for declared type %s", f.Type)}
			}
		}
		d.Properties = append(d.Properties, PropertyDescriptor{
			Name:      p.field,
			GraphName: gname,
			Type:      f.Type,
			Converter: conv,
			Required:  p.required,
			Interned:  p.interned,
		})
	}
	return nil
}

func (r *Registry) buildRelationships(def *Definition, d *EntityDescriptor) error {
	for _, rel := range def.rels {
		f, ok := d.GoType.FieldByName(rel.field)
		if !ok {
			return &ConfigError{Entity: def.name, Field: rel.field, Reason: "relationship field not found on struct"}
		}
		if !reflect.PointerTo(f.Type).Implements(fieldIface) {
			return &ConfigError{Entity: def.name, Field: rel.field,
				Reason: "relationship field must be a relation.Ref or relation.Coll"}
		}
		rf := reflect.New(f.Type).Interface().(relation.Field)
		if rel.direction == Both && rel.cascadeDelete {
			return &RelationshipError{Entity: def.name, Field: rel.field,
				Reason: "cascade delete is unsupported on Both-direction relationships"}
		}
		d.Relationships = append(d.Relationships, RelationshipDescriptor{
			Field:         rel.field,
			Type:          rel.typ,
			Direction:     rel.direction,
			TargetName:    rel.target,
			TargetType:    rf.ElemType(),
			Collection:    !rf.Single(),
			Lazy:          rel.lazy,
			Cascade:       rel.cascade,
			CascadeDelete: rel.cascadeDelete,
			owner:         d,
		})
	}
	return nil
}

// ---------- default registry ----------

var defaultRegistry = NewRegistry(nil)

// Default returns the process-wide registry.
func Default() *Registry { return defaultRegistry }

// Register records a definition in the default registry.
func Register(def *Definition) { defaultRegistry.Register(def) }

// Describe builds or returns the descriptor for t from the default registry.
func Describe(t reflect.Type) (*EntityDescriptor, error) { return defaultRegistry.Describe(t) }

// Reset clears the default registry. Reserved for test isolation.
func Reset() { defaultRegistry.Reset() }
