// Package norm maps typed Go entities onto a property graph store. Entity
// types are declared once against the schema registry; repositories then
// translate saves, loads, deletes, and derived method names into graph
// statements executed by a store.Executor, with an identity map keeping one
// live instance per graph node within each logical operation.
//
// A minimal entity:
//
//	type Person struct {
//		ID      *int64
//		Name    string
//		Age     int
//		Friends norm.Coll[Person]
//	}
//
//	schema.Register(schema.Define[Person]("Person").
//		ID("ID").
//		Prop(schema.Prop("Name").Required()).
//		Prop(schema.Prop("Age")).
//		Rel(schema.Rel("Friends", "FRIEND_OF").To("Person").Lazy().Cascade()))
//
//	people := norm.NewRepository[Person](exec)
package norm

import "github.com/dusk-indust/norm/relation"

// Ref is a to-one relationship field. See relation.Ref.
type Ref[T any] = relation.Ref[T]

// Coll is a to-many relationship field. See relation.Coll.
type Coll[T any] = relation.Coll[T]
