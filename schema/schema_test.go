package schema

import (
	"reflect"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dusk-indust/norm/relation"
)

type person struct {
	ID      *int64
	Name    string
	Age     int
	Friends relation.Coll[person]
	Pet     relation.Ref[animal]
}

type animal struct {
	ID   *int64
	Name string
}

type note struct {
	ID   *string
	Body string
}

func personDef() *Definition {
	return Define[person]("Person").
		Label("Human").
		ID("ID").
		Prop(Prop("Name").Required().Interned()).
		Prop(Prop("Age").Stored("age")).
		Rel(Rel("Friends", "FRIEND_OF").To("Person").Lazy().Cascade()).
		Rel(Rel("Pet", "OWNS").To("Animal"))
}

func animalDef() *Definition {
	return Define[animal]("Animal").ID("ID").Prop(Prop("Name"))
}

func TestDescribe_BuildsDescriptor(t *testing.T) {
	reg := NewRegistry(nil)
	reg.Register(personDef())
	reg.Register(animalDef())

	d, err := reg.Describe(reflect.TypeFor[person]())
	require.NoError(t, err)

	assert.Equal(t, []string{"Person", "Human"}, d.Labels)
	assert.Equal(t, "Person", d.PrimaryLabel())
	assert.Equal(t, "ID", d.Identity.Field)
	assert.Equal(t, StoreAssigned, d.Identity.Kind)

	require.Len(t, d.Properties, 2)
	assert.Equal(t, "Name", d.Properties[0].Name)
	assert.True(t, d.Properties[0].Required)
	assert.True(t, d.Properties[0].Interned)
	assert.Equal(t, "age", d.Properties[1].GraphName)

	require.Len(t, d.Relationships, 2)
	friends := d.Relationships[0]
	assert.Equal(t, "FRIEND_OF", friends.Type)
	assert.True(t, friends.Collection)
	assert.True(t, friends.Lazy)
	assert.True(t, friends.Cascade)
	assert.Equal(t, Outgoing, friends.Direction)
	assert.False(t, d.Relationships[1].Collection)
}

func TestDescribe_PointerTypeNormalized(t *testing.T) {
	reg := NewRegistry(nil)
	reg.Register(personDef())
	reg.Register(animalDef())

	d1, err := reg.Describe(reflect.TypeFor[person]())
	require.NoError(t, err)
	d2, err := reg.Describe(reflect.TypeFor[*person]())
	require.NoError(t, err)
	assert.Same(t, d1, d2)
}

func TestDescribe_Memoized(t *testing.T) {
	reg := NewRegistry(nil)
	reg.Register(personDef())
	reg.Register(animalDef())

	d1, err := reg.Describe(reflect.TypeFor[person]())
	require.NoError(t, err)
	d2, err := reg.Describe(reflect.TypeFor[person]())
	require.NoError(t, err)
	assert.Same(t, d1, d2)
}

func TestDescribe_ConcurrentFirstUse(t *testing.T) {
	reg := NewRegistry(nil)
	reg.Register(personDef())
	reg.Register(animalDef())

	const n = 16
	descs := make([]*EntityDescriptor, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			d, err := reg.Describe(reflect.TypeFor[person]())
			assert.NoError(t, err)
			descs[i] = d
		}(i)
	}
	wg.Wait()
	for i := 1; i < n; i++ {
		assert.Same(t, descs[0], descs[i])
	}
}

func TestDescribe_NotRegistered(t *testing.T) {
	reg := NewRegistry(nil)
	_, err := reg.Describe(reflect.TypeFor[person]())
	assert.True(t, IsConfig(err))
}

func TestDescribe_GeneratedIdentity(t *testing.T) {
	reg := NewRegistry(nil)
	reg.Register(Define[note]("Note").GeneratedID("ID", nil).Prop(Prop("Body")))

	d, err := reg.Describe(reflect.TypeFor[note]())
	require.NoError(t, err)
	assert.Equal(t, Generated, d.Identity.Kind)
	require.NotNil(t, d.Identity.Generator)
	id := d.Identity.Generator()
	assert.NotEmpty(t, id)
	assert.NotEqual(t, id, d.Identity.Generator(), "generator must produce fresh identities")
}

func TestValidation_Errors(t *testing.T) {
	tests := []struct {
		name string
		def  func() *Definition
		want string
	}{
		{
			name: "no identity",
			def: func() *Definition {
				return Define[person]("Person").Prop(Prop("Name"))
			},
			want: "no identity field",
		},
		{
			name: "two identity strategies",
			def: func() *Definition {
				return Define[person]("Person").ID("ID").GeneratedID("ID", nil)
			},
			want: "more than one identity strategy",
		},
		{
			name: "identity field missing",
			def: func() *Definition {
				return Define[person]("Person").ID("Missing")
			},
			want: "identity field not found",
		},
		{
			name: "store-assigned identity wrong type",
			def: func() *Definition {
				return Define[person]("Person").ID("Name")
			},
			want: "must be *int64",
		},
		{
			name: "property field missing",
			def: func() *Definition {
				return Define[person]("Person").ID("ID").Prop(Prop("Nope"))
			},
			want: "property field not found",
		},
		{
			name: "duplicate graph property name",
			def: func() *Definition {
				return Define[person]("Person").ID("ID").
					Prop(Prop("Name").Stored("x")).
					Prop(Prop("Age").Stored("x"))
			},
			want: "already mapped",
		},
		{
			name: "interning on non-string",
			def: func() *Definition {
				return Define[person]("Person").ID("ID").Prop(Prop("Age").Interned())
			},
			want: "only legal on string-typed",
		},
		{
			name: "relationship field not a wrapper",
			def: func() *Definition {
				return Define[person]("Person").ID("ID").Rel(Rel("Name", "KNOWS"))
			},
			want: "must be a relation.Ref or relation.Coll",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := NewRegistry(nil)
			reg.Register(tt.def())
			_, err := reg.Describe(reflect.TypeFor[person]())
			require.Error(t, err)
			assert.True(t, IsConfig(err), "want config error, got %v", err)
			assert.True(t, strings.Contains(err.Error(), tt.want), "error %q should mention %q", err, tt.want)
		})
	}
}

func TestValidation_BothDirectionCascadeDelete(t *testing.T) {
	reg := NewRegistry(nil)
	reg.Register(Define[person]("Person").ID("ID").
		Rel(Rel("Friends", "FRIEND_OF").To("Person").Undirected().CascadeDelete()))

	_, err := reg.Describe(reflect.TypeFor[person]())
	require.Error(t, err)
	assert.True(t, IsRelationship(err))
}

func TestTarget_ForwardReferenceResolvesLazily(t *testing.T) {
	reg := NewRegistry(nil)
	// Person references Animal before Animal is registered; description
	// succeeds and only Target resolution fails.
	reg.Register(personDef())

	d, err := reg.Describe(reflect.TypeFor[person]())
	require.NoError(t, err)
	pet, ok := d.Relationship("Pet")
	require.True(t, ok)

	_, err = pet.Target()
	require.Error(t, err)
	assert.True(t, IsRelationship(err))

	reg.Register(animalDef())
	td, err := pet.Target()
	require.NoError(t, err)
	assert.Equal(t, "Animal", td.Name)
}

func TestReset_ClearsRegistrations(t *testing.T) {
	reg := NewRegistry(nil)
	reg.Register(personDef())
	reg.Register(animalDef())
	_, err := reg.Describe(reflect.TypeFor[person]())
	require.NoError(t, err)

	reg.Reset()
	_, err = reg.Describe(reflect.TypeFor[person]())
	assert.True(t, IsConfig(err))
}

func TestLoadYAML_MatchesBuilderDefinition(t *testing.T) {
	const doc = `
entities:
  - name: Person
    labels: [Human]
    id: {field: ID}
    properties:
      - {field: Name, required: true, interned: true}
      - {field: Age, stored: age}
    relationships:
      - {field: Friends, type: FRIEND_OF, target: Person, lazy: true, cascade: true}
      - {field: Pet, type: OWNS, target: Animal}
  - name: Animal
    id: {field: ID}
    properties:
      - {field: Name}
`
	fromYAML := NewRegistry(nil)
	Bind[person](fromYAML, "Person")
	Bind[animal](fromYAML, "Animal")
	require.NoError(t, fromYAML.LoadYAML(strings.NewReader(doc)))

	fromBuilder := NewRegistry(nil)
	fromBuilder.Register(personDef())
	fromBuilder.Register(animalDef())

	dy, err := fromYAML.Describe(reflect.TypeFor[person]())
	require.NoError(t, err)
	db, err := fromBuilder.Describe(reflect.TypeFor[person]())
	require.NoError(t, err)

	assert.Equal(t, db.Labels, dy.Labels)
	assert.Equal(t, db.Identity.Field, dy.Identity.Field)
	require.Len(t, dy.Properties, len(db.Properties))
	for i := range db.Properties {
		assert.Equal(t, db.Properties[i].Name, dy.Properties[i].Name)
		assert.Equal(t, db.Properties[i].GraphName, dy.Properties[i].GraphName)
		assert.Equal(t, db.Properties[i].Required, dy.Properties[i].Required)
		assert.Equal(t, db.Properties[i].Interned, dy.Properties[i].Interned)
	}
	require.Len(t, dy.Relationships, len(db.Relationships))
	for i := range db.Relationships {
		assert.Equal(t, db.Relationships[i].Type, dy.Relationships[i].Type)
		assert.Equal(t, db.Relationships[i].Direction, dy.Relationships[i].Direction)
		assert.Equal(t, db.Relationships[i].Lazy, dy.Relationships[i].Lazy)
		assert.Equal(t, db.Relationships[i].Cascade, dy.Relationships[i].Cascade)
	}
}

func TestLoadYAML_UnboundEntity(t *testing.T) {
	reg := NewRegistry(nil)
	err := reg.LoadYAML(strings.NewReader("entities:\n  - name: Ghost\n    id: {field: ID}\n"))
	assert.True(t, IsConfig(err))
}
