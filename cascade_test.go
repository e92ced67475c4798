package norm

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dusk-indust/norm/relation"
	"github.com/dusk-indust/norm/store"
	"github.com/dusk-indust/norm/store/storetest"
)

func TestCascadeSave(t *testing.T) {
	ctx := context.Background()
	repo, g := newPersonRepo(t)

	root := newPerson("Ada", 36)
	friend := newPerson("Grace", 45)
	root.Friends.Add(friend)

	require.NoError(t, repo.Save(ctx, root))
	require.NotNil(t, root.ID)
	require.NotNil(t, friend.ID, "cascaded targets are saved with the root")
	assert.Equal(t, 2, g.NodeCount())

	edges := g.Edges()
	require.Len(t, edges, 1)
	assert.Equal(t, "FRIEND_OF", edges[0].Type)
	assert.Equal(t, *root.ID, edges[0].Start)
	assert.Equal(t, *friend.ID, edges[0].End)
}

func TestCascadeSave_ResaveDoesNotDuplicateEdges(t *testing.T) {
	ctx := context.Background()
	repo, g := newPersonRepo(t)

	root := newPerson("Ada", 36)
	root.Friends.Add(newPerson("Grace", 45))
	require.NoError(t, repo.Save(ctx, root))
	require.Equal(t, 1, g.EdgeCount())

	// The relationship field is clean after the save; a second save only
	// updates node properties.
	root.Age = 37
	require.NoError(t, repo.Save(ctx, root))
	assert.Equal(t, 1, g.EdgeCount())
	assert.Equal(t, 2, g.NodeCount())
}

func TestCascadeSave_Cycle(t *testing.T) {
	ctx := context.Background()
	repo, g := newPersonRepo(t)

	a := newPerson("Ada", 36)
	b := newPerson("Grace", 45)
	a.Friends.Add(b)
	b.Friends.Add(a)

	require.NoError(t, repo.Save(ctx, a))
	require.NotNil(t, a.ID)
	require.NotNil(t, b.ID)
	assert.Equal(t, 2, g.NodeCount())
	assert.Equal(t, 2, g.EdgeCount())
}

func TestCascadeSave_SharedTargetSavedOnce(t *testing.T) {
	ctx := context.Background()
	repo, g := newPersonRepo(t)

	a := newPerson("Ada", 36)
	b := newPerson("Grace", 45)
	shared := newPerson("Edsger", 60)
	a.Friends.Add(b)
	a.Friends.Add(shared)
	b.Friends.Add(shared)

	require.NoError(t, repo.Save(ctx, a))
	assert.Equal(t, 3, g.NodeCount())
	assert.Equal(t, 3, g.EdgeCount())
}

func TestSave_UnsavedReferenceAborts(t *testing.T) {
	ctx := context.Background()
	repo, g := newPersonRepo(t)

	p := newPerson("Ada", 36)
	p.Employer.Set(&testCompany{Name: "Acme"})

	err := repo.Save(ctx, p)
	require.Error(t, err)
	assert.True(t, IsUnsavedReference(err))
	assert.Zero(t, g.NodeCount(), "planning fails before any statement executes")
	assert.Nil(t, p.ID)
}

func TestSave_NonCascadedSavedReference(t *testing.T) {
	ctx := context.Background()
	reg := testRegistry(t)
	g := store.NewMemGraph()
	people := NewRepository[testPerson](g, WithRegistry(reg))
	companies := NewRepository[testCompany](g, WithRegistry(reg))

	c := &testCompany{Name: "Acme"}
	require.NoError(t, companies.Save(ctx, c))

	p := newPerson("Ada", 36)
	p.Employer.Set(c)
	require.NoError(t, people.Save(ctx, p))

	edges := g.Edges()
	require.Len(t, edges, 1)
	assert.Equal(t, "WORKS_AT", edges[0].Type)
	assert.Equal(t, *p.ID, edges[0].Start)
	assert.Equal(t, *c.ID, edges[0].End)
}

func TestSave_ExecutorFailureLeavesPrefix(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("kuzu: query: connection closed")
	script := new(storetest.Scripted)
	script.Enqueue([]store.Row{{int64(7)}}).EnqueueErr(boom)
	repo := NewRepository[testPerson](script, WithRegistry(testRegistry(t)))

	root := newPerson("Ada", 36)
	child := newPerson("Grace", 45)
	root.Friends.Add(child)

	err := repo.Save(ctx, root)
	require.Error(t, err)
	assert.ErrorIs(t, err, boom, "executor failures propagate unchanged")

	// The completed prefix stands; nothing past the failure happened.
	require.NotNil(t, root.ID)
	assert.Equal(t, int64(7), *root.ID)
	assert.Nil(t, child.ID, "the failed create assigns no identity")
	assert.Equal(t, relation.Dirty, root.Friends.State(), "no field is marked clean after a failed plan")
	assert.Equal(t, 2, script.Len(), "execution stops at the failing statement")
}

func TestLazyResolution_OneQueryThenCached(t *testing.T) {
	ctx := context.Background()
	g := store.NewMemGraph()
	reg := testRegistry(t)
	seed := NewRepository[testPerson](g, WithRegistry(reg))

	root := newPerson("Ada", 36)
	root.Friends.Add(newPerson("Grace", 45))
	root.Friends.Add(newPerson("Edsger", 60))
	require.NoError(t, seed.Save(ctx, root))

	rec := storetest.Wrap(g)
	repo := NewRepository[testPerson](rec, WithRegistry(reg))

	p, err := repo.Load(ctx, *root.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, rec.Len(), "a lazy load touches only the owning node")
	assert.Equal(t, relation.Unloaded, p.Friends.State())

	friends, err := p.Friends.Get(ctx)
	require.NoError(t, err)
	assert.Len(t, friends, 2)
	assert.Equal(t, 2, rec.Len(), "first access costs exactly one traversal")

	again, err := p.Friends.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, friends, again)
	assert.Equal(t, 2, rec.Len(), "repeat access is free")
}

func TestLazyResolution_UnboundField(t *testing.T) {
	p := newPerson("Ada", 36)
	_, err := p.Friends.Get(context.Background())
	assert.Error(t, err)
}

func TestEagerLoad_SingleOwner(t *testing.T) {
	ctx := context.Background()
	reg := testRegistry(t)
	g := store.NewMemGraph()
	people := NewRepository[testPerson](g, WithRegistry(reg))
	companies := NewRepository[testCompany](g, WithRegistry(reg))

	c := &testCompany{Name: "Acme"}
	require.NoError(t, companies.Save(ctx, c))
	p := newPerson("Ada", 36)
	p.Employer.Set(c)
	require.NoError(t, people.Save(ctx, p))

	rec := storetest.Wrap(g)
	repo := NewRepository[testPerson](rec, WithRegistry(reg))

	got, err := repo.Load(ctx, *p.ID, Eager("Employer"))
	require.NoError(t, err)
	assert.Equal(t, 2, rec.Len(), "one node match plus one traversal")

	employer := got.Employer.Cached()
	require.NotNil(t, employer)
	assert.Equal(t, "Acme", employer.Name)
}

func TestEagerLoad_DepthOne(t *testing.T) {
	ctx := context.Background()
	g := store.NewMemGraph()
	reg := testRegistry(t)
	seed := NewRepository[testPerson](g, WithRegistry(reg))

	root := newPerson("Ada", 36)
	friend := newPerson("Grace", 45)
	friend.Friends.Add(newPerson("Edsger", 60))
	root.Friends.Add(friend)
	require.NoError(t, seed.Save(ctx, root))

	repo := NewRepository[testPerson](g, WithRegistry(reg))
	got, err := repo.Load(ctx, *root.ID, Eager("Friends"))
	require.NoError(t, err)

	require.Len(t, got.Friends.Cached(), 1)
	nested := got.Friends.Cached()[0]
	assert.Equal(t, relation.Unloaded, nested.Friends.State(), "eager fetch covers the returned entities only")

	// Fetched targets stay bound; an explicit Get resolves the next level.
	more, err := nested.Friends.Get(ctx)
	require.NoError(t, err)
	assert.Len(t, more, 1)
}

func TestEagerFindAll_ConstantQueryCount(t *testing.T) {
	ctx := context.Background()
	g := store.NewMemGraph()
	reg := testRegistry(t)
	seed := NewRepository[testPerson](g, WithRegistry(reg))

	a := newPerson("Ada", 36)
	a.Friends.Add(newPerson("Grace", 45))
	a.Friends.Add(newPerson("Edsger", 60))
	require.NoError(t, seed.Save(ctx, a))
	b := newPerson("Barbara", 50)
	b.Friends.Add(newPerson("Donald", 55))
	require.NoError(t, seed.Save(ctx, b))

	rec := storetest.Wrap(g)
	repo := NewRepository[testPerson](rec, WithRegistry(reg))

	all, err := repo.FindAll(ctx, Eager("Friends"))
	require.NoError(t, err)
	require.Len(t, all, 5)
	assert.Equal(t, 2, rec.Len(), "one match plus one batched traversal, whatever the fan-out")

	byName := make(map[string]*testPerson, len(all))
	for _, p := range all {
		byName[p.Name] = p
	}
	assert.Len(t, byName["Ada"].Friends.Cached(), 2)
	assert.Len(t, byName["Barbara"].Friends.Cached(), 1)
	assert.Empty(t, byName["Grace"].Friends.Cached(), "ownerless rows resolve to loaded-empty")
}

func TestEagerLoad_SharedSessionReferenceIdentity(t *testing.T) {
	ctx := context.Background()
	g := store.NewMemGraph()
	reg := testRegistry(t)
	seed := NewRepository[testPerson](g, WithRegistry(reg))

	a := newPerson("Ada", 36)
	shared := newPerson("Grace", 45)
	a.Friends.Add(shared)
	b := newPerson("Barbara", 50)
	b.Friends.Add(shared)
	require.NoError(t, seed.Save(ctx, a))
	require.NoError(t, seed.Save(ctx, b))

	repo := NewRepository[testPerson](g, WithRegistry(reg))
	all, err := repo.FindAll(ctx, Eager("Friends"))
	require.NoError(t, err)

	byName := make(map[string]*testPerson, len(all))
	for _, p := range all {
		byName[p.Name] = p
	}
	require.Len(t, byName["Ada"].Friends.Cached(), 1)
	require.Len(t, byName["Barbara"].Friends.Cached(), 1)
	assert.Same(t, byName["Ada"].Friends.Cached()[0], byName["Barbara"].Friends.Cached()[0],
		"the shared friend materializes once per session")
	assert.Same(t, byName["Grace"], byName["Ada"].Friends.Cached()[0])
}

func TestCascadeDelete(t *testing.T) {
	ctx := context.Background()
	g := store.NewMemGraph()
	repo := NewRepository[testFolder](g, WithRegistry(testRegistry(t)))

	root := &testFolder{Name: "root"}
	child := &testFolder{Name: "child"}
	grand := &testFolder{Name: "grand"}
	child.Children.Add(grand)
	root.Children.Add(child)

	require.NoError(t, repo.Save(ctx, root))
	require.Equal(t, 3, g.NodeCount())
	require.Equal(t, 2, g.EdgeCount())

	require.NoError(t, repo.DeleteByID(ctx, *root.ID))
	assert.Zero(t, g.NodeCount(), "cascade delete follows the containment chain")
	assert.Zero(t, g.EdgeCount())
}

func TestCascadeDelete_DiamondDeletesOnce(t *testing.T) {
	ctx := context.Background()
	g := store.NewMemGraph()
	repo := NewRepository[testFolder](g, WithRegistry(testRegistry(t)))

	root := &testFolder{Name: "root"}
	left := &testFolder{Name: "left"}
	right := &testFolder{Name: "right"}
	shared := &testFolder{Name: "shared"}
	left.Children.Add(shared)
	right.Children.Add(shared)
	root.Children.Add(left)
	root.Children.Add(right)

	require.NoError(t, repo.Save(ctx, root))
	require.Equal(t, 4, g.NodeCount())

	require.NoError(t, repo.DeleteByID(ctx, *root.ID))
	assert.Zero(t, g.NodeCount())
	assert.Zero(t, g.EdgeCount())
}
