package norm

import (
	"context"
	"fmt"
	"reflect"
	"sync"

	"github.com/dusk-indust/norm/cypher"
	"github.com/dusk-indust/norm/schema"
	"github.com/dusk-indust/norm/store"
)

// Repository is the facade over the mapping engine for one entity type:
// create/read/update/delete, derived-query dispatch, and fetch-plan
// resolution. It is safe for concurrent use; each call runs in its own
// session unless the caller passes one with WithSession.
type Repository[T any] struct {
	m *mapper

	mu    sync.RWMutex
	named map[string]namedQuery
}

type namedQuery struct {
	text  string
	shape ReturnShape
}

// ReturnShape declares what a pre-bound named query projects.
type ReturnShape int

const (
	// ReturnsEntities marks rows carrying one node per row.
	ReturnsEntities ReturnShape = iota
	// ReturnsScalar marks a single-scalar projection.
	ReturnsScalar
)

// Option configures a repository.
type Option func(*mapper)

// WithRegistry uses the given metadata registry instead of the process-wide
// default.
func WithRegistry(reg *schema.Registry) Option {
	return func(m *mapper) { m.reg = reg }
}

// NewRepository returns a repository for entity type T backed by the given
// executor. Metadata for T is built and validated on first use, not here.
func NewRepository[T any](exec store.Executor, opts ...Option) *Repository[T] {
	m := &mapper{exec: exec, reg: schema.Default()}
	for _, opt := range opts {
		opt(m)
	}
	return &Repository[T]{m: m, named: make(map[string]namedQuery)}
}

func (r *Repository[T]) describe() (*schema.EntityDescriptor, error) {
	return r.m.reg.Describe(reflect.TypeFor[T]())
}

// LoadOption configures a single read operation.
type LoadOption func(*loadOpts)

type loadOpts struct {
	session *Session
	eager   map[string]bool
}

// Eager adds relationship fields to the caller's eager-fetch set for this
// read; they resolve as part of the owning read instead of lazily. Resolution
// is one level deep: it covers the entities the read returns, while the
// targets fetched for them keep lazy fields that resolve on Get.
func Eager(fields ...string) LoadOption {
	return func(o *loadOpts) {
		if o.eager == nil {
			o.eager = make(map[string]bool, len(fields))
		}
		for _, f := range fields {
			o.eager[f] = true
		}
	}
}

// WithSession runs the operation in the given session instead of a fresh
// one, extending identity-map guarantees across calls.
func WithSession(s *Session) LoadOption {
	return func(o *loadOpts) { o.session = s }
}

func applyLoadOpts(opts []LoadOption) *loadOpts {
	o := &loadOpts{}
	for _, opt := range opts {
		opt(o)
	}
	if o.session == nil {
		o.session = NewSession()
	}
	return o
}

// Save persists the instance and everything reachable through cascading
// relationships, planning first and writing only if the whole plan is valid.
// New instances carry their identity after a successful save.
func (r *Repository[T]) Save(ctx context.Context, inst *T) error {
	d, err := r.describe()
	if err != nil {
		return err
	}
	plan, err := r.m.planSave(inst, d)
	if err != nil {
		return err
	}
	return r.m.executeSave(ctx, plan)
}

// Load reads one entity by identity. Within a session, loading the same
// identity twice returns the identical instance without touching the store.
func (r *Repository[T]) Load(ctx context.Context, id any, opts ...LoadOption) (*T, error) {
	d, err := r.describe()
	if err != nil {
		return nil, err
	}
	o := applyLoadOpts(opts)
	if cached, ok := o.session.Get(d.PrimaryLabel(), normalizeID(id)); ok {
		return cached.(*T), nil
	}
	q := cypher.ByID(d, id)
	rows, err := r.m.exec.Execute(ctx, q.Text, q.Params)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, &NotFoundError{Entity: d.Name, ID: id}
	}
	insts, err := r.hydrateRows(o.session, d, rows, 0)
	if err != nil {
		return nil, err
	}
	if err := r.resolveFetchPlan(ctx, o, d, insts); err != nil {
		return nil, err
	}
	return insts[0], nil
}

// FindAll reads every entity carrying the type's labels.
func (r *Repository[T]) FindAll(ctx context.Context, opts ...LoadOption) ([]*T, error) {
	d, err := r.describe()
	if err != nil {
		return nil, err
	}
	o := applyLoadOpts(opts)
	q := cypher.All(d)
	rows, err := r.m.exec.Execute(ctx, q.Text, q.Params)
	if err != nil {
		return nil, err
	}
	insts, err := r.hydrateRows(o.session, d, rows, 0)
	if err != nil {
		return nil, err
	}
	if err := r.resolveFetchPlan(ctx, o, d, insts); err != nil {
		return nil, err
	}
	return insts, nil
}

// Find dispatches a derived query with a Find verb, for example
// "FindByAgeGreaterThan" or "find_by_age_greater_than". Arguments bind
// positionally to the parsed predicate segments.
func (r *Repository[T]) Find(ctx context.Context, name string, args []any, opts ...LoadOption) ([]*T, error) {
	d, err := r.describe()
	if err != nil {
		return nil, err
	}
	dq, err := cypher.Derive(name, d, len(args))
	if err != nil {
		return nil, err
	}
	if dq.Verb != cypher.VerbFind {
		return nil, fmt.Errorf("norm: derived method %q is not a find; use Scalar or Exec", name)
	}
	q, err := r.renderDerived(d, dq, args)
	if err != nil {
		return nil, err
	}
	o := applyLoadOpts(opts)
	rows, err := r.m.exec.Execute(ctx, q.Text, q.Params)
	if err != nil {
		return nil, err
	}
	insts, err := r.hydrateRows(o.session, d, rows, 0)
	if err != nil {
		return nil, err
	}
	if err := r.resolveFetchPlan(ctx, o, d, insts); err != nil {
		return nil, err
	}
	return insts, nil
}

// Scalar dispatches a derived aggregation ("Count", "AvgAge",
// "MaxAgeByName", ...). The projection is a single scalar and skips
// identity-map rehydration entirely.
func (r *Repository[T]) Scalar(ctx context.Context, name string, args ...any) (store.Value, error) {
	d, err := r.describe()
	if err != nil {
		return nil, err
	}
	dq, err := cypher.Derive(name, d, len(args))
	if err != nil {
		return nil, err
	}
	if !dq.Scalar() {
		return nil, fmt.Errorf("norm: derived method %q does not project a scalar", name)
	}
	q, err := r.renderDerived(d, dq, args)
	if err != nil {
		return nil, err
	}
	rows, err := r.m.exec.Execute(ctx, q.Text, q.Params)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 || len(rows[0]) == 0 {
		return nil, nil
	}
	return rows[0][0], nil
}

// Exec dispatches a derived delete ("DeleteByName", ...).
func (r *Repository[T]) Exec(ctx context.Context, name string, args ...any) error {
	d, err := r.describe()
	if err != nil {
		return err
	}
	dq, err := cypher.Derive(name, d, len(args))
	if err != nil {
		return err
	}
	if dq.Verb != cypher.VerbDelete {
		return fmt.Errorf("norm: derived method %q is not a delete", name)
	}
	q, err := r.renderDerived(d, dq, args)
	if err != nil {
		return err
	}
	_, err = r.m.exec.Execute(ctx, q.Text, q.Params)
	return err
}

// renderDerived converts argument values through each predicate's property
// converter, then renders the executable statement.
func (r *Repository[T]) renderDerived(d *schema.EntityDescriptor, dq *cypher.DerivedQuery, args []any) (cypher.Query, error) {
	converted := make([]store.Value, len(args))
	for i, arg := range args {
		gv, err := dq.Predicates[i].Property.Converter.ToGraph(arg)
		if err != nil {
			return cypher.Query{}, fmt.Errorf("norm: %s.%s: %w", d.Name, dq.Predicates[i].Property.Name, err)
		}
		converted[i] = gv
	}
	return cypher.Render(d, dq, converted), nil
}

// Delete removes the instance's node and its incident edges for every
// declared relationship descriptor. Related endpoint entities survive unless
// their descriptor opts into CascadeDelete.
func (r *Repository[T]) Delete(ctx context.Context, inst *T) error {
	d, err := r.describe()
	if err != nil {
		return err
	}
	id := identityOf(d, inst)
	if id == nil {
		return fmt.Errorf("norm: %s: cannot delete an unsaved instance", d.Name)
	}
	return r.deleteByID(ctx, d, id)
}

// DeleteByID removes the node with the given identity, edges first.
func (r *Repository[T]) DeleteByID(ctx context.Context, id any) error {
	d, err := r.describe()
	if err != nil {
		return err
	}
	return r.deleteByID(ctx, d, id)
}

func (r *Repository[T]) deleteByID(ctx context.Context, d *schema.EntityDescriptor, id any) error {
	queries, err := r.m.planDelete(ctx, d, id, make(map[sessionKey]bool))
	if err != nil {
		return err
	}
	for _, q := range queries {
		if _, err := r.m.exec.Execute(ctx, q.Text, q.Params); err != nil {
			return err
		}
	}
	return nil
}

// Named pre-binds a literal query template with named parameters as an
// escape hatch from derivation. The engine performs no parsing on it, only
// parameter binding and result-shape handling.
func (r *Repository[T]) Named(name, text string, shape ReturnShape) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.named[name] = namedQuery{text: text, shape: shape}
}

// QueryNamed runs a pre-bound entity query.
func (r *Repository[T]) QueryNamed(ctx context.Context, name string, params map[string]any, opts ...LoadOption) ([]*T, error) {
	nq, err := r.lookupNamed(name, ReturnsEntities)
	if err != nil {
		return nil, err
	}
	d, err := r.describe()
	if err != nil {
		return nil, err
	}
	o := applyLoadOpts(opts)
	rows, err := r.m.exec.Execute(ctx, nq.text, params)
	if err != nil {
		return nil, err
	}
	insts, err := r.hydrateRows(o.session, d, rows, 0)
	if err != nil {
		return nil, err
	}
	if err := r.resolveFetchPlan(ctx, o, d, insts); err != nil {
		return nil, err
	}
	return insts, nil
}

// ScalarNamed runs a pre-bound scalar query.
func (r *Repository[T]) ScalarNamed(ctx context.Context, name string, params map[string]any) (store.Value, error) {
	nq, err := r.lookupNamed(name, ReturnsScalar)
	if err != nil {
		return nil, err
	}
	rows, err := r.m.exec.Execute(ctx, nq.text, params)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 || len(rows[0]) == 0 {
		return nil, nil
	}
	return rows[0][0], nil
}

func (r *Repository[T]) lookupNamed(name string, shape ReturnShape) (namedQuery, error) {
	r.mu.RLock()
	nq, ok := r.named[name]
	r.mu.RUnlock()
	if !ok {
		return namedQuery{}, fmt.Errorf("norm: no named query %q", name)
	}
	if nq.shape != shape {
		return namedQuery{}, fmt.Errorf("norm: named query %q has a different return shape", name)
	}
	return nq, nil
}

// hydrateRows materializes the node at column col of every row, preserving
// arrival order and deduplicating through the session.
func (r *Repository[T]) hydrateRows(sess *Session, d *schema.EntityDescriptor, rows []store.Row, col int) ([]*T, error) {
	targets, err := r.m.hydrateTargets(sess, d, rows, col)
	if err != nil {
		return nil, err
	}
	out := make([]*T, 0, len(targets))
	for _, t := range targets {
		out = append(out, t.(*T))
	}
	return out, nil
}

// resolveFetchPlan resolves every non-lazy relationship plus the caller's
// eager-fetch set for the loaded owners, one query per relationship field.
// Resolution does not recurse into the fetched targets; their fields get
// loaders bound and resolve on first Get.
func (r *Repository[T]) resolveFetchPlan(ctx context.Context, o *loadOpts, d *schema.EntityDescriptor, insts []*T) error {
	if len(insts) == 0 {
		return nil
	}
	owners := make([]any, 0, len(insts))
	for _, inst := range insts {
		owners = append(owners, inst)
	}
	for i := range d.Relationships {
		rel := &d.Relationships[i]
		if rel.Lazy && !o.eager[rel.Field] {
			continue
		}
		if err := r.m.resolveEager(ctx, o.session, d, rel, owners); err != nil {
			return err
		}
	}
	return nil
}

// InitSchema creates the node and relationship tables for every entity
// reachable from T's relationship graph on backends that require declared
// schema (Kuzu). Node tables are created before relationship tables.
func (r *Repository[T]) InitSchema(ctx context.Context) error {
	d, err := r.describe()
	if err != nil {
		return err
	}
	descs, err := collectDescriptors(d, map[string]*schema.EntityDescriptor{})
	if err != nil {
		return err
	}
	var rels []string
	for _, desc := range descs {
		if _, err := r.m.exec.Execute(ctx, cypher.NodeDDL(desc), nil); err != nil {
			return err
		}
		ddl, err := cypher.RelDDL(desc)
		if err != nil {
			return err
		}
		rels = append(rels, ddl...)
	}
	for _, stmt := range rels {
		if _, err := r.m.exec.Execute(ctx, stmt, nil); err != nil {
			return err
		}
	}
	return nil
}

func collectDescriptors(d *schema.EntityDescriptor, seen map[string]*schema.EntityDescriptor) ([]*schema.EntityDescriptor, error) {
	if _, ok := seen[d.Name]; ok {
		return nil, nil
	}
	seen[d.Name] = d
	out := []*schema.EntityDescriptor{d}
	for i := range d.Relationships {
		td, err := d.Relationships[i].Target()
		if err != nil {
			return nil, err
		}
		sub, err := collectDescriptors(td, seen)
		if err != nil {
			return nil, err
		}
		out = append(out, sub...)
	}
	return out, nil
}
