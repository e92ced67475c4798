package store

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"
)

// Compile-time assertion: *MemGraph satisfies Executor.
var _ Executor = (*MemGraph)(nil)

// MemGraph is an in-memory graph store that interprets the canonical
// statements the mapping engine emits. It is the test and embedded twin of
// the Kuzu backend: same Executor contract, Go maps instead of a database.
// Thread-safe via sync.RWMutex.
//
// It is not a Cypher implementation; only the statement shapes produced by
// the cypher package are recognized, and anything else returns an error.
type MemGraph struct {
	mu        sync.RWMutex
	nodes     map[int64]*memNode
	nodeOrder []int64
	edges     []memEdge
	nextNode  int64
	nextEdge  int64
}

type memNode struct {
	id     int64
	labels []string
	props  map[string]Value
}

type memEdge struct {
	id         int64
	typ        string
	start, end int64
}

// NewMemGraph returns an empty in-memory graph.
func NewMemGraph() *MemGraph {
	return &MemGraph{nodes: make(map[int64]*memNode)}
}

// NodeCount reports the number of live nodes.
func (g *MemGraph) NodeCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.nodes)
}

// EdgeCount reports the number of live edges.
func (g *MemGraph) EdgeCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.edges)
}

// Edges returns a snapshot of all edges in insertion order.
func (g *MemGraph) Edges() []Edge {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]Edge, 0, len(g.edges))
	for _, e := range g.edges {
		out = append(out, Edge{ID: e.id, Type: e.typ, Start: e.start, End: e.end})
	}
	return out
}

// NodeByID returns a snapshot of one node.
func (g *MemGraph) NodeByID(id int64) (Node, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	n, ok := g.nodes[id]
	if !ok {
		return Node{}, false
	}
	return g.snapshot(n), true
}

// Statement shapes, matched against the exact text the cypher package emits.
var (
	reCreateNode = regexp.MustCompile(`^CREATE \(n:([\w:]+)(?: \{(.*)\})?\) RETURN id\(n\)$`)
	reNodeStmt   = regexp.MustCompile(`^MATCH \(n:([\w:]+)\)(?: WHERE (.+?))? (RETURN .+|SET .+|DETACH DELETE n|DELETE n)$`)
	reDelEdges   = regexp.MustCompile(`^MATCH \(n:([\w:]+)\)(<?)-\[r:(\w+)\]-(>?)\(\) WHERE (.+) DELETE r$`)
	reCreateEdge = regexp.MustCompile(`^MATCH \(a:([\w:]+)\), \(b:([\w:]+)\) WHERE (.+) CREATE \(a\)(<?)-\[:(\w+)\]-(>?)\(b\)$`)
	reTraverse   = regexp.MustCompile(`^MATCH \(a:([\w:]+)\)(<?)-\[:(\w+)\]-(>?)\(b:([\w:]+)\) WHERE (.+) RETURN (.+)$`)
	rePropPair   = regexp.MustCompile(`^(\w+): \$(\w+)$`)
	reSetPair    = regexp.MustCompile(`^n\.(\w+) = \$(\w+)$`)
	reCondition  = regexp.MustCompile(`^(?:id\((\w)\)|(\w)\.(\w+)) (=|>|>=|<|<=|IN) \$(\w+)$`)
	reAggregate  = regexp.MustCompile(`^RETURN (count|avg|min|max)\((?:(\w)|\w\.(\w+))\)$`)
)

// Execute interprets one canonical statement.
func (g *MemGraph) Execute(_ context.Context, query string, params map[string]any) ([]Row, error) {
	q := strings.TrimSpace(query)

	// Schema DDL is accepted and ignored; MemGraph is schemaless.
	if strings.HasPrefix(q, "CREATE NODE TABLE") || strings.HasPrefix(q, "CREATE REL TABLE") {
		return nil, nil
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if m := reCreateNode.FindStringSubmatch(q); m != nil {
		return g.createNode(m, params)
	}
	if m := reDelEdges.FindStringSubmatch(q); m != nil {
		return g.deleteEdges(m, params)
	}
	if m := reCreateEdge.FindStringSubmatch(q); m != nil {
		return g.createEdge(m, params)
	}
	if m := reTraverse.FindStringSubmatch(q); m != nil {
		return g.traverse(m, params)
	}
	if m := reNodeStmt.FindStringSubmatch(q); m != nil {
		return g.nodeStmt(m, params)
	}
	return nil, fmt.Errorf("memgraph: unrecognized statement: %s", q)
}

func (g *MemGraph) createNode(m []string, params map[string]any) ([]Row, error) {
	labels := strings.Split(m[1], ":")
	props := make(map[string]Value)
	if m[2] != "" {
		for _, pair := range strings.Split(m[2], ", ") {
			pm := rePropPair.FindStringSubmatch(pair)
			if pm == nil {
				return nil, fmt.Errorf("memgraph: bad property pair %q", pair)
			}
			props[pm[1]] = params[pm[2]]
		}
	}
	id := g.nextNode
	g.nextNode++
	g.nodes[id] = &memNode{id: id, labels: labels, props: props}
	g.nodeOrder = append(g.nodeOrder, id)
	return []Row{{id}}, nil
}

// nodeStmt handles single-variable node statements: matches with optional
// WHERE followed by RETURN, SET, DELETE, or DETACH DELETE.
func (g *MemGraph) nodeStmt(m []string, params map[string]any) ([]Row, error) {
	labels := strings.Split(m[1], ":")
	matched, err := g.matchNodes(labels, m[2], "n", params)
	if err != nil {
		return nil, err
	}
	tail := m[3]
	switch {
	case tail == "RETURN n":
		rows := make([]Row, 0, len(matched))
		for _, n := range matched {
			rows = append(rows, Row{g.snapshot(n)})
		}
		return rows, nil
	case strings.HasPrefix(tail, "SET "):
		for _, pair := range strings.Split(tail[len("SET "):], ", ") {
			pm := reSetPair.FindStringSubmatch(pair)
			if pm == nil {
				return nil, fmt.Errorf("memgraph: bad assignment %q", pair)
			}
			for _, n := range matched {
				n.props[pm[1]] = params[pm[2]]
			}
		}
		return nil, nil
	case tail == "DELETE n":
		for _, n := range matched {
			g.removeNode(n.id)
		}
		return nil, nil
	case tail == "DETACH DELETE n":
		for _, n := range matched {
			g.detachEdges(n.id)
			g.removeNode(n.id)
		}
		return nil, nil
	default:
		if am := reAggregate.FindStringSubmatch(tail); am != nil {
			return g.aggregate(am, matched)
		}
		return nil, fmt.Errorf("memgraph: unrecognized clause %q", tail)
	}
}

func (g *MemGraph) aggregate(m []string, matched []*memNode) ([]Row, error) {
	fn, prop := m[1], m[3]
	if fn == "count" {
		return []Row{{int64(len(matched))}}, nil
	}
	var vals []Value
	for _, n := range matched {
		if v, ok := n.props[prop]; ok && v != nil {
			vals = append(vals, v)
		}
	}
	if len(vals) == 0 {
		return []Row{{nil}}, nil
	}
	switch fn {
	case "avg":
		sum := 0.0
		for _, v := range vals {
			f, ok := asFloat(v)
			if !ok {
				return nil, fmt.Errorf("memgraph: avg over non-numeric property %s", prop)
			}
			sum += f
		}
		return []Row{{sum / float64(len(vals))}}, nil
	case "min", "max":
		best := vals[0]
		for _, v := range vals[1:] {
			c, ok := compare(v, best)
			if !ok {
				return nil, fmt.Errorf("memgraph: %s over incomparable property %s", fn, prop)
			}
			if (fn == "min" && c < 0) || (fn == "max" && c > 0) {
				best = v
			}
		}
		return []Row{{best}}, nil
	}
	return nil, fmt.Errorf("memgraph: unknown aggregate %s", fn)
}

func (g *MemGraph) deleteEdges(m []string, params map[string]any) ([]Row, error) {
	labels := strings.Split(m[1], ":")
	incoming, typ, outgoing := m[2] == "<", m[3], m[4] == ">"
	matched, err := g.matchNodes(labels, m[5], "n", params)
	if err != nil {
		return nil, err
	}
	for _, n := range matched {
		kept := g.edges[:0]
		for _, e := range g.edges {
			if e.typ == typ && g.incident(e, n.id, incoming, outgoing) {
				continue
			}
			kept = append(kept, e)
		}
		g.edges = kept
	}
	return nil, nil
}

// incident reports whether edge e touches node id in the direction the
// pattern requires. An undirected pattern (neither arrow) matches either
// endpoint.
func (g *MemGraph) incident(e memEdge, id int64, incoming, outgoing bool) bool {
	switch {
	case outgoing:
		return e.start == id
	case incoming:
		return e.end == id
	default:
		return e.start == id || e.end == id
	}
}

func (g *MemGraph) createEdge(m []string, params map[string]any) ([]Row, error) {
	aLabels := strings.Split(m[1], ":")
	bLabels := strings.Split(m[2], ":")
	conds := strings.Split(m[3], " AND ")
	if len(conds) != 2 {
		return nil, fmt.Errorf("memgraph: edge creation needs two identity conditions")
	}
	as, err := g.matchNodes(aLabels, conds[0], "a", params)
	if err != nil {
		return nil, err
	}
	bs, err := g.matchNodes(bLabels, conds[1], "b", params)
	if err != nil {
		return nil, err
	}
	if len(as) == 0 || len(bs) == 0 {
		return nil, fmt.Errorf("memgraph: edge endpoints not found")
	}
	incoming, typ := m[4] == "<", m[5]
	start, end := as[0].id, bs[0].id
	if incoming {
		start, end = end, start
	}
	g.edges = append(g.edges, memEdge{id: g.nextEdge, typ: typ, start: start, end: end})
	g.nextEdge++
	return nil, nil
}

func (g *MemGraph) traverse(m []string, params map[string]any) ([]Row, error) {
	aLabels := strings.Split(m[1], ":")
	incoming, typ, outgoing := m[2] == "<", m[3], m[4] == ">"
	bLabels := strings.Split(m[5], ":")
	owners, err := g.matchNodes(aLabels, m[6], "a", params)
	if err != nil {
		return nil, err
	}
	ret := m[7]

	var rows []Row
	for _, owner := range owners {
		for _, e := range g.edges {
			if e.typ != typ || !g.incident(e, owner.id, incoming, outgoing) {
				continue
			}
			otherID := e.start + e.end - owner.id
			if e.start == owner.id && e.end == owner.id {
				otherID = owner.id
			}
			other, ok := g.nodes[otherID]
			if !ok || !hasLabels(other, bLabels) {
				continue
			}
			switch {
			case ret == "b":
				rows = append(rows, Row{g.snapshot(other)})
			case ret == "id(a), b":
				rows = append(rows, Row{owner.id, g.snapshot(other)})
			case strings.HasPrefix(ret, "a.") && strings.HasSuffix(ret, ", b"):
				prop := strings.TrimSuffix(strings.TrimPrefix(ret, "a."), ", b")
				rows = append(rows, Row{owner.props[prop], g.snapshot(other)})
			default:
				return nil, fmt.Errorf("memgraph: unrecognized projection %q", ret)
			}
		}
	}
	return rows, nil
}

// matchNodes evaluates an optional WHERE clause over every node carrying the
// given labels, in insertion order. The clause is OR-groups of AND-joined
// conditions, matching the precedence the cypher package renders with.
func (g *MemGraph) matchNodes(labels []string, where, varName string, params map[string]any) ([]*memNode, error) {
	var out []*memNode
	for _, id := range g.nodeOrder {
		n, ok := g.nodes[id]
		if !ok || !hasLabels(n, labels) {
			continue
		}
		if where != "" {
			match, err := g.evalWhere(n, where, varName, params)
			if err != nil {
				return nil, err
			}
			if !match {
				continue
			}
		}
		out = append(out, n)
	}
	return out, nil
}

func (g *MemGraph) evalWhere(n *memNode, where, varName string, params map[string]any) (bool, error) {
	for _, group := range strings.Split(where, " OR ") {
		all := true
		for _, cond := range strings.Split(group, " AND ") {
			ok, err := g.evalCondition(n, cond, varName, params)
			if err != nil {
				return false, err
			}
			if !ok {
				all = false
				break
			}
		}
		if all {
			return true, nil
		}
	}
	return false, nil
}

func (g *MemGraph) evalCondition(n *memNode, cond, varName string, params map[string]any) (bool, error) {
	m := reCondition.FindStringSubmatch(cond)
	if m == nil {
		return false, fmt.Errorf("memgraph: bad condition %q", cond)
	}
	idVar, propVar, prop, op, param := m[1], m[2], m[3], m[4], m[5]

	var left Value
	switch {
	case idVar != "":
		if idVar != varName {
			return false, fmt.Errorf("memgraph: unknown variable %q in %q", idVar, cond)
		}
		left = n.id
	default:
		if propVar != varName {
			return false, fmt.Errorf("memgraph: unknown variable %q in %q", propVar, cond)
		}
		left = n.props[prop]
	}
	right, ok := params[param]
	if !ok {
		return false, fmt.Errorf("memgraph: missing parameter $%s", param)
	}

	if op == "IN" {
		items, ok := right.([]any)
		if !ok {
			return false, fmt.Errorf("memgraph: IN parameter $%s is %T, want a list", param, right)
		}
		for _, item := range items {
			if c, ok := compare(left, item); ok && c == 0 {
				return true, nil
			}
		}
		return false, nil
	}

	c, ok := compare(left, right)
	if !ok {
		return false, nil
	}
	switch op {
	case "=":
		return c == 0, nil
	case ">":
		return c > 0, nil
	case ">=":
		return c >= 0, nil
	case "<":
		return c < 0, nil
	case "<=":
		return c <= 0, nil
	}
	return false, fmt.Errorf("memgraph: unknown operator %q", op)
}

func (g *MemGraph) snapshot(n *memNode) Node {
	props := make(map[string]Value, len(n.props))
	for k, v := range n.props {
		props[k] = v
	}
	return Node{ID: n.id, Labels: append([]string(nil), n.labels...), Props: props}
}

func (g *MemGraph) removeNode(id int64) {
	delete(g.nodes, id)
	for i, oid := range g.nodeOrder {
		if oid == id {
			g.nodeOrder = append(g.nodeOrder[:i], g.nodeOrder[i+1:]...)
			break
		}
	}
}

func (g *MemGraph) detachEdges(id int64) {
	kept := g.edges[:0]
	for _, e := range g.edges {
		if e.start == id || e.end == id {
			continue
		}
		kept = append(kept, e)
	}
	g.edges = kept
}

func hasLabels(n *memNode, want []string) bool {
	for _, w := range want {
		found := false
		for _, l := range n.labels {
			if l == w {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// compare orders two graph primitives: numbers against numbers (integer and
// float mixed), strings against strings, booleans by equality only.
func compare(a, b Value) (int, bool) {
	if af, ok := asFloat(a); ok {
		bf, ok := asFloat(b)
		if !ok {
			return 0, false
		}
		switch {
		case af < bf:
			return -1, true
		case af > bf:
			return 1, true
		default:
			return 0, true
		}
	}
	switch av := a.(type) {
	case string:
		bv, ok := b.(string)
		if !ok {
			return 0, false
		}
		return strings.Compare(av, bv), true
	case bool:
		bv, ok := b.(bool)
		if !ok || av != bv {
			return 1, ok
		}
		return 0, true
	}
	return 0, false
}

func asFloat(v Value) (float64, bool) {
	switch n := v.(type) {
	case int64:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case float64:
		return n, true
	case float32:
		return float64(n), true
	default:
		return 0, false
	}
}
