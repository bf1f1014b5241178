package engine

import (
	"context"
	"sync"
	"sync/atomic"
)

// nodeType discriminates the NamespaceNode variant.
type nodeType int

const (
	nodeLeaf nodeType = iota
	nodeObject
	nodeDeferred
)

// Cell states, observable through Node.State for diagnostics.
const (
	// StateResolved marks Leaf/Object nodes and successfully
	// materialized Deferred nodes.
	StateResolved = "resolved"

	// StateDeferred marks a Deferred node not yet touched.
	StateDeferred = "deferred"

	// StateLoading marks a Deferred node with a load in flight.
	StateLoading = "loading"

	// StateFailed marks a permanently poisoned Deferred node.
	StateFailed = "failed"
)

const (
	cellIdle int32 = iota
	cellLoading
	cellReady
	cellFailed
)

// lazyCell holds the deferred-load state for one subtree: a once-guard
// for single-flight, the cached result, and the cached failure. The
// transition Deferred -> Loading -> (Resolved|Failed) happens exactly
// once; a failure poisons the cell for every later access.
type lazyCell struct {
	once  sync.Once
	state atomic.Int32
	load  func(ctx context.Context) (*Node, error)
	node  *Node
	err   error
}

func (c *lazyCell) resolve(ctx context.Context) (*Node, error) {
	c.once.Do(func() {
		c.state.Store(cellLoading)
		node, err := c.load(ctx)
		if err != nil {
			c.err = err
			c.state.Store(cellFailed)
			return
		}
		c.node = node
		c.state.Store(cellReady)
	})
	return c.node, c.err
}

// Node is one namespace tree node: a Leaf value, an Object of named
// children, or a Deferred subtree materialized on first access.
// Object children are fixed once the node is built, so concurrent reads
// need no locking; all mutation is confined to cell resolution.
type Node struct {
	typ      nodeType
	value    any
	fn       Callable // invocable surface of a callable object node
	children map[string]*Node
	order    []string // discovery order, for observable iteration
	cell     *lazyCell
}

// NewLeaf creates a Leaf node holding a materialized value.
func NewLeaf(value any) *Node {
	return &Node{typ: nodeLeaf, value: value}
}

// NewObject creates an empty Object node.
func NewObject() *Node {
	return &Node{typ: nodeObject, children: make(map[string]*Node)}
}

// NewDeferred creates a Deferred node whose subtree is produced by load
// on first access.
func NewDeferred(load func(ctx context.Context) (*Node, error)) *Node {
	return &Node{typ: nodeDeferred, cell: &lazyCell{load: load}}
}

// put installs a child under a unique name. Duplicate names are an
// export collision.
func (n *Node) put(name string, child *Node) error {
	if _, exists := n.children[name]; exists {
		return NewExportCollisionError(name, "duplicate namespace key")
	}
	n.children[name] = child
	n.order = append(n.order, name)
	return nil
}

// putShadow installs a child unless the name is already taken, in which
// case it reports the shadowing to the caller instead of failing.
func (n *Node) putShadow(name string, child *Node) (shadowed bool) {
	if _, exists := n.children[name]; exists {
		return true
	}
	n.children[name] = child
	n.order = append(n.order, name)
	return false
}

// child returns the named child of an Object node.
func (n *Node) child(name string) (*Node, bool) {
	if n.typ != nodeObject {
		return nil, false
	}
	c, ok := n.children[name]
	return c, ok
}

// resolve materializes a Deferred node, passing other variants through.
// Concurrent callers share one load; a failed load is cached and
// returned on every subsequent call.
func (n *Node) resolve(ctx context.Context) (*Node, error) {
	if n.typ != nodeDeferred {
		return n, nil
	}
	return n.cell.resolve(ctx)
}

// State reports the node's materialization state.
func (n *Node) State() string {
	if n.typ != nodeDeferred {
		return StateResolved
	}
	switch n.cell.state.Load() {
	case cellLoading:
		return StateLoading
	case cellReady:
		return StateResolved
	case cellFailed:
		return StateFailed
	default:
		return StateDeferred
	}
}

// Keys returns the Object node's child names in discovery order.
func (n *Node) Keys() []string {
	out := make([]string, len(n.order))
	copy(out, n.order)
	return out
}

// materialize forces the whole subtree to Leaf/Object. Used by eager
// loading so the exposed namespace contains no deferred placeholders.
func (n *Node) materialize(ctx context.Context) (*Node, error) {
	resolved, err := n.resolve(ctx)
	if err != nil {
		return nil, err
	}
	if resolved.typ != nodeObject {
		return resolved, nil
	}
	for _, name := range resolved.order {
		child, err := resolved.children[name].materialize(ctx)
		if err != nil {
			return nil, err
		}
		resolved.children[name] = child
	}
	return resolved, nil
}
