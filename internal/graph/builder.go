package graph

import "fmt"

// Builder is a concrete, in-memory Graph implementation for assembling a
// node/link topology programmatically — the evaluator's callers construct a
// graph this way, and its tests and examples build fixtures with it.
// Adapted from the two-pass create-then-link shape of
// builder.Storage.createNodes / linkNodes, collapsed into one AddNode /
// AddLink API since this graph has no step/resource distinction or
// expression-derived implicit dependencies to resolve in a second pass.
type Builder struct {
	nodes map[NodeHandle]NodeInfo
	order []NodeHandle

	// linksByTarget and linksByOrigin index the same Link set for O(1)
	// lookups in both traversal directions instead of scanning a flat
	// edge list.
	linksByTarget map[SocketRef][]SocketRef
	linksByOrigin map[SocketRef][]SocketRef
}

// NewBuilder returns an empty graph builder.
func NewBuilder() *Builder {
	return &Builder{
		nodes:         make(map[NodeHandle]NodeInfo),
		linksByTarget: make(map[SocketRef][]SocketRef),
		linksByOrigin: make(map[SocketRef][]SocketRef),
	}
}

// AddNode registers a new node of the given type and socket counts,
// returning its handle.
func (b *Builder) AddNode(typeName string, inputCount, outputCount int, isLazy bool) NodeHandle {
	h := newNodeHandle()
	b.nodes[h] = NodeInfo{
		TypeName:    typeName,
		IsLazy:      isLazy,
		InputCount:  inputCount,
		OutputCount: outputCount,
	}
	b.order = append(b.order, h)
	return h
}

// AddLink records a directed edge from an output socket to an input
// socket. Panics if either socket's node is unknown or the socket index is
// out of range for its node, or if kind/side don't match (origin must be
// Output, target must be Input) — these are construction-time programming
// errors, not runtime data errors.
func (b *Builder) AddLink(origin, target SocketRef) {
	if origin.Kind != Output {
		panic("graph: link origin must be an output socket")
	}
	if target.Kind != Input {
		panic("graph: link target must be an input socket")
	}
	b.mustHaveSocket(origin)
	b.mustHaveSocket(target)

	b.linksByTarget[target] = append(b.linksByTarget[target], origin)
	b.linksByOrigin[origin] = append(b.linksByOrigin[origin], target)
}

func (b *Builder) mustHaveSocket(s SocketRef) {
	info, ok := b.nodes[s.Node]
	if !ok {
		panic(fmt.Sprintf("graph: unknown node %s", s.Node))
	}
	count := info.InputCount
	if s.Kind == Output {
		count = info.OutputCount
	}
	if s.Index < 0 || s.Index >= count {
		panic(fmt.Sprintf("graph: socket index %d out of range for node %s (kind=%d, count=%d)", s.Index, s.Node, s.Kind, count))
	}
}

func (b *Builder) Nodes() []NodeHandle {
	out := make([]NodeHandle, len(b.order))
	copy(out, b.order)
	return out
}

func (b *Builder) Node(h NodeHandle) NodeInfo { return b.nodes[h] }

func (b *Builder) Origins(input SocketRef) []SocketRef { return b.linksByTarget[input] }

func (b *Builder) Targets(output SocketRef) []SocketRef { return b.linksByOrigin[output] }
