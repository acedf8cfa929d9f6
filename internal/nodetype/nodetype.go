// Package nodetype is the node-type registry the evaluator consults to
// learn a node's sockets and how to execute it. It is the Go-native,
// HCL-free replacement for a registry+schema pair: node types are
// registered directly from Go code instead of parsed from a declaration
// language, since this repository has no file format in scope.
package nodetype

import (
	"context"
	"fmt"
	"sync"

	"github.com/specialistvlad/dagflow/internal/multifn"
	"github.com/specialistvlad/dagflow/internal/value"
)

// SocketDecl describes one input or output socket a node type exposes.
type SocketDecl struct {
	Name string
	Type value.DataType
	// Default is returned for an unlinked input that declares no
	// ImplicitDefault. Ignored for outputs.
	Default value.Value
	// ImplicitDefault, when set, computes a per-invocation default for an
	// unlinked input instead of a static constant — e.g. "index of this
	// element" — mirroring get_implicit_socket_input in the source
	// evaluator. Checked before Default.
	ImplicitDefault func(ctx context.Context) (value.Value, error)
	// SupportsField reports whether this socket may carry a field value.
	SupportsField bool
	// IsMultiInput marks an input socket that accepts more than one
	// incoming link. Values are ordered by the graph's declared link order,
	// not by arrival; each value fills the first empty slot whose origin
	// matches.
	IsMultiInput bool
}

// ExecuteFunc is a custom node callback, the Go analogue of a node's
// geometry_node_execute. Params exposes the facade it uses to read inputs
// and write outputs below.
type ExecuteFunc func(ctx context.Context, params Params) error

// Params is the facade a node's ExecuteFunc uses to read inputs and write
// outputs without knowing about the scheduler, locks, or forwarding logic
// behind it. The concrete implementation lives in internal/evaluator.
type Params interface {
	// Input returns the current value of the named input socket. Usable
	// only for sockets the node declared "used" for this invocation.
	Input(name string) (value.Value, error)
	// InputAll returns every arrived value of a multi-input socket, in
	// link order. Returns an error for a single-input socket.
	InputAll(name string) ([]value.Value, error)
	// SetOutput stores v as the named output socket's produced value.
	SetOutput(name string, v value.Value) error
	// OutputIsRequired reports whether the named output has at least one
	// consumer that actually needs its value this invocation, letting a
	// node skip expensive work for outputs nobody asked for.
	OutputIsRequired(name string) bool
}

// LazyParams is an optional capability a lazy NodeType's ExecuteFunc may
// use, via a type assertion on its Params, to require an input it did not
// know up front it would need. See internal/evaluator's paramsProvider.
type LazyParams interface {
	Params
	// LazyRequireInput marks name Required and returns its value if
	// already available. If ok is false, Execute must return
	// ErrInputNotReady; the node is rescheduled once the input arrives.
	LazyRequireInput(name string) (v value.Value, ok bool)
}

// ErrInputNotReady is returned by a lazy node's ExecuteFunc to mean
// "reschedule me once the input I just required via LazyRequireInput
// arrives" rather than a real execution failure.
var ErrInputNotReady = fmt.Errorf("nodetype: input not ready")

// NodeType is one registered kind of computation node: its socket
// declarations plus how to execute it. A node type sets at most one of
// Execute or MultiFunction; the evaluator dispatches on whichever is set,
// falling back to default-construction of every required output when
// neither is (the "unknown node" path).
type NodeType struct {
	Name    string
	Inputs  []SocketDecl
	Outputs []SocketDecl
	Execute ExecuteFunc
	// MultiFunction, when set, makes this node a pure function of its
	// scalar inputs instead of a custom callback: the evaluator gathers
	// input values in declaration order and calls it directly, in either
	// value or field mode depending on whether any input is a field.
	MultiFunction *multifn.Function
}

// Module mirrors a registry.Module interface: a unit of related node
// types that registers itself into a Registry.
type Module interface {
	Register(r *Registry)
}

// Registry holds every NodeType known to an evaluator instance.
type Registry struct {
	mu    sync.RWMutex
	types map[string]NodeType
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{types: make(map[string]NodeType)}
}

// Register adds nt to the registry. Registering the same name twice is a
// programming error and panics: fail fast on duplicate handler
// registration.
func (r *Registry) Register(nt NodeType) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.types[nt.Name]; exists {
		panic(fmt.Sprintf("nodetype: %q already registered", nt.Name))
	}
	r.types[nt.Name] = nt
}

// RegisterModule calls m.Register(r), letting a group of related node types
// register themselves together.
func (r *Registry) RegisterModule(m Module) {
	m.Register(r)
}

// Lookup returns the NodeType registered under name.
func (r *Registry) Lookup(name string) (NodeType, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	nt, ok := r.types[name]
	return nt, ok
}
