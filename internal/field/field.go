// Package field implements the deferred, per-element computation
// abstraction the source calls a "field": a scalar value that isn't
// computed until something demands it, and which can compose with other
// fields without materializing intermediates. It follows the same
// small-interface, New*-constructor idiom the rest of this module uses.
package field

import (
	"fmt"

	"github.com/zclconf/go-cty/cty"
)

// Source is implemented by anything that can produce an element count and
// evaluate itself into a concrete cty.Value. It is the same shape as
// value.FieldSource; the two are kept separate so this package doesn't
// import value (avoiding an import cycle with convert, which imports both).
type Source interface {
	Evaluate(n int) (cty.Value, error)
	Type() cty.Type
}

// constant is a field whose value never varies across elements.
type constant struct {
	typ cty.Type
	val cty.Value
}

// NewConstant builds a field that evaluates to val regardless of n,
// grounded on the source's handling of unlinked field-capable inputs: a
// single default value broadcast across every element.
func NewConstant(val cty.Value) Source {
	return constant{typ: val.Type(), val: val}
}

func (c constant) Evaluate(n int) (cty.Value, error) { return c.val, nil }
func (c constant) Type() cty.Type                    { return c.typ }

// Operation composes zero or more input fields through a pure function,
// deferring evaluation of the inputs until Evaluate is called. This is the
// field-mode counterpart of executing a multi-function node: instead of
// running the function once over materialized inputs, Operation wraps the
// function itself so the whole chain can still be rewritten or shared
// before anything runs.
type Operation struct {
	inputs []Source
	typ    cty.Type
	fn     func(n int, inputs []cty.Value) (cty.Value, error)
}

// NewOperation builds a field that evaluates its inputs, then applies fn to
// produce the final value. fn must not mutate its inputs slice.
func NewOperation(typ cty.Type, fn func(n int, inputs []cty.Value) (cty.Value, error), inputs ...Source) *Operation {
	return &Operation{inputs: inputs, typ: typ, fn: fn}
}

func (o *Operation) Type() cty.Type { return o.typ }

func (o *Operation) Evaluate(n int) (cty.Value, error) {
	resolved := make([]cty.Value, len(o.inputs))
	for i, in := range o.inputs {
		v, err := in.Evaluate(n)
		if err != nil {
			return cty.NilVal, fmt.Errorf("field: evaluating input %d: %w", i, err)
		}
		resolved[i] = v
	}
	out, err := o.fn(n, resolved)
	if err != nil {
		return cty.NilVal, fmt.Errorf("field: operation failed: %w", err)
	}
	return out, nil
}

// projection reads one element out of a shared Operation's tuple-valued
// result, letting several multi-output fields share a single underlying
// computation instead of each wrapping their own copy of it. Each
// Evaluate(n) still re-runs the shared Operation — this package caches
// nothing across calls — but the tuple is computed once per call site
// rather than once per accessed output per call site.
type projection struct {
	op  *Operation
	idx int
	typ cty.Type
}

// NewProjection returns a Source for element idx of op's tuple-typed
// result, typed typ.
func NewProjection(op *Operation, idx int, typ cty.Type) Source {
	return projection{op: op, idx: idx, typ: typ}
}

func (p projection) Type() cty.Type { return p.typ }

func (p projection) Evaluate(n int) (cty.Value, error) {
	out, err := p.op.Evaluate(n)
	if err != nil {
		return cty.NilVal, err
	}
	elems := out.AsValueSlice()
	if p.idx >= len(elems) {
		return cty.NilVal, fmt.Errorf("field: projection index %d out of range (result has %d elements)", p.idx, len(elems))
	}
	return elems[p.idx], nil
}

// convertField lazily converts an inner field's output to a different
// cty.Type each time it is evaluated.
type convertField struct {
	inner  Source
	target cty.Type
	fn     func(cty.Value, cty.Type) (cty.Value, error)
}

// NewConvert wraps inner so Evaluate converts the result to target. The
// actual conversion logic is supplied by the caller (internal/convert) to
// avoid an import cycle between field and convert.
func NewConvert(inner Source, target cty.Type) Source {
	return &convertField{inner: inner, target: target, fn: rawConvert}
}

func (c *convertField) Type() cty.Type { return c.target }

func (c *convertField) Evaluate(n int) (cty.Value, error) {
	v, err := c.inner.Evaluate(n)
	if err != nil {
		return cty.NilVal, err
	}
	return c.fn(v, c.target)
}

// rawConvert is overridden by internal/convert at init time via
// RegisterConverter, keeping this package free of a dependency on the cty
// convert package's policy decisions while still letting it perform the
// conversion.
var rawConvert = func(v cty.Value, target cty.Type) (cty.Value, error) {
	if v.Type().Equals(target) {
		return v, nil
	}
	return cty.NilVal, fmt.Errorf("field: no converter registered for %s -> %s", v.Type().FriendlyName(), target.FriendlyName())
}

// RegisterConverter installs the real conversion function. Called once from
// internal/convert's init so field.NewConvert can perform real conversions
// without field importing convert.
func RegisterConverter(fn func(cty.Value, cty.Type) (cty.Value, error)) {
	rawConvert = fn
}
