// Package multifn implements the multi-function runtime: pure functions
// over scalar cty values that the evaluator can run either eagerly, against
// materialized inputs, or lazily, wrapped into a field operation so the
// function runs only when something downstream evaluates the field. This mirrors execute_multi_function_node and
// execute_multi_function_node__field in the source evaluator.
package multifn

import (
	"fmt"

	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/function"

	"github.com/specialistvlad/dagflow/internal/field"
	"github.com/specialistvlad/dagflow/internal/value"
)

// Function wraps a cty/function.Function with the DataType metadata the
// evaluator needs to decide value-mode vs field-mode execution. A
// multi-function produces one or more scalar outputs: with one entry in
// Results, Impl returns that output directly; with more than one, Impl must
// return a cty.Tuple of exactly len(Results) elements, positionally
// matching Results, which Call unpacks into one value.Value per output.
type Function struct {
	Name      string
	Impl      function.Function
	ParamType []value.DataType
	Results   []value.DataType
}

// callType is the cty.Type Impl's return value is checked/evaluated
// against: the sole result's type for a single-output function, or a Tuple
// of every result's type for a multi-output one.
func (f Function) callType() cty.Type {
	if len(f.Results) == 1 {
		return f.Results[0].CtyType
	}
	types := make([]cty.Type, len(f.Results))
	for i, dt := range f.Results {
		types[i] = dt.CtyType
	}
	return cty.Tuple(types)
}

// splitResult unpacks a single Impl.Call return into one Value per declared
// Result, positionally. For a single-output function out is the scalar
// result itself; for a multi-output one it is the declared Tuple.
func (f Function) splitResult(out cty.Value) ([]value.Value, error) {
	if len(f.Results) == 1 {
		return []value.Value{value.NewSingle(f.Results[0], out)}, nil
	}
	elems := out.AsValueSlice()
	if len(elems) != len(f.Results) {
		return nil, fmt.Errorf("multifn: %s: result tuple has %d elements, want %d", f.Name, len(elems), len(f.Results))
	}
	vs := make([]value.Value, len(elems))
	for i, dt := range f.Results {
		vs[i] = value.NewSingle(dt, elems[i])
	}
	return vs, nil
}

// CallValueMode runs the function eagerly against materialized inputs,
// returning one materialized output per declared Result. Used when none of
// the call's inputs are fields, mirroring the value-mode branch of
// execute_multi_function_node.
func (f Function) CallValueMode(args []value.Value) ([]value.Value, error) {
	raw := make([]cty.Value, len(args))
	for i := range args {
		if args[i].IsField() {
			return nil, fmt.Errorf("multifn: %s: CallValueMode called with a field-backed argument %d", f.Name, i)
		}
		raw[i] = args[i].Take()
	}
	out, err := f.Impl.Call(raw)
	if err != nil {
		return nil, fmt.Errorf("multifn: %s: %w", f.Name, err)
	}
	return f.splitResult(out)
}

// CallFieldMode wraps the function call into a field.Operation so it is
// only evaluated when demanded, once per Evaluate call.
// Inputs that are not themselves fields are lifted into field.NewConstant so
// the whole call can be expressed uniformly as a field graph, mirroring the
// source's mixed "some inputs are fields, some are single values" case. For
// a multi-output function, every declared output shares the same
// field.Operation via field.NewProjection; nothing is cached, so
// evaluating each output runs the underlying call again.
func (f Function) CallFieldMode(args []value.Value) ([]value.Value, error) {
	sources := make([]field.Source, len(args))
	for i := range args {
		if args[i].IsField() {
			sources[i] = args[i].TakeField()
		} else {
			sources[i] = field.NewConstant(args[i].Take())
		}
	}

	op := field.NewOperation(f.callType(), func(n int, inputs []cty.Value) (cty.Value, error) {
		out, err := f.Impl.Call(inputs)
		if err != nil {
			return cty.NilVal, fmt.Errorf("multifn: %s: %w", f.Name, err)
		}
		return out, nil
	}, sources...)

	if len(f.Results) == 1 {
		return []value.Value{value.NewField(f.Results[0], op)}, nil
	}

	vs := make([]value.Value, len(f.Results))
	for i, dt := range f.Results {
		vs[i] = value.NewField(dt, field.NewProjection(op, i, dt.CtyType))
	}
	return vs, nil
}

// Call dispatches to CallFieldMode if any argument is a field, otherwise
// CallValueMode, matching the source's decision of whether a node needs to
// run in field mode at all.
func (f Function) Call(args []value.Value) ([]value.Value, error) {
	for _, a := range args {
		if a.IsField() {
			return f.CallFieldMode(args)
		}
	}
	return f.CallValueMode(args)
}
