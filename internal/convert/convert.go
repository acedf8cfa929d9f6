// Package convert implements the socket-to-socket value conversion registry
// the evaluator consults when an output type doesn't match an input's
// declared type. It dispatches between an eager, cty-based conversion for
// materialized values and a lazy, field-operation-based conversion for
// field-backed values, mirroring how the evaluator itself distinguishes the
// two value kinds before forwarding.
package convert

import (
	"fmt"

	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"

	"github.com/specialistvlad/dagflow/internal/field"
	"github.com/specialistvlad/dagflow/internal/value"
)

func init() {
	field.RegisterConverter(RawValue)
}

// Value converts v, which must already be a materialized (non-field)
// value.Value, to the target DataType. It is a no-op if the types already
// match.
func Value(v value.Value, target value.DataType) (value.Value, error) {
	if v.IsField() {
		return value.Value{}, fmt.Errorf("convert: Value called on a field-backed value, use Field")
	}
	if v.Type().Equal(target) {
		return v, nil
	}
	raw := v.Take()
	conv, err := convert.Convert(raw, target.CtyType)
	if err != nil {
		return value.Value{}, fmt.Errorf("converting %s to %s: %w", v.Type().Name, target.Name, err)
	}
	return value.NewSingle(target, conv), nil
}

// RawValue converts a plain cty.Value between cty.Types, independent of the
// socket DataType wrapper. Used by field.Operation when it needs to convert
// an already-evaluated element on the fly.
func RawValue(v cty.Value, target cty.Type) (cty.Value, error) {
	return convert.Convert(v, target)
}

// Field wraps v's FieldSource in a conversion, producing a new field-backed
// value.Value whose field converts each evaluated element to target's underlying cty.Type
// lazily, matching the source's field-mode branch of convert_value: a
// conversion between field-capable types never forces materialization.
func Field(v value.Value, target value.DataType) (value.Value, error) {
	if !v.IsField() {
		return value.Value{}, fmt.Errorf("convert: Field called on a materialized value, use Value")
	}
	src := v.TakeField()
	if src.Type().Equals(target.CtyType) {
		return value.NewField(target, src), nil
	}
	converted := field.NewConvert(src, target.CtyType)
	return value.NewField(target, converted), nil
}
