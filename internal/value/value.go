// Package value defines the dynamic value and type vocabulary the evaluator
// moves between sockets. A Value pairs a DataType with either a materialized
// cty.Value or, for field-capable types, a lazily computed field handle.
package value

import (
	"fmt"
	"sync/atomic"

	"github.com/zclconf/go-cty/cty"
)

// Stats tracks construct/copy vs destruct/extract counts so tests can assert
// value conservation (every value that is constructed is eventually either
// moved into exactly one consumer or explicitly destructed, never both).
var Stats struct {
	Constructed int64
	Destructed  int64
}

func countConstruct() { atomic.AddInt64(&Stats.Constructed, 1) }
func countDestruct()  { atomic.AddInt64(&Stats.Destructed, 1) }

// ResetStats zeroes the allocation ledger. Intended for use between test
// cases that each want a fresh conservation count.
func ResetStats() {
	atomic.StoreInt64(&Stats.Constructed, 0)
	atomic.StoreInt64(&Stats.Destructed, 0)
}

// FieldSource supplies a lazily computed value for a field-capable socket.
// Concrete implementations live in package field; value only needs to hold
// and forward the handle.
type FieldSource interface {
	// Evaluate materializes the field into a concrete cty.Value for the
	// given element count. A field that does not vary across elements
	// ignores n.
	Evaluate(n int) (cty.Value, error)
	// Type returns the scalar cty.Type the field ultimately produces.
	Type() cty.Type
}

// Value is a single-owner handle to either a materialized cty.Value or a
// deferred FieldSource. Exactly one of single/field is set.
type Value struct {
	typ    DataType
	single cty.Value
	field  FieldSource
	taken  bool
}

// NewSingle constructs an eagerly materialized Value of the given type.
func NewSingle(typ DataType, v cty.Value) Value {
	countConstruct()
	return Value{typ: typ, single: v}
}

// NewField constructs a deferred Value backed by a FieldSource. Only valid
// for field-capable types.
func NewField(typ DataType, f FieldSource) Value {
	if !typ.IsFieldCapable {
		panic(fmt.Sprintf("value: type %s is not field-capable", typ.CtyType.FriendlyName()))
	}
	countConstruct()
	return Value{typ: typ, field: f}
}

// IsField reports whether this Value is a deferred field rather than a
// materialized single value.
func (v Value) IsField() bool { return v.field != nil }

// Type returns the DataType this Value was constructed with.
func (v Value) Type() DataType { return v.typ }

// Take extracts the materialized cty.Value, marking this handle consumed.
// Calling Take twice on values produced from the same construction is a
// programming error in the evaluator (double consumption of a single-owner
// value) and panics rather than returning a zero value silently.
func (v *Value) Take() cty.Value {
	if v.taken {
		panic("value: Take called twice on the same Value")
	}
	if v.field != nil {
		panic("value: Take called on a field-backed Value; call TakeField")
	}
	v.taken = true
	countDestruct()
	return v.single
}

// TakeField extracts the FieldSource, marking this handle consumed.
func (v *Value) TakeField() FieldSource {
	if v.taken {
		panic("value: TakeField called twice on the same Value")
	}
	if v.field == nil {
		panic("value: TakeField called on a materialized Value; call Take")
	}
	v.taken = true
	countDestruct()
	return v.field
}

// Copy produces an independent Value with its own ownership, incrementing
// the allocation ledger the same way a fresh construction would. cty.Value
// is already immutable and safe to share, so copying is just rebuilding a
// fresh handle around the same underlying data.
func (v Value) Copy() Value {
	countConstruct()
	return Value{typ: v.typ, single: v.single, field: v.field}
}

// Release destructs a Value that is never going to be Taken, keeping the
// allocation ledger balanced. Safe to call on an already-taken Value (a
// no-op in that case, matching the source's destruct-on-empty-optional
// behavior for SingleInputValue).
func (v *Value) Release() {
	if v.taken {
		return
	}
	v.taken = true
	countDestruct()
}
