package value

import "github.com/zclconf/go-cty/cty"

// DataType is the small vtable-style type descriptor the evaluator uses in
// place of a polymorphic socket-type hierarchy: a cty.Type plus the
// operations the evaluator needs that cty.Type alone doesn't carry (a
// default value, and whether the type supports field-mode computation).
type DataType struct {
	// Name identifies the type for logging and error messages, e.g. "Float",
	// "Vector", "Geometry".
	Name string
	// CtyType is the underlying cty.Type every Value of this DataType holds.
	CtyType cty.Type
	// Default is returned for unlinked required inputs that declare no
	// explicit default, and as the fallback output when a node execution
	// falls back to default-construction (execute_unknown_node).
	Default cty.Value
	// IsFieldCapable reports whether sockets of this type may carry a
	// deferred FieldSource instead of a materialized value.
	IsFieldCapable bool
}

// Equal reports whether two DataTypes describe the same underlying cty.Type.
// Field-capability and default value are metadata about the type, not part
// of its identity for conversion purposes.
func (d DataType) Equal(other DataType) bool {
	return d.CtyType.Equals(other.CtyType)
}

// DefaultValue returns a fresh single Value holding this DataType's default.
func (d DataType) DefaultValue() Value {
	return NewSingle(d, d.Default)
}
