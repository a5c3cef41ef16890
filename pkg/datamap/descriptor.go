package datamap

import "fmt"

// ScalarKind is the type an Overridable's static value is coerced to.
type ScalarKind int

const (
	KindString ScalarKind = iota
	KindBool
	KindInt
	KindFloat
)

func (k ScalarKind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	default:
		return fmt.Sprintf("ScalarKind(%d)", int(k))
	}
}

// FieldSpec describes one field of a typed datamap.
type FieldSpec struct {
	// Name is the JSON key of the field
	Name string

	// Type is set when the field holds a nested typed datamap (or a list of them)
	Type *Descriptor

	// List marks a field holding a list
	List bool

	// Required fields must be present in the datamap file unless Default is set
	Required bool

	// Static is the kind a {"static": x} value is coerced to
	Static ScalarKind

	// Default builds the node used when the field is absent
	Default func() Node
}

// Descriptor is the hand-written field list of a typed datamap. It drives both
// decoding and post-processor lookup.
type Descriptor struct {
	Type   TypeID
	Fields []FieldSpec

	// Pattern makes this a repeatable wrapper whose repeated_pattern is decoded
	// with Pattern. Fields is ignored for repeatable wrappers.
	Pattern *Descriptor
}

// Field returns the spec for name.
func (d *Descriptor) Field(name string) (FieldSpec, bool) {
	for _, f := range d.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return FieldSpec{}, false
}

// Repeatable reports whether d describes a repeatable wrapper.
func (d *Descriptor) Repeatable() bool {
	return d.Pattern != nil
}

// StaticDefault returns a Default that yields a fresh Overridable holding v.
func StaticDefault(v interface{}) func() Node {
	return func() Node {
		return Static(v)
	}
}

// EmptyListDefault returns a Default that yields an empty sequence.
func EmptyListDefault() func() Node {
	return func() Node {
		return &Sequence{}
	}
}

// Repeatable wrapper field names.
const (
	RepeatCountField       = "repeat_count"
	RepeatedVariablesField = "repeated_variables"
	RepeatedPatternField   = "repeated_pattern"
)

var repeatableFields = []FieldSpec{
	{Name: RepeatCountField, Required: true, Static: KindInt},
	{Name: RepeatedVariablesField, List: true, Default: EmptyListDefault()},
	{Name: RepeatedPatternField, Required: true},
}
