// Package datamap interprets declarative datamaps: templates that describe the
// shape of an output document and where each leaf's value comes from in the
// flat questionnaire records.
package datamap

// TypeID names a typed datamap such as an issuer or a stakeholder. Post-processors
// are registered against a TypeID. Untyped mappings have an empty TypeID.
type TypeID string

// Node is one element of a datamap tree. The set of implementations is closed.
type Node interface {
	node()
}

// Literal is a constant number, bool or null returned as-is.
type Literal struct {
	Value interface{}
}

// VarRef is a string leaf: a variable name, a pipe-delimited template
// expression, or a string containing the loop index token.
type VarRef struct {
	Name string
}

// Field is one key of a Mapping.
type Field struct {
	Key   string
	Value Node
}

// Mapping is an ordered object. Typed mappings come from a Descriptor and carry
// its TypeID so field post-processors can be looked up.
type Mapping struct {
	Type   TypeID
	Fields []Field
}

// Sequence is an ordered list of nodes.
type Sequence struct {
	Items []Node
}

// Overridable is a typed leaf that always resolves to Static.
type Overridable struct {
	Static interface{}
}

// Repeatable expands RepeatedPattern once per iteration. Variables named by
// RepeatedVariables are resolved once and pinned for every iteration.
type Repeatable struct {
	Type              TypeID
	RepeatCount       Node
	RepeatedVariables Node
	RepeatedPattern   Node
}

func (*Literal) node()     {}
func (*VarRef) node()      {}
func (*Mapping) node()     {}
func (*Sequence) node()    {}
func (*Overridable) node() {}
func (*Repeatable) node()  {}

// Get returns the node stored under key.
func (m *Mapping) Get(key string) (Node, bool) {
	for _, f := range m.Fields {
		if f.Key == key {
			return f.Value, true
		}
	}
	return nil, false
}

// Set replaces the value under key, or appends it when absent.
func (m *Mapping) Set(key string, value Node) {
	for i := range m.Fields {
		if m.Fields[i].Key == key {
			m.Fields[i].Value = value
			return
		}
	}
	m.Fields = append(m.Fields, Field{Key: key, Value: value})
}

// Keys returns the field names in order.
func (m *Mapping) Keys() []string {
	keys := make([]string, len(m.Fields))
	for i, f := range m.Fields {
		keys[i] = f.Key
	}
	return keys
}

// Static is shorthand for an Overridable leaf.
func Static(v interface{}) *Overridable {
	return &Overridable{Static: v}
}

// Var is shorthand for a VarRef leaf.
func Var(name string) *VarRef {
	return &VarRef{Name: name}
}

// RawValue returns the JSON-like value a node was written as, without resolving
// anything against records. It backs the {"val": ...} escape.
func RawValue(n Node) interface{} {
	switch v := n.(type) {
	case nil:
		return nil
	case *Literal:
		return v.Value
	case *VarRef:
		return v.Name
	case *Overridable:
		return v.Static
	case *Sequence:
		out := make([]interface{}, len(v.Items))
		for i, item := range v.Items {
			out[i] = RawValue(item)
		}
		return out
	case *Mapping:
		out := make(map[string]interface{}, len(v.Fields))
		for _, f := range v.Fields {
			out[f.Key] = RawValue(f.Value)
		}
		return out
	case *Repeatable:
		return map[string]interface{}{
			"repeat_count":       RawValue(v.RepeatCount),
			"repeated_variables": RawValue(v.RepeatedVariables),
			"repeated_pattern":   RawValue(v.RepeatedPattern),
		}
	default:
		return nil
	}
}
