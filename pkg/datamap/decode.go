package datamap

import (
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"math"
	"os"
	"strconv"
	"strings"

	cerrors "github.com/wehubfusion/ce2ocf/pkg/errors"
)

const staticKey = "static"

// Parse decodes an untyped datamap from JSON, keeping object keys in document
// order. Strings become VarRefs, numbers, bools and null become Literals.
func Parse(r io.Reader) (Node, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()
	n, err := parseNode(dec)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", cerrors.ErrInvalidDatamap, err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("%w: trailing data after datamap", cerrors.ErrInvalidDatamap)
	}
	return n, nil
}

// Load decodes a datamap and binds it to d.
func Load(r io.Reader, d *Descriptor) (Node, error) {
	n, err := Parse(r)
	if err != nil {
		return nil, err
	}
	return Bind(n, d)
}

// LoadFile decodes the datamap at path and binds it to d.
func LoadFile(path string, d *Descriptor) (Node, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open datamap %s: %w", path, err)
	}
	defer f.Close()

	n, err := Load(f, d)
	if err != nil {
		return nil, fmt.Errorf("datamap %s: %w", path, err)
	}
	return n, nil
}

// LoadFS is LoadFile over an fs.FS, used for embedded default datamaps.
func LoadFS(fsys fs.FS, path string, d *Descriptor) (Node, error) {
	f, err := fsys.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open datamap %s: %w", path, err)
	}
	defer f.Close()

	n, err := Load(f, d)
	if err != nil {
		return nil, fmt.Errorf("datamap %s: %w", path, err)
	}
	return n, nil
}

func parseNode(dec *json.Decoder) (Node, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '{':
			m := &Mapping{}
			for dec.More() {
				keyTok, err := dec.Token()
				if err != nil {
					return nil, err
				}
				key, ok := keyTok.(string)
				if !ok {
					return nil, fmt.Errorf("unexpected object key %v", keyTok)
				}
				value, err := parseNode(dec)
				if err != nil {
					return nil, err
				}
				m.Set(key, value)
			}
			if _, err := dec.Token(); err != nil {
				return nil, err
			}
			return m, nil
		case '[':
			s := &Sequence{}
			for dec.More() {
				item, err := parseNode(dec)
				if err != nil {
					return nil, err
				}
				s.Items = append(s.Items, item)
			}
			if _, err := dec.Token(); err != nil {
				return nil, err
			}
			return s, nil
		default:
			return nil, fmt.Errorf("unexpected delimiter %q", t)
		}
	case string:
		return &VarRef{Name: t}, nil
	case json.Number:
		if i, err := t.Int64(); err == nil && i >= math.MinInt && i <= math.MaxInt {
			return &Literal{Value: int(i)}, nil
		}
		f, err := t.Float64()
		if err != nil {
			return nil, err
		}
		return &Literal{Value: f}, nil
	case bool:
		return &Literal{Value: t}, nil
	case nil:
		return &Literal{Value: nil}, nil
	default:
		return nil, fmt.Errorf("unexpected token %v", tok)
	}
}

// Bind converts an untyped tree into the typed shape d describes: nested
// descriptors become typed Mappings, {"static": x} fields become Overridables,
// absent fields take their defaults and repeatable wrappers become Repeatables.
// Keys d does not know are dropped.
func Bind(n Node, d *Descriptor) (Node, error) {
	return bind(n, d, string(d.Type))
}

func bind(n Node, d *Descriptor, path string) (Node, error) {
	m, ok := n.(*Mapping)
	if !ok {
		return nil, fmt.Errorf("%w: %s: expected an object, got %s", cerrors.ErrInvalidDatamap, path, describe(n))
	}

	if d.Repeatable() {
		fields, err := bindFields(m, repeatableFields, path)
		if err != nil {
			return nil, err
		}
		rep := &Repeatable{Type: d.Type}
		for _, f := range fields.Fields {
			switch f.Key {
			case RepeatCountField:
				rep.RepeatCount = f.Value
			case RepeatedVariablesField:
				rep.RepeatedVariables = f.Value
			case RepeatedPatternField:
				pattern, err := bind(f.Value, d.Pattern, path+"."+RepeatedPatternField)
				if err != nil {
					return nil, err
				}
				rep.RepeatedPattern = pattern
			}
		}
		return rep, nil
	}

	out, err := bindFields(m, d.Fields, path)
	if err != nil {
		return nil, err
	}
	out.Type = d.Type
	return out, nil
}

func bindFields(m *Mapping, specs []FieldSpec, path string) (*Mapping, error) {
	out := &Mapping{Fields: make([]Field, 0, len(specs))}
	for _, spec := range specs {
		fieldPath := path + "." + spec.Name
		value, present := m.Get(spec.Name)
		if !present {
			switch {
			case spec.Default != nil:
				out.Fields = append(out.Fields, Field{Key: spec.Name, Value: spec.Default()})
			case spec.Required:
				return nil, fmt.Errorf("%w: %s is required", cerrors.ErrInvalidDatamap, fieldPath)
			}
			continue
		}
		bound, err := bindField(value, spec, fieldPath)
		if err != nil {
			return nil, err
		}
		out.Fields = append(out.Fields, Field{Key: spec.Name, Value: bound})
	}
	return out, nil
}

func bindField(value Node, spec FieldSpec, path string) (Node, error) {
	if static, ok := staticValue(value); ok && spec.Type == nil {
		v, err := coerceStatic(static, spec.Static)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", cerrors.ErrInvalidDatamap, path, err)
		}
		return Static(v), nil
	}

	if seq, ok := value.(*Sequence); ok && spec.List {
		out := &Sequence{Items: make([]Node, 0, len(seq.Items))}
		for i, item := range seq.Items {
			itemSpec := spec
			itemSpec.List = false
			bound, err := bindField(item, itemSpec, fmt.Sprintf("%s[%d]", path, i))
			if err != nil {
				return nil, err
			}
			out.Items = append(out.Items, bound)
		}
		return out, nil
	}

	if spec.Type != nil {
		if _, ok := value.(*Mapping); ok {
			return bind(value, spec.Type, path)
		}
	}
	return value, nil
}

// staticValue reports whether n is a single-key {"static": x} object.
func staticValue(n Node) (Node, bool) {
	m, ok := n.(*Mapping)
	if !ok || len(m.Fields) != 1 || m.Fields[0].Key != staticKey {
		return nil, false
	}
	return m.Fields[0].Value, true
}

func coerceStatic(n Node, kind ScalarKind) (interface{}, error) {
	raw := RawValue(n)
	switch raw.(type) {
	case map[string]interface{}, []interface{}:
		return nil, fmt.Errorf("static value must be a scalar, got %s", describe(n))
	}
	if raw == nil {
		return nil, nil
	}

	switch kind {
	case KindString:
		switch v := raw.(type) {
		case string:
			return v, nil
		case bool:
			return strconv.FormatBool(v), nil
		case int:
			return strconv.Itoa(v), nil
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64), nil
		}
	case KindBool:
		switch v := raw.(type) {
		case bool:
			return v, nil
		case string:
			b, err := strconv.ParseBool(strings.TrimSpace(v))
			if err != nil {
				return nil, fmt.Errorf("static value %q is not a bool", v)
			}
			return b, nil
		}
	case KindInt:
		switch v := raw.(type) {
		case int:
			return v, nil
		case float64:
			if v == math.Trunc(v) {
				return int(v), nil
			}
		case string:
			i, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				return nil, fmt.Errorf("static value %q is not an integer", v)
			}
			return i, nil
		}
	case KindFloat:
		switch v := raw.(type) {
		case float64:
			return v, nil
		case int:
			return float64(v), nil
		case string:
			f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
			if err != nil {
				return nil, fmt.Errorf("static value %q is not a number", v)
			}
			return f, nil
		}
	}
	return nil, fmt.Errorf("static value %v cannot be used as %s", raw, kind)
}

func describe(n Node) string {
	switch n.(type) {
	case nil:
		return "nothing"
	case *Literal:
		return "a literal"
	case *VarRef:
		return "a string"
	case *Mapping:
		return "an object"
	case *Sequence:
		return "a list"
	case *Overridable:
		return "a static value"
	case *Repeatable:
		return "a repeatable block"
	default:
		return fmt.Sprintf("%T", n)
	}
}
