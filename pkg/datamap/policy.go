package datamap

import (
	"fmt"
	"strings"
)

// MissingPolicy decides what a container does when a child references a
// variable that is not in the records.
type MissingPolicy int

const (
	// PolicyOmit leaves the key out of the enclosing mapping and drops the item
	// from the enclosing sequence.
	PolicyOmit MissingPolicy = iota

	// PolicyNull keeps the key with a null value.
	PolicyNull

	// PolicyAbort returns the VariableNotFound error to the caller.
	PolicyAbort
)

func (p MissingPolicy) String() string {
	switch p {
	case PolicyOmit:
		return "omit"
	case PolicyNull:
		return "null"
	case PolicyAbort:
		return "abort"
	default:
		return fmt.Sprintf("MissingPolicy(%d)", int(p))
	}
}

// ParsePolicy accepts "omit", "null" and "abort", plus "lenient" and "strict"
// as aliases for omit and abort.
func ParsePolicy(s string) (MissingPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "omit", "lenient":
		return PolicyOmit, nil
	case "null":
		return PolicyNull, nil
	case "abort", "strict":
		return PolicyAbort, nil
	default:
		return PolicyOmit, fmt.Errorf("unknown missing-variable policy %q", s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (p MissingPolicy) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler so policies can be read
// from configuration files.
func (p *MissingPolicy) UnmarshalText(text []byte) error {
	parsed, err := ParsePolicy(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}
