// Package record holds the flat list of questionnaire answers that every
// datamap traversal reads from, plus loaders for the formats the vendor exports.
package record

import (
	"fmt"
	"strconv"
	"strings"

	cerrors "github.com/wehubfusion/ce2ocf/pkg/errors"
)

// Record is one resolved questionnaire variable.
type Record struct {
	Name       string   `json:"name"`
	Repetition *string  `json:"repetition"`
	Values     []string `json:"values"`
}

// Records is an immutable-by-convention list of source records.
type Records []Record

// New builds a record with no repetition.
func New(name string, values ...string) Record {
	if values == nil {
		values = []string{}
	}
	return Record{Name: name, Values: values}
}

// NewRepeated builds a record for the given 1-indexed repetition.
func NewRepeated(name string, repetition int, values ...string) Record {
	r := New(name, values...)
	rep := FormatRepetition(repetition)
	r.Repetition = &rep
	return r
}

// FormatRepetition renders n in the vendor's "[N]" form.
func FormatRepetition(n int) string {
	return "[" + strconv.Itoa(n) + "]"
}

// ParseRepetition parses a "[N]" repetition string.
func ParseRepetition(s string) (int, error) {
	s = strings.TrimSpace(s)
	if len(s) < 3 || s[0] != '[' || s[len(s)-1] != ']' {
		return 0, fmt.Errorf("%w: %q is not of the form [N]", cerrors.ErrInvalidRepetition, s)
	}
	n, err := strconv.Atoi(s[1 : len(s)-1])
	if err != nil {
		return 0, fmt.Errorf("%w: %q: %v", cerrors.ErrInvalidRepetition, s, err)
	}
	return n, nil
}

// RepetitionIndex returns the parsed repetition, or ok=false for a null repetition.
func (r Record) RepetitionIndex() (n int, ok bool, err error) {
	if r.Repetition == nil {
		return 0, false, nil
	}
	n, err = ParseRepetition(*r.Repetition)
	if err != nil {
		return 0, true, err
	}
	return n, true, nil
}

// Value applies the single-versus-multi collapse: no values is nil, one value is
// that string and more than one is the list verbatim.
func (r Record) Value() interface{} {
	switch len(r.Values) {
	case 0:
		return nil
	case 1:
		return r.Values[0]
	default:
		out := make([]interface{}, len(r.Values))
		for i, v := range r.Values {
			out[i] = v
		}
		return out
	}
}

// Normalize replaces nil value slices with empty ones so every record keeps
// the "values is always a list" invariant.
func (rs Records) Normalize() Records {
	for i := range rs {
		if rs[i].Values == nil {
			rs[i].Values = []string{}
		}
	}
	return rs
}

// Names returns the distinct record names in first-seen order.
func (rs Records) Names() []string {
	seen := make(map[string]struct{}, len(rs))
	var names []string
	for _, r := range rs {
		if _, ok := seen[r.Name]; ok {
			continue
		}
		seen[r.Name] = struct{}{}
		names = append(names, r.Name)
	}
	return names
}
