// Package resolver finds questionnaire answers by variable name, reconciling the
// vendor's two naming conventions for repeated fields: a static "_S1" suffix on the
// first instance and an explicit "[N]" repetition on later ones.
package resolver

import (
	"fmt"

	cerrors "github.com/wehubfusion/ce2ocf/pkg/errors"
	"github.com/wehubfusion/ce2ocf/pkg/record"
)

// FirstIterationFormatter maps a variable name to the name used for its
// first-repetition copy.
type FirstIterationFormatter func(name string) string

// DefaultFirstIterationFormatter appends the vendor's "_S1" suffix.
func DefaultFirstIterationFormatter(name string) string {
	return name + "_S1"
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithFirstIterationFormatter replaces the "_S1" convention. A nil formatter
// disables first-iteration lookups entirely.
func WithFirstIterationFormatter(f FirstIterationFormatter) Option {
	return func(r *Resolver) {
		r.firstIteration = f
	}
}

// WithStrict makes Resolve fail with VariableNotFound instead of returning nil.
func WithStrict(strict bool) Option {
	return func(r *Resolver) {
		r.strict = strict
	}
}

// Resolver looks up variable values in an immutable record list. It holds no
// mutable state and is safe for concurrent use.
type Resolver struct {
	records        record.Records
	firstIteration FirstIterationFormatter
	strict         bool
}

// New builds a resolver over records.
func New(records record.Records, opts ...Option) *Resolver {
	r := &Resolver{
		records:        records,
		firstIteration: DefaultFirstIterationFormatter,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Records returns the records the resolver reads from.
func (r *Resolver) Records() record.Records {
	return r.records
}

// candidate is one (name, repetition filter) pair tried in order. A zero
// repetition means no filter.
type candidate struct {
	name       string
	repetition int
}

func (r *Resolver) candidates(name string, repetition int) []candidate {
	var out []candidate
	switch {
	case repetition == 0:
		if r.firstIteration != nil {
			out = append(out, candidate{name: r.firstIteration(name)})
		}
		out = append(out, candidate{name: name})
	case repetition == 1:
		if r.firstIteration != nil {
			out = append(out, candidate{name: r.firstIteration(name)})
		}
		out = append(out, candidate{name: name, repetition: 1})
	default:
		out = append(out, candidate{name: name, repetition: repetition})
		// Later repetitions of a "reuse first answer" field only carry the _S1 record.
		if r.firstIteration != nil {
			out = append(out, candidate{name: r.firstIteration(name)})
		}
	}
	return out
}

// Resolve returns the value of name for the given 1-indexed repetition, or for
// no repetition when repetition is 0. One value collapses to a string, several
// stay a list and none is nil. A missing variable returns nil unless the
// resolver is strict.
func (r *Resolver) Resolve(name string, repetition int) (interface{}, error) {
	if repetition < 0 {
		return nil, fmt.Errorf("%w: repetition must be 0 or >= 1, got %d", cerrors.ErrInvalidRepetition, repetition)
	}
	if rec, ok := r.find(name, repetition); ok {
		return rec.Value(), nil
	}
	if r.strict {
		return nil, cerrors.NewVariableNotFound(name, repetition)
	}
	return nil, nil
}

// Lookup is the non-failing form of Resolve. found is false when no candidate
// matched or the repetition is invalid.
func (r *Resolver) Lookup(name string, repetition int) (value interface{}, found bool) {
	if repetition < 0 {
		return nil, false
	}
	rec, ok := r.find(name, repetition)
	if !ok {
		return nil, false
	}
	return rec.Value(), true
}

// Find returns the first record matching name and repetition using the same
// search order as Resolve.
func (r *Resolver) Find(name string, repetition int) (record.Record, bool) {
	if repetition < 0 {
		return record.Record{}, false
	}
	return r.find(name, repetition)
}

func (r *Resolver) find(name string, repetition int) (record.Record, bool) {
	for _, c := range r.candidates(name, repetition) {
		for _, rec := range r.records {
			if matches(rec, c) {
				return rec, true
			}
		}
	}
	return record.Record{}, false
}

// matches reports whether rec satisfies c. A record with no repetition passes any
// repetition filter; one with an unparseable repetition never passes a filter.
func matches(rec record.Record, c candidate) bool {
	if rec.Name != c.name {
		return false
	}
	if c.repetition == 0 {
		return true
	}
	n, ok, err := rec.RepetitionIndex()
	if !ok {
		return true
	}
	if err != nil {
		return false
	}
	return n == c.repetition
}
