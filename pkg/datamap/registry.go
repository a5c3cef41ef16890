package datamap

import (
	"github.com/wehubfusion/ce2ocf/pkg/record"
)

// PostProcessor transforms a field's resolved value. Returning an error that
// wraps ErrVariableNotFound marks the field as missing.
type PostProcessor func(value interface{}, records record.Records) (interface{}, error)

// Registry maps (datamap type, field) pairs to post-processors. A Registry is
// passed to each traversal; build it before traversing and do not register
// while a traversal is running.
type Registry struct {
	processors map[TypeID]map[string]PostProcessor
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{processors: make(map[TypeID]map[string]PostProcessor)}
}

// For starts registering post-processors for datamap type t.
func (r *Registry) For(t TypeID) *TypeRegistrar {
	return &TypeRegistrar{registry: r, typ: t}
}

// Lookup returns the post-processor for field on datamap type t. A nil
// registry has no post-processors.
func (r *Registry) Lookup(t TypeID, field string) (PostProcessor, bool) {
	if r == nil {
		return nil, false
	}
	fields, ok := r.processors[t]
	if !ok {
		return nil, false
	}
	fn, ok := fields[field]
	return fn, ok
}

// Clear removes every post-processor registered for t.
func (r *Registry) Clear(t TypeID) {
	delete(r.processors, t)
}

// Len returns the number of registered post-processors.
func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	n := 0
	for _, fields := range r.processors {
		n += len(fields)
	}
	return n
}

// Merge copies other's post-processors into r, replacing entries for the same
// type and field.
func (r *Registry) Merge(other *Registry) *Registry {
	if other == nil {
		return r
	}
	for t, fields := range other.processors {
		for field, fn := range fields {
			r.register(t, field, fn)
		}
	}
	return r
}

func (r *Registry) register(t TypeID, field string, fn PostProcessor) {
	fields, ok := r.processors[t]
	if !ok {
		fields = make(map[string]PostProcessor)
		r.processors[t] = fields
	}
	fields[field] = fn
}

// TypeRegistrar is the fluent builder returned by Registry.For.
type TypeRegistrar struct {
	registry *Registry
	typ      TypeID
}

// Register attaches fn to field. A nil fn removes the field's post-processor.
func (b *TypeRegistrar) Register(field string, fn PostProcessor) *TypeRegistrar {
	if fn == nil {
		if fields, ok := b.registry.processors[b.typ]; ok {
			delete(fields, field)
		}
		return b
	}
	b.registry.register(b.typ, field, fn)
	return b
}

// For switches the builder to another datamap type.
func (b *TypeRegistrar) For(t TypeID) *TypeRegistrar {
	return b.registry.For(t)
}

// Registry returns the registry being built.
func (b *TypeRegistrar) Registry() *Registry {
	return b.registry
}
