package datamap

import (
	"math"
	"strconv"
	"strings"

	cerrors "github.com/wehubfusion/ce2ocf/pkg/errors"
	"github.com/wehubfusion/ce2ocf/pkg/logging"
	"github.com/wehubfusion/ce2ocf/pkg/record"
	"github.com/wehubfusion/ce2ocf/pkg/resolver"
	"github.com/wehubfusion/ce2ocf/pkg/template"
)

// DefaultMaxRepeatCount bounds repeat_count values read from records.
const DefaultMaxRepeatCount = 10000

// Request is one traversal call.
type Request struct {
	// Field is the key the node is resolved for
	Field string

	// Overrides map exact leaf strings to values that bypass resolution
	Overrides map[string]interface{}

	// Iteration is the 1-indexed repetition in effect, or 0 outside a repeated block
	Iteration int

	// PostProcessor is applied to the node's result
	PostProcessor PostProcessor
}

// Option configures a Traverser.
type Option func(*Traverser)

// WithRegistry sets the post-processors consulted during traversal.
func WithRegistry(r *Registry) Option {
	return func(t *Traverser) {
		t.registry = r
	}
}

// WithPolicy sets the missing-variable policy.
func WithPolicy(p MissingPolicy) Option {
	return func(t *Traverser) {
		t.policy = p
	}
}

// WithLogger sets the logger.
func WithLogger(l logging.Logger) Option {
	return func(t *Traverser) {
		t.logger = logging.OrNoOp(l)
	}
}

// WithResolverOptions passes options to the underlying variable resolver.
func WithResolverOptions(opts ...resolver.Option) Option {
	return func(t *Traverser) {
		t.resolverOpts = append(t.resolverOpts, opts...)
	}
}

// WithDropNullLeaves leaves keys that resolve to null out of mappings. Keys
// kept as null by PolicyNull are not affected.
func WithDropNullLeaves(drop bool) Option {
	return func(t *Traverser) {
		t.dropNullLeaves = drop
	}
}

// WithMaxRepeatCount caps how many iterations a repeated block may expand
// to. Non-positive values keep DefaultMaxRepeatCount.
func WithMaxRepeatCount(n int) Option {
	return func(t *Traverser) {
		if n > 0 {
			t.maxRepeat = n
		}
	}
}

// WithMaxDigits sets the significant digits used for arithmetic results.
func WithMaxDigits(n int) Option {
	return func(t *Traverser) {
		if n > 0 {
			t.maxDigits = n
		}
	}
}

// Traverser resolves datamap trees against one set of records. It keeps no
// state between calls, so the same Traverser may be used concurrently.
type Traverser struct {
	records      record.Records
	resolver     *resolver.Resolver
	resolverOpts []resolver.Option
	registry     *Registry
	policy       MissingPolicy
	logger       logging.Logger
	maxDigits    int
	maxRepeat    int

	dropNullLeaves bool
}

// NewTraverser builds a traverser over records.
func NewTraverser(records record.Records, opts ...Option) *Traverser {
	t := &Traverser{
		records:   records,
		policy:    PolicyOmit,
		logger:    &logging.NoOpLogger{},
		maxDigits: template.DefaultMaxDigits,
		maxRepeat: DefaultMaxRepeatCount,
	}
	for _, opt := range opts {
		opt(t)
	}
	// Missing variables always surface as errors internally; the policy is
	// applied at container boundaries.
	t.resolver = resolver.New(records, append(t.resolverOpts, resolver.WithStrict(true))...)
	return t
}

// Policy returns the missing-variable policy in effect.
func (t *Traverser) Policy() MissingPolicy {
	return t.policy
}

// Traverse resolves node into plain Go values: map[string]interface{},
// []interface{}, strings, numbers, bools and nil. Under PolicyAbort a missing
// variable returns an error carrying its name; otherwise a missing top-level
// leaf resolves to nil.
func (t *Traverser) Traverse(node Node, req Request) (interface{}, error) {
	if req.Iteration < 0 {
		return nil, cerrors.InvalidTemplate("iteration must be 0 or >= 1, got %d", req.Iteration)
	}
	v, err := t.traverse(node, req.Field, req.Overrides, req.Iteration, req.PostProcessor)
	if err != nil {
		if cerrors.IsVariableNotFound(err) && t.policy != PolicyAbort {
			t.logger.Warn("variable not found, resolving to null",
				logging.F("field", req.Field), logging.F("error", err))
			return nil, nil
		}
		return nil, err
	}
	return v, nil
}

func (t *Traverser) traverse(node Node, field string, overrides map[string]interface{}, iteration int, pp PostProcessor) (interface{}, error) {
	var (
		result interface{}
		err    error
	)

	switch n := node.(type) {
	case nil:
		t.logger.Debug("empty datamap node", logging.F("field", field))
	case *Literal:
		result = n.Value
	case *VarRef:
		result, err = t.resolveString(n.Name, overrides, iteration)
	case *Sequence:
		result, err = t.traverseSequence(n, field, overrides, iteration)
	case *Mapping:
		result, err = t.traverseMapping(n, overrides, iteration)
	case *Overridable:
		result = n.Static
	case *Repeatable:
		result, err = t.traverseRepeatable(n, field, overrides)
	default:
		return nil, cerrors.StructuralMismatch("unsupported datamap node %T for field %q", node, field)
	}
	if err != nil {
		return nil, err
	}

	if pp != nil {
		result, err = pp(result, t.records)
		if err != nil {
			return nil, err
		}
	}

	if m, ok := result.(map[string]interface{}); ok && len(m) == 0 {
		return nil, nil
	}
	return result, nil
}

// resolveString handles a string leaf: overrides first, then the loop index
// token, then template expressions, then a plain variable lookup.
func (t *Traverser) resolveString(s string, overrides map[string]interface{}, iteration int) (interface{}, error) {
	if v, ok := overrides[s]; ok {
		return v, nil
	}

	hasToken := strings.Contains(s, template.LoopIndexToken)
	if hasToken && iteration == 0 {
		return nil, cerrors.InvalidTemplate("%s used outside a repeated block in %q", template.LoopIndexToken, s)
	}
	if s == template.LoopIndexToken {
		return iteration, nil
	}

	if body, ok := template.Body(s); ok {
		substituted, err := template.SubstituteVariables(body, func(name string) (interface{}, error) {
			v, err := t.resolveString(name, overrides, iteration)
			if err != nil {
				if cerrors.IsVariableNotFound(err) && t.policy != PolicyAbort {
					return nil, nil
				}
				return nil, err
			}
			return v, nil
		})
		if err != nil {
			return nil, err
		}
		if hasToken {
			substituted = strings.ReplaceAll(substituted, template.LoopIndexToken, strconv.Itoa(iteration))
		}
		return template.EvaluateArithmetic(substituted, t.maxDigits), nil
	}

	name := s
	if hasToken {
		name = strings.ReplaceAll(s, template.LoopIndexToken, strconv.Itoa(iteration))
	}
	return t.resolver.Resolve(name, iteration)
}

func (t *Traverser) traverseSequence(n *Sequence, field string, overrides map[string]interface{}, iteration int) (interface{}, error) {
	out := make([]interface{}, 0, len(n.Items))
	for i, item := range n.Items {
		v, err := t.traverse(item, field, overrides, iteration, nil)
		if err != nil {
			if cerrors.IsVariableNotFound(err) && t.policy != PolicyAbort {
				t.logger.Debug("dropping list item with missing variable",
					logging.F("field", field), logging.F("index", i), logging.F("error", err))
				continue
			}
			return nil, err
		}
		if v == nil {
			continue
		}
		if m, ok := v.(map[string]interface{}); ok && len(m) == 0 {
			continue
		}
		out = append(out, v)
	}
	return out, nil
}

func (t *Traverser) traverseMapping(n *Mapping, overrides map[string]interface{}, iteration int) (interface{}, error) {
	if len(n.Fields) == 1 && n.Fields[0].Key == staticKey {
		return RawValue(n.Fields[0].Value), nil
	}

	out := make(map[string]interface{}, len(n.Fields))
	for _, f := range n.Fields {
		if child, ok := f.Value.(*Mapping); ok {
			if raw, ok := child.Get("val"); ok {
				out[f.Key] = RawValue(raw)
				continue
			}
		}

		var pp PostProcessor
		if n.Type != "" {
			pp, _ = t.registry.Lookup(n.Type, f.Key)
		}

		v, err := t.traverse(f.Value, f.Key, overrides, iteration, pp)
		if err != nil {
			if !cerrors.IsVariableNotFound(err) {
				return nil, err
			}
			switch t.policy {
			case PolicyAbort:
				return nil, err
			case PolicyNull:
				out[f.Key] = nil
			default:
				t.logger.Debug("omitting field with missing variable",
					logging.F("type", string(n.Type)), logging.F("field", f.Key), logging.F("error", err))
			}
			continue
		}
		if v == nil && t.dropNullLeaves {
			continue
		}
		out[f.Key] = v
	}
	return out, nil
}

func (t *Traverser) traverseRepeatable(n *Repeatable, field string, overrides map[string]interface{}) (interface{}, error) {
	countValue, err := t.traverse(n.RepeatCount, RepeatCountField, overrides, 0, nil)
	if err != nil {
		return nil, err
	}
	count, err := toCount(countValue)
	if err != nil {
		return nil, err
	}
	if count > t.maxRepeat {
		return nil, cerrors.InvalidTemplate("repeat_count %d exceeds the maximum of %d", count, t.maxRepeat)
	}

	names, err := t.repeatedVariables(n, overrides)
	if err != nil {
		return nil, err
	}

	pinned := make(map[string]interface{}, len(names))
	for _, name := range names {
		v, err := t.resolveString(name, overrides, 0)
		if err != nil {
			if !cerrors.IsVariableNotFound(err) {
				return nil, err
			}
			switch t.policy {
			case PolicyAbort:
				return nil, err
			case PolicyNull:
				pinned[name] = nil
			default:
				t.logger.Debug("repeated variable not found, not pinning",
					logging.F("type", string(n.Type)), logging.F("variable", name))
			}
			continue
		}
		pinned[name] = v
	}

	iterationOverrides := make(map[string]interface{}, len(overrides)+len(pinned))
	for k, v := range overrides {
		iterationOverrides[k] = v
	}
	for k, v := range pinned {
		iterationOverrides[k] = v
	}

	t.logger.Debug("expanding repeated block",
		logging.F("type", string(n.Type)), logging.F("count", count), logging.F("pinned", len(pinned)))

	out := make([]interface{}, 0, count)
	for i := 1; i <= count; i++ {
		v, err := t.traverse(n.RepeatedPattern, field, iterationOverrides, i, nil)
		if err != nil {
			if cerrors.IsVariableNotFound(err) && t.policy != PolicyAbort {
				out = append(out, nil)
				continue
			}
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// repeatedVariables resolves the names to pin and runs the type's
// repeated_variables hook over them.
func (t *Traverser) repeatedVariables(n *Repeatable, overrides map[string]interface{}) ([]string, error) {
	raw, err := t.traverse(n.RepeatedVariables, RepeatedVariablesField, overrides, 0, nil)
	if err != nil {
		if !cerrors.IsVariableNotFound(err) || t.policy == PolicyAbort {
			return nil, err
		}
		raw = nil
	}

	var list []interface{}
	switch v := raw.(type) {
	case nil:
		list = []interface{}{}
	case string:
		list = []interface{}{v}
	case []interface{}:
		list = v
	default:
		return nil, cerrors.StructuralMismatch("repeated_variables resolved to %T, want a string or list", raw)
	}

	var processed interface{} = list
	if hook, ok := t.registry.Lookup(n.Type, RepeatedVariablesField); ok {
		processed, err = hook(list, t.records)
		if err != nil {
			return nil, err
		}
	}
	return toNames(processed)
}

func toNames(v interface{}) ([]string, error) {
	switch val := v.(type) {
	case nil:
		return nil, nil
	case string:
		return []string{val}, nil
	case []string:
		return val, nil
	case []interface{}:
		names := make([]string, 0, len(val))
		for _, item := range val {
			if item == nil {
				continue
			}
			s, ok := item.(string)
			if !ok {
				return nil, cerrors.StructuralMismatch("repeated variable name must be a string, got %T", item)
			}
			names = append(names, s)
		}
		return names, nil
	default:
		return nil, cerrors.StructuralMismatch("repeated variables must be a list of names, got %T", v)
	}
}

func toCount(v interface{}) (int, error) {
	var n int
	switch val := v.(type) {
	case int:
		n = val
	case float64:
		if val != math.Trunc(val) {
			return 0, cerrors.InvalidTemplate("repeat_count %v is not an integer", val)
		}
		if math.Abs(val) > math.MaxInt32 {
			return 0, cerrors.InvalidTemplate("repeat_count %v is out of range", val)
		}
		n = int(val)
	case string:
		s := strings.TrimSpace(val)
		i, err := strconv.Atoi(s)
		if err != nil {
			f, ferr := strconv.ParseFloat(s, 64)
			if ferr != nil || f != math.Trunc(f) {
				return 0, cerrors.InvalidTemplate("repeat_count %q is not an integer", val)
			}
			if math.Abs(f) > math.MaxInt32 {
				return 0, cerrors.InvalidTemplate("repeat_count %q is out of range", val)
			}
			i = int(f)
		}
		n = i
	default:
		return 0, cerrors.InvalidTemplate("repeat_count resolved to %T, want an integer", v)
	}
	if n < 0 {
		return 0, cerrors.InvalidTemplate("repeat_count %d is negative", n)
	}
	return n, nil
}
