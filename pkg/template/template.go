// Package template implements the inline expression language used inside
// datamap leaves: |...| marks a templated string, {{name}} substitutes a
// resolved variable and [expr] evaluates arithmetic after substitution.
package template

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// LoopIndexToken is replaced by the current iteration number inside a repeated block.
const LoopIndexToken = "<<LOOP_INDEX>>"

// DefaultMaxDigits matches the precision limit of the target document format.
const DefaultMaxDigits = 10

var (
	templateExpression = regexp.MustCompile(`^\|([^|]+)\|$`)
	mustacheVariable   = regexp.MustCompile(`\{\{[\w\s<>()*+,\-.]+\}\}`)
)

// LookupFunc resolves a variable name found between mustaches.
type LookupFunc func(name string) (interface{}, error)

// IsTemplateExpression reports whether s is wrapped in exactly one pair of
// pipes with no pipe inside.
func IsTemplateExpression(s string) bool {
	return templateExpression.MatchString(s)
}

// Body strips the outer pipes of a template expression.
func Body(s string) (string, bool) {
	m := templateExpression.FindStringSubmatch(s)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// SubstituteVariables replaces every {{name}} with the stringified lookup
// result. The first lookup error aborts substitution.
func SubstituteVariables(body string, lookup LookupFunc) (string, error) {
	var firstErr error
	out := mustacheVariable.ReplaceAllStringFunc(body, func(match string) string {
		if firstErr != nil {
			return match
		}
		name := strings.TrimSpace(match[2 : len(match)-2])
		value, err := lookup(name)
		if err != nil {
			firstErr = err
			return match
		}
		return Stringify(value)
	})
	if firstErr != nil {
		return "", firstErr
	}
	return out, nil
}

// Evaluate runs the full templated-leaf pipeline on a pipe-delimited
// expression: strip pipes, substitute variables, then evaluate arithmetic.
func Evaluate(expression string, lookup LookupFunc) (string, error) {
	body, ok := Body(expression)
	if !ok {
		return "", fmt.Errorf("%q is not a template expression", expression)
	}
	substituted, err := SubstituteVariables(body, lookup)
	if err != nil {
		return "", err
	}
	return EvaluateArithmetic(substituted, DefaultMaxDigits), nil
}

// Stringify renders a resolved value the way it appears in substituted text.
// A nil value renders as the empty string.
func Stringify(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	case []interface{}:
		parts := make([]string, len(val))
		for i, item := range val {
			parts[i] = Stringify(item)
		}
		return strings.Join(parts, ", ")
	default:
		return fmt.Sprint(val)
	}
}
