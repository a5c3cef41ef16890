package template

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lookupFrom(values map[string]interface{}) LookupFunc {
	return func(name string) (interface{}, error) {
		return values[name], nil
	}
}

func TestIsTemplateExpression(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"|Hello World|", true},
		{"|{{VAR1}} and {{VAR2}}|", true},
		{"|[5*3]|", true},
		{"Hello World", false},
		{"|Hello|World|", false},
		{"||Hello||", false},
		{"||", false},
		{"|Hello", false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, IsTemplateExpression(tt.in))
		})
	}
}

func TestSubstituteVariables(t *testing.T) {
	lookup := lookupFrom(map[string]interface{}{"name": "John", "age": "25", "count": 3, "list": []interface{}{"a", "b"}})

	got, err := SubstituteVariables("{{name}} is {{age}}", lookup)
	require.NoError(t, err)
	assert.Equal(t, "John is 25", got)

	got, err = SubstituteVariables("{{ name }} has {{count}} items", lookup)
	require.NoError(t, err)
	assert.Equal(t, "John has 3 items", got)

	got, err = SubstituteVariables("missing: '{{nothing}}'", lookup)
	require.NoError(t, err)
	assert.Equal(t, "missing: ''", got)

	got, err = SubstituteVariables("{{list}}", lookup)
	require.NoError(t, err)
	assert.Equal(t, "a, b", got)

	got, err = SubstituteVariables("no variables here", lookup)
	require.NoError(t, err)
	assert.Equal(t, "no variables here", got)
}

func TestSubstituteVariables_LookupError(t *testing.T) {
	boom := errors.New("strict lookup failed")
	_, err := SubstituteVariables("{{a}} {{b}}", func(name string) (interface{}, error) {
		if name == "b" {
			return nil, boom
		}
		return "ok", nil
	})
	assert.ErrorIs(t, err, boom)
}

func TestSubstituteVariables_ReservedToken(t *testing.T) {
	var seen string
	_, err := SubstituteVariables("STAKEHOLDER.{{<<LOOP_INDEX>>}}", func(name string) (interface{}, error) {
		seen = name
		return 2, nil
	})
	require.NoError(t, err)
	assert.Equal(t, LoopIndexToken, seen)
}

func TestEvaluateArithmetic(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"simple", "[5*3]", "15"},
		{"embedded", "5 + [3*2]", "5 + 6"},
		{"multiple", "[1+1] and [2*2]", "2 and 4"},
		{"division to float", "[10/4]", "2.5"},
		{"whole float", "[10/2]", "5"},
		{"precision", "[1/3]", "0.3333333333"},
		{"decimal input", "[0.1+0.2]", "0.3"},
		{"integral power", "[2**40]", "1099511627776"},
		{"negative whole float", "[-1.5*4]", "-6"},
		{"power beyond exact range", "[2**60]", "1.152921505e+18"},
		{"unclosed", "Hello [5*3 World", "Hello [5*3 World"},
		{"empty brackets", "Hello [] World", "Hello [] World"},
		{"trailing bracket", "Hello [5*3] World]", "Hello 15 World]"},
		{"no brackets", "plain text", "plain text"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, EvaluateArithmetic(tt.in, DefaultMaxDigits))
		})
	}
}

func TestEvaluateArithmetic_ErrorsAreInline(t *testing.T) {
	got := EvaluateArithmetic("total: [5 +]", DefaultMaxDigits)
	assert.Contains(t, got, "total: ERROR evaluating 5 +: ")

	got = EvaluateArithmetic("[shares * 2] then [2*2]", DefaultMaxDigits)
	assert.Contains(t, got, "ERROR evaluating shares * 2: ")
	assert.Contains(t, got, " then 4")
}

func TestEvaluateArithmetic_NoCodeExecution(t *testing.T) {
	got := EvaluateArithmetic(`[len("abc")]`, DefaultMaxDigits)
	assert.Contains(t, got, "ERROR evaluating")
}

func TestEvaluate_Composition(t *testing.T) {
	lookup := lookupFrom(map[string]interface{}{"VAR1": "5", "VAR2": "3"})

	got, err := Evaluate("|[{{VAR1}}*{{VAR2}}]|", lookup)
	require.NoError(t, err)
	assert.Equal(t, "15", got)

	got, err = Evaluate("|STAKEHOLDER.{{VAR1}}|", lookup)
	require.NoError(t, err)
	assert.Equal(t, "STAKEHOLDER.5", got)

	_, err = Evaluate("not a template", lookup)
	assert.Error(t, err)
}

func TestStringify(t *testing.T) {
	assert.Equal(t, "", Stringify(nil))
	assert.Equal(t, "x", Stringify("x"))
	assert.Equal(t, "7", Stringify(7))
	assert.Equal(t, "2.5", Stringify(2.5))
	assert.Equal(t, "true", Stringify(true))
	assert.Equal(t, "1, 2", Stringify([]interface{}{1, "2"}))
	assert.Equal(t, "a, , b, c", Stringify([]interface{}{"a", nil, []interface{}{"b", "c"}}))
}
