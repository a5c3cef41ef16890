package datamap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/wehubfusion/ce2ocf/pkg/record"
)

func constant(v interface{}) PostProcessor {
	return func(interface{}, record.Records) (interface{}, error) {
		return v, nil
	}
}

func TestRegistry_FluentRegistration(t *testing.T) {
	r := NewRegistry().
		For("Issuer").Register("phone", constant("p")).Register("address", constant("a")).
		For("StockPlan").Register("plan_name", constant("n")).
		Registry()

	assert.Equal(t, 3, r.Len())

	fn, ok := r.Lookup("Issuer", "phone")
	require.True(t, ok)
	v, err := fn(nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "p", v)

	_, ok = r.Lookup("StockPlan", "phone")
	assert.False(t, ok)
}

func TestRegistry_ClearAndUnregister(t *testing.T) {
	r := NewRegistry()
	r.For("Issuer").Register("phone", constant("p")).Register("address", constant("a"))

	r.For("Issuer").Register("phone", nil)
	_, ok := r.Lookup("Issuer", "phone")
	assert.False(t, ok)
	assert.Equal(t, 1, r.Len())

	r.Clear("Issuer")
	assert.Equal(t, 0, r.Len())
}

func TestRegistry_Merge(t *testing.T) {
	base := NewRegistry().For("Issuer").Register("phone", constant("base")).Registry()
	extra := NewRegistry().For("Issuer").Register("phone", constant("extra")).
		For("Stakeholder").Register("addresses", constant("x")).Registry()

	base.Merge(extra)
	fn, ok := base.Lookup("Issuer", "phone")
	require.True(t, ok)
	v, _ := fn(nil, nil)
	assert.Equal(t, "extra", v)
	assert.Equal(t, 2, base.Len())
}

func TestRegistry_NilIsEmpty(t *testing.T) {
	var r *Registry
	_, ok := r.Lookup("Issuer", "phone")
	assert.False(t, ok)
	assert.Equal(t, 0, r.Len())
}

func TestParsePolicy(t *testing.T) {
	tests := map[string]MissingPolicy{
		"":        PolicyOmit,
		"omit":    PolicyOmit,
		"Lenient": PolicyOmit,
		"null":    PolicyNull,
		"abort":   PolicyAbort,
		"STRICT":  PolicyAbort,
	}
	for in, want := range tests {
		got, err := ParsePolicy(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParsePolicy("sometimes")
	assert.Error(t, err)
}

func TestMissingPolicy_YAML(t *testing.T) {
	var cfg struct {
		Policy MissingPolicy `yaml:"policy"`
	}
	require.NoError(t, yaml.Unmarshal([]byte("policy: abort\n"), &cfg))
	assert.Equal(t, PolicyAbort, cfg.Policy)

	out, err := yaml.Marshal(cfg)
	require.NoError(t, err)
	assert.Equal(t, "policy: abort\n", string(out))
}
