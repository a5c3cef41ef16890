package datamap

import (
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cerrors "github.com/wehubfusion/ce2ocf/pkg/errors"
	"github.com/wehubfusion/ce2ocf/pkg/record"
)

const (
	testStakeholder TypeID = "TestStakeholder"
	testRepeatable  TypeID = "TestRepeatableStakeholder"
)

func mustParse(t *testing.T, js string) Node {
	t.Helper()
	n, err := Parse(strings.NewReader(js))
	require.NoError(t, err)
	return n
}

func stakeholderRecords() record.Records {
	return record.Records{
		record.New("NumberStockholders", "3"),
		record.New("Stockholder_S1", "Alice"),
		record.NewRepeated("Stockholder", 2, "Bob"),
		record.NewRepeated("Stockholder", 3, "Carol"),
		record.New("Foo_S1", "X"),
		record.NewRepeated("Foo", 2, "Y"),
		record.NewRepeated("Foo", 3, "Z"),
		record.New("Shares_S1", "100"),
		record.NewRepeated("Shares", 2, "200"),
		record.NewRepeated("Shares", 3, "300"),
	}
}

func TestTraverse_RepeatBlockPinsFirstIteration(t *testing.T) {
	node := &Repeatable{
		RepeatCount:       Var("NumberStockholders"),
		RepeatedVariables: &Sequence{Items: []Node{Static("Foo")}},
		RepeatedPattern: &Mapping{Fields: []Field{
			{Key: "name", Value: Var("Stockholder")},
			{Key: "foo", Value: Var("Foo")},
		}},
	}

	got, err := NewTraverser(stakeholderRecords()).Traverse(node, Request{})
	require.NoError(t, err)

	want := []interface{}{
		map[string]interface{}{"name": "Alice", "foo": "X"},
		map[string]interface{}{"name": "Bob", "foo": "X"},
		map[string]interface{}{"name": "Carol", "foo": "X"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("unexpected stakeholders (-want +got):\n%s", diff)
	}
}

func TestTraverse_RepeatCountLimits(t *testing.T) {
	pattern := Var("Stockholder")

	for _, count := range []interface{}{"99999999999999", "1e30", 1e30, 10001} {
		_, err := NewTraverser(stakeholderRecords()).Traverse(
			&Repeatable{RepeatCount: Static(count), RepeatedPattern: pattern}, Request{})
		assert.True(t, cerrors.IsInvalidTemplate(err), "count %v: %v", count, err)
	}

	limited := NewTraverser(stakeholderRecords(), WithMaxRepeatCount(2))
	_, err := limited.Traverse(&Repeatable{RepeatCount: Var("NumberStockholders"), RepeatedPattern: pattern}, Request{})
	assert.True(t, cerrors.IsInvalidTemplate(err))
	assert.ErrorContains(t, err, "exceeds the maximum of 2")

	got, err := NewTraverser(stakeholderRecords(), WithMaxRepeatCount(3)).Traverse(
		&Repeatable{RepeatCount: Var("NumberStockholders"), RepeatedPattern: pattern}, Request{})
	require.NoError(t, err)
	assert.Equal(t, []interface{}{"Alice", "Bob", "Carol"}, got)
}

func TestTraverse_RepeatBlockWithoutPinning(t *testing.T) {
	node := &Repeatable{
		RepeatCount:     Static(3),
		RepeatedPattern: Var("Foo"),
	}
	got, err := NewTraverser(stakeholderRecords()).Traverse(node, Request{})
	require.NoError(t, err)
	assert.Equal(t, []interface{}{"X", "Y", "Z"}, got)
}

func TestTraverse_RepeatedVariablesAsString(t *testing.T) {
	node := &Repeatable{
		RepeatCount:       Var("NumberStockholders"),
		RepeatedVariables: Var("Pinned"),
		RepeatedPattern:   Var("Shares"),
	}
	records := append(stakeholderRecords(), record.New("Pinned", "Shares"))

	got, err := NewTraverser(records).Traverse(node, Request{})
	require.NoError(t, err)
	assert.Equal(t, []interface{}{"100", "100", "100"}, got)
}

func TestTraverse_RepeatedVariablesHook(t *testing.T) {
	node := &Repeatable{
		Type:              testRepeatable,
		RepeatCount:       Static(2),
		RepeatedVariables: Static("Number of shares"),
		RepeatedPattern:   Var("Shares"),
	}
	registry := NewRegistry().For(testRepeatable).
		Register(RepeatedVariablesField, func(value interface{}, _ record.Records) (interface{}, error) {
			labels := value.([]interface{})
			out := make([]interface{}, 0, len(labels))
			for _, l := range labels {
				if l == "Number of shares" {
					out = append(out, "Shares")
				}
			}
			return out, nil
		}).Registry()

	got, err := NewTraverser(stakeholderRecords(), WithRegistry(registry)).Traverse(node, Request{})
	require.NoError(t, err)
	assert.Equal(t, []interface{}{"100", "100"}, got)
}

func TestTraverse_RepeatCountErrors(t *testing.T) {
	tr := NewTraverser(record.Records{record.New("Count", "three")})

	_, err := tr.Traverse(&Repeatable{RepeatCount: Var("Count"), RepeatedPattern: Static("x")}, Request{})
	assert.True(t, cerrors.IsInvalidTemplate(err))

	_, err = tr.Traverse(&Repeatable{RepeatCount: Static(-1), RepeatedPattern: Static("x")}, Request{})
	assert.True(t, cerrors.IsInvalidTemplate(err))

	strict := NewTraverser(record.Records{}, WithPolicy(PolicyAbort))
	_, err = strict.Traverse(&Repeatable{RepeatCount: Var("Missing"), RepeatedPattern: Static("x")}, Request{})
	assert.True(t, cerrors.IsVariableNotFound(err))
}

func TestTraverse_SequenceDropsEmptyAndNull(t *testing.T) {
	node := &Sequence{Items: []Node{
		&Mapping{},
		&Literal{Value: nil},
		&Mapping{Fields: []Field{{Key: "a", Value: &Literal{Value: 1}}}},
	}}
	got, err := NewTraverser(nil).Traverse(node, Request{})
	require.NoError(t, err)
	assert.Equal(t, []interface{}{map[string]interface{}{"a": 1}}, got)
}

func TestTraverse_SequenceDropsMissingItems(t *testing.T) {
	node := &Sequence{Items: []Node{Var("Missing"), Var("Present")}}
	records := record.Records{record.New("Present", "yes")}

	got, err := NewTraverser(records).Traverse(node, Request{})
	require.NoError(t, err)
	assert.Equal(t, []interface{}{"yes"}, got)

	_, err = NewTraverser(records, WithPolicy(PolicyAbort)).Traverse(node, Request{})
	assert.True(t, cerrors.IsVariableNotFound(err))
}

func TestTraverse_MissingVariablePolicies(t *testing.T) {
	node := mustParse(t, `{"legal_name": "CompanyName", "dba": "CompanyShortName"}`)
	records := record.Records{record.New("CompanyName", "Acme Inc.")}

	lenient, err := NewTraverser(records).Traverse(node, Request{})
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{"legal_name": "Acme Inc."}, lenient)
	_, present := lenient.(map[string]interface{})["dba"]
	assert.False(t, present, "missing key must be omitted, not null")

	null, err := NewTraverser(records, WithPolicy(PolicyNull)).Traverse(node, Request{})
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{"legal_name": "Acme Inc.", "dba": nil}, null)

	_, err = NewTraverser(records, WithPolicy(PolicyAbort)).Traverse(node, Request{})
	require.Error(t, err)
	name, ok := cerrors.VariableName(err)
	require.True(t, ok)
	assert.Equal(t, "CompanyShortName", name)
}

func TestTraverse_TopLevelMissingLeaf(t *testing.T) {
	got, err := NewTraverser(nil).Traverse(Var("Missing"), Request{Field: "x"})
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestTraverse_Idempotent(t *testing.T) {
	node := mustParse(t, `{
		"company": "CompanyName",
		"label": "|{{CompanyName}} ([2*{{Shares}}] shares)|",
		"items": ["CompanyName", {"nested": "Shares"}]
	}`)
	records := record.Records{record.New("CompanyName", "Acme"), record.New("Shares", "50")}
	tr := NewTraverser(records)

	first, err := tr.Traverse(node, Request{})
	require.NoError(t, err)
	second, err := tr.Traverse(node, Request{})
	require.NoError(t, err)

	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("traversal is not idempotent (-first +second):\n%s", diff)
	}
	assert.Equal(t, "Acme (100 shares)", first.(map[string]interface{})["label"])
}

func TestTraverse_LoopIndexOutsideIteration(t *testing.T) {
	tr := NewTraverser(nil)

	_, err := tr.Traverse(Var("<<LOOP_INDEX>>"), Request{})
	assert.True(t, cerrors.IsInvalidTemplate(err))

	_, err = tr.Traverse(Var("|STAKEHOLDER.{{<<LOOP_INDEX>>}}|"), Request{})
	assert.True(t, cerrors.IsInvalidTemplate(err))

	_, err = tr.Traverse(&Mapping{Fields: []Field{{Key: "id", Value: Var("<<LOOP_INDEX>>")}}}, Request{})
	assert.True(t, cerrors.IsInvalidTemplate(err), "template errors are never swallowed by containers")
}

func TestTraverse_LoopIndexInsideIteration(t *testing.T) {
	node := &Repeatable{
		RepeatCount: Static(2),
		RepeatedPattern: &Mapping{Fields: []Field{
			{Key: "index", Value: Var("<<LOOP_INDEX>>")},
			{Key: "id", Value: Var("|COMMON.ISSUANCE.{{<<LOOP_INDEX>>}}|")},
			{Key: "next", Value: Var("|[<<LOOP_INDEX>>+1]|")},
		}},
	}
	got, err := NewTraverser(nil).Traverse(node, Request{})
	require.NoError(t, err)

	want := []interface{}{
		map[string]interface{}{"index": 1, "id": "COMMON.ISSUANCE.1", "next": "2"},
		map[string]interface{}{"index": 2, "id": "COMMON.ISSUANCE.2", "next": "3"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("unexpected loop output (-want +got):\n%s", diff)
	}
}

func TestTraverse_TemplateMissingVariable(t *testing.T) {
	node := Var("|Hello {{Missing}}!|")

	got, err := NewTraverser(nil).Traverse(node, Request{})
	require.NoError(t, err)
	assert.Equal(t, "Hello !", got)

	_, err = NewTraverser(nil, WithPolicy(PolicyAbort)).Traverse(node, Request{})
	assert.True(t, cerrors.IsVariableNotFound(err))
}

func TestTraverse_OverridesWin(t *testing.T) {
	node := mustParse(t, `{"date": "FORMATION_DATE", "name": "CompanyName", "nested": {"inner": "CompanyName"}}`)
	records := record.Records{record.New("CompanyName", "Acme")}

	got, err := NewTraverser(records).Traverse(node, Request{
		Overrides: map[string]interface{}{"FORMATION_DATE": "2024-01-02", "CompanyName": "Override Co"},
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{
		"date":   "2024-01-02",
		"name":   "Override Co",
		"nested": map[string]interface{}{"inner": "Override Co"},
	}, got)
}

func TestTraverse_StaticCollapseAndValEscape(t *testing.T) {
	node := mustParse(t, `{
		"fixed": {"static": "USD"},
		"raw": {"val": {"keep": "CompanyName", "n": 2}},
		"name": "CompanyName"
	}`)
	records := record.Records{record.New("CompanyName", "Acme")}

	got, err := NewTraverser(records).Traverse(node, Request{})
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{
		"fixed": "USD",
		"raw":   map[string]interface{}{"keep": "CompanyName", "n": 2},
		"name":  "Acme",
	}, got)
}

func TestTraverse_EmptyMappingBecomesNull(t *testing.T) {
	node := mustParse(t, `{"phone": {"phone_number": "Missing"}}`)
	got, err := NewTraverser(nil).Traverse(node, Request{})
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{"phone": nil}, got)

	got, err = NewTraverser(nil).Traverse(mustParse(t, `{"phone_number": "Missing"}`), Request{})
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestTraverse_DropNullLeaves(t *testing.T) {
	node := mustParse(t, `{"name": "CompanyName", "phone": {"phone_number": "Missing"}, "empty": "Blank"}`)
	records := record.Records{record.New("CompanyName", "Acme"), record.New("Blank")}

	got, err := NewTraverser(records, WithDropNullLeaves(true)).Traverse(node, Request{})
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{"name": "Acme"}, got)

	got, err = NewTraverser(records, WithDropNullLeaves(true), WithPolicy(PolicyNull)).Traverse(node, Request{})
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{"name": "Acme", "phone": map[string]interface{}{"phone_number": nil}}, got,
		"the null policy keeps missing keys even when null leaves are dropped")
}

func TestTraverse_OverridableAndLiterals(t *testing.T) {
	tr := NewTraverser(nil)

	got, err := tr.Traverse(Static(true), Request{})
	require.NoError(t, err)
	assert.Equal(t, true, got)

	got, err = tr.Traverse(&Literal{Value: 2.5}, Request{})
	require.NoError(t, err)
	assert.Equal(t, 2.5, got)
}

type unknownNode struct{}

func (unknownNode) node() {}

func TestTraverse_UnknownNodeIsStructuralMismatch(t *testing.T) {
	_, err := NewTraverser(nil).Traverse(unknownNode{}, Request{Field: "x"})
	assert.True(t, cerrors.IsStructuralMismatch(err))
}

func TestTraverse_PostProcessors(t *testing.T) {
	node := &Mapping{Type: testStakeholder, Fields: []Field{
		{Key: "name", Value: Var("Stockholder")},
		{Key: "shares", Value: Var("Shares")},
	}}
	registry := NewRegistry().For(testStakeholder).
		Register("name", func(v interface{}, _ record.Records) (interface{}, error) {
			return strings.ToUpper(v.(string)), nil
		}).
		Register("shares", func(v interface{}, _ record.Records) (interface{}, error) {
			return nil, fmt.Errorf("no shares: %w", cerrors.NewVariableNotFound("Shares", 0))
		}).Registry()

	got, err := NewTraverser(stakeholderRecords(), WithRegistry(registry)).Traverse(node, Request{})
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{"name": "ALICE"}, got)

	_, err = NewTraverser(stakeholderRecords(), WithRegistry(registry), WithPolicy(PolicyAbort)).Traverse(node, Request{})
	assert.True(t, cerrors.IsVariableNotFound(err))
}

func TestTraverse_PostProcessorOnlyForMatchingType(t *testing.T) {
	node := &Mapping{Fields: []Field{{Key: "name", Value: Var("Stockholder")}}}
	registry := NewRegistry().For(testStakeholder).
		Register("name", func(interface{}, record.Records) (interface{}, error) {
			return "changed", nil
		}).Registry()

	got, err := NewTraverser(stakeholderRecords(), WithRegistry(registry)).Traverse(node, Request{})
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{"name": "Alice"}, got)
}

func TestTraverse_RequestPostProcessor(t *testing.T) {
	got, err := NewTraverser(stakeholderRecords()).Traverse(Var("Shares"), Request{
		PostProcessor: func(v interface{}, records record.Records) (interface{}, error) {
			return fmt.Sprintf("%v of %d", v, len(records)), nil
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "100 of 10", got)
}

func TestTraverse_ConcurrentRegistries(t *testing.T) {
	node := &Mapping{Type: testStakeholder, Fields: []Field{{Key: "name", Value: Var("Stockholder")}}}
	records := stakeholderRecords()

	var wg sync.WaitGroup
	results := make([]interface{}, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			suffix := fmt.Sprintf("-%d", i)
			registry := NewRegistry().For(testStakeholder).
				Register("name", func(v interface{}, _ record.Records) (interface{}, error) {
					return v.(string) + suffix, nil
				}).Registry()
			v, err := NewTraverser(records, WithRegistry(registry)).Traverse(node, Request{})
			if err == nil {
				results[i] = v
			}
		}(i)
	}
	wg.Wait()

	for i, v := range results {
		assert.Equal(t, map[string]interface{}{"name": fmt.Sprintf("Alice-%d", i)}, v)
	}
}

func TestTraverse_NegativeIteration(t *testing.T) {
	_, err := NewTraverser(nil).Traverse(Var("x"), Request{Iteration: -1})
	assert.True(t, cerrors.IsInvalidTemplate(err))
}
