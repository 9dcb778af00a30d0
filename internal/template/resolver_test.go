package template

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolve_Substitutes(t *testing.T) {
	outputs := Outputs{"A": {"result": "hello"}}
	assert.Equal(t, "say hello now", Resolve("say {{ A.result }} now", outputs))
}

func TestResolve_MissingNodeOrKeyLeftIntact(t *testing.T) {
	outputs := Outputs{"A": {"result": "hello"}}
	assert.Equal(t, "{{ B.result }}", Resolve("{{ B.result }}", outputs))
	assert.Equal(t, "{{ A.missing }}", Resolve("{{ A.missing }}", outputs))
}

func TestResolve_Pure(t *testing.T) {
	outputs := Outputs{"A": {"x": 1}}
	text := "v={{ A.x }}"
	first := Resolve(text, outputs)
	second := Resolve(text, outputs)
	assert.Equal(t, first, second)
}

func TestResolveConfig_PreservesShapesAndPrimitives(t *testing.T) {
	outputs := Outputs{"A": {"x": "1"}}
	config := map[string]interface{}{
		"str":   "{{ A.x }}",
		"num":   42,
		"flag":  true,
		"null":  nil,
		"list":  []interface{}{"{{ A.x }}", 2, false},
		"child": map[string]interface{}{"inner": "{{ A.x }}"},
	}

	resolved := ResolveConfig(config, outputs)

	assert.Equal(t, "1", resolved["str"])
	assert.Equal(t, 42, resolved["num"])
	assert.Equal(t, true, resolved["flag"])
	assert.Nil(t, resolved["null"])
	assert.Equal(t, []interface{}{"1", 2, false}, resolved["list"])
	assert.Equal(t, map[string]interface{}{"inner": "1"}, resolved["child"])
}

func TestEvaluateCondition_EmptyIsTrue(t *testing.T) {
	assert.True(t, EvaluateCondition(nil, Outputs{}))
	empty := ""
	assert.True(t, EvaluateCondition(&empty, Outputs{}))
}

func TestEvaluateCondition_Equality(t *testing.T) {
	outputs := Outputs{"A": {"status": "approved"}}
	eq := `{{ A.status }} == 'approved'`
	assert.True(t, EvaluateCondition(&eq, outputs))

	neq := `{{ A.status }} != "rejected"`
	assert.True(t, EvaluateCondition(&neq, outputs))

	mismatch := `{{ A.status }} == "rejected"`
	assert.False(t, EvaluateCondition(&mismatch, outputs))
}

func TestEvaluateCondition_TruthyCoercion(t *testing.T) {
	for _, c := range []string{"true", "1", "yes", "TRUE"} {
		cond := c
		assert.True(t, EvaluateCondition(&cond, Outputs{}), c)
	}
	for _, c := range []string{"false", "0", "no", "FALSE"} {
		cond := c
		assert.False(t, EvaluateCondition(&cond, Outputs{}), c)
	}
	other := "anything-else"
	assert.True(t, EvaluateCondition(&other, Outputs{}))
}
