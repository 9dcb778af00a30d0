// Package template resolves {{ node_id.output_key }} placeholders against a
// map of prior node outputs, and evaluates the limited node-condition
// language built on top of it.
package template

import (
	"fmt"
	"regexp"
	"strings"
)

// placeholderPattern matches {{ node_id.output_key }} with optional
// surrounding whitespace inside the braces.
var placeholderPattern = regexp.MustCompile(`\{\{\s*(\w+)\.(\w+)\s*\}\}`)

// Outputs maps node_id -> output_key -> value, the shape the orchestrator
// keeps in the hot store.
type Outputs map[string]map[string]interface{}

// Resolve substitutes every placeholder whose (node_id, output_key) is
// present in outputs. Placeholders with a missing node or key are left
// literally intact so downstream handlers can validate them. Resolve is a
// pure function of its arguments.
func Resolve(text string, outputs Outputs) string {
	return placeholderPattern.ReplaceAllStringFunc(text, func(match string) string {
		sub := placeholderPattern.FindStringSubmatch(match)
		nodeID, outputKey := sub[1], sub[2]

		nodeOutput, ok := outputs[nodeID]
		if !ok {
			return match
		}
		value, ok := nodeOutput[outputKey]
		if !ok {
			return match
		}
		return fmt.Sprintf("%v", value)
	})
}

// ResolveConfig recursively walks a JSON-shaped tree: strings are resolved,
// maps and slices are recursed into, everything else is passed through
// unchanged.
func ResolveConfig(config map[string]interface{}, outputs Outputs) map[string]interface{} {
	resolved := make(map[string]interface{}, len(config))
	for key, value := range config {
		resolved[key] = resolveValue(value, outputs)
	}
	return resolved
}

func resolveValue(value interface{}, outputs Outputs) interface{} {
	switch v := value.(type) {
	case string:
		return Resolve(v, outputs)
	case map[string]interface{}:
		return ResolveConfig(v, outputs)
	case []interface{}:
		resolved := make([]interface{}, len(v))
		for i, item := range v {
			resolved[i] = resolveValue(item, outputs)
		}
		return resolved
	default:
		return value
	}
}

// EvaluateCondition implements a limited, crash-free branching language:
// an empty/nil condition is true; otherwise the condition is resolved and
// trimmed, then compared with == / != (quote- and whitespace-trimmed string
// equality) if present, else coerced via true|1|yes / false|0|no, else any
// other non-empty string is truthy.
func EvaluateCondition(condition *string, outputs Outputs) bool {
	if condition == nil || *condition == "" {
		return true
	}

	resolved := strings.TrimSpace(Resolve(*condition, outputs))

	if idx := strings.Index(resolved, "=="); idx >= 0 {
		left, right := resolved[:idx], resolved[idx+2:]
		return trimQuotes(left) == trimQuotes(right)
	}
	if idx := strings.Index(resolved, "!="); idx >= 0 {
		left, right := resolved[:idx], resolved[idx+2:]
		return trimQuotes(left) != trimQuotes(right)
	}

	switch strings.ToLower(resolved) {
	case "true", "1", "yes":
		return true
	case "false", "0", "no":
		return false
	}

	return resolved != ""
}

func trimQuotes(s string) string {
	return strings.Trim(strings.TrimSpace(s), `'"`)
}
