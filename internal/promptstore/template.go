// Package promptstore renders the three prompt templates the plan
// generator and interactive agent feed to an LLMClient. The substitution
// grammar is a small, deliberately non-Turing-complete subset of mustache
// ({{var}}, {{object.field}}, one level of {{#if}}...{{else}}...{{/if}}),
// hand-rolled because text/template's richer control flow and delimiter
// escaping rules diverge from that exact grammar.
package promptstore

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	ifBlockRE = regexp.MustCompile(`(?s)\{\{#if\s+([\w.]+)\}\}(.*?)(?:\{\{else\}\}(.*?))?\{\{/if\}\}`)
	varRE     = regexp.MustCompile(`\{\{\s*([\w.]+)\s*\}\}`)
)

// Vars is the substitution context passed to Render: flat values or nested
// maps addressed with dotted paths ("object.field").
type Vars map[string]interface{}

func (v Vars) lookup(path string) (interface{}, bool) {
	parts := strings.Split(path, ".")
	var cur interface{} = map[string]interface{}(v)
	for _, part := range parts {
		m, ok := cur.(map[string]interface{})
		if !ok {
			if mv, ok2 := cur.(Vars); ok2 {
				m = map[string]interface{}(mv)
			} else {
				return nil, false
			}
		}
		val, ok := m[part]
		if !ok {
			return nil, false
		}
		cur = val
	}
	return cur, true
}

func (v Vars) truthy(path string) bool {
	val, ok := v.lookup(path)
	if !ok || val == nil {
		return false
	}
	switch t := val.(type) {
	case bool:
		return t
	case string:
		return t != ""
	case int:
		return t != 0
	case float64:
		return t != 0
	default:
		return true
	}
}

func (v Vars) stringOf(path string) string {
	val, ok := v.lookup(path)
	if !ok || val == nil {
		return ""
	}
	return fmt.Sprintf("%v", val)
}

// Render substitutes one level of {{#if}}...{{else}}...{{/if}} blocks, then
// every remaining {{var}} / {{object.field}} reference.
func Render(template string, vars Vars) string {
	withConditionals := ifBlockRE.ReplaceAllStringFunc(template, func(match string) string {
		groups := ifBlockRE.FindStringSubmatch(match)
		condition, thenBranch, elseBranch := groups[1], groups[2], groups[3]
		if vars.truthy(condition) {
			return thenBranch
		}
		return elseBranch
	})

	return varRE.ReplaceAllStringFunc(withConditionals, func(match string) string {
		name := strings.TrimSpace(varRE.FindStringSubmatch(match)[1])
		return vars.stringOf(name)
	})
}
