// Package sanitize rewrites arbitrary JSON Schema documents into the
// restricted subset Gemini/Antigravity accept, per spec.md §4.2.
//
// Traversal is depth-first with deepest paths rewritten first, so a parent
// rewrite (e.g. merging allOf) works on children that are already
// sanitized. `$ref` is not resolved; it is dropped like the other
// unsupported keywords.
//
// Grounded on the `other_examples` CLIProxyAPI-family schema-sanitizing
// idiom: recursive rewriting over an arbitrary decoded map[string]any tree
// rather than a fixed struct, since tool schemas are open-ended JSON
// Schema documents with no closed Go shape. Byte-level JSON rewriting
// (gjson/sjson) is used elsewhere in this module where the input stays
// opaque (internal/wireformat's format detector, internal/combo's model
// substitution) — here the tree is already being restructured
// (merging allOf, flattening anyOf/oneOf, pruning required), which reads
// more naturally over a decoded map than a sequence of path-based byte
// edits.
package sanitize

import "strconv"

// droppedKeywords lists the JSON Schema keywords Gemini rejects.
var droppedKeywords = map[string]bool{
	"minLength": true, "maxLength": true, "exclusiveMinimum": true,
	"exclusiveMaximum": true, "pattern": true, "minItems": true,
	"maxItems": true, "format": true, "default": true, "examples": true,
	"$schema": true, "$defs": true, "definitions": true, "const": true,
	"$ref": true, "additionalProperties": true, "propertyNames": true,
	"patternProperties": true, "anyOf": true, "oneOf": true, "allOf": true,
	"not": true, "dependencies": true, "dependentSchemas": true,
	"dependentRequired": true, "title": true, "if": true, "then": true,
	"else": true, "contentMediaType": true, "contentEncoding": true,
}

// Schema rewrites a JSON Schema (as a decoded map) into the Gemini-accepted
// subset. The input is not mutated; a new map tree is returned. Schema is
// idempotent: Schema(Schema(s)) == Schema(s) for all s (spec.md §8).
func Schema(s map[string]any) map[string]any {
	if s == nil {
		return nil
	}
	return rewrite(s).(map[string]any)
}

// rewrite walks an arbitrary JSON value (map, slice, or scalar) and applies
// the sanitizer rules depth-first.
func rewrite(v any) any {
	switch node := v.(type) {
	case map[string]any:
		return rewriteObject(node)
	case []any:
		out := make([]any, len(node))
		for i, item := range node {
			out[i] = rewrite(item)
		}
		return out
	default:
		return v
	}
}

func rewriteObject(node map[string]any) map[string]any {
	// Recurse into children first (deepest paths rewritten first).
	children := make(map[string]any, len(node))
	for k, v := range node {
		children[k] = v
	}

	if props, ok := children["properties"].(map[string]any); ok {
		rewritten := make(map[string]any, len(props))
		for k, v := range props {
			if sub, ok := v.(map[string]any); ok {
				rewritten[k] = rewriteObject(sub)
			} else {
				rewritten[k] = rewrite(v)
			}
		}
		children["properties"] = rewritten
	}
	if items, ok := children["items"].(map[string]any); ok {
		children["items"] = rewriteObject(items)
	}

	children = mergeAllOf(children)
	children = flattenAnyOfOneOf(children)
	children = flattenTypeArray(children)
	children = constToEnum(children)
	children = stringifyEnum(children)

	out := make(map[string]any, len(children))
	for k, v := range children {
		if droppedKeywords[k] {
			continue
		}
		out[k] = v
	}

	out = pruneRequired(out)
	out = injectReasonIfEmpty(out)

	return out
}

func constToEnum(m map[string]any) map[string]any {
	if c, ok := m["const"]; ok {
		m["enum"] = []any{c}
	}
	return m
}

func stringifyEnum(m map[string]any) map[string]any {
	enum, ok := m["enum"].([]any)
	if !ok {
		return m
	}
	out := make([]any, len(enum))
	for i, v := range enum {
		switch val := v.(type) {
		case string:
			out[i] = val
		default:
			out[i] = toStringValue(val)
		}
	}
	m["enum"] = out
	return m
}

func toStringValue(v any) string {
	switch val := v.(type) {
	case nil:
		return "null"
	case bool:
		if val {
			return "true"
		}
		return "false"
	case float64:
		return trimFloat(val)
	default:
		return ""
	}
}

func trimFloat(f float64) string {
	if f == float64(int64(f)) {
		return strconv.FormatInt(int64(f), 10)
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}

// mergeAllOf merges allOf branches' properties and required-lists into the
// parent schema, matching spec.md's "merge allOf property sets and
// required-lists".
func mergeAllOf(m map[string]any) map[string]any {
	branches, ok := m["allOf"].([]any)
	if !ok {
		return m
	}

	props, _ := m["properties"].(map[string]any)
	if props == nil {
		props = map[string]any{}
	}
	var required []any
	if r, ok := m["required"].([]any); ok {
		required = r
	}

	for _, raw := range branches {
		branch, ok := rewrite(raw).(map[string]any)
		if !ok {
			continue
		}
		if branchProps, ok := branch["properties"].(map[string]any); ok {
			for k, v := range branchProps {
				props[k] = v
			}
		}
		if branchReq, ok := branch["required"].([]any); ok {
			required = append(required, branchReq...)
		}
	}

	if len(props) > 0 {
		m["properties"] = props
	}
	if len(required) > 0 {
		m["required"] = dedupeStrings(required)
	}
	return m
}

// flattenAnyOfOneOf picks the richest non-null branch: object > array > scalar.
func flattenAnyOfOneOf(m map[string]any) map[string]any {
	for _, key := range []string{"anyOf", "oneOf"} {
		branches, ok := m[key].([]any)
		if !ok || len(branches) == 0 {
			continue
		}
		best := pickRichestBranch(branches)
		if best == nil {
			continue
		}
		for k, v := range best {
			if _, exists := m[k]; !exists {
				m[k] = v
			}
		}
	}
	return m
}

func pickRichestBranch(branches []any) map[string]any {
	rank := func(b map[string]any) int {
		t, _ := b["type"].(string)
		switch t {
		case "object":
			return 3
		case "array":
			return 2
		case "null":
			return 0
		default:
			return 1
		}
	}
	var best map[string]any
	bestRank := -1
	for _, raw := range branches {
		b, ok := rewrite(raw).(map[string]any)
		if !ok {
			continue
		}
		t, _ := b["type"].(string)
		if t == "null" {
			continue
		}
		if r := rank(b); r > bestRank {
			bestRank = r
			best = b
		}
	}
	if best == nil {
		for _, raw := range branches {
			if b, ok := rewrite(raw).(map[string]any); ok {
				return b
			}
		}
	}
	return best
}

// flattenTypeArray collapses a `type` array to its first non-null entry.
func flattenTypeArray(m map[string]any) map[string]any {
	arr, ok := m["type"].([]any)
	if !ok {
		return m
	}
	for _, v := range arr {
		if s, ok := v.(string); ok && s != "null" {
			m["type"] = s
			return m
		}
	}
	if len(arr) > 0 {
		m["type"] = arr[0]
	}
	return m
}

// pruneRequired drops required-list entries that no longer name a property.
func pruneRequired(m map[string]any) map[string]any {
	required, ok := m["required"].([]any)
	if !ok {
		return m
	}
	props, _ := m["properties"].(map[string]any)
	var kept []any
	for _, r := range required {
		name, ok := r.(string)
		if !ok {
			continue
		}
		if props != nil {
			if _, exists := props[name]; exists {
				kept = append(kept, name)
			}
		}
	}
	if len(kept) > 0 {
		m["required"] = kept
	} else {
		delete(m, "required")
	}
	return m
}

// injectReasonIfEmpty gives any empty object schema a single required
// `reason` string property, matching spec.md's Gemini-compatibility rule
// for otherwise-empty tool parameter schemas.
func injectReasonIfEmpty(m map[string]any) map[string]any {
	t, _ := m["type"].(string)
	if t != "object" {
		return m
	}
	props, _ := m["properties"].(map[string]any)
	if len(props) > 0 {
		return m
	}
	m["properties"] = map[string]any{"reason": map[string]any{"type": "string"}}
	m["required"] = []any{"reason"}
	return m
}

func dedupeStrings(items []any) []any {
	seen := map[string]bool{}
	var out []any
	for _, raw := range items {
		s, ok := raw.(string)
		if !ok {
			continue
		}
		if seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}
