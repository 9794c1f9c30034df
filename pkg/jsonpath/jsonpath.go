// Package jsonpath implements the narrow JSONPath subset the engine
// needs to select into the {req, resp} execution context: dot-separated
// field access, [N] array indexing, and a trailing ".*" wildcard.
//
// This intentionally does not implement general JSONPath (RFC 9535);
// the execution context is a fixed two-root object and plans only ever
// address it with these three forms.
package jsonpath

import (
	"fmt"
	"strconv"
	"strings"
)

// Select resolves path against ctx and returns the first matching
// value. path may be given with or without a leading "$." / "$" — both
// forms are accepted so callers can pass either "$.resp.json.id" or
// "resp.json.id" interchangeably.
//
// A trailing ".*" wildcard selects every value of the map or slice the
// preceding path resolved to, returned as a []any — used for
// $.resp.headers.* where the selected header value is itself a slice.
func Select(ctx any, path string) (any, error) {
	segs, err := splitPath(path)
	if err != nil {
		return nil, err
	}
	return walk(ctx, segs, path)
}

// Exists reports whether path resolves to at least one value.
func Exists(ctx any, path string) bool {
	_, err := Select(ctx, path)
	return err == nil
}

func splitPath(path string) ([]string, error) {
	p := strings.TrimSpace(path)
	p = strings.TrimPrefix(p, "$.")
	if p == path { // no "$." prefix was trimmed
		p = strings.TrimPrefix(p, "$")
	}
	if p == "" {
		return nil, nil
	}
	return strings.Split(p, "."), nil
}

func walk(cur any, segs []string, original string) (any, error) {
	for i, seg := range segs {
		if seg == "*" {
			return wildcard(cur)
		}
		name, idx, hasIdx := splitIndex(seg)
		if name != "" {
			next, ok := lookupField(cur, name)
			if !ok {
				return nil, fmt.Errorf("path %q: field %q not found at segment %d", original, name, i)
			}
			cur = next
		}
		if hasIdx {
			next, ok := lookupIndex(cur, idx)
			if !ok {
				return nil, fmt.Errorf("path %q: index [%d] out of range at segment %d", original, idx, i)
			}
			cur = next
		}
	}
	return cur, nil
}

// splitIndex splits a segment like "tasks[0]" into ("tasks", 0, true),
// "tasks" into ("tasks", 0, false), and "[2]" into ("", 2, true).
func splitIndex(seg string) (name string, idx int, hasIdx bool) {
	open := strings.IndexByte(seg, '[')
	if open == -1 {
		return seg, 0, false
	}
	close := strings.IndexByte(seg, ']')
	if close == -1 || close < open {
		return seg, 0, false
	}
	name = seg[:open]
	n, err := strconv.Atoi(seg[open+1 : close])
	if err != nil {
		return seg, 0, false
	}
	return name, n, true
}

func lookupField(cur any, name string) (any, bool) {
	m, ok := cur.(map[string]any)
	if !ok {
		return nil, false
	}
	v, ok := m[name]
	return v, ok
}

func lookupIndex(cur any, idx int) (any, bool) {
	arr, ok := cur.([]any)
	if !ok {
		return nil, false
	}
	if idx < 0 || idx >= len(arr) {
		return nil, false
	}
	return arr[idx], true
}

func wildcard(cur any) (any, error) {
	switch v := cur.(type) {
	case map[string]any:
		out := make([]any, 0, len(v))
		for _, val := range v {
			out = append(out, val)
		}
		return out, nil
	case []any:
		return v, nil
	default:
		return nil, fmt.Errorf("wildcard: %T is not indexable", cur)
	}
}
