// Package output shapes entity records for callers: projection by mode
// or explicit field list, using dot-separated nested paths.
package output

import "strings"

// GetPath reads a dot-separated path from a record. Missing segments and
// non-object intermediates yield (nil, false).
func GetPath(record map[string]interface{}, path string) (interface{}, bool) {
	if record == nil || path == "" {
		return nil, false
	}
	var current interface{} = record
	for _, segment := range strings.Split(path, ".") {
		obj, ok := current.(map[string]interface{})
		if !ok {
			return nil, false
		}
		current, ok = obj[segment]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

// SetPath writes value at a dot-separated path, creating intermediate
// objects as needed. A non-object intermediate is replaced.
func SetPath(record map[string]interface{}, path string, value interface{}) {
	segments := strings.Split(path, ".")
	current := record
	for _, segment := range segments[:len(segments)-1] {
		next, ok := current[segment].(map[string]interface{})
		if !ok {
			next = make(map[string]interface{})
			current[segment] = next
		}
		current = next
	}
	current[segments[len(segments)-1]] = value
}

// ensurePath creates the intermediate objects of path without writing a
// leaf. A value already projected at an intermediate segment is kept.
func ensurePath(record map[string]interface{}, path string) {
	segments := strings.Split(path, ".")
	current := record
	for _, segment := range segments[:len(segments)-1] {
		existing, present := current[segment]
		next, ok := existing.(map[string]interface{})
		if !ok {
			if present {
				return
			}
			next = make(map[string]interface{})
			current[segment] = next
		}
		current = next
	}
}

// Project copies the given paths from record into a new record. Paths
// absent from record create their intermediates but no leaf.
func Project(record map[string]interface{}, paths []string) map[string]interface{} {
	out := make(map[string]interface{}, len(paths))
	for _, path := range paths {
		if path == "" {
			continue
		}
		if v, ok := GetPath(record, path); ok {
			SetPath(out, path, clone(v))
			continue
		}
		ensurePath(out, path)
	}
	return out
}

// clone deep-copies JSON-shaped values so projections never alias the source
func clone(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		m := make(map[string]interface{}, len(t))
		for k, val := range t {
			m[k] = clone(val)
		}
		return m
	case []interface{}:
		s := make([]interface{}, len(t))
		for i, val := range t {
			s[i] = clone(val)
		}
		return s
	default:
		return v
	}
}
