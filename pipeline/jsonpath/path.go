// Package jsonpath implements the small path expression language used
// throughout the manifest system: dot-separated field segments with
// optional bracket array indices, an optional leading "$." root prefix,
// and the boolean condition language used by stream selectors and
// event-map match rules. It operates on generic decoded JSON
// (map[string]any / []any / scalars), never on typed Go structs, since
// the shapes it walks are provider-native response bodies.
package jsonpath

import (
	"fmt"
	"strconv"
	"strings"
)

// Segment is one step of a parsed path: a field name, or an array
// index, or both (a field immediately followed by an index).
type Segment struct {
	Field    string
	HasIndex bool
	Index    int
}

// Parse splits a path expression into segments. A leading "$." or "$"
// root prefix is tolerated and discarded. "choices[0].delta.content"
// parses to [{choices,true,0},{delta},{content}].
func Parse(expr string) ([]Segment, error) {
	expr = strings.TrimSpace(expr)
	expr = strings.TrimPrefix(expr, "$.")
	if expr == "$" {
		return nil, nil
	}
	expr = strings.TrimPrefix(expr, "$")
	if expr == "" {
		return nil, nil
	}
	var segs []Segment
	for _, part := range strings.Split(expr, ".") {
		if part == "" {
			continue
		}
		field := part
		seg := Segment{}
		if idx := strings.IndexByte(part, '['); idx >= 0 {
			if !strings.HasSuffix(part, "]") {
				return nil, fmt.Errorf("jsonpath: unterminated index in %q", part)
			}
			field = part[:idx]
			n, err := strconv.Atoi(part[idx+1 : len(part)-1])
			if err != nil {
				return nil, fmt.Errorf("jsonpath: bad index in %q: %w", part, err)
			}
			seg.HasIndex = true
			seg.Index = n
		}
		seg.Field = field
		segs = append(segs, seg)
	}
	return segs, nil
}

// Get resolves expr against root, returning the value and whether the
// full path was present. It never panics on a missing field or an
// index out of range; those resolve to (nil, false).
func Get(root any, expr string) (any, bool) {
	segs, err := Parse(expr)
	if err != nil {
		return nil, false
	}
	return GetSegments(root, segs)
}

// GetSegments resolves a pre-parsed segment list, avoiding re-parsing
// the same expression for every frame in a stream.
func GetSegments(root any, segs []Segment) (any, bool) {
	cur := root
	for _, seg := range segs {
		if seg.Field != "" {
			m, ok := cur.(map[string]any)
			if !ok {
				return nil, false
			}
			cur, ok = m[seg.Field]
			if !ok {
				return nil, false
			}
		}
		if seg.HasIndex {
			arr, ok := cur.([]any)
			if !ok || seg.Index < 0 || seg.Index >= len(arr) {
				return nil, false
			}
			cur = arr[seg.Index]
		}
	}
	return cur, true
}

// Set writes value into root at expr, creating intermediate maps as
// needed. Intermediate array segments require the target index to
// already exist (the compiler never needs to grow arrays: manifests
// describe fixed request shapes). root must be a map[string]any.
func Set(root map[string]any, expr string, value any) error {
	segs, err := Parse(expr)
	if err != nil {
		return err
	}
	if len(segs) == 0 {
		return fmt.Errorf("jsonpath: empty path")
	}
	cur := root
	for i, seg := range segs {
		last := i == len(segs)-1
		if seg.Field == "" {
			return fmt.Errorf("jsonpath: bare index segment not supported for Set")
		}
		if last && !seg.HasIndex {
			cur[seg.Field] = value
			return nil
		}
		next, ok := cur[seg.Field]
		if !ok {
			if seg.HasIndex {
				return fmt.Errorf("jsonpath: cannot create array at %q", seg.Field)
			}
			created := map[string]any{}
			cur[seg.Field] = created
			next = created
		}
		if seg.HasIndex {
			arr, ok := next.([]any)
			if !ok || seg.Index < 0 || seg.Index >= len(arr) {
				return fmt.Errorf("jsonpath: index %d out of range at %q", seg.Index, seg.Field)
			}
			if last {
				arr[seg.Index] = value
				return nil
			}
			m, ok := arr[seg.Index].(map[string]any)
			if !ok {
				return fmt.Errorf("jsonpath: element %q[%d] is not an object", seg.Field, seg.Index)
			}
			cur = m
			continue
		}
		m, ok := next.(map[string]any)
		if !ok {
			return fmt.Errorf("jsonpath: field %q is not an object", seg.Field)
		}
		cur = m
	}
	return nil
}

// String renders segs back into path-expression form, used for error
// messages.
func String(segs []Segment) string {
	var b strings.Builder
	for i, seg := range segs {
		if i > 0 {
			b.WriteByte('.')
		}
		b.WriteString(seg.Field)
		if seg.HasIndex {
			fmt.Fprintf(&b, "[%d]", seg.Index)
		}
	}
	return b.String()
}
