package filter

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"datagate/internal/metadata"
)

var nowOffset = regexp.MustCompile(`^\$NOW\(\s*([+-]?\d+)\s*([a-zA-Z]+)\s*\)$`)

// ResolveVariables returns a copy of n with dynamic variables replaced by
// values from the caller's accountability:
//
//	$CURRENT_USER, $CURRENT_ROLE, $CURRENT_ROLES, $CURRENT_POLICIES,
//	$NOW and $NOW(<+/-n> <unit>)
//
// Unknown $-prefixed strings are left untouched.
func ResolveVariables(n Node, acc *metadata.Accountability, now time.Time) Node {
	switch node := n.(type) {
	case *Logical:
		out := &Logical{Op: node.Op, Children: make([]Node, len(node.Children))}
		for i, child := range node.Children {
			out.Children[i] = ResolveVariables(child, acc, now)
		}
		return out
	case *Condition:
		return &Condition{
			Path:     node.Path,
			Operator: node.Operator,
			Value:    resolveValue(node.Value, acc, now),
		}
	case *Quantified:
		return &Quantified{
			Path:       node.Path,
			Quantifier: node.Quantifier,
			Filter:     ResolveVariables(node.Filter, acc, now),
		}
	default:
		return n
	}
}

func resolveValue(v any, acc *metadata.Accountability, now time.Time) any {
	switch val := v.(type) {
	case []any:
		out := make([]any, 0, len(val))
		for _, item := range val {
			resolved := resolveValue(item, acc, now)
			// A list variable inside a list is spliced in place.
			if list, ok := resolved.([]any); ok && isListVariable(item) {
				out = append(out, list...)
				continue
			}
			out = append(out, resolved)
		}
		return out
	case string:
		return resolveString(val, acc, now)
	default:
		return v
	}
}

func isListVariable(v any) bool {
	s, ok := v.(string)
	return ok && (s == "$CURRENT_ROLES" || s == "$CURRENT_POLICIES")
}

func resolveString(s string, acc *metadata.Accountability, now time.Time) any {
	if !strings.HasPrefix(s, "$") {
		return s
	}
	if acc == nil {
		acc = &metadata.Accountability{}
	}
	switch s {
	case "$CURRENT_USER":
		return orNil(acc.User)
	case "$CURRENT_ROLE":
		return orNil(acc.Role)
	case "$CURRENT_ROLES":
		return toAnySlice(acc.Roles)
	case "$CURRENT_POLICIES":
		return toAnySlice(acc.Policies)
	case "$NOW":
		return now
	}
	if m := nowOffset.FindStringSubmatch(s); m != nil {
		amount, err := strconv.Atoi(m[1])
		if err != nil {
			return s
		}
		if t, ok := adjust(now, amount, strings.ToLower(m[2])); ok {
			return t
		}
	}
	return s
}

func adjust(t time.Time, n int, unit string) (time.Time, bool) {
	unit = strings.TrimSuffix(unit, "s")
	switch unit {
	case "year":
		return t.AddDate(n, 0, 0), true
	case "month":
		return t.AddDate(0, n, 0), true
	case "week":
		return t.AddDate(0, 0, 7*n), true
	case "day":
		return t.AddDate(0, 0, n), true
	case "hour":
		return t.Add(time.Duration(n) * time.Hour), true
	case "minute":
		return t.Add(time.Duration(n) * time.Minute), true
	case "second":
		return t.Add(time.Duration(n) * time.Second), true
	}
	return t, false
}

func orNil(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func toAnySlice(in []string) []any {
	out := make([]any, len(in))
	for i, s := range in {
		out[i] = s
	}
	return out
}
