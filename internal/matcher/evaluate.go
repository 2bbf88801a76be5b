package matcher

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"datagate/internal/apperr"
	"datagate/internal/filter"
	"datagate/internal/operators"
)

func evaluateCondition(cond *filter.Condition, base any, strict bool) (bool, error) {
	cmp, err := operators.Normalize(cond.Operator, cond.Value)
	if err != nil {
		return false, err
	}
	if cmp.Skip {
		return true, nil
	}

	values := resolve(base, cond.Path, strict)
	if len(values) == 0 {
		if strict {
			return false, nil
		}
		values = []any{nil}
	}
	// A path through a multi-row relation matches when any row does.
	for _, v := range values {
		ok, err := compare(cmp, v)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

func compare(cmp operators.Comparison, v any) (bool, error) {
	var result bool
	switch cmp.Op {
	case operators.Null:
		result = v == nil
	case operators.Empty:
		result = v == nil || fmt.Sprintf("%v", v) == ""
	case operators.Eq:
		result = equalValues(v, cmp.Value)
	case operators.IEq:
		result = strings.EqualFold(fmt.Sprintf("%v", v), fmt.Sprintf("%v", cmp.Value))
	case operators.Lt:
		result = v != nil && compareValues(v, cmp.Value) < 0
	case operators.Lte:
		result = v != nil && compareValues(v, cmp.Value) <= 0
	case operators.Gt:
		result = v != nil && compareValues(v, cmp.Value) > 0
	case operators.Gte:
		result = v != nil && compareValues(v, cmp.Value) >= 0
	case operators.In:
		result = valueInList(v, cmp.Value)
	case operators.Between:
		bounds, _ := cmp.Value.([]any)
		result = v != nil && len(bounds) == 2 &&
			compareValues(v, bounds[0]) >= 0 && compareValues(v, bounds[1]) <= 0
	case operators.Contains, operators.StartsWith, operators.EndsWith:
		result = v != nil && matchText(cmp.Op, fmt.Sprintf("%v", v), fmt.Sprintf("%v", cmp.Value))
	case operators.IContains, operators.IStartsWith, operators.IEndsWith:
		result = v != nil && matchText(cmp.Op,
			strings.ToLower(fmt.Sprintf("%v", v)), strings.ToLower(fmt.Sprintf("%v", cmp.Value)))
	case operators.Regex:
		re, err := regexp.Compile(fmt.Sprintf("%v", cmp.Value))
		if err != nil {
			return false, apperr.ValidationError(fmt.Sprintf("Invalid regular expression: %v", err))
		}
		result = v != nil && re.MatchString(fmt.Sprintf("%v", v))
	default:
		return false, apperr.UsageError(fmt.Sprintf("Operator _%s cannot be evaluated in memory", cmp.Op))
	}
	if cmp.Negate {
		return !result, nil
	}
	return result, nil
}

func matchText(op operators.Op, s, sub string) bool {
	switch op {
	case operators.StartsWith, operators.IStartsWith:
		return strings.HasPrefix(s, sub)
	case operators.EndsWith, operators.IEndsWith:
		return strings.HasSuffix(s, sub)
	default:
		return strings.Contains(s, sub)
	}
}

// resolve walks path from base and returns every value it reaches. Arrays
// along the way fan out. Under strict, absent keys reach nothing.
func resolve(base any, path []filter.PathSegment, strict bool) []any {
	current := []any{base}
	for i, seg := range path {
		var next []any
		for _, c := range current {
			obj, ok := c.(map[string]any)
			if !ok {
				continue
			}
			v, present := obj[seg.Name]
			if !present && strict {
				continue
			}
			if seg.Function != "" {
				next = append(next, applyFunction(seg.Function, v))
				continue
			}
			if list, ok := v.([]any); ok && i < len(path)-1 {
				next = append(next, list...)
				continue
			}
			next = append(next, v)
		}
		current = next
	}
	return current
}

// collect returns the rows of the relation at path.
func collect(base any, path []filter.PathSegment, strict bool) []any {
	var out []any
	for _, v := range resolve(base, path, strict) {
		switch val := v.(type) {
		case []any:
			out = append(out, val...)
		case map[string]any:
			out = append(out, val)
		}
	}
	return out
}

func applyFunction(fn string, v any) any {
	if fn == "count" {
		if list, ok := v.([]any); ok {
			return int64(len(list))
		}
		return int64(0)
	}
	t, ok := toTime(v)
	if !ok {
		return nil
	}
	switch fn {
	case "year":
		return int64(t.Year())
	case "month":
		return int64(t.Month())
	case "week":
		_, w := t.ISOWeek()
		return int64(w)
	case "day":
		return int64(t.Day())
	case "weekday":
		return int64(t.Weekday())
	case "hour":
		return int64(t.Hour())
	case "minute":
		return int64(t.Minute())
	case "second":
		return int64(t.Second())
	}
	return nil
}

func toTime(v any) (time.Time, bool) {
	switch val := v.(type) {
	case time.Time:
		return val, true
	case string:
		for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02 15:04:05", "2006-01-02"} {
			if t, err := time.Parse(layout, val); err == nil {
				return t, true
			}
		}
	}
	return time.Time{}, false
}

func equalValues(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if fa, ok := toFloat(a); ok {
		if fb, ok := toFloat(b); ok {
			return fa == fb
		}
	}
	if ta, ok := toTime(a); ok {
		if tb, ok := toTime(b); ok {
			return ta.Equal(tb)
		}
	}
	return fmt.Sprintf("%v", a) == fmt.Sprintf("%v", b)
}

func compareValues(a, b any) int {
	if fa, ok := toFloat(a); ok {
		if fb, ok := toFloat(b); ok {
			switch {
			case fa < fb:
				return -1
			case fa > fb:
				return 1
			}
			return 0
		}
	}
	if ta, ok := toTime(a); ok {
		if tb, ok := toTime(b); ok {
			return ta.Compare(tb)
		}
	}
	return strings.Compare(fmt.Sprintf("%v", a), fmt.Sprintf("%v", b))
}

func valueInList(val, list any) bool {
	items, ok := list.([]any)
	if !ok {
		return false
	}
	for _, item := range items {
		if equalValues(val, item) {
			return true
		}
	}
	return false
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	}
	return 0, false
}
