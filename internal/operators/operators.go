// Package operators normalizes filter operators, coerces their values to
// the target column type and renders them to parameterized SQL.
package operators

import (
	"fmt"
	"strings"

	"datagate/internal/apperr"
	"datagate/internal/filter"
)

// Op is the positive form of a filter operator. Negated operators (_neq,
// _nin, _ncontains, ...) map to the same Op with Comparison.Negate set.
type Op string

const (
	Eq             Op = "eq"
	Lt             Op = "lt"
	Lte            Op = "lte"
	Gt             Op = "gt"
	Gte            Op = "gte"
	In             Op = "in"
	Null           Op = "null"
	Empty          Op = "empty"
	Contains       Op = "contains"
	IContains      Op = "icontains"
	StartsWith     Op = "starts_with"
	IStartsWith    Op = "istarts_with"
	EndsWith       Op = "ends_with"
	IEndsWith      Op = "iends_with"
	Between        Op = "between"
	Intersects     Op = "intersects"
	IntersectsBBox Op = "intersects_bbox"
	IEq            Op = "ieq"
	Regex          Op = "regex"
)

type operatorDef struct {
	op     Op
	negate bool
}

var operatorTable = map[string]operatorDef{
	"_eq":               {Eq, false},
	"_neq":              {Eq, true},
	"_lt":               {Lt, false},
	"_lte":              {Lte, false},
	"_gt":               {Gt, false},
	"_gte":              {Gte, false},
	"_in":               {In, false},
	"_nin":              {In, true},
	"_null":             {Null, false},
	"_nnull":            {Null, true},
	"_empty":            {Empty, false},
	"_nempty":           {Empty, true},
	"_contains":         {Contains, false},
	"_ncontains":        {Contains, true},
	"_icontains":        {IContains, false},
	"_nicontains":       {IContains, true},
	"_starts_with":      {StartsWith, false},
	"_nstarts_with":     {StartsWith, true},
	"_istarts_with":     {IStartsWith, false},
	"_nistarts_with":    {IStartsWith, true},
	"_ends_with":        {EndsWith, false},
	"_nends_with":       {EndsWith, true},
	"_iends_with":       {IEndsWith, false},
	"_niends_with":      {IEndsWith, true},
	"_between":          {Between, false},
	"_nbetween":         {Between, true},
	"_intersects":       {Intersects, false},
	"_nintersects":      {Intersects, true},
	"_intersects_bbox":  {IntersectsBBox, false},
	"_nintersects_bbox": {IntersectsBBox, true},
	"_ieq":              {IEq, false},
	"_nieq":             {IEq, true},
	"_regex":            {Regex, false},
}

// Comparison is a normalized operator with its (possibly coerced) value.
// Skip marks a condition that must be dropped from the compiled filter.
type Comparison struct {
	Op     Op
	Negate bool
	Value  any
	Skip   bool
}

// IsKnown reports whether operator is a recognized filter operator.
func IsKnown(operator string) bool {
	_, ok := operatorTable[operator]
	return ok
}

// Lookup returns the positive form of operator.
func Lookup(operator string) (Op, bool, error) {
	def, ok := operatorTable[operator]
	if !ok {
		return "", false, apperr.ValidationError(fmt.Sprintf("Unknown filter operator %q", operator))
	}
	return def.op, def.negate, nil
}

// Normalize maps operator and raw value to a Comparison without coercing
// the value.
func Normalize(operator string, raw any) (Comparison, error) {
	op, negate, err := Lookup(operator)
	if err != nil {
		return Comparison{}, err
	}
	cmp := Comparison{Op: op, Negate: negate}

	switch op {
	case Null, Empty:
		// {"_null": false} reads as "is not null".
		if b, ok := raw.(bool); ok && !b {
			cmp.Negate = !cmp.Negate
		}
		return cmp, nil
	case Eq:
		if raw == nil {
			cmp.Op = Null
			return cmp, nil
		}
	}

	if filter.IsUndefined(raw) {
		cmp.Skip = true
		return cmp, nil
	}

	switch op {
	case In, Between:
		list := toList(raw)
		if op == Between && len(list) != 2 {
			cmp.Skip = true
			return cmp, nil
		}
		cmp.Value = list
	default:
		if list, ok := raw.([]any); ok {
			raw = dropUndefined(list)
		}
		cmp.Value = raw
	}
	return cmp, nil
}

// toList accepts a native array or a comma separated string.
func toList(raw any) []any {
	switch v := raw.(type) {
	case []any:
		return dropUndefined(v)
	case []string:
		out := make([]any, len(v))
		for i, s := range v {
			out[i] = s
		}
		return out
	case string:
		parts := strings.Split(v, ",")
		out := make([]any, len(parts))
		for i, p := range parts {
			out[i] = p
		}
		return out
	case nil:
		return []any{}
	default:
		return []any{v}
	}
}

func dropUndefined(list []any) []any {
	out := make([]any, 0, len(list))
	for _, v := range list {
		if !filter.IsUndefined(v) {
			out = append(out, v)
		}
	}
	return out
}

// Compare normalizes operator and coerces its value to the type of the
// target column. A non-empty function overrides fieldType with the
// function's output type.
func Compare(fieldType, function, operator string, raw any) (Comparison, error) {
	cmp, err := Normalize(operator, raw)
	if err != nil || cmp.Skip {
		return cmp, err
	}

	target := fieldType
	if function != "" {
		target, err = FunctionOutputType(function)
		if err != nil {
			return Comparison{}, err
		}
	}

	switch cmp.Op {
	case Null, Empty:
		return cmp, nil
	case Contains, IContains, StartsWith, IStartsWith, EndsWith, IEndsWith, IEq, Regex:
		cmp.Value = toText(cmp.Value)
		return cmp, nil
	case Intersects, IntersectsBBox:
		return cmp, nil
	case In, Between:
		list := cmp.Value.([]any)
		out := make([]any, len(list))
		for i, v := range list {
			c, err := coerce(target, v)
			if err != nil {
				return Comparison{}, err
			}
			out[i] = c
		}
		cmp.Value = out
		return cmp, nil
	}

	cmp.Value, err = coerce(target, cmp.Value)
	if err != nil {
		return Comparison{}, err
	}
	return cmp, nil
}

func toText(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case fmt.Stringer:
		return val.String()
	default:
		return fmt.Sprint(v)
	}
}
