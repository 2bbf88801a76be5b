package operators

import (
	"fmt"

	"datagate/internal/store"
)

var comparisonSymbols = map[Op]string{
	Lt:  "<",
	Lte: "<=",
	Gt:  ">",
	Gte: ">=",
}

// SQL renders cmp against column. Every value is bound through pb. A
// skipped comparison renders to the empty string.
func SQL(column string, cmp Comparison, d store.Dialect, pb store.ParamBuilder) string {
	if cmp.Skip {
		return ""
	}

	switch cmp.Op {
	case Null:
		if cmp.Negate {
			return column + " IS NOT NULL"
		}
		return column + " IS NULL"

	case Empty:
		ph := pb.Add("")
		if cmp.Negate {
			return fmt.Sprintf("(%s IS NOT NULL AND %s != %s)", column, column, ph)
		}
		return fmt.Sprintf("(%s IS NULL OR %s = %s)", column, column, ph)

	case Eq:
		if cmp.Negate {
			return fmt.Sprintf("%s != %s", column, pb.Add(cmp.Value))
		}
		return fmt.Sprintf("%s = %s", column, pb.Add(cmp.Value))

	case Lt, Lte, Gt, Gte:
		expr := fmt.Sprintf("%s %s %s", column, comparisonSymbols[cmp.Op], pb.Add(cmp.Value))
		return negate(expr, cmp.Negate)

	case In:
		values, _ := cmp.Value.([]any)
		if cmp.Negate {
			return d.NotInExpr(column, pb, values)
		}
		return d.InExpr(column, pb, values)

	case Between:
		values, _ := cmp.Value.([]any)
		lo, hi := pb.Add(values[0]), pb.Add(values[1])
		if cmp.Negate {
			return fmt.Sprintf("%s NOT BETWEEN %s AND %s", column, lo, hi)
		}
		return fmt.Sprintf("%s BETWEEN %s AND %s", column, lo, hi)

	case Contains, StartsWith, EndsWith:
		return like(column, pattern(cmp), cmp.Negate, pb)

	case IContains, IStartsWith, IEndsWith:
		return like("LOWER("+column+")", "LOWER("+pb.Add(pattern(cmp))+")", cmp.Negate, nil)

	case IEq:
		op := "="
		if cmp.Negate {
			op = "<>"
		}
		return fmt.Sprintf("LOWER(%s) %s LOWER(%s)", column, op, pb.Add(cmp.Value))

	case Intersects, IntersectsBBox:
		return negate(d.Intersects(column, pb, cmp.Value, cmp.Op == IntersectsBBox), cmp.Negate)

	case Regex:
		return negate(d.Regex(column, pb, cmp.Value), cmp.Negate)
	}

	return fmt.Sprintf("%s = %s", column, pb.Add(cmp.Value))
}

// Expression coerces and renders a single condition in one step.
func Expression(column, fieldType, function, operator string, raw any, d store.Dialect, pb store.ParamBuilder) (string, bool, error) {
	cmp, err := Compare(fieldType, function, operator, raw)
	if err != nil {
		return "", false, err
	}
	if cmp.Skip {
		return "", true, nil
	}
	return SQL(column, cmp, d, pb), false, nil
}

func pattern(cmp Comparison) string {
	v := toText(cmp.Value)
	switch cmp.Op {
	case Contains, IContains:
		return "%" + v + "%"
	case StartsWith, IStartsWith:
		return v + "%"
	default:
		return "%" + v
	}
}

// like renders a LIKE comparison. With pb set, value is bound; otherwise it
// is already a rendered placeholder expression.
func like(column, value string, negated bool, pb store.ParamBuilder) string {
	if pb != nil {
		value = pb.Add(value)
	}
	if negated {
		return fmt.Sprintf("%s NOT LIKE %s", column, value)
	}
	return fmt.Sprintf("%s LIKE %s", column, value)
}

func negate(expr string, negated bool) string {
	if negated {
		return "NOT (" + expr + ")"
	}
	return expr
}
