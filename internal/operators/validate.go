package operators

import (
	"fmt"

	"datagate/internal/apperr"
	"datagate/internal/metadata"
)

type opSet map[Op]bool

func ops(list ...Op) opSet {
	s := make(opSet, len(list))
	for _, op := range list {
		s[op] = true
	}
	return s
}

func union(sets ...opSet) opSet {
	out := opSet{}
	for _, s := range sets {
		for op := range s {
			out[op] = true
		}
	}
	return out
}

var (
	nullOps    = ops(Null, Empty)
	stringOps  = ops(Eq, In, Null, Empty, Lt, Lte, Gt, Gte, Contains, IContains, StartsWith, IStartsWith, EndsWith, IEndsWith, IEq, Regex)
	numericOps = ops(Eq, In, Null, Lt, Lte, Gt, Gte, Between)
	idOps      = ops(Eq, In, Null)
)

var allowedOps = map[string]opSet{
	metadata.TypeString:     stringOps,
	metadata.TypeText:       stringOps,
	metadata.TypeCSV:        stringOps,
	metadata.TypeHash:       nullOps,
	metadata.TypeUUID:       idOps,
	metadata.TypeInteger:    numericOps,
	metadata.TypeBigInteger: numericOps,
	metadata.TypeFloat:      numericOps,
	metadata.TypeDecimal:    numericOps,
	metadata.TypeDate:       numericOps,
	metadata.TypeDateTime:   numericOps,
	metadata.TypeTime:       numericOps,
	metadata.TypeTimestamp:  numericOps,
	metadata.TypeBoolean:    ops(Eq, Null),
	metadata.TypeJSON:       nullOps,
	metadata.TypeGeometry:   ops(Null, Intersects, IntersectsBBox),
	metadata.TypeBinary:     ops(Null),
	TypeJSONValue:           union(stringOps, numericOps),
}

// ValidateOperator checks op against the operators allowed for a column of
// fieldType. Concealed fields accept only the null and empty checks.
func ValidateOperator(fieldType string, special []string, op Op) error {
	f := metadata.Field{Type: fieldType, Special: special}
	allowed := allowedOps[fieldType]
	if f.HasSpecial(metadata.SpecialConceal) {
		allowed = nullOps
	}
	if allowed == nil {
		// Unlisted types keep equality and null checks only.
		allowed = idOps
	}
	if !allowed[op] {
		return apperr.ValidationError(
			fmt.Sprintf("Operator %q is not allowed on %s fields", "_"+string(op), fieldType),
			apperr.ErrorDetail{Rule: string(op), Message: "operator not allowed"},
		)
	}
	return nil
}
