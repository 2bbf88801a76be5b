package operators

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"datagate/internal/apperr"
	"datagate/internal/metadata"
)

// TypeJSONValue is the effective type of a value read from inside a json
// column. It is compared as text.
const TypeJSONValue = "jsonValue"

var functionOutputTypes = map[string]string{
	"year":    metadata.TypeInteger,
	"month":   metadata.TypeInteger,
	"week":    metadata.TypeInteger,
	"day":     metadata.TypeInteger,
	"weekday": metadata.TypeInteger,
	"hour":    metadata.TypeInteger,
	"minute":  metadata.TypeInteger,
	"second":  metadata.TypeInteger,
	"count":   metadata.TypeInteger,
}

// FunctionOutputType returns the column type produced by a field function.
func FunctionOutputType(function string) (string, error) {
	t, ok := functionOutputTypes[function]
	if !ok {
		return "", apperr.ValidationError(fmt.Sprintf("Unsupported field function %q", function))
	}
	return t, nil
}

// IsDateFunction reports whether function extracts a date part.
func IsDateFunction(function string) bool {
	_, ok := functionOutputTypes[function]
	return ok && function != "count"
}

var (
	timePattern    = regexp.MustCompile(`^\d{2}:\d{2}(:\d{2}(\.\d+)?)?$`)
	integerPattern = regexp.MustCompile(`^-?\d+$`)
	decimalPattern = regexp.MustCompile(`^-?\d+(\.\d+)?$`)
)

var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
}

func coerce(fieldType string, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch fieldType {
	case metadata.TypeDate, metadata.TypeDateTime, metadata.TypeTimestamp:
		return coerceDate(v)
	case metadata.TypeTime:
		s := toText(v)
		if !timePattern.MatchString(s) {
			return nil, invalidValue(fieldType, v)
		}
		return s, nil
	case metadata.TypeInteger:
		return coerceInt(fieldType, v)
	case metadata.TypeBigInteger:
		s := numberText(v)
		if !integerPattern.MatchString(s) {
			return nil, invalidValue(fieldType, v)
		}
		return s, nil
	case metadata.TypeFloat:
		return coerceFloat(fieldType, v)
	case metadata.TypeDecimal:
		s := numberText(v)
		if !decimalPattern.MatchString(s) {
			return nil, invalidValue(fieldType, v)
		}
		return s, nil
	case metadata.TypeBoolean:
		return coerceBool(fieldType, v)
	case metadata.TypeUUID:
		id, err := uuid.Parse(toText(v))
		if err != nil {
			return nil, invalidValue(fieldType, v)
		}
		return id.String(), nil
	default:
		if n, ok := v.(json.Number); ok {
			return n.String(), nil
		}
		return v, nil
	}
}

func coerceDate(v any) (any, error) {
	switch val := v.(type) {
	case time.Time:
		return val, nil
	case string:
		for _, layout := range dateLayouts {
			if t, err := time.Parse(layout, strings.TrimSpace(val)); err == nil {
				return t, nil
			}
		}
	}
	return nil, invalidValue("date", v)
}

func coerceInt(fieldType string, v any) (any, error) {
	switch val := v.(type) {
	case int:
		return int64(val), nil
	case int32:
		return int64(val), nil
	case int64:
		return val, nil
	case float64:
		if val != math.Trunc(val) {
			return nil, invalidValue(fieldType, v)
		}
		return int64(val), nil
	case json.Number:
		n, err := val.Int64()
		if err != nil {
			return nil, invalidValue(fieldType, v)
		}
		return n, nil
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(val), 10, 64)
		if err != nil {
			return nil, invalidValue(fieldType, v)
		}
		return n, nil
	}
	return nil, invalidValue(fieldType, v)
}

func coerceFloat(fieldType string, v any) (any, error) {
	switch val := v.(type) {
	case int:
		return float64(val), nil
	case int64:
		return float64(val), nil
	case float64:
		return val, nil
	case json.Number:
		f, err := val.Float64()
		if err != nil {
			return nil, invalidValue(fieldType, v)
		}
		return f, nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		if err != nil {
			return nil, invalidValue(fieldType, v)
		}
		return f, nil
	}
	return nil, invalidValue(fieldType, v)
}

func coerceBool(fieldType string, v any) (any, error) {
	switch val := v.(type) {
	case bool:
		return val, nil
	case string:
		b, err := strconv.ParseBool(val)
		if err != nil {
			return nil, invalidValue(fieldType, v)
		}
		return b, nil
	case json.Number:
		switch val.String() {
		case "0":
			return false, nil
		case "1":
			return true, nil
		}
	case int64:
		return val != 0, nil
	case float64:
		return val != 0, nil
	}
	return nil, invalidValue(fieldType, v)
}

func numberText(v any) string {
	switch val := v.(type) {
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case json.Number:
		return val.String()
	default:
		return strings.TrimSpace(toText(v))
	}
}

func invalidValue(fieldType string, v any) error {
	return apperr.ValidationError(
		fmt.Sprintf("Invalid filter value %v for %s field", v, fieldType),
		apperr.ErrorDetail{Rule: fieldType, Message: fmt.Sprintf("cannot convert %v", v)},
	)
}
