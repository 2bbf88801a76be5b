package operators

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"datagate/internal/apperr"
	"datagate/internal/filter"
	"datagate/internal/metadata"
)

func TestNormalize_NullFamily(t *testing.T) {
	tests := []struct {
		operator string
		value    any
		negate   bool
		op       Op
	}{
		{"_null", true, false, Null},
		{"_null", false, true, Null},
		{"_nnull", true, true, Null},
		{"_nnull", false, false, Null},
		{"_eq", nil, false, Null},
		{"_neq", nil, true, Null},
		{"_empty", true, false, Empty},
		{"_nempty", false, false, Empty},
		{"_null", filter.Undefined, false, Null},
	}
	for _, tt := range tests {
		t.Run(tt.operator, func(t *testing.T) {
			cmp, err := Normalize(tt.operator, tt.value)
			require.NoError(t, err)
			assert.Equal(t, tt.op, cmp.Op)
			assert.Equal(t, tt.negate, cmp.Negate)
			assert.False(t, cmp.Skip)
		})
	}
}

func TestNormalize_UndefinedSkips(t *testing.T) {
	cmp, err := Normalize("_eq", filter.Undefined)
	require.NoError(t, err)
	assert.True(t, cmp.Skip)

	cmp, err = Normalize("_contains", filter.Undefined)
	require.NoError(t, err)
	assert.True(t, cmp.Skip)
}

func TestNormalize_Lists(t *testing.T) {
	fromString, err := Normalize("_in", "a,b")
	require.NoError(t, err)
	fromArray, err := Normalize("_in", []any{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, fromArray, fromString)

	cmp, err := Normalize("_in", []any{"a", filter.Undefined})
	require.NoError(t, err)
	assert.Equal(t, []any{"a"}, cmp.Value)

	cmp, err = Normalize("_in", []any{})
	require.NoError(t, err)
	assert.False(t, cmp.Skip)
	assert.Equal(t, []any{}, cmp.Value)
}

func TestNormalize_BetweenNeedsTwoValues(t *testing.T) {
	for _, raw := range []any{"1", "1,2,3", []any{1}, []any{}} {
		cmp, err := Normalize("_between", raw)
		require.NoError(t, err)
		assert.True(t, cmp.Skip, "%v", raw)
	}

	cmp, err := Normalize("_nbetween", "1,5")
	require.NoError(t, err)
	assert.False(t, cmp.Skip)
	assert.True(t, cmp.Negate)
	assert.Equal(t, []any{"1", "5"}, cmp.Value)
}

func TestNormalize_UnknownOperator(t *testing.T) {
	_, err := Normalize("_like", "x")
	require.Error(t, err)
	assert.True(t, apperr.HasCode(err, apperr.CodeValidationFailed))
}

func TestCompare_Coercion(t *testing.T) {
	cmp, err := Compare(metadata.TypeInteger, "", "_gt", json.Number("42"))
	require.NoError(t, err)
	assert.Equal(t, int64(42), cmp.Value)

	cmp, err = Compare(metadata.TypeInteger, "", "_in", "1,2")
	require.NoError(t, err)
	assert.Equal(t, []any{int64(1), int64(2)}, cmp.Value)

	cmp, err = Compare(metadata.TypeFloat, "", "_lt", "1.5")
	require.NoError(t, err)
	assert.Equal(t, 1.5, cmp.Value)

	cmp, err = Compare(metadata.TypeBoolean, "", "_eq", "true")
	require.NoError(t, err)
	assert.Equal(t, true, cmp.Value)

	cmp, err = Compare(metadata.TypeDecimal, "", "_eq", json.Number("10.50"))
	require.NoError(t, err)
	assert.Equal(t, "10.50", cmp.Value)

	cmp, err = Compare(metadata.TypeUUID, "", "_eq", "6BA7B810-9DAD-11D1-80B4-00C04FD430C8")
	require.NoError(t, err)
	assert.Equal(t, "6ba7b810-9dad-11d1-80b4-00c04fd430c8", cmp.Value)

	cmp, err = Compare(metadata.TypeDateTime, "", "_gte", "2024-01-02")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), cmp.Value)
}

func TestCompare_InvalidValue(t *testing.T) {
	_, err := Compare(metadata.TypeInteger, "", "_eq", "abc")
	require.Error(t, err)
	assert.True(t, apperr.HasCode(err, apperr.CodeValidationFailed))

	_, err = Compare(metadata.TypeInteger, "", "_eq", 1.5)
	assert.Error(t, err)

	_, err = Compare(metadata.TypeTime, "", "_eq", "noon")
	assert.Error(t, err)
}

func TestCompare_FunctionUsesOutputType(t *testing.T) {
	cmp, err := Compare(metadata.TypeDateTime, "year", "_eq", "2024")
	require.NoError(t, err)
	assert.Equal(t, int64(2024), cmp.Value)

	_, err = Compare(metadata.TypeJSON, "json", "_eq", "x")
	assert.Error(t, err)
}

func TestCompare_LikeKeepsRawString(t *testing.T) {
	cmp, err := Compare(metadata.TypeInteger, "", "_contains", json.Number("12"))
	require.NoError(t, err)
	assert.Equal(t, "12", cmp.Value)
}

func TestValidateOperator(t *testing.T) {
	assert.NoError(t, ValidateOperator(metadata.TypeString, nil, IContains))
	assert.NoError(t, ValidateOperator(metadata.TypeInteger, nil, Between))
	assert.Error(t, ValidateOperator(metadata.TypeInteger, nil, Contains))
	assert.Error(t, ValidateOperator(metadata.TypeBoolean, nil, Gt))
	assert.NoError(t, ValidateOperator(metadata.TypeGeometry, nil, Intersects))

	concealed := []string{metadata.SpecialConceal}
	assert.NoError(t, ValidateOperator(metadata.TypeString, concealed, Null))
	assert.NoError(t, ValidateOperator(metadata.TypeString, concealed, Empty))
	err := ValidateOperator(metadata.TypeString, concealed, Eq)
	require.Error(t, err)
	assert.True(t, apperr.HasCode(err, apperr.CodeValidationFailed))

	assert.NoError(t, ValidateOperator(TypeJSONValue, nil, Contains))
	assert.NoError(t, ValidateOperator(TypeJSONValue, nil, Between))
}
