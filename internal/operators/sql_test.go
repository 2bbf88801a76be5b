package operators

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"datagate/internal/metadata"
	"datagate/internal/store"
)

func render(t *testing.T, d store.Dialect, fieldType, operator string, raw any) (string, []any) {
	t.Helper()
	pb := d.NewParamBuilder()
	sql, skip, err := Expression("articles.title", fieldType, "", operator, raw, d, pb)
	require.NoError(t, err)
	require.False(t, skip)
	return sql, pb.Params()
}

func TestSQL_CaseInsensitive(t *testing.T) {
	pg := store.NewDialect("postgres")

	sql, params := render(t, pg, metadata.TypeString, "_icontains", "FOO")
	assert.Equal(t, "LOWER(articles.title) LIKE LOWER($1)", sql)
	assert.Equal(t, []any{"%FOO%"}, params)

	sql, params = render(t, pg, metadata.TypeString, "_nistarts_with", "ab")
	assert.Equal(t, "LOWER(articles.title) NOT LIKE LOWER($1)", sql)
	assert.Equal(t, []any{"ab%"}, params)

	sql, _ = render(t, pg, metadata.TypeString, "_ieq", "Hello")
	assert.Equal(t, "LOWER(articles.title) = LOWER($1)", sql)
}

func TestSQL_NullAndEmpty(t *testing.T) {
	pg := store.NewDialect("postgres")

	sql, params := render(t, pg, metadata.TypeString, "_null", true)
	assert.Equal(t, "articles.title IS NULL", sql)
	assert.Empty(t, params)

	sql, _ = render(t, pg, metadata.TypeString, "_neq", nil)
	assert.Equal(t, "articles.title IS NOT NULL", sql)

	sql, params = render(t, pg, metadata.TypeString, "_empty", true)
	assert.Equal(t, "(articles.title IS NULL OR articles.title = $1)", sql)
	assert.Equal(t, []any{""}, params)

	sql, _ = render(t, pg, metadata.TypeString, "_empty", false)
	assert.Equal(t, "(articles.title IS NOT NULL AND articles.title != $1)", sql)
}

func TestSQL_InAndBetween(t *testing.T) {
	pg := store.NewDialect("postgres")
	sql, params := render(t, pg, metadata.TypeString, "_in", "a,b")
	assert.Equal(t, "articles.title = ANY($1)", sql)
	assert.Equal(t, []any{[]string{"a", "b"}}, params)

	lite := store.NewDialect("sqlite")
	sql, params = render(t, lite, metadata.TypeInteger, "_nin", []any{1, 2})
	assert.Equal(t, "articles.title NOT IN (?1, ?2)", sql)
	assert.Equal(t, []any{int64(1), int64(2)}, params)

	sql, _ = render(t, lite, metadata.TypeString, "_in", []any{})
	assert.Equal(t, "1=0", sql)

	sql, params = render(t, pg, metadata.TypeInteger, "_nbetween", "1,5")
	assert.Equal(t, "articles.title NOT BETWEEN $1 AND $2", sql)
	assert.Equal(t, []any{int64(1), int64(5)}, params)
}

func TestSQL_Comparisons(t *testing.T) {
	pg := store.NewDialect("postgres")
	sql, _ := render(t, pg, metadata.TypeInteger, "_gte", 3)
	assert.Equal(t, "articles.title >= $1", sql)

	sql, _ = render(t, pg, metadata.TypeString, "_neq", "x")
	assert.Equal(t, "articles.title != $1", sql)

	sql, params := render(t, pg, metadata.TypeString, "_nends_with", "z")
	assert.Equal(t, "articles.title NOT LIKE $1", sql)
	assert.Equal(t, []any{"%z"}, params)

	sql, _ = render(t, pg, metadata.TypeString, "_regex", "^a")
	assert.Equal(t, "articles.title ~ $1", sql)
}

func TestExpression_Skip(t *testing.T) {
	pg := store.NewDialect("postgres")
	pb := pg.NewParamBuilder()
	sql, skip, err := Expression("c", metadata.TypeInteger, "", "_between", "1", pg, pb)
	require.NoError(t, err)
	assert.True(t, skip)
	assert.Empty(t, sql)
	assert.Zero(t, pb.Count())
}
