package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"datagate/internal/compiler"
	"datagate/internal/filter"
	"datagate/internal/metadata/metadatatest"
	"datagate/internal/operators"
	"datagate/internal/permissions"
	"datagate/internal/store"
)

var (
	pg           = store.NewDialect("postgres")
	unrestricted = permissions.Access{State: permissions.Unrestricted}
)

func compileJSON(t *testing.T, collection, src string, cases permissions.Access, rules permissions.Resolver) *compiler.Result {
	t.Helper()
	n, err := filter.Parse([]byte(src))
	require.NoError(t, err)
	res, err := compiler.Compile(metadatatest.Schema(), collection, n, cases, rules)
	require.NoError(t, err)
	return res
}

func TestBuildSelectSQL_Simple(t *testing.T) {
	res := compileJSON(t, "articles", `{"title": {"_eq": "Hello"}}`, unrestricted, nil)
	q := BuildSelectSQL(res, []string{"id", "title"}, pg, SelectOptions{})
	assert.Equal(t, "SELECT articles.id, articles.title FROM articles WHERE articles.title = $1", q.SQL)
	assert.Equal(t, []any{"Hello"}, q.Params)
}

func TestBuildSelectSQL_NoFilter(t *testing.T) {
	res := compileJSON(t, "articles", `{}`, unrestricted, nil)
	q := BuildSelectSQL(res, []string{"id"}, pg, SelectOptions{})
	assert.Equal(t, "SELECT articles.id FROM articles", q.SQL)
	assert.Empty(t, q.Params)
}

func TestBuildSelectSQL_Denied(t *testing.T) {
	res := compileJSON(t, "articles", `{"author": {"name": {"_eq": "ann"}}}`, permissions.Access{}, nil)
	q := BuildSelectSQL(res, []string{"id"}, pg, SelectOptions{})
	assert.Equal(t, "SELECT articles.id FROM articles WHERE 1=0", q.SQL)
}

func TestBuildSelectSQL_JoinSortAndPaging(t *testing.T) {
	res := compileJSON(t, "articles", `{"author": {"name": {"_eq": "ann"}}}`, unrestricted, nil)
	q := BuildSelectSQL(res, []string{"id"}, pg, SelectOptions{
		Sort:   []OrderClause{{Field: "id", Dir: "DESC"}},
		Limit:  10,
		Offset: 20,
	})
	assert.Equal(t, "SELECT articles.id FROM articles LEFT JOIN users AS r1 ON r1.id = articles.author"+
		" WHERE r1.name = $1 ORDER BY articles.id DESC LIMIT $2 OFFSET $3", q.SQL)
	assert.Equal(t, []any{"ann", 10, 20}, q.Params)
}

func TestBuildSelectSQL_RestrictedJoin(t *testing.T) {
	rules := permissions.NewSet(
		&permissions.Rule{Collection: "articles", Action: permissions.ActionRead, Policy: "p", Fields: []string{"*"}},
		&permissions.Rule{Collection: "users", Action: permissions.ActionRead, Policy: "p", Fields: []string{"*"},
			Filter: filter.Field("status", "_eq", "active")},
	)
	res := compileJSON(t, "articles", `{"author": {"name": {"_eq": "ann"}}}`, unrestricted, rules)
	q := BuildSelectSQL(res, []string{"id"}, pg, SelectOptions{})
	assert.Equal(t, "SELECT articles.id FROM articles LEFT JOIN users AS r1 ON r1.id = articles.author"+
		" AND r1.id IN (SELECT s1.id FROM users AS s1 WHERE s1.status = $1) WHERE r1.name = $2", q.SQL)
	assert.Equal(t, []any{"active", "ann"}, q.Params)
}

func TestBuildSelectSQL_OneToAnyIsDistinct(t *testing.T) {
	res := compileJSON(t, "articles", `{"notes": {"body": {"_eq": "x"}}}`, unrestricted, nil)
	q := BuildSelectSQL(res, []string{"id"}, pg, SelectOptions{})
	assert.Equal(t, "SELECT DISTINCT articles.id FROM articles LEFT JOIN notes AS r1"+
		" ON r1.parent = CAST(articles.id AS TEXT) AND r1.parent_collection = $1 WHERE r1.body = $2", q.SQL)
	assert.Equal(t, []any{"articles", "x"}, q.Params)

	c := BuildCountSQL(res, pg)
	assert.Equal(t, "SELECT COUNT(DISTINCT articles.id) FROM articles LEFT JOIN notes AS r1"+
		" ON r1.parent = CAST(articles.id AS TEXT) AND r1.parent_collection = $1 WHERE r1.body = $2", c.SQL)
}

func TestBuildCountSQL_Exists(t *testing.T) {
	res := compileJSON(t, "articles", `{"comments": {"body": {"_contains": "x"}}}`, unrestricted, nil)
	q := BuildCountSQL(res, pg)
	assert.Equal(t, "SELECT COUNT(*) FROM articles WHERE EXISTS"+
		" (SELECT 1 FROM comments AS s1 WHERE s1.article = articles.id AND s1.body LIKE $1)", q.SQL)
	assert.Equal(t, []any{"%x%"}, q.Params)
}

func TestRender_NoRelatedRows(t *testing.T) {
	res := compileJSON(t, "articles", `{"comments": {"_null": true}}`, unrestricted, nil)
	joins, where := Render(res, pg, pg.NewParamBuilder())
	assert.Empty(t, joins)
	assert.Equal(t, "NOT EXISTS (SELECT 1 FROM comments AS s1 WHERE s1.article = articles.id)", where)
}

func TestRender_Quantifiers(t *testing.T) {
	res := compileJSON(t, "articles", `{"comments": {"_some": {"approved": {"_eq": true}}}}`, unrestricted, nil)
	pb := pg.NewParamBuilder()
	_, where := Render(res, pg, pb)
	assert.Equal(t, "articles.id IN (SELECT s1.article FROM comments AS s1"+
		" WHERE s1.article IS NOT NULL AND s1.approved = $1)", where)
	assert.Equal(t, []any{true}, pb.Params())

	res = compileJSON(t, "articles", `{"notes": {"_none": {"body": {"_contains": "spam"}}}}`, unrestricted, nil)
	pb = pg.NewParamBuilder()
	_, where = Render(res, pg, pb)
	assert.Equal(t, "CAST(articles.id AS TEXT) NOT IN (SELECT s1.parent FROM notes AS s1"+
		" WHERE s1.parent IS NOT NULL AND s1.parent_collection = $1 AND s1.body LIKE $2)", where)
	assert.Equal(t, []any{"articles", "%spam%"}, pb.Params())
}

func TestRender_CountSubquery(t *testing.T) {
	res := compileJSON(t, "articles", `{"count(comments)": {"_gt": 2}}`, unrestricted, nil)
	pb := pg.NewParamBuilder()
	_, where := Render(res, pg, pb)
	assert.Equal(t, "(SELECT COUNT(*) FROM comments AS s1 WHERE s1.article = articles.id) > $1", where)
	assert.Equal(t, []any{int64(2)}, pb.Params())
}

func TestRender_LogicalAndNegation(t *testing.T) {
	res := &compiler.Result{
		Collection: "articles",
		PrimaryKey: "id",
		Condition: &compiler.Logical{
			Op:     filter.Or,
			Negate: true,
			Children: []compiler.Condition{
				&compiler.Constant{Value: false},
				&compiler.Compare{
					Column: compiler.Column{Alias: "r1", Field: "published_on", Function: "year"},
					Cmp:    operators.Comparison{Op: operators.Eq, Value: int64(2024)},
				},
			},
		},
	}
	_, where := Render(res, pg, pg.NewParamBuilder())
	assert.Equal(t, "NOT (1=0 OR CAST(EXTRACT(YEAR FROM r1.published_on) AS INTEGER) = $1)", where)
}

func TestRender_NestedSubqueryAliases(t *testing.T) {
	// A join inside an EXISTS subquery is prefixed with the subquery alias.
	res := compileJSON(t, "shapes", `{"children": {"item:circles": {"radius": {"_gt": 1}}}}`, unrestricted, nil)
	pb := pg.NewParamBuilder()
	_, where := Render(res, pg, pb)
	assert.Equal(t, "EXISTS (SELECT 1 FROM shapes_children AS s1"+
		" LEFT JOIN circles AS s1_r1 ON CAST(s1_r1.id AS TEXT) = s1.item AND s1.collection = $1"+
		" WHERE s1.shapes_id = shapes.id AND s1_r1.radius > $2)", where)
	assert.Equal(t, []any{"circles", float64(1)}, pb.Params())
}
