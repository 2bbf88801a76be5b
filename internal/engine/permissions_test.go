package engine

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"datagate/internal/apperr"
	"datagate/internal/filter"
	"datagate/internal/metadata/metadatatest"
	"datagate/internal/permissions"
	"datagate/internal/store"
)

func updateRule(f filter.Node, fields ...string) *permissions.Rule {
	return &permissions.Rule{Collection: "articles", Action: permissions.ActionUpdate, Policy: "editor", Filter: f, Fields: fields}
}

func newMockAccess(t *testing.T, rules permissions.Resolver) (*ItemAccess, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return &ItemAccess{DB: db, Dialect: pg, Schema: metadatatest.Schema(), Rules: rules}, mock
}

func TestCheckFieldAccess_NoRulesAndAdmin(t *testing.T) {
	a, mock := newMockAccess(t, nil)
	fields, err := a.CheckFieldAccess(context.Background(), "articles", "1", permissions.ActionUpdate)
	require.NoError(t, err)
	assert.Nil(t, fields)

	a.Rules = permissions.AdminSet()
	fields, err = a.CheckFieldAccess(context.Background(), "articles", "1", permissions.ActionUpdate)
	require.NoError(t, err)
	assert.Equal(t, []string{"*"}, fields)

	a.Rules = permissions.NewSet(updateRule(nil, "title"))
	fields, err = a.CheckFieldAccess(context.Background(), "articles", "1", permissions.ActionDelete)
	require.NoError(t, err)
	assert.Nil(t, fields)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCheckFieldAccess_CollectionLevel(t *testing.T) {
	a, mock := newMockAccess(t, permissions.NewSet(
		updateRule(filter.Field("status", "_eq", "draft"), "title", "body"),
		updateRule(filter.Field("status", "_eq", "published"), "status"),
	))
	fields, err := a.CheckFieldAccess(context.Background(), "articles", "", permissions.ActionUpdate)
	require.NoError(t, err)
	assert.Equal(t, []string{"body", "status", "title"}, fields)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCheckFieldAccess_UnionOfMatchingRules(t *testing.T) {
	a, mock := newMockAccess(t, permissions.NewSet(
		updateRule(filter.Field("status", "_eq", "draft"), "title", "body"),
		updateRule(filter.Field("author.status", "_eq", "active"), "status"),
	))

	mock.ExpectQuery("SELECT 1 FROM articles WHERE articles.id = $1 AND articles.status = $2 LIMIT 1").
		WithArgs(int64(7), "draft").
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))
	mock.ExpectQuery("SELECT 1 FROM articles LEFT JOIN users AS r1 ON r1.id = articles.author"+
		" WHERE articles.id = $1 AND r1.status = $2 LIMIT 1").
		WithArgs(int64(7), "active").
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}))

	fields, err := a.CheckFieldAccess(context.Background(), "articles", "7", permissions.ActionUpdate)
	require.NoError(t, err)
	assert.Equal(t, []string{"body", "title"}, fields)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCheckFieldAccess_NoMatch(t *testing.T) {
	a, mock := newMockAccess(t, permissions.NewSet(
		updateRule(filter.Field("status", "_eq", "draft"), "title"),
	))
	mock.ExpectQuery("SELECT 1 FROM articles WHERE articles.id = $1 AND articles.status = $2 LIMIT 1").
		WithArgs(int64(8), "draft").
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}))

	fields, err := a.CheckFieldAccess(context.Background(), "articles", "8", permissions.ActionUpdate)
	require.NoError(t, err)
	assert.Nil(t, fields)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCheckFieldAccess_WildcardStopsEarly(t *testing.T) {
	a, mock := newMockAccess(t, permissions.NewSet(
		updateRule(nil, "*"),
		updateRule(filter.Field("status", "_eq", "draft"), "title"),
	))
	mock.ExpectQuery("SELECT 1 FROM articles WHERE articles.id = $1 LIMIT 1").
		WithArgs(int64(3)).
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))

	fields, err := a.CheckFieldAccess(context.Background(), "articles", "3", permissions.ActionUpdate)
	require.NoError(t, err)
	assert.Equal(t, []string{"*"}, fields)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCheckFieldAccess_Errors(t *testing.T) {
	a, mock := newMockAccess(t, permissions.NewSet(updateRule(filter.Field("status", "_eq", "draft"), "title")))

	_, err := a.CheckFieldAccess(context.Background(), "nope", "1", permissions.ActionUpdate)
	assert.True(t, apperr.HasCode(err, apperr.CodeUnknownCollection))

	_, err = a.CheckFieldAccess(context.Background(), "articles", "abc", permissions.ActionUpdate)
	assert.True(t, apperr.HasCode(err, apperr.CodeValidationFailed))

	boom := errors.New("connection reset")
	mock.ExpectQuery("SELECT 1 FROM articles WHERE articles.id = $1 AND articles.status = $2 LIMIT 1").
		WillReturnError(boom)
	_, err = a.CheckFieldAccess(context.Background(), "articles", "1", permissions.ActionUpdate)
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func openSQLite(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	for _, stmt := range []string{
		`CREATE TABLE users (id TEXT PRIMARY KEY, name TEXT, status TEXT)`,
		`CREATE TABLE articles (id INTEGER PRIMARY KEY, title TEXT, status TEXT, author TEXT)`,
		`INSERT INTO users VALUES ('0b6c2d8e-6f4e-4b8e-9a53-1f1d7c1e2a01', 'ann', 'active')`,
		`INSERT INTO users VALUES ('0b6c2d8e-6f4e-4b8e-9a53-1f1d7c1e2a02', 'bob', 'suspended')`,
		`INSERT INTO articles VALUES (1, 'one', 'draft', '0b6c2d8e-6f4e-4b8e-9a53-1f1d7c1e2a01')`,
		`INSERT INTO articles VALUES (2, 'two', 'published', '0b6c2d8e-6f4e-4b8e-9a53-1f1d7c1e2a01')`,
		`INSERT INTO articles VALUES (3, 'three', 'draft', '0b6c2d8e-6f4e-4b8e-9a53-1f1d7c1e2a02')`,
	} {
		_, err := db.Exec(stmt)
		require.NoError(t, err, stmt)
	}
	return db
}

func TestCheckFieldAccess_SQLite(t *testing.T) {
	db := openSQLite(t)
	a := &ItemAccess{
		DB:      db,
		Dialect: store.NewDialect("sqlite"),
		Schema:  metadatatest.Schema(),
		Rules: permissions.NewSet(
			updateRule(filter.Field("status", "_eq", "draft"), "title"),
			updateRule(filter.Field("author.status", "_eq", "active"), "status"),
		),
	}
	ctx := context.Background()

	fields, err := a.CheckFieldAccess(ctx, "articles", "1", permissions.ActionUpdate)
	require.NoError(t, err)
	assert.Equal(t, []string{"status", "title"}, fields)

	fields, err = a.CheckFieldAccess(ctx, "articles", "2", permissions.ActionUpdate)
	require.NoError(t, err)
	assert.Equal(t, []string{"status"}, fields)

	fields, err = a.CheckFieldAccess(ctx, "articles", "3", permissions.ActionUpdate)
	require.NoError(t, err)
	assert.Equal(t, []string{"title"}, fields)

	fields, err = a.CheckFieldAccess(ctx, "articles", "99", permissions.ActionUpdate)
	require.NoError(t, err)
	assert.Nil(t, fields)
}

func TestBuildSelectSQL_SQLite(t *testing.T) {
	db := openSQLite(t)
	d := store.NewDialect("sqlite")
	cases := permissions.BuildCases([]*permissions.Rule{
		{Collection: "articles", Action: permissions.ActionRead, Policy: "p", Filter: filter.Field("status", "_eq", "draft")},
	})
	res := compileJSON(t, "articles", `{"author": {"status": {"_eq": "active"}}}`, cases, nil)

	q := BuildSelectSQL(res, []string{"id", "title"}, d, SelectOptions{Sort: []OrderClause{{Field: "id", Dir: "ASC"}}})
	rows, err := store.QueryRows(context.Background(), db, q.SQL, q.Params...)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "one", rows[0]["title"])

	c := BuildCountSQL(compileJSON(t, "articles", `{"status": {"_eq": "draft"}}`, unrestricted, nil), d)
	row, err := store.QueryRow(context.Background(), db, c.SQL, c.Params...)
	require.NoError(t, err)
	assert.EqualValues(t, 2, row["COUNT(*)"])
}
