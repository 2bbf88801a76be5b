package store

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBootstrap_CreatesTablesOnce(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	s := &Store{DB: db, Dialect: &SQLiteDialect{}}

	mock.ExpectQuery("SELECT name FROM sqlite_master").
		WithArgs("_permissions").
		WillReturnRows(sqlmock.NewRows([]string{"name"}))
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS _collections").
		WillReturnResult(sqlmock.NewResult(0, 0))
	require.NoError(t, s.Bootstrap(context.Background()))

	mock.ExpectQuery("SELECT name FROM sqlite_master").
		WithArgs("_permissions").
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("_permissions"))
	require.NoError(t, s.Bootstrap(context.Background()))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQueryRows_NormalizesBytes(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT id, title FROM articles").
		WillReturnRows(sqlmock.NewRows([]string{"id", "title"}).
			AddRow(int64(1), []byte("hello")))

	rows, err := QueryRows(context.Background(), db, "SELECT id, title FROM articles")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "hello", rows[0]["title"])
	assert.Equal(t, int64(1), rows[0]["id"])
}

func TestExists(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT 1").WithArgs(7).WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))
	ok, err := Exists(context.Background(), db, "SELECT 1 FROM articles WHERE id = $1", 7)
	require.NoError(t, err)
	assert.True(t, ok)

	mock.ExpectQuery("SELECT 1").WithArgs(8).WillReturnRows(sqlmock.NewRows([]string{"?column?"}))
	ok, err = Exists(context.Background(), db, "SELECT 1 FROM articles WHERE id = $1", 8)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestQueryRow_NotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT").WillReturnRows(sqlmock.NewRows([]string{"id"}))
	_, err = QueryRow(context.Background(), db, "SELECT id FROM articles")
	assert.ErrorIs(t, err, ErrNotFound)
}
