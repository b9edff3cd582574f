package nxlog

import (
	"database/sql"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
)

// TestSQLiteSinkWrite exercises the sink against a mocked driver so the
// test never touches disk.
func TestSQLiteSinkWrite(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS nexxt_log").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("INSERT INTO nexxt_log").
		WithArgs(`{"msg":"hello"}`).
		WillReturnResult(sqlmock.NewResult(1, 1))

	sink := &sqliteSink{db: db}
	_, err = sink.db.Exec(createLogTableSQL)
	require.NoError(t, err)

	n, err := sink.Write([]byte(`{"msg":"hello"}`))
	require.NoError(t, err)
	require.Equal(t, len(`{"msg":"hello"}`), n)
	require.NoError(t, sink.Sync())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNewSQLiteSinkUsesRegisteredDriver(t *testing.T) {
	// newSQLiteSink must use database/sql's registered driver name so it
	// can be redirected in tests without touching real sqlite.
	require.Equal(t, "sqlite3", sqliteDriverName)
	// sanity: the stdlib driver registry knows about it once mattn/go-sqlite3 is imported.
	drivers := sql.Drivers()
	found := false
	for _, d := range drivers {
		if d == "sqlite3" {
			found = true
		}
	}
	require.True(t, found)
}
