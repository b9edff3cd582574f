package nxlog

import (
	"database/sql"
	"sync"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap/zapcore"

	"github.com/nexxt-run/nexxt/nxerrors"
)

// sqliteSink implements zapcore.WriteSyncer over a SQLite table, selected
// when --logfile ends in ".db". It is opened with the "sqlite3" driver
// so tests can substitute a sqlmock-registered driver of the same name
// to avoid touching disk.
type sqliteSink struct {
	mu sync.Mutex
	db *sql.DB
}

var sqliteDriverName = "sqlite3"

func newSQLiteSink(path string) (zapcore.WriteSyncer, error) {
	db, err := sql.Open(sqliteDriverName, path)
	if err != nil {
		return nil, nxerrors.Wrapf(err, "opening sqlite log sink %s", path)
	}
	if _, err := db.Exec(createLogTableSQL); err != nil {
		db.Close()
		return nil, nxerrors.Wrapf(err, "creating log table in %s", path)
	}
	return &sqliteSink{db: db}, nil
}

const createLogTableSQL = `CREATE TABLE IF NOT EXISTS nexxt_log (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	entry TEXT NOT NULL
)`

// Write implements io.Writer. zap hands us one fully-encoded JSON line per
// call; we store it verbatim as a row.
func (s *sqliteSink) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.db.Exec("INSERT INTO nexxt_log (entry) VALUES (?)", string(p)); err != nil {
		return 0, err
	}
	return len(p), nil
}

// Sync implements zapcore.WriteSyncer. SQLite writes are synchronous per
// Exec call, so there is nothing to flush.
func (s *sqliteSink) Sync() error {
	return nil
}
