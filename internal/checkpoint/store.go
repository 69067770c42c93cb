// Package checkpoint persists durable run state: checkpoints, pipeline
// runs, the record-error journal and the retry audit trail, plus the
// synced code-first configuration. Backed by a single sqlite file.
package checkpoint

import (
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	sluiceerrors "github.com/sluicehq/sluice/pkg/errors"
)

const schema = `
CREATE TABLE IF NOT EXISTS checkpoints (
	pipeline_id TEXT PRIMARY KEY,
	run_id      TEXT NOT NULL,
	sequence    INTEGER NOT NULL DEFAULT 0,
	state       TEXT NOT NULL,
	updated_at  TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS runs (
	id             TEXT PRIMARY KEY,
	pipeline_id    TEXT NOT NULL,
	status         TEXT NOT NULL,
	started_at     TIMESTAMP NOT NULL,
	finished_at    TIMESTAMP,
	processed      INTEGER NOT NULL DEFAULT 0,
	succeeded      INTEGER NOT NULL DEFAULT 0,
	failed         INTEGER NOT NULL DEFAULT 0,
	skipped        INTEGER NOT NULL DEFAULT 0,
	paused_at_step TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS record_errors (
	id          TEXT PRIMARY KEY,
	run_id      TEXT NOT NULL,
	step_key    TEXT NOT NULL,
	message     TEXT NOT NULL,
	code        TEXT NOT NULL DEFAULT '',
	payload     TEXT NOT NULL DEFAULT '{}',
	recoverable INTEGER NOT NULL DEFAULT 0,
	created_at  TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_record_errors_run ON record_errors(run_id);

CREATE TABLE IF NOT EXISTS retry_audits (
	id                TEXT PRIMARY KEY,
	error_id          TEXT NOT NULL,
	user_id           TEXT NOT NULL DEFAULT '',
	previous_payload  TEXT NOT NULL DEFAULT '{}',
	patch             TEXT NOT NULL DEFAULT '{}',
	resulting_payload TEXT NOT NULL DEFAULT '{}',
	created_at        TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS secrets (
	code     TEXT PRIMARY KEY,
	provider TEXT NOT NULL,
	value    TEXT NOT NULL,
	metadata TEXT NOT NULL DEFAULT '{}'
);

CREATE TABLE IF NOT EXISTS connections (
	code     TEXT PRIMARY KEY,
	type     TEXT NOT NULL,
	settings TEXT NOT NULL DEFAULT '{}'
);

CREATE TABLE IF NOT EXISTS pipelines (
	code         TEXT PRIMARY KEY,
	name         TEXT NOT NULL,
	enabled      INTEGER NOT NULL DEFAULT 1,
	status       TEXT NOT NULL DEFAULT 'DRAFT',
	version      INTEGER NOT NULL DEFAULT 1,
	published_at TIMESTAMP,
	definition   TEXT NOT NULL
);
`

// Store wraps the sqlite database holding all durable runtime state.
type Store struct {
	db *sqlx.DB
}

// Open creates or opens the store at path and applies the schema.
// Use ":memory:" for an ephemeral store.
func Open(path string) (*Store, error) {
	dsn := path
	if path != ":memory:" {
		dsn = fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	}
	db, err := sqlx.Connect("sqlite", dsn)
	if err != nil {
		return nil, sluiceerrors.NewJournalError("", err)
	}
	// modernc sqlite serializes writes; a single connection avoids
	// SQLITE_BUSY under concurrent batch commits.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, sluiceerrors.NewJournalError("", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}
