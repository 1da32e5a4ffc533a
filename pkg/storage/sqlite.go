// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

package storage

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite" // sqlite driver
)

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

const schemaDDL = `
CREATE TABLE IF NOT EXISTS posts (
    key     TEXT NOT NULL,
    post_id TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS posts_key_idx ON posts (key);

CREATE TABLE IF NOT EXISTS outbox (
    id             TEXT NOT NULL,
    data           TEXT NOT NULL,
    in_progress_at INTEGER NULL,
    created_at     INTEGER NOT NULL DEFAULT (strftime('%s', 'now'))
);
CREATE INDEX IF NOT EXISTS outbox_created_at_idx ON outbox (created_at);
`

// OpenSQLite opens (creating it on first run) the single embedded database
// file backing both the posts and the outbox tables. The connection pool is
// capped at one connection: every store call is a short transaction and the
// writer volume is tiny, so serializing is simpler than dealing with
// SQLITE_BUSY.
func OpenSQLite(path string) (*sqlx.DB, error) {
	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db %q: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set journal mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}
	if _, err := db.Exec(schemaDDL); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return db, nil
}
