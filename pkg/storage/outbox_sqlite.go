// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/feedproxy/feedproxy/pkg/feed"
)

// SQLiteOutboxStore is the durable outbox backend. Items are stored as JSON
// blobs; claims are the in_progress_at column. A claim set in a previous
// process run becomes reclaimable once the dead-letter delta elapses, which
// is what makes the outbox the durability boundary of the system.
type SQLiteOutboxStore struct {
	db *sqlx.DB
}

// NewSQLiteOutboxStore returns an outbox store on top of an open database.
func NewSQLiteOutboxStore(db *sqlx.DB) *SQLiteOutboxStore {
	return &SQLiteOutboxStore{db: db}
}

// Put implements OutboxStore.
func (s *SQLiteOutboxStore) Put(ctx context.Context, item feed.OutboxItem, now int64) error {
	if item.CreatedAt == 0 {
		item.CreatedAt = now
	}
	data, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("marshal outbox item %s: %w", item.ID, err)
	}
	_, err = s.db.ExecContext(ctx,
		"INSERT INTO outbox (id, data, in_progress_at, created_at) VALUES (?, ?, NULL, ?)",
		item.ID, string(data), item.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert outbox item %s: %w", item.ID, err)
	}
	return nil
}

// Get implements OutboxStore.
func (s *SQLiteOutboxStore) Get(ctx context.Context, now int64) (*feed.OutboxItem, error) {
	return s.claim(ctx, now, "SELECT id, data FROM outbox WHERE in_progress_at IS NULL ORDER BY created_at, rowid LIMIT 1")
}

// GetDeadLetter implements OutboxStore.
func (s *SQLiteOutboxStore) GetDeadLetter(ctx context.Context, now int64, delta int64) (*feed.OutboxItem, error) {
	return s.claim(ctx, now,
		"SELECT id, data FROM outbox WHERE in_progress_at IS NOT NULL AND in_progress_at <= ? ORDER BY created_at, rowid LIMIT 1",
		now-delta)
}

// claim selects one item and marks it in-progress in a single transaction so
// that concurrent consumers never observe the same handoff.
func (s *SQLiteOutboxStore) claim(ctx context.Context, now int64, query string, args ...interface{}) (*feed.OutboxItem, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin outbox claim: %w", err)
	}
	defer tx.Rollback()

	var row struct {
		ID   string `db:"id"`
		Data string `db:"data"`
	}
	if err := tx.GetContext(ctx, &row, query, args...); err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("select outbox item: %w", err)
	}

	if _, err := tx.ExecContext(ctx, "UPDATE outbox SET in_progress_at = ? WHERE id = ?", now, row.ID); err != nil {
		return nil, fmt.Errorf("claim outbox item %s: %w", row.ID, err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit outbox claim: %w", err)
	}

	var item feed.OutboxItem
	if err := json.Unmarshal([]byte(row.Data), &item); err != nil {
		return nil, fmt.Errorf("unmarshal outbox item %s: %w", row.ID, err)
	}
	return &item, nil
}

// Commit implements OutboxStore.
func (s *SQLiteOutboxStore) Commit(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM outbox WHERE id = ?", id); err != nil {
		return fmt.Errorf("commit outbox item %s: %w", id, err)
	}
	return nil
}
