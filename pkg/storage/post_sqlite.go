// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

package storage

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/feedproxy/feedproxy/pkg/feed"
)

// SQLitePostStore is the durable dedup backend. The posts table carries no
// uniqueness constraint: reads tolerate duplicate rows and nothing relies on
// counts.
type SQLitePostStore struct {
	db *sqlx.DB
}

// NewSQLitePostStore returns a post store on top of an open database.
func NewSQLitePostStore(db *sqlx.DB) *SQLitePostStore {
	return &SQLitePostStore{db: db}
}

// HasAny implements PostStore.
func (s *SQLitePostStore) HasAny(ctx context.Context, key feed.DedupKey) (bool, error) {
	var one int
	err := s.db.GetContext(ctx, &one, "SELECT 1 FROM posts WHERE key = ? LIMIT 1", key.String())
	if err == nil {
		return true, nil
	}
	if isNoRows(err) {
		return false, nil
	}
	return false, fmt.Errorf("query posts for key %s: %w", key, err)
}

// IsProcessed implements PostStore.
func (s *SQLitePostStore) IsProcessed(ctx context.Context, key feed.DedupKey, postID string) (bool, error) {
	var one int
	err := s.db.GetContext(ctx, &one, "SELECT 1 FROM posts WHERE key = ? AND post_id = ? LIMIT 1", key.String(), postID)
	if err == nil {
		return true, nil
	}
	if isNoRows(err) {
		return false, nil
	}
	return false, fmt.Errorf("query post %s for key %s: %w", postID, key, err)
}

// MarkProcessed implements PostStore.
func (s *SQLitePostStore) MarkProcessed(ctx context.Context, key feed.DedupKey, postIDs []string) error {
	if len(postIDs) == 0 {
		return nil
	}
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin mark processed: %w", err)
	}
	defer tx.Rollback()

	for _, postID := range postIDs {
		if _, err := tx.ExecContext(ctx, "INSERT INTO posts (key, post_id) VALUES (?, ?)", key.String(), postID); err != nil {
			return fmt.Errorf("insert post %s for key %s: %w", postID, key, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit mark processed: %w", err)
	}
	return nil
}
