// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

// Package storage holds the persistence backends of the pipeline: the post
// dedup store and the messages outbox store, each with an in-memory and a
// SQLite implementation. All methods are safe for concurrent use.
package storage

import (
	"context"

	"github.com/feedproxy/feedproxy/pkg/feed"
)

// PostStore remembers which post ids have been processed per dedup key. The
// recorded set only ever grows during a run; the SQLite backend survives
// restarts.
type PostStore interface {
	// HasAny reports whether at least one post id was ever recorded for key.
	HasAny(ctx context.Context, key feed.DedupKey) (bool, error)
	// IsProcessed reports whether postID was recorded for key.
	IsProcessed(ctx context.Context, key feed.DedupKey, postID string) (bool, error)
	// MarkProcessed records the given post ids for key. Duplicates in the
	// input or against existing rows are silently absorbed.
	MarkProcessed(ctx context.Context, key feed.DedupKey, postIDs []string) error
}

// OutboxStore is the durable FIFO of pending send-batches. Items are claimed
// by Get, reclaimed through GetDeadLetter once their claim went stale, and
// removed by Commit. Timestamps are wall-clock unix seconds supplied by the
// caller so that the outbox facade owns the clock.
type OutboxStore interface {
	// Put appends item to the queue. When item.CreatedAt is zero it is set
	// to now.
	Put(ctx context.Context, item feed.OutboxItem, now int64) error
	// Get returns the oldest unclaimed item and marks it in-progress at now,
	// or nil when every item is claimed or the queue is empty.
	Get(ctx context.Context, now int64) (*feed.OutboxItem, error)
	// GetDeadLetter returns the oldest item whose claim is older than delta
	// seconds and re-claims it at now, or nil when there is none.
	GetDeadLetter(ctx context.Context, now int64, delta int64) (*feed.OutboxItem, error)
	// Commit removes the item permanently. Unknown ids are a no-op.
	Commit(ctx context.Context, id string) error
}
