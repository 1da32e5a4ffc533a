// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

// Package outbox is the durability boundary of the pipeline. A message batch
// put here is owed to its receiver until Commit is called; senders that crash
// or hang lose their claim after the dead-letter delta and the batch becomes
// deliverable again. Timestamps are wall clock on purpose: they must stay
// meaningful across process restarts.
package outbox

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/feedproxy/feedproxy/pkg/feed"
	"github.com/feedproxy/feedproxy/pkg/storage"
)

const (
	// DefaultDeadLetterDelta is how long a claim may stay uncommitted before
	// the item is handed to the dead-letter consumer.
	DefaultDeadLetterDelta = 10 * time.Minute

	getPollInterval        = 100 * time.Millisecond
	deadLetterPollInterval = 10 * time.Second
)

// Outbox exposes blocking queue semantics on top of an OutboxStore.
type Outbox struct {
	store           storage.OutboxStore
	clk             clock.Clock
	deadLetterDelta time.Duration
}

// New returns an outbox using the wall clock and the default dead-letter
// delta.
func New(store storage.OutboxStore) *Outbox {
	return NewWithClock(store, clock.New())
}

// NewWithClock returns an outbox with an injected clock, used by tests.
func NewWithClock(store storage.OutboxStore, clk clock.Clock) *Outbox {
	return &Outbox{
		store:           store,
		clk:             clk,
		deadLetterDelta: DefaultDeadLetterDelta,
	}
}

// Put appends item to the queue.
func (o *Outbox) Put(ctx context.Context, item feed.OutboxItem) error {
	return o.store.Put(ctx, item, o.clk.Now().Unix())
}

// Get blocks until an unclaimed item exists, claims it and returns it.
func (o *Outbox) Get(ctx context.Context) (feed.OutboxItem, error) {
	return o.poll(ctx, getPollInterval, func(now int64) (*feed.OutboxItem, error) {
		return o.store.Get(ctx, now)
	})
}

// GetDeadLetter blocks until an item with a stale claim exists, re-claims it
// and returns it.
func (o *Outbox) GetDeadLetter(ctx context.Context) (feed.OutboxItem, error) {
	delta := int64(o.deadLetterDelta / time.Second)
	return o.poll(ctx, deadLetterPollInterval, func(now int64) (*feed.OutboxItem, error) {
		return o.store.GetDeadLetter(ctx, now, delta)
	})
}

// Commit removes the item permanently. Committing an unknown id is a no-op.
func (o *Outbox) Commit(ctx context.Context, id string) error {
	return o.store.Commit(ctx, id)
}

func (o *Outbox) poll(ctx context.Context, interval time.Duration, fetch func(now int64) (*feed.OutboxItem, error)) (feed.OutboxItem, error) {
	for {
		item, err := fetch(o.clk.Now().Unix())
		if err != nil {
			return feed.OutboxItem{}, err
		}
		if item != nil {
			return *item, nil
		}

		timer := o.clk.Timer(interval)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return feed.OutboxItem{}, ctx.Err()
		}
	}
}
