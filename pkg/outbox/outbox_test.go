// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

package outbox

import (
	"context"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feedproxy/feedproxy/pkg/feed"
	"github.com/feedproxy/feedproxy/pkg/feed/feedtest"
	"github.com/feedproxy/feedproxy/pkg/storage"
)

func gosched() {
	time.Sleep(5 * time.Millisecond)
}

func TestGetReturnsPutItem(t *testing.T) {
	box := New(storage.NewMemoryOutboxStore())
	ctx := context.Background()

	require.NoError(t, box.Put(ctx, feedtest.NewOutboxItem("item")))

	item, err := box.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, "item", item.ID)
}

func TestGetBlocksUntilPut(t *testing.T) {
	clk := clock.NewMock()
	box := NewWithClock(storage.NewMemoryOutboxStore(), clk)
	ctx := context.Background()

	items := make(chan feed.OutboxItem)
	go func() {
		item, err := box.Get(ctx)
		assert.NoError(t, err)
		items <- item
	}()

	gosched()
	select {
	case <-items:
		t.Fatal("Get returned on an empty outbox")
	default:
	}

	require.NoError(t, box.Put(ctx, feedtest.NewOutboxItem("item")))
	gosched()
	clk.Add(getPollInterval)

	select {
	case item := <-items:
		assert.Equal(t, "item", item.ID)
	case <-time.After(time.Second):
		t.Fatal("Get did not return after Put")
	}
}

func TestGetCancelled(t *testing.T) {
	clk := clock.NewMock()
	box := NewWithClock(storage.NewMemoryOutboxStore(), clk)

	ctx, cancel := context.WithCancel(context.Background())
	errs := make(chan error)
	go func() {
		_, err := box.Get(ctx)
		errs <- err
	}()

	gosched()
	cancel()
	select {
	case err := <-errs:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("cancelled Get did not return")
	}
}

func TestDeadLetterBecomesVisibleAfterDelta(t *testing.T) {
	clk := clock.NewMock()
	box := NewWithClock(storage.NewMemoryOutboxStore(), clk)
	ctx := context.Background()

	require.NoError(t, box.Put(ctx, feedtest.NewOutboxItem("item")))

	claimed, err := box.Get(ctx)
	require.NoError(t, err)
	require.Equal(t, "item", claimed.ID)

	// no commit: the claim goes stale after the dead-letter delta
	clk.Set(clk.Now().Add(DefaultDeadLetterDelta))

	dead, err := box.GetDeadLetter(ctx)
	require.NoError(t, err)
	assert.Equal(t, "item", dead.ID)

	require.NoError(t, box.Commit(ctx, dead.ID))

	// once committed, nothing is owed anymore
	item, err := box.store.Get(ctx, clk.Now().Unix())
	require.NoError(t, err)
	assert.Nil(t, item)
}

func TestCommitIsIdempotent(t *testing.T) {
	box := New(storage.NewMemoryOutboxStore())
	ctx := context.Background()

	require.NoError(t, box.Put(ctx, feedtest.NewOutboxItem("item")))
	item, err := box.Get(ctx)
	require.NoError(t, err)

	require.NoError(t, box.Commit(ctx, item.ID))
	require.NoError(t, box.Commit(ctx, item.ID))
}
