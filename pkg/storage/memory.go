// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

package storage

import (
	"context"
	"sync"

	"github.com/feedproxy/feedproxy/pkg/feed"
)

// MemoryPostStore is the ephemeral dedup backend. State is lost on restart,
// so every source goes through first-run suppression again.
type MemoryPostStore struct {
	mu   sync.Mutex
	data map[string]map[string]struct{}
}

// NewMemoryPostStore returns an empty in-memory post store.
func NewMemoryPostStore() *MemoryPostStore {
	return &MemoryPostStore{data: make(map[string]map[string]struct{})}
}

// HasAny implements PostStore.
func (s *MemoryPostStore) HasAny(_ context.Context, key feed.DedupKey) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.data[key.String()]) > 0, nil
}

// IsProcessed implements PostStore.
func (s *MemoryPostStore) IsProcessed(_ context.Context, key feed.DedupKey, postID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.data[key.String()][postID]
	return ok, nil
}

// MarkProcessed implements PostStore.
func (s *MemoryPostStore) MarkProcessed(_ context.Context, key feed.DedupKey, postIDs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.data[key.String()]
	if !ok {
		set = make(map[string]struct{})
		s.data[key.String()] = set
	}
	for _, postID := range postIDs {
		set[postID] = struct{}{}
	}
	return nil
}

type memoryOutboxEntry struct {
	item         feed.OutboxItem
	inProgressAt *int64
}

// MemoryOutboxStore is the ephemeral outbox backend. In-flight items do not
// survive a restart, so it only provides at-least-once delivery within a
// single run.
type MemoryOutboxStore struct {
	mu    sync.Mutex
	queue []*memoryOutboxEntry
}

// NewMemoryOutboxStore returns an empty in-memory outbox store.
func NewMemoryOutboxStore() *MemoryOutboxStore {
	return &MemoryOutboxStore{}
}

// Put implements OutboxStore.
func (s *MemoryOutboxStore) Put(_ context.Context, item feed.OutboxItem, now int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if item.CreatedAt == 0 {
		item.CreatedAt = now
	}
	s.queue = append(s.queue, &memoryOutboxEntry{item: item})
	return nil
}

// Get implements OutboxStore.
func (s *MemoryOutboxStore) Get(_ context.Context, now int64) (*feed.OutboxItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, entry := range s.queue {
		if entry.inProgressAt == nil {
			claimedAt := now
			entry.inProgressAt = &claimedAt
			item := entry.item
			return &item, nil
		}
	}
	return nil, nil
}

// GetDeadLetter implements OutboxStore.
func (s *MemoryOutboxStore) GetDeadLetter(_ context.Context, now int64, delta int64) (*feed.OutboxItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, entry := range s.queue {
		if entry.inProgressAt != nil && now-*entry.inProgressAt >= delta {
			claimedAt := now
			entry.inProgressAt = &claimedAt
			item := entry.item
			return &item, nil
		}
	}
	return nil, nil
}

// Commit implements OutboxStore.
func (s *MemoryOutboxStore) Commit(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, entry := range s.queue {
		if entry.item.ID == id {
			s.queue = append(s.queue[:i], s.queue[i+1:]...)
			break
		}
	}
	return nil
}
