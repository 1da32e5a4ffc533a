// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

// Package ratelimit serializes and paces outgoing fetches per host. Callers
// take a lease around the whole fetch; concurrent leases for the same host are
// strictly serialized while different hosts proceed independently.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/feedproxy/feedproxy/pkg/util/httputils"
	"github.com/feedproxy/feedproxy/pkg/util/log"
)

// HostLimiter paces calls per host: between the release of one lease and the
// start of the next call to the same host at least minSpacing elapses.
type HostLimiter struct {
	clk clock.Clock

	mu    sync.Mutex
	hosts map[string]*hostState
}

type hostState struct {
	// lock is a channel-based mutex so acquisition can be abandoned on
	// context cancellation.
	lock     chan struct{}
	lastCall time.Time
}

// NewHostLimiter returns a limiter using the wall clock.
func NewHostLimiter() *HostLimiter {
	return NewHostLimiterWithClock(clock.New())
}

// NewHostLimiterWithClock returns a limiter with an injected clock, used by
// tests to drive time.
func NewHostLimiterWithClock(clk clock.Clock) *HostLimiter {
	return &HostLimiter{
		clk:   clk,
		hosts: make(map[string]*hostState),
	}
}

// Lease blocks until the host extracted from rawURL is free and minSpacing
// has elapsed since the previous lease against it was released. It returns a
// release func that must be called once the fetch is done; release records
// the last-call timestamp. If ctx is cancelled while waiting, the lease is
// abandoned without touching the timestamp.
func (l *HostLimiter) Lease(ctx context.Context, rawURL string, minSpacing time.Duration) (func(), error) {
	host := httputils.DomainFromURL(rawURL)
	state := l.hostState(host)

	select {
	case state.lock <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	if wait := l.timeToWait(state, minSpacing); wait > 0 {
		log.Infof("Waiting %s before fetching %s", wait, rawURL)
		timer := l.clk.Timer(wait)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			<-state.lock
			return nil, ctx.Err()
		}
	}

	release := func() {
		l.mu.Lock()
		state.lastCall = l.clk.Now()
		l.mu.Unlock()
		<-state.lock
	}
	return release, nil
}

func (l *HostLimiter) hostState(host string) *hostState {
	l.mu.Lock()
	defer l.mu.Unlock()
	state, ok := l.hosts[host]
	if !ok {
		state = &hostState{lock: make(chan struct{}, 1)}
		l.hosts[host] = state
	}
	return state
}

func (l *HostLimiter) timeToWait(state *hostState, minSpacing time.Duration) time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	if state.lastCall.IsZero() {
		return 0
	}
	elapsed := l.clk.Now().Sub(state.lastCall)
	if elapsed >= minSpacing {
		return 0
	}
	return minSpacing - elapsed
}
