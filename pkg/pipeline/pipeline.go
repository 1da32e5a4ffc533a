// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

// Package pipeline runs the ingestion loop: sources are enqueued on a fixed
// period, fetched by a worker pool, parsed into posts, deduplicated into
// message batches and handed to the outbox, whose items a pair of sender
// loops delivers. Stages are connected by bounded channels; a slow receiver
// backpressures all the way to the fetchers.
package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/mohae/deepcopy"

	"github.com/feedproxy/feedproxy/pkg/feed"
	"github.com/feedproxy/feedproxy/pkg/handlers"
	"github.com/feedproxy/feedproxy/pkg/metrics"
	"github.com/feedproxy/feedproxy/pkg/outbox"
	"github.com/feedproxy/feedproxy/pkg/storage"
	"github.com/feedproxy/feedproxy/pkg/util/log"
)

const (
	// DefaultFetchWorkers is how many fetches run concurrently.
	DefaultFetchWorkers = 9

	// DefaultEnqueuePeriod is the pause between two enqueue rounds.
	DefaultEnqueuePeriod = 30 * time.Minute

	defaultQueueSize = 100
)

// Params carries the pipeline's collaborators. All fields are required.
type Params struct {
	Sources   []feed.Source
	Registry  *handlers.Registry
	PostStore storage.PostStore
	Outbox    *outbox.Outbox
	Metrics   metrics.Metrics
}

// Options tune the pipeline. The zero value picks the defaults.
type Options struct {
	FetchWorkers  int
	EnqueuePeriod time.Duration
	QueueSize     int
}

type textUnit struct {
	text   string
	source feed.Source
}

type postsUnit struct {
	posts  []feed.Post
	source feed.Source
	stream feed.Stream
}

// Pipeline owns the stage goroutines of one run.
type Pipeline struct {
	params Params
	opts   Options
	clk    clock.Clock
}

// New returns a pipeline using the wall clock.
func New(params Params, opts Options) *Pipeline {
	return NewWithClock(params, opts, clock.New())
}

// NewWithClock returns a pipeline with an injected clock, used by tests to
// drive the enqueue period.
func NewWithClock(params Params, opts Options, clk clock.Clock) *Pipeline {
	if opts.FetchWorkers <= 0 {
		opts.FetchWorkers = DefaultFetchWorkers
	}
	if opts.EnqueuePeriod <= 0 {
		opts.EnqueuePeriod = DefaultEnqueuePeriod
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = defaultQueueSize
	}
	return &Pipeline{params: params, opts: opts, clk: clk}
}

// Run starts every stage and blocks until ctx is cancelled and all stages
// have drained out.
func (p *Pipeline) Run(ctx context.Context) {
	sourceQueue := make(chan feed.Source, p.opts.QueueSize)
	textQueue := make(chan textUnit, p.opts.QueueSize)
	postQueue := make(chan postsUnit, p.opts.QueueSize)

	var wg sync.WaitGroup
	start := func(stage func(context.Context)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			stage(ctx)
		}()
	}

	start(func(ctx context.Context) { p.enqueueSources(ctx, sourceQueue) })
	for i := 1; i <= p.opts.FetchWorkers; i++ {
		workerID := i
		start(func(ctx context.Context) { p.fetchSources(ctx, workerID, sourceQueue, textQueue) })
	}
	start(func(ctx context.Context) { p.parsePosts(ctx, textQueue, postQueue) })
	start(func(ctx context.Context) { p.prepareMessages(ctx, postQueue) })
	start(p.sendMessages)
	start(p.sendDeadLetters)

	wg.Wait()
}

func (p *Pipeline) enqueueSources(ctx context.Context, sourceQueue chan<- feed.Source) {
	for {
		for _, source := range p.params.Sources {
			select {
			case sourceQueue <- source:
			case <-ctx.Done():
				return
			}
		}
		log.Infof("Enqueued %d sources, waiting for %s", len(p.params.Sources), p.opts.EnqueuePeriod)

		timer := p.clk.Timer(p.opts.EnqueuePeriod)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return
		}
	}
}

func (p *Pipeline) fetchSources(ctx context.Context, workerID int, sourceQueue <-chan feed.Source, textQueue chan<- textUnit) {
	for {
		var source feed.Source
		select {
		case source = <-sourceQueue:
		case <-ctx.Done():
			return
		}
		log.Infof("Worker %d processing %s (%s)", workerID, source.ID, source.FetcherType)

		fetcher, err := p.params.Registry.ResolveFetcher(source.FetcherType, source.FetcherOptions)
		if err != nil {
			log.Errorf("Source %s: %v", source.ID, err)
			p.params.Metrics.IncSourcesFetched(source.ID, "failed")
			continue
		}
		text, err := fetcher(ctx)
		if err != nil || text == "" {
			if ctx.Err() != nil {
				return
			}
			log.Warnf("Can't fetch text for %s: %v", source.ID, err)
			p.params.Metrics.IncSourcesFetched(source.ID, "failed")
			continue
		}
		p.params.Metrics.IncSourcesFetched(source.ID, "ok")

		select {
		case textQueue <- textUnit{text: text, source: source}:
		case <-ctx.Done():
			return
		}
	}
}

func (p *Pipeline) parsePosts(ctx context.Context, textQueue <-chan textUnit, postQueue chan<- postsUnit) {
	for {
		var unit textUnit
		select {
		case unit = <-textQueue:
		case <-ctx.Done():
			return
		}
		source := unit.source
		log.Infof("Processing text for %s (%s)", source.ID, source.ParserType)

		parser, err := p.params.Registry.ResolveParser(source.ParserType, source.ParserOptions)
		if err != nil {
			log.Errorf("Source %s: %v", source.ID, err)
			continue
		}
		posts, err := parser(ctx, unit.text)
		if err != nil {
			log.Errorf("Can't parse posts for %s: %v", source.ID, err)
			continue
		}
		if len(posts) > 0 {
			p.params.Metrics.IncPostsParsed(source.ID, len(posts))
		}

		for _, stream := range source.Streams {
			if !stream.IsActive() {
				continue
			}
			streamPosts, err := p.streamPosts(ctx, source, stream, posts)
			if err != nil {
				log.Errorf("Source %s stream %s: %v", source.ID, stream.ReceiverType, err)
				continue
			}
			select {
			case postQueue <- postsUnit{posts: streamPosts, source: source, stream: stream}:
			case <-ctx.Done():
				return
			}
		}
	}
}

// streamPosts gives the stream its own copy of the posts, stamps the source
// tags and runs the modifier chain.
func (p *Pipeline) streamPosts(ctx context.Context, source feed.Source, stream feed.Stream, posts []feed.Post) ([]feed.Post, error) {
	streamPosts := deepcopy.Copy(posts).([]feed.Post)
	for i := range streamPosts {
		streamPosts[i].SourceTags = source.Tags
	}

	for _, modifier := range stream.Modifiers {
		apply, err := p.params.Registry.ResolveModifier(modifier.Type, modifier.Options)
		if err != nil {
			return nil, err
		}
		streamPosts, err = apply(ctx, streamPosts)
		if err != nil {
			return nil, err
		}
	}
	return streamPosts, nil
}

func (p *Pipeline) prepareMessages(ctx context.Context, postQueue <-chan postsUnit) {
	for {
		var unit postsUnit
		select {
		case unit = <-postQueue:
		case <-ctx.Done():
			return
		}

		batches, err := p.messageBatches(ctx, unit)
		if err != nil {
			log.Errorf("Can't prepare messages for %s: %v", unit.source.ID, err)
			continue
		}
		for _, batch := range batches {
			p.params.Metrics.IncMessagesPrepared(unit.source.ID, unit.stream.ReceiverType, len(batch))
			item := feed.OutboxItem{
				ID:       uuid.New().String(),
				SourceID: unit.source.ID,
				Stream:   unit.stream,
				Messages: batch,
			}
			if err := p.params.Outbox.Put(ctx, item); err != nil {
				log.Errorf("Can't put outbox item for %s: %v", unit.source.ID, err)
			}
		}
	}
}

// messageBatches turns new posts into send-batches. On the very first tick of
// a dedup key everything is marked processed and nothing is emitted, so
// adding a source does not flood its receiver with the feed's backlog.
func (p *Pipeline) messageBatches(ctx context.Context, unit postsUnit) ([][]feed.Message, error) {
	key := feed.DedupKey{SourceID: unit.source.ID, ReceiverType: unit.stream.ReceiverType}

	hasAny, err := p.params.PostStore.HasAny(ctx, key)
	if err != nil {
		return nil, err
	}
	if !hasAny {
		log.Infof("First run for %s, skipping all posts", key)
		postIDs := make([]string, 0, len(unit.posts))
		for _, post := range unit.posts {
			postIDs = append(postIDs, post.PostID)
		}
		return nil, p.params.PostStore.MarkProcessed(ctx, key, postIDs)
	}

	var messages []feed.Message
	var toMark []string
	// oldest first, so receivers see the feed in chronological order
	for i := len(unit.posts) - 1; i >= 0; i-- {
		post := unit.posts[i]
		processed, err := p.params.PostStore.IsProcessed(ctx, key, post.PostID)
		if err != nil {
			return nil, err
		}
		if processed {
			continue
		}
		messages = append(messages, feed.Message{
			PostID:         post.PostID,
			Template:       unit.stream.MessageTemplate,
			TemplateKwargs: post.TemplateKwargs(),
		})
		log.Infof("New post %s for %s", post.String(), key)
		toMark = append(toMark, post.PostID)
	}
	if err := p.params.PostStore.MarkProcessed(ctx, key, toMark); err != nil {
		return nil, err
	}

	if len(messages) == 0 {
		log.Infof("No new posts for %s", key)
		return nil, nil
	}
	if unit.stream.Squash {
		return [][]feed.Message{messages}, nil
	}
	batches := make([][]feed.Message, 0, len(messages))
	for _, message := range messages {
		batches = append(batches, []feed.Message{message})
	}
	return batches, nil
}

func (p *Pipeline) sendMessages(ctx context.Context) {
	p.deliver(ctx, p.params.Outbox.Get)
}

// sendDeadLetters redelivers items whose sender never committed, picking up
// batches stranded by a crash or a hung receiver.
func (p *Pipeline) sendDeadLetters(ctx context.Context) {
	p.deliver(ctx, p.params.Outbox.GetDeadLetter)
}

func (p *Pipeline) deliver(ctx context.Context, next func(context.Context) (feed.OutboxItem, error)) {
	for {
		item, err := next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Errorf("Can't read from outbox: %v", err)
			timer := p.clk.Timer(time.Second)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return
			}
			continue
		}

		receiver, err := p.params.Registry.ResolveReceiver(item.Stream.ReceiverType, item.Stream.ReceiverOptions)
		if err != nil {
			log.Errorf("Outbox item %s: %v", item.ID, err)
			continue
		}
		if err := receiver(ctx, item.Messages); err != nil {
			// no commit: the item comes back through the dead-letter loop
			log.Errorf("Can't send messages for %s (%s): %v", item.SourceID, item.Stream.ReceiverType, err)
			continue
		}
		if err := p.params.Outbox.Commit(ctx, item.ID); err != nil {
			log.Errorf("Can't commit outbox item %s: %v", item.ID, err)
			continue
		}
		p.params.Metrics.IncMessagesSent(item.SourceID, item.Stream.ReceiverType, len(item.Messages))
	}
}
