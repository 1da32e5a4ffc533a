// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

package pipeline

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feedproxy/feedproxy/pkg/feed"
	"github.com/feedproxy/feedproxy/pkg/feed/feedtest"
	"github.com/feedproxy/feedproxy/pkg/handlers"
	"github.com/feedproxy/feedproxy/pkg/metrics"
	"github.com/feedproxy/feedproxy/pkg/outbox"
	"github.com/feedproxy/feedproxy/pkg/storage"
)

// testEnv wires a pipeline against fake handlers: the fetcher returns
// whatever the test put into feedText, the parser reads "id:score" pairs and
// the collect receiver pushes delivered batches onto received.
type testEnv struct {
	registry  *handlers.Registry
	postStore *storage.MemoryPostStore
	box       *outbox.Outbox
	clk       *clock.Mock
	metrics   metrics.Metrics

	mu        sync.Mutex
	feedText  string
	failSends bool

	received chan []feed.Message
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		registry:  handlers.NewRegistry(),
		postStore: storage.NewMemoryPostStore(),
		box:       outbox.New(storage.NewMemoryOutboxStore()),
		clk:       clock.NewMock(),
		metrics:   metrics.NullMetrics{},
		received:  make(chan []feed.Message, 100),
	}

	env.registry.RegisterFetcher(handlers.FetcherDef{
		Name: "fake_fetch",
		New: func(options map[string]interface{}) (handlers.Fetcher, error) {
			return func(ctx context.Context) (string, error) {
				env.mu.Lock()
				defer env.mu.Unlock()
				return env.feedText, nil
			}, nil
		},
	})
	// "p3:10,p2:5,p1:1" parses into three posts, newest first, each with a
	// numeric score field.
	env.registry.RegisterParser(handlers.ParserDef{
		Name: "ids",
		New: func(options map[string]interface{}) (handlers.Parser, error) {
			return func(ctx context.Context, text string) ([]feed.Post, error) {
				var posts []feed.Post
				for _, pair := range strings.Split(text, ",") {
					id, scoreText, found := strings.Cut(pair, ":")
					if !found {
						return nil, fmt.Errorf("bad pair %q", pair)
					}
					score, err := strconv.Atoi(scoreText)
					if err != nil {
						return nil, err
					}
					posts = append(posts, feedtest.NewPost(id, map[string]interface{}{"score": score}))
				}
				return posts, nil
			}, nil
		},
	})
	env.registry.RegisterModifier(handlers.ModifierDef{
		Name: "min_score",
		New: func(options map[string]interface{}) (handlers.Modifier, error) {
			minimum := options["minimum"].(int)
			return func(ctx context.Context, posts []feed.Post) ([]feed.Post, error) {
				var kept []feed.Post
				for _, post := range posts {
					if post.Fields["score"].(int) >= minimum {
						kept = append(kept, post)
					}
				}
				return kept, nil
			}, nil
		},
	})
	env.registry.RegisterReceiver(handlers.ReceiverDef{
		Name: "collect",
		New: func(options map[string]interface{}) (handlers.Receiver, error) {
			return func(ctx context.Context, messages []feed.Message) error {
				env.mu.Lock()
				failing := env.failSends
				env.mu.Unlock()
				if failing {
					return fmt.Errorf("receiver is down")
				}
				env.received <- messages
				return nil
			}, nil
		},
	})
	return env
}

func (env *testEnv) setFeedText(text string) {
	env.mu.Lock()
	defer env.mu.Unlock()
	env.feedText = text
}

func (env *testEnv) start(t *testing.T, source feed.Source) context.CancelFunc {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	p := NewWithClock(Params{
		Sources:   []feed.Source{source},
		Registry:  env.registry,
		PostStore: env.postStore,
		Outbox:    env.box,
		Metrics:   env.metrics,
	}, Options{}, env.clk)

	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Error("pipeline did not stop")
		}
	})
	return cancel
}

func (env *testEnv) waitFirstRunDone(t *testing.T, key feed.DedupKey) {
	t.Helper()
	require.Eventually(t, func() bool {
		hasAny, err := env.postStore.HasAny(context.Background(), key)
		return err == nil && hasAny
	}, 5*time.Second, 10*time.Millisecond, "first tick never marked posts")
}

// nextTick fires the enqueue timer so the sources go around once more.
func (env *testEnv) nextTick() {
	time.Sleep(50 * time.Millisecond)
	env.clk.Add(DefaultEnqueuePeriod)
}

func (env *testEnv) receive(t *testing.T) []feed.Message {
	t.Helper()
	select {
	case messages := <-env.received:
		return messages
	case <-time.After(5 * time.Second):
		t.Fatal("no messages delivered")
		return nil
	}
}

func testSource(opts ...func(*feed.Stream)) feed.Source {
	streamOpts := append([]func(*feed.Stream){
		feedtest.WithReceiver("collect", map[string]interface{}{}),
	}, opts...)
	return feedtest.NewSource(
		feedtest.WithSourceID("fake-feed"),
		feedtest.WithStreams(feedtest.NewStream(streamOpts...)),
		func(s *feed.Source) {
			s.FetcherType = "fake_fetch"
			s.FetcherOptions = map[string]interface{}{}
			s.ParserType = "ids"
		},
	)
}

func collectKey() feed.DedupKey {
	return feed.DedupKey{SourceID: "fake-feed", ReceiverType: "collect"}
}

func TestPipelineSuppressesFirstRunAndDeliversNewPosts(t *testing.T) {
	env := newTestEnv(t)
	env.setFeedText("p2:1,p1:1")
	env.start(t, testSource())

	env.waitFirstRunDone(t, collectKey())
	// nothing may be delivered for the backlog
	select {
	case messages := <-env.received:
		t.Fatalf("first run delivered %v", messages)
	case <-time.After(300 * time.Millisecond):
	}

	env.setFeedText("p3:1,p2:1,p1:1")
	env.nextTick()

	messages := env.receive(t)
	require.Len(t, messages, 1)
	assert.Equal(t, "p3", messages[0].PostID)
	assert.Equal(t, "${title}\n${url}", messages[0].Template)
	assert.Equal(t, "Post p3", messages[0].TemplateKwargs["title"])
	assert.Equal(t, "hash; tag", messages[0].TemplateKwargs["source_tags"])
	assert.Equal(t, "#hash #tag", messages[0].TemplateKwargs["source_hash_tags"])
}

func TestPipelineSquashedBatchKeepsChronologicalOrder(t *testing.T) {
	env := newTestEnv(t)
	env.setFeedText("p1:1")
	env.start(t, testSource())
	env.waitFirstRunDone(t, collectKey())

	// two new posts, newest first as a feed would list them
	env.setFeedText("p3:1,p2:1,p1:1")
	env.nextTick()

	messages := env.receive(t)
	require.Len(t, messages, 2)
	assert.Equal(t, "p2", messages[0].PostID)
	assert.Equal(t, "p3", messages[1].PostID)
}

func TestPipelineWithoutSquashDeliversOneMessagePerItem(t *testing.T) {
	env := newTestEnv(t)
	env.setFeedText("p1:1")
	env.start(t, testSource(feedtest.WithSquash(false)))
	env.waitFirstRunDone(t, collectKey())

	env.setFeedText("p3:1,p2:1,p1:1")
	env.nextTick()

	first := env.receive(t)
	require.Len(t, first, 1)
	assert.Equal(t, "p2", first[0].PostID)

	second := env.receive(t)
	require.Len(t, second, 1)
	assert.Equal(t, "p3", second[0].PostID)
}

func TestPipelineDoesNotRedeliverAcrossTicks(t *testing.T) {
	env := newTestEnv(t)
	env.setFeedText("p1:1")
	env.start(t, testSource())
	env.waitFirstRunDone(t, collectKey())

	env.setFeedText("p2:1,p1:1")
	env.nextTick()
	messages := env.receive(t)
	require.Len(t, messages, 1)

	// same feed again: no new posts, nothing delivered
	env.nextTick()
	select {
	case extra := <-env.received:
		t.Fatalf("unchanged feed delivered %v", extra)
	case <-time.After(300 * time.Millisecond):
	}
}

func TestPipelineModifierFiltersPosts(t *testing.T) {
	env := newTestEnv(t)
	env.setFeedText("p1:1")
	env.start(t, testSource(feedtest.WithModifiers(feed.Modifier{
		Type:    "min_score",
		Options: map[string]interface{}{"minimum": 100},
	})))
	env.waitFirstRunDone(t, collectKey())

	env.setFeedText("p3:500,p2:5,p1:1")
	env.nextTick()

	messages := env.receive(t)
	require.Len(t, messages, 1)
	assert.Equal(t, "p3", messages[0].PostID)
}

func TestPipelineSkipsInactiveStreams(t *testing.T) {
	env := newTestEnv(t)
	inactive := false
	env.setFeedText("p1:1")
	env.start(t, testSource(func(s *feed.Stream) {
		s.Active = &inactive
	}))

	select {
	case messages := <-env.received:
		t.Fatalf("inactive stream delivered %v", messages)
	case <-time.After(500 * time.Millisecond):
	}

	hasAny, err := env.postStore.HasAny(context.Background(), collectKey())
	require.NoError(t, err)
	assert.False(t, hasAny)
}

// recordingMetrics counts fetch outcomes, everything else is discarded.
type recordingMetrics struct {
	metrics.NullMetrics

	mu      sync.Mutex
	fetched map[string]int
}

func (m *recordingMetrics) IncSourcesFetched(sourceID, status string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fetched == nil {
		m.fetched = make(map[string]int)
	}
	m.fetched[sourceID+"/"+status]++
}

func (m *recordingMetrics) fetchedCount(sourceID, status string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fetched[sourceID+"/"+status]
}

func TestPipelineCountsUnresolvableFetcherAsFailed(t *testing.T) {
	env := newTestEnv(t)
	recorder := &recordingMetrics{}
	env.metrics = recorder

	source := testSource()
	source.FetcherType = "no_such_fetcher"
	env.start(t, source)

	require.Eventually(t, func() bool {
		return recorder.fetchedCount("fake-feed", "failed") > 0
	}, 5*time.Second, 10*time.Millisecond, "dropped tick never counted as failed")
}

func TestPipelineKeepsUncommittedItemsOnSendFailure(t *testing.T) {
	env := newTestEnv(t)
	outboxStore := storage.NewMemoryOutboxStore()
	env.box = outbox.New(outboxStore)

	env.setFeedText("p1:1")
	env.mu.Lock()
	env.failSends = true
	env.mu.Unlock()
	env.start(t, testSource())
	env.waitFirstRunDone(t, collectKey())

	env.setFeedText("p2:1,p1:1")
	env.nextTick()

	// the send fails, so the item must stay claimed in the store and be
	// visible to the dead-letter query once the claim is stale
	require.Eventually(t, func() bool {
		now := time.Now().Unix()
		item, err := outboxStore.GetDeadLetter(context.Background(), now+601, 600)
		return err == nil && item != nil
	}, 5*time.Second, 50*time.Millisecond)
}
