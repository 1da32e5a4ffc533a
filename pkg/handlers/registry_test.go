// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

package handlers

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feedproxy/feedproxy/pkg/feed"
	"github.com/feedproxy/feedproxy/pkg/feed/feedtest"
)

type fakeFetcherOptions struct {
	URL string `mapstructure:"url"`
}

func (o *fakeFetcherOptions) Validate() error {
	if o.URL == "" {
		return fmt.Errorf("url is required")
	}
	return nil
}

func newTestRegistry() *Registry {
	r := NewRegistry()
	r.RegisterFetcher(FetcherDef{
		Name: "fetch_text",
		New: func(options map[string]interface{}) (Fetcher, error) {
			var opts fakeFetcherOptions
			if err := DecodeOptions(options, &opts); err != nil {
				return nil, err
			}
			return func(ctx context.Context) (string, error) {
				return "text from " + opts.URL, nil
			}, nil
		},
	})
	r.RegisterParser(ParserDef{
		Name: "rss",
		New: func(options map[string]interface{}) (Parser, error) {
			return func(ctx context.Context, text string) ([]feed.Post, error) {
				return nil, nil
			}, nil
		},
	})
	r.RegisterModifier(ModifierDef{
		Name: "noop",
		New: func(options map[string]interface{}) (Modifier, error) {
			return func(ctx context.Context, posts []feed.Post) ([]feed.Post, error) {
				return posts, nil
			}, nil
		},
	})
	r.RegisterReceiver(ReceiverDef{
		Name: "console_printer",
		New: func(options map[string]interface{}) (Receiver, error) {
			return func(ctx context.Context, messages []feed.Message) error {
				return nil
			}, nil
		},
	})
	r.RegisterReceiverType(ReceiverType{
		Name: "named_printer",
		NewInstance: func(alias string, initOptions map[string]interface{}) (ReceiverDef, error) {
			if initOptions["name"] == nil {
				return ReceiverDef{}, fmt.Errorf("name is required")
			}
			return ReceiverDef{
				New: func(options map[string]interface{}) (Receiver, error) {
					return func(ctx context.Context, messages []feed.Message) error {
						return nil
					}, nil
				},
			}, nil
		},
	})
	return r
}

func TestResolveFetcherBindsOptions(t *testing.T) {
	r := newTestRegistry()

	fetcher, err := r.ResolveFetcher("fetch_text", map[string]interface{}{"url": "https://example.com"})
	require.NoError(t, err)

	text, err := fetcher(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "text from https://example.com", text)
}

func TestResolveUnknownHandler(t *testing.T) {
	r := newTestRegistry()

	_, err := r.ResolveFetcher("nope", nil)
	assert.ErrorContains(t, err, `unknown fetcher "nope"`)
}

func TestResolveFetcherInvalidOptions(t *testing.T) {
	r := newTestRegistry()

	_, err := r.ResolveFetcher("fetch_text", map[string]interface{}{"url": "https://example.com", "typo": true})
	assert.ErrorContains(t, err, "invalid options")

	_, err = r.ResolveFetcher("fetch_text", map[string]interface{}{})
	assert.ErrorContains(t, err, "url is required")
}

func TestInitValidatesEverythingUpFront(t *testing.T) {
	r := newTestRegistry()

	sources := []feed.Source{
		feedtest.NewSource(
			feedtest.WithSourceID("broken"),
			feedtest.WithStreams(feedtest.NewStream(
				feedtest.WithReceiver("missing_receiver", nil),
				feedtest.WithModifiers(feed.Modifier{Type: "missing_modifier"}),
			)),
		),
	}
	sources[0].FetcherOptions = map[string]interface{}{} // url missing

	err := r.Init(nil, sources)
	require.Error(t, err)

	var initErr *InitHandlersError
	require.ErrorAs(t, err, &initErr)
	assert.ErrorContains(t, err, `source "broken": fetcher "fetch_text"`)
	assert.ErrorContains(t, err, `source "broken" stream 0: unknown receiver "missing_receiver"`)
	assert.ErrorContains(t, err, `source "broken" stream 0 modifier 0: unknown modifier "missing_modifier"`)
}

func TestInitMaterializesSubhandlerAliases(t *testing.T) {
	r := newTestRegistry()

	subhandlers := []Subhandler{
		{HandlerType: KindReceiver, Alias: "my-bot", Type: "named_printer", InitOptions: map[string]interface{}{"name": "my-bot"}},
		{HandlerType: KindReceiver, Alias: "other-bot", Type: "named_printer", InitOptions: map[string]interface{}{"name": "other-bot"}},
	}
	source := feedtest.NewSource(feedtest.WithStreams(
		feedtest.NewStream(feedtest.WithReceiver("my-bot", map[string]interface{}{})),
	))

	require.NoError(t, r.Init(subhandlers, []feed.Source{source}))

	_, err := r.ResolveReceiver("my-bot", nil)
	assert.NoError(t, err)
	_, err = r.ResolveReceiver("other-bot", nil)
	assert.NoError(t, err)
}

func TestInitSubhandlerErrors(t *testing.T) {
	r := newTestRegistry()

	err := r.Init([]Subhandler{
		{HandlerType: KindReceiver, Alias: "my-bot", Type: "unknown_type"},
	}, []feed.Source{feedtest.NewSource()})

	assert.ErrorContains(t, err, `handler "my-bot": unknown receiver type "unknown_type"`)
}

func TestInitAliasCollidingWithRegisteredReceiver(t *testing.T) {
	r := newTestRegistry()

	var err error
	assert.NotPanics(t, func() {
		err = r.Init([]Subhandler{
			{HandlerType: KindReceiver, Alias: "console_printer", Type: "named_printer", InitOptions: map[string]interface{}{"name": "imposter"}},
		}, []feed.Source{feedtest.NewSource()})
	})

	var initErr *InitHandlersError
	require.ErrorAs(t, err, &initErr)
	assert.ErrorContains(t, err, `handler "console_printer": a receiver with this name already exists`)
}

func TestInitDuplicateAliases(t *testing.T) {
	r := newTestRegistry()

	err := r.Init([]Subhandler{
		{HandlerType: KindReceiver, Alias: "my-bot", Type: "named_printer", InitOptions: map[string]interface{}{"name": "first"}},
		{HandlerType: KindReceiver, Alias: "my-bot", Type: "named_printer", InitOptions: map[string]interface{}{"name": "second"}},
	}, []feed.Source{feedtest.NewSource()})

	assert.ErrorContains(t, err, `handler "my-bot": a receiver with this name already exists`)
}

func TestRegisterDuplicatePanics(t *testing.T) {
	r := newTestRegistry()

	assert.Panics(t, func() {
		r.RegisterReceiver(ReceiverDef{Name: "console_printer"})
	})
}
