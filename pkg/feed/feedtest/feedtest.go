// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

// Package feedtest provides ready-made fixtures for pipeline and storage
// tests. Every builder returns a sensible default that individual tests tweak
// through the option funcs.
package feedtest

import (
	"fmt"

	"github.com/feedproxy/feedproxy/pkg/feed"
)

// NewSource returns a source wired to the console receiver with a single
// stream, suitable as-is for most tests.
func NewSource(opts ...func(*feed.Source)) feed.Source {
	source := feed.Source{
		ID:             "guido-blog",
		FetcherType:    "fetch_text",
		FetcherOptions: map[string]interface{}{"url": "http://localhost:45432/feed.xml"},
		ParserType:     "rss",
		ParserOptions:  map[string]interface{}{},
		Tags:           []string{"hash", "tag"},
		Streams:        []feed.Stream{NewStream()},
	}
	for _, opt := range opts {
		opt(&source)
	}
	return source
}

// WithStreams replaces the source's streams.
func WithStreams(streams ...feed.Stream) func(*feed.Source) {
	return func(s *feed.Source) {
		s.Streams = streams
	}
}

// WithSourceID sets the source id.
func WithSourceID(id string) func(*feed.Source) {
	return func(s *feed.Source) {
		s.ID = id
	}
}

// NewStream returns a squashing console stream.
func NewStream(opts ...func(*feed.Stream)) feed.Stream {
	stream := feed.Stream{
		ReceiverType:    "console_printer",
		ReceiverOptions: map[string]interface{}{},
		Squash:          true,
		MessageTemplate: "${title}\n${url}",
	}
	for _, opt := range opts {
		opt(&stream)
	}
	return stream
}

// WithSquash toggles the stream squash policy.
func WithSquash(squash bool) func(*feed.Stream) {
	return func(s *feed.Stream) {
		s.Squash = squash
	}
}

// WithModifiers sets the stream's modifier chain.
func WithModifiers(modifiers ...feed.Modifier) func(*feed.Stream) {
	return func(s *feed.Stream) {
		s.Modifiers = modifiers
	}
}

// WithReceiver sets the stream receiver type and options.
func WithReceiver(receiverType string, options map[string]interface{}) func(*feed.Stream) {
	return func(s *feed.Stream) {
		s.ReceiverType = receiverType
		s.ReceiverOptions = options
	}
}

// NewPost returns a post with the given id and a default title/url pair.
func NewPost(postID string, fields ...map[string]interface{}) feed.Post {
	post := feed.Post{
		PostID: postID,
		Fields: map[string]interface{}{
			"title": fmt.Sprintf("Post %s", postID),
			"url":   fmt.Sprintf("https://example.com/%s", postID),
		},
	}
	for _, extra := range fields {
		for name, value := range extra {
			post.Fields[name] = value
		}
	}
	return post
}

// NewMessage returns a message with a default template and kwargs.
func NewMessage(postID string) feed.Message {
	return feed.Message{
		PostID:   postID,
		Template: "${title}\n${url}",
		TemplateKwargs: map[string]interface{}{
			"title": "Post title",
			"url":   "https://post.url",
		},
	}
}

// NewTemplatedMessage returns a message with an explicit template and kwargs.
func NewTemplatedMessage(postID, template string, kwargs map[string]interface{}) feed.Message {
	return feed.Message{
		PostID:         postID,
		Template:       template,
		TemplateKwargs: kwargs,
	}
}

// NewOutboxItem returns an item carrying a single default message.
func NewOutboxItem(id string, messages ...feed.Message) feed.OutboxItem {
	if len(messages) == 0 {
		messages = []feed.Message{NewMessage("post_id")}
	}
	return feed.OutboxItem{
		ID:       id,
		SourceID: "guido-blog",
		Stream:   NewStream(),
		Messages: messages,
	}
}
