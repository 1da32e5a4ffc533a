// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

// Package feed defines the data model flowing through the pipeline: sources
// and their streams on the input side, posts, messages and outbox items on the
// output side. Everything here is either immutable configuration or a plain
// value passed between pipeline stages.
package feed

import (
	"fmt"
	"strings"

	"github.com/feedproxy/feedproxy/pkg/util/text"
)

// Modifier is a configured post filter/transform attached to a stream. Type
// resolves to a registered modifier handler, Options is its per-call payload.
type Modifier struct {
	Type    string                 `json:"type" mapstructure:"type"`
	Options map[string]interface{} `json:"options" mapstructure:"options"`
}

// Stream is a single output binding of a source: which receiver gets the
// messages, how they are rendered and which modifiers run first.
type Stream struct {
	ReceiverType      string                 `json:"receiver_type" mapstructure:"receiver_type"`
	ReceiverOptions   map[string]interface{} `json:"receiver_options" mapstructure:"receiver_options"`
	Intervals         []string               `json:"intervals" mapstructure:"intervals"`
	Squash            bool                   `json:"squash" mapstructure:"squash"`
	MessageTemplate   string                 `json:"message_template" mapstructure:"message_template"`
	MessageTemplateID string                 `json:"message_template_id" mapstructure:"message_template_id"`
	Modifiers         []Modifier             `json:"modifiers" mapstructure:"modifiers"`
	Active            *bool                  `json:"active" mapstructure:"active"`
}

// IsActive reports whether the stream takes part in the pipeline. Streams are
// active unless the configuration says otherwise.
func (s *Stream) IsActive() bool {
	return s.Active == nil || *s.Active
}

// Validate enforces the single-template-source invariant: exactly one of
// MessageTemplate and MessageTemplateID must be set. Template ids are resolved
// into MessageTemplate at configuration load, so a fully loaded stream always
// carries an inline template.
func (s *Stream) Validate() error {
	if s.MessageTemplate != "" && s.MessageTemplateID != "" {
		return fmt.Errorf("only one of message_template or message_template_id can be set")
	}
	if s.MessageTemplate == "" && s.MessageTemplateID == "" {
		return fmt.Errorf("one of message_template or message_template_id must be set")
	}
	return nil
}

// Source is the immutable configuration of one input feed.
type Source struct {
	ID             string                 `json:"id" mapstructure:"id"`
	FetcherType    string                 `json:"fetcher_type" mapstructure:"fetcher_type"`
	FetcherOptions map[string]interface{} `json:"fetcher_options" mapstructure:"fetcher_options"`
	ParserType     string                 `json:"parser_type" mapstructure:"parser_type"`
	ParserOptions  map[string]interface{} `json:"parser_options" mapstructure:"parser_options"`
	Tags           []string               `json:"tags" mapstructure:"tags"`
	Streams        []Stream               `json:"streams" mapstructure:"streams"`
}

// DedupKey identifies the dedup state shared by a (source, receiver type)
// pair. Two streams of one source pointing at the same receiver type share
// processed-post state.
type DedupKey struct {
	SourceID     string
	ReceiverType string
}

func (k DedupKey) String() string {
	return k.SourceID + "/" + k.ReceiverType
}

// Message is a rendering-ready unit of delivery. Rendering the template with
// the kwargs is the receiver's responsibility.
type Message struct {
	PostID         string                 `json:"post_id"`
	Template       string                 `json:"template"`
	TemplateKwargs map[string]interface{} `json:"template_kwargs"`
}

// OutboxItem is the durable unit of delivery work: one send-batch owed to one
// stream's receiver until committed.
type OutboxItem struct {
	ID        string    `json:"id"`
	SourceID  string    `json:"source_id"`
	Stream    Stream    `json:"stream"`
	Messages  []Message `json:"messages"`
	CreatedAt int64     `json:"created_at"`
}

// Post is a parser output item. Parser-specific fields live in Fields and are
// only consumed through TemplateKwargs; the pipeline itself reads nothing but
// PostID and SourceTags.
//
// PostID must be stable across fetches of the same logical item. Parsers that
// want to re-notify on content change fold a content digest into PostID.
type Post struct {
	PostID     string                 `json:"post_id"`
	SourceTags []string               `json:"source_tags"`
	Fields     map[string]interface{} `json:"fields"`
}

// TemplateKwargs returns the flat mapping available to message templates:
// every parser field plus post_id, the joined source tags and their hash-tag
// form.
func (p *Post) TemplateKwargs() map[string]interface{} {
	kwargs := make(map[string]interface{}, len(p.Fields)+3)
	for name, value := range p.Fields {
		kwargs[name] = value
	}
	kwargs["post_id"] = p.PostID
	kwargs["source_tags"] = strings.Join(p.SourceTags, "; ")
	kwargs["source_hash_tags"] = strings.Join(text.MakeHashTags(p.SourceTags), " ")
	return kwargs
}

func (p *Post) String() string {
	if title, ok := p.Fields["title"].(string); ok && title != "" {
		return title
	}
	return p.PostID
}
