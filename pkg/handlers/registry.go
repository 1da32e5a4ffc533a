// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

// Package handlers is the catalogue binding the symbolic handler names used
// in configuration (fetcher, parser, modifier and receiver types) to runnable
// code. The registry is an explicit value: the built-in handlers are
// registered in one place at program start and tests build their own.
package handlers

import (
	"context"
	"fmt"

	"github.com/hashicorp/go-multierror"

	"github.com/feedproxy/feedproxy/pkg/feed"
)

// Kind partitions the handler namespace.
type Kind string

// The four handler kinds.
const (
	KindFetcher  Kind = "fetchers"
	KindParser   Kind = "parsers"
	KindModifier Kind = "modifiers"
	KindReceiver Kind = "receivers"
)

// Fetcher retrieves the raw text of a source. An empty result with a nil
// error means the fetch failed in a non-retriable way and the tick should be
// dropped.
type Fetcher func(ctx context.Context) (string, error)

// Parser turns fetched text into posts. Empty input text yields an empty
// list, not an error.
type Parser func(ctx context.Context, text string) ([]feed.Post, error)

// Modifier maps a post list to a new post list. Modifiers own their input
// and may mutate it.
type Modifier func(ctx context.Context, posts []feed.Post) ([]feed.Post, error)

// Receiver delivers a batch of rendered-to-be messages.
type Receiver func(ctx context.Context, messages []feed.Message) error

// FetcherDef binds a fetcher name to a constructor turning a validated
// options payload into a ready-to-run Fetcher.
type FetcherDef struct {
	Name string
	New  func(options map[string]interface{}) (Fetcher, error)
}

// ParserDef binds a parser name to its constructor.
type ParserDef struct {
	Name string
	New  func(options map[string]interface{}) (Parser, error)
}

// ModifierDef binds a modifier name to its constructor.
type ModifierDef struct {
	Name string
	New  func(options map[string]interface{}) (Modifier, error)
}

// ReceiverDef binds a receiver name to its constructor.
type ReceiverDef struct {
	Name string
	New  func(options map[string]interface{}) (Receiver, error)
}

// ReceiverType is a receiver template carrying constructor state. The
// configuration's handlers block materializes one ReceiverDef per alias, so
// two aliases of the same type are two distinct instances.
type ReceiverType struct {
	Name        string
	NewInstance func(alias string, initOptions map[string]interface{}) (ReceiverDef, error)
}

// InitHandlersError is returned when the configuration references unknown
// handlers or carries option payloads that fail validation. It aggregates
// every problem found so a broken config surfaces completely in one run.
type InitHandlersError struct {
	err error
}

func (e *InitHandlersError) Error() string {
	return fmt.Sprintf("init handlers: %v", e.err)
}

func (e *InitHandlersError) Unwrap() error {
	return e.err
}

// Registry maps (kind, name) to handler definitions.
type Registry struct {
	fetchers      map[string]FetcherDef
	parsers       map[string]ParserDef
	modifiers     map[string]ModifierDef
	receivers     map[string]ReceiverDef
	receiverTypes map[string]ReceiverType
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		fetchers:      make(map[string]FetcherDef),
		parsers:       make(map[string]ParserDef),
		modifiers:     make(map[string]ModifierDef),
		receivers:     make(map[string]ReceiverDef),
		receiverTypes: make(map[string]ReceiverType),
	}
}

// RegisterFetcher adds a fetcher definition. Registering a duplicate name
// panics: registration happens at program start from static code, a clash is
// a programming error.
func (r *Registry) RegisterFetcher(def FetcherDef) {
	if _, ok := r.fetchers[def.Name]; ok {
		panic(fmt.Sprintf("fetcher %q registered twice", def.Name))
	}
	r.fetchers[def.Name] = def
}

// RegisterParser adds a parser definition.
func (r *Registry) RegisterParser(def ParserDef) {
	if _, ok := r.parsers[def.Name]; ok {
		panic(fmt.Sprintf("parser %q registered twice", def.Name))
	}
	r.parsers[def.Name] = def
}

// RegisterModifier adds a modifier definition.
func (r *Registry) RegisterModifier(def ModifierDef) {
	if _, ok := r.modifiers[def.Name]; ok {
		panic(fmt.Sprintf("modifier %q registered twice", def.Name))
	}
	r.modifiers[def.Name] = def
}

// RegisterReceiver adds a receiver definition.
func (r *Registry) RegisterReceiver(def ReceiverDef) {
	if _, ok := r.receivers[def.Name]; ok {
		panic(fmt.Sprintf("receiver %q registered twice", def.Name))
	}
	r.receivers[def.Name] = def
}

// RegisterReceiverType adds a receiver template instantiable through the
// configuration's handlers block.
func (r *Registry) RegisterReceiverType(t ReceiverType) {
	if _, ok := r.receiverTypes[t.Name]; ok {
		panic(fmt.Sprintf("receiver type %q registered twice", t.Name))
	}
	r.receiverTypes[t.Name] = t
}

// ResolveFetcher binds the named fetcher to its validated options.
func (r *Registry) ResolveFetcher(name string, options map[string]interface{}) (Fetcher, error) {
	def, ok := r.fetchers[name]
	if !ok {
		return nil, fmt.Errorf("unknown fetcher %q", name)
	}
	fetcher, err := def.New(options)
	if err != nil {
		return nil, fmt.Errorf("fetcher %q: %w", name, err)
	}
	return fetcher, nil
}

// ResolveParser binds the named parser to its validated options.
func (r *Registry) ResolveParser(name string, options map[string]interface{}) (Parser, error) {
	def, ok := r.parsers[name]
	if !ok {
		return nil, fmt.Errorf("unknown parser %q", name)
	}
	parser, err := def.New(options)
	if err != nil {
		return nil, fmt.Errorf("parser %q: %w", name, err)
	}
	return parser, nil
}

// ResolveModifier binds the named modifier to its validated options.
func (r *Registry) ResolveModifier(name string, options map[string]interface{}) (Modifier, error) {
	def, ok := r.modifiers[name]
	if !ok {
		return nil, fmt.Errorf("unknown modifier %q", name)
	}
	modifier, err := def.New(options)
	if err != nil {
		return nil, fmt.Errorf("modifier %q: %w", name, err)
	}
	return modifier, nil
}

// ResolveReceiver binds the named receiver to its validated options.
func (r *Registry) ResolveReceiver(name string, options map[string]interface{}) (Receiver, error) {
	def, ok := r.receivers[name]
	if !ok {
		return nil, fmt.Errorf("unknown receiver %q", name)
	}
	receiver, err := def.New(options)
	if err != nil {
		return nil, fmt.Errorf("receiver %q: %w", name, err)
	}
	return receiver, nil
}

// Subhandler is one entry of the configuration's handlers block: an alias
// materialized from a receiver type with its init options.
type Subhandler struct {
	HandlerType Kind
	Alias       string
	Type        string
	InitOptions map[string]interface{}
}

// Init materializes the configured subhandler aliases and validates every
// handler reference and options payload in sources up front, so that config
// errors surface before the pipeline starts. It returns an
// *InitHandlersError aggregating everything that is wrong.
func (r *Registry) Init(subhandlers []Subhandler, sources []feed.Source) error {
	var errs *multierror.Error

	for _, sub := range subhandlers {
		if err := r.initSubhandler(sub); err != nil {
			errs = multierror.Append(errs, err)
		}
	}

	for _, source := range sources {
		if _, err := r.ResolveFetcher(source.FetcherType, source.FetcherOptions); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("source %q: %w", source.ID, err))
		}
		if _, err := r.ResolveParser(source.ParserType, source.ParserOptions); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("source %q: %w", source.ID, err))
		}
		for i, stream := range source.Streams {
			if _, err := r.ResolveReceiver(stream.ReceiverType, stream.ReceiverOptions); err != nil {
				errs = multierror.Append(errs, fmt.Errorf("source %q stream %d: %w", source.ID, i, err))
			}
			for j, modifier := range stream.Modifiers {
				if _, err := r.ResolveModifier(modifier.Type, modifier.Options); err != nil {
					errs = multierror.Append(errs, fmt.Errorf("source %q stream %d modifier %d: %w", source.ID, i, j, err))
				}
			}
		}
	}

	if err := errs.ErrorOrNil(); err != nil {
		return &InitHandlersError{err: err}
	}
	return nil
}

func (r *Registry) initSubhandler(sub Subhandler) error {
	if sub.HandlerType != KindReceiver {
		return fmt.Errorf("handler %q: subhandlers of kind %q are not supported", sub.Alias, sub.HandlerType)
	}
	receiverType, ok := r.receiverTypes[sub.Type]
	if !ok {
		return fmt.Errorf("handler %q: unknown receiver type %q", sub.Alias, sub.Type)
	}
	if _, taken := r.receivers[sub.Alias]; taken {
		return fmt.Errorf("handler %q: a receiver with this name already exists", sub.Alias)
	}
	def, err := receiverType.NewInstance(sub.Alias, sub.InitOptions)
	if err != nil {
		return fmt.Errorf("handler %q: %w", sub.Alias, err)
	}
	def.Name = sub.Alias
	r.RegisterReceiver(def)
	return nil
}
