// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

// Package catalog assembles the built-in handlers into a registry.
package catalog

import (
	"io"

	"github.com/feedproxy/feedproxy/pkg/handlers"
	"github.com/feedproxy/feedproxy/pkg/handlers/fetchers"
	"github.com/feedproxy/feedproxy/pkg/handlers/modifiers"
	"github.com/feedproxy/feedproxy/pkg/handlers/parsers"
	"github.com/feedproxy/feedproxy/pkg/handlers/receivers"
	"github.com/feedproxy/feedproxy/pkg/ratelimit"
)

// New returns a registry holding every built-in handler. Console receivers
// write to out.
func New(limiter *ratelimit.HostLimiter, out io.Writer) *handlers.Registry {
	r := handlers.NewRegistry()

	r.RegisterFetcher(fetchers.NewTextDef(limiter))

	r.RegisterParser(parsers.NewRSSDef())
	r.RegisterParser(parsers.NewRedditJSONDef())
	r.RegisterParser(parsers.NewIdealistaDef())
	r.RegisterParser(parsers.NewFotocasaDef())

	r.RegisterModifier(modifiers.NewComparisonDef())
	r.RegisterModifier(modifiers.NewReplaceDef())

	r.RegisterReceiver(receivers.NewConsolePrinterDef(out))
	r.RegisterReceiverType(receivers.NewNamedConsolePrinterType(out))
	r.RegisterReceiverType(receivers.NewTelegramBotType(receivers.NewTelegramBots()))

	return r
}
