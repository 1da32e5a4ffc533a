// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

// Package receivers implements the built-in receiver handlers. A receiver
// renders the messages of one outbox item and delivers them somewhere.
package receivers

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/feedproxy/feedproxy/pkg/feed"
	"github.com/feedproxy/feedproxy/pkg/handlers"
	"github.com/feedproxy/feedproxy/pkg/util/log"
	"github.com/feedproxy/feedproxy/pkg/util/text"
)

// messageDelimiter separates messages squashed into one delivery.
const messageDelimiter = "\n-----\n"

// NewConsolePrinterDef returns the console_printer definition, writing the
// rendered messages to out.
func NewConsolePrinterDef(out io.Writer) handlers.ReceiverDef {
	return handlers.ReceiverDef{
		Name: "console_printer",
		New:  newConsolePrinter(out),
	}
}

// NamedConsolePrinterInitOptions configures one named_console_printer alias.
type NamedConsolePrinterInitOptions struct {
	Name  string `mapstructure:"name"`
	Token string `mapstructure:"token"`
}

// Validate implements handlers.Validatable.
func (o *NamedConsolePrinterInitOptions) Validate() error {
	if o.Name == "" {
		return fmt.Errorf("name is required")
	}
	return nil
}

// NewNamedConsolePrinterType returns the named_console_printer receiver type.
// It behaves like console_printer; it exists to exercise alias materialization
// in configurations that have no real chat receiver to talk to.
func NewNamedConsolePrinterType(out io.Writer) handlers.ReceiverType {
	return handlers.ReceiverType{
		Name: "named_console_printer",
		NewInstance: func(alias string, initOptions map[string]interface{}) (handlers.ReceiverDef, error) {
			var init NamedConsolePrinterInitOptions
			if err := handlers.DecodeOptions(initOptions, &init); err != nil {
				return handlers.ReceiverDef{}, err
			}
			log.Infof("Initialized console printer %q as %q", init.Name, alias)
			return handlers.ReceiverDef{New: newConsolePrinter(out)}, nil
		},
	}
}

func newConsolePrinter(out io.Writer) func(options map[string]interface{}) (handlers.Receiver, error) {
	return func(options map[string]interface{}) (handlers.Receiver, error) {
		var opts struct{}
		if err := handlers.DecodeOptions(options, &opts); err != nil {
			return nil, err
		}
		return func(ctx context.Context, messages []feed.Message) error {
			if len(messages) == 0 {
				return nil
			}
			if _, err := fmt.Fprintln(out, renderMessages(messages)); err != nil {
				return fmt.Errorf("print messages: %w", err)
			}
			return nil
		}, nil
	}
}

func renderMessages(messages []feed.Message) string {
	parts := make([]string, 0, len(messages))
	for _, message := range messages {
		parts = append(parts, text.RenderTemplate(message.Template, message.TemplateKwargs))
	}
	return strings.Join(parts, messageDelimiter)
}
