// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

package receivers

import (
	"context"
	"fmt"
	"html"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	gocache "github.com/patrickmn/go-cache"

	"github.com/feedproxy/feedproxy/pkg/feed"
	"github.com/feedproxy/feedproxy/pkg/handlers"
	"github.com/feedproxy/feedproxy/pkg/util/log"
	"github.com/feedproxy/feedproxy/pkg/util/text"
)

const (
	telegramMaxMessageLength = 4096

	// Telegram allows 20 messages per minute per group.
	telegramMaxPerMinute = 20
)

var telegramSendPause = time.Minute / telegramMaxPerMinute

// TelegramBotInitOptions configures one telegram_bot alias.
type TelegramBotInitOptions struct {
	Name  string `mapstructure:"name"`
	Token string `mapstructure:"token"`
}

// Validate implements handlers.Validatable.
func (o *TelegramBotInitOptions) Validate() error {
	if o.Name == "" {
		return fmt.Errorf("name is required")
	}
	if o.Token == "" {
		return fmt.Errorf("token is required")
	}
	return nil
}

// TelegramBotOptions is the per-stream payload of a telegram_bot alias.
type TelegramBotOptions struct {
	ChatID             string `mapstructure:"chat_id"`
	MessageThreadID    string `mapstructure:"message_thread_id"`
	DisableLinkPreview bool   `mapstructure:"disable_link_preview"`
}

// Validate implements handlers.Validatable.
func (o *TelegramBotOptions) Validate() error {
	if o.ChatID == "" {
		return fmt.Errorf("chat_id is required")
	}
	return nil
}

// TelegramBots caches one API client per token, so aliases sharing a token
// share the client. Clients are built lazily: building one talks to the
// Telegram API, which must not happen during configuration validation.
type TelegramBots struct {
	mu    sync.Mutex
	cache *gocache.Cache
}

// NewTelegramBots returns an empty client cache.
func NewTelegramBots() *TelegramBots {
	return &TelegramBots{cache: gocache.New(gocache.NoExpiration, 0)}
}

func (b *TelegramBots) get(token string) (*tgbotapi.BotAPI, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if cached, ok := b.cache.Get(token); ok {
		return cached.(*tgbotapi.BotAPI), nil
	}
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("connect telegram bot: %w", err)
	}
	b.cache.Set(token, bot, gocache.NoExpiration)
	return bot, nil
}

// NewTelegramBotType returns the telegram_bot receiver type. Messages of one
// delivery are squashed into a single chat message, truncated to the API
// limit, and sends are paced to stay under the per-group rate limit.
func NewTelegramBotType(bots *TelegramBots) handlers.ReceiverType {
	return handlers.ReceiverType{
		Name: "telegram_bot",
		NewInstance: func(alias string, initOptions map[string]interface{}) (handlers.ReceiverDef, error) {
			var init TelegramBotInitOptions
			if err := handlers.DecodeOptions(initOptions, &init); err != nil {
				return handlers.ReceiverDef{}, err
			}
			return handlers.ReceiverDef{
				New: func(options map[string]interface{}) (handlers.Receiver, error) {
					var opts TelegramBotOptions
					if err := handlers.DecodeOptions(options, &opts); err != nil {
						return nil, err
					}
					return func(ctx context.Context, messages []feed.Message) error {
						return sendToTelegram(ctx, bots, &init, &opts, messages)
					}, nil
				},
			}, nil
		},
	}
}

func sendToTelegram(ctx context.Context, bots *TelegramBots, init *TelegramBotInitOptions, opts *TelegramBotOptions, messages []feed.Message) error {
	if len(messages) == 0 {
		return nil
	}

	bot, err := bots.get(init.Token)
	if err != nil {
		return err
	}

	params := tgbotapi.Params{
		"chat_id":    opts.ChatID,
		"text":       truncateParts(telegramParts(messages), telegramMaxMessageLength),
		"parse_mode": "HTML",
	}
	if opts.DisableLinkPreview {
		params["disable_web_page_preview"] = "true"
	}
	params.AddNonEmpty("message_thread_id", opts.MessageThreadID)

	// MakeRequest instead of the typed helpers: the message config structs
	// have no field for message_thread_id.
	if _, err := bot.MakeRequest("sendMessage", params); err != nil {
		return fmt.Errorf("send to %s (%s): %w", init.Name, opts.ChatID, err)
	}
	log.Infof("Sent message to %s (%s)", init.Name, opts.ChatID)

	// pace sends to respect the per-group limit
	select {
	case <-time.After(telegramSendPause):
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

// telegramParts renders every message with HTML-escaped kwargs and interleaves
// delimiters as standalone parts, so truncation can drop whole messages.
func telegramParts(messages []feed.Message) []string {
	var parts []string
	for i, message := range messages {
		if i > 0 {
			parts = append(parts, messageDelimiter)
		}
		rendered := text.RenderTemplate(message.Template, escapeKwargs(message.TemplateKwargs))
		parts = append(parts, strings.TrimSpace(rendered))
	}
	return parts
}

// truncateParts drops parts from the tail until the joined text fits
// maxLength, flagging the loss once at the end.
func truncateParts(parts []string, maxLength int) string {
	truncated := false
	for partsLength(parts) > maxLength {
		if !truncated {
			parts = append(parts, "\nTruncated...")
			truncated = true
		}
		if len(parts) < 2 {
			break
		}
		parts = append(parts[:len(parts)-2], parts[len(parts)-1])
	}
	return strings.Join(parts, "")
}

func partsLength(parts []string) int {
	total := 0
	for _, part := range parts {
		total += len(part)
	}
	return total
}

func escapeKwargs(kwargs map[string]interface{}) map[string]interface{} {
	escaped := make(map[string]interface{}, len(kwargs))
	for key, value := range kwargs {
		if s, ok := value.(string); ok {
			escaped[key] = html.EscapeString(s)
		} else {
			escaped[key] = value
		}
	}
	return escaped
}
