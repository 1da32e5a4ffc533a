// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

// Package fetchers implements the built-in fetcher handlers.
package fetchers

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/net/html/charset"

	"github.com/feedproxy/feedproxy/pkg/handlers"
	"github.com/feedproxy/feedproxy/pkg/ratelimit"
	"github.com/feedproxy/feedproxy/pkg/util/httputils"
	"github.com/feedproxy/feedproxy/pkg/util/log"
)

const (
	fetchTimeout = 30 * time.Second
	fetchRetries = 2
	retryPause   = 3 * time.Second

	// defaultHostSpacing is the minimum pause between two calls to the
	// same host, across all sources.
	defaultHostSpacing = 1 * time.Second
)

// TextOptions configures the fetch_text handler.
type TextOptions struct {
	URL      string `mapstructure:"url"`
	Encoding string `mapstructure:"encoding"`
}

// Validate implements handlers.Validatable.
func (o *TextOptions) Validate() error {
	if o.URL == "" {
		return fmt.Errorf("url is required")
	}
	return nil
}

// NewTextDef returns the fetch_text definition: an HTTP GET with browser-like
// headers, bounded retries and per-host pacing through limiter.
func NewTextDef(limiter *ratelimit.HostLimiter) handlers.FetcherDef {
	client := &http.Client{Timeout: fetchTimeout}
	return handlers.FetcherDef{
		Name: "fetch_text",
		New: func(options map[string]interface{}) (handlers.Fetcher, error) {
			var opts TextOptions
			if err := handlers.DecodeOptions(options, &opts); err != nil {
				return nil, err
			}
			f := &textFetcher{
				client:      client,
				limiter:     limiter,
				opts:        opts,
				retries:     fetchRetries,
				retryPause:  retryPause,
				hostSpacing: defaultHostSpacing,
			}
			return f.fetch, nil
		},
	}
}

type textFetcher struct {
	client      *http.Client
	limiter     *ratelimit.HostLimiter
	opts        TextOptions
	retries     uint64
	retryPause  time.Duration
	hostSpacing time.Duration
}

// fetch holds the host lease for the whole request so concurrent sources
// hitting one host stay serialized and paced.
func (f *textFetcher) fetch(ctx context.Context) (string, error) {
	release, err := f.limiter.Lease(ctx, f.opts.URL, f.hostSpacing)
	if err != nil {
		return "", err
	}
	defer release()

	var text string
	operation := func() error {
		body, err := f.doRequest(ctx)
		if err != nil {
			return log.Warnf("Can't fetch %s: %v", f.opts.URL, err)
		}
		text = body
		return nil
	}
	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(f.retryPause), f.retries), ctx)
	if err := backoff.Retry(operation, policy); err != nil {
		return "", fmt.Errorf("fetch %s: %w", f.opts.URL, err)
	}
	return text, nil
}

func (f *textFetcher) doRequest(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.opts.URL, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", httputils.DefaultUserAgent)
	req.Header.Set("Accept", httputils.AcceptHeader)
	req.Header.Set("Accept-Language", httputils.AcceptLanguageHeader)

	resp, err := f.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return "", fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var reader io.Reader = resp.Body
	if f.opts.Encoding != "" {
		reader, err = charset.NewReaderLabel(f.opts.Encoding, resp.Body)
		if err != nil {
			return "", fmt.Errorf("unknown encoding %q: %w", f.opts.Encoding, err)
		}
	}
	body, err := io.ReadAll(reader)
	if err != nil {
		return "", err
	}
	return string(body), nil
}
