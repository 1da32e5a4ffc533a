// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

// Package httputils holds the HTTP constants and helpers shared by fetchers.
package httputils

import (
	"net/url"
	"strings"
)

// DefaultUserAgent is sent on every fetch. Some feeds refuse requests from
// obviously non-browser agents.
// https://user-agents.net/browsers/firefox
const DefaultUserAgent = "Mozilla/5.0 (X11; Ubuntu; Linux x86_64; rv:96.0) Gecko/20100101 Firefox/96.0"

// AcceptHeader mirrors what a browser would send for a page load.
const AcceptHeader = "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8"

// AcceptLanguageHeader is sent on every fetch.
const AcceptLanguageHeader = "uk-UA,uk;q=0.8,en-US;q=0.5,en;q=0.3"

// DomainFromURL extracts the lower-cased host of rawURL, without any port.
// It returns "" when rawURL has no parseable host.
func DomainFromURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}
