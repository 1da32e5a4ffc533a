// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

package parsers

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/feedproxy/feedproxy/pkg/feed"
	"github.com/feedproxy/feedproxy/pkg/handlers"
)

const idealistaBaseURL = "https://www.idealista.com"

// NewIdealistaDef returns the idealista parser definition, scraping the
// listing cards out of an idealista.com search results page.
func NewIdealistaDef() handlers.ParserDef {
	return handlers.ParserDef{
		Name: "idealista",
		New: func(options map[string]interface{}) (handlers.Parser, error) {
			var opts struct{}
			if err := handlers.DecodeOptions(options, &opts); err != nil {
				return nil, err
			}
			return parseIdealista, nil
		},
	}
}

func parseIdealista(ctx context.Context, raw string) ([]feed.Post, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("parse idealista html: %w", err)
	}

	var posts []feed.Post
	doc.Find("article.item").Each(func(_ int, article *goquery.Selection) {
		link := article.Find("a.item-link").First()
		if link.Length() == 0 {
			return
		}
		href, _ := link.Attr("href")
		url := href
		if !strings.HasPrefix(href, "http") {
			url = idealistaBaseURL + href
		}

		money := strings.TrimSpace(article.Find(".item-price").First().Text())
		details := extractDetails(article)

		posts = append(posts, feed.Post{
			PostID: listingPostID(idFromListingURL(url), details),
			Fields: map[string]interface{}{
				"title":   strings.TrimSpace(link.Text()),
				"url":     url,
				"money":   money,
				"details": strings.Join(details, "; "),
			},
		})
	})
	return posts, nil
}

func extractDetails(article *goquery.Selection) []string {
	var details []string
	article.Find(".item-detail").Each(func(_ int, detail *goquery.Selection) {
		if text := strings.TrimSpace(detail.Text()); text != "" {
			details = append(details, text)
		}
	})
	return details
}

// idFromListingURL takes the last path segment, the numeric listing id in
// https://www.idealista.com/inmueble/12345678/.
func idFromListingURL(url string) string {
	trimmed := strings.TrimRight(url, "/")
	if i := strings.LastIndex(trimmed, "/"); i >= 0 {
		return trimmed[i+1:]
	}
	return url
}

// listingPostID folds the details into the id so an updated listing shows up
// again as a new post.
func listingPostID(idFromURL string, details []string) string {
	digest := sha256.Sum256([]byte(strings.Join(details, "_")))
	return idFromURL + "_" + hex.EncodeToString(digest[:])
}
