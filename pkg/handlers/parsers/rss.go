// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

// Package parsers implements the built-in parser handlers. A parser turns the
// raw text of one fetch into posts; it never sees the source it came from.
package parsers

import (
	"context"
	"fmt"
	"strings"

	gofeedrss "github.com/mmcdole/gofeed/rss"

	"github.com/feedproxy/feedproxy/pkg/feed"
	"github.com/feedproxy/feedproxy/pkg/handlers"
	"github.com/feedproxy/feedproxy/pkg/util/text"
)

// NewRSSDef returns the rss parser definition.
func NewRSSDef() handlers.ParserDef {
	return handlers.ParserDef{
		Name: "rss",
		New: func(options map[string]interface{}) (handlers.Parser, error) {
			var opts struct{}
			if err := handlers.DecodeOptions(options, &opts); err != nil {
				return nil, err
			}
			return parseRSS, nil
		},
	}
}

func parseRSS(ctx context.Context, raw string) ([]feed.Post, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}

	parsed, err := (&gofeedrss.Parser{}).Parse(strings.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("parse rss: %w", err)
	}

	posts := make([]feed.Post, 0, len(parsed.Items))
	for _, item := range parsed.Items {
		postID := ""
		if item.GUID != nil {
			postID = item.GUID.Value
		}
		if postID == "" {
			postID = cleanPostID(item.Link)
		}
		tags := make([]string, 0, len(item.Categories))
		for _, category := range item.Categories {
			tags = append(tags, category.Value)
		}
		posts = append(posts, feed.Post{
			PostID: postID,
			Fields: map[string]interface{}{
				"title":          item.Title,
				"url":            item.Link,
				"comments_url":   item.Comments,
				"post_tags":      strings.Join(tags, "; "),
				"post_hash_tags": strings.Join(text.MakeHashTags(tags), " "),
			},
		})
	}
	return posts, nil
}

// cleanPostID strips the scheme so a feed flipping between http and https
// keeps stable post ids.
func cleanPostID(link string) string {
	link = strings.TrimPrefix(link, "https://")
	return strings.TrimPrefix(link, "http://")
}
