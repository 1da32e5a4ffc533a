// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

package parsers

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/feedproxy/feedproxy/pkg/feed"
	"github.com/feedproxy/feedproxy/pkg/handlers"
)

type redditListing struct {
	Data struct {
		Children []struct {
			Data struct {
				ID        string `json:"id"`
				Title     string `json:"title"`
				URL       string `json:"url"`
				Permalink string `json:"permalink"`
				Score     int    `json:"score"`
			} `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

// NewRedditJSONDef returns the reddit_json parser definition. It reads the
// listing JSON served by appending .json to a subreddit URL.
func NewRedditJSONDef() handlers.ParserDef {
	return handlers.ParserDef{
		Name: "reddit_json",
		New: func(options map[string]interface{}) (handlers.Parser, error) {
			var opts struct{}
			if err := handlers.DecodeOptions(options, &opts); err != nil {
				return nil, err
			}
			return parseRedditJSON, nil
		},
	}
}

func parseRedditJSON(ctx context.Context, raw string) ([]feed.Post, error) {
	if raw == "" {
		return nil, nil
	}

	var listing redditListing
	if err := json.Unmarshal([]byte(raw), &listing); err != nil {
		return nil, fmt.Errorf("parse reddit listing: %w", err)
	}

	posts := make([]feed.Post, 0, len(listing.Data.Children))
	for _, child := range listing.Data.Children {
		entry := child.Data
		posts = append(posts, feed.Post{
			PostID: entry.ID,
			Fields: map[string]interface{}{
				"title":    entry.Title,
				"url":      entry.URL,
				"comments": "https://reddit.com" + entry.Permalink,
				"score":    entry.Score,
			},
		})
	}
	return posts, nil
}
