// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

package modifiers

import (
	"context"
	"fmt"
	"strings"

	"github.com/feedproxy/feedproxy/pkg/feed"
	"github.com/feedproxy/feedproxy/pkg/handlers"
)

// ReplaceOptions configures the replace_text handler.
type ReplaceOptions struct {
	Field string `mapstructure:"field"`
	Old   string `mapstructure:"old"`
	New   string `mapstructure:"new"`
}

// Validate implements handlers.Validatable.
func (o *ReplaceOptions) Validate() error {
	if o.Field == "" {
		return fmt.Errorf("field is required")
	}
	if o.Old == "" {
		return fmt.Errorf("old is required")
	}
	return nil
}

// NewReplaceDef returns the replace_text definition: a literal substring
// replacement on one field of every post.
func NewReplaceDef() handlers.ModifierDef {
	return handlers.ModifierDef{
		Name: "replace_text",
		New: func(options map[string]interface{}) (handlers.Modifier, error) {
			var opts ReplaceOptions
			if err := handlers.DecodeOptions(options, &opts); err != nil {
				return nil, err
			}
			return func(ctx context.Context, posts []feed.Post) ([]feed.Post, error) {
				for i := range posts {
					value, ok := posts[i].Fields[opts.Field].(string)
					if !ok {
						return nil, fmt.Errorf("post %q field %q is not a string", posts[i].PostID, opts.Field)
					}
					posts[i].Fields[opts.Field] = strings.ReplaceAll(value, opts.Old, opts.New)
				}
				return posts, nil
			}, nil
		},
	}
}
