// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

// Package modifiers implements the built-in modifier handlers. A modifier
// transforms the post list of one stream tick before messages are prepared.
package modifiers

import (
	"context"
	"fmt"
	"strconv"

	"github.com/feedproxy/feedproxy/pkg/feed"
	"github.com/feedproxy/feedproxy/pkg/handlers"
)

// Comparison operators accepted by compare_and_filter.
const (
	OpEqual       = "="
	OpNotEqual    = "!="
	OpGreaterThan = ">"
	OpLessThan    = "<"
)

// Field types accepted by compare_and_filter.
const (
	FieldTypeString  = "string"
	FieldTypeInteger = "integer"
)

// ComparisonOptions configures the compare_and_filter handler. Value always
// arrives as a string and is converted according to FieldType.
type ComparisonOptions struct {
	Field     string `mapstructure:"field"`
	Operator  string `mapstructure:"operator"`
	Value     string `mapstructure:"value"`
	FieldType string `mapstructure:"field_type"`
}

// Validate implements handlers.Validatable.
func (o *ComparisonOptions) Validate() error {
	if o.Field == "" {
		return fmt.Errorf("field is required")
	}
	switch o.Operator {
	case OpEqual, OpNotEqual, OpGreaterThan, OpLessThan:
	default:
		return fmt.Errorf("unknown operator %q", o.Operator)
	}
	if o.FieldType == "" {
		o.FieldType = FieldTypeString
	}
	switch o.FieldType {
	case FieldTypeString, FieldTypeInteger:
	default:
		return fmt.Errorf("unknown field type %q", o.FieldType)
	}
	if o.FieldType == FieldTypeInteger {
		if _, err := strconv.ParseInt(o.Value, 10, 64); err != nil {
			return fmt.Errorf("value %q is not an integer", o.Value)
		}
	}
	return nil
}

// NewComparisonDef returns the compare_and_filter definition: it keeps only
// the posts whose field compares true against the configured value.
func NewComparisonDef() handlers.ModifierDef {
	return handlers.ModifierDef{
		Name: "compare_and_filter",
		New: func(options map[string]interface{}) (handlers.Modifier, error) {
			var opts ComparisonOptions
			if err := handlers.DecodeOptions(options, &opts); err != nil {
				return nil, err
			}
			return func(ctx context.Context, posts []feed.Post) ([]feed.Post, error) {
				kept := make([]feed.Post, 0, len(posts))
				for _, post := range posts {
					keep, err := compare(&post, &opts)
					if err != nil {
						return nil, err
					}
					if keep {
						kept = append(kept, post)
					}
				}
				return kept, nil
			}, nil
		},
	}
}

func compare(post *feed.Post, opts *ComparisonOptions) (bool, error) {
	raw, ok := post.Fields[opts.Field]
	if !ok {
		return false, fmt.Errorf("post %q has no field %q", post.PostID, opts.Field)
	}

	if opts.FieldType == FieldTypeInteger {
		fieldValue, err := toInt64(raw)
		if err != nil {
			return false, fmt.Errorf("post %q field %q: %w", post.PostID, opts.Field, err)
		}
		// Validate already proved Value parses.
		wanted, _ := strconv.ParseInt(opts.Value, 10, 64)
		return compareOrdered(fieldValue, wanted, opts.Operator), nil
	}
	return compareOrdered(fmt.Sprint(raw), opts.Value, opts.Operator), nil
}

func compareOrdered[T int64 | string](a, b T, operator string) bool {
	switch operator {
	case OpEqual:
		return a == b
	case OpNotEqual:
		return a != b
	case OpGreaterThan:
		return a > b
	case OpLessThan:
		return a < b
	}
	return false
}

func toInt64(value interface{}) (int64, error) {
	switch v := value.(type) {
	case int:
		return int64(v), nil
	case int64:
		return v, nil
	case float64:
		return int64(v), nil
	case string:
		parsed, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("value %q is not an integer", v)
		}
		return parsed, nil
	default:
		return 0, fmt.Errorf("value %v is not an integer", value)
	}
}
