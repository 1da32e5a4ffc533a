// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

// Package text holds the message template rendering helpers shared by the
// receivers.
package text

import (
	"fmt"
	"regexp"
	"strings"
)

var placeholderRe = regexp.MustCompile(`\$(\$|{[A-Za-z_][A-Za-z0-9_]*}|[A-Za-z_][A-Za-z0-9_]*)`)

// RenderTemplate substitutes ${name} and $name placeholders in template with
// values from kwargs. Placeholders with no matching key are left as-is: a
// missing field is the receiver's concern, not a rendering error. "$$" renders
// a literal "$".
func RenderTemplate(template string, kwargs map[string]interface{}) string {
	return placeholderRe.ReplaceAllStringFunc(template, func(match string) string {
		body := match[1:]
		if body == "$" {
			return "$"
		}
		name := strings.TrimSuffix(strings.TrimPrefix(body, "{"), "}")
		value, ok := kwargs[name]
		if !ok {
			return match
		}
		return toString(value)
	})
}

func toString(value interface{}) string {
	switch v := value.(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", v)
	}
}

var hashTagCleanupRe = regexp.MustCompile(`[^\pL\pN_]+`)

// MakeHashTags converts source tags to "#tag" form usable in chat messages.
// Characters that cannot appear in a hash tag are replaced by underscores.
func MakeHashTags(tags []string) []string {
	hashTags := make([]string, 0, len(tags))
	for _, tag := range tags {
		cleaned := hashTagCleanupRe.ReplaceAllString(strings.TrimSpace(tag), "_")
		if cleaned == "" {
			continue
		}
		hashTags = append(hashTags, "#"+cleaned)
	}
	return hashTags
}
