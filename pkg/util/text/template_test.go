// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

package text

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRenderTemplate(t *testing.T) {
	kwargs := map[string]interface{}{
		"title": "feedproxy 95 release",
		"url":   "https://example.com/releases/95",
		"score": 42,
	}

	rendered := RenderTemplate("${title}\n${url} ($score)", kwargs)

	assert.Equal(t, "feedproxy 95 release\nhttps://example.com/releases/95 (42)", rendered)
}

func TestRenderTemplateKeepsUnknownPlaceholders(t *testing.T) {
	rendered := RenderTemplate("${title} ${missing}", map[string]interface{}{"title": "hello"})

	assert.Equal(t, "hello ${missing}", rendered)
}

func TestRenderTemplateEscapedDollar(t *testing.T) {
	rendered := RenderTemplate("$$100 for ${title}", map[string]interface{}{"title": "it"})

	assert.Equal(t, "$100 for it", rendered)
}

func TestMakeHashTags(t *testing.T) {
	tags := []string{"news", "Some Tag", "c++", ""}

	assert.Equal(t, []string{"#news", "#Some_Tag", "#c_"}, MakeHashTags(tags))
}
