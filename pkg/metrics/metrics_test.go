// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

package metrics

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteToFile(t *testing.T) {
	m := NewPrometheusMetrics()
	m.IncSourcesFetched("guido-blog", "ok")
	m.IncSourcesFetched("guido-blog", "failed")
	m.IncPostsParsed("guido-blog", 3)
	m.IncMessagesPrepared("guido-blog", "console_printer", 2)
	m.IncMessagesSent("guido-blog", "console_printer", 2)

	path := filepath.Join(t.TempDir(), "feedproxy.prom")
	require.NoError(t, m.WriteToFile(path))

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	text := string(content)

	assert.Contains(t, text, `feedproxy_sources_fetched_total{source_id="guido-blog",status="ok"} 1`)
	assert.Contains(t, text, `feedproxy_sources_fetched_total{source_id="guido-blog",status="failed"} 1`)
	assert.Contains(t, text, `feedproxy_posts_parsed_total{source_id="guido-blog"} 3`)
	assert.Contains(t, text, `feedproxy_messages_prepared_total{receiver_id="console_printer",source_id="guido-blog"} 2`)
	assert.Contains(t, text, `feedproxy_messages_sent_total{receiver_id="console_printer",source_id="guido-blog"} 2`)
	assert.Contains(t, text, "feedproxy_uptime_seconds")
}

func TestWriteToFileOverwrites(t *testing.T) {
	m := NewPrometheusMetrics()
	path := filepath.Join(t.TempDir(), "feedproxy.prom")

	require.NoError(t, m.WriteToFile(path))
	first, err := os.ReadFile(path)
	require.NoError(t, err)

	m.IncPostsParsed("guido-blog", 1)
	require.NoError(t, m.WriteToFile(path))
	second, err := os.ReadFile(path)
	require.NoError(t, err)

	assert.NotEqual(t, string(first), string(second))
}
