// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

package command

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDumpConfig(t *testing.T) {
	folder := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(folder, "conf.yaml"), []byte(`
sources:
  guido-blog:
    fetcher_type: fetch_text
    fetcher_options:
      url: https://blog.example.com/feed.xml
    parser_type: rss
    streams:
      - receiver_type: console_printer
        message_template: "${title}"
`), 0o644))

	var out bytes.Buffer
	root := RootCommand()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs([]string{"dump-config", "--config", folder})

	require.NoError(t, root.Execute())
	assert.Contains(t, out.String(), "guido-blog")
	assert.Contains(t, out.String(), "fetch_text")
}

func TestDumpConfigEmptyFolder(t *testing.T) {
	root := RootCommand()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"dump-config", "--config", t.TempDir()})

	err := root.Execute()
	assert.ErrorContains(t, err, "no configuration files found")
}

func TestRunWithBrokenConfig(t *testing.T) {
	folder := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(folder, "conf.yaml"), []byte(`
sources:
  broken:
    fetcher_type: no_such_fetcher
    parser_type: rss
    streams:
      - receiver_type: console_printer
        message_template: "${title}"
`), 0o644))

	root := RootCommand()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"run", "--config", folder})

	err := root.Execute()
	assert.ErrorContains(t, err, `unknown fetcher "no_such_fetcher"`)
}
