// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

package metrics

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/common/expfmt"

	"github.com/feedproxy/feedproxy/pkg/util/log"
)

// DefaultWritePeriod is how often the metrics file is rewritten.
const DefaultWritePeriod = 10 * time.Second

// WriteToFile dumps the registry in text exposition format to path. The write
// is atomic: a temp file in the same directory is renamed over the target so
// scrapers never observe a half-written file.
func (m *PrometheusMetrics) WriteToFile(path string) error {
	families, err := m.registry.Gather()
	if err != nil {
		return fmt.Errorf("gather metrics: %w", err)
	}

	var buf bytes.Buffer
	for _, family := range families {
		if _, err := expfmt.MetricFamilyToText(&buf, family); err != nil {
			return fmt.Errorf("encode metrics: %w", err)
		}
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp")
	if err != nil {
		return fmt.Errorf("create temp metrics file: %w", err)
	}
	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write temp metrics file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close temp metrics file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("replace metrics file: %w", err)
	}
	return nil
}

// RunFileWriter rewrites path every period until ctx is cancelled. A final
// write happens on shutdown so the file reflects the last counters.
func (m *PrometheusMetrics) RunFileWriter(ctx context.Context, path string, period time.Duration) {
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := m.WriteToFile(path); err != nil {
				log.Warnf("Can't write metrics file: %v", err)
			}
		case <-ctx.Done():
			if err := m.WriteToFile(path); err != nil {
				log.Warnf("Can't write metrics file on shutdown: %v", err)
			}
			return
		}
	}
}
