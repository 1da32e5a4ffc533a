// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

// Package metrics counts what the pipeline does: sources fetched, posts
// parsed, messages prepared and sent. The prometheus implementation can
// periodically dump the registry in text exposition format to a file, which
// is scraped by node-exporter's textfile collector.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics is the sink the pipeline stages report to.
type Metrics interface {
	IncSourcesFetched(sourceID, status string)
	IncPostsParsed(sourceID string, count int)
	IncMessagesPrepared(sourceID, receiverID string, count int)
	IncMessagesSent(sourceID, receiverID string, count int)
}

// NullMetrics discards everything.
type NullMetrics struct{}

// IncSourcesFetched implements Metrics.
func (NullMetrics) IncSourcesFetched(string, string) {}

// IncPostsParsed implements Metrics.
func (NullMetrics) IncPostsParsed(string, int) {}

// IncMessagesPrepared implements Metrics.
func (NullMetrics) IncMessagesPrepared(string, string, int) {}

// IncMessagesSent implements Metrics.
func (NullMetrics) IncMessagesSent(string, string, int) {}

// PrometheusMetrics keeps the counters in a private prometheus registry.
type PrometheusMetrics struct {
	registry *prometheus.Registry

	sourcesFetched   *prometheus.CounterVec
	postsParsed      *prometheus.CounterVec
	messagesPrepared *prometheus.CounterVec
	messagesSent     *prometheus.CounterVec
}

// NewPrometheusMetrics returns a fresh registry with every pipeline counter
// registered, plus a process uptime gauge.
func NewPrometheusMetrics() *PrometheusMetrics {
	registry := prometheus.NewRegistry()

	m := &PrometheusMetrics{
		registry: registry,
		sourcesFetched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "feedproxy_sources_fetched_total",
			Help: "Count of source fetch attempts by status.",
		}, []string{"source_id", "status"}),
		postsParsed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "feedproxy_posts_parsed_total",
			Help: "Count of posts produced by parsers.",
		}, []string{"source_id"}),
		messagesPrepared: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "feedproxy_messages_prepared_total",
			Help: "Count of messages materialized into the outbox.",
		}, []string{"source_id", "receiver_id"}),
		messagesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "feedproxy_messages_sent_total",
			Help: "Count of messages delivered to receivers.",
		}, []string{"source_id", "receiver_id"}),
	}

	start := time.Now()
	uptime := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "feedproxy_uptime_seconds",
		Help: "Seconds since the process started.",
	}, func() float64 {
		return time.Since(start).Seconds()
	})

	registry.MustRegister(m.sourcesFetched, m.postsParsed, m.messagesPrepared, m.messagesSent, uptime)
	return m
}

// IncSourcesFetched implements Metrics.
func (m *PrometheusMetrics) IncSourcesFetched(sourceID, status string) {
	m.sourcesFetched.WithLabelValues(sourceID, status).Inc()
}

// IncPostsParsed implements Metrics.
func (m *PrometheusMetrics) IncPostsParsed(sourceID string, count int) {
	m.postsParsed.WithLabelValues(sourceID).Add(float64(count))
}

// IncMessagesPrepared implements Metrics.
func (m *PrometheusMetrics) IncMessagesPrepared(sourceID, receiverID string, count int) {
	m.messagesPrepared.WithLabelValues(sourceID, receiverID).Add(float64(count))
}

// IncMessagesSent implements Metrics.
func (m *PrometheusMetrics) IncMessagesSent(sourceID, receiverID string, count int) {
	m.messagesSent.WithLabelValues(sourceID, receiverID).Add(float64(count))
}
