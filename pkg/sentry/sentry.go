// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

// Package sentry reports crashes and errors of the proxy process.
package sentry

import (
	"fmt"
	"time"

	sentrygo "github.com/getsentry/sentry-go"

	"github.com/feedproxy/feedproxy/pkg/util/log"
)

const flushTimeout = 2 * time.Second

// Setup initializes error reporting. An empty dsn disables it with a warning,
// so local runs don't need a Sentry project.
func Setup(dsn string) error {
	if dsn == "" {
		log.Warnf("Sentry DSN is not set")
		return nil
	}
	err := sentrygo.Init(sentrygo.ClientOptions{
		Dsn: dsn,
	})
	if err != nil {
		return fmt.Errorf("init sentry: %w", err)
	}
	return nil
}

// Flush drains pending events, called on shutdown.
func Flush() {
	sentrygo.Flush(flushTimeout)
}

// CaptureErr forwards err to Sentry and returns it unchanged.
func CaptureErr(err error) error {
	if err == nil {
		return nil
	}
	sentrygo.CaptureException(err)
	return err
}
