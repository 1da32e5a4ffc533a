// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

// Package log exposes the process-wide logger used by every component. It is a
// thin wrapper around zap's sugared logger so that call sites only deal with
// printf-style helpers.
package log

import (
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	mu     sync.RWMutex
	logger *zap.SugaredLogger = newDefaultLogger()
)

func newDefaultLogger() *zap.SugaredLogger {
	l, _ := zap.NewProduction()
	return l.Sugar()
}

// SetupLogger replaces the process logger with one configured at the given
// level. Unknown levels fall back to info.
func SetupLogger(level string) error {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(parseLevel(level))
	cfg.Encoding = "console"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	l, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		return err
	}

	mu.Lock()
	defer mu.Unlock()
	logger = l.Sugar()
	return nil
}

func parseLevel(level string) zapcore.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zapcore.DebugLevel
	case "info":
		return zapcore.InfoLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

func get() *zap.SugaredLogger {
	mu.RLock()
	defer mu.RUnlock()
	return logger
}

// Debugf logs at the debug level.
func Debugf(format string, params ...interface{}) {
	get().Debugf(format, params...)
}

// Infof logs at the info level.
func Infof(format string, params ...interface{}) {
	get().Infof(format, params...)
}

// Warnf logs at the warn level and returns the formatted message as an error
// so that call sites can both log and propagate.
func Warnf(format string, params ...interface{}) error {
	get().Warnf(format, params...)
	return fmt.Errorf(format, params...)
}

// Errorf logs at the error level and returns the formatted message as an
// error so that call sites can both log and propagate.
func Errorf(format string, params ...interface{}) error {
	get().Errorf(format, params...)
	return fmt.Errorf(format, params...)
}

// Flush flushes any buffered log entries.
func Flush() {
	_ = get().Sync()
}
