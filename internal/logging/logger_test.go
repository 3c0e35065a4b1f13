// fleetsupervisor - node-local service supervisor and versioned deployment controller
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetsupervisor

package logging

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/rs/zerolog"
)

func TestDefaultConfig(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()

	assert.Equal(t, "info", cfg.Level)
	assert.Equal(t, "json", cfg.Format)
	assert.False(t, cfg.Caller)
	assert.True(t, cfg.Timestamp)
}

func TestInitWritesJSON(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: "debug", Format: "json", Timestamp: true, Output: &buf})

	Info().Str("service", "web").Msg("service started")

	output := buf.String()
	assert.Contains(t, output, "service started")
	assert.Contains(t, output, `"level":"info"`)
	assert.Contains(t, output, `"service":"web"`)
}

func TestInitConsoleFormatOmitsJSON(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: "info", Format: "console", Timestamp: false, Output: &buf})

	Info().Msg("console test")

	assert.NotContains(t, buf.String(), `"level"`)
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected zerolog.Level
	}{
		{"trace", zerolog.TraceLevel},
		{"debug", zerolog.DebugLevel},
		{"info", zerolog.InfoLevel},
		{"warn", zerolog.WarnLevel},
		{"warning", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"fatal", zerolog.FatalLevel},
		{"panic", zerolog.PanicLevel},
		{"disabled", zerolog.Disabled},
		{"INFO", zerolog.InfoLevel},
		{"invalid", zerolog.InfoLevel},
		{"", zerolog.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.expected, parseLevel(tt.input))
		})
	}
}

func TestLogLevelsAppearInOutput(t *testing.T) {
	var buf bytes.Buffer
	SetLogger(zerolog.New(&buf).With().Timestamp().Logger())
	zerolog.SetGlobalLevel(zerolog.TraceLevel)

	tests := []struct {
		name    string
		logFunc func()
		level   string
	}{
		{"Debug", func() { Debug().Msg("debug msg") }, "debug"},
		{"Info", func() { Info().Msg("info msg") }, "info"},
		{"Warn", func() { Warn().Msg("warn msg") }, "warn"},
		{"Error", func() { Error().Msg("error msg") }, "error"},
	}

	for _, tt := range tests {
		buf.Reset()
		tt.logFunc()
		assert.Contains(t, buf.String(), tt.level)
	}
}

func TestWithAddsFields(t *testing.T) {
	var buf bytes.Buffer
	SetLogger(zerolog.New(&buf).With().Timestamp().Logger())

	logger := With().Str("component", "supervisor").Logger()
	logger.Info().Msg("component message")

	output := buf.String()
	assert.True(t, strings.Contains(output, "component"))
	assert.True(t, strings.Contains(output, "supervisor"))
}

func TestNewTestLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := NewTestLogger(&buf)
	logger.Info().Str("key", "value").Msg("test message")

	output := buf.String()
	assert.Contains(t, output, "test message")
	assert.Contains(t, output, "key")
	assert.Contains(t, output, "value")
}

func TestErrAttachesError(t *testing.T) {
	var buf bytes.Buffer
	SetLogger(zerolog.New(&buf))

	Err(&testError{msg: "disk full"}).Msg("backoff sleep failed")

	assert.Contains(t, buf.String(), "disk full")
}

type testError struct{ msg string }

func (e *testError) Error() string { return e.msg }
