// fleetsupervisor - node-local service supervisor and versioned deployment controller
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetsupervisor

package logging

import (
	"bytes"
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestGenerateOperationID(t *testing.T) {
	t.Parallel()

	id1 := GenerateOperationID()
	id2 := GenerateOperationID()

	assert.Len(t, id1, 8)
	assert.NotEqual(t, id1, id2)
}

func TestOperationIDContext(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	assert.Empty(t, OperationIDFromContext(ctx))

	ctx = ContextWithOperationID(ctx, "op-123")
	assert.Equal(t, "op-123", OperationIDFromContext(ctx))
}

func TestContextWithNewOperationID(t *testing.T) {
	t.Parallel()

	ctx := ContextWithNewOperationID(context.Background())
	assert.Len(t, OperationIDFromContext(ctx), 8)
}

func TestServiceNameContext(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	assert.Empty(t, ServiceNameFromContext(ctx))

	ctx = ContextWithServiceName(ctx, "web")
	assert.Equal(t, "web", ServiceNameFromContext(ctx))
}

func TestContextWithLogger(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	customLogger := zerolog.New(&buf).With().Str("custom", "field").Logger()

	ctx := ContextWithLogger(context.Background(), customLogger)
	LoggerFromContext(ctx).Info().Msg("test")

	assert.Contains(t, buf.String(), "custom")
}

func TestLoggerFromContextFallsBackToGlobal(t *testing.T) {
	t.Parallel()

	logger := LoggerFromContext(context.Background())
	assert.NotEqual(t, zerolog.Disabled, logger.GetLevel())
}

func TestCtxTagsOperationAndService(t *testing.T) {
	var buf bytes.Buffer
	SetLogger(zerolog.New(&buf))

	ctx := ContextWithOperationID(context.Background(), "op-abc")
	ctx = ContextWithServiceName(ctx, "web")

	Ctx(ctx).Info().Msg("restart requested")

	output := buf.String()
	assert.Contains(t, output, "op-abc")
	assert.Contains(t, output, "web")
}

func TestCtxWithAddsExtraFields(t *testing.T) {
	var buf bytes.Buffer
	SetLogger(zerolog.New(&buf))

	ctx := ContextWithOperationID(context.Background(), "op-xyz")
	logger := CtxWith(ctx).Str("extra", "field").Logger()
	logger.Info().Msg("ctxwith test")

	output := buf.String()
	assert.Contains(t, output, "op-xyz")
	assert.Contains(t, output, "extra")
}

func TestCtxShortcuts(t *testing.T) {
	var buf bytes.Buffer
	SetLogger(zerolog.New(&buf))
	zerolog.SetGlobalLevel(zerolog.DebugLevel)

	ctx := ContextWithServiceName(context.Background(), "db")

	tests := []struct {
		name    string
		logFunc func()
		level   string
	}{
		{"CtxInfo", func() { CtxInfo(ctx).Msg("info") }, "info"},
		{"CtxWarn", func() { CtxWarn(ctx).Msg("warn") }, "warn"},
	}

	for _, tt := range tests {
		buf.Reset()
		tt.logFunc()
		output := buf.String()
		assert.Contains(t, output, tt.level)
		assert.Contains(t, output, "db")
	}
}

func TestCtxErr(t *testing.T) {
	var buf bytes.Buffer
	SetLogger(zerolog.New(&buf))

	ctx := ContextWithServiceName(context.Background(), "web")
	CtxErr(ctx, &testError{msg: "crash looped"}).Msg("restart failed")

	output := buf.String()
	assert.Contains(t, output, "web")
	assert.Contains(t, output, "crash looped")
}

func TestWithComponent(t *testing.T) {
	var buf bytes.Buffer
	SetLogger(zerolog.New(&buf))

	WithComponent("installer").Info().Msg("version created")

	assert.Contains(t, buf.String(), "installer")
}
