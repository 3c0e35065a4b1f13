// fleetsupervisor - node-local service supervisor and versioned deployment controller
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetsupervisor

package logging

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type contextKey string

const (
	// operationIDKey tags every call issued through a fan-out (one ID per
	// start/stop/restart/status invocation, spanning all of that verb's
	// per-service workers; see internal/orchestrator's fanOut).
	operationIDKey contextKey = "operation_id"

	// serviceNameKey tags the service a fan-out worker goroutine is
	// currently acting on.
	serviceNameKey contextKey = "service"

	loggerKey contextKey = "logger"
)

// GenerateOperationID returns a short identifier for one fan-out
// invocation, used to correlate every per-service log line it produces.
func GenerateOperationID() string {
	return uuid.New().String()[:8]
}

// ContextWithOperationID attaches an operation ID to ctx.
func ContextWithOperationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, operationIDKey, id)
}

// ContextWithNewOperationID attaches a freshly generated operation ID to ctx.
func ContextWithNewOperationID(ctx context.Context) context.Context {
	return ContextWithOperationID(ctx, GenerateOperationID())
}

// OperationIDFromContext returns the operation ID carried by ctx, or "" if none.
func OperationIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(operationIDKey).(string); ok {
		return id
	}
	return ""
}

// ContextWithServiceName attaches the name of the service currently being
// acted on to ctx.
func ContextWithServiceName(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, serviceNameKey, name)
}

// ServiceNameFromContext returns the service name carried by ctx, or "" if none.
func ServiceNameFromContext(ctx context.Context) string {
	if name, ok := ctx.Value(serviceNameKey).(string); ok {
		return name
	}
	return ""
}

// ContextWithLogger stores a pre-configured logger in ctx.
//
//nolint:gocritic // zerolog.Logger is designed to be passed by value
func ContextWithLogger(ctx context.Context, logger zerolog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, logger)
}

// LoggerFromContext returns the logger stored in ctx, or the global logger
// if none was stored.
func LoggerFromContext(ctx context.Context) zerolog.Logger {
	if logger, ok := ctx.Value(loggerKey).(zerolog.Logger); ok {
		return logger
	}
	return Logger()
}

// Ctx returns a logger tagged with ctx's operation ID and service name, for
// use inside a fan-out worker.
//
//	logging.Ctx(ctx).Info().Msg("restart requested")
func Ctx(ctx context.Context) *zerolog.Logger {
	logger := CtxWith(ctx).Logger()
	return &logger
}

// CtxWith returns a logger-context builder pre-populated with ctx's
// operation ID and service name, for callers that need to add more fields.
func CtxWith(ctx context.Context) zerolog.Context {
	logCtx := LoggerFromContext(ctx).With()
	if opID := OperationIDFromContext(ctx); opID != "" {
		logCtx = logCtx.Str("operation_id", opID)
	}
	if svc := ServiceNameFromContext(ctx); svc != "" {
		logCtx = logCtx.Str("service", svc)
	}
	return logCtx
}

// CtxInfo is shorthand for Ctx(ctx).Info().
func CtxInfo(ctx context.Context) *zerolog.Event {
	return Ctx(ctx).Info()
}

// CtxWarn is shorthand for Ctx(ctx).Warn().
func CtxWarn(ctx context.Context) *zerolog.Event {
	return Ctx(ctx).Warn()
}

// CtxErr is shorthand for Ctx(ctx).Err(err).
func CtxErr(ctx context.Context, err error) *zerolog.Event {
	return Ctx(ctx).Err(err)
}

// WithComponent creates a child logger tagged with a component field.
//
//	installerLog := logging.WithComponent("installer")
func WithComponent(component string) zerolog.Logger {
	return With().Str("component", component).Logger()
}
