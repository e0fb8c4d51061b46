// Copyright (c) 2025 Karl Gaissmaier
// SPDX-License-Identifier: MIT

package tamra

import (
	"context"
	"os"
	"strconv"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// tracerName is the instrumentation scope every manager span is recorded
// under.
const tracerName = "github.com/tamra-mesh/tamra"

// ShutdownFunc releases the resources a telemetry Init call allocated.
type ShutdownFunc func(ctx context.Context) error

func noopShutdown(context.Context) error { return nil }

// InitTelemetry wires a global OpenTelemetry TracerProvider from
// environment variables, mirroring the TAMRA_OTEL_* family below. If
// TAMRA_OTEL_ENABLED isn't "true" it leaves the default no-op provider in
// place, so manager spans are free when tracing isn't configured.
//
//	TAMRA_OTEL_ENABLED          - enable exporting (default: false)
//	TAMRA_OTEL_ENDPOINT         - OTLP/gRPC collector endpoint
//	TAMRA_OTEL_INSECURE         - use an insecure gRPC connection (default: false)
func InitTelemetry(ctx context.Context) (ShutdownFunc, error) {
	if enabled, _ := strconv.ParseBool(os.Getenv("TAMRA_OTEL_ENABLED")); !enabled {
		return noopShutdown, nil
	}

	var opts []otlptracegrpc.Option
	if endpoint := os.Getenv("TAMRA_OTEL_ENDPOINT"); endpoint != "" {
		opts = append(opts, otlptracegrpc.WithEndpoint(endpoint))
	}
	if insecure, _ := strconv.ParseBool(os.Getenv("TAMRA_OTEL_INSECURE")); insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}

	exporter, err := otlptracegrpc.New(ctx, opts...)
	if err != nil {
		return noopShutdown, err
	}

	tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exporter))
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return func(ctx context.Context) error { return tp.Shutdown(ctx) }, nil
}

func tracer() trace.Tracer { return otel.Tracer(tracerName) }

// startSpan opens a span for one manager operation; callers defer span.End().
func startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return tracer().Start(ctx, name, trace.WithAttributes(attrs...))
}
