// Licensed to the Apache Software Foundation (ASF) under one
// or more contributor license agreements.  See the NOTICE file
// distributed with this work for additional information
// regarding copyright ownership.  The ASF licenses this file
// to you under the Apache License, Version 2.0 (the
// "License"); you may not use this file except in compliance
// with the License.  You may obtain a copy of the License at
//
//   http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing,
// software distributed under the License is distributed on an
// "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY
// KIND, either express or implied.  See the License for the
// specific language governing permissions and limitations
// under the License.

package driverbase

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/dqlite-dbapi/go/dbapi"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.30.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const (
	driverNamespace    = "dqlite.dbapi"
	otelTracesExporter = "OTEL_TRACES_EXPORTER"
)

type traceExporterType int

const (
	TraceExporterNone traceExporterType = iota
	TraceExporterOtlp
	TraceExporterConsole
	TraceExporterFile
)

var traceExporterNames = map[string]traceExporterType{
	"none":      TraceExporterNone,
	"otlp":      TraceExporterOtlp,
	"console":   TraceExporterConsole,
	"dbapifile": TraceExporterFile,
}

func (te traceExporterType) String() string {
	return [...]string{"none", "otlp", "console", "dbapifile"}[te]
}

const (
	MessageOtelTracesExporterUnknown = "Unknown " + otelTracesExporter + " option"
	MessageNoOtelTracesExporters     = "No trace exporters added"
)

var getExporterName = sync.OnceValue(func() string {
	return os.Getenv(otelTracesExporter)
})

func nilLogger() *slog.Logger { return slog.New(slog.DiscardHandler) }

func nilTracer() trace.Tracer { return noop.NewTracerProvider().Tracer("") }

// Base carries the logging and tracing state shared by a connection and
// its cursors. Its methods are safe for concurrent use.
type Base struct {
	ErrorHelper ErrorHelper
	DriverInfo  *DriverInfo

	mu                 sync.RWMutex
	logger             *slog.Logger
	tracer             trace.Tracer
	traceParent        string
	tracerShutdownFunc func(context.Context) error
}

// NewBase returns a Base for the named driver. If provider is nil the
// tracer is configured from the OTEL_TRACES_EXPORTER environment
// variable; otherwise spans go to provider.
func NewBase(ctx context.Context, driverName string, provider trace.TracerProvider) (*Base, error) {
	base := &Base{
		ErrorHelper: ErrorHelper{DriverName: driverName},
		DriverInfo:  DefaultDriverInfo(driverName),
		logger:      nilLogger(),
		tracer:      nilTracer(),
	}
	if provider != nil {
		base.tracer = provider.Tracer(driverNamespace+"."+driverName,
			trace.WithInstrumentationVersion(base.DriverInfo.GetDriverVersion()),
			trace.WithSchemaURL(semconv.SchemaURL))
		return base, nil
	}
	if err := base.initTracing(ctx, getExporterName()); err != nil {
		return nil, err
	}
	return base, nil
}

// Logger returns the current logger. It is never nil.
func (b *Base) Logger() *slog.Logger {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.logger
}

// SetLogger replaces the logger. A nil logger discards everything.
func (b *Base) SetLogger(logger *slog.Logger) {
	if logger == nil {
		logger = nilLogger()
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.logger = logger
}

func (b *Base) Tracer() trace.Tracer {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.tracer
}

func (b *Base) GetTraceParent() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.traceParent
}

func (b *Base) SetTraceParent(traceParent string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.traceParent = traceParent
}

func (b *Base) GetInitialSpanAttributes() []attribute.KeyValue {
	return b.DriverInfo.Attributes()
}

// StartSpan starts a span named spanName. If ctx carries no span and a
// trace parent is set, the new span is parented to it.
func (b *Base) StartSpan(ctx context.Context, spanName string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	ctx = maybeAddTraceParent(ctx, b.GetTraceParent())
	opts = append(opts, trace.WithAttributes(b.GetInitialSpanAttributes()...))
	return b.Tracer().Start(ctx, spanName, opts...)
}

// Close flushes and shuts down a tracer provider created from the
// environment.
func (b *Base) Close() (err error) {
	b.mu.Lock()
	shutdown := b.tracerShutdownFunc
	b.tracerShutdownFunc = nil
	b.mu.Unlock()
	if shutdown != nil {
		err = shutdown(context.Background())
	}
	return
}

func maybeAddTraceParent(ctx context.Context, traceParent string) context.Context {
	if traceParent == "" || trace.SpanContextFromContext(ctx).IsValid() {
		return ctx
	}
	carrier := propagation.MapCarrier{"traceparent": traceParent}
	return propagation.TraceContext{}.Extract(ctx, carrier)
}

func (b *Base) initTracing(ctx context.Context, exporterName string) error {
	fullyQualifiedDriverName := driverNamespace + "." + b.ErrorHelper.DriverName

	if exporterName == "" {
		b.tracer = otel.Tracer(fullyQualifiedDriverName)
		return nil
	}

	exporters, exporterType, err := b.getExporters(ctx, exporterName)
	if err != nil {
		return err
	}
	if exporterType == TraceExporterNone {
		return nil
	}
	if len(exporters) < 1 {
		return b.ErrorHelper.Errorf(dbapi.StatusInvalidState, "%s '%s'",
			MessageNoOtelTracesExporters, exporterType)
	}

	provider, err := newTracerProvider(exporters...)
	if err != nil {
		return err
	}
	b.tracerShutdownFunc = provider.Shutdown
	b.tracer = provider.Tracer(fullyQualifiedDriverName,
		trace.WithInstrumentationVersion(b.DriverInfo.GetDriverVersion()),
		trace.WithSchemaURL(semconv.SchemaURL))
	return nil
}

func (b *Base) getExporters(ctx context.Context, exporterName string) ([]sdktrace.SpanExporter, traceExporterType, error) {
	exporterType, ok := traceExporterNames[strings.ToLower(strings.TrimSpace(exporterName))]
	if !ok {
		return nil, TraceExporterNone, b.ErrorHelper.Errorf(dbapi.StatusInvalidArgument, "%s '%s'",
			MessageOtelTracesExporterUnknown, exporterName)
	}

	switch exporterType {
	case TraceExporterConsole:
		exporter, err := stdouttrace.New()
		if err != nil {
			return nil, exporterType, err
		}
		return []sdktrace.SpanExporter{exporter}, exporterType, nil
	case TraceExporterOtlp:
		exporters, err := newOtlpTraceExporters(ctx)
		return exporters, exporterType, err
	case TraceExporterFile:
		exporter, err := newFileExporter(b.ErrorHelper.DriverName)
		if err != nil {
			return nil, exporterType, err
		}
		return []sdktrace.SpanExporter{exporter}, exporterType, nil
	}
	return nil, exporterType, nil
}

func newOtlpTraceExporters(ctx context.Context) ([]sdktrace.SpanExporter, error) {
	// Endpoints and headers come from the standard OTEL_EXPORTER_OTLP_*
	// environment variables.
	grpcExporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithRetry(otlptracegrpc.RetryConfig{
			Enabled:         true,
			InitialInterval: 5 * time.Second,
			MaxInterval:     30 * time.Second,
		}),
	)
	if err != nil {
		return nil, err
	}
	httpExporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithRetry(otlptracehttp.RetryConfig{
			Enabled:         true,
			InitialInterval: 5 * time.Second,
			MaxInterval:     30 * time.Second,
		}),
	)
	if err != nil {
		return nil, err
	}
	return []sdktrace.SpanExporter{grpcExporter, httpExporter}, nil
}

func newFileExporter(driverName string) (*stdouttrace.Exporter, error) {
	prefix := strings.ToLower(driverNamespace + "." + driverName)
	fileWriter, err := NewRotatingFileWriter(WithLogNamePrefix(prefix))
	if err != nil {
		return nil, err
	}
	return stdouttrace.New(stdouttrace.WithWriter(fileWriter))
}

func newTracerProvider(exporters ...sdktrace.SpanExporter) (*sdktrace.TracerProvider, error) {
	ours := resource.NewWithAttributes(semconv.SchemaURL, semconv.ServiceName(driverNamespace))
	tracerResource, err := resource.Merge(resource.Default(), ours)
	if err != nil {
		if !errors.Is(err, resource.ErrSchemaURLConflict) {
			return nil, err
		}
		tracerResource = ours
	}

	opts := []sdktrace.TracerProviderOption{sdktrace.WithResource(tracerResource)}
	for _, exporter := range exporters {
		opts = append(opts, sdktrace.WithBatcher(exporter))
	}
	return sdktrace.NewTracerProvider(opts...), nil
}
