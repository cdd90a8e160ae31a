// Package telemetry sets up the OpenTelemetry tracer provider. Without an OTLP
// endpoint spans are still recorded but go nowhere.
package telemetry

import (
	"context"
	"net/url"
	"strings"

	"github.com/lewismc/earthdata-search/internal/errors"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.39.0"
)

type Tracing struct {
	TracerProvider *sdktrace.TracerProvider
	Shutdown       func(context.Context) error
}

// NewTracing builds a tracer provider exporting to endpoint over OTLP/gRPC.
// endpoint may be host:port or a URL; only the host is used.
func NewTracing(ctx context.Context, endpoint, serviceName string) (*Tracing, error) {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		tp := sdktrace.NewTracerProvider()
		return &Tracing{TracerProvider: tp, Shutdown: tp.Shutdown}, nil
	}

	if !strings.Contains(endpoint, "://") {
		endpoint = "http://" + endpoint
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, errors.Wrapf(err, "[telemetry.NewTracing] invalid endpoint %q", endpoint)
	}
	if u.Host == "" {
		return nil, errors.New("[telemetry.NewTracing] endpoint has no host")
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(semconv.SchemaURL, semconv.ServiceNameKey.String(serviceName)),
	)
	if err != nil {
		return nil, errors.Wrapf(err, "[telemetry.NewTracing] resource")
	}

	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(u.Host)}
	if u.Scheme != "https" {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}
	exporter, err := otlptracegrpc.New(ctx, opts...)
	if err != nil {
		return nil, errors.Wrapf(err, "[telemetry.NewTracing] exporter")
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	log.Info().Str("endpoint", u.Host).Msg("exporting traces")
	return &Tracing{TracerProvider: tp, Shutdown: tp.Shutdown}, nil
}

// SetGlobal installs the provider for otel.Tracer callers.
func (t *Tracing) SetGlobal() {
	otel.SetTracerProvider(t.TracerProvider)
}
