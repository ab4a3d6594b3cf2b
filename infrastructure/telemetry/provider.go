package telemetry

import (
	"context"
	"errors"
	"fmt"
	"io"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/felixgeelhaar/promote/domain/config"
)

// DefaultServiceName is reported when the configuration names none.
const DefaultServiceName = "promote"

// ErrUnknownExporter is returned for an unsupported exporter name.
var ErrUnknownExporter = errors.New("telemetry: unknown exporter")

// Options tune Setup beyond the configuration file.
type Options struct {
	// Version is reported as service.version.
	Version string

	// Output receives stdout spans. Nil means os.Stdout.
	Output io.Writer

	// MetricReaders are attached to the meter provider.
	MetricReaders []sdkmetric.Reader
}

// Provider owns the tracer and meter providers.
type Provider struct {
	tracerProvider trace.TracerProvider
	meterProvider  *sdkmetric.MeterProvider
	shutdownFuncs  []func(context.Context) error
}

// Setup builds the providers described by cfg and installs them globally.
func Setup(ctx context.Context, cfg config.TelemetryConfig, opts Options) (*Provider, error) {
	name := cfg.ServiceName
	if name == "" {
		name = DefaultServiceName
	}

	res := resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(name),
		semconv.ServiceVersion(opts.Version),
	)

	p := &Provider{}

	mopts := []sdkmetric.Option{sdkmetric.WithResource(res)}
	for _, r := range opts.MetricReaders {
		mopts = append(mopts, sdkmetric.WithReader(r))
	}
	p.meterProvider = sdkmetric.NewMeterProvider(mopts...)
	p.shutdownFuncs = append(p.shutdownFuncs, p.meterProvider.Shutdown)

	var exporter sdktrace.SpanExporter
	switch cfg.Exporter {
	case "", config.ExporterNone:
		p.tracerProvider = noop.NewTracerProvider()

	case config.ExporterStdout:
		seopts := []stdouttrace.Option{stdouttrace.WithPrettyPrint()}
		if opts.Output != nil {
			seopts = append(seopts, stdouttrace.WithWriter(opts.Output))
		}
		exp, err := stdouttrace.New(seopts...)
		if err != nil {
			return nil, err
		}
		exporter = exp

	case config.ExporterOTLP:
		gopts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.Endpoint)}
		if cfg.Insecure {
			gopts = append(gopts,
				otlptracegrpc.WithInsecure(),
				otlptracegrpc.WithDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
			)
		}
		exp, err := otlptracegrpc.New(ctx, gopts...)
		if err != nil {
			return nil, err
		}
		exporter = exp

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownExporter, cfg.Exporter)
	}

	if exporter != nil {
		tp := sdktrace.NewTracerProvider(
			sdktrace.WithBatcher(exporter),
			sdktrace.WithResource(res),
			sdktrace.WithSampler(sdktrace.AlwaysSample()),
		)
		p.tracerProvider = tp
		p.shutdownFuncs = append(p.shutdownFuncs, tp.Shutdown)
	}

	otel.SetTracerProvider(p.tracerProvider)
	otel.SetMeterProvider(p.meterProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return p, nil
}

// TracerProvider returns the installed tracer provider.
func (p *Provider) TracerProvider() trace.TracerProvider {
	return p.tracerProvider
}

// MeterProvider returns the installed meter provider.
func (p *Provider) MeterProvider() metric.MeterProvider {
	return p.meterProvider
}

// Shutdown flushes pending telemetry and stops the exporters.
func (p *Provider) Shutdown(ctx context.Context) error {
	var errs []error
	for _, fn := range p.shutdownFuncs {
		if err := fn(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
