package otelx

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"github.com/aastar/faucet/internal/version"
	"github.com/aastar/faucet/internal/xerrors"
)

// dialTimeout bounds the exporter setup; the collector is a local agent.
const dialTimeout = 3 * time.Second

type Options struct {
	Enabled   bool
	Endpoint  string
	Insecure  bool
	Sample    float64
	Service   string // default version.AppName
	Component string // appended to Service, e.g. "aastar-faucet.server"
	Version   string // default version.Get().Version
	// Network tags spans with the chain they act on, e.g. "sepolia".
	Network string
}

func (o Options) withDefaults() Options {
	if o.Service == "" {
		o.Service = version.AppName
	}
	if o.Version == "" {
		o.Version = version.Get().Version
	}
	return o
}

func (o Options) serviceName() string {
	if o.Component == "" {
		return o.Service
	}
	return o.Service + "." + o.Component
}

// resourceAttributes identifies this process in the tracing backend. The
// deployment environment is the chain network so sepolia and a local devnet
// never share a service map.
func (o Options) resourceAttributes() []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		semconv.ServiceNameKey.String(o.serviceName()),
		semconv.ServiceVersionKey.String(o.Version),
	}
	if o.Network != "" {
		attrs = append(attrs, semconv.DeploymentEnvironmentKey.String(o.Network))
	}
	return attrs
}

func setPropagator() {
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{},
	))
}

// Init installs the global tracer provider and propagator. When tracing is
// disabled spans are still created (so trace headers and log correlation
// keep working) but nothing is exported.
func Init(ctx context.Context, o Options) (func(context.Context) error, error) {
	o = o.withDefaults()
	setPropagator()

	if !o.Enabled {
		otel.SetTracerProvider(sdktrace.NewTracerProvider())
		return func(context.Context) error { return nil }, nil
	}

	opts := []otlptracegrpc.Option{
		otlptracegrpc.WithEndpoint(o.Endpoint),
	}
	if o.Insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}

	dialCtx, dialCancel := context.WithTimeout(ctx, dialTimeout)
	defer dialCancel()
	exp, err := otlptracegrpc.New(dialCtx, opts...)
	if err != nil {
		return nil, xerrors.Wrapf(err, "otlp exporter %s", o.Endpoint)
	}

	res, _ := resource.New(ctx,
		resource.WithFromEnv(),
		resource.WithProcess(),
		resource.WithOS(),
		resource.WithHost(),
		resource.WithAttributes(o.resourceAttributes()...),
	)

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.ParentBased(
			sdktrace.TraceIDRatioBased(o.Sample),
		)),
		sdktrace.WithBatcher(exp,
			sdktrace.WithMaxQueueSize(2048),
			sdktrace.WithBatchTimeout(5*time.Second),
		),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	return tp.Shutdown, nil
}
