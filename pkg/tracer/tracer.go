package tracer

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
)

// Options 描述上报链路时附带的服务信息
type Options struct {
	ServiceName string
	Version     string
	Environment string
	// OriginVillage 发货地的村级行政区代码，运费和链路排查时对照用
	OriginVillage string
	// SampleRatio 根 span 采样比例，<=0 或 >=1 时全量采样
	SampleRatio float64
}

func newResource(ctx context.Context, o Options) (*resource.Resource, error) {
	attrs := []attribute.KeyValue{
		semconv.ServiceNameKey.String(o.ServiceName),
		attribute.String("component", "storefront"),
	}
	if o.Version != "" {
		attrs = append(attrs, semconv.ServiceVersionKey.String(o.Version))
	}
	if o.Environment != "" {
		attrs = append(attrs, semconv.DeploymentEnvironmentKey.String(o.Environment))
	}
	if o.OriginVillage != "" {
		attrs = append(attrs, attribute.String("shop.origin_village_code", o.OriginVillage))
	}
	return resource.New(ctx, resource.WithAttributes(attrs...))
}

func newSampler(ratio float64) sdktrace.Sampler {
	if ratio <= 0 || ratio >= 1 {
		return sdktrace.ParentBased(sdktrace.AlwaysSample())
	}
	return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))
}

// InitTracer 初始化全局 Tracer
// endpoint: OTLP HTTP 地址 (通常是 jaeger:4318)
func InitTracer(endpoint string, o Options) (*sdktrace.TracerProvider, error) {
	ctx := context.Background()

	exporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpoint(endpoint),
		otlptracehttp.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("creating OTLP trace exporter: %w", err)
	}

	res, err := newResource(ctx, o)
	if err != nil {
		return nil, fmt.Errorf("creating resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(newSampler(o.SampleRatio)),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return tp, nil
}
