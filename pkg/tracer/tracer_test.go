package tracer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
	"go.opentelemetry.io/otel/trace"
)

func TestNewResourceAttributes(t *testing.T) {
	res, err := newResource(context.Background(), Options{
		ServiceName:   "oldmarket-gateway",
		Version:       "1.4.0",
		Environment:   "staging",
		OriginVillage: "3173011001",
	})
	require.NoError(t, err)

	set := res.Set()
	v, ok := set.Value(semconv.ServiceNameKey)
	require.True(t, ok)
	assert.Equal(t, "oldmarket-gateway", v.AsString())
	v, ok = set.Value(semconv.ServiceVersionKey)
	require.True(t, ok)
	assert.Equal(t, "1.4.0", v.AsString())
	v, ok = set.Value(semconv.DeploymentEnvironmentKey)
	require.True(t, ok)
	assert.Equal(t, "staging", v.AsString())
	v, ok = set.Value(attribute.Key("shop.origin_village_code"))
	require.True(t, ok)
	assert.Equal(t, "3173011001", v.AsString())
}

func TestNewResourceSkipsEmpty(t *testing.T) {
	res, err := newResource(context.Background(), Options{ServiceName: "svc"})
	require.NoError(t, err)

	_, ok := res.Set().Value(semconv.ServiceVersionKey)
	assert.False(t, ok)
	_, ok = res.Set().Value(semconv.DeploymentEnvironmentKey)
	assert.False(t, ok)
}

func TestNewSampler(t *testing.T) {
	params := sdktrace.SamplingParameters{
		ParentContext: context.Background(),
		TraceID:       trace.TraceID{
			0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff,
			0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff,
		},
		Name:          "checkout",
	}
	assert.Equal(t, sdktrace.RecordAndSample, newSampler(0).ShouldSample(params).Decision)
	assert.Equal(t, sdktrace.RecordAndSample, newSampler(1).ShouldSample(params).Decision)
	// 全 1 的 TraceID 落在比例之外
	assert.Equal(t, sdktrace.Drop, newSampler(0.01).ShouldSample(params).Decision)
}
