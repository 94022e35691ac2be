package tracing

import (
	"context"
	"errors"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/jaeger"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// ErrEndpointRequired возвращается, если трейсинг включён без адреса коллектора.
var ErrEndpointRequired = errors.New("tracing endpoint is required")

// InitTracerProvider создаёт TracerProvider с экспортом в Jaeger и делает его глобальным.
func InitTracerProvider(serviceName, endpoint string, logger *log.Entry) (*sdktrace.TracerProvider, error) {
	if endpoint == "" {
		return nil, ErrEndpointRequired
	}
	if logger == nil {
		logger = log.New().WithField("component", "tracing")
	}

	exporter, err := jaeger.New(jaeger.WithCollectorEndpoint(jaeger.WithEndpoint(endpoint)))
	if err != nil {
		return nil, err
	}

	tp := NewTracerProvider(serviceName, sdktrace.WithBatcher(exporter))

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))

	logger.WithFields(log.Fields{
		"service":  serviceName,
		"endpoint": endpoint,
	}).Info("tracing initialized")
	return tp, nil
}

// NewTracerProvider собирает provider с ресурсом сервиса; опции задают экспорт.
func NewTracerProvider(serviceName string, opts ...sdktrace.TracerProviderOption) *sdktrace.TracerProvider {
	base := []sdktrace.TracerProviderOption{
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceNameKey.String(serviceName),
		)),
	}
	return sdktrace.NewTracerProvider(append(base, opts...)...)
}

// Shutdown сбрасывает накопленные спаны; nil provider допустим.
func Shutdown(ctx context.Context, tp *sdktrace.TracerProvider) error {
	if tp == nil {
		return nil
	}
	return tp.Shutdown(ctx)
}
