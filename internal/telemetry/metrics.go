package telemetry

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// InitMeterProvider initializes the Prometheus exporter and MeterProvider.
// It returns an http.Handler for the /metrics endpoint and a shutdown function.
func InitMeterProvider(serviceName, serviceVersion string) (http.Handler, func(context.Context) error, error) {
	exporter, err := prometheus.New()
	if err != nil {
		return nil, nil, err
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(exporter),
		sdkmetric.WithResource(newResource(serviceName, serviceVersion)),
	)
	otel.SetMeterProvider(mp)

	return promhttp.Handler(), mp.Shutdown, nil
}

// Metrics holds the storefront's own instruments. A nil *Metrics is valid
// and records nothing, so tests and minimal setups can skip metering.
type Metrics struct {
	cartMutations metric.Int64Counter
	ordersPlaced  metric.Int64Counter
	renderSeconds metric.Float64Histogram
}

func NewMetrics() (*Metrics, error) {
	meter := otel.Meter("storefront")

	cartMutations, err := meter.Int64Counter("storefront.cart.mutations",
		metric.WithDescription("Cart mutations issued against the marketplace API, by operation and outcome"),
	)
	if err != nil {
		return nil, err
	}

	ordersPlaced, err := meter.Int64Counter("storefront.orders.placed",
		metric.WithDescription("Orders successfully created through checkout"),
	)
	if err != nil {
		return nil, err
	}

	renderSeconds, err := meter.Float64Histogram("storefront.page.render.duration",
		metric.WithDescription("Page render duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{
		cartMutations: cartMutations,
		ordersPlaced:  ordersPlaced,
		renderSeconds: renderSeconds,
	}, nil
}

func (m *Metrics) RecordCartMutation(ctx context.Context, op string, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.cartMutations.Add(ctx, 1, metric.WithAttributes(
		attribute.String("operation", op),
		attribute.String("outcome", outcome),
	))
}

func (m *Metrics) RecordOrderPlaced(ctx context.Context, fromCart bool) {
	if m == nil {
		return
	}
	m.ordersPlaced.Add(ctx, 1, metric.WithAttributes(
		attribute.Bool("from_cart", fromCart),
	))
}

func (m *Metrics) RecordPageRender(ctx context.Context, page string, d time.Duration) {
	if m == nil {
		return
	}
	m.renderSeconds.Record(ctx, d.Seconds(), metric.WithAttributes(
		attribute.String("page", page),
	))
}
