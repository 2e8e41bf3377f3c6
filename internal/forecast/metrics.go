package forecast

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics records prediction outcomes. A nil *Metrics records nothing.
type Metrics struct {
	predictions metric.Int64Counter
	inference   metric.Float64Histogram
}

// NewMetrics creates the prediction instruments on meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	predictions, err := meter.Int64Counter(
		"aqicast.prediction.total",
		metric.WithDescription("Number of AQI predictions by method"),
		metric.WithUnit("{prediction}"),
	)
	if err != nil {
		return nil, err
	}

	inference, err := meter.Float64Histogram(
		"aqicast.model.inference.duration",
		metric.WithDescription("Duration of model inference calls in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{predictions: predictions, inference: inference}, nil
}

func (m *Metrics) recordPrediction(p Provenance, modelName string) {
	if m == nil {
		return
	}
	m.predictions.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("provenance", string(p)),
		attribute.String("model", modelName),
	))
}

func (m *Metrics) recordInference(d time.Duration, ok bool) {
	if m == nil {
		return
	}
	m.inference.Record(context.Background(), d.Seconds(), metric.WithAttributes(
		attribute.Bool("success", ok),
	))
}
