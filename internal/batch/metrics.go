package batch

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var meter = otel.Meter("crystalsignal.batch")

var (
	updatesQueued   metric.Int64Counter
	updatesRejected metric.Int64Counter
	updatesExecuted metric.Int64Counter
	updatesDropped  metric.Int64Counter
	drainLatency    metric.Float64Histogram

	metricsOnce sync.Once
	metricsErr  error
)

// initMetrics initializes the instruments once; later calls return the
// first error, if any.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		updatesQueued, err = meter.Int64Counter(
			"batch_updates_queued_total",
			metric.WithDescription("Total number of updates accepted by batch queues"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		updatesRejected, err = meter.Int64Counter(
			"batch_updates_rejected_total",
			metric.WithDescription("Total number of updates rejected because a queue was full"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		updatesExecuted, err = meter.Int64Counter(
			"batch_updates_executed_total",
			metric.WithDescription("Total number of queued updates executed"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		updatesDropped, err = meter.Int64Counter(
			"batch_updates_discarded_total",
			metric.WithDescription("Total number of queued updates discarded without running"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		drainLatency, err = meter.Float64Histogram(
			"batch_drain_duration_seconds",
			metric.WithDescription("Duration of executing one drained batch"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

func recordQueued(capacity int) {
	if err := initMetrics(); err != nil {
		return
	}
	updatesQueued.Add(context.Background(), 1,
		metric.WithAttributes(attribute.Int("batch.capacity", capacity)),
	)
}

func recordRejected(capacity int) {
	if err := initMetrics(); err != nil {
		return
	}
	updatesRejected.Add(context.Background(), 1,
		metric.WithAttributes(attribute.Int("batch.capacity", capacity)),
	)
}

func recordDiscarded(n int) {
	if n == 0 {
		return
	}
	if err := initMetrics(); err != nil {
		return
	}
	updatesDropped.Add(context.Background(), int64(n))
}

func recordDrain(n int, duration time.Duration, reason string) {
	if n == 0 {
		return
	}
	if err := initMetrics(); err != nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("batch.reason", reason))
	updatesExecuted.Add(context.Background(), int64(n), attrs)
	drainLatency.Record(context.Background(), duration.Seconds(), attrs)
}
