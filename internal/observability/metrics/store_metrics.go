package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

// ReadingCounter reports how many readings are stored.
type ReadingCounter interface {
	Count(ctx context.Context) (int64, error)
}

func registerStoreMetrics(counter ReadingCounter, logger logrus.FieldLogger) {
	prometheus.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: metricPrefix + "readings_stored",
			Help: "Readings persisted in the store",
		},
		func() float64 {
			return queryCount(counter, logger)
		},
	))
}

func queryCount(counter ReadingCounter, logger logrus.FieldLogger) float64 {
	if counter == nil {
		return 0
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	count, err := counter.Count(ctx)
	if err != nil {
		if logger != nil {
			logger.WithError(err).Warn("metrics query failed")
		}
		return 0
	}
	if count < 0 {
		return 0
	}
	return float64(count)
}
