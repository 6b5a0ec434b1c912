package bridge

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/juanpa-corral/codigoIoTFinalSolution/internal/observability/metrics"
	telemetry "github.com/juanpa-corral/codigoIoTFinalSolution/internal/telemetry/domain"
)

// DefaultResyncInterval is the pause between resync ticks.
const DefaultResyncInterval = 30 * time.Second

// ResyncLoop periodically republishes the latest stored reading and reruns the
// alert pipeline on it.
type ResyncLoop struct {
	store    telemetry.ReadingRepository
	cloud    ReadingPublisher
	pipeline Evaluator
	interval time.Duration
	logger   logrus.FieldLogger
}

// NewResyncLoop constructs the loop.
func NewResyncLoop(store telemetry.ReadingRepository, cloud ReadingPublisher, pipeline Evaluator, interval time.Duration, logger logrus.FieldLogger) (*ResyncLoop, error) {
	if store == nil {
		return nil, errors.New("bridge: nil store")
	}
	if cloud == nil {
		return nil, errors.New("bridge: nil cloud publisher")
	}
	if pipeline == nil {
		return nil, errors.New("bridge: nil pipeline")
	}
	if interval <= 0 {
		interval = DefaultResyncInterval
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &ResyncLoop{
		store:    store,
		cloud:    cloud,
		pipeline: pipeline,
		interval: interval,
		logger:   logger.WithField("component", "resync"),
	}, nil
}

// Start runs a tick immediately and then one tick per interval after the
// previous one finished, until ctx is cancelled.
func (r *ResyncLoop) Start(ctx context.Context) {
	if r == nil {
		return
	}
	r.logger.WithField("interval", r.interval.String()).Info("resync loop started")
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("resync loop stopped")
			return
		case <-timer.C:
			r.RunOnce(ctx)
			timer.Reset(r.interval)
		}
	}
}

// RunOnce performs a single tick. It never panics and never returns an error;
// failures are logged and counted.
func (r *ResyncLoop) RunOnce(ctx context.Context) (result string) {
	ctx, logger := traced(ctx, r.logger, nil)
	defer func() {
		if rec := recover(); rec != nil {
			logger.WithField("panic", fmt.Sprint(rec)).Error("resync tick panicked")
			result = metrics.TickPanic
		}
		metrics.IncResyncTick(result)
	}()

	reading, ok, err := r.store.Latest(ctx)
	metrics.IncStoreOp("latest", err)
	if err != nil {
		logger.WithError(err).Error("resync: latest reading unavailable")
		return metrics.TickError
	}
	if !ok {
		logger.Info("resync: no data")
		return metrics.TickNoData
	}

	r.cloud.PublishReading(ctx, reading)
	r.pipeline.Evaluate(ctx, reading, SourceResync)
	return metrics.TickPublished
}
