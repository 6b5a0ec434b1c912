package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

const (
	metricPrefix = "fruit_bridge_"

	resultOK    = "ok"
	resultError = "error"
)

// Message kinds.
const (
	KindData       = "data"
	KindControl    = "control"
	KindCloudAlarm = "cloud_alarm"
)

// Message results.
const (
	MessageAccepted       = "accepted"
	MessageDecodeError    = "decode_error"
	MessageCoercionError  = "coercion_error"
	MessageInvalidCommand = "invalid_command"
)

// Publish targets.
const (
	TargetLocal = "local"
	TargetCloud = "cloud"
)

// Pipeline outcomes.
const (
	PipelineBelowThreshold = "below_threshold"
	PipelineTriggered      = "triggered"
	PipelineNotEvaluable   = "not_evaluable"
)

// Resync tick results.
const (
	TickPublished = "published"
	TickNoData    = "no_data"
	TickError     = "error"
	TickPanic     = "panic"
)

// Exported constants for callers.
const (
	ResultOK    = resultOK
	ResultError = resultError
)

var (
	registerOnce sync.Once

	messagesTotal *prometheus.CounterVec
	publishTotal  *prometheus.CounterVec
	storeOpsTotal *prometheus.CounterVec
	pipelineTotal *prometheus.CounterVec
	oracleLatency *prometheus.HistogramVec
	resyncTicks   *prometheus.CounterVec
	advisoryTotal *prometheus.CounterVec
	exportTotal   *prometheus.CounterVec
	exportLatency *prometheus.HistogramVec
)

// Init registers bridge metrics. counter, when non-nil, backs the stored
// readings gauge.
func Init(counter ReadingCounter, logger logrus.FieldLogger) {
	registerOnce.Do(func() {
		messagesTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "messages_total",
				Help: "Inbound bus messages by kind and result",
			},
			[]string{"kind", "result"},
		)
		publishTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "publish_total",
				Help: "Outbound publishes by target bus and result",
			},
			[]string{"target", "result"},
		)
		storeOpsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "store_operations_total",
				Help: "Reading store operations by operation and result",
			},
			[]string{"op", "result"},
		)
		pipelineTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "pipeline_runs_total",
				Help: "Alert pipeline evaluations by source and outcome",
			},
			[]string{"source", "outcome"},
		)
		oracleLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "oracle_latency_seconds",
				Help:    "Forecast oracle call latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)
		resyncTicks = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "resync_ticks_total",
				Help: "Periodic resync ticks by result",
			},
			[]string{"result"},
		)
		advisoryTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "advisory_events_total",
				Help: "Advisory notification events by type",
			},
			[]string{"event"},
		)
		exportTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "export_total",
				Help: "Reading history exports by format and result",
			},
			[]string{"format", "result"},
		)
		exportLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "export_latency_seconds",
				Help:    "Reading history export latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"format", "result"},
		)

		prometheus.MustRegister(
			messagesTotal,
			publishTotal,
			storeOpsTotal,
			pipelineTotal,
			oracleLatency,
			resyncTicks,
			advisoryTotal,
			exportTotal,
			exportLatency,
		)

		if counter != nil {
			registerStoreMetrics(counter, logger)
		}
	})
}

// IncMessage counts an inbound message.
func IncMessage(kind, result string) {
	if kind == "" {
		kind = "unknown"
	}
	if result == "" {
		result = MessageAccepted
	}
	if messagesTotal != nil {
		messagesTotal.WithLabelValues(kind, result).Inc()
	}
}

// IncPublish counts an outbound publish.
func IncPublish(target, result string) {
	if target == "" {
		target = "unknown"
	}
	if result == "" {
		result = resultOK
	}
	if publishTotal != nil {
		publishTotal.WithLabelValues(target, result).Inc()
	}
}

// IncStoreOp counts a store operation.
func IncStoreOp(op string, err error) {
	if storeOpsTotal != nil {
		storeOpsTotal.WithLabelValues(op, resultOf(err)).Inc()
	}
}

// IncPipeline counts an alert pipeline evaluation.
func IncPipeline(source, outcome string) {
	if source == "" {
		source = "unknown"
	}
	if pipelineTotal != nil {
		pipelineTotal.WithLabelValues(source, outcome).Inc()
	}
}

// ObserveOracle records oracle call duration and result.
func ObserveOracle(err error, duration time.Duration) {
	if oracleLatency != nil {
		oracleLatency.WithLabelValues(resultOf(err)).Observe(duration.Seconds())
	}
}

// IncResyncTick counts a resync tick.
func IncResyncTick(result string) {
	if resyncTicks != nil {
		resyncTicks.WithLabelValues(result).Inc()
	}
}

// IncAdvisoryEvent counts advisory notifier events.
func IncAdvisoryEvent(event string) {
	if event == "" {
		event = "unknown"
	}
	if advisoryTotal != nil {
		advisoryTotal.WithLabelValues(event).Inc()
	}
}

// ObserveExport records export latency and result.
func ObserveExport(format, result string, duration time.Duration) {
	if format == "" {
		format = "unknown"
	}
	if result == "" {
		result = resultOK
	}
	if exportTotal != nil {
		exportTotal.WithLabelValues(format, result).Inc()
	}
	if exportLatency != nil {
		exportLatency.WithLabelValues(format, result).Observe(duration.Seconds())
	}
}

func resultOf(err error) string {
	if err != nil {
		return resultError
	}
	return resultOK
}
