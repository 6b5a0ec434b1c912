package application

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	alarms "github.com/juanpa-corral/codigoIoTFinalSolution/internal/alarms/domain"
	"github.com/juanpa-corral/codigoIoTFinalSolution/internal/forecast"
	"github.com/juanpa-corral/codigoIoTFinalSolution/internal/mqttbus"
	"github.com/juanpa-corral/codigoIoTFinalSolution/internal/observability/logging"
	"github.com/juanpa-corral/codigoIoTFinalSolution/internal/observability/metrics"
	telemetry "github.com/juanpa-corral/codigoIoTFinalSolution/internal/telemetry/domain"
)

// Substitute notifications used when no forecast is available.
const (
	NotificationIncomplete    = "Incomplete sensor data."
	NotificationAnalysisError = "Error in analysis."
)

// Local topics the pipeline publishes to.
const (
	DefaultNotificationTopic = "sensors/notification"
	DefaultAlarmTopic        = "sensors/alarm"
)

// ForecastPublisher sends the forecast to the cloud as a numeric variable.
type ForecastPublisher interface {
	PublishForecast(ctx context.Context, text string) error
}

// AdvisoryNotifier relays a triggered advisory to out-of-band channels.
type AdvisoryNotifier interface {
	Notify(ctx context.Context, advisory Advisory)
}

// Advisory describes a threshold crossing and the forecast obtained for it.
type Advisory struct {
	Source       string
	TraceID      string
	Reading      telemetry.Reading
	Threshold    float64
	Notification string
	At           time.Time
}

// Outcome reports what a pipeline evaluation did. Step errors are independent.
type Outcome struct {
	Evaluable    bool
	Triggered    bool
	Notification string

	OracleErr       error
	CloudErr        error
	NotificationErr error
	AlarmErr        error
}

// Clock provides time.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// Pipeline evaluates readings against the ethylene threshold and raises the
// advisory when it is exceeded.
type Pipeline struct {
	rule     alarms.ThresholdRule
	oracle   forecast.Oracle
	cloud    ForecastPublisher
	local    mqttbus.Publisher
	notifier AdvisoryNotifier
	logger   logrus.FieldLogger
	clock    Clock

	notificationTopic string
	alarmTopic        string
}

// Option customizes the pipeline.
type Option func(*Pipeline)

// WithNotifier assigns an advisory notifier.
func WithNotifier(notifier AdvisoryNotifier) Option {
	return func(p *Pipeline) {
		p.notifier = notifier
	}
}

// WithTopics overrides the local notification and alarm topics.
func WithTopics(notificationTopic, alarmTopic string) Option {
	return func(p *Pipeline) {
		if notificationTopic != "" {
			p.notificationTopic = notificationTopic
		}
		if alarmTopic != "" {
			p.alarmTopic = alarmTopic
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger logrus.FieldLogger) Option {
	return func(p *Pipeline) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithClock assigns a clock.
func WithClock(clock Clock) Option {
	return func(p *Pipeline) {
		if clock != nil {
			p.clock = clock
		}
	}
}

// NewPipeline constructs an alert pipeline.
func NewPipeline(rule alarms.ThresholdRule, oracle forecast.Oracle, cloud ForecastPublisher, local mqttbus.Publisher, opts ...Option) (*Pipeline, error) {
	if oracle == nil {
		return nil, errors.New("alarms: nil oracle")
	}
	if cloud == nil {
		return nil, errors.New("alarms: nil cloud publisher")
	}
	if local == nil {
		return nil, errors.New("alarms: nil local publisher")
	}
	p := &Pipeline{
		rule:              rule,
		oracle:            oracle,
		cloud:             cloud,
		local:             local,
		logger:            logrus.StandardLogger(),
		clock:             systemClock{},
		notificationTopic: DefaultNotificationTopic,
		alarmTopic:        DefaultAlarmTopic,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p, nil
}

// Evaluate runs the pipeline for one reading. Once the threshold is exceeded
// every publish step is attempted in order regardless of earlier failures,
// so the alarm ON command is always sent.
func (p *Pipeline) Evaluate(ctx context.Context, reading telemetry.Reading, source string) Outcome {
	logger := logging.FromContext(ctx, p.logger).WithField("source", source)

	exceeded, evaluable := p.rule.Exceeded(reading)
	if !evaluable {
		metrics.IncPipeline(source, metrics.PipelineNotEvaluable)
		logger.Warn("ethylene missing; threshold not evaluated")
		return Outcome{}
	}
	if !exceeded {
		metrics.IncPipeline(source, metrics.PipelineBelowThreshold)
		logger.WithField("ethylene", reading.Ethylene.Value).Debug("ethylene within threshold")
		return Outcome{Evaluable: true}
	}
	metrics.IncPipeline(source, metrics.PipelineTriggered)
	logger = logger.WithFields(logrus.Fields{
		"ethylene":  reading.Ethylene.Value,
		"threshold": p.rule.Threshold(),
	})
	logger.Warn("ethylene threshold exceeded")

	out := Outcome{Evaluable: true, Triggered: true}
	out.Notification, out.OracleErr = p.forecast(ctx, reading, logger)

	if err := p.cloud.PublishForecast(ctx, out.Notification); err != nil {
		out.CloudErr = err
		logger.WithError(err).Error("forecast not sent to cloud")
	}

	if err := p.local.Publish(ctx, p.notificationTopic, []byte(out.Notification)); err != nil {
		out.NotificationErr = err
		metrics.IncPublish(metrics.TargetLocal, metrics.ResultError)
		logger.WithError(err).WithField("topic", p.notificationTopic).Error("notification publish failed")
	} else {
		metrics.IncPublish(metrics.TargetLocal, metrics.ResultOK)
		logger.WithField("topic", p.notificationTopic).Info("notification published")
	}

	if err := p.local.Publish(ctx, p.alarmTopic, []byte(alarms.CommandOn)); err != nil {
		out.AlarmErr = err
		metrics.IncPublish(metrics.TargetLocal, metrics.ResultError)
		logger.WithError(err).WithField("topic", p.alarmTopic).Error("alarm ON publish failed")
	} else {
		metrics.IncPublish(metrics.TargetLocal, metrics.ResultOK)
		logger.WithField("topic", p.alarmTopic).Info("alarm ON published")
	}

	if p.notifier != nil {
		p.notifier.Notify(ctx, Advisory{
			Source:       source,
			TraceID:      traceID(logger),
			Reading:      reading,
			Threshold:    p.rule.Threshold(),
			Notification: out.Notification,
			At:           p.clock.Now(),
		})
	}
	return out
}

func (p *Pipeline) forecast(ctx context.Context, reading telemetry.Reading, logger logrus.FieldLogger) (string, error) {
	if !reading.Complete() {
		logger.Error(NotificationIncomplete)
		return NotificationIncomplete, nil
	}
	start := time.Now()
	text, err := p.oracle.Forecast(ctx, reading.Ethylene.Value, reading.Temperature.Value, reading.Humidity.Value)
	metrics.ObserveOracle(err, time.Since(start))
	if err != nil {
		logger.WithError(err).Error("forecast failed")
		return NotificationAnalysisError, err
	}
	logger.WithField("forecast", text).Info("forecast received")
	return text, nil
}

func traceID(logger logrus.FieldLogger) string {
	if entry, ok := logger.(*logrus.Entry); ok {
		if id, ok := entry.Data["trace_id"].(string); ok {
			return id
		}
	}
	return ""
}
