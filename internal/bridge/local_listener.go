package bridge

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"

	alarms "github.com/juanpa-corral/codigoIoTFinalSolution/internal/alarms/domain"
	"github.com/juanpa-corral/codigoIoTFinalSolution/internal/mqttbus"
	"github.com/juanpa-corral/codigoIoTFinalSolution/internal/observability/metrics"
	telemetry "github.com/juanpa-corral/codigoIoTFinalSolution/internal/telemetry/domain"
	"github.com/juanpa-corral/codigoIoTFinalSolution/internal/telemetry/interfaces/sensorbus"
)

// LocalTopics names the topics of the local sensor bus.
type LocalTopics struct {
	Data    string
	Control string
	Alarm   string
}

func (t LocalTopics) withDefaults() LocalTopics {
	if t.Data == "" {
		t.Data = DefaultDataTopic
	}
	if t.Control == "" {
		t.Control = DefaultControlTopic
	}
	if t.Alarm == "" {
		t.Alarm = DefaultAlarmTopic
	}
	return t
}

// LocalListener consumes sensor data and alarm control messages from the
// local bus. Messages are processed one at a time in arrival order.
type LocalListener struct {
	store    telemetry.ReadingRepository
	cloud    ReadingPublisher
	pipeline Evaluator
	local    mqttbus.Publisher
	topics   LocalTopics
	clock    Clock
	logger   logrus.FieldLogger
	queue    *queue
}

// LocalOption configures the local listener.
type LocalOption func(*LocalListener)

// WithLocalTopics overrides the local topics.
func WithLocalTopics(topics LocalTopics) LocalOption {
	return func(l *LocalListener) {
		l.topics = topics.withDefaults()
	}
}

// WithClock assigns the clock used to stamp readings.
func WithClock(clock Clock) LocalOption {
	return func(l *LocalListener) {
		if clock != nil {
			l.clock = clock
		}
	}
}

// WithLocalLogger sets the logger.
func WithLocalLogger(logger logrus.FieldLogger) LocalOption {
	return func(l *LocalListener) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithQueueSize sets the inbound buffer size.
func WithQueueSize(size int) LocalOption {
	return func(l *LocalListener) {
		l.queue = newQueue(size)
	}
}

// NewLocalListener constructs a local bus listener. local is the client the
// listener is subscribed through; it is used to forward alarm commands.
func NewLocalListener(store telemetry.ReadingRepository, cloud ReadingPublisher, pipeline Evaluator, local mqttbus.Publisher, opts ...LocalOption) (*LocalListener, error) {
	if store == nil {
		return nil, errors.New("bridge: nil store")
	}
	if cloud == nil {
		return nil, errors.New("bridge: nil cloud publisher")
	}
	if pipeline == nil {
		return nil, errors.New("bridge: nil pipeline")
	}
	if local == nil {
		return nil, errors.New("bridge: nil local publisher")
	}
	l := &LocalListener{
		store:    store,
		cloud:    cloud,
		pipeline: pipeline,
		local:    local,
		topics:   LocalTopics{}.withDefaults(),
		clock:    systemClock{},
		logger:   logrus.StandardLogger(),
		queue:    newQueue(defaultQueueSize),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(l)
		}
	}
	l.logger = l.logger.WithField("component", "local_listener")
	return l, nil
}

// Subscriptions returns the topic handlers to register on the local client.
func (l *LocalListener) Subscriptions() []mqttbus.Subscription {
	return []mqttbus.Subscription{
		{Topic: l.topics.Data, Handler: l.enqueue},
		{Topic: l.topics.Control, Handler: l.enqueue},
	}
}

func (l *LocalListener) enqueue(topic string, payload []byte) {
	if !l.queue.push(topic, payload) {
		l.logger.WithField("topic", topic).Warn("listener stopped; message dropped")
	}
}

// Run processes queued messages until ctx is cancelled.
func (l *LocalListener) Run(ctx context.Context) {
	l.logger.Info("local listener started")
	l.queue.drain(ctx, func(ctx context.Context, msg inbound) {
		l.HandleMessage(ctx, msg.topic, msg.payload)
	})
	l.logger.Info("local listener stopped")
}

// HandleMessage processes a single message synchronously.
func (l *LocalListener) HandleMessage(ctx context.Context, topic string, payload []byte) {
	ctx, logger := traced(ctx, l.logger, logrus.Fields{"topic": topic})
	switch topic {
	case l.topics.Data:
		l.handleData(ctx, logger, payload)
	case l.topics.Control:
		l.handleControl(ctx, logger, payload)
	default:
		logger.Warn("message on unexpected topic ignored")
	}
}

func (l *LocalListener) handleData(ctx context.Context, logger logrus.FieldLogger, payload []byte) {
	reading, err := sensorbus.Decode(payload, l.clock.Now())
	if err != nil {
		result := metrics.MessageDecodeError
		if errors.Is(err, telemetry.ErrCoercion) {
			result = metrics.MessageCoercionError
		}
		metrics.IncMessage(metrics.KindData, result)
		logger.WithError(err).WithField("payload", string(payload)).Warn("sensor message dropped")
		return
	}
	metrics.IncMessage(metrics.KindData, metrics.MessageAccepted)
	logger.WithFields(logrus.Fields{
		"temperature": reading.Temperature.Value,
		"humidity":    reading.Humidity.Value,
		"ethylene":    reading.Ethylene.Value,
		"alarm":       reading.Alarm,
	}).Info("sensor reading received")

	err = l.store.Insert(ctx, reading)
	metrics.IncStoreOp("insert", err)
	if err != nil {
		logger.WithError(err).Error("reading not stored")
	}

	l.cloud.PublishReading(ctx, reading)
	l.pipeline.Evaluate(ctx, reading, SourceLocal)
}

func (l *LocalListener) handleControl(ctx context.Context, logger logrus.FieldLogger, payload []byte) {
	cmd, err := alarms.ParseControl(string(payload))
	if err != nil {
		metrics.IncMessage(metrics.KindControl, metrics.MessageInvalidCommand)
		logger.WithError(err).Warn("control command dropped")
		return
	}
	metrics.IncMessage(metrics.KindControl, metrics.MessageAccepted)
	if err := l.local.Publish(ctx, l.topics.Alarm, []byte(cmd)); err != nil {
		metrics.IncPublish(metrics.TargetLocal, metrics.ResultError)
		logger.WithError(err).WithField("command", cmd).Error("alarm command not forwarded")
		return
	}
	metrics.IncPublish(metrics.TargetLocal, metrics.ResultOK)
	logger.WithFields(logrus.Fields{"command": cmd, "alarm_topic": l.topics.Alarm}).Info("alarm command forwarded")
}
