package bridge

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"

	alarms "github.com/juanpa-corral/codigoIoTFinalSolution/internal/alarms/domain"
	"github.com/juanpa-corral/codigoIoTFinalSolution/internal/mqttbus"
	"github.com/juanpa-corral/codigoIoTFinalSolution/internal/observability/metrics"
)

// CloudListener turns cloud alarm variable updates into local alarm commands.
type CloudListener struct {
	topic      string
	alarmTopic string
	local      mqttbus.Publisher
	logger     logrus.FieldLogger
	queue      *queue
}

// NewCloudListener constructs a cloud listener. local should open its own
// connection per publish, independent of the local listener's client.
func NewCloudListener(topic, alarmTopic string, local mqttbus.Publisher, logger logrus.FieldLogger) (*CloudListener, error) {
	if topic == "" {
		return nil, errors.New("bridge: empty cloud alarm topic")
	}
	if local == nil {
		return nil, errors.New("bridge: nil local publisher")
	}
	if alarmTopic == "" {
		alarmTopic = DefaultAlarmTopic
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &CloudListener{
		topic:      topic,
		alarmTopic: alarmTopic,
		local:      local,
		logger:     logger.WithField("component", "cloud_listener"),
		queue:      newQueue(defaultQueueSize),
	}, nil
}

// Subscription returns the handler to register on the cloud client.
func (c *CloudListener) Subscription() mqttbus.Subscription {
	return mqttbus.Subscription{Topic: c.topic, Handler: func(topic string, payload []byte) {
		if !c.queue.push(topic, payload) {
			c.logger.WithField("topic", topic).Warn("listener stopped; message dropped")
		}
	}}
}

// Run processes queued messages until ctx is cancelled.
func (c *CloudListener) Run(ctx context.Context) {
	c.logger.Info("cloud listener started")
	c.queue.drain(ctx, func(ctx context.Context, msg inbound) {
		c.HandleMessage(ctx, msg.topic, msg.payload)
	})
	c.logger.Info("cloud listener stopped")
}

// HandleMessage maps {"value": 1.0|0.0} to ON|OFF and forwards it locally.
func (c *CloudListener) HandleMessage(ctx context.Context, topic string, payload []byte) {
	ctx, logger := traced(ctx, c.logger, logrus.Fields{"topic": topic})

	cmd, err := alarms.ParseCloudValue(payload)
	if err != nil {
		metrics.IncMessage(metrics.KindCloudAlarm, metrics.MessageInvalidCommand)
		logger.WithError(err).WithField("payload", string(payload)).Warn("cloud alarm value dropped")
		return
	}
	metrics.IncMessage(metrics.KindCloudAlarm, metrics.MessageAccepted)
	if err := c.local.Publish(ctx, c.alarmTopic, []byte(cmd)); err != nil {
		metrics.IncPublish(metrics.TargetLocal, metrics.ResultError)
		logger.WithError(err).WithField("command", cmd).Error("cloud alarm command not forwarded")
		return
	}
	metrics.IncPublish(metrics.TargetLocal, metrics.ResultOK)
	logger.WithFields(logrus.Fields{"command": cmd, "alarm_topic": c.alarmTopic}).Info("cloud alarm command forwarded")
}
