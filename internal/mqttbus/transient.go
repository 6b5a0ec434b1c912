package mqttbus

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
)

// TransientPublisher opens a fresh connection for every publish and closes it
// afterwards.
type TransientPublisher struct {
	opts   Options
	logger logrus.FieldLogger
}

// NewTransientPublisher validates opts and returns a publisher.
func NewTransientPublisher(opts Options, logger logrus.FieldLogger) (*TransientPublisher, error) {
	if strings.TrimSpace(opts.BrokerURL) == "" {
		return nil, errors.New("mqttbus: empty broker url")
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &TransientPublisher{opts: opts, logger: logger.WithField("broker", opts.BrokerURL)}, nil
}

// Publish connects, publishes once and disconnects.
func (p *TransientPublisher) Publish(ctx context.Context, topic string, payload []byte) error {
	if p == nil {
		return fmt.Errorf("%w: nil publisher", ErrPublish)
	}
	opts := p.opts
	opts.ClientID = ""
	opts = opts.withDefaults("bridge-pub")

	client := newPahoClient(opts.clientOptions())
	if err := wait(ctx, client.Connect(), opts.ConnectTimeout); err != nil {
		client.Disconnect(0)
		return fmt.Errorf("%w: %s: connect: %v", ErrPublish, topic, err)
	}
	defer client.Disconnect(250)

	if err := wait(ctx, client.Publish(topic, opts.QoS, false, payload), opts.PublishTimeout); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrPublish, topic, err)
	}
	p.logger.WithField("topic", topic).Debug("transient publish done")
	return nil
}
