package mqttbus

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	DefaultKeepAlive      = 60 * time.Second
	DefaultConnectTimeout = 10 * time.Second
	DefaultPublishTimeout = 10 * time.Second
	DefaultQoS            = byte(1)
)

var (
	// ErrPublish indicates a message could not be delivered to the broker.
	ErrPublish = errors.New("mqttbus: publish error")
	// ErrConnect indicates the broker could not be reached.
	ErrConnect = errors.New("mqttbus: connect error")
	errTimeout = errors.New("timed out")
)

// Publisher delivers a payload to a topic.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload []byte) error
}

// Handler receives inbound messages. It runs on the client's router goroutine
// and must not block on publishes made through the same client.
type Handler func(topic string, payload []byte)

// Subscription binds a topic filter to a handler.
type Subscription struct {
	Topic   string
	Handler Handler
}

// Options configures a broker connection.
type Options struct {
	BrokerURL      string
	ClientID       string
	Username       string
	Password       string
	QoS            byte
	KeepAlive      time.Duration
	ConnectTimeout time.Duration
	PublishTimeout time.Duration
}

func (o Options) withDefaults(prefix string) Options {
	if o.ClientID == "" {
		o.ClientID = prefix + "-" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	}
	if o.QoS > 2 {
		o.QoS = DefaultQoS
	}
	if o.KeepAlive <= 0 {
		o.KeepAlive = DefaultKeepAlive
	}
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = DefaultConnectTimeout
	}
	if o.PublishTimeout <= 0 {
		o.PublishTimeout = DefaultPublishTimeout
	}
	return o
}

func (o Options) clientOptions() *mqtt.ClientOptions {
	opts := mqtt.NewClientOptions().
		AddBroker(o.BrokerURL).
		SetClientID(o.ClientID).
		SetKeepAlive(o.KeepAlive).
		SetConnectTimeout(o.ConnectTimeout).
		SetCleanSession(true)
	if o.Username != "" {
		opts.SetUsername(o.Username)
		opts.SetPassword(o.Password)
	}
	return opts
}

// Client is a long-lived broker connection. Subscriptions are re-established
// on every (re)connect.
type Client struct {
	client mqtt.Client
	opts   Options
	logger logrus.FieldLogger

	mu   sync.RWMutex
	subs []Subscription
}

var newPahoClient = mqtt.NewClient

// Connect dials the broker and registers subs. It fails if the first connect
// does not succeed.
func Connect(ctx context.Context, opts Options, logger logrus.FieldLogger, subs ...Subscription) (*Client, error) {
	if strings.TrimSpace(opts.BrokerURL) == "" {
		return nil, errors.New("mqttbus: empty broker url")
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	for _, sub := range subs {
		if sub.Topic == "" || sub.Handler == nil {
			return nil, errors.New("mqttbus: invalid subscription")
		}
	}
	opts = opts.withDefaults("bridge")
	c := &Client{
		opts:   opts,
		logger: logger.WithFields(logrus.Fields{"broker": opts.BrokerURL, "client_id": opts.ClientID}),
		subs:   append([]Subscription(nil), subs...),
	}

	pahoOpts := opts.clientOptions().
		SetAutoReconnect(true).
		SetOnConnectHandler(c.onConnect).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			c.logger.WithError(err).Warn("mqtt connection lost")
		}).
		SetReconnectingHandler(func(_ mqtt.Client, _ *mqtt.ClientOptions) {
			c.logger.Info("mqtt reconnecting")
		})
	c.client = newPahoClient(pahoOpts)

	if err := wait(ctx, c.client.Connect(), opts.ConnectTimeout); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrConnect, opts.BrokerURL, err)
	}
	c.logger.Info("mqtt connected")
	return c, nil
}

func (c *Client) onConnect(client mqtt.Client) {
	c.mu.RLock()
	subs := append([]Subscription(nil), c.subs...)
	c.mu.RUnlock()
	for _, sub := range subs {
		c.subscribe(client, sub)
	}
}

func (c *Client) subscribe(client mqtt.Client, sub Subscription) {
	handler := sub.Handler
	token := client.Subscribe(sub.Topic, c.opts.QoS, func(_ mqtt.Client, msg mqtt.Message) {
		handler(msg.Topic(), msg.Payload())
	})
	// Called from paho's callback goroutine, so don't block on the token.
	go func() {
		if !token.WaitTimeout(c.opts.ConnectTimeout) {
			c.logger.WithField("topic", sub.Topic).Warn("mqtt subscribe timed out")
			return
		}
		if err := token.Error(); err != nil {
			c.logger.WithError(err).WithField("topic", sub.Topic).Error("mqtt subscribe failed")
			return
		}
		c.logger.WithField("topic", sub.Topic).Info("mqtt subscribed")
	}()
}

// Subscribe adds a subscription to a connected client.
func (c *Client) Subscribe(sub Subscription) error {
	if c == nil || c.client == nil {
		return errors.New("mqttbus: nil client")
	}
	if sub.Topic == "" || sub.Handler == nil {
		return errors.New("mqttbus: invalid subscription")
	}
	c.mu.Lock()
	c.subs = append(c.subs, sub)
	c.mu.Unlock()
	if c.client.IsConnectionOpen() {
		c.subscribe(c.client, sub)
	}
	return nil
}

// Publish sends payload at the configured QoS and waits for the broker
// acknowledgement, the publish timeout or ctx, whichever comes first.
func (c *Client) Publish(ctx context.Context, topic string, payload []byte) error {
	if c == nil || c.client == nil {
		return fmt.Errorf("%w: nil client", ErrPublish)
	}
	if err := wait(ctx, c.client.Publish(topic, c.opts.QoS, false, payload), c.opts.PublishTimeout); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrPublish, topic, err)
	}
	return nil
}

// Close disconnects, allowing in-flight work a short grace period.
func (c *Client) Close() {
	if c == nil || c.client == nil {
		return
	}
	c.client.Disconnect(250)
	c.logger.Info("mqtt disconnected")
}

func wait(ctx context.Context, token mqtt.Token, timeout time.Duration) error {
	if ctx == nil {
		ctx = context.Background()
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return errTimeout
	}
}
