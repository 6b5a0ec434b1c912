package ubidots

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/juanpa-corral/codigoIoTFinalSolution/internal/mqttbus"
	"github.com/juanpa-corral/codigoIoTFinalSolution/internal/observability/metrics"
	telemetry "github.com/juanpa-corral/codigoIoTFinalSolution/internal/telemetry/domain"
)

const (
	DefaultBrokerURL     = "tcp://industrial.api.ubidots.com:1883"
	DefaultDevice        = "fruit_monitor"
	DefaultForecastField = "gemini_message2"
)

// ErrNonNumericForecast indicates a forecast text that cannot be sent as a
// numeric variable.
var ErrNonNumericForecast = fmt.Errorf("%w: non-numeric forecast", mqttbus.ErrPublish)

// DeviceTopic returns the telemetry topic of a device.
func DeviceTopic(device string) string {
	return "/v1.6/devices/" + device
}

// AlarmTopic returns the alarm variable topic of a device.
func AlarmTopic(device string) string {
	return DeviceTopic(device) + "/alarm"
}

// Option configures the publisher.
type Option func(*Publisher)

// WithForecastField overrides the variable the forecast is published to.
func WithForecastField(field string) Option {
	return func(p *Publisher) {
		if field != "" {
			p.forecastField = field
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger logrus.FieldLogger) Option {
	return func(p *Publisher) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// Publisher pushes readings and forecasts to the device telemetry topic.
type Publisher struct {
	bus           mqttbus.Publisher
	topic         string
	forecastField string
	logger        logrus.FieldLogger
}

// NewPublisher constructs a cloud publisher. bus is normally a transient
// publisher authenticated with the account token.
func NewPublisher(bus mqttbus.Publisher, device string, opts ...Option) (*Publisher, error) {
	if bus == nil {
		return nil, errors.New("ubidots: nil bus")
	}
	if strings.TrimSpace(device) == "" {
		return nil, errors.New("ubidots: empty device")
	}
	p := &Publisher{
		bus:           bus,
		topic:         DeviceTopic(device),
		forecastField: DefaultForecastField,
		logger:        logrus.StandardLogger(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p, nil
}

type readingPayload struct {
	Temperature telemetry.Measurement `json:"temperature"`
	Humidity    telemetry.Measurement `json:"humidity"`
	Ethylene    telemetry.Measurement `json:"ethylene"`
	Alarm       int                   `json:"alarm"`
}

// PublishReading sends a reading. Failures are logged and counted, never
// returned.
func (p *Publisher) PublishReading(ctx context.Context, reading telemetry.Reading) {
	payload, err := json.Marshal(readingPayload{
		Temperature: reading.Temperature,
		Humidity:    reading.Humidity,
		Ethylene:    reading.Ethylene,
		Alarm:       reading.Alarm,
	})
	if err != nil {
		p.logger.WithError(err).Error("ubidots: encode reading")
		return
	}
	if err := p.bus.Publish(ctx, p.topic, payload); err != nil {
		metrics.IncPublish(metrics.TargetCloud, metrics.ResultError)
		p.logger.WithError(err).WithField("topic", p.topic).Error("ubidots: publish reading failed")
		return
	}
	metrics.IncPublish(metrics.TargetCloud, metrics.ResultOK)
	p.logger.WithFields(logrus.Fields{"topic": p.topic, "payload": string(payload)}).Info("ubidots: reading sent")
}

// PublishForecast sends the forecast text as a numeric variable. Text that
// does not parse as a finite number yields ErrNonNumericForecast.
func (p *Publisher) PublishForecast(ctx context.Context, text string) error {
	value, err := ParseForecast(text)
	if err != nil {
		metrics.IncPublish(metrics.TargetCloud, metrics.ResultError)
		return err
	}
	payload, err := json.Marshal(map[string]float64{p.forecastField: value})
	if err != nil {
		return fmt.Errorf("%w: %v", mqttbus.ErrPublish, err)
	}
	if err := p.bus.Publish(ctx, p.topic, payload); err != nil {
		metrics.IncPublish(metrics.TargetCloud, metrics.ResultError)
		return err
	}
	metrics.IncPublish(metrics.TargetCloud, metrics.ResultOK)
	p.logger.WithFields(logrus.Fields{"topic": p.topic, "field": p.forecastField, "value": value}).Info("ubidots: forecast sent")
	return nil
}

// ParseForecast converts advisory text to a number.
func ParseForecast(text string) (float64, error) {
	value, err := strconv.ParseFloat(strings.TrimSpace(text), 64)
	if err != nil || math.IsNaN(value) || math.IsInf(value, 0) {
		return 0, fmt.Errorf("%w: %q", ErrNonNumericForecast, text)
	}
	return value, nil
}
