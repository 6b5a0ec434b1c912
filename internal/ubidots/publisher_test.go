package ubidots

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/sirupsen/logrus/hooks/test"

	"github.com/juanpa-corral/codigoIoTFinalSolution/internal/mqttbus"
	telemetry "github.com/juanpa-corral/codigoIoTFinalSolution/internal/telemetry/domain"
)

type message struct {
	topic   string
	payload []byte
}

type recordingBus struct {
	messages []message
	err      error
}

func (b *recordingBus) Publish(_ context.Context, topic string, payload []byte) error {
	b.messages = append(b.messages, message{topic: topic, payload: payload})
	return b.err
}

func newTestPublisher(t *testing.T, bus mqttbus.Publisher, opts ...Option) *Publisher {
	t.Helper()
	logger, _ := test.NewNullLogger()
	pub, err := NewPublisher(bus, DefaultDevice, append([]Option{WithLogger(logger)}, opts...)...)
	if err != nil {
		t.Fatalf("new publisher: %v", err)
	}
	return pub
}

func TestPublishReadingPayload(t *testing.T) {
	bus := &recordingBus{}
	pub := newTestPublisher(t, bus)

	pub.PublishReading(context.Background(), telemetry.Reading{
		Temperature: telemetry.Value(22),
		Humidity:    telemetry.Value(55),
		Ethylene:    telemetry.Value(0.9),
		Alarm:       1,
	})

	if len(bus.messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(bus.messages))
	}
	if bus.messages[0].topic != "/v1.6/devices/fruit_monitor" {
		t.Fatalf("unexpected topic %q", bus.messages[0].topic)
	}
	var body map[string]float64
	if err := json.Unmarshal(bus.messages[0].payload, &body); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	want := map[string]float64{"temperature": 22, "humidity": 55, "ethylene": 0.9, "alarm": 1}
	for key, value := range want {
		if body[key] != value {
			t.Fatalf("%s: expected %v, got %v", key, value, body[key])
		}
	}
}

func TestPublishReadingSwallowsErrors(t *testing.T) {
	bus := &recordingBus{err: mqttbus.ErrPublish}
	pub := newTestPublisher(t, bus)
	pub.PublishReading(context.Background(), telemetry.Reading{Ethylene: telemetry.Value(1)})
	if len(bus.messages) != 1 {
		t.Fatalf("expected publish attempt")
	}
}

func TestPublishForecastNumeric(t *testing.T) {
	bus := &recordingBus{}
	pub := newTestPublisher(t, bus, WithForecastField("forecast_days"))

	if err := pub.PublishForecast(context.Background(), " 4\n"); err != nil {
		t.Fatalf("publish forecast: %v", err)
	}
	if got := string(bus.messages[0].payload); got != `{"forecast_days":4}` {
		t.Fatalf("unexpected payload %s", got)
	}
}

func TestPublishForecastDefaultField(t *testing.T) {
	bus := &recordingBus{}
	pub := newTestPublisher(t, bus)
	if err := pub.PublishForecast(context.Background(), "2.5"); err != nil {
		t.Fatalf("publish forecast: %v", err)
	}
	if got := string(bus.messages[0].payload); got != `{"gemini_message2":2.5}` {
		t.Fatalf("unexpected payload %s", got)
	}
}

func TestPublishForecastNonNumeric(t *testing.T) {
	bus := &recordingBus{}
	pub := newTestPublisher(t, bus)

	for _, text := range []string{"Error in analysis.", "Incomplete sensor data.", "", "NaN", "inf"} {
		err := pub.PublishForecast(context.Background(), text)
		if !errors.Is(err, ErrNonNumericForecast) {
			t.Fatalf("%q: expected non-numeric error, got %v", text, err)
		}
		if !errors.Is(err, mqttbus.ErrPublish) {
			t.Fatalf("%q: expected error to be a publish error", text)
		}
	}
	if len(bus.messages) != 0 {
		t.Fatalf("expected nothing published, got %d", len(bus.messages))
	}
}

func TestPublishForecastBusError(t *testing.T) {
	bus := &recordingBus{err: mqttbus.ErrPublish}
	pub := newTestPublisher(t, bus)
	if err := pub.PublishForecast(context.Background(), "3"); !errors.Is(err, mqttbus.ErrPublish) {
		t.Fatalf("expected publish error, got %v", err)
	}
}

func TestTopics(t *testing.T) {
	if AlarmTopic("fruit_monitor") != "/v1.6/devices/fruit_monitor/alarm" {
		t.Fatalf("unexpected alarm topic %q", AlarmTopic("fruit_monitor"))
	}
}

func TestNewPublisherValidates(t *testing.T) {
	if _, err := NewPublisher(nil, DefaultDevice); err == nil {
		t.Fatalf("expected error for nil bus")
	}
	if _, err := NewPublisher(&recordingBus{}, " "); err == nil {
		t.Fatalf("expected error for empty device")
	}
}
