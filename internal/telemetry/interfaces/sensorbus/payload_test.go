package sensorbus

import (
	"errors"
	"testing"
	"time"

	telemetry "github.com/juanpa-corral/codigoIoTFinalSolution/internal/telemetry/domain"
)

func TestDecodeValidPayload(t *testing.T) {
	at := time.Date(2026, 3, 1, 10, 15, 30, 500, time.Local)
	reading, err := Decode([]byte(`{"temperature": 22.0, "humidity": 55, "ethylene": 0.9, "alarm": 0}`), at)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if reading.Temperature != telemetry.Value(22) || reading.Humidity != telemetry.Value(55) || reading.Ethylene != telemetry.Value(0.9) {
		t.Fatalf("unexpected measurements: %+v", reading)
	}
	if reading.Alarm != 0 {
		t.Fatalf("expected alarm 0, got %d", reading.Alarm)
	}
	if !reading.Timestamp.Equal(at.Truncate(time.Second)) {
		t.Fatalf("expected timestamp truncated to second, got %s", reading.Timestamp)
	}
}

func TestDecodeCoercesStringsAndBooleans(t *testing.T) {
	reading, err := Decode([]byte(`{"temperature": " 21.5 ", "humidity": "60", "ethylene": true, "alarm": "1"}`), time.Now())
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if reading.Temperature.Value != 21.5 || reading.Humidity.Value != 60 || reading.Ethylene.Value != 1 {
		t.Fatalf("unexpected measurements: %+v", reading)
	}
	if reading.Alarm != 1 {
		t.Fatalf("expected alarm 1, got %d", reading.Alarm)
	}
}

func TestDecodeTruncatesFractionalAlarm(t *testing.T) {
	reading, err := Decode([]byte(`{"temperature": 1, "humidity": 1, "ethylene": 1, "alarm": 1.9}`), time.Now())
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if reading.Alarm != 1 {
		t.Fatalf("expected alarm 1, got %d", reading.Alarm)
	}
}

func TestDecodeMissingKeys(t *testing.T) {
	cases := []string{
		`{"humidity": 55, "ethylene": 0.9, "alarm": 0}`,
		`{"temperature": 22, "ethylene": 0.9, "alarm": 0}`,
		`{"temperature": 22, "humidity": 55, "alarm": 0}`,
		`{"temperature": 22, "humidity": 55, "ethylene": 0.9}`,
		`{}`,
	}
	for _, payload := range cases {
		if _, err := Decode([]byte(payload), time.Now()); !errors.Is(err, telemetry.ErrDecode) {
			t.Fatalf("payload %s: expected decode error, got %v", payload, err)
		}
	}
}

func TestDecodeMalformedPayload(t *testing.T) {
	cases := []string{`not json`, `[1,2,3]`, `null`, `{"temperature": 1,}`, ``}
	for _, payload := range cases {
		if _, err := Decode([]byte(payload), time.Now()); !errors.Is(err, telemetry.ErrDecode) {
			t.Fatalf("payload %q: expected decode error, got %v", payload, err)
		}
	}
}

func TestDecodeCoercionFailures(t *testing.T) {
	cases := []string{
		`{"temperature": "warm", "humidity": 55, "ethylene": 0.9, "alarm": 0}`,
		`{"temperature": 22, "humidity": null, "ethylene": 0.9, "alarm": 0}`,
		`{"temperature": 22, "humidity": 55, "ethylene": {"v": 1}, "alarm": 0}`,
		`{"temperature": 22, "humidity": 55, "ethylene": "nan", "alarm": 0}`,
		`{"temperature": 22, "humidity": 55, "ethylene": 0.9, "alarm": "1.0"}`,
		`{"temperature": 22, "humidity": 55, "ethylene": 0.9, "alarm": [1]}`,
	}
	for _, payload := range cases {
		if _, err := Decode([]byte(payload), time.Now()); !errors.Is(err, telemetry.ErrCoercion) {
			t.Fatalf("payload %s: expected coercion error, got %v", payload, err)
		}
	}
}
