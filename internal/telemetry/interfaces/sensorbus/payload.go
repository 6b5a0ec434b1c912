package sensorbus

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	telemetry "github.com/juanpa-corral/codigoIoTFinalSolution/internal/telemetry/domain"
)

// Payload keys published by the sensor firmware.
const (
	KeyTemperature = "temperature"
	KeyHumidity    = "humidity"
	KeyEthylene    = "ethylene"
	KeyAlarm       = "alarm"
)

// RequiredKeys lists the keys every data message must carry.
var RequiredKeys = []string{KeyTemperature, KeyHumidity, KeyEthylene, KeyAlarm}

// Decode parses a data-topic message into a Reading stamped with at.
// Missing keys and malformed JSON wrap telemetry.ErrDecode; values that cannot
// be coerced wrap telemetry.ErrCoercion.
func Decode(payload []byte, at time.Time) (telemetry.Reading, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(payload, &fields); err != nil {
		return telemetry.Reading{}, fmt.Errorf("%w: %v", telemetry.ErrDecode, err)
	}
	if fields == nil {
		return telemetry.Reading{}, fmt.Errorf("%w: payload is not an object", telemetry.ErrDecode)
	}

	var missing []string
	for _, key := range RequiredKeys {
		if _, ok := fields[key]; !ok {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return telemetry.Reading{}, fmt.Errorf("%w: missing keys %v", telemetry.ErrDecode, missing)
	}

	temperature, err := coerceFloat(fields[KeyTemperature])
	if err != nil {
		return telemetry.Reading{}, coercionError(KeyTemperature, err)
	}
	humidity, err := coerceFloat(fields[KeyHumidity])
	if err != nil {
		return telemetry.Reading{}, coercionError(KeyHumidity, err)
	}
	ethylene, err := coerceFloat(fields[KeyEthylene])
	if err != nil {
		return telemetry.Reading{}, coercionError(KeyEthylene, err)
	}
	alarm, err := coerceInt(fields[KeyAlarm])
	if err != nil {
		return telemetry.Reading{}, coercionError(KeyAlarm, err)
	}

	return telemetry.Reading{
		Timestamp:   at.Truncate(time.Second),
		Temperature: telemetry.Value(temperature),
		Humidity:    telemetry.Value(humidity),
		Ethylene:    telemetry.Value(ethylene),
		Alarm:       alarm,
	}, nil
}

func coercionError(key string, err error) error {
	return fmt.Errorf("%w: %s: %v", telemetry.ErrCoercion, key, err)
}

var errNotNumeric = errors.New("not numeric")

// coerceFloat accepts JSON numbers, numeric strings and booleans.
func coerceFloat(raw json.RawMessage) (float64, error) {
	raw = bytes.TrimSpace(raw)
	var value float64
	switch {
	case len(raw) == 0 || bytes.Equal(raw, []byte("null")):
		return 0, errNotNumeric
	case bytes.Equal(raw, []byte("true")):
		return 1, nil
	case bytes.Equal(raw, []byte("false")):
		return 0, nil
	case raw[0] == '"':
		var text string
		if err := json.Unmarshal(raw, &text); err != nil {
			return 0, err
		}
		parsed, err := strconv.ParseFloat(strings.TrimSpace(text), 64)
		if err != nil {
			return 0, errNotNumeric
		}
		value = parsed
	default:
		if err := json.Unmarshal(raw, &value); err != nil {
			return 0, errNotNumeric
		}
	}
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return 0, errors.New("not finite")
	}
	return value, nil
}

// coerceInt accepts JSON numbers (truncated toward zero), integer strings and
// booleans.
func coerceInt(raw json.RawMessage) (int, error) {
	raw = bytes.TrimSpace(raw)
	switch {
	case len(raw) == 0 || bytes.Equal(raw, []byte("null")):
		return 0, errNotNumeric
	case bytes.Equal(raw, []byte("true")):
		return 1, nil
	case bytes.Equal(raw, []byte("false")):
		return 0, nil
	case raw[0] == '"':
		var text string
		if err := json.Unmarshal(raw, &text); err != nil {
			return 0, err
		}
		parsed, err := strconv.Atoi(strings.TrimSpace(text))
		if err != nil {
			return 0, errNotNumeric
		}
		return parsed, nil
	}
	var value float64
	if err := json.Unmarshal(raw, &value); err != nil {
		return 0, errNotNumeric
	}
	if math.IsNaN(value) || math.IsInf(value, 0) || math.Abs(value) > math.MaxInt32 {
		return 0, errors.New("out of range")
	}
	return int(math.Trunc(value)), nil
}
