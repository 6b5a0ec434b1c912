package alarms

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Command switches the physical alarm.
type Command string

const (
	CommandOn  Command = "ON"
	CommandOff Command = "OFF"
)

func (c Command) String() string { return string(c) }

// ParseControl parses a local control message. The text is uppercased as-is;
// surrounding whitespace is not accepted.
func ParseControl(text string) (Command, error) {
	switch cmd := Command(strings.ToUpper(text)); cmd {
	case CommandOn, CommandOff:
		return cmd, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidCommand, text)
	}
}

// FromFlag maps the cloud numeric alarm flag to a command.
func FromFlag(value float64) (Command, error) {
	switch value {
	case 1:
		return CommandOn, nil
	case 0:
		return CommandOff, nil
	default:
		return "", fmt.Errorf("%w: value %v", ErrInvalidCommand, value)
	}
}

// ParseCloudValue decodes a cloud alarm payload of the form {"value": 1.0}.
// Only JSON numbers are accepted.
func ParseCloudValue(payload []byte) (Command, error) {
	var body map[string]json.RawMessage
	if err := json.Unmarshal(payload, &body); err != nil || body == nil {
		return "", fmt.Errorf("%w: payload is not an object", ErrInvalidCommand)
	}
	raw, ok := body["value"]
	if !ok {
		return "", fmt.Errorf("%w: missing value", ErrInvalidCommand)
	}
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || !isNumberStart(raw[0]) {
		return "", fmt.Errorf("%w: value %s is not a number", ErrInvalidCommand, raw)
	}
	var value float64
	if err := json.Unmarshal(raw, &value); err != nil {
		return "", fmt.Errorf("%w: value %s is not a number", ErrInvalidCommand, raw)
	}
	return FromFlag(value)
}

func isNumberStart(b byte) bool {
	return b == '-' || (b >= '0' && b <= '9')
}
