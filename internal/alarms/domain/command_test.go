package alarms

import (
	"errors"
	"math"
	"testing"

	telemetry "github.com/juanpa-corral/codigoIoTFinalSolution/internal/telemetry/domain"
)

func TestParseControl(t *testing.T) {
	valid := map[string]Command{"ON": CommandOn, "on": CommandOn, "oN": CommandOn, "off": CommandOff, "OFF": CommandOff}
	for in, want := range valid {
		got, err := ParseControl(in)
		if err != nil || got != want {
			t.Fatalf("ParseControl(%q) = %q, %v", in, got, err)
		}
	}
	for _, in := range []string{"", "toggle", " on", "on\n", "1", "ONN"} {
		if _, err := ParseControl(in); !errors.Is(err, ErrInvalidCommand) {
			t.Fatalf("ParseControl(%q): expected invalid command, got %v", in, err)
		}
	}
}

func TestParseCloudValue(t *testing.T) {
	valid := map[string]Command{
		`{"value": 1.0}`: CommandOn,
		`{"value": 1}`:   CommandOn,
		`{"value": 0.0}`: CommandOff,
		`{"value": 0}`:   CommandOff,
		`{"value": -0}`:  CommandOff,
	}
	for in, want := range valid {
		got, err := ParseCloudValue([]byte(in))
		if err != nil || got != want {
			t.Fatalf("ParseCloudValue(%s) = %q, %v", in, got, err)
		}
	}
	invalid := []string{
		`{"value": 2}`,
		`{"value": 0.5}`,
		`{"value": true}`,
		`{"value": "1"}`,
		`{"value": null}`,
		`{}`,
		`[1]`,
		`1`,
		`garbage`,
	}
	for _, in := range invalid {
		if _, err := ParseCloudValue([]byte(in)); !errors.Is(err, ErrInvalidCommand) {
			t.Fatalf("ParseCloudValue(%s): expected invalid command, got %v", in, err)
		}
	}
}

func TestThresholdRuleIsStrict(t *testing.T) {
	rule, err := NewThresholdRule(0.75)
	if err != nil {
		t.Fatalf("new rule: %v", err)
	}
	cases := []struct {
		ethylene telemetry.Measurement
		exceeded bool
		ok       bool
	}{
		{telemetry.Value(0.75), false, true},
		{telemetry.Value(0.7500001), true, true},
		{telemetry.Value(0.2), false, true},
		{telemetry.Measurement{}, false, false},
	}
	for _, tc := range cases {
		exceeded, ok := rule.Exceeded(telemetry.Reading{Ethylene: tc.ethylene})
		if exceeded != tc.exceeded || ok != tc.ok {
			t.Fatalf("ethylene %v: got exceeded=%v ok=%v", tc.ethylene, exceeded, ok)
		}
	}
}

func TestThresholdRuleRejectsNaN(t *testing.T) {
	if _, err := NewThresholdRule(math.NaN()); err == nil {
		t.Fatalf("expected error for NaN threshold")
	}
}
