package alarms

import (
	"errors"
	"math"

	telemetry "github.com/juanpa-corral/codigoIoTFinalSolution/internal/telemetry/domain"
)

// DefaultEthyleneThreshold is the ethylene level, in ppm, above which the
// ripening advisory fires.
const DefaultEthyleneThreshold = 0.75

// ThresholdRule is the single ethylene rule of the chamber.
type ThresholdRule struct {
	threshold float64
}

// NewThresholdRule builds a rule for a finite threshold.
func NewThresholdRule(threshold float64) (ThresholdRule, error) {
	if math.IsNaN(threshold) || math.IsInf(threshold, 0) {
		return ThresholdRule{}, errors.New("alarm: threshold must be finite")
	}
	return ThresholdRule{threshold: threshold}, nil
}

// Threshold returns the configured level.
func (r ThresholdRule) Threshold() float64 {
	return r.threshold
}

// Exceeded reports whether the reading's ethylene is strictly above the
// threshold. evaluable is false when the reading carries no ethylene value.
func (r ThresholdRule) Exceeded(reading telemetry.Reading) (exceeded bool, evaluable bool) {
	if !reading.Ethylene.Valid {
		return false, false
	}
	return reading.Ethylene.Value > r.threshold, true
}
