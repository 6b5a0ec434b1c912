package telemetry

import (
	"context"
	"encoding/json"
	"strconv"
	"time"
)

// Measurement is an optional sensor value. Readings decoded from the bus are
// always valid; rows loaded from storage may carry NULL columns.
type Measurement struct {
	Value float64
	Valid bool
}

// Value wraps a present measurement.
func Value(v float64) Measurement {
	return Measurement{Value: v, Valid: true}
}

// MarshalJSON encodes an absent measurement as null.
func (m Measurement) MarshalJSON() ([]byte, error) {
	if !m.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(m.Value)
}

func (m Measurement) String() string {
	if !m.Valid {
		return "null"
	}
	return strconv.FormatFloat(m.Value, 'f', -1, 64)
}

// Reading is a single sensor sample of the fruit chamber.
type Reading struct {
	Timestamp   time.Time
	Temperature Measurement
	Humidity    Measurement
	Ethylene    Measurement
	Alarm       int
}

// Complete reports whether all three measurements are present.
func (r Reading) Complete() bool {
	return r.Temperature.Valid && r.Humidity.Valid && r.Ethylene.Valid
}

// ReadingRepository persists readings. Readings are append-only.
type ReadingRepository interface {
	Insert(ctx context.Context, reading Reading) error
	// Latest returns the most recently stored reading; ok is false when the
	// store is empty.
	Latest(ctx context.Context) (reading Reading, ok bool, err error)
}

// ReadingQuery lists stored readings for reporting.
type ReadingQuery interface {
	ListRecent(ctx context.Context, limit int) ([]Reading, error)
}
