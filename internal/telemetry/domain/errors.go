package telemetry

import "errors"

var (
	// ErrDecode indicates a malformed or incomplete inbound payload.
	ErrDecode = errors.New("telemetry: decode error")
	// ErrCoercion indicates a field that cannot be coerced to its numeric type.
	ErrCoercion = errors.New("telemetry: coercion error")
	// ErrStore indicates a persistence failure.
	ErrStore = errors.New("telemetry: store error")
)
