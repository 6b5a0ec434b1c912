package alarms

import "errors"

// ErrInvalidCommand indicates a control value that is neither ON nor OFF.
var ErrInvalidCommand = errors.New("alarm: invalid command")
