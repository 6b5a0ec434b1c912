package forecast

import (
	"context"
	"errors"
)

// ErrOracle indicates the forecast call failed or produced nothing usable.
var ErrOracle = errors.New("forecast: oracle error")

// Oracle turns a set of chamber measurements into an advisory forecast,
// normally the number of days before the fruit spoils.
type Oracle interface {
	Forecast(ctx context.Context, ethylene, temperature, humidity float64) (string, error)
}

// OracleFunc adapts a function to Oracle.
type OracleFunc func(ctx context.Context, ethylene, temperature, humidity float64) (string, error)

func (f OracleFunc) Forecast(ctx context.Context, ethylene, temperature, humidity float64) (string, error) {
	return f(ctx, ethylene, temperature, humidity)
}
