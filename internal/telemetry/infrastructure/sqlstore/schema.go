package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// DefaultTable is the table the sensor readings live in.
const DefaultTable = "sensor_data"

// EnsureSchema creates the readings table when it does not exist. The sqlite
// layout matches databases written by earlier versions of the bridge.
func EnsureSchema(ctx context.Context, db *sql.DB, dialect Dialect, table string) error {
	if db == nil {
		return errors.New("sqlstore: nil db")
	}
	if table == "" {
		table = DefaultTable
	}
	var ddl string
	switch dialect {
	case DialectSQLite:
		ddl = fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	"timestamp" TEXT,
	temperature REAL,
	humidity REAL,
	ethylene REAL,
	alarm INTEGER
)`, table)
	case DialectPostgres:
		ddl = fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	id BIGSERIAL PRIMARY KEY,
	"timestamp" TEXT,
	temperature DOUBLE PRECISION,
	humidity DOUBLE PRECISION,
	ethylene DOUBLE PRECISION,
	alarm INTEGER
)`, table)
	default:
		return fmt.Errorf("sqlstore: unknown dialect %q", dialect)
	}
	if _, err := db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("sqlstore: ensure schema: %w", err)
	}
	return nil
}
