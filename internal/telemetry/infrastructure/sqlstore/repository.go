package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	telemetry "github.com/juanpa-corral/codigoIoTFinalSolution/internal/telemetry/domain"
)

// TimestampLayout is the textual timestamp format stored in the table.
const TimestampLayout = "2006-01-02 15:04:05"

// Clock provides current time.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// Option configures the repository.
type Option func(*ReadingRepository)

// WithTable overrides the readings table name.
func WithTable(table string) Option {
	return func(r *ReadingRepository) {
		if table != "" {
			r.table = table
		}
	}
}

// WithClock stamps readings that arrive without a timestamp.
func WithClock(clock Clock) Option {
	return func(r *ReadingRepository) {
		if clock != nil {
			r.clock = clock
		}
	}
}

// WithLocation sets the zone stored timestamps are written and parsed in.
func WithLocation(loc *time.Location) Option {
	return func(r *ReadingRepository) {
		if loc != nil {
			r.loc = loc
		}
	}
}

// ReadingRepository is the SQL-backed reading store.
type ReadingRepository struct {
	db      *sql.DB
	dialect Dialect
	table   string
	clock   Clock
	loc     *time.Location
}

// NewReadingRepository constructs a repository over an open database.
func NewReadingRepository(db *sql.DB, dialect Dialect, opts ...Option) (*ReadingRepository, error) {
	if db == nil {
		return nil, errors.New("sqlstore: nil db")
	}
	if dialect != DialectSQLite && dialect != DialectPostgres {
		return nil, fmt.Errorf("sqlstore: unknown dialect %q", dialect)
	}
	repo := &ReadingRepository{
		db:      db,
		dialect: dialect,
		table:   DefaultTable,
		clock:   systemClock{},
		loc:     time.Local,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(repo)
		}
	}
	return repo, nil
}

// Table returns the readings table name.
func (r *ReadingRepository) Table() string {
	return r.table
}

// Insert appends a reading.
func (r *ReadingRepository) Insert(ctx context.Context, reading telemetry.Reading) error {
	if r == nil || r.db == nil {
		return errors.New("sqlstore: nil db")
	}
	ts := reading.Timestamp
	if ts.IsZero() {
		ts = r.clock.Now()
	}
	query := r.rebind(fmt.Sprintf(`
INSERT INTO %s ("timestamp", temperature, humidity, ethylene, alarm)
VALUES (?, ?, ?, ?, ?)`, r.table))
	_, err := r.db.ExecContext(ctx, query,
		ts.In(r.loc).Format(TimestampLayout),
		nullFloat(reading.Temperature),
		nullFloat(reading.Humidity),
		nullFloat(reading.Ethylene),
		reading.Alarm,
	)
	if err != nil {
		return fmt.Errorf("%w: insert: %v", telemetry.ErrStore, err)
	}
	return nil
}

// Latest returns the reading with the greatest timestamp. Rows sharing a
// timestamp resolve to the last inserted one.
func (r *ReadingRepository) Latest(ctx context.Context) (telemetry.Reading, bool, error) {
	if r == nil || r.db == nil {
		return telemetry.Reading{}, false, errors.New("sqlstore: nil db")
	}
	row := r.db.QueryRowContext(ctx, fmt.Sprintf(`
SELECT "timestamp", temperature, humidity, ethylene, alarm
FROM %s
ORDER BY "timestamp" DESC, %s DESC
LIMIT 1`, r.table, r.insertOrderColumn()))

	reading, err := r.scan(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return telemetry.Reading{}, false, nil
		}
		return telemetry.Reading{}, false, fmt.Errorf("%w: latest: %v", telemetry.ErrStore, err)
	}
	return reading, true, nil
}

// ListRecent returns up to limit readings, newest first.
func (r *ReadingRepository) ListRecent(ctx context.Context, limit int) ([]telemetry.Reading, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("sqlstore: nil db")
	}
	if limit <= 0 {
		return []telemetry.Reading{}, nil
	}
	query := r.rebind(fmt.Sprintf(`
SELECT "timestamp", temperature, humidity, ethylene, alarm
FROM %s
ORDER BY "timestamp" DESC, %s DESC
LIMIT ?`, r.table, r.insertOrderColumn()))
	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: list: %v", telemetry.ErrStore, err)
	}
	defer rows.Close()

	readings := make([]telemetry.Reading, 0, limit)
	for rows.Next() {
		reading, err := r.scan(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: list: %v", telemetry.ErrStore, err)
		}
		readings = append(readings, reading)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: list: %v", telemetry.ErrStore, err)
	}
	return readings, nil
}

// Count returns the number of stored readings.
func (r *ReadingRepository) Count(ctx context.Context) (int64, error) {
	if r == nil || r.db == nil {
		return 0, errors.New("sqlstore: nil db")
	}
	var count int64
	if err := r.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM %s`, r.table)).Scan(&count); err != nil {
		return 0, fmt.Errorf("%w: count: %v", telemetry.ErrStore, err)
	}
	return count, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *ReadingRepository) scan(row rowScanner) (telemetry.Reading, error) {
	var (
		ts                              sql.NullString
		temperature, humidity, ethylene sql.NullFloat64
		alarm                           sql.NullInt64
	)
	if err := row.Scan(&ts, &temperature, &humidity, &ethylene, &alarm); err != nil {
		return telemetry.Reading{}, err
	}
	reading := telemetry.Reading{
		Timestamp:   r.parseTimestamp(ts),
		Temperature: measurement(temperature),
		Humidity:    measurement(humidity),
		Ethylene:    measurement(ethylene),
	}
	if alarm.Valid {
		reading.Alarm = int(alarm.Int64)
	}
	return reading, nil
}

// parseTimestamp returns the zero time for NULL or unparsable values.
func (r *ReadingRepository) parseTimestamp(value sql.NullString) time.Time {
	if !value.Valid {
		return time.Time{}
	}
	text := strings.TrimSpace(value.String)
	if ts, err := time.ParseInLocation(TimestampLayout, text, r.loc); err == nil {
		return ts
	}
	if ts, err := time.Parse(time.RFC3339Nano, text); err == nil {
		return ts.In(r.loc)
	}
	return time.Time{}
}

func (r *ReadingRepository) insertOrderColumn() string {
	if r.dialect == DialectPostgres {
		return "id"
	}
	return "rowid"
}

// rebind rewrites ? placeholders to $n for postgres.
func (r *ReadingRepository) rebind(query string) string {
	if r.dialect != DialectPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, ch := range query {
		if ch == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(ch)
	}
	return b.String()
}

func nullFloat(m telemetry.Measurement) sql.NullFloat64 {
	return sql.NullFloat64{Float64: m.Value, Valid: m.Valid}
}

func measurement(v sql.NullFloat64) telemetry.Measurement {
	return telemetry.Measurement{Value: v.Float64, Valid: v.Valid}
}
