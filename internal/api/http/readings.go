package apihttp

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	telemetry "github.com/juanpa-corral/codigoIoTFinalSolution/internal/telemetry/domain"
)

const (
	timeLayout = time.RFC3339

	// DefaultListLimit bounds GET /api/v1/readings without ?limit.
	DefaultListLimit = 50
	// MaxListLimit caps any ?limit value.
	MaxListLimit = 1000
)

// ReadingSource is the read side of the reading store used by the API.
type ReadingSource interface {
	Latest(ctx context.Context) (telemetry.Reading, bool, error)
	ListRecent(ctx context.Context, limit int) ([]telemetry.Reading, error)
}

type readingRow struct {
	Timestamp   string                `json:"timestamp"`
	Temperature telemetry.Measurement `json:"temperature"`
	Humidity    telemetry.Measurement `json:"humidity"`
	Ethylene    telemetry.Measurement `json:"ethylene"`
	Alarm       int                   `json:"alarm"`
}

func toRow(reading telemetry.Reading) readingRow {
	return readingRow{
		Timestamp:   formatTime(reading.Timestamp),
		Temperature: reading.Temperature,
		Humidity:    reading.Humidity,
		Ethylene:    reading.Ethylene,
		Alarm:       reading.Alarm,
	}
}

// LatestHandler serves the most recent stored reading.
type LatestHandler struct {
	source ReadingSource
}

// NewLatestHandler constructs a LatestHandler.
func NewLatestHandler(source ReadingSource) *LatestHandler {
	return &LatestHandler{source: source}
}

// ServeHTTP handles GET /api/v1/readings/latest.
func (h *LatestHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if h == nil || h.source == nil {
		http.Error(w, "server not ready", http.StatusServiceUnavailable)
		return
	}

	reading, ok, err := h.source.Latest(r.Context())
	if err != nil {
		http.Error(w, "query latest error", http.StatusInternalServerError)
		return
	}
	if !ok {
		http.Error(w, "no readings stored", http.StatusNotFound)
		return
	}

	writeJSON(w, toRow(reading))
}

// ListHandler serves recent readings, newest first.
type ListHandler struct {
	source ReadingSource
}

// NewListHandler constructs a ListHandler.
func NewListHandler(source ReadingSource) *ListHandler {
	return &ListHandler{source: source}
}

// ServeHTTP handles GET /api/v1/readings?limit=N.
func (h *ListHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if h == nil || h.source == nil {
		http.Error(w, "server not ready", http.StatusServiceUnavailable)
		return
	}

	limit, err := parseLimit(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	readings, err := h.source.ListRecent(r.Context(), limit)
	if err != nil {
		http.Error(w, "query readings error", http.StatusInternalServerError)
		return
	}
	rows := make([]readingRow, 0, len(readings))
	for _, reading := range readings {
		rows = append(rows, toRow(reading))
	}
	writeJSON(w, rows)
}

func writeJSON(w http.ResponseWriter, value any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(value)
}

func parseLimit(r *http.Request) (int, error) {
	value := r.URL.Query().Get("limit")
	if value == "" {
		return DefaultListLimit, nil
	}
	limit, err := strconv.Atoi(value)
	if err != nil || limit <= 0 {
		return 0, errors.New("limit must be a positive integer")
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	return limit, nil
}

func formatTime(value time.Time) string {
	if value.IsZero() {
		return ""
	}
	return value.Format(timeLayout)
}

func formatMeasurement(m telemetry.Measurement) string {
	if !m.Valid {
		return ""
	}
	return strconv.FormatFloat(m.Value, 'f', -1, 64)
}
