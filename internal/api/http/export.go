package apihttp

import (
	"bytes"
	"fmt"
	"net/http"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/xuri/excelize/v2"

	"github.com/juanpa-corral/codigoIoTFinalSolution/internal/observability/metrics"
	telemetry "github.com/juanpa-corral/codigoIoTFinalSolution/internal/telemetry/domain"
)

// Export formats.
const (
	FormatXLSX = "xlsx"
	FormatPDF  = "pdf"
)

var exportHeader = []string{"Timestamp", "Temperature", "Humidity", "Ethylene", "Alarm"}

// ExportHandler renders recent readings as a downloadable report.
type ExportHandler struct {
	source ReadingSource
	format string
	now    func() time.Time
}

// NewExportHandler constructs an ExportHandler for format.
func NewExportHandler(source ReadingSource, format string) *ExportHandler {
	return &ExportHandler{source: source, format: format, now: time.Now}
}

// ServeHTTP handles GET /api/v1/readings/export.{xlsx,pdf}.
func (h *ExportHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if h == nil || h.source == nil {
		http.Error(w, "server not ready", http.StatusServiceUnavailable)
		return
	}
	start := time.Now()

	limit, err := parseLimit(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	readings, err := h.source.ListRecent(r.Context(), limit)
	if err != nil {
		metrics.ObserveExport(h.format, metrics.ResultError, time.Since(start))
		http.Error(w, "query readings error", http.StatusInternalServerError)
		return
	}

	var (
		body        []byte
		contentType string
	)
	generated := h.now()
	switch h.format {
	case FormatXLSX:
		body, err = BuildReadingsXLSX(readings, generated)
		contentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case FormatPDF:
		body, err = BuildReadingsPDF(readings, generated)
		contentType = "application/pdf"
	default:
		http.Error(w, "unsupported export format", http.StatusNotFound)
		return
	}
	if err != nil {
		metrics.ObserveExport(h.format, metrics.ResultError, time.Since(start))
		http.Error(w, "render export error", http.StatusInternalServerError)
		return
	}
	metrics.ObserveExport(h.format, metrics.ResultOK, time.Since(start))

	filename := fmt.Sprintf("readings-%s.%s", generated.Format("20060102-150405"), h.format)
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	_, _ = w.Write(body)
}

// BuildReadingsPDF renders a one-table PDF report.
func BuildReadingsPDF(readings []telemetry.Reading, generated time.Time) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetFont("Arial", "", 12)
	pdf.AddPage()

	pdf.Cell(0, 8, "Fruit Chamber Readings")
	pdf.Ln(10)
	pdf.SetFont("Arial", "", 10)
	pdf.Cell(0, 6, fmt.Sprintf("Generated: %s", generated.Format(timeLayout)))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Rows: %d", len(readings)))
	pdf.Ln(8)

	widths := []float64{50, 30, 30, 30, 20}
	pdf.SetFont("Arial", "B", 10)
	for i, title := range exportHeader {
		pdf.CellFormat(widths[i], 6, title, "1", 0, "C", false, 0, "")
	}
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 10)
	for _, reading := range readings {
		pdf.CellFormat(widths[0], 6, formatTime(reading.Timestamp), "1", 0, "C", false, 0, "")
		pdf.CellFormat(widths[1], 6, formatMeasurement(reading.Temperature), "1", 0, "R", false, 0, "")
		pdf.CellFormat(widths[2], 6, formatMeasurement(reading.Humidity), "1", 0, "R", false, 0, "")
		pdf.CellFormat(widths[3], 6, formatMeasurement(reading.Ethylene), "1", 0, "R", false, 0, "")
		pdf.CellFormat(widths[4], 6, fmt.Sprintf("%d", reading.Alarm), "1", 0, "C", false, 0, "")
		pdf.Ln(-1)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// BuildReadingsXLSX renders a workbook with a summary and a readings sheet.
func BuildReadingsXLSX(readings []telemetry.Reading, generated time.Time) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	summarySheet := "summary"
	readingsSheet := "readings"
	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		return nil, err
	}
	if _, err := f.NewSheet(readingsSheet); err != nil {
		return nil, err
	}

	_ = f.SetCellValue(summarySheet, "A1", "Fruit Chamber Readings")
	_ = f.SetCellValue(summarySheet, "A3", "Generated")
	_ = f.SetCellValue(summarySheet, "B3", generated.Format(timeLayout))
	_ = f.SetCellValue(summarySheet, "A4", "Rows")
	_ = f.SetCellValue(summarySheet, "B4", len(readings))

	for i, title := range exportHeader {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return nil, err
		}
		_ = f.SetCellValue(readingsSheet, cell, title)
	}
	for i, reading := range readings {
		row := i + 2
		_ = f.SetCellValue(readingsSheet, fmt.Sprintf("A%d", row), formatTime(reading.Timestamp))
		setMeasurement(f, readingsSheet, fmt.Sprintf("B%d", row), reading.Temperature)
		setMeasurement(f, readingsSheet, fmt.Sprintf("C%d", row), reading.Humidity)
		setMeasurement(f, readingsSheet, fmt.Sprintf("D%d", row), reading.Ethylene)
		_ = f.SetCellValue(readingsSheet, fmt.Sprintf("E%d", row), reading.Alarm)
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// setMeasurement leaves NULL measurements as empty cells.
func setMeasurement(f *excelize.File, sheet, cell string, m telemetry.Measurement) {
	if !m.Valid {
		return
	}
	_ = f.SetCellValue(sheet, cell, m.Value)
}
