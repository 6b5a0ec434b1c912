package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	telemetry "github.com/juanpa-corral/codigoIoTFinalSolution/internal/telemetry/domain"
)

// AdvisoryEvent names the webhook event type.
const AdvisoryEvent = "ripening_advisory"

// advisoryPayload is the JSON body posted for every advisory. Absent
// measurements encode as null; forecast_days is omitted when the oracle did
// not reply with a number.
type advisoryPayload struct {
	Event        string                `json:"event"`
	Device       string                `json:"device"`
	Source       string                `json:"source"`
	TraceID      string                `json:"trace_id,omitempty"`
	At           string                `json:"at"`
	Ethylene     telemetry.Measurement `json:"ethylene"`
	Temperature  telemetry.Measurement `json:"temperature"`
	Humidity     telemetry.Measurement `json:"humidity"`
	Threshold    float64               `json:"threshold"`
	Forecast     string                `json:"forecast"`
	ForecastDays *float64              `json:"forecast_days,omitempty"`
	Suggestion   string                `json:"suggestion"`
	DashboardURL string                `json:"dashboard_url,omitempty"`
	Text         string                `json:"text"`
}

func newAdvisoryPayload(msg Message) advisoryPayload {
	advisory := msg.Advisory
	payload := advisoryPayload{
		Event:        AdvisoryEvent,
		Device:       msg.Device,
		Source:       advisory.Source,
		TraceID:      advisory.TraceID,
		Ethylene:     advisory.Reading.Ethylene,
		Temperature:  advisory.Reading.Temperature,
		Humidity:     advisory.Reading.Humidity,
		Threshold:    advisory.Threshold,
		Forecast:     advisory.Notification,
		Suggestion:   msg.Suggestion,
		DashboardURL: msg.ReportURL,
		Text:         msg.Text,
	}
	if at := advisoryTime(advisory); !at.IsZero() {
		payload.At = at.Format(time.RFC3339)
	}
	if days, ok := forecastDays(advisory.Notification); ok {
		payload.ForecastDays = &days
	}
	return payload
}

// WebhookChannel posts advisories as JSON to an HTTP endpoint.
type WebhookChannel struct {
	url    string
	client *http.Client
}

// WebhookOption configures the webhook channel.
type WebhookOption func(*WebhookChannel)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(client *http.Client) WebhookOption {
	return func(ch *WebhookChannel) {
		if client != nil {
			ch.client = client
		}
	}
}

// NewWebhookChannel constructs a webhook channel.
func NewWebhookChannel(url string, opts ...WebhookOption) (*WebhookChannel, error) {
	if url == "" {
		return nil, errors.New("webhook channel: empty url")
	}
	channel := &WebhookChannel{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(channel)
	}
	return channel, nil
}

// Send posts the advisory payload.
func (w *WebhookChannel) Send(ctx context.Context, msg Message) error {
	if w == nil || w.url == "" {
		return errors.New("webhook channel: empty url")
	}
	body, err := json.Marshal(newAdvisoryPayload(msg))
	if err != nil {
		return fmt.Errorf("webhook channel: encode: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if msg.Advisory.TraceID != "" {
		req.Header.Set("X-Trace-Id", msg.Advisory.TraceID)
	}
	resp, err := w.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook channel: non-2xx response %d", resp.StatusCode)
	}
	return nil
}
