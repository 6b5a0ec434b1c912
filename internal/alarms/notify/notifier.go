package notify

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	alarmapp "github.com/juanpa-corral/codigoIoTFinalSolution/internal/alarms/application"
	"github.com/juanpa-corral/codigoIoTFinalSolution/internal/observability/metrics"
	telemetry "github.com/juanpa-corral/codigoIoTFinalSolution/internal/telemetry/domain"
)

// Clock provides time for suppression windows.
type Clock interface {
	Now() time.Time
}

// Channel delivers a rendered advisory.
type Channel interface {
	Send(ctx context.Context, msg Message) error
}

// Message is one advisory ready for delivery: the rendered text plus the
// reading and forecast it was rendered from.
type Message struct {
	Text       string
	Device     string
	Advisory   alarmapp.Advisory
	Suggestion string
	ReportURL  string
}

// ReportURLResolver provides a dashboard link for an advisory when available.
type ReportURLResolver func(ctx context.Context, advisory alarmapp.Advisory) string

type sendRecord struct {
	at   time.Time
	hash string
}

// Notifier renders advisories and sends them through a channel.
type Notifier struct {
	channel        Channel
	name           string
	template       *Template
	device         string
	clock          Clock
	logger         logrus.FieldLogger
	mu             sync.Mutex
	last           *sendRecord
	cooldown       time.Duration
	dedupeWindow   time.Duration
	reportURL      ReportURLResolver
	requestTimeout time.Duration
}

// Option configures the notifier.
type Option func(*Notifier)

// WithClock overrides the default clock.
func WithClock(clock Clock) Option {
	return func(n *Notifier) {
		if clock != nil {
			n.clock = clock
		}
	}
}

// WithRequestTimeout bounds each channel send.
func WithRequestTimeout(timeout time.Duration) Option {
	return func(n *Notifier) {
		if timeout > 0 {
			n.requestTimeout = timeout
		}
	}
}

// WithCooldown sets a minimum interval between notifications.
func WithCooldown(interval time.Duration) Option {
	return func(n *Notifier) {
		if interval > 0 {
			n.cooldown = interval
		}
	}
}

// WithDedupeWindow suppresses identical notifications within the window.
func WithDedupeWindow(window time.Duration) Option {
	return func(n *Notifier) {
		if window > 0 {
			n.dedupeWindow = window
		}
	}
}

// WithReportURLResolver injects a report link resolver.
func WithReportURLResolver(resolver ReportURLResolver) Option {
	return func(n *Notifier) {
		if resolver != nil {
			n.reportURL = resolver
		}
	}
}

// WithDevice sets the device label shown in messages.
func WithDevice(device string) Option {
	return func(n *Notifier) {
		if device != "" {
			n.device = device
		}
	}
}

// WithName labels the channel in logs.
func WithName(name string) Option {
	return func(n *Notifier) {
		if name != "" {
			n.name = name
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger logrus.FieldLogger) Option {
	return func(n *Notifier) {
		if logger != nil {
			n.logger = logger
		}
	}
}

// NewNotifier constructs an advisory notifier.
func NewNotifier(channel Channel, template *Template, opts ...Option) (*Notifier, error) {
	if channel == nil {
		return nil, errors.New("advisory notifier: nil channel")
	}
	if template == nil {
		defaultTemplate, err := NewTemplate("")
		if err != nil {
			return nil, err
		}
		template = defaultTemplate
	}
	n := &Notifier{
		channel:        channel,
		name:           "channel",
		template:       template,
		device:         "fruit_monitor",
		clock:          systemClock{},
		logger:         logrus.StandardLogger(),
		requestTimeout: 10 * time.Second,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n, nil
}

// Notify implements alarmapp.AdvisoryNotifier. Failures are logged only.
func (n *Notifier) Notify(ctx context.Context, advisory alarmapp.Advisory) {
	if n == nil || n.channel == nil {
		return
	}
	logger := n.logger.WithFields(logrus.Fields{"channel": n.name, "trace_id": advisory.TraceID})

	reportURL := ""
	if n.reportURL != nil {
		reportURL = n.reportURL(ctx, advisory)
	}
	data := buildTemplateData(n.device, advisory, reportURL)
	content, err := n.template.Render(data)
	if err != nil {
		logger.WithError(err).Error("advisory render failed")
		metrics.IncAdvisoryEvent("render_failed")
		return
	}
	claim, prev, ok := n.reserve(content)
	if !ok {
		logger.Debug("advisory suppressed")
		metrics.IncAdvisoryEvent("suppressed")
		return
	}

	sendCtx := ctx
	if n.requestTimeout > 0 {
		var cancel context.CancelFunc
		sendCtx, cancel = context.WithTimeout(ctx, n.requestTimeout)
		defer cancel()
	}
	msg := Message{
		Text:       content,
		Device:     n.device,
		Advisory:   advisory,
		Suggestion: data.Suggestion,
		ReportURL:  reportURL,
	}
	if err := n.channel.Send(sendCtx, msg); err != nil {
		n.release(claim, prev)
		logger.WithError(err).Error("advisory send failed")
		metrics.IncAdvisoryEvent("failed")
		return
	}
	metrics.IncAdvisoryEvent("sent")
	logger.Info("advisory sent")
}

func buildTemplateData(device string, advisory alarmapp.Advisory, reportURL string) TemplateData {
	at := advisoryTime(advisory)
	return TemplateData{
		Device:      device,
		Source:      advisory.Source,
		Ethylene:    formatMeasurement(advisory.Reading.Ethylene),
		Temperature: formatMeasurement(advisory.Reading.Temperature),
		Humidity:    formatMeasurement(advisory.Reading.Humidity),
		Threshold:   fmt.Sprintf("> %.2f", advisory.Threshold),
		Forecast:    strings.TrimSpace(advisory.Notification),
		Time:        at.Format("2006-01-02 15:04:05"),
		Suggestion:  suggestionFor(advisory.Notification),
		ReportURL:   reportURL,
		TraceID:     advisory.TraceID,
	}
}

func advisoryTime(advisory alarmapp.Advisory) time.Time {
	if advisory.At.IsZero() {
		return advisory.Reading.Timestamp
	}
	return advisory.At
}

// forecastDays reads the oracle reply as a day count.
func forecastDays(notification string) (float64, bool) {
	days, err := strconv.ParseFloat(strings.TrimSpace(notification), 64)
	if err != nil || math.IsNaN(days) || math.IsInf(days, 0) {
		return 0, false
	}
	return days, true
}

func suggestionFor(notification string) string {
	days, ok := forecastDays(notification)
	if !ok {
		return "Inspect the chamber and check the sensors."
	}
	switch {
	case days <= 2:
		return "Move the fruit to sale or processing today."
	case days <= 5:
		return "Prioritise this batch and increase ventilation."
	default:
		return "Keep monitoring the chamber."
	}
}

func formatMeasurement(m telemetry.Measurement) string {
	if !m.Valid {
		return "n/a"
	}
	return fmt.Sprintf("%.2f", m.Value)
}

// reserve checks the suppression windows and claims the slot under one lock
// hold, so concurrent advisories cannot both pass. claim is nil when
// suppression is disabled.
func (n *Notifier) reserve(content string) (claim, prev *sendRecord, ok bool) {
	if n.cooldown <= 0 && n.dedupeWindow <= 0 {
		return nil, nil, true
	}
	now := n.clock.Now().UTC()
	hash := hashContent(content)

	n.mu.Lock()
	defer n.mu.Unlock()
	if last := n.last; last != nil {
		if n.cooldown > 0 && now.Sub(last.at) < n.cooldown {
			return nil, nil, false
		}
		if n.dedupeWindow > 0 && last.hash == hash && now.Sub(last.at) < n.dedupeWindow {
			return nil, nil, false
		}
	}
	claim = &sendRecord{at: now, hash: hash}
	prev, n.last = n.last, claim
	return claim, prev, true
}

// release drops a claim whose send failed, unless a later send replaced it.
func (n *Notifier) release(claim, prev *sendRecord) {
	if claim == nil {
		return
	}
	n.mu.Lock()
	if n.last == claim {
		n.last = prev
	}
	n.mu.Unlock()
}

func hashContent(content string) string {
	sum := sha1.Sum([]byte(content))
	return hex.EncodeToString(sum[:8])
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }
