package application

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"

	alarms "github.com/juanpa-corral/codigoIoTFinalSolution/internal/alarms/domain"
	"github.com/juanpa-corral/codigoIoTFinalSolution/internal/forecast"
	"github.com/juanpa-corral/codigoIoTFinalSolution/internal/mqttbus"
	"github.com/juanpa-corral/codigoIoTFinalSolution/internal/observability/logging"
	telemetry "github.com/juanpa-corral/codigoIoTFinalSolution/internal/telemetry/domain"
)

// journal records side effects across stubs so ordering can be asserted.
type journal struct {
	mu      sync.Mutex
	entries []string
}

func (j *journal) add(entry string) {
	j.mu.Lock()
	j.entries = append(j.entries, entry)
	j.mu.Unlock()
}

func (j *journal) all() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]string(nil), j.entries...)
}

type stubOracle struct {
	journal *journal
	reply   string
	err     error
	calls   int
	args    [][3]float64
}

func (s *stubOracle) Forecast(_ context.Context, ethylene, temperature, humidity float64) (string, error) {
	s.calls++
	s.args = append(s.args, [3]float64{ethylene, temperature, humidity})
	s.journal.add("oracle")
	return s.reply, s.err
}

type stubCloud struct {
	journal *journal
	err     error
	texts   []string
}

func (s *stubCloud) PublishForecast(_ context.Context, text string) error {
	s.texts = append(s.texts, text)
	s.journal.add("cloud:" + text)
	return s.err
}

type stubLocal struct {
	journal *journal
	errs    map[string]error
}

func (s *stubLocal) Publish(_ context.Context, topic string, payload []byte) error {
	s.journal.add(topic + ":" + string(payload))
	return s.errs[topic]
}

type recordingNotifier struct {
	advisories []Advisory
}

func (r *recordingNotifier) Notify(_ context.Context, advisory Advisory) {
	r.advisories = append(r.advisories, advisory)
}

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

type fixture struct {
	journal  *journal
	oracle   *stubOracle
	cloud    *stubCloud
	local    *stubLocal
	notifier *recordingNotifier
	pipeline *Pipeline
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	j := &journal{}
	f := &fixture{
		journal:  j,
		oracle:   &stubOracle{journal: j, reply: "4"},
		cloud:    &stubCloud{journal: j},
		local:    &stubLocal{journal: j, errs: map[string]error{}},
		notifier: &recordingNotifier{},
	}
	rule, err := alarms.NewThresholdRule(0.75)
	if err != nil {
		t.Fatalf("rule: %v", err)
	}
	logger, _ := test.NewNullLogger()
	f.pipeline, err = NewPipeline(rule, f.oracle, f.cloud, f.local,
		WithNotifier(f.notifier),
		WithLogger(logger),
		WithClock(fixedClock{now: time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)}),
	)
	if err != nil {
		t.Fatalf("new pipeline: %v", err)
	}
	return f
}

func fullReading(ethylene float64) telemetry.Reading {
	return telemetry.Reading{
		Temperature: telemetry.Value(22),
		Humidity:    telemetry.Value(55),
		Ethylene:    telemetry.Value(ethylene),
	}
}

func assertJournal(t *testing.T, got []string, want ...string) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("step %d: expected %q, got %q (all: %v)", i, want[i], got[i], got)
		}
	}
}

func TestEvaluateTriggeredOrder(t *testing.T) {
	f := newFixture(t)
	out := f.pipeline.Evaluate(context.Background(), fullReading(0.9), "local")

	if !out.Triggered || out.Notification != "4" {
		t.Fatalf("unexpected outcome: %+v", out)
	}
	assertJournal(t, f.journal.all(),
		"oracle",
		"cloud:4",
		"sensors/notification:4",
		"sensors/alarm:ON",
	)
	if len(f.oracle.args) != 1 || f.oracle.args[0] != [3]float64{0.9, 22, 55} {
		t.Fatalf("expected oracle called with (ethylene, temperature, humidity) = [0.9 22 55], got %v", f.oracle.args)
	}
	if len(f.notifier.advisories) != 1 {
		t.Fatalf("expected one advisory, got %d", len(f.notifier.advisories))
	}
	advisory := f.notifier.advisories[0]
	if advisory.Source != "local" || advisory.Threshold != 0.75 || advisory.Notification != "4" {
		t.Fatalf("unexpected advisory: %+v", advisory)
	}
}

func TestEvaluateAtThresholdDoesNothing(t *testing.T) {
	f := newFixture(t)
	out := f.pipeline.Evaluate(context.Background(), fullReading(0.75), "resync")

	if out.Triggered || !out.Evaluable {
		t.Fatalf("unexpected outcome: %+v", out)
	}
	if entries := f.journal.all(); len(entries) != 0 {
		t.Fatalf("expected no side effects, got %v", entries)
	}
	if len(f.notifier.advisories) != 0 {
		t.Fatalf("expected no advisory")
	}
}

func TestEvaluateOracleFailureStillRaisesAlarm(t *testing.T) {
	f := newFixture(t)
	f.oracle.err = forecast.ErrOracle
	f.cloud.err = errors.New("non-numeric")

	out := f.pipeline.Evaluate(context.Background(), fullReading(1.2), "local")

	if out.Notification != NotificationAnalysisError {
		t.Fatalf("expected analysis error text, got %q", out.Notification)
	}
	if !errors.Is(out.OracleErr, forecast.ErrOracle) || out.CloudErr == nil {
		t.Fatalf("unexpected step errors: %+v", out)
	}
	assertJournal(t, f.journal.all(),
		"oracle",
		"cloud:Error in analysis.",
		"sensors/notification:Error in analysis.",
		"sensors/alarm:ON",
	)
}

func TestEvaluateIncompleteReadingSkipsOracle(t *testing.T) {
	f := newFixture(t)
	reading := fullReading(0.9)
	reading.Humidity = telemetry.Measurement{}

	out := f.pipeline.Evaluate(context.Background(), reading, "resync")

	if f.oracle.calls != 0 {
		t.Fatalf("oracle must not be called for incomplete data")
	}
	if out.Notification != NotificationIncomplete {
		t.Fatalf("expected incomplete text, got %q", out.Notification)
	}
	assertJournal(t, f.journal.all(),
		"cloud:Incomplete sensor data.",
		"sensors/notification:Incomplete sensor data.",
		"sensors/alarm:ON",
	)
}

func TestEvaluateMissingEthyleneIsNotEvaluable(t *testing.T) {
	f := newFixture(t)
	reading := fullReading(0)
	reading.Ethylene = telemetry.Measurement{}

	out := f.pipeline.Evaluate(context.Background(), reading, "resync")
	if out.Evaluable || out.Triggered {
		t.Fatalf("unexpected outcome: %+v", out)
	}
	if entries := f.journal.all(); len(entries) != 0 {
		t.Fatalf("expected no side effects, got %v", entries)
	}
}

func TestEvaluateStepFailuresAreIndependent(t *testing.T) {
	f := newFixture(t)
	f.cloud.err = mqttbus.ErrPublish
	f.local.errs[DefaultNotificationTopic] = mqttbus.ErrPublish

	out := f.pipeline.Evaluate(context.Background(), fullReading(2), "local")

	if out.CloudErr == nil || out.NotificationErr == nil {
		t.Fatalf("expected cloud and notification errors: %+v", out)
	}
	if out.AlarmErr != nil {
		t.Fatalf("alarm publish should succeed: %v", out.AlarmErr)
	}
	entries := f.journal.all()
	if entries[len(entries)-1] != "sensors/alarm:ON" {
		t.Fatalf("expected alarm ON as last step, got %v", entries)
	}
	if len(f.notifier.advisories) != 1 {
		t.Fatalf("expected advisory despite publish failures")
	}
}

func TestEvaluateCustomTopics(t *testing.T) {
	f := newFixture(t)
	rule, _ := alarms.NewThresholdRule(0.5)
	pipeline, err := NewPipeline(rule, f.oracle, f.cloud, f.local, WithTopics("chamber/notice", "chamber/alarm"))
	if err != nil {
		t.Fatalf("new pipeline: %v", err)
	}
	pipeline.Evaluate(context.Background(), fullReading(0.6), "local")
	assertJournal(t, f.journal.all(), "oracle", "cloud:4", "chamber/notice:4", "chamber/alarm:ON")
}

func TestEvaluateCarriesTraceID(t *testing.T) {
	f := newFixture(t)
	logger, _ := test.NewNullLogger()
	ctx := logging.WithLogger(context.Background(), logger.WithFields(logrus.Fields{"trace_id": "trace-1"}))

	f.pipeline.Evaluate(ctx, fullReading(0.9), "local")
	if got := f.notifier.advisories[0].TraceID; got != "trace-1" {
		t.Fatalf("expected trace id, got %q", got)
	}
}

func TestNewPipelineValidates(t *testing.T) {
	rule, _ := alarms.NewThresholdRule(0.75)
	j := &journal{}
	if _, err := NewPipeline(rule, nil, &stubCloud{journal: j}, &stubLocal{journal: j}); err == nil {
		t.Fatalf("expected error for nil oracle")
	}
	if _, err := NewPipeline(rule, &stubOracle{journal: j}, nil, &stubLocal{journal: j}); err == nil {
		t.Fatalf("expected error for nil cloud")
	}
	if _, err := NewPipeline(rule, &stubOracle{journal: j}, &stubCloud{journal: j}, nil); err == nil {
		t.Fatalf("expected error for nil local")
	}
}
