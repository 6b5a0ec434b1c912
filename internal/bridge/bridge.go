// Package bridge moves messages between the local sensor bus, the cloud
// broker and the reading store.
package bridge

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	alarmapp "github.com/juanpa-corral/codigoIoTFinalSolution/internal/alarms/application"
	"github.com/juanpa-corral/codigoIoTFinalSolution/internal/observability/logging"
	telemetry "github.com/juanpa-corral/codigoIoTFinalSolution/internal/telemetry/domain"
)

// Pipeline sources.
const (
	SourceLocal  = "local"
	SourceResync = "resync"
)

// Default local topics.
const (
	DefaultDataTopic         = "sensors/data"
	DefaultControlTopic      = "sensors/control_alarma"
	DefaultAlarmTopic        = alarmapp.DefaultAlarmTopic
	DefaultNotificationTopic = alarmapp.DefaultNotificationTopic
)

const defaultQueueSize = 64

// ReadingPublisher forwards readings to the cloud. It never fails loudly.
type ReadingPublisher interface {
	PublishReading(ctx context.Context, reading telemetry.Reading)
}

// Evaluator runs the alert pipeline.
type Evaluator interface {
	Evaluate(ctx context.Context, reading telemetry.Reading, source string) alarmapp.Outcome
}

// Clock provides time.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

type inbound struct {
	topic   string
	payload []byte
}

// traced returns a context carrying a logger tagged with a fresh trace id.
func traced(ctx context.Context, logger logrus.FieldLogger, fields logrus.Fields) (context.Context, logrus.FieldLogger) {
	entry := logger.WithField("trace_id", uuid.NewString()).WithFields(fields)
	return logging.WithLogger(ctx, entry), entry
}

// queue hands messages from paho's router goroutine to a single worker.
type queue struct {
	ch   chan inbound
	done chan struct{}
}

func newQueue(size int) *queue {
	if size <= 0 {
		size = defaultQueueSize
	}
	return &queue{ch: make(chan inbound, size), done: make(chan struct{})}
}

// push blocks while the queue is full and drops the message once stopped.
func (q *queue) push(topic string, payload []byte) bool {
	msg := inbound{topic: topic, payload: append([]byte(nil), payload...)}
	select {
	case <-q.done:
		return false
	default:
	}
	select {
	case q.ch <- msg:
		return true
	case <-q.done:
		return false
	}
}

// drain calls fn for every message until ctx is cancelled.
func (q *queue) drain(ctx context.Context, fn func(context.Context, inbound)) {
	defer close(q.done)
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-q.ch:
			fn(ctx, msg)
		}
	}
}
