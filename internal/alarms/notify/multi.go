package notify

import (
	"context"

	alarmapp "github.com/juanpa-corral/codigoIoTFinalSolution/internal/alarms/application"
)

// MultiNotifier dispatches advisories to multiple notifiers.
type MultiNotifier struct {
	notifiers []alarmapp.AdvisoryNotifier
}

// NewMultiNotifier constructs a MultiNotifier.
func NewMultiNotifier(notifiers ...alarmapp.AdvisoryNotifier) *MultiNotifier {
	return &MultiNotifier{notifiers: notifiers}
}

// Len reports how many notifiers are attached.
func (m *MultiNotifier) Len() int {
	if m == nil {
		return 0
	}
	return len(m.notifiers)
}

// Notify forwards advisories to all notifiers.
func (m *MultiNotifier) Notify(ctx context.Context, advisory alarmapp.Advisory) {
	if m == nil {
		return
	}
	for _, notifier := range m.notifiers {
		if notifier != nil {
			notifier.Notify(ctx, advisory)
		}
	}
}
