// internal/events/bus.go
package events

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/repomedic/api/schemas"
)

// HistoryLimit is the number of trailing events returned to pollers that
// join late.
const HistoryLimit = 20

// subscriberBuffer bounds each live subscriber's queue. A subscriber whose
// buffer is full gets dropped rather than stalling delivery to the others.
const subscriberBuffer = 64

// subscriber is one live listener with its bounded queue.
type subscriber struct {
	id string
	ch chan schemas.Event
}

// Bus fans per-run ordered event streams out to live subscribers and keeps an
// append-only log per run for late joiners. Safe for concurrent use.
type Bus struct {
	logger *zap.Logger

	mu          sync.RWMutex
	logs        map[string][]schemas.Event
	subscribers []subscriber
}

// NewBus creates an event bus.
func NewBus(logger *zap.Logger) *Bus {
	return &Bus{
		logger: logger.Named("event_bus"),
		logs:   make(map[string][]schemas.Event),
	}
}

// Publish appends the event to its run's log and delivers it to every live
// subscriber. Delivery is best-effort: a subscriber whose queue is full is
// dropped without affecting the others.
func (b *Bus) Publish(ev schemas.Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}

	b.mu.Lock()
	b.logs[ev.RunID] = append(b.logs[ev.RunID], ev)

	var dropped []string
	for i := 0; i < len(b.subscribers); i++ {
		sub := b.subscribers[i]
		select {
		case sub.ch <- ev:
		default:
			dropped = append(dropped, sub.id)
			close(sub.ch)
			b.subscribers = append(b.subscribers[:i], b.subscribers[i+1:]...)
			i--
		}
	}
	b.mu.Unlock()

	for _, id := range dropped {
		b.logger.Warn("Dropped slow event subscriber", zap.String("subscriber_id", id))
	}
}

// Subscribe registers a live listener for all runs' events from this point
// on. The returned cancel function detaches the subscriber and closes its
// channel; it is safe to call more than once.
func (b *Bus) Subscribe() (<-chan schemas.Event, func()) {
	sub := subscriber{
		id: uuid.New().String(),
		ch: make(chan schemas.Event, subscriberBuffer),
	}

	b.mu.Lock()
	b.subscribers = append(b.subscribers, sub)
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		for i, s := range b.subscribers {
			if s.id == sub.id {
				b.subscribers = append(b.subscribers[:i], b.subscribers[i+1:]...)
				close(s.ch)
				return
			}
		}
	}
	return sub.ch, cancel
}

// History returns the trailing events of a run for polling clients. The
// returned slice is a copy of at most HistoryLimit entries.
func (b *Bus) History(runID string) []schemas.Event {
	b.mu.RLock()
	defer b.mu.RUnlock()

	log := b.logs[runID]
	start := 0
	if len(log) > HistoryLimit {
		start = len(log) - HistoryLimit
	}
	out := make([]schemas.Event, len(log)-start)
	copy(out, log[start:])
	return out
}

// FullLog returns a copy of the run's complete ordered event log.
func (b *Bus) FullLog(runID string) []schemas.Event {
	b.mu.RLock()
	defer b.mu.RUnlock()

	log := b.logs[runID]
	out := make([]schemas.Event, len(log))
	copy(out, log)
	return out
}

// Drop discards a run's event log. Used once a run's report has been
// finalized and archived.
func (b *Bus) Drop(runID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.logs, runID)
}
