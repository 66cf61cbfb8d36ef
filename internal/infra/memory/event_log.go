package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/maluguiro/examen-proctor/internal/domain"
)

// EventLog keeps a bounded, time-windowed buffer of attempt events per exam.
type EventLog struct {
	capacity  int
	retention time.Duration
	clock     func() time.Time

	mu     sync.Mutex
	events map[string][]domain.AttemptEvent
}

// NewEventLog keeps at most capacity events per exam, none older than retention.
func NewEventLog(capacity int, retention time.Duration) *EventLog {
	if capacity <= 0 {
		capacity = 256
	}
	return &EventLog{
		capacity:  capacity,
		retention: retention,
		clock:     time.Now,
		events:    make(map[string][]domain.AttemptEvent),
	}
}

// NewEventLogWithClock is test-only for deterministic retention.
func NewEventLogWithClock(capacity int, retention time.Duration, now func() time.Time) *EventLog {
	l := NewEventLog(capacity, retention)
	l.clock = now
	return l
}

func (l *EventLog) Append(_ context.Context, ev domain.AttemptEvent) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	buf := l.prune(append(l.events[ev.ExamID], ev))
	if over := len(buf) - l.capacity; over > 0 {
		buf = append(buf[:0:0], buf[over:]...)
	}
	l.events[ev.ExamID] = buf
	return nil
}

// Since returns retained events strictly newer than since, oldest first.
func (l *EventLog) Since(_ context.Context, examID string, since time.Time) ([]domain.AttemptEvent, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	buf := l.prune(l.events[examID])
	if len(buf) == 0 {
		delete(l.events, examID)
		return nil, nil
	}
	l.events[examID] = buf

	out := make([]domain.AttemptEvent, 0, len(buf))
	for _, ev := range buf {
		if ev.At.After(since) {
			out = append(out, ev)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].At.Before(out[j].At) })
	return out, nil
}

// prune drops events that fell out of the retention window. The buffer is in
// append order, which need not be event time order.
func (l *EventLog) prune(buf []domain.AttemptEvent) []domain.AttemptEvent {
	if l.retention <= 0 {
		return buf
	}
	cutoff := l.clock().Add(-l.retention)
	kept := buf[:0:0]
	for _, ev := range buf {
		if !ev.At.Before(cutoff) {
			kept = append(kept, ev)
		}
	}
	return kept
}
