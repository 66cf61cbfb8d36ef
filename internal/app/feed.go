package app

import (
	"sync"

	"github.com/maluguiro/examen-proctor/internal/domain"
)

const feedBuffer = 16

// Feed fans attempt events of one exam out to live subscribers.
type Feed struct {
	examID      string
	mu          sync.RWMutex
	subscribers map[chan domain.AttemptEvent]struct{}
}

// NewFeed is exported for infrastructure layers that keep feeds.
func NewFeed(examID string) *Feed {
	return &Feed{
		examID:      examID,
		subscribers: make(map[chan domain.AttemptEvent]struct{}),
	}
}

// ExamID returns the exam this feed belongs to.
func (f *Feed) ExamID() string { return f.examID }

// IsIdle reports whether nobody is listening.
func (f *Feed) IsIdle() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.subscribers) == 0
}

// Subscribe registers a listener. The caller must invoke cancel to avoid leaks.
func (f *Feed) Subscribe() (<-chan domain.AttemptEvent, func()) {
	ch := make(chan domain.AttemptEvent, feedBuffer)

	f.mu.Lock()
	f.subscribers[ch] = struct{}{}
	f.mu.Unlock()

	cancel := func() {
		f.mu.Lock()
		if _, ok := f.subscribers[ch]; ok {
			delete(f.subscribers, ch)
			close(ch)
		}
		f.mu.Unlock()
	}
	return ch, cancel
}

// Broadcast delivers ev to every subscriber without blocking.
func (f *Feed) Broadcast(ev domain.AttemptEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for ch := range f.subscribers {
		select {
		case ch <- ev:
		default:
			// slow reader: drop its oldest event to make room
			select {
			case <-ch:
			default:
			}
			ch <- ev
		}
	}
}
