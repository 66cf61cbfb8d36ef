package memory

import (
	"sync"

	"github.com/maluguiro/examen-proctor/internal/app"
)

// FeedStore is an in-memory implementation of app.FeedRepository.
type FeedStore struct {
	mu    sync.RWMutex
	feeds map[string]*app.Feed
}

func NewFeedStore() *FeedStore {
	return &FeedStore{
		feeds: make(map[string]*app.Feed),
	}
}

func (s *FeedStore) GetOrCreate(examID string) *app.Feed {
	s.mu.Lock()
	defer s.mu.Unlock()
	if feed, ok := s.feeds[examID]; ok {
		return feed
	}
	feed := app.NewFeed(examID)
	s.feeds[examID] = feed
	return feed
}

func (s *FeedStore) Get(examID string) (*app.Feed, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	feed, ok := s.feeds[examID]
	return feed, ok
}

func (s *FeedStore) DeleteIfIdle(examID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	feed, ok := s.feeds[examID]
	if !ok {
		return
	}
	if feed.IsIdle() {
		delete(s.feeds, examID)
	}
}
