package redis

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/maluguiro/examen-proctor/internal/app"
)

// FeedStore is a Redis-aware implementation of app.FeedRepository.
// Notes:
//   - Feeds live in process so the in-memory broadcast logic is reused.
//   - Redis keeps an expiring marker for each watched exam. It is refreshed on
//     every subscribe and broadcast, so it only lapses once a feed goes quiet
//     for the whole TTL.
type FeedStore struct {
	client *redis.Client
	ttl    time.Duration
	mu     sync.RWMutex
	feeds  map[string]*app.Feed
}

func NewFeedStore(client *redis.Client, ttl time.Duration) *FeedStore {
	return &FeedStore{
		client: client,
		ttl:    ttl,
		feeds:  make(map[string]*app.Feed),
	}
}

func (s *FeedStore) GetOrCreate(examID string) *app.Feed {
	s.mu.Lock()
	defer s.mu.Unlock()
	feed, ok := s.feeds[examID]
	if !ok {
		feed = app.NewFeed(examID)
		s.feeds[examID] = feed
	}
	s.touch(examID)
	return feed
}

func (s *FeedStore) Get(examID string) (*app.Feed, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	feed, ok := s.feeds[examID]
	if ok {
		s.touch(examID)
	}
	return feed, ok
}

// Watched reports whether any instance currently holds a live feed for the exam.
func (s *FeedStore) Watched(ctx context.Context, examID string) (bool, error) {
	n, err := s.client.Exists(ctx, s.key(examID)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// touch sets or extends the liveness marker; best effort.
func (s *FeedStore) touch(examID string) {
	_ = s.client.Set(context.Background(), s.key(examID), "1", s.ttl).Err()
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
		_ = s.client.Del(context.Background(), s.key(examID)).Err()
	}
}

func (s *FeedStore) key(examID string) string {
	return "exam:live:" + examID
}
