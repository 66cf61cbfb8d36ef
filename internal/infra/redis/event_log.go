package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/maluguiro/examen-proctor/internal/domain"
)

// EventLog keeps recent attempt events in one capped stream per exam.
// Events are stored as: XADD exam:{examID}:events MAXLEN {capacity} * event {json}
// The stream key expires once nothing was appended for the retention window.
type EventLog struct {
	client    *redis.Client
	capacity  int64
	retention time.Duration
}

func NewEventLog(client *redis.Client, capacity int64, retention time.Duration) *EventLog {
	if capacity <= 0 {
		capacity = 256
	}
	return &EventLog{client: client, capacity: capacity, retention: retention}
}

func (l *EventLog) Append(ctx context.Context, ev domain.AttemptEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode attempt event: %w", err)
	}
	key := l.key(ev.ExamID)
	pipe := l.client.TxPipeline()
	pipe.XAdd(ctx, &redis.XAddArgs{
		Stream: key,
		MaxLen: l.capacity,
		Values: map[string]interface{}{"event": payload},
	})
	if l.retention > 0 {
		pipe.Expire(ctx, key, l.retention)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("append attempt event: %w", err)
	}
	return nil
}

// Since returns retained events newer than since, ordered by event time.
// Publishers append after their own commit, so stream order is not event time order
// and the whole capped stream is filtered.
func (l *EventLog) Since(ctx context.Context, examID string, since time.Time) ([]domain.AttemptEvent, error) {
	msgs, err := l.client.XRevRangeN(ctx, l.key(examID), "+", "-", l.capacity).Result()
	if err != nil {
		return nil, fmt.Errorf("read attempt events: %w", err)
	}

	var cutoff time.Time
	if l.retention > 0 {
		cutoff = time.Now().Add(-l.retention)
	}
	out := make([]domain.AttemptEvent, 0, len(msgs))
	for _, msg := range msgs {
		ev, ok := decodeEvent(msg)
		if !ok {
			continue
		}
		if !ev.At.After(since) || ev.At.Before(cutoff) {
			continue
		}
		out = append(out, ev)
	}
	// XREVRANGE is newest first; reverse so the stable sort keeps append order on ties.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].At.Before(out[j].At) })
	return out, nil
}

func decodeEvent(msg redis.XMessage) (domain.AttemptEvent, bool) {
	var raw []byte
	switch v := msg.Values["event"].(type) {
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		return domain.AttemptEvent{}, false
	}
	var ev domain.AttemptEvent
	if err := json.Unmarshal(raw, &ev); err != nil {
		return domain.AttemptEvent{}, false
	}
	return ev, true
}

func (l *EventLog) key(examID string) string {
	return "exam:" + examID + ":events"
}
