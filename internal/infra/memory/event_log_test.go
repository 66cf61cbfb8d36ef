package memory

import (
	"context"
	"testing"
	"time"

	"github.com/maluguiro/examen-proctor/internal/domain"
)

func TestEventLogSinceFiltersByTime(t *testing.T) {
	ctx := context.Background()
	base := time.Unix(1_700_000_000, 0)
	now := base
	log := NewEventLogWithClock(10, time.Hour, func() time.Time { return now })

	for i := 0; i < 3; i++ {
		_ = log.Append(ctx, domain.AttemptEvent{ExamID: "exam-1", AttemptID: "a1", Type: domain.EventPenalty, At: base.Add(time.Duration(i) * time.Second)})
	}
	_ = log.Append(ctx, domain.AttemptEvent{ExamID: "exam-2", At: base})

	events, err := log.Since(ctx, "exam-1", base)
	if err != nil {
		t.Fatalf("since: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events newer than base, got %d", len(events))
	}
	if !events[0].At.Before(events[1].At) {
		t.Fatalf("expected oldest first")
	}
}

func TestEventLogRetentionAndCapacity(t *testing.T) {
	ctx := context.Background()
	base := time.Unix(1_700_000_000, 0)
	now := base
	log := NewEventLogWithClock(2, time.Minute, func() time.Time { return now })

	for i := 0; i < 3; i++ {
		_ = log.Append(ctx, domain.AttemptEvent{ExamID: "exam-1", At: base.Add(time.Duration(i) * time.Second)})
	}
	events, _ := log.Since(ctx, "exam-1", time.Time{})
	if len(events) != 2 {
		t.Fatalf("expected capacity to bound buffer to 2, got %d", len(events))
	}

	now = base.Add(5 * time.Minute)
	events, _ = log.Since(ctx, "exam-1", time.Time{})
	if len(events) != 0 {
		t.Fatalf("expected retention to drop old events, got %d", len(events))
	}
}

func TestEventLogHandlesOutOfOrderAppends(t *testing.T) {
	ctx := context.Background()
	base := time.Unix(1_700_000_000, 0)
	now := base
	log := NewEventLogWithClock(10, time.Minute, func() time.Time { return now })

	_ = log.Append(ctx, domain.AttemptEvent{ExamID: "exam-1", AttemptID: "late", At: base.Add(2 * time.Minute)})
	_ = log.Append(ctx, domain.AttemptEvent{ExamID: "exam-1", AttemptID: "early", At: base})

	events, _ := log.Since(ctx, "exam-1", time.Time{})
	if len(events) != 2 || events[0].AttemptID != "early" || events[1].AttemptID != "late" {
		t.Fatalf("expected events ordered by time, got %+v", events)
	}

	// "early" leaves the window while sitting behind an in-window event.
	now = base.Add(90 * time.Second)
	events, _ = log.Since(ctx, "exam-1", time.Time{})
	if len(events) != 1 || events[0].AttemptID != "late" {
		t.Fatalf("expected only the in-window event, got %+v", events)
	}
}
