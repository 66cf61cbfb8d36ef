package redis

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"

	"github.com/maluguiro/examen-proctor/internal/domain"
)

func TestEventLogAppendAndSince(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	ctx := context.Background()
	log := NewEventLog(newClient(mr), 3, time.Hour)
	start := time.Now().Add(-time.Minute).UTC()

	for i := 0; i < 4; i++ {
		ev := domain.AttemptEvent{
			Type:      domain.EventPenalty,
			ExamID:    "exam-1",
			AttemptID: "a1",
			LivesUsed: i,
			At:        start.Add(time.Duration(i) * time.Second),
		}
		if err := log.Append(ctx, ev); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	all, err := log.Since(ctx, "exam-1", time.Time{})
	if err != nil {
		t.Fatalf("since: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected stream capped at 3, got %d", len(all))
	}
	if all[0].LivesUsed != 1 || all[2].LivesUsed != 3 {
		t.Fatalf("expected oldest first, got %+v", all)
	}

	recent, err := log.Since(ctx, "exam-1", start.Add(2*time.Second))
	if err != nil {
		t.Fatalf("since: %v", err)
	}
	if len(recent) != 1 || recent[0].LivesUsed != 3 {
		t.Fatalf("expected only the newest event, got %+v", recent)
	}
	if ttl := mr.TTL("exam:exam-1:events"); ttl <= 0 {
		t.Fatalf("expected stream to carry a ttl, got %v", ttl)
	}
}

func TestEventLogUnknownExam(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	events, err := NewEventLog(newClient(mr), 10, time.Hour).Since(context.Background(), "nope", time.Time{})
	if err != nil {
		t.Fatalf("since: %v", err)
	}
	if len(events) != 0 {
		t.Fatalf("expected no events, got %d", len(events))
	}
}

func TestEventLogSinceKeepsEventsAppendedOutOfOrder(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	ctx := context.Background()
	log := NewEventLog(newClient(mr), 10, time.Hour)
	t1 := time.Now().Add(-time.Minute).UTC()
	t2 := t1.Add(5 * time.Second)

	// a2 committed later but its publisher appended first
	if err := log.Append(ctx, domain.AttemptEvent{Type: domain.EventStarted, ExamID: "exam-1", AttemptID: "a2", At: t2}); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := log.Append(ctx, domain.AttemptEvent{Type: domain.EventStarted, ExamID: "exam-1", AttemptID: "a1", At: t1}); err != nil {
		t.Fatalf("append: %v", err)
	}

	recent, err := log.Since(ctx, "exam-1", t1.Add(time.Second))
	if err != nil {
		t.Fatalf("since: %v", err)
	}
	if len(recent) != 1 || recent[0].AttemptID != "a2" {
		t.Fatalf("expected event of a2, got %+v", recent)
	}

	all, err := log.Since(ctx, "exam-1", time.Time{})
	if err != nil {
		t.Fatalf("since: %v", err)
	}
	if len(all) != 2 || all[0].AttemptID != "a1" || all[1].AttemptID != "a2" {
		t.Fatalf("expected events ordered by time, got %+v", all)
	}
}
