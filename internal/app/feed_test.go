package app

import (
	"testing"

	"github.com/maluguiro/examen-proctor/internal/domain"
)

func TestFeedDropsOldestForSlowReader(t *testing.T) {
	feed := NewFeed("exam-1")
	ch, cancel := feed.Subscribe()
	defer cancel()

	for i := 0; i < feedBuffer+4; i++ {
		feed.Broadcast(domain.AttemptEvent{ExamID: "exam-1", LivesUsed: i})
	}

	first := <-ch
	if first.LivesUsed != 4 {
		t.Fatalf("expected oldest events dropped, first seen %d", first.LivesUsed)
	}
	if len(ch) != feedBuffer-1 {
		t.Fatalf("expected buffer to stay full, got %d", len(ch))
	}
}

func TestFeedCancelIsIdempotent(t *testing.T) {
	feed := NewFeed("exam-1")
	_, cancel := feed.Subscribe()
	cancel()
	cancel()
	if !feed.IsIdle() {
		t.Fatalf("expected feed to be idle after cancel")
	}
}
