package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/maluguiro/examen-proctor/internal/app"
	"github.com/maluguiro/examen-proctor/internal/domain"
)

func TestAttemptStoreRejectsDuplicateStudent(t *testing.T) {
	ctx := context.Background()
	store := NewAttemptStore()

	create := func(id string) error {
		return store.WithinTx(ctx, func(tx app.AttemptWriter) error {
			return tx.CreateAttempt(ctx, domain.Attempt{ID: id, ExamID: "exam-1", StudentKey: "email:ana@example.com", Status: domain.StatusInProgress})
		})
	}
	if err := create("a1"); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := create("a2"); !errors.Is(err, domain.ErrDuplicateAttempt) {
		t.Fatalf("expected ErrDuplicateAttempt, got %v", err)
	}
	if _, found, _ := store.FindAttempt(ctx, "exam-1", "email:ana@example.com"); !found {
		t.Fatalf("expected attempt to be indexed by student")
	}
}

func TestAttemptStoreRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	store := NewAttemptStore()
	attempt := domain.Attempt{ID: "a1", ExamID: "exam-1", StudentKey: "name:ana", Status: domain.StatusInProgress}
	if err := store.WithinTx(ctx, func(tx app.AttemptWriter) error {
		return tx.CreateAttempt(ctx, attempt)
	}); err != nil {
		t.Fatalf("create: %v", err)
	}

	boom := errors.New("boom")
	err := store.WithinTx(ctx, func(tx app.AttemptWriter) error {
		changed := attempt
		changed.LivesUsed = 2
		if err := tx.SaveAttempt(ctx, changed); err != nil {
			return err
		}
		if err := tx.UpsertAnswer(ctx, domain.Answer{AttemptID: "a1", QuestionID: "q1", Value: []byte(`1`)}); err != nil {
			return err
		}
		if err := tx.AppendPenaltyEvent(ctx, domain.PenaltyEvent{AttemptID: "a1", Tag: "blur", OccurredAt: time.Now()}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	got, _ := store.LoadAttempt(ctx, "a1")
	if got.LivesUsed != 0 {
		t.Fatalf("expected lives rollback, got %d", got.LivesUsed)
	}
	answers, _ := store.ListAnswers(ctx, "a1")
	if len(answers) != 0 {
		t.Fatalf("expected no answers after rollback, got %d", len(answers))
	}
	events, _ := store.ListPenaltyEvents(ctx, "a1")
	if len(events) != 0 {
		t.Fatalf("expected no penalty events after rollback, got %d", len(events))
	}
}

func TestAttemptStoreUpsertKeepsOneAnswer(t *testing.T) {
	ctx := context.Background()
	store := NewAttemptStore()
	_ = store.WithinTx(ctx, func(tx app.AttemptWriter) error {
		return tx.CreateAttempt(ctx, domain.Attempt{ID: "a1", ExamID: "exam-1", StudentKey: "name:ana"})
	})

	for _, v := range []string{`"uno"`, `"dos"`} {
		if err := store.WithinTx(ctx, func(tx app.AttemptWriter) error {
			return tx.UpsertAnswer(ctx, domain.Answer{AttemptID: "a1", QuestionID: "q1", Value: []byte(v)})
		}); err != nil {
			t.Fatalf("upsert: %v", err)
		}
	}
	answers, _ := store.ListAnswers(ctx, "a1")
	if len(answers) != 1 || string(answers[0].Value) != `"dos"` {
		t.Fatalf("expected single latest answer, got %+v", answers)
	}
}

func TestAttemptStoreLoadMissing(t *testing.T) {
	_, err := NewAttemptStore().LoadAttempt(context.Background(), "nope")
	if !errors.Is(err, domain.ErrAttemptNotFound) {
		t.Fatalf("expected ErrAttemptNotFound, got %v", err)
	}
}
