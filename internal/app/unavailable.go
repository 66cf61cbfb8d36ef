package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/maluguiro/examen-proctor/internal/domain"
)

// unavailable classifies backend failures that carry no domain kind as ErrUnavailable,
// keeping the original error in the chain.
func unavailable(err error) error {
	if err == nil || domain.KindOf(err) != domain.KindUnknown || errors.Is(err, context.Canceled) {
		return err
	}
	return fmt.Errorf("%w: %w", domain.ErrUnavailable, err)
}

type classifiedCatalog struct{ next ExamCatalog }

func (c classifiedCatalog) GetExam(ctx context.Context, examID string) (domain.Exam, error) {
	exam, err := c.next.GetExam(ctx, examID)
	return exam, unavailable(err)
}

type classifiedBank struct{ next QuestionBank }

func (b classifiedBank) ListQuestions(ctx context.Context, examID string) ([]domain.Question, error) {
	questions, err := b.next.ListQuestions(ctx, examID)
	return questions, unavailable(err)
}

type classifiedReader struct{ next AttemptReader }

func (r classifiedReader) LoadAttempt(ctx context.Context, attemptID string) (domain.Attempt, error) {
	a, err := r.next.LoadAttempt(ctx, attemptID)
	return a, unavailable(err)
}

func (r classifiedReader) FindAttempt(ctx context.Context, examID, studentKey string) (domain.Attempt, bool, error) {
	a, ok, err := r.next.FindAttempt(ctx, examID, studentKey)
	return a, ok, unavailable(err)
}

func (r classifiedReader) ListAttempts(ctx context.Context, examID string) ([]domain.Attempt, error) {
	out, err := r.next.ListAttempts(ctx, examID)
	return out, unavailable(err)
}

func (r classifiedReader) ListAnswers(ctx context.Context, attemptID string) ([]domain.Answer, error) {
	out, err := r.next.ListAnswers(ctx, attemptID)
	return out, unavailable(err)
}

func (r classifiedReader) ListPenaltyEvents(ctx context.Context, attemptID string) ([]domain.PenaltyEvent, error) {
	out, err := r.next.ListPenaltyEvents(ctx, attemptID)
	return out, unavailable(err)
}

type classifiedWriter struct {
	classifiedReader
	next AttemptWriter
}

func (w classifiedWriter) CreateAttempt(ctx context.Context, attempt domain.Attempt) error {
	return unavailable(w.next.CreateAttempt(ctx, attempt))
}

func (w classifiedWriter) SaveAttempt(ctx context.Context, attempt domain.Attempt) error {
	return unavailable(w.next.SaveAttempt(ctx, attempt))
}

func (w classifiedWriter) UpsertAnswer(ctx context.Context, answer domain.Answer) error {
	return unavailable(w.next.UpsertAnswer(ctx, answer))
}

func (w classifiedWriter) AppendPenaltyEvent(ctx context.Context, event domain.PenaltyEvent) error {
	return unavailable(w.next.AppendPenaltyEvent(ctx, event))
}

type classifiedStore struct {
	classifiedReader
	next AttemptStore
}

func (s classifiedStore) WithinTx(ctx context.Context, fn func(tx AttemptWriter) error) error {
	return unavailable(s.next.WithinTx(ctx, func(tx AttemptWriter) error {
		return fn(classifiedWriter{classifiedReader: classifiedReader{next: tx}, next: tx})
	}))
}

type classifiedEventLog struct{ next EventLog }

func (l classifiedEventLog) Append(ctx context.Context, event domain.AttemptEvent) error {
	return unavailable(l.next.Append(ctx, event))
}

func (l classifiedEventLog) Since(ctx context.Context, examID string, since time.Time) ([]domain.AttemptEvent, error) {
	out, err := l.next.Since(ctx, examID, since)
	return out, unavailable(err)
}
