package app

import (
	"context"
	"time"

	"github.com/maluguiro/examen-proctor/internal/domain"
)

// ExamCatalog loads exam configuration (from cache/backing store).
type ExamCatalog interface {
	GetExam(ctx context.Context, examID string) (domain.Exam, error)
}

// QuestionBank lists the ordered, gradable questions of an exam.
type QuestionBank interface {
	ListQuestions(ctx context.Context, examID string) ([]domain.Question, error)
}

// AttemptReader is the read side of attempt persistence.
type AttemptReader interface {
	LoadAttempt(ctx context.Context, attemptID string) (domain.Attempt, error)
	FindAttempt(ctx context.Context, examID, studentKey string) (domain.Attempt, bool, error)
	ListAttempts(ctx context.Context, examID string) ([]domain.Attempt, error)
	ListAnswers(ctx context.Context, attemptID string) ([]domain.Answer, error)
	ListPenaltyEvents(ctx context.Context, attemptID string) ([]domain.PenaltyEvent, error)
}

// AttemptWriter is handed to WithinTx callbacks. LoadAttempt on a writer locks the row
// for the rest of the transaction where the backend supports it.
type AttemptWriter interface {
	AttemptReader
	CreateAttempt(ctx context.Context, attempt domain.Attempt) error
	SaveAttempt(ctx context.Context, attempt domain.Attempt) error
	UpsertAnswer(ctx context.Context, answer domain.Answer) error
	AppendPenaltyEvent(ctx context.Context, event domain.PenaltyEvent) error
}

// AttemptStore abstracts how attempts, answers and penalty history are stored (in-memory, Postgres).
type AttemptStore interface {
	AttemptReader
	// WithinTx runs fn atomically; any error rolls back every write made through tx.
	WithinTx(ctx context.Context, fn func(tx AttemptWriter) error) error
}

// FeedRepository keeps the live per-exam feeds teachers subscribe to.
type FeedRepository interface {
	GetOrCreate(examID string) *Feed
	Get(examID string) (*Feed, bool)
	DeleteIfIdle(examID string)
}

// EventLog retains recent attempt events per exam so dashboards can poll by timestamp.
type EventLog interface {
	Append(ctx context.Context, event domain.AttemptEvent) error
	Since(ctx context.Context, examID string, since time.Time) ([]domain.AttemptEvent, error)
}

// Metrics receives lifecycle counters.
type Metrics interface {
	AttemptStarted(examID string)
	PenaltyRecorded(tag string, penalized bool)
	AttemptFinalized(reason domain.EndReason)
}

type nopMetrics struct{}

func (nopMetrics) AttemptStarted(string)             {}
func (nopMetrics) PenaltyRecorded(string, bool)      {}
func (nopMetrics) AttemptFinalized(domain.EndReason) {}
