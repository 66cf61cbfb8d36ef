package app_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/maluguiro/examen-proctor/internal/app"
	"github.com/maluguiro/examen-proctor/internal/domain"
	"github.com/maluguiro/examen-proctor/internal/infra/memory"
)

// brokenStore fails every transaction and listing the way a dropped database connection would.
type brokenStore struct {
	*memory.AttemptStore
	err error
}

func (s brokenStore) WithinTx(context.Context, func(tx app.AttemptWriter) error) error {
	return s.err
}

func (s brokenStore) ListAttempts(context.Context, string) ([]domain.Attempt, error) {
	return nil, s.err
}

type brokenCatalog struct{ err error }

func (c brokenCatalog) GetExam(context.Context, string) (domain.Exam, error) {
	return domain.Exam{}, c.err
}

func (c brokenCatalog) ListQuestions(context.Context, string) ([]domain.Question, error) {
	return nil, c.err
}

func TestStoreFailuresAreUnavailable(t *testing.T) {
	ctx := context.Background()
	exams := memory.NewExamRepository(memory.NewStaticExamLoader(testExams()), time.Minute)
	store := brokenStore{AttemptStore: memory.NewAttemptStore(), err: errors.New("dial tcp 10.0.0.5:5432: connection refused")}
	service := app.NewAttemptService(exams, exams, store)

	_, err := service.Start(ctx, "auto", domain.StudentIdentity{Email: "ana@example.com"})
	if domain.KindOf(err) != domain.KindUnavailable || !errors.Is(err, domain.ErrUnavailable) {
		t.Fatalf("expected unavailable kind, got %s (%v)", domain.KindOf(err), err)
	}
	if !strings.Contains(err.Error(), "connection refused") {
		t.Fatalf("expected cause to be kept, got %v", err)
	}

	_, err = service.ListExamAttempts(ctx, "teacher-1", "auto")
	if domain.KindOf(err) != domain.KindUnavailable {
		t.Fatalf("expected unavailable kind for listing, got %s (%v)", domain.KindOf(err), err)
	}
}

func TestCatalogFailuresAreUnavailable(t *testing.T) {
	catalog := brokenCatalog{err: errors.New("redis: connection pool timeout")}
	service := app.NewAttemptService(catalog, catalog, memory.NewAttemptStore())

	_, err := service.Start(context.Background(), "auto", domain.StudentIdentity{Email: "ana@example.com"})
	if domain.KindOf(err) != domain.KindUnavailable {
		t.Fatalf("expected unavailable kind, got %s (%v)", domain.KindOf(err), err)
	}
}

func TestDomainErrorsKeepTheirKind(t *testing.T) {
	catalog := brokenCatalog{err: domain.ErrExamNotFound}
	service := app.NewAttemptService(catalog, catalog, memory.NewAttemptStore())

	_, err := service.Start(context.Background(), "nope", domain.StudentIdentity{Email: "ana@example.com"})
	if !errors.Is(err, domain.ErrExamNotFound) || domain.KindOf(err) != domain.KindNotFound {
		t.Fatalf("expected not found to pass through, got %s (%v)", domain.KindOf(err), err)
	}
}
