package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/driver/pgdriver"

	"github.com/maluguiro/examen-proctor/internal/app"
	"github.com/maluguiro/examen-proctor/internal/domain"
)

const uniqueViolation = "23505"

// AttemptStore persists attempts, answers and penalty history with bun.
// Inside WithinTx, LoadAttempt takes a row lock so concurrent writers on
// other instances queue behind the running transaction.
type AttemptStore struct {
	db *bun.DB
	queries
}

func NewAttemptStore(db *bun.DB) *AttemptStore {
	return &AttemptStore{db: db, queries: queries{db: db}}
}

var _ app.AttemptStore = (*AttemptStore)(nil)

func (s *AttemptStore) WithinTx(ctx context.Context, fn func(tx app.AttemptWriter) error) error {
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		return fn(&queries{db: tx, forUpdate: true})
	})
}

// queries runs against either the pool or an open transaction.
type queries struct {
	db        bun.IDB
	forUpdate bool
}

func (q *queries) LoadAttempt(ctx context.Context, attemptID string) (domain.Attempt, error) {
	var row attemptRow
	sel := q.db.NewSelect().Model(&row).Where("a.id = ?", attemptID)
	if q.forUpdate {
		sel = sel.For("UPDATE")
	}
	if err := sel.Scan(ctx); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Attempt{}, domain.ErrAttemptNotFound
		}
		return domain.Attempt{}, fmt.Errorf("load attempt: %w: %w", domain.ErrUnavailable, err)
	}
	return row.toDomain(), nil
}

func (q *queries) FindAttempt(ctx context.Context, examID, studentKey string) (domain.Attempt, bool, error) {
	var row attemptRow
	err := q.db.NewSelect().Model(&row).
		Where("a.exam_id = ?", examID).
		Where("a.student_key = ?", studentKey).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Attempt{}, false, nil
	}
	if err != nil {
		return domain.Attempt{}, false, fmt.Errorf("find attempt: %w: %w", domain.ErrUnavailable, err)
	}
	return row.toDomain(), true, nil
}

func (q *queries) ListAttempts(ctx context.Context, examID string) ([]domain.Attempt, error) {
	var rows []attemptRow
	err := q.db.NewSelect().Model(&rows).
		Where("a.exam_id = ?", examID).
		Order("a.start_at ASC", "a.id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w: %w", domain.ErrUnavailable, err)
	}
	out := make([]domain.Attempt, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toDomain())
	}
	return out, nil
}

func (q *queries) ListAnswers(ctx context.Context, attemptID string) ([]domain.Answer, error) {
	var rows []answerRow
	err := q.db.NewSelect().Model(&rows).
		Where("ans.attempt_id = ?", attemptID).
		Order("ans.question_id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list answers: %w: %w", domain.ErrUnavailable, err)
	}
	out := make([]domain.Answer, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toDomain())
	}
	return out, nil
}

func (q *queries) ListPenaltyEvents(ctx context.Context, attemptID string) ([]domain.PenaltyEvent, error) {
	var rows []penaltyRow
	err := q.db.NewSelect().Model(&rows).
		Where("p.attempt_id = ?", attemptID).
		Order("p.id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list penalty events: %w: %w", domain.ErrUnavailable, err)
	}
	out := make([]domain.PenaltyEvent, 0, len(rows))
	for _, r := range rows {
		out = append(out, domain.PenaltyEvent{
			AttemptID:  r.AttemptID,
			Tag:        r.Tag,
			Penalized:  r.Penalized,
			OccurredAt: r.OccurredAt,
		})
	}
	return out, nil
}

func (q *queries) CreateAttempt(ctx context.Context, attempt domain.Attempt) error {
	row := toAttemptRow(attempt)
	if _, err := q.db.NewInsert().Model(&row).Exec(ctx); err != nil {
		if isUniqueViolation(err) {
			return domain.ErrDuplicateAttempt
		}
		return fmt.Errorf("create attempt: %w: %w", domain.ErrUnavailable, err)
	}
	return nil
}

// SaveAttempt replaces the mutable fields of an attempt.
func (q *queries) SaveAttempt(ctx context.Context, attempt domain.Attempt) error {
	row := toAttemptRow(attempt)
	res, err := q.db.NewUpdate().Model(&row).
		Column("status", "end_at", "end_reason", "lives_used", "extra_time_secs", "score").
		WherePK().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("save attempt: %w: %w", domain.ErrUnavailable, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return domain.ErrAttemptNotFound
	}
	return nil
}

func (q *queries) UpsertAnswer(ctx context.Context, answer domain.Answer) error {
	row := toAnswerRow(answer)
	_, err := q.db.NewInsert().Model(&row).
		On("CONFLICT (attempt_id, question_id) DO UPDATE").
		Set("value = EXCLUDED.value").
		Set("score = EXCLUDED.score").
		Set("feedback = EXCLUDED.feedback").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("upsert answer: %w: %w", domain.ErrUnavailable, err)
	}
	return nil
}

func (q *queries) AppendPenaltyEvent(ctx context.Context, event domain.PenaltyEvent) error {
	row := penaltyRow{
		AttemptID:  event.AttemptID,
		Tag:        event.Tag,
		Penalized:  event.Penalized,
		OccurredAt: event.OccurredAt,
	}
	if _, err := q.db.NewInsert().Model(&row).Exec(ctx); err != nil {
		return fmt.Errorf("append penalty event: %w: %w", domain.ErrUnavailable, err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr pgdriver.Error
	return errors.As(err, &pgErr) && pgErr.Field('C') == uniqueViolation
}
