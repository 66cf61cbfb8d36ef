package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"github.com/maluguiro/examen-proctor/internal/domain"
)

// ExamLoader loads exam configuration and its ordered questions from Postgres.
type ExamLoader struct {
	pool *pgxpool.Pool
}

func NewExamLoader(pool *pgxpool.Pool) *ExamLoader {
	return &ExamLoader{pool: pool}
}

func (l *ExamLoader) LoadExam(ctx context.Context, examID string) (domain.Exam, error) {
	var (
		exam     domain.Exam
		duration *int32
		opensAt  *time.Time
		closesAt *time.Time
		maxScore *float64
		mode     string
	)
	err := l.pool.QueryRow(ctx, `
		SELECT id, title, owner_id, graders, lives_allowed, duration_minutes,
		       grading_mode, opens_at, closes_at, max_score
		FROM exams WHERE id = $1`, examID).
		Scan(&exam.ID, &exam.Title, &exam.OwnerID, &exam.Graders, &exam.LivesAllowed, &duration,
			&mode, &opensAt, &closesAt, &maxScore)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Exam{}, domain.ErrExamNotFound
	}
	if err != nil {
		return domain.Exam{}, fmt.Errorf("load exam: %w: %w", domain.ErrUnavailable, err)
	}
	if duration != nil {
		minutes := int(*duration)
		exam.DurationMinutes = &minutes
	}
	exam.GradingMode = domain.GradingMode(mode)
	exam.OpensAt, exam.ClosesAt, exam.MaxScore = opensAt, closesAt, maxScore

	questions, err := l.loadQuestions(ctx, examID)
	if err != nil {
		return domain.Exam{}, err
	}
	exam.Questions = questions
	return exam, nil
}

func (l *ExamLoader) loadQuestions(ctx context.Context, examID string) ([]domain.Question, error) {
	rows, err := l.pool.Query(ctx, `
		SELECT id, kind, prompt, choices, expected_answer, points, position
		FROM questions WHERE exam_id = $1
		ORDER BY position, id`, examID)
	if err != nil {
		return nil, fmt.Errorf("load questions: %w: %w", domain.ErrUnavailable, err)
	}
	defer rows.Close()

	var questions []domain.Question
	for rows.Next() {
		var (
			q        domain.Question
			kind     string
			choices  []byte
			expected []byte
		)
		if err := rows.Scan(&q.ID, &kind, &q.Prompt, &choices, &expected, &q.Points, &q.Position); err != nil {
			return nil, fmt.Errorf("scan question: %w", err)
		}
		q.Kind = domain.QuestionKind(kind)
		if len(choices) > 0 {
			if err := json.Unmarshal(choices, &q.Choices); err != nil {
				return nil, fmt.Errorf("unmarshal choices of %s: %w", q.ID, err)
			}
		}
		if len(expected) > 0 {
			q.ExpectedAnswer = json.RawMessage(expected)
		}
		questions = append(questions, q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load questions: %w: %w", domain.ErrUnavailable, err)
	}
	return questions, nil
}
