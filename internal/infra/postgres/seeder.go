package postgres

import (
	"context"
	"fmt"

	"github.com/uptrace/bun"

	"github.com/maluguiro/examen-proctor/internal/domain"
)

// ExamSeeder writes exams and their questions, replacing the question set of each exam.
type ExamSeeder struct {
	db *bun.DB
}

func NewExamSeeder(db *bun.DB) *ExamSeeder {
	return &ExamSeeder{db: db}
}

func (s *ExamSeeder) UpsertExam(ctx context.Context, exam domain.Exam) error {
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		row := examRow{
			ID:              exam.ID,
			Title:           exam.Title,
			OwnerID:         exam.OwnerID,
			Graders:         exam.Graders,
			LivesAllowed:    exam.LivesAllowed,
			DurationMinutes: exam.DurationMinutes,
			GradingMode:     string(exam.GradingMode),
			OpensAt:         exam.OpensAt,
			ClosesAt:        exam.ClosesAt,
			MaxScore:        exam.MaxScore,
		}
		if row.Graders == nil {
			row.Graders = []string{}
		}
		_, err := tx.NewInsert().Model(&row).
			On("CONFLICT (id) DO UPDATE").
			Set("title = EXCLUDED.title").
			Set("owner_id = EXCLUDED.owner_id").
			Set("graders = EXCLUDED.graders").
			Set("lives_allowed = EXCLUDED.lives_allowed").
			Set("duration_minutes = EXCLUDED.duration_minutes").
			Set("grading_mode = EXCLUDED.grading_mode").
			Set("opens_at = EXCLUDED.opens_at").
			Set("closes_at = EXCLUDED.closes_at").
			Set("max_score = EXCLUDED.max_score").
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("upsert exam %s: %w", exam.ID, err)
		}

		if _, err := tx.NewDelete().Model((*questionRow)(nil)).Where("exam_id = ?", exam.ID).Exec(ctx); err != nil {
			return fmt.Errorf("clear questions of %s: %w", exam.ID, err)
		}
		if len(exam.Questions) == 0 {
			return nil
		}
		rows := make([]questionRow, 0, len(exam.Questions))
		for i, q := range exam.Questions {
			position := q.Position
			if position == 0 {
				position = i + 1
			}
			rows = append(rows, questionRow{
				ExamID:         exam.ID,
				ID:             q.ID,
				Kind:           string(q.Kind),
				Prompt:         q.Prompt,
				Choices:        q.Choices,
				ExpectedAnswer: q.ExpectedAnswer,
				Points:         q.PointValue(),
				Position:       position,
			})
		}
		if _, err := tx.NewInsert().Model(&rows).Exec(ctx); err != nil {
			return fmt.Errorf("insert questions of %s: %w", exam.ID, err)
		}
		return nil
	})
}
