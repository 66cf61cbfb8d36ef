package postgres

import (
	"encoding/json"
	"time"

	"github.com/uptrace/bun"

	"github.com/maluguiro/examen-proctor/internal/domain"
)

type examRow struct {
	bun.BaseModel `bun:"table:exams,alias:e"`

	ID              string     `bun:"id,pk"`
	Title           string     `bun:"title,notnull"`
	OwnerID         string     `bun:"owner_id,notnull"`
	Graders         []string   `bun:"graders,array"`
	LivesAllowed    int        `bun:"lives_allowed,notnull"`
	DurationMinutes *int       `bun:"duration_minutes"`
	GradingMode     string     `bun:"grading_mode,notnull"`
	OpensAt         *time.Time `bun:"opens_at"`
	ClosesAt        *time.Time `bun:"closes_at"`
	MaxScore        *float64   `bun:"max_score"`
}

type questionRow struct {
	bun.BaseModel `bun:"table:questions,alias:q"`

	ExamID         string          `bun:"exam_id,pk"`
	ID             string          `bun:"id,pk"`
	Kind           string          `bun:"kind,notnull"`
	Prompt         string          `bun:"prompt,notnull"`
	Choices        []string        `bun:"choices,type:jsonb"`
	ExpectedAnswer json.RawMessage `bun:"expected_answer,type:jsonb"`
	Points         int             `bun:"points,notnull"`
	Position       int             `bun:"position,notnull"`
}

type attemptRow struct {
	bun.BaseModel `bun:"table:attempts,alias:a"`

	ID            string     `bun:"id,pk"`
	ExamID        string     `bun:"exam_id,notnull"`
	StudentKey    string     `bun:"student_key,notnull"`
	StudentName   string     `bun:"student_name,notnull"`
	StudentEmail  string     `bun:"student_email,notnull"`
	Status        string     `bun:"status,notnull"`
	StartAt       time.Time  `bun:"start_at,notnull"`
	EndAt         *time.Time `bun:"end_at"`
	EndReason     string     `bun:"end_reason,notnull"`
	LivesUsed     int        `bun:"lives_used,notnull"`
	ExtraTimeSecs int        `bun:"extra_time_secs,notnull"`
	Score         *float64   `bun:"score"`
}

type answerRow struct {
	bun.BaseModel `bun:"table:answers,alias:ans"`

	AttemptID  string          `bun:"attempt_id,pk"`
	QuestionID string          `bun:"question_id,pk"`
	Value      json.RawMessage `bun:"value,type:jsonb"`
	Score      *float64        `bun:"score"`
	Feedback   string          `bun:"feedback,notnull"`
	UpdatedAt  time.Time       `bun:"updated_at,notnull"`
}

type penaltyRow struct {
	bun.BaseModel `bun:"table:penalty_events,alias:p"`

	ID         int64     `bun:"id,pk,autoincrement"`
	AttemptID  string    `bun:"attempt_id,notnull"`
	Tag        string    `bun:"tag,notnull"`
	Penalized  bool      `bun:"penalized,notnull"`
	OccurredAt time.Time `bun:"occurred_at,notnull"`
}

func toAttemptRow(a domain.Attempt) attemptRow {
	return attemptRow{
		ID:            a.ID,
		ExamID:        a.ExamID,
		StudentKey:    a.StudentKey,
		StudentName:   a.StudentName,
		StudentEmail:  a.StudentEmail,
		Status:        string(a.Status),
		StartAt:       a.StartAt,
		EndAt:         a.EndAt,
		EndReason:     string(a.EndReason),
		LivesUsed:     a.LivesUsed,
		ExtraTimeSecs: a.ExtraTimeSecs,
		Score:         a.Score,
	}
}

func (r attemptRow) toDomain() domain.Attempt {
	return domain.Attempt{
		ID:            r.ID,
		ExamID:        r.ExamID,
		StudentKey:    r.StudentKey,
		StudentName:   r.StudentName,
		StudentEmail:  r.StudentEmail,
		Status:        domain.AttemptStatus(r.Status),
		StartAt:       r.StartAt,
		EndAt:         r.EndAt,
		EndReason:     domain.EndReason(r.EndReason),
		LivesUsed:     r.LivesUsed,
		ExtraTimeSecs: r.ExtraTimeSecs,
		Score:         r.Score,
	}
}

func toAnswerRow(a domain.Answer) answerRow {
	return answerRow{
		AttemptID:  a.AttemptID,
		QuestionID: a.QuestionID,
		Value:      a.Value,
		Score:      a.Score,
		Feedback:   a.Feedback,
		UpdatedAt:  a.UpdatedAt,
	}
}

func (r answerRow) toDomain() domain.Answer {
	return domain.Answer{
		AttemptID:  r.AttemptID,
		QuestionID: r.QuestionID,
		Value:      r.Value,
		Score:      r.Score,
		Feedback:   r.Feedback,
		UpdatedAt:  r.UpdatedAt,
	}
}
