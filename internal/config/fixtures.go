package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/maluguiro/examen-proctor/internal/domain"
)

type examFixture struct {
	ID              string            `yaml:"id" validate:"required"`
	Title           string            `yaml:"title"`
	OwnerID         string            `yaml:"ownerId" validate:"required"`
	Graders         []string          `yaml:"graders"`
	LivesAllowed    *int              `yaml:"livesAllowed" validate:"omitempty,gte=0"`
	DurationMinutes *int              `yaml:"durationMinutes"`
	GradingMode     string            `yaml:"gradingMode" validate:"omitempty,oneof=auto manual"`
	OpensAt         *time.Time        `yaml:"opensAt"`
	ClosesAt        *time.Time        `yaml:"closesAt"`
	MaxScore        *float64          `yaml:"maxScore"`
	Questions       []questionFixture `yaml:"questions" validate:"dive"`
}

type questionFixture struct {
	ID             string   `yaml:"id" validate:"required"`
	Kind           string   `yaml:"kind" validate:"required,oneof=multiple-choice true-false short-text fill-in-blank"`
	Prompt         string   `yaml:"prompt"`
	Choices        []string `yaml:"choices"`
	ExpectedAnswer any      `yaml:"expectedAnswer"`
	Points         int      `yaml:"points" validate:"gte=0"`
}

type fixtureFile struct {
	Exams []examFixture `yaml:"exams" validate:"dive"`
}

// LoadExamFixtures reads a YAML list of exams keyed by id.
func LoadExamFixtures(path string) (map[string]domain.Exam, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseExamFixtures(data)
}

func ParseExamFixtures(data []byte) (map[string]domain.Exam, error) {
	var file fixtureFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse exam fixtures: %w", err)
	}
	if err := newValidator().Struct(file); err != nil {
		return nil, fmt.Errorf("invalid exam fixtures: %w", err)
	}

	exams := make(map[string]domain.Exam, len(file.Exams))
	for _, f := range file.Exams {
		if _, dup := exams[f.ID]; dup {
			return nil, fmt.Errorf("invalid exam fixtures: duplicate exam %q", f.ID)
		}
		exam := domain.Exam{
			ID:              f.ID,
			Title:           f.Title,
			OwnerID:         f.OwnerID,
			Graders:         f.Graders,
			LivesAllowed:    domain.DefaultLivesAllowed,
			DurationMinutes: f.DurationMinutes,
			GradingMode:     domain.GradingAuto,
			OpensAt:         f.OpensAt,
			ClosesAt:        f.ClosesAt,
			MaxScore:        f.MaxScore,
		}
		if f.LivesAllowed != nil {
			exam.LivesAllowed = *f.LivesAllowed
		}
		if f.GradingMode != "" {
			exam.GradingMode = domain.GradingMode(f.GradingMode)
		}
		for i, q := range f.Questions {
			expected, err := json.Marshal(q.ExpectedAnswer)
			if err != nil {
				return nil, fmt.Errorf("exam %s question %s: %w", f.ID, q.ID, err)
			}
			exam.Questions = append(exam.Questions, domain.Question{
				ID:             q.ID,
				Kind:           domain.QuestionKind(q.Kind),
				Prompt:         q.Prompt,
				Choices:        q.Choices,
				ExpectedAnswer: expected,
				Points:         q.Points,
				Position:       i + 1,
			})
		}
		exams[exam.ID] = exam
	}
	return exams, nil
}
