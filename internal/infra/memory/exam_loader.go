package memory

import (
	"context"
	"sort"

	"github.com/maluguiro/examen-proctor/internal/domain"
)

// ExamLoader fetches exam configuration and questions from a backing store.
type ExamLoader interface {
	LoadExam(ctx context.Context, examID string) (domain.Exam, error)
}

// StaticExamLoader serves exams from a map (fixtures, tests, demos).
type StaticExamLoader struct {
	exams map[string]domain.Exam
}

func NewStaticExamLoader(exams map[string]domain.Exam) *StaticExamLoader {
	return &StaticExamLoader{exams: exams}
}

func (l *StaticExamLoader) LoadExam(_ context.Context, examID string) (domain.Exam, error) {
	if exam, ok := l.exams[examID]; ok {
		return exam, nil
	}
	return domain.Exam{}, domain.ErrExamNotFound
}

// PrepareExam returns a copy of exam with its questions in position order,
// ties keeping loader order. Every catalog cache stores exams in this form.
func PrepareExam(exam domain.Exam) domain.Exam {
	questions := make([]domain.Question, len(exam.Questions))
	copy(questions, exam.Questions)
	sort.SliceStable(questions, func(i, j int) bool { return questions[i].Position < questions[j].Position })
	exam.Questions = questions
	return exam
}
