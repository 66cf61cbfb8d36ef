package app

import (
	"context"
	"sort"
	"time"

	"github.com/maluguiro/examen-proctor/internal/domain"
)

// AttemptSummary is the student-facing view of an attempt.
type AttemptSummary struct {
	AttemptState
	Violations map[string]int `json:"violations"`
	Answered   int            `json:"answered"`
	Questions  int            `json:"questions"`
	MaxScore   float64        `json:"maxScore"`
}

// ReviewItem pairs a question with the student's answer, if any.
type ReviewItem struct {
	Question domain.Question `json:"question"`
	Answer   *domain.Answer  `json:"answer,omitempty"`
}

// AttemptReview is everything a grader needs to review one attempt.
type AttemptReview struct {
	AttemptSummary
	Items           []ReviewItem          `json:"items"`
	Penalties       []domain.PenaltyEvent `json:"penalties"`
	OverallFeedback string                `json:"overallFeedback,omitempty"`
}

// DashboardRow is one attempt on the teacher's exam dashboard.
type DashboardRow struct {
	AttemptState
	Violations int `json:"violations"`
}

// GetAttemptSummary observes the attempt (expiring it if due) and summarizes its progress.
func (s *AttemptService) GetAttemptSummary(ctx context.Context, attemptID string) (AttemptSummary, error) {
	unlock := s.locks.Lock(attemptID)
	state, exam, err := s.observe(ctx, attemptID)
	unlock()
	if err != nil {
		return AttemptSummary{}, err
	}
	summary, _, _, err := s.summarize(ctx, state, exam)
	return summary, err
}

// GetReview returns the full attempt with questions, answers and penalty history.
func (s *AttemptService) GetReview(ctx context.Context, actorID, attemptID string) (AttemptReview, error) {
	unlock := s.locks.Lock(attemptID)
	state, exam, err := s.observe(ctx, attemptID)
	unlock()
	if err != nil {
		return AttemptReview{}, err
	}
	if !exam.CanManage(actorID) {
		return AttemptReview{}, domain.ErrNotExamManager
	}

	summary, answers, penalties, err := s.summarize(ctx, state, exam)
	if err != nil {
		return AttemptReview{}, err
	}
	questions, err := s.questions.ListQuestions(ctx, exam.ID)
	if err != nil {
		return AttemptReview{}, err
	}

	byQuestion := make(map[string]domain.Answer, len(answers))
	for _, a := range answers {
		byQuestion[a.QuestionID] = a
	}
	review := AttemptReview{
		AttemptSummary: summary,
		Items:          make([]ReviewItem, 0, len(questions)),
		Penalties:      penalties,
	}
	for _, q := range questions {
		item := ReviewItem{Question: q}
		if a, ok := byQuestion[q.ID]; ok {
			item.Answer = &a
		}
		review.Items = append(review.Items, item)
	}
	if overall, ok := byQuestion[domain.OverallFeedbackQuestionID]; ok {
		review.OverallFeedback = overall.Feedback
	}
	return review, nil
}

// ListExamAttempts is the teacher dashboard. Every listed attempt is checked for expiry first.
func (s *AttemptService) ListExamAttempts(ctx context.Context, actorID, examID string) ([]DashboardRow, error) {
	exam, err := s.exams.GetExam(ctx, examID)
	if err != nil {
		return nil, err
	}
	if !exam.CanManage(actorID) {
		return nil, domain.ErrNotExamManager
	}

	attempts, err := s.store.ListAttempts(ctx, examID)
	if err != nil {
		return nil, err
	}
	rows := make([]DashboardRow, 0, len(attempts))
	for _, a := range attempts {
		unlock := s.locks.Lock(a.ID)
		state, _, err := s.observe(ctx, a.ID)
		unlock()
		if err != nil {
			return nil, err
		}
		penalties, err := s.store.ListPenaltyEvents(ctx, a.ID)
		if err != nil {
			return nil, err
		}
		rows = append(rows, DashboardRow{AttemptState: state, Violations: len(penalties)})
	}
	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].Attempt.StartAt.Before(rows[j].Attempt.StartAt)
	})
	return rows, nil
}

// Subscribe attaches a teacher to the live event feed of an exam.
// The returned cancel must be called once the subscriber goes away.
func (s *AttemptService) Subscribe(ctx context.Context, actorID, examID string) (<-chan domain.AttemptEvent, func(), error) {
	if s.feeds == nil {
		return nil, nil, domain.ErrUnavailable
	}
	exam, err := s.exams.GetExam(ctx, examID)
	if err != nil {
		return nil, nil, err
	}
	if !exam.CanManage(actorID) {
		return nil, nil, domain.ErrNotExamManager
	}

	feed := s.feeds.GetOrCreate(examID)
	ch, cancel := feed.Subscribe()
	return ch, func() {
		cancel()
		s.feeds.DeleteIfIdle(examID)
	}, nil
}

// EventsSince returns retained events of an exam newer than since, oldest first.
func (s *AttemptService) EventsSince(ctx context.Context, actorID, examID string, since time.Time) ([]domain.AttemptEvent, error) {
	if s.events == nil {
		return nil, domain.ErrUnavailable
	}
	exam, err := s.exams.GetExam(ctx, examID)
	if err != nil {
		return nil, err
	}
	if !exam.CanManage(actorID) {
		return nil, domain.ErrNotExamManager
	}
	return s.events.Since(ctx, examID, since)
}

func (s *AttemptService) summarize(ctx context.Context, state AttemptState, exam domain.Exam) (AttemptSummary, []domain.Answer, []domain.PenaltyEvent, error) {
	attemptID := state.Attempt.ID
	answers, err := s.store.ListAnswers(ctx, attemptID)
	if err != nil {
		return AttemptSummary{}, nil, nil, err
	}
	penalties, err := s.store.ListPenaltyEvents(ctx, attemptID)
	if err != nil {
		return AttemptSummary{}, nil, nil, err
	}
	questions, err := s.questions.ListQuestions(ctx, exam.ID)
	if err != nil {
		return AttemptSummary{}, nil, nil, err
	}

	summary := AttemptSummary{
		AttemptState: state,
		Violations:   make(map[string]int),
		Questions:    len(questions),
		MaxScore:     maxScore(exam, questions),
	}
	for _, p := range penalties {
		summary.Violations[p.Tag]++
	}
	for _, a := range answers {
		if a.QuestionID != domain.OverallFeedbackQuestionID && !isEmptyPayload(a.Value) {
			summary.Answered++
		}
	}
	return summary, answers, penalties, nil
}

func maxScore(exam domain.Exam, questions []domain.Question) float64 {
	if exam.MaxScore != nil {
		return *exam.MaxScore
	}
	total := 0.0
	for _, q := range questions {
		total += float64(q.PointValue())
	}
	return total
}
