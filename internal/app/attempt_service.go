package app

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/maluguiro/examen-proctor/internal/domain"
)

// DefaultMaxAnswerBytes bounds a single answer payload.
const DefaultMaxAnswerBytes = 64 << 10

// AttemptService owns the attempt lifecycle: start, penalties, expiry, submission and grading.
//
// Every mutation of an attempt runs under a per-attempt lock and inside one store
// transaction. Expiry is enforced when an attempt is observed, not by a timer.
type AttemptService struct {
	exams     ExamCatalog
	questions QuestionBank
	store     AttemptStore
	feeds     FeedRepository
	events    EventLog
	metrics   Metrics
	logger    *zap.Logger

	now            func() time.Time
	newID          func() string
	maxAnswerBytes int
	locks          *keyedMutex
}

// Option customizes an AttemptService.
type Option func(*AttemptService)

// WithClock is mostly useful for deterministic tests.
func WithClock(now func() time.Time) Option { return func(s *AttemptService) { s.now = now } }

func WithLogger(l *zap.Logger) Option { return func(s *AttemptService) { s.logger = l } }

func WithMetrics(m Metrics) Option { return func(s *AttemptService) { s.metrics = m } }

func WithFeeds(f FeedRepository) Option { return func(s *AttemptService) { s.feeds = f } }

func WithEventLog(l EventLog) Option { return func(s *AttemptService) { s.events = l } }

func WithIDGenerator(fn func() string) Option { return func(s *AttemptService) { s.newID = fn } }

func WithMaxAnswerBytes(n int) Option {
	return func(s *AttemptService) {
		if n > 0 {
			s.maxAnswerBytes = n
		}
	}
}

func NewAttemptService(exams ExamCatalog, questions QuestionBank, store AttemptStore, opts ...Option) *AttemptService {
	s := &AttemptService{
		exams:          exams,
		questions:      questions,
		store:          store,
		metrics:        nopMetrics{},
		logger:         zap.NewNop(),
		now:            time.Now,
		newID:          uuid.NewString,
		maxAnswerBytes: DefaultMaxAnswerBytes,
		locks:          newKeyedMutex(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.exams = classifiedCatalog{next: s.exams}
	s.questions = classifiedBank{next: s.questions}
	s.store = classifiedStore{classifiedReader: classifiedReader{next: s.store}, next: s.store}
	if s.events != nil {
		s.events = classifiedEventLog{next: s.events}
	}
	return s
}

// AttemptState is an attempt as observed right now, after the expiry check.
type AttemptState struct {
	Attempt        domain.Attempt `json:"attempt"`
	LivesRemaining int            `json:"livesRemaining"`
	Deadline       *time.Time     `json:"deadline,omitempty"`
	SecondsLeft    *int64         `json:"secondsLeft,omitempty"`
	// AutoSubmitted is true when this observation closed the attempt at its deadline.
	AutoSubmitted bool `json:"autoSubmitted"`
}

// PenaltyResult reports the outcome of one reported violation.
type PenaltyResult struct {
	AttemptID      string               `json:"attemptId"`
	Tag            string               `json:"tag"`
	Ignored        bool                 `json:"ignored"`
	Penalized      bool                 `json:"penalized"`
	LivesUsed      int                  `json:"livesUsed"`
	LivesRemaining int                  `json:"livesRemaining"`
	Terminal       bool                 `json:"terminal"`
	Status         domain.AttemptStatus `json:"status"`
}

// ComputeDeadline returns the cutoff for attempt, or false when the exam is untimed.
func ComputeDeadline(attempt domain.Attempt, exam domain.Exam) (time.Time, bool) {
	if !exam.Timed() {
		return time.Time{}, false
	}
	return attempt.StartAt.
		Add(time.Duration(*exam.DurationMinutes) * time.Minute).
		Add(time.Duration(attempt.ExtraTimeSecs) * time.Second), true
}

// Start creates a new in-progress attempt for a student who has never attempted the exam.
func (s *AttemptService) Start(ctx context.Context, examID string, student domain.StudentIdentity) (domain.Attempt, error) {
	key, err := StudentKey(student)
	if err != nil {
		return domain.Attempt{}, err
	}
	exam, err := s.exams.GetExam(ctx, examID)
	if err != nil {
		return domain.Attempt{}, err
	}
	now := s.now()
	if err := checkWindow(exam, now); err != nil {
		return domain.Attempt{}, err
	}

	unlock := s.locks.Lock("start:" + examID + ":" + key)
	defer unlock()

	attempt := domain.Attempt{
		ID:           s.newID(),
		ExamID:       examID,
		StudentKey:   key,
		StudentName:  student.Name,
		StudentEmail: student.Email,
		Status:       domain.StatusInProgress,
		StartAt:      now,
	}
	err = s.store.WithinTx(ctx, func(tx AttemptWriter) error {
		if _, found, err := tx.FindAttempt(ctx, examID, key); err != nil {
			return err
		} else if found {
			return domain.ErrDuplicateAttempt
		}
		return tx.CreateAttempt(ctx, attempt)
	})
	if err != nil {
		return domain.Attempt{}, err
	}

	s.logger.Info("attempt started",
		zap.String("attempt_id", attempt.ID),
		zap.String("exam_id", examID),
		zap.String("student_key", key))
	s.metrics.AttemptStarted(examID)
	s.publish(ctx, eventFor(domain.EventStarted, attempt, "", now))
	return attempt, nil
}

// RecordPenalty applies one reported violation to an attempt.
func (s *AttemptService) RecordPenalty(ctx context.Context, attemptID, violationType string) (PenaltyResult, error) {
	unlock := s.locks.Lock(attemptID)
	defer unlock()

	tag := NormalizeViolation(violationType)
	result := PenaltyResult{AttemptID: attemptID, Tag: tag}
	var pending []domain.AttemptEvent
	var finalized domain.EndReason

	err := s.store.WithinTx(ctx, func(tx AttemptWriter) error {
		pending, finalized = nil, ""
		attempt, exam, err := s.loadForUpdate(ctx, tx, attemptID)
		if err != nil {
			return err
		}
		now := s.now()

		expired, err := s.expireIfDue(ctx, tx, exam, &attempt, now)
		if err != nil {
			return err
		}
		if expired {
			pending = append(pending, eventFor(domain.EventExpired, attempt, "", now))
			finalized = domain.EndExpired
		}

		if attempt.Status != domain.StatusInProgress || checkWindow(exam, now) != nil {
			result.Ignored = true
			fillPenaltyResult(&result, attempt, exam)
			return nil
		}

		penalized := IsPenalizing(tag)
		if penalized && attempt.LivesUsed < exam.LivesAllowed {
			attempt.LivesUsed++
		}
		if err := tx.AppendPenaltyEvent(ctx, domain.PenaltyEvent{
			AttemptID:  attempt.ID,
			Tag:        tag,
			Penalized:  penalized,
			OccurredAt: now,
		}); err != nil {
			return err
		}
		result.Penalized = penalized
		pending = append(pending, eventFor(domain.EventPenalty, attempt, tag, now))

		if penalized && attempt.LivesUsed >= exam.LivesAllowed {
			if err := s.finalize(ctx, tx, exam, &attempt, domain.EndLivesExhausted, now); err != nil {
				return err
			}
			pending = append(pending, eventFor(domain.EventLivesExhausted, attempt, tag, now))
			finalized = domain.EndLivesExhausted
		} else if penalized {
			if err := tx.SaveAttempt(ctx, attempt); err != nil {
				return err
			}
		}
		fillPenaltyResult(&result, attempt, exam)
		return nil
	})
	if err != nil {
		return PenaltyResult{}, err
	}

	if !result.Ignored {
		s.metrics.PenaltyRecorded(tag, result.Penalized)
		s.logger.Info("penalty recorded",
			zap.String("attempt_id", attemptID),
			zap.String("tag", tag),
			zap.Bool("penalized", result.Penalized),
			zap.Int("lives_used", result.LivesUsed))
	}
	if finalized != "" {
		s.finalizedHook(attemptID, finalized)
	}
	s.publish(ctx, pending...)
	return result, nil
}

// CheckExpiry observes an attempt, auto-submitting it when its deadline has passed.
func (s *AttemptService) CheckExpiry(ctx context.Context, attemptID string) (AttemptState, error) {
	unlock := s.locks.Lock(attemptID)
	defer unlock()

	state, _, err := s.observe(ctx, attemptID)
	return state, err
}

// SaveDraftAnswer stores a response without scoring it.
func (s *AttemptService) SaveDraftAnswer(ctx context.Context, attemptID, questionID string, value json.RawMessage) (domain.Answer, error) {
	unlock := s.locks.Lock(attemptID)
	defer unlock()

	state, _, err := s.observe(ctx, attemptID)
	if err != nil {
		return domain.Answer{}, err
	}
	if state.Attempt.Status != domain.StatusInProgress {
		return domain.Answer{}, domain.ErrAttemptClosed
	}
	if len(value) > s.maxAnswerBytes {
		return domain.Answer{}, domain.ErrPayloadTooLarge
	}

	answer := domain.Answer{AttemptID: attemptID, QuestionID: questionID, Value: value}
	err = s.store.WithinTx(ctx, func(tx AttemptWriter) error {
		attempt, exam, err := s.loadForUpdate(ctx, tx, attemptID)
		if err != nil {
			return err
		}
		if attempt.Status != domain.StatusInProgress {
			return domain.ErrAttemptClosed
		}
		questions, err := s.questions.ListQuestions(ctx, exam.ID)
		if err != nil {
			return err
		}
		if _, ok := findQuestion(questions, questionID); !ok {
			return domain.ErrQuestionNotFound
		}
		answer.UpdatedAt = s.now()
		return tx.UpsertAnswer(ctx, answer)
	})
	if err != nil {
		return domain.Answer{}, err
	}
	return answer, nil
}

// Submit stores the final answers, scores them when the exam is auto-graded and closes the attempt.
// A second submission is rejected with ErrAttemptClosed.
func (s *AttemptService) Submit(ctx context.Context, attemptID string, answers []domain.AnswerSubmission) (domain.Attempt, error) {
	unlock := s.locks.Lock(attemptID)
	defer unlock()

	state, _, err := s.observe(ctx, attemptID)
	if err != nil {
		return domain.Attempt{}, err
	}
	if len(answers) == 0 {
		return domain.Attempt{}, domain.ErrNoAnswers
	}
	if state.Attempt.Status != domain.StatusInProgress {
		return domain.Attempt{}, domain.ErrAttemptClosed
	}
	for _, a := range answers {
		if len(a.Value) > s.maxAnswerBytes {
			return domain.Attempt{}, domain.ErrPayloadTooLarge
		}
	}

	var submitted domain.Attempt
	err = s.store.WithinTx(ctx, func(tx AttemptWriter) error {
		attempt, exam, err := s.loadForUpdate(ctx, tx, attemptID)
		if err != nil {
			return err
		}
		if attempt.Status != domain.StatusInProgress {
			return domain.ErrAttemptClosed
		}
		questions, err := s.questions.ListQuestions(ctx, exam.ID)
		if err != nil {
			return err
		}
		now := s.now()
		for _, a := range answers {
			if _, ok := findQuestion(questions, a.QuestionID); !ok {
				return fmt.Errorf("question %q: %w", a.QuestionID, domain.ErrQuestionNotFound)
			}
			if err := tx.UpsertAnswer(ctx, domain.Answer{
				AttemptID:  attemptID,
				QuestionID: a.QuestionID,
				Value:      a.Value,
				UpdatedAt:  now,
			}); err != nil {
				return err
			}
		}
		if err := s.finalizeWith(ctx, tx, exam, questions, &attempt, domain.EndSubmitted, now); err != nil {
			return err
		}
		submitted = attempt
		return nil
	})
	if err != nil {
		return domain.Attempt{}, err
	}

	s.logger.Info("attempt submitted",
		zap.String("attempt_id", attemptID),
		zap.Int("answers", len(answers)))
	s.finalizedHook(attemptID, domain.EndSubmitted)
	s.publish(ctx, eventFor(domain.EventSubmitted, submitted, "", *submitted.EndAt))
	return submitted, nil
}

// Grade records teacher scores and feedback. The total is recomputed from every stored answer;
// finalize moves the attempt to graded, otherwise it stays in review.
func (s *AttemptService) Grade(ctx context.Context, actorID, attemptID string, grades []domain.QuestionGrade, finalize bool) (domain.Attempt, error) {
	for _, g := range grades {
		if g.Score < 0 {
			return domain.Attempt{}, domain.ErrInvalidScore
		}
	}

	unlock := s.locks.Lock(attemptID)
	defer unlock()

	state, exam, err := s.observe(ctx, attemptID)
	if err != nil {
		return domain.Attempt{}, err
	}
	if !exam.CanManage(actorID) {
		return domain.Attempt{}, domain.ErrNotExamManager
	}
	if err := gradable(state.Attempt); err != nil {
		return domain.Attempt{}, err
	}

	var graded domain.Attempt
	err = s.store.WithinTx(ctx, func(tx AttemptWriter) error {
		attempt, exam, err := s.loadForUpdate(ctx, tx, attemptID)
		if err != nil {
			return err
		}
		if err := gradable(attempt); err != nil {
			return err
		}
		questions, err := s.questions.ListQuestions(ctx, exam.ID)
		if err != nil {
			return err
		}
		stored, err := tx.ListAnswers(ctx, attemptID)
		if err != nil {
			return err
		}
		byQuestion := make(map[string]domain.Answer, len(stored))
		for _, a := range stored {
			byQuestion[a.QuestionID] = a
		}

		now := s.now()
		for _, g := range grades {
			answer, ok := byQuestion[g.QuestionID]
			if !ok {
				answer = domain.Answer{AttemptID: attemptID, QuestionID: g.QuestionID}
			}
			answer.Feedback = g.Feedback
			answer.UpdatedAt = now
			if g.QuestionID == domain.OverallFeedbackQuestionID {
				answer.Score = nil
			} else {
				if _, ok := findQuestion(questions, g.QuestionID); !ok {
					return fmt.Errorf("question %q: %w", g.QuestionID, domain.ErrQuestionNotFound)
				}
				score := g.Score
				answer.Score = &score
			}
			if err := tx.UpsertAnswer(ctx, answer); err != nil {
				return err
			}
			byQuestion[g.QuestionID] = answer
		}

		total := 0.0
		for qid, a := range byQuestion {
			if qid == domain.OverallFeedbackQuestionID || a.Score == nil {
				continue
			}
			total += *a.Score
		}
		attempt.Score = &total
		if finalize {
			attempt.Status = domain.StatusGraded
		} else {
			attempt.Status = domain.StatusInReview
		}
		if err := tx.SaveAttempt(ctx, attempt); err != nil {
			return err
		}
		graded = attempt
		return nil
	})
	if err != nil {
		return domain.Attempt{}, err
	}

	s.logger.Info("attempt graded",
		zap.String("attempt_id", attemptID),
		zap.String("grader_id", actorID),
		zap.Bool("final", finalize))
	s.publish(ctx, eventFor(domain.EventGraded, graded, "", s.now()))
	return graded, nil
}

// GrantExtraTime extends the deadline of a running attempt.
func (s *AttemptService) GrantExtraTime(ctx context.Context, actorID, attemptID string, seconds int) (domain.Attempt, error) {
	if seconds <= 0 {
		return domain.Attempt{}, domain.ErrInvalidExtraTime
	}
	return s.intervene(ctx, actorID, attemptID, domain.EventExtraTime, func(a *domain.Attempt, _ domain.Exam) {
		a.ExtraTimeSecs += seconds
	})
}

// ForgiveLife gives one life back to a running attempt.
func (s *AttemptService) ForgiveLife(ctx context.Context, actorID, attemptID string) (domain.Attempt, error) {
	return s.intervene(ctx, actorID, attemptID, domain.EventLifeForgiven, func(a *domain.Attempt, _ domain.Exam) {
		if a.LivesUsed > 0 {
			a.LivesUsed--
		}
	})
}

func (s *AttemptService) intervene(ctx context.Context, actorID, attemptID string, kind domain.AttemptEventType, mutate func(*domain.Attempt, domain.Exam)) (domain.Attempt, error) {
	unlock := s.locks.Lock(attemptID)
	defer unlock()

	state, exam, err := s.observe(ctx, attemptID)
	if err != nil {
		return domain.Attempt{}, err
	}
	if !exam.CanManage(actorID) {
		return domain.Attempt{}, domain.ErrNotExamManager
	}
	if state.Attempt.Status != domain.StatusInProgress {
		return domain.Attempt{}, domain.ErrAttemptClosed
	}

	var updated domain.Attempt
	err = s.store.WithinTx(ctx, func(tx AttemptWriter) error {
		attempt, exam, err := s.loadForUpdate(ctx, tx, attemptID)
		if err != nil {
			return err
		}
		if attempt.Status != domain.StatusInProgress {
			return domain.ErrAttemptClosed
		}
		mutate(&attempt, exam)
		if err := tx.SaveAttempt(ctx, attempt); err != nil {
			return err
		}
		updated = attempt
		return nil
	})
	if err != nil {
		return domain.Attempt{}, err
	}

	s.logger.Info("teacher intervention",
		zap.String("attempt_id", attemptID),
		zap.String("actor_id", actorID),
		zap.String("action", string(kind)))
	s.publish(ctx, eventFor(kind, updated, "", s.now()))
	return updated, nil
}

// observe loads an attempt and applies the lazy expiry check. Callers hold the attempt lock.
func (s *AttemptService) observe(ctx context.Context, attemptID string) (AttemptState, domain.Exam, error) {
	var (
		state AttemptState
		exam  domain.Exam
	)
	err := s.store.WithinTx(ctx, func(tx AttemptWriter) error {
		attempt, e, err := s.loadForUpdate(ctx, tx, attemptID)
		if err != nil {
			return err
		}
		now := s.now()
		expired, err := s.expireIfDue(ctx, tx, e, &attempt, now)
		if err != nil {
			return err
		}
		state = stateAt(attempt, e, now)
		state.AutoSubmitted = expired
		exam = e
		return nil
	})
	if err != nil {
		return AttemptState{}, domain.Exam{}, err
	}
	if state.AutoSubmitted {
		s.logger.Info("attempt auto-submitted at deadline", zap.String("attempt_id", attemptID))
		s.finalizedHook(attemptID, domain.EndExpired)
		s.publish(ctx, eventFor(domain.EventExpired, state.Attempt, "", s.now()))
	}
	return state, exam, nil
}

func (s *AttemptService) loadForUpdate(ctx context.Context, tx AttemptWriter, attemptID string) (domain.Attempt, domain.Exam, error) {
	attempt, err := tx.LoadAttempt(ctx, attemptID)
	if err != nil {
		return domain.Attempt{}, domain.Exam{}, err
	}
	exam, err := s.exams.GetExam(ctx, attempt.ExamID)
	if err != nil {
		return domain.Attempt{}, domain.Exam{}, err
	}
	return attempt, exam, nil
}

// expireIfDue finalizes a running attempt whose deadline has passed.
func (s *AttemptService) expireIfDue(ctx context.Context, tx AttemptWriter, exam domain.Exam, attempt *domain.Attempt, now time.Time) (bool, error) {
	if attempt.EndAt != nil || attempt.Status != domain.StatusInProgress {
		return false, nil
	}
	deadline, ok := ComputeDeadline(*attempt, exam)
	if !ok || now.Before(deadline) {
		return false, nil
	}
	if err := s.finalize(ctx, tx, exam, attempt, domain.EndExpired, now); err != nil {
		return false, err
	}
	return true, nil
}

func (s *AttemptService) finalize(ctx context.Context, tx AttemptWriter, exam domain.Exam, attempt *domain.Attempt, reason domain.EndReason, now time.Time) error {
	questions, err := s.questions.ListQuestions(ctx, exam.ID)
	if err != nil {
		return err
	}
	return s.finalizeWith(ctx, tx, exam, questions, attempt, reason, now)
}

// finalizeWith is the single path by which an attempt leaves in_progress. Auto-graded exams
// score every stored answer; manual exams keep scores empty for the teacher.
func (s *AttemptService) finalizeWith(ctx context.Context, tx AttemptWriter, exam domain.Exam, questions []domain.Question, attempt *domain.Attempt, reason domain.EndReason, now time.Time) error {
	attempt.Score = nil
	if exam.GradingMode == domain.GradingAuto {
		answers, err := tx.ListAnswers(ctx, attempt.ID)
		if err != nil {
			return err
		}
		total := 0.0
		for _, a := range answers {
			q, ok := findQuestion(questions, a.QuestionID)
			if !ok {
				continue
			}
			score := ScoreAnswer(q, a.Value)
			a.Score = &score
			a.UpdatedAt = now
			if err := tx.UpsertAnswer(ctx, a); err != nil {
				return err
			}
			total += score
		}
		attempt.Score = &total
	}
	attempt.Status = domain.StatusSubmitted
	attempt.EndAt = &now
	attempt.EndReason = reason
	return tx.SaveAttempt(ctx, *attempt)
}

func (s *AttemptService) finalizedHook(attemptID string, reason domain.EndReason) {
	s.metrics.AttemptFinalized(reason)
	s.logger.Debug("attempt finalized", zap.String("attempt_id", attemptID), zap.String("reason", string(reason)))
}

// publish hands events to the event log and live feeds. Failures never fail the operation.
func (s *AttemptService) publish(ctx context.Context, events ...domain.AttemptEvent) {
	for _, ev := range events {
		if s.events != nil {
			if err := s.events.Append(ctx, ev); err != nil {
				s.logger.Warn("append attempt event",
					zap.String("exam_id", ev.ExamID),
					zap.String("attempt_id", ev.AttemptID),
					zap.Error(err))
			}
		}
		if s.feeds != nil {
			if feed, ok := s.feeds.Get(ev.ExamID); ok {
				feed.Broadcast(ev)
			}
		}
	}
}

func checkWindow(exam domain.Exam, now time.Time) error {
	if exam.OpensAt != nil && now.Before(*exam.OpensAt) {
		return domain.ErrExamNotOpenYet
	}
	if exam.ClosesAt != nil && now.After(*exam.ClosesAt) {
		return domain.ErrExamClosed
	}
	return nil
}

func gradable(a domain.Attempt) error {
	switch a.Status {
	case domain.StatusInProgress:
		return domain.ErrAttemptNotSubmitted
	case domain.StatusGraded:
		return domain.ErrAttemptFinalized
	}
	return nil
}

func stateAt(attempt domain.Attempt, exam domain.Exam, now time.Time) AttemptState {
	state := AttemptState{
		Attempt:        attempt,
		LivesRemaining: livesRemaining(attempt, exam),
	}
	if deadline, ok := ComputeDeadline(attempt, exam); ok {
		state.Deadline = &deadline
		left := int64(0)
		if attempt.EndAt == nil && deadline.After(now) {
			left = int64(deadline.Sub(now) / time.Second)
		}
		state.SecondsLeft = &left
	}
	return state
}

func livesRemaining(a domain.Attempt, exam domain.Exam) int {
	if left := exam.LivesAllowed - a.LivesUsed; left > 0 {
		return left
	}
	return 0
}

func fillPenaltyResult(r *PenaltyResult, a domain.Attempt, exam domain.Exam) {
	r.LivesUsed = a.LivesUsed
	r.LivesRemaining = livesRemaining(a, exam)
	r.Terminal = a.Status.Terminal()
	r.Status = a.Status
}

func findQuestion(questions []domain.Question, id string) (domain.Question, bool) {
	for _, q := range questions {
		if q.ID == id {
			return q, true
		}
	}
	return domain.Question{}, false
}

func eventFor(kind domain.AttemptEventType, a domain.Attempt, tag string, at time.Time) domain.AttemptEvent {
	return domain.AttemptEvent{
		Type:       kind,
		ExamID:     a.ExamID,
		AttemptID:  a.ID,
		StudentKey: a.StudentKey,
		Status:     a.Status,
		LivesUsed:  a.LivesUsed,
		Tag:        tag,
		At:         at,
	}
}
