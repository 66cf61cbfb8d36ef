package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/maluguiro/examen-proctor/internal/app"
	"github.com/maluguiro/examen-proctor/internal/domain"
)

// AttemptStore is an in-memory implementation of app.AttemptStore.
// Transactions are serialized and rolled back through an undo log.
type AttemptStore struct {
	txMu sync.Mutex

	mu        sync.RWMutex
	attempts  map[string]domain.Attempt
	byStudent map[string]string
	answers   map[string]map[string]domain.Answer
	penalties map[string][]domain.PenaltyEvent
}

func NewAttemptStore() *AttemptStore {
	return &AttemptStore{
		attempts:  make(map[string]domain.Attempt),
		byStudent: make(map[string]string),
		answers:   make(map[string]map[string]domain.Answer),
		penalties: make(map[string][]domain.PenaltyEvent),
	}
}

var _ app.AttemptStore = (*AttemptStore)(nil)

func (s *AttemptStore) WithinTx(ctx context.Context, fn func(tx app.AttemptWriter) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	tx := &attemptTx{store: s}
	if err := fn(tx); err != nil {
		s.mu.Lock()
		for i := len(tx.undo) - 1; i >= 0; i-- {
			tx.undo[i]()
		}
		s.mu.Unlock()
		return err
	}
	return nil
}

func (s *AttemptStore) LoadAttempt(_ context.Context, attemptID string) (domain.Attempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	attempt, ok := s.attempts[attemptID]
	if !ok {
		return domain.Attempt{}, domain.ErrAttemptNotFound
	}
	return attempt, nil
}

func (s *AttemptStore) FindAttempt(_ context.Context, examID, studentKey string) (domain.Attempt, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byStudent[studentIndex(examID, studentKey)]
	if !ok {
		return domain.Attempt{}, false, nil
	}
	return s.attempts[id], true, nil
}

func (s *AttemptStore) ListAttempts(_ context.Context, examID string) ([]domain.Attempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Attempt, 0)
	for _, a := range s.attempts {
		if a.ExamID == examID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartAt.Equal(out[j].StartAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].StartAt.Before(out[j].StartAt)
	})
	return out, nil
}

func (s *AttemptStore) ListAnswers(_ context.Context, attemptID string) ([]domain.Answer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	byQuestion := s.answers[attemptID]
	out := make([]domain.Answer, 0, len(byQuestion))
	for _, a := range byQuestion {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].QuestionID < out[j].QuestionID })
	return out, nil
}

func (s *AttemptStore) ListPenaltyEvents(_ context.Context, attemptID string) ([]domain.PenaltyEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	events := s.penalties[attemptID]
	out := make([]domain.PenaltyEvent, len(events))
	copy(out, events)
	return out, nil
}

func studentIndex(examID, studentKey string) string {
	return examID + "\x00" + studentKey
}

// attemptTx writes straight into the store and records how to revert each write.
type attemptTx struct {
	store *AttemptStore
	undo  []func()
}

func (tx *attemptTx) LoadAttempt(ctx context.Context, attemptID string) (domain.Attempt, error) {
	return tx.store.LoadAttempt(ctx, attemptID)
}

func (tx *attemptTx) FindAttempt(ctx context.Context, examID, studentKey string) (domain.Attempt, bool, error) {
	return tx.store.FindAttempt(ctx, examID, studentKey)
}

func (tx *attemptTx) ListAttempts(ctx context.Context, examID string) ([]domain.Attempt, error) {
	return tx.store.ListAttempts(ctx, examID)
}

func (tx *attemptTx) ListAnswers(ctx context.Context, attemptID string) ([]domain.Answer, error) {
	return tx.store.ListAnswers(ctx, attemptID)
}

func (tx *attemptTx) ListPenaltyEvents(ctx context.Context, attemptID string) ([]domain.PenaltyEvent, error) {
	return tx.store.ListPenaltyEvents(ctx, attemptID)
}

func (tx *attemptTx) CreateAttempt(_ context.Context, attempt domain.Attempt) error {
	s := tx.store
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := studentIndex(attempt.ExamID, attempt.StudentKey)
	if _, exists := s.byStudent[idx]; exists {
		return domain.ErrDuplicateAttempt
	}
	if _, exists := s.attempts[attempt.ID]; exists {
		return domain.ErrDuplicateAttempt
	}
	s.attempts[attempt.ID] = attempt
	s.byStudent[idx] = attempt.ID
	tx.undo = append(tx.undo, func() {
		delete(s.attempts, attempt.ID)
		delete(s.byStudent, idx)
	})
	return nil
}

func (tx *attemptTx) SaveAttempt(_ context.Context, attempt domain.Attempt) error {
	s := tx.store
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, ok := s.attempts[attempt.ID]
	if !ok {
		return domain.ErrAttemptNotFound
	}
	// identity fields are immutable
	attempt.ExamID = prev.ExamID
	attempt.StudentKey = prev.StudentKey
	s.attempts[attempt.ID] = attempt
	tx.undo = append(tx.undo, func() { s.attempts[prev.ID] = prev })
	return nil
}

func (tx *attemptTx) UpsertAnswer(_ context.Context, answer domain.Answer) error {
	s := tx.store
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.attempts[answer.AttemptID]; !ok {
		return domain.ErrAttemptNotFound
	}
	byQuestion, ok := s.answers[answer.AttemptID]
	if !ok {
		byQuestion = make(map[string]domain.Answer)
		s.answers[answer.AttemptID] = byQuestion
	}
	prev, existed := byQuestion[answer.QuestionID]
	byQuestion[answer.QuestionID] = answer
	tx.undo = append(tx.undo, func() {
		if existed {
			byQuestion[answer.QuestionID] = prev
		} else {
			delete(byQuestion, answer.QuestionID)
		}
	})
	return nil
}

func (tx *attemptTx) AppendPenaltyEvent(_ context.Context, event domain.PenaltyEvent) error {
	s := tx.store
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.attempts[event.AttemptID]; !ok {
		return domain.ErrAttemptNotFound
	}
	n := len(s.penalties[event.AttemptID])
	s.penalties[event.AttemptID] = append(s.penalties[event.AttemptID], event)
	tx.undo = append(tx.undo, func() {
		s.penalties[event.AttemptID] = s.penalties[event.AttemptID][:n]
	})
	return nil
}
