package memory

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/maluguiro/examen-proctor/internal/domain"
)

// ExamRepository is the in-process exam catalog and question bank. Exams are
// loaded once per TTL window (plus jitter) and concurrent misses share one load.
type ExamRepository struct {
	loader ExamLoader
	ttl    time.Duration
	clock  func() time.Time
	loads  singleflight.Group

	mu      sync.RWMutex
	entries map[string]catalogEntry

	jitterMu sync.Mutex
	jitter   *rand.Rand
}

type catalogEntry struct {
	exam    domain.Exam
	staleAt time.Time
}

func NewExamRepository(loader ExamLoader, ttl time.Duration) *ExamRepository {
	return &ExamRepository{
		loader:  loader,
		ttl:     ttl,
		clock:   time.Now,
		entries: make(map[string]catalogEntry),
		jitter:  rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (r *ExamRepository) GetExam(ctx context.Context, examID string) (domain.Exam, error) {
	if exam, ok := r.lookup(examID); ok {
		return exam, nil
	}
	v, err, _ := r.loads.Do(examID, func() (interface{}, error) {
		if exam, ok := r.lookup(examID); ok {
			return exam, nil
		}
		return r.load(ctx, examID)
	})
	if err != nil {
		return domain.Exam{}, err
	}
	return v.(domain.Exam), nil
}

// ListQuestions returns the exam's questions in position order. The slice is
// the caller's own copy.
func (r *ExamRepository) ListQuestions(ctx context.Context, examID string) ([]domain.Question, error) {
	exam, err := r.GetExam(ctx, examID)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Question, len(exam.Questions))
	copy(out, exam.Questions)
	return out, nil
}

// Invalidate drops a cached exam so the next read reloads it.
func (r *ExamRepository) Invalidate(examID string) {
	r.mu.Lock()
	delete(r.entries, examID)
	r.mu.Unlock()
}

func (r *ExamRepository) lookup(examID string) (domain.Exam, bool) {
	r.mu.RLock()
	entry, ok := r.entries[examID]
	r.mu.RUnlock()
	if !ok || !r.clock().Before(entry.staleAt) {
		return domain.Exam{}, false
	}
	return entry.exam, true
}

func (r *ExamRepository) load(ctx context.Context, examID string) (domain.Exam, error) {
	exam, err := r.loader.LoadExam(ctx, examID)
	if err != nil {
		r.Invalidate(examID)
		return domain.Exam{}, err
	}
	exam = PrepareExam(exam)

	r.mu.Lock()
	r.entries[examID] = catalogEntry{exam: exam, staleAt: r.clock().Add(r.lifetime())}
	r.mu.Unlock()
	return exam, nil
}

// lifetime is the TTL plus up to 10% jitter so cached exams do not expire together.
func (r *ExamRepository) lifetime() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	r.jitterMu.Lock()
	defer r.jitterMu.Unlock()
	return r.ttl + time.Duration(r.jitter.Int63n(int64(r.ttl)/10+1))
}
