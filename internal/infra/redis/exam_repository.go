package redis

import (
	"context"
	"encoding/json"
	"math/rand"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"github.com/maluguiro/examen-proctor/internal/domain"
	"github.com/maluguiro/examen-proctor/internal/infra/memory"
)

// ExamRepository caches whole exams as JSON in Redis and falls back to a loader on cache miss.
// Cached exams hold their questions in position order.
// Exams are stored as: SET exam:{examID} {json} EX ttl
type ExamRepository struct {
	client *redis.Client
	loader memory.ExamLoader
	ttl    time.Duration
	sf     singleflight.Group

	rndMu sync.Mutex
	rnd   *rand.Rand
}

func NewExamRepository(client *redis.Client, loader memory.ExamLoader, ttl time.Duration) *ExamRepository {
	return &ExamRepository{
		client: client,
		loader: loader,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (r *ExamRepository) GetExam(ctx context.Context, examID string) (domain.Exam, error) {
	if exam, ok := r.cached(ctx, examID); ok {
		return exam, nil
	}

	result, err, _ := r.sf.Do(examID, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		if exam, ok := r.cached(ctx, examID); ok {
			return exam, nil
		}

		exam, err := r.loader.LoadExam(ctx, examID)
		if err != nil {
			return domain.Exam{}, err
		}
		exam = memory.PrepareExam(exam)

		payload, err := json.Marshal(exam)
		if err == nil {
			// best effort: a cache write failure only costs a reload
			_ = r.client.Set(ctx, r.key(examID), payload, r.ttlWithJitter()).Err()
		}
		return exam, nil
	})
	if err != nil {
		return domain.Exam{}, err
	}
	return result.(domain.Exam), nil
}

func (r *ExamRepository) ListQuestions(ctx context.Context, examID string) ([]domain.Question, error) {
	exam, err := r.GetExam(ctx, examID)
	if err != nil {
		return nil, err
	}
	return exam.Questions, nil
}

// Invalidate drops the cached copy after an exam is edited.
func (r *ExamRepository) Invalidate(ctx context.Context, examID string) error {
	return r.client.Del(ctx, r.key(examID)).Err()
}

func (r *ExamRepository) cached(ctx context.Context, examID string) (domain.Exam, bool) {
	raw, err := r.client.Get(ctx, r.key(examID)).Bytes()
	if err != nil {
		return domain.Exam{}, false
	}
	var exam domain.Exam
	if err := json.Unmarshal(raw, &exam); err != nil {
		return domain.Exam{}, false
	}
	return exam, true
}

func (r *ExamRepository) key(examID string) string {
	return "exam:" + examID
}

func (r *ExamRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	jitterMax := int64(r.ttl) / 10
	r.rndMu.Lock()
	defer r.rndMu.Unlock()
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}
