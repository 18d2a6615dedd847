package redis

import (
	"context"
	"encoding/json"
	"math/rand"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"live-quiz-service/internal/domain"
)

// QuizLoader fetches quiz content from a backing store (e.g., Postgres).
type QuizLoader interface {
	LoadQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
}

// QuizRepository caches full quiz documents in Redis and falls back to a
// loader on cache miss: SET quiz:{quizID}:doc {json}. The cached document
// includes answer keys, so the key space must never be exposed to clients;
// only the session core reads it.
type QuizRepository struct {
	client *redis.Client
	loader QuizLoader
	ttl    time.Duration
	sf     singleflight.Group
	rnd    *rand.Rand
}

func NewQuizRepository(client *redis.Client, loader QuizLoader, ttl time.Duration) *QuizRepository {
	return &QuizRepository{
		client: client,
		loader: loader,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (r *QuizRepository) GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error) {
	if quiz, ok := r.cached(ctx, quizID); ok {
		return quiz, nil
	}

	result, err, _ := r.sf.Do(quizID, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		if quiz, ok := r.cached(ctx, quizID); ok {
			return quiz, nil
		}

		quiz, err := r.loader.LoadQuiz(ctx, quizID)
		if err != nil {
			return domain.Quiz{}, err
		}

		if raw, err := marshalQuiz(quiz); err == nil {
			_ = r.client.Set(ctx, r.docKey(quizID), raw, r.ttlWithJitter()).Err()
		}
		return quiz, nil
	})
	if err != nil {
		return domain.Quiz{}, err
	}
	return result.(domain.Quiz), nil
}

func (r *QuizRepository) cached(ctx context.Context, quizID string) (domain.Quiz, bool) {
	raw, err := r.client.Get(ctx, r.docKey(quizID)).Bytes()
	if err != nil {
		return domain.Quiz{}, false
	}
	quiz, err := unmarshalQuiz(raw)
	if err != nil {
		return domain.Quiz{}, false
	}
	return quiz, true
}

func (r *QuizRepository) docKey(quizID string) string {
	return "quiz:" + quizID + ":doc"
}

// cachedQuestion mirrors domain.Question but keeps the answer key, which the
// domain type deliberately refuses to serialize.
type cachedQuestion struct {
	domain.Question
	Answer string `json:"answer"`
}

type cachedQuiz struct {
	ID        string            `json:"id"`
	Title     string            `json:"title"`
	Status    domain.QuizStatus `json:"status"`
	Questions []cachedQuestion  `json:"questions"`
}

func marshalQuiz(quiz domain.Quiz) ([]byte, error) {
	doc := cachedQuiz{ID: quiz.ID, Title: quiz.Title, Status: quiz.Status}
	for _, q := range quiz.Questions {
		doc.Questions = append(doc.Questions, cachedQuestion{Question: q, Answer: q.Answer})
	}
	return json.Marshal(doc)
}

func unmarshalQuiz(raw []byte) (domain.Quiz, error) {
	var doc cachedQuiz
	if err := json.Unmarshal(raw, &doc); err != nil {
		return domain.Quiz{}, err
	}
	quiz := domain.Quiz{ID: doc.ID, Title: doc.Title, Status: doc.Status}
	for _, q := range doc.Questions {
		question := q.Question
		question.Answer = q.Answer
		quiz.Questions = append(quiz.Questions, question)
	}
	return quiz, nil
}

func (r *QuizRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	jitterMax := int64(r.ttl) / 10
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}
