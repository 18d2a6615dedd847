package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"live-quiz-service/internal/domain"
)

// QuizLoader loads quiz JSONB from Postgres. The stored document carries
// answer keys, so it uses the same wire shape as the Redis cache rather than
// the client-facing domain serialization.
type QuizLoader struct {
	pool *pgxpool.Pool
}

func NewQuizLoader(pool *pgxpool.Pool) *QuizLoader {
	return &QuizLoader{pool: pool}
}

func (l *QuizLoader) LoadQuiz(ctx context.Context, quizID string) (domain.Quiz, error) {
	var raw []byte
	err := l.pool.QueryRow(ctx, `SELECT data FROM quizzes WHERE id=$1`, quizID).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Quiz{}, domain.ErrQuizNotFound
		}
		return domain.Quiz{}, fmt.Errorf("load quiz: %w", err)
	}

	var doc struct {
		ID        string            `json:"id"`
		Title     string            `json:"title"`
		Status    domain.QuizStatus `json:"status"`
		Questions []struct {
			domain.Question
			Answer string `json:"answer"`
		} `json:"questions"`
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return domain.Quiz{}, fmt.Errorf("unmarshal quiz: %w", err)
	}

	quiz := domain.Quiz{ID: doc.ID, Title: doc.Title, Status: doc.Status}
	if quiz.ID == "" {
		quiz.ID = quizID
	}
	for _, q := range doc.Questions {
		question := q.Question
		question.Answer = q.Answer
		quiz.Questions = append(quiz.Questions, question)
	}
	return quiz, nil
}
