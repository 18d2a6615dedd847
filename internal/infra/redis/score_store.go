package redis

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"live-quiz-service/internal/domain"
)

// ScoreStore persists graded standings to Redis: a sorted set for fast
// leaderboard reads plus a hash with the full row per team.
//
//	ZADD  quiz:{quizID}:scores    {score} {teamID}
//	HSET  quiz:{quizID}:standings {teamID} {json row}
type ScoreStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewScoreStore(client *redis.Client, ttl time.Duration) *ScoreStore {
	return &ScoreStore{client: client, ttl: ttl}
}

func (s *ScoreStore) SaveStandings(ctx context.Context, quizID string, standings []domain.Standing) error {
	scoresKey := s.scoresKey(quizID)
	rowsKey := s.rowsKey(quizID)

	pipe := s.client.Pipeline()
	for _, st := range standings {
		pipe.ZAdd(ctx, scoresKey, redis.Z{Score: float64(st.Score), Member: st.TeamID})
		if row, err := json.Marshal(st); err == nil {
			pipe.HSet(ctx, rowsKey, st.TeamID, row)
		}
	}
	if s.ttl > 0 {
		pipe.Expire(ctx, scoresKey, s.ttl)
		pipe.Expire(ctx, rowsKey, s.ttl)
	}
	_, err := pipe.Exec(ctx)
	return err
}

// Standings reads back the stored scoreboard ordered by descending score.
func (s *ScoreStore) Standings(ctx context.Context, quizID string) ([]domain.Standing, error) {
	ids, err := s.client.ZRevRange(ctx, s.scoresKey(quizID), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := s.client.HGetAll(ctx, s.rowsKey(quizID)).Result()
	if err != nil {
		return nil, err
	}
	standings := make([]domain.Standing, 0, len(ids))
	for _, id := range ids {
		var st domain.Standing
		if raw, ok := rows[id]; ok && json.Unmarshal([]byte(raw), &st) == nil {
			standings = append(standings, st)
		}
	}
	return standings, nil
}

func (s *ScoreStore) scoresKey(quizID string) string {
	return "quiz:" + quizID + ":scores"
}

func (s *ScoreStore) rowsKey(quizID string) string {
	return "quiz:" + quizID + ":standings"
}
