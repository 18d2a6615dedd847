package memory

import (
	"context"
	"sync"

	"live-quiz-service/internal/domain"
)

// ScoreStore keeps graded standings in memory. It satisfies the session's
// durable-score contract for single-process deployments and tests.
type ScoreStore struct {
	mu        sync.RWMutex
	standings map[string][]domain.Standing
}

func NewScoreStore() *ScoreStore {
	return &ScoreStore{standings: make(map[string][]domain.Standing)}
}

func (s *ScoreStore) SaveStandings(_ context.Context, quizID string, standings []domain.Standing) error {
	snapshot := make([]domain.Standing, len(standings))
	copy(snapshot, standings)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.standings[quizID] = snapshot
	return nil
}

// Standings returns the last saved scoreboard for a quiz.
func (s *ScoreStore) Standings(quizID string) ([]domain.Standing, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	standings, ok := s.standings[quizID]
	return standings, ok
}
