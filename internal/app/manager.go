package app

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"

	"live-quiz-service/internal/domain"
)

// QuizRepository loads quiz content (from cache/backing store).
type QuizRepository interface {
	GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
}

// Manager holds the authoritative quiz-id -> running-session mapping for the
// process lifetime. Sessions are independent; the manager's lock only guards
// the map itself.
type Manager struct {
	quizzes  QuizRepository
	settings Settings
	deps     Deps
	log      zerolog.Logger

	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewManager(quizzes QuizRepository, settings Settings, deps Deps) *Manager {
	deps = deps.withDefaults()
	return &Manager{
		quizzes:  quizzes,
		settings: settings,
		deps:     deps,
		log:      deps.Log,
		sessions: make(map[string]*Session),
	}
}

// Activate creates the live session for a quiz. It fails when a session is
// already running or the quiz is not in a ready state.
func (m *Manager) Activate(ctx context.Context, quizID string) (*Session, error) {
	quiz, err := m.quizzes.GetQuiz(ctx, quizID)
	if err != nil {
		if errors.Is(err, domain.ErrQuizNotFound) {
			return nil, domain.E(domain.CodeQuizNotActive, "quiz %s could not be loaded", quizID)
		}
		// Store failures are not a not-found signal.
		m.log.Error().Err(err).Str("quiz_id", quizID).Msg("quiz load failed")
		return nil, domain.E(domain.CodeInternal, "loading quiz %s failed", quizID)
	}
	if quiz.Status != domain.QuizReady {
		return nil, domain.E(domain.CodeInvalidState, "quiz %s is not ready (status %s)", quizID, quiz.Status)
	}
	if len(quiz.Questions) == 0 {
		return nil, domain.E(domain.CodeInvalidState, "quiz %s has no questions", quizID)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, running := m.sessions[quizID]; running {
		return nil, domain.ErrSessionExists
	}
	session := NewSession(quiz, m.settings, m.deps)
	m.sessions[quizID] = session
	m.log.Info().Str("quiz_id", quizID).Int("questions", len(quiz.Questions)).Msg("session activated")
	return session, nil
}

// Get looks up the running session for a quiz.
func (m *Manager) Get(quizID string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	session, ok := m.sessions[quizID]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return session, nil
}

// Terminate tears the session down: timers cancelled, connections closed,
// mapping removed. In-flight commands arriving afterwards fail with
// QUIZ_NOT_ACTIVE from Get.
func (m *Manager) Terminate(quizID string) {
	m.mu.Lock()
	session, ok := m.sessions[quizID]
	delete(m.sessions, quizID)
	m.mu.Unlock()

	if !ok {
		return
	}
	session.Close()
	m.log.Info().Str("quiz_id", quizID).Msg("session terminated")
}

// Shutdown terminates every running session. Used on process exit.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	for id, s := range sessions {
		s.Close()
		m.log.Info().Str("quiz_id", id).Msg("session terminated")
	}
}
