package app

import "live-quiz-service/internal/domain"

// Outbound message types. The envelope shape matches what the websocket
// transport writes: {"type": ..., "payload": ...}.
const (
	MsgGameState       = "game_state"
	MsgBufferCountdown = "buffer_countdown"
	MsgQuestion        = "question"
	MsgTimerTick       = "timer_tick"
	MsgReveal          = "reveal"
	MsgRoundSummary    = "round_summary"
	MsgTeamJoined      = "team_joined"
	MsgTeamDisconnect  = "team_disconnected"
	MsgTeamSubmitted   = "team_submitted"
	MsgAllSubmitted    = "all_submitted"
	MsgTieDetected     = "tie_detected"
	MsgError           = "error"
)

// Envelope is one outbound message bound for an audience.
type Envelope struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// Event pairs an envelope with the audience it must reach. Events are
// computed under the session lock and dispatched after it is released.
type Event struct {
	Audience Audience
	Envelope Envelope
}

// GameStatePayload carries the coarse session state broadcast to everyone.
type GameStatePayload struct {
	QuizID         string `json:"quizId"`
	Phase          Phase  `json:"phase"`
	QuestionIndex  int    `json:"questionIndex"`
	TotalQuestions int    `json:"totalQuestions"`
	Round          string `json:"round"`
	Status         string `json:"status,omitempty"`
}

// BufferCountdownPayload announces the pre-question countdown.
type BufferCountdownPayload struct {
	Seconds int    `json:"seconds"`
	Round   string `json:"round"`
	Prompt  string `json:"prompt"`
}

// QuestionPayload is the client view of an opening question. The correct
// answer key is deliberately absent; it travels only in the reveal.
type QuestionPayload struct {
	ID           string              `json:"id"`
	Text         string              `json:"text"`
	Type         domain.QuestionType `json:"type"`
	Options      []domain.Option     `json:"options,omitempty"`
	TimeLimitSec int                 `json:"timeLimitSec"`
	Points       int                 `json:"points"`
	OrderIndex   int                 `json:"orderIndex"`
	Round        string              `json:"round"`
}

// TimerTickPayload reports countdown progress during the open window.
type TimerTickPayload struct {
	RemainingSec int  `json:"remainingSec"`
	TotalSec     int  `json:"totalSec"`
	Active       bool `json:"active"`
}

// RevealPayload is the post-grading broadcast: the only message that ever
// carries the correct answer.
type RevealPayload struct {
	QuestionID    string                    `json:"questionId"`
	Type          domain.QuestionType       `json:"type"`
	CorrectAnswer string                    `json:"correctAnswer"`
	Distribution  domain.AnswerDistribution `json:"distribution"`
	Results       []domain.TeamResult       `json:"results"`
}

// RoundSummaryPayload closes out a round with current standings.
type RoundSummaryPayload struct {
	Round     string              `json:"round"`
	Final     bool                `json:"final"`
	Standings []domain.TeamResult `json:"standings"`
}

// TeamNotice is the host-only notification about a single team.
type TeamNotice struct {
	TeamID string `json:"teamId"`
	Name   string `json:"name"`
}

// ErrorPayload is delivered to the offending connection only.
type ErrorPayload struct {
	Code    domain.Code `json:"code"`
	Message string      `json:"message"`
}
