package domain

import "time"

// QuestionType distinguishes how a submission is graded.
type QuestionType string

const (
	QuestionMultipleChoice QuestionType = "multiple_choice"
	QuestionFreeText       QuestionType = "free_text"
)

// QuizStatus gates whether a quiz can be activated into a live session.
type QuizStatus string

const (
	QuizReady    QuizStatus = "ready"
	QuizDraft    QuizStatus = "draft"
	QuizArchived QuizStatus = "archived"
)

// Option is one selectable answer of a multiple-choice question. The Key is
// what teams submit; correctness is never derivable from the option itself.
type Option struct {
	Key  string `json:"key"`
	Text string `json:"text"`
}

// Question is immutable once a session starts. Answer holds the correct
// option key (multiple choice) or the expected text (free text) and is never
// serialized to clients.
type Question struct {
	ID           string       `json:"id"`
	Text         string       `json:"text"`
	Type         QuestionType `json:"type"`
	Options      []Option     `json:"options,omitempty"`
	Answer       string       `json:"-"`
	Points       int          `json:"points"` // defaults to 1 if zero
	TimeLimitSec int          `json:"timeLimitSec"`
	Round        string       `json:"round"`
	OrderIndex   int          `json:"orderIndex"`
}

// Quiz is an ordered collection of questions grouped into rounds.
type Quiz struct {
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	Status    QuizStatus `json:"status"`
	Questions []Question `json:"questions"`
}

// Team is a participant identity. The access code is the durable credential
// a team uses to reconnect; the network connection is a replaceable
// association kept by the connection registry.
type Team struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	AccessCode string    `json:"-"`
	Score      int       `json:"score"`
	Connected  bool      `json:"connected"`
	LastSeenAt time.Time `json:"lastSeenAt"`
}

// Submission records a team's answer for one question. At most one exists
// per (team, question) pair; it is immutable after grading.
type Submission struct {
	TeamID      string    `json:"teamId"`
	QuestionID  string    `json:"questionId"`
	Answer      string    `json:"answer"`
	Correct     bool      `json:"correct"`
	Points      int       `json:"points"`
	SubmittedAt time.Time `json:"submittedAt"`
}

// TeamResult is the per-team reveal view, derived fresh from Team and
// Submission state at reveal time and never stored.
type TeamResult struct {
	TeamID      string `json:"teamId"`
	Name        string `json:"name"`
	Answer      string `json:"answer,omitempty"`
	Answered    bool   `json:"answered"`
	Correct     bool   `json:"correct"`
	RoundPoints int    `json:"roundPoints"`
	TotalScore  int    `json:"totalScore"`
	Rank        int    `json:"rank"`
	Tied        bool   `json:"tied"`
}

// AnswerDistribution aggregates the open question's submissions. Teams that
// never submitted are excluded from the per-answer counts and reported via
// Unanswered instead.
type AnswerDistribution struct {
	Counts     map[string]int `json:"counts"`
	Correct    int            `json:"correct"`
	Incorrect  int            `json:"incorrect"`
	Unanswered int            `json:"unanswered"`
}

// Standing is a durable leaderboard row written to the score store.
type Standing struct {
	TeamID string `json:"teamId"`
	Name   string `json:"name"`
	Score  int    `json:"score"`
	Rank   int    `json:"rank"`
	Tied   bool   `json:"tied"`
}
