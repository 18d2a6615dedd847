package http

import (
	"encoding/json"
	stdhttp "net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"live-quiz-service/internal/app"
	"live-quiz-service/internal/domain"
	"live-quiz-service/internal/infra/memory"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	quiz := domain.Quiz{
		ID:     "quiz-1",
		Title:  "Trivia",
		Status: domain.QuizReady,
		Questions: []domain.Question{
			{
				ID:   "q1",
				Text: "What is 2 + 2?",
				Type: domain.QuestionMultipleChoice,
				Options: []domain.Option{
					{Key: "a", Text: "3"},
					{Key: "b", Text: "4"},
				},
				Answer:       "b",
				Points:       10,
				TimeLimitSec: 20,
				Round:        "Warmup",
			},
			{
				ID:           "q2",
				Text:         "Name the capital of France.",
				Type:         domain.QuestionFreeText,
				Answer:       "Paris",
				Points:       10,
				TimeLimitSec: 20,
				Round:        "Warmup",
			},
		},
	}

	loader := memory.NewStaticQuizLoader(map[string]domain.Quiz{"quiz-1": quiz})
	repo := memory.NewQuizRepository(loader, time.Minute)
	manager := app.NewManager(repo, app.Settings{}, app.Deps{
		Clock: clockwork.NewFakeClock(),
		Log:   zerolog.Nop(),
	})
	t.Cleanup(manager.Shutdown)

	handler := NewWSHandler(manager, zerolog.Nop())
	server := httptest.NewServer(stdhttp.HandlerFunc(handler.ServeWS))
	t.Cleanup(server.Close)
	return server
}

func dial(t *testing.T, server *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/?" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

type wireMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// readUntil consumes messages until one of the wanted type arrives.
func readUntil(t *testing.T, conn *websocket.Conn, msgType string) wireMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		var msg wireMessage
		require.NoError(t, conn.ReadJSON(&msg), "waiting for %q", msgType)
		if msg.Type == msgType {
			return msg
		}
	}
}

func send(t *testing.T, conn *websocket.Conn, msgType string, payload any) {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(wireMessage{Type: msgType, Payload: raw}))
}

func TestWSFullGame(t *testing.T) {
	server := newTestServer(t)

	host := dial(t, server, "quizId=quiz-1&role=host")
	readUntil(t, host, app.MsgGameState)

	team := dial(t, server, "quizId=quiz-1&role=team&name=Alpha")
	joinedMsg := readUntil(t, team, "joined")
	var joined joinedPayload
	require.NoError(t, json.Unmarshal(joinedMsg.Payload, &joined))
	require.NotEmpty(t, joined.TeamID)
	require.NotEmpty(t, joined.AccessCode)

	readUntil(t, host, app.MsgTeamJoined)
	// Drain the team's lobby snapshot before driving the game forward.
	readUntil(t, team, app.MsgGameState)

	send(t, host, string(app.CmdStart), nil)
	var state app.GameStatePayload
	msg := readUntil(t, team, app.MsgGameState)
	require.NoError(t, json.Unmarshal(msg.Payload, &state))
	assert.Equal(t, app.PhaseBuffer, state.Phase)

	send(t, host, string(app.CmdSkipBuffer), nil)
	questionMsg := readUntil(t, team, app.MsgQuestion)
	var question app.QuestionPayload
	require.NoError(t, json.Unmarshal(questionMsg.Payload, &question))
	assert.Equal(t, "q1", question.ID)
	// The open question never leaks the answer key.
	assert.NotContains(t, string(questionMsg.Payload), `"answer"`)

	send(t, team, "SUBMIT", submitPayload{QuestionID: "q1", Answer: "b"})
	readUntil(t, host, app.MsgTeamSubmitted)
	readUntil(t, host, app.MsgAllSubmitted)

	send(t, host, string(app.CmdForceGrade), nil)
	revealMsg := readUntil(t, team, app.MsgReveal)
	var reveal app.RevealPayload
	require.NoError(t, json.Unmarshal(revealMsg.Payload, &reveal))
	assert.Equal(t, "b", reveal.CorrectAnswer)
	require.Len(t, reveal.Results, 1)
	assert.Equal(t, 10, reveal.Results[0].TotalScore)
	assert.True(t, reveal.Results[0].Correct)

	send(t, host, string(app.CmdEnd), nil)
	summaryMsg := readUntil(t, team, app.MsgRoundSummary)
	var summary app.RoundSummaryPayload
	require.NoError(t, json.Unmarshal(summaryMsg.Payload, &summary))
	assert.True(t, summary.Final)
	require.Len(t, summary.Standings, 1)
	assert.Equal(t, "Alpha", summary.Standings[0].Name)
}

func TestWSTeamBeforeActivation(t *testing.T) {
	server := newTestServer(t)

	team := dial(t, server, "quizId=quiz-1&role=team&name=Early")
	msg := readUntil(t, team, app.MsgError)
	var payload app.ErrorPayload
	require.NoError(t, json.Unmarshal(msg.Payload, &payload))
	assert.Equal(t, domain.CodeQuizNotActive, payload.Code)
}

func TestWSTeamCannotDriveTheGame(t *testing.T) {
	server := newTestServer(t)

	host := dial(t, server, "quizId=quiz-1&role=host")
	readUntil(t, host, app.MsgGameState)
	team := dial(t, server, "quizId=quiz-1&role=team&name=Alpha")
	readUntil(t, team, "joined")

	send(t, team, string(app.CmdStart), nil)
	msg := readUntil(t, team, app.MsgError)
	var payload app.ErrorPayload
	require.NoError(t, json.Unmarshal(msg.Payload, &payload))
	assert.Equal(t, domain.CodeNotHost, payload.Code)
}

func TestWSReconnectKeepsIdentity(t *testing.T) {
	server := newTestServer(t)

	host := dial(t, server, "quizId=quiz-1&role=host")
	readUntil(t, host, app.MsgGameState)
	team := dial(t, server, "quizId=quiz-1&role=team&name=Alpha")
	joinedMsg := readUntil(t, team, "joined")
	var joined joinedPayload
	require.NoError(t, json.Unmarshal(joinedMsg.Payload, &joined))
	require.NoError(t, team.Close())

	back := dial(t, server, "quizId=quiz-1&role=team&accessCode="+joined.AccessCode)
	backMsg := readUntil(t, back, "joined")
	var rejoined joinedPayload
	require.NoError(t, json.Unmarshal(backMsg.Payload, &rejoined))
	assert.Equal(t, joined.TeamID, rejoined.TeamID)
	assert.Equal(t, "Alpha", rejoined.Name)
}

func TestWSReconnectMidQuestionSubmits(t *testing.T) {
	server := newTestServer(t)

	host := dial(t, server, "quizId=quiz-1&role=host")
	readUntil(t, host, app.MsgGameState)

	team := dial(t, server, "quizId=quiz-1&role=team&name=Alpha")
	joinedMsg := readUntil(t, team, "joined")
	var joined joinedPayload
	require.NoError(t, json.Unmarshal(joinedMsg.Payload, &joined))

	send(t, host, string(app.CmdStart), nil)
	send(t, host, string(app.CmdSkipBuffer), nil)
	readUntil(t, team, app.MsgQuestion)

	// Drop the team mid-question and come back with the access code.
	require.NoError(t, team.Close())
	readUntil(t, host, app.MsgTeamDisconnect)

	back := dial(t, server, "quizId=quiz-1&role=team&accessCode="+joined.AccessCode)
	backMsg := readUntil(t, back, "joined")
	var rejoined joinedPayload
	require.NoError(t, json.Unmarshal(backMsg.Payload, &rejoined))
	assert.Equal(t, joined.TeamID, rejoined.TeamID)

	// The rebound connection receives the open question again and its
	// submission still scores.
	questionMsg := readUntil(t, back, app.MsgQuestion)
	var question app.QuestionPayload
	require.NoError(t, json.Unmarshal(questionMsg.Payload, &question))
	assert.Equal(t, "q1", question.ID)

	send(t, back, "SUBMIT", submitPayload{QuestionID: "q1", Answer: "b"})
	readUntil(t, host, app.MsgTeamSubmitted)

	send(t, host, string(app.CmdForceGrade), nil)
	revealMsg := readUntil(t, back, app.MsgReveal)
	var reveal app.RevealPayload
	require.NoError(t, json.Unmarshal(revealMsg.Payload, &reveal))
	require.Len(t, reveal.Results, 1)
	assert.Equal(t, joined.TeamID, reveal.Results[0].TeamID)
	assert.True(t, reveal.Results[0].Correct)
	assert.Equal(t, 10, reveal.Results[0].TotalScore)
}

func TestWSReconnectBadCode(t *testing.T) {
	server := newTestServer(t)

	host := dial(t, server, "quizId=quiz-1&role=host")
	readUntil(t, host, app.MsgGameState)
	team := dial(t, server, "quizId=quiz-1&role=team&accessCode=BOGUS123")
	msg := readUntil(t, team, app.MsgError)
	var payload app.ErrorPayload
	require.NoError(t, json.Unmarshal(msg.Payload, &payload))
	assert.Equal(t, domain.CodeInvalidAccessCode, payload.Code)
}

func TestWSRejectsBadQuery(t *testing.T) {
	server := newTestServer(t)

	_, resp, err := websocket.DefaultDialer.Dial(
		"ws"+strings.TrimPrefix(server.URL, "http")+"/?quizId=quiz-1&role=spectator", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, stdhttp.StatusBadRequest, resp.StatusCode)
}
