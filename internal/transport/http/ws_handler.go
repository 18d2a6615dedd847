package http

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"live-quiz-service/internal/app"
	"live-quiz-service/internal/domain"
)

const sendBuffer = 32

// WSHandler upgrades HTTP requests to websockets and wires them into the
// session core. Hosts connect with role=host (activating the session on
// first connect); teams join with a display name or reconnect with their
// access code.
type WSHandler struct {
	manager  *app.Manager
	log      zerolog.Logger
	upgrader websocket.Upgrader
}

func NewWSHandler(manager *app.Manager, log zerolog.Logger) *WSHandler {
	return &WSHandler{
		manager: manager,
		log:     log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type submitPayload struct {
	QuestionID string `json:"questionId"`
	Answer     string `json:"answer"`
}

type joinedPayload struct {
	TeamID     string `json:"teamId"`
	Name       string `json:"name"`
	AccessCode string `json:"accessCode"`
	Score      int    `json:"score"`
}

// wsConn adapts one websocket to app.Conn. Writes are serialized through a
// buffered channel; Close lets the writer drain what is already queued
// before the socket goes away.
type wsConn struct {
	socket *websocket.Conn
	send   chan app.Envelope
	once   sync.Once
	done   chan struct{}
}

func newWSConn(socket *websocket.Conn) *wsConn {
	c := &wsConn{
		socket: socket,
		send:   make(chan app.Envelope, sendBuffer),
		done:   make(chan struct{}),
	}
	go c.writePump()
	return c
}

func (c *wsConn) Send(env app.Envelope) error {
	select {
	case <-c.done:
		return domain.E(domain.CodeInternal, "connection closed")
	case c.send <- env:
		return nil
	default:
		return domain.E(domain.CodeInternal, "send buffer full")
	}
}

func (c *wsConn) Close() error {
	c.once.Do(func() { close(c.done) })
	return nil
}

func (c *wsConn) writePump() {
	defer c.socket.Close()
	for {
		select {
		case env := <-c.send:
			if err := c.socket.WriteJSON(env); err != nil {
				return
			}
		case <-c.done:
			// drain anything already queued, then close the socket
			for {
				select {
				case env := <-c.send:
					if err := c.socket.WriteJSON(env); err != nil {
						return
					}
				default:
					return
				}
			}
		}
	}
}

func (c *wsConn) sendError(err error) {
	msg := err.Error()
	if e, ok := err.(*domain.Error); ok {
		msg = e.Message
	}
	_ = c.Send(app.Envelope{Type: app.MsgError, Payload: app.ErrorPayload{
		Code:    domain.CodeOf(err),
		Message: msg,
	}})
}

// ServeWS is the single websocket entry point for hosts and teams.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	quizID := r.URL.Query().Get("quizId")
	role := r.URL.Query().Get("role")
	if quizID == "" || (role != "host" && role != "team") {
		http.Error(w, "missing or invalid quizId/role", http.StatusBadRequest)
		return
	}

	socket, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("ws upgrade failed")
		return
	}
	conn := newWSConn(socket)

	if role == "host" {
		h.serveHost(r, conn, socket, quizID)
	} else {
		h.serveTeam(r, conn, socket, quizID)
	}
}

func (h *WSHandler) serveHost(r *http.Request, conn *wsConn, socket *websocket.Conn, quizID string) {
	session, err := h.manager.Get(quizID)
	if err != nil {
		// First host connect activates the session.
		session, err = h.manager.Activate(r.Context(), quizID)
		if err != nil {
			conn.sendError(err)
			_ = conn.Close()
			return
		}
	}

	pending := session.Registry().BindHost(conn)
	for _, env := range pending {
		_ = conn.Send(env)
	}
	for _, env := range session.Snapshot() {
		_ = conn.Send(env)
	}
	h.log.Info().Str("quiz_id", quizID).Msg("host connected")

	defer func() {
		session.Registry().Unbind(conn)
		_ = conn.Close()
		h.log.Info().Str("quiz_id", quizID).Msg("host disconnected")
	}()

	for {
		var inbound inboundMessage
		if err := socket.ReadJSON(&inbound); err != nil {
			return
		}
		if err := session.HandleCommand(true, app.Command(inbound.Type)); err != nil {
			conn.sendError(err)
		}
	}
}

func (h *WSHandler) serveTeam(r *http.Request, conn *wsConn, socket *websocket.Conn, quizID string) {
	session, err := h.manager.Get(quizID)
	if err != nil {
		conn.sendError(err)
		_ = conn.Close()
		return
	}

	var team *domain.Team
	if code := r.URL.Query().Get("accessCode"); code != "" {
		team, err = session.Reconnect(code)
	} else {
		team, err = session.Join(r.URL.Query().Get("name"))
	}
	if err != nil {
		conn.sendError(err)
		_ = conn.Close()
		return
	}

	session.Registry().BindTeam(team.ID, conn)
	_ = conn.Send(app.Envelope{Type: "joined", Payload: joinedPayload{
		TeamID:     team.ID,
		Name:       team.Name,
		AccessCode: team.AccessCode,
		Score:      team.Score,
	}})
	for _, env := range session.Snapshot() {
		_ = conn.Send(env)
	}
	h.log.Info().Str("quiz_id", quizID).Str("team", team.Name).Msg("team connected")

	defer func() {
		if _, _, found := session.Registry().Unbind(conn); found {
			session.MarkDisconnected(team.ID)
		}
		_ = conn.Close()
		h.log.Info().Str("quiz_id", quizID).Str("team", team.Name).Msg("team disconnected")
	}()

	for {
		var inbound inboundMessage
		if err := socket.ReadJSON(&inbound); err != nil {
			return
		}
		switch inbound.Type {
		case "SUBMIT":
			var payload submitPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				conn.sendError(domain.E(domain.CodeInvalidPayload, "invalid submit payload"))
				continue
			}
			if err := session.Submit(team.ID, payload.QuestionID, payload.Answer); err != nil {
				conn.sendError(err)
			}
		default:
			// Teams issuing host commands get the authorization error, not
			// a generic unknown-type reply.
			if isHostCommand(inbound.Type) {
				conn.sendError(session.HandleCommand(false, app.Command(inbound.Type)))
				continue
			}
			conn.sendError(domain.E(domain.CodeInvalidPayload, "unsupported message type %q", inbound.Type))
		}
	}
}

func isHostCommand(t string) bool {
	switch app.Command(t) {
	case app.CmdStart, app.CmdSkipBuffer, app.CmdForceGrade, app.CmdNext,
		app.CmdNextRound, app.CmdPause, app.CmdResume, app.CmdEnd:
		return true
	}
	return false
}
