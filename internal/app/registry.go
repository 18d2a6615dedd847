package app

import (
	"sync"

	"github.com/rs/zerolog"
)

// Conn is a live outbound connection handle. The websocket transport
// implements it; tests substitute channel-backed fakes.
type Conn interface {
	Send(env Envelope) error
	Close() error
}

// Audience selects who receives an outbound event.
type Audience struct {
	scope  audienceScope
	teamID string
}

type audienceScope int

const (
	scopeAll audienceScope = iota
	scopeHost
	scopeTeam
)

func AudienceAll() Audience            { return Audience{scope: scopeAll} }
func AudienceHost() Audience           { return Audience{scope: scopeHost} }
func AudienceTeam(teamID string) Audience {
	return Audience{scope: scopeTeam, teamID: teamID}
}

// Registry tracks which stable identity (host or team id) is bound to which
// live connection for one session. Connection handles are a replaceable
// association: a reconnect rebinds a fresh handle to the existing identity
// without touching registration or score. While no host is bound, host-only
// envelopes are buffered (bounded) and flushed on the next host bind.
type Registry struct {
	log          zerolog.Logger
	pendingLimit int

	mu          sync.RWMutex
	host        Conn
	teams       map[string]Conn
	pendingHost []Envelope
}

func NewRegistry(log zerolog.Logger, pendingLimit int) *Registry {
	if pendingLimit <= 0 {
		pendingLimit = 64
	}
	return &Registry{
		log:          log,
		pendingLimit: pendingLimit,
		teams:        make(map[string]Conn),
	}
}

// BindHost attaches the host connection and returns any host-only envelopes
// buffered while the host was away. The caller delivers them.
func (r *Registry) BindHost(c Conn) []Envelope {
	r.mu.Lock()
	old := r.host
	r.host = c
	pending := r.pendingHost
	r.pendingHost = nil
	r.mu.Unlock()

	if old != nil && old != c {
		_ = old.Close()
	}
	return pending
}

// BindTeam attaches a connection for a team identity, replacing any stale
// handle from a previous connection.
func (r *Registry) BindTeam(teamID string, c Conn) {
	r.mu.Lock()
	old := r.teams[teamID]
	r.teams[teamID] = c
	r.mu.Unlock()

	if old != nil && old != c {
		_ = old.Close()
	}
}

// Unbind removes the given connection and reports which identity it served.
// It is a no-op if the identity has already been rebound to a newer handle,
// so a slow close from an old connection cannot evict its replacement.
func (r *Registry) Unbind(c Conn) (teamID string, isHost bool, found bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.host == c {
		r.host = nil
		return "", true, true
	}
	for id, conn := range r.teams {
		if conn == c {
			delete(r.teams, id)
			return id, false, true
		}
	}
	return "", false, false
}

// HostConnected reports whether a host connection is currently bound.
func (r *Registry) HostConnected() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.host != nil
}

// Connections resolves the live handles for an audience.
func (r *Registry) Connections(aud Audience) []Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()

	switch aud.scope {
	case scopeHost:
		if r.host == nil {
			return nil
		}
		return []Conn{r.host}
	case scopeTeam:
		if c, ok := r.teams[aud.teamID]; ok {
			return []Conn{c}
		}
		return nil
	default:
		conns := make([]Conn, 0, len(r.teams)+1)
		if r.host != nil {
			conns = append(conns, r.host)
		}
		for _, c := range r.teams {
			conns = append(conns, c)
		}
		return conns
	}
}

// bufferHost queues a host-only envelope while no host is connected. The
// oldest entry is dropped once the queue is full.
func (r *Registry) bufferHost(env Envelope) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.pendingHost) >= r.pendingLimit {
		r.pendingHost = r.pendingHost[1:]
		r.log.Warn().Str("type", env.Type).Msg("host buffer full, dropping oldest notification")
	}
	r.pendingHost = append(r.pendingHost, env)
}

// Close closes every bound connection. Used at session teardown.
func (r *Registry) Close() {
	r.mu.Lock()
	host := r.host
	teams := r.teams
	r.host = nil
	r.teams = make(map[string]Conn)
	r.pendingHost = nil
	r.mu.Unlock()

	if host != nil {
		_ = host.Close()
	}
	for _, c := range teams {
		_ = c.Close()
	}
}
