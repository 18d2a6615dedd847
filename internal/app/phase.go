package app

// Phase is the session state machine's closed set of states. Transitions
// live in the session's command methods; each guard below keeps the
// transition table auditable without scattering phase checks.
type Phase string

const (
	PhaseLobby        Phase = "LOBBY"
	PhaseBuffer       Phase = "BUFFER"
	PhaseActive       Phase = "ACTIVE"
	PhaseGrading      Phase = "GRADING"
	PhaseReveal       Phase = "REVEAL"
	PhaseRoundSummary Phase = "ROUND_SUMMARY"
	PhasePaused       Phase = "PAUSED"
	PhaseEnded        Phase = "ENDED"
)

// pausable reports whether the host may pause from this phase. PAUSED
// records the phase it was entered from and returns there on resume.
func (p Phase) pausable() bool {
	switch p {
	case PhaseBuffer, PhaseActive, PhaseGrading:
		return true
	}
	return false
}

// terminal reports whether the session accepts anything beyond read-only
// status queries.
func (p Phase) terminal() bool {
	return p == PhaseEnded
}

// open reports whether a question is currently accepting submissions.
func (p Phase) open() bool {
	return p == PhaseActive
}
