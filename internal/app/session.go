package app

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"live-quiz-service/internal/domain"
)

// Command is a host-issued control message.
type Command string

const (
	CmdStart      Command = "START"
	CmdSkipBuffer Command = "SKIP_BUFFER"
	CmdForceGrade Command = "FORCE_GRADE"
	CmdNext       Command = "NEXT"
	CmdNextRound  Command = "NEXT_ROUND"
	CmdPause      Command = "PAUSE"
	CmdResume     Command = "RESUME"
	CmdEnd        Command = "END"
)

// ScoreStore persists graded standings. Only final, already-graded scores
// are durable; live session state never survives a process restart.
type ScoreStore interface {
	SaveStandings(ctx context.Context, quizID string, standings []domain.Standing) error
}

// NopScoreStore discards standings. Used when no store is configured.
type NopScoreStore struct{}

func (NopScoreStore) SaveStandings(context.Context, string, []domain.Standing) error { return nil }

// Settings are the per-session tunables.
type Settings struct {
	BufferSeconds    int
	TickInterval     time.Duration
	AllowResubmit    bool // off: first submission wins, duplicates rejected
	HostPendingLimit int
}

func (s Settings) withDefaults() Settings {
	if s.BufferSeconds <= 0 {
		s.BufferSeconds = 5
	}
	if s.TickInterval <= 0 {
		s.TickInterval = time.Second
	}
	if s.HostPendingLimit <= 0 {
		s.HostPendingLimit = 64
	}
	return s
}

// Deps are the session's external collaborators.
type Deps struct {
	Clock      clockwork.Clock
	Log        zerolog.Logger
	Scores     ScoreStore
	AccessCode func() string
}

func (d Deps) withDefaults() Deps {
	if d.Clock == nil {
		d.Clock = clockwork.NewRealClock()
	}
	if d.Scores == nil {
		d.Scores = NopScoreStore{}
	}
	if d.AccessCode == nil {
		d.AccessCode = defaultAccessCode
	}
	return d
}

func defaultAccessCode() string {
	return strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
}

// Session orchestrates one live quiz: it owns the phase, the open question,
// the submission set and the countdown. Host commands, team submissions and
// timer expiries are serialized by the session mutex; every transition
// computes its outbound events under the lock and dispatches them after the
// lock is released so slow writes never block the next trigger.
type Session struct {
	quiz     domain.Quiz
	settings Settings
	clock    clockwork.Clock
	log      zerolog.Logger
	scores   ScoreStore
	codegen  func() string

	registry   *Registry
	dispatcher *Dispatcher
	cd         *countdown

	mu          sync.Mutex
	phase       Phase
	questionIdx int
	round       string
	teams       map[string]*domain.Team
	byCode      map[string]string
	submissions map[string]*domain.Submission
	pausedFrom  Phase
}

// NewSession builds a session in LOBBY for a ready quiz.
func NewSession(quiz domain.Quiz, settings Settings, deps Deps) *Session {
	settings = settings.withDefaults()
	deps = deps.withDefaults()
	log := deps.Log.With().Str("quiz_id", quiz.ID).Logger()
	reg := NewRegistry(log, settings.HostPendingLimit)
	return &Session{
		quiz:        quiz,
		settings:    settings,
		clock:       deps.Clock,
		log:         log,
		scores:      deps.Scores,
		codegen:     deps.AccessCode,
		registry:    reg,
		dispatcher:  NewDispatcher(reg, log),
		cd:          newCountdown(deps.Clock, settings.TickInterval),
		phase:       PhaseLobby,
		teams:       make(map[string]*domain.Team),
		byCode:      make(map[string]string),
		submissions: make(map[string]*domain.Submission),
	}
}

// Registry exposes the session's connection registry to the transport.
func (s *Session) Registry() *Registry { return s.registry }

// Dispatcher exposes the fan-out path, e.g. for flushing buffered host
// notifications on reconnect.
func (s *Session) Dispatcher() *Dispatcher { return s.dispatcher }

// QuizID returns the identifier of the quiz this session runs.
func (s *Session) QuizID() string { return s.quiz.ID }

// Phase returns the current phase. Read-only, always allowed.
func (s *Session) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// HandleCommand routes a host control message. Non-host callers are
// rejected before any state is touched.
func (s *Session) HandleCommand(isHost bool, cmd Command) error {
	if !isHost {
		return domain.E(domain.CodeNotHost, "only the host may issue %s", cmd)
	}
	switch cmd {
	case CmdStart:
		return s.Start()
	case CmdSkipBuffer:
		return s.SkipBuffer()
	case CmdForceGrade:
		return s.ForceGrade()
	case CmdNext:
		return s.Next()
	case CmdNextRound:
		return s.NextRound()
	case CmdPause:
		return s.Pause()
	case CmdResume:
		return s.Resume()
	case CmdEnd:
		return s.End()
	default:
		return domain.E(domain.CodeInvalidPayload, "unknown command %q", cmd)
	}
}

// Start moves LOBBY -> BUFFER for the first question.
func (s *Session) Start() error {
	s.mu.Lock()
	if s.phase != PhaseLobby {
		s.mu.Unlock()
		return s.invalidState(CmdStart)
	}
	if s.quiz.Status != domain.QuizReady || len(s.quiz.Questions) == 0 {
		s.mu.Unlock()
		return domain.E(domain.CodeInvalidState, "quiz %s is not ready to start", s.quiz.ID)
	}
	s.questionIdx = 0
	evs := s.enterBufferLocked()
	s.mu.Unlock()

	s.dispatcher.Dispatch(evs)
	return nil
}

// SkipBuffer opens the pending question immediately.
func (s *Session) SkipBuffer() error {
	s.mu.Lock()
	if s.phase != PhaseBuffer {
		s.mu.Unlock()
		return s.invalidState(CmdSkipBuffer)
	}
	s.cd.Cancel()
	evs := s.openQuestionLocked()
	s.mu.Unlock()

	s.dispatcher.Dispatch(evs)
	return nil
}

// Submit records a team's answer for the open question. First submission
// wins unless AllowResubmit is set.
func (s *Session) Submit(teamID, questionID, answer string) error {
	s.mu.Lock()
	team, ok := s.teams[teamID]
	if !ok {
		s.mu.Unlock()
		return domain.E(domain.CodeNotParticipant, "team is not registered to this quiz")
	}
	if s.phase.terminal() {
		s.mu.Unlock()
		return domain.ErrSessionNotFound
	}
	q := s.currentQuestionLocked()
	if !s.phase.open() {
		// A submission racing a timer-driven transition gets the honest
		// reason: the clock beat it.
		if (s.phase == PhaseGrading || s.phase == PhaseReveal) && q != nil && q.ID == questionID {
			s.mu.Unlock()
			return domain.E(domain.CodeTimeExpired, "time is up for question %s", questionID)
		}
		s.mu.Unlock()
		return domain.E(domain.CodeInvalidState, "no question is open in phase %s", s.phaseNameLocked())
	}
	if q == nil || q.ID != questionID {
		s.mu.Unlock()
		return domain.E(domain.CodeInvalidQuestion, "question %s is not the open question", questionID)
	}
	if s.cd.Expired() {
		s.mu.Unlock()
		return domain.E(domain.CodeTimeExpired, "time is up for question %s", questionID)
	}
	if _, dup := s.submissions[teamID]; dup && !s.settings.AllowResubmit {
		s.mu.Unlock()
		return domain.E(domain.CodeDuplicateSubmission, "answer already submitted for question %s", questionID)
	}

	correct, points := Grade(*q, answer)
	s.submissions[teamID] = &domain.Submission{
		TeamID:      teamID,
		QuestionID:  questionID,
		Answer:      answer,
		Correct:     correct,
		Points:      points,
		SubmittedAt: s.clock.Now(),
	}
	evs := []Event{{Audience: AudienceHost(), Envelope: Envelope{
		Type:    MsgTeamSubmitted,
		Payload: TeamNotice{TeamID: team.ID, Name: team.Name},
	}}}
	if len(s.submissions) == len(s.teams) {
		evs = append(evs, Event{Audience: AudienceHost(), Envelope: Envelope{
			Type:    MsgAllSubmitted,
			Payload: GameStatePayload{QuizID: s.quiz.ID, Phase: s.phase, QuestionIndex: s.questionIdx, TotalQuestions: len(s.quiz.Questions), Round: s.round},
		}})
	}
	s.mu.Unlock()

	s.dispatcher.Dispatch(evs)
	return nil
}

// ForceGrade closes the open question early and grades it.
func (s *Session) ForceGrade() error {
	s.mu.Lock()
	if s.phase != PhaseActive {
		s.mu.Unlock()
		return s.invalidState(CmdForceGrade)
	}
	s.cd.Cancel()
	evs, standings := s.gradeLocked()
	s.mu.Unlock()

	s.dispatcher.Dispatch(evs)
	s.persistStandings(standings)
	return nil
}

// Next advances REVEAL -> BUFFER when the round has more questions, or
// REVEAL -> ROUND_SUMMARY at a round boundary.
func (s *Session) Next() error {
	s.mu.Lock()
	if s.phase != PhaseReveal {
		s.mu.Unlock()
		return s.invalidState(CmdNext)
	}
	var evs []Event
	next := s.questionIdx + 1
	if next < len(s.quiz.Questions) && s.quiz.Questions[next].Round == s.round {
		s.questionIdx = next
		evs = s.enterBufferLocked()
	} else {
		evs = s.enterRoundSummaryLocked(next >= len(s.quiz.Questions))
	}
	s.mu.Unlock()

	s.dispatcher.Dispatch(evs)
	return nil
}

// NextRound advances ROUND_SUMMARY -> BUFFER for the next round's first
// question.
func (s *Session) NextRound() error {
	s.mu.Lock()
	if s.phase != PhaseRoundSummary {
		s.mu.Unlock()
		return s.invalidState(CmdNextRound)
	}
	next := s.questionIdx + 1
	if next >= len(s.quiz.Questions) {
		s.mu.Unlock()
		return domain.E(domain.CodeInvalidState, "no rounds remain; END is the only move")
	}
	s.questionIdx = next
	evs := s.enterBufferLocked()
	s.mu.Unlock()

	s.dispatcher.Dispatch(evs)
	return nil
}

// Pause freezes the countdown and records the phase to return to.
func (s *Session) Pause() error {
	s.mu.Lock()
	if !s.phase.pausable() {
		s.mu.Unlock()
		return s.invalidState(CmdPause)
	}
	s.pausedFrom = s.phase
	s.cd.Pause()
	s.phase = PhasePaused
	evs := []Event{s.gameStateEventLocked("paused")}
	s.mu.Unlock()

	s.dispatcher.Dispatch(evs)
	return nil
}

// Resume returns to the paused-from phase, re-arming the countdown with the
// frozen remainder.
func (s *Session) Resume() error {
	s.mu.Lock()
	if s.phase != PhasePaused {
		s.mu.Unlock()
		return s.invalidState(CmdResume)
	}
	s.phase = s.pausedFrom
	var evs []Event
	var standings []domain.Standing
	switch s.pausedFrom {
	case PhaseBuffer:
		s.cd.Resume(s.onBufferTick, s.onBufferExpire)
		evs = []Event{s.gameStateEventLocked("resumed"), s.bufferCountdownEventLocked()}
	case PhaseActive:
		s.cd.Resume(s.onQuestionTick, s.onQuestionExpire)
		evs = []Event{s.gameStateEventLocked("resumed"), s.timerTickEventLocked()}
	case PhaseGrading:
		// Grading is synchronous; a pause that landed inside it just defers
		// the reveal until now.
		evs, standings = s.gradeLocked()
	}
	s.mu.Unlock()

	s.dispatcher.Dispatch(evs)
	s.persistStandings(standings)
	return nil
}

// End terminates the session from any state. Terminal: only read-only
// queries are accepted afterwards.
func (s *Session) End() error {
	s.mu.Lock()
	if s.phase.terminal() {
		s.mu.Unlock()
		return s.invalidState(CmdEnd)
	}
	s.cd.Cancel()
	s.phase = PhaseEnded
	standings := s.standingsLocked()
	evs := []Event{
		s.gameStateEventLocked("quiz ended"),
		{Audience: AudienceAll(), Envelope: Envelope{Type: MsgRoundSummary, Payload: RoundSummaryPayload{
			Round:     s.round,
			Final:     true,
			Standings: s.resultsLocked(standings),
		}}},
	}
	s.mu.Unlock()

	s.dispatcher.Dispatch(evs)
	s.persistStandings(standings)
	return nil
}

// Join registers a new team while the session is in LOBBY and returns the
// provisioned identity with its access code.
func (s *Session) Join(name string) (*domain.Team, error) {
	if strings.TrimSpace(name) == "" {
		return nil, domain.E(domain.CodeInvalidPayload, "team name is required")
	}
	s.mu.Lock()
	if s.phase != PhaseLobby {
		s.mu.Unlock()
		return nil, domain.E(domain.CodeInvalidState, "teams can only join in the lobby")
	}
	for _, t := range s.teams {
		if strings.EqualFold(t.Name, name) {
			s.mu.Unlock()
			return nil, domain.E(domain.CodeInvalidPayload, "team name %q is taken", name)
		}
	}
	team := &domain.Team{
		ID:         uuid.NewString(),
		Name:       name,
		AccessCode: s.codegen(),
		Connected:  true,
		LastSeenAt: s.clock.Now(),
	}
	s.teams[team.ID] = team
	s.byCode[team.AccessCode] = team.ID
	snap := *team
	evs := []Event{{Audience: AudienceHost(), Envelope: Envelope{
		Type:    MsgTeamJoined,
		Payload: TeamNotice{TeamID: team.ID, Name: team.Name},
	}}}
	s.mu.Unlock()

	s.dispatcher.Dispatch(evs)
	return &snap, nil
}

// Reconnect resolves an access code back to its team identity, preserving
// registration and score across connection loss.
func (s *Session) Reconnect(accessCode string) (*domain.Team, error) {
	s.mu.Lock()
	id, ok := s.byCode[accessCode]
	if !ok {
		s.mu.Unlock()
		return nil, domain.E(domain.CodeInvalidAccessCode, "unknown access code")
	}
	team := s.teams[id]
	team.Connected = true
	team.LastSeenAt = s.clock.Now()
	snap := *team
	s.mu.Unlock()
	return &snap, nil
}

// MarkDisconnected flags a team as away without removing its registration.
func (s *Session) MarkDisconnected(teamID string) {
	s.mu.Lock()
	team, ok := s.teams[teamID]
	if !ok {
		s.mu.Unlock()
		return
	}
	team.Connected = false
	team.LastSeenAt = s.clock.Now()
	evs := []Event{{Audience: AudienceHost(), Envelope: Envelope{
		Type:    MsgTeamDisconnect,
		Payload: TeamNotice{TeamID: team.ID, Name: team.Name},
	}}}
	s.mu.Unlock()

	s.dispatcher.Dispatch(evs)
}

// Snapshot builds the state-sync events for a (re)connecting client: the
// coarse game state plus, mid-question, the question payload and remaining
// time.
func (s *Session) Snapshot() []Envelope {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []Envelope{s.gameStateEventLocked("").Envelope}
	if s.phase == PhaseActive {
		if q := s.currentQuestionLocked(); q != nil {
			out = append(out, Envelope{Type: MsgQuestion, Payload: questionPayload(*q)})
			out = append(out, s.timerTickEventLocked().Envelope)
		}
	}
	return out
}

// Standings returns the current ranked scoreboard.
func (s *Session) Standings() []domain.Standing {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.standingsLocked()
}

// Close tears down timers and connections. Called by the manager.
func (s *Session) Close() {
	s.mu.Lock()
	s.cd.Cancel()
	s.phase = PhaseEnded
	s.mu.Unlock()
	s.registry.Close()
}

// --- timer callbacks ---------------------------------------------------

func (s *Session) onBufferExpire(uint64) {
	s.mu.Lock()
	if s.phase != PhaseBuffer {
		s.mu.Unlock()
		return
	}
	evs := s.openQuestionLocked()
	s.mu.Unlock()
	s.dispatcher.Dispatch(evs)
}

func (s *Session) onBufferTick(uint64) {
	s.mu.Lock()
	if s.phase != PhaseBuffer {
		s.mu.Unlock()
		return
	}
	ev := s.bufferCountdownEventLocked()
	s.mu.Unlock()
	s.dispatcher.Dispatch([]Event{ev})
}

func (s *Session) onQuestionExpire(uint64) {
	s.mu.Lock()
	if s.phase != PhaseActive {
		s.mu.Unlock()
		return
	}
	evs, standings := s.gradeLocked()
	s.mu.Unlock()
	s.dispatcher.Dispatch(evs)
	s.persistStandings(standings)
}

func (s *Session) onQuestionTick(uint64) {
	s.mu.Lock()
	if s.phase != PhaseActive {
		s.mu.Unlock()
		return
	}
	ev := s.timerTickEventLocked()
	s.mu.Unlock()
	s.dispatcher.Dispatch([]Event{ev})
}

// --- locked transition helpers -----------------------------------------

func (s *Session) enterBufferLocked() []Event {
	q := s.quiz.Questions[s.questionIdx]
	s.phase = PhaseBuffer
	s.round = q.Round
	s.submissions = make(map[string]*domain.Submission)
	s.cd.Start(time.Duration(s.settings.BufferSeconds)*time.Second, s.onBufferTick, s.onBufferExpire)
	return []Event{
		s.gameStateEventLocked(fmt.Sprintf("question %d of %d coming up", s.questionIdx+1, len(s.quiz.Questions))),
		s.bufferCountdownEventLocked(),
	}
}

func (s *Session) openQuestionLocked() []Event {
	q := s.quiz.Questions[s.questionIdx]
	s.phase = PhaseActive
	s.submissions = make(map[string]*domain.Submission)
	s.cd.Start(time.Duration(q.TimeLimitSec)*time.Second, s.onQuestionTick, s.onQuestionExpire)
	return []Event{
		s.gameStateEventLocked(""),
		{Audience: AudienceAll(), Envelope: Envelope{Type: MsgQuestion, Payload: questionPayload(q)}},
		s.timerTickEventLocked(),
	}
}

// gradeLocked runs ACTIVE -> GRADING -> REVEAL in one serialized step:
// cumulative scores update for every registered team (zero for absentees),
// then the reveal payload is derived fresh from submissions and totals.
func (s *Session) gradeLocked() ([]Event, []domain.Standing) {
	q := s.quiz.Questions[s.questionIdx]
	s.phase = PhaseGrading
	for id, team := range s.teams {
		if sub, ok := s.submissions[id]; ok {
			team.Score += sub.Points
		}
	}
	standings := s.standingsLocked()
	results := s.resultsLocked(standings)
	dist := Distribution(q, s.submissions, len(s.teams))

	s.phase = PhaseReveal
	evs := []Event{
		{Audience: AudienceAll(), Envelope: Envelope{Type: MsgTimerTick, Payload: TimerTickPayload{Active: false, TotalSec: q.TimeLimitSec}}},
		s.gameStateEventLocked(""),
		{Audience: AudienceAll(), Envelope: Envelope{Type: MsgReveal, Payload: RevealPayload{
			QuestionID:    q.ID,
			Type:          q.Type,
			CorrectAnswer: q.Answer,
			Distribution:  dist,
			Results:       results,
		}}},
	}
	if len(standings) > 1 && standings[0].Tied {
		evs = append(evs, Event{Audience: AudienceHost(), Envelope: Envelope{
			Type:    MsgTieDetected,
			Payload: RoundSummaryPayload{Round: s.round, Standings: results},
		}})
	}
	return evs, standings
}

func (s *Session) enterRoundSummaryLocked(final bool) []Event {
	s.phase = PhaseRoundSummary
	standings := s.standingsLocked()
	return []Event{
		s.gameStateEventLocked(""),
		{Audience: AudienceAll(), Envelope: Envelope{Type: MsgRoundSummary, Payload: RoundSummaryPayload{
			Round:     s.round,
			Final:     final,
			Standings: s.resultsLocked(standings),
		}}},
	}
}

// standingsLocked ranks all registered teams by cumulative score.
func (s *Session) standingsLocked() []domain.Standing {
	teams := make([]*domain.Team, 0, len(s.teams))
	for _, t := range s.teams {
		teams = append(teams, t)
	}
	return Rank(teams)
}

// resultsLocked merges standings with the current submission set into the
// per-team reveal view.
func (s *Session) resultsLocked(standings []domain.Standing) []domain.TeamResult {
	results := make([]domain.TeamResult, 0, len(standings))
	for _, st := range standings {
		r := domain.TeamResult{
			TeamID:     st.TeamID,
			Name:       st.Name,
			TotalScore: st.Score,
			Rank:       st.Rank,
			Tied:       st.Tied,
		}
		if sub, ok := s.submissions[st.TeamID]; ok {
			r.Answered = true
			r.Answer = sub.Answer
			r.Correct = sub.Correct
			r.RoundPoints = sub.Points
		}
		results = append(results, r)
	}
	return results
}

func (s *Session) currentQuestionLocked() *domain.Question {
	if s.questionIdx < 0 || s.questionIdx >= len(s.quiz.Questions) {
		return nil
	}
	return &s.quiz.Questions[s.questionIdx]
}

func (s *Session) gameStateEventLocked(status string) Event {
	return Event{Audience: AudienceAll(), Envelope: Envelope{Type: MsgGameState, Payload: GameStatePayload{
		QuizID:         s.quiz.ID,
		Phase:          s.phase,
		QuestionIndex:  s.questionIdx,
		TotalQuestions: len(s.quiz.Questions),
		Round:          s.round,
		Status:         status,
	}}}
}

func (s *Session) bufferCountdownEventLocked() Event {
	secs := int(s.cd.Remaining().Round(time.Second) / time.Second)
	return Event{Audience: AudienceAll(), Envelope: Envelope{Type: MsgBufferCountdown, Payload: BufferCountdownPayload{
		Seconds: secs,
		Round:   s.round,
		Prompt:  fmt.Sprintf("get ready — round %s continues in %ds", s.round, secs),
	}}}
}

func (s *Session) timerTickEventLocked() Event {
	return Event{Audience: AudienceAll(), Envelope: Envelope{Type: MsgTimerTick, Payload: TimerTickPayload{
		RemainingSec: int(s.cd.Remaining().Round(time.Second) / time.Second),
		TotalSec:     int(s.cd.Total() / time.Second),
		Active:       s.phase == PhaseActive,
	}}}
}

func (s *Session) phaseNameLocked() Phase { return s.phase }

func (s *Session) invalidState(cmd Command) error {
	return domain.E(domain.CodeInvalidState, "%s is not valid in phase %s", cmd, s.Phase())
}

// persistStandings writes graded scores to the durable store. A store
// failure is logged and never corrupts the in-memory session.
func (s *Session) persistStandings(standings []domain.Standing) {
	if len(standings) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.scores.SaveStandings(ctx, s.quiz.ID, standings); err != nil {
		s.log.Error().Err(err).Msg("failed to persist standings")
	}
}

func questionPayload(q domain.Question) QuestionPayload {
	return QuestionPayload{
		ID:           q.ID,
		Text:         q.Text,
		Type:         q.Type,
		Options:      q.Options,
		TimeLimitSec: q.TimeLimitSec,
		Points:       q.Points,
		OrderIndex:   q.OrderIndex,
		Round:        q.Round,
	}
}
