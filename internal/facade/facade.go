// Package facade is the service entry point: one exported method per named
// operation (Create, Join, Move, Status, ...) over the game/player/rules
// collaborators, with a single error taxonomy so a transport layer can
// mechanically turn any result into wire JSON. There is no table keyed by
// command name and no lookup of a command by its name.
package facade

import (
	"context"
	"fmt"
	"time"

	"mnk-server/internal/events"
	"mnk-server/internal/game"
	"mnk-server/internal/identity"
	"mnk-server/internal/metrics"
	"mnk-server/internal/player"
	"mnk-server/internal/storage"
	"mnk-server/internal/storage/analytics"
	"mnk-server/pkg/board"
	"mnk-server/pkg/cpu"
	"mnk-server/pkg/rules"
)

// ErrorKind enumerates the wire error taxonomy, matching the source
// exception hierarchy (JoinError, LeaveError, MoveError, AbortError,
// CpuError, LogInError, RegisterError, PlayerNameError) plus the three
// cross-cutting kinds (InvalidArgument, NotSupported, ConcurrentUpdate).
type ErrorKind string

const (
	KindJoin             ErrorKind = "JoinError"
	KindLeave            ErrorKind = "LeaveError"
	KindMove             ErrorKind = "MoveError"
	KindAbort            ErrorKind = "AbortError"
	KindCpu              ErrorKind = "CpuError"
	KindLogIn            ErrorKind = "LogInError"
	KindRegister         ErrorKind = "RegisterError"
	KindPlayerName       ErrorKind = "PlayerNameError"
	KindInvalidArgument  ErrorKind = "InvalidArgument"
	KindNotSupported     ErrorKind = "NotSupported"
	KindConcurrentUpdate ErrorKind = "ConcurrentUpdate"
)

// Error is the single error type every facade command returns.
type Error struct {
	Kind    ErrorKind
	Message string
}

func (e *Error) Error() string { return fmt.Sprintf("%s: %s", e.Kind, e.Message) }

func errf(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// cmdErr builds a facade Error exactly like errf, additionally recording it
// against command in FacadeErrorsTotal so error rates are visible per
// command and per kind without the caller having to remember to.
func (f *Facade) cmdErr(command string, kind ErrorKind, format string, args ...any) *Error {
	metrics.FacadeErrorsTotal.WithLabelValues(command, string(kind)).Inc()
	return errf(kind, format, args...)
}

// timeCommand starts a FacadeCommandDuration observation for command,
// returning the func a caller should defer to record it.
func timeCommand(command string) func() {
	start := time.Now()
	return func() {
		metrics.FacadeCommandDuration.WithLabelValues(command).Observe(time.Since(start).Seconds())
	}
}

// Caller identifies who is invoking a command: either an authenticated
// identity supplied by an upstream identity provider, or a session cookie
// value previously issued by this service.
type Caller struct {
	AuthenticatedIdentity string
	SessionToken          string
}

// GameRecorder appends a completed-game fact to an analytics sink. Facade
// depends on this narrow interface rather than *analytics.Store directly so
// tests can run without a ClickHouse connection.
type GameRecorder interface {
	Record(ctx context.Context, evt analytics.GameCompletedEvent) error
}

// Facade wires the command methods to their collaborators.
type Facade struct {
	games       storage.GameStore
	players     *player.Registry
	playerStore storage.PlayerStore
	ruleSets    storage.RuleSetStore
	strategist  *cpu.Strategist
	events      events.GamePublisher
	analytics   GameRecorder
	idGen       func() string
}

// New returns a Facade over the given collaborators. idGen mints new game
// IDs; tests typically supply a deterministic sequence.
func New(games storage.GameStore, playerStore storage.PlayerStore, sessions identity.SessionStore,
	ruleSets storage.RuleSetStore, pub events.GamePublisher, idGen func() string) *Facade {
	return &Facade{
		games:       games,
		players:     player.New(playerStore, sessions),
		playerStore: playerStore,
		ruleSets:    ruleSets,
		strategist:  cpu.New(),
		events:      pub,
		idGen:       idGen,
	}
}

// WithAnalytics attaches a completed-game recorder, returning f for
// chaining at construction time. Unset by default, in which case completed
// games are simply not recorded to the analytics sink.
func (f *Facade) WithAnalytics(rec GameRecorder) *Facade {
	f.analytics = rec
	return f
}

// resolveCaller implements GetCurrent's resolution order, returning the
// caller's Player and (if one was freshly minted) its new session token.
func (f *Facade) resolveCaller(c Caller) (player.Player, string, error) {
	return f.players.GetCurrent(c.AuthenticatedIdentity, c.SessionToken)
}

// Status is the wire representation of a game, per §6.
type Status struct {
	GameID        string   `json:"gameId"`
	State         string   `json:"state"`
	Turn          int      `json:"turn"`
	CurrentPlayer int      `json:"currentPlayer,omitempty"`
	Players       []string `json:"players"`
	PlayerNames   []string `json:"playerNames"`
	Board         []string `json:"board"`
	RuleSetID     string   `json:"ruleSetId"`
}

func toStatus(s game.Snapshot) Status {
	var packed []string
	if s.Board != nil {
		packed = board.Pack(s.Board)
	}
	return Status{
		GameID:        s.ID,
		State:         string(s.State),
		Turn:          s.Turn,
		CurrentPlayer: s.CurrentPlayer,
		Players:       s.Players,
		PlayerNames:   s.PlayerNames,
		Board:         packed,
		RuleSetID:     s.RuleSet.ID,
	}
}

// Create starts a new waiting game for the given rule set and seats the
// caller as its first player.
func (f *Facade) Create(c Caller, ruleSetID string) (Status, string, *Error) {
	defer timeCommand("create")()

	caller, newToken, err := f.resolveCaller(c)
	if err != nil {
		return Status{}, "", f.cmdErr("create", KindInvalidArgument, "resolve caller: %v", err)
	}

	rs, found, err := f.ruleSets.Get(ruleSetID)
	if err != nil || !found {
		return Status{}, "", f.cmdErr("create", KindInvalidArgument, "unknown rule set %q", ruleSetID)
	}

	g := game.New(f.idGen(), rs)
	if err := g.AddPlayer(caller.ID, caller.Nickname); err != nil {
		return Status{}, "", f.cmdErr("create", KindJoin, "%v", err)
	}
	if err := f.games.Create(g); err != nil {
		return Status{}, "", f.cmdErr("create", KindInvalidArgument, "%v", err)
	}

	metrics.GamesCreated.WithLabelValues(rs.Name).Inc()
	f.publish(events.EventGameCreated, g.GetState())

	return toStatus(g.GetState()), newToken, nil
}

// Join seats the caller in an existing waiting game, triggering the CPU
// chain reaction if the roster fills and the next seat is CPU-controlled.
func (f *Facade) Join(c Caller, gameID string) (Status, string, *Error) {
	defer timeCommand("join")()

	caller, newToken, err := f.resolveCaller(c)
	if err != nil {
		return Status{}, "", f.cmdErr("join", KindInvalidArgument, "resolve caller: %v", err)
	}

	g, found, err := f.games.Get(gameID)
	if err != nil || !found {
		return Status{}, "", f.cmdErr("join", KindJoin, "game %q not found", gameID)
	}

	if err := g.AddPlayer(caller.ID, caller.Nickname); err != nil {
		return Status{}, "", f.cmdErr("join", KindJoin, "%v", err)
	}
	if err := f.games.Save(g); err != nil {
		return Status{}, "", f.cmdErr("join", KindConcurrentUpdate, "%v", err)
	}

	f.publish(events.EventPlayerJoined, g.GetState())

	if err := f.runCpuChain(g); err != nil {
		return Status{}, "", f.cmdErr("join", KindCpu, "%v", err)
	}

	return toStatus(g.GetState()), newToken, nil
}

// Leave removes the caller from a game, aborting it if play had started.
func (f *Facade) Leave(c Caller, gameID string) (Status, *Error) {
	defer timeCommand("leave")()

	caller, _, err := f.resolveCaller(c)
	if err != nil {
		return Status{}, f.cmdErr("leave", KindInvalidArgument, "resolve caller: %v", err)
	}

	g, found, err := f.games.Get(gameID)
	if err != nil || !found {
		return Status{}, f.cmdErr("leave", KindLeave, "game %q not found", gameID)
	}

	if err := g.RemovePlayer(caller.ID); err != nil {
		return Status{}, f.cmdErr("leave", KindLeave, "%v", err)
	}
	if err := f.games.Save(g); err != nil {
		return Status{}, f.cmdErr("leave", KindConcurrentUpdate, "%v", err)
	}

	st := g.GetState()
	isCPU := func(id string) bool {
		p, found, err := f.playerStore.Get(id)
		return err == nil && found && p.IsCPU()
	}
	if st.State == game.StateWaiting && g.HumansRemaining(isCPU) == 0 {
		f.games.Delete(gameID)
	}
	if st.State == game.StateAborted {
		f.publish(events.EventGameAborted, st)
		f.recordCompletion(st, "aborted", "")
	}

	return toStatus(st), nil
}

// Move commits a move for the caller, recursing into the CPU chain if the
// next seat (or seats, under a move that ends the game and triggers
// scoring) is CPU-controlled.
func (f *Facade) Move(c Caller, gameID string, x, y int) (Status, *Error) {
	defer timeCommand("move")()

	caller, _, err := f.resolveCaller(c)
	if err != nil {
		return Status{}, f.cmdErr("move", KindInvalidArgument, "resolve caller: %v", err)
	}

	g, found, err := f.games.Get(gameID)
	if err != nil || !found {
		return Status{}, f.cmdErr("move", KindMove, "game %q not found", gameID)
	}

	outcome, err := g.Move(caller.ID, x, y)
	if err != nil {
		return Status{}, f.cmdErr("move", KindMove, "%v", err)
	}
	if err := f.games.Save(g); err != nil {
		return Status{}, f.cmdErr("move", KindConcurrentUpdate, "%v", err)
	}

	metrics.MovesTotal.WithLabelValues(g.GetState().RuleSet.Name, "human").Inc()
	f.applyOutcome(g, outcome)
	f.publish(events.EventMoveCommitted, g.GetState())

	if err := f.runCpuChain(g); err != nil {
		return Status{}, f.cmdErr("move", KindCpu, "%v", err)
	}

	return toStatus(g.GetState()), nil
}

// Abort ends a playing game early.
func (f *Facade) Abort(gameID string) (Status, *Error) {
	defer timeCommand("abort")()

	g, found, err := f.games.Get(gameID)
	if err != nil || !found {
		return Status{}, f.cmdErr("abort", KindAbort, "game %q not found", gameID)
	}
	if err := g.Abort(); err != nil {
		return Status{}, f.cmdErr("abort", KindAbort, "%v", err)
	}
	if err := f.games.Save(g); err != nil {
		return Status{}, f.cmdErr("abort", KindConcurrentUpdate, "%v", err)
	}

	f.publish(events.EventGameAborted, g.GetState())
	f.recordCompletion(g.GetState(), "aborted", "")
	return toStatus(g.GetState()), nil
}

// AddCpuPlayer seats a CPU player in a waiting game — the equivalent of a
// human calling Join, but for the reserved CPU identity.
func (f *Facade) AddCpuPlayer(gameID string) (Status, *Error) {
	defer timeCommand("addCpuPlayer")()

	g, found, err := f.games.Get(gameID)
	if err != nil || !found {
		return Status{}, f.cmdErr("addCpuPlayer", KindJoin, "game %q not found", gameID)
	}

	cpuPlayer, err := f.players.FromIdentity(identity.CPU, "CPU")
	if err != nil {
		return Status{}, f.cmdErr("addCpuPlayer", KindCpu, "%v", err)
	}
	if err := g.AddPlayer(cpuPlayer.ID, cpuPlayer.Nickname); err != nil {
		return Status{}, f.cmdErr("addCpuPlayer", KindJoin, "%v", err)
	}
	if err := f.games.Save(g); err != nil {
		return Status{}, f.cmdErr("addCpuPlayer", KindConcurrentUpdate, "%v", err)
	}

	if err := f.runCpuChain(g); err != nil {
		return Status{}, f.cmdErr("addCpuPlayer", KindCpu, "%v", err)
	}
	return toStatus(g.GetState()), nil
}

// CpuBattle creates a game filled entirely with CPU players for a rule
// set, running it to completion synchronously.
func (f *Facade) CpuBattle(ruleSetID string) (Status, *Error) {
	defer timeCommand("cpuBattle")()

	rs, found, err := f.ruleSets.Get(ruleSetID)
	if err != nil || !found {
		return Status{}, f.cmdErr("cpuBattle", KindInvalidArgument, "unknown rule set %q", ruleSetID)
	}

	g := game.New(f.idGen(), rs)
	for i := 0; i < rs.NumPlayers; i++ {
		// Each seat gets its own CPU player record: a game seats a player
		// ID at most once.
		cpuPlayer, err := f.playerStore.Create(player.Player{Identity: identity.CPU, Nickname: "CPU"})
		if err != nil {
			return Status{}, f.cmdErr("cpuBattle", KindCpu, "%v", err)
		}
		if err := g.AddPlayer(cpuPlayer.ID, fmt.Sprintf("CPU %d", i+1)); err != nil {
			return Status{}, f.cmdErr("cpuBattle", KindJoin, "%v", err)
		}
	}
	if err := f.games.Create(g); err != nil {
		return Status{}, f.cmdErr("cpuBattle", KindInvalidArgument, "%v", err)
	}

	if err := f.runCpuChain(g); err != nil {
		return Status{}, f.cmdErr("cpuBattle", KindCpu, "%v", err)
	}
	return toStatus(g.GetState()), nil
}

// Status returns the current state of a game.
func (f *Facade) Status(gameID string) (Status, *Error) {
	defer timeCommand("status")()

	g, found, err := f.games.Get(gameID)
	if err != nil || !found {
		return Status{}, f.cmdErr("status", KindInvalidArgument, "game %q not found", gameID)
	}
	return toStatus(g.GetState()), nil
}

// List returns game summaries for the caller's perspective in the given
// mode, after sweeping stale games. mode is "play" (active games the
// caller is seated in), "view" (other joinable/spectatable active games),
// or "past" (completed games the caller took part in).
func (f *Facade) List(c Caller, mode string, sweep func(time.Time)) ([]Status, *Error) {
	defer timeCommand("list")()

	if sweep != nil {
		sweep(time.Now())
	}

	caller, _, err := f.resolveCaller(c)
	if err != nil {
		return nil, f.cmdErr("list", KindInvalidArgument, "resolve caller: %v", err)
	}

	var states []game.State
	switch mode {
	case "play", "view":
		states = []game.State{game.StateWaiting, game.StatePlaying}
	case "past":
		states = []game.State{game.StateWin, game.StateDraw, game.StateAborted}
	default:
		return nil, f.cmdErr("list", KindInvalidArgument, "unknown list mode %q", mode)
	}

	games, err := f.games.List(states)
	if err != nil {
		return nil, f.cmdErr("list", KindInvalidArgument, "%v", err)
	}

	out := make([]Status, 0, len(games))
	for _, g := range games {
		st := g.GetState()
		seated := containsPlayer(st.Players, caller.ID)
		if mode == "view" && seated {
			continue
		}
		if (mode == "play" || mode == "past") && !seated {
			continue
		}
		out = append(out, toStatus(st))
	}
	return out, nil
}

func containsPlayer(players []string, id string) bool {
	for _, p := range players {
		if p == id {
			return true
		}
	}
	return false
}

// GetPlayerInfo resolves a player by ID.
func (f *Facade) GetPlayerInfo(playerID string) (player.Player, *Error) {
	defer timeCommand("getPlayerInfo")()

	p, found, err := f.playerStore.Get(playerID)
	if err != nil || !found {
		return player.Player{}, f.cmdErr("getPlayerInfo", KindInvalidArgument, "player %q not found", playerID)
	}
	return p, nil
}

// ChangeNickname renames the caller and propagates the new name into
// every game they're seated in, completed games included.
func (f *Facade) ChangeNickname(c Caller, nickname string) (player.Player, *Error) {
	defer timeCommand("changeNickname")()

	caller, _, err := f.resolveCaller(c)
	if err != nil {
		return player.Player{}, f.cmdErr("changeNickname", KindInvalidArgument, "resolve caller: %v", err)
	}

	renamed, err := f.players.Rename(caller, nickname)
	if err != nil {
		return player.Player{}, f.cmdErr("changeNickname", KindPlayerName, "%v", err)
	}

	active, err := f.games.List([]game.State{game.StateWaiting, game.StatePlaying,
		game.StateWin, game.StateDraw, game.StateAborted})
	if err == nil {
		for _, g := range active {
			g.UpdatePlayerName(caller.ID, nickname)
			f.games.Save(g)
		}
	}

	return renamed, nil
}

// CreateRuleSet registers a new custom rule set.
func (f *Facade) CreateRuleSet(rs rules.RuleSet) (rules.RuleSet, *Error) {
	defer timeCommand("createRuleSet")()

	created, err := f.ruleSets.Create(rs)
	if err != nil {
		return rules.RuleSet{}, f.cmdErr("createRuleSet", KindInvalidArgument, "%v", err)
	}
	return created, nil
}

// GetRuleSets lists every available rule set.
func (f *Facade) GetRuleSets() ([]rules.RuleSet, *Error) {
	defer timeCommand("getRuleSets")()

	list, err := f.ruleSets.List()
	if err != nil {
		return nil, f.cmdErr("getRuleSets", KindInvalidArgument, "%v", err)
	}
	return list, nil
}

// runCpuChain drives handle_cpu-style recursion: while the seat to move
// is CPU-controlled and the game is still playing, the strategist picks a
// move and commits it, bounded by one pass over the board so a
// misconfigured rule set can never spin forever.
func (f *Facade) runCpuChain(g *game.Game) error {
	st := g.GetState()
	maxSteps := st.RuleSet.M*st.RuleSet.N + 1

	for step := 0; step < maxSteps; step++ {
		st = g.GetState()
		if st.State != game.StatePlaying {
			return nil
		}
		if st.CurrentPlayer < 1 || st.CurrentPlayer > len(st.Players) {
			return nil
		}
		actorID := st.Players[st.CurrentPlayer-1]
		actor, found, err := f.playerStore.Get(actorID)
		if err != nil {
			return err
		}
		if !found || !actor.IsCPU() {
			return nil
		}

		decideStart := time.Now()
		mv := f.strategist.Decide(st.Board, st.RuleSet, byte(st.CurrentPlayer), st.Turn)
		metrics.CPUMoveDuration.WithLabelValues(st.RuleSet.Name).Observe(time.Since(decideStart).Seconds())
		outcome, err := g.Move(actorID, mv.X, mv.Y)
		if err != nil {
			return err
		}
		if err := f.games.Save(g); err != nil {
			return err
		}

		metrics.MovesTotal.WithLabelValues(st.RuleSet.Name, "cpu").Inc()
		f.applyOutcome(g, outcome)
		f.publish(events.EventMoveCommitted, g.GetState())
	}
	return nil
}

// applyOutcome updates player win/loss/draw counters and the rule set's
// game counter when a move ended the game. Scoring and rule-set save
// failures are ignored and publication failures are counted in a metric,
// never surfaced as a command error — the move itself already committed.
func (f *Facade) applyOutcome(g *game.Game, outcome game.Outcome) {
	if outcome.Winner == "" && len(outcome.Drawers) == 0 {
		return
	}

	if outcome.Winner != "" {
		f.bumpScore(outcome.Winner, func(p *player.Player) { p.Wins++ })
		for _, loser := range outcome.Losers {
			f.bumpScore(loser, func(p *player.Player) { p.Losses++ })
		}
		f.publish(events.EventGameWin, g.GetState())
		f.recordCompletion(g.GetState(), "win", outcome.Winner)
	} else {
		for _, id := range outcome.Drawers {
			f.bumpScore(id, func(p *player.Player) { p.Draws++ })
		}
		f.publish(events.EventGameDraw, g.GetState())
		f.recordCompletion(g.GetState(), "draw", "")
	}

	rs := g.GetState().RuleSet
	rs.NumGames++
	f.ruleSets.Save(rs)

	metrics.GamesTerminated.WithLabelValues(rs.Name, string(g.GetState().State)).Inc()
}

// recordCompletion appends a completed-game fact to the analytics sink, if
// one is configured. A recording failure never surfaces as a command
// error — the game already reached its terminal state regardless.
func (f *Facade) recordCompletion(s game.Snapshot, outcome, winner string) {
	if f.analytics == nil {
		return
	}
	evt := analytics.GameCompletedEvent{
		GameID:      s.ID,
		RuleSetID:   s.RuleSet.ID,
		RuleSetName: s.RuleSet.Name,
		Outcome:     outcome,
		WinnerID:    winner,
		NumPlayers:  len(s.Players),
		TurnCount:   s.Turn + 1,
		BoardM:      s.RuleSet.M,
		BoardN:      s.RuleSet.N,
		StartedAt:   s.Added,
		EndedAt:     s.LastUpdate,
	}
	if err := f.analytics.Record(context.Background(), evt); err != nil {
		metrics.EventPublishFailures.WithLabelValues("analytics_" + outcome).Inc()
	}
}

func (f *Facade) bumpScore(playerID string, apply func(*player.Player)) {
	p, found, err := f.playerStore.Get(playerID)
	if err != nil || !found {
		return
	}
	apply(&p)
	f.playerStore.Save(p)
}

func (f *Facade) publish(t events.EventType, s game.Snapshot) {
	if f.events == nil {
		return
	}
	if err := f.events.Publish(events.GameEvent{
		Type:      t,
		GameID:    s.ID,
		RuleSetID: s.RuleSet.ID,
		Turn:      s.Turn,
		Winner:    outcomeWinner(s),
		Timestamp: time.Now(),
	}); err != nil {
		metrics.EventPublishFailures.WithLabelValues(string(t)).Inc()
	}
}

func outcomeWinner(s game.Snapshot) string {
	if s.State != game.StateWin || s.CurrentPlayer < 1 || s.CurrentPlayer > len(s.Players) {
		return ""
	}
	// The winner is whoever made the move that ended the game — since
	// CurrentPlayer is only advanced on a non-terminal move, on a win it
	// still names the player who just moved.
	return s.Players[s.CurrentPlayer-1]
}

