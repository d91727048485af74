package facade

import (
	"fmt"
	"testing"

	"mnk-server/internal/events"
	"mnk-server/internal/storage/memstore"
)

func newTestFacade() (*Facade, *memstore.RuleSets) {
	games := memstore.NewGames()
	players := memstore.NewPlayers()
	sessions := memstore.NewSessions()
	ruleSets := memstore.NewRuleSets()

	var seq int
	idGen := func() string {
		seq++
		return fmt.Sprintf("g%d", seq)
	}

	return New(games, players, sessions, ruleSets, events.NoopPublisher{}, idGen), ruleSets
}

func ticTacToeID(t *testing.T, rs *memstore.RuleSets) string {
	t.Helper()
	list, err := rs.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	for _, r := range list {
		if r.Name == "Tic-tac-toe" {
			return r.ID
		}
	}
	t.Fatal("Tic-tac-toe rule set not preseeded")
	return ""
}

func TestCreateSeatsCallerAsFirstPlayer(t *testing.T) {
	f, rs := newTestFacade()
	rsID := ticTacToeID(t, rs)

	st, token, ferr := f.Create(Caller{}, rsID)
	if ferr != nil {
		t.Fatalf("Create: %v", ferr)
	}
	if token == "" {
		t.Fatal("expected a fresh session token for an anonymous caller")
	}
	if st.State != "waiting" {
		t.Fatalf("state = %q, want waiting", st.State)
	}
	if len(st.Players) != 1 {
		t.Fatalf("players = %v, want exactly one seated", st.Players)
	}
}

func TestJoinStartsGameAndUnknownGameErrors(t *testing.T) {
	f, rs := newTestFacade()
	rsID := ticTacToeID(t, rs)

	st, token, ferr := f.Create(Caller{}, rsID)
	if ferr != nil {
		t.Fatalf("Create: %v", ferr)
	}

	joined, _, ferr := f.Join(Caller{}, st.GameID)
	if ferr != nil {
		t.Fatalf("Join: %v", ferr)
	}
	if joined.State != "playing" {
		t.Fatalf("state = %q, want playing once the roster fills", joined.State)
	}
	if len(joined.Players) != 2 {
		t.Fatalf("players = %v, want two seated", joined.Players)
	}

	_, _, ferr = f.Join(Caller{SessionToken: token}, "no-such-game")
	if ferr == nil || ferr.Kind != KindJoin {
		t.Fatalf("expected KindJoin for an unknown game, got %v", ferr)
	}
}

func TestMoveRejectsOutOfTurnAndAdvancesState(t *testing.T) {
	f, rs := newTestFacade()
	rsID := ticTacToeID(t, rs)

	created, tokenA, ferr := f.Create(Caller{}, rsID)
	if ferr != nil {
		t.Fatalf("Create: %v", ferr)
	}
	_, tokenB, ferr := f.Join(Caller{}, created.GameID)
	if ferr != nil {
		t.Fatalf("Join: %v", ferr)
	}

	st, ferr := f.Status(created.GameID)
	if ferr != nil {
		t.Fatalf("Status: %v", ferr)
	}
	firstSeatToken := tokenA
	if st.Players[0] != playerIDForToken(t, f, tokenA) {
		firstSeatToken = tokenB
	}

	_, ferr = f.Move(Caller{SessionToken: firstSeatToken}, created.GameID, 0, 0)
	if ferr != nil {
		t.Fatalf("Move by seat 1: %v", ferr)
	}

	_, ferr = f.Move(Caller{SessionToken: firstSeatToken}, created.GameID, 1, 1)
	if ferr == nil || ferr.Kind != KindMove {
		t.Fatalf("expected KindMove for moving twice in a row, got %v", ferr)
	}
}

func playerIDForToken(t *testing.T, f *Facade, token string) string {
	t.Helper()
	p, _, err := f.resolveCaller(Caller{SessionToken: token})
	if err != nil {
		t.Fatalf("resolveCaller: %v", err)
	}
	return p.ID
}

func TestCpuBattleRunsToCompletionSynchronously(t *testing.T) {
	f, rs := newTestFacade()
	rsID := ticTacToeID(t, rs)

	st, ferr := f.CpuBattle(rsID)
	if ferr != nil {
		t.Fatalf("CpuBattle: %v", ferr)
	}
	if st.State != "win" && st.State != "draw" {
		t.Fatalf("state = %q, want a terminal state after a synchronous CPU battle", st.State)
	}
}

func TestAddCpuPlayerFillsLobbyAndPlays(t *testing.T) {
	f, rs := newTestFacade()
	rsID := ticTacToeID(t, rs)

	created, _, ferr := f.Create(Caller{}, rsID)
	if ferr != nil {
		t.Fatalf("Create: %v", ferr)
	}

	st, ferr := f.AddCpuPlayer(created.GameID)
	if ferr != nil {
		t.Fatalf("AddCpuPlayer: %v", ferr)
	}
	if len(st.Players) != 2 {
		t.Fatalf("players = %v, want two seated once the CPU joins", st.Players)
	}
}

func TestLeaveDeletesAnEmptyWaitingLobby(t *testing.T) {
	f, rs := newTestFacade()
	rsID := ticTacToeID(t, rs)

	created, token, ferr := f.Create(Caller{}, rsID)
	if ferr != nil {
		t.Fatalf("Create: %v", ferr)
	}

	_, ferr = f.Leave(Caller{SessionToken: token}, created.GameID)
	if ferr != nil {
		t.Fatalf("Leave: %v", ferr)
	}

	_, ferr = f.Status(created.GameID)
	if ferr == nil {
		t.Fatal("expected the emptied waiting lobby to have been deleted")
	}
}

func TestChangeNicknamePropagatesIntoActiveGames(t *testing.T) {
	f, rs := newTestFacade()
	rsID := ticTacToeID(t, rs)

	created, token, ferr := f.Create(Caller{}, rsID)
	if ferr != nil {
		t.Fatalf("Create: %v", ferr)
	}

	caller := Caller{SessionToken: token}
	if _, ferr := f.ChangeNickname(caller, "NewName"); ferr != nil {
		t.Fatalf("ChangeNickname: %v", ferr)
	}

	st, ferr := f.Status(created.GameID)
	if ferr != nil {
		t.Fatalf("Status: %v", ferr)
	}
	if st.PlayerNames[0] != "NewName" {
		t.Fatalf("player names = %v, want propagated rename", st.PlayerNames)
	}
}

func TestGetRuleSetsIncludesDefaults(t *testing.T) {
	f, _ := newTestFacade()
	list, ferr := f.GetRuleSets()
	if ferr != nil {
		t.Fatalf("GetRuleSets: %v", ferr)
	}
	if len(list) < 4 {
		t.Fatalf("expected the four preseeded rule sets, got %d", len(list))
	}
}

func TestListFiltersByMode(t *testing.T) {
	f, rs := newTestFacade()
	rsID := ticTacToeID(t, rs)

	_, creatorToken, ferr := f.Create(Caller{}, rsID)
	if ferr != nil {
		t.Fatalf("Create: %v", ferr)
	}
	seatedCaller := Caller{SessionToken: creatorToken}

	play, ferr := f.List(seatedCaller, "play", nil)
	if ferr != nil {
		t.Fatalf("List play: %v", ferr)
	}
	if len(play) != 1 {
		t.Fatalf("play games = %d, want 1", len(play))
	}

	// A different caller sees the same waiting lobby under "view" (it's
	// joinable), not "play" (they're not seated in it).
	outsider := Caller{}
	view, ferr := f.List(outsider, "view", nil)
	if ferr != nil {
		t.Fatalf("List view: %v", ferr)
	}
	if len(view) != 1 {
		t.Fatalf("view games = %d, want 1", len(view))
	}

	outsiderPlay, ferr := f.List(outsider, "play", nil)
	if ferr != nil {
		t.Fatalf("List play (outsider): %v", ferr)
	}
	if len(outsiderPlay) != 0 {
		t.Fatalf("outsider's play games = %d, want 0", len(outsiderPlay))
	}

	past, ferr := f.List(seatedCaller, "past", nil)
	if ferr != nil {
		t.Fatalf("List past: %v", ferr)
	}
	if len(past) != 0 {
		t.Fatalf("past games = %d, want 0", len(past))
	}

	if _, ferr := f.List(seatedCaller, "bogus", nil); ferr == nil {
		t.Fatal("expected an error for an unknown list mode")
	}
}
