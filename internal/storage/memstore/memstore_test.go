package memstore

import (
	"testing"
	"time"

	"mnk-server/internal/game"
	"mnk-server/internal/player"
	"mnk-server/pkg/rules"
)

func ticTacToe() rules.RuleSet {
	return rules.RuleSet{Name: "Tic-tac-toe", NumPlayers: 2, M: 3, N: 3, K: 3, P: 1, Q: 1}
}

func TestGamesCreateGetSave(t *testing.T) {
	store := NewGames()
	g := game.New("g1", ticTacToe())

	if err := store.Create(g); err != nil {
		t.Fatalf("Create: %v", err)
	}
	got, ok, err := store.Get("g1")
	if err != nil || !ok {
		t.Fatalf("Get: ok=%v err=%v", ok, err)
	}
	if got != g {
		t.Fatal("expected Get to return the same pointer as Create")
	}

	g.AddPlayer("A", "Alice")
	if err := store.Save(g); err != nil {
		t.Fatalf("Save: %v", err)
	}
}

func TestGamesListFiltersByState(t *testing.T) {
	store := NewGames()
	waiting := game.New("g1", ticTacToe())
	store.Create(waiting)

	playing := game.New("g2", ticTacToe())
	playing.AddPlayer("A", "Alice")
	playing.AddPlayer("B", "Bob")
	store.Create(playing)

	got, err := store.List([]game.State{game.StateWaiting})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(got) != 1 || got[0].GetState().ID != "g1" {
		t.Fatalf("expected only g1 in waiting list, got %+v", got)
	}
}

func TestGamesSweepAbortsStalePlaying(t *testing.T) {
	store := NewGames()
	g := game.New("g1", ticTacToe())
	g.AddPlayer("A", "Alice")
	g.AddPlayer("B", "Bob")
	store.Create(g)

	store.Sweep(time.Now().Add(game.PlayingTimeout + time.Hour))

	if g.GetState().State != game.StateAborted {
		t.Fatalf("expected stale playing game to be aborted, got %s", g.GetState().State)
	}
}

func TestGamesSweepDeletesStaleWaiting(t *testing.T) {
	store := NewGames()
	g := game.New("g1", ticTacToe())
	store.Create(g)

	store.Sweep(time.Now().Add(game.WaitingTimeout + time.Hour))

	if _, ok, _ := store.Get("g1"); ok {
		t.Fatal("expected stale waiting game to be removed")
	}
}

func TestPlayersCreateFindSave(t *testing.T) {
	store := NewPlayers()
	p, err := store.Create(player.Player{Identity: "player@mnk", Nickname: "alice"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if p.Version != 1 {
		t.Errorf("expected version 1 on create, got %d", p.Version)
	}

	found, ok, err := store.FindByNickname("alice")
	if err != nil || !ok {
		t.Fatalf("FindByNickname: ok=%v err=%v", ok, err)
	}
	if found.ID != p.ID {
		t.Errorf("expected to find the created player, got %+v", found)
	}

	found.Wins = 1
	saved, err := store.Save(found)
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if saved.Version != 2 {
		t.Errorf("expected version to advance to 2, got %d", saved.Version)
	}
}

func TestRuleSetsPreseeded(t *testing.T) {
	store := NewRuleSets()
	list, err := store.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 4 {
		t.Fatalf("expected 4 preseeded rule sets, got %d", len(list))
	}
}

func TestRuleSetsCreateValidates(t *testing.T) {
	store := NewRuleSets()
	_, err := store.Create(rules.RuleSet{Name: "bad", NumPlayers: 1, M: 3, N: 3, K: 3, P: 1, Q: 1})
	if err == nil {
		t.Fatal("expected validation error for numPlayers=1")
	}
}

func TestSessionsCreateResolveRevoke(t *testing.T) {
	store := NewSessions()
	sess, err := store.Create("p1")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, ok, err := store.Resolve(sess.Token)
	if err != nil || !ok {
		t.Fatalf("Resolve: ok=%v err=%v", ok, err)
	}
	if got.PlayerID != "p1" {
		t.Errorf("expected PlayerID p1, got %q", got.PlayerID)
	}

	store.Revoke(sess.Token)
	if _, ok, _ := store.Resolve(sess.Token); ok {
		t.Fatal("expected revoked session to no longer resolve")
	}
}
