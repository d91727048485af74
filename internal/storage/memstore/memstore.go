// Package memstore is the in-memory reference implementation of the
// storage collaborators: per-entity mutex-guarded maps enforcing the same
// optimistic-concurrency contract a production store would.
package memstore

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"mnk-server/internal/game"
	"mnk-server/internal/identity"
	"mnk-server/internal/player"
	"mnk-server/internal/storage"
	"mnk-server/pkg/rules"
)

// Games is an in-memory GameStore.
type Games struct {
	mu   sync.RWMutex
	byID map[string]*game.Game
}

// NewGames returns an empty Games store.
func NewGames() *Games { return &Games{byID: map[string]*game.Game{}} }

func (s *Games) Get(id string) (*game.Game, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.byID[id]
	return g, ok, nil
}

func (s *Games) Create(g *game.Game) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := g.GetState().ID
	if _, exists := s.byID[id]; exists {
		return fmt.Errorf("memstore: game %q already exists", id)
	}
	s.byID[id] = g
	return nil
}

func (s *Games) Save(g *game.Game) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := g.GetState().ID
	existing, ok := s.byID[id]
	if !ok {
		return storage.ErrNotFound
	}
	// Games is the source of truth for the pointer once Create'd: Get
	// returns the same *Game, so a caller's mutations (via Move, AddPlayer,
	// etc.) are already visible here. Save only needs to reject a pointer
	// that isn't the one on file — e.g. a stale copy reconstructed from a
	// different backend.
	if existing != g {
		return storage.ErrConcurrentUpdate
	}
	return nil
}

func (s *Games) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[id]; !ok {
		return storage.ErrNotFound
	}
	delete(s.byID, id)
	return nil
}

func (s *Games) List(states []game.State) ([]*game.Game, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	want := make(map[game.State]bool, len(states))
	for _, st := range states {
		want[st] = true
	}

	out := make([]*game.Game, 0, len(s.byID))
	for _, g := range s.byID {
		if want[g.GetState().State] {
			out = append(out, g)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].GetState().LastUpdate.After(out[j].GetState().LastUpdate)
	})
	return out, nil
}

// Sweep aborts a playing game or deletes a waiting lobby that has gone
// stale, per the 6h/48h inactivity policy, handling at most one stale game
// per call. It runs at most once per call to List in the facade (the facade
// calls Sweep immediately before List).
func (s *Games) Sweep(now time.Time) {
	s.mu.Lock()
	stale := make([]*game.Game, 0, 1)
	for _, g := range s.byID {
		if g.Stale(now) {
			stale = append(stale, g)
			break
		}
	}
	s.mu.Unlock()

	for _, g := range stale {
		st := g.GetState()
		if st.State == game.StateWaiting {
			s.Delete(st.ID)
			continue
		}
		g.Abort()
	}
}

// Players is an in-memory PlayerStore.
type Players struct {
	mu         sync.RWMutex
	byID       map[string]player.Player
	byNickname map[string]string
	seq        uint64
}

// NewPlayers returns an empty Players store.
func NewPlayers() *Players {
	return &Players{byID: map[string]player.Player{}, byNickname: map[string]string{}}
}

func (s *Players) Get(id string) (player.Player, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.byID[id]
	return p, ok, nil
}

func (s *Players) FindByIdentity(ident string) (player.Player, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.byID {
		if p.Identity == ident {
			return p, true, nil
		}
	}
	return player.Player{}, false, nil
}

func (s *Players) FindByNickname(nickname string) (player.Player, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byNickname[nickname]
	if !ok {
		return player.Player{}, false, nil
	}
	return s.byID[id], true, nil
}

func (s *Players) Create(p player.Player) (player.Player, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	p.ID = fmt.Sprintf("p%d", s.seq)
	p.Version = 1
	s.byID[p.ID] = p
	if p.Nickname != "" {
		s.byNickname[p.Nickname] = p.ID
	}
	return p, nil
}

func (s *Players) Save(p player.Player) (player.Player, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.byID[p.ID]
	if !ok {
		return player.Player{}, storage.ErrNotFound
	}
	if p.Version != 0 && p.Version < existing.Version {
		return player.Player{}, storage.ErrConcurrentUpdate
	}
	delete(s.byNickname, existing.Nickname)
	p.Version = existing.Version + 1
	s.byID[p.ID] = p
	if p.Nickname != "" {
		s.byNickname[p.Nickname] = p.ID
	}
	return p, nil
}

// RuleSets is an in-memory RuleSetStore.
type RuleSets struct {
	mu   sync.RWMutex
	byID map[string]rules.RuleSet
	seq  uint64
}

// NewRuleSets returns a RuleSetStore pre-seeded with the default rule
// sets.
func NewRuleSets() *RuleSets {
	s := &RuleSets{byID: map[string]rules.RuleSet{}}
	for _, rs := range rules.DefaultRuleSets() {
		s.seq++
		rs.ID = fmt.Sprintf("rs%d", s.seq)
		s.byID[rs.ID] = rs
	}
	return s
}

func (s *RuleSets) Get(id string) (rules.RuleSet, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rs, ok := s.byID[id]
	return rs, ok, nil
}

func (s *RuleSets) List() ([]rules.RuleSet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]rules.RuleSet, 0, len(s.byID))
	for _, rs := range s.byID {
		out = append(out, rs)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *RuleSets) Create(rs rules.RuleSet) (rules.RuleSet, error) {
	if err := rs.Validate(); err != nil {
		return rules.RuleSet{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	rs.ID = fmt.Sprintf("rs%d", s.seq)
	s.byID[rs.ID] = rs
	return rs, nil
}

func (s *RuleSets) Save(rs rules.RuleSet) (rules.RuleSet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[rs.ID]; !ok {
		return rules.RuleSet{}, storage.ErrNotFound
	}
	s.byID[rs.ID] = rs
	return rs, nil
}

// Sessions is an in-memory identity.SessionStore.
type Sessions struct {
	mu      sync.Mutex
	byToken map[string]identity.Session
	seq     uint64
}

// NewSessions returns an empty Sessions store.
func NewSessions() *Sessions { return &Sessions{byToken: map[string]identity.Session{}} }

func (s *Sessions) Create(playerID string) (identity.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	now := time.Now()
	sess := identity.Session{
		Token:     fmt.Sprintf("sess-%d", s.seq),
		PlayerID:  playerID,
		IssuedAt:  now,
		ExpiresAt: now.Add(identity.SessionTTL),
	}
	s.byToken[sess.Token] = sess
	return sess, nil
}

func (s *Sessions) Resolve(token string) (identity.Session, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.byToken[token]
	if !ok {
		return identity.Session{}, false, nil
	}
	if sess.Expired(time.Now()) {
		delete(s.byToken, token)
		return identity.Session{}, false, nil
	}
	return sess, true, nil
}

func (s *Sessions) Revoke(token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.byToken, token)
	return nil
}
