package player

import (
	"testing"

	"mnk-server/internal/identity"
)

type memStore struct {
	byID       map[string]Player
	byNickname map[string]string
	seq        int
}

func newMemStore() *memStore {
	return &memStore{byID: map[string]Player{}, byNickname: map[string]string{}}
}

func (m *memStore) Get(id string) (Player, bool, error) {
	p, ok := m.byID[id]
	return p, ok, nil
}

func (m *memStore) FindByIdentity(ident string) (Player, bool, error) {
	for _, p := range m.byID {
		if p.Identity == ident {
			return p, true, nil
		}
	}
	return Player{}, false, nil
}

func (m *memStore) FindByNickname(nickname string) (Player, bool, error) {
	id, ok := m.byNickname[nickname]
	if !ok {
		return Player{}, false, nil
	}
	return m.byID[id], true, nil
}

func (m *memStore) Create(p Player) (Player, error) {
	m.seq++
	p.ID = string(rune('a' + m.seq))
	p.Version = 1
	m.byID[p.ID] = p
	m.byNickname[p.Nickname] = p.ID
	return p, nil
}

func (m *memStore) Save(p Player) (Player, error) {
	delete(m.byNickname, m.byID[p.ID].Nickname)
	p.Version++
	m.byID[p.ID] = p
	m.byNickname[p.Nickname] = p.ID
	return p, nil
}

type memSessions struct {
	byToken map[string]identity.Session
	seq     int
}

func newMemSessions() *memSessions {
	return &memSessions{byToken: map[string]identity.Session{}}
}

func (m *memSessions) Create(playerID string) (identity.Session, error) {
	m.seq++
	tok := string(rune('A' + m.seq))
	sess := identity.Session{Token: tok, PlayerID: playerID}
	m.byToken[tok] = sess
	return sess, nil
}

func (m *memSessions) Resolve(token string) (identity.Session, bool, error) {
	s, ok := m.byToken[token]
	return s, ok, nil
}

func (m *memSessions) Revoke(token string) error {
	delete(m.byToken, token)
	return nil
}

func TestValidateRejectsReservedNames(t *testing.T) {
	for _, name := range []string{"Anonymous", "CPU"} {
		if err := Validate(name); err == nil {
			t.Errorf("expected %q to be rejected as reserved", name)
		}
	}
}

func TestValidateCharsetAndLength(t *testing.T) {
	cases := []struct {
		name string
		ok   bool
	}{
		{"bob", true},
		{"Bob-Smith_99", true},
		{"1bob", false}, // must start with a letter
		{"ab", false},   // too short
		{"!!!", false},
		{"areallyreallylongnicknamethatistoolong", false},
	}
	for _, c := range cases {
		err := Validate(c.name)
		if c.ok && err != nil {
			t.Errorf("Validate(%q): unexpected error %v", c.name, err)
		}
		if !c.ok && err == nil {
			t.Errorf("Validate(%q): expected error, got nil", c.name)
		}
	}
}

func TestRegisterAndLogIn(t *testing.T) {
	r := New(newMemStore(), newMemSessions())

	p, token, err := r.Register("alice", "hunter2")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if token == "" {
		t.Fatal("expected a session token after registration")
	}
	if p.Identity != identity.Registered {
		t.Errorf("expected registered identity, got %q", p.Identity)
	}

	_, _, err = r.LogIn("alice", "wrong-password")
	if err == nil {
		t.Fatal("expected error for wrong password")
	}

	_, token2, err := r.LogIn("alice", "hunter2")
	if err != nil {
		t.Fatalf("LogIn: %v", err)
	}
	if token2 == "" {
		t.Fatal("expected a session token after login")
	}
}

func TestRegisterRejectsShortPassword(t *testing.T) {
	r := New(newMemStore(), newMemSessions())
	if _, _, err := r.Register("alice", "abc"); err == nil {
		t.Fatal("expected error for short password")
	}
}

func TestRegisterRejectsDuplicateNickname(t *testing.T) {
	r := New(newMemStore(), newMemSessions())
	if _, _, err := r.Register("alice", "hunter2"); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if _, _, err := r.Register("alice", "different1"); err == nil {
		t.Fatal("expected error for duplicate nickname")
	}
}

func TestGetCurrentCreatesAnonymousPlayer(t *testing.T) {
	r := New(newMemStore(), newMemSessions())

	p, token, err := r.GetCurrent("", "")
	if err != nil {
		t.Fatalf("GetCurrent: %v", err)
	}
	if !p.IsAnonymous() {
		t.Error("expected a fresh anonymous player")
	}
	if token == "" {
		t.Fatal("expected a session token for a new anonymous player")
	}

	p2, _, err := r.GetCurrent("", token)
	if err != nil {
		t.Fatalf("GetCurrent with session: %v", err)
	}
	if p2.ID != p.ID {
		t.Errorf("expected the same player to be resolved from its own session, got %q != %q", p2.ID, p.ID)
	}
}

func TestRenameValidatesAndPropagates(t *testing.T) {
	r := New(newMemStore(), newMemSessions())
	p, _, err := r.Register("alice", "hunter2")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	renamed, err := r.Rename(p, "alice2")
	if err != nil {
		t.Fatalf("Rename: %v", err)
	}
	if renamed.Nickname != "alice2" {
		t.Errorf("expected nickname alice2, got %q", renamed.Nickname)
	}

	if _, err := r.Rename(renamed, "CPU"); err == nil {
		t.Fatal("expected rename to a reserved nickname to fail")
	}
}
