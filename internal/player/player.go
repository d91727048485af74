// Package player implements the player registry: resolution of "the
// current caller" to a Player record, registration/login for accounts not
// backed by an external identity provider, and nickname validation.
package player

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"regexp"

	"mnk-server/internal/identity"
)

var nicknameRe = regexp.MustCompile(`^[A-Za-z]([\-\._ ]?[A-Za-z0-9]+)*$`)

// Player is a registered, anonymous, or CPU account.
type Player struct {
	ID           string
	Identity     string // one of identity.CPU, identity.Anonymous, or a registered player@mnk identity
	Nickname     string
	PasswordHash string // hex SHA-256, empty for anonymous/CPU players
	Wins         int
	Losses       int
	Draws        int
	Version      uint64
}

// DisplayName matches the original's "Nickname (wins)" convention.
func (p Player) DisplayName() string { return fmt.Sprintf("%s (%d)", p.Nickname, p.Wins) }

// IsAnonymous reports whether p is an unregistered, session-only player.
func (p Player) IsAnonymous() bool { return p.Identity == identity.Anonymous }

// IsCPU reports whether p is a CPU-controlled seat.
func (p Player) IsCPU() bool { return p.Identity == identity.CPU }

// Error kinds surfaced by the registry, matching §7's LogInError,
// RegisterError, and PlayerNameError.
var (
	ErrLogIn       = errors.New("player: log in failed")
	ErrRegister    = errors.New("player: registration failed")
	ErrPlayerName  = errors.New("player: invalid nickname")
)

// Store is the persistence collaborator the registry needs: lookup and
// creation of Player records keyed by identity or nickname, plus the
// optimistic-concurrency Save used everywhere else in the module.
type Store interface {
	Get(id string) (Player, bool, error)
	FindByIdentity(ident string) (Player, bool, error)
	FindByNickname(nickname string) (Player, bool, error)
	Create(p Player) (Player, error)
	Save(p Player) (Player, error)
}

// Registry resolves and manages Player records against a Store and a
// SessionStore.
type Registry struct {
	store    Store
	sessions identity.SessionStore
}

// New returns a Registry backed by the given collaborators.
func New(store Store, sessions identity.SessionStore) *Registry {
	return &Registry{store: store, sessions: sessions}
}

// GetCurrent resolves the caller of a facade command: an authenticated
// identity (if the caller supplies one), else an active session token,
// else a freshly minted anonymous player with a new session.
func (r *Registry) GetCurrent(authenticatedIdentity, sessionToken string) (Player, string, error) {
	if authenticatedIdentity != "" {
		p, err := r.FromIdentity(authenticatedIdentity, "")
		return p, "", err
	}

	if sessionToken != "" {
		sess, ok, err := r.sessions.Resolve(sessionToken)
		if err != nil {
			return Player{}, "", err
		}
		if ok {
			p, found, err := r.store.Get(sess.PlayerID)
			if err != nil {
				return Player{}, "", err
			}
			if found {
				return p, sessionToken, nil
			}
		}
	}

	p := Player{Identity: identity.Anonymous, Nickname: "Anonymous"}
	p, err := r.store.Create(p)
	if err != nil {
		return Player{}, "", err
	}
	sess, err := r.sessions.Create(p.ID)
	if err != nil {
		return Player{}, "", err
	}
	return p, sess.Token, nil
}

// FromIdentity returns the Player for ident, creating one with nickname (or
// a sensible default) if none exists yet.
func (r *Registry) FromIdentity(ident, nickname string) (Player, error) {
	p, found, err := r.store.FindByIdentity(ident)
	if err != nil {
		return Player{}, err
	}
	if found {
		return p, nil
	}
	if nickname == "" {
		nickname = "Anonymous"
	}
	return r.store.Create(Player{Identity: ident, Nickname: nickname})
}

// LogIn resolves a registered player by nickname and password, starting a
// new session on success.
func (r *Registry) LogIn(nickname, password string) (Player, string, error) {
	p, found, err := r.store.FindByNickname(nickname)
	if err != nil {
		return Player{}, "", err
	}
	if !found {
		return Player{}, "", fmt.Errorf("%w: no player named %q", ErrLogIn, nickname)
	}
	if p.Identity != identity.Registered {
		return Player{}, "", fmt.Errorf("%w: cannot log in as that user", ErrLogIn)
	}
	if hashPassword(password) != p.PasswordHash {
		return Player{}, "", fmt.Errorf("%w: invalid password", ErrLogIn)
	}
	sess, err := r.sessions.Create(p.ID)
	if err != nil {
		return Player{}, "", err
	}
	return p, sess.Token, nil
}

// Register creates a new registered player and starts a session.
func (r *Registry) Register(nickname, password string) (Player, string, error) {
	if err := Validate(nickname); err != nil {
		return Player{}, "", fmt.Errorf("%w: %v", ErrRegister, err)
	}
	if len(password) < 4 {
		return Player{}, "", fmt.Errorf("%w: password must be at least 4 characters", ErrRegister)
	}
	if _, found, err := r.store.FindByNickname(nickname); err != nil {
		return Player{}, "", err
	} else if found {
		return Player{}, "", fmt.Errorf("%w: %v", ErrRegister, errNicknameTaken(nickname))
	}

	p, err := r.store.Create(Player{
		Identity:     identity.Registered,
		Nickname:     nickname,
		PasswordHash: hashPassword(password),
	})
	if err != nil {
		return Player{}, "", err
	}
	sess, err := r.sessions.Create(p.ID)
	if err != nil {
		return Player{}, "", err
	}
	return p, sess.Token, nil
}

// Rename changes a player's nickname, validating it first unless it's the
// no-op "Anonymous" rename for an anonymous player.
func (r *Registry) Rename(p Player, nickname string) (Player, error) {
	if nickname == p.Nickname {
		return p, nil
	}
	if !(nickname == "Anonymous" && p.IsAnonymous()) {
		if err := Validate(nickname); err != nil {
			return Player{}, err
		}
		if _, found, err := r.store.FindByNickname(nickname); err != nil {
			return Player{}, err
		} else if found {
			return Player{}, errNicknameTaken(nickname)
		}
	}
	p.Nickname = nickname
	return r.store.Save(p)
}

// Validate checks a nickname against the reserved-word list, the charset
// rule, and the length bounds. It does not check uniqueness — callers that
// need that (Register, Rename) check it against their Store separately,
// since uniqueness is a storage-layer concern, not a pure validation rule.
func Validate(nickname string) error {
	if nickname == "Anonymous" || nickname == "CPU" {
		return fmt.Errorf("%w: %q is a reserved nickname", ErrPlayerName, nickname)
	}
	if !nicknameRe.MatchString(nickname) {
		return fmt.Errorf("%w: nickname must start with a letter, followed by "+
			"letters/digits optionally separated by dashes, periods, "+
			"underscores, or spaces", ErrPlayerName)
	}
	if len(nickname) < 3 {
		return fmt.Errorf("%w: nickname must be at least 3 characters", ErrPlayerName)
	}
	if len(nickname) > 20 {
		return fmt.Errorf("%w: nickname must be at most 20 characters", ErrPlayerName)
	}
	return nil
}

func errNicknameTaken(nickname string) error {
	return fmt.Errorf("%w: nickname %q is already in use", ErrPlayerName, nickname)
}

func hashPassword(password string) string {
	sum := sha256.Sum256([]byte(password))
	return hex.EncodeToString(sum[:])
}
