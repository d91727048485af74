// Package storage defines the persistence collaborators the core depends
// on: Game, Player, and RuleSet stores with optimistic concurrency, plus a
// read model for the "past games" listing. The core ships a reference
// in-memory implementation (internal/storage/memstore) and a
// production-shaped Postgres one (internal/storage/postgres); either
// satisfies these interfaces.
package storage

import (
	"errors"

	"mnk-server/internal/game"
	"mnk-server/internal/player"
	"mnk-server/pkg/rules"
)

// ErrConcurrentUpdate is returned by a Save when the caller's Version is
// stale: another writer committed first. This is the storage-layer face
// of the ConcurrentUpdate error kind in the command error taxonomy.
var ErrConcurrentUpdate = errors.New("storage: concurrent update")

// ErrNotFound is returned by a lookup that found nothing.
var ErrNotFound = errors.New("storage: not found")

// GameStore persists Game records.
type GameStore interface {
	Get(id string) (*game.Game, bool, error)
	Create(g *game.Game) error
	// Save validates g's Version against the stored copy and, on match,
	// persists the in-memory mutation already applied to g (Game's own
	// methods hold the lock and bump the version; Save just commits it).
	// Returns ErrConcurrentUpdate on a version mismatch.
	Save(g *game.Game) error
	Delete(id string) error
	// List returns games in the given lifecycle state, most recently
	// updated first. mode "past" (win/draw/aborted) backs the facade's
	// list(mode="past") command.
	List(states []game.State) ([]*game.Game, error)
}

// PlayerStore persists Player records, satisfying internal/player.Store
// (which already includes the by-ID Get the facade uses for score
// updates).
type PlayerStore interface {
	player.Store
}

// RuleSetStore persists RuleSet records.
type RuleSetStore interface {
	Get(id string) (rules.RuleSet, bool, error)
	List() ([]rules.RuleSet, error)
	Create(rs rules.RuleSet) (rules.RuleSet, error)
	Save(rs rules.RuleSet) (rules.RuleSet, error)
}
