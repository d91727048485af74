package postgres

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"

	"mnk-server/internal/player"
	"mnk-server/internal/storage"
)

// PlayerStorage implements internal/storage.PlayerStore against Postgres,
// using a WHERE version = $n update clause for optimistic concurrency.
type PlayerStorage struct {
	db *sql.DB
}

// NewPlayerStorage wraps an already-opened *sql.DB.
func NewPlayerStorage(db *sql.DB) *PlayerStorage {
	return &PlayerStorage{db: db}
}

// CreatePlayersTable creates the players table if it doesn't exist.
func (s *PlayerStorage) CreatePlayersTable(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS players (
			id            TEXT PRIMARY KEY,
			identity      TEXT NOT NULL,
			nickname      TEXT NOT NULL UNIQUE,
			password_hash TEXT NOT NULL DEFAULT '',
			wins          INTEGER NOT NULL DEFAULT 0,
			losses        INTEGER NOT NULL DEFAULT 0,
			draws         INTEGER NOT NULL DEFAULT 0,
			version       BIGINT NOT NULL DEFAULT 1
		)
	`)
	return err
}

func scanPlayer(row interface{ Scan(...any) error }) (player.Player, error) {
	var p player.Player
	err := row.Scan(&p.ID, &p.Identity, &p.Nickname, &p.PasswordHash, &p.Wins, &p.Losses, &p.Draws, &p.Version)
	return p, err
}

// Get retrieves a player by ID.
func (s *PlayerStorage) Get(id string) (player.Player, bool, error) {
	row := s.db.QueryRowContext(context.Background(), `
		SELECT id, identity, nickname, password_hash, wins, losses, draws, version
		FROM players WHERE id = $1`, id)
	p, err := scanPlayer(row)
	if err == sql.ErrNoRows {
		return player.Player{}, false, nil
	}
	if err != nil {
		return player.Player{}, false, err
	}
	return p, true, nil
}

// FindByIdentity retrieves a player by its identity string (a reserved
// identity or a registered player@mnk account).
func (s *PlayerStorage) FindByIdentity(ident string) (player.Player, bool, error) {
	row := s.db.QueryRowContext(context.Background(), `
		SELECT id, identity, nickname, password_hash, wins, losses, draws, version
		FROM players WHERE identity = $1 LIMIT 1`, ident)
	p, err := scanPlayer(row)
	if err == sql.ErrNoRows {
		return player.Player{}, false, nil
	}
	if err != nil {
		return player.Player{}, false, err
	}
	return p, true, nil
}

// FindByNickname retrieves a player by nickname.
func (s *PlayerStorage) FindByNickname(nickname string) (player.Player, bool, error) {
	row := s.db.QueryRowContext(context.Background(), `
		SELECT id, identity, nickname, password_hash, wins, losses, draws, version
		FROM players WHERE nickname = $1`, nickname)
	p, err := scanPlayer(row)
	if err == sql.ErrNoRows {
		return player.Player{}, false, nil
	}
	if err != nil {
		return player.Player{}, false, err
	}
	return p, true, nil
}

// Create inserts a new player, assigning it an ID.
func (s *PlayerStorage) Create(p player.Player) (player.Player, error) {
	row := s.db.QueryRowContext(context.Background(), `
		INSERT INTO players (id, identity, nickname, password_hash, wins, losses, draws, version)
		VALUES (gen_random_uuid()::text, $1, $2, $3, 0, 0, 0, 1)
		RETURNING id, identity, nickname, password_hash, wins, losses, draws, version`,
		p.Identity, p.Nickname, p.PasswordHash)
	return scanPlayer(row)
}

// Save updates an existing player, enforcing optimistic concurrency via a
// WHERE version = $n clause: if another writer committed first, this
// affects zero rows and Save reports ErrConcurrentUpdate.
func (s *PlayerStorage) Save(p player.Player) (player.Player, error) {
	row := s.db.QueryRowContext(context.Background(), `
		UPDATE players
		SET nickname = $1, password_hash = $2, wins = $3, losses = $4, draws = $5, version = version + 1
		WHERE id = $6 AND version = $7
		RETURNING id, identity, nickname, password_hash, wins, losses, draws, version`,
		p.Nickname, p.PasswordHash, p.Wins, p.Losses, p.Draws, p.ID, p.Version)

	updated, err := scanPlayer(row)
	if err == sql.ErrNoRows {
		return player.Player{}, storage.ErrConcurrentUpdate
	}
	if err != nil {
		return player.Player{}, fmt.Errorf("postgres: save player: %w", err)
	}
	return updated, nil
}
