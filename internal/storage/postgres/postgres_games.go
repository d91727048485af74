package postgres

import (
	"context"
	"database/sql"
	"strconv"
	"strings"

	_ "github.com/lib/pq"

	"mnk-server/internal/game"
	"mnk-server/internal/storage"
	"mnk-server/pkg/board"
	"mnk-server/pkg/rules"
)

// GameStorage implements internal/storage.GameStore against Postgres. The
// board and rule set are stored as columns on the game row itself rather
// than normalized out, since a Game is never queried by rule-set
// parameters — only ever fetched whole by ID or listed by state.
type GameStorage struct {
	db *sql.DB
}

// NewGameStorage wraps an already-opened *sql.DB.
func NewGameStorage(db *sql.DB) *GameStorage {
	return &GameStorage{db: db}
}

// CreateGamesTable creates the games table if it doesn't exist.
func (s *GameStorage) CreateGamesTable(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS games (
			id             TEXT PRIMARY KEY,
			rule_set_id    TEXT NOT NULL,
			rule_set_name  TEXT NOT NULL,
			num_players    INTEGER NOT NULL,
			board_m        INTEGER NOT NULL,
			board_n        INTEGER NOT NULL,
			board_k        INTEGER NOT NULL,
			board_p        INTEGER NOT NULL,
			board_q        INTEGER NOT NULL,
			board_exact    BOOLEAN NOT NULL,
			players        TEXT NOT NULL,
			player_names   TEXT NOT NULL,
			state          TEXT NOT NULL,
			current_player INTEGER NOT NULL,
			turn           INTEGER NOT NULL,
			board_data     TEXT NOT NULL,
			added          TIMESTAMPTZ NOT NULL,
			last_update    TIMESTAMPTZ NOT NULL,
			version        BIGINT NOT NULL
		)
	`)
	return err
}

const listSep = "\x1f" // unit separator, safe since nicknames/IDs never contain it

func joinList(items []string) string { return strings.Join(items, listSep) }

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, listSep)
}

func row(s Snapshotter) (game.Snapshot, error) {
	var rs rules.RuleSet
	var playersStr, namesStr, boardStr string
	var snap game.Snapshot
	err := s.Scan(
		&snap.ID, &rs.ID, &rs.Name, &rs.NumPlayers, &rs.M, &rs.N, &rs.K, &rs.P, &rs.Q, &rs.Exact,
		&playersStr, &namesStr, &snap.State, &snap.CurrentPlayer, &snap.Turn, &boardStr,
		&snap.Added, &snap.LastUpdate, &snap.Version,
	)
	if err != nil {
		return game.Snapshot{}, err
	}
	snap.RuleSet = rs
	snap.Players = splitList(playersStr)
	snap.PlayerNames = splitList(namesStr)
	b, unpackErr := board.Unpack(splitList(boardStr), rs.M, rs.N)
	if unpackErr != nil {
		return game.Snapshot{}, unpackErr
	}
	snap.Board = b
	return snap, nil
}

// Snapshotter is satisfied by *sql.Row and *sql.Rows.
type Snapshotter interface {
	Scan(dest ...any) error
}

const selectColumns = `id, rule_set_id, rule_set_name, num_players, board_m, board_n, board_k, board_p, board_q, board_exact,
	players, player_names, state, current_player, turn, board_data, added, last_update, version`

// Get retrieves a game by ID.
func (s *GameStorage) Get(id string) (*game.Game, bool, error) {
	r := s.db.QueryRowContext(context.Background(), `SELECT `+selectColumns+` FROM games WHERE id = $1`, id)
	snap, err := row(r)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return game.FromSnapshot(snap), true, nil
}

// Create inserts a new game row.
func (s *GameStorage) Create(g *game.Game) error {
	snap := g.GetState()
	packed := board.Pack(snap.Board)
	_, err := s.db.ExecContext(context.Background(), `
		INSERT INTO games (id, rule_set_id, rule_set_name, num_players, board_m, board_n, board_k, board_p, board_q, board_exact,
			players, player_names, state, current_player, turn, board_data, added, last_update, version)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)`,
		snap.ID, snap.RuleSet.ID, snap.RuleSet.Name, snap.RuleSet.NumPlayers,
		snap.RuleSet.M, snap.RuleSet.N, snap.RuleSet.K, snap.RuleSet.P, snap.RuleSet.Q, snap.RuleSet.Exact,
		joinList(snap.Players), joinList(snap.PlayerNames), string(snap.State), snap.CurrentPlayer, snap.Turn,
		joinList(packed), snap.Added, snap.LastUpdate, snap.Version,
	)
	return err
}

// Save writes back the in-memory mutations already applied to g, using a
// WHERE version = $n clause so a write racing another Save on the same row
// affects zero rows and reports ErrConcurrentUpdate.
func (s *GameStorage) Save(g *game.Game) error {
	snap := g.GetState()
	packed := board.Pack(snap.Board)
	result, err := s.db.ExecContext(context.Background(), `
		UPDATE games
		SET players = $1, player_names = $2, state = $3, current_player = $4, turn = $5,
		    board_data = $6, last_update = $7, version = $8
		WHERE id = $9 AND version = $8 - 1`,
		joinList(snap.Players), joinList(snap.PlayerNames), string(snap.State), snap.CurrentPlayer, snap.Turn,
		joinList(packed), snap.LastUpdate, snap.Version, snap.ID,
	)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return storage.ErrConcurrentUpdate
	}
	return nil
}

// Delete removes a game row.
func (s *GameStorage) Delete(id string) error {
	_, err := s.db.ExecContext(context.Background(), `DELETE FROM games WHERE id = $1`, id)
	return err
}

// List returns games in the given states, most recently updated first.
func (s *GameStorage) List(states []game.State) ([]*game.Game, error) {
	placeholders := make([]string, len(states))
	args := make([]any, len(states))
	for i, st := range states {
		placeholders[i] = placeholderN(i + 1)
		args[i] = string(st)
	}
	query := `SELECT ` + selectColumns + ` FROM games WHERE state IN (` + strings.Join(placeholders, ",") + `) ORDER BY last_update DESC`

	rows, err := s.db.QueryContext(context.Background(), query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*game.Game
	for rows.Next() {
		snap, err := row(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, game.FromSnapshot(snap))
	}
	return out, rows.Err()
}

func placeholderN(n int) string {
	return "$" + strconv.Itoa(n)
}
