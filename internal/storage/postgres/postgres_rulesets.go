package postgres

import (
	"context"
	"database/sql"

	_ "github.com/lib/pq"

	"mnk-server/pkg/rules"
)

// RuleSetStorage implements internal/storage.RuleSetStore against
// Postgres.
type RuleSetStorage struct {
	db *sql.DB
}

// NewRuleSetStorage wraps an already-opened *sql.DB.
func NewRuleSetStorage(db *sql.DB) *RuleSetStorage {
	return &RuleSetStorage{db: db}
}

// CreateRuleSetsTable creates the rule_sets table if it doesn't exist.
func (s *RuleSetStorage) CreateRuleSetsTable(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS rule_sets (
			id          TEXT PRIMARY KEY,
			name        TEXT NOT NULL,
			num_players INTEGER NOT NULL,
			m           INTEGER NOT NULL,
			n           INTEGER NOT NULL,
			k           INTEGER NOT NULL,
			p           INTEGER NOT NULL,
			q           INTEGER NOT NULL,
			exact       BOOLEAN NOT NULL DEFAULT FALSE,
			num_games   INTEGER NOT NULL DEFAULT 0
		)
	`)
	return err
}

func scanRuleSet(row *sql.Row) (rules.RuleSet, error) {
	var rs rules.RuleSet
	err := row.Scan(&rs.ID, &rs.Name, &rs.NumPlayers, &rs.M, &rs.N, &rs.K, &rs.P, &rs.Q, &rs.Exact, &rs.NumGames)
	return rs, err
}

// Get retrieves a rule set by ID.
func (s *RuleSetStorage) Get(id string) (rules.RuleSet, bool, error) {
	row := s.db.QueryRowContext(context.Background(), `
		SELECT id, name, num_players, m, n, k, p, q, exact, num_games
		FROM rule_sets WHERE id = $1`, id)
	rs, err := scanRuleSet(row)
	if err == sql.ErrNoRows {
		return rules.RuleSet{}, false, nil
	}
	if err != nil {
		return rules.RuleSet{}, false, err
	}
	return rs, true, nil
}

// List returns every rule set, ordered by ID.
func (s *RuleSetStorage) List() ([]rules.RuleSet, error) {
	rows, err := s.db.QueryContext(context.Background(), `
		SELECT id, name, num_players, m, n, k, p, q, exact, num_games
		FROM rule_sets ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []rules.RuleSet
	for rows.Next() {
		var rs rules.RuleSet
		if err := rows.Scan(&rs.ID, &rs.Name, &rs.NumPlayers, &rs.M, &rs.N, &rs.K, &rs.P, &rs.Q, &rs.Exact, &rs.NumGames); err != nil {
			return nil, err
		}
		out = append(out, rs)
	}
	return out, rows.Err()
}

// Create inserts a new rule set after validating it.
func (s *RuleSetStorage) Create(rs rules.RuleSet) (rules.RuleSet, error) {
	if err := rs.Validate(); err != nil {
		return rules.RuleSet{}, err
	}
	row := s.db.QueryRowContext(context.Background(), `
		INSERT INTO rule_sets (id, name, num_players, m, n, k, p, q, exact, num_games)
		VALUES (gen_random_uuid()::text, $1, $2, $3, $4, $5, $6, $7, $8, 0)
		RETURNING id, name, num_players, m, n, k, p, q, exact, num_games`,
		rs.Name, rs.NumPlayers, rs.M, rs.N, rs.K, rs.P, rs.Q, rs.Exact)
	return scanRuleSet(row)
}

// Save persists NumGames updates (the only field that changes post-
// creation, via the move protocol's terminal-state bookkeeping).
func (s *RuleSetStorage) Save(rs rules.RuleSet) (rules.RuleSet, error) {
	row := s.db.QueryRowContext(context.Background(), `
		UPDATE rule_sets SET num_games = $1 WHERE id = $2
		RETURNING id, name, num_players, m, n, k, p, q, exact, num_games`,
		rs.NumGames, rs.ID)
	return scanRuleSet(row)
}
