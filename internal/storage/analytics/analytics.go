// Package analytics records completed-game facts to ClickHouse: an
// append-only sink for offline analysis, outside the §3 data-model
// invariants that bind Game and Player. The facade's list(mode="past")
// command reads the game store, not this sink.
package analytics

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
)

// Config holds the ClickHouse connection parameters.
type Config struct {
	Host         string
	Port         int
	Database     string
	Username     string
	Password     string
	Secure       bool
	MaxOpenConns int
	MaxIdleConns int
	ConnTimeout  time.Duration
}

// GameCompletedEvent is one row of the append-only completed-games table.
type GameCompletedEvent struct {
	GameID      string    `ch:"game_id"`
	RuleSetID   string    `ch:"rule_set_id"`
	RuleSetName string    `ch:"rule_set_name"`
	Outcome     string    `ch:"outcome"` // "win", "draw", "aborted"
	WinnerID    string    `ch:"winner_id"`
	NumPlayers  int       `ch:"num_players"`
	TurnCount   int       `ch:"turn_count"`
	BoardM      int       `ch:"board_m"`
	BoardN      int       `ch:"board_n"`
	StartedAt   time.Time `ch:"started_at"`
	EndedAt     time.Time `ch:"ended_at"`
}

// Store writes completed-game facts to ClickHouse.
type Store struct {
	conn clickhouse.Conn
}

// NewStore dials ClickHouse and ensures the completed_games table exists.
func NewStore(ctx context.Context, cfg Config) (*Store, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		Settings: clickhouse.Settings{
			"max_execution_time": 60,
		},
		TLS: &tls.Config{InsecureSkipVerify: !cfg.Secure},
	})
	if err != nil {
		return nil, fmt.Errorf("analytics: failed to connect to ClickHouse: %w", err)
	}
	if err := conn.Ping(ctx); err != nil {
		return nil, fmt.Errorf("analytics: failed to ping ClickHouse: %w", err)
	}

	s := &Store{conn: conn}
	if err := s.createTable(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) createTable(ctx context.Context) error {
	return s.conn.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS completed_games (
			game_id       String,
			rule_set_id   String,
			rule_set_name String,
			outcome       String,
			winner_id     String,
			num_players   Int32,
			turn_count    Int32,
			board_m       Int32,
			board_n       Int32,
			started_at    DateTime,
			ended_at      DateTime
		) ENGINE = MergeTree()
		ORDER BY (ended_at, game_id)
	`)
}

// Record appends one completed-game fact.
func (s *Store) Record(ctx context.Context, evt GameCompletedEvent) error {
	return s.conn.Exec(ctx, `
		INSERT INTO completed_games
			(game_id, rule_set_id, rule_set_name, outcome, winner_id,
			 num_players, turn_count, board_m, board_n, started_at, ended_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		evt.GameID, evt.RuleSetID, evt.RuleSetName, evt.Outcome, evt.WinnerID,
		evt.NumPlayers, evt.TurnCount, evt.BoardM, evt.BoardN, evt.StartedAt, evt.EndedAt,
	)
}

// RecentByRuleSet returns the most recent completed games for a rule set,
// bounded by limit, most recent first.
func (s *Store) RecentByRuleSet(ctx context.Context, ruleSetID string, limit int) ([]GameCompletedEvent, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT game_id, rule_set_id, rule_set_name, outcome, winner_id,
		       num_players, turn_count, board_m, board_n, started_at, ended_at
		FROM completed_games
		WHERE rule_set_id = ?
		ORDER BY ended_at DESC
		LIMIT ?`, ruleSetID, limit)
	if err != nil {
		return nil, fmt.Errorf("analytics: query failed: %w", err)
	}
	defer rows.Close()

	var out []GameCompletedEvent
	for rows.Next() {
		var evt GameCompletedEvent
		if err := rows.Scan(
			&evt.GameID, &evt.RuleSetID, &evt.RuleSetName, &evt.Outcome, &evt.WinnerID,
			&evt.NumPlayers, &evt.TurnCount, &evt.BoardM, &evt.BoardN, &evt.StartedAt, &evt.EndedAt,
		); err != nil {
			return nil, fmt.Errorf("analytics: scan failed: %w", err)
		}
		out = append(out, evt)
	}
	return out, rows.Err()
}

// Close releases the underlying connection.
func (s *Store) Close() error { return s.conn.Close() }
