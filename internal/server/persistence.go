package server

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"arena-server/internal/arena"
)

// MatchRecord is a stored match result.
type MatchRecord struct {
	ID         int64            `json:"id"`
	FileName   string           `json:"fileName"`
	StartedAt  time.Time        `json:"startedAt"`
	EndedAt    time.Time        `json:"endedAt"`
	GameLength [2]int           `json:"gameLength"`
	Players    []arena.Standing `json:"players"`
}

// StatsRepository saves match results to SQL. It is also a StatsSink.
type StatsRepository struct {
	db       *sql.DB
	postgres bool
}

// NewStatsRepository wraps db. dialect is "postgres" or "sqlite3".
func NewStatsRepository(db *sql.DB, dialect string) *StatsRepository {
	return &StatsRepository{
		db:       db,
		postgres: dialect == "postgres",
	}
}

func (r *StatsRepository) Name() string { return "database" }

func (r *StatsRepository) Store(ctx context.Context, rec StatsRecord) error {
	_, err := r.SaveMatch(ctx, rec.Name, rec.Summary)
	return err
}

// SaveMatch inserts the match and its ranked players in one transaction.
func (r *StatsRepository) SaveMatch(ctx context.Context, fileName string, s arena.Summary) (int64, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var id int64
	err = tx.QueryRowContext(ctx, r.rebind(`
		INSERT INTO matches (file_name, started_at, ended_at, minutes, seconds)
		VALUES (?, ?, ?, ?, ?)
		RETURNING id
	`), fileName, s.StartedAt.UTC(), s.EndedAt.UTC(), s.GameLength[0], s.GameLength[1]).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to save match %s: %w", fileName, err)
	}

	for place, p := range s.Players {
		_, err := tx.ExecContext(ctx, r.rebind(`
			INSERT INTO match_players (match_id, place, username, colour)
			VALUES (?, ?, ?, ?)
		`), id, place, p.UserName, p.Colour)
		if err != nil {
			return 0, fmt.Errorf("failed to save player %s of match %d: %w", p.UserName, id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit match %d: %w", id, err)
	}
	return id, nil
}

// RecentMatches returns up to limit matches, newest first.
func (r *StatsRepository) RecentMatches(ctx context.Context, limit int) ([]MatchRecord, error) {
	rows, err := r.db.QueryContext(ctx, r.rebind(`
		SELECT id, file_name, started_at, ended_at, minutes, seconds
		FROM matches
		ORDER BY id DESC
		LIMIT ?
	`), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query matches: %w", err)
	}
	defer rows.Close()

	var matches []MatchRecord
	for rows.Next() {
		var m MatchRecord
		if err := rows.Scan(&m.ID, &m.FileName, &m.StartedAt, &m.EndedAt, &m.GameLength[0], &m.GameLength[1]); err != nil {
			return nil, fmt.Errorf("failed to scan match row: %w", err)
		}
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating match rows: %w", err)
	}

	for i := range matches {
		players, err := r.players(ctx, matches[i].ID)
		if err != nil {
			return nil, err
		}
		matches[i].Players = players
	}
	return matches, nil
}

func (r *StatsRepository) players(ctx context.Context, matchID int64) ([]arena.Standing, error) {
	rows, err := r.db.QueryContext(ctx, r.rebind(`
		SELECT username, colour FROM match_players
		WHERE match_id = ?
		ORDER BY place
	`), matchID)
	if err != nil {
		return nil, fmt.Errorf("failed to query players of match %d: %w", matchID, err)
	}
	defer rows.Close()

	players := []arena.Standing{}
	for rows.Next() {
		var p arena.Standing
		if err := rows.Scan(&p.UserName, &p.Colour); err != nil {
			return nil, fmt.Errorf("failed to scan player row: %w", err)
		}
		players = append(players, p)
	}
	return players, rows.Err()
}

// rebind turns ? placeholders into $n for postgres.
func (r *StatsRepository) rebind(query string) string {
	if !r.postgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, c := range query {
		if c == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(c)
	}
	return b.String()
}
