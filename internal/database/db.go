package database

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog/log"

	"github.com/leonfresh/pawnsquare-sub003/internal/model"
)

// Store keeps the all-time play history. Live room state is never written
// here; only finished connection spans are, so a process restart loses rooms
// but keeps the historical ranking.
type Store struct {
	db *sql.DB
}

func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite store: %w", err)
	}

	sqlStmt := `CREATE TABLE IF NOT EXISTS sessions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		room_id TEXT,
		player_name TEXT,
		moves INTEGER,
		play_ms INTEGER,
		ended_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);`
	if _, err = db.Exec(sqlStmt); err != nil {
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() {
	if s.db != nil {
		s.db.Close()
	}
}

// RecordSession writes one finished connection span for a player.
func (s *Store) RecordSession(roomID, playerName string, moves int, playMs int64) {
	if moves < 0 {
		moves = 0
	}
	if playMs < 0 {
		playMs = 0
	}
	_, err := s.db.Exec(
		"INSERT INTO sessions(room_id, player_name, moves, play_ms) VALUES(?, ?, ?, ?)",
		roomID, playerName, moves, playMs,
	)
	if err != nil {
		log.Error().Err(err).Str("roomId", roomID).Msg("recording session failed")
	}
}

// TopPlayers aggregates the all-time ranking across every room.
func (s *Store) TopPlayers(limit int) []model.PlayerStat {
	stats := make([]model.PlayerStat, 0)

	rows, err := s.db.Query(`SELECT player_name, SUM(moves), SUM(play_ms), COUNT(*)
		FROM sessions GROUP BY player_name ORDER BY SUM(moves) DESC LIMIT ?`, limit)
	if err != nil {
		log.Error().Err(err).Msg("top players query failed")
		return stats
	}
	defer rows.Close()

	for rows.Next() {
		var st model.PlayerStat
		if err := rows.Scan(&st.Name, &st.TotalMoves, &st.TotalPlayMs, &st.Sessions); err != nil {
			continue
		}
		stats = append(stats, st)
	}
	return stats
}
