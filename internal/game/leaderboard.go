package game

import (
	"sort"
	"time"

	"github.com/leonfresh/pawnsquare-sub003/internal/model"
)

// LeaderboardSize caps the ranked snapshot at the top entries.
const LeaderboardSize = 10

// Leaderboard projects the currently present players into a ranked snapshot.
// It is a pure function of (players, stats, now): play time counts the live
// span of online players, score is moves per played minute with a one-minute
// floor, and ties break toward the more active entry, then by id so repeated
// calls over unchanged state yield identical output.
func Leaderboard(players map[string]*model.Player, stats map[string]*model.PlayStats, now time.Time) []model.LeaderboardEntry {
	entries := make([]model.LeaderboardEntry, 0, len(players))
	nowMs := now.UnixMilli()

	for id, p := range players {
		var moves int
		var playMs int64
		if st, ok := stats[id]; ok {
			moves = st.Moves
			playMs = st.PlayMs
			if st.ConnectedAt > 0 {
				playMs += nowMs - st.ConnectedAt
			}
		}
		minutes := float64(playMs) / 60000.0
		if minutes < 1 {
			minutes = 1
		}
		entries = append(entries, model.LeaderboardEntry{
			ID:     id,
			Name:   p.Name,
			Moves:  moves,
			PlayMs: playMs,
			Score:  float64(moves) / minutes,
		})
	}

	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.Moves != b.Moves {
			return a.Moves > b.Moves
		}
		if a.PlayMs != b.PlayMs {
			return a.PlayMs > b.PlayMs
		}
		return a.ID < b.ID
	})

	if len(entries) > LeaderboardSize {
		entries = entries[:LeaderboardSize]
	}
	return entries
}
