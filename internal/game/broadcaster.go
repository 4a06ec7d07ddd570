package game

import (
	"time"

	"github.com/leonfresh/pawnsquare-sub003/internal/model"
)

// broadcast fans a message out to every connection in the room except
// exceptID. Callers hold the room mutex; Conn.Send never blocks, so a slow
// receiver cannot stall the room.
func (m *Manager) broadcast(r *Room, msg model.Message, exceptID string) {
	for id, c := range r.Conns {
		if id == exceptID {
			continue
		}
		c.Send(msg)
	}
}

// broadcastLeaderboard recomputes the ranking and sends it to everyone.
func (m *Manager) broadcastLeaderboard(r *Room, now time.Time) {
	lb := Leaderboard(r.Players, r.Stats, now)
	m.broadcast(r, model.Message{Type: model.KindLeaderboard, Payload: lb}, "")
}
