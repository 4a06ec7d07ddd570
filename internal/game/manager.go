package game

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/leonfresh/pawnsquare-sub003/internal/database"
	"github.com/leonfresh/pawnsquare-sub003/internal/model"
)

// LeaderboardInterval is the cadence of the per-room leaderboard refresh.
const LeaderboardInterval = 5 * time.Second

// Conn is the outbound half of a client connection as seen by the hub.
// Send must never block; a slow receiver drops frames instead of stalling
// the broadcasting room.
type Conn interface {
	Send(msg model.Message)
	Close(reason string)
}

// Manager owns one Room per room id. Rooms are created on first connect and
// deleted once their last connection goes away.
type Manager struct {
	Rooms     map[string]*Room
	RoomsLock sync.Mutex
	Store     *database.Store

	interval time.Duration
}

func NewManager(store *database.Store) *Manager {
	return &Manager{
		Rooms:    make(map[string]*Room),
		Store:    store,
		interval: LeaderboardInterval,
	}
}

// Connect registers a new connection with a room, creating the room if
// needed, and replies with the full state snapshot followed by the current
// leaderboard. The leaderboard refresh ticker starts with the first
// connection, idempotently.
func (m *Manager) Connect(roomID, connID string, c Conn) *Room {
	// The registry lock is held until the connection is in r.Conns: a
	// concurrent last-disconnect deletes empty rooms, and releasing earlier
	// would let it orphan the instance this connection just joined.
	m.RoomsLock.Lock()
	r, ok := m.Rooms[roomID]
	if !ok {
		r = NewRoom(roomID)
		m.Rooms[roomID] = r
		log.Info().Str("roomId", roomID).Msg("room created")
	}
	r.Mutex.Lock()
	r.Conns[connID] = c
	m.RoomsLock.Unlock()
	st := r.TouchStats(connID, time.Now())
	r.moveBase[connID] = st.Moves
	r.playBase[connID] = st.PlayMs
	if r.tickerStop == nil {
		r.tickerStop = make(chan struct{})
		go m.leaderboardLoop(r, r.tickerStop)
	}
	c.Send(model.Message{Type: model.KindSync, Payload: model.SyncPayload{
		You:     connID,
		Players: playersSnapshot(r),
		Chat:    r.ChatSnapshot(),
		Boards:  r.BoardSnapshot(),
	}})
	c.Send(model.Message{Type: model.KindLeaderboard, Payload: Leaderboard(r.Players, r.Stats, time.Now())})
	r.Mutex.Unlock()

	log.Info().Str("roomId", roomID).Str("connId", connID).Msg("connected")
	return r
}

// Disconnect flushes the connection's play time, removes its player, notifies
// the rest of the room and tears the room down once it is empty.
func (m *Manager) Disconnect(r *Room, connID string) {
	now := time.Now()

	r.Mutex.Lock()
	if _, ok := r.Conns[connID]; !ok {
		r.Mutex.Unlock()
		return
	}
	delete(r.Conns, connID)
	r.FlushStats(connID, now)

	p, registered := r.Players[connID]
	if registered {
		delete(r.Players, connID)
		if st, ok := r.Stats[connID]; ok && m.Store != nil {
			moves := st.Moves - r.moveBase[connID]
			playMs := st.PlayMs - r.playBase[connID]
			m.Store.RecordSession(r.ID, p.Name, moves, playMs)
		}
	}
	delete(r.moveBase, connID)
	delete(r.playBase, connID)

	empty := len(r.Conns) == 0
	if empty && r.tickerStop != nil {
		close(r.tickerStop)
		r.tickerStop = nil
	}

	if registered {
		m.broadcast(r, model.Message{Type: model.KindPlayerLeft, Payload: model.PlayerLeftPayload{ID: connID}}, connID)
		m.broadcastLeaderboard(r, now)
	}
	r.Mutex.Unlock()

	if empty {
		m.RoomsLock.Lock()
		if cur, ok := m.Rooms[r.ID]; ok && cur == r {
			r.Mutex.Lock()
			if len(r.Conns) == 0 {
				delete(m.Rooms, r.ID)
				log.Info().Str("roomId", r.ID).Msg("room emptied")
			}
			r.Mutex.Unlock()
		}
		m.RoomsLock.Unlock()
	}
	log.Info().Str("roomId", r.ID).Str("connId", connID).Msg("disconnected")
}

// PlayerCount reports current occupancy for the discovery probe endpoint.
func (m *Manager) PlayerCount(roomID string) (int, bool) {
	m.RoomsLock.Lock()
	r, ok := m.Rooms[roomID]
	m.RoomsLock.Unlock()
	if !ok {
		return 0, false
	}
	r.Mutex.Lock()
	n := len(r.Players)
	r.Mutex.Unlock()
	return n, true
}

func (m *Manager) leaderboardLoop(r *Room, stop chan struct{}) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case now := <-ticker.C:
			r.Mutex.Lock()
			m.broadcastLeaderboard(r, now)
			r.Mutex.Unlock()
		}
	}
}

func playersSnapshot(r *Room) map[string]*model.Player {
	out := make(map[string]*model.Player, len(r.Players))
	for id, p := range r.Players {
		cp := *p
		out[id] = &cp
	}
	return out
}
