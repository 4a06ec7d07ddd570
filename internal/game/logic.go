package game

import (
	"encoding/json"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/leonfresh/pawnsquare-sub003/internal/model"
)

// HandleMessage parses and applies one inbound frame for connID. Malformed
// or unknown input is logged and dropped; a bad frame never tears down the
// room or any other connection.
func (m *Manager) HandleMessage(r *Room, connID string, raw []byte) {
	var in model.Inbound
	if err := json.Unmarshal(raw, &in); err != nil {
		log.Debug().Str("roomId", r.ID).Str("connId", connID).Err(err).Msg("dropping malformed frame")
		return
	}

	r.Mutex.Lock()
	defer r.Mutex.Unlock()

	if _, ok := r.Conns[connID]; !ok {
		return
	}

	switch in.Type {
	case model.KindHello:
		m.handleHello(r, connID, in.Payload)
	case model.KindState:
		m.handleState(r, connID, in.Payload)
	case model.KindChat:
		m.handleChat(r, connID, in.Payload)
	case model.KindActivityMove:
		m.handleMove(r, connID, in.Payload)
	case model.KindBoardSetMode:
		m.handleBoardMode(r, connID, in.Payload)
	case model.KindDiscoveryReport:
		m.handleDiscoveryReport(r, connID, in.Payload)
	default:
		if model.IsVoiceKind(in.Type) {
			m.relaySignal(r, connID, in.Type, in.Payload)
			return
		}
		log.Debug().Str("roomId", r.ID).Str("type", in.Type).Msg("ignoring unknown message kind")
	}
}

func (m *Manager) handleHello(r *Room, connID string, raw json.RawMessage) {
	var p model.HelloPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		log.Debug().Str("connId", connID).Err(err).Msg("bad hello payload")
		return
	}

	_, rejoining := r.Players[connID]
	if !rejoining && len(r.Players) >= MaxPlayers {
		c := r.Conns[connID]
		c.Send(model.Message{Type: model.KindError, Payload: model.ErrorPayload{Message: "room-full"}})
		c.Close("room-full")
		log.Warn().Str("roomId", r.ID).Str("connId", connID).Msg("hello rejected, room full")
		return
	}

	player := &model.Player{
		ID:        connID,
		Name:      p.Name,
		Color:     p.Color,
		Gender:    p.Gender,
		AvatarURL: p.AvatarURL,
	}
	if prev, ok := r.Players[connID]; ok {
		// Identity fields stay mutable after join; movement state carries over.
		player.Position = prev.Position
		player.RotY = prev.RotY
	}
	r.Players[connID] = player

	m.broadcast(r, model.Message{Type: model.KindPlayerJoined, Payload: player}, connID)
	m.broadcastLeaderboard(r, time.Now())
}

func (m *Manager) handleState(r *Room, connID string, raw json.RawMessage) {
	p, ok := r.Players[connID]
	if !ok {
		return
	}
	var s model.StatePayload
	if err := json.Unmarshal(raw, &s); err != nil {
		return
	}
	p.Position = s.Position
	p.RotY = s.RotY
	m.broadcast(r, model.Message{Type: model.KindPlayerMoved, Payload: model.PlayerMovedPayload{
		ID:       connID,
		Position: s.Position,
		RotY:     s.RotY,
	}}, connID)
}

func (m *Manager) handleChat(r *Room, connID string, raw json.RawMessage) {
	p, ok := r.Players[connID]
	if !ok {
		return
	}
	var c model.ChatPayload
	if err := json.Unmarshal(raw, &c); err != nil {
		return
	}
	msg, ok := r.AppendChat(connID, p.Name, c.Text, time.Now())
	if !ok {
		return
	}
	m.broadcast(r, model.Message{Type: model.KindChat, Payload: msg}, "")
}

func (m *Manager) handleMove(r *Room, connID string, raw json.RawMessage) {
	var mv model.MovePayload
	if err := json.Unmarshal(raw, &mv); err != nil {
		return
	}
	// Telemetry only; the hub does not judge move legality.
	r.AddMove(connID)
	m.broadcastLeaderboard(r, time.Now())
}

func (m *Manager) handleBoardMode(r *Room, connID string, raw json.RawMessage) {
	var b model.BoardModePayload
	if err := json.Unmarshal(raw, &b); err != nil {
		return
	}
	if !r.SetBoardMode(b.BoardKey, b.Mode) {
		return
	}
	m.broadcast(r, model.Message{Type: model.KindBoardModes, Payload: r.BoardSnapshot()}, "")
}

func (m *Manager) handleDiscoveryReport(r *Room, connID string, raw json.RawMessage) {
	var rep model.DiscoveryReportPayload
	if err := json.Unmarshal(raw, &rep); err != nil || rep.RoomID == "" {
		return
	}
	rep.From = connID
	m.broadcast(r, model.Message{Type: model.KindDiscoveryReport, Payload: rep}, connID)
}

// relaySignal forwards a voice signaling payload verbatim, tagged with the
// sender id. The hub never looks at the SDP or candidate inside. Targets
// without a live connection are dropped silently: the sender cannot tell a
// departed peer from a lost frame anyway.
func (m *Manager) relaySignal(r *Room, connID, kind string, raw json.RawMessage) {
	var hdr model.SignalHeader
	if err := json.Unmarshal(raw, &hdr); err != nil {
		log.Debug().Str("connId", connID).Str("type", kind).Err(err).Msg("bad signal payload")
		return
	}

	forwarded, err := tagFrom(raw, connID)
	if err != nil {
		log.Debug().Str("connId", connID).Err(err).Msg("cannot tag signal payload")
		return
	}
	out := model.Message{Type: kind, Payload: forwarded}

	if kind == model.KindVoiceRequestConns {
		targets := hdr.Peers
		if len(targets) == 0 {
			for id := range r.Conns {
				if id != connID {
					targets = append(targets, id)
				}
			}
		}
		for _, id := range targets {
			if c, ok := r.Conns[id]; ok && id != connID {
				c.Send(out)
			}
		}
		return
	}

	if c, ok := r.Conns[hdr.To]; ok && hdr.To != connID {
		c.Send(out)
	}
}

// tagFrom injects the sender id into an otherwise opaque JSON object.
func tagFrom(raw json.RawMessage, from string) (json.RawMessage, error) {
	fields := make(map[string]json.RawMessage)
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &fields); err != nil {
			return nil, err
		}
	}
	fromJSON, err := json.Marshal(from)
	if err != nil {
		return nil, err
	}
	fields["from"] = fromJSON
	return json.Marshal(fields)
}
