package model

import "encoding/json"

// Inbound message kinds.
const (
	KindHello             = "hello"
	KindState             = "state"
	KindChat              = "chat"
	KindActivityMove      = "activity:move"
	KindBoardSetMode      = "board:set-mode"
	KindDiscoveryReport   = "discovery:report"
	KindVoiceOffer        = "voice:offer"
	KindVoiceAnswer       = "voice:answer"
	KindVoiceICE          = "voice:ice"
	KindVoiceHangup       = "voice:hangup"
	KindVoiceRequestConns = "voice:request-connections"
)

// Outbound message kinds.
const (
	KindSync         = "sync"
	KindPlayerJoined = "player-joined"
	KindPlayerMoved  = "player-moved"
	KindPlayerLeft   = "player-left"
	KindBoardModes   = "board-modes"
	KindLeaderboard  = "leaderboard"
	KindError        = "error"
)

// Message is the outbound wire envelope.
type Message struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload,omitempty"`
}

// Inbound is the envelope read off the wire; the payload stays raw until the
// type discriminator selects a concrete struct.
type Inbound struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type HelloPayload struct {
	Name      string `json:"name"`
	Color     string `json:"color"`
	Gender    string `json:"gender"`
	AvatarURL string `json:"avatarUrl,omitempty"`
}

type StatePayload struct {
	Position Position `json:"position"`
	RotY     float64  `json:"rotY"`
}

type ChatPayload struct {
	Text string `json:"text"`
}

type MovePayload struct {
	Game     string `json:"game"`
	BoardKey string `json:"boardKey"`
}

type BoardModePayload struct {
	BoardKey string `json:"boardKey"`
	Mode     string `json:"mode"`
}

type DiscoveryReportPayload struct {
	RoomID      string `json:"roomId"`
	PlayerCount int    `json:"playerCount"`
	From        string `json:"from,omitempty"`
}

// SignalHeader is the hub-visible slice of a voice signaling payload. The
// rest of the payload (SDP, ICE candidate) is opaque and relayed verbatim.
type SignalHeader struct {
	To       string   `json:"to,omitempty"`
	From     string   `json:"from,omitempty"`
	DeviceID string   `json:"deviceId,omitempty"`
	Peers    []string `json:"peers,omitempty"`
}

type SyncPayload struct {
	You     string             `json:"you"`
	Players map[string]*Player `json:"players"`
	Chat    []ChatMessage      `json:"chat"`
	Boards  map[string]string  `json:"boards"`
}

type PlayerMovedPayload struct {
	ID       string   `json:"id"`
	Position Position `json:"position"`
	RotY     float64  `json:"rotY"`
}

type PlayerLeftPayload struct {
	ID string `json:"id"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}

// IsVoiceKind reports whether t is one of the relayed signaling kinds.
func IsVoiceKind(t string) bool {
	switch t {
	case KindVoiceOffer, KindVoiceAnswer, KindVoiceICE, KindVoiceHangup, KindVoiceRequestConns:
		return true
	}
	return false
}
