package model

// Position is a player's location in the 3-D scene.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Player is one connected participant in a room. It is written only by its
// owning connection and read by everyone else through broadcasts.
type Player struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	Color     string   `json:"color"`
	Gender    string   `json:"gender"`
	AvatarURL string   `json:"avatarUrl,omitempty"`
	Position  Position `json:"position"`
	RotY      float64  `json:"rotY"`
}

type ChatMessage struct {
	ID       string `json:"id"`
	From     string `json:"from"`
	FromName string `json:"fromName"`
	Text     string `json:"text"`
	Ts       int64  `json:"ts"`
}

// PlayStats accumulates activity for one connection id. ConnectedAt is the
// start of the current connection span; the span is folded into PlayMs on
// disconnect and accounted live while online.
type PlayStats struct {
	Moves       int   `json:"moves"`
	PlayMs      int64 `json:"playMs"`
	ConnectedAt int64 `json:"-"`
}

type LeaderboardEntry struct {
	ID     string  `json:"id"`
	Name   string  `json:"name"`
	Moves  int     `json:"moves"`
	PlayMs int64   `json:"playMs"`
	Score  float64 `json:"score"`
}

// RoomInfo is a peer-reported occupancy observation used by discovery.
type RoomInfo struct {
	RoomID      string `json:"roomId"`
	PlayerCount int    `json:"playerCount"`
	LastSeen    int64  `json:"-"`
}

// PlayerStat is one row of the persisted all-time ranking.
type PlayerStat struct {
	Name        string `json:"name"`
	TotalMoves  int    `json:"totalMoves"`
	TotalPlayMs int64  `json:"totalPlayMs"`
	Sessions    int    `json:"sessions"`
}
