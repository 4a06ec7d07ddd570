package game

import (
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/leonfresh/pawnsquare-sub003/internal/model"
)

const (
	// MaxPlayers is the hard per-room occupancy cap.
	MaxPlayers = 16
	// MaxChatMessages bounds the chat ring buffer.
	MaxChatMessages = 60
	// MaxChatLen is the per-message text clip length, in runes.
	MaxChatLen = 160
	// MaxBoardKeyLen bounds board registry keys.
	MaxBoardKeyLen = 8

	// DefaultBoardMode applies to any board key absent from the registry.
	DefaultBoardMode = "chess"
)

// BoardModes is the closed set of accepted board modes.
var BoardModes = map[string]bool{
	"chess":    true,
	"checkers": true,
	"goose":    true,
}

// Room holds all mutable state for one room id: registered players, the chat
// ring, the board-mode registry and per-connection play stats. It lives from
// the first connect to the last disconnect and is never persisted.
//
// All access goes through the room mutex, taken by the hub; handling for one
// room is therefore serialized while distinct rooms proceed in parallel.
type Room struct {
	ID      string
	Players map[string]*model.Player
	Chat    []model.ChatMessage
	Boards  map[string]string
	Stats   map[string]*model.PlayStats

	Conns map[string]Conn

	Mutex sync.Mutex

	// Session baselines, captured at connect time so that only the delta of
	// a connection span is written to the history store on disconnect.
	moveBase map[string]int
	playBase map[string]int64

	tickerStop chan struct{}
}

func NewRoom(id string) *Room {
	return &Room{
		ID:       id,
		Players:  make(map[string]*model.Player),
		Chat:     make([]model.ChatMessage, 0, MaxChatMessages),
		Boards:   make(map[string]string),
		Stats:    make(map[string]*model.PlayStats),
		Conns:    make(map[string]Conn),
		moveBase: make(map[string]int),
		playBase: make(map[string]int64),
	}
}

// TouchStats initializes or refreshes the connection span for connID.
func (r *Room) TouchStats(connID string, now time.Time) *model.PlayStats {
	st, ok := r.Stats[connID]
	if !ok {
		st = &model.PlayStats{}
		r.Stats[connID] = st
	}
	st.ConnectedAt = now.UnixMilli()
	return st
}

// FlushStats folds the current connection span into the accumulated play
// time. Safe to call for ids with no stats entry.
func (r *Room) FlushStats(connID string, now time.Time) {
	st, ok := r.Stats[connID]
	if !ok || st.ConnectedAt == 0 {
		return
	}
	st.PlayMs += now.UnixMilli() - st.ConnectedAt
	st.ConnectedAt = 0
}

// AddMove increments the move counter for connID.
func (r *Room) AddMove(connID string) {
	st, ok := r.Stats[connID]
	if !ok {
		st = &model.PlayStats{}
		r.Stats[connID] = st
	}
	st.Moves++
}

// AppendChat sanitizes, clips and appends a chat message, evicting the oldest
// entries beyond the ring capacity. Returns the stored message, or false when
// the text trims to empty.
func (r *Room) AppendChat(from, fromName, text string, now time.Time) (model.ChatMessage, bool) {
	text = strings.TrimSpace(stripControl(text))
	if text == "" {
		return model.ChatMessage{}, false
	}
	if utf8.RuneCountInString(text) > MaxChatLen {
		text = string([]rune(text)[:MaxChatLen])
	}
	msg := model.ChatMessage{
		ID:       uuid.NewString(),
		From:     from,
		FromName: fromName,
		Text:     text,
		Ts:       now.UnixMilli(),
	}
	r.Chat = append(r.Chat, msg)
	if len(r.Chat) > MaxChatMessages {
		r.Chat = r.Chat[len(r.Chat)-MaxChatMessages:]
	}
	return msg, true
}

// SetBoardMode updates the registry. Returns false for empty/overlong keys,
// modes outside the closed set, and writes that would not change anything.
func (r *Room) SetBoardMode(key, mode string) bool {
	if key == "" || len(key) > MaxBoardKeyLen || !BoardModes[mode] {
		return false
	}
	current, ok := r.Boards[key]
	if !ok {
		current = DefaultBoardMode
	}
	if current == mode {
		return false
	}
	r.Boards[key] = mode
	return true
}

// ChatSnapshot copies the ring in oldest-first order.
func (r *Room) ChatSnapshot() []model.ChatMessage {
	out := make([]model.ChatMessage, len(r.Chat))
	copy(out, r.Chat)
	return out
}

// BoardSnapshot copies the board-mode registry.
func (r *Room) BoardSnapshot() map[string]string {
	out := make(map[string]string, len(r.Boards))
	for k, v := range r.Boards {
		out[k] = v
	}
	return out
}

func stripControl(s string) string {
	return strings.Map(func(ru rune) rune {
		if ru < 0x20 && ru != '\n' {
			return -1
		}
		return ru
	}, s)
}
