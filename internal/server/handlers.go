package server

import (
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/leonfresh/pawnsquare-sub003/internal/database"
	"github.com/leonfresh/pawnsquare-sub003/internal/game"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type Handler struct {
	Manager *game.Manager
	Store   *database.Store
}

func NewHandler(m *game.Manager, s *database.Store) *Handler {
	return &Handler{Manager: m, Store: s}
}

// Router wires the HTTP surface: the room websocket, the occupancy probe and
// the all-time stats endpoint.
func (h *Handler) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.Default())

	router.GET("/healthz", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{"ok": true})
	})
	router.GET("/ws", h.HandleRoomWS)
	router.GET("/api/rooms/:id", h.CheckRoomHandler)
	router.GET("/api/stats/top", h.TopStatsHandler)

	return router
}

// HandleRoomWS upgrades the connection and attaches it to the requested room.
func (h *Handler) HandleRoomWS(ctx *gin.Context) {
	roomID := ctx.Query("room")
	if roomID == "" {
		ctx.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "room required"})
		return
	}

	ws, err := upgrader.Upgrade(ctx.Writer, ctx.Request, nil)
	if err != nil {
		log.Warn().Err(err).Msg("ws upgrade failed")
		return
	}

	connID := uuid.New().String()[:8]
	client := NewClient(connID, ws)

	room := h.Manager.Connect(roomID, connID, client)
	go client.WritePump()
	client.ReadPump(h.Manager, room)
}

// CheckRoomHandler reports a room's current occupancy.
func (h *Handler) CheckRoomHandler(ctx *gin.Context) {
	roomID := ctx.Param("id")
	count, exists := h.Manager.PlayerCount(roomID)
	ctx.JSON(http.StatusOK, gin.H{
		"exists":      exists,
		"playerCount": count,
		"maxPlayers":  game.MaxPlayers,
	})
}

// TopStatsHandler returns the persisted all-time ranking.
func (h *Handler) TopStatsHandler(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, h.Store.TopPlayers(20))
}
