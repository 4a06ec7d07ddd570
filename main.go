package main

import (
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/leonfresh/pawnsquare-sub003/internal/config"
	"github.com/leonfresh/pawnsquare-sub003/internal/database"
	"github.com/leonfresh/pawnsquare-sub003/internal/game"
	"github.com/leonfresh/pawnsquare-sub003/internal/server"
)

func main() {
	log.Logger = zerolog.New(zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.RFC3339,
	}).With().Timestamp().Logger()

	if config.Envs.GIN_MODE != "" {
		gin.SetMode(config.Envs.GIN_MODE)
	}

	store, err := database.NewStore(config.Envs.DB_PATH)
	if err != nil {
		log.Fatal().Err(err).Msg("opening stats store failed")
	}
	defer store.Close()

	manager := game.NewManager(store)
	handler := server.NewHandler(manager, store)

	log.Info().Str("addr", config.Envs.LISTEN_ADDR).Msg("server started")
	if err := handler.Router().Run(config.Envs.LISTEN_ADDR); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
}
