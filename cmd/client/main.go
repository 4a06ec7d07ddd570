package main

import (
	"encoding/json"
	"flag"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/leonfresh/pawnsquare-sub003/internal/config"
	"github.com/leonfresh/pawnsquare-sub003/internal/discovery"
	"github.com/leonfresh/pawnsquare-sub003/internal/game"
	"github.com/leonfresh/pawnsquare-sub003/internal/model"
	hubsignal "github.com/leonfresh/pawnsquare-sub003/internal/signal"
	"github.com/leonfresh/pawnsquare-sub003/internal/voice"
)

// DiscoveryRoom is the fixed room id all clients use to gossip occupancy.
const DiscoveryRoom = "discovery"

// roster tracks how many players are currently visible in the joined room,
// fed by the hub's snapshot and join/leave deltas.
type roster struct {
	mu     sync.Mutex
	roomID string
	ids    map[string]bool
}

func (r *roster) bind(c *hubsignal.Client) {
	c.On(model.KindSync, func(raw json.RawMessage) {
		var snap model.SyncPayload
		if err := json.Unmarshal(raw, &snap); err != nil {
			return
		}
		r.mu.Lock()
		r.ids = make(map[string]bool, len(snap.Players)+1)
		for id := range snap.Players {
			r.ids[id] = true
		}
		r.ids[snap.You] = true
		r.mu.Unlock()
	})
	c.On(model.KindPlayerJoined, func(raw json.RawMessage) {
		var p model.Player
		if err := json.Unmarshal(raw, &p); err != nil {
			return
		}
		r.mu.Lock()
		r.ids[p.ID] = true
		r.mu.Unlock()
	})
	c.On(model.KindPlayerLeft, func(raw json.RawMessage) {
		var p model.PlayerLeftPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return
		}
		r.mu.Lock()
		delete(r.ids, p.ID)
		r.mu.Unlock()
	})
}

func (r *roster) report() (string, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.roomID, len(r.ids)
}

func main() {
	hubURL := flag.String("hub", "ws://localhost:8080/ws", "hub websocket endpoint")
	baseRoom := flag.String("room", "park", "base room name")
	name := flag.String("name", "wanderer", "display name")
	stunURL := flag.String("stun", config.Envs.STUN_URL, "stun server")
	flag.Parse()

	log.Logger = zerolog.New(zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.RFC3339,
	}).With().Timestamp().Logger()

	// Gossip with the discovery room first to pick an under-capacity channel.
	discoConn, err := hubsignal.Dial(*hubURL, DiscoveryRoom)
	if err != nil {
		log.Fatal().Err(err).Msg("dialing discovery room failed")
	}
	r := &roster{ids: make(map[string]bool)}
	balancer := discovery.New(discoConn, r.report, game.MaxPlayers)
	balancer.Start()
	go discoConn.Run()

	time.Sleep(2 * discovery.HeartbeatInterval)
	roomID := balancer.Pick(*baseRoom)
	log.Info().Str("roomId", roomID).Msg("channel picked")

	conn, err := hubsignal.Dial(*hubURL, roomID)
	if err != nil {
		log.Fatal().Err(err).Msg("dialing room failed")
	}
	r.mu.Lock()
	r.roomID = roomID
	r.mu.Unlock()
	r.bind(conn)

	mesh := voice.NewMesh(conn, voice.Options{
		DeviceID: uuid.NewString(),
		STUNURL:  *stunURL,
	})
	// Headless clients have no autoplay restriction to wait out.
	mesh.Unlock()

	go func() {
		if err := conn.Run(); err != nil {
			log.Error().Err(err).Msg("hub connection lost")
		}
	}()

	conn.Send(model.Message{Type: model.KindHello, Payload: model.HelloPayload{
		Name:   *name,
		Color:  "#7c3aed",
		Gender: "neutral",
	}})
	mesh.RequestConnections()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	balancer.Stop()
	mesh.Close()
	conn.Close()
	discoConn.Close()
}
