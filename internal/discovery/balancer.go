package discovery

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/leonfresh/pawnsquare-sub003/internal/model"
	"github.com/leonfresh/pawnsquare-sub003/internal/signal"
)

const (
	// HeartbeatInterval is how often a client re-advertises its room.
	HeartbeatInterval = 3 * time.Second
	// SweepInterval is the cadence of the staleness sweep.
	SweepInterval = 2 * time.Second
	// ReportTTL is how long a peer report stays credible without a fresh
	// heartbeat.
	ReportTTL = 10 * time.Second
)

var channelSuffix = regexp.MustCompile(`-ch(\d+)$`)

// Bus is the discovery transport, satisfied by *signal.Client connected to
// the shared discovery room.
type Bus interface {
	On(kind string, h signal.Handler)
	Send(msg model.Message)
}

// SelfReporter yields the client's own current room and occupancy, so a lone
// occupant still sees their channel before any peer confirms it. An empty
// room id means "not in a room yet".
type SelfReporter func() (roomID string, playerCount int)

// Balancer aggregates peer-reported room occupancy and picks the best
// under-capacity channel for a room base name. Reports are keyed by
// reporting peer and merged per room id by max-reduction, so several
// observers of one room never inflate its count.
type Balancer struct {
	mu      sync.Mutex
	bus     Bus
	self    SelfReporter
	cap     int
	now     func() time.Time
	reports map[string]model.RoomInfo

	done    chan struct{}
	stopped bool
	started bool
}

func New(bus Bus, self SelfReporter, capacity int) *Balancer {
	b := &Balancer{
		bus:     bus,
		self:    self,
		cap:     capacity,
		now:     time.Now,
		reports: make(map[string]model.RoomInfo),
		done:    make(chan struct{}),
	}
	bus.On(model.KindDiscoveryReport, func(raw json.RawMessage) {
		var rep model.DiscoveryReportPayload
		if err := json.Unmarshal(raw, &rep); err != nil || rep.From == "" {
			return
		}
		b.Observe(rep.From, rep.RoomID, rep.PlayerCount)
	})
	return b
}

// Start launches the heartbeat and the staleness sweep. Idempotent.
func (b *Balancer) Start() {
	b.mu.Lock()
	if b.started || b.stopped {
		b.mu.Unlock()
		return
	}
	b.started = true
	b.mu.Unlock()
	go b.heartbeatLoop()
	go b.sweepLoop()
}

// Stop halts every periodic task. Discovery left running costs main-thread
// time during gameplay, so disabling it must leave no timer behind.
func (b *Balancer) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.stopped {
		return
	}
	b.stopped = true
	close(b.done)
}

// Observe records one peer's report about its room.
func (b *Balancer) Observe(from, roomID string, playerCount int) {
	if roomID == "" {
		return
	}
	b.mu.Lock()
	b.reports[from] = model.RoomInfo{
		RoomID:      roomID,
		PlayerCount: playerCount,
		LastSeen:    b.now().UnixMilli(),
	}
	b.mu.Unlock()
}

// Rooms merges all live reports into the per-room occupancy view, sorted by
// room id for stable output.
func (b *Balancer) Rooms() []model.RoomInfo {
	b.mu.Lock()
	defer b.mu.Unlock()
	merged := b.mergedLocked()
	out := make([]model.RoomInfo, 0, len(merged))
	for _, info := range merged {
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RoomID < out[j].RoomID })
	return out
}

// Pick selects the channel a new joiner should enter for the given base
// room name: the fullest room still under capacity, or a freshly minted
// channel number when every known one is full.
func (b *Balancer) Pick(base string) string {
	b.mu.Lock()
	defer b.mu.Unlock()

	best := ""
	bestCount := -1
	maxChannel := 0
	for roomID, info := range b.mergedLocked() {
		if baseOf(roomID) != base {
			continue
		}
		if n := channelOf(roomID); n > maxChannel {
			maxChannel = n
		}
		if info.PlayerCount < b.cap && info.PlayerCount > bestCount {
			best = roomID
			bestCount = info.PlayerCount
		}
	}
	if best != "" {
		return best
	}
	if maxChannel == 0 {
		return base
	}
	return fmt.Sprintf("%s-ch%d", base, maxChannel+1)
}

func (b *Balancer) mergedLocked() map[string]model.RoomInfo {
	merged := make(map[string]model.RoomInfo)
	for _, info := range b.reports {
		if cur, ok := merged[info.RoomID]; !ok || info.PlayerCount > cur.PlayerCount {
			merged[info.RoomID] = info
		}
	}
	// Our own room counts even before any peer echoes it back.
	if roomID, count := b.self(); roomID != "" {
		if cur, ok := merged[roomID]; !ok || count > cur.PlayerCount {
			merged[roomID] = model.RoomInfo{RoomID: roomID, PlayerCount: count, LastSeen: b.now().UnixMilli()}
		}
	}
	return merged
}

func (b *Balancer) heartbeatLoop() {
	ticker := time.NewTicker(HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-b.done:
			return
		case <-ticker.C:
			if roomID, count := b.self(); roomID != "" {
				b.bus.Send(model.Message{Type: model.KindDiscoveryReport, Payload: model.DiscoveryReportPayload{
					RoomID:      roomID,
					PlayerCount: count,
				}})
			}
		}
	}
}

func (b *Balancer) sweepLoop() {
	ticker := time.NewTicker(SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-b.done:
			return
		case <-ticker.C:
			b.sweep()
		}
	}
}

// sweep evicts reports whose heartbeat went quiet.
func (b *Balancer) sweep() {
	b.mu.Lock()
	defer b.mu.Unlock()
	cutoff := b.now().Add(-ReportTTL).UnixMilli()
	for from, info := range b.reports {
		if info.LastSeen < cutoff {
			delete(b.reports, from)
		}
	}
}

func baseOf(roomID string) string {
	if m := channelSuffix.FindStringIndex(roomID); m != nil {
		return roomID[:m[0]]
	}
	return roomID
}

func channelOf(roomID string) int {
	if m := channelSuffix.FindStringSubmatch(roomID); m != nil {
		n, err := strconv.Atoi(m[1])
		if err == nil {
			return n
		}
	}
	return 1
}
