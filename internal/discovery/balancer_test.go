package discovery

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leonfresh/pawnsquare-sub003/internal/model"
	"github.com/leonfresh/pawnsquare-sub003/internal/signal"
)

type fakeBus struct {
	mu       sync.Mutex
	handlers map[string][]signal.Handler
	sent     []model.Message
}

func newFakeBus() *fakeBus {
	return &fakeBus{handlers: make(map[string][]signal.Handler)}
}

func (b *fakeBus) On(kind string, h signal.Handler) {
	b.mu.Lock()
	b.handlers[kind] = append(b.handlers[kind], h)
	b.mu.Unlock()
}

func (b *fakeBus) Send(msg model.Message) {
	b.mu.Lock()
	b.sent = append(b.sent, msg)
	b.mu.Unlock()
}

func (b *fakeBus) deliver(t *testing.T, kind string, payload any) {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	b.mu.Lock()
	hs := append([]signal.Handler(nil), b.handlers[kind]...)
	b.mu.Unlock()
	for _, h := range hs {
		h(raw)
	}
}

func noSelf() (string, int) { return "", 0 }

func newTestBalancer(bus *fakeBus, self SelfReporter) *Balancer {
	b := New(bus, self, 16)
	b.now = func() time.Time { return time.UnixMilli(1_000_000) }
	return b
}

func TestObserve_MaxReductionPerRoom(t *testing.T) {
	bus := newFakeBus()
	b := newTestBalancer(bus, noSelf)

	// Two peers report the same room with different counts.
	bus.deliver(t, model.KindDiscoveryReport, model.DiscoveryReportPayload{RoomID: "park", PlayerCount: 3, From: "p1"})
	bus.deliver(t, model.KindDiscoveryReport, model.DiscoveryReportPayload{RoomID: "park", PlayerCount: 7, From: "p2"})
	bus.deliver(t, model.KindDiscoveryReport, model.DiscoveryReportPayload{RoomID: "cafe", PlayerCount: 2, From: "p3"})

	rooms := b.Rooms()
	require.Len(t, rooms, 2)
	assert.Equal(t, "cafe", rooms[0].RoomID)
	assert.Equal(t, 2, rooms[0].PlayerCount)
	assert.Equal(t, "park", rooms[1].RoomID)
	assert.Equal(t, 7, rooms[1].PlayerCount, "the highest observation wins")
}

func TestObserve_RekeysPerReporter(t *testing.T) {
	bus := newFakeBus()
	b := newTestBalancer(bus, noSelf)

	bus.deliver(t, model.KindDiscoveryReport, model.DiscoveryReportPayload{RoomID: "park", PlayerCount: 9, From: "p1"})
	// The same peer revising its count downward replaces its old report.
	bus.deliver(t, model.KindDiscoveryReport, model.DiscoveryReportPayload{RoomID: "park", PlayerCount: 4, From: "p1"})

	rooms := b.Rooms()
	require.Len(t, rooms, 1)
	assert.Equal(t, 4, rooms[0].PlayerCount)
}

func TestObserve_IgnoresAnonymousAndEmpty(t *testing.T) {
	bus := newFakeBus()
	b := newTestBalancer(bus, noSelf)

	bus.deliver(t, model.KindDiscoveryReport, model.DiscoveryReportPayload{RoomID: "park", PlayerCount: 3})
	b.Observe("p1", "", 3)

	assert.Empty(t, b.Rooms())
}

func TestRooms_IncludesOwnRoom(t *testing.T) {
	bus := newFakeBus()
	b := newTestBalancer(bus, func() (string, int) { return "park-ch2", 5 })

	rooms := b.Rooms()
	require.Len(t, rooms, 1)
	assert.Equal(t, "park-ch2", rooms[0].RoomID)
	assert.Equal(t, 5, rooms[0].PlayerCount)

	// A peer seeing the same room with fewer players does not shrink it.
	b.Observe("p1", "park-ch2", 2)
	rooms = b.Rooms()
	require.Len(t, rooms, 1)
	assert.Equal(t, 5, rooms[0].PlayerCount)
}

func TestSweep_EvictsStaleReports(t *testing.T) {
	bus := newFakeBus()
	b := newTestBalancer(bus, noSelf)

	base := time.UnixMilli(1_000_000)
	b.now = func() time.Time { return base }
	b.Observe("p1", "park", 3)
	b.Observe("p2", "cafe", 2)

	b.now = func() time.Time { return base.Add(ReportTTL / 2) }
	b.Observe("p2", "cafe", 2)

	b.now = func() time.Time { return base.Add(ReportTTL + time.Second) }
	b.sweep()

	rooms := b.Rooms()
	require.Len(t, rooms, 1)
	assert.Equal(t, "cafe", rooms[0].RoomID)
}

func TestPick_FullestUnderCapacity(t *testing.T) {
	bus := newFakeBus()
	b := newTestBalancer(bus, noSelf)

	b.Observe("p1", "park", 16)
	b.Observe("p2", "park-ch2", 3)
	b.Observe("p3", "park-ch3", 11)
	b.Observe("p4", "cafe", 1)

	assert.Equal(t, "park-ch3", b.Pick("park"), "joiners fill the fullest channel with space")
	assert.Equal(t, "cafe", b.Pick("cafe"))
}

func TestPick_MintsNextChannelWhenAllFull(t *testing.T) {
	bus := newFakeBus()
	b := newTestBalancer(bus, noSelf)

	b.Observe("p1", "park", 16)
	b.Observe("p2", "park-ch2", 16)
	b.Observe("p3", "park-ch5", 16)

	assert.Equal(t, "park-ch6", b.Pick("park"), "minting continues from the highest known channel")
}

func TestPick_UnknownBaseReturnsBare(t *testing.T) {
	bus := newFakeBus()
	b := newTestBalancer(bus, noSelf)

	assert.Equal(t, "plaza", b.Pick("plaza"))
}

func TestPick_SuffixParsing(t *testing.T) {
	assert.Equal(t, "park", baseOf("park-ch12"))
	assert.Equal(t, "park", baseOf("park"))
	assert.Equal(t, "park-chess", baseOf("park-chess"), "only a numeric -chN suffix counts")
	assert.Equal(t, 12, channelOf("park-ch12"))
	assert.Equal(t, 1, channelOf("park"))
	assert.Equal(t, 1, channelOf("park-chess"))
}

func TestStartStop(t *testing.T) {
	bus := newFakeBus()
	b := New(bus, func() (string, int) { return "park", 1 }, 16)

	b.Start()
	b.Start() // idempotent

	b.Stop()
	assert.NotPanics(t, func() { b.Stop() })

	select {
	case <-b.done:
	default:
		t.Fatal("stop must release the periodic loops")
	}

	// A stopped balancer refuses to restart its timers.
	b.Start()
	b.mu.Lock()
	stopped := b.stopped
	b.mu.Unlock()
	assert.True(t, stopped)
}
