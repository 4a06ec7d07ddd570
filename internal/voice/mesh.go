package voice

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/leonfresh/pawnsquare-sub003/internal/model"
	"github.com/leonfresh/pawnsquare-sub003/internal/signal"
)

const (
	// DefaultRestartCooldown is the minimum gap between ICE restart
	// attempts for one peer.
	DefaultRestartCooldown = 8 * time.Second
	// DefaultTeardownDelay bounds how long a failed connection may linger
	// before it is forcibly torn down.
	DefaultTeardownDelay = 12 * time.Second
)

// ErrMeshClosed is returned by operations on a closed mesh.
var ErrMeshClosed = errors.New("voice mesh closed")

// Bus is the signaling surface the mesh rides on, satisfied by
// *signal.Client.
type Bus interface {
	On(kind string, h signal.Handler)
	Send(msg model.Message)
}

type sdpPayload struct {
	To       string                    `json:"to,omitempty"`
	From     string                    `json:"from,omitempty"`
	DeviceID string                    `json:"deviceId,omitempty"`
	SDP      webrtc.SessionDescription `json:"sdp"`
}

type icePayload struct {
	To        string                  `json:"to,omitempty"`
	From      string                  `json:"from,omitempty"`
	Candidate webrtc.ICECandidateInit `json:"candidate"`
}

type hangupPayload struct {
	To   string `json:"to,omitempty"`
	From string `json:"from,omitempty"`
}

type requestConnsPayload struct {
	Peers    []string `json:"peers,omitempty"`
	DeviceID string   `json:"deviceId,omitempty"`
	From     string   `json:"from,omitempty"`
}

// Options configures a Mesh.
type Options struct {
	// DeviceID is an opaque per-device identifier used to suppress
	// same-device loopback when two tabs share one machine.
	DeviceID string
	STUNURL  string
	Sink     AudioSink

	RestartCooldown time.Duration
	TeardownDelay   time.Duration
}

// Mesh maintains one audio peer connection per remote participant, driven by
// hub-relayed signaling. All mutation happens under one mutex; asynchronous
// results (pion callbacks, teardown timers) check the generation counter so
// that a stale event arriving after Close or after a peer was replaced can
// never resurrect removed state.
type Mesh struct {
	mu  sync.Mutex
	bus Bus

	deviceID string
	sink     AudioSink
	newConn  connFactory
	now      func() time.Time

	restartCooldown time.Duration
	teardownDelay   time.Duration

	gen    uint64
	closed bool
	peers  map[string]*peer

	micTrack   *webrtc.TrackLocalStaticSample
	micRelease func()
	micMuted   bool
	micErr     string

	unlocked    bool
	pendingPlay map[string]*webrtc.TrackRemote
}

func NewMesh(bus Bus, opts Options) *Mesh {
	if opts.Sink == nil {
		opts.Sink = NopSink{}
	}
	if opts.RestartCooldown == 0 {
		opts.RestartCooldown = DefaultRestartCooldown
	}
	if opts.TeardownDelay == 0 {
		opts.TeardownDelay = DefaultTeardownDelay
	}
	m := &Mesh{
		bus:             bus,
		deviceID:        opts.DeviceID,
		sink:            opts.Sink,
		newConn:         newPionFactory(opts.STUNURL),
		now:             time.Now,
		restartCooldown: opts.RestartCooldown,
		teardownDelay:   opts.TeardownDelay,
		peers:           make(map[string]*peer),
		pendingPlay:     make(map[string]*webrtc.TrackRemote),
	}
	m.attach(bus)
	return m
}

func (m *Mesh) attach(bus Bus) {
	bus.On(model.KindVoiceOffer, func(raw json.RawMessage) {
		var p sdpPayload
		if err := json.Unmarshal(raw, &p); err != nil || p.From == "" {
			return
		}
		m.HandleOffer(p.From, p.SDP)
	})
	bus.On(model.KindVoiceAnswer, func(raw json.RawMessage) {
		var p sdpPayload
		if err := json.Unmarshal(raw, &p); err != nil || p.From == "" {
			return
		}
		m.HandleAnswer(p.From, p.SDP)
	})
	bus.On(model.KindVoiceICE, func(raw json.RawMessage) {
		var p icePayload
		if err := json.Unmarshal(raw, &p); err != nil || p.From == "" {
			return
		}
		m.HandleCandidate(p.From, p.Candidate)
	})
	bus.On(model.KindVoiceHangup, func(raw json.RawMessage) {
		var p hangupPayload
		if err := json.Unmarshal(raw, &p); err != nil || p.From == "" {
			return
		}
		m.HandleHangup(p.From)
	})
	bus.On(model.KindVoiceRequestConns, func(raw json.RawMessage) {
		var p requestConnsPayload
		if err := json.Unmarshal(raw, &p); err != nil || p.From == "" {
			return
		}
		m.HandleRequestConnections(p.From, p.DeviceID)
	})
}

// RequestConnections asks the given peers, or everyone in the room when none
// are named, to send us an offer.
func (m *Mesh) RequestConnections(peers ...string) {
	m.bus.Send(model.Message{Type: model.KindVoiceRequestConns, Payload: requestConnsPayload{
		Peers:    peers,
		DeviceID: m.deviceID,
	}})
}

// HandleRequestConnections reacts to a relayed connection request by
// offering to the requester, unless the request originated from this same
// device (two tabs on one machine must not hear themselves).
func (m *Mesh) HandleRequestConnections(from, deviceID string) {
	if deviceID != "" && deviceID == m.deviceID {
		return
	}
	m.Connect(from)
}

// Connect initiates an offer toward the peer.
func (m *Mesh) Connect(peerID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.offerLocked(peerID, false)
}

// HandleOffer answers a relayed offer, creating the peer connection on first
// contact.
func (m *Mesh) HandleOffer(from string, sdp webrtc.SessionDescription) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	p, err := m.ensurePeerLocked(from)
	if err != nil {
		log.Warn().Str("peer", from).Err(err).Msg("cannot create peer connection")
		return
	}
	if err := p.conn.SetRemoteDescription(sdp); err != nil {
		log.Warn().Str("peer", from).Err(err).Msg("offer rejected")
		return
	}
	for _, err := range p.flushCandidates() {
		log.Debug().Str("peer", from).Err(err).Msg("buffered candidate rejected")
	}
	answer, err := p.conn.CreateAnswer(nil)
	if err != nil {
		log.Warn().Str("peer", from).Err(err).Msg("creating answer failed")
		return
	}
	if err := p.conn.SetLocalDescription(answer); err != nil {
		log.Warn().Str("peer", from).Err(err).Msg("applying local answer failed")
		return
	}
	if p.state == stateNew {
		p.state = stateNegotiating
	}
	m.bus.Send(model.Message{Type: model.KindVoiceAnswer, Payload: sdpPayload{
		To:       from,
		DeviceID: m.deviceID,
		SDP:      answer,
	}})
}

// HandleAnswer applies a relayed answer to the in-flight connection. An
// answer for an unknown peer is dropped.
func (m *Mesh) HandleAnswer(from string, sdp webrtc.SessionDescription) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.peers[from]
	if !ok {
		return
	}
	if err := p.conn.SetRemoteDescription(sdp); err != nil {
		log.Warn().Str("peer", from).Err(err).Msg("answer rejected")
		return
	}
	for _, err := range p.flushCandidates() {
		log.Debug().Str("peer", from).Err(err).Msg("buffered candidate rejected")
	}
}

// HandleCandidate applies a relayed ICE candidate, buffering it when it
// outruns the remote description. Candidates for unknown peers are dropped.
func (m *Mesh) HandleCandidate(from string, cand webrtc.ICECandidateInit) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.peers[from]
	if !ok {
		return
	}
	if err := p.addCandidate(cand); err != nil {
		log.Debug().Str("peer", from).Err(err).Msg("candidate rejected")
	}
}

// HandleHangup tears down the peer without notifying it back.
func (m *Mesh) HandleHangup(from string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.peers[from]; ok {
		m.teardownLocked(p, false)
	}
}

// Hangup tears the peer down locally and sends a best-effort hangup to the
// remote side.
func (m *Mesh) Hangup(peerID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.peers[peerID]; ok {
		m.teardownLocked(p, true)
	}
}

// Close tears down every peer connection, releases the microphone and
// invalidates any in-flight asynchronous work.
func (m *Mesh) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.closed = true
	m.gen++
	for _, p := range m.peers {
		m.teardownLocked(p, true)
	}
	m.pendingPlay = make(map[string]*webrtc.TrackRemote)
	m.releaseMicLocked()
}

// PeerStates snapshots every peer's connection state for UI indicators.
func (m *Mesh) PeerStates() map[string]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]string, len(m.peers))
	for id, p := range m.peers {
		out[id] = p.state.String()
	}
	return out
}

func (m *Mesh) offerLocked(peerID string, restart bool) {
	p, err := m.ensurePeerLocked(peerID)
	if err != nil {
		log.Warn().Str("peer", peerID).Err(err).Msg("cannot create peer connection")
		return
	}
	var opts *webrtc.OfferOptions
	if restart {
		opts = &webrtc.OfferOptions{ICERestart: true}
	}
	offer, err := p.conn.CreateOffer(opts)
	if err != nil {
		log.Warn().Str("peer", peerID).Err(err).Msg("creating offer failed")
		return
	}
	if err := p.conn.SetLocalDescription(offer); err != nil {
		log.Warn().Str("peer", peerID).Err(err).Msg("applying local offer failed")
		return
	}
	if p.state == stateNew {
		p.state = stateNegotiating
	}
	m.bus.Send(model.Message{Type: model.KindVoiceOffer, Payload: sdpPayload{
		To:       peerID,
		DeviceID: m.deviceID,
		SDP:      offer,
	}})
}

func (m *Mesh) ensurePeerLocked(peerID string) (*peer, error) {
	if p, ok := m.peers[peerID]; ok {
		return p, nil
	}
	conn, err := m.newConn()
	if err != nil {
		return nil, err
	}
	p := &peer{id: peerID, conn: conn, state: stateNew, gen: m.gen}
	m.peers[peerID] = p
	gen := m.gen

	conn.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}
		if m.stale(peerID, p, gen) {
			return
		}
		m.bus.Send(model.Message{Type: model.KindVoiceICE, Payload: icePayload{
			To:        peerID,
			Candidate: c.ToJSON(),
		}})
	})
	conn.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		m.onConnState(peerID, p, gen, s)
	})
	conn.OnTrack(func(t *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		m.onTrack(peerID, p, gen, t)
	})

	if m.micTrack != nil {
		m.attachMicLocked(p)
	}
	return p, nil
}

// stale reports whether an async result belongs to a superseded generation
// or to a peer entry that has since been replaced.
func (m *Mesh) stale(peerID string, p *peer, gen uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.gen != gen || m.peers[peerID] != p
}

func (m *Mesh) onConnState(peerID string, p *peer, gen uint64, s webrtc.PeerConnectionState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.gen != gen || m.peers[peerID] != p {
		return
	}
	switch s {
	case webrtc.PeerConnectionStateConnected:
		p.state = stateConnected
		p.restartInFlight = false
		p.stopTeardown()
	case webrtc.PeerConnectionStateFailed:
		m.handleFailureLocked(p)
	case webrtc.PeerConnectionStateClosed:
		m.teardownLocked(p, false)
	}
}

// handleFailureLocked attempts one rate-limited ICE restart and schedules a
// forced teardown in case the connection never recovers.
func (m *Mesh) handleFailureLocked(p *peer) {
	now := m.now()
	if p.canRestart(now, m.restartCooldown) {
		p.restartInFlight = true
		p.lastRestart = now
		p.state = stateRestarting
		log.Info().Str("peer", p.id).Msg("ice failed, restarting")
		m.offerLocked(p.id, true)
	} else {
		p.state = stateFailed
	}
	m.scheduleTeardownLocked(p)
}

func (m *Mesh) scheduleTeardownLocked(p *peer) {
	if p.teardown != nil {
		return
	}
	peerID, gen := p.id, p.gen
	p.teardown = time.AfterFunc(m.teardownDelay, func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if m.gen != gen || m.peers[peerID] != p {
			return
		}
		if p.state == stateConnected {
			return
		}
		log.Info().Str("peer", peerID).Msg("connection never recovered, tearing down")
		m.teardownLocked(p, true)
	})
}

func (m *Mesh) teardownLocked(p *peer, notify bool) {
	p.stopTeardown()
	delete(m.peers, p.id)
	delete(m.pendingPlay, p.id)
	p.state = stateClosed
	if err := p.conn.Close(); err != nil {
		log.Debug().Str("peer", p.id).Err(err).Msg("closing peer connection")
	}
	m.sink.Release(p.id)
	if notify {
		m.bus.Send(model.Message{Type: model.KindVoiceHangup, Payload: hangupPayload{To: p.id}})
	}
}
