package voice

import (
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

// AudioSink renders remote audio, one logical output per peer with an
// independently settable gain. The real implementation lives in the UI
// layer; NopSink serves headless callers.
type AudioSink interface {
	Play(peerID string, track *webrtc.TrackRemote) error
	SetGain(peerID string, gain float64)
	Release(peerID string)
}

// NopSink discards all audio.
type NopSink struct{}

func (NopSink) Play(string, *webrtc.TrackRemote) error { return nil }
func (NopSink) SetGain(string, float64)                {}
func (NopSink) Release(string)                         {}

// Unlock marks playback as permitted (the first user input gesture) and
// flushes every track buffered before that point. Per-peer play failures
// are swallowed individually so one broken output cannot block the rest.
func (m *Mesh) Unlock() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.unlocked {
		return
	}
	m.unlocked = true
	for id, track := range m.pendingPlay {
		if err := m.sink.Play(id, track); err != nil {
			log.Debug().Str("peer", id).Err(err).Msg("deferred playback failed")
		}
		delete(m.pendingPlay, id)
	}
}

// SetGain adjusts one peer's playback volume without touching the others.
func (m *Mesh) SetGain(peerID string, gain float64) {
	m.sink.SetGain(peerID, gain)
}

func (m *Mesh) onTrack(peerID string, p *peer, gen uint64, track *webrtc.TrackRemote) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.gen != gen || m.peers[peerID] != p {
		return
	}
	if !m.unlocked {
		// Browsers forbid unprompted playback; park the track until the
		// first qualifying gesture.
		m.pendingPlay[peerID] = track
		return
	}
	if err := m.sink.Play(peerID, track); err != nil {
		log.Debug().Str("peer", peerID).Err(err).Msg("playback failed")
	}
}
