package voice

import (
	"fmt"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

// DeviceOpener acquires the local audio capture device and returns the track
// it feeds plus a release function. Opening may prompt the user and fail
// with a permission error.
type DeviceOpener func() (*webrtc.TrackLocalStaticSample, func(), error)

// AcquireMic opens the capture device once; further calls while a track is
// held are no-ops. On success the track is attached to every live peer
// connection via a track replace on the pre-negotiated transceiver, so no
// renegotiation happens. On failure the error text is retained for UI
// display and no peer is affected.
func (m *Mesh) AcquireMic(open DeviceOpener) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrMeshClosed
	}
	if m.micTrack != nil {
		m.mu.Unlock()
		return nil
	}
	m.mu.Unlock()

	// The device request may block on a user prompt; keep it off the lock.
	track, release, err := open()

	m.mu.Lock()
	defer m.mu.Unlock()
	if err != nil {
		m.micErr = err.Error()
		return fmt.Errorf("acquire microphone: %w", err)
	}
	if m.closed || m.micTrack != nil {
		// Closed meanwhile, or a concurrent acquire won the race.
		release()
		if m.closed {
			return ErrMeshClosed
		}
		return nil
	}
	m.micTrack = track
	m.micRelease = release
	m.micErr = ""
	for _, p := range m.peers {
		m.attachMicLocked(p)
	}
	return nil
}

// SetMuted toggles the microphone without renegotiating or releasing the
// device. The capture pipeline consults Muted before writing samples.
func (m *Mesh) SetMuted(muted bool) {
	m.mu.Lock()
	m.micMuted = muted
	m.mu.Unlock()
}

func (m *Mesh) Muted() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.micMuted
}

// MicError returns the retained text of the last device failure, empty when
// the microphone is healthy.
func (m *Mesh) MicError() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.micErr
}

// ReleaseMic detaches the capture track from every peer and releases the
// device.
func (m *Mesh) ReleaseMic() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.releaseMicLocked()
}

func (m *Mesh) attachMicLocked(p *peer) {
	for _, s := range p.conn.GetSenders() {
		if err := s.ReplaceTrack(m.micTrack); err != nil {
			log.Warn().Str("peer", p.id).Err(err).Msg("attaching mic track failed")
		}
	}
}

func (m *Mesh) releaseMicLocked() {
	if m.micTrack == nil {
		return
	}
	for _, p := range m.peers {
		for _, s := range p.conn.GetSenders() {
			if err := s.ReplaceTrack(nil); err != nil {
				log.Debug().Str("peer", p.id).Err(err).Msg("detaching mic track failed")
			}
		}
	}
	if m.micRelease != nil {
		m.micRelease()
	}
	m.micTrack = nil
	m.micRelease = nil
}
