package voice

import (
	"time"

	"github.com/pion/webrtc/v4"
)

type peerState int

const (
	stateNew peerState = iota
	stateNegotiating
	stateConnected
	stateFailed
	stateRestarting
	stateClosed
)

func (s peerState) String() string {
	switch s {
	case stateNew:
		return "new"
	case stateNegotiating:
		return "negotiating"
	case stateConnected:
		return "connected"
	case stateFailed:
		return "failed"
	case stateRestarting:
		return "restarting"
	case stateClosed:
		return "closed"
	}
	return "unknown"
}

// peer tracks one remote participant's connection: negotiation state, ICE
// candidates that arrived ahead of the remote description, and the restart
// bookkeeping that rate-limits recovery attempts.
type peer struct {
	id    string
	conn  rtcConn
	state peerState
	gen   uint64

	pendingCandidates []webrtc.ICECandidateInit

	restartInFlight bool
	lastRestart     time.Time
	teardown        *time.Timer
}

// addCandidate applies an ICE candidate, buffering it when no remote
// description has been set yet.
func (p *peer) addCandidate(cand webrtc.ICECandidateInit) error {
	if p.conn.RemoteDescription() == nil {
		p.pendingCandidates = append(p.pendingCandidates, cand)
		return nil
	}
	return p.conn.AddICECandidate(cand)
}

// flushCandidates applies everything buffered before the remote description
// arrived. Individual failures are returned for logging but do not stop the
// rest of the batch.
func (p *peer) flushCandidates() []error {
	var errs []error
	for _, cand := range p.pendingCandidates {
		if err := p.conn.AddICECandidate(cand); err != nil {
			errs = append(errs, err)
		}
	}
	p.pendingCandidates = nil
	return errs
}

// canRestart gates ICE restarts: at most one in flight, only from a stable
// signaling state, and never within the cooldown of a previous attempt.
func (p *peer) canRestart(now time.Time, cooldown time.Duration) bool {
	if p.restartInFlight {
		return false
	}
	if p.conn.SignalingState() != webrtc.SignalingStateStable {
		return false
	}
	if !p.lastRestart.IsZero() && now.Sub(p.lastRestart) < cooldown {
		return false
	}
	return true
}

func (p *peer) stopTeardown() {
	if p.teardown != nil {
		p.teardown.Stop()
		p.teardown = nil
	}
}
