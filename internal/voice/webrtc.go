package voice

import (
	"fmt"

	"github.com/pion/webrtc/v4"
)

// rtcConn is the slice of *webrtc.PeerConnection the mesh drives. Tests
// substitute a fake; production uses pion through newPionFactory.
type rtcConn interface {
	SetRemoteDescription(desc webrtc.SessionDescription) error
	RemoteDescription() *webrtc.SessionDescription
	CreateOffer(options *webrtc.OfferOptions) (webrtc.SessionDescription, error)
	CreateAnswer(options *webrtc.AnswerOptions) (webrtc.SessionDescription, error)
	SetLocalDescription(desc webrtc.SessionDescription) error
	AddICECandidate(candidate webrtc.ICECandidateInit) error
	SignalingState() webrtc.SignalingState
	ConnectionState() webrtc.PeerConnectionState
	GetSenders() []*webrtc.RTPSender
	OnICECandidate(f func(*webrtc.ICECandidate))
	OnConnectionStateChange(f func(webrtc.PeerConnectionState))
	OnTrack(f func(*webrtc.TrackRemote, *webrtc.RTPReceiver))
	Close() error
}

type connFactory func() (rtcConn, error)

// newPionFactory builds audio-only peer connections against the given STUN
// server. Every connection pre-negotiates one bidirectional audio
// transceiver so enabling the microphone later is a track replace rather
// than a renegotiation.
func newPionFactory(stunURL string) connFactory {
	return func() (rtcConn, error) {
		pc, err := webrtc.NewPeerConnection(webrtc.Configuration{
			ICEServers: []webrtc.ICEServer{{URLs: []string{stunURL}}},
		})
		if err != nil {
			return nil, fmt.Errorf("create peer connection: %w", err)
		}
		_, err = pc.AddTransceiverFromKind(webrtc.RTPCodecTypeAudio, webrtc.RTPTransceiverInit{
			Direction: webrtc.RTPTransceiverDirectionSendrecv,
		})
		if err != nil {
			pc.Close()
			return nil, fmt.Errorf("add audio transceiver: %w", err)
		}
		return pc, nil
	}
}
