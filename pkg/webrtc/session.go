// Package webrtc wraps the Pion stack into the narrow media engine
// surface the call logic consumes: negotiation primitives, track
// toggling and live receive statistics.
package webrtc

import (
	"fmt"
	"sync"
	"time"

	pion "github.com/pion/webrtc/v3"

	"github.com/vibgyor/rtc/pkg/api"
	"github.com/vibgyor/rtc/pkg/logger"
)

// ConnState is the subset of peer connection states the call logic
// reacts to.
type ConnState uint8

const (
	StateConnecting ConnState = iota
	StateConnected
	StateDisconnected
	StateFailed
	StateClosed
)

func (s ConnState) String() string {
	switch s {
	case StateConnected:
		return "connected"
	case StateDisconnected:
		return "disconnected"
	case StateFailed:
		return "failed"
	case StateClosed:
		return "closed"
	}
	return "connecting"
}

// Stats is one live sample of the receiving side of the connection.
type Stats struct {
	LossPercent float64
	BitrateKbps float64
}

// Session is one peer connection with its local tracks.
type Session struct {
	conn *pion.PeerConnection
	log  *logger.Logger

	mu      sync.Mutex
	senders map[string]*pion.RTPSender
	tracks  map[string]pion.TrackLocal
	prev    statsSample
	closed  bool
}

type statsSample struct {
	at       time.Time
	received uint32
	lost     int32
	bytes    uint64
}

const (
	TrackAudio = "audio"
	TrackVideo = "video"
)

// NewSession builds a peer connection with an audio track and, for
// video calls, a video track.
func NewSession(peer *Peer, kind api.CallKind, log *logger.Logger) (*Session, error) {
	conn, err := peer.NewPeer()
	if err != nil {
		return nil, err
	}
	s := &Session{
		conn:    conn,
		log:     log,
		senders: make(map[string]*pion.RTPSender),
		tracks:  make(map[string]pion.TrackLocal),
	}

	audio, err := pion.NewTrackLocalStaticSample(
		pion.RTPCodecCapability{MimeType: pion.MimeTypeOpus}, TrackAudio, "rtc-audio")
	if err != nil {
		return nil, err
	}
	if err := s.addTrack(TrackAudio, audio); err != nil {
		return nil, err
	}

	if kind == api.CallVideo {
		video, err := pion.NewTrackLocalStaticSample(
			pion.RTPCodecCapability{MimeType: pion.MimeTypeVP8}, TrackVideo, "rtc-video")
		if err != nil {
			return nil, err
		}
		if err := s.addTrack(TrackVideo, video); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *Session) addTrack(kind string, track pion.TrackLocal) error {
	sender, err := s.conn.AddTrack(track)
	if err != nil {
		return err
	}
	s.senders[kind] = sender
	s.tracks[kind] = track
	return nil
}

func (s *Session) CreateOffer() (api.SessionDescription, error) {
	offer, err := s.conn.CreateOffer(nil)
	if err != nil {
		return api.SessionDescription{}, err
	}
	if err = s.conn.SetLocalDescription(offer); err != nil {
		return api.SessionDescription{}, err
	}
	return fromPion(offer), nil
}

func (s *Session) SetOffer(sdp api.SessionDescription) error {
	return s.conn.SetRemoteDescription(toPion(sdp))
}

func (s *Session) CreateAnswer() (api.SessionDescription, error) {
	answer, err := s.conn.CreateAnswer(nil)
	if err != nil {
		return api.SessionDescription{}, err
	}
	if err = s.conn.SetLocalDescription(answer); err != nil {
		return api.SessionDescription{}, err
	}
	return fromPion(answer), nil
}

func (s *Session) SetAnswer(sdp api.SessionDescription) error {
	return s.conn.SetRemoteDescription(toPion(sdp))
}

func (s *Session) AddICECandidate(candidate api.ICECandidate) error {
	return s.conn.AddICECandidate(pion.ICECandidateInit{
		Candidate:     candidate.Candidate,
		SDPMid:        candidate.SDPMid,
		SDPMLineIndex: candidate.SDPMLineIndex,
	})
}

// OnICECandidate streams trickled local candidates. The terminating
// nil candidate of the gatherer is not forwarded.
func (s *Session) OnICECandidate(fn func(api.ICECandidate)) {
	s.conn.OnICECandidate(func(c *pion.ICECandidate) {
		if c == nil {
			return
		}
		init := c.ToJSON()
		fn(api.ICECandidate{
			Candidate:     init.Candidate,
			SDPMid:        init.SDPMid,
			SDPMLineIndex: init.SDPMLineIndex,
		})
	})
}

func (s *Session) OnConnectionChange(fn func(state ConnState)) {
	s.conn.OnConnectionStateChange(func(state pion.PeerConnectionState) {
		s.log.Debug().Msgf("peer connection state: %v", state)
		switch state {
		case pion.PeerConnectionStateConnected:
			fn(StateConnected)
		case pion.PeerConnectionStateDisconnected:
			fn(StateDisconnected)
		case pion.PeerConnectionStateFailed:
			fn(StateFailed)
		case pion.PeerConnectionStateClosed:
			fn(StateClosed)
		}
	})
}

// OnTrack reports the kind of every remote track as it arrives.
func (s *Session) OnTrack(fn func(kind string)) {
	s.conn.OnTrack(func(track *pion.TrackRemote, _ *pion.RTPReceiver) {
		fn(track.Kind().String())
	})
}

// SetTrackEnabled pauses or resumes a local track without
// renegotiation by swapping the track out of its sender.
func (s *Session) SetTrackEnabled(kind string, on bool) error {
	s.mu.Lock()
	sender, ok := s.senders[kind]
	track := s.tracks[kind]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("no %v track in this call", kind)
	}
	if on {
		return sender.ReplaceTrack(track)
	}
	return sender.ReplaceTrack(nil)
}

// Stats samples the inbound streams and reports loss and bitrate as
// deltas since the previous call. The first call primes the sample and
// reports zeros.
func (s *Session) Stats() (Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return Stats{}, fmt.Errorf("session closed")
	}

	cur := statsSample{at: time.Now()}
	for _, stat := range s.conn.GetStats() {
		if in, ok := stat.(pion.InboundRTPStreamStats); ok {
			cur.received += in.PacketsReceived
			cur.lost += in.PacketsLost
			cur.bytes += in.BytesReceived
		}
	}

	prev := s.prev
	s.prev = cur
	if prev.at.IsZero() {
		return Stats{}, nil
	}

	recvD := float64(cur.received) - float64(prev.received)
	lostD := float64(cur.lost) - float64(prev.lost)
	if lostD < 0 {
		lostD = 0
	}
	var out Stats
	if total := recvD + lostD; total > 0 {
		out.LossPercent = lostD / total * 100
	}
	if elapsed := cur.at.Sub(prev.at).Seconds(); elapsed > 0 {
		out.BitrateKbps = (float64(cur.bytes) - float64(prev.bytes)) * 8 / 1000 / elapsed
	}
	return out, nil
}

func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()
	return s.conn.Close()
}

func toPion(sdp api.SessionDescription) pion.SessionDescription {
	return pion.SessionDescription{Type: pion.NewSDPType(sdp.Type), SDP: sdp.SDP}
}

func fromPion(sdp pion.SessionDescription) api.SessionDescription {
	return api.SessionDescription{Type: sdp.Type.String(), SDP: sdp.SDP}
}
