// Package call holds the per-call state machine and the registry that
// enforces the single-active-call rule.
package call

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/vibgyor/rtc/pkg/api"
	"github.com/vibgyor/rtc/pkg/config"
	"github.com/vibgyor/rtc/pkg/logger"
	"github.com/vibgyor/rtc/pkg/monitoring"
	"github.com/vibgyor/rtc/pkg/webrtc"
)

// Phase of one call attempt. Ended, Rejected and Failed are terminal.
type Phase uint8

const (
	Idle Phase = iota
	Initiating
	Ringing
	Incoming
	Connected
	Ended
	Rejected
	Failed
)

func (p Phase) String() string {
	switch p {
	case Initiating:
		return "initiating"
	case Ringing:
		return "ringing"
	case Incoming:
		return "incoming"
	case Connected:
		return "connected"
	case Ended:
		return "ended"
	case Rejected:
		return "rejected"
	case Failed:
		return "failed"
	}
	return "idle"
}

func (p Phase) Terminal() bool { return p == Ended || p == Rejected || p == Failed }

type Role uint8

const (
	Caller Role = iota
	Callee
)

func (r Role) String() string {
	if r == Callee {
		return "callee"
	}
	return "caller"
}

// MediaFlags is the local media intent, independent of negotiation.
type MediaFlags struct {
	Muted          bool
	VideoEnabled   bool
	ScreenSharing  bool
	SpeakerEnabled bool
}

// Engine is the media engine handle of one call. Implemented by
// webrtc.Session; tests use an in-package fake.
type Engine interface {
	CreateOffer() (api.SessionDescription, error)
	SetOffer(api.SessionDescription) error
	CreateAnswer() (api.SessionDescription, error)
	SetAnswer(api.SessionDescription) error
	AddICECandidate(api.ICECandidate) error
	OnICECandidate(func(api.ICECandidate))
	OnConnectionChange(func(webrtc.ConnState))
	OnTrack(func(kind string))
	SetTrackEnabled(kind string, on bool) error
	Stats() (webrtc.Stats, error)
	Close() error
}

// SendFunc transmits one event over the realtime channel.
type SendFunc func(event string, payload any)

// Control is the authoritative call-control surface (callapi.Client).
type Control interface {
	InitiateCall(ctx context.Context, chatID string, kind api.CallKind) (string, error)
	AcceptCall(ctx context.Context, callID string) error
	RejectCall(ctx context.Context, callID, reason string) error
	EndCall(ctx context.Context, callID, reason string) error
}

// Events are the local notifications a UI layer subscribes to.
type Events struct {
	OnPhase   func(callID string, phase Phase)
	OnQuality func(callID string, sample QualitySample)
	OnError   func(callID string, err error)
}

// Session drives one call attempt from initiation to a terminal phase.
type Session struct {
	ID     string
	ChatID string
	Role   Role
	Kind   api.CallKind
	From   string

	conf   config.Call
	log    *logger.Logger
	send   SendFunc
	ctl    Control
	events Events

	// onTerminal lets the registry clear the active slot.
	onTerminal func(id string)

	mu            sync.Mutex
	phase         Phase
	engine        Engine
	localSet      bool
	remoteSet     bool
	pendingRemote []api.ICECandidate
	storedOffer   *api.SessionDescription
	flags         MediaFlags
	quality       QualitySample
	samplerDone   chan struct{}
	released      bool
}

func (s *Session) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

func (s *Session) Flags() MediaFlags {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flags
}

func (s *Session) Quality() QualitySample {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.quality
}

// setPhase must be called under mu; the notification fires after the
// caller releases the lock.
func (s *Session) setPhase(p Phase) func() {
	s.phase = p
	s.log.Info().Msgf("call %v: %v", s.ID, p)
	if p.Terminal() {
		monitoring.Calls.WithLabelValues(p.String()).Inc()
	}
	id, fn := s.ID, s.events.OnPhase
	term := s.onTerminal
	return func() {
		if fn != nil {
			fn(id, p)
		}
		if p.Terminal() && term != nil {
			term(id)
		}
	}
}

// attachEngine wires the engine callbacks. Must be called under mu.
func (s *Session) attachEngine(e Engine) {
	s.engine = e
	e.OnICECandidate(func(c api.ICECandidate) {
		if s.Phase().Terminal() {
			return
		}
		s.send(api.EvCandidateOut, api.Candidate{CallID: s.ID, Candidate: c})
	})
	e.OnConnectionChange(s.onConnState)
	e.OnTrack(func(kind string) {
		s.log.Debug().Msgf("call %v: remote %v track", s.ID, kind)
	})
}

func (s *Session) onConnState(state webrtc.ConnState) {
	switch state {
	case webrtc.StateConnected:
		s.mu.Lock()
		if s.phase != Ringing && s.phase != Incoming {
			s.mu.Unlock()
			return
		}
		notify := s.setPhase(Connected)
		done := make(chan struct{})
		s.samplerDone = done
		engine := s.engine
		s.mu.Unlock()
		notify()
		go s.sampleQuality(engine, done)
	case webrtc.StateDisconnected, webrtc.StateFailed:
		s.fail(fmt.Errorf("%w: connection %v", ErrMedia, state))
	}
}

// initiate runs the caller side: fetch the call id over the control
// API, acquire the engine, send the offer and move to Ringing.
func (s *Session) initiate(ctx context.Context, engine Engine, err error) error {
	if err != nil {
		s.fail(fmt.Errorf("%w: %v", ErrMedia, err))
		return fmt.Errorf("%w: %v", ErrMedia, err)
	}

	s.mu.Lock()
	if s.phase.Terminal() {
		s.mu.Unlock()
		_ = engine.Close()
		return ErrTerminal
	}
	s.attachEngine(engine)
	s.mu.Unlock()

	s.send(api.EvCallInitiate, api.InitiateCall{CallID: s.ID, ChatID: s.ChatID, Kind: s.Kind})

	offer, err := engine.CreateOffer()
	if err != nil {
		s.fail(fmt.Errorf("%w: offer: %v", ErrNegotiation, err))
		return fmt.Errorf("%w: offer: %v", ErrNegotiation, err)
	}

	s.mu.Lock()
	if s.phase.Terminal() { // ended while the offer was in flight
		s.mu.Unlock()
		return ErrTerminal
	}
	s.localSet = true
	notify := s.setPhase(Ringing)
	s.mu.Unlock()

	s.send(api.EvOfferOut, api.Offer{CallID: s.ID, SDP: offer})
	notify()
	return nil
}

// Accept applies the stored remote offer exactly once, answers it and
// drains the candidates that arrived early. Accepting a call that is
// already connected reconciles silently.
func (s *Session) Accept(ctx context.Context, engine Engine, engineErr error) error {
	s.mu.Lock()
	switch {
	case s.phase == Connected:
		s.mu.Unlock()
		if engine != nil {
			_ = engine.Close()
		}
		return nil
	case s.phase.Terminal():
		s.mu.Unlock()
		if engine != nil {
			_ = engine.Close()
		}
		return ErrTerminal
	case s.phase != Incoming:
		phase := s.phase
		s.mu.Unlock()
		return fmt.Errorf("%w: accept in %v", ErrBadPhase, phase)
	}
	if engineErr != nil {
		s.mu.Unlock()
		err := fmt.Errorf("%w: %v", ErrMedia, engineErr)
		s.fail(err)
		return err
	}
	if s.remoteSet {
		// a duplicate accept mid-negotiation is a no-op
		s.mu.Unlock()
		if engine != nil {
			_ = engine.Close()
		}
		return nil
	}
	offer := s.storedOffer
	s.attachEngine(engine)
	s.mu.Unlock()

	if offer == nil {
		err := fmt.Errorf("%w: accept without an offer", ErrNegotiation)
		s.fail(err)
		return err
	}
	if err := engine.SetOffer(*offer); err != nil {
		err = fmt.Errorf("%w: remote offer: %v", ErrNegotiation, err)
		s.fail(err)
		return err
	}

	s.mu.Lock()
	if s.phase.Terminal() { // ended while the offer was being applied
		s.mu.Unlock()
		return ErrTerminal
	}
	if s.remoteSet { // a concurrent accept got there first
		s.mu.Unlock()
		return nil
	}
	s.remoteSet = true
	pending := s.pendingRemote
	s.pendingRemote = nil
	s.mu.Unlock()

	if err := s.ctl.AcceptCall(ctx, s.ID); err != nil {
		s.fail(err)
		return err
	}

	s.mu.Lock()
	if s.phase.Terminal() { // ended while the control call was in flight
		s.mu.Unlock()
		return ErrTerminal
	}
	s.mu.Unlock()
	s.send(api.EvCallAccept, api.AcceptCall{CallID: s.ID})

	answer, err := engine.CreateAnswer()
	if err != nil {
		err = fmt.Errorf("%w: answer: %v", ErrNegotiation, err)
		s.fail(err)
		return err
	}
	s.mu.Lock()
	if s.phase.Terminal() {
		s.mu.Unlock()
		return ErrTerminal
	}
	s.localSet = true
	s.mu.Unlock()
	s.send(api.EvAnswerOut, api.Answer{CallID: s.ID, SDP: answer})

	for _, c := range pending {
		if err := engine.AddICECandidate(c); err != nil {
			s.log.Warn().Msgf("call %v: drop early candidate: %v", s.ID, err)
		}
	}
	return nil
}

// Reject declines an incoming call and releases whatever was created.
func (s *Session) Reject(ctx context.Context, reason string) error {
	s.mu.Lock()
	if s.phase.Terminal() {
		s.mu.Unlock()
		return ErrTerminal
	}
	if s.phase != Incoming {
		phase := s.phase
		s.mu.Unlock()
		return fmt.Errorf("%w: reject in %v", ErrBadPhase, phase)
	}
	notify := s.setPhase(Rejected)
	s.releaseLocked()
	s.mu.Unlock()

	if err := s.ctl.RejectCall(ctx, s.ID, reason); err != nil {
		s.log.Warn().Msgf("call %v: reject over api: %v", s.ID, err)
	}
	s.send(api.EvCallReject, api.RejectCall{CallID: s.ID, Reason: reason})
	notify()
	return nil
}

// End terminates the call from any non-terminal phase. No further
// negotiation happens after it.
func (s *Session) End(ctx context.Context, reason string) error {
	s.mu.Lock()
	if s.phase.Terminal() {
		s.mu.Unlock()
		return ErrTerminal
	}
	notify := s.setPhase(Ended)
	s.releaseLocked()
	s.mu.Unlock()

	if err := s.ctl.EndCall(ctx, s.ID, reason); err != nil {
		s.log.Warn().Msgf("call %v: end over api: %v", s.ID, err)
	}
	s.send(api.EvCallEnd, api.EndCall{CallID: s.ID, Reason: reason})
	notify()
	return nil
}

// HandleOffer stores a remote offer that arrived after the invite.
// Applied on Accept, never here.
func (s *Session) HandleOffer(sdp api.SessionDescription) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase.Terminal() || s.remoteSet || s.Role != Callee {
		return
	}
	s.storedOffer = &sdp
}

// HandleAnswer applies the remote answer on the caller side, once.
func (s *Session) HandleAnswer(sdp api.SessionDescription) {
	s.mu.Lock()
	if s.phase.Terminal() || s.remoteSet {
		s.mu.Unlock()
		return
	}
	engine := s.engine
	s.mu.Unlock()
	if engine == nil {
		return
	}
	if err := engine.SetAnswer(sdp); err != nil {
		s.fail(fmt.Errorf("%w: remote answer: %v", ErrNegotiation, err))
		return
	}
	s.mu.Lock()
	if s.phase.Terminal() { // ended while the answer was being applied
		s.mu.Unlock()
		return
	}
	s.remoteSet = true
	pending := s.pendingRemote
	s.pendingRemote = nil
	s.mu.Unlock()
	for _, c := range pending {
		if err := engine.AddICECandidate(c); err != nil {
			s.log.Warn().Msgf("call %v: drop early candidate: %v", s.ID, err)
		}
	}
}

// HandleCandidate applies a remote candidate, or queues it while the
// remote description is not set yet.
func (s *Session) HandleCandidate(c api.ICECandidate) {
	s.mu.Lock()
	if s.phase.Terminal() {
		s.mu.Unlock()
		return
	}
	if !s.remoteSet {
		s.pendingRemote = append(s.pendingRemote, c)
		s.mu.Unlock()
		return
	}
	engine := s.engine
	s.mu.Unlock()
	if engine == nil {
		return
	}
	if err := engine.AddICECandidate(c); err != nil {
		s.log.Warn().Msgf("call %v: drop candidate: %v", s.ID, err)
	}
}

// HandleAccepted mirrors the counterpart's acceptance; connectivity
// itself arrives through the engine callback.
func (s *Session) HandleAccepted(by string) {
	s.log.Debug().Msgf("call %v: accepted by %v", s.ID, by)
}

// HandleRejected ends the caller side when the callee declines.
func (s *Session) HandleRejected(reason string) {
	s.mu.Lock()
	if s.phase.Terminal() {
		s.mu.Unlock()
		return
	}
	notify := s.setPhase(Rejected)
	s.releaseLocked()
	s.mu.Unlock()
	s.log.Info().Msgf("call %v: rejected (%v)", s.ID, reason)
	notify()
}

// HandleEnded finishes the call on the counterpart's hangup.
func (s *Session) HandleEnded(reason string) {
	s.mu.Lock()
	if s.phase.Terminal() {
		s.mu.Unlock()
		return
	}
	notify := s.setPhase(Ended)
	s.releaseLocked()
	s.mu.Unlock()
	s.log.Info().Msgf("call %v: ended (%v)", s.ID, reason)
	notify()
}

// HandleError fails the call on a server-reported error.
func (s *Session) HandleError(e api.CallError) {
	s.fail(fmt.Errorf("%w: %v", ErrNegotiation, e.Message))
}

// SetMuted, SetVideo, SetScreenShare and SetSpeaker flip the local
// media intent and push it into the engine when one exists.

func (s *Session) SetMuted(on bool) error {
	return s.toggle(func(f *MediaFlags) { f.Muted = on }, webrtc.TrackAudio, !on)
}

func (s *Session) SetVideo(on bool) error {
	return s.toggle(func(f *MediaFlags) { f.VideoEnabled = on }, webrtc.TrackVideo, on)
}

func (s *Session) SetScreenShare(on bool) error {
	return s.toggle(func(f *MediaFlags) { f.ScreenSharing = on }, webrtc.TrackVideo, true)
}

// SetSpeaker is playback routing, local intent only.
func (s *Session) SetSpeaker(on bool) error {
	return s.toggle(func(f *MediaFlags) { f.SpeakerEnabled = on }, "", false)
}

func (s *Session) toggle(mut func(*MediaFlags), track string, trackOn bool) error {
	s.mu.Lock()
	if s.phase.Terminal() {
		s.mu.Unlock()
		return ErrTerminal
	}
	mut(&s.flags)
	engine := s.engine
	s.mu.Unlock()
	if engine == nil || track == "" {
		return nil
	}
	return engine.SetTrackEnabled(track, trackOn)
}

func (s *Session) fail(err error) {
	s.mu.Lock()
	if s.phase.Terminal() {
		s.mu.Unlock()
		return
	}
	notify := s.setPhase(Failed)
	s.releaseLocked()
	id, onErr := s.ID, s.events.OnError
	s.mu.Unlock()

	s.log.Error().Err(err).Msgf("call %v failed", id)
	if onErr != nil {
		onErr(id, err)
	}
	notify()
}

// releaseLocked frees the engine exactly once. Must be called under mu.
func (s *Session) releaseLocked() {
	if s.released {
		return
	}
	s.released = true
	if s.samplerDone != nil {
		close(s.samplerDone)
		s.samplerDone = nil
	}
	if s.engine != nil {
		engine := s.engine
		s.engine = nil
		go func() { _ = engine.Close() }()
	}
	s.pendingRemote = nil
	s.storedOffer = nil
}

// sampleQuality periodically polls the engine stats while connected.
func (s *Session) sampleQuality(engine Engine, done chan struct{}) {
	interval := s.conf.QualityInterval
	if interval <= 0 {
		interval = 5 * time.Second
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			stats, err := engine.Stats()
			if err != nil {
				return
			}
			sample := QualitySample{
				LossPercent: stats.LossPercent,
				BitrateKbps: stats.BitrateKbps,
				Tier:        Classify(stats.LossPercent, stats.BitrateKbps),
			}
			s.mu.Lock()
			s.quality = sample
			id, fn := s.ID, s.events.OnQuality
			s.mu.Unlock()
			if fn != nil {
				fn(id, sample)
			}
		case <-done:
			return
		}
	}
}
