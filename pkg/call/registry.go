package call

import (
	"context"
	"fmt"
	"sync"

	"github.com/vibgyor/rtc/pkg/api"
	"github.com/vibgyor/rtc/pkg/config"
	"github.com/vibgyor/rtc/pkg/logger"
)

// EngineFactory acquires a media engine for one call.
type EngineFactory func(kind api.CallKind) (Engine, error)

// Registry owns the live call sessions and enforces that at most one
// of them is in a non-terminal phase.
type Registry struct {
	conf    config.Call
	log     *logger.Logger
	send    SendFunc
	ctl     Control
	engines EngineFactory
	events  Events

	mu         sync.Mutex
	active     string
	initiating bool // an Initiate holds the slot while its id is in flight
	sessions   map[string]*Session
}

func NewRegistry(conf config.Call, ctl Control, send SendFunc, engines EngineFactory, events Events, log *logger.Logger) *Registry {
	return &Registry{
		conf:     conf,
		log:      log,
		send:     send,
		ctl:      ctl,
		engines:  engines,
		events:   events,
		sessions: make(map[string]*Session),
	}
}

// Active returns the current non-terminal session, if any.
func (r *Registry) Active() *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sessions[r.active]
}

func (r *Registry) newSession(id, chatID string, role Role, kind api.CallKind, phase Phase) *Session {
	s := &Session{
		ID:         id,
		ChatID:     chatID,
		Role:       role,
		Kind:       kind,
		conf:       r.conf,
		log:        r.log.Extend(r.log.With().Str("call", id)),
		send:       r.send,
		ctl:        r.ctl,
		events:     r.events,
		onTerminal: r.clear,
		phase:      phase,
	}
	r.sessions[id] = s
	r.active = id
	return s
}

// Initiate starts an outgoing call. The call id comes from the control
// API; the offer goes out right away and the session rings until the
// media path connects.
func (r *Registry) Initiate(ctx context.Context, chatID string, kind api.CallKind) (*Session, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("unknown call kind %q", kind)
	}

	r.mu.Lock()
	if r.busyLocked() {
		r.mu.Unlock()
		return nil, ErrCallInProgress
	}
	r.initiating = true
	r.mu.Unlock()

	id, err := r.ctl.InitiateCall(ctx, chatID, kind)
	if err != nil {
		r.mu.Lock()
		r.initiating = false
		r.mu.Unlock()
		return nil, err
	}

	r.mu.Lock()
	r.initiating = false
	s := r.newSession(id, chatID, Caller, kind, Initiating)
	r.mu.Unlock()

	if r.events.OnPhase != nil {
		r.events.OnPhase(id, Initiating)
	}

	engine, engineErr := r.engines(kind)
	if err := s.initiate(ctx, engine, engineErr); err != nil {
		return s, err
	}
	return s, nil
}

// HandleIncoming registers an incoming call in phase Incoming. The
// offer is stored, not applied, until Accept. A busy client declines
// right away instead of queueing.
func (r *Registry) HandleIncoming(ctx context.Context, inc api.IncomingCall) (*Session, error) {
	kind := inc.Kind
	if kind == "" {
		kind = api.CallAudio
	}

	r.mu.Lock()
	if s, ok := r.sessions[inc.CallID]; ok {
		r.mu.Unlock()
		return s, nil // replayed invite
	}
	if r.busyLocked() {
		r.mu.Unlock()
		if err := r.ctl.RejectCall(ctx, inc.CallID, "busy"); err != nil {
			r.log.Warn().Msgf("decline %v while busy: %v", inc.CallID, err)
		}
		return nil, ErrCallInProgress
	}
	s := r.newSession(inc.CallID, inc.ChatID, Callee, kind, Incoming)
	s.From = inc.From
	s.storedOffer = inc.Offer
	r.mu.Unlock()

	if r.events.OnPhase != nil {
		r.events.OnPhase(inc.CallID, Incoming)
	}
	return s, nil
}

// busyLocked must be called under mu.
func (r *Registry) busyLocked() bool {
	if r.initiating {
		return true
	}
	s := r.sessions[r.active]
	return s != nil && !s.Phase().Terminal()
}

// Accept answers the active incoming call.
func (r *Registry) Accept(ctx context.Context) error {
	s := r.Active()
	if s == nil {
		return ErrNoCall
	}
	engine, err := r.engines(s.Kind)
	return s.Accept(ctx, engine, err)
}

// Reject declines the active incoming call.
func (r *Registry) Reject(ctx context.Context, reason string) error {
	s := r.Active()
	if s == nil {
		return ErrNoCall
	}
	return s.Reject(ctx, reason)
}

// End hangs up the active call.
func (r *Registry) End(ctx context.Context, reason string) error {
	s := r.Active()
	if s == nil {
		return ErrNoCall
	}
	return s.End(ctx, reason)
}

// clear drops a session once it turns terminal.
func (r *Registry) clear(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
	if r.active == id {
		r.active = ""
	}
}

// Inbound signaling routed by call id. Events for ids the registry
// does not know are dropped here; the transport buffer upstream covers
// the no-handler-at-all races.

func (r *Registry) byID(id string) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sessions[id]
}

func (r *Registry) HandleOffer(p api.Offer) {
	if s := r.byID(p.CallID); s != nil {
		s.HandleOffer(p.SDP)
	}
}

func (r *Registry) HandleAnswer(p api.Answer) {
	if s := r.byID(p.CallID); s != nil {
		s.HandleAnswer(p.SDP)
	} else {
		r.log.Debug().Msgf("answer for unknown call %v", p.CallID)
	}
}

func (r *Registry) HandleCandidate(p api.Candidate) {
	if s := r.byID(p.CallID); s != nil {
		s.HandleCandidate(p.Candidate)
	}
}

func (r *Registry) HandleAccepted(p api.CallAccepted) {
	if s := r.byID(p.CallID); s != nil {
		s.HandleAccepted(p.By)
	}
}

func (r *Registry) HandleRejected(p api.CallRejected) {
	if s := r.byID(p.CallID); s != nil {
		s.HandleRejected(p.Reason)
	}
}

func (r *Registry) HandleEnded(p api.CallEnded) {
	if s := r.byID(p.CallID); s != nil {
		s.HandleEnded(p.Reason)
	}
}

func (r *Registry) HandleError(p api.CallError) {
	if s := r.byID(p.CallID); s != nil {
		s.HandleError(p)
	}
}
