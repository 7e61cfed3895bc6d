package call

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/vibgyor/rtc/pkg/api"
	"github.com/vibgyor/rtc/pkg/config"
	"github.com/vibgyor/rtc/pkg/logger"
	"github.com/vibgyor/rtc/pkg/webrtc"
)

type fakeEngine struct {
	mu         sync.Mutex
	offers     int
	answers    int
	offersSet  int
	answersSet int
	candidates []string
	toggles    []string
	closed     bool
	failOffer  bool

	// gates for suspending SetOffer mid-call
	offerEntered chan struct{}
	offerRelease chan struct{}

	onConn func(webrtc.ConnState)
	onICE  func(api.ICECandidate)
	stats  webrtc.Stats
}

func (e *fakeEngine) CreateOffer() (api.SessionDescription, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.failOffer {
		return api.SessionDescription{}, errors.New("no media device")
	}
	e.offers++
	return api.SessionDescription{Type: "offer", SDP: "v=0 local"}, nil
}

func (e *fakeEngine) SetOffer(api.SessionDescription) error {
	e.mu.Lock()
	entered, release := e.offerEntered, e.offerRelease
	e.offerEntered = nil
	e.mu.Unlock()
	if entered != nil {
		close(entered)
	}
	if release != nil {
		<-release
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.offersSet++
	return nil
}

func (e *fakeEngine) CreateAnswer() (api.SessionDescription, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.answers++
	return api.SessionDescription{Type: "answer", SDP: "v=0 local"}, nil
}

func (e *fakeEngine) SetAnswer(api.SessionDescription) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.answersSet++
	return nil
}

func (e *fakeEngine) AddICECandidate(c api.ICECandidate) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.candidates = append(e.candidates, c.Candidate)
	return nil
}

func (e *fakeEngine) OnICECandidate(fn func(api.ICECandidate))     { e.onICE = fn }
func (e *fakeEngine) OnConnectionChange(fn func(webrtc.ConnState)) { e.onConn = fn }
func (e *fakeEngine) OnTrack(func(kind string))                    {}

func (e *fakeEngine) SetTrackEnabled(kind string, on bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	state := "off"
	if on {
		state = "on"
	}
	e.toggles = append(e.toggles, kind+":"+state)
	return nil
}

func (e *fakeEngine) Stats() (webrtc.Stats, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stats, nil
}

func (e *fakeEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}

func (e *fakeEngine) isClosed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

func (e *fakeEngine) connect() { e.onConn(webrtc.StateConnected) }

type fakeControl struct {
	mu        sync.Mutex
	nextID    string
	initErr   error
	initiated []string
	accepted  []string
	rejected  []string
	ended     []string
}

func (c *fakeControl) InitiateCall(_ context.Context, chatID string, _ api.CallKind) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.initErr != nil {
		return "", c.initErr
	}
	c.initiated = append(c.initiated, chatID)
	return c.nextID, nil
}

func (c *fakeControl) AcceptCall(_ context.Context, callID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.accepted = append(c.accepted, callID)
	return nil
}

func (c *fakeControl) RejectCall(_ context.Context, callID, reason string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rejected = append(c.rejected, callID+":"+reason)
	return nil
}

func (c *fakeControl) EndCall(_ context.Context, callID, _ string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ended = append(c.ended, callID)
	return nil
}

type sentLog struct {
	mu     sync.Mutex
	events []string
}

func (l *sentLog) send(event string, _ any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, event)
}

func (l *sentLog) has(event string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, e := range l.events {
		if e == event {
			return true
		}
	}
	return false
}

type harness struct {
	reg    *Registry
	ctl    *fakeControl
	sent   *sentLog
	engine *fakeEngine
}

func newHarness(events Events) *harness {
	h := &harness{
		ctl:    &fakeControl{nextID: "c1"},
		sent:   &sentLog{},
		engine: &fakeEngine{},
	}
	factory := func(api.CallKind) (Engine, error) { return h.engine, nil }
	conf := config.Call{QualityInterval: 10 * time.Millisecond}
	h.reg = NewRegistry(conf, h.ctl, h.sent.send, factory, events, logger.Default())
	return h
}

func awaitTrue(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %v", what)
}

var remoteOffer = api.SessionDescription{Type: "offer", SDP: "v=0 remote"}

func incoming(id string) api.IncomingCall {
	return api.IncomingCall{CallID: id, ChatID: "ch", From: "alice", Kind: api.CallAudio, Offer: &remoteOffer}
}

func TestCallerHappyPath(t *testing.T) {
	h := newHarness(Events{})
	ctx := context.Background()

	s, err := h.reg.Initiate(ctx, "ch", api.CallAudio)
	if err != nil {
		t.Fatal(err)
	}
	if s.Phase() != Ringing {
		t.Fatalf("phase after initiate = %v, want ringing", s.Phase())
	}
	if !h.sent.has(api.EvCallInitiate) || !h.sent.has(api.EvOfferOut) {
		t.Fatalf("outbound events: %v", h.sent.events)
	}

	s.HandleAnswer(api.SessionDescription{Type: "answer", SDP: "v=0 remote"})
	s.HandleAnswer(api.SessionDescription{Type: "answer", SDP: "v=0 remote"}) // replay
	if h.engine.answersSet != 1 {
		t.Errorf("remote answer applied %v times, want 1", h.engine.answersSet)
	}

	h.engine.connect()
	if s.Phase() != Connected {
		t.Errorf("phase = %v, want connected", s.Phase())
	}
	if h.engine.offers != 1 {
		t.Errorf("created %v offers, want 1 (no re-offer)", h.engine.offers)
	}
}

func TestCalleeHappyPath(t *testing.T) {
	h := newHarness(Events{})
	ctx := context.Background()

	s, err := h.reg.HandleIncoming(ctx, incoming("c7"))
	if err != nil {
		t.Fatal(err)
	}
	if s.Phase() != Incoming {
		t.Fatalf("phase = %v, want incoming", s.Phase())
	}
	if h.engine.offersSet != 0 {
		t.Fatal("offer applied before accept")
	}

	if err := h.reg.Accept(ctx); err != nil {
		t.Fatal(err)
	}
	if h.engine.offersSet != 1 || h.engine.answers != 1 {
		t.Errorf("offersSet=%v answers=%v, want 1/1", h.engine.offersSet, h.engine.answers)
	}
	if len(h.ctl.accepted) != 1 {
		t.Errorf("control accept calls: %v", h.ctl.accepted)
	}
	if !h.sent.has(api.EvAnswerOut) {
		t.Errorf("no answer sent: %v", h.sent.events)
	}

	h.engine.connect()
	if s.Phase() != Connected {
		t.Errorf("phase = %v, want connected", s.Phase())
	}
}

func TestEarlyCandidatesDrainedInOrder(t *testing.T) {
	h := newHarness(Events{})
	ctx := context.Background()

	s, err := h.reg.HandleIncoming(ctx, incoming("c7"))
	if err != nil {
		t.Fatal(err)
	}
	for _, c := range []string{"a", "b", "c"} {
		s.HandleCandidate(api.ICECandidate{Candidate: c})
	}
	if len(h.engine.candidates) != 0 {
		t.Fatal("candidate applied before the remote description")
	}

	if err := h.reg.Accept(ctx); err != nil {
		t.Fatal(err)
	}
	want := []string{"a", "b", "c"}
	if len(h.engine.candidates) != len(want) {
		t.Fatalf("applied %v candidates, want %v", len(h.engine.candidates), len(want))
	}
	for i := range want {
		if h.engine.candidates[i] != want[i] {
			t.Errorf("candidate %v = %v, want %v", i, h.engine.candidates[i], want[i])
		}
	}

	// late candidates skip the queue now
	s.HandleCandidate(api.ICECandidate{Candidate: "d"})
	if len(h.engine.candidates) != 4 {
		t.Errorf("late candidate not applied directly")
	}
}

func TestSecondCallRejected(t *testing.T) {
	h := newHarness(Events{})
	ctx := context.Background()

	if _, err := h.reg.Initiate(ctx, "ch", api.CallAudio); err != nil {
		t.Fatal(err)
	}
	if _, err := h.reg.Initiate(ctx, "ch2", api.CallAudio); !errors.Is(err, ErrCallInProgress) {
		t.Errorf("second initiate: %v, want ErrCallInProgress", err)
	}
	if _, err := h.reg.HandleIncoming(ctx, incoming("c9")); !errors.Is(err, ErrCallInProgress) {
		t.Errorf("incoming while busy: %v, want ErrCallInProgress", err)
	}
	if len(h.ctl.rejected) != 1 || h.ctl.rejected[0] != "c9:busy" {
		t.Errorf("busy incoming not declined: %v", h.ctl.rejected)
	}
}

func TestDuplicateAcceptReconciles(t *testing.T) {
	h := newHarness(Events{})
	ctx := context.Background()

	s, err := h.reg.HandleIncoming(ctx, incoming("c7"))
	if err != nil {
		t.Fatal(err)
	}
	if err := h.reg.Accept(ctx); err != nil {
		t.Fatal(err)
	}
	h.engine.connect()
	if s.Phase() != Connected {
		t.Fatal("not connected")
	}

	spare := &fakeEngine{}
	if err := s.Accept(ctx, spare, nil); err != nil {
		t.Errorf("duplicate accept on connected: %v, want nil", err)
	}
	if h.engine.offersSet != 1 {
		t.Errorf("duplicate accept renegotiated")
	}
	if !spare.isClosed() {
		t.Errorf("spare engine leaked")
	}
}

func TestEndFromRingingReleasesEngine(t *testing.T) {
	h := newHarness(Events{})
	ctx := context.Background()

	s, err := h.reg.Initiate(ctx, "ch", api.CallAudio)
	if err != nil {
		t.Fatal(err)
	}
	if err := h.reg.End(ctx, "user_ended"); err != nil {
		t.Fatal(err)
	}
	if s.Phase() != Ended {
		t.Fatalf("phase = %v, want ended", s.Phase())
	}
	awaitTrue(t, "engine release", h.engine.isClosed)
	if len(h.ctl.ended) != 1 {
		t.Errorf("control end calls: %v", h.ctl.ended)
	}
	if h.reg.Active() != nil {
		t.Errorf("session kept after terminal phase")
	}
	// no negotiation after the hangup
	s.HandleAnswer(api.SessionDescription{Type: "answer", SDP: "v=0"})
	if h.engine.answersSet != 0 {
		t.Errorf("answer applied after end")
	}
}

func TestEndDuringAcceptStopsNegotiation(t *testing.T) {
	h := newHarness(Events{})
	ctx := context.Background()

	h.engine.offerEntered = make(chan struct{})
	h.engine.offerRelease = make(chan struct{})

	s, err := h.reg.HandleIncoming(ctx, incoming("c7"))
	if err != nil {
		t.Fatal(err)
	}

	acceptErr := make(chan error, 1)
	go func() { acceptErr <- h.reg.Accept(ctx) }()
	<-h.engine.offerEntered

	// hangup lands while the remote offer is still being applied
	if err := h.reg.End(ctx, "user_ended"); err != nil {
		t.Fatal(err)
	}
	close(h.engine.offerRelease)

	if err := <-acceptErr; !errors.Is(err, ErrTerminal) {
		t.Fatalf("accept after end = %v, want ErrTerminal", err)
	}
	if s.Phase() != Ended {
		t.Fatalf("phase = %v, want ended", s.Phase())
	}
	if len(h.ctl.accepted) != 0 {
		t.Errorf("control accept fired for an ended call: %v", h.ctl.accepted)
	}
	if h.sent.has(api.EvCallAccept) || h.sent.has(api.EvAnswerOut) {
		t.Errorf("negotiation continued after end: %v", h.sent.events)
	}
	awaitTrue(t, "engine release", h.engine.isClosed)
	if h.engine.answers != 0 {
		t.Errorf("answer created on a released engine")
	}
}

func TestRejectIncoming(t *testing.T) {
	var phases []Phase
	h := newHarness(Events{OnPhase: func(_ string, p Phase) { phases = append(phases, p) }})
	ctx := context.Background()

	if _, err := h.reg.HandleIncoming(ctx, incoming("c7")); err != nil {
		t.Fatal(err)
	}
	if err := h.reg.Reject(ctx, "declined"); err != nil {
		t.Fatal(err)
	}
	if len(h.ctl.rejected) != 1 || h.ctl.rejected[0] != "c7:declined" {
		t.Errorf("control reject: %v", h.ctl.rejected)
	}
	if !h.sent.has(api.EvCallReject) {
		t.Errorf("no reject event sent")
	}
	if h.reg.Active() != nil {
		t.Errorf("rejected session kept")
	}
	if len(phases) != 2 || phases[0] != Incoming || phases[1] != Rejected {
		t.Errorf("phases = %v", phases)
	}
}

func TestMediaFailureOnInitiate(t *testing.T) {
	var gotErr error
	h := newHarness(Events{OnError: func(_ string, err error) { gotErr = err }})
	h.engine.failOffer = true
	ctx := context.Background()

	s, err := h.reg.Initiate(ctx, "ch", api.CallAudio)
	if !errors.Is(err, ErrNegotiation) {
		t.Fatalf("err = %v", err)
	}
	if s.Phase() != Failed {
		t.Errorf("phase = %v, want failed", s.Phase())
	}
	if gotErr == nil {
		t.Errorf("failure not surfaced")
	}
	if h.reg.Active() != nil {
		t.Errorf("failed session kept")
	}
}

func TestEngineFailureMidCall(t *testing.T) {
	var gotErr error
	var mu sync.Mutex
	h := newHarness(Events{OnError: func(_ string, err error) {
		mu.Lock()
		gotErr = err
		mu.Unlock()
	}})
	ctx := context.Background()

	s, err := h.reg.HandleIncoming(ctx, incoming("c7"))
	if err != nil {
		t.Fatal(err)
	}
	if err := h.reg.Accept(ctx); err != nil {
		t.Fatal(err)
	}
	h.engine.connect()
	h.engine.onConn(webrtc.StateFailed)

	if s.Phase() != Failed {
		t.Fatalf("phase = %v, want failed", s.Phase())
	}
	mu.Lock()
	defer mu.Unlock()
	if !errors.Is(gotErr, ErrMedia) {
		t.Errorf("surfaced error = %v", gotErr)
	}
}

func TestQualitySampling(t *testing.T) {
	var mu sync.Mutex
	var samples []QualitySample
	h := newHarness(Events{OnQuality: func(_ string, q QualitySample) {
		mu.Lock()
		samples = append(samples, q)
		mu.Unlock()
	}})
	h.engine.stats = webrtc.Stats{LossPercent: 0.5, BitrateKbps: 600}
	ctx := context.Background()

	if _, err := h.reg.HandleIncoming(ctx, incoming("c7")); err != nil {
		t.Fatal(err)
	}
	if err := h.reg.Accept(ctx); err != nil {
		t.Fatal(err)
	}
	h.engine.connect()

	awaitTrue(t, "a quality sample", func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(samples) > 0
	})
	mu.Lock()
	defer mu.Unlock()
	if samples[0].Tier != QualityExcellent {
		t.Errorf("tier = %v, want excellent", samples[0].Tier)
	}
}

func TestMediaToggles(t *testing.T) {
	h := newHarness(Events{})
	ctx := context.Background()

	s, err := h.reg.Initiate(ctx, "ch", api.CallVideo)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.SetMuted(true); err != nil {
		t.Fatal(err)
	}
	if err := s.SetVideo(false); err != nil {
		t.Fatal(err)
	}
	if !s.Flags().Muted || s.Flags().VideoEnabled {
		t.Errorf("flags = %+v", s.Flags())
	}
	want := []string{"audio:off", "video:off"}
	if len(h.engine.toggles) != len(want) {
		t.Fatalf("toggles = %v", h.engine.toggles)
	}
	for i := range want {
		if h.engine.toggles[i] != want[i] {
			t.Errorf("toggle %v = %v, want %v", i, h.engine.toggles[i], want[i])
		}
	}
}

func TestLocalCandidatesForwarded(t *testing.T) {
	h := newHarness(Events{})
	ctx := context.Background()

	if _, err := h.reg.Initiate(ctx, "ch", api.CallAudio); err != nil {
		t.Fatal(err)
	}
	h.engine.onICE(api.ICECandidate{Candidate: "candidate:1"})
	if !h.sent.has(api.EvCandidateOut) {
		t.Errorf("local candidate not sent: %v", h.sent.events)
	}
}
