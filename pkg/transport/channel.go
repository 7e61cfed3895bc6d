// Package transport maintains the single logical event channel of the
// client over an unreliable connection: connect/reconnect, liveness
// heartbeat, outbound queueing while offline, and fan-out of inbound
// events to subscribers.
package transport

import (
	"errors"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/gofrs/uuid"

	"github.com/vibgyor/rtc/pkg/api"
	"github.com/vibgyor/rtc/pkg/config"
	"github.com/vibgyor/rtc/pkg/logger"
	"github.com/vibgyor/rtc/pkg/monitoring"
	"github.com/vibgyor/rtc/pkg/network"
)

type State uint8

const (
	Disconnected State = iota
	Connecting
	Connected
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	}
	return "disconnected"
}

// Handler consumes the raw payload of one event.
type Handler func(payload []byte)

// Sub identifies one subscription so it can be removed later.
type Sub struct {
	event string
	fn    Handler
}

// Socket is one live connection. The channel recreates it on loss.
type Socket interface {
	Listen(onMessage func(message []byte, err error))
	Write(data []byte)
	Close()
	Done() <-chan struct{}
}

// Dialer opens a new socket authenticated with the token.
type Dialer func(token string) (Socket, error)

var ErrOtherIdentity = errors.New("channel is bound to another identity")

// Channel owns one persistent bidirectional connection.
// One instance per authenticated identity; recreated on login change.
type Channel struct {
	conf config.Transport
	dial Dialer
	log  *logger.Logger

	mu       sync.Mutex
	state    State
	token    string
	sock     Socket
	gen      int // socket generation, stale watchers check it
	handlers map[string][]*Sub
	queue    []api.Out
	buf      *Buffer
	inflight chan struct{} // non-nil while a connect attempt runs
	lastErr  error
	hbDone   chan struct{}
	lastPong time.Time
	closed   bool
}

func NewChannel(conf config.Transport, dial Dialer, log *logger.Logger) *Channel {
	return &Channel{
		conf:     conf,
		dial:     dial,
		log:      log,
		handlers: make(map[string][]*Sub),
		buf:      NewBuffer(),
	}
}

func (c *Channel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Connect establishes the connection with the given credential.
// It is idempotent: connecting while already connected with the same
// token is a no-op, and a call racing an in-flight attempt awaits that
// attempt instead of starting a second one.
func (c *Channel) Connect(token string) error {
	c.mu.Lock()
	if c.state == Connected {
		same := c.token == token
		c.mu.Unlock()
		if same {
			return nil
		}
		return ErrOtherIdentity
	}
	if c.inflight != nil {
		wait := c.inflight
		c.mu.Unlock()
		<-wait
		c.mu.Lock()
		err := c.lastErr
		c.mu.Unlock()
		return err
	}
	c.inflight = make(chan struct{})
	c.state = Connecting
	c.closed = false
	c.mu.Unlock()

	err := c.connect(token)

	c.mu.Lock()
	c.lastErr = err
	close(c.inflight)
	c.inflight = nil
	if err != nil {
		c.state = Disconnected
	}
	c.mu.Unlock()
	return err
}

// connect performs a single dial attempt and, on success, wires the
// socket in, flushes the offline queue in FIFO order and starts the
// heartbeat.
func (c *Channel) connect(token string) error {
	sock, err := c.dial(token)
	if err != nil {
		return err
	}
	sock.Listen(c.onMessage)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		sock.Close()
		return errors.New("channel closed")
	}
	if c.state == Connected && c.sock != nil {
		// another path connected while this dial was in flight
		c.mu.Unlock()
		sock.Close()
		return nil
	}
	c.stopHeartbeat()
	c.sock = sock
	c.token = token
	c.state = Connected
	c.gen++
	gen := c.gen
	c.lastPong = time.Now()
	queued := c.queue
	c.queue = nil
	monitoring.EventsQueued.Set(0)
	hbDone := make(chan struct{})
	c.hbDone = hbDone
	c.mu.Unlock()

	for i := range queued {
		c.write(sock, &queued[i])
	}

	go c.heartbeat(sock, hbDone)
	go c.watch(sock, gen, token)

	c.log.Info().Msgf("channel connected (%v queued sent)", len(queued))
	return nil
}

// watch waits for the socket to die and drives automatic reconnection
// with a bounded, doubling backoff. Exhausting the attempts surfaces a
// connection_failed event and leaves the subscriptions in place so the
// owner may reconnect manually.
func (c *Channel) watch(sock Socket, gen int, token string) {
	<-sock.Done()

	c.mu.Lock()
	if c.closed || c.gen != gen {
		c.mu.Unlock()
		return
	}
	c.state = Connecting
	c.stopHeartbeat()
	c.mu.Unlock()

	retry := network.NewRetry(c.conf.RetryDelay, c.conf.Retries)
	attempts := 0
	var lastErr error
	for {
		delay, ok := retry.Fail()
		if !ok {
			break
		}
		time.Sleep(delay)

		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			return
		}
		if c.state == Connected {
			// a manual Connect won during the backoff sleep
			c.mu.Unlock()
			return
		}
		c.mu.Unlock()

		attempts++
		monitoring.Reconnects.Inc()
		c.log.Warn().Msgf("reconnecting, attempt %v", attempts)
		if lastErr = c.connect(token); lastErr == nil {
			return
		}
	}

	c.mu.Lock()
	c.state = Disconnected
	c.mu.Unlock()

	reason := ""
	if lastErr != nil {
		reason = lastErr.Error()
	}
	payload, _ := json.Marshal(api.ConnectionFailed{Attempts: attempts, Reason: reason})
	c.log.Error().Msgf("channel gave up after %v attempts", attempts)
	c.dispatch(api.EvConnectionFailed, payload)
}

// Disconnect stops the heartbeat, releases the connection and clears
// the outbound queue and all subscriptions. Safe to call repeatedly.
func (c *Channel) Disconnect() {
	c.mu.Lock()
	c.closed = true
	c.state = Disconnected
	c.token = ""
	c.queue = nil
	c.handlers = make(map[string][]*Sub)
	c.buf.Clear()
	c.stopHeartbeat()
	sock := c.sock
	c.sock = nil
	c.mu.Unlock()

	monitoring.EventsQueued.Set(0)
	monitoring.EventsBuffered.Set(0)
	if sock != nil {
		sock.Close()
	}
}

// Send transmits the event right away when connected, otherwise the
// event joins the outbound queue until the connection returns.
// Queueing is the contract here, not an error.
func (c *Channel) Send(event string, payload any) {
	out := api.Out{Id: newPacketId(), E: event, Payload: payload}

	c.mu.Lock()
	if c.state != Connected || c.sock == nil {
		c.queue = append(c.queue, out)
		monitoring.EventsQueued.Set(float64(len(c.queue)))
		c.mu.Unlock()
		return
	}
	sock := c.sock
	c.mu.Unlock()

	c.write(sock, &out)
}

func (c *Channel) write(sock Socket, out *api.Out) {
	data, err := json.Marshal(out)
	if err != nil {
		c.log.Error().Err(err).Msgf("drop unmarshalable %v", out.E)
		return
	}
	monitoring.EventsOut.Inc()
	sock.Write(data)
}

// On registers a subscriber. Registration drains any buffered signaling
// events for the name, replaying them to the new subscriber in arrival
// order: this closes the race where a signal outruns its consumer.
func (c *Channel) On(event string, fn Handler) *Sub {
	sub := &Sub{event: event, fn: fn}
	c.mu.Lock()
	c.handlers[event] = append(c.handlers[event], sub)
	pending := c.buf.Take(event)
	monitoring.EventsBuffered.Set(float64(c.buf.Len()))
	c.mu.Unlock()

	for _, p := range pending {
		fn(p)
	}
	return sub
}

// Off removes a subscription made with On.
func (c *Channel) Off(sub *Sub) {
	c.mu.Lock()
	defer c.mu.Unlock()
	subs := c.handlers[sub.event]
	for i, s := range subs {
		if s == sub {
			c.handlers[sub.event] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
	if len(c.handlers[sub.event]) == 0 {
		delete(c.handlers, sub.event)
	}
}

// onMessage decodes and validates one wire packet, then fans it out.
// It runs on the socket reader goroutine, so inbound handling keeps
// the arrival order.
func (c *Channel) onMessage(message []byte, err error) {
	if err != nil {
		return
	}
	var in api.In
	if err := json.Unmarshal(message, &in); err != nil {
		c.log.Warn().Err(err).Msg("drop unparsable packet")
		return
	}
	event := api.Canonical(in.E)
	monitoring.EventsIn.WithLabelValues(event).Inc()

	if event == api.EvPong {
		c.mu.Lock()
		c.lastPong = time.Now()
		c.mu.Unlock()
		return
	}
	if err := api.Validate(event, in.Payload); err != nil {
		c.log.Warn().Str("event", event).Msg("drop malformed payload")
		return
	}
	c.dispatch(event, in.Payload)
}

// dispatch delivers the payload to every subscriber of the event, or
// parks signaling events with no subscriber yet in the buffer.
func (c *Channel) dispatch(event string, payload []byte) {
	c.mu.Lock()
	subs := append([]*Sub(nil), c.handlers[event]...)
	if len(subs) == 0 {
		if api.IsSignal(event) {
			c.buf.Push(event, payload)
			monitoring.EventsBuffered.Set(float64(c.buf.Len()))
		}
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	for _, s := range subs {
		s.fn(payload)
	}
}

// heartbeat sends the app-level liveness ping. A missing pong is a
// connectivity hint only: teardown is up to the socket itself.
func (c *Channel) heartbeat(sock Socket, done chan struct{}) {
	t := time.NewTicker(c.conf.HeartbeatInterval)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			c.mu.Lock()
			silent := time.Since(c.lastPong)
			c.mu.Unlock()
			if silent > 2*c.conf.HeartbeatInterval {
				c.log.Warn().Msgf("no pong for %v", silent.Round(time.Second))
			}
			out := api.Out{E: api.EvPing, Payload: api.Ping{At: time.Now().UnixMilli()}}
			c.write(sock, &out)
		case <-done:
			return
		}
	}
}

// stopHeartbeat must be called under mu.
func (c *Channel) stopHeartbeat() {
	if c.hbDone != nil {
		close(c.hbDone)
		c.hbDone = nil
	}
}

func newPacketId() string { return uuid.Must(uuid.NewV4()).String() }
