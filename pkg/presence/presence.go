// Package presence keeps the last known online/typing state of the
// people around the client.
package presence

import (
	"sync"
	"time"

	"github.com/vibgyor/rtc/pkg/api"
	"github.com/vibgyor/rtc/pkg/logger"
)

// Status of one user as seen from here.
type Status struct {
	Online   bool
	Typing   bool
	LastSeen time.Time
}

// Tracker consumes presence and typing events. A typing indicator that
// is not refreshed expires on its own.
type Tracker struct {
	log    *logger.Logger
	expiry time.Duration

	mu       sync.Mutex
	users    map[string]Status
	typingAt map[string]time.Time
	onChange func(userID string, s Status)
	done     chan struct{}
	once     sync.Once
}

func NewTracker(typingExpiry time.Duration, log *logger.Logger) *Tracker {
	if typingExpiry <= 0 {
		typingExpiry = 5 * time.Second
	}
	t := &Tracker{
		log:      log,
		expiry:   typingExpiry,
		users:    make(map[string]Status),
		typingAt: make(map[string]time.Time),
		done:     make(chan struct{}),
	}
	go t.sweep()
	return t
}

// OnChange registers the single change subscriber.
func (t *Tracker) OnChange(fn func(userID string, s Status)) {
	t.mu.Lock()
	t.onChange = fn
	t.mu.Unlock()
}

func (t *Tracker) HandleOnline(p api.UserStatus) {
	t.update(p.UserID, func(s *Status) {
		s.Online = true
		s.LastSeen = time.Now()
	})
}

func (t *Tracker) HandleOffline(p api.UserStatus) {
	last := time.Now()
	if p.LastSeen > 0 {
		last = time.Unix(p.LastSeen, 0)
	}
	t.update(p.UserID, func(s *Status) {
		s.Online = false
		s.Typing = false
		s.LastSeen = last
	})
	t.mu.Lock()
	delete(t.typingAt, p.UserID)
	t.mu.Unlock()
}

func (t *Tracker) HandleTypingStart(p api.Typing) {
	t.mu.Lock()
	t.typingAt[p.UserID] = time.Now()
	t.mu.Unlock()
	t.update(p.UserID, func(s *Status) { s.Typing = true })
}

func (t *Tracker) HandleTypingStop(p api.Typing) {
	t.mu.Lock()
	delete(t.typingAt, p.UserID)
	t.mu.Unlock()
	t.update(p.UserID, func(s *Status) { s.Typing = false })
}

// Get returns the status of one user and whether it is known at all.
func (t *Tracker) Get(userID string) (Status, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.users[userID]
	return s, ok
}

// Snapshot copies the full view.
func (t *Tracker) Snapshot() map[string]Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[string]Status, len(t.users))
	for id, s := range t.users {
		out[id] = s
	}
	return out
}

func (t *Tracker) Close() { t.once.Do(func() { close(t.done) }) }

func (t *Tracker) update(userID string, mut func(*Status)) {
	t.mu.Lock()
	s := t.users[userID]
	mut(&s)
	t.users[userID] = s
	fn := t.onChange
	t.mu.Unlock()
	if fn != nil {
		fn(userID, s)
	}
}

// sweep expires stale typing indicators.
func (t *Tracker) sweep() {
	tick := time.NewTicker(t.expiry / 2)
	defer tick.Stop()
	for {
		select {
		case <-tick.C:
			var expired []string
			t.mu.Lock()
			now := time.Now()
			for id, at := range t.typingAt {
				if now.Sub(at) > t.expiry {
					delete(t.typingAt, id)
					expired = append(expired, id)
				}
			}
			t.mu.Unlock()
			for _, id := range expired {
				t.update(id, func(s *Status) { s.Typing = false })
			}
		case <-t.done:
			return
		}
	}
}
