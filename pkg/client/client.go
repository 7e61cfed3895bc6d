// Package client assembles the realtime core: one channel, one call
// registry and one presence tracker per authenticated identity.
package client

import (
	"context"
	"errors"
	"sync"

	"github.com/vibgyor/rtc/pkg/api"
	"github.com/vibgyor/rtc/pkg/call"
	"github.com/vibgyor/rtc/pkg/callapi"
	"github.com/vibgyor/rtc/pkg/config"
	"github.com/vibgyor/rtc/pkg/logger"
	"github.com/vibgyor/rtc/pkg/media"
	"github.com/vibgyor/rtc/pkg/network"
	"github.com/vibgyor/rtc/pkg/presence"
	"github.com/vibgyor/rtc/pkg/transport"
	"github.com/vibgyor/rtc/pkg/webrtc"
)

var ErrNotLoggedIn = errors.New("not logged in")

// Client is the top-level handle an embedding application talks to.
// Login builds fresh state; Logout drops all of it.
type Client struct {
	conf config.ClientConfig
	log  *logger.Logger
	peer *webrtc.Peer
	dl   *media.Downloader

	mu      sync.Mutex
	ch      *transport.Channel
	reg     *call.Registry
	tracker *presence.Tracker

	callEvents   call.Events
	onMessage    func(api.Message)
	onConnFailed func(api.ConnectionFailed)
}

func New(conf config.ClientConfig, log *logger.Logger) (*Client, error) {
	peer, err := webrtc.DefaultPeerConnection(conf.Webrtc, log)
	if err != nil {
		return nil, err
	}
	dl, err := media.NewDownloader(conf.Client.DownloadDir, log)
	if err != nil {
		return nil, err
	}
	return &Client{conf: conf, log: log, peer: peer, dl: dl}, nil
}

// SetCallEvents installs the UI callbacks. Call before Login.
func (c *Client) SetCallEvents(events call.Events) {
	c.mu.Lock()
	c.callEvents = events
	c.mu.Unlock()
}

// OnMessage installs the chat message subscriber. Call before Login.
func (c *Client) OnMessage(fn func(api.Message)) {
	c.mu.Lock()
	c.onMessage = fn
	c.mu.Unlock()
}

// OnConnectionFailed installs the subscriber for exhausted reconnects.
func (c *Client) OnConnectionFailed(fn func(api.ConnectionFailed)) {
	c.mu.Lock()
	c.onConnFailed = fn
	c.mu.Unlock()
}

// Login builds a channel, registry and tracker for the identity and
// connects. Logging in over a live session tears the old one down
// first.
func (c *Client) Login(token string) error {
	c.Logout()

	capi, err := callapi.New(c.conf.Transport, token, c.log)
	if err != nil {
		return err
	}

	c.mu.Lock()
	ch := transport.NewChannel(c.conf.Transport, transport.NewDialer(c.conf.Transport, c.log), c.log)
	engines := func(kind api.CallKind) (call.Engine, error) {
		return webrtc.NewSession(c.peer, kind, c.log)
	}
	reg := call.NewRegistry(c.conf.Call, capi, ch.Send, engines, c.callEvents, c.log)
	tracker := presence.NewTracker(c.conf.Call.TypingExpiry, c.log)
	c.ch, c.reg, c.tracker = ch, reg, tracker
	onMessage, onConnFailed := c.onMessage, c.onConnFailed
	c.mu.Unlock()

	c.route(ch, reg, tracker, onMessage, onConnFailed)
	return ch.Connect(token)
}

// route subscribes the inbound event surface. Registrations drain the
// signal buffer, so events that raced the login are not lost.
func (c *Client) route(ch *transport.Channel, reg *call.Registry, tracker *presence.Tracker,
	onMessage func(api.Message), onConnFailed func(api.ConnectionFailed)) {
	ch.On(api.EvCallIncoming, func(p []byte) {
		if inc := api.Unwrap[api.IncomingCall](p); inc != nil {
			if _, err := reg.HandleIncoming(context.Background(), *inc); err != nil {
				c.log.Warn().Msgf("incoming call %v dropped: %v", inc.CallID, err)
			}
		}
	})
	ch.On(api.EvCallAccepted, func(p []byte) {
		if v := api.Unwrap[api.CallAccepted](p); v != nil {
			reg.HandleAccepted(*v)
		}
	})
	ch.On(api.EvCallRejected, func(p []byte) {
		if v := api.Unwrap[api.CallRejected](p); v != nil {
			reg.HandleRejected(*v)
		}
	})
	ch.On(api.EvCallEnded, func(p []byte) {
		if v := api.Unwrap[api.CallEnded](p); v != nil {
			reg.HandleEnded(*v)
		}
	})
	ch.On(api.EvCallError, func(p []byte) {
		if v := api.Unwrap[api.CallError](p); v != nil {
			reg.HandleError(*v)
		}
	})
	ch.On(api.EvOffer, func(p []byte) {
		if v := api.Unwrap[api.Offer](p); v != nil {
			reg.HandleOffer(*v)
		}
	})
	ch.On(api.EvAnswer, func(p []byte) {
		if v := api.Unwrap[api.Answer](p); v != nil {
			reg.HandleAnswer(*v)
		}
	})
	ch.On(api.EvCandidate, func(p []byte) {
		if v := api.Unwrap[api.Candidate](p); v != nil {
			reg.HandleCandidate(*v)
		}
	})
	ch.On(api.EvUserOnline, func(p []byte) {
		if v := api.Unwrap[api.UserStatus](p); v != nil {
			tracker.HandleOnline(*v)
		}
	})
	ch.On(api.EvUserOffline, func(p []byte) {
		if v := api.Unwrap[api.UserStatus](p); v != nil {
			tracker.HandleOffline(*v)
		}
	})
	ch.On(api.EvTypingStart, func(p []byte) {
		if v := api.Unwrap[api.Typing](p); v != nil {
			tracker.HandleTypingStart(*v)
		}
	})
	ch.On(api.EvTypingStop, func(p []byte) {
		if v := api.Unwrap[api.Typing](p); v != nil {
			tracker.HandleTypingStop(*v)
		}
	})
	ch.On(api.EvMessageNew, func(p []byte) {
		if v := api.Unwrap[api.Message](p); v != nil && onMessage != nil {
			onMessage(*v)
		}
	})
	ch.On(api.EvConnectionFailed, func(p []byte) {
		if v := api.Unwrap[api.ConnectionFailed](p); v != nil && onConnFailed != nil {
			onConnFailed(*v)
		}
	})
}

// Logout ends the active call, disconnects and drops all state. Safe
// without a prior Login.
func (c *Client) Logout() {
	c.mu.Lock()
	ch, reg, tracker := c.ch, c.reg, c.tracker
	c.ch, c.reg, c.tracker = nil, nil, nil
	c.mu.Unlock()

	if reg != nil {
		if err := reg.End(context.Background(), "logout"); err != nil && !errors.Is(err, call.ErrNoCall) {
			c.log.Warn().Msgf("end call on logout: %v", err)
		}
	}
	if tracker != nil {
		tracker.Close()
	}
	if ch != nil {
		ch.Disconnect()
	}
}

func (c *Client) registry() (*call.Registry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.reg == nil {
		return nil, ErrNotLoggedIn
	}
	return c.reg, nil
}

func (c *Client) channel() (*transport.Channel, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ch == nil {
		return nil, ErrNotLoggedIn
	}
	return c.ch, nil
}

// Call intents.

func (c *Client) InitiateCall(ctx context.Context, chatID string, kind api.CallKind) (*call.Session, error) {
	reg, err := c.registry()
	if err != nil {
		return nil, err
	}
	return reg.Initiate(ctx, chatID, kind)
}

func (c *Client) AcceptCall(ctx context.Context) error {
	reg, err := c.registry()
	if err != nil {
		return err
	}
	return reg.Accept(ctx)
}

func (c *Client) RejectCall(ctx context.Context, reason string) error {
	reg, err := c.registry()
	if err != nil {
		return err
	}
	return reg.Reject(ctx, reason)
}

func (c *Client) EndCall(ctx context.Context, reason string) error {
	reg, err := c.registry()
	if err != nil {
		return err
	}
	return reg.End(ctx, reason)
}

func (c *Client) ActiveCall() *call.Session {
	reg, err := c.registry()
	if err != nil {
		return nil
	}
	return reg.Active()
}

func (c *Client) activeCall() (*call.Session, error) {
	s := c.ActiveCall()
	if s == nil {
		return nil, call.ErrNoCall
	}
	return s, nil
}

func (c *Client) SetMuted(on bool) error {
	s, err := c.activeCall()
	if err != nil {
		return err
	}
	return s.SetMuted(on)
}

func (c *Client) SetVideo(on bool) error {
	s, err := c.activeCall()
	if err != nil {
		return err
	}
	return s.SetVideo(on)
}

func (c *Client) SetScreenShare(on bool) error {
	s, err := c.activeCall()
	if err != nil {
		return err
	}
	return s.SetScreenShare(on)
}

func (c *Client) SetSpeaker(on bool) error {
	s, err := c.activeCall()
	if err != nil {
		return err
	}
	return s.SetSpeaker(on)
}

// Messaging and presence.

// SendMessage queues the message for delivery and returns its local id.
func (c *Client) SendMessage(chatID, body string) (string, error) {
	ch, err := c.channel()
	if err != nil {
		return "", err
	}
	id := string(network.NewUid())
	ch.Send(api.EvMessageSend, api.SendMessage{ID: id, ChatID: chatID, Body: body})
	return id, nil
}

func (c *Client) StartTyping(chatID string) error {
	ch, err := c.channel()
	if err != nil {
		return err
	}
	ch.Send(api.EvTypingStart, api.Typing{ChatID: chatID})
	return nil
}

func (c *Client) StopTyping(chatID string) error {
	ch, err := c.channel()
	if err != nil {
		return err
	}
	ch.Send(api.EvTypingStop, api.Typing{ChatID: chatID})
	return nil
}

// Presence returns the current known user statuses.
func (c *Client) Presence() map[string]presence.Status {
	c.mu.Lock()
	tracker := c.tracker
	c.mu.Unlock()
	if tracker == nil {
		return nil
	}
	return tracker.Snapshot()
}

// DownloadAttachment fetches an attachment and returns its local path.
func (c *Client) DownloadAttachment(ctx context.Context, att api.Attachment) (string, error) {
	return c.dl.Download(ctx, att)
}

// ConnectionState exposes the channel state for status indicators.
func (c *Client) ConnectionState() transport.State {
	ch, err := c.channel()
	if err != nil {
		return transport.Disconnected
	}
	return ch.State()
}
