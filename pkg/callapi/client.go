// Package callapi is the client of the call-control REST endpoints.
// The endpoints are the authoritative source of call lifecycle
// confirmation; channel events mirror the same facts faster.
package callapi

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/goccy/go-json"

	"github.com/vibgyor/rtc/pkg/api"
	"github.com/vibgyor/rtc/pkg/config"
	"github.com/vibgyor/rtc/pkg/logger"
)

type Client struct {
	base  *url.URL
	token string
	hc    *http.Client
	log   *logger.Logger
}

// Error is the decoded body of a non-2xx response.
type Error struct {
	Status  int    `json:"-"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

func (e *Error) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("call api: http %v", e.Status)
	}
	return fmt.Sprintf("call api: http %v, %v", e.Status, e.Message)
}

// Status is the authoritative view of one call.
type Status struct {
	CallID     string                  `json:"call_id"`
	Phase      string                  `json:"phase"`
	WebrtcData json.RawMessage         `json:"webrtc_data,omitempty"`
	Offer      *api.SessionDescription `json:"offer,omitempty"`
}

// SignalKind names the payload of one SendSignaling call.
type SignalKind string

const (
	SignalOffer     SignalKind = "offer"
	SignalAnswer    SignalKind = "answer"
	SignalCandidate SignalKind = "ice-candidate"
)

func New(conf config.Transport, token string, log *logger.Logger) (*Client, error) {
	base, err := url.Parse(conf.ApiAddress)
	if err != nil {
		return nil, fmt.Errorf("callapi: bad address %v: %w", conf.ApiAddress, err)
	}
	return &Client{
		base:  base,
		token: token,
		hc:    &http.Client{Timeout: conf.ApiTimeout},
		log:   log.Extend(log.With().Str("m", "callapi")),
	}, nil
}

// InitiateCall registers a new outgoing call and returns its server-issued id.
func (c *Client) InitiateCall(ctx context.Context, chatID string, kind api.CallKind) (string, error) {
	var out struct {
		CallID string `json:"call_id"`
	}
	in := api.InitiateCall{ChatID: chatID, Kind: kind}
	if err := c.post(ctx, "/calls", in, &out); err != nil {
		return "", err
	}
	if out.CallID == "" {
		return "", fmt.Errorf("callapi: no call id in response")
	}
	return out.CallID, nil
}

func (c *Client) AcceptCall(ctx context.Context, callID string) error {
	return c.post(ctx, "/calls/"+url.PathEscape(callID)+"/accept", nil, nil)
}

func (c *Client) RejectCall(ctx context.Context, callID, reason string) error {
	in := api.RejectCall{CallID: callID, Reason: reason}
	return c.post(ctx, "/calls/"+url.PathEscape(callID)+"/reject", in, nil)
}

func (c *Client) EndCall(ctx context.Context, callID, reason string) error {
	in := api.EndCall{CallID: callID, Reason: reason}
	return c.post(ctx, "/calls/"+url.PathEscape(callID)+"/end", in, nil)
}

func (c *Client) GetCallStatus(ctx context.Context, callID string) (*Status, error) {
	var out Status
	if err := c.do(ctx, http.MethodGet, "/calls/"+url.PathEscape(callID), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SendSignaling pushes one negotiation artifact over HTTP. Used as the
// fallback when the event channel is down mid-negotiation.
func (c *Client) SendSignaling(ctx context.Context, callID string, kind SignalKind, data any) error {
	in := struct {
		Type SignalKind `json:"type"`
		Data any        `json:"data"`
	}{kind, data}
	return c.post(ctx, "/calls/"+url.PathEscape(callID)+"/signaling", in, nil)
}

func (c *Client) post(ctx context.Context, path string, in, out any) error {
	return c.do(ctx, http.MethodPost, path, in, out)
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("callapi: encode %v: %w", path, err)
		}
		body = bytes.NewReader(data)
	}

	u := *c.base
	u.Path, _ = url.JoinPath(u.Path, path)
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	res, err := c.hc.Do(req)
	if err != nil {
		return fmt.Errorf("callapi: %v %v: %w", method, path, err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode < 200 || res.StatusCode > 299 {
		apiErr := &Error{Status: res.StatusCode}
		data, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		_ = json.Unmarshal(data, apiErr)
		c.log.Debug().Msgf("%v %v -> %v", method, path, res.StatusCode)
		return apiErr
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return fmt.Errorf("callapi: decode %v: %w", path, err)
	}
	return nil
}
