package api

// Kind of the call media requested on initiation.
type CallKind string

const (
	CallAudio CallKind = "audio"
	CallVideo CallKind = "video"
)

func (k CallKind) Valid() bool { return k == CallAudio || k == CallVideo }

// SessionDescription mirrors the browser RTCSessionDescription shape.
type SessionDescription struct {
	Type string `json:"type"`
	SDP  string `json:"sdp"`
}

func (d SessionDescription) Empty() bool { return d.SDP == "" }

// ICECandidate mirrors the browser RTCIceCandidateInit shape.
type ICECandidate struct {
	Candidate     string  `json:"candidate"`
	SDPMid        *string `json:"sdpMid,omitempty"`
	SDPMLineIndex *uint16 `json:"sdpMLineIndex,omitempty"`
}

type IncomingCall struct {
	CallID string              `json:"call_id"`
	ChatID string              `json:"chat_id"`
	From   string              `json:"from"`
	Kind   CallKind            `json:"kind"`
	Offer  *SessionDescription `json:"offer,omitempty"`
}

func (c IncomingCall) Validate() error {
	if c.CallID == "" || c.From == "" {
		return ErrMalformed
	}
	if c.Kind != "" && !c.Kind.Valid() {
		return ErrMalformed
	}
	return nil
}

type CallAccepted struct {
	CallID string `json:"call_id"`
	By     string `json:"by,omitempty"`
}

func (c CallAccepted) Validate() error {
	if c.CallID == "" {
		return ErrMalformed
	}
	return nil
}

type CallRejected struct {
	CallID string `json:"call_id"`
	Reason string `json:"reason,omitempty"`
}

func (c CallRejected) Validate() error {
	if c.CallID == "" {
		return ErrMalformed
	}
	return nil
}

type CallEnded struct {
	CallID string `json:"call_id"`
	Reason string `json:"reason,omitempty"`
}

func (c CallEnded) Validate() error {
	if c.CallID == "" {
		return ErrMalformed
	}
	return nil
}

type CallError struct {
	CallID  string `json:"call_id"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

func (c CallError) Validate() error {
	if c.CallID == "" {
		return ErrMalformed
	}
	return nil
}

type Offer struct {
	CallID string             `json:"call_id"`
	SDP    SessionDescription `json:"sdp"`
}

func (o Offer) Validate() error {
	if o.CallID == "" || o.SDP.Empty() {
		return ErrMalformed
	}
	return nil
}

type Answer struct {
	CallID string             `json:"call_id"`
	SDP    SessionDescription `json:"sdp"`
}

func (a Answer) Validate() error {
	if a.CallID == "" || a.SDP.Empty() {
		return ErrMalformed
	}
	return nil
}

type Candidate struct {
	CallID    string       `json:"call_id"`
	Candidate ICECandidate `json:"candidate"`
}

func (c Candidate) Validate() error {
	if c.CallID == "" || c.Candidate.Candidate == "" {
		return ErrMalformed
	}
	return nil
}

// Outbound call intents.

type InitiateCall struct {
	CallID string   `json:"call_id"`
	ChatID string   `json:"chat_id"`
	Kind   CallKind `json:"kind"`
}

type AcceptCall struct {
	CallID string `json:"call_id"`
}

type RejectCall struct {
	CallID string `json:"call_id"`
	Reason string `json:"reason,omitempty"`
}

type EndCall struct {
	CallID string `json:"call_id"`
	Reason string `json:"reason,omitempty"`
}

// ConnectionFailed is the payload of the locally synthesized
// connection_failed event.
type ConnectionFailed struct {
	Attempts int    `json:"attempts"`
	Reason   string `json:"reason,omitempty"`
}
