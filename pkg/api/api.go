// Package api defines the wire surface of the client.
//
// Every message on the event channel is a JSON-encoded "packet" of the following structure:
//
//	id - (optional) a globally unique packet id;
//	 e - (required) one of the predefined event names;
//	 p - (optional) event payload with event-specific data.
//
// Payloads are decoded in two passes: the packet is unmarshalled with a raw
// payload first, and then the payload is unwrapped into the typed struct of
// its event. Inbound payloads of the signaling class are validated at the
// transport boundary, so the call logic never branches on payload shape.
//
// Example:
//
//	{"e":"webrtc_offer","p":{"call_id":"c9h3vrbd6o5g02q8nq60","sdp":{"type":"offer","sdp":"v=0..."}}}
package api

import (
	"fmt"

	"github.com/goccy/go-json"
)

type In struct {
	Id      string          `json:"id,omitempty"`
	E       string          `json:"e"`
	Payload json.RawMessage `json:"p,omitempty"` // should be json.RawMessage for 2-pass unmarshal
}

type Out struct {
	Id      string `json:"id,omitempty"`
	E       string `json:"e"`
	Payload any    `json:"p,omitempty"`
}

var (
	ErrMalformed = fmt.Errorf("malformed")
	ErrUnknown   = fmt.Errorf("unknown event")
)

func Unwrap[T any](data []byte) *T {
	out := new(T)
	if err := json.Unmarshal(data, out); err != nil {
		return nil
	}
	return out
}

func UnwrapChecked[T any](bytes []byte, err error) (*T, error) {
	if err != nil {
		return nil, err
	}
	return Unwrap[T](bytes), nil
}

type validator interface{ Validate() error }

func check[T validator](payload []byte) error {
	v := Unwrap[T](payload)
	if v == nil {
		return ErrMalformed
	}
	return (*v).Validate()
}

// Validate decodes the payload of a known inbound event and checks its
// required fields. Events outside the validated set pass through as-is.
func Validate(event string, payload []byte) error {
	switch event {
	case EvCallIncoming:
		return check[IncomingCall](payload)
	case EvCallAccepted:
		return check[CallAccepted](payload)
	case EvCallRejected:
		return check[CallRejected](payload)
	case EvCallEnded:
		return check[CallEnded](payload)
	case EvCallError:
		return check[CallError](payload)
	case EvOffer:
		return check[Offer](payload)
	case EvAnswer:
		return check[Answer](payload)
	case EvCandidate:
		return check[Candidate](payload)
	case EvUserOnline, EvUserOffline:
		return check[UserStatus](payload)
	case EvTypingStart, EvTypingStop:
		return check[Typing](payload)
	case EvMessageNew:
		return check[Message](payload)
	}
	return nil
}
