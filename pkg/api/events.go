package api

// Inbound event names.
//
// Underscore-separated names are canonical. Older server builds emit the
// webrtc trio with a colon separator due to transport-library name mangling,
// so those three are normalized on receive and nothing else is aliased.
const (
	EvCallIncoming = "call_incoming"
	EvCallAccepted = "call_accepted"
	EvCallRejected = "call_rejected"
	EvCallEnded    = "call_ended"
	EvCallError    = "call_error"
	EvOffer        = "webrtc_offer"
	EvAnswer       = "webrtc_answer"
	EvCandidate    = "webrtc_ice_candidate"
	EvUserOnline   = "user_online"
	EvUserOffline  = "user_offline"
	EvMessageNew   = "message_new"
	EvPong         = "pong"
)

// Outbound event names.
const (
	EvCallInitiate = "call:initiate"
	EvCallAccept   = "call:accept"
	EvCallReject   = "call:reject"
	EvCallEnd      = "call:end"
	EvOfferOut     = "webrtc:offer"
	EvAnswerOut    = "webrtc:answer"
	EvCandidateOut = "webrtc:ice-candidate"
	EvTypingStart  = "typing_start"
	EvTypingStop   = "typing_stop"
	EvMessageSend  = "message:send"
	EvPing         = "ping"
)

// EvConnectionFailed is synthesized locally when the channel exhausts
// its reconnection attempts. It never appears on the wire.
const EvConnectionFailed = "connection_failed"

var legacyNames = map[string]string{
	"webrtc:offer":         EvOffer,
	"webrtc:answer":        EvAnswer,
	"webrtc:ice-candidate": EvCandidate,
	"webrtc:ice_candidate": EvCandidate,
}

// Canonical maps a legacy inbound event name to its canonical form.
func Canonical(event string) string {
	if name, ok := legacyNames[event]; ok {
		return name
	}
	return event
}

var signalEvents = map[string]struct{}{
	EvCallIncoming: {},
	EvCallAccepted: {},
	EvCallRejected: {},
	EvCallEnded:    {},
	EvCallError:    {},
	EvOffer:        {},
	EvAnswer:       {},
	EvCandidate:    {},
}

// IsSignal reports whether the event belongs to the call signaling class,
// i.e. whether it is retained for replay when no handler is subscribed yet.
func IsSignal(event string) bool {
	_, ok := signalEvents[event]
	return ok
}
