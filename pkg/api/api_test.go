package api

import (
	"testing"

	"github.com/goccy/go-json"
)

func TestCanonical(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"webrtc:offer", EvOffer},
		{"webrtc:answer", EvAnswer},
		{"webrtc:ice-candidate", EvCandidate},
		{"webrtc:ice_candidate", EvCandidate},
		{EvOffer, EvOffer},
		{EvCallIncoming, EvCallIncoming},
		{"some_event", "some_event"},
	}
	for _, tt := range tests {
		if got := Canonical(tt.in); got != tt.want {
			t.Errorf("Canonical(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestIsSignal(t *testing.T) {
	for _, ev := range []string{
		EvCallIncoming, EvCallAccepted, EvCallRejected, EvCallEnded,
		EvCallError, EvOffer, EvAnswer, EvCandidate,
	} {
		if !IsSignal(ev) {
			t.Errorf("%v should belong to the signaling class", ev)
		}
	}
	for _, ev := range []string{EvUserOnline, EvMessageNew, EvPong, "random"} {
		if IsSignal(ev) {
			t.Errorf("%v shouldn't belong to the signaling class", ev)
		}
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		event   string
		payload string
		ok      bool
	}{
		{"offer ok", EvOffer, `{"call_id":"c1","sdp":{"type":"offer","sdp":"v=0"}}`, true},
		{"offer no sdp", EvOffer, `{"call_id":"c1"}`, false},
		{"offer no call", EvOffer, `{"sdp":{"type":"offer","sdp":"v=0"}}`, false},
		{"answer ok", EvAnswer, `{"call_id":"c1","sdp":{"type":"answer","sdp":"v=0"}}`, true},
		{"candidate ok", EvCandidate, `{"call_id":"c1","candidate":{"candidate":"candidate:1"}}`, true},
		{"candidate empty", EvCandidate, `{"call_id":"c1","candidate":{}}`, false},
		{"incoming ok", EvCallIncoming, `{"call_id":"c1","chat_id":"ch1","from":"u2","kind":"audio"}`, true},
		{"incoming bad kind", EvCallIncoming, `{"call_id":"c1","from":"u2","kind":"telepathy"}`, false},
		{"incoming no from", EvCallIncoming, `{"call_id":"c1"}`, false},
		{"accepted ok", EvCallAccepted, `{"call_id":"c1"}`, true},
		{"ended ok", EvCallEnded, `{"call_id":"c1","reason":"user_ended"}`, true},
		{"status ok", EvUserOnline, `{"user_id":"u1"}`, true},
		{"status empty", EvUserOffline, `{}`, false},
		{"typing ok", EvTypingStart, `{"chat_id":"ch1","user_id":"u1"}`, true},
		{"message ok", EvMessageNew, `{"id":"m1","chat_id":"ch1","from":"u2","body":"hi"}`, true},
		{"message no id", EvMessageNew, `{"chat_id":"ch1"}`, false},
		{"garbage", EvOffer, `{"call_id":`, false},
		{"unvalidated passes", EvPong, `whatever`, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.event, []byte(tt.payload))
			if (err == nil) != tt.ok {
				t.Errorf("Validate(%v, %v) = %v, want ok=%v", tt.event, tt.payload, err, tt.ok)
			}
		})
	}
}

func TestPacketRoundTrip(t *testing.T) {
	out := Out{Id: "p1", E: EvOfferOut, Payload: Offer{CallID: "c1", SDP: SessionDescription{Type: "offer", SDP: "v=0"}}}
	raw, err := json.Marshal(out)
	if err != nil {
		t.Fatal(err)
	}
	var in In
	if err := json.Unmarshal(raw, &in); err != nil {
		t.Fatal(err)
	}
	if in.E != EvOfferOut || in.Id != "p1" {
		t.Errorf("unexpected packet: %+v", in)
	}
	offer := Unwrap[Offer](in.Payload)
	if offer == nil || offer.CallID != "c1" || offer.SDP.SDP != "v=0" {
		t.Errorf("unexpected payload: %+v", offer)
	}
}
