package webrtc

import (
	"testing"

	"github.com/vibgyor/rtc/pkg/config"
)

func TestIceToJson(t *testing.T) {
	tests := []struct {
		input        []config.IceServer
		replacements []Replacement
		output       string
	}{
		{
			input: []config.IceServer{
				{Urls: "stun:stun.l.google.com:19302"},
				{Urls: "stun:{server-ip}:3478"},
				{Urls: "turn:{server-ip}:3478", Username: "root", Credential: "root"},
			},
			replacements: []Replacement{
				{
					From: "server-ip",
					To:   "localhost",
				},
			},
			output: "[" +
				"{\"urls\":\"stun:stun.l.google.com:19302\"}," +
				"{\"urls\":\"stun:localhost:3478\"}," +
				"{\"urls\":\"turn:localhost:3478\",\"username\":\"root\",\"credential\":\"root\"}" +
				"]",
		},
	}

	for _, test := range tests {
		result := IceToJson(test.input, test.replacements...)

		if result != test.output {
			t.Errorf("Not exactly what is expected")
		}
	}
}
