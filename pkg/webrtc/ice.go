package webrtc

import (
	"strings"

	"github.com/vibgyor/rtc/pkg/config"
)

// Replacement substitutes a {placeholder} inside ICE server URLs, so a
// config may carry templates like turn:{server-ip}:3478.
type Replacement struct {
	From string
	To   string
}

// IceToJson renders the ICE server list as the JSON array an embedding
// UI layer feeds to its own RTCPeerConnection.
func IceToJson(iceServers []config.IceServer, replacements ...Replacement) string {
	var sb strings.Builder

	n := len(replacements)
	serversN := len(iceServers)
	sb.WriteString("[")
	delim := ","
	for i, ice := range iceServers {
		sb.WriteString("{")

		var params []string
		url := ice.Urls
		if n > 0 {
			for _, replacement := range replacements {
				url = strings.Replace(url, "{"+replacement.From+"}", replacement.To, -1)
			}
		}
		params = append(params, "\"urls\":\""+url+"\"")
		if ice.Username != "" {
			params = append(params, "\"username\":\""+ice.Username+"\"")
		}
		if ice.Credential != "" {
			params = append(params, "\"credential\":\""+ice.Credential+"\"")
		}
		sb.WriteString(strings.Join(params, ","))

		if i == serversN-1 {
			delim = ""
		}
		sb.WriteString("}" + delim)
	}
	sb.WriteString("]")

	return sb.String()
}
