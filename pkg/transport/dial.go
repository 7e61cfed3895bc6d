package transport

import (
	"net/http"
	"net/url"

	"github.com/vibgyor/rtc/pkg/config"
	"github.com/vibgyor/rtc/pkg/logger"
	"github.com/vibgyor/rtc/pkg/network/websocket"
)

// NewDialer returns the websocket dialer of the realtime gateway.
// The credential travels once, in the connect request headers; the
// channel keeps it to itself afterwards.
func NewDialer(conf config.Transport, log *logger.Logger) Dialer {
	return func(token string) (Socket, error) {
		scheme := "ws"
		if conf.Secure {
			scheme = "wss"
		}
		address := url.URL{Scheme: scheme, Host: conf.Address, Path: conf.Endpoint}

		header := http.Header{}
		header.Set("Authorization", "Bearer "+token)

		ws, err := websocket.NewClient(address, header, log)
		if err != nil {
			return nil, err
		}
		return &wsSocket{ws: ws}, nil
	}
}

type wsSocket struct {
	ws *websocket.WS
}

func (s *wsSocket) Listen(fn func(message []byte, err error)) {
	s.ws.OnMessage = fn
	s.ws.Listen()
}

func (s *wsSocket) Write(data []byte)     { s.ws.Write(data) }
func (s *wsSocket) Close()                { s.ws.Close() }
func (s *wsSocket) Done() <-chan struct{} { return s.ws.Done }
