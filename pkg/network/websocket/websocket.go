package websocket

import (
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/vibgyor/rtc/pkg/logger"
)

const (
	maxMessageSize = 32 * 1024
	pongTime       = 60 * time.Second
	writeWait      = 10 * time.Second
)

// WS is a single websocket connection with serialized reads and writes.
// It knows nothing about reconnection, the owner recreates the whole
// socket when Done fires.
type WS struct {
	sock *websocket.Conn
	send chan []byte

	OnMessage WSMessageHandler

	once     sync.Once
	shutdown *sync.WaitGroup
	Done     chan struct{}

	log *logger.Logger
}

type WSMessageHandler func(message []byte, err error)

// NewClient dials the address and starts the read/write pumps.
// The header carries connect-time credentials.
func NewClient(address url.URL, header http.Header, log *logger.Logger) (*WS, error) {
	conn, _, err := websocket.DefaultDialer.Dial(address.String(), header)
	if err != nil {
		return nil, err
	}
	return newSocket(conn, log), nil
}

func newSocket(conn *websocket.Conn, log *logger.Logger) *WS {
	shut := sync.WaitGroup{}
	shut.Add(2)

	ws := &WS{
		sock:     conn,
		send:     make(chan []byte, 16),
		shutdown: &shut,
		Done:     make(chan struct{}),
		log:      log,
	}
	return ws
}

// Listen starts both pumps; OnMessage must be set first.
func (ws *WS) Listen() {
	go ws.writer()
	go ws.reader()
}

// reader pumps messages from the websocket connection to the OnMessage callback.
// Serializes all websocket reads.
func (ws *WS) reader() {
	defer func() {
		close(ws.send)
		ws.shutdown.Done()
		ws.close()
		ws.log.Debug().Msg("ws reader closed")
	}()
	ws.sock.SetReadLimit(maxMessageSize)
	_ = ws.sock.SetReadDeadline(time.Now().Add(pongTime))
	ws.sock.SetPongHandler(func(string) error { return ws.sock.SetReadDeadline(time.Now().Add(pongTime)) })
	for {
		_, message, err := ws.sock.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				ws.log.Debug().Err(err).Msg("ws read")
			}
			break
		}
		ws.OnMessage(message, nil)
	}
}

// writer pumps messages from the send channel to the websocket connection.
// Serializes all websocket writes.
func (ws *WS) writer() {
	// protocol-level keepalive, shorter than the server pong deadline
	ticker := time.NewTicker(pongTime * 9 / 10)
	defer func() {
		ticker.Stop()
		ws.shutdown.Done()
		ws.close()
		ws.log.Debug().Msg("ws writer closed")
	}()
	for {
		select {
		case message, ok := <-ws.send:
			if !ok {
				_ = ws.write(websocket.CloseMessage, []byte{})
				return
			}
			if err := ws.write(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			if err := ws.write(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// write pushes one frame with the write deadline applied.
func (ws *WS) write(t int, data []byte) error {
	if err := ws.sock.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return ws.sock.WriteMessage(t, data)
}

// Write queues a message for sending. It is a no-op on a closed socket.
func (ws *WS) Write(data []byte) {
	defer func() { recover() }() // the send channel closes with the reader
	select {
	case ws.send <- data:
	case <-ws.Done:
	}
}

func (ws *WS) Close() {
	_ = ws.write(websocket.CloseMessage, []byte{})
	_ = ws.sock.Close()
}

func (ws *WS) close() {
	// closing the connection first unblocks the other pump
	_ = ws.sock.Close()
	ws.shutdown.Wait()
	ws.once.Do(func() { close(ws.Done) })
}
