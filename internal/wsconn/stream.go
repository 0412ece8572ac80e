// Package wsconn presents a WebSocket connection as a byte stream, so the
// length-prefixed protocol can run unchanged over WebSocket.
//
// Each Write is sent as one binary message. Reads consume binary messages
// back to back; frame boundaries need not coincide with message
// boundaries. Text messages are rejected.
package wsconn

import (
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// ErrTextMessage is returned when the peer sends a text message.
var ErrTextMessage = errors.New("websocket: text message on binary stream")

// closeGracePeriod bounds the close handshake write.
const closeGracePeriod = time.Second

// Stream adapts *websocket.Conn to io.ReadWriteCloser with deadlines.
//
// Reads must come from one goroutine and writes from one goroutine (or be
// serialized by the caller); Close is safe to call concurrently.
type Stream struct {
	conn    *websocket.Conn
	current io.Reader

	closeOnce sync.Once
	closeErr  error
}

// New wraps conn.
func New(conn *websocket.Conn) *Stream {
	return &Stream{conn: conn}
}

// Read reads from the current message, advancing to the next one when it
// is exhausted. A close frame from the peer is reported as io.EOF.
func (s *Stream) Read(p []byte) (int, error) {
	for {
		if s.current == nil {
			messageType, r, err := s.conn.NextReader()
			if err != nil {
				return 0, translateReadError(err)
			}
			if messageType != websocket.BinaryMessage {
				return 0, ErrTextMessage
			}
			s.current = r
		}

		n, err := s.current.Read(p)
		if errors.Is(err, io.EOF) {
			s.current = nil
			if n > 0 {
				return n, nil
			}
			continue
		}
		return n, err
	}
}

func translateReadError(err error) error {
	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		if closeErr.Code == websocket.CloseNormalClosure || closeErr.Code == websocket.CloseGoingAway {
			return io.EOF
		}
		return fmt.Errorf("%w: %v", io.ErrUnexpectedEOF, err)
	}
	return err
}

// Write sends p as one binary message.
func (s *Stream) Write(p []byte) (int, error) {
	if err := s.conn.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

// Close sends a normal close frame and closes the connection. Only the
// first call has an effect.
func (s *Stream) Close() error {
	s.closeOnce.Do(func() {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeGracePeriod))
		s.closeErr = s.conn.Close()
	})
	return s.closeErr
}

// SetReadDeadline implements the deadline half of net.Conn.
func (s *Stream) SetReadDeadline(t time.Time) error {
	return s.conn.SetReadDeadline(t)
}

// SetWriteDeadline implements the deadline half of net.Conn.
func (s *Stream) SetWriteDeadline(t time.Time) error {
	return s.conn.SetWriteDeadline(t)
}

// RemoteAddr returns the peer address.
func (s *Stream) RemoteAddr() net.Addr {
	return s.conn.RemoteAddr()
}

// SetReadLimit bounds the size of a single incoming message.
func (s *Stream) SetReadLimit(limit int64) {
	s.conn.SetReadLimit(limit)
}
