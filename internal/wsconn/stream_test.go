package wsconn

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// pair returns the server and client ends of a WebSocket connection.
func pair(t *testing.T) (server *Stream, client *websocket.Conn) {
	t.Helper()

	accepted := make(chan *Stream, 1)
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		accepted <- New(conn)
	}))
	t.Cleanup(srv.Close)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	return <-accepted, conn
}

func TestStream_ReadSpansMessages(t *testing.T) {
	server, client := pair(t)

	require.NoError(t, client.WriteMessage(websocket.BinaryMessage, []byte("hel")))
	require.NoError(t, client.WriteMessage(websocket.BinaryMessage, []byte{}))
	require.NoError(t, client.WriteMessage(websocket.BinaryMessage, []byte("lo world")))

	buf := make([]byte, 11)
	_, err := io.ReadFull(server, buf)
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(buf))
}

func TestStream_WriteIsOneMessage(t *testing.T) {
	server, client := pair(t)

	n, err := server.Write([]byte("frame"))
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	messageType, data, err := client.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, websocket.BinaryMessage, messageType)
	assert.Equal(t, "frame", string(data))
}

func TestStream_RejectsTextMessages(t *testing.T) {
	server, client := pair(t)

	require.NoError(t, client.WriteMessage(websocket.TextMessage, []byte("{}")))

	_, err := server.Read(make([]byte, 8))
	assert.ErrorIs(t, err, ErrTextMessage)
}

func TestStream_NormalCloseIsEOF(t *testing.T) {
	server, client := pair(t)

	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	require.NoError(t, client.WriteMessage(websocket.CloseMessage, msg))

	_, err := server.Read(make([]byte, 8))
	assert.ErrorIs(t, err, io.EOF)
}

func TestStream_CloseSendsCloseFrame(t *testing.T) {
	server, client := pair(t)

	require.NoError(t, server.Close())
	require.NoError(t, server.Close())

	_, _, err := client.ReadMessage()
	require.Error(t, err)
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure))
}
