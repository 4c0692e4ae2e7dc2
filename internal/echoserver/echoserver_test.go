package echoserver

import (
	"net"
	"testing"
	"time"

	"github.com/kestrel-systems/rpcsession/session"
	"github.com/stretchr/testify/require"
)

func TestEchoServer_RepliesAndPings(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	srv := New(ln, 0)
	go srv.Serve()

	conn, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(2 * time.Second))

	require.NoError(t, session.WriteFrame(conn, session.Frame{ID: 1, Payload: []byte("hi")}))
	reply, err := session.ReadFrame(conn, 0)
	require.NoError(t, err)
	require.Equal(t, uint64(1), reply.ID)
	require.Equal(t, []byte("reply-hi"), reply.Payload)

	require.NoError(t, session.WriteFrame(conn, session.Frame{ID: 0}))
	pingReply, err := session.ReadFrame(conn, 0)
	require.NoError(t, err)
	require.Equal(t, uint64(0), pingReply.ID)
	require.Empty(t, pingReply.Payload)
}
