// Package echoserver is a minimal stand-in server for the session wire
// format, exercised by its own test; neither the session package's tests
// (which use in-memory pipes) nor cmd/rpcclient use it. It speaks the same
// wire codec as session (session.ReadFrame / session.WriteFrame): it echoes
// any payload back prefixed with "reply-", and answers ping frames
// (message id 0) with an empty message id 0 reply. It implements no RPC
// schema of its own.
package echoserver

import (
	"io"
	"net"

	"github.com/kestrel-systems/rpcsession/internal/logger"
	"github.com/kestrel-systems/rpcsession/session"
)

var log = logger.GetLogger()

// Server accepts connections on a listener and serves each with the echo
// protocol described in the package doc comment.
type Server struct {
	ln          net.Listener
	maxFrameLen int
}

// New wraps an already-bound listener. Callers are responsible for closing
// ln; Serve returns once ln.Accept fails (typically because ln was closed).
func New(ln net.Listener, maxFrameLen int) *Server {
	if maxFrameLen <= 0 {
		maxFrameLen = session.DefaultMaxFrameLen
	}
	return &Server{ln: ln, maxFrameLen: maxFrameLen}
}

// Serve accepts connections until the listener is closed or an
// unrecoverable accept error occurs. Each connection is handled on its own
// goroutine.
func (s *Server) Serve() error {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			return err
		}
		go s.handle(conn)
	}
}

func (s *Server) handle(conn net.Conn) {
	defer conn.Close()
	log.WithField("remote", conn.RemoteAddr()).Debug("echoserver: connection accepted")
	for {
		frame, err := session.ReadFrame(conn, s.maxFrameLen)
		if err != nil {
			if err != io.EOF {
				log.WithError(err).Debug("echoserver: read failed")
			}
			return
		}

		var reply session.Frame
		if frame.ID == 0 {
			reply = session.Frame{ID: 0}
		} else {
			reply = session.Frame{ID: frame.ID, Payload: append([]byte("reply-"), frame.Payload...)}
		}
		if err := session.WriteFrame(conn, reply); err != nil {
			log.WithError(err).Debug("echoserver: write failed")
			return
		}
	}
}
