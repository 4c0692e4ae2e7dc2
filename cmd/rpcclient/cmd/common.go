package cmd

import (
	"time"

	clock "github.com/kestrel-systems/rpcsession/internal/clock"
	"github.com/kestrel-systems/rpcsession/internal/config"
	"github.com/kestrel-systems/rpcsession/internal/util"
	"github.com/kestrel-systems/rpcsession/session"
)

// processClock is consulted by every command that computes a deadline, and
// its offset is set by ntpcheck --apply. Each rpcclient invocation runs one
// command, so an offset set by ntpcheck is not seen by call or watch.
var processClock = clock.NewClock()

// dialSession opens a session against the configured endpoint using the
// connect timeout from config, and registers it so a SIGINT/SIGTERM during a
// long-running command (watch) closes it instead of leaking the connection.
// Callers must still defer sess.Close() themselves for the normal-exit path,
// even when ErrorMessage() is non-empty: Close is idempotent and safe on a
// born-failed session.
func dialSession() *session.Session {
	cfg := config.FromViper()
	deadline := processClock.Now().Add(time.Duration(cfg.ConnectTimeoutS) * time.Second)
	sess := session.Connect(network, endpoint, maxFrameLen, deadline)
	util.RegisterCloser(sess)
	return sess
}
