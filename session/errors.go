package session

import (
	"github.com/kestrel-systems/rpcsession/internal/util"
	"github.com/samber/oops"
)

// Sentinel errors for the six caller-observable terminal error kinds. Use
// errors.Is to test for a specific kind; Session.ErrorMessage returns the
// formatted message actually recorded on the session, which always embeds
// the endpoint or underlying cause.
var (
	// ErrAddressInvalid means the endpoint failed validation before any
	// socket was created.
	ErrAddressInvalid = oops.New("failed to resolve endpoint")
	// ErrSocketCreate means the underlying transport could not allocate a
	// socket for the connect attempt.
	ErrSocketCreate = oops.New("failed to create socket")
	// ErrConnectFailed means the non-blocking connect returned a system
	// error before completing.
	ErrConnectFailed = oops.New("connect failed")
	// ErrConnectTimeout means the clamped connect deadline elapsed before
	// the connection became writable.
	ErrConnectTimeout = oops.New("timeout expired")
	// ErrDisconnected means the message socket observed disconnection after
	// a successful connect.
	ErrDisconnected = oops.New("disconnected from endpoint")
	// ErrServerTimedOut means a ping went unanswered within the suspicion
	// window, so the session was expired by its liveness timer.
	ErrServerTimedOut = oops.New("server timed out")
)

func errAddressInvalid(endpoint string) error {
	return oops.Wrapf(ErrAddressInvalid, "failed to resolve %s", endpoint)
}

func errSocketCreate(cause error) error {
	return oops.Wrapf(ErrSocketCreate, "failed to create socket: %v", cause)
}

func errConnectFailed(endpoint string, cause error) error {
	return oops.Wrapf(ErrConnectFailed, "connect to %s failed: %v", endpoint, cause)
}

func errConnectTimeout(endpoint string) error {
	return oops.Wrapf(ErrConnectTimeout, "failed to connect to %s: timeout expired", endpoint)
}

func errDisconnected(endpoint string) error {
	return oops.Wrapf(ErrDisconnected, "disconnected from %s", endpoint)
}

func errServerTimedOut(endpoint string) error {
	return oops.Wrapf(ErrServerTimedOut, "server %s timed out", endpoint)
}

// ErrCallCanceled is returned by a CallHandle's Err() accessor when the
// call was resolved by cancellation rather than a reply or a session error.
// It never appears as a Session-level error.
var ErrCallCanceled = oops.New("call canceled")

// errInvariant panics on an unrecoverable internal invariant violation:
// registry states that the state machine must never produce (an
// already-canceled call still sitting in the registry, or a Pending handle
// whose record has vanished). The message-id counter itself never reaches
// this path: its wrap to zero is handled by skipping back to 1, since a
// 64-bit counter wrapping in practice would take centuries of calls at any
// realistic rate, and the skip preserves the "never assign 0" rule without
// needing to treat the wrap as fatal.
func errInvariant(format string, args ...interface{}) {
	util.Panicf("session: internal invariant violated: "+format, args...)
}
