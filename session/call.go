package session

import (
	"sync"
	"time"
)

// callStatus is the internal status of a registry record.
type callStatus int

const (
	callWaiting callStatus = iota
	callHasReply
	callCanceled
)

// call is one in-flight request/response exchange, keyed in the session's
// registry by its message id. It is exclusively owned by that registry:
// created in SendRequest, destroyed when drained by Update/Wait or by an
// immediate cancel.
type call struct {
	status    callStatus
	reply     []byte
	hasWaiter bool
	cond      *sync.Cond
}

func newCall(mu *sync.Mutex) *call {
	return &call{
		status: callWaiting,
		cond:   sync.NewCond(mu),
	}
}

// Status is the caller-visible resolution state of a CallHandle.
type Status int

const (
	// StatusPending means the call has not yet resolved.
	StatusPending Status = iota
	// StatusOK means the call resolved with a reply.
	StatusOK
	// StatusError means the call resolved because the session failed.
	StatusError
	// StatusCanceled means the call was canceled before it resolved.
	StatusCanceled
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "Pending"
	case StatusOK:
		return "Ok"
	case StatusError:
		return "Error"
	case StatusCanceled:
		return "Canceled"
	default:
		return "Unknown"
	}
}

// CallHandle is the caller-held token for one in-flight call. It supports
// Wait (blocking, bounded by a deadline), Update (non-blocking poll), and
// Cancel, safely invoked from any goroutine while the connection may
// asynchronously fail. A CallHandle holds its session by a plain pointer:
// Go's garbage collector keeps the session alive as long as any handle
// references it, and reclaims it once none do, so there is no destructor
// ordering to guard against.
type CallHandle struct {
	mu      sync.Mutex
	session *Session
	token   uint64
	status  Status
	reply   []byte
	errMsg  string
}

// Token returns the message id assigned to this call at send time.
func (h *CallHandle) Token() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.token
}

// Status returns the last status observed by Update.
func (h *CallHandle) Status() Status {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.status
}

// Reply returns the reply payload once Status is StatusOK. It is empty
// otherwise.
func (h *CallHandle) Reply() []byte {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.reply
}

// Err returns a non-nil error once Status is StatusError or StatusCanceled.
func (h *CallHandle) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	switch h.status {
	case StatusError:
		return errorString(h.errMsg)
	case StatusCanceled:
		return ErrCallCanceled
	default:
		return nil
	}
}

// errorString lets a plain recorded message satisfy the error interface
// without re-wrapping it through oops (the message was already formatted
// once by the session that produced it).
type errorString string

func (e errorString) Error() string { return string(e) }

// Wait blocks the calling goroutine until the call resolves (reply arrives,
// the session fails, or it is canceled by another goroutine) or until
// deadline passes, whichever comes first. It never mutates the handle
// itself — call Update afterward to materialize the result. Wait is safe to
// call from multiple goroutines on the same handle, though only one will
// typically be blocked at a time in practice.
func (h *CallHandle) Wait(deadline time.Time) {
	sess := h.sessionRef()
	if sess == nil {
		return
	}
	sess.wait(h, deadline)
}

// Update performs a non-blocking poll of the call and, if it has resolved,
// materializes the result onto the handle and drops the handle's session
// reference. Update is idempotent once the handle is resolved.
func (h *CallHandle) Update() {
	sess := h.sessionRef()
	if sess == nil {
		return
	}
	sess.update(h)
}

// Cancel abandons the call. It is safe at any time, idempotent on a drained
// handle, and never waits for a reply.
func (h *CallHandle) Cancel() {
	sess := h.sessionRef()
	if sess == nil {
		return
	}
	sess.cancel(h)
}

// sessionRef returns the handle's current session reference, or nil if the
// handle has already drained.
func (h *CallHandle) sessionRef() *Session {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.session
}
