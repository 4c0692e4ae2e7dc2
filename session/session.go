package session

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	clock "github.com/kestrel-systems/rpcsession/internal/clock"
	"github.com/kestrel-systems/rpcsession/internal/logger"
)

var log = logger.GetLogger()

// TimeoutMS is the suspicion window and ping response window: once a call
// has been outstanding this long with no activity, the session pings the
// server; if a ping itself goes unanswered for this long, the session is
// declared expired.
const TimeoutMS = 100

const timeout = TimeoutMS * time.Millisecond

// connectDeadlineClamp is the hard ceiling on how long Connect will wait,
// regardless of the caller-supplied absolute deadline. Observed OS-level
// connect timeouts can be unreasonably long; this bounds the wait.
const connectDeadlineClamp = 10 * time.Second

// DialFunc performs the underlying connect. The default, dialTCP, opens a
// real TCP connection; tests may substitute a stub via WithDialFunc to
// simulate failures, timeouts, or an in-memory pipe without a listener.
type DialFunc func(ctx context.Context, network, address string) (net.Conn, error)

func dialTCP(ctx context.Context, network, address string) (net.Conn, error) {
	var d net.Dialer
	return d.DialContext(ctx, network, address)
}

// isSocketCreateError reports whether err is a socket-allocation failure
// (e.g. the process's file descriptor table is exhausted) rather than a
// failure of the connect attempt itself. net.Dialer.DialContext wraps both
// in a *net.OpError, nesting an inner OpError whose Op names the failing
// syscall ("socket" vs "connect"); this unwraps that chain looking for the
// "socket" stage.
func isSocketCreateError(err error) bool {
	for err != nil {
		opErr, ok := err.(*net.OpError)
		if !ok {
			return false
		}
		if opErr.Op == "socket" {
			return true
		}
		err = opErr.Err
	}
	return false
}

// Option configures a Session during Connect.
type Option func(*Session)

// WithDialFunc overrides the function used to perform the non-blocking
// connect. Tests use this to simulate connect failures, timeouts, or to
// hand the session a net.Pipe-backed connection without a real listener.
func WithDialFunc(dial DialFunc) Option {
	return func(s *Session) { s.dial = dial }
}

// WithMaxFrameLen overrides the inbound frame size budget (DefaultMaxFrameLen
// if unset or non-positive).
func WithMaxFrameLen(n int) Option {
	return func(s *Session) { s.maxFrameLen = n }
}

// Session is a long-lived, full-duplex association with one remote
// endpoint, multiplexing many outstanding request/response exchanges over a
// single connection. A Session is either connected or permanently failed;
// once failed it never recovers (see ErrorMessage).
//
// All exported methods are safe for concurrent use from any goroutine.
type Session struct {
	endpoint string
	network  string
	dial     DialFunc
	maxFrameLen int

	mu              sync.Mutex
	sock            messageSocket
	nextMessageID   uint64
	calls           map[uint64]*call
	activeCount     int
	pingOutstanding bool
	errMsg          string
	timer           *time.Timer

	closeOnce sync.Once
	readDone  chan struct{}
}

// Connect constructs a Session for a connection to address over network
// (normally "tcp"). It either returns in the connected state with a valid
// underlying socket, or in the born-failed state with ErrorMessage
// populated; construction is synchronous from the caller's point of view.
// absoluteDeadline bounds how long the connect attempt may take, clamped to
// at most 10 seconds from now.
func Connect(network, endpoint string, maxFrameLen int, absoluteDeadline time.Time, opts ...Option) *Session {
	s := &Session{
		endpoint:      endpoint,
		network:       network,
		dial:          dialTCP,
		maxFrameLen:   maxFrameLen,
		nextMessageID: 1,
		calls:         make(map[uint64]*call),
		readDone:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	if _, _, err := net.SplitHostPort(endpoint); err != nil {
		s.errMsg = errAddressInvalid(endpoint).Error()
		log.WithField("endpoint", endpoint).WithError(err).Warn("session: address validation failed")
		return s
	}

	connectDeadline := clampDeadline(absoluteDeadline)
	ctx, cancel := context.WithTimeout(context.Background(), connectDeadline.Remaining())
	defer cancel()

	conn, err := s.dial(ctx, network, endpoint)
	if err != nil {
		switch {
		case ctx.Err() == context.DeadlineExceeded:
			s.errMsg = errConnectTimeout(endpoint).Error()
		case isSocketCreateError(err):
			s.errMsg = errSocketCreate(err).Error()
		default:
			s.errMsg = errConnectFailed(endpoint, err).Error()
		}
		log.WithField("endpoint", endpoint).WithError(err).Warn("session: connect failed")
		return s
	}

	s.sock = newFrameSocket(conn, s.maxFrameLen)
	go s.readLoop()
	log.WithField("endpoint", endpoint).Debug("session: connected")
	return s
}

// clampDeadline bounds the caller-supplied absolute deadline to at most
// connectDeadlineClamp from now, returning a monotonic-safe Deadline whose
// Remaining() is immune to wall-clock jumps during the connect attempt.
func clampDeadline(deadline time.Time) *clock.Deadline {
	lifetime := connectDeadlineClamp
	if !deadline.IsZero() {
		if until := time.Until(deadline); until < lifetime {
			lifetime = until
		}
	}
	if lifetime < 0 {
		lifetime = 0
	}
	return clock.NewDeadline(lifetime)
}

// String returns a short diagnostic description of the session.
func (s *Session) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.errMsg != "" {
		return fmt.Sprintf("session(%s): failed: %s", s.endpoint, s.errMsg)
	}
	return fmt.Sprintf("session(%s): connected, %d active calls", s.endpoint, s.activeCount)
}

// ErrorMessage returns the session's terminal error, or "" if the session is
// still healthy. Once non-empty it never changes.
func (s *Session) ErrorMessage() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.errMsg
}

// Close deschedules the liveness timer and stops the read loop. Go's garbage
// collector reclaims the call registry once nothing references the Session,
// so Close's only remaining job is to stop the background goroutine and
// timer.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		if s.timer != nil {
			s.timer.Stop()
		}
		sock := s.sock
		s.mu.Unlock()
		if sock != nil {
			_ = sock.close()
		}
	})
	return nil
}

// SendRequest submits payload as a new call and returns a handle for it. The
// message id assigned is unique within the session and strictly greater
// than any previously assigned id. The session mutex is not held while the
// frame is handed to the socket, so inbound reads proceed concurrently with
// sends. The frame is written on its own goroutine, so SendRequest returns
// without waiting for the peer to read it; frames of different calls may
// therefore reach the wire in any order.
func (s *Session) SendRequest(payload []byte) *CallHandle {
	s.mu.Lock()
	token := s.nextMessageID
	s.nextMessageID++
	if s.nextMessageID == 0 {
		// Skip the id reserved for ping frames on wrap.
		s.nextMessageID = 1
	}
	c := newCall(&s.mu)
	s.calls[token] = c
	s.activeCount++
	if s.activeCount == 1 {
		s.pingOutstanding = false
		s.armTimer(timeout)
	}
	sock := s.sock
	s.mu.Unlock()

	if sock != nil {
		go func() {
			if err := sock.writeFrame(Frame{ID: token, Payload: payload}); err != nil {
				s.fail(errDisconnected(s.endpoint))
			}
		}()
	}

	return &CallHandle{session: s, token: token, status: StatusPending}
}

// update is the Session-side half of CallHandle.Update: a non-blocking poll
// of the call, holding the mutex for its duration.
func (s *Session) update(h *CallHandle) {
	s.mu.Lock()
	defer s.mu.Unlock()

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.session == nil {
		return
	}

	c, ok := s.calls[h.token]
	if !ok {
		// Already drained by an earlier update/wait, or canceled without a
		// waiter. Either way the handle must already reflect a terminal
		// status; a Pending handle with no registry record is a bug.
		if h.status == StatusPending {
			errInvariant("call %d missing from registry but handle still Pending", h.token)
		}
		h.session = nil
		return
	}

	switch c.status {
	case callHasReply:
		h.reply = c.reply
		h.status = StatusOK
		h.session = nil
		delete(s.calls, h.token)
	case callCanceled:
		errInvariant("call %d found Canceled in registry; canceled-without-waiter records must be removed immediately", h.token)
	default: // callWaiting
		if s.errMsg != "" {
			h.errMsg = s.errMsg
			h.status = StatusError
			h.session = nil
			delete(s.calls, h.token)
		}
		// else: leave Pending.
	}
}

// wait blocks until the call resolves or deadline passes. It never mutates
// the handle; callers follow up with Update.
func (s *Session) wait(h *CallHandle, deadline time.Time) {
	token := h.Token()

	s.mu.Lock()
	defer s.mu.Unlock()

	for {
		c, ok := s.calls[token]
		if !ok {
			return
		}
		if c.status == callHasReply {
			return
		}
		if c.status == callCanceled {
			delete(s.calls, token)
			return
		}
		if s.errMsg != "" {
			return
		}
		if !deadline.IsZero() && !time.Now().Before(deadline) {
			return
		}

		c.hasWaiter = true
		waitUntil(c.cond, &s.mu, deadline)
		c.hasWaiter = false
	}
}

// cancel abandons the call referenced by h.
func (s *Session) cancel(h *CallHandle) {
	token := h.Token()

	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.calls[token]
	if !ok {
		return
	}
	if c.hasWaiter {
		c.status = callCanceled
		c.cond.Broadcast()
	} else {
		delete(s.calls, token)
	}
	s.activeCount--
	// Deliberately not rearming/descheduling the timer here even if
	// activeCount reaches zero: a spurious Idle-state timer wake is cheaper
	// than coordinating with the timer under a second lock ordering.

	h.mu.Lock()
	h.status = StatusCanceled
	h.session = nil
	h.mu.Unlock()
}

// fail records the session's first terminal error and wakes every
// outstanding call. Subsequent calls are no-ops: the first error wins.
func (s *Session) fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.errMsg != "" {
		return
	}
	s.errMsg = err.Error()
	log.WithField("endpoint", s.endpoint).WithError(err).Warn("session: failed")
	for _, c := range s.calls {
		c.cond.Broadcast()
	}
}

// readLoop is the session's dedicated read goroutine: it blocks on the
// socket and dispatches each inbound frame under the session mutex, the
// idiomatic-Go stand-in for an event-loop's I/O-readiness callback.
func (s *Session) readLoop() {
	defer close(s.readDone)
	for {
		frame, err := s.sock.readFrame()
		if err != nil {
			s.fail(errDisconnected(s.endpoint))
			return
		}
		s.dispatch(frame)
	}
}

// dispatch routes one inbound frame under the session mutex: a ping reply
// clears the outstanding-ping flag, and a call reply resolves its registry
// record and wakes any waiter.
func (s *Session) dispatch(frame Frame) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.errMsg != "" {
		return
	}

	if frame.ID == 0 {
		if s.activeCount > 0 && s.pingOutstanding {
			s.pingOutstanding = false
			s.armTimer(timeout)
		} else {
			log.Debug("session: dropped unmatched ping reply")
		}
		return
	}

	c, ok := s.calls[frame.ID]
	if !ok {
		log.WithField("id", frame.ID).Debug("session: dropped reply for unknown or canceled call")
		return
	}
	if c.status != callWaiting {
		// HasReply: a duplicate. Canceled: the record is awaiting removal
		// by the waiter it woke; either way a cancelled call stays
		// cancelled and a resolved call keeps its first reply.
		log.WithField("id", frame.ID).Debug("session: dropped reply for a call no longer waiting")
		return
	}

	c.reply = frame.Payload
	c.status = callHasReply
	c.cond.Broadcast()

	s.activeCount--
	if s.activeCount == 0 {
		if s.timer != nil {
			s.timer.Stop()
		}
	} else {
		s.armTimer(timeout)
	}
}

// armTimer must be called while holding s.mu. It (re)schedules the single
// liveness timer; any previously scheduled firing is superseded.
func (s *Session) armTimer(after time.Duration) {
	if s.timer == nil {
		s.timer = time.AfterFunc(after, s.onTimerFire)
		return
	}
	s.timer.Reset(after)
}

// onTimerFire implements the liveness timer's suspicion -> ping -> expiry
// state machine. It runs on its own goroutine (time.AfterFunc's callback
// convention) and takes the session mutex to inspect and mutate state.
func (s *Session) onTimerFire() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.errMsg != "" {
		return // Expired: no action.
	}
	if s.activeCount == 0 {
		return // Idle: spurious wake, no action.
	}

	if !s.pingOutstanding {
		// Suspicious -> Ping-outstanding: probe liveness.
		s.pingOutstanding = true
		s.armTimer(timeout)
		sock := s.sock
		endpoint := s.endpoint
		s.mu.Unlock()
		var sendErr error
		if sock != nil {
			sendErr = sock.writeFrame(Frame{ID: 0})
		}
		s.mu.Lock()
		if sendErr != nil && s.errMsg == "" {
			s.errMsg = errDisconnected(endpoint).Error()
			for _, c := range s.calls {
				c.cond.Broadcast()
			}
		}
		return
	}

	// Ping-outstanding and no reply within the window: expire the session.
	s.errMsg = errServerTimedOut(s.endpoint).Error()
	log.WithField("endpoint", s.endpoint).Warn("session: server timed out")
	for _, c := range s.calls {
		c.cond.Broadcast()
	}
}

// waitUntil blocks on cond (whose Locker is mu, already held by the caller)
// until it is signalled or deadline passes. cond.Wait offers no built-in
// deadline, so a helper goroutine fires the broadcast on timeout; mu is held
// throughout except while actually parked in cond.Wait, matching the
// semantics of sync.Cond.
func waitUntil(cond *sync.Cond, mu *sync.Mutex, deadline time.Time) {
	if deadline.IsZero() {
		cond.Wait()
		return
	}
	d := time.Until(deadline)
	if d <= 0 {
		return
	}

	timer := time.AfterFunc(d, func() {
		mu.Lock()
		cond.Broadcast()
		mu.Unlock()
	})
	defer timer.Stop()
	cond.Wait()
}
