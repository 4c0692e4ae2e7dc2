package session

import (
	"context"
	"net"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// pipeDialFunc returns a DialFunc that hands back one end of an in-memory
// net.Pipe on its first call and fails on every subsequent call, along with
// the other end for the test to drive as a fake server.
func pipeDialFunc() (DialFunc, net.Conn) {
	client, server := net.Pipe()
	used := false
	return func(ctx context.Context, network, address string) (net.Conn, error) {
		if used {
			return nil, context.Canceled
		}
		used = true
		return client, nil
	}, server
}

func connectPiped(t *testing.T) (*Session, net.Conn) {
	t.Helper()
	dial, server := pipeDialFunc()
	sess := Connect("tcp", "127.0.0.1:9", DefaultMaxFrameLen, time.Now().Add(time.Second), WithDialFunc(dial))
	require.Empty(t, sess.ErrorMessage())
	t.Cleanup(func() { _ = sess.Close(); _ = server.Close() })
	return sess, server
}

func serverSocket(conn net.Conn) *frameSocket {
	return newFrameSocket(conn, DefaultMaxFrameLen)
}

// waitForWaiter blocks until call's registry record has hasWaiter set, i.e.
// some goroutine is parked in Wait for it. Acquiring sess.mu only succeeds
// once the parked goroutine has released it inside cond.Wait, so this never
// reports readiness early the way a fixed sleep would.
func waitForWaiter(t *testing.T, sess *Session, token uint64) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for {
		sess.mu.Lock()
		c, ok := sess.calls[token]
		ready := ok && c.hasWaiter
		sess.mu.Unlock()
		if ready {
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for call to register a waiter")
		}
		runtime.Gosched()
	}
}

// settleReadLoop sends and answers one extra call and waits for its reply,
// which the single read-loop goroutine can only do after dispatching every
// frame written ahead of it. Tests use this as an ordering barrier instead of
// an arbitrary sleep when they need to know an already-written frame has been
// processed.
func settleReadLoop(t *testing.T, sess *Session, srv *frameSocket) {
	t.Helper()
	barrier := sess.SendRequest([]byte("barrier"))
	frame, err := srv.readFrame()
	require.NoError(t, err)
	require.NoError(t, srv.writeFrame(Frame{ID: frame.ID, Payload: []byte("ok")}))
	barrier.Wait(time.Now().Add(time.Second))
	barrier.Update()
	require.Equal(t, StatusOK, barrier.Status())
}

func TestConnect_InvalidAddress(t *testing.T) {
	sess := Connect("tcp", "not-a-valid-address", DefaultMaxFrameLen, time.Now().Add(time.Second))
	assert.NotEmpty(t, sess.ErrorMessage())
	assert.Contains(t, sess.ErrorMessage(), "failed to resolve")
}

func TestConnect_DialFailure(t *testing.T) {
	dial := func(ctx context.Context, network, address string) (net.Conn, error) {
		return nil, assertErr
	}
	sess := Connect("tcp", "127.0.0.1:9", DefaultMaxFrameLen, time.Now().Add(time.Second), WithDialFunc(dial))
	assert.NotEmpty(t, sess.ErrorMessage())
	assert.Contains(t, sess.ErrorMessage(), "connect to")
}

func TestConnect_SocketCreateFailure(t *testing.T) {
	dial := func(ctx context.Context, network, address string) (net.Conn, error) {
		return nil, &net.OpError{Op: "dial", Err: &net.OpError{Op: "socket", Err: errString("too many open files")}}
	}
	sess := Connect("tcp", "127.0.0.1:9", DefaultMaxFrameLen, time.Now().Add(time.Second), WithDialFunc(dial))
	assert.NotEmpty(t, sess.ErrorMessage())
	assert.Contains(t, sess.ErrorMessage(), "failed to create socket")
}

func TestConnect_DialTimeout(t *testing.T) {
	dial := func(ctx context.Context, network, address string) (net.Conn, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	sess := Connect("tcp", "127.0.0.1:9", DefaultMaxFrameLen, time.Now().Add(20*time.Millisecond), WithDialFunc(dial))
	assert.Contains(t, sess.ErrorMessage(), "timeout expired")
}

var assertErr = &net.OpError{Op: "dial", Err: errString("refused")}

type errString string

func (e errString) Error() string { return string(e) }

// TestHappyPath covers send -> server reply -> wait -> update resolving Ok.
func TestHappyPath(t *testing.T) {
	sess, server := connectPiped(t)
	srv := serverSocket(server)

	call := sess.SendRequest([]byte("hello"))
	assert.Equal(t, uint64(1), call.Token())

	frame, err := srv.readFrame()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), frame.ID)
	assert.Equal(t, []byte("hello"), frame.Payload)

	require.NoError(t, srv.writeFrame(Frame{ID: frame.ID, Payload: []byte("world")}))

	call.Wait(time.Now().Add(time.Second))
	call.Update()
	assert.Equal(t, StatusOK, call.Status())
	assert.Equal(t, []byte("world"), call.Reply())
	assert.NoError(t, call.Err())
}

// TestMultipleCallsGetDistinctIncreasingIDs checks the strictly increasing,
// nonzero message id invariant.
func TestMultipleCallsGetDistinctIncreasingIDs(t *testing.T) {
	sess, _ := connectPiped(t)

	var last uint64
	for i := 0; i < 5; i++ {
		c := sess.SendRequest([]byte("x"))
		assert.Greater(t, c.Token(), last)
		assert.NotZero(t, c.Token())
		last = c.Token()
	}
}

// TestCancelBeforeReply_NoWaiter exercises the immediate-drop path.
func TestCancelBeforeReply_NoWaiter(t *testing.T) {
	sess, _ := connectPiped(t)

	call := sess.SendRequest([]byte("x"))
	call.Cancel()
	assert.Equal(t, StatusCanceled, call.Status())
	assert.ErrorIs(t, call.Err(), ErrCallCanceled)

	// A second cancel is a no-op, not a panic.
	call.Cancel()
	assert.Equal(t, StatusCanceled, call.Status())
}

// TestCancelWithBlockedWaiter exercises cancellation while another goroutine
// is parked in Wait.
func TestCancelWithBlockedWaiter(t *testing.T) {
	sess, _ := connectPiped(t)

	call := sess.SendRequest([]byte("x"))
	done := make(chan struct{})
	go func() {
		call.Wait(time.Time{})
		close(done)
	}()

	waitForWaiter(t, sess, call.Token())
	call.Cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Wait did not return after Cancel")
	}
	assert.Equal(t, StatusCanceled, call.Status())
}

// TestReplyAfterCancel_StaysCanceled covers the race between cancel-with-
// waiter and a reply landing before the waiter has removed the record: a
// cancelled call must stay cancelled rather than being resurrected by a
// late reply.
func TestReplyAfterCancel_StaysCanceled(t *testing.T) {
	sess, server := connectPiped(t)
	srv := serverSocket(server)

	call := sess.SendRequest([]byte("x"))
	frame, err := srv.readFrame()
	require.NoError(t, err)

	// Cancel directly, bypassing the registry's hasWaiter path, to park the
	// record in the Canceled state without a waiter to remove it -- this
	// simulates the narrow window where dispatch observes a still-present
	// Canceled record.
	sess.mu.Lock()
	c := sess.calls[frame.ID]
	c.status = callCanceled
	sess.mu.Unlock()

	require.NoError(t, srv.writeFrame(Frame{ID: frame.ID, Payload: []byte("late")}))
	settleReadLoop(t, sess, srv)

	sess.mu.Lock()
	status := c.status
	_, stillPresent := sess.calls[frame.ID]
	sess.mu.Unlock()

	assert.Equal(t, callCanceled, status, "a late reply must not resurrect a cancelled call")
	assert.True(t, stillPresent)
	_ = call
}

// TestPingThenRecovery exercises the Suspicious -> Ping-outstanding ->
// recovered path: the liveness timer must fire a ping and, once answered,
// leave the original call unaffected.
func TestPingThenRecovery(t *testing.T) {
	dial, server := pipeDialFunc()
	sess := Connect("tcp", "127.0.0.1:9", DefaultMaxFrameLen, time.Now().Add(time.Second), WithDialFunc(dial))
	require.Empty(t, sess.ErrorMessage())
	defer sess.Close()
	defer server.Close()
	srv := serverSocket(server)

	call := sess.SendRequest([]byte("slow"))
	reqFrame, err := srv.readFrame()
	require.NoError(t, err)

	// Wait for the liveness timer to probe with a ping (message id 0).
	ping, err := srv.readFrame()
	require.NoError(t, err)
	assert.Equal(t, uint64(0), ping.ID)

	// Answer the ping before the second timeout window elapses.
	require.NoError(t, srv.writeFrame(Frame{ID: 0}))

	// Now answer the original call.
	require.NoError(t, srv.writeFrame(Frame{ID: reqFrame.ID, Payload: []byte("done")}))

	call.Wait(time.Now().Add(time.Second))
	call.Update()
	assert.Equal(t, StatusOK, call.Status())
	assert.Equal(t, []byte("done"), call.Reply())
}

// TestPingTimeout_ExpiresSession exercises the full Suspicious ->
// Ping-outstanding -> Expired path when the ping itself goes unanswered.
func TestPingTimeout_ExpiresSession(t *testing.T) {
	dial, server := pipeDialFunc()
	sess := Connect("tcp", "127.0.0.1:9", DefaultMaxFrameLen, time.Now().Add(time.Second), WithDialFunc(dial))
	require.Empty(t, sess.ErrorMessage())
	defer sess.Close()
	defer server.Close()
	srv := serverSocket(server)

	call := sess.SendRequest([]byte("slow"))
	_, err := srv.readFrame()
	require.NoError(t, err)

	ping, err := srv.readFrame()
	require.NoError(t, err)
	assert.Equal(t, uint64(0), ping.ID)

	// Never answer the ping: wait past the second timeout window.
	call.Wait(time.Now().Add(2 * time.Second))
	call.Update()
	assert.Equal(t, StatusError, call.Status())
	assert.Contains(t, call.Err().Error(), "server")
	assert.NotEmpty(t, sess.ErrorMessage())
}

// TestDisconnectFansOutToAllCalls checks that closing the underlying
// connection resolves every outstanding call with the same error.
func TestDisconnectFansOutToAllCalls(t *testing.T) {
	sess, server := connectPiped(t)

	c1 := sess.SendRequest([]byte("a"))
	c2 := sess.SendRequest([]byte("b"))

	require.NoError(t, server.Close())

	c1.Wait(time.Now().Add(time.Second))
	c2.Wait(time.Now().Add(time.Second))
	c1.Update()
	c2.Update()

	assert.Equal(t, StatusError, c1.Status())
	assert.Equal(t, StatusError, c2.Status())
	assert.Equal(t, c1.Err().Error(), c2.Err().Error())
}

// TestDuplicateReply_SecondOneDropped covers the duplicate-reply edge case:
// once a call has resolved, a second frame for the same id must not
// overwrite it or panic.
func TestDuplicateReply_SecondOneDropped(t *testing.T) {
	sess, server := connectPiped(t)
	srv := serverSocket(server)

	call := sess.SendRequest([]byte("x"))
	frame, err := srv.readFrame()
	require.NoError(t, err)

	require.NoError(t, srv.writeFrame(Frame{ID: frame.ID, Payload: []byte("first")}))
	call.Wait(time.Now().Add(time.Second))
	call.Update()
	require.Equal(t, StatusOK, call.Status())
	require.Equal(t, []byte("first"), call.Reply())

	// A duplicate reply for the same (now-unregistered) id must not panic
	// the read loop or corrupt the resolved handle.
	require.NoError(t, srv.writeFrame(Frame{ID: frame.ID, Payload: []byte("second")}))
	settleReadLoop(t, sess, srv)
	assert.Equal(t, []byte("first"), call.Reply())
}

// TestUpdateIsIdempotentOnResolvedHandle checks that calling Update
// repeatedly after resolution is safe and does not change the result.
func TestUpdateIsIdempotentOnResolvedHandle(t *testing.T) {
	sess, server := connectPiped(t)
	srv := serverSocket(server)

	call := sess.SendRequest([]byte("x"))
	frame, err := srv.readFrame()
	require.NoError(t, err)
	require.NoError(t, srv.writeFrame(Frame{ID: frame.ID, Payload: []byte("y")}))

	call.Wait(time.Now().Add(time.Second))
	call.Update()
	call.Update()
	call.Update()
	assert.Equal(t, StatusOK, call.Status())
	assert.Equal(t, []byte("y"), call.Reply())
}

// TestActiveCountInvariant checks that the session's internal active-call
// bookkeeping returns to zero once every call has resolved.
func TestActiveCountInvariant(t *testing.T) {
	sess, server := connectPiped(t)
	srv := serverSocket(server)

	calls := make([]*CallHandle, 3)
	for i := range calls {
		calls[i] = sess.SendRequest([]byte("x"))
	}
	for range calls {
		f, err := srv.readFrame()
		require.NoError(t, err)
		require.NoError(t, srv.writeFrame(Frame{ID: f.ID, Payload: []byte("ok")}))
	}
	for _, c := range calls {
		c.Wait(time.Now().Add(time.Second))
		c.Update()
		assert.Equal(t, StatusOK, c.Status())
	}

	sess.mu.Lock()
	assert.Zero(t, sess.activeCount)
	sess.mu.Unlock()
}

// TestStringAndErrorMessage exercise the Stringer and error accessors on a
// never-connected session.
func TestStringAndErrorMessage(t *testing.T) {
	sess := Connect("tcp", "bad address", DefaultMaxFrameLen, time.Now())
	assert.Contains(t, sess.String(), "failed")
	assert.NotEmpty(t, sess.ErrorMessage())
}
