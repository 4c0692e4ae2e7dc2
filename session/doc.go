// Package session implements a long-lived, full-duplex client-side RPC
// session: one connection to one remote endpoint, multiplexing many
// outstanding request/response exchanges, with application-level liveness
// probing and per-call cancellation.
//
// # Architecture
//
//   - Session owns the connection state, the registry of in-flight calls,
//     the liveness timer, and the terminal error slot. Every mutation of
//     that state goes through Session's mutex.
//   - messageSocket reads and writes frames on the connection; Session's
//     dedicated read goroutine dispatches each inbound frame into the session.
//   - The liveness timer is a single time.Timer driving a four-state
//     idle -> suspicious -> ping-outstanding -> expired protocol.
//   - call is the registry record for one in-flight exchange; CallHandle is
//     the value callers hold, supporting Wait, Update, and Cancel from any
//     goroutine.
//
// # Example
//
//	sess := session.Connect("tcp", "rpc.example.com:9000", session.DefaultMaxFrameLen, time.Now().Add(5*time.Second))
//	if msg := sess.ErrorMessage(); msg != "" {
//		log.Fatal(msg)
//	}
//	call := sess.SendRequest([]byte("ping"))
//	call.Wait(time.Now().Add(time.Second))
//	call.Update()
//	if err := call.Err(); err != nil {
//		log.Fatal(err)
//	}
//	fmt.Println(call.Reply())
package session
