// Package monotonic provides NTP-jump-safe time utilities for session deadlines.
//
// Go's time.Now() includes a monotonic clock reading that is immune to wall clock
// adjustments (NTP corrections, manual time changes). The time.Since() and
// time.Until() functions use this monotonic reading when available. However, this
// only works when both times were captured within the same process lifetime using
// time.Now().
//
// Timestamps loaded from disk or received over the network do NOT have monotonic
// readings, so comparing them with time.Now() falls back to wall clock comparison,
// which can produce incorrect results if the system clock jumps.
//
// This package provides a Deadline type that captures the creation time via
// time.Now() and checks expiration using time.Since(), ensuring monotonic safety.
// It also provides a Clock type for consistent monotonic time access, optionally
// adjusted by an NTP offset (see cmd/rpcclient's ntpcheck command).
//
// Usage for clamping a connect deadline to the session's hard ceiling:
//
//	deadline := monotonic.NewDeadline(10 * time.Second)
//	// ... later ...
//	if deadline.IsExpired() {
//	    // connect attempt timed out
//	}
//
// Usage for a caller-supplied absolute wait deadline:
//
//	d := monotonic.NewDeadlineAt(sentAt, timeout)
//	if remaining := d.Remaining(); remaining > 0 {
//	    // still within the caller's budget
//	}
package monotonic
