// Package errs defines the sentinel error kinds surfaced to operators.
// Protocol handlers are defensive: malformed frames, unresolvable IPs, and
// missing map entries are logged and dropped, never returned as errors.
// Only operator-facing commands (REPL, Chord API calls) return these.
package errs

import "errors"

var (
	// ErrNotInRing is returned when a Chord command is issued while the
	// local node has not (yet, or no longer) joined the ring.
	ErrNotInRing = errors.New("node is not part of the ring")

	// ErrJoinRefused names the case where the contact node supplied to JOIN
	// was itself not part of the ring. The Chord engine reports a
	// JOIN_CHORD_FAIL reply as a Warn log line with this text; no call
	// returns this error.
	ErrJoinRefused = errors.New("join refused: contact node is not in the ring")

	// ErrPingTimeout names an unanswered ping. The ping audits of both
	// engines log each expired ping at Warn with its destination and
	// message and count it in PingTimeouts; there is no failure callback,
	// and no call returns this error.
	ErrPingTimeout = errors.New("ping timed out")

	// ErrDirectoryMiss is returned when a command references a node number
	// that has no entry in the address directory.
	ErrDirectoryMiss = errors.New("unknown node number")

	// ErrNoRoute is returned by RouteOutput/RouteInput when no forwarding
	// entry exists for the destination; callers should drop the packet.
	ErrNoRoute = errors.New("no route to destination")

	// ErrCanceled and ErrDeadlineExceeded wrap context cancellation for
	// operator-facing handlers, in place of grpc status codes.
	ErrCanceled        = errors.New("request was canceled")
	ErrDeadlineExceeded = errors.New("request deadline exceeded")
)
