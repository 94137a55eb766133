// Package protocol exposes the commit-pacing entry points of the wire
// protocol: explicit commit transactions, FIFO barriers and tearing
// hints. Each connected client gets a Client that owns every protocol
// object it creates and maps misuse onto the protocol error taxonomy,
// where a violation is fatal to the offending client and to nobody
// else.
package protocol

import (
	"errors"
	"fmt"
)

// Code identifies a class of protocol error on the wire.
type Code uint32

const (
	// CodeAlreadyExists signals a second exclusive object for a target
	// that already carries one.
	CodeAlreadyExists Code = 1

	// CodeTargetDestroyed signals a request against an object that is
	// already gone. Clients race against destruction legitimately, so
	// this code is not fatal.
	CodeTargetDestroyed Code = 2

	// CodeInvalidArgument signals a request argument outside the
	// protocol's domain.
	CodeInvalidArgument Code = 3
)

func (c Code) String() string {
	switch c {
	case CodeAlreadyExists:
		return "already_exists"
	case CodeTargetDestroyed:
		return "target_destroyed"
	case CodeInvalidArgument:
		return "invalid_argument"
	default:
		return fmt.Sprintf("code(%d)", uint32(c))
	}
}

// Error is a protocol error attributable to one client request.
type Error struct {
	Code    Code
	Message string
}

func (e *Error) Error() string {
	return "protocol: " + e.Message + " (" + e.Code.String() + ")"
}

// Fatal reports whether the error kills the client connection. Racing
// a request against the destruction of its target is the one class a
// client cannot avoid, so it is survivable; everything else is a
// violation.
func (e *Error) Fatal() bool {
	return e.Code != CodeTargetDestroyed
}

// ErrClientDead is returned for any request on a client whose
// connection was already killed or closed.
var ErrClientDead = errors.New("protocol: client connection is dead")
