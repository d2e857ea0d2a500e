// Package core holds the small set of types shared across the Agent Session
// Core's packages: the error taxonomy every layer classifies against, and
// the Size value type, which has no natural home in a single package.
package core

import (
	"errors"
	"fmt"
)

// Kind classifies an error the way the control surfaces need to: as a status
// code (HTTP) or a line of ERR text (the attach broker).
type Kind int

const (
	// KindInternal is the zero value so a plain fmt.Errorf defaults to a
	// 500-class classification rather than silently looking like a 400.
	KindInternal Kind = iota
	KindBadRequest
	KindNotFound
	KindConflict
	KindProtocol
)

func (k Kind) String() string {
	switch k {
	case KindBadRequest:
		return "bad_request"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindProtocol:
		return "protocol_error"
	default:
		return "internal"
	}
}

// Error wraps an underlying cause with a Kind so callers can classify it
// with errors.As instead of string-matching messages.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

// BadRequest reports a precondition violated by the caller: missing fields,
// an existing worktree path, a path that is not a git repository.
func BadRequest(format string, args ...any) error {
	return &Error{Kind: KindBadRequest, Msg: fmt.Sprintf(format, args...)}
}

// NotFound reports a lookup miss for an agent or repo.
func NotFound(format string, args ...any) error {
	return &Error{Kind: KindNotFound, Msg: fmt.Sprintf(format, args...)}
}

// Conflict reports a duplicate resource (an agent name already in use).
func Conflict(format string, args ...any) error {
	return &Error{Kind: KindConflict, Msg: fmt.Sprintf(format, args...)}
}

// Protocol reports malformed ATTACH/RESIZE/INPUT framing on the attach socket.
func Protocol(format string, args ...any) error {
	return &Error{Kind: KindProtocol, Msg: fmt.Sprintf(format, args...)}
}

// Wrap annotates err with msg while preserving its Kind if it has one, or
// defaulting to KindInternal (IO/External in §7 terms) otherwise.
func Wrap(msg string, err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return &Error{Kind: e.Kind, Msg: msg, Err: err}
	}
	return &Error{Kind: KindInternal, Msg: msg, Err: err}
}

// KindOf classifies err, defaulting to KindInternal for plain errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Size is a PTY's dimensions in character cells, shared between ptyproc,
// session, and broker so none of them needs to import the others just for
// this pair of ints.
type Size struct {
	Cols uint16
	Rows uint16
}
