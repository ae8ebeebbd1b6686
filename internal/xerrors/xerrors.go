// Package xerrors adds call-site and stack capture to errors so the logger
// can render error_links and stacks, and lets domain code attach a message
// that is safe to show API clients.
package xerrors

import (
	"errors"
	"fmt"
	"runtime"
)

type withStack struct {
	err error
	pcs []uintptr
}

func (w *withStack) Error() string       { return w.err.Error() }
func (w *withStack) Unwrap() error       { return w.err }
func (w *withStack) StackPCs() []uintptr { return w.pcs }
func (w *withStack) IsXerrorsWrapper()   {}

func captureStack(skip int) []uintptr {
	const maxDepth = 64
	pcs := make([]uintptr, maxDepth)
	// 2 skips runtime.Callers and captureStack
	n := runtime.Callers(2+skip, pcs)
	return pcs[:n]
}

func withStackSkip(err error, skip int) error {
	if err == nil {
		return nil
	}
	return &withStack{err: err, pcs: captureStack(skip)}
}

func WithStack(err error) error { return withStackSkip(err, 2) }

// EnsureTrace attaches a stack unless one is already present in the chain.
func EnsureTrace(err error) error {
	if err == nil {
		return nil
	}
	type hasStack interface{ StackPCs() []uintptr }
	var hs hasStack
	if errors.As(err, &hs) && hs != nil && len(hs.StackPCs()) > 0 {
		return err
	}
	return withStackSkip(err, 2)
}

type wrap struct {
	err error
	msg string
	pc  uintptr
}

func (w *wrap) Error() string     { return w.msg + ": " + w.err.Error() }
func (w *wrap) Unwrap() error     { return w.err }
func (w *wrap) PC() uintptr       { return w.pc }
func (w *wrap) IsXerrorsWrapper() {}

func callerPC(skip int) uintptr {
	var pcs [1]uintptr
	// 2 skips runtime.Callers and callerPC
	if n := runtime.Callers(2+skip, pcs[:]); n == 0 {
		return 0
	}
	return pcs[0]
}

func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	return &wrap{err: err, msg: msg, pc: callerPC(1)}
}

func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return &wrap{err: err, msg: fmt.Sprintf(format, args...), pc: callerPC(1)}
}

func New(msg string) error             { return withStackSkip(errors.New(msg), 2) }
func Newf(f string, args ...any) error { return withStackSkip(fmt.Errorf(f, args...), 2) }

// public carries an HTTP status and a client-facing message alongside the
// underlying error, which stays internal.
type public struct {
	err    error
	status int
	msg    string
	pc     uintptr
}

func (p *public) Error() string {
	if p.err == nil {
		return p.msg
	}
	return p.err.Error()
}
func (p *public) Unwrap() error     { return p.err }
func (p *public) PC() uintptr       { return p.pc }
func (p *public) IsXerrorsWrapper() {}

// Public marks err with a status and a message that may be returned to clients.
// A nil err produces an error whose text is msg.
func Public(err error, status int, msg string) error {
	return &public{err: err, status: status, msg: msg, pc: callerPC(1)}
}

// PublicInfo returns the outermost status and client message in err's chain.
func PublicInfo(err error) (status int, msg string, ok bool) {
	var p *public
	if errors.As(err, &p) {
		return p.status, p.msg, true
	}
	return 0, "", false
}
