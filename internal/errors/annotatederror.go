// Package errors extends the standard library errors with slog annotations and source locations.
//
// Wrap an error with [Wrap] to attach a message and [slog.Attr] annotations. [SlogError] flattens the
// annotations of the whole error chain into a single slog group so that a log line carries the context
// collected on the way up the call stack.
package errors

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"runtime"
	"strconv"
)

// Re-exported from the standard library so that callers only need to import one errors package.
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
	Join   = errors.Join
)

// ErrUnsupported is re-exported from the standard library.
var ErrUnsupported = errors.ErrUnsupported

type sentinelError struct {
	msg string
}

func (e *sentinelError) Error() string {
	return e.msg
}

// NewSentinel creates an error meant to be compared with [Is]. It carries no source location.
func NewSentinel(msg string) error {
	return &sentinelError{msg: msg}
}

type annotatedError struct {
	msg   string
	cause error
	attrs []slog.Attr
	pc    uintptr
}

func (e *annotatedError) Error() string {
	if e.cause == nil {
		return e.msg
	}
	return e.msg + ": " + e.cause.Error()
}

func (e *annotatedError) Unwrap() error {
	return e.cause
}

func callerPC(skip int) uintptr {
	var pcs [1]uintptr
	// +2 skips runtime.Callers and callerPC.
	if runtime.Callers(skip+2, pcs[:]) == 0 {
		return 0
	}
	return pcs[0]
}

// New creates an error annotated with attrs and the caller's source location.
func New(msg string, attrs ...slog.Attr) error {
	return &annotatedError{msg: msg, cause: nil, attrs: attrs, pc: callerPC(1)}
}

// Wrap wraps err with msg and attrs. The source location of the caller is recorded.
func Wrap(err error, msg string, attrs ...slog.Attr) error {
	return &annotatedError{msg: msg, cause: err, attrs: attrs, pc: callerPC(1)}
}

// DecoratePanic converts a recovered panic value into an error pointing at the panicking line.
// Returns nil when excp is nil.
func DecoratePanic(excp any) error {
	if excp == nil {
		return nil
	}
	var (
		pcs    [64]uintptr
		n      = runtime.Callers(1, pcs[:])
		frames = runtime.CallersFrames(pcs[:n])
		pc     uintptr
		afterP bool
	)
	for {
		frame, more := frames.Next()
		if afterP {
			pc = frame.PC
			break
		}
		afterP = frame.Function == "runtime.gopanic"
		if !more {
			break
		}
	}
	if pc == 0 {
		pc = callerPC(1)
	} else {
		// CallersFrames expects return addresses.
		pc++
	}
	if err, ok := excp.(error); ok {
		return &annotatedError{msg: "panic", cause: err, attrs: nil, pc: pc}
	}
	return &annotatedError{msg: fmt.Sprintf("panic: %v", excp), cause: nil, attrs: nil, pc: pc}
}

// SlogError renders err as an slog group holding the message, the annotations collected from the error
// chain and the source location of the innermost annotated error.
func SlogError(err error) slog.Attr {
	if err == nil {
		return slog.Any("error", nil)
	}
	var (
		annotations []any
		pc          uintptr
	)
	walk(err, func(ae *annotatedError) {
		for _, a := range ae.attrs {
			annotations = append(annotations, a)
		}
		if ae.pc != 0 {
			pc = ae.pc
		}
	})

	args := []any{slog.String("message", err.Error())}
	if len(annotations) > 0 {
		args = append(args, slog.Group("annotations", annotations...))
	}
	if pc != 0 {
		frame, _ := runtime.CallersFrames([]uintptr{pc}).Next()
		if frame.File != "" {
			args = append(args, slog.String("source", filepath.Base(frame.File)+":"+strconv.Itoa(frame.Line)))
		}
	}
	return slog.Group("error", args...)
}

// walk visits the annotated errors of the chain from the outermost to the innermost.
func walk(err error, visit func(*annotatedError)) {
	for err != nil {
		if ae, ok := err.(*annotatedError); ok { //nolint:errorlint // walking the chain manually.
			visit(ae)
		}
		switch x := err.(type) { //nolint:errorlint // walking the chain manually.
		case interface{ Unwrap() []error }:
			for _, e := range x.Unwrap() {
				walk(e, visit)
			}
			return
		case interface{ Unwrap() error }:
			err = x.Unwrap()
		default:
			return
		}
	}
}
