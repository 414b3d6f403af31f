// Package faults defines the error taxonomy that classifies a failure by
// kind. Every Fault the supervisor loop receives ends the loop through the
// fatal-unwind path; the conditions it recovers from in place (a suspended
// capture stream, a scheduling gap) are not Faults.
package faults

import (
	"errors"
	"fmt"
)

// Kind classifies a Fault so callers can type-switch on it instead of
// matching error strings.
type Kind int

const (
	// ConfigFault covers missing/invalid configuration and hardware
	// mismatches against the startup constraints. Always raised before a
	// blackbox exists.
	ConfigFault Kind = iota
	// ControlFault covers any failure to open, lock, read, or write a
	// named control-element knob.
	ControlFault
	// CaptureFault covers capture PCM open/read failures not classified
	// as a suspend event.
	CaptureFault
	// ModelFault covers a temperature exceeding t_limit+t_headroom, or a
	// strongly negative average power reading.
	ModelFault
	// SignalFault is raised when a fatal OS signal was observed.
	SignalFault
	// DebugFault is raised only when the operator opted into the
	// --max-reduction debug aid and it tripped.
	DebugFault
)

func (k Kind) String() string {
	switch k {
	case ConfigFault:
		return "ConfigFault"
	case ControlFault:
		return "ControlFault"
	case CaptureFault:
		return "CaptureFault"
	case ModelFault:
		return "ModelFault"
	case SignalFault:
		return "SignalFault"
	case DebugFault:
		return "DebugFault"
	default:
		return "UnknownFault"
	}
}

// Fault is the error type carried through the supervisor's fatal-unwind
// path. Its Error() text carries the Kind prefix; the blackbox meta file's
// "message" field records Message(err), which omits it.
type Fault struct {
	Kind Kind
	Msg  string
	Err  error
}

func (f *Fault) Error() string {
	if f.Err != nil {
		return fmt.Sprintf("%s: %s: %v", f.Kind, f.Msg, f.Err)
	}
	return fmt.Sprintf("%s: %s", f.Kind, f.Msg)
}

func (f *Fault) Unwrap() error { return f.Err }

// New builds a Fault with no wrapped cause.
func New(kind Kind, msg string) *Fault {
	return &Fault{Kind: kind, Msg: msg}
}

// Wrap builds a Fault that wraps an underlying error.
func Wrap(kind Kind, msg string, err error) *Fault {
	return &Fault{Kind: kind, Msg: msg, Err: err}
}

// Message returns err's human-readable message without the Kind prefix
// when err is (or wraps) a Fault. This is the text the blackbox records
// verbatim in its meta file.
func Message(err error) string {
	var f *Fault
	if errors.As(err, &f) {
		if f.Err != nil {
			return fmt.Sprintf("%s: %v", f.Msg, f.Err)
		}
		return f.Msg
	}
	return err.Error()
}
