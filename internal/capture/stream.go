// Package capture is the transport seam that delivers interleaved
// VSENSE/ISENSE sample frames. The supervisor loop depends only on Stream;
// portaudio.go supplies the concrete realization.
package capture

import "errors"

// ErrSuspended is returned by Read when the underlying PCM path reports a
// suspend condition. The supervisor loop responds by tearing down and
// reopening the stream from scratch (resume is known to leave the V/I path
// broken on the hardware this targets).
var ErrSuspended = errors.New("capture: stream suspended")

// ErrInterrupted is returned by Read when the blocking read reports that it
// was interrupted by a signal rather than completing or suspending. The
// fatal-signal watcher is installed through os/signal and does not change
// how interrupted system calls are restarted, so a read does not
// necessarily return early when a signal arrives; the loop also checks the
// fatal flag before every read.
var ErrInterrupted = errors.New("capture: read interrupted")

// Stream is a single period-synchronized capture source: one Read call
// blocks until exactly one period of interleaved 16-bit samples has arrived.
type Stream interface {
	// Read blocks until len(buf) samples (period * channels, interleaved)
	// have been captured, or returns an error. buf is reused by the caller
	// across periods; Read must not retain it past return.
	Read(buf []int16) error

	// Close releases the underlying device. After Close, Read must not be
	// called again.
	Close() error
}

// Opener constructs a fresh Stream for the named capture device. The
// supervisor loop calls it once at startup and again on every suspend,
// since reopen-from-scratch is the only supported recovery path.
type Opener func(deviceName string, channels, period int) (Stream, error)
