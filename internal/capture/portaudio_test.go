package capture

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

// The PortAudio ALSA host API surfaces suspend and interrupted-syscall
// conditions as host-error strings rather than typed constants; Read maps
// them onto ErrSuspended/ErrInterrupted by substring. These pin the
// classification so a wording drift in the host library shows up as a test
// failure instead of a silently-fatal suspend.

func TestSuspendErrorClassification(t *testing.T) {
	assert.True(t, isSuspendError(errors.New("Stream is suspended")))
	assert.True(t, isSuspendError(errors.New("ALSA: suspend event")))
	assert.False(t, isSuspendError(errors.New("Input overflowed")))
}

func TestInterruptedErrorClassification(t *testing.T) {
	assert.True(t, isInterruptedError(errors.New("read interrupted by signal")))
	assert.True(t, isInterruptedError(errors.New("poll: EINTR")))
	assert.False(t, isInterruptedError(errors.New("Stream is suspended")))
}
