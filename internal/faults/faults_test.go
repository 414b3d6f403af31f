package faults_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/doismellburning/speakersafetyd/internal/faults"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorTextCarriesKindAndMessage(t *testing.T) {
	err := faults.New(faults.SignalFault, "SIGQUIT received")
	assert.Equal(t, "SignalFault: SIGQUIT received", err.Error())
}

func TestMessageStripsKindPrefix(t *testing.T) {
	err := faults.New(faults.SignalFault, "SIGQUIT received")
	assert.Equal(t, "SIGQUIT received", faults.Message(err))

	wrapped := faults.Wrap(faults.CaptureFault, "capture read", errors.New("broken pipe"))
	assert.Equal(t, "capture read: broken pipe", faults.Message(wrapped))

	plain := errors.New("not a fault")
	assert.Equal(t, "not a fault", faults.Message(plain))
}

func TestUnwrapExposesCause(t *testing.T) {
	cause := errors.New("EIO")
	err := fmt.Errorf("outer: %w", faults.Wrap(faults.ControlFault, "write Speaker Volume", cause))

	var f *faults.Fault
	require.ErrorAs(t, err, &f)
	assert.Equal(t, faults.ControlFault, f.Kind)
	assert.ErrorIs(t, err, cause)
}
