package control_test

import (
	"errors"
	"testing"

	"github.com/doismellburning/speakersafetyd/internal/control"
	"github.com/doismellburning/speakersafetyd/internal/faults"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeHandle struct{ name string }

type fakeBackend struct {
	ints     map[string]int
	bools    map[string]bool
	locked   map[string]bool
	failOpen map[string]bool
	dbScale  float32 // dB per raw unit, for the fake TLV mapping
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		ints:     map[string]int{},
		bools:    map[string]bool{},
		locked:   map[string]bool{},
		failOpen: map[string]bool{},
		dbScale:  0.5,
	}
}

func (b *fakeBackend) Open(name string) (control.Handle, error) {
	if b.failOpen[name] {
		return nil, errors.New("no such control")
	}
	return fakeHandle{name}, nil
}

func (b *fakeBackend) Lock(h control.Handle) error {
	b.locked[h.(fakeHandle).name] = true
	return nil
}

func (b *fakeBackend) ReadInt(h control.Handle) (int, error) {
	return b.ints[h.(fakeHandle).name], nil
}

func (b *fakeBackend) WriteInt(h control.Handle, v int) error {
	b.ints[h.(fakeHandle).name] = v
	return nil
}

func (b *fakeBackend) ReadBool(h control.Handle) (bool, error) {
	return b.bools[h.(fakeHandle).name], nil
}

func (b *fakeBackend) WriteBool(h control.Handle, v bool) error {
	b.bools[h.(fakeHandle).name] = v
	return nil
}

func (b *fakeBackend) DBRange(h control.Handle) (int, int, error) {
	return -6000, 0, nil
}

func (b *fakeBackend) IntToDB(h control.Handle, v int) (float32, error) {
	return float32(v) * b.dbScale, nil
}

func (b *fakeBackend) DBToInt(h control.Handle, db float32) (int, error) {
	return int(db / b.dbScale), nil
}

func TestOpenFailureIsControlFault(t *testing.T) {
	b := newFakeBackend()
	b.failOpen["missing"] = true
	_, err := control.Open(b, "missing")
	require.Error(t, err)

	var f *faults.Fault
	require.ErrorAs(t, err, &f)
	assert.Equal(t, faults.ControlFault, f.Kind)
}

func TestLockIsIdempotent(t *testing.T) {
	b := newFakeBackend()
	e, err := control.Open(b, "Left Speaker Volume")
	require.NoError(t, err)
	require.NoError(t, e.Lock())
	require.NoError(t, e.Lock())
	assert.True(t, b.locked["Left Speaker Volume"])
}

func TestSetBoolCheckedWritesAndReadsBack(t *testing.T) {
	b := newFakeBackend()
	e, err := control.Open(b, "Left VSENSE Switch")
	require.NoError(t, err)
	require.NoError(t, e.SetBoolChecked(true))
	got, err := e.ReadBool()
	require.NoError(t, err)
	assert.True(t, got)
}

func TestDBRoundTrip(t *testing.T) {
	b := newFakeBackend()
	e, err := control.Open(b, "Left Speaker Volume")
	require.NoError(t, err)
	require.NoError(t, e.WriteDB(-3.0))
	db, err := e.ReadDB()
	require.NoError(t, err)
	assert.InDelta(t, -3.0, db, 0.01)
}
