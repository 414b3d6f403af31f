package mixer_test

import (
	"testing"

	"github.com/doismellburning/speakersafetyd/internal/control"
	"github.com/doismellburning/speakersafetyd/internal/mixer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type handle struct{ name string }

type fakeBackend struct {
	ints   map[string]int
	bools  map[string]bool
	locked map[string]bool
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{ints: map[string]int{}, bools: map[string]bool{}, locked: map[string]bool{}}
}

func (b *fakeBackend) Open(name string) (control.Handle, error) { return handle{name}, nil }
func (b *fakeBackend) Lock(h control.Handle) error              { b.locked[h.(handle).name] = true; return nil }
func (b *fakeBackend) ReadInt(h control.Handle) (int, error)    { return b.ints[h.(handle).name], nil }
func (b *fakeBackend) WriteInt(h control.Handle, v int) error {
	b.ints[h.(handle).name] = v
	return nil
}
func (b *fakeBackend) ReadBool(h control.Handle) (bool, error) { return b.bools[h.(handle).name], nil }
func (b *fakeBackend) WriteBool(h control.Handle, v bool) error {
	b.bools[h.(handle).name] = v
	return nil
}
func (b *fakeBackend) DBRange(h control.Handle) (int, int, error) { return -6000, 2000, nil }
func (b *fakeBackend) IntToDB(h control.Handle, v int) (float32, error) {
	return float32(v) / 100.0, nil
}
func (b *fakeBackend) DBToInt(h control.Handle, db float32) (int, error) {
	return int(db * 100.0), nil
}

func TestNewPinsAmpGainAndEnablesSenses(t *testing.T) {
	b := newFakeBackend()
	names := mixer.NamesFor("Left", "Speaker Volume", "Amp Gain", "VSENSE Switch", "ISENSE Switch")
	m, err := mixer.New(b, names)
	require.NoError(t, err)

	assert.True(t, b.bools["Left VSENSE Switch"])
	assert.True(t, b.bools["Left ISENSE Switch"])
	assert.Equal(t, 2000, b.ints["Left Amp Gain"])
	assert.InDelta(t, 20.0, m.AmpGainDB, 0.01)

	for _, name := range []string{"Left Speaker Volume", "Left Amp Gain", "Left VSENSE Switch", "Left ISENSE Switch"} {
		assert.True(t, b.locked[name], "expected %s to be locked", name)
	}
}

func TestNamesForMonoSpeakerUsesBareSuffix(t *testing.T) {
	names := mixer.NamesFor("Mono", "Speaker Volume", "Amp Gain", "VSENSE Switch", "ISENSE Switch")
	assert.Equal(t, "Speaker Volume", names.Volume)
	assert.Equal(t, "Amp Gain", names.AmpGain)
}

func TestWriteGainDB(t *testing.T) {
	b := newFakeBackend()
	names := mixer.NamesFor("Left", "Speaker Volume", "Amp Gain", "VSENSE Switch", "ISENSE Switch")
	m, err := mixer.New(b, names)
	require.NoError(t, err)

	require.NoError(t, m.WriteGainDB(-6.0))
	db, err := m.Volume.ReadDB()
	require.NoError(t, err)
	assert.InDelta(t, -6.0, db, 0.01)
}
