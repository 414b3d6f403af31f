package thermal_test

import (
	"github.com/doismellburning/speakersafetyd/internal/control"
	"github.com/doismellburning/speakersafetyd/internal/mixer"
)

type fakeHandle struct{ name string }

type fakeBackend struct {
	ints  map[string]int
	bools map[string]bool
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{ints: map[string]int{}, bools: map[string]bool{}}
}

func (b *fakeBackend) Open(name string) (control.Handle, error) { return fakeHandle{name}, nil }
func (b *fakeBackend) Lock(h control.Handle) error               { return nil }
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
func (b *fakeBackend) DBRange(h control.Handle) (int, int, error) { return -9600, 3000, nil }
func (b *fakeBackend) IntToDB(h control.Handle, v int) (float32, error) {
	return float32(v) / 100.0, nil
}
func (b *fakeBackend) DBToInt(h control.Handle, db float32) (int, error) {
	return int(db * 100.0), nil
}

// testMixer builds a Mixer over a fake, in-memory control backend, pinned
// at 30 dB amp gain (the fake range's maximum of 3000 at 0.01 dB per
// unit), for use by thermal model tests that don't care about
// real hardware wiring.
func testMixer() *mixer.Mixer {
	b := newFakeBackend()
	names := mixer.NamesFor("Test", "Speaker Volume", "Amp Gain", "VSENSE Switch", "ISENSE Switch")
	m, err := mixer.New(b, names)
	if err != nil {
		panic(err)
	}
	return m
}
