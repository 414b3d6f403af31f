package blackbox_test

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/doismellburning/speakersafetyd/internal/blackbox"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDisabledRecorderIsNoop(t *testing.T) {
	r := blackbox.New("", "j314", 2, 25, 20, 5)
	r.Push(48000, []int16{1, 2, 3, 4}, nil)
	assert.Equal(t, 0, r.Len())
	require.NoError(t, r.Preserve("should be a no-op"))
}

func TestRingEvictsOldestAtCapacity(t *testing.T) {
	dir := t.TempDir()
	r := blackbox.New(dir, "j314", 2, 25, 20, 5)

	for i := 0; i < blackbox.MaxBlocks+10; i++ {
		r.Push(48000, []int16{int16(i), int16(i)}, nil)
	}

	assert.Equal(t, blackbox.MaxBlocks, r.Len())
}

func TestResetEmptiesRing(t *testing.T) {
	dir := t.TempDir()
	r := blackbox.New(dir, "j314", 2, 25, 20, 5)
	r.Push(48000, []int16{1, 2}, nil)
	require.Equal(t, 1, r.Len())
	r.Reset()
	assert.Equal(t, 0, r.Len())
}

func TestPreserveWritesRawAndMetaFiles(t *testing.T) {
	dir := t.TempDir()
	r := blackbox.New(dir, "j314", 2, 25, 20, 5)

	snaps := [][]blackbox.SpeakerSnapshot{
		{{TCoil: 81.5, TMagnet: 40.2, TCoilHyst: 82, TMagnetHyst: 41, MinGain: -20, Gain: -3}},
	}
	r.Push(48000, []int16{100, -100, 200, -200}, snaps)

	require.NoError(t, r.Preserve("SIGQUIT received"))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	var rawPath, metaPath string
	for _, e := range entries {
		if filepath.Ext(e.Name()) == ".raw" {
			rawPath = filepath.Join(dir, e.Name())
		} else if filepath.Ext(e.Name()) == ".meta" {
			metaPath = filepath.Join(dir, e.Name())
		}
	}
	require.NotEmpty(t, rawPath)
	require.NotEmpty(t, metaPath)

	rawData, err := os.ReadFile(rawPath)
	require.NoError(t, err)
	assert.Equal(t, 8, len(rawData)) // 4 int16 samples

	metaData, err := os.ReadFile(metaPath)
	require.NoError(t, err)

	var parsed map[string]any
	require.NoError(t, json.Unmarshal(metaData, &parsed))
	assert.Equal(t, "SIGQUIT received", parsed["message"])
	assert.Equal(t, "j314", parsed["machine"])
	assert.Equal(t, float64(48000), parsed["sample_rate"])

	state, ok := parsed["state"].([]any)
	require.True(t, ok)
	require.Len(t, state, 1)
}

func TestPreserveOnEmptyRingIsNoop(t *testing.T) {
	dir := t.TempDir()
	r := blackbox.New(dir, "j314", 2, 25, 20, 5)
	require.NoError(t, r.Preserve("nothing happened"))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}
