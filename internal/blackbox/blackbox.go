// Package blackbox implements the ring-buffered forensic recorder: the
// most recent capture periods plus a parallel per-speaker state snapshot,
// flushed to a timestamped pair of files on fatal exit. The raw file is
// concatenated little-endian int16 frames in capture order; the meta file
// is JSON carrying the failure message and the state at the moment of
// failure.
package blackbox

import (
	"encoding/binary"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/lestrrat-go/strftime"
)

// MaxBlocks bounds the ring at roughly 30s of audio at 4096-sample periods
// / 48kHz.
const MaxBlocks = 330

// SpeakerSnapshot is a per-speaker state capture, frozen into a block at
// push time.
type SpeakerSnapshot struct {
	TCoil       float64 `json:"t_coil"`
	TMagnet     float64 `json:"t_magnet"`
	TCoilHyst   float32 `json:"t_coil_hyst"`
	TMagnetHyst float32 `json:"t_magnet_hyst"`
	MinGain     float32 `json:"min_gain"`
	Gain        float32 `json:"gain"`
}

type block struct {
	sampleRate int32
	data       []int16
	// state is grouped as it was captured: one slice per SpeakerGroup,
	// each holding that group's member snapshots in order.
	state [][]SpeakerSnapshot
}

// Recorder is the fixed-capacity ring of the most recent capture periods.
// A Recorder with an empty Dir is disabled: Push is a no-op and Preserve
// never writes.
//
// The ring storage lives in a fixed array of MaxBlocks slots whose sample
// and snapshot slices are reused across pushes, so at steady state Push
// performs no allocation on the supervisor's hot path.
type Recorder struct {
	Dir     string
	Machine string

	// Fields mirrored verbatim into the meta file.
	Channels    int
	TAmbient    float32
	TSafeMax    float32 // t_window, named t_safe_max in the meta file
	THysteresis float32

	blocks [MaxBlocks]block
	head   int
	count  int
}

// New builds a Recorder. dir == "" disables recording entirely; only
// --blackbox-path enables it.
func New(dir, machine string, channels int, tAmbient, tWindow, tHysteresis float32) *Recorder {
	return &Recorder{
		Dir:         dir,
		Machine:     machine,
		Channels:    channels,
		TAmbient:    tAmbient,
		TSafeMax:    tWindow,
		THysteresis: tHysteresis,
	}
}

// Enabled reports whether this recorder was configured with a directory.
func (r *Recorder) Enabled() bool { return r.Dir != "" }

// Push appends one period's raw frame and per-group state snapshot,
// evicting the oldest block once MaxBlocks is reached.
//
// data is copied into the slot's reused storage, never retained by
// reference, so the caller's capture buffer can be reused on the next
// period without aliasing a pushed block.
func (r *Recorder) Push(sampleRate int, data []int16, state [][]SpeakerSnapshot) {
	if !r.Enabled() {
		return
	}

	slot := &r.blocks[(r.head+r.count)%MaxBlocks]
	if r.count == MaxBlocks {
		r.head = (r.head + 1) % MaxBlocks
	} else {
		r.count++
	}

	slot.sampleRate = int32(sampleRate)
	slot.data = append(slot.data[:0], data...)

	if cap(slot.state) < len(state) {
		slot.state = make([][]SpeakerSnapshot, len(state))
	}
	slot.state = slot.state[:len(state)]
	for i, group := range state {
		slot.state[i] = append(slot.state[i][:0], group...)
	}
}

// Reset empties the ring, keeping slot storage for reuse. Called on
// sample-rate change and after large scheduling gaps, since sample
// continuity is broken either way.
func (r *Recorder) Reset() {
	r.head = 0
	r.count = 0
}

// Len reports the current ring length, always <= MaxBlocks.
func (r *Recorder) Len() int { return r.count }

// metaFile is the meta-file JSON shape.
type metaFile struct {
	Message     string            `json:"message"`
	Machine     string            `json:"machine"`
	SampleRate  int32             `json:"sample_rate"`
	Channels    int               `json:"channels"`
	TAmbient    float32           `json:"t_ambient"`
	TSafeMax    float32           `json:"t_safe_max"`
	THysteresis float32           `json:"t_hysteresis"`
	State       []SpeakerSnapshot `json:"state"`
}

// Preserve flushes the ring to a timestamped pair of files in r.Dir, named
// "<ISO-8601-local>.raw" / ".meta". An empty ring is a no-op. Any I/O
// error is returned but the caller (the fatal-unwind path) must not let it
// block process exit: it is logged and the fatal exit proceeds.
func (r *Recorder) Preserve(reason string) error {
	if !r.Enabled() || r.count == 0 {
		return nil
	}

	stamp, err := strftime.Format("%Y-%m-%dT%H:%M:%S%z", time.Now())
	if err != nil {
		return err
	}

	rawPath := filepath.Join(r.Dir, stamp+".raw")
	metaPath := filepath.Join(r.Dir, stamp+".meta")

	if err := r.writeRaw(rawPath); err != nil {
		return err
	}
	return r.writeMeta(metaPath, reason)
}

func (r *Recorder) writeRaw(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	for i := 0; i < r.count; i++ {
		blk := &r.blocks[(r.head+i)%MaxBlocks]
		if err := binary.Write(f, binary.LittleEndian, blk.data); err != nil {
			return err
		}
	}
	return nil
}

func (r *Recorder) writeMeta(path, reason string) error {
	// The meta file records state at the moment of failure: the newest
	// block in the ring, not the oldest.
	last := &r.blocks[(r.head+r.count-1)%MaxBlocks]

	var state []SpeakerSnapshot
	for _, group := range last.state {
		state = append(state, group...)
	}

	meta := metaFile{
		Message:     reason,
		Machine:     r.Machine,
		SampleRate:  last.sampleRate,
		Channels:    r.Channels,
		TAmbient:    r.TAmbient,
		TSafeMax:    r.TSafeMax,
		THysteresis: r.THysteresis,
		State:       state,
	}

	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0o644)
}
