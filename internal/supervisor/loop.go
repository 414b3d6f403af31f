// Package supervisor drives the realtime per-period loop: capture read,
// sample-rate and scheduling-gap checks, the thermal model, gain commit,
// and the unlock-sentinel rewrite, all on one goroutine.
//
// The fatal path is an ordinary returned error: Run preserves the blackbox
// and returns the fault to its caller, which exits nonzero without
// rewriting the unlock sentinel. The downstream watchdog then re-clamps
// speaker output within its own timeout.
package supervisor

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sys/unix"

	"github.com/doismellburning/speakersafetyd/internal/blackbox"
	"github.com/doismellburning/speakersafetyd/internal/capture"
	"github.com/doismellburning/speakersafetyd/internal/control"
	"github.com/doismellburning/speakersafetyd/internal/faults"
	"github.com/doismellburning/speakersafetyd/internal/thermal"
)

// UnlockMagic is the fixed value the "Speaker Volume Unlock" knob must be
// rewritten with every period to keep the downstream cap lifted.
const UnlockMagic = 0xDEC1BE15

// schedulingGapMultiple: wall time more than this many periods since the
// last update is treated as a stall rather than ordinary scheduling jitter.
const schedulingGapMultiple = 4

// Loop is the realtime supervisor. It owns the capture stream, every
// control element it touches directly, and the full set of speaker groups;
// there is exactly one of these per process and it never shares mutable
// state with another goroutine except the fatal flag.
type Loop struct {
	Unlock     *control.Element
	SampleRate *control.Element

	Stream     capture.Stream
	Open       capture.Opener
	DeviceName string
	Channels   int
	Period     int

	Groups []*thermal.Group

	Blackbox *blackbox.Recorder

	// MaxReductionDB arms the --max-reduction development aid when
	// HasMaxReduction is set. It is a positive reduction magnitude in dB:
	// a committed gain below -MaxReductionDB trips the fault once the
	// group has been nominal at least once.
	MaxReductionDB  float32
	HasMaxReduction bool

	Logger *log.Logger

	fatal    atomic.Bool
	fatalSig atomic.Value // string, e.g. "SIGQUIT"

	buf            []int16
	stateScratch   [][]blackbox.SpeakerSnapshot
	lastUpdate     time.Time
	lastSampleRate int
}

// New builds a Loop. The caller has already opened and locked every control
// element and constructed the speaker groups; New only allocates the
// fixed-size scratch buffers the hot path reuses every period.
func New(unlock, sampleRate *control.Element, open capture.Opener, deviceName string, channels, period int, groups []*thermal.Group, bb *blackbox.Recorder, logger *log.Logger) *Loop {
	scratch := make([][]blackbox.SpeakerSnapshot, len(groups))
	for i, g := range groups {
		scratch[i] = make([]blackbox.SpeakerSnapshot, len(g.Speakers))
	}

	return &Loop{
		Unlock:       unlock,
		SampleRate:   sampleRate,
		Open:         open,
		DeviceName:   deviceName,
		Channels:     channels,
		Period:       period,
		Groups:       groups,
		Blackbox:     bb,
		Logger:       logger,
		buf:          make([]int16, period*channels),
		stateScratch: scratch,
	}
}

// WithMaxReduction arms the --max-reduction debug aid.
func (l *Loop) WithMaxReduction(db float32) *Loop {
	l.MaxReductionDB = db
	l.HasMaxReduction = true
	return l
}

// WatchSignals installs the fatal-signal watcher. The goroutine it starts
// only ever records the signal name and sets the flag: no logging, no
// other work. The name is stored before the flag so the loop's load of
// the flag never observes the flag without the name.
func (l *Loop) WatchSignals() {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGQUIT, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		for sig := range ch {
			if s, ok := sig.(syscall.Signal); ok {
				l.fatalSig.Store(unix.SignalName(s))
			}
			l.fatal.Store(true)
		}
	}()
}

// signalFault builds the SignalFault whose message names the signal that
// arrived; its text ends up verbatim in the blackbox meta file.
func (l *Loop) signalFault() error {
	name, _ := l.fatalSig.Load().(string)
	if name == "" {
		name = "fatal signal"
	}
	return faults.New(faults.SignalFault, name+" received")
}

// Step runs exactly one period of the loop, exported for test harnesses
// that need to drive and observe individual iterations.
func (l *Loop) Step() error {
	return l.step()
}

// OpenStream opens the initial capture stream. Must be called once before
// Run.
func (l *Loop) OpenStream() error {
	s, err := l.Open(l.DeviceName, l.Channels, l.Period)
	if err != nil {
		return err
	}
	l.Stream = s
	l.lastUpdate = time.Now()
	return nil
}

// Run drives the loop until a fatal fault occurs. On return, the blackbox
// (if enabled) has already been preserved and the unlock sentinel has not
// been rewritten for this, the final, iteration: the caller should exit
// nonzero immediately.
func (l *Loop) Run() error {
	l.lastUpdate = time.Now()

	for {
		if err := l.step(); err != nil {
			if l.Blackbox != nil {
				if presErr := l.Blackbox.Preserve(faults.Message(err)); presErr != nil {
					l.Logger.Warn("blackbox preserve failed", "err", presErr)
				}
			}
			return err
		}
	}
}

func (l *Loop) step() error {
	if l.fatal.Load() {
		return l.signalFault()
	}

	if err := l.Stream.Read(l.buf); err != nil {
		if l.fatal.Load() {
			return l.signalFault()
		}
		return l.handleCaptureError(err)
	}

	sampleRate, err := l.SampleRate.ReadInt()
	if err != nil {
		return err
	}

	if sampleRate != l.lastSampleRate {
		l.Logger.Info("sample rate changed", "from", l.lastSampleRate, "to", sampleRate)
		if l.Blackbox != nil {
			l.Blackbox.Reset()
		}
		l.lastSampleRate = sampleRate
	}
	if sampleRate == 0 {
		return faults.New(faults.CaptureFault, "sample rate reports zero: no active stream")
	}

	now := time.Now()
	expected := time.Duration(l.Period) * time.Second / time.Duration(sampleRate)
	elapsed := now.Sub(l.lastUpdate)
	l.lastUpdate = now

	if elapsed > schedulingGapMultiple*expected {
		gapSeconds := (elapsed - expected).Seconds()
		l.Logger.Warn("scheduling gap detected", "seconds", gapSeconds)
		for _, g := range l.Groups {
			g.SkipAll(gapSeconds)
		}
		if l.Blackbox != nil {
			l.Blackbox.Reset()
		}
		return l.rearmUnlock()
	}

	if l.Blackbox != nil {
		l.Blackbox.Push(sampleRate, l.buf, l.snapshotState())
	}

	for _, g := range l.Groups {
		gain, err := g.ComputeGain(l.buf, sampleRate)
		if err != nil {
			return err
		}

		if gain != g.Gain {
			l.Logger.Info("group gain changed", "group", g.Index, "from", g.Gain, "to", gain)
			if err := g.Commit(gain); err != nil {
				return err
			}
		}

		if l.HasMaxReduction && g.NominalEver && gain < -l.MaxReductionDB {
			return faults.New(faults.DebugFault,
				fmt.Sprintf("group %d reduction %.2fdB exceeded --max-reduction %.2fdB", g.Index, -gain, l.MaxReductionDB))
		}
	}

	return l.rearmUnlock()
}

// handleCaptureError classifies a capture.Stream.Read failure: a suspend
// condition reopens the PCM from scratch and is otherwise recoverable in
// place (resume after suspend leaves the V/I path broken on the target
// hardware, so reopen is the only recovery); an interrupted read means a
// fatal signal arrived mid-call; anything else is a fatal CaptureFault.
func (l *Loop) handleCaptureError(err error) error {
	switch {
	case errors.Is(err, capture.ErrSuspended):
		l.Logger.Warn("capture stream suspended, reopening")
		_ = l.Stream.Close()
		s, openErr := l.Open(l.DeviceName, l.Channels, l.Period)
		if openErr != nil {
			return faults.Wrap(faults.CaptureFault, "reopen capture stream after suspend", openErr)
		}
		l.Stream = s
		return nil
	case errors.Is(err, capture.ErrInterrupted):
		return l.signalFault()
	default:
		return faults.Wrap(faults.CaptureFault, "capture read", err)
	}
}

func (l *Loop) rearmUnlock() error {
	return l.Unlock.WriteInt(UnlockMagic)
}

// snapshotState fills and returns the preallocated per-group snapshot
// scratch buffer. blackbox.Push copies every snapshot it's given before
// returning, so reusing this buffer across periods never aliases a
// previously pushed block.
func (l *Loop) snapshotState() [][]blackbox.SpeakerSnapshot {
	for i, g := range l.Groups {
		for j, s := range g.Speakers {
			l.stateScratch[i][j] = blackbox.SpeakerSnapshot{
				TCoil:       s.State.TCoil,
				TMagnet:     s.State.TMagnet,
				TCoilHyst:   s.State.TCoilHyst,
				TMagnetHyst: s.State.TMagnetHyst,
				MinGain:     s.State.MinGain,
				Gain:        s.State.Gain,
			}
		}
	}
	return l.stateScratch
}
