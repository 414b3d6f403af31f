// Package thermal implements the two-pole voice-coil/magnet thermal model:
// per-period power estimation from VSENSE/ISENSE samples, the temperature
// update, peak-hold hysteresis, and the resulting gain-reduction curve.
//
// The coil heats fast and dissipates into the magnet; the magnet heats
// slowly toward ambient. Both masses are modeled as first-order lags
// driven by the instantaneous electrical power in the voice coil.
package thermal

import (
	"fmt"
	"math"

	"github.com/doismellburning/speakersafetyd/internal/faults"
	"github.com/doismellburning/speakersafetyd/internal/mixer"
)

// State is the mutable per-speaker thermal state.
type State struct {
	TCoil        float64
	TMagnet      float64
	TCoilHyst    float32
	TMagnetHyst  float32
	MinGain      float32
	Gain         float32
}

// Config is the immutable per-speaker calibration, as parsed from a
// [Speaker/<Name>] config section.
type Config struct {
	Name       string
	Group      int
	TauCoil    float32 // s
	TauMagnet  float32 // s
	TrCoil     float32 // °C/W
	TrMagnet   float32 // °C/W
	TLimit     float32 // °C
	THeadroom  float32 // °C
	ZNominal   float32 // Ω
	ISScale    float32
	VSScale    float32
	ISChan     int
	VSChan     int
}

// Speaker is the immutable configuration plus owned mutable state for one
// physical driver.
type Speaker struct {
	Config
	Mixer *mixer.Mixer
	State State

	channels    int
	tAmbient    float32
	tWindow     float32
	tHysteresis float32
}

// New validates a Speaker's configuration, computes MinGain, and seeds the
// initial thermal state for the given boot mode.
func New(cfg Config, m *mixer.Mixer, channels int, tAmbient, tWindow, tHysteresis float32, coldBoot bool) (*Speaker, error) {
	if cfg.VSChan >= channels || cfg.ISChan >= channels || cfg.VSChan < 0 || cfg.ISChan < 0 {
		return nil, faults.New(faults.ConfigFault,
			fmt.Sprintf("speaker %s: vs_chan/is_chan must be < channels (%d)", cfg.Name, channels))
	}
	if cfg.TLimit-tWindow <= tAmbient {
		return nil, faults.New(faults.ConfigFault,
			fmt.Sprintf("speaker %s: t_limit - t_window must exceed t_ambient", cfg.Name))
	}

	s := &Speaker{
		Config:      cfg,
		Mixer:       m,
		channels:    channels,
		tAmbient:    tAmbient,
		tWindow:     tWindow,
		tHysteresis: tHysteresis,
	}

	s.State.MinGain = computeMinGain(cfg.TLimit, tAmbient, cfg.TrCoil, cfg.TrMagnet, m.AmpGainDB, cfg.ZNominal)
	s.seedState(coldBoot)

	return s, nil
}

// computeMinGain derives the attenuation floor: the steady-state power at
// which the coil (sitting tr_coil/W above the magnet, itself tr_magnet/W
// above ambient) equilibrates to the hard limit, against the worst-case
// peak power the amp can currently deliver into the nominal impedance.
func computeMinGain(tLimit, tAmbient, trCoil, trMagnet, ampGainDB, zNominal float32) float32 {
	maxPwr := float64(tLimit-tAmbient) / float64(trCoil+trMagnet)
	peakPwr := 2 * math.Pow(10, float64(ampGainDB)/10) / float64(zNominal)
	mg := 10 * math.Log10(maxPwr/peakPwr)
	if mg > 0 {
		mg = 0
	}
	return float32(mg)
}

// seedState picks the initial temperatures. A cold boot assumes the coil
// is warm but just below the limiting band; a warm boot assumes the worst
// case, so the limiter stays aggressive until real data contradicts it.
// The magnet is seeded on the steady-state line through the coil
// temperature.
func (s *Speaker) seedState(coldBoot bool) {
	if coldBoot {
		s.State.TCoil = float64(s.TLimit-s.tWindow) - 1
	} else {
		s.State.TCoil = float64(s.TLimit)
	}
	s.State.TMagnet = float64(s.tAmbient) + (s.State.TCoil-float64(s.tAmbient))*
		float64(s.TrMagnet)/float64(s.TrMagnet+s.TrCoil)
	s.State.TCoilHyst = float32(s.State.TCoil)
	s.State.TMagnetHyst = float32(s.State.TMagnet)
	// Gain is seeded by the group, not the speaker: cold boot commits 0 dB
	// immediately, warm boot uses the -999 sentinel to force a first
	// write. Speaker.State.Gain starts at 0 here; Group owns the sentinel
	// commit value.
}

// RunModel advances the thermal state by one capture period and returns
// the speaker's commanded gain reduction in dB.
//
// frame is the full interleaved capture buffer (all speakers' channels);
// sampleRate is the current playback rate in Hz, as read from the
// "Speaker Sample Rate" control element.
func (s *Speaker) RunModel(frame []int16, sampleRate int) (float32, error) {
	if sampleRate <= 0 {
		return 0, faults.New(faults.ModelFault, s.Name+": zero sample rate")
	}
	if s.channels <= 0 || len(frame)%s.channels != 0 {
		return 0, faults.New(faults.ModelFault, s.Name+": malformed capture frame")
	}

	n := len(frame) / s.channels
	if n == 0 {
		return s.State.Gain, nil
	}

	dt := 1.0 / float64(sampleRate)
	alphaC := dt / (float64(s.TauCoil) + dt)
	alphaM := dt / (float64(s.TauMagnet) + dt)

	tCoil := s.State.TCoil
	tMagnet := s.State.TMagnet
	var pwrSum float64

	for k := 0; k < n; k++ {
		base := k * s.channels
		v := float64(frame[base+s.VSChan]) / 32768 * float64(s.VSScale)
		i := float64(frame[base+s.ISChan]) / 32768 * float64(s.ISScale)
		p := v * i

		tCoilTarget := tMagnet + p*float64(s.TrCoil)
		tMagnetTarget := float64(s.tAmbient) + p*float64(s.TrMagnet)

		tCoil = alphaC*tCoilTarget + (1-alphaC)*tCoil
		tMagnet = alphaM*tMagnetTarget + (1-alphaM)*tMagnet

		limit := float64(s.TLimit + s.THeadroom)
		if tCoil > limit || tMagnet > limit {
			return 0, faults.New(faults.ModelFault,
				fmt.Sprintf("%s: temperature exceeded %.2f°C (coil=%.2f magnet=%.2f)", s.Name, limit, tCoil, tMagnet))
		}

		pwrSum += p
	}

	s.State.TCoil = tCoil
	s.State.TMagnet = tMagnet

	pwrAvg := pwrSum / float64(n)
	if pwrAvg < -0.01 {
		return 0, faults.New(faults.ModelFault,
			fmt.Sprintf("%s: average power %.4fW indicates bad sense data", s.Name, pwrAvg))
	}

	s.applyHysteresis()

	temp := maxFloat32(s.State.TCoilHyst, s.State.TMagnetHyst)
	reduction := float32(0)
	if v := (temp - (s.TLimit - s.tWindow)) / s.tWindow; v > 0 {
		reduction = v
	}
	gain := s.State.MinGain * reduction
	if gain > -0.01 {
		gain = 0
	}
	if gain < s.State.MinGain {
		gain = s.State.MinGain
	}

	return gain, nil
}

// applyHysteresis implements the peak-hold-with-bleed rule: the hyst value
// is pulled up instantly to the current temperature and pulled down to at
// most t+t_hysteresis.
func (s *Speaker) applyHysteresis() {
	s.State.TCoilHyst = clampHyst(s.State.TCoilHyst, float32(s.State.TCoil), s.tHysteresis)
	s.State.TMagnetHyst = clampHyst(s.State.TMagnetHyst, float32(s.State.TMagnet), s.tHysteresis)
}

func clampHyst(hyst, t, margin float32) float32 {
	low := t
	high := t + margin
	switch {
	case hyst < low:
		return low
	case hyst > high:
		return high
	default:
		return hyst
	}
}

// SkipModel analytically advances the two-pole system by timeSeconds
// assuming zero input power, using the closed-form solution of the coupled
// cooling equations. It is invoked when the supervisor notices it missed
// several periods of wall time (host suspend, heavy preemption).
func (s *Speaker) SkipModel(timeSeconds float64) {
	tAmbient := float64(s.tAmbient)
	tCoilOffset := s.State.TCoil - tAmbient
	tMagnetOffset := s.State.TMagnet - tAmbient

	eta := 1 / (1 - float64(s.TauCoil)/float64(s.TauMagnet))
	a := math.Exp(-timeSeconds/float64(s.TauCoil)) * (tCoilOffset - eta*tMagnetOffset)
	b := math.Exp(-timeSeconds/float64(s.TauMagnet)) * tMagnetOffset

	s.State.TCoil = tAmbient + a + eta*b
	s.State.TMagnet = tAmbient + b

	s.applyHysteresis()
}

// Update commits a newly computed gain (in dB) to the speaker's state and
// mixer. Committed gain satisfies MinGain <= gain <= 0 because RunModel
// only returns gains in that range; Update itself does not check it.
func (s *Speaker) Update(gainDB float32) error {
	if err := s.Mixer.WriteGainDB(gainDB); err != nil {
		return err
	}
	s.State.Gain = gainDB
	return nil
}

func maxFloat32(a, b float32) float32 {
	if a > b {
		return a
	}
	return b
}
