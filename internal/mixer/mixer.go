// Package mixer bundles the four control-element knobs a single speaker's
// safety supervisor touches, and implements the construction-time effects:
// enable both sense switches, verify they took, and pin the amplifier gain
// to its maximum allowed value.
package mixer

import (
	"github.com/doismellburning/speakersafetyd/internal/control"
)

// Names bundles the four control-element names a Mixer resolves. NamesFor
// builds these from the [Controls] templates
// and the speaker name: "<SpeakerName> <suffix>" for named speakers, or
// just "<suffix>" for the speaker literally named "Mono".
type Names struct {
	Volume  string
	AmpGain string
	VSense  string
	ISense  string
}

// Mixer is the per-speaker bundle of knobs. Volume is read/write and
// dB-scaled; AmpGain is read-only after the initial max-set; VSense and
// ISense are boolean enable switches.
type Mixer struct {
	Volume  *control.Element
	AmpGain *control.Element
	VSense  *control.Element
	ISense  *control.Element

	// AmpGainDB is the amp gain's maximum representable dB value, pinned
	// at construction and used by the thermal model's MinGain computation.
	AmpGainDB float32
}

// New opens, locks, and initializes all four knobs for one speaker, in
// order:
//  1. create volume, amp_gain, vsense, isense handles;
//  2. set both sense switches true, read back, fail if not;
//  3. query the amp-gain knob's dB range and write the maximum
//     representable raw integer.
//
// Any step failing is a ControlFault and aborts construction; the caller
// must treat that as a startup-fatal condition, the amplifier must not be
// producing V/I data the model could otherwise act on incorrectly.
func New(backend control.Backend, names Names) (*Mixer, error) {
	volume, err := control.Open(backend, names.Volume)
	if err != nil {
		return nil, err
	}
	if err := volume.Lock(); err != nil {
		return nil, err
	}

	ampGain, err := control.Open(backend, names.AmpGain)
	if err != nil {
		return nil, err
	}
	if err := ampGain.Lock(); err != nil {
		return nil, err
	}

	vsense, err := control.Open(backend, names.VSense)
	if err != nil {
		return nil, err
	}
	if err := vsense.Lock(); err != nil {
		return nil, err
	}

	isense, err := control.Open(backend, names.ISense)
	if err != nil {
		return nil, err
	}
	if err := isense.Lock(); err != nil {
		return nil, err
	}

	if err := vsense.SetBoolChecked(true); err != nil {
		return nil, err
	}
	if err := isense.SetBoolChecked(true); err != nil {
		return nil, err
	}

	_, max, err := ampGain.DBRange()
	if err != nil {
		return nil, err
	}
	if err := ampGain.WriteInt(max); err != nil {
		return nil, err
	}
	ampGainDB, err := ampGain.IntToDB(max)
	if err != nil {
		return nil, err
	}

	return &Mixer{
		Volume:    volume,
		AmpGain:   ampGain,
		VSense:    vsense,
		ISense:    isense,
		AmpGainDB: ampGainDB,
	}, nil
}

// WriteGainDB writes the volume knob's attenuation, in dB relative to the
// amp's 0 dB reference. Committed gains are always <= 0; this function
// does not itself enforce that, the thermal model does.
func (m *Mixer) WriteGainDB(db float32) error {
	return m.Volume.WriteDB(db)
}

// controlNameFor builds the per-speaker control name: the speaker
// literally named "Mono" gets the bare suffix, every other speaker gets
// "<Name> <suffix>".
func controlNameFor(speakerName, suffix string) string {
	if speakerName == "Mono" {
		return suffix
	}
	return speakerName + " " + suffix
}

// NamesFor builds the Names a speaker should use given the [Controls]
// section suffix templates and the speaker's own name.
func NamesFor(speakerName string, volumeSuffix, ampGainSuffix, vsenseSuffix, isenseSuffix string) Names {
	return Names{
		Volume:  controlNameFor(speakerName, volumeSuffix),
		AmpGain: controlNameFor(speakerName, ampGainSuffix),
		VSense:  controlNameFor(speakerName, vsenseSuffix),
		ISense:  controlNameFor(speakerName, isenseSuffix),
	}
}
