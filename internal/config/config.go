package config

import (
	"fmt"
	"math"
	"strings"

	"github.com/doismellburning/speakersafetyd/internal/faults"
	"github.com/doismellburning/speakersafetyd/internal/thermal"
	"gopkg.in/ini.v1"
)

// Globals is the immutable-after-load configuration of the [Globals]
// section.
type Globals struct {
	VSensePCM   string
	Channels    int
	Period      int
	TAmbient    float32
	TWindow     float32
	THysteresis float32
	UclampMin   int
	UclampMax   int
	HasUclamp   bool
}

// ControlNames is the [Controls] section: suffix templates combined with a
// speaker name to build the per-speaker control element names.
type ControlNames struct {
	VSense  string
	ISense  string
	AmpGain string
	Volume  string
}

// SpeakerEntry holds the thermal.Config parsed from one [Speaker/<Name>]
// section; the speaker name is carried in Config.Name.
type SpeakerEntry struct {
	Config thermal.Config
}

// Config is the fully parsed, validated contents of one machine's .conf
// file.
type Config struct {
	Globals  Globals
	Controls ControlNames
	Speakers []SpeakerEntry
}

// Load parses and validates the INI file at path. Any missing key,
// out-of-range value, or non-finite float is a ConfigFault.
func Load(path string) (*Config, error) {
	f, err := ini.Load(path)
	if err != nil {
		return nil, faults.Wrap(faults.ConfigFault, "open config file "+path, err)
	}

	cfg := &Config{}

	if err := parseGlobals(f, &cfg.Globals); err != nil {
		return nil, err
	}
	if err := parseControls(f, &cfg.Controls); err != nil {
		return nil, err
	}
	if err := parseSpeakers(f, cfg); err != nil {
		return nil, err
	}
	if err := validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func parseGlobals(f *ini.File, g *Globals) error {
	sec, err := f.GetSection("Globals")
	if err != nil {
		return faults.Wrap(faults.ConfigFault, "missing [Globals] section", err)
	}

	var errs []string
	g.VSensePCM = requireString(sec, "visense_pcm", &errs)
	g.Channels = int(requireInt(sec, "channels", &errs))
	g.Period = int(requireInt(sec, "period", &errs))
	g.TAmbient = requireFloat(sec, "t_ambient", &errs)
	g.TWindow = requireFloat(sec, "t_window", &errs)
	g.THysteresis = requireFloat(sec, "t_hysteresis", &errs)

	if sec.HasKey("uclamp_min") && sec.HasKey("uclamp_max") {
		g.UclampMin = int(requireInt(sec, "uclamp_min", &errs))
		g.UclampMax = int(requireInt(sec, "uclamp_max", &errs))
		g.HasUclamp = true
	}

	if len(errs) > 0 {
		return faults.New(faults.ConfigFault, "[Globals]: "+strings.Join(errs, "; "))
	}
	return nil
}

func parseControls(f *ini.File, c *ControlNames) error {
	sec, err := f.GetSection("Controls")
	if err != nil {
		return faults.Wrap(faults.ConfigFault, "missing [Controls] section", err)
	}

	var errs []string
	c.VSense = requireString(sec, "vsense", &errs)
	c.ISense = requireString(sec, "isense", &errs)
	c.AmpGain = requireString(sec, "amp_gain", &errs)
	c.Volume = requireString(sec, "volume", &errs)

	if len(errs) > 0 {
		return faults.New(faults.ConfigFault, "[Controls]: "+strings.Join(errs, "; "))
	}
	return nil
}

func parseSpeakers(f *ini.File, cfg *Config) error {
	for _, sec := range f.Sections() {
		name, ok := strings.CutPrefix(sec.Name(), "Speaker/")
		if !ok {
			continue
		}

		var errs []string
		sc := thermal.Config{
			Name:      name,
			Group:     int(requireInt(sec, "group", &errs)),
			TauCoil:   requireFloat(sec, "tau_coil", &errs),
			TauMagnet: requireFloat(sec, "tau_magnet", &errs),
			TrCoil:    requireFloat(sec, "tr_coil", &errs),
			TrMagnet:  requireFloat(sec, "tr_magnet", &errs),
			TLimit:    requireFloat(sec, "t_limit", &errs),
			THeadroom: requireFloat(sec, "t_headroom", &errs),
			ZNominal:  requireFloat(sec, "z_nominal", &errs),
			ISScale:   requireFloat(sec, "is_scale", &errs),
			VSScale:   requireFloat(sec, "vs_scale", &errs),
			ISChan:    int(requireInt(sec, "is_chan", &errs)),
			VSChan:    int(requireInt(sec, "vs_chan", &errs)),
		}

		if len(errs) > 0 {
			return faults.New(faults.ConfigFault, fmt.Sprintf("[Speaker/%s]: %s", name, strings.Join(errs, "; ")))
		}
		cfg.Speakers = append(cfg.Speakers, SpeakerEntry{Config: sc})
	}

	if len(cfg.Speakers) == 0 {
		return faults.New(faults.ConfigFault, "no [Speaker/<Name>] sections found")
	}
	return nil
}

// validate checks the cross-cutting constraints that aren't local to a
// single key: channel indices in range, every speaker contributing two
// sense channels, and t_limit - t_window > t_ambient.
func validate(cfg *Config) error {
	g := cfg.Globals

	if 2*len(cfg.Speakers) > g.Channels {
		return faults.New(faults.ConfigFault, "2 * #speakers must be <= channels")
	}

	for _, sp := range cfg.Speakers {
		c := sp.Config
		if c.VSChan < 0 || c.VSChan >= g.Channels || c.ISChan < 0 || c.ISChan >= g.Channels {
			return faults.New(faults.ConfigFault, fmt.Sprintf("speaker %s: vs_chan/is_chan out of range [0,%d)", c.Name, g.Channels))
		}
		if c.TLimit-g.TWindow <= g.TAmbient {
			return faults.New(faults.ConfigFault, fmt.Sprintf("speaker %s: t_limit - t_window must exceed t_ambient", c.Name))
		}
	}

	return nil
}

func requireString(sec *ini.Section, key string, errs *[]string) string {
	if !sec.HasKey(key) {
		*errs = append(*errs, "missing key "+key)
		return ""
	}
	return sec.Key(key).String()
}

func requireInt(sec *ini.Section, key string, errs *[]string) int64 {
	if !sec.HasKey(key) {
		*errs = append(*errs, "missing key "+key)
		return 0
	}
	v, err := sec.Key(key).Int64()
	if err != nil {
		*errs = append(*errs, "invalid integer for "+key)
	}
	return v
}

func requireFloat(sec *ini.Section, key string, errs *[]string) float32 {
	if !sec.HasKey(key) {
		*errs = append(*errs, "missing key "+key)
		return 0
	}
	v, err := sec.Key(key).Float64()
	if err != nil {
		*errs = append(*errs, "invalid float for "+key)
		return 0
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		*errs = append(*errs, "non-finite float for "+key)
		return 0
	}
	return float32(v)
}
