// Command speakersafetyd is a realtime speaker-safety supervisor: it loads
// the per-machine configuration, opens the control and capture transports,
// and drives the thermal-model loop until a fatal fault or signal ends the
// process. The downstream audio stack caps speaker output until this
// daemon is alive and rewriting the unlock sentinel, so any exit fails
// closed.
package main

import (
	"fmt"
	"os"
	"strings"

	charmlog "github.com/charmbracelet/log"
	"github.com/spf13/pflag"

	"github.com/doismellburning/speakersafetyd/internal/blackbox"
	"github.com/doismellburning/speakersafetyd/internal/capture"
	"github.com/doismellburning/speakersafetyd/internal/config"
	"github.com/doismellburning/speakersafetyd/internal/control"
	"github.com/doismellburning/speakersafetyd/internal/faults"
	"github.com/doismellburning/speakersafetyd/internal/mixer"
	"github.com/doismellburning/speakersafetyd/internal/sched"
	"github.com/doismellburning/speakersafetyd/internal/supervisor"
	"github.com/doismellburning/speakersafetyd/internal/thermal"
)

const (
	unlockKnobName     = "Speaker Volume Unlock"
	sampleRateKnobName = "Speaker Sample Rate"
)

func main() {
	var (
		configPath      = pflag.StringP("config-path", "c", "/etc/speakersafetyd", "Directory holding per-machine configuration files.")
		blackboxPath    = pflag.StringP("blackbox-path", "b", "", "Directory to write forensic blackbox files to on fatal exit. Empty disables the recorder.")
		maxReduction    = pflag.Float64P("max-reduction", "m", 0, "Debug aid: fail if a group ever attenuates by more than this many dB after first going nominal.")
		machineOverride = pflag.StringP("machine", "M", "", "Override machine maker,model detection (format: maker,model). Mainly for testing off-target.")
		verbose         = pflag.CountP("verbose", "v", "Increase log verbosity. May be repeated.")
		help            = pflag.BoolP("help", "h", false, "Display help text.")
	)

	pflag.Usage = func() {
		fmt.Fprintln(os.Stderr, "speakersafetyd: realtime loudspeaker thermal-safety supervisor")
		pflag.PrintDefaults()
	}
	pflag.Parse()

	if *help {
		pflag.Usage()
		os.Exit(0)
	}

	logger := charmlog.NewWithOptions(os.Stderr, charmlog.Options{ReportTimestamp: true})
	if *verbose > 0 {
		logger.SetLevel(charmlog.DebugLevel)
	} else {
		logger.SetLevel(charmlog.InfoLevel)
	}

	if err := run(logger, *configPath, *blackboxPath, float32(*maxReduction), pflag.CommandLine.Changed("max-reduction"), *machineOverride); err != nil {
		logger.Error("fatal", "err", err)
		os.Exit(1)
	}
}

func run(logger *charmlog.Logger, configRoot, blackboxDir string, maxReduction float32, hasMaxReduction bool, machineOverride string) error {
	machine, err := resolveMachine(machineOverride)
	if err != nil {
		return err
	}
	logger.Info("resolved machine", "maker", machine.Maker, "model", machine.Model)

	cfg, err := config.Load(machine.ConfigPath(configRoot))
	if err != nil {
		return err
	}

	backend, err := control.OpenALSABackend()
	if err != nil {
		return err
	}

	unlock, err := control.Open(backend, unlockKnobName)
	if err != nil {
		return err
	}
	if err := unlock.Lock(); err != nil {
		return err
	}

	sampleRate, err := control.Open(backend, sampleRateKnobName)
	if err != nil {
		return err
	}
	if err := sampleRate.Lock(); err != nil {
		return err
	}

	coldBoot := supervisor.IsColdBoot(supervisor.DefaultFlagPath)
	logger.Info("boot state", "cold", coldBoot)

	groups, err := buildGroups(backend, cfg, coldBoot)
	if err != nil {
		return err
	}

	if err := supervisor.MarkWarmBoot(supervisor.DefaultFlagPath); err != nil {
		logger.Warn("failed to mark warm-boot flag", "err", err)
	}

	if cfg.Globals.HasUclamp {
		if err := sched.SetUclamp(uint32(cfg.Globals.UclampMin), uint32(cfg.Globals.UclampMax)); err != nil {
			logger.Warn("uclamp hint failed, continuing without it", "err", err)
		}
	}

	var bb *blackbox.Recorder
	if blackboxDir != "" {
		bb = blackbox.New(blackboxDir, machine.Maker+","+machine.Model, cfg.Globals.Channels,
			cfg.Globals.TAmbient, cfg.Globals.TWindow, cfg.Globals.THysteresis)
	}

	loop := supervisor.New(unlock, sampleRate, capture.OpenPortAudio, cfg.Globals.VSensePCM,
		cfg.Globals.Channels, cfg.Globals.Period, groups, bb, logger)
	if hasMaxReduction {
		loop.WithMaxReduction(maxReduction)
	}

	loop.WatchSignals()

	if err := loop.OpenStream(); err != nil {
		return err
	}

	return loop.Run()
}

func resolveMachine(override string) (config.Machine, error) {
	if override != "" {
		maker, model, ok := strings.Cut(override, ",")
		if !ok {
			return config.Machine{}, faults.New(faults.ConfigFault, "malformed --machine override, expected maker,model: "+override)
		}
		return config.Machine{Maker: maker, Model: model}, nil
	}
	return config.ReadMachine(config.DefaultCompatiblePath)
}

// buildGroups constructs every Mixer and Speaker named in cfg, then groups
// them by their configured Group index, preserving first-seen order so
// blackbox state snapshots are stable across restarts.
func buildGroups(backend control.Backend, cfg *config.Config, coldBoot bool) ([]*thermal.Group, error) {
	byIndex := map[int][]*thermal.Speaker{}
	var order []int

	for _, entry := range cfg.Speakers {
		sc := entry.Config

		names := mixer.NamesFor(sc.Name, cfg.Controls.Volume, cfg.Controls.AmpGain, cfg.Controls.VSense, cfg.Controls.ISense)
		m, err := mixer.New(backend, names)
		if err != nil {
			return nil, err
		}

		sp, err := thermal.New(sc, m, cfg.Globals.Channels, cfg.Globals.TAmbient, cfg.Globals.TWindow, cfg.Globals.THysteresis, coldBoot)
		if err != nil {
			return nil, err
		}

		if _, seen := byIndex[sc.Group]; !seen {
			order = append(order, sc.Group)
		}
		byIndex[sc.Group] = append(byIndex[sc.Group], sp)
	}

	groups := make([]*thermal.Group, 0, len(order))
	for _, idx := range order {
		groups = append(groups, thermal.NewGroup(idx, byIndex[idx], coldBoot))
	}
	return groups, nil
}
