// Package config resolves the machine identity and loads the per-machine
// INI configuration file.
package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"

	"github.com/doismellburning/speakersafetyd/internal/faults"
)

// DefaultCompatiblePath is the platform metadata path exposing the
// NUL-delimited devicetree "compatible" string.
const DefaultCompatiblePath = "/proc/device-tree/compatible"

// Machine identifies the maker and model extracted from the devicetree
// compatible string.
type Machine struct {
	Maker string
	Model string
}

// ReadMachine reads path (typically DefaultCompatiblePath), extracts the
// first "maker,model" token, lowercases both, and strips trailing ASCII
// letters from the model (e.g. "j314s" -> "j314"), collapsing hardware
// variants onto one config file.
func ReadMachine(path string) (Machine, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Machine{}, faults.Wrap(faults.ConfigFault, "read machine compatible string", err)
	}
	return parseMachine(data)
}

func parseMachine(data []byte) (Machine, error) {
	first := data
	if idx := bytes.IndexByte(data, 0); idx >= 0 {
		first = data[:idx]
	}
	token := string(first)
	maker, model, found := strings.Cut(token, ",")
	if !found {
		return Machine{}, faults.New(faults.ConfigFault, "malformed compatible string: "+token)
	}

	model = strings.TrimRightFunc(model, func(r rune) bool {
		return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
	})

	return Machine{
		Maker: strings.ToLower(maker),
		Model: strings.ToLower(model),
	}, nil
}

// ConfigPath builds the <config-path>/<maker>/<model>.conf path for this
// machine.
func (m Machine) ConfigPath(configRoot string) string {
	return filepath.Join(configRoot, m.Maker, m.Model+".conf")
}
