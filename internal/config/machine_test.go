package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/doismellburning/speakersafetyd/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadMachineStripsTrailingLettersAndLowercases(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "compatible")
	require.NoError(t, os.WriteFile(path, []byte("Apple,J314s\x00MacAudio\x00"), 0o644))

	m, err := config.ReadMachine(path)
	require.NoError(t, err)

	assert.Equal(t, "apple", m.Maker)
	assert.Equal(t, "j314", m.Model)
}

func TestReadMachineRejectsMalformedToken(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "compatible")
	require.NoError(t, os.WriteFile(path, []byte("nocommahere\x00"), 0o644))

	_, err := config.ReadMachine(path)
	require.Error(t, err)
}

func TestConfigPath(t *testing.T) {
	m := config.Machine{Maker: "apple", Model: "j314"}
	assert.Equal(t, filepath.Join("/etc/speakersafetyd", "apple", "j314.conf"), m.ConfigPath("/etc/speakersafetyd"))
}
