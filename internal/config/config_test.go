package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTestKey(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "public_key.pem")
	require.NoError(t, os.WriteFile(path, []byte("placeholder"), 0o644))
	return path
}

func validConfig(t *testing.T) *Config {
	cfg := DefaultConfig()
	cfg.Crypto.PublicKeyPath = writeTestKey(t)
	return cfg
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, 16000, cfg.Audio.SampleRate)
	assert.Equal(t, 1, cfg.Audio.Channels)
	assert.Equal(t, 45, cfg.Buffer.RingSeconds)
	assert.Equal(t, 15, cfg.Buffer.ClipPostSeconds)
	assert.Equal(t, FormatOgg, cfg.Storage.Format)
	assert.Equal(t, CryptoModeAsymmetric, cfg.Crypto.Mode)
	assert.Equal(t, "ctrl+shift+c", cfg.Triggers.ClipHotkey)
	assert.Equal(t, "ctrl+shift+p", cfg.Triggers.PanicHotkey)
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `
audio:
  sample_rate: 48000
  device: "USB Audio"
buffer:
  ring_seconds: 60
storage:
  format: wav
crypto:
  mode: symmetric
  passphrase: "hunter2"
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 48000, cfg.Audio.SampleRate)
	assert.Equal(t, "USB Audio", cfg.Audio.Device)
	assert.Equal(t, 60, cfg.Buffer.RingSeconds)
	assert.Equal(t, FormatWAV, cfg.Storage.Format)
	assert.Equal(t, CryptoModeSymmetric, cfg.Crypto.Mode)
	// Untouched sections keep their defaults.
	assert.Equal(t, 15, cfg.Buffer.ClipPostSeconds)
	assert.Equal(t, 1, cfg.Audio.Channels)
}

func TestLoadRejectsBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("audio: ["), 0o644))

	_, err := Load(path)
	assert.ErrorContains(t, err, "failed to parse config")
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "config.yaml")

	cfg := DefaultConfig()
	cfg.Audio.Device = "hw:1,0"
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestValidateAcceptsDefaults(t *testing.T) {
	assert.NoError(t, validConfig(t).Validate())
}

func TestValidateRejections(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"zero sample rate", func(c *Config) { c.Audio.SampleRate = 0 }, "sample_rate"},
		{"too many channels", func(c *Config) { c.Audio.Channels = 5 }, "channels"},
		{"zero ring", func(c *Config) { c.Buffer.RingSeconds = 0 }, "ring_seconds"},
		{"negative post", func(c *Config) { c.Buffer.ClipPostSeconds = -1 }, "clip_post_seconds"},
		{"unknown format", func(c *Config) { c.Storage.Format = "mp3" }, "storage.format"},
		{"non-opus rate for ogg", func(c *Config) { c.Audio.SampleRate = 44100 }, "opus sample rate"},
		{"unknown crypto mode", func(c *Config) { c.Crypto.Mode = "rot13" }, "crypto.mode"},
		{"missing public key", func(c *Config) { c.Crypto.PublicKeyPath = "/does/not/exist.pem" }, "public key not found"},
		{"asymmetric without key path", func(c *Config) { c.Crypto.PublicKeyPath = "" }, "public_key_path"},
		{"symmetric without passphrase", func(c *Config) {
			c.Crypto.Mode = CryptoModeSymmetric
			c.Crypto.Passphrase = ""
		}, "passphrase"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig(t)
			tc.mutate(cfg)
			assert.ErrorContains(t, cfg.Validate(), tc.want)
		})
	}
}

func TestWAVAllowsAnySampleRate(t *testing.T) {
	cfg := validConfig(t)
	cfg.Storage.Format = FormatWAV
	cfg.Audio.SampleRate = 44100
	assert.NoError(t, cfg.Validate())
}
