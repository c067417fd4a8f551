package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Modes for protecting panic recordings at rest.
const (
	CryptoModeAsymmetric = "asymmetric"
	CryptoModeSymmetric  = "symmetric"
)

// Recording output formats.
const (
	FormatOgg = "ogg"
	FormatWAV = "wav"
)

// Config represents the application configuration
type Config struct {
	// Audio capture settings
	Audio struct {
		SampleRate   int    `yaml:"sample_rate"`
		Channels     int    `yaml:"channels"`
		Device       string `yaml:"device"`
		FrameSamples int    `yaml:"frame_samples"`
	} `yaml:"audio"`

	// Buffer / capture window settings
	Buffer struct {
		RingSeconds     int `yaml:"ring_seconds"`
		ClipPostSeconds int `yaml:"clip_post_seconds"`
	} `yaml:"buffer"`

	// Storage settings
	Storage struct {
		ClipDir  string `yaml:"clip_dir"`
		PanicDir string `yaml:"panic_dir"`
		Format   string `yaml:"format"`  // ogg or wav
		Bitrate  int    `yaml:"bitrate"` // opus target bitrate in bit/s
	} `yaml:"storage"`

	// Crypto settings for panic recordings
	Crypto struct {
		Mode          string `yaml:"mode"` // asymmetric or symmetric
		PublicKeyPath string `yaml:"public_key_path"`
		Passphrase    string `yaml:"passphrase"` // symmetric mode only
	} `yaml:"crypto"`

	// Trigger settings (desktop fallback when no GPIO wrapper is present)
	Triggers struct {
		ClipHotkey  string `yaml:"clip_hotkey"`
		PanicHotkey string `yaml:"panic_hotkey"`
	} `yaml:"triggers"`

	// Log settings
	Log struct {
		File  string `yaml:"file"`
		Level string `yaml:"level"`
	} `yaml:"log"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Audio.SampleRate = 16000
	cfg.Audio.Channels = 1
	cfg.Audio.Device = ""
	cfg.Audio.FrameSamples = 1024

	cfg.Buffer.RingSeconds = 45
	cfg.Buffer.ClipPostSeconds = 15

	cfg.Storage.ClipDir = "./data/recordings/clips"
	cfg.Storage.PanicDir = "./data/recordings/panic"
	cfg.Storage.Format = FormatOgg
	cfg.Storage.Bitrate = 64000

	cfg.Crypto.Mode = CryptoModeAsymmetric
	cfg.Crypto.PublicKeyPath = "./public_key.pem"

	cfg.Triggers.ClipHotkey = "ctrl+shift+c"
	cfg.Triggers.PanicHotkey = "ctrl+shift+p"

	cfg.Log.File = ""
	cfg.Log.Level = "info"

	return cfg
}

// Load loads configuration from file
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return cfg, nil
}

// LoadWithFallback attempts to load configuration from multiple locations
// Priority: explicit path > ~/.nippelboardrc > /etc/nippelboard/config.yaml
func LoadWithFallback(explicitPath string) (*Config, error) {
	if explicitPath != "" {
		return Load(explicitPath)
	}

	homeDir, err := os.UserHomeDir()
	if err == nil {
		userConfigPath := filepath.Join(homeDir, ".nippelboardrc")
		if _, err := os.Stat(userConfigPath); err == nil {
			if cfg, err := Load(userConfigPath); err == nil {
				return cfg, nil
			}
		}
	}

	systemConfigPath := "/etc/nippelboard/config.yaml"
	if _, err := os.Stat(systemConfigPath); err == nil {
		if cfg, err := Load(systemConfigPath); err == nil {
			return cfg, nil
		}
	}

	return DefaultConfig(), nil
}

// Save saves the configuration to a file
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate checks the configuration for values the recorder cannot work
// with. Crypto material problems are fatal here: a device that cannot
// protect panic recordings must refuse to offer the capability instead of
// writing plaintext.
func (c *Config) Validate() error {
	if c.Audio.SampleRate <= 0 {
		return fmt.Errorf("audio.sample_rate must be positive, got %d", c.Audio.SampleRate)
	}
	if c.Audio.Channels < 1 || c.Audio.Channels > 2 {
		return fmt.Errorf("audio.channels must be 1 or 2, got %d", c.Audio.Channels)
	}
	if c.Audio.FrameSamples <= 0 {
		return fmt.Errorf("audio.frame_samples must be positive, got %d", c.Audio.FrameSamples)
	}
	if c.Buffer.RingSeconds <= 0 {
		return fmt.Errorf("buffer.ring_seconds must be positive, got %d", c.Buffer.RingSeconds)
	}
	if c.Buffer.ClipPostSeconds < 0 {
		return fmt.Errorf("buffer.clip_post_seconds must not be negative, got %d", c.Buffer.ClipPostSeconds)
	}

	switch c.Storage.Format {
	case FormatOgg:
		// Opus only supports a fixed set of input rates.
		switch c.Audio.SampleRate {
		case 8000, 12000, 16000, 24000, 48000:
		default:
			return fmt.Errorf("storage.format ogg requires an opus sample rate (8000, 12000, 16000, 24000, 48000), got %d", c.Audio.SampleRate)
		}
	case FormatWAV:
	default:
		return fmt.Errorf("storage.format must be %q or %q, got %q", FormatOgg, FormatWAV, c.Storage.Format)
	}

	switch c.Crypto.Mode {
	case CryptoModeAsymmetric:
		if c.Crypto.PublicKeyPath == "" {
			return fmt.Errorf("crypto.mode asymmetric requires crypto.public_key_path")
		}
		if _, err := os.Stat(c.Crypto.PublicKeyPath); err != nil {
			return fmt.Errorf("public key not found at %s: %w", c.Crypto.PublicKeyPath, err)
		}
	case CryptoModeSymmetric:
		if c.Crypto.Passphrase == "" {
			return fmt.Errorf("crypto.mode symmetric requires crypto.passphrase")
		}
	default:
		return fmt.Errorf("crypto.mode must be %q or %q, got %q", CryptoModeAsymmetric, CryptoModeSymmetric, c.Crypto.Mode)
	}

	return nil
}
