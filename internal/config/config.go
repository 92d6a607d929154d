// Package config loads the YAML configuration file.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/uset82/v0-banana-piano-app/internal/keyboard"
	"github.com/uset82/v0-banana-piano-app/internal/midiin"
	"github.com/uset82/v0-banana-piano-app/internal/serialport"
	"github.com/uset82/v0-banana-piano-app/internal/voice"
)

// EnvPath names the environment variable consulted when no path is given.
const EnvPath = "BANANAPIANO_CONFIG"

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid config")

// Audio configures the output device.
type Audio struct {
	SampleRate int           `yaml:"sample_rate"`
	Buffer     time.Duration `yaml:"buffer"`
}

// Config is the root of the configuration file.
type Config struct {
	Instrument string            `yaml:"instrument"`
	Effects    voice.Effects     `yaml:"effects"`
	Audio      Audio             `yaml:"audio"`
	Serial     serialport.Config `yaml:"serial"`
	MIDI       midiin.Config     `yaml:"midi"`
	Keyboard   keyboard.Config   `yaml:"keyboard"`
}

// Default returns the configuration used when no file is given. Every
// field a file omits keeps its default.
func Default() *Config {
	return &Config{
		Instrument: string(voice.Piano),
		Effects:    voice.DefaultEffects(),
		Audio:      Audio{SampleRate: 44100, Buffer: 20 * time.Millisecond},
		Serial:     serialport.DefaultConfig(),
		MIDI:       midiin.DefaultConfig(),
		Keyboard:   keyboard.DefaultConfig(),
	}
}

// Load reads path over the defaults. An empty path falls back to
// $BANANAPIANO_CONFIG and then to the defaults alone.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv(EnvPath)
	}
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML over the defaults and validates the result. Unknown
// keys are rejected.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse yaml config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports every problem at once.
func (c *Config) Validate() error {
	var errs []error
	if _, err := voice.ParseInstrument(c.Instrument); err != nil {
		errs = append(errs, err)
	}
	if err := c.Effects.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("effects: %w", err))
	}
	if c.Audio.SampleRate < 8000 || c.Audio.SampleRate > 192000 {
		errs = append(errs, fmt.Errorf("audio: sample rate %d outside [8000, 192000]", c.Audio.SampleRate))
	}
	if c.Audio.Buffer < 0 {
		errs = append(errs, fmt.Errorf("audio: negative buffer %s", c.Audio.Buffer))
	}
	if c.Keyboard.Hold < 0 {
		errs = append(errs, fmt.Errorf("keyboard: negative hold %s", c.Keyboard.Hold))
	}
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
}

// InstrumentValue returns the validated instrument.
func (c *Config) InstrumentValue() voice.Instrument {
	i, err := voice.ParseInstrument(c.Instrument)
	if err != nil {
		return voice.Piano
	}
	return i
}
