// Package config loads the showclock YAML configuration.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"net"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/showclock/internal/broadcaster"
	"github.com/roach88/showclock/internal/source"
	"github.com/roach88/showclock/internal/timecode"
)

// DefaultTimeSyncAddr is where time sync datagrams are broadcast.
const DefaultTimeSyncAddr = "255.255.255.255:34456"

// Config is the root of a showclock configuration file.
type Config struct {
	Session     SessionConfig     `yaml:"session"`
	Broadcaster BroadcasterConfig `yaml:"broadcaster"`
	TimeSync    TimeSyncConfig    `yaml:"timesync"`

	// Database is the SQLite path for sessions and settings. Empty
	// disables persistence.
	Database string `yaml:"database"`
}

// SessionConfig is what the owning session configures on its timeline.
type SessionConfig struct {
	MaxFrames int64   `yaml:"max_frames"`
	Looping   bool    `yaml:"looping"`
	Standard  string  `yaml:"standard"`
	Speed     float64 `yaml:"speed"`
	Source    string  `yaml:"source"`
	LTC       struct {
		Device  string `yaml:"device"`
		Channel int    `yaml:"channel"`
	} `yaml:"ltc"`
}

// BroadcasterConfig tunes the internal clock.
type BroadcasterConfig struct {
	TickInterval    time.Duration `yaml:"tick_interval"`
	Nice            int           `yaml:"nice"`
	SettleDelay     time.Duration `yaml:"settle_delay"`
	TeardownTimeout time.Duration `yaml:"teardown_timeout"`
}

// TimeSyncConfig controls the network time sync publisher.
type TimeSyncConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
	Codec   string `yaml:"codec"`
}

// Default returns the configuration used for omitted fields.
func Default() Config {
	return Config{
		Session: SessionConfig{
			MaxFrames: 250,
			Looping:   true,
			Standard:  timecode.DefaultStandard.String(),
			Speed:     1.0,
			Source:    source.Internal.String(),
		},
		Broadcaster: BroadcasterConfig{
			TickInterval:    broadcaster.DefaultTickInterval,
			Nice:            broadcaster.DefaultNice,
			SettleDelay:     5 * time.Millisecond,
			TeardownTimeout: time.Second,
		},
		TimeSync: TimeSyncConfig{
			Addr:  DefaultTimeSyncAddr,
			Codec: "json",
		},
	}
}

// Load reads and validates the configuration file at path.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML over Default and validates the result. Unknown
// fields are rejected.
func Parse(data []byte) (Config, error) {
	cfg := Default()

	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Validate checks field ranges and names.
func (c Config) Validate() error {
	var errs []error

	if c.Session.MaxFrames < 0 {
		errs = append(errs, fmt.Errorf("session.max_frames must be >= 0, got %d", c.Session.MaxFrames))
	}
	if _, err := timecode.ParseStandard(c.Session.Standard); err != nil {
		errs = append(errs, fmt.Errorf("session.standard: %w", err))
	}
	if math.IsNaN(c.Session.Speed) || math.IsInf(c.Session.Speed, 0) || c.Session.Speed <= 0 {
		errs = append(errs, fmt.Errorf("session.speed must be positive, got %v", c.Session.Speed))
	}
	if _, err := source.ParseKind(c.Session.Source); err != nil {
		errs = append(errs, fmt.Errorf("session.source: %w", err))
	}
	if c.Session.LTC.Channel < 0 {
		errs = append(errs, fmt.Errorf("session.ltc.channel must be >= 0, got %d", c.Session.LTC.Channel))
	}

	b := c.Broadcaster
	if b.TickInterval < broadcaster.MinTickInterval || b.TickInterval > broadcaster.MaxTickInterval {
		errs = append(errs, fmt.Errorf("broadcaster.tick_interval must be within [%s, %s], got %s",
			broadcaster.MinTickInterval, broadcaster.MaxTickInterval, b.TickInterval))
	}
	if b.Nice < -20 || b.Nice > 19 {
		errs = append(errs, fmt.Errorf("broadcaster.nice must be within [-20, 19], got %d", b.Nice))
	}
	if b.SettleDelay < 0 {
		errs = append(errs, fmt.Errorf("broadcaster.settle_delay must be >= 0, got %s", b.SettleDelay))
	}
	if b.TeardownTimeout <= 0 {
		errs = append(errs, fmt.Errorf("broadcaster.teardown_timeout must be positive, got %s", b.TeardownTimeout))
	}

	if c.TimeSync.Enabled {
		if _, _, err := net.SplitHostPort(c.TimeSync.Addr); err != nil {
			errs = append(errs, fmt.Errorf("timesync.addr: %w", err))
		}
	}
	switch strings.ToLower(c.TimeSync.Codec) {
	case "json", "cbor":
	default:
		errs = append(errs, fmt.Errorf("timesync.codec must be json or cbor, got %q", c.TimeSync.Codec))
	}

	return errors.Join(errs...)
}

// Standard returns the parsed session standard. Call after Validate.
func (c Config) Standard() timecode.Standard {
	std, err := timecode.ParseStandard(c.Session.Standard)
	if err != nil {
		return timecode.DefaultStandard
	}
	return std
}

// SourceKind returns the parsed session clock source. Call after Validate.
func (c Config) SourceKind() source.Kind {
	kind, err := source.ParseKind(c.Session.Source)
	if err != nil {
		return source.Internal
	}
	return kind
}

// LTC returns the configured LTC input.
func (c Config) LTC() source.LTCSettings {
	return source.LTCSettings{
		Device:  c.Session.LTC.Device,
		Channel: c.Session.LTC.Channel,
	}.Normalize()
}
