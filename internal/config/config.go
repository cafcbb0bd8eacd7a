// Package config holds the process-wide settings of the sonar console.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/rjboer/GoSonar/internal/logging"
)

// EnvPrefix is prepended to environment overrides, e.g. SONAR_WEB_ADDR.
const EnvPrefix = "SONAR"

// Config represents the application configuration.
type Config struct {
	Log       LogConfig       `mapstructure:"log"`
	Sim       SimConfig       `mapstructure:"sim"`
	Audio     AudioConfig     `mapstructure:"audio"`
	Analysis  AnalysisConfig  `mapstructure:"analysis"`
	Web       WebConfig       `mapstructure:"web"`
	Discovery DiscoveryConfig `mapstructure:"discovery"`
}

// LogConfig selects log verbosity and encoding.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// SimConfig controls the simulation driver.
type SimConfig struct {
	TickInterval time.Duration `mapstructure:"tick_interval"`
	// Scenario is a YAML scenario path; empty loads the built-in picture.
	Scenario string `mapstructure:"scenario"`
	// Seed fixes the random source; 0 seeds from the clock.
	Seed int64 `mapstructure:"seed"`
}

// AudioConfig controls the real-time output device.
type AudioConfig struct {
	Enabled    bool          `mapstructure:"enabled"`
	SampleRate int           `mapstructure:"sample_rate"`
	Buffer     time.Duration `mapstructure:"buffer"`
}

// AnalysisConfig tunes the DEMON and LOFAR displays.
type AnalysisConfig struct {
	Period         time.Duration `mapstructure:"period"`
	SampleRate     float64       `mapstructure:"sample_rate"`
	DemonBuffer    int           `mapstructure:"demon_buffer"`
	LofarMode      string        `mapstructure:"lofar_mode"`
	LofarHistory   int           `mapstructure:"lofar_history"`
	FFTSize        int           `mapstructure:"fft_size"`
	BearingBucket  time.Duration `mapstructure:"bearing_bucket"`
	UseLiveSamples bool          `mapstructure:"use_live_samples"`
}

// WebConfig controls the display and command API.
type WebConfig struct {
	Enabled     bool     `mapstructure:"enabled"`
	Addr        string   `mapstructure:"addr"`
	CORSOrigins []string `mapstructure:"cors_origins"`
}

// DiscoveryConfig controls mDNS advertisement and browsing.
type DiscoveryConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Instance string        `mapstructure:"instance"`
	Service  string        `mapstructure:"service"`
	Domain   string        `mapstructure:"domain"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

const (
	LofarProcedural = "procedural"
	LofarFFT        = "fft"
)

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		Log: LogConfig{Level: "info", Format: "text"},
		Sim: SimConfig{TickInterval: 50 * time.Millisecond},
		Audio: AudioConfig{
			Enabled:    false,
			SampleRate: 44100,
			Buffer:     100 * time.Millisecond,
		},
		Analysis: AnalysisConfig{
			Period:        200 * time.Millisecond,
			SampleRate:    2048,
			DemonBuffer:   4096,
			LofarMode:     LofarProcedural,
			LofarHistory:  200,
			FFTSize:       2048,
			BearingBucket: 5 * time.Second,
		},
		Web: WebConfig{
			Enabled:     true,
			Addr:        ":8080",
			CORSOrigins: []string{"*"},
		},
		Discovery: DiscoveryConfig{
			Enabled:  false,
			Instance: "sonarsim",
			Service:  "_sonarsim._tcp",
			Domain:   "local.",
			Timeout:  3 * time.Second,
		},
	}
}

// SetDefaults registers every default on v so that file, env and flag
// layers override individual keys.
func SetDefaults(v *viper.Viper) {
	d := Defaults()
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)

	v.SetDefault("sim.tick_interval", d.Sim.TickInterval)
	v.SetDefault("sim.scenario", d.Sim.Scenario)
	v.SetDefault("sim.seed", d.Sim.Seed)

	v.SetDefault("audio.enabled", d.Audio.Enabled)
	v.SetDefault("audio.sample_rate", d.Audio.SampleRate)
	v.SetDefault("audio.buffer", d.Audio.Buffer)

	v.SetDefault("analysis.period", d.Analysis.Period)
	v.SetDefault("analysis.sample_rate", d.Analysis.SampleRate)
	v.SetDefault("analysis.demon_buffer", d.Analysis.DemonBuffer)
	v.SetDefault("analysis.lofar_mode", d.Analysis.LofarMode)
	v.SetDefault("analysis.lofar_history", d.Analysis.LofarHistory)
	v.SetDefault("analysis.fft_size", d.Analysis.FFTSize)
	v.SetDefault("analysis.bearing_bucket", d.Analysis.BearingBucket)
	v.SetDefault("analysis.use_live_samples", d.Analysis.UseLiveSamples)

	v.SetDefault("web.enabled", d.Web.Enabled)
	v.SetDefault("web.addr", d.Web.Addr)
	v.SetDefault("web.cors_origins", d.Web.CORSOrigins)

	v.SetDefault("discovery.enabled", d.Discovery.Enabled)
	v.SetDefault("discovery.instance", d.Discovery.Instance)
	v.SetDefault("discovery.service", d.Discovery.Service)
	v.SetDefault("discovery.domain", d.Discovery.Domain)
	v.SetDefault("discovery.timeout", d.Discovery.Timeout)
}

// NewViper returns a viper instance with defaults and SONAR_ environment
// overrides registered.
func NewViper() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()
	return v
}

// Load decodes and validates the configuration held by v.
func Load(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unable to decode configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks ranges and enumerations.
func (c Config) Validate() error {
	var errs []error
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	if _, err := logging.ParseFormat(c.Log.Format); err != nil {
		errs = append(errs, err)
	}
	if c.Sim.TickInterval < time.Millisecond || c.Sim.TickInterval > time.Second {
		errs = append(errs, errors.New("sim.tick_interval must be between 1ms and 1s"))
	}
	if c.Audio.SampleRate < 8000 || c.Audio.SampleRate > 192000 {
		errs = append(errs, errors.New("audio.sample_rate must be between 8000 and 192000"))
	}
	if c.Audio.Buffer <= 0 {
		errs = append(errs, errors.New("audio.buffer must be positive"))
	}
	if c.Analysis.Period < 10*time.Millisecond {
		errs = append(errs, errors.New("analysis.period must be at least 10ms"))
	}
	if c.Analysis.SampleRate < 200 {
		errs = append(errs, errors.New("analysis.sample_rate must be at least 200 Hz"))
	}
	if c.Analysis.DemonBuffer < 64 {
		errs = append(errs, errors.New("analysis.demon_buffer must be at least 64"))
	}
	switch c.Analysis.LofarMode {
	case LofarProcedural, LofarFFT:
	default:
		errs = append(errs, fmt.Errorf("analysis.lofar_mode must be %q or %q", LofarProcedural, LofarFFT))
	}
	if c.Analysis.LofarHistory < 1 {
		errs = append(errs, errors.New("analysis.lofar_history must be positive"))
	}
	if c.Analysis.FFTSize < 16 || c.Analysis.FFTSize&(c.Analysis.FFTSize-1) != 0 {
		errs = append(errs, errors.New("analysis.fft_size must be a power of two of at least 16"))
	}
	if c.Analysis.BearingBucket <= 0 {
		errs = append(errs, errors.New("analysis.bearing_bucket must be positive"))
	}
	if c.Web.Enabled && c.Web.Addr == "" {
		errs = append(errs, errors.New("web.addr is required when web is enabled"))
	}
	if c.Discovery.Enabled && (c.Discovery.Service == "" || c.Discovery.Instance == "") {
		errs = append(errs, errors.New("discovery.service and discovery.instance are required"))
	}
	return errors.Join(errs...)
}
