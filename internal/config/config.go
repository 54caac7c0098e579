package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

type Config struct {
	Poller    PollerConfig
	Discovery DiscoveryConfig
	Display   DisplayConfig
}

type PollerConfig struct {
	Enabled         bool `toml:"enabled"`
	IntervalSeconds int  `toml:"interval_seconds"`
}

type DiscoveryConfig struct {
	ProcessPatterns []string `toml:"process_patterns"`
	ServiceName     string   `toml:"service_name"`
	PortScanStart   int      `toml:"port_scan_start"`
	PortScanCount   int      `toml:"port_scan_count"`
	ProbeTimeoutMS  int      `toml:"probe_timeout_ms"`
}

type DisplayConfig struct {
	PinnedModels    []string `toml:"pinned_models"`
	EventBufferSize int      `toml:"event_buffer_size"`
	RefreshRateMS   int      `toml:"refresh_rate_ms"`
}

type LoadResult struct {
	Config   Config
	Warnings []string
}

// DefaultConfig returns the built-in defaults. Every field is covered so a
// missing or partial config file always yields a usable configuration.
func DefaultConfig() Config {
	return Config{
		Poller: PollerConfig{
			Enabled:         true,
			IntervalSeconds: 60,
		},
		Discovery: DiscoveryConfig{
			ProcessPatterns: []string{"language_server"},
			ServiceName:     "assistant-language-server",
			PortScanStart:   42100,
			PortScanCount:   25,
			ProbeTimeoutMS:  1500,
		},
		Display: DisplayConfig{
			EventBufferSize: 100,
			RefreshRateMS:   1000,
		},
	}
}

func defaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "quotabar", "config.toml")
}

func Load() (*LoadResult, error) {
	return LoadFrom(defaultConfigPath())
}

func LoadFrom(path string) (*LoadResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return &LoadResult{Config: DefaultConfig()}, nil
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return LoadFromString(string(data))
}

type tomlFile struct {
	Poller    *PollerConfig    `toml:"poller"`
	Discovery *DiscoveryConfig `toml:"discovery"`
	Display   *DisplayConfig   `toml:"display"`
}

func LoadFromString(data string) (*LoadResult, error) {
	cfg := DefaultConfig()
	result := &LoadResult{Config: cfg}

	if data == "" {
		return result, nil
	}

	var raw map[string]any
	if _, err := toml.Decode(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	knownTopLevel := map[string]bool{
		"poller":    true,
		"discovery": true,
		"display":   true,
	}
	for key := range raw {
		if !knownTopLevel[key] {
			result.Warnings = append(result.Warnings, fmt.Sprintf("unknown config key: %q", key))
		}
	}

	var tf tomlFile
	if _, err := toml.Decode(data, &tf); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	mergeFromRaw(&result.Config, &tf, raw)

	if err := validate(&result.Config); err != nil {
		return nil, err
	}

	return result, nil
}

// mergeFromRaw overwrites defaults only for keys actually present in the
// file, so a zero value in the file is distinguishable from an omitted key.
func mergeFromRaw(cfg *Config, tf *tomlFile, raw map[string]any) {
	if tf.Poller != nil {
		if section, ok := rawSection(raw, "poller"); ok {
			if _, exists := section["enabled"]; exists {
				cfg.Poller.Enabled = tf.Poller.Enabled
			}
			if _, exists := section["interval_seconds"]; exists {
				cfg.Poller.IntervalSeconds = tf.Poller.IntervalSeconds
			}
		}
	}
	if tf.Discovery != nil {
		if section, ok := rawSection(raw, "discovery"); ok {
			if _, exists := section["process_patterns"]; exists {
				cfg.Discovery.ProcessPatterns = tf.Discovery.ProcessPatterns
			}
			if _, exists := section["service_name"]; exists {
				cfg.Discovery.ServiceName = tf.Discovery.ServiceName
			}
			if _, exists := section["port_scan_start"]; exists {
				cfg.Discovery.PortScanStart = tf.Discovery.PortScanStart
			}
			if _, exists := section["port_scan_count"]; exists {
				cfg.Discovery.PortScanCount = tf.Discovery.PortScanCount
			}
			if _, exists := section["probe_timeout_ms"]; exists {
				cfg.Discovery.ProbeTimeoutMS = tf.Discovery.ProbeTimeoutMS
			}
		}
	}
	if tf.Display != nil {
		if section, ok := rawSection(raw, "display"); ok {
			if _, exists := section["pinned_models"]; exists {
				cfg.Display.PinnedModels = tf.Display.PinnedModels
			}
			if _, exists := section["event_buffer_size"]; exists {
				cfg.Display.EventBufferSize = tf.Display.EventBufferSize
			}
			if _, exists := section["refresh_rate_ms"]; exists {
				cfg.Display.RefreshRateMS = tf.Display.RefreshRateMS
			}
		}
	}
}

func rawSection(raw map[string]any, key string) (map[string]any, bool) {
	v, ok := raw[key]
	if !ok {
		return nil, false
	}
	m, ok := v.(map[string]any)
	return m, ok
}

func validate(cfg *Config) error {
	var errs []string

	if cfg.Poller.IntervalSeconds < 30 {
		errs = append(errs, fmt.Sprintf("poller interval_seconds must be at least 30, got %d", cfg.Poller.IntervalSeconds))
	}

	if len(cfg.Discovery.ProcessPatterns) == 0 {
		errs = append(errs, "discovery process_patterns must not be empty")
	}
	if cfg.Discovery.ServiceName == "" {
		errs = append(errs, "discovery service_name must not be empty")
	}
	if cfg.Discovery.PortScanStart < 1 || cfg.Discovery.PortScanStart > 65535 {
		errs = append(errs, fmt.Sprintf("discovery port_scan_start must be 1-65535, got %d", cfg.Discovery.PortScanStart))
	}
	if cfg.Discovery.PortScanCount < 0 {
		errs = append(errs, fmt.Sprintf("discovery port_scan_count must not be negative, got %d", cfg.Discovery.PortScanCount))
	}
	if cfg.Discovery.PortScanStart+cfg.Discovery.PortScanCount-1 > 65535 {
		errs = append(errs, "discovery port scan range exceeds 65535")
	}
	if cfg.Discovery.ProbeTimeoutMS < 1 {
		errs = append(errs, fmt.Sprintf("discovery probe_timeout_ms must be positive, got %d", cfg.Discovery.ProbeTimeoutMS))
	}

	if cfg.Display.EventBufferSize < 1 {
		errs = append(errs, fmt.Sprintf("display event_buffer_size must be positive, got %d", cfg.Display.EventBufferSize))
	}
	if cfg.Display.RefreshRateMS < 1 {
		errs = append(errs, fmt.Sprintf("display refresh_rate_ms must be positive, got %d", cfg.Display.RefreshRateMS))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation error: %s", strings.Join(errs, "; "))
	}
	return nil
}
