// Package config handles netroster configuration loading.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// DefaultSearchPaths returns the config file search order.
// An explicit path (from -config flag) is checked first.
// Then: ./config.yaml, ~/.config/netroster/config.yaml,
// /etc/netroster/config.yaml.
func DefaultSearchPaths() []string {
	paths := []string{"config.yaml"}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "netroster", "config.yaml"))
	}

	paths = append(paths, "/etc/netroster/config.yaml")
	return paths
}

// FindConfig locates a config file. If explicit is non-empty, it must exist.
// Otherwise, searches DefaultSearchPaths and returns the first that exists.
// Returns the path found, or an error if nothing was found.
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	for _, p := range DefaultSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("no config file found (searched: %v)", DefaultSearchPaths())
}

// Config holds all netroster configuration.
type Config struct {
	HomeAssistant HomeAssistantConfig `yaml:"homeassistant"`
	Roster        RosterConfig        `yaml:"roster"`
	API           APIConfig           `yaml:"api"`
	MQTT          MQTTConfig          `yaml:"mqtt"`
	Influx        InfluxConfig        `yaml:"influx"`
	Snapshot      SnapshotConfig      `yaml:"snapshot"`
	DataDir       string              `yaml:"data_dir"`
	LogLevel      string              `yaml:"log_level"`
}

// HomeAssistantConfig defines HA connection settings.
type HomeAssistantConfig struct {
	URL   string `yaml:"url"`
	Token string `yaml:"token"`
}

// RosterConfig defines the resolution pass settings.
type RosterConfig struct {
	// InstanceID scopes resolution to one configured integration
	// instance. Empty resolves across all instances.
	InstanceID string `yaml:"instance_id"`
	// Integration is "tplink_router", "tplink_deco" or "omada".
	Integration string `yaml:"integration"`
	// SpeedUnit is "Mbps" (default) or "MBps".
	SpeedUnit string `yaml:"speed_unit"`
	// RefreshSeconds is the serve-mode poll interval (default 30).
	RefreshSeconds int `yaml:"refresh_seconds"`
}

// APIConfig defines the HTTP API server settings.
type APIConfig struct {
	Address string `yaml:"address"` // Bind address (default: "" = all interfaces)
	Port    int    `yaml:"port"`
}

// MQTTConfig defines the optional MQTT republisher.
type MQTTConfig struct {
	Enabled         bool   `yaml:"enabled"`
	Broker          string `yaml:"broker"` // e.g. mqtt://host:1883
	Username        string `yaml:"username"`
	Password        string `yaml:"password"`
	TopicPrefix     string `yaml:"topic_prefix"`     // default "netroster"
	DeviceName      string `yaml:"device_name"`      // default "netroster"
	DiscoveryPrefix string `yaml:"discovery_prefix"` // default "homeassistant"
}

// InfluxConfig defines the optional InfluxDB export.
type InfluxConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
	Token   string `yaml:"token"`
	Org     string `yaml:"org"`
	Bucket  string `yaml:"bucket"`
}

// SnapshotConfig defines the local row-history store.
type SnapshotConfig struct {
	// Path is the SQLite database file. Empty disables history.
	Path string `yaml:"path"`
	// KeepPasses caps retained resolution passes (default 100).
	KeepPasses int `yaml:"keep_passes"`
}

// Load reads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Default returns a default configuration.
func Default() *Config {
	return &Config{
		Roster: RosterConfig{
			Integration:    "tplink_router",
			SpeedUnit:      "Mbps",
			RefreshSeconds: 30,
		},
		API: APIConfig{Port: 8098},
		MQTT: MQTTConfig{
			TopicPrefix:     "netroster",
			DeviceName:      "netroster",
			DiscoveryPrefix: "homeassistant",
		},
		Snapshot: SnapshotConfig{KeepPasses: 100},
		DataDir:  ".",
	}
}

// Validate checks cross-field constraints that YAML decoding cannot.
func (c *Config) Validate() error {
	switch c.Roster.Integration {
	case "tplink_router", "tplink_deco", "omada":
	default:
		return fmt.Errorf("unknown integration %q (valid: tplink_router, tplink_deco, omada)", c.Roster.Integration)
	}
	switch c.Roster.SpeedUnit {
	case "Mbps", "MBps":
	default:
		return fmt.Errorf("unknown speed_unit %q (valid: Mbps, MBps)", c.Roster.SpeedUnit)
	}
	if c.Roster.RefreshSeconds <= 0 {
		return fmt.Errorf("refresh_seconds must be positive, got %d", c.Roster.RefreshSeconds)
	}
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}
