// Package config loads the YAML configuration file.
//
// Every field is optional. Load starts from Default and overlays whatever the
// file sets, so a partial file only changes the keys it names. Durations are
// written as Go duration strings ("1500ms", "2s").
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/ayusman/camgestures/internal/capture"
	"github.com/ayusman/camgestures/internal/embed"
	"github.com/ayusman/camgestures/internal/gesture"
	"github.com/ayusman/camgestures/internal/lifecycle"
)

// Config is the complete application configuration.
type Config struct {
	// Gestures lists explicit gestures. When empty, gestures are inferred from
	// the event names subscribers and action bindings are interested in.
	Gestures  []gesture.Spec   `yaml:"gestures"`
	Defaults  gesture.Options  `yaml:"defaults"`
	Lifecycle lifecycle.Config `yaml:"lifecycle"`
	Camera    capture.Config   `yaml:"camera"`
	Model     embed.Config     `yaml:"model"`
	Server    ServerConfig     `yaml:"server"`
	Store     StoreConfig      `yaml:"store"`
	Plugins   PluginConfig     `yaml:"plugins"`
	Log       LogConfig        `yaml:"log"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Address string `yaml:"address"`
	// StaticDir, when set, is served at the root path.
	StaticDir string `yaml:"static_dir"`
}

// StoreConfig configures persistence.
type StoreConfig struct {
	Path string `yaml:"path"`
	// Resume loads the most recent finished session instead of training again
	// when its gestures match the current ones.
	Resume bool `yaml:"resume"`
}

// PluginConfig configures plugin discovery and execution.
type PluginConfig struct {
	Dir     string        `yaml:"dir"`
	Timeout time.Duration `yaml:"timeout"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Defaults:  gesture.DefaultOptions(),
		Lifecycle: lifecycle.DefaultConfig(),
		Camera:    capture.DefaultConfig(),
		Model:     embed.DefaultConfig(),
		Server:    ServerConfig{Address: "127.0.0.1:8080"},
		Store:     StoreConfig{Path: "camgestures.db", Resume: true},
		Plugins:   PluginConfig{Dir: "plugins", Timeout: 5 * time.Second},
		Log:       LogConfig{Level: "info", Pretty: true},
	}
}

// Load reads and parses the YAML file at path on top of Default.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	cfg, err := LoadFromBytes(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	return cfg, nil
}

// LoadFromBytes parses YAML configuration on top of Default.
func LoadFromBytes(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid YAML: %w", err)
	}
	return cfg, nil
}

// Validate checks ranges and that explicit gestures resolve.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}

	if c.Defaults.RequiredAccuracy < 0 || c.Defaults.RequiredAccuracy > 100 {
		return fmt.Errorf("defaults.required_accuracy: %w", gesture.ErrAccuracyRange)
	}
	for name, d := range map[string]time.Duration{
		"defaults.training_delay":     c.Defaults.TrainingDelay,
		"defaults.training_time":      c.Defaults.TrainingTime,
		"defaults.verification_delay": c.Defaults.VerificationDelay,
		"defaults.verification_time":  c.Defaults.VerificationTime,
		"lifecycle.throttle_interval": c.Lifecycle.ThrottleInterval,
	} {
		if d < 0 {
			return fmt.Errorf("%s must not be negative", name)
		}
	}
	if c.Lifecycle.TickInterval <= 0 {
		return errors.New("lifecycle.tick_interval must be positive")
	}
	if c.Lifecycle.TopK <= 0 {
		return errors.New("lifecycle.top_k must be positive")
	}
	if c.Lifecycle.Verify && c.Lifecycle.Diagnostic {
		return errors.New("lifecycle.verify and lifecycle.diagnostic are mutually exclusive")
	}
	if c.Camera.FPS <= 0 {
		return errors.New("camera.fps must be positive")
	}
	if c.Model.InputSize <= 0 {
		return errors.New("model.input_size must be positive")
	}
	if c.Server.Address == "" {
		return errors.New("server.address is required")
	}
	if c.Store.Path == "" {
		return errors.New("store.path is required")
	}
	if c.Plugins.Timeout <= 0 {
		return errors.New("plugins.timeout must be positive")
	}
	if _, err := zerolog.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}

	if _, err := gesture.Resolve(c.Gestures, c.Defaults); err != nil {
		return err
	}

	return nil
}

// ResolveGestures returns the explicit gestures with defaults applied, or
// nil when none are configured.
func (c *Config) ResolveGestures() ([]gesture.Definition, error) {
	if len(c.Gestures) == 0 {
		return nil, nil
	}
	return gesture.Resolve(c.Gestures, c.Defaults)
}
