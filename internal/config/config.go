// Package config provides configuration management for the mouse forwarder.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strconv"
	"strings"
	"sync"

	log "github.com/sirupsen/logrus"
)

// Config represents the application configuration
type Config struct {
	// Serial contains the board link settings
	Serial SerialConfig `json:"serial"`

	// Input contains capture and blocking settings
	Input InputConfig `json:"input"`

	// Auth contains the login settings
	Auth AuthConfig `json:"auth"`

	// Integrity contains tamper detector settings
	Integrity IntegrityConfig `json:"integrity"`

	// API contains the local status API settings
	API APIConfig `json:"api"`

	// LogLevel is a logrus level name ("info", "debug", ...)
	LogLevel string `json:"log_level"`
}

// SerialConfig holds the board link settings.
type SerialConfig struct {
	// Port is the serial port name (e.g. "COM3"); empty means pick at runtime
	Port string `json:"port"`

	// Baud is the line rate; the firmware expects 1000000
	Baud int `json:"baud"`

	// Board is the board key ("due" or "leonardo")
	Board string `json:"board,omitempty"`

	// AutoConnect opens Port on startup
	AutoConnect bool `json:"auto_connect"`
}

// InputConfig holds capture and blocking settings.
type InputConfig struct {
	// Blocked lists the channels swallowed while forwarding
	Blocked []string `json:"blocked"`

	// EscapeKey names the key that stops forwarding (e.g. "Esc", "F12")
	EscapeKey string `json:"escape_key"`
}

// AuthConfig holds the login settings.
type AuthConfig struct {
	// Username is the account checked at login
	Username string `json:"username"`

	// PasswordHash is an argon2id PHC string for Username
	PasswordHash string `json:"password_hash,omitempty"`
}

// IntegrityConfig holds tamper detector settings.
type IntegrityConfig struct {
	// IntervalMs is the time between checks, clamped to 1000-1500
	IntervalMs int `json:"interval_ms"`
}

// APIConfig holds the local status API settings.
type APIConfig struct {
	// Enabled starts the status API
	Enabled bool `json:"enabled"`

	// Addr is the listen address; loopback only
	Addr string `json:"addr"`

	// Token is an optional bearer token for API requests
	Token string `json:"token,omitempty"`
}

const (
	DefaultBaud       = 1000000
	DefaultAPIAddr    = "127.0.0.1:18090"
	DefaultIntervalMs = 1000
	MaxIntervalMs     = 1500

	// BlockedNone in MF_BLOCKED clears the blocked set.
	BlockedNone = "none"
)

// DefaultConfig returns a new Config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Serial: SerialConfig{
			Baud:  DefaultBaud,
			Board: "leonardo",
		},
		Input: InputConfig{
			Blocked:   []string{"left", "right"},
			EscapeKey: "Esc",
		},
		Integrity: IntegrityConfig{
			IntervalMs: DefaultIntervalMs,
		},
		API: APIConfig{
			Addr: DefaultAPIAddr,
		},
		LogLevel: "info",
	}
}

// Normalize fills zero values with defaults and clamps ranges.
func (c *Config) Normalize() {
	if c.Serial.Baud <= 0 {
		c.Serial.Baud = DefaultBaud
	}
	if c.Input.EscapeKey == "" {
		c.Input.EscapeKey = "Esc"
	}
	if c.Integrity.IntervalMs < DefaultIntervalMs {
		c.Integrity.IntervalMs = DefaultIntervalMs
	}
	if c.Integrity.IntervalMs > MaxIntervalMs {
		c.Integrity.IntervalMs = MaxIntervalMs
	}
	if c.API.Addr == "" {
		c.API.Addr = DefaultAPIAddr
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

// ApplyEnv overrides fields from MF_* variables.
func ApplyEnv(c *Config, getenv func(string) string) error {
	if v := getenv("MF_PORT"); v != "" {
		c.Serial.Port = v
	}
	if v := getenv("MF_BAUD"); v != "" {
		baud, err := strconv.Atoi(v)
		if err != nil || baud <= 0 {
			return fmt.Errorf("invalid MF_BAUD %q", v)
		}
		c.Serial.Baud = baud
	}
	if v := getenv("MF_BLOCKED"); strings.EqualFold(strings.TrimSpace(v), BlockedNone) {
		c.Input.Blocked = []string{}
	} else if v != "" {
		var blocked []string
		for _, name := range strings.Split(v, ",") {
			if name = strings.TrimSpace(name); name != "" {
				blocked = append(blocked, name)
			}
		}
		c.Input.Blocked = blocked
	}
	if v := getenv("MF_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	return nil
}

// Manager loads the configuration file and holds runtime overrides
type Manager struct {
	mu         sync.Mutex
	configPath string
	config     *Config
	onChanged  func()
}

// NewManager creates a configuration manager for the per-user config file
func NewManager() (*Manager, error) {
	configPath, err := getConfigPath()
	if err != nil {
		return nil, err
	}
	return NewManagerAt(configPath), nil
}

// NewManagerAt creates a configuration manager for an explicit file path
func NewManagerAt(path string) *Manager {
	return &Manager{
		configPath: path,
		config:     DefaultConfig(),
	}
}

// getConfigPath returns the path to the configuration file
func getConfigPath() (string, error) {
	var configDir string

	switch runtime.GOOS {
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", err
			}
			appData = filepath.Join(home, "AppData", "Roaming")
		}
		configDir = filepath.Join(appData, "mousefwd")
	default:
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		configDir = filepath.Join(home, ".config", "mousefwd")
	}

	return filepath.Join(configDir, "config.json"), nil
}

// Load reads the configuration from disk
func (m *Manager) Load() error {
	m.mu.Lock()

	data, err := os.ReadFile(m.configPath)
	if os.IsNotExist(err) {
		// No config file, use defaults
		m.mu.Unlock()
		return nil
	}
	if err != nil {
		m.mu.Unlock()
		return fmt.Errorf("read config: %w", err)
	}

	cfg := DefaultConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		m.mu.Unlock()
		return fmt.Errorf("parse config %s: %w", m.configPath, err)
	}
	cfg.Normalize()
	m.config = cfg
	onChanged := m.onChanged
	m.mu.Unlock()

	log.Debugf("Config: Loaded %s", m.configPath)

	if onChanged != nil {
		onChanged()
	}
	return nil
}

// Get returns a copy of the current configuration
func (m *Manager) Get() Config {
	m.mu.Lock()
	defer m.mu.Unlock()
	cfg := *m.config
	cfg.Input.Blocked = slices.Clone(m.config.Input.Blocked)
	return cfg
}

// Update applies fn to the configuration and notifies the change callback
func (m *Manager) Update(fn func(*Config)) {
	m.mu.Lock()
	fn(m.config)
	m.config.Normalize()
	onChanged := m.onChanged
	m.mu.Unlock()

	if onChanged != nil {
		onChanged()
	}
}

// RegisterChangeCallback registers a function to be called when config changes
func (m *Manager) RegisterChangeCallback(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onChanged = fn
}
