package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMissingFileKeepsDefaults(t *testing.T) {
	m := NewManagerAt(filepath.Join(t.TempDir(), "config.json"))
	if err := m.Load(); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	cfg := m.Get()
	if cfg.Serial.Baud != DefaultBaud {
		t.Errorf("Baud = %d, want %d", cfg.Serial.Baud, DefaultBaud)
	}
	if len(cfg.Input.Blocked) != 2 || cfg.Input.Blocked[0] != "left" {
		t.Errorf("Blocked = %v", cfg.Input.Blocked)
	}
	if cfg.API.Enabled || cfg.API.Addr != DefaultAPIAddr {
		t.Errorf("API = %+v", cfg.API)
	}
}

func TestUpdateThenReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	m := NewManagerAt(path)

	changed := 0
	m.RegisterChangeCallback(func() { changed++ })
	m.Update(func(c *Config) {
		c.Serial.Port = "COM7"
		c.Input.Blocked = []string{"wheel"}
		c.Integrity.IntervalMs = 5000
	})
	if changed != 1 {
		t.Errorf("change callback ran %d times, want 1", changed)
	}
	if got := m.Get().Integrity.IntervalMs; got != MaxIntervalMs {
		t.Errorf("IntervalMs = %d, want clamp to %d", got, MaxIntervalMs)
	}

	data, err := json.Marshal(m.Get())
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		t.Fatal(err)
	}

	other := NewManagerAt(path)
	if err := other.Load(); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	cfg := other.Get()
	if cfg.Serial.Port != "COM7" || len(cfg.Input.Blocked) != 1 || cfg.Input.Blocked[0] != "wheel" {
		t.Errorf("loaded config = %+v", cfg)
	}
}

func TestLoadPartialFileFillsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(`{"serial":{"port":"COM4","baud":0}}`), 0600); err != nil {
		t.Fatal(err)
	}
	m := NewManagerAt(path)
	if err := m.Load(); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	cfg := m.Get()
	if cfg.Serial.Port != "COM4" || cfg.Serial.Baud != DefaultBaud {
		t.Errorf("Serial = %+v", cfg.Serial)
	}
	if cfg.Input.EscapeKey != "Esc" {
		t.Errorf("EscapeKey = %q", cfg.Input.EscapeKey)
	}
}

func TestLoadRejectsBadJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(`{"serial":`), 0600); err != nil {
		t.Fatal(err)
	}
	if err := NewManagerAt(path).Load(); err == nil {
		t.Error("expected parse error")
	}
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"MF_PORT":      "COM9",
		"MF_BAUD":      "115200",
		"MF_BLOCKED":   "left, wheel,,",
		"MF_LOG_LEVEL": "debug",
	}
	cfg := DefaultConfig()
	if err := ApplyEnv(cfg, func(k string) string { return env[k] }); err != nil {
		t.Fatalf("ApplyEnv failed: %v", err)
	}
	if cfg.Serial.Port != "COM9" || cfg.Serial.Baud != 115200 || cfg.LogLevel != "debug" {
		t.Errorf("cfg = %+v", cfg)
	}
	if len(cfg.Input.Blocked) != 2 || cfg.Input.Blocked[1] != "wheel" {
		t.Errorf("Blocked = %v", cfg.Input.Blocked)
	}

	bad := DefaultConfig()
	if err := ApplyEnv(bad, func(k string) string {
		if k == "MF_BAUD" {
			return "fast"
		}
		return ""
	}); err == nil {
		t.Error("expected error for bad MF_BAUD")
	}
}

func TestApplyEnvBlockedNone(t *testing.T) {
	for _, v := range []string{"none", " NONE "} {
		m := NewManagerAt(filepath.Join(t.TempDir(), "config.json"))
		var err error
		m.Update(func(c *Config) {
			err = ApplyEnv(c, func(k string) string {
				if k == "MF_BLOCKED" {
					return v
				}
				return ""
			})
		})
		if err != nil {
			t.Fatalf("ApplyEnv(%q) failed: %v", v, err)
		}
		blocked := m.Get().Input.Blocked
		if blocked == nil || len(blocked) != 0 {
			t.Errorf("MF_BLOCKED=%q: Blocked = %#v, want empty", v, blocked)
		}
	}

	// Unset leaves the default alone.
	cfg := DefaultConfig()
	if err := ApplyEnv(cfg, func(string) string { return "" }); err != nil {
		t.Fatal(err)
	}
	if len(cfg.Input.Blocked) != 2 {
		t.Errorf("Blocked = %v, want defaults", cfg.Input.Blocked)
	}
}
