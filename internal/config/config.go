// Package config loads cdpctl settings from an optional TOML file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Config holds cdpctl settings. Precedence is flags over file over
// defaults; the merge happens in the CLI layer.
type Config struct {
	Endpoint string        // websocket endpoint to attach to
	Timeout  time.Duration // per-command deadline
	Browser  string        // browser binary override
	Headless bool
	Port     int // DevTools port for launched browsers

	ProxyListen   string
	ProxyUpstream string
	ProxyUsername string
	ProxyPassword string
}

// config.toml key mapping. Durations are strings ("30s", "2m").
type fileConfig struct {
	Endpoint      string `toml:"endpoint"`
	Timeout       string `toml:"timeout"`
	Browser       string `toml:"browser"`
	Headless      bool   `toml:"headless"`
	Port          int    `toml:"port"`
	ProxyListen   string `toml:"proxy_listen"`
	ProxyUpstream string `toml:"proxy_upstream"`
	ProxyUsername string `toml:"proxy_username"`
	ProxyPassword string `toml:"proxy_password"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		Timeout: 30 * time.Second,
		Port:    9222,
	}
}

// DefaultPath returns $XDG_CONFIG_HOME/cdpctl/config.toml, falling back
// to ~/.config/cdpctl/config.toml.
func DefaultPath() string {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, "cdpctl", "config.toml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "cdpctl", "config.toml")
}

// Load reads the TOML file at path over the defaults. The file must
// exist; use LoadDefault for the optional well-known location.
func Load(path string) (Config, error) {
	cfg := Default()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}

	if meta.IsDefined("endpoint") {
		cfg.Endpoint = strings.TrimSpace(raw.Endpoint)
	}
	if meta.IsDefined("timeout") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.Timeout))
		if err != nil {
			return Config{}, fmt.Errorf("load config: parse timeout: %w", err)
		}
		if d <= 0 {
			return Config{}, fmt.Errorf("load config: timeout must be positive")
		}
		cfg.Timeout = d
	}
	if meta.IsDefined("browser") {
		cfg.Browser = strings.TrimSpace(raw.Browser)
	}
	if meta.IsDefined("headless") {
		cfg.Headless = raw.Headless
	}
	if meta.IsDefined("port") {
		if raw.Port < 0 || raw.Port > 65535 {
			return Config{}, fmt.Errorf("load config: port %d out of range", raw.Port)
		}
		cfg.Port = raw.Port
	}
	if meta.IsDefined("proxy_listen") {
		cfg.ProxyListen = strings.TrimSpace(raw.ProxyListen)
	}
	if meta.IsDefined("proxy_upstream") {
		cfg.ProxyUpstream = strings.TrimSpace(raw.ProxyUpstream)
	}
	if meta.IsDefined("proxy_username") {
		cfg.ProxyUsername = raw.ProxyUsername
	}
	if meta.IsDefined("proxy_password") {
		cfg.ProxyPassword = raw.ProxyPassword
	}

	return cfg, nil
}

// LoadDefault loads the well-known config file when it exists and
// returns the defaults when it does not.
func LoadDefault() (Config, error) {
	path := DefaultPath()
	if path == "" {
		return Default(), nil
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return Config{}, fmt.Errorf("load config: %w", err)
	}
	return Load(path)
}
