// Package manager wires the switch registry and console sessions into the
// yap-switch-manager TUI, and holds its settings, theme and logging helpers.
package manager

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"yap-switch-manager/pkg/registry"
	"yap-switch-manager/pkg/session"
)

const (
	defaultSettingsFilename = "settings.yaml"

	// DefaultSwitchURL pre-fills the add form.
	DefaultSwitchURL = "http://192.168.2.1/"

	defaultWindowWidth  = 1200
	defaultWindowHeight = 800
	maxProbeTimeoutMS   = 10000

	// EnvSettingsPath points at an alternate settings.yaml.
	EnvSettingsPath = "YAP_SWITCH_MANAGER_SETTINGS"
	// EnvLogLevel overrides settings.log_level.
	EnvLogLevel = "YAP_SWITCH_MANAGER_LOG_LEVEL"
)

// Settings represents the optional YAML settings for yap-switch-manager.
//
// Example YAML:
//
//	default_url: http://192.168.2.1/
//	probe_timeout_ms: 1500
//	console:
//	  command: surf
//	  args: ["-t", "{title}", "{url}"]
//	window:
//	  width: 1200
//	  height: 800
//	log_level: info
//	theme: dark
type Settings struct {
	DefaultURL     string          `yaml:"default_url,omitempty"`
	ProbeTimeoutMS int             `yaml:"probe_timeout_ms,omitempty"`
	Console        ConsoleSettings `yaml:"console,omitempty"`
	Window         WindowSettings  `yaml:"window,omitempty"`
	LogLevel       string          `yaml:"log_level,omitempty"`
	Theme          string          `yaml:"theme,omitempty"`
}

// ConsoleSettings pins the console host. Args accept {url} {name} {title} {profile}.
type ConsoleSettings struct {
	Command string   `yaml:"command,omitempty"`
	Args    []string `yaml:"args,omitempty"`
}

// WindowSettings sizes console windows for hosts that take a geometry flag.
type WindowSettings struct {
	Width  int `yaml:"width,omitempty"`
	Height int `yaml:"height,omitempty"`
}

// ErrSettingsNotFound is returned when an explicitly requested settings file does not exist.
var ErrSettingsNotFound = errors.New("settings not found")

// DefaultSettings returns the settings used when no file is present.
func DefaultSettings() *Settings {
	s := &Settings{}
	s.applyDefaults()
	return s
}

// LoadSettings discovers and loads the YAML settings.
// Search order:
// 1. explicitPath
// 2. $YAP_SWITCH_MANAGER_SETTINGS
// 3. $XDG_CONFIG_HOME/yap-switch-manager/settings.yaml
// 4. ~/.config/yap-switch-manager/settings.yaml
//
// A missing explicit path is an error. If none of the implicit locations exist,
// defaults are returned with an empty path.
func LoadSettings(explicitPath string) (*Settings, string, error) {
	explicitPath = expandPath(strings.TrimSpace(explicitPath))
	for i, p := range SettingsPathCandidates(explicitPath) {
		p = expandPath(p)
		if p == "" {
			continue
		}
		data, err := os.ReadFile(p)
		if err != nil {
			if i == 0 && explicitPath != "" {
				if errors.Is(err, os.ErrNotExist) {
					return nil, p, fmt.Errorf("%w: %s", ErrSettingsNotFound, p)
				}
				return nil, p, fmt.Errorf("read settings %s: %w", p, err)
			}
			continue
		}
		var s Settings
		if err := yaml.Unmarshal(data, &s); err != nil {
			return nil, p, fmt.Errorf("parse yaml %s: %w", p, err)
		}
		s.applyDefaults()
		if err := s.Validate(); err != nil {
			return nil, p, fmt.Errorf("invalid settings %s: %w", p, err)
		}
		return &s, p, nil
	}
	return DefaultSettings(), "", nil
}

// SettingsPathCandidates returns possible settings file paths, in priority order.
func SettingsPathCandidates(explicitPath string) []string {
	var out []string
	if explicitPath != "" {
		out = append(out, explicitPath)
	}
	if env := os.Getenv(EnvSettingsPath); env != "" {
		out = append(out, env)
	}
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		out = append(out, filepath.Join(xdg, "yap-switch-manager", defaultSettingsFilename))
	}
	if home, _ := os.UserHomeDir(); home != "" {
		out = append(out, filepath.Join(home, ".config", "yap-switch-manager", defaultSettingsFilename))
	}
	return out
}

func (s *Settings) applyDefaults() {
	if strings.TrimSpace(s.DefaultURL) == "" {
		s.DefaultURL = DefaultSwitchURL
	}
	if s.ProbeTimeoutMS == 0 {
		s.ProbeTimeoutMS = int(session.DefaultProbeTimeout / time.Millisecond)
	}
	if s.Window.Width == 0 && s.Window.Height == 0 {
		s.Window.Width = defaultWindowWidth
		s.Window.Height = defaultWindowHeight
	}
	if s.LogLevel == "" {
		s.LogLevel = "info"
	}
	if s.Theme == "" {
		s.Theme = "dark"
	}
}

// Validate performs basic sanity checks on the settings.
//
// - default_url must be an http(s) URL
// - probe_timeout_ms must be within 1..10000
// - window sizes must be >= 0
// - console.args requires console.command
// - log_level must be one of: debug | info | warn | error
// - theme must be one of: dark | light | none
func (s *Settings) Validate() error {
	if _, err := registry.ValidateURL(s.DefaultURL); err != nil {
		return fmt.Errorf("default_url: %w", err)
	}
	if s.ProbeTimeoutMS < 1 || s.ProbeTimeoutMS > maxProbeTimeoutMS {
		return fmt.Errorf("probe_timeout_ms: must be within 1..%d, got %d", maxProbeTimeoutMS, s.ProbeTimeoutMS)
	}
	if s.Window.Width < 0 {
		return fmt.Errorf("window.width: must be >= 0")
	}
	if s.Window.Height < 0 {
		return fmt.Errorf("window.height: must be >= 0")
	}
	if strings.TrimSpace(s.Console.Command) == "" && len(s.Console.Args) > 0 {
		return fmt.Errorf("console.args: requires console.command")
	}
	for i, a := range s.Console.Args {
		if strings.TrimSpace(a) == "" {
			return fmt.Errorf("console.args[%d]: empty argument", i)
		}
	}
	if _, err := parseLogLevel(s.LogLevel); err != nil {
		return fmt.Errorf("log_level: %w", err)
	}
	switch strings.ToLower(strings.TrimSpace(s.Theme)) {
	case "dark", "light", "none":
	default:
		return fmt.Errorf("theme: invalid value %q (expected: dark|light|none)", s.Theme)
	}
	return nil
}

// ProbeTimeout returns probe_timeout_ms as a duration.
func (s *Settings) ProbeTimeout() time.Duration {
	return time.Duration(s.ProbeTimeoutMS) * time.Millisecond
}

// EffectiveLogLevel applies $YAP_SWITCH_MANAGER_LOG_LEVEL over log_level.
func (s *Settings) EffectiveLogLevel() string {
	if v := strings.TrimSpace(os.Getenv(EnvLogLevel)); v != "" {
		return v
	}
	return s.LogLevel
}

// HostSpecs returns console host candidates in resolution order:
// settings console, then $YAP_SWITCH_CONSOLE, then app-mode browsers.
func (s *Settings) HostSpecs() []session.HostSpec {
	var out []session.HostSpec
	if cmd := strings.TrimSpace(s.Console.Command); cmd != "" {
		out = append(out, session.HostSpec{Command: expandPath(cmd), Args: append([]string(nil), s.Console.Args...)})
	}
	if spec, ok := session.HostSpecFromEnv(); ok {
		out = append(out, spec)
	}
	return append(out, session.DefaultHostSpecs(s.Window.Width, s.Window.Height)...)
}

// expandPath expands leading "~" and environment variables in a path.
// If the input is empty, returns "".
func expandPath(p string) string {
	if p == "" {
		return ""
	}
	p = os.ExpandEnv(p)
	if strings.HasPrefix(p, "~") {
		home, _ := os.UserHomeDir()
		if home != "" {
			if p == "~" {
				p = home
			} else if strings.HasPrefix(p, "~/") {
				p = filepath.Join(home, p[2:])
			}
		}
	}
	return p
}
