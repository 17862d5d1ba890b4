// Package registry persists named switch configurations for yap-switch-manager.
//
// Switches live in a single JSON file under the user's config dir:
//
//	~/.config/yap-switch-manager/switches.json
//
// On systems honoring XDG, $XDG_CONFIG_HOME is used instead of ~/.config.
// The file is a flat object keyed by display name:
//
//	{
//	  "Lab-1": { "name": "Lab-1", "url": "http://192.168.2.1/" }
//	}
//
// The file is re-read on every call and every mutation rewrites the whole
// mapping. Nothing is locked; the last writer wins.
package registry

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/log"
)

const (
	defaultConfigDirName        = "yap-switch-manager"
	defaultWindowsConfigDirName = "YaP-Switch-Manager"
	defaultRegistryFilename     = "switches.json"

	// EnvRegistryPath overrides the registry file location.
	EnvRegistryPath = "YAP_SWITCH_MANAGER_REGISTRY"
)

var (
	// ErrEmptyName is returned when saving a switch without a display name.
	ErrEmptyName = errors.New("switch name is required")
	// ErrUnknownSwitch is returned by Lookup for names that are not saved.
	ErrUnknownSwitch = errors.New("unknown switch")
)

// SwitchConfig is one stored switch. Name is always the registry key.
type SwitchConfig struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// Registry is the durable name -> SwitchConfig store.
type Registry struct {
	path   string
	logger *log.Logger
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger routes warnings about unreadable or malformed files to logger.
func WithLogger(logger *log.Logger) Option {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// DefaultConfigDir returns the directory path for this application's config.
// Precedence:
//  1. $XDG_CONFIG_HOME/yap-switch-manager
//  2. %APPDATA%\YaP-Switch-Manager (windows)
//  3. ~/.config/yap-switch-manager
func DefaultConfigDir() (string, error) {
	if xdg := strings.TrimSpace(os.Getenv("XDG_CONFIG_HOME")); xdg != "" {
		return filepath.Join(xdg, defaultConfigDirName), nil
	}
	if runtime.GOOS == "windows" {
		if appData := strings.TrimSpace(os.Getenv("APPDATA")); appData != "" {
			return filepath.Join(appData, defaultWindowsConfigDirName), nil
		}
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home dir: %w", err)
	}
	return filepath.Join(home, ".config", defaultConfigDirName), nil
}

// DefaultPath returns the registry file path, honoring $YAP_SWITCH_MANAGER_REGISTRY.
func DefaultPath() (string, error) {
	if env := strings.TrimSpace(os.Getenv(EnvRegistryPath)); env != "" {
		return env, nil
	}
	dir, err := DefaultConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, defaultRegistryFilename), nil
}

// Open returns a Registry backed by path. If path is empty, the default path is used.
// The file itself is not touched until the first read or write.
func Open(path string, opts ...Option) (*Registry, error) {
	if strings.TrimSpace(path) == "" {
		var err error
		path, err = DefaultPath()
		if err != nil {
			return nil, err
		}
	}
	r := &Registry{
		path:   path,
		logger: log.New(io.Discard),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Path returns the backing file path.
func (r *Registry) Path() string {
	return r.path
}

// LoadAll returns every saved switch. A missing, unreadable or malformed file
// yields an empty map; corruption never blocks creating new switches.
func (r *Registry) LoadAll() map[string]SwitchConfig {
	data, err := os.ReadFile(r.path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			r.logger.Warn("registry unreadable, treating as empty", "path", r.path, "error", err)
		}
		return map[string]SwitchConfig{}
	}
	switches, err := decode(data)
	if err != nil {
		r.logger.Warn("registry malformed, treating as empty", "path", r.path, "error", err)
		return map[string]SwitchConfig{}
	}
	return switches
}

// Get looks up a single switch by name.
func (r *Registry) Get(name string) (SwitchConfig, bool) {
	sw, ok := r.LoadAll()[name]
	return sw, ok
}

// Lookup is Get with an error for missing names.
func (r *Registry) Lookup(name string) (SwitchConfig, error) {
	sw, ok := r.Get(name)
	if !ok {
		return SwitchConfig{}, fmt.Errorf("%w: %q", ErrUnknownSwitch, name)
	}
	return sw, nil
}

// Names returns all saved switch names, sorted.
func (r *Registry) Names() []string {
	switches := r.LoadAll()
	names := make([]string, 0, len(switches))
	for name := range switches {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Save inserts or overwrites the switch stored under name and persists the
// full mapping. The URL is normalized first. Only I/O failures are returned.
func (r *Registry) Save(name, url string) error {
	if strings.TrimSpace(name) == "" {
		return ErrEmptyName
	}
	switches := r.LoadAll()
	switches[name] = SwitchConfig{Name: name, URL: NormalizeURL(url)}
	if err := r.write(switches); err != nil {
		return fmt.Errorf("save switch %q: %w", name, err)
	}
	r.logger.Debug("switch saved", "name", name, "count", len(switches))
	return nil
}

// Delete removes name and persists the mapping.
// Returns false (and leaves the file untouched) when name is not present.
func (r *Registry) Delete(name string) (bool, error) {
	switches := r.LoadAll()
	if _, ok := switches[name]; !ok {
		return false, nil
	}
	delete(switches, name)
	if err := r.write(switches); err != nil {
		return false, fmt.Errorf("delete switch %q: %w", name, err)
	}
	r.logger.Debug("switch deleted", "name", name, "count", len(switches))
	return true, nil
}

// decode accepts only a flat object of {name, url} objects.
func decode(data []byte) (map[string]SwitchConfig, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse registry: %w", err)
	}
	if raw == nil {
		// "null" unmarshals into a nil map without error.
		return nil, errors.New("parse registry: top-level value is not an object")
	}

	out := make(map[string]SwitchConfig, len(raw))
	for key, val := range raw {
		var entry map[string]json.RawMessage
		if err := json.Unmarshal(val, &entry); err != nil || entry == nil {
			return nil, fmt.Errorf("entry %q: not an object", key)
		}
		var sw SwitchConfig
		if err := unmarshalString(entry, "name", &sw.Name); err != nil {
			return nil, fmt.Errorf("entry %q: %w", key, err)
		}
		if err := unmarshalString(entry, "url", &sw.URL); err != nil {
			return nil, fmt.Errorf("entry %q: %w", key, err)
		}
		sw.Name = key
		out[key] = sw
	}
	return out, nil
}

func unmarshalString(entry map[string]json.RawMessage, field string, dst *string) error {
	v, ok := entry[field]
	if !ok {
		return fmt.Errorf("missing %q", field)
	}
	// null unmarshals into a string without error.
	if bytes.Equal(bytes.TrimSpace(v), []byte("null")) {
		return fmt.Errorf("field %q is null", field)
	}
	if err := json.Unmarshal(v, dst); err != nil {
		return fmt.Errorf("field %q is not a string", field)
	}
	return nil
}

// write replaces the registry file atomically.
// The parent directory is created with 0700 permissions if missing.
func (r *Registry) write(switches map[string]SwitchConfig) error {
	dir := filepath.Dir(r.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create registry dir %s: %w", dir, err)
	}

	// encoding/json sorts map keys, so the file is stable across writes.
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(switches); err != nil {
		return fmt.Errorf("encode registry: %w", err)
	}

	tmp := r.path + fmt.Sprintf(".tmp-%d-%d", os.Getpid(), time.Now().UnixNano())
	if err := os.WriteFile(tmp, buf.Bytes(), 0o600); err != nil {
		return fmt.Errorf("write temp registry %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, r.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("atomic rename to %s: %w", r.path, err)
	}
	return nil
}
