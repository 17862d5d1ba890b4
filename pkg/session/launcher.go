package session

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
)

// launcher.go
//
// Console-host launching.
//
// A console host is any program that renders a URL in its own window and exits
// when that window is closed. The host receives everything it needs on its
// command line; after start the only signal we observe is its exit.
//
// Host resolution walks an ordered candidate list and uses the first command
// that resolves on PATH (or is an existing absolute path). Candidates come from
// settings, $YAP_SWITCH_CONSOLE, and finally app-mode browsers.
//
// Args support placeholders:
//   {url}     console URL
//   {name}    switch display name
//   {title}   window title ("YaP Switch Manager - <name>")
//   {profile} per-switch scratch profile dir (keeps app-mode browsers from
//             handing the window to an already-running instance and exiting)
//
// If no arg mentions {url}, the URL and name are appended, so a bare command
// is invoked as `<host> <url> <name>`.

// EnvConsoleHost names a console host command line, split on whitespace.
const EnvConsoleHost = "YAP_SWITCH_CONSOLE"

// WindowTitlePrefix prefixes every console window title.
const WindowTitlePrefix = "YaP Switch Manager"

const stderrTailLimit = 4096

// ErrNoConsoleHost is returned when no candidate console host can be resolved.
var ErrNoConsoleHost = errors.New("no console host available")

// Process is a launched console host.
type Process interface {
	Pid() int
	// Wait blocks until the process exits.
	Wait() error
}

// Launcher starts a console host for one switch.
type Launcher interface {
	Launch(name, url string) (Process, error)
}

// LauncherFunc adapts a function to Launcher.
type LauncherFunc func(name, url string) (Process, error)

func (f LauncherFunc) Launch(name, url string) (Process, error) { return f(name, url) }

// HostSpec is one console-host candidate.
type HostSpec struct {
	Command string
	Args    []string
}

func (h HostSpec) String() string {
	return strings.TrimSpace(h.Command + " " + strings.Join(h.Args, " "))
}

// DefaultHostSpecs returns the built-in browser candidates: app-mode
// Chromium-family browsers sized to width x height, then Firefox in its own
// instance. Firefox takes no window size.
func DefaultHostSpecs(width, height int) []HostSpec {
	args := []string{"--app={url}", "--user-data-dir={profile}", "--no-first-run"}
	if width > 0 && height > 0 {
		args = append(args, fmt.Sprintf("--window-size=%d,%d", width, height))
	}
	names := []string{"chromium", "chromium-browser", "google-chrome", "google-chrome-stable", "microsoft-edge", "brave-browser"}
	specs := make([]HostSpec, 0, len(names)+1)
	for _, n := range names {
		specs = append(specs, HostSpec{Command: n, Args: append([]string(nil), args...)})
	}
	// A dedicated profile keeps --new-instance from handing off to a running
	// Firefox and exiting early.
	specs = append(specs, HostSpec{
		Command: "firefox",
		Args:    []string{"--new-instance", "--profile", "{profile}", "{url}"},
	})
	return specs
}

// HostSpecFromEnv parses $YAP_SWITCH_CONSOLE. ok is false when unset.
func HostSpecFromEnv() (HostSpec, bool) {
	fields := strings.Fields(os.Getenv(EnvConsoleHost))
	if len(fields) == 0 {
		return HostSpec{}, false
	}
	return HostSpec{Command: fields[0], Args: fields[1:]}, true
}

// WindowTitle returns the console window title for a switch.
func WindowTitle(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		name = "Switch"
	}
	return WindowTitlePrefix + " - " + name
}

// ExpandArgs substitutes placeholders for a launch. profile may be empty.
func ExpandArgs(args []string, name, url, profile string) []string {
	r := strings.NewReplacer(
		"{url}", url,
		"{name}", name,
		"{title}", WindowTitle(name),
		"{profile}", profile,
	)
	out := make([]string, 0, len(args)+2)
	mentionsURL := false
	for _, a := range args {
		if strings.Contains(a, "{url}") {
			mentionsURL = true
		}
		out = append(out, r.Replace(a))
	}
	if !mentionsURL {
		out = append(out, url, name)
	}
	return out
}

// ExecLauncher starts console hosts as child processes.
type ExecLauncher struct {
	specs      []HostSpec
	lookPath   func(string) (string, error)
	profileDir string
	logger     *log.Logger
}

// LauncherOption configures an ExecLauncher.
type LauncherOption func(*ExecLauncher)

// WithProfileDir sets the base directory for {profile}.
func WithProfileDir(dir string) LauncherOption {
	return func(l *ExecLauncher) { l.profileDir = dir }
}

// WithLookPath replaces exec.LookPath for host resolution.
func WithLookPath(fn func(string) (string, error)) LauncherOption {
	return func(l *ExecLauncher) {
		if fn != nil {
			l.lookPath = fn
		}
	}
}

// WithLauncherLogger sets the logger used for launch diagnostics.
func WithLauncherLogger(logger *log.Logger) LauncherOption {
	return func(l *ExecLauncher) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// NewExecLauncher returns a launcher trying specs in order. Empty commands are skipped.
func NewExecLauncher(specs []HostSpec, opts ...LauncherOption) *ExecLauncher {
	l := &ExecLauncher{
		lookPath: exec.LookPath,
		logger:   log.New(io.Discard),
	}
	for _, s := range specs {
		if strings.TrimSpace(s.Command) != "" {
			l.specs = append(l.specs, s)
		}
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Candidates returns the configured host specs in resolution order.
func (l *ExecLauncher) Candidates() []HostSpec {
	return append([]HostSpec(nil), l.specs...)
}

// Resolve returns the first candidate whose command can be found, plus its path.
func (l *ExecLauncher) Resolve() (HostSpec, string, error) {
	for _, s := range l.specs {
		path, err := l.lookPath(s.Command)
		if err != nil {
			l.logger.Debug("console host candidate unavailable", "command", s.Command, "error", err)
			continue
		}
		return s, path, nil
	}
	return HostSpec{}, "", fmt.Errorf("%w (tried %d candidates; set %s or console.command in settings)", ErrNoConsoleHost, len(l.specs), EnvConsoleHost)
}

// Launch resolves a host and starts it for (name, url).
func (l *ExecLauncher) Launch(name, url string) (Process, error) {
	spec, path, err := l.Resolve()
	if err != nil {
		return nil, err
	}

	profile := l.profilePath(spec, name)
	if profile != "" {
		if err := os.MkdirAll(profile, 0o700); err != nil {
			return nil, fmt.Errorf("create console profile %s: %w", profile, err)
		}
	}

	args := ExpandArgs(spec.Args, name, url, profile)
	cmd := exec.Command(path, args...)
	cmd.Stdin = nil
	cmd.Stdout = nil
	stderr := &tailBuffer{limit: stderrTailLimit}
	cmd.Stderr = stderr
	cmd.SysProcAttr = detachedProcAttr()

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start console host %s: %w", spec.Command, err)
	}
	l.logger.Info("console host started", "switch", name, "command", spec.Command, "pid", cmd.Process.Pid)
	return &execProcess{cmd: cmd, command: spec.Command, stderr: stderr}, nil
}

func (l *ExecLauncher) profilePath(spec HostSpec, name string) string {
	needed := false
	for _, a := range spec.Args {
		if strings.Contains(a, "{profile}") {
			needed = true
			break
		}
	}
	if !needed {
		return ""
	}
	base := l.profileDir
	if base == "" {
		base = filepath.Join(os.TempDir(), "yap-switch-manager", "consoles")
	}
	return filepath.Join(base, sanitizeName(name))
}

type execProcess struct {
	cmd     *exec.Cmd
	command string
	stderr  *tailBuffer
}

func (p *execProcess) Pid() int {
	if p.cmd.Process == nil {
		return 0
	}
	return p.cmd.Process.Pid
}

func (p *execProcess) Wait() error {
	err := p.cmd.Wait()
	if err == nil {
		return nil
	}
	if msg := strings.TrimSpace(p.stderr.String()); msg != "" {
		return fmt.Errorf("console host %s: %w (stderr: %s)", p.command, err, msg)
	}
	return fmt.Errorf("console host %s: %w", p.command, err)
}

// tailBuffer keeps the last limit bytes written to it.
type tailBuffer struct {
	mu    sync.Mutex
	buf   bytes.Buffer
	limit int
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	n, _ := t.buf.Write(p)
	if over := t.buf.Len() - t.limit; over > 0 {
		t.buf.Next(over)
	}
	return n, nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.buf.String()
}

// sanitizeName maps a display name to a filesystem-safe directory name.
func sanitizeName(name string) string {
	name = strings.TrimSpace(name)
	replacer := strings.NewReplacer(
		"/", "_",
		"\\", "_",
		":", "_",
		"*", "_",
		"?", "_",
		"\"", "_",
		"<", "_",
		">", "_",
		"|", "_",
		" ", "_",
		"\t", "_",
	)
	name = replacer.Replace(name)
	for strings.Contains(name, "__") {
		name = strings.ReplaceAll(name, "__", "_")
	}
	name = strings.Trim(name, "._-")
	if name == "" {
		return "switch"
	}
	return name
}
