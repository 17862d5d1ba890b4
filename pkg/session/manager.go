// Package session tracks one Session per activated switch and owns the
// console-host process lifecycle for each of them.
//
// Background work (probes, process watchers) never mutates Session state on
// its own. Probes report through one-shot callbacks; watchers post Events that
// the interactive layer applies with Manager.Dispatch.
package session

import (
	"io"
	"sort"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"yap-switch-manager/pkg/registry"
)

const eventBuffer = 64

// Options wires a Manager to its collaborators. Nil fields get defaults.
type Options struct {
	Prober       Prober
	Launcher     Launcher
	Browser      BrowserOpener
	ProbeTimeout time.Duration
	Logger       *log.Logger
}

// Manager maps switch names to Sessions.
type Manager struct {
	mu         sync.Mutex
	sessions   map[string]*Session
	generation uint64

	prober       Prober
	launcher     Launcher
	browser      BrowserOpener
	probeTimeout time.Duration
	logger       *log.Logger

	events chan Event
}

func NewManager(opts Options) *Manager {
	m := &Manager{
		sessions:     make(map[string]*Session),
		prober:       opts.Prober,
		launcher:     opts.Launcher,
		browser:      opts.Browser,
		probeTimeout: opts.ProbeTimeout,
		logger:       opts.Logger,
		events:       make(chan Event, eventBuffer),
	}
	if m.logger == nil {
		m.logger = log.New(io.Discard)
	}
	if m.probeTimeout <= 0 {
		m.probeTimeout = DefaultProbeTimeout
	}
	if m.prober == nil {
		m.prober = NewHTTPProber(WithProbeTimeout(m.probeTimeout), WithProbeLogger(m.logger))
	}
	if m.launcher == nil {
		m.launcher = NewExecLauncher(DefaultHostSpecs(1200, 800), WithLauncherLogger(m.logger))
	}
	if m.browser == nil {
		m.browser = SystemBrowser{}
	}
	return m
}

// GetOrCreate returns the Session for name, creating it on first use.
// An existing Session has its name and URL updated in place.
func (m *Manager) GetOrCreate(name, url string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	url = registry.NormalizeURL(url)
	if s, ok := m.sessions[name]; ok {
		s.name = name
		s.url = url
		return s
	}
	s := &Session{mgr: m, key: name, name: name, url: url, state: Idle}
	m.sessions[name] = s
	m.logger.Debug("session created", "switch", name, "url", url)
	return s
}

// Get returns the Session for name if one was activated.
func (m *Manager) Get(name string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[name]
	return s, ok
}

// Remove forgets the Session for name. A live console host keeps running;
// its later exit event is ignored.
func (m *Manager) Remove(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[name]
	if !ok {
		return
	}
	delete(m.sessions, name)
	if s.proc != nil {
		m.logger.Info("session removed with console still open", "switch", name, "pid", s.proc.PID)
	}
}

// Names returns the activated switch names, sorted.
func (m *Manager) Names() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.sessions))
	for n := range m.sessions {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Live counts Sessions that are launching or running a console host.
func (m *Manager) Live() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, s := range m.sessions {
		if s.state != Idle {
			n++
		}
	}
	return n
}

// Events delivers background notifications. Drain it from the interactive
// loop and pass each Event to Dispatch.
func (m *Manager) Events() <-chan Event {
	return m.events
}

// Dispatch applies ev to the owning Session. It reports whether any state
// changed; events for removed Sessions or superseded processes are ignored.
func (m *Manager) Dispatch(ev Event) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch ev.Kind {
	case ConsoleExited:
		s, ok := m.sessions[ev.Name]
		if !ok || s.proc == nil || s.proc.Generation != ev.Generation {
			m.logger.Debug("stale console exit ignored", "switch", ev.Name, "pid", ev.PID)
			return false
		}
		m.clearLocked(s)
		return true
	}
	return false
}

func (m *Manager) clearLocked(s *Session) {
	s.proc = nil
	s.state = Idle
}

// watch blocks until the console host exits, then posts ConsoleExited.
func (m *Manager) watch(cp *ConsoleProcess) {
	err := cp.proc.Wait()
	cp.err = err
	close(cp.done)

	if err != nil {
		m.logger.Warn("console host exited with error", "switch", cp.Name, "pid", cp.PID, "error", err)
	} else {
		m.logger.Info("console host exited", "switch", cp.Name, "pid", cp.PID)
	}

	ev := Event{
		Kind:       ConsoleExited,
		Name:       cp.key,
		PID:        cp.PID,
		Generation: cp.Generation,
		Err:        err,
		At:         time.Now(),
	}
	select {
	case m.events <- ev:
	default:
		// OpenEmbedded reaps exited processes inline, so a dropped event
		// only delays the Idle transition until the next open.
		m.logger.Warn("event queue full, console exit not delivered", "switch", cp.Name)
	}
}
