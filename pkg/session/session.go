package session

import (
	"context"
	"fmt"
	"time"

	"yap-switch-manager/pkg/registry"
)

// ConsoleProcess is one launched console host, bound to the name and URL it
// was started with. It is never reused after it terminates.
type ConsoleProcess struct {
	Name       string
	URL        string
	PID        int
	Generation uint64
	StartedAt  time.Time

	key  string
	proc Process
	done chan struct{}
	err  error
}

// Done is closed once the console host has exited.
func (c *ConsoleProcess) Done() <-chan struct{} { return c.done }

// Exited reports whether the console host has terminated.
func (c *ConsoleProcess) Exited() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// Err returns the exit error. Only meaningful after Done is closed.
func (c *ConsoleProcess) Err() error {
	if !c.Exited() {
		return nil
	}
	return c.err
}

// Session is the in-memory activation state of one switch.
// All fields are guarded by the owning Manager's lock.
type Session struct {
	mgr *Manager
	key string // Manager map key; fixed at creation

	name  string
	url   string
	state State
	proc  *ConsoleProcess
}

func (s *Session) Name() string {
	s.mgr.mu.Lock()
	defer s.mgr.mu.Unlock()
	return s.name
}

func (s *Session) URL() string {
	s.mgr.mu.Lock()
	defer s.mgr.mu.Unlock()
	return s.url
}

func (s *Session) State() State {
	s.mgr.mu.Lock()
	defer s.mgr.mu.Unlock()
	return s.state
}

// Process returns the live console process, or nil when Idle or Launching.
func (s *Session) Process() *ConsoleProcess {
	s.mgr.mu.Lock()
	defer s.mgr.mu.Unlock()
	return s.proc
}

// SetName changes the display name used for the next console open.
func (s *Session) SetName(name string) {
	s.mgr.mu.Lock()
	defer s.mgr.mu.Unlock()
	s.name = name
}

// SetURL normalizes url (scheme and trailing slash only) and uses it for the
// next probe or console open.
func (s *Session) SetURL(url string) {
	s.mgr.mu.Lock()
	defer s.mgr.mu.Unlock()
	s.url = registry.NormalizeURL(url)
}

// Probe checks reachability on a background goroutine and calls done exactly
// once with the result, on that goroutine. timeout <= 0 uses the Manager default.
func (s *Session) Probe(timeout time.Duration, done func(reachable bool)) {
	if timeout <= 0 {
		timeout = s.mgr.probeTimeout
	}
	name, url := s.Name(), s.URL()
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		ok := s.mgr.prober.Probe(ctx, url)
		s.mgr.logger.Debug("probe result", "switch", name, "url", url, "reachable", ok)
		if done != nil {
			done(ok)
		}
	}()
}

// OpenEmbedded launches a console host for this switch unless one is already
// launching or running, in which case it is a no-op and started is false.
//
// A reachability probe is started at the same time as the launch; its result
// is only reported to onProbe and never gates or cancels the launch. A launch
// failure returns the Session to Idle and is returned as an error; there is no
// fallback to the external browser.
func (s *Session) OpenEmbedded(onProbe func(reachable bool)) (started bool, err error) {
	m := s.mgr

	m.mu.Lock()
	if s.state == Running && s.proc != nil && s.proc.Exited() {
		// Exit observed before its event was dispatched.
		m.clearLocked(s)
	}
	if s.state != Idle {
		state := s.state
		m.mu.Unlock()
		m.logger.Debug("console already active, open ignored", "switch", s.Name(), "state", state)
		return false, nil
	}
	s.state = Launching
	name, url := s.name, s.url
	m.mu.Unlock()

	s.Probe(0, onProbe)

	proc, err := m.launcher.Launch(name, url)

	m.mu.Lock()
	if err != nil {
		s.state = Idle
		m.mu.Unlock()
		m.logger.Error("console launch failed", "switch", name, "error", err)
		return false, fmt.Errorf("open console for %q: %w", name, err)
	}
	m.generation++
	cp := &ConsoleProcess{
		Name:       name,
		URL:        url,
		PID:        proc.Pid(),
		Generation: m.generation,
		StartedAt:  time.Now(),
		key:        s.key,
		proc:       proc,
		done:       make(chan struct{}),
	}
	s.proc = cp
	s.state = Running
	m.mu.Unlock()

	go m.watch(cp)
	return true, nil
}

// OpenExternal opens the switch URL in the default browser.
func (s *Session) OpenExternal() error {
	url := s.URL()
	if err := s.mgr.browser.Open(url); err != nil {
		s.mgr.logger.Warn("browser open failed", "switch", s.Name(), "url", url, "error", err)
		return err
	}
	return nil
}
