package session

import (
	"fmt"
	"os/exec"
	"runtime"
)

// BrowserOpener hands a URL to the user's default browser.
type BrowserOpener interface {
	Open(url string) error
}

// BrowserFunc adapts a function to BrowserOpener.
type BrowserFunc func(url string) error

func (f BrowserFunc) Open(url string) error { return f(url) }

// SystemBrowser opens URLs with the host OS default-browser mechanism.
// The helper is started and not awaited.
type SystemBrowser struct{}

func (SystemBrowser) Open(url string) error {
	cmd, err := browserCommand(runtime.GOOS, url)
	if err != nil {
		return err
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("open browser: %w", err)
	}
	// Reap the helper so it does not linger as a zombie.
	go func() { _ = cmd.Wait() }()
	return nil
}

func browserCommand(goos, url string) (*exec.Cmd, error) {
	switch goos {
	case "darwin":
		return exec.Command("open", url), nil
	case "windows":
		return exec.Command("rundll32", "url.dll,FileProtocolHandler", url), nil
	case "linux", "freebsd", "openbsd", "netbsd":
		return exec.Command("xdg-open", url), nil
	default:
		return nil, fmt.Errorf("open browser: unsupported platform %s", goos)
	}
}
