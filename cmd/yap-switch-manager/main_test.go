package main

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/charmbracelet/lipgloss"

	"yap-switch-manager/pkg/manager"
	"yap-switch-manager/pkg/registry"
)

func testRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	reg, err := registry.Open(filepath.Join(t.TempDir(), "switches.json"))
	if err != nil {
		t.Fatalf("open registry: %v", err)
	}
	return reg
}

func TestExitCodeFromErr(t *testing.T) {
	if got := exitCodeFromErr(errUnreachable); got != 2 {
		t.Fatalf("expected 2 for unreachable, got %d", got)
	}
	if got := exitCodeFromErr(fmt.Errorf("wrap: %w", errUnreachable)); got != 2 {
		t.Fatalf("expected 2 for wrapped unreachable, got %d", got)
	}
	if got := exitCodeFromErr(errors.New("boom")); got != 1 {
		t.Fatalf("expected 1, got %d", got)
	}
}

func TestListSwitches(t *testing.T) {
	reg := testRegistry(t)

	var buf bytes.Buffer
	if err := listSwitches(&buf, reg, -1); err != nil {
		t.Fatalf("list: %v", err)
	}
	if !strings.Contains(buf.String(), "no switches saved") {
		t.Fatalf("expected empty notice, got %q", buf.String())
	}

	_ = reg.Save("b", "10.0.0.2")
	_ = reg.Save("a", "10.0.0.1")

	buf.Reset()
	if err := listSwitches(&buf, reg, -1); err != nil {
		t.Fatalf("list: %v", err)
	}
	want := "a\thttp://10.0.0.1/\nb\thttp://10.0.0.2/\n"
	if buf.String() != want {
		t.Fatalf("expected %q, got %q", want, buf.String())
	}

	buf.Reset()
	if err := listSwitches(&buf, reg, 0); err != nil {
		t.Fatalf("list: %v", err)
	}
	if !strings.HasPrefix(buf.String(), "NAME") || !strings.Contains(buf.String(), "a     http://10.0.0.1/") {
		t.Fatalf("expected aligned columns, got %q", buf.String())
	}
}

func TestListSwitches_TruncatesByDisplayWidth(t *testing.T) {
	reg := testRegistry(t)
	if err := reg.Save("Zürich-Kern", "10.0.0.1"); err != nil {
		t.Fatalf("save: %v", err)
	}

	var buf bytes.Buffer
	if err := listSwitches(&buf, reg, 20); err != nil {
		t.Fatalf("list: %v", err)
	}
	out := buf.String()
	if !utf8.ValidString(out) {
		t.Fatalf("expected valid UTF-8, got %q", out)
	}
	if !strings.Contains(out, "Zürich-Kern  http:/…") {
		t.Fatalf("expected name kept whole and url cell trimmed, got %q", out)
	}
	for _, line := range strings.Split(strings.TrimSuffix(out, "\n"), "\n") {
		if lipgloss.Width(line) > 20 {
			t.Fatalf("expected lines within 20 columns, got %q (%d)", line, lipgloss.Width(line))
		}
	}

	buf.Reset()
	if err := listSwitches(&buf, reg, 3); err != nil {
		t.Fatalf("list: %v", err)
	}
	if !utf8.ValidString(buf.String()) {
		t.Fatalf("expected valid UTF-8 at tiny width, got %q", buf.String())
	}
	if strings.Count(buf.String(), "\n") != 2 {
		t.Fatalf("expected header and one row, got %q", buf.String())
	}
}

func TestTruncateCell(t *testing.T) {
	cases := map[string]struct {
		in   string
		w    int
		want string
	}{
		"fits":      {"abc", 3, "abc"},
		"no limit":  {"abcdef", 0, "abcdef"},
		"ascii":     {"abcdef", 4, "abc…"},
		"multibyte": {"Zürich", 3, "Zü…"},
		"one col":   {"Zürich", 1, "…"},
	}
	for label, tc := range cases {
		if got := truncateCell(tc.in, tc.w); got != tc.want {
			t.Fatalf("%s: expected %q, got %q", label, tc.want, got)
		}
	}
}

func TestAddSwitch_ValidatesURL(t *testing.T) {
	reg := testRegistry(t)
	if err := addSwitch(reg, "Lab-1", "ftp://x"); !errors.Is(err, registry.ErrInvalidURL) {
		t.Fatalf("expected ErrInvalidURL, got %v", err)
	}
	if err := addSwitch(reg, "Lab-1", ""); !errors.Is(err, registry.ErrEmptyURL) {
		t.Fatalf("expected ErrEmptyURL, got %v", err)
	}
	if err := addSwitch(reg, "Lab-1", "192.168.2.1"); err != nil {
		t.Fatalf("add: %v", err)
	}
	if sc, ok := reg.Get("Lab-1"); !ok || sc.URL != "http://192.168.2.1/" {
		t.Fatalf("expected saved switch, got %#v", sc)
	}
}

func TestProbe_NameOrURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/down/" {
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	reg := testRegistry(t)
	_ = reg.Save("up", srv.URL)
	settings := manager.DefaultSettings()

	if err := probe(reg, settings, "up"); err != nil {
		t.Fatalf("expected saved switch reachable, got %v", err)
	}
	if err := probe(reg, settings, srv.URL+"/down"); !errors.Is(err, errUnreachable) {
		t.Fatalf("expected unreachable, got %v", err)
	}
	if err := probe(reg, settings, "ftp://nope"); !errors.Is(err, registry.ErrUnknownSwitch) {
		t.Fatalf("expected unknown switch, got %v", err)
	}
}
