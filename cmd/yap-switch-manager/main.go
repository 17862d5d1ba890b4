package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sort"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
	"golang.org/x/term"

	"yap-switch-manager/pkg/manager"
	"yap-switch-manager/pkg/registry"
	"yap-switch-manager/pkg/session"
)

var (
	flagRegistry    string
	flagSettings    string
	flagList        bool
	flagAdd         string
	flagURL         string
	flagDelete      string
	flagProbe       string
	flagOpen        string
	flagBrowser     string
	flagPrintConfig bool
)

// errUnreachable maps to exit status 2 for --probe.
var errUnreachable = errors.New("unreachable")

func init() {
	flag.StringVar(&flagRegistry, "registry", "", "Path to switches.json (defaults to XDG paths if empty)")
	flag.StringVar(&flagSettings, "settings", "", "Path to settings.yaml (defaults to XDG paths if empty)")
	flag.BoolVar(&flagList, "list", false, "List saved switches and exit")
	flag.StringVar(&flagAdd, "add", "", "Save a switch under this name (requires --url)")
	flag.StringVar(&flagURL, "url", "", "URL for --add")
	flag.StringVar(&flagDelete, "delete", "", "Delete the named switch")
	flag.StringVar(&flagProbe, "probe", "", "Probe a saved switch name or a URL; exit 2 when unreachable")
	flag.StringVar(&flagOpen, "open", "", "Open the named switch console and wait for it to close")
	flag.StringVar(&flagBrowser, "browser", "", "Open the named switch in the default browser")
	flag.BoolVar(&flagPrintConfig, "print-config-path", false, "Print resolved registry, settings and log paths and exit")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "yap-switch-manager\n\n")
		fmt.Fprintf(os.Stderr, "Usage:\n")
		fmt.Fprintf(os.Stderr, "  yap-switch-manager [options]\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, `
Examples:
  yap-switch-manager
  yap-switch-manager --add Lab-1 --url 192.168.2.1
  yap-switch-manager --probe Lab-1
  yap-switch-manager --open Lab-1
`)
	}
}

func main() {
	flag.Parse()

	settings, settingsPath, err := manager.LoadSettings(flagSettings)
	if err != nil {
		fmt.Fprintf(os.Stderr, "yap-switch-manager: %v\n", err)
		os.Exit(1)
	}

	interactive := !flagList && !flagPrintConfig && flagAdd == "" && flagDelete == "" &&
		flagProbe == "" && flagOpen == "" && flagBrowser == ""

	logger, closeLog, err := newLogger(settings, interactive)
	if err != nil {
		fmt.Fprintf(os.Stderr, "yap-switch-manager: %v\n", err)
		os.Exit(1)
	}
	defer closeLog()

	reg, err := registry.Open(flagRegistry, registry.WithLogger(logger))
	if err != nil {
		fmt.Fprintf(os.Stderr, "yap-switch-manager: %v\n", err)
		os.Exit(1)
	}
	mgr := session.NewManager(session.Options{
		Launcher:     session.NewExecLauncher(settings.HostSpecs(), session.WithLauncherLogger(logger)),
		ProbeTimeout: settings.ProbeTimeout(),
		Logger:       logger,
	})

	if err := run(reg, mgr, settings, settingsPath, logger); err != nil {
		if !errors.Is(err, errUnreachable) {
			fmt.Fprintf(os.Stderr, "yap-switch-manager: %v\n", err)
		}
		closeLog()
		os.Exit(exitCodeFromErr(err))
	}
}

func run(reg *registry.Registry, mgr *session.Manager, settings *manager.Settings, settingsPath string, logger *log.Logger) error {
	switch {
	case flagPrintConfig:
		return printConfigPaths(reg, settingsPath)
	case flagList:
		return listSwitches(os.Stdout, reg, stdoutWidth())
	case flagAdd != "":
		return addSwitch(reg, flagAdd, flagURL)
	case flagDelete != "":
		removed, err := reg.Delete(flagDelete)
		if err != nil {
			return err
		}
		if !removed {
			return fmt.Errorf("%w: %q", registry.ErrUnknownSwitch, flagDelete)
		}
		fmt.Printf("deleted %s\n", flagDelete)
		return nil
	case flagProbe != "":
		return probe(reg, settings, flagProbe)
	case flagOpen != "":
		return openAndWait(reg, mgr, flagOpen)
	case flagBrowser != "":
		sc, err := reg.Lookup(flagBrowser)
		if err != nil {
			return err
		}
		return mgr.GetOrCreate(sc.Name, sc.URL).OpenExternal()
	}

	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return fmt.Errorf("interactive mode needs a terminal; see --help for non-interactive flags")
	}
	return manager.RunTUI(manager.Deps{
		Registry: reg,
		Manager:  mgr,
		Settings: settings,
		Theme:    manager.LoadTheme(settings.Theme),
		Logger:   logger,
	})
}

// newLogger writes to the log file while the TUI owns the terminal, and to
// stderr (warnings only unless debugging) for one-shot commands.
func newLogger(settings *manager.Settings, interactive bool) (*log.Logger, func(), error) {
	level := settings.EffectiveLogLevel()
	if interactive {
		path, err := manager.DefaultLogPath()
		if err != nil {
			return nil, nil, err
		}
		logger, closer, err := manager.OpenLog(path, level)
		if err != nil {
			return nil, nil, err
		}
		var once bool
		return logger, func() {
			if !once {
				once = true
				_ = closer.Close()
			}
		}, nil
	}
	lvl := log.WarnLevel
	if strings.EqualFold(strings.TrimSpace(level), "debug") {
		lvl = log.DebugLevel
	}
	return manager.NewLogger(os.Stderr, lvl), func() {}, nil
}

func printConfigPaths(reg *registry.Registry, settingsPath string) error {
	fmt.Printf("registry: %s\n", reg.Path())
	if settingsPath == "" {
		fmt.Println("settings: (none found, using defaults)")
		for _, c := range manager.SettingsPathCandidates(flagSettings) {
			fmt.Printf("  candidate: %s\n", c)
		}
	} else {
		fmt.Printf("settings: %s\n", settingsPath)
	}
	if p, err := manager.DefaultLogPath(); err == nil {
		fmt.Printf("log: %s\n", p)
	}
	return nil
}

// stdoutWidth returns the terminal width, 0 when unknown, or -1 when stdout
// is not a terminal.
func stdoutWidth() int {
	fd := int(os.Stdout.Fd())
	if !term.IsTerminal(fd) {
		return -1
	}
	if cols, _, err := term.GetSize(fd); err == nil && cols > 0 {
		return cols
	}
	return 0
}

// listSwitches prints aligned columns for a terminal (width >= 0) and
// tab-separated name/url pairs otherwise.
func listSwitches(w io.Writer, reg *registry.Registry, width int) error {
	switches := reg.LoadAll()
	names := make([]string, 0, len(switches))
	for n := range switches {
		names = append(names, n)
	}
	sort.Strings(names)
	if len(names) == 0 {
		fmt.Fprintln(w, "(no switches saved)")
		return nil
	}

	if width < 0 {
		for _, n := range names {
			fmt.Fprintf(w, "%s\t%s\n", n, switches[n].URL)
		}
		return nil
	}

	const gap = 2
	nameW, urlW := lipgloss.Width("NAME"), 0
	for _, n := range names {
		nameW = max(nameW, lipgloss.Width(n))
	}
	if width > 0 {
		// Keep at least one column for the URL cell.
		nameW = max(1, min(nameW, width-gap-1))
		urlW = max(1, width-nameW-gap)
	}

	tw := tabwriter.NewWriter(w, 0, 4, gap, ' ', 0)
	fmt.Fprintf(tw, "%s\t%s\n", truncateCell("NAME", nameW), truncateCell("URL", urlW))
	for _, n := range names {
		fmt.Fprintf(tw, "%s\t%s\n", truncateCell(n, nameW), truncateCell(switches[n].URL, urlW))
	}
	return tw.Flush()
}

// truncateCell shortens s to at most w display columns, ending in "…".
// w <= 0 means no limit.
func truncateCell(s string, w int) string {
	if w <= 0 || lipgloss.Width(s) <= w {
		return s
	}
	var b strings.Builder
	used := 0
	for _, r := range s {
		rw := lipgloss.Width(string(r))
		if used+rw > w-1 {
			break
		}
		b.WriteRune(r)
		used += rw
	}
	return b.String() + "…"
}

func addSwitch(reg *registry.Registry, name, url string) error {
	name = strings.TrimSpace(name)
	normalized, err := registry.ValidateURL(url)
	if err != nil {
		return err
	}
	if err := reg.Save(name, url); err != nil {
		return err
	}
	fmt.Printf("saved %s -> %s\n", name, normalized)
	return nil
}

// probe accepts a saved switch name or a literal URL.
func probe(reg *registry.Registry, settings *manager.Settings, target string) error {
	url := ""
	if sc, ok := reg.Get(target); ok {
		url = sc.URL
	} else if u, err := registry.ValidateURL(target); err == nil {
		url = u
	} else {
		return fmt.Errorf("%w: %q is neither a saved switch nor a URL", registry.ErrUnknownSwitch, target)
	}

	p := session.NewHTTPProber(session.WithProbeTimeout(settings.ProbeTimeout()))
	if p.Probe(context.Background(), url) {
		fmt.Printf("%s reachable\n", url)
		return nil
	}
	fmt.Printf("%s unreachable\n", url)
	return errUnreachable
}

func openAndWait(reg *registry.Registry, mgr *session.Manager, name string) error {
	sc, err := reg.Lookup(name)
	if err != nil {
		return err
	}
	s := mgr.GetOrCreate(sc.Name, sc.URL)
	probed := make(chan bool, 1)
	if _, err := s.OpenEmbedded(func(ok bool) { probed <- ok }); err != nil {
		return fmt.Errorf("%w (try --browser %s)", err, name)
	}
	cp := s.Process()
	if cp == nil {
		return fmt.Errorf("console for %s did not start", name)
	}
	fmt.Printf("console for %s open (pid %d); close its window to exit\n", name, cp.PID)

	for {
		select {
		case ok := <-probed:
			if !ok {
				fmt.Fprintf(os.Stderr, "warning: %s did not answer at %s; console opened anyway\n", name, sc.URL)
			}
			probed = nil
		case <-cp.Done():
			return cp.Err()
		}
	}
}

func exitCodeFromErr(err error) int {
	if errors.Is(err, errUnreachable) {
		return 2
	}
	var ee *exec.ExitError
	if errors.As(err, &ee) {
		if status, ok := ee.Sys().(syscall.WaitStatus); ok {
			return status.ExitStatus()
		}
	}
	return 1
}
