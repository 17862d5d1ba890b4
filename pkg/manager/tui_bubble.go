package manager

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/log"

	"yap-switch-manager/pkg/registry"
	"yap-switch-manager/pkg/session"
)

// Deps are the collaborators the TUI drives.
type Deps struct {
	Registry *registry.Registry
	Manager  *session.Manager
	Settings *Settings
	Theme    Theme
	Logger   *log.Logger
}

func RunTUI(deps Deps) error {
	if deps.Registry == nil || deps.Manager == nil {
		return fmt.Errorf("nil registry or session manager")
	}
	m := newModel(deps)
	p := tea.NewProgram(m, tea.WithAltScreen())
	_, err := p.Run()
	if live := deps.Manager.Live(); live > 0 {
		m.logger.Info("exiting with consoles still open", "count", live)
	}
	return err
}

type uiMode int

const (
	modeList uiMode = iota
	modeFilter
	modeForm
	modeConfirmDelete
)

type statusKind int

const (
	statusInfo statusKind = iota
	statusOK
	statusWarn
	statusError
)

type reachState int

const (
	reachUnknown reachState = iota
	reachProbing
	reachUp
	reachDown
)

type sessionEventMsg struct {
	Event session.Event
}

type probeResultMsg struct {
	Name      string
	URL       string
	Reachable bool
	// FromOpen marks the probe that accompanies a console open.
	FromOpen bool
}

type model struct {
	reg      *registry.Registry
	mgr      *session.Manager
	settings *Settings
	theme    Theme
	logger   *log.Logger

	mode       uiMode
	input      textinput.Model
	candidates []candidate
	filtered   []candidate
	selected   int
	scroll     int

	// add/edit form
	nameInput  textinput.Model
	urlInput   textinput.Model
	formFocus  int
	formEdit   string // original name when editing, "" when adding
	formErr    string
	deleteName string

	reach   map[string]reachState
	probing int
	spin    spinner.Model

	status      string
	statusKind  statusKind
	statusUntil time.Time

	width    int
	height   int
	ready    bool
	quitting bool
}

func newModel(deps Deps) model {
	ti := textinput.New()
	ti.Prompt = "/ "
	ti.Placeholder = "filter..."
	ti.CharLimit = 256
	ti.PromptStyle = ti.PromptStyle.Bold(true)

	ni := textinput.New()
	ni.Prompt = "Name: "
	ni.Placeholder = "Lab-1"
	ni.CharLimit = 128

	ui := textinput.New()
	ui.Prompt = "URL:  "
	ui.Placeholder = DefaultSwitchURL
	ui.CharLimit = 512

	settings := deps.Settings
	if settings == nil {
		settings = DefaultSettings()
	}
	logger := deps.Logger
	if logger == nil {
		logger = log.New(io.Discard)
	}

	m := model{
		reg:       deps.Registry,
		mgr:       deps.Manager,
		settings:  settings,
		theme:     deps.Theme,
		logger:    logger,
		input:     ti,
		nameInput: ni,
		urlInput:  ui,
		reach:     map[string]reachState{},
		spin:      spinner.New(spinner.WithSpinner(spinner.Dot)),
	}
	m.reload("")
	return m
}

func (m model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, waitSessionEvent(m.mgr.Events()))
}

// waitSessionEvent blocks on the session event channel. Update re-arms it
// after every delivered event.
func waitSessionEvent(ch <-chan session.Event) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-ch
		if !ok {
			return nil
		}
		return sessionEventMsg{Event: ev}
	}
}

func waitProbe(name, url string, ch <-chan bool, fromOpen bool) tea.Cmd {
	return func() tea.Msg {
		return probeResultMsg{Name: name, URL: url, Reachable: <-ch, FromOpen: fromOpen}
	}
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.ready = true
		return m, nil

	case sessionEventMsg:
		m.applySessionEvent(msg.Event)
		return m, waitSessionEvent(m.mgr.Events())

	case probeResultMsg:
		m.applyProbeResult(msg)
		return m, nil

	case spinner.TickMsg:
		if m.probing <= 0 {
			return m, nil
		}
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m.quit()
		}
		switch m.mode {
		case modeFilter:
			return m.updateFilter(msg)
		case modeForm:
			return m.updateForm(msg)
		case modeConfirmDelete:
			return m.updateConfirmDelete(msg)
		}
		return m.updateList(msg)
	}
	return m, nil
}

func (m model) updateList(k tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch k.String() {
	case "q":
		return m.quit()
	case "up", "k":
		m.move(-1)
	case "down", "j":
		m.move(1)
	case "home", "g":
		m.gotoTop()
	case "end", "G":
		m.gotoBottom()
	case "/":
		m.mode = modeFilter
		cmd := m.input.Focus()
		return m, cmd
	case "esc":
		if m.input.Value() != "" {
			m.input.SetValue("")
			m.recomputeFilter()
		}
	case "enter", "o":
		if c := m.current(); c != nil {
			cmd := m.openEmbedded(c.Switch)
			return m, cmd
		}
	case "b":
		if c := m.current(); c != nil {
			m.openExternal(c.Switch)
		}
	case "t":
		if c := m.current(); c != nil {
			cmd := m.testConnection(c.Switch)
			return m, cmd
		}
	case "a":
		cmd := m.startForm(registry.SwitchConfig{URL: m.settings.DefaultURL}, "")
		return m, cmd
	case "e":
		if c := m.current(); c != nil {
			cmd := m.startForm(c.Switch, c.Switch.Name)
			return m, cmd
		}
	case "d":
		if c := m.current(); c != nil {
			m.deleteName = c.Switch.Name
			m.mode = modeConfirmDelete
		}
	case "r":
		m.reload(m.currentName())
		m.setStatus(fmt.Sprintf("reloaded %d switches", len(m.candidates)), statusInfo, 2000)
	}
	return m, nil
}

func (m model) updateFilter(k tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch k.String() {
	case "esc":
		m.input.SetValue("")
		m.input.Blur()
		m.mode = modeList
		m.recomputeFilter()
		return m, nil
	case "enter":
		m.input.Blur()
		m.mode = modeList
		return m, nil
	case "up":
		m.move(-1)
		return m, nil
	case "down":
		m.move(1)
		return m, nil
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(k)
	m.recomputeFilter()
	return m, cmd
}

func (m model) updateForm(k tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch k.String() {
	case "esc":
		m.closeForm()
		return m, nil
	case "tab", "down", "shift+tab", "up":
		cmd := m.focusFormField(1 - m.formFocus)
		return m, cmd
	case "enter":
		if m.formFocus == 0 {
			cmd := m.focusFormField(1)
			return m, cmd
		}
		m.submitForm()
		return m, nil
	}
	var cmd tea.Cmd
	if m.formFocus == 0 {
		m.nameInput, cmd = m.nameInput.Update(k)
	} else {
		m.urlInput, cmd = m.urlInput.Update(k)
	}
	m.formErr = ""
	return m, cmd
}

func (m model) updateConfirmDelete(k tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch k.String() {
	case "y", "Y":
		m.deleteSwitch(m.deleteName)
		m.deleteName = ""
		m.mode = modeList
	case "n", "N", "esc", "q":
		m.deleteName = ""
		m.mode = modeList
	}
	return m, nil
}

// openEmbedded starts a console host for sc and returns a command that waits
// for the accompanying probe.
func (m *model) openEmbedded(sc registry.SwitchConfig) tea.Cmd {
	s := m.mgr.GetOrCreate(sc.Name, sc.URL)
	probeCh := make(chan bool, 1)
	started, err := s.OpenEmbedded(func(ok bool) { probeCh <- ok })
	if err != nil {
		m.setStatus(fmt.Sprintf("%v (press b to open in browser)", err), statusError, 6000)
		return nil
	}
	if !started {
		m.setStatus(fmt.Sprintf("console for %s is already open", sc.Name), statusInfo, 2500)
		return nil
	}
	m.setStatus(fmt.Sprintf("opening console for %s", sc.Name), statusInfo, 2500)
	return m.startProbing(sc, probeCh, true)
}

func (m *model) openExternal(sc registry.SwitchConfig) {
	s := m.mgr.GetOrCreate(sc.Name, sc.URL)
	if err := s.OpenExternal(); err != nil {
		m.setStatus(fmt.Sprintf("open browser: %v", err), statusError, 4000)
		return
	}
	m.setStatus(fmt.Sprintf("opened %s in browser", s.URL()), statusOK, 2500)
}

func (m *model) testConnection(sc registry.SwitchConfig) tea.Cmd {
	if m.reach[sc.Name] == reachProbing {
		return nil
	}
	s := m.mgr.GetOrCreate(sc.Name, sc.URL)
	ch := make(chan bool, 1)
	s.Probe(0, func(ok bool) { ch <- ok })
	m.setStatus(fmt.Sprintf("testing %s", s.URL()), statusInfo, int(m.settings.ProbeTimeout()/time.Millisecond)+500)
	return m.startProbing(sc, ch, false)
}

func (m *model) startProbing(sc registry.SwitchConfig, ch <-chan bool, fromOpen bool) tea.Cmd {
	m.reach[sc.Name] = reachProbing
	m.probing++
	cmds := []tea.Cmd{waitProbe(sc.Name, sc.URL, ch, fromOpen)}
	if m.probing == 1 {
		cmds = append(cmds, m.spin.Tick)
	}
	return tea.Batch(cmds...)
}

func (m *model) applyProbeResult(msg probeResultMsg) {
	if m.probing > 0 {
		m.probing--
	}
	if !m.listed(msg.Name) {
		// Deleted or renamed while the probe was in flight.
		m.logger.Debug("probe result for unlisted switch dropped", "switch", msg.Name)
		return
	}
	if msg.Reachable {
		m.reach[msg.Name] = reachUp
	} else {
		m.reach[msg.Name] = reachDown
	}
	switch {
	case msg.FromOpen && !msg.Reachable:
		m.setStatus(fmt.Sprintf("%s did not answer at %s; console opened anyway", msg.Name, registry.NormalizeURL(msg.URL)), statusWarn, 5000)
	case msg.FromOpen:
		// the open status already covers this
	case msg.Reachable:
		m.setStatus(fmt.Sprintf("%s is reachable", msg.Name), statusOK, 3000)
	default:
		m.setStatus(fmt.Sprintf("%s is unreachable", msg.Name), statusError, 4000)
	}
}

func (m *model) applySessionEvent(ev session.Event) {
	if !m.mgr.Dispatch(ev) {
		return
	}
	if ev.Kind != session.ConsoleExited {
		return
	}
	if ev.Err != nil {
		m.logger.Warn("console exited", "switch", ev.Name, "error", ev.Err)
		m.setStatus(fmt.Sprintf("console for %s exited: %v", ev.Name, ev.Err), statusWarn, 5000)
		return
	}
	m.setStatus(fmt.Sprintf("console for %s closed", ev.Name), statusInfo, 2500)
}

func (m *model) startForm(sc registry.SwitchConfig, editName string) tea.Cmd {
	m.formEdit = editName
	m.formErr = ""
	m.nameInput.SetValue(sc.Name)
	m.urlInput.SetValue(sc.URL)
	m.nameInput.CursorEnd()
	m.urlInput.CursorEnd()
	m.mode = modeForm
	return m.focusFormField(0)
}

func (m *model) focusFormField(i int) tea.Cmd {
	m.formFocus = i
	if i == 0 {
		m.urlInput.Blur()
		return m.nameInput.Focus()
	}
	m.nameInput.Blur()
	return m.urlInput.Focus()
}

func (m *model) closeForm() {
	m.nameInput.Blur()
	m.urlInput.Blur()
	m.formErr = ""
	m.formEdit = ""
	m.mode = modeList
}

// submitForm validates and saves the form. A rename saves the new entry
// before deleting the old one.
func (m *model) submitForm() {
	name := strings.TrimSpace(m.nameInput.Value())
	url := strings.TrimSpace(m.urlInput.Value())
	if name == "" {
		m.formErr = registry.ErrEmptyName.Error()
		return
	}
	if _, err := registry.ValidateURL(url); err != nil {
		m.formErr = err.Error()
		return
	}
	if err := m.reg.Save(name, url); err != nil {
		m.formErr = err.Error()
		m.logger.Error("save switch failed", "switch", name, "error", err)
		return
	}
	m.mgr.GetOrCreate(name, url)

	m.setStatus(fmt.Sprintf("saved %s (%s)", name, registry.NormalizeURL(url)), statusOK, 2500)

	old := m.formEdit
	if old != "" && old != name {
		if _, err := m.reg.Delete(old); err != nil {
			m.logger.Error("delete renamed switch failed", "switch", old, "error", err)
			m.setStatus(fmt.Sprintf("saved %s but could not remove %s: %v", name, old, err), statusWarn, 5000)
		}
		m.mgr.Remove(old)
		delete(m.reach, old)
	}
	m.closeForm()
	m.reload(name)
}

func (m *model) deleteSwitch(name string) {
	if name == "" {
		return
	}
	removed, err := m.reg.Delete(name)
	if err != nil {
		m.setStatus(fmt.Sprintf("delete %s: %v", name, err), statusError, 4000)
		return
	}
	m.mgr.Remove(name)
	delete(m.reach, name)
	if removed {
		m.setStatus(fmt.Sprintf("deleted %s", name), statusOK, 2500)
	} else {
		m.setStatus(fmt.Sprintf("%s was already gone", name), statusInfo, 2500)
	}
	m.reload("")
}

// reload re-reads the registry and keeps keep selected when it is still listed.
func (m *model) reload(keep string) {
	m.candidates = buildCandidates(m.reg.LoadAll())
	m.recomputeFilter()
	if keep == "" {
		return
	}
	for i, c := range m.filtered {
		if c.Switch.Name == keep {
			m.selected = i
			return
		}
	}
}

func (m *model) recomputeFilter() {
	m.filtered = rankMatches(m.candidates, m.input.Value())
	if m.selected >= len(m.filtered) {
		m.selected = len(m.filtered) - 1
	}
	if m.selected < 0 {
		m.selected = 0
	}
	m.scroll = 0
}

func (m *model) listed(name string) bool {
	for _, c := range m.candidates {
		if c.Switch.Name == name {
			return true
		}
	}
	return false
}

func (m *model) current() *candidate {
	if len(m.filtered) == 0 || m.selected < 0 || m.selected >= len(m.filtered) {
		return nil
	}
	return &m.filtered[m.selected]
}

func (m *model) currentName() string {
	if c := m.current(); c != nil {
		return c.Switch.Name
	}
	return ""
}

func (m *model) move(delta int) {
	if len(m.filtered) == 0 {
		return
	}
	m.selected += delta
	if m.selected < 0 {
		m.selected = 0
	}
	if m.selected >= len(m.filtered) {
		m.selected = len(m.filtered) - 1
	}
}

func (m *model) gotoTop() {
	m.selected = 0
	m.scroll = 0
}

func (m *model) gotoBottom() {
	if len(m.filtered) == 0 {
		return
	}
	m.selected = len(m.filtered) - 1
}

func (m *model) setStatus(s string, kind statusKind, ms int) {
	m.status = s
	m.statusKind = kind
	m.statusUntil = time.Now().Add(time.Duration(ms) * time.Millisecond)
}

func (m model) quit() (tea.Model, tea.Cmd) {
	// Console hosts are left running; they belong to the user once opened.
	m.quitting = true
	return m, tea.Quit
}

func (m model) View() string {
	if m.quitting {
		return ""
	}
	if !m.ready {
		return "yap-switch-manager: loading...\n"
	}

	var b strings.Builder
	header := "YaP Switch Manager - Switches"
	b.WriteString(m.theme.HeaderLine(header) + "\n")
	b.WriteString(m.theme.Rule(minInt(maxInt(len(header), 3), maxInt(3, m.width))) + "\n")

	switch m.mode {
	case modeForm:
		b.WriteString(m.viewForm())
		return b.String()
	case modeConfirmDelete:
		b.WriteString(m.theme.WarnText(fmt.Sprintf("Delete %q? (y/n)", m.deleteName)) + "\n")
		return b.String()
	}

	if m.mode == modeFilter || m.input.Value() != "" {
		b.WriteString(m.input.View() + "\n")
	}
	b.WriteString(m.viewList())
	b.WriteString("\n")
	if line := m.viewStatus(); line != "" {
		b.WriteString(line + "\n")
	}
	b.WriteString(m.theme.HelpText("enter/o console • b browser • t test • a add • e edit • d delete • / filter • r reload • q quit") + "\n")
	return b.String()
}

func (m model) viewList() string {
	if len(m.candidates) == 0 {
		return m.theme.DimText("No switches saved. Press a to add one.") + "\n"
	}
	if len(m.filtered) == 0 {
		return m.theme.DimText("No matches.") + "\n"
	}

	listHeight := m.height - 8
	if listHeight < 3 {
		listHeight = 3
	}
	if m.selected < m.scroll {
		m.scroll = m.selected
	}
	if m.selected >= m.scroll+listHeight {
		m.scroll = m.selected - listHeight + 1
	}
	end := minInt(len(m.filtered), m.scroll+listHeight)

	nameW := 4
	for _, c := range m.filtered {
		nameW = maxInt(nameW, len(c.Switch.Name))
	}

	var b strings.Builder
	for i := m.scroll; i < end; i++ {
		sc := m.filtered[i].Switch
		line := padRight(sc.Name, nameW) + "  " + sc.URL
		if tag := m.rowTags(sc.Name); tag != "" {
			line += "  " + tag
		}
		if i == m.selected {
			b.WriteString(m.theme.SelectedPrefix(true) + m.theme.SelectedText(line) + "\n")
		} else {
			b.WriteString(m.theme.SelectedPrefix(false) + line + "\n")
		}
	}
	if end < len(m.filtered) {
		b.WriteString(m.theme.DimText(fmt.Sprintf("... (+%d more)", len(m.filtered)-end)) + "\n")
	}
	return b.String()
}

func (m model) rowTags(name string) string {
	var tags []string
	switch m.reach[name] {
	case reachProbing:
		tags = append(tags, m.spin.View()+" testing")
	case reachUp:
		tags = append(tags, m.theme.SuccessText("reachable"))
	case reachDown:
		tags = append(tags, m.theme.ErrorText("unreachable"))
	}
	if s, ok := m.mgr.Get(name); ok {
		switch s.State() {
		case session.Launching:
			tags = append(tags, m.theme.AccentText("launching"))
		case session.Running:
			label := "console open"
			if p := s.Process(); p != nil && p.PID > 0 {
				label = fmt.Sprintf("console open (pid %d)", p.PID)
			}
			tags = append(tags, m.theme.AccentText(label))
		}
	}
	return strings.Join(tags, " ")
}

func (m model) viewForm() string {
	var b strings.Builder
	title := "Add switch"
	if m.formEdit != "" {
		title = "Edit " + m.formEdit
	}
	b.WriteString(m.theme.HeaderLine(title) + "\n\n")
	b.WriteString(m.nameInput.View() + "\n")
	b.WriteString(m.urlInput.View() + "\n")

	url := strings.TrimSpace(m.urlInput.Value())
	if url != "" {
		if _, err := registry.ValidateURL(url); err != nil {
			b.WriteString(m.theme.WarnText("  "+err.Error()) + "\n")
		} else {
			b.WriteString(m.theme.DimText("  saves as "+registry.NormalizeURL(url)) + "\n")
		}
	}
	if m.formErr != "" {
		b.WriteString(m.theme.ErrorText(m.formErr) + "\n")
	}
	b.WriteString("\n" + m.theme.HelpText("tab switch field • enter save • esc cancel") + "\n")
	return b.String()
}

func (m model) viewStatus() string {
	if m.status == "" || time.Now().After(m.statusUntil) {
		return ""
	}
	switch m.statusKind {
	case statusOK:
		return m.theme.SuccessText(m.status)
	case statusWarn:
		return m.theme.WarnText(m.status)
	case statusError:
		return m.theme.ErrorText(m.status)
	}
	return m.status
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
