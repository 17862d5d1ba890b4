package manager

import (
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// EnvTheme overrides settings.theme: dark | light | none.
const EnvTheme = "YAP_SWITCH_MANAGER_THEME"

// Theme holds the lipgloss styles used by the TUI.
// All hooks are safe to call when theming is disabled; they fall back to plain strings.
type Theme struct {
	Enabled bool

	Header    lipgloss.Style
	Accent    lipgloss.Style
	Selected  lipgloss.Style
	Dim       lipgloss.Style
	Separator lipgloss.Style
	Help      lipgloss.Style
	Error     lipgloss.Style
	Success   lipgloss.Style
	Warn      lipgloss.Style
}

// LoadTheme resolves the theme from $YAP_SWITCH_MANAGER_THEME, then name.
func LoadTheme(name string) Theme {
	if v := strings.TrimSpace(os.Getenv(EnvTheme)); v != "" {
		name = v
	}
	if os.Getenv("NO_COLOR") != "" {
		return NoTheme()
	}
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "none", "off", "disabled":
		return NoTheme()
	case "light":
		return LightTheme()
	default:
		return DarkTheme()
	}
}

// NoTheme disables all styling.
func NoTheme() Theme {
	return Theme{Enabled: false}
}

// DarkTheme provides a default palette for dark terminals.
func DarkTheme() Theme {
	return Theme{
		Enabled:   true,
		Header:    lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("183")),
		Accent:    lipgloss.NewStyle().Foreground(lipgloss.Color("44")),
		Selected:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("216")),
		Dim:       lipgloss.NewStyle().Faint(true),
		Separator: lipgloss.NewStyle().Foreground(lipgloss.Color("240")),
		Help:      lipgloss.NewStyle().Foreground(lipgloss.Color("44")),
		Error:     lipgloss.NewStyle().Foreground(lipgloss.Color("203")),
		Success:   lipgloss.NewStyle().Foreground(lipgloss.Color("114")),
		Warn:      lipgloss.NewStyle().Foreground(lipgloss.Color("215")),
	}
}

// LightTheme provides a default palette for light terminals.
func LightTheme() Theme {
	return Theme{
		Enabled:   true,
		Header:    lipgloss.NewStyle().Bold(true),
		Accent:    lipgloss.NewStyle().Foreground(lipgloss.Color("4")),
		Selected:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("0")),
		Dim:       lipgloss.NewStyle().Faint(true),
		Separator: lipgloss.NewStyle().Foreground(lipgloss.Color("8")),
		Help:      lipgloss.NewStyle().Foreground(lipgloss.Color("4")),
		Error:     lipgloss.NewStyle().Foreground(lipgloss.Color("1")),
		Success:   lipgloss.NewStyle().Foreground(lipgloss.Color("2")),
		Warn:      lipgloss.NewStyle().Foreground(lipgloss.Color("3")),
	}
}

func (t Theme) HeaderLine(s string) string   { return t.apply(t.Header, s) }
func (t Theme) AccentText(s string) string   { return t.apply(t.Accent, s) }
func (t Theme) SelectedText(s string) string { return t.apply(t.Selected, s) }
func (t Theme) DimText(s string) string      { return t.apply(t.Dim, s) }
func (t Theme) HelpText(s string) string     { return t.apply(t.Help, s) }
func (t Theme) ErrorText(s string) string    { return t.apply(t.Error, s) }
func (t Theme) SuccessText(s string) string  { return t.apply(t.Success, s) }
func (t Theme) WarnText(s string) string     { return t.apply(t.Warn, s) }

// SelectedPrefix returns a colored " > " or "   " prefix.
func (t Theme) SelectedPrefix(selected bool) string {
	if !selected {
		return "   "
	}
	return t.apply(t.Selected, " > ")
}

// Rule returns a horizontal separator of width n.
func (t Theme) Rule(n int) string {
	if n < 3 {
		n = 3
	}
	return t.apply(t.Separator, strings.Repeat("-", n))
}

func (t Theme) apply(st lipgloss.Style, s string) string {
	if !t.Enabled || s == "" {
		return s
	}
	return st.Render(s)
}
