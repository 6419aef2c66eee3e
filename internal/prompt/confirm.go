package prompt

import (
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/smazurov/appshell/internal/updater"
)

var (
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#4ade80"))
	textStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#ffffff"))
	subtleStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#909090"))
	activeButton  = lipgloss.NewStyle().Padding(0, 1).Bold(true).Foreground(lipgloss.Color("#0a0a0b")).Background(lipgloss.Color("#4ade80"))
	passiveButton = lipgloss.NewStyle().Padding(0, 1).Foreground(lipgloss.Color("#909090")).Background(lipgloss.Color("#2d2d2d"))
	boxStyle      = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("#333333")).Padding(1, 2)
)

// ConfirmKeyMap defines keybindings for the confirm dialog.
type ConfirmKeyMap struct {
	Yes     key.Binding
	No      key.Binding
	Left    key.Binding
	Right   key.Binding
	Confirm key.Binding
	Cancel  key.Binding
}

// DefaultConfirmKeyMap returns the default keybindings.
func DefaultConfirmKeyMap() ConfirmKeyMap {
	return ConfirmKeyMap{
		Yes:     key.NewBinding(key.WithKeys("y"), key.WithHelp("y", "yes")),
		No:      key.NewBinding(key.WithKeys("n"), key.WithHelp("n", "no")),
		Left:    key.NewBinding(key.WithKeys("left", "h"), key.WithHelp("←/h", "cancel")),
		Right:   key.NewBinding(key.WithKeys("right", "l"), key.WithHelp("→/l", "confirm")),
		Confirm: key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "select")),
		Cancel:  key.NewBinding(key.WithKeys("esc", "ctrl+c"), key.WithHelp("esc", "cancel")),
	}
}

// ConfirmModel is the update dialog. The cancel button is selected
// initially; y and n answer immediately.
type ConfirmModel struct {
	Prompt    updater.Prompt
	Yes       bool // current selection
	Confirmed bool // user picked a button
	Canceled  bool // user dismissed the dialog
	keys      ConfirmKeyMap
}

// NewConfirm creates a dialog for p.
func NewConfirm(p updater.Prompt) ConfirmModel {
	return ConfirmModel{
		Prompt: p,
		keys:   DefaultConfirmKeyMap(),
	}
}

// Init implements tea.Model.
func (m ConfirmModel) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m ConfirmModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	keyMsg, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}

	switch {
	case key.Matches(keyMsg, m.keys.Yes):
		m.Yes, m.Confirmed = true, true
	case key.Matches(keyMsg, m.keys.No):
		m.Yes, m.Confirmed = false, true
	case key.Matches(keyMsg, m.keys.Left):
		m.Yes = false
	case key.Matches(keyMsg, m.keys.Right):
		m.Yes = true
	case key.Matches(keyMsg, m.keys.Confirm):
		m.Confirmed = true
	case key.Matches(keyMsg, m.keys.Cancel):
		m.Canceled = true
	}

	if m.Done() {
		return m, tea.Quit
	}
	return m, nil
}

// View implements tea.Model.
func (m ConfirmModel) View() string {
	if m.Done() {
		return ""
	}

	// Prompt labels escape & for native dialogs.
	cancelLabel := unescapeLabel(m.Prompt.CancelLabel)
	confirmLabel := unescapeLabel(m.Prompt.ConfirmLabel)

	cancel, confirm := activeButton.Render(cancelLabel), passiveButton.Render(confirmLabel)
	if m.Yes {
		cancel, confirm = passiveButton.Render(cancelLabel), activeButton.Render(confirmLabel)
	}

	parts := []string{
		titleStyle.Render(m.Prompt.Title),
		"",
		textStyle.Render(m.Prompt.Message),
	}
	if m.Prompt.Detail != "" {
		parts = append(parts, "", subtleStyle.Render(m.Prompt.Detail))
	}
	parts = append(parts,
		"",
		lipgloss.JoinHorizontal(lipgloss.Center, cancel, "  ", confirm),
		"",
		subtleStyle.Render("y/n or ←/→ to select • enter to confirm • esc to cancel"),
	)

	return boxStyle.Render(lipgloss.JoinVertical(lipgloss.Left, parts...)) + "\n"
}

// Done reports whether the dialog is complete.
func (m ConfirmModel) Done() bool {
	return m.Confirmed || m.Canceled
}

// Result reports whether the user accepted the update.
func (m ConfirmModel) Result() bool {
	return m.Confirmed && m.Yes
}

func unescapeLabel(label string) string {
	out := make([]rune, 0, len(label))
	runes := []rune(label)
	for i := 0; i < len(runes); i++ {
		out = append(out, runes[i])
		if runes[i] == '&' && i+1 < len(runes) && runes[i+1] == '&' {
			i++
		}
	}
	return string(out)
}
