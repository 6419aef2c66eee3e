package prompt

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/smazurov/appshell/internal/logging"
	"github.com/smazurov/appshell/internal/updater"
)

// TerminalUI asks for confirmation with a terminal dialog.
type TerminalUI struct {
	in     io.Reader
	out    io.Writer
	mu     sync.Mutex // one dialog at a time
	logger *slog.Logger
}

// NewTerminalUI creates a terminal UI on in and out. Nil values use the
// process's stdin and stdout.
func NewTerminalUI(in io.Reader, out io.Writer) *TerminalUI {
	if in == nil {
		in = os.Stdin
	}
	if out == nil {
		out = os.Stdout
	}
	return &TerminalUI{
		in:     in,
		out:    out,
		logger: logging.GetLogger("prompt"),
	}
}

// RequestConfirmation implements updater.UpdateUI. The dialog runs on its
// own goroutine; a failed dialog counts as a decline.
func (t *TerminalUI) RequestConfirmation(p updater.Prompt, respond func(accepted bool) error) {
	go func() {
		accepted, err := t.Ask(p)
		if err != nil {
			t.logger.Warn("Update dialog failed", "error", err)
		}
		if err := respond(accepted); err != nil {
			t.logger.Error("Failed to apply update decision", "version", p.Version, "error", err)
			fmt.Fprintf(t.out, "Update failed: %v\n", err)
		}
	}()
}

// Ask shows the dialog and blocks until it is answered.
func (t *TerminalUI) Ask(p updater.Prompt) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	program := tea.NewProgram(NewConfirm(p),
		tea.WithInput(t.in),
		tea.WithOutput(t.out),
		tea.WithoutSignalHandler(),
	)
	final, err := program.Run()
	if err != nil {
		return false, fmt.Errorf("failed to run dialog: %w", err)
	}

	m, ok := final.(ConfirmModel)
	if !ok {
		return false, fmt.Errorf("unexpected dialog model %T", final)
	}
	return m.Result(), nil
}

// Notice implements updater.UpdateUI.
func (t *TerminalUI) Notice(message string) {
	fmt.Fprintln(t.out, subtleStyle.Render(message))
}
