package prompt

import (
	"log/slog"

	"github.com/smazurov/appshell/internal/logging"
	"github.com/smazurov/appshell/internal/updater"
)

// HeadlessUI answers every prompt with a fixed decision.
type HeadlessUI struct {
	accept bool
	logger *slog.Logger
}

// NewHeadlessUI creates a headless UI. With accept false every update is
// declined and stays downloaded until the next start.
func NewHeadlessUI(accept bool) *HeadlessUI {
	return &HeadlessUI{
		accept: accept,
		logger: logging.GetLogger("prompt"),
	}
}

// RequestConfirmation implements updater.UpdateUI.
func (h *HeadlessUI) RequestConfirmation(p updater.Prompt, respond func(accepted bool) error) {
	h.logger.Info(p.Title, "message", p.Message, "version", p.Version, "accepted", h.accept)
	go func() {
		if err := respond(h.accept); err != nil {
			h.logger.Error("Failed to apply update decision", "version", p.Version, "error", err)
		}
	}()
}

// Notice implements updater.UpdateUI.
func (h *HeadlessUI) Notice(message string) {
	h.logger.Info(message)
}
