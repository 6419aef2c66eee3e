package api

import (
	"errors"

	"github.com/danielgtaylor/huma/v2"

	"github.com/smazurov/appshell/internal/prompt"
	"github.com/smazurov/appshell/internal/updater"
)

// mapUpdateError converts updater and prompt errors to Huma HTTP errors.
func mapUpdateError(err error) error {
	if errors.Is(err, prompt.ErrNoPrompt) {
		return huma.Error404NotFound(err.Error())
	}
	if errors.Is(err, prompt.ErrVersionMismatch) {
		return huma.Error409Conflict(err.Error())
	}

	var updateErr *updater.Error
	if !errors.As(err, &updateErr) {
		return huma.Error500InternalServerError(err.Error())
	}
	switch updateErr.Code {
	case updater.ErrCodeInvalidState:
		return huma.Error409Conflict(updateErr.Message)
	case updater.ErrCodeNoStagedUpdate, updater.ErrCodeNoBackup:
		return huma.Error404NotFound(updateErr.Message)
	case updater.ErrCodeDisabled:
		return huma.Error503ServiceUnavailable(updateErr.Message)
	case updater.ErrCodeInvalidConfig:
		return huma.Error400BadRequest(updateErr.Message)
	default:
		return huma.Error500InternalServerError(updateErr.Message)
	}
}
