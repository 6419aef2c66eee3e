package api

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/smazurov/appshell/internal/api/models"
	"github.com/smazurov/appshell/internal/updater"
)

// registerUpdateRoutes registers all update-related endpoints.
func (s *Server) registerUpdateRoutes() {
	ctrl := s.options.Updater
	if ctrl == nil {
		s.registerDisabledUpdateRoutes(s.options.UpdateDisabledReason)
		return
	}

	huma.Register(s.api, huma.Operation{
		OperationID: "get-update-status",
		Method:      http.MethodGet,
		Path:        "/api/update/status",
		Summary:     "Get Update Status",
		Description: "Get the update controller state and the discovered update",
		Tags:        []string{"update"},
		Errors:      []int{401},
		Security:    withAuth(),
	}, func(_ context.Context, _ *struct{}) (*models.UpdateStatusResponse, error) {
		return &models.UpdateStatusResponse{Body: statusData(ctrl.Status())}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "check-updates",
		Method:      http.MethodPost,
		Path:        "/api/update/check",
		Summary:     "Check for Updates",
		Description: "Ask the release feed for a newer version. Results arrive as update-state events.",
		Tags:        []string{"update"},
		Errors:      []int{401, 409, 500, 503},
		Security:    withAuth(),
	}, func(ctx context.Context, _ *struct{}) (*models.UpdateActionResponse, error) {
		if err := ctrl.CheckForUpdates(ctx); err != nil {
			return nil, mapUpdateError(err)
		}
		return actionResponse("Update check started", ctrl.Status().State), nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-update-prompt",
		Method:      http.MethodGet,
		Path:        "/api/update/prompt",
		Summary:     "Get Update Prompt",
		Description: "Get the confirmation prompt waiting for an answer",
		Tags:        []string{"update"},
		Errors:      []int{401, 404},
		Security:    withAuth(),
	}, func(_ context.Context, _ *struct{}) (*models.UpdatePromptResponse, error) {
		data, ok := s.pendingPrompt(ctrl)
		if !ok {
			return nil, huma.Error404NotFound("No update prompt is pending")
		}
		return &models.UpdatePromptResponse{Body: data}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "confirm-update",
		Method:      http.MethodPost,
		Path:        "/api/update/confirm",
		Summary:     "Confirm Update",
		Description: "Accept the pending update. Windows close and the application restarts into the new version.",
		Tags:        []string{"update"},
		Errors:      []int{401, 404, 409, 500},
		Security:    withAuth(),
	}, func(_ context.Context, input *models.UpdateAnswerRequest) (*models.UpdateActionResponse, error) {
		if err := s.answer(ctrl, input.Body, true); err != nil {
			return nil, err
		}
		return actionResponse("Installing update, restarting...", ctrl.Status().State), nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "cancel-update",
		Method:      http.MethodPost,
		Path:        "/api/update/cancel",
		Summary:     "Cancel Update",
		Description: "Decline the pending update. It stays downloaded and is not offered again.",
		Tags:        []string{"update"},
		Errors:      []int{401, 404, 409, 500},
		Security:    withAuth(),
	}, func(_ context.Context, input *models.UpdateAnswerRequest) (*models.UpdateActionResponse, error) {
		if err := s.answer(ctrl, input.Body, false); err != nil {
			return nil, err
		}
		return actionResponse("Update postponed", ctrl.Status().State), nil
	})
}

// answer resolves the pending prompt. Prompts shown through the API are
// answered there so the controller sees the decision through its respond
// callback; otherwise the controller is driven directly.
func (s *Server) answer(ctrl UpdateController, body *models.UpdateAnswerData, accepted bool) error {
	requested := ""
	if body != nil {
		requested = body.Version
	}

	if s.options.Prompts != nil {
		if err := s.options.Prompts.Answer(requested, accepted); err != nil {
			return mapUpdateError(err)
		}
		return nil
	}

	if requested != "" {
		if rec := ctrl.Status().Record; rec == nil || rec.Version != requested {
			return huma.Error409Conflict("Prompt is for a different version")
		}
	}

	var err error
	if accepted {
		err = ctrl.Confirm()
	} else {
		err = ctrl.Cancel()
	}
	if err != nil {
		return mapUpdateError(err)
	}
	return nil
}

func (s *Server) pendingPrompt(ctrl UpdateController) (models.UpdatePromptData, bool) {
	if s.options.Prompts != nil {
		pending, ok := s.options.Prompts.Pending()
		if !ok {
			return models.UpdatePromptData{}, false
		}
		p := pending.Prompt
		return models.UpdatePromptData{
			Version:      p.Version,
			Title:        p.Title,
			Message:      p.Message,
			Detail:       p.Detail,
			ConfirmLabel: p.ConfirmLabel,
			CancelLabel:  p.CancelLabel,
			ShownAt:      pending.ShownAt,
		}, true
	}

	// Without an API prompt UI only the version awaiting confirmation is known
	status := ctrl.Status()
	if status.State != updater.StateAwaitingConfirmation || status.Record == nil {
		return models.UpdatePromptData{}, false
	}
	return models.UpdatePromptData{
		Version:      status.Record.Version,
		Detail:       status.Record.ReleaseNotes,
		ConfirmLabel: updater.DefaultConfirmLabel,
		CancelLabel:  updater.DefaultCancelLabel,
	}, true
}

// registerDisabledUpdateRoutes registers endpoints that return 503 when update is disabled.
func (s *Server) registerDisabledUpdateRoutes(reason string) {
	if reason == "" {
		reason = "automatic updates are turned off"
	}
	disabledHandler := func(_ context.Context, _ *struct{}) (*struct{}, error) {
		return nil, huma.Error503ServiceUnavailable("Update service disabled: " + reason)
	}

	routes := []struct {
		id, method, path, summary string
	}{
		{"get-update-status", http.MethodGet, "/api/update/status", "Get Update Status"},
		{"check-updates", http.MethodPost, "/api/update/check", "Check for Updates"},
		{"get-update-prompt", http.MethodGet, "/api/update/prompt", "Get Update Prompt"},
		{"confirm-update", http.MethodPost, "/api/update/confirm", "Confirm Update"},
		{"cancel-update", http.MethodPost, "/api/update/cancel", "Cancel Update"},
	}
	for _, r := range routes {
		huma.Register(s.api, huma.Operation{
			OperationID: r.id,
			Method:      r.method,
			Path:        r.path,
			Summary:     r.summary,
			Description: r.summary + " (disabled)",
			Tags:        []string{"update"},
			Errors:      []int{503},
			Security:    withAuth(),
		}, disabledHandler)
	}
}

func statusData(st updater.Status) models.UpdateStatusData {
	data := models.UpdateStatusData{
		Enabled:         true,
		State:           string(st.State),
		Channel:         string(st.Channel),
		CurrentVersion:  st.CurrentVersion,
		PromptedVersion: st.PromptedVersion,
		LastChecked:     st.LastChecked,
		LastError:       st.LastError,
	}
	if rec := st.Record; rec != nil {
		data.Update = &models.UpdateRecordData{
			Version:       rec.Version,
			DownloadState: string(rec.DownloadState),
			ReleaseNotes:  rec.ReleaseNotes,
			ReleaseURL:    rec.ReleaseURL,
		}
		if !rec.PublishedAt.IsZero() {
			data.Update.PublishedAt = rec.PublishedAt.Format(time.RFC3339)
		}
	}
	return data
}

func actionResponse(message string, state updater.State) *models.UpdateActionResponse {
	resp := &models.UpdateActionResponse{}
	resp.Body.Message = message
	resp.Body.State = string(state)
	return resp
}
