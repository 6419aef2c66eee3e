package models

import "time"

// UpdateRecordData describes the discovered update.
type UpdateRecordData struct {
	Version       string `json:"version" example:"1.3.0" doc:"Discovered version"`
	DownloadState string `json:"download_state" example:"downloaded" doc:"not-started, downloading or downloaded"`
	ReleaseNotes  string `json:"release_notes,omitempty" doc:"Markdown release notes"`
	ReleaseURL    string `json:"release_url,omitempty" doc:"URL to the release page"`
	PublishedAt   string `json:"published_at,omitempty" example:"2025-01-27T10:30:00Z" doc:"When the release was published"`
}

// UpdateStatusData contains the current update controller state.
type UpdateStatusData struct {
	Enabled         bool              `json:"enabled" example:"true" doc:"Whether automatic updates are enabled"`
	State           string            `json:"state" example:"idle" doc:"Controller state"`
	Channel         string            `json:"channel" example:"stable" doc:"Update channel"`
	CurrentVersion  string            `json:"current_version" example:"1.2.3" doc:"Running version"`
	Update          *UpdateRecordData `json:"update,omitempty" doc:"Discovered update, if any"`
	PromptedVersion string            `json:"prompted_version,omitempty" example:"1.3.0" doc:"Last version the user was prompted for"`
	LastChecked     *time.Time        `json:"last_checked,omitempty" doc:"When updates were last checked"`
	LastError       string            `json:"last_error,omitempty" doc:"Last update source error"`
}

// UpdateStatusResponse wraps UpdateStatusData for API responses.
type UpdateStatusResponse struct {
	Body UpdateStatusData
}

// UpdatePromptData is the confirmation prompt waiting for an answer.
type UpdatePromptData struct {
	Version      string    `json:"version" example:"1.3.0" doc:"Version awaiting confirmation"`
	Title        string    `json:"title" doc:"Prompt title"`
	Message      string    `json:"message" doc:"Prompt message"`
	Detail       string    `json:"detail,omitempty" doc:"Release notes shown with the prompt"`
	ConfirmLabel string    `json:"confirm_label" example:"Update & Restart" doc:"Confirm button label"`
	CancelLabel  string    `json:"cancel_label" example:"Cancel" doc:"Cancel button label"`
	ShownAt      time.Time `json:"shown_at" doc:"When the prompt was shown"`
}

// UpdatePromptResponse wraps UpdatePromptData for API responses.
type UpdatePromptResponse struct {
	Body UpdatePromptData
}

// UpdateAnswerData selects the prompt being answered.
type UpdateAnswerData struct {
	Version string `json:"version,omitempty" example:"1.3.0" doc:"Version being answered; empty answers the pending prompt"`
}

// UpdateAnswerRequest is the body of confirm and cancel requests.
type UpdateAnswerRequest struct {
	Body *UpdateAnswerData `required:"false"`
}

// UpdateActionResponse reports the outcome of an update action.
type UpdateActionResponse struct {
	Body struct {
		Message string `json:"message" example:"Update check started" doc:"Status message"`
		State   string `json:"state" example:"checking" doc:"Controller state after the action"`
	}
}
