package updater

import (
	"strings"
)

// Default prompt texts. {name}, {currentVersion} and {newVersion} are
// expanded when the prompt is built.
const (
	DefaultDialogTitle   = "A new version of {name} is available!"
	DefaultDialogMessage = "{name} {newVersion} is now available. You have {currentVersion}. Would you like to update now?"
	DefaultConfirmLabel  = "Update & Restart"
	DefaultCancelLabel   = "Cancel"
)

// PromptTexts holds the prompt templates.
type PromptTexts struct {
	Title        string
	Message      string
	ConfirmLabel string
	CancelLabel  string
}

func (t PromptTexts) withDefaults() PromptTexts {
	if t.Title == "" {
		t.Title = DefaultDialogTitle
	}
	if t.Message == "" {
		t.Message = DefaultDialogMessage
	}
	if t.ConfirmLabel == "" {
		t.ConfirmLabel = DefaultConfirmLabel
	}
	if t.CancelLabel == "" {
		t.CancelLabel = DefaultCancelLabel
	}
	return t
}

// UpdaterState is the channel-independent part of an updater: the running
// and discovered versions, the prompt texts, and which version the user
// has already been asked about.
type UpdaterState struct {
	appName         string
	currentVersion  string
	newVersion      string
	promptedVersion string
	channel         Channel
	goos            string
	texts           PromptTexts
}

// NewUpdaterState creates the state for an application at currentVersion.
func NewUpdaterState(appName, currentVersion string, channel Channel, goos string, texts PromptTexts) UpdaterState {
	return UpdaterState{
		appName:        appName,
		currentVersion: currentVersion,
		channel:        channel,
		goos:           goos,
		texts:          texts.withDefaults(),
	}
}

// Beta reports whether the updater follows the beta channel.
func (u *UpdaterState) Beta() bool {
	return u.channel == ChannelBeta
}

// Channel returns the update channel.
func (u *UpdaterState) Channel() Channel {
	return u.channel
}

// CurrentVersion returns the running version.
func (u *UpdaterState) CurrentVersion() string {
	return u.currentVersion
}

// NewVersion returns the most recently downloaded version.
func (u *UpdaterState) NewVersion() string {
	return u.newVersion
}

// setVersion records a newly downloaded version.
func (u *UpdaterState) setVersion(version string) {
	u.newVersion = version
}

// PromptedVersion returns the last version the user was prompted for.
func (u *UpdaterState) PromptedVersion() string {
	return u.promptedVersion
}

// markPrompted records version as prompted. It returns false if the user
// was already prompted for that version.
func (u *UpdaterState) markPrompted(version string) bool {
	if u.promptedVersion == version {
		return false
	}
	u.promptedVersion = version
	return true
}

func (u *UpdaterState) clearPrompted() {
	u.promptedVersion = ""
}

// Expand replaces the {name}, {currentVersion} and {newVersion} macros.
func (u *UpdaterState) Expand(text string) string {
	return strings.NewReplacer(
		"{name}", u.appName,
		"{currentVersion}", u.currentVersion,
		"{newVersion}", u.newVersion,
	).Replace(text)
}

// Prompt builds the confirmation prompt for the current new version.
func (u *UpdaterState) Prompt(detail string) Prompt {
	return Prompt{
		Version:      u.newVersion,
		Title:        u.Expand(u.texts.Title),
		Message:      u.Expand(u.texts.Message),
		Detail:       detail,
		ConfirmLabel: SanitizeButtonLabel(u.Expand(u.texts.ConfirmLabel), u.goos),
		CancelLabel:  SanitizeButtonLabel(u.Expand(u.texts.CancelLabel), u.goos),
	}
}

// SanitizeButtonLabel escapes "&" on platforms where a single ampersand
// marks a mnemonic.
func SanitizeButtonLabel(label, goos string) string {
	if goos == "darwin" {
		return label
	}
	return strings.ReplaceAll(label, "&", "&&")
}
