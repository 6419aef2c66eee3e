package updater

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/creativeprojects/go-selfupdate"
	"golang.org/x/sync/singleflight"

	"github.com/smazurov/appshell/internal/events"
	"github.com/smazurov/appshell/internal/logging"
)

const (
	defaultCommandName  = "appshell"
	defaultCheckTimeout = 10 * time.Minute
	devVersion          = "dev"
)

// Restarter restarts the application after an update is installed.
type Restarter interface {
	Restart()
}

// SourceOptions configures a ReleaseSource.
type SourceOptions struct {
	Repository string // "owner/repo"
	// BaseURL selects a generic HTTP release feed instead of GitHub.
	BaseURL  string
	APIToken string
	// ChecksumsFile enables checksum validation against the named release
	// asset, e.g. "checksums.txt".
	ChecksumsFile  string
	CurrentVersion string
	// CommandName is the executable name looked up inside release archives.
	CommandName string
	// ExecutablePath is the binary replaced on install. Defaults to the
	// running executable.
	ExecutablePath string
	OS             string
	Arch           string
	CheckTimeout   time.Duration

	Stager    *Stager
	EventBus  *events.Bus
	Restarter Restarter
	// Source overrides the GitHub/HTTP source.
	Source selfupdate.Source
}

// ReleaseSource is an UpdateSource backed by go-selfupdate. Checks run in
// the background; lifecycle events are published on the event bus.
type ReleaseSource struct {
	source         selfupdate.Source
	repo           selfupdate.Repository
	validator      selfupdate.Validator
	os             string
	arch           string
	commandName    string
	currentVersion string
	execPath       string
	checkTimeout   time.Duration
	stager         *Stager
	bus            *events.Bus
	restarter      Restarter

	mu       sync.RWMutex
	settings SourceSettings
	updater  *selfupdate.Updater

	group  singleflight.Group
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	logger *slog.Logger
}

var setLibraryLogger sync.Once

// NewReleaseSource creates a release source. It is configured for the
// stable channel until Configure is called.
func NewReleaseSource(opts SourceOptions) (*ReleaseSource, error) {
	logger := logging.GetLogger("updater-source")

	if opts.Repository == "" {
		return nil, newError(ErrCodeInvalidConfig, "repository is required", nil)
	}
	if opts.Stager == nil {
		return nil, newError(ErrCodeInvalidConfig, "stager is required", nil)
	}

	source := opts.Source
	if source == nil {
		var err error
		if opts.BaseURL != "" {
			source, err = selfupdate.NewHttpSource(selfupdate.HttpConfig{BaseURL: opts.BaseURL})
		} else {
			source, err = selfupdate.NewGitHubSource(selfupdate.GitHubConfig{APIToken: opts.APIToken})
		}
		if err != nil {
			return nil, fmt.Errorf("failed to create release source: %w", err)
		}
	}

	var validator selfupdate.Validator
	if opts.ChecksumsFile != "" {
		validator = &selfupdate.ChecksumValidator{UniqueFilename: opts.ChecksumsFile}
	}

	bus := opts.EventBus
	if bus == nil {
		bus = events.New()
	}

	s := &ReleaseSource{
		source:         source,
		repo:           selfupdate.ParseSlug(opts.Repository),
		validator:      validator,
		os:             firstNonEmpty(opts.OS, runtime.GOOS),
		arch:           firstNonEmpty(opts.Arch, runtime.GOARCH),
		commandName:    firstNonEmpty(opts.CommandName, defaultCommandName),
		currentVersion: opts.CurrentVersion,
		execPath:       opts.ExecutablePath,
		checkTimeout:   opts.CheckTimeout,
		stager:         opts.Stager,
		bus:            bus,
		restarter:      opts.Restarter,
		logger:         logger,
	}
	if s.checkTimeout <= 0 {
		s.checkTimeout = defaultCheckTimeout
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())

	setLibraryLogger.Do(func() {
		selfupdate.SetLogger(libraryLogger{logger: logger})
	})

	s.Configure(SettingsForChannel(ChannelStable))
	return s, nil
}

// Configure implements UpdateSource.
func (s *ReleaseSource) Configure(settings SourceSettings) {
	updater, err := selfupdate.NewUpdater(selfupdate.Config{
		Source:     s.source,
		Validator:  s.validator,
		OS:         s.os,
		Arch:       s.arch,
		Prerelease: settings.AllowPrerelease,
	})
	if err != nil {
		s.logger.Error("Failed to configure updater", "error", err)
		return
	}

	s.mu.Lock()
	s.settings = settings
	s.updater = updater
	s.mu.Unlock()

	s.logger.Debug("Release source configured",
		"channel", settings.Channel,
		"allow_prerelease", settings.AllowPrerelease,
		"allow_downgrade", settings.AllowDowngrade,
		"auto_install_on_quit", settings.AutoInstallOnQuit)
}

// Settings returns the active settings.
func (s *ReleaseSource) Settings() SourceSettings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings
}

// CheckForUpdates implements UpdateSource. The check runs in the background
// and outlives ctx; concurrent calls share one check.
func (s *ReleaseSource) CheckForUpdates(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.ctx.Err(); err != nil {
		return newError(ErrCodeDisabled, "release source is closed", err)
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		_, _, _ = s.group.Do("check", func() (any, error) {
			s.check()
			return nil, nil
		})
	}()
	return nil
}

func (s *ReleaseSource) check() {
	ctx, cancel := context.WithTimeout(s.ctx, s.checkTimeout)
	defer cancel()

	s.mu.RLock()
	updater := s.updater
	settings := s.settings
	s.mu.RUnlock()

	rel, found, err := updater.DetectLatest(ctx, s.repo)
	if err != nil {
		s.emitError(newError(ErrCodeCheckFailed, "failed to detect latest release", err))
		return
	}
	if !found {
		s.logger.Debug("No release found", "repository", s.repo)
		s.emit(events.SourceUpdateNotAvailable, nil, nil)
		return
	}

	offer, err := s.shouldOffer(rel.Version(), settings)
	if err != nil {
		s.emitError(newError(ErrCodeCheckFailed, "failed to compare versions", err))
		return
	}
	if !offer {
		s.emit(events.SourceUpdateNotAvailable, nil, nil)
		return
	}

	info := &ReleaseInfo{
		Version:      rel.Version(),
		ReleaseNotes: rel.ReleaseNotes,
		ReleaseURL:   rel.URL,
		PublishedAt:  rel.PublishedAt,
	}
	s.emit(events.SourceUpdateAvailable, info, nil)

	if staged, ok := s.stager.StagedVersion(); ok && staged == info.Version {
		s.logger.Debug("Release already staged", "version", staged)
		s.emit(events.SourceUpdateDownloaded, info, nil)
		return
	}

	if err := s.download(ctx, rel); err != nil {
		s.emitError(err)
		return
	}
	s.emit(events.SourceUpdateDownloaded, info, nil)
}

// shouldOffer decides whether latest is an update for the running version.
// A dev build is always outdated.
func (s *ReleaseSource) shouldOffer(latest string, settings SourceSettings) (bool, error) {
	if s.currentVersion == "" || s.currentVersion == devVersion {
		return true, nil
	}

	current, err := semver.NewVersion(s.currentVersion)
	if err != nil {
		return false, fmt.Errorf("invalid current version %q: %w", s.currentVersion, err)
	}
	next, err := semver.NewVersion(latest)
	if err != nil {
		return false, fmt.Errorf("invalid release version %q: %w", latest, err)
	}

	switch {
	case next.GreaterThan(current):
		return true, nil
	case next.LessThan(current):
		return settings.AllowDowngrade, nil
	default:
		return false, nil
	}
}

func (s *ReleaseSource) download(ctx context.Context, rel *selfupdate.Release) error {
	data, err := s.readAsset(ctx, rel, rel.AssetID)
	if err != nil {
		return newError(ErrCodeDownloadFailed, fmt.Sprintf("failed to download %s", rel.AssetName), err)
	}

	if s.validator != nil {
		if err := s.validate(ctx, rel, data); err != nil {
			return newError(ErrCodeDownloadFailed, "release validation failed", err)
		}
	}

	asset, err := selfupdate.DecompressCommand(bytes.NewReader(data), rel.AssetName, s.commandName, s.os, s.arch)
	if err != nil {
		return newError(ErrCodeDownloadFailed, "failed to decompress release", err)
	}

	return s.stager.Stage(rel.Version(), asset)
}

// validate walks the release's validation chain, each asset validating the
// previous one.
func (s *ReleaseSource) validate(ctx context.Context, rel *selfupdate.Release, data []byte) error {
	if len(rel.ValidationChain) == 0 {
		return selfupdate.ErrValidationAssetNotFound
	}

	name := rel.AssetName
	for _, step := range rel.ValidationChain {
		validation, err := s.readAsset(ctx, rel, step.ValidationAssetID)
		if err != nil {
			return fmt.Errorf("failed to download %s: %w", step.ValidationAssetName, err)
		}
		if err := s.validator.Validate(name, data, validation); err != nil {
			return fmt.Errorf("failed to validate %s: %w", name, err)
		}
		name = step.ValidationAssetName
		data = validation
	}
	return nil
}

func (s *ReleaseSource) readAsset(ctx context.Context, rel *selfupdate.Release, assetID int64) ([]byte, error) {
	reader, err := s.source.DownloadReleaseAsset(ctx, rel, assetID)
	if err != nil {
		return nil, err
	}
	defer reader.Close()
	return io.ReadAll(reader)
}

// QuitAndInstall implements UpdateSource: the staged update replaces the
// executable and the application is restarted.
func (s *ReleaseSource) QuitAndInstall() error {
	version, err := s.install()
	if err != nil {
		return err
	}

	s.logger.Info("Update installed, restarting", "version", version)
	if s.restarter != nil {
		s.restarter.Restart()
	}
	return nil
}

// InstallOnQuit installs a staged update during shutdown when auto-install
// on quit is enabled. It reports whether an update was installed.
func (s *ReleaseSource) InstallOnQuit() (bool, error) {
	if !s.Settings().AutoInstallOnQuit {
		return false, nil
	}
	if _, ok := s.stager.StagedVersion(); !ok {
		return false, nil
	}
	if _, err := s.install(); err != nil {
		return false, err
	}
	return true, nil
}

func (s *ReleaseSource) install() (string, error) {
	exe := s.execPath
	if exe == "" {
		var err error
		exe, err = selfupdate.ExecutablePath()
		if err != nil {
			return "", newError(ErrCodeApplyFailed, "failed to get executable path", err)
		}
	}
	return s.stager.Apply(exe, s.currentVersion)
}

// Subscribe implements UpdateSource.
func (s *ReleaseSource) Subscribe(handler func(SourceEvent)) func() {
	return s.bus.Subscribe(func(e events.UpdateSourceEvent) {
		handler(toSourceEvent(e))
	})
}

// Close cancels running checks and waits for them to finish.
func (s *ReleaseSource) Close() {
	s.cancel()
	s.wg.Wait()
}

func (s *ReleaseSource) emitError(err error) {
	s.logger.Warn("Update source error", "error", err)
	s.emit(events.SourceError, nil, err)
}

func (s *ReleaseSource) emit(kind string, info *ReleaseInfo, err error) {
	ev := events.UpdateSourceEvent{
		Kind:      kind,
		Timestamp: time.Now().Format(time.RFC3339),
	}
	if info != nil {
		ev.Version = info.Version
		ev.ReleaseNotes = info.ReleaseNotes
		ev.ReleaseURL = info.ReleaseURL
		if !info.PublishedAt.IsZero() {
			ev.PublishedAt = info.PublishedAt.Format(time.RFC3339)
		}
	}
	if err != nil {
		ev.Error = err.Error()
	}
	s.bus.Publish(ev)
}

func toSourceEvent(e events.UpdateSourceEvent) SourceEvent {
	ev := SourceEvent{Kind: SourceEventKind(e.Kind)}
	if e.Error != "" {
		ev.Err = errors.New(e.Error)
	}
	if e.Version != "" {
		info := &ReleaseInfo{
			Version:      e.Version,
			ReleaseNotes: e.ReleaseNotes,
			ReleaseURL:   e.ReleaseURL,
		}
		if e.PublishedAt != "" {
			info.PublishedAt, _ = time.Parse(time.RFC3339, e.PublishedAt)
		}
		ev.Info = info
	}
	return ev
}

// libraryLogger routes go-selfupdate's log output to slog at debug level.
type libraryLogger struct {
	logger *slog.Logger
}

func (l libraryLogger) Print(v ...any) {
	l.logger.Debug(fmt.Sprint(v...))
}

func (l libraryLogger) Printf(format string, v ...any) {
	l.logger.Debug(fmt.Sprintf(format, v...))
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
