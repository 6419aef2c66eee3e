package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2/humacli"
	"github.com/spf13/cobra"

	"github.com/smazurov/appshell/cmd"
	"github.com/smazurov/appshell/internal/api"
	"github.com/smazurov/appshell/internal/config"
	"github.com/smazurov/appshell/internal/events"
	"github.com/smazurov/appshell/internal/lifecycle"
	"github.com/smazurov/appshell/internal/logging"
	"github.com/smazurov/appshell/internal/metrics/exporters"
	"github.com/smazurov/appshell/internal/prompt"
	"github.com/smazurov/appshell/internal/telemetry"
	"github.com/smazurov/appshell/internal/updater"
	"github.com/smazurov/appshell/internal/version"
	"github.com/smazurov/appshell/internal/window"
)

// disableEnv turns automatic updates off when present, whatever its value.
const disableEnv = "APPSHELL_AUTO_UPDATE_DISABLE"

// Options for the CLI - flat structure with toml mapping.
type Options struct {
	Config string `help:"Path to configuration file" short:"c" default:"config.toml"`

	// Server settings
	Port       string `help:"Port to listen on" short:"p" default:":8090" toml:"server.port" env:"SERVER_PORT"`
	CORSOrigin string `help:"Origin allowed to call the API (empty allows any)" default:"" toml:"server.cors_origin" env:"SERVER_CORS_ORIGIN"`

	// Auth settings
	AuthUsername string `help:"Basic auth username" default:"admin" toml:"auth.username" env:"AUTH_USERNAME"`
	AuthPassword string `help:"Basic auth password" default:"password" toml:"auth.password" env:"AUTH_PASSWORD"`

	// Application settings
	AppName        string `help:"Application name shown in update prompts" default:"AppShell" toml:"app.name" env:"APP_NAME"`
	AppURL         string `help:"URL of the web application" default:"http://localhost:3000" toml:"app.url" env:"APP_URL"`
	AppDataDir     string `help:"Data directory for logs and staged updates (default: user config dir)" default:"" toml:"app.data_dir" env:"APP_DATA_DIR"`
	AppSystemdUnit string `help:"systemd unit restarted after an update (empty exits and lets the supervisor restart)" default:"" toml:"app.systemd_unit" env:"APP_SYSTEMD_UNIT"`
	AppSystemdUser bool   `help:"Use the user systemd instance for the unit" default:"true" toml:"app.systemd_user" env:"APP_SYSTEMD_USER"`

	// Window settings
	WindowCommand string `help:"Command launching a window; {url} and {id} are expanded" default:"chromium --app={url} --new-window" toml:"window.command" env:"WINDOW_COMMAND"`
	WindowCount   int    `help:"Windows opened at startup" default:"1" toml:"window.count" env:"WINDOW_COUNT"`

	// Updater settings
	UpdaterRepository    string `help:"GitHub repository (owner/name) publishing releases" default:"" toml:"updater.repository" env:"UPDATER_REPOSITORY"`
	UpdaterBaseURL       string `help:"Generic HTTP release feed used instead of GitHub" default:"" toml:"updater.base_url" env:"UPDATER_BASE_URL"`
	UpdaterAPIToken      string `help:"GitHub API token" default:"" toml:"updater.api_token" env:"UPDATER_API_TOKEN"`
	UpdaterChecksumsFile string `help:"Release asset holding SHA-256 checksums" default:"" toml:"updater.checksums_file" env:"UPDATER_CHECKSUMS_FILE"`
	UpdaterBeta          bool   `help:"Follow the beta channel" default:"false" toml:"updater.beta" env:"UPDATER_BETA"`
	UpdaterDelay         string `help:"Delay before the first update check" default:"2s" toml:"updater.delay" env:"UPDATER_DELAY"`
	UpdaterInterval      string `help:"Interval between update checks" default:"1h" toml:"updater.interval" env:"UPDATER_INTERVAL"`
	UpdaterDisabled      bool   `help:"Disable automatic updates" default:"false" toml:"updater.disabled" env:"UPDATER_DISABLED"`
	UpdaterConfirmMode   string `help:"How update prompts are answered (api, terminal, headless)" default:"api" toml:"updater.confirm_mode" env:"UPDATER_CONFIRM_MODE"`
	UpdaterAutoAccept    bool   `help:"Accept updates automatically in headless mode" default:"false" toml:"updater.auto_accept" env:"UPDATER_AUTO_ACCEPT"`
	UpdaterDebugNotices  bool   `help:"Show a notice every time an update check starts" default:"false" toml:"updater.debug_notices" env:"UPDATER_DEBUG_NOTICES"`

	// Telemetry settings
	TelemetryEnabled  bool   `help:"Report usage stats" default:"true" toml:"telemetry.enabled" env:"TELEMETRY_ENABLED"`
	TelemetryPixelURL string `help:"Stats pixel URL" default:"https://pixel.wp.com/b.gif" toml:"telemetry.pixel_url" env:"TELEMETRY_PIXEL_URL"`

	// Logging settings
	LoggingLevel   string `help:"Global logging level (debug, info, warn, error)" default:"info" toml:"logging.level" env:"LOGGING_LEVEL"`
	LoggingFormat  string `help:"Logging format (text, json)" default:"text" toml:"logging.format" env:"LOGGING_FORMAT"`
	LoggingFile    bool   `help:"Write a rotating log file under the data directory" default:"true" toml:"logging.file_enabled" env:"LOGGING_FILE_ENABLED"`
	LoggingUpdater string `help:"Updater logging level" default:"info" toml:"logging.updater" env:"LOGGING_UPDATER"`
	LoggingWindow  string `help:"Window logging level" default:"info" toml:"logging.window" env:"LOGGING_WINDOW"`
	LoggingAPI     string `help:"API logging level" default:"info" toml:"logging.api" env:"LOGGING_API"`
}

func main() {
	cli := humacli.New(func(hooks humacli.Hooks, opts *Options) {
		if loadErr := config.LoadConfig(opts, nil); loadErr != nil {
			slog.Warn("Failed to load config", "error", loadErr)
		}

		dataDir, dirErr := resolveDataDir(opts.AppDataDir, opts.AppName)
		if dirErr != nil {
			slog.Error("Failed to create data directory", "error", dirErr)
			os.Exit(1)
		}

		loggingConfig := logging.Config{
			Level:  opts.LoggingLevel,
			Format: opts.LoggingFormat,
			Modules: map[string]string{
				"updater": opts.LoggingUpdater,
				"window":  opts.LoggingWindow,
				"api":     opts.LoggingAPI,
			},
			Debug: os.Getenv("DEBUG"),
		}
		if opts.LoggingFile {
			loggingConfig.File = filepath.Join(dataDir, "logs", "appshell.log")
		}
		logging.Initialize(loggingConfig)

		logger := logging.GetLogger("main")
		logger.Info("Starting AppShell", "version", version.String(), "data_dir", dataDir)

		eventBus := events.New()
		publishLogs(eventBus)

		// Telemetry
		var reporter telemetry.Reporter
		if opts.TelemetryEnabled && opts.TelemetryPixelURL != "" {
			pixel, pixelErr := telemetry.NewPixelReporter(opts.TelemetryPixelURL)
			if pixelErr != nil {
				logger.Warn("Telemetry pixel disabled", "error", pixelErr)
			} else {
				reporter = pixel
			}
		}
		stats := telemetry.New(telemetry.Options{Reporter: reporter, EventBus: eventBus})

		// Lifecycle and windows
		appOpts := lifecycle.Options{EventBus: eventBus, Unit: opts.AppSystemdUnit}
		var units *lifecycle.UnitManager
		if opts.AppSystemdUnit != "" {
			var unitErr error
			units, unitErr = lifecycle.NewUnitManager(context.Background(), opts.AppSystemdUser)
			if unitErr != nil {
				logger.Warn("systemd unavailable, restarts will exit the process", "error", unitErr)
			} else {
				appOpts.Units = units
				if state, err := units.UnitStatus(context.Background(), opts.AppSystemdUnit); err == nil {
					logger.Info("Running under systemd", "unit", opts.AppSystemdUnit, "state", state)
				}
			}
		}
		app := lifecycle.New(appOpts)

		var windows *window.Manager
		if opts.WindowCount > 0 && opts.WindowCommand != "" {
			var winErr error
			windows, winErr = window.NewManager(window.Options{
				Command:   opts.WindowCommand,
				URL:       opts.AppURL,
				Registrar: app,
			})
			if winErr != nil {
				logger.Error("Invalid window configuration", "error", winErr)
				os.Exit(1)
			}
		}

		// Updater
		updates, disabledReason := newUpdater(opts, dataDir, eventBus, app, stats)

		apiOpts := &api.Options{
			AuthUsername:         opts.AuthUsername,
			AuthPassword:         opts.AuthPassword,
			EventBus:             eventBus,
			UpdateDisabledReason: disabledReason,
			PrometheusHandler:    exporters.HTTPHandler(),
			CORSOrigin:           opts.CORSOrigin,
		}
		if updates != nil {
			apiOpts.Updater = updates.controller
			if apiUI, ok := updates.ui.(*prompt.APIUI); ok {
				apiOpts.Prompts = apiUI
			}
		}
		if windows != nil {
			apiOpts.Windows = windows
		}
		server := api.NewServer(apiOpts)

		// Logging levels follow the config file
		watcher := config.NewConfigWatcher(opts.Config, config.LoadLoggingConfig, logger)
		watcher.OnReload(func(cfg logging.Config) {
			logging.SetLevels(cfg)
			logger.Info("Logging levels reloaded", "level", cfg.Level)
		})

		ctx, cancel := context.WithCancel(context.Background())

		hooks.OnStart(func() {
			if _, statErr := os.Stat(opts.Config); statErr == nil {
				if watchErr := watcher.Start(); watchErr != nil {
					logger.Warn("Config watcher disabled", "error", watchErr)
				}
			}

			stats.Start(ctx)
			if updates != nil {
				updates.scheduler.Start(ctx)
			}

			if windows != nil {
				// The last window closing quits, unless an update holds the guard
				app.OnAllWindowsClosed(func() { app.Quit() })
				for range opts.WindowCount {
					if _, openErr := windows.Open(); openErr != nil {
						logger.Error("Failed to open window", "error", openErr)
					}
				}
			}

			app.Ready()

			logger.Info("Starting HTTP server", "port", opts.Port)
			if startErr := server.Start(opts.Port); startErr != nil && !errors.Is(startErr, http.ErrServerClosed) {
				logger.Error("Failed to start HTTP server", "error", startErr)
				os.Exit(1)
			}
		})

		hooks.OnStop(func() {
			logger.Info("Shutting down")
			cancel()

			if stopErr := server.Stop(); stopErr != nil {
				logger.Error("Error stopping HTTP server", "error", stopErr)
			}
			if stopErr := watcher.Stop(); stopErr != nil {
				logger.Debug("Error stopping config watcher", "error", stopErr)
			}

			if updates != nil {
				updates.close(logger, app.RestartPending())
			}
			if windows != nil {
				windows.CloseAll()
			}
			stats.Stop()
			if units != nil {
				units.Close()
			}
			if closeErr := logging.Close(); closeErr != nil {
				fmt.Fprintln(os.Stderr, "failed to close log file:", closeErr)
			}
		})
	})

	root := cli.Root()
	root.Use = "appshell"
	root.Short = "Desktop shell for a web application, with automatic updates"
	subcommands := []*cobra.Command{
		cmd.CreateCheckCmd(),
		cmd.CreateRollbackCmd(),
		cmd.CreateVersionCmd(),
		{
			Use:   "config-keys",
			Short: "List configuration keys and their environment variables",
			Run: func(c *cobra.Command, _ []string) {
				cmd.PrintConfigKeys(c.OutOrStdout(), Options{}, config.EnvPrefix)
			},
		},
	}
	for _, sub := range subcommands {
		// Maintenance commands load their own options and never build the server
		sub.PersistentPreRun = func(*cobra.Command, []string) {}
		root.AddCommand(sub)
	}

	cli.Run()
}

// updaterStack is the update controller with its collaborators.
type updaterStack struct {
	controller *updater.Controller
	source     *updater.ReleaseSource
	scheduler  *updater.Scheduler
	ui         updater.UpdateUI
}

// newUpdater builds the update controller. It returns nil and a reason when
// updates are disabled.
func newUpdater(opts *Options, dataDir string, bus *events.Bus, app *lifecycle.App, stats *telemetry.Service) (*updaterStack, string) {
	logger := logging.GetLogger("main")

	if _, set := os.LookupEnv(disableEnv); set {
		return nil, disableEnv + " is set"
	}
	if opts.UpdaterDisabled {
		return nil, "updater.disabled is set"
	}
	if opts.UpdaterRepository == "" {
		return nil, "no release repository configured"
	}
	if !version.IsRelease() {
		return nil, "development build " + version.String() + " cannot be compared with releases"
	}

	delay, err := time.ParseDuration(opts.UpdaterDelay)
	if err != nil {
		logger.Warn("Invalid updater delay, using default", "value", opts.UpdaterDelay)
		delay = updater.DefaultCheckDelay
	}
	interval, err := time.ParseDuration(opts.UpdaterInterval)
	if err != nil {
		logger.Warn("Invalid updater interval, using default", "value", opts.UpdaterInterval)
		interval = updater.DefaultCheckInterval
	}

	stager, err := updater.NewStager(filepath.Join(dataDir, "updates"), logging.GetLogger("updater"))
	if err != nil {
		logger.Error("Updates disabled", "error", err)
		return nil, "staging directory unavailable"
	}

	source, err := updater.NewReleaseSource(updater.SourceOptions{
		Repository:     opts.UpdaterRepository,
		BaseURL:        opts.UpdaterBaseURL,
		APIToken:       opts.UpdaterAPIToken,
		ChecksumsFile:  opts.UpdaterChecksumsFile,
		CurrentVersion: version.String(),
		CommandName:    "appshell",
		Stager:         stager,
		EventBus:       bus,
		Restarter:      app,
	})
	if err != nil {
		logger.Error("Updates disabled", "error", err)
		return nil, "release source unavailable"
	}

	ui := newPromptUI(opts.UpdaterConfirmMode, opts.UpdaterAutoAccept, bus)

	channel := updater.ChannelStable
	if opts.UpdaterBeta {
		channel = updater.ChannelBeta
	}

	controller, err := updater.NewController(updater.Config{
		AppName:        opts.AppName,
		CurrentVersion: version.String(),
		Channel:        channel,
		DebugNotices:   opts.UpdaterDebugNotices,
	}, updater.Deps{
		Source:    source,
		UI:        ui,
		Lifecycle: app,
		Telemetry: stats,
		EventBus:  bus,
	})
	if err != nil {
		source.Close()
		logger.Error("Updates disabled", "error", err)
		return nil, "invalid updater configuration"
	}

	return &updaterStack{
		controller: controller,
		source:     source,
		scheduler:  updater.NewScheduler(controller, delay, interval),
		ui:         ui,
	}, ""
}

func (u *updaterStack) close(logger *slog.Logger, restarting bool) {
	u.scheduler.Stop()
	u.controller.Close()
	if !restarting {
		if installed, err := u.source.InstallOnQuit(); err != nil {
			logger.Error("Failed to install update on quit", "error", err)
		} else if installed {
			logger.Info("Installed staged update on quit")
		}
	}
	u.source.Close()
}

func newPromptUI(mode string, autoAccept bool, bus *events.Bus) updater.UpdateUI {
	switch strings.ToLower(mode) {
	case "terminal":
		return prompt.NewTerminalUI(nil, nil)
	case "headless":
		return prompt.NewHeadlessUI(autoAccept)
	default:
		return prompt.NewAPIUI(bus)
	}
}

// resolveDataDir returns the data directory, creating it if needed.
func resolveDataDir(dir, appName string) (string, error) {
	if dir == "" {
		base, err := os.UserConfigDir()
		if err != nil {
			return "", fmt.Errorf("failed to find user config dir: %w", err)
		}
		dir = filepath.Join(base, strings.ToLower(strings.ReplaceAll(appName, " ", "-")))
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create %s: %w", dir, err)
	}
	return dir, nil
}

// publishLogs forwards log entries to SSE clients.
func publishLogs(bus *events.Bus) {
	logging.SetLogCallback(func(entry logging.LogEntry) {
		bus.Publish(events.LogEntryEvent{
			Seq:        entry.Seq,
			Timestamp:  entry.Timestamp.Format(time.RFC3339Nano),
			Level:      entry.Level,
			Module:     entry.Module,
			Message:    entry.Message,
			Attributes: entry.Attributes,
		})
	})
}
