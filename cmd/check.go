package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/smazurov/appshell/internal/events"
	"github.com/smazurov/appshell/internal/lifecycle"
	"github.com/smazurov/appshell/internal/logging"
	"github.com/smazurov/appshell/internal/prompt"
	"github.com/smazurov/appshell/internal/telemetry"
	"github.com/smazurov/appshell/internal/updater"
	"github.com/smazurov/appshell/internal/version"
)

// answer is a prompt decision and the result of acting on it.
type answer struct {
	accepted bool
	err      error
}

// answerUI passes prompts to the wrapped UI and reports the answer once the
// controller has acted on it.
type answerUI struct {
	updater.UpdateUI
	answered chan answer
}

func (a *answerUI) RequestConfirmation(p updater.Prompt, respond func(accepted bool) error) {
	a.UpdateUI.RequestConfirmation(p, func(accepted bool) error {
		err := respond(accepted)
		a.answered <- answer{accepted: accepted, err: err}
		return err
	})
}

// CreateCheckCmd creates the check command: a one-off update check that
// asks for confirmation in the terminal and installs over the executable.
func CreateCheckCmd() *cobra.Command {
	var opts updaterOptions
	var yes bool
	var timeout time.Duration

	c := &cobra.Command{
		Use:   "check",
		Short: "Check for an update and install it",
		Long: `Checks the release feed once. When a newer version is found it is downloaded ` +
			`and a confirmation dialog is shown; accepting replaces the executable.`,
		Args: cobra.NoArgs,
		RunE: func(c *cobra.Command, _ []string) error {
			if err := opts.load(c); err != nil {
				return err
			}
			if opts.UpdaterRepository == "" {
				return errors.New("no release repository configured (--updater-repository)")
			}
			if !version.IsRelease() {
				return fmt.Errorf("cannot update a development build (version %s)", version.String())
			}

			ctx, cancel := context.WithTimeout(c.Context(), timeout)
			defer cancel()

			var ui updater.UpdateUI = prompt.NewTerminalUI(c.InOrStdin(), c.OutOrStdout())
			if yes {
				ui = prompt.NewHeadlessUI(true)
			}
			return runCheck(ctx, &opts, ui, c.OutOrStdout())
		},
	}

	opts.addFlags(c)
	c.Flags().BoolVarP(&yes, "yes", "y", false, "Install without asking")
	c.Flags().DurationVar(&timeout, "timeout", 5*time.Minute, "Give up after this long")
	return c
}

func runCheck(ctx context.Context, opts *updaterOptions, ui updater.UpdateUI, out io.Writer) error {
	logger := logging.GetLogger("check")

	dir, err := opts.stagingDir()
	if err != nil {
		return err
	}
	stager, err := updater.NewStager(dir, logging.GetLogger("updater"))
	if err != nil {
		return err
	}

	bus := events.New()
	source, err := updater.NewReleaseSource(updater.SourceOptions{
		Repository:     opts.UpdaterRepository,
		BaseURL:        opts.UpdaterBaseURL,
		APIToken:       opts.UpdaterAPIToken,
		ChecksumsFile:  opts.UpdaterChecksumsFile,
		CurrentVersion: version.String(),
		CommandName:    "appshell",
		Stager:         stager,
		EventBus:       bus,
	})
	if err != nil {
		return err
	}
	defer source.Close()

	channel := updater.ChannelStable
	if opts.UpdaterBeta {
		channel = updater.ChannelBeta
	}

	answers := &answerUI{UpdateUI: ui, answered: make(chan answer, 1)}
	ctrl, err := updater.NewController(updater.Config{
		AppName:        opts.AppName,
		CurrentVersion: version.String(),
		Channel:        channel,
	}, updater.Deps{
		Source:    source,
		UI:        answers,
		Lifecycle: lifecycle.New(lifecycle.Options{}),
		Telemetry: telemetry.New(telemetry.Options{}),
		EventBus:  bus,
	})
	if err != nil {
		return err
	}
	defer ctrl.Close()

	idle := make(chan struct{}, 1)
	unsub := bus.Subscribe(func(e events.UpdateStateChangedEvent) {
		// A failed install also lands in idle; it is reported with the answer
		if updater.State(e.To) == updater.StateIdle && updater.State(e.From) != updater.StateInstalling {
			select {
			case idle <- struct{}{}:
			default:
			}
		}
	})
	defer unsub()

	fmt.Fprintf(out, "Checking for updates (current version %s, %s channel)...\n", version.String(), channel)
	if err := ctrl.CheckForUpdates(ctx); err != nil {
		return err
	}

	select {
	case <-ctx.Done():
		return fmt.Errorf("update check did not finish: %w", ctx.Err())

	case <-idle:
		if st := ctrl.Status(); st.LastError != "" {
			return fmt.Errorf("update check failed: %s", st.LastError)
		}
		fmt.Fprintln(out, "You are running the latest version.")
		return nil

	case a := <-answers.answered:
		st := ctrl.Status()
		newVersion := ""
		if st.Record != nil {
			newVersion = st.Record.Version
		}
		if a.err != nil {
			return fmt.Errorf("failed to install %s: %w", newVersion, a.err)
		}
		if !a.accepted {
			fmt.Fprintf(out, "Update to %s postponed. It stays downloaded.\n", newVersion)
			return nil
		}
		logger.Info("Update installed", "version", newVersion)
		fmt.Fprintf(out, "Installed %s. Restart %s to use it.\n", newVersion, opts.AppName)
		return nil
	}
}

// CreateRollbackCmd creates the rollback command, restoring the executable
// replaced by the last update.
func CreateRollbackCmd() *cobra.Command {
	var opts updaterOptions

	c := &cobra.Command{
		Use:   "rollback",
		Short: "Restore the version replaced by the last update",
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, _ []string) error {
			if err := opts.load(c); err != nil {
				return err
			}
			dir, err := opts.stagingDir()
			if err != nil {
				return err
			}
			if _, statErr := os.Stat(dir); statErr != nil {
				return fmt.Errorf("no update data in %s", dir)
			}
			stager, err := updater.NewStager(dir, logging.GetLogger("updater"))
			if err != nil {
				return err
			}

			backup, ok := stager.BackupVersion()
			if !ok {
				return errors.New("no backup available, nothing to roll back")
			}
			if err := stager.Rollback(); err != nil {
				return err
			}
			fmt.Fprintf(c.OutOrStdout(), "Restored %s. Restart %s to use it.\n", backup, opts.AppName)
			return nil
		},
	}

	opts.addFlags(c)
	return c
}
