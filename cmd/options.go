package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/smazurov/appshell/internal/config"
	"github.com/smazurov/appshell/internal/logging"
)

// updaterOptions are the config keys the maintenance commands share with
// the server. Flag names follow the field names, so flags set on the
// command line win over the config file.
type updaterOptions struct {
	Config string

	AppName              string `toml:"app.name" env:"APP_NAME"`
	AppDataDir           string `toml:"app.data_dir" env:"APP_DATA_DIR"`
	UpdaterRepository    string `toml:"updater.repository" env:"UPDATER_REPOSITORY"`
	UpdaterBaseURL       string `toml:"updater.base_url" env:"UPDATER_BASE_URL"`
	UpdaterAPIToken      string `toml:"updater.api_token" env:"UPDATER_API_TOKEN"`
	UpdaterChecksumsFile string `toml:"updater.checksums_file" env:"UPDATER_CHECKSUMS_FILE"`
	UpdaterBeta          bool   `toml:"updater.beta" env:"UPDATER_BETA"`
	LoggingLevel         string `toml:"logging.level" env:"LOGGING_LEVEL"`
}

func (o *updaterOptions) addFlags(c *cobra.Command) {
	f := c.Flags()
	f.StringVarP(&o.Config, "config", "c", "config.toml", "Path to configuration file")
	f.StringVar(&o.AppName, "app-name", "AppShell", "Application name shown in update prompts")
	f.StringVar(&o.AppDataDir, "app-data-dir", "", "Data directory for staged updates (default: user config dir)")
	f.StringVar(&o.UpdaterRepository, "updater-repository", "", "GitHub repository (owner/name) publishing releases")
	f.StringVar(&o.UpdaterBaseURL, "updater-base-url", "", "Generic HTTP release feed used instead of GitHub")
	f.StringVar(&o.UpdaterAPIToken, "updater-api-token", "", "GitHub API token")
	f.StringVar(&o.UpdaterChecksumsFile, "updater-checksums-file", "", "Release asset holding SHA-256 checksums")
	f.BoolVar(&o.UpdaterBeta, "updater-beta", false, "Follow the beta channel")
	f.StringVar(&o.LoggingLevel, "logging-level", "warn", "Logging level (debug, info, warn, error)")
}

// load applies the config file and environment, then sets up logging.
func (o *updaterOptions) load(c *cobra.Command) error {
	if err := config.LoadConfig(o, c); err != nil {
		return err
	}
	logging.Initialize(logging.Config{
		Level:  o.LoggingLevel,
		Format: "text",
		Debug:  os.Getenv("DEBUG"),
	})
	return nil
}

func (o *updaterOptions) stagingDir() (string, error) {
	dir := o.AppDataDir
	if dir == "" {
		base, err := os.UserConfigDir()
		if err != nil {
			return "", fmt.Errorf("failed to find user config dir: %w", err)
		}
		dir = filepath.Join(base, strings.ToLower(strings.ReplaceAll(o.AppName, " ", "-")))
	}
	return filepath.Join(dir, "updates"), nil
}

// PrintConfigKeys lists the toml key, environment variable and default of
// every field of opts.
func PrintConfigKeys(w io.Writer, opts any, envPrefix string) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "KEY\tENV\tDEFAULT")

	t := reflect.TypeOf(opts)
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		key := field.Tag.Get("toml")
		if key == "" {
			continue
		}
		env := ""
		if e := field.Tag.Get("env"); e != "" {
			env = envPrefix + e
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", key, env, field.Tag.Get("default"))
	}
	_ = tw.Flush()
}
