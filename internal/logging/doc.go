// Package logging configures log/slog for the whole process.
//
// Each package asks for its own logger:
//
//	logger := logging.GetLogger("updater")
//	logger.Info("Update downloaded", "version", v)
//
// Loggers are cached per module and keep a slog.LevelVar, so Initialize and
// SetLevels change their level in place, including for loggers created
// before Initialize ran.
//
// # Levels
//
// A module's level comes from, in order: the Debug globs, the module entry
// in Config.Modules, then Config.Level. Debug is a comma separated list of
// path.Match globs; a leading "-" excludes a module:
//
//	DEBUG="updater*,-updater-source" appshell
//
// In TOML:
//
//	[logging]
//	level = "info"
//	format = "json"
//
//	[logging.modules]
//	updater = "debug"
//
// # Outputs
//
// Every record goes to each available output:
//
//   - stdout, as text or JSON, unless stdout is closed or /dev/null
//   - the systemd journal when its socket exists, with attributes as fields
//     (journalctl -t appshell MODULE=updater VERSION=1.3.0)
//   - a rotating file when Config.File is set (lumberjack, MaxSizeMB per
//     file, MaxFiles kept), one line per record:
//     [2006-01-02 15:04:05.000] [updater] [info] Update downloaded {"version":"1.3.0"}
//   - an in-memory ring buffer read by the log stream API. Entries carry a
//     sequence number and SetLogCallback receives each one as it is stored.
package logging
