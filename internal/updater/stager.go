package updater

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/creativeprojects/go-selfupdate/update"
)

const (
	stagingDirName     = "pending-update"
	stagedBinaryName   = "appshell.staged"
	stagedInfoFilename = "staged.json"
	backupInfoFilename = "backup.json"
	backupSuffix       = ".backup"
	execPerm           = 0o755
	execBit            = 0o100
)

type stagedInfo struct {
	Version  string    `json:"version"`
	Checksum string    `json:"checksum"`
	StagedAt time.Time `json:"staged_at"`
}

type backupInfo struct {
	Version    string    `json:"version"`
	CreatedAt  time.Time `json:"created_at"`
	ExecPath   string    `json:"exec_path"`
	BackupPath string    `json:"backup_path"`
}

// Stager keeps a downloaded executable on disk until the user confirms the
// update, then swaps it in place of the running binary. The replaced binary
// is kept next to it as a backup for rollback.
type Stager struct {
	mu     sync.RWMutex
	dir    string
	staged *stagedInfo
	backup *backupInfo
	logger *slog.Logger
}

// NewStager creates a stager rooted at dir and loads any previously staged
// update and backup metadata.
func NewStager(dir string, logger *slog.Logger) (*Stager, error) {
	if err := os.MkdirAll(filepath.Join(dir, stagingDirName), execPerm); err != nil {
		return nil, fmt.Errorf("failed to create staging directory: %w", err)
	}

	s := &Stager{dir: dir, logger: logger}
	s.loadInfo()
	return s, nil
}

func (s *Stager) stagingDir() string {
	return filepath.Join(s.dir, stagingDirName)
}

func (s *Stager) stagedBinaryPath() string {
	return filepath.Join(s.stagingDir(), stagedBinaryName)
}

func (s *Stager) loadInfo() {
	var staged stagedInfo
	if err := readJSON(filepath.Join(s.stagingDir(), stagedInfoFilename), &staged); err == nil {
		if s.stagedBinaryValid() {
			s.staged = &staged
			s.logger.Info("Found staged update", "version", staged.Version)
		} else {
			s.logger.Warn("Staged update metadata without binary, ignoring")
		}
	}

	var backup backupInfo
	if err := readJSON(filepath.Join(s.dir, backupInfoFilename), &backup); err == nil {
		if _, statErr := os.Stat(backup.BackupPath); statErr == nil {
			s.backup = &backup
			s.logger.Info("Loaded backup info", "version", backup.Version)
		} else {
			s.logger.Warn("Backup file missing", "path", backup.BackupPath)
		}
	}
}

func (s *Stager) stagedBinaryValid() bool {
	info, err := os.Stat(s.stagedBinaryPath())
	if err != nil {
		return false
	}
	return info.Mode().IsRegular() && info.Mode()&execBit != 0
}

// Stage writes the executable read from r as the pending update for version.
func (s *Stager) Stage(version string, r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return newError(ErrCodeStageFailed, "failed to read update payload", err)
	}
	if len(data) == 0 {
		return newError(ErrCodeStageFailed, "update payload is empty", nil)
	}

	sum := sha256.Sum256(data)
	info := stagedInfo{
		Version:  version,
		Checksum: hex.EncodeToString(sum[:]),
		StagedAt: time.Now(),
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(s.stagingDir(), execPerm); err != nil {
		return newError(ErrCodeStageFailed, "failed to create staging directory", err)
	}
	if err := os.WriteFile(s.stagedBinaryPath(), data, execPerm); err != nil {
		return newError(ErrCodeStageFailed, "failed to write staged binary", err)
	}
	// WriteFile keeps the mode of an existing file
	if err := os.Chmod(s.stagedBinaryPath(), execPerm); err != nil {
		return newError(ErrCodeStageFailed, "failed to mark staged binary executable", err)
	}
	if err := writeJSON(filepath.Join(s.stagingDir(), stagedInfoFilename), info); err != nil {
		return newError(ErrCodeStageFailed, "failed to write staged info", err)
	}

	s.staged = &info
	s.logger.Info("Update staged", "version", version, "size", len(data))
	return nil
}

// StagedVersion returns the version of the staged update, if any.
func (s *Stager) StagedVersion() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.staged == nil {
		return "", false
	}
	return s.staged.Version, true
}

// Apply replaces the executable at targetPath with the staged update and
// keeps the replaced binary, recorded as currentVersion, as the backup. It
// returns the installed version.
func (s *Stager) Apply(targetPath, currentVersion string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.staged == nil {
		return "", newError(ErrCodeNoStagedUpdate, "no staged update", nil)
	}
	staged := *s.staged

	f, err := os.Open(s.stagedBinaryPath())
	if err != nil {
		return "", newError(ErrCodeNoStagedUpdate, "failed to open staged binary", err)
	}
	defer f.Close()

	checksum, err := hex.DecodeString(staged.Checksum)
	if err != nil {
		return "", newError(ErrCodeApplyFailed, "invalid staged checksum", err)
	}

	backupPath := s.backupPathFor(targetPath)
	s.logger.Info("Applying staged update",
		"version", staged.Version, "target", targetPath, "backup", backupPath)

	if err := update.Apply(f, update.Options{
		TargetPath:  targetPath,
		TargetMode:  execPerm,
		Checksum:    checksum,
		OldSavePath: backupPath,
	}); err != nil {
		if rerr := update.RollbackError(err); rerr != nil {
			s.logger.Error("Failed to restore binary after failed update", "error", rerr)
		}
		return "", newError(ErrCodeApplyFailed, "failed to apply staged update", err)
	}

	backup := backupInfo{
		Version:    currentVersion,
		CreatedAt:  time.Now(),
		ExecPath:   targetPath,
		BackupPath: backupPath,
	}
	if err := writeJSON(filepath.Join(s.dir, backupInfoFilename), backup); err != nil {
		s.logger.Warn("Failed to write backup info", "error", err)
	}
	s.backup = &backup

	s.clearLocked()
	s.logger.Info("Update applied", "version", staged.Version)
	return staged.Version, nil
}

// Rollback restores the backup over the executable it replaced.
func (s *Stager) Rollback() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.backup == nil {
		return newError(ErrCodeNoBackup, "no backup available for rollback", nil)
	}
	backup := *s.backup

	data, err := os.ReadFile(backup.BackupPath)
	if err != nil {
		return newError(ErrCodeRollbackFailed, "failed to read backup", err)
	}

	if err := update.Apply(bytes.NewReader(data), update.Options{
		TargetPath: backup.ExecPath,
		TargetMode: execPerm,
	}); err != nil {
		return newError(ErrCodeRollbackFailed, "failed to restore backup", err)
	}

	_ = os.Remove(backup.BackupPath)
	_ = os.Remove(filepath.Join(s.dir, backupInfoFilename))
	s.backup = nil

	s.logger.Info("Backup restored", "version", backup.Version)
	return nil
}

// BackupVersion returns the version of the backed up binary, if any.
func (s *Stager) BackupVersion() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.backup == nil {
		return "", false
	}
	return s.backup.Version, true
}

// Clear discards the staged update.
func (s *Stager) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clearLocked()
}

func (s *Stager) clearLocked() error {
	s.staged = nil
	if err := os.RemoveAll(s.stagingDir()); err != nil {
		return fmt.Errorf("failed to clear staged update: %w", err)
	}
	return nil
}

// backupPathFor keeps the backup in the target's directory so the swap is
// a rename on the same filesystem.
func (s *Stager) backupPathFor(targetPath string) string {
	dir, name := filepath.Split(targetPath)
	return filepath.Join(dir, "."+name+backupSuffix)
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

func writeJSON(path string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
