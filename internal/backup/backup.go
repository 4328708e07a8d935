// Package backup creates and restores point-in-time safety copies of
// files before the executor mutates them.
package backup

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
)

// Suffix is appended to the original path to form the backup path.
const Suffix = ".sysaidmin.bak"

var (
	ErrSourceMissing  = errors.New("source file does not exist")
	ErrNotRegularFile = errors.New("source is not a regular file")
	// ErrBackupExists means a safety copy from an unfinished prior
	// operation is still on disk; it is never silently overwritten.
	ErrBackupExists = errors.New("backup already exists")
)

// Record identifies one completed backup.
type Record struct {
	OriginalPath string    `json:"original_path"`
	BackupPath   string    `json:"backup_path"`
	CreatedAt    time.Time `json:"created_at"`
}

// PathFor returns the backup location for a given original path.
func PathFor(original string) string {
	return original + Suffix
}

// Create copies path to its backup location and confirms the copy is on
// disk before returning. The copy is written owner-only regardless of the
// original's mode, since edited files may contain secrets. The
// refuse-if-exists rule gives mutual exclusion per path by construction.
func Create(path string) (Record, error) {
	info, err := os.Lstat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Record{}, fmt.Errorf("backup %s: %w", path, ErrSourceMissing)
		}
		return Record{}, fmt.Errorf("backup %s: %w", path, err)
	}
	if !info.Mode().IsRegular() {
		return Record{}, fmt.Errorf("backup %s: %w", path, ErrNotRegularFile)
	}

	bakPath := PathFor(path)
	out, err := os.OpenFile(bakPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0600)
	if err != nil {
		if os.IsExist(err) {
			return Record{}, fmt.Errorf("backup %s: %w at %s", path, ErrBackupExists, bakPath)
		}
		return Record{}, fmt.Errorf("create backup %s: %w", bakPath, err)
	}

	in, err := os.Open(path)
	if err != nil {
		out.Close()
		os.Remove(bakPath)
		return Record{}, fmt.Errorf("open source %s: %w", path, err)
	}
	defer in.Close()

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(bakPath)
		return Record{}, fmt.Errorf("copy to backup %s: %w", bakPath, err)
	}
	if err := out.Sync(); err != nil {
		out.Close()
		os.Remove(bakPath)
		return Record{}, fmt.Errorf("sync backup %s: %w", bakPath, err)
	}
	if err := out.Close(); err != nil {
		os.Remove(bakPath)
		return Record{}, fmt.Errorf("close backup %s: %w", bakPath, err)
	}

	return Record{
		OriginalPath: path,
		BackupPath:   bakPath,
		CreatedAt:    time.Now().UTC(),
	}, nil
}

// Restore copies the backup content back over the original via temp file
// and rename, so an interrupted restore never half-writes the target.
// Restore is operator-facing; the engine never invokes it automatically.
func Restore(rec Record) error {
	content, err := os.ReadFile(rec.BackupPath)
	if err != nil {
		return fmt.Errorf("read backup %s: %w", rec.BackupPath, err)
	}

	mode := os.FileMode(0644)
	if info, err := os.Stat(rec.OriginalPath); err == nil {
		mode = info.Mode().Perm()
	}

	tmp, err := os.CreateTemp(filepath.Dir(rec.OriginalPath), ".sysaidmin-restore-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}()

	if _, err := tmp.Write(content); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(tmpName, mode); err != nil {
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := os.Rename(tmpName, rec.OriginalPath); err != nil {
		return fmt.Errorf("atomic rename: %w", err)
	}
	return nil
}
