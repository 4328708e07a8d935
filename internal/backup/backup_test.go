package backup

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

func TestCreate_CopiesContent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "app.conf")
	if err := os.WriteFile(path, []byte("original content"), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	rec, err := Create(path)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if rec.BackupPath != path+Suffix {
		t.Errorf("backup path: got %q, want %q", rec.BackupPath, path+Suffix)
	}

	content, err := os.ReadFile(rec.BackupPath)
	if err != nil {
		t.Fatalf("ReadFile backup failed: %v", err)
	}
	if string(content) != "original content" {
		t.Errorf("backup content: got %q", content)
	}
}

func TestCreate_OwnerOnlyPermissions(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("unix permission bits")
	}
	dir := t.TempDir()
	path := filepath.Join(dir, "secrets.env")
	if err := os.WriteFile(path, []byte("TOKEN=abc"), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	rec, err := Create(path)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	info, err := os.Stat(rec.BackupPath)
	if err != nil {
		t.Fatalf("Stat failed: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("backup perm: got %o, want 0600", perm)
	}
}

func TestCreate_RefusesMissingSource(t *testing.T) {
	dir := t.TempDir()
	_, err := Create(filepath.Join(dir, "nope.conf"))
	if !errors.Is(err, ErrSourceMissing) {
		t.Errorf("got %v, want ErrSourceMissing", err)
	}
}

func TestCreate_RefusesNonRegularFile(t *testing.T) {
	dir := t.TempDir()
	_, err := Create(dir)
	if !errors.Is(err, ErrNotRegularFile) {
		t.Errorf("got %v, want ErrNotRegularFile", err)
	}
}

func TestCreate_RefusesExistingBackup(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "app.conf")
	if err := os.WriteFile(path, []byte("v1"), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	if _, err := Create(path); err != nil {
		t.Fatalf("first Create failed: %v", err)
	}
	_, err := Create(path)
	if !errors.Is(err, ErrBackupExists) {
		t.Errorf("got %v, want ErrBackupExists", err)
	}

	// The earlier safety copy is untouched.
	content, _ := os.ReadFile(path + Suffix)
	if string(content) != "v1" {
		t.Errorf("prior backup was modified: %q", content)
	}
}

func TestRestore_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "app.conf")
	if err := os.WriteFile(path, []byte("before"), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	rec, err := Create(path)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := os.WriteFile(path, []byte("after"), 0644); err != nil {
		t.Fatalf("overwrite failed: %v", err)
	}

	if err := Restore(rec); err != nil {
		t.Fatalf("Restore failed: %v", err)
	}
	content, _ := os.ReadFile(path)
	if string(content) != "before" {
		t.Errorf("restored content: got %q, want %q", content, "before")
	}
}
