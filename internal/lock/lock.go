// Package lock provides the keyed mutexes serializing file-edit targets
// and the flock guard that keeps one engine process per session directory.
package lock

import (
	"fmt"
	"os"
	"sync"
	"syscall"
)

// PathMutexes hands out one mutex per key. The orchestrator keys them by
// cleaned file path so overlapping edits within a group serialize while
// disjoint ones may proceed.
type PathMutexes struct {
	mu      sync.Mutex
	mutexes map[string]*sync.Mutex
}

func NewPathMutexes() *PathMutexes {
	return &PathMutexes{mutexes: make(map[string]*sync.Mutex)}
}

func (m *PathMutexes) Lock(key string) {
	m.get(key).Lock()
}

func (m *PathMutexes) Unlock(key string) {
	m.get(key).Unlock()
}

func (m *PathMutexes) get(key string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	if mu, ok := m.mutexes[key]; ok {
		return mu
	}
	mu := &sync.Mutex{}
	m.mutexes[key] = mu
	return mu
}

// FileLock is an advisory flock holding the engine's PID. A second engine
// pointed at the same session directory fails fast instead of interleaving
// plans.
type FileLock struct {
	path string
	file *os.File
}

func NewFileLock(path string) *FileLock {
	return &FileLock{path: path}
}

func (fl *FileLock) TryLock() error {
	f, err := os.OpenFile(fl.path, os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return fmt.Errorf("open lock file: %w", err)
	}

	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		f.Close()
		return fmt.Errorf("acquire lock (another sysaidmin may be running): %w", err)
	}

	if err := f.Truncate(0); err != nil {
		fl.abandon(f)
		return fmt.Errorf("truncate lock file: %w", err)
	}
	if _, err := f.Seek(0, 0); err != nil {
		fl.abandon(f)
		return fmt.Errorf("seek lock file: %w", err)
	}
	if _, err := fmt.Fprintf(f, "%d\n", os.Getpid()); err != nil {
		fl.abandon(f)
		return fmt.Errorf("write PID to lock file: %w", err)
	}
	if err := f.Sync(); err != nil {
		fl.abandon(f)
		return fmt.Errorf("sync lock file: %w", err)
	}

	fl.file = f
	return nil
}

func (fl *FileLock) abandon(f *os.File) {
	syscall.Flock(int(f.Fd()), syscall.LOCK_UN)
	f.Close()
}

func (fl *FileLock) Unlock() error {
	if fl.file == nil {
		return nil
	}
	if err := syscall.Flock(int(fl.file.Fd()), syscall.LOCK_UN); err != nil {
		fl.file.Close()
		return fmt.Errorf("release lock: %w", err)
	}
	if err := fl.file.Close(); err != nil {
		return fmt.Errorf("close lock file: %w", err)
	}
	os.Remove(fl.path)
	fl.file = nil
	return nil
}
