package stage

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
)

const lockFileName = "run.lock"

// Lock is a PID lock file preventing two processes from executing stages
// in the same flow dir at once.
type Lock struct {
	path string
}

// NewLock creates a lock manager for the given flow directory.
func NewLock(flowDir string) *Lock {
	return &Lock{path: filepath.Join(flowDir, lockFileName)}
}

// Acquire takes the lock, cleaning up stale locks left by dead processes.
// Returns an error when another live process holds it.
func (l *Lock) Acquire() error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return fmt.Errorf("failed to create flow dir: %w", err)
	}

	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err == nil {
		_, writeErr := fmt.Fprintf(f, "%d", os.Getpid())
		f.Close()
		if writeErr != nil {
			os.Remove(l.path)
			return fmt.Errorf("failed to write lock file: %w", writeErr)
		}
		return nil
	}
	if !os.IsExist(err) {
		return fmt.Errorf("failed to create lock file: %w", err)
	}

	data, readErr := os.ReadFile(l.path)
	if readErr != nil {
		return fmt.Errorf("failed to read existing lock file: %w", readErr)
	}

	pid, parseErr := strconv.Atoi(strings.TrimSpace(string(data)))
	if parseErr == nil && processExists(pid) {
		return fmt.Errorf("another run is in progress (PID %d)", pid)
	}

	// Stale or invalid lock.
	if removeErr := os.Remove(l.path); removeErr != nil {
		return fmt.Errorf("failed to remove stale lock file: %w", removeErr)
	}
	return l.retryAcquire()
}

// retryAcquire tries once more after a stale lock was removed.
func (l *Lock) retryAcquire() error {
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return fmt.Errorf("lock acquired by another process during retry")
		}
		return fmt.Errorf("failed to create lock file on retry: %w", err)
	}
	_, writeErr := fmt.Fprintf(f, "%d", os.Getpid())
	f.Close()
	if writeErr != nil {
		os.Remove(l.path)
		return fmt.Errorf("failed to write lock file on retry: %w", writeErr)
	}
	return nil
}

// Release removes the lock file. Idempotent.
func (l *Lock) Release() error {
	err := os.Remove(l.path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove lock file: %w", err)
	}
	return nil
}

func processExists(pid int) bool {
	if pid == os.Getpid() {
		return true
	}
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return process.Signal(syscall.Signal(0)) == nil
}
