// Package lock guards a profile directory against concurrent clients. The
// state store is a per-session singleton; two processes mutating the same
// profile independently would diverge, so the first client flocks the LOCK
// file and every later one gets a descriptive error.
package lock

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"
)

const lockFile = "LOCK"

// LockHeldError reports that another client owns the profile.
type LockHeldError struct {
	PID  int
	Path string
}

func (e *LockHeldError) Error() string {
	if e.PID > 0 {
		return fmt.Sprintf("profile in use by process %d (%s)", e.PID, e.Path)
	}
	return fmt.Sprintf("profile in use (%s)", e.Path)
}

// Lock is a held profile lock. Release it at shutdown; Release tolerates nil
// and repeated calls.
type Lock struct {
	file *os.File
	path string
}

// Acquire takes the exclusive profile lock, creating the directory if
// needed. A lock held elsewhere surfaces as LockHeldError carrying the
// owner's pid when it can be read back.
func Acquire(profileDir string) (*Lock, error) {
	if err := os.MkdirAll(profileDir, 0700); err != nil {
		return nil, fmt.Errorf("create profile dir: %w", err)
	}
	path := filepath.Join(profileDir, lockFile)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		_ = f.Close()
		return nil, &LockHeldError{PID: ownerPID(path), Path: path}
	}
	if err := writeOwner(f); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("record lock owner: %w", err)
	}
	return &Lock{file: f, path: path}, nil
}

// Release drops the lock and removes the file so no stale LOCK outlives the
// process. Nil-safe and idempotent.
func (l *Lock) Release() error {
	if l == nil || l.file == nil {
		return nil
	}
	_ = os.Remove(l.path)
	err := l.file.Close()
	l.file = nil
	return err
}

// writeOwner replaces the file content with the holder's pid and timestamp,
// which is what the losing process reports in its error.
func writeOwner(f *os.File) error {
	if err := f.Truncate(0); err != nil {
		return err
	}
	if _, err := f.Seek(0, 0); err != nil {
		return err
	}
	_, err := fmt.Fprintf(f, "pid=%d\nacquired=%s\n",
		os.Getpid(), time.Now().UTC().Format(time.RFC3339))
	return err
}

func ownerPID(path string) int {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0
	}
	for _, line := range strings.Split(string(data), "\n") {
		if v, ok := strings.CutPrefix(line, "pid="); ok {
			pid, _ := strconv.Atoi(strings.TrimSpace(v))
			return pid
		}
	}
	return 0
}
