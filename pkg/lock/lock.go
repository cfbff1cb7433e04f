package lock

import (
	"fmt"
	"os"
	"path/filepath"
	"syscall"

	"github.com/pkg/errors"
)

// AlreadyLockedError is returned when another process holds the instance lock.
type AlreadyLockedError struct {
	Path string
}

func (a AlreadyLockedError) Error() string {
	return fmt.Sprintf("instance lock already held: %s", a.Path)
}

// InstanceLock is a single-instance lock implemented with a PID file and
// flock(2). The lock lives as long as the file descriptor stays open.
type InstanceLock struct {
	path string
	f    *os.File
}

// Acquire takes an exclusive non-blocking lock at lockPath and writes the
// current PID into the file. A held lock yields AlreadyLockedError.
func Acquire(lockPath string) (*InstanceLock, error) {
	if lockPath == "" {
		return nil, errors.New("lock path is empty")
	}

	if err := os.MkdirAll(filepath.Dir(lockPath), 0o755); err != nil {
		return nil, errors.Wrap(err, "Acquire: creating lock directory")
	}

	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, errors.Wrap(err, "Acquire: opening lock file")
	}

	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		_ = f.Close()
		if errors.Is(err, syscall.EWOULDBLOCK) {
			return nil, &AlreadyLockedError{Path: lockPath}
		}
		return nil, errors.Wrap(err, "Acquire: flock")
	}

	if err := f.Truncate(0); err != nil {
		_ = f.Close()
		return nil, errors.Wrap(err, "Acquire: truncating lock file")
	}
	if _, err := fmt.Fprintf(f, "%d\n", os.Getpid()); err != nil {
		_ = f.Close()
		return nil, errors.Wrap(err, "Acquire: writing pid")
	}

	return &InstanceLock{path: lockPath, f: f}, nil
}

func (l *InstanceLock) Path() string { return l.path }

// Release drops the lock. It is safe to call on a nil lock.
func (l *InstanceLock) Release() error {
	if l == nil || l.f == nil {
		return nil
	}
	_ = syscall.Flock(int(l.f.Fd()), syscall.LOCK_UN)
	err := l.f.Close()
	l.f = nil
	return err
}
