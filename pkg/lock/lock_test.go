package lock_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wrouesnel/sheets-replicator/pkg/lock"
)

func TestAcquireWritesPID(t *testing.T) {
	lockPath := filepath.Join(t.TempDir(), "replicator.lock")

	l, err := lock.Acquire(lockPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Release() })

	assert.Equal(t, lockPath, l.Path())

	content, err := os.ReadFile(lockPath)
	require.NoError(t, err)
	assert.NotEmpty(t, strings.TrimSpace(string(content)))
}

func TestAcquireHeldLock(t *testing.T) {
	lockPath := filepath.Join(t.TempDir(), "replicator.lock")

	first, err := lock.Acquire(lockPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = first.Release() })

	_, err = lock.Acquire(lockPath)
	require.Error(t, err)

	alreadyLocked := &lock.AlreadyLockedError{}
	assert.True(t, errors.As(err, &alreadyLocked))
}

func TestReleaseAllowsReacquire(t *testing.T) {
	lockPath := filepath.Join(t.TempDir(), "replicator.lock")

	first, err := lock.Acquire(lockPath)
	require.NoError(t, err)
	require.NoError(t, first.Release())

	second, err := lock.Acquire(lockPath)
	require.NoError(t, err)
	require.NoError(t, second.Release())
}

func TestReleaseNilLockIsSafe(t *testing.T) {
	var l *lock.InstanceLock
	require.NoError(t, l.Release())
}

func TestAcquireEmptyPath(t *testing.T) {
	_, err := lock.Acquire("")
	require.Error(t, err)
}
