package lock

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestAcquire_Exclusive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "packtrack.lock")

	l, err := Acquire(path, time.Hour)
	require.NoError(t, err)

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(string(b), strconv.Itoa(os.Getpid())+" "))

	_, err = Acquire(path, time.Hour)
	require.ErrorIs(t, err, ErrLocked)
	require.Contains(t, err.Error(), "pid ")

	require.NoError(t, l.Release())
	_, err = os.Stat(path)
	require.NoError(t, err, "lock file stays after release")

	l2, err := Acquire(path, time.Hour)
	require.NoError(t, err)
	require.NoError(t, l2.Release())
}

func TestAcquire_BreaksStale(t *testing.T) {
	path := filepath.Join(t.TempDir(), "packtrack.lock")

	old, err := Acquire(path, time.Minute)
	require.NoError(t, err)
	defer func() { _ = old.fl.Unlock() }()

	past := time.Now().Add(-2 * time.Minute)
	require.NoError(t, os.Chtimes(path, past, past))

	l, err := Acquire(path, time.Minute)
	require.NoError(t, err)
	defer l.Release()

	require.ErrorIs(t, old.Touch(), ErrLost)
	require.NoError(t, l.Touch())
}

func TestAcquire_FreshLockNotBroken(t *testing.T) {
	path := filepath.Join(t.TempDir(), "packtrack.lock")

	l, err := Acquire(path, time.Minute)
	require.NoError(t, err)
	defer l.Release()

	for i := 0; i < 3; i++ {
		_, err = Acquire(path, time.Minute)
		require.ErrorIs(t, err, ErrLocked)
	}
	require.NoError(t, l.Touch())
}

func TestRelease_ReacquireSameFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "packtrack.lock")

	l, err := Acquire(path, time.Minute)
	require.NoError(t, err)
	before, err := os.Stat(path)
	require.NoError(t, err)
	require.NoError(t, l.Release())
	require.NoError(t, l.Release())

	l2, err := Acquire(path, time.Minute)
	require.NoError(t, err)
	defer l2.Release()
	after, err := os.Stat(path)
	require.NoError(t, err)
	require.True(t, os.SameFile(before, after))
}

func TestTouch_KeepsFresh(t *testing.T) {
	path := filepath.Join(t.TempDir(), "packtrack.lock")

	l, err := Acquire(path, time.Minute)
	require.NoError(t, err)
	defer l.Release()

	past := time.Now().Add(-2 * time.Minute)
	require.NoError(t, os.Chtimes(path, past, past))
	require.NoError(t, l.Touch())

	_, err = Acquire(path, time.Minute)
	require.ErrorIs(t, err, ErrLocked)
}

func TestRelease_Nil(t *testing.T) {
	var l *Lock
	require.NoError(t, l.Release())
}
