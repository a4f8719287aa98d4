// Package lock keeps two packtrack invocations (cron check + manual add, or two
// watch processes) from mutating the store at the same time.
package lock

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

var (
	// ErrLocked is returned when another live process holds the lock.
	ErrLocked = errors.New("another packtrack process is running")
	// ErrLost is returned by Touch once the lock file was broken as stale
	// and taken by another process.
	ErrLost = errors.New("lock was taken over by another process")
)

const DefaultStaleAfter = 10 * time.Minute

type Lock struct {
	fl   *flock.Flock
	path string
	id   string
	rec  string
}

// Acquire takes the lock at path without blocking. The holder's pid and start
// time are written into the file; a file whose mtime is older than staleAfter
// is considered abandoned (hung process, dead NFS client) and is replaced.
// The lock file itself is never removed on release.
func Acquire(path string, staleAfter time.Duration) (*Lock, error) {
	if staleAfter <= 0 {
		staleAfter = DefaultStaleAfter
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errors.Wrap(err, "lock: mkdir")
	}

	l, err := try(path)
	if err == nil || !errors.Is(err, ErrLocked) {
		return l, err
	}
	return breakStale(path, staleAfter)
}

// breakStale replaces an abandoned lock file. Breakers are serialized by a
// second lock so that two of them never replace each other's fresh file.
func breakStale(path string, staleAfter time.Duration) (*Lock, error) {
	guard := flock.New(path + ".break")
	ok, err := guard.TryLock()
	if err != nil {
		return nil, errors.Wrap(err, "lock: flock break guard")
	}
	if !ok {
		return nil, errors.Wrapf(ErrLocked, "held by %s", holder(path))
	}
	defer func() { _ = guard.Unlock() }()

	// файл могли заменить, пока мы ждали guard
	l, err := try(path)
	if err == nil || !errors.Is(err, ErrLocked) {
		return l, err
	}
	st, statErr := os.Stat(path)
	if statErr != nil || time.Since(st.ModTime()) < staleAfter {
		return nil, errors.Wrapf(ErrLocked, "held by %s", holder(path))
	}

	slog.Warn("breaking stale lock", "path", path, "holder", holder(path), "age", time.Since(st.ModTime()).Round(time.Second))
	// новый inode: старый flock остаётся у зависшего процесса, но нам уже не мешает
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return nil, errors.Wrap(err, "lock: remove stale")
	}
	return try(path)
}

func try(path string) (*Lock, error) {
	fl := flock.New(path)
	ok, err := fl.TryLock()
	if err != nil {
		return nil, errors.Wrap(err, "lock: flock")
	}
	if !ok {
		return nil, ErrLocked
	}
	l := &Lock{fl: fl, path: path, id: uuid.NewString()}
	if err := l.write(); err != nil {
		_ = fl.Unlock()
		return nil, err
	}
	return l, nil
}

// Touch rewrites the holder record, refreshing the mtime. Long-running holders
// (watch) call it periodically so they are never mistaken for stale.
// It returns ErrLost when the file now carries another holder's record.
func (l *Lock) Touch() error {
	b, err := os.ReadFile(l.path)
	switch {
	case os.IsNotExist(err):
		return errors.Wrap(ErrLost, "lock file is gone")
	case err != nil:
		return errors.Wrap(err, "lock: read holder")
	case string(b) != l.rec:
		return errors.Wrapf(ErrLost, "now held by %s", holder(l.path))
	}
	return l.write()
}

func (l *Lock) write() error {
	rec := fmt.Sprintf("%d %s %s\n", os.Getpid(), time.Now().UTC().Format(time.RFC3339), l.id)
	if err := os.WriteFile(l.path, []byte(rec), 0o644); err != nil {
		return errors.Wrap(err, "lock: write holder")
	}
	l.rec = rec
	return nil
}

func (l *Lock) Path() string { return l.path }

// Release unlocks the file and leaves it in place. Safe to call on nil.
func (l *Lock) Release() error {
	if l == nil || l.fl == nil {
		return nil
	}
	if err := l.fl.Unlock(); err != nil {
		return errors.Wrap(err, "lock: unlock")
	}
	l.fl = nil
	return nil
}

func holder(path string) string {
	b, err := os.ReadFile(path)
	if err != nil {
		return "unknown"
	}
	f := strings.Fields(string(b))
	if len(f) == 0 {
		return "unknown"
	}
	if _, err := strconv.Atoi(f[0]); err != nil {
		return "unknown"
	}
	return "pid " + f[0]
}
