package store

import (
	"fmt"
	"os"
	"time"
)

const (
	lockTimeout    = 500 * time.Millisecond
	lockBackoff    = 5 * time.Millisecond
	lockBackoffCap = 50 * time.Millisecond
)

// writeLock serializes store writes across processes using an OS file
// lock next to the store file. The lock is released automatically if
// the holding process dies.
type writeLock struct {
	path string
	file *os.File
}

func newWriteLock(path string) *writeLock {
	return &writeLock{path: path}
}

// acquire takes an exclusive lock, retrying with backoff until timeout.
func (l *writeLock) acquire(timeout time.Duration) error {
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return fmt.Errorf("open lock file: %w", err)
	}
	l.file = f

	deadline := time.Now().Add(timeout)
	backoff := lockBackoff
	for {
		if err := l.tryLock(); err == nil {
			l.writeHolder()
			return nil
		}
		if time.Now().After(deadline) {
			l.file.Close()
			l.file = nil
			return fmt.Errorf("store write lock timeout after %v", timeout)
		}
		time.Sleep(backoff)
		if backoff < lockBackoffCap {
			backoff *= 2
			if backoff > lockBackoffCap {
				backoff = lockBackoffCap
			}
		}
	}
}

// release drops the lock. Safe to call when not held.
func (l *writeLock) release() {
	if l.file == nil {
		return
	}
	l.file.Truncate(0)
	l.unlock()
	l.file.Close()
	l.file = nil
}

// writeHolder records pid and time in the lock file for diagnostics.
func (l *writeLock) writeHolder() {
	if l.file == nil {
		return
	}
	l.file.Truncate(0)
	l.file.Seek(0, 0)
	fmt.Fprintf(l.file, "pid:%d\ntime:%s\n", os.Getpid(), time.Now().Format(time.RFC3339))
	l.file.Sync()
}
