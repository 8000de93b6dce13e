//go:build unix

package store

import "syscall"

// tryLock attempts a non-blocking exclusive flock.
func (l *writeLock) tryLock() error {
	return syscall.Flock(int(l.file.Fd()), syscall.LOCK_EX|syscall.LOCK_NB)
}

func (l *writeLock) unlock() {
	if l.file != nil {
		syscall.Flock(int(l.file.Fd()), syscall.LOCK_UN)
	}
}
