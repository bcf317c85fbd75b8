//go:build windows

package state

import (
	"errors"
	"fmt"
	"os"

	"golang.org/x/sys/windows"
)

// acquireFileLock blocks until it holds an exclusive lock on path.
func acquireFileLock(path string) (*os.File, error) {
	lockFile, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open lock file: %w", err)
	}
	var overlapped windows.Overlapped
	err = windows.LockFileEx(windows.Handle(lockFile.Fd()), windows.LOCKFILE_EXCLUSIVE_LOCK, 0, 1, 0, &overlapped)
	if err != nil {
		lockFile.Close()
		return nil, fmt.Errorf("acquire state lock: %w", err)
	}
	return lockFile, nil
}

// releaseFileLock unlocks and closes the lock file.
func releaseFileLock(lockFile *os.File) error {
	var overlapped windows.Overlapped
	err1 := windows.UnlockFileEx(windows.Handle(lockFile.Fd()), 0, 1, 0, &overlapped)
	err2 := lockFile.Close()
	return errors.Join(err1, err2)
}
