//go:build !windows

package state

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// acquireFileLock blocks until it holds an exclusive lock on path.
func acquireFileLock(path string) (*os.File, error) {
	lockFile, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open lock file: %w", err)
	}
	if err := unix.Flock(int(lockFile.Fd()), unix.LOCK_EX); err != nil {
		lockFile.Close()
		return nil, fmt.Errorf("acquire state lock: %w", err)
	}
	return lockFile, nil
}

// releaseFileLock unlocks and closes the lock file. The file itself stays so
// every process locks the same inode.
func releaseFileLock(lockFile *os.File) error {
	unix.Flock(int(lockFile.Fd()), unix.LOCK_UN)
	return lockFile.Close()
}
