//go:build !unix

package snapshot

import "os"

// Advisory locking is only implemented on unix; elsewhere runs are not guarded.
func lockFile(f *os.File) error {
	return nil
}

func unlockFile(f *os.File) error {
	return nil
}
