//go:build linux || darwin

package crypto

import "golang.org/x/sys/unix"

// Keys are locked best-effort; RLIMIT_MEMLOCK may refuse and that is fine.
func lockMemory(b []byte) error {
	if len(b) == 0 {
		return nil
	}
	return unix.Mlock(b)
}

func unlockMemory(b []byte) error {
	if len(b) == 0 {
		return nil
	}
	return unix.Munlock(b)
}
