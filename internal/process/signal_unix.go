//go:build !windows

package process

import (
	"errors"
	"syscall"
)

// signal sends SIGTERM (or SIGKILL when hard) to the process group of pid,
// falling back to the process itself when the group is gone.
func signal(pid int, hard bool) error {
	sig := syscall.SIGTERM
	if hard {
		sig = syscall.SIGKILL
	}
	err := syscall.Kill(-pid, sig)
	if errors.Is(err, syscall.ESRCH) {
		err = syscall.Kill(pid, sig)
	}
	if errors.Is(err, syscall.ESRCH) {
		// already gone
		return nil
	}
	return err
}
