//go:build windows

package process

import "syscall"

const PROCESS_TERMINATE = 0x0001

// signal terminates the process. Windows has no graceful request for a
// windowless child, so both modes call TerminateProcess.
func signal(pid int, _ bool) error {
	if pid <= 0 {
		return nil
	}
	h, err := syscall.OpenProcess(PROCESS_TERMINATE, false, uint32(pid))
	if err != nil {
		// If we can't open the process, it likely doesn't exist anymore
		return nil
	}
	defer func() { _ = syscall.CloseHandle(h) }()
	return syscall.TerminateProcess(h, 1)
}
