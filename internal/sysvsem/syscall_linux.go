//go:build linux

// Raw SysV semaphore syscall bindings. golang.org/x/sys/unix exposes the
// shared-memory family (SysvShmget et al.) but not semget/semop/semctl, so
// these are thin wrappers over unix.Syscall using the same SYS_* numbers
// and union-free calling convention avogabo-EDRmount's use of
// golang.org/x/sys/unix for direct syscalls follows elsewhere in this
// pack.
package sysvsem

import (
	"os"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Generic IPC command/flag values from <bits/ipc.h>, stable across Linux
// architectures.
const (
	ipcCreat  = 0o1000
	ipcExcl   = 0o2000
	ipcNoWait = 0o4000
	ipcRmid   = 0
)

// Semaphore-specific semctl commands from <sys/sem.h>.
const (
	getAll = 13
	setAll = 17
)

// sembuf mirrors struct sembuf from <sys/sem.h>.
type sembuf struct {
	num uint16
	op  int16
	flg int16
}

func semget(key int, nsems int, flags int) (int, error) {
	id, _, errno := unix.Syscall(unix.SYS_SEMGET, uintptr(key), uintptr(nsems), uintptr(flags))
	if errno != 0 {
		return -1, errno
	}
	return int(id), nil
}

func semop(id int, ops []sembuf) error {
	if len(ops) == 0 {
		return nil
	}
	_, _, errno := unix.Syscall(unix.SYS_SEMOP, uintptr(id), uintptr(unsafe.Pointer(&ops[0])), uintptr(len(ops)))
	if errno != 0 {
		return errno
	}
	return nil
}

func semctlSetAll(id int, vals [numDigits]uint16) error {
	_, _, errno := unix.Syscall6(unix.SYS_SEMCTL, uintptr(id), 0, setAll, uintptr(unsafe.Pointer(&vals[0])), 0, 0)
	if errno != 0 {
		return errno
	}
	return nil
}

func semctlGetAll(id int) ([numDigits]uint16, error) {
	var vals [numDigits]uint16
	_, _, errno := unix.Syscall6(unix.SYS_SEMCTL, uintptr(id), 0, getAll, uintptr(unsafe.Pointer(&vals[0])), 0, 0)
	if errno != 0 {
		return vals, errno
	}
	return vals, nil
}

func semctlRemove(id int) error {
	_, _, errno := unix.Syscall6(unix.SYS_SEMCTL, uintptr(id), 0, ipcRmid, 0, 0, 0)
	if errno != 0 {
		return errno
	}
	return nil
}

// ftok derives an IPC key from a file path and a project id, matching
// glibc's ftok(3) algorithm: the caller holds an open/stat-able file (the
// queue's sync.lck) whose device and inode, mixed with id, identify the
// semaphore set stably across process restarts.
func ftok(path string, id byte) (int, error) {
	var st unix.Stat_t
	if err := unix.Stat(path, &st); err != nil {
		return 0, err
	}
	key := (uint32(id) & 0xff) << 24
	key |= (uint32(st.Dev) & 0xff) << 16
	key |= uint32(st.Ino) & 0xffff
	return int(key), nil
}

func isWouldBlock(err error) bool {
	errno, ok := err.(unix.Errno)
	return ok && errno == unix.EAGAIN
}

func isRemoved(err error) bool {
	errno, ok := err.(unix.Errno)
	return ok && errno == unix.EIDRM
}

func isInterrupted(err error) bool {
	errno, ok := err.(unix.Errno)
	return ok && errno == unix.EINTR
}

func flockExclusive(f *os.File) error {
	return unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB)
}

func flockUnlock(f *os.File) error {
	return unix.Flock(int(f.Fd()), unix.LOCK_UN)
}
