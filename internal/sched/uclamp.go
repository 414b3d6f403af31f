//go:build linux

// Package sched installs the optional per-task utilization-clamp hint,
// encouraging the scheduler to keep the realtime loop on a performant
// core.
package sched

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Linux sched_setattr SCHED_FLAG_* bits relevant to uclamp (see
// include/uapi/linux/sched/types.h).
const (
	schedFlagKeepPolicy  = 0x8
	schedFlagKeepParams  = 0x10
	schedFlagUtilClampMin = 0x20
	schedFlagUtilClampMax = 0x40
)

// schedAttr mirrors struct sched_attr from linux/sched.h; the field order
// and sizes must match the kernel ABI exactly.
type schedAttr struct {
	size          uint32
	schedPolicy   uint32
	schedFlags    uint64
	schedNice     int32
	schedPriority uint32
	schedRuntime  uint64
	schedDeadline uint64
	schedPeriod   uint64
	schedUtilMin  uint32
	schedUtilMax  uint32
}

func schedGetattr(pid int, attr *schedAttr) error {
	_, _, errno := unix.Syscall6(unix.SYS_SCHED_GETATTR,
		uintptr(pid), uintptr(unsafe.Pointer(attr)), uintptr(unsafe.Sizeof(*attr)), 0, 0, 0)
	if errno != 0 {
		return errno
	}
	return nil
}

func schedSetattr(pid int, attr *schedAttr) error {
	_, _, errno := unix.Syscall(unix.SYS_SCHED_SETATTR,
		uintptr(pid), uintptr(unsafe.Pointer(attr)), 0)
	if errno != 0 {
		return errno
	}
	return nil
}

// SetUclamp installs the uclamp hint for the calling process's own task.
// Failure is always non-fatal: the caller should log it as a warning and
// proceed without the hint.
func SetUclamp(min, max uint32) error {
	var attr schedAttr
	pid := unix.Getpid()

	if err := schedGetattr(pid, &attr); err != nil {
		return fmt.Errorf("sched_getattr: %w", err)
	}

	// sched_getattr may report a newer, larger kernel struct size; pin it
	// back to the size of the fields this build actually carries.
	attr.size = uint32(unsafe.Sizeof(attr))
	attr.schedFlags = schedFlagKeepPolicy | schedFlagKeepParams | schedFlagUtilClampMin | schedFlagUtilClampMax
	attr.schedUtilMin = min
	attr.schedUtilMax = max

	if err := schedSetattr(pid, &attr); err != nil {
		return fmt.Errorf("sched_setattr: %w", err)
	}

	return nil
}
