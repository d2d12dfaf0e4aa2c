package rlimit

import (
	"golang.org/x/sys/unix"
)

// RaiseOpenFiles raises the soft open file limit to the hard limit so high
// worker counts do not run out of descriptors. Returns the new soft limit.
func RaiseOpenFiles() (uint64, error) {
	var limit unix.Rlimit
	if err := unix.Getrlimit(unix.RLIMIT_NOFILE, &limit); err != nil {
		return 0, err
	}

	limit.Cur = limit.Max
	if err := unix.Setrlimit(unix.RLIMIT_NOFILE, &limit); err != nil {
		return 0, err
	}
	return limit.Cur, nil
}
