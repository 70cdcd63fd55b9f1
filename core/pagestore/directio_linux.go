//go:build linux

package pagestore

import (
	"os"

	"golang.org/x/sys/unix"
)

// openBacking opens path with O_DIRECT so that misses reach the
// device. Filesystems that do not support direct I/O reject the flag
// with EINVAL; those get a buffered descriptor and the caller issues
// per-I/O cache-drop advisories instead.
func openBacking(path string, flag int, perm os.FileMode) (*os.File, bool, error) {
	fd, err := unix.Open(path, flag|unix.O_DIRECT|unix.O_CLOEXEC, uint32(perm.Perm()))
	if err == nil {
		return os.NewFile(uintptr(fd), path), true, nil
	}
	if err != unix.EINVAL {
		return nil, false, err
	}
	f, err := os.OpenFile(path, flag, perm)
	if err != nil {
		return nil, false, err
	}
	return f, false, nil
}

// dropCache asks the kernel to evict the byte range from its page
// cache. Advisory only; failures are ignored.
func dropCache(f *os.File, off int64, n int) {
	_ = unix.Fadvise(int(f.Fd()), off, int64(n), unix.FADV_DONTNEED)
}
