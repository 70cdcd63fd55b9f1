//go:build !linux

package pagestore

import "os"

// openBacking on platforms without O_DIRECT opens a plain buffered
// descriptor. Reads and writes pass through the OS page cache here,
// which amplifies apparent hit rates; treat measurements on such
// platforms accordingly.
func openBacking(path string, flag int, perm os.FileMode) (*os.File, bool, error) {
	f, err := os.OpenFile(path, flag, perm)
	if err != nil {
		return nil, false, err
	}
	return f, false, nil
}

func dropCache(f *os.File, off int64, n int) {}
