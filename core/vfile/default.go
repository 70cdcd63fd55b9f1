package vfile

import "os"

// Default is the process-wide handle table used by the package-level
// convenience functions.
var Default = NewTable()

// Open opens path through the Default table.
func Open(path string, flag int, perm os.FileMode) (int, error) {
	return Default.Open(path, flag, perm)
}

// Read reads through the Default table.
func Read(fd int, buf []byte) (int, error) { return Default.Read(fd, buf) }

// Write writes through the Default table.
func Write(fd int, buf []byte) (int, error) { return Default.Write(fd, buf) }

// Seek seeks through the Default table.
func Seek(fd int, offset int64, whence int) (int64, error) {
	return Default.Seek(fd, offset, whence)
}

// Fsync syncs through the Default table.
func Fsync(fd int) error { return Default.Fsync(fd) }

// Close closes through the Default table.
func Close(fd int) error { return Default.Close(fd) }
