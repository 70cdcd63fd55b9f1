// Package pagestore is the backing-file layer: full-page, page-aligned
// reads and writes against a descriptor opened for direct I/O when the
// filesystem allows it. The store owns the file's logical size; every
// full-page write is followed by a truncate back to that size so a
// partially-valid tail page can never extend the file on disk.
package pagestore

import (
	"errors"
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"
)

var (
	// ErrIO wraps backing-file open, read, write, sync and truncate
	// failures.
	ErrIO = errors.New("backing file i/o error")
	// ErrPageBuffer means a caller passed a buffer that is not
	// exactly one page long.
	ErrPageBuffer = errors.New("page buffer size mismatch")
)

// Store wraps one backing file. It is not safe for concurrent use.
type Store struct {
	path     string
	file     *os.File
	pageSize int
	size     int64
	direct   bool
	log      *zap.Logger
}

// Open opens path with the given flags, preferring direct I/O. When
// the filesystem rejects O_DIRECT with EINVAL the store falls back to
// buffered mode and issues a cache-drop advisory after every transfer
// instead. The file's current length becomes the logical size.
func Open(path string, flag int, perm os.FileMode, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	file, direct, err := openBacking(path, flag, perm)
	if err != nil {
		return nil, fmt.Errorf("%w: opening %s: %v", ErrIO, path, err)
	}
	fi, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("%w: stat %s: %v", ErrIO, path, err)
	}
	s := &Store{
		path:     path,
		file:     file,
		pageSize: os.Getpagesize(),
		size:     fi.Size(),
		direct:   direct,
		log:      logger,
	}
	logger.Debug("backing store opened",
		zap.String("path", path),
		zap.Bool("direct", direct),
		zap.Int64("size", s.size),
		zap.Int("page_size", s.pageSize),
	)
	return s, nil
}

// PageSize returns the transfer unit, fixed at open time.
func (s *Store) PageSize() int { return s.pageSize }

// Size returns the logical file length.
func (s *Store) Size() int64 { return s.size }

// Direct reports whether the descriptor bypasses the OS page cache.
func (s *Store) Direct() bool { return s.direct }

// ReadPage reads up to one page at pageNo*PageSize and returns the
// byte count. A short count means the page straddles or lies past end
// of file. In buffered mode the read is followed by a best-effort
// advisory to drop the range from the OS cache.
func (s *Store) ReadPage(pageNo uint64, buf []byte) (int, error) {
	if len(buf) != s.pageSize {
		return 0, fmt.Errorf("%w: got %d bytes, page size is %d", ErrPageBuffer, len(buf), s.pageSize)
	}
	off := int64(pageNo) * int64(s.pageSize)
	n, err := s.file.ReadAt(buf, off)
	if !s.direct {
		dropCache(s.file, off, s.pageSize)
	}
	if err != nil && err != io.EOF {
		return 0, fmt.Errorf("%w: reading page %d at offset %d: %v", ErrIO, pageNo, off, err)
	}
	return n, nil
}

// WritePage writes exactly one page at pageNo*PageSize, then truncates
// back to the logical size. A full-page write of the last, partially
// valid page would otherwise leave the file longer than its recorded
// length.
func (s *Store) WritePage(pageNo uint64, buf []byte) error {
	if len(buf) != s.pageSize {
		return fmt.Errorf("%w: got %d bytes, page size is %d", ErrPageBuffer, len(buf), s.pageSize)
	}
	off := int64(pageNo) * int64(s.pageSize)
	if _, err := s.file.WriteAt(buf, off); err != nil {
		return fmt.Errorf("%w: writing page %d at offset %d: %v", ErrIO, pageNo, off, err)
	}
	if !s.direct {
		dropCache(s.file, off, s.pageSize)
	}
	if err := s.file.Truncate(s.size); err != nil {
		return fmt.Errorf("%w: truncating %s to %d: %v", ErrIO, s.path, s.size, err)
	}
	return nil
}

// Extend raises the logical size to n and truncates the file to
// match. Used when a write advances past the current end.
func (s *Store) Extend(n int64) error {
	s.size = n
	if err := s.file.Truncate(n); err != nil {
		return fmt.Errorf("%w: extending %s to %d: %v", ErrIO, s.path, n, err)
	}
	return nil
}

// Truncate re-asserts the logical size on disk.
func (s *Store) Truncate() error {
	if err := s.file.Truncate(s.size); err != nil {
		return fmt.Errorf("%w: truncating %s to %d: %v", ErrIO, s.path, s.size, err)
	}
	return nil
}

// Sync flushes the descriptor to stable storage.
func (s *Store) Sync() error {
	if err := s.file.Sync(); err != nil {
		return fmt.Errorf("%w: syncing %s: %v", ErrIO, s.path, err)
	}
	return nil
}

// Close closes the backing descriptor.
func (s *Store) Close() error {
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	if err != nil {
		return fmt.Errorf("%w: closing %s: %v", ErrIO, s.path, err)
	}
	return nil
}
