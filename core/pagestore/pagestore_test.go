package pagestore

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func openTestStore(t *testing.T, flag int) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "backing.dat")
	s, err := Open(path, flag|os.O_CREATE, 0644, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpenMissingFile(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "nope.dat"), os.O_RDONLY, 0, zap.NewNop())
	require.ErrorIs(t, err, ErrIO)
}

func TestOpenRecordsSize(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sized.dat")
	require.NoError(t, os.WriteFile(path, bytes.Repeat([]byte{0xAB}, 100), 0644))

	s, err := Open(path, os.O_RDONLY, 0, zap.NewNop())
	require.NoError(t, err)
	defer s.Close()

	require.Equal(t, int64(100), s.Size())
	require.Equal(t, os.Getpagesize(), s.PageSize())
}

func TestAlignedBuffer(t *testing.T) {
	s := openTestStore(t, os.O_RDWR)
	buf := s.AlignedBuffer()
	require.Len(t, buf, s.PageSize())
	require.Zero(t, uintptr(unsafe.Pointer(&buf[0]))%uintptr(s.PageSize()))
	for _, b := range buf {
		require.Zero(t, b)
	}
}

func TestPageBufferSizeEnforced(t *testing.T) {
	s := openTestStore(t, os.O_RDWR)

	short := make([]byte, 10)
	_, err := s.ReadPage(0, short)
	require.ErrorIs(t, err, ErrPageBuffer)
	require.ErrorIs(t, s.WritePage(0, short), ErrPageBuffer)
}

func TestWriteReadRoundTrip(t *testing.T) {
	s := openTestStore(t, os.O_RDWR)
	ps := s.PageSize()

	require.NoError(t, s.Extend(int64(2*ps)))

	page := s.AlignedBuffer()
	for i := range page {
		page[i] = byte(i)
	}
	require.NoError(t, s.WritePage(1, page))
	require.NoError(t, s.Sync())

	got := s.AlignedBuffer()
	n, err := s.ReadPage(1, got)
	require.NoError(t, err)
	require.Equal(t, ps, n)
	require.Equal(t, page, got)
}

func TestShortReadAtEOF(t *testing.T) {
	s := openTestStore(t, os.O_RDWR)
	require.NoError(t, s.Extend(100))

	buf := s.AlignedBuffer()
	n, err := s.ReadPage(0, buf)
	require.NoError(t, err)
	require.Equal(t, 100, n)

	// Entirely past end of file reads zero bytes.
	n, err = s.ReadPage(5, buf)
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestWritePageRestoresLogicalLength(t *testing.T) {
	s := openTestStore(t, os.O_RDWR)
	ps := s.PageSize()
	require.NoError(t, s.Extend(100))

	// A full-page write runs past the 100-byte logical end; the store
	// must cut the file back.
	page := s.AlignedBuffer()
	for i := range page {
		page[i] = 0xCD
	}
	require.NoError(t, s.WritePage(0, page))

	fi, err := os.Stat(s.path)
	require.NoError(t, err)
	require.Equal(t, int64(100), fi.Size())
	require.Equal(t, int64(100), s.Size())
	require.Less(t, 100, ps)
}

func TestExtendGrowsFile(t *testing.T) {
	s := openTestStore(t, os.O_RDWR)
	require.NoError(t, s.Extend(4100))
	require.Equal(t, int64(4100), s.Size())

	fi, err := os.Stat(s.path)
	require.NoError(t, err)
	require.Equal(t, int64(4100), fi.Size())
}

func TestTruncateReassertsSize(t *testing.T) {
	s := openTestStore(t, os.O_RDWR)
	require.NoError(t, s.Extend(50))

	// Grow the file behind the store's back, then re-assert.
	f, err := os.OpenFile(s.path, os.O_WRONLY, 0)
	require.NoError(t, err)
	require.NoError(t, f.Truncate(9999))
	require.NoError(t, f.Close())

	require.NoError(t, s.Truncate())
	fi, err := os.Stat(s.path)
	require.NoError(t, err)
	require.Equal(t, int64(50), fi.Size())
}

func TestCloseIdempotent(t *testing.T) {
	s := openTestStore(t, os.O_RDWR)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
}
