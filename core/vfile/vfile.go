// Package vfile exposes the cached file surface: a bounded table of
// handles, each wrapping a backing store, a position, access flags
// and one 2Q replacement engine. The operations mirror a POSIX file
// descriptor, but every byte moves through the in-process cache.
package vfile

import (
	"fmt"
	"io"
	"os"
	"sync"

	"go.uber.org/zap"

	"github.com/rishav-sagar/qpager/config"
	"github.com/rishav-sagar/qpager/core/pagestore"
	"github.com/rishav-sagar/qpager/core/replacer"
)

const (
	// MaxHandles bounds the handle table.
	MaxHandles = 1024
	// reservedHandles keeps the first slots free so handle ids can
	// never be confused with the standard streams.
	reservedHandles = 3
)

// File is one open handle. A handle is owned exclusively by its
// caller; none of its operations take a lock.
type File struct {
	used       bool
	store      *pagestore.Store
	cache      *replacer.Cache
	accMode    int
	appendMode bool
	pos        int64
}

// Table is a bounded set of handles identified by small integers.
// Only slot allocation and release are guarded; operations on an open
// handle assume the external-ownership contract.
type Table struct {
	mu      sync.Mutex
	handles [MaxHandles]File

	log        *zap.Logger
	events     replacer.EventFunc
	cachePages int
}

// Option configures a Table.
type Option func(*Table)

// WithLogger sets the logger shared by the table, its stores and its
// engines.
func WithLogger(logger *zap.Logger) Option {
	return func(t *Table) { t.log = logger }
}

// WithCachePages overrides the process-wide cache capacity for
// handles opened through this table.
func WithCachePages(n int) Option {
	return func(t *Table) { t.cachePages = n }
}

// NewTable builds an empty handle table.
func NewTable(opts ...Option) *Table {
	t := &Table{log: zap.NewNop()}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Open opens path through the cache and returns a handle id >= 3.
// The backing file is opened for direct I/O when possible; the engine
// is sized from the process configuration (or the table override) and
// the OS page size.
func (t *Table) Open(path string, flag int, perm os.FileMode) (int, error) {
	capacity := t.cachePages
	if capacity <= 0 {
		capacity = config.CachePages()
	}

	t.mu.Lock()
	slot := -1
	for i := reservedHandles; i < MaxHandles; i++ {
		if !t.handles[i].used {
			slot = i
			break
		}
	}
	if slot < 0 {
		t.mu.Unlock()
		return -1, ErrTooManyOpenFiles
	}
	t.handles[slot].used = true
	t.mu.Unlock()

	// pwrite ignores the offset on descriptors opened with O_APPEND,
	// so append is emulated at this layer instead of being passed to
	// the OS open. Write-only handles still read pages back to fill
	// them, so the backing descriptor is opened read-write; the
	// handle enforces write-only semantics itself.
	osFlag := flag &^ os.O_APPEND
	if flag&accModeMask == os.O_WRONLY {
		osFlag = (osFlag &^ accModeMask) | os.O_RDWR
	}
	store, err := pagestore.Open(path, osFlag, perm, t.log)
	if err != nil {
		t.release(slot)
		return -1, err
	}
	cache, err := replacer.New(capacity, store, t.log, replacer.WithEvents(t.events))
	if err != nil {
		store.Close()
		t.release(slot)
		return -1, err
	}

	f := &t.handles[slot]
	f.store = store
	f.cache = cache
	f.accMode = flag & accModeMask
	f.appendMode = flag&os.O_APPEND != 0
	f.pos = 0

	t.log.Debug("handle opened",
		zap.Int("handle", slot),
		zap.String("path", path),
		zap.Bool("direct", store.Direct()),
	)
	return slot, nil
}

// O_RDONLY, O_WRONLY and O_RDWR occupy the low two bits on every
// supported platform.
const accModeMask = 0x3

func (t *Table) release(slot int) {
	t.mu.Lock()
	t.handles[slot] = File{}
	t.mu.Unlock()
}

func (t *Table) lookup(fd int) (*File, error) {
	if fd < 0 || fd >= MaxHandles {
		return nil, fmt.Errorf("%w: %d out of range", ErrBadHandle, fd)
	}
	f := &t.handles[fd]
	if !f.used {
		return nil, fmt.Errorf("%w: %d not open", ErrBadHandle, fd)
	}
	return f, nil
}

// Read copies up to len(buf) bytes from the current position into
// buf, fetching pages through the engine. It returns the byte count;
// 0 means end of file. Progress made before a mid-stream failure is
// returned as a partial count; the error surfaces on the next call.
func (t *Table) Read(fd int, buf []byte) (int, error) {
	f, err := t.lookup(fd)
	if err != nil {
		return 0, err
	}
	if f.accMode == os.O_WRONLY {
		return 0, fmt.Errorf("%w: %d is write-only", ErrBadHandle, fd)
	}
	if len(buf) == 0 {
		return 0, nil
	}

	ps := f.store.PageSize()
	total := 0
	for total < len(buf) {
		pageNo := uint64(f.pos / int64(ps))
		inPage := int(f.pos % int64(ps))
		want := min(len(buf)-total, ps-inPage)

		p, err := f.cache.Get(pageNo)
		if err != nil {
			if total > 0 {
				return total, nil
			}
			return 0, err
		}

		if inPage >= p.ValidLen() {
			break
		}
		take := min(want, p.ValidLen()-inPage)
		copy(buf[total:total+take], p.Data()[inPage:inPage+take])
		total += take
		f.pos += int64(take)

		if take < want {
			break
		}
	}
	return total, nil
}

// Write copies len(buf) bytes from buf at the current position,
// dirtying pages in the engine. In append mode the position snaps to
// the file size first. A write that advances past the known size
// extends the backing file immediately.
func (t *Table) Write(fd int, buf []byte) (int, error) {
	f, err := t.lookup(fd)
	if err != nil {
		return 0, err
	}
	if f.accMode == os.O_RDONLY {
		return 0, fmt.Errorf("%w: %d is read-only", ErrBadHandle, fd)
	}
	if len(buf) == 0 {
		return 0, nil
	}

	if f.appendMode {
		f.pos = f.store.Size()
	}

	ps := f.store.PageSize()
	total := 0
	for total < len(buf) {
		pageNo := uint64(f.pos / int64(ps))
		inPage := int(f.pos % int64(ps))
		chunk := min(len(buf)-total, ps-inPage)

		p, err := f.cache.Get(pageNo)
		if err != nil {
			if total > 0 {
				return total, nil
			}
			return 0, err
		}

		data := p.Data()
		if hole := p.ValidLen(); inPage > hole {
			// Sparse write past the valid prefix: the gap is file
			// contents now and must read back as zeros.
			clear(data[hole:inPage])
		}
		copy(data[inPage:inPage+chunk], buf[total:total+chunk])
		p.SetValidLen(inPage + chunk)
		p.MarkDirty()

		total += chunk
		f.pos += int64(chunk)

		if f.pos > f.store.Size() {
			if err := f.store.Extend(f.pos); err != nil {
				if total > 0 {
					return total, nil
				}
				return 0, err
			}
		}
	}
	return total, nil
}

// Seek moves the position. Seeking past end of file is legal; a
// subsequent write extends the file.
func (t *Table) Seek(fd int, offset int64, whence int) (int64, error) {
	f, err := t.lookup(fd)
	if err != nil {
		return 0, err
	}
	var base int64
	switch whence {
	case io.SeekStart:
		base = 0
	case io.SeekCurrent:
		base = f.pos
	case io.SeekEnd:
		base = f.store.Size()
	default:
		return 0, fmt.Errorf("%w: whence %d", ErrInvalidArgument, whence)
	}
	pos := base + offset
	if pos < 0 {
		return 0, fmt.Errorf("%w: position %d", ErrInvalidArgument, pos)
	}
	f.pos = pos
	return pos, nil
}

// Fsync flushes every dirty resident page, syncs the backing file and,
// for handles opened for writing, re-asserts the logical size.
func (t *Table) Fsync(fd int) error {
	f, err := t.lookup(fd)
	if err != nil {
		return err
	}
	return f.sync()
}

func (f *File) sync() error {
	if err := f.cache.FlushAll(); err != nil {
		return err
	}
	if err := f.store.Sync(); err != nil {
		return err
	}
	if f.accMode == os.O_RDONLY {
		// A read-only handle never changes the size, and its
		// descriptor cannot be truncated.
		return nil
	}
	return f.store.Truncate()
}

// Close flushes, closes the backing descriptor and frees the slot.
// Both the flush and the close are attempted and resources are
// released regardless; the first error wins.
func (t *Table) Close(fd int) error {
	f, err := t.lookup(fd)
	if err != nil {
		return err
	}

	flushErr := f.sync()
	closeErr := f.store.Close()
	f.cache.Drop()

	t.release(fd)
	t.log.Debug("handle closed", zap.Int("handle", fd))

	if flushErr != nil {
		return flushErr
	}
	return closeErr
}

// Stats returns the engine counters for an open handle.
func (t *Table) Stats(fd int) (replacer.Stats, error) {
	f, err := t.lookup(fd)
	if err != nil {
		return replacer.Stats{}, err
	}
	return f.cache.Stats(), nil
}
