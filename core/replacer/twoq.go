// Package replacer implements a 2Q page replacement engine: a
// resident set split between a short-term admission queue (A1in) and
// a frequency-promoted queue (Am), plus a non-resident ghost queue
// (A1out) that records recent A1in evictions so that a re-referenced
// page can skip admission and land directly on Am.
package replacer

import (
	"errors"
	"fmt"

	"go.uber.org/zap"
)

var (
	// ErrIndexFull means an open-addressed index ran out of slots.
	// Tables are sized to 4x their maximum element count at init, so
	// this indicates engine state corruption, not load.
	ErrIndexFull = errors.New("page index full")
)

// Backing is the store a Cache loads pages from and flushes pages to.
// WritePage is expected to restore the backing file's logical length
// after the full-page write; the engine itself never tracks file size.
type Backing interface {
	// ReadPage reads up to one page at pageNo and returns the number
	// of bytes read. A short count means the page straddles or lies
	// past end of file.
	ReadPage(pageNo uint64, buf []byte) (int, error)
	// WritePage writes exactly one page at pageNo.
	WritePage(pageNo uint64, buf []byte) error
	// AlignedBuffer returns a zeroed page-sized buffer suitable for
	// direct I/O transfers.
	AlignedBuffer() []byte
	PageSize() int
}

type queue uint8

const (
	queueNone queue = iota
	queueA1in
	queueAm
)

// PageEntry is a resident page. It is on exactly one of the A1in or
// Am lists and reachable through the resident index under its page
// number. The buffer's bytes past ValidLen are zero and do not
// reflect backing-file contents.
type PageEntry struct {
	pageNo   uint64
	data     []byte
	validLen int
	dirty    bool
	queue    queue

	prev, next *PageEntry
}

func (p *PageEntry) PageNo() uint64 { return p.pageNo }
func (p *PageEntry) Data() []byte   { return p.data }
func (p *PageEntry) ValidLen() int  { return p.validLen }
func (p *PageEntry) Dirty() bool    { return p.dirty }

// SetValidLen widens the meaningful prefix of the buffer. It never
// shrinks: a page's contents cannot become less valid by writing.
func (p *PageEntry) SetValidLen(n int) {
	if n > p.validLen {
		p.validLen = n
	}
}

func (p *PageEntry) MarkDirty() { p.dirty = true }

type ghostEntry struct {
	pageNo     uint64
	prev, next *ghostEntry
}

// Event identifies a single engine occurrence, delivered to an
// optional EventFunc so callers can feed metrics counters.
type Event uint8

const (
	EventHit Event = iota
	EventGhostHit
	EventMiss
	EventEviction
	EventFlush
)

// EventFunc receives engine events. It must not call back into the
// Cache.
type EventFunc func(Event)

// Stats is a snapshot of the engine counters.
type Stats struct {
	Hits      uint64
	GhostHits uint64
	Misses    uint64
	Evictions uint64
	Flushes   uint64
}

// Cache is a 2Q replacement engine over one backing store. It is not
// safe for concurrent use; each handle owns its engine exclusively.
type Cache struct {
	store Backing
	log   *zap.Logger

	pageSize int
	capacity int
	kin      int
	amCap    int
	kout     int

	a1inSz  int
	amSz    int
	a1outSz int

	a1in  pageList
	am    pageList
	a1out ghostList

	resident *index[*PageEntry]
	ghosts   *index[*ghostEntry]

	stats   Stats
	onEvent EventFunc
}

// Option configures a Cache.
type Option func(*Cache)

// WithEvents registers a sink for engine events.
func WithEvents(fn EventFunc) Option {
	return func(c *Cache) { c.onEvent = fn }
}

// New builds an engine with the given resident capacity in pages.
// Capacities below 4 are raised to 4. The admission queue gets a
// quarter of the capacity (at least 1, at most half), the frequency
// queue the remainder, and the ghost queue half the capacity.
func New(capacity int, store Backing, logger *zap.Logger, opts ...Option) (*Cache, error) {
	if store == nil {
		return nil, fmt.Errorf("replacer: backing store must be provided")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if capacity < 4 {
		capacity = 4
	}

	kin := capacity / 4
	if kin < 1 {
		kin = 1
	}
	if kin > capacity/2 {
		kin = capacity / 2
	}
	amCap := capacity - kin
	kout := capacity / 2
	if kout < 1 {
		kout = 1
	}

	c := &Cache{
		store:    store,
		log:      logger,
		pageSize: store.PageSize(),
		capacity: capacity,
		kin:      kin,
		amCap:    amCap,
		kout:     kout,
		resident: newIndex[*PageEntry](nextPow2(capacity * 4)),
		ghosts:   newIndex[*ghostEntry](nextPow2(kout * 4)),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.log.Info("replacement engine initialized",
		zap.Int("capacity", capacity),
		zap.Int("kin", kin),
		zap.Int("am_cap", amCap),
		zap.Int("kout", kout),
		zap.Int("page_size", c.pageSize),
	)
	return c, nil
}

func (c *Cache) event(ev Event) {
	if c.onEvent != nil {
		c.onEvent(ev)
	}
}

// Stats returns a snapshot of the engine counters.
func (c *Cache) Stats() Stats { return c.stats }

// A1inLen reports the number of pages on the admission queue.
func (c *Cache) A1inLen() int { return c.a1inSz }

// AmLen reports the number of pages on the frequency queue.
func (c *Cache) AmLen() int { return c.amSz }

// GhostLen reports the number of entries on the ghost queue.
func (c *Cache) GhostLen() int { return c.a1outSz }

// Get returns the resident entry for pageNo, loading it from the
// backing store on a miss. A hit on A1in promotes the entry to the
// head of Am; a hit on Am refreshes it to the head. A ghost hit
// drops the ghost and loads the page straight onto Am. Eviction-path
// flush errors are surfaced with the victim restored to its queue.
func (c *Cache) Get(pageNo uint64) (*PageEntry, error) {
	if p, ok := c.resident.get(pageNo); ok {
		c.stats.Hits++
		c.event(EventHit)
		if p.queue == queueA1in {
			// Second touch while still in admission: promote.
			c.a1in.remove(p)
			c.a1inSz--
			if err := c.ensureSpaceAm(); err != nil {
				c.a1in.pushFront(p)
				c.a1inSz++
				return nil, err
			}
			p.queue = queueAm
			c.am.pushFront(p)
			c.amSz++
		} else {
			c.am.remove(p)
			c.am.pushFront(p)
		}
		return p, nil
	}

	if g, ok := c.ghosts.get(pageNo); ok {
		// Recently evicted from A1in and referenced again: the page
		// belongs on the frequency tier.
		c.a1out.remove(g)
		c.ghosts.del(pageNo)
		c.a1outSz--
		c.stats.GhostHits++
		c.event(EventGhostHit)

		if err := c.ensureSpaceAm(); err != nil {
			return nil, err
		}
		p, err := c.loadPage(pageNo)
		if err != nil {
			return nil, err
		}
		p.queue = queueAm
		c.am.pushFront(p)
		c.amSz++
		if err := c.resident.put(pageNo, p); err != nil {
			c.am.remove(p)
			c.amSz--
			return nil, err
		}
		return p, nil
	}

	c.stats.Misses++
	c.event(EventMiss)
	if err := c.ensureSpaceA1in(); err != nil {
		return nil, err
	}
	p, err := c.loadPage(pageNo)
	if err != nil {
		return nil, err
	}
	p.queue = queueA1in
	c.a1in.pushFront(p)
	c.a1inSz++
	if err := c.resident.put(pageNo, p); err != nil {
		c.a1in.remove(p)
		c.a1inSz--
		return nil, err
	}
	return p, nil
}

// ensureSpaceA1in makes room for one admission. A full A1in sheds its
// own tail, which is what keeps a scan from pushing out the frequency
// tier; otherwise total-occupancy pressure evicts from Am first and
// falls back to A1in only when Am is empty.
func (c *Cache) ensureSpaceA1in() error {
	if c.a1inSz >= c.kin {
		return c.evictA1in()
	}
	for c.a1inSz+c.amSz >= c.capacity {
		if c.amSz > 0 {
			if err := c.evictAm(); err != nil {
				return err
			}
		} else {
			if err := c.evictA1in(); err != nil {
				return err
			}
		}
	}
	return nil
}

// ensureSpaceAm makes room for one promotion. Am sheds its own tail
// under amCap pressure; total-occupancy pressure prefers A1in victims.
func (c *Cache) ensureSpaceAm() error {
	for c.amSz >= c.amCap {
		if err := c.evictAm(); err != nil {
			return err
		}
	}
	for c.a1inSz+c.amSz >= c.capacity {
		if c.a1inSz > 0 {
			if err := c.evictA1in(); err != nil {
				return err
			}
		} else {
			if err := c.evictAm(); err != nil {
				return err
			}
		}
	}
	return nil
}

// evictA1in evicts the admission-queue tail and records it as a
// ghost. Ghosts are recorded only for pages that left the resident
// set cleanly: a failed flush restores the victim and no ghost is
// added.
func (c *Cache) evictA1in() error {
	victim := c.a1in.popBack()
	if victim == nil {
		return nil
	}
	c.a1inSz--
	c.resident.del(victim.pageNo)

	if err := c.flushPage(victim); err != nil {
		c.a1in.pushFront(victim)
		c.a1inSz++
		if perr := c.resident.put(victim.pageNo, victim); perr != nil {
			return perr
		}
		return err
	}

	if err := c.addGhost(victim.pageNo); err != nil {
		c.log.Warn("ghost insert failed after eviction", zap.Uint64("page", victim.pageNo), zap.Error(err))
	}

	c.stats.Evictions++
	c.event(EventEviction)
	c.log.Debug("evicted from admission queue", zap.Uint64("page", victim.pageNo))
	victim.data = nil
	return nil
}

// evictAm evicts the frequency-queue tail. Am victims leave no ghost:
// the ghost list exists only to recognize admissions that deserved
// the frequency tier.
func (c *Cache) evictAm() error {
	victim := c.am.popBack()
	if victim == nil {
		return nil
	}
	c.amSz--
	c.resident.del(victim.pageNo)

	if err := c.flushPage(victim); err != nil {
		c.am.pushFront(victim)
		c.amSz++
		if perr := c.resident.put(victim.pageNo, victim); perr != nil {
			return perr
		}
		return err
	}

	c.stats.Evictions++
	c.event(EventEviction)
	c.log.Debug("evicted from frequency queue", zap.Uint64("page", victim.pageNo))
	victim.data = nil
	return nil
}

// addGhost records pageNo at the head of A1out and trims the tail
// past kout. A page number already present is refreshed in place.
func (c *Cache) addGhost(pageNo uint64) error {
	if g, ok := c.ghosts.get(pageNo); ok {
		c.a1out.remove(g)
		c.a1out.pushFront(g)
		return nil
	}

	g := &ghostEntry{pageNo: pageNo}
	c.a1out.pushFront(g)
	c.a1outSz++
	if err := c.ghosts.put(pageNo, g); err != nil {
		c.a1out.remove(g)
		c.a1outSz--
		return err
	}

	for c.a1outSz > c.kout {
		old := c.a1out.popBack()
		if old == nil {
			break
		}
		c.ghosts.del(old.pageNo)
		c.a1outSz--
	}
	return nil
}

// flushPage writes a dirty entry back to the store. Clean entries are
// a no-op. The store re-truncates to the logical file length after
// the full-page write.
func (c *Cache) flushPage(p *PageEntry) error {
	if !p.dirty {
		return nil
	}
	if err := c.store.WritePage(p.pageNo, p.data); err != nil {
		return err
	}
	p.dirty = false
	c.stats.Flushes++
	c.event(EventFlush)
	return nil
}

// loadPage reads pageNo into a fresh aligned buffer. A short read at
// end of file is normal and yields ValidLen below the page size; the
// buffer tail past ValidLen stays zero.
func (c *Cache) loadPage(pageNo uint64) (*PageEntry, error) {
	buf := c.store.AlignedBuffer()
	n, err := c.store.ReadPage(pageNo, buf)
	if err != nil {
		return nil, err
	}
	clear(buf[n:])
	return &PageEntry{
		pageNo:   pageNo,
		data:     buf,
		validLen: n,
	}, nil
}

// FlushAll writes every dirty resident page back to the store. All
// pages are attempted; the first error is returned.
func (c *Cache) FlushAll() error {
	var firstErr error
	for p := c.a1in.head; p != nil; p = p.next {
		if err := c.flushPage(p); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	for p := c.am.head; p != nil; p = p.next {
		if err := c.flushPage(p); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Drop releases every resident page and ghost without any I/O. Dirty
// pages are discarded; callers flush first if they care.
func (c *Cache) Drop() {
	for p := c.a1in.popBack(); p != nil; p = c.a1in.popBack() {
		p.data = nil
	}
	for p := c.am.popBack(); p != nil; p = c.am.popBack() {
		p.data = nil
	}
	for g := c.a1out.popBack(); g != nil; g = c.a1out.popBack() {
	}
	c.a1inSz, c.amSz, c.a1outSz = 0, 0, 0
	c.resident = newIndex[*PageEntry](len(c.resident.keys))
	c.ghosts = newIndex[*ghostEntry](len(c.ghosts.keys))
}
