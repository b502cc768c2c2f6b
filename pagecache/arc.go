// Package pagecache implements the versioned page buffer: an ARC
// (Adaptive Replacement Cache) keyed by (page_no, commit_seq) so that
// multiple versions of the same page can coexist in cache at once.
// The ghost lists B1/B2 only need to remember recently
// evicted keys, not their bytes, so they are backed by
// hashicorp/golang-lru the way gazette-core's route cache uses the same
// package for bounded recently-seen-key tracking.
package pagecache

import (
	"container/list"
	"sync"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru"

	"github.com/leftmike/frankensqlite/dberr"
)

// CacheKey is the ARC key: a page paired with the CommitSeq under which
// the cached version was produced. CommitSeq rather than TxnId, since a
// snapshot's visibility predicate is phrased in commit order.
type CacheKey struct {
	PageNo    uint32
	CommitSeq uint64
}

// Page is a single cached page buffer. Pin/unpin reference counts are
// atomic so readers on the hot path never take the cache mutex merely to
// bump a refcount.
type Page struct {
	Key        CacheKey
	Data       []byte
	refs       int32
	dirty      int32
	superseded int32

	elem *list.Element // owning list's element, guarded by Cache.mu
}

func (p *Page) Pin()            { atomic.AddInt32(&p.refs, 1) }
func (p *Page) Unpin()          { atomic.AddInt32(&p.refs, -1) }
func (p *Page) RefCount() int32 { return atomic.LoadInt32(&p.refs) }

func (p *Page) MarkDirty()    { atomic.StoreInt32(&p.dirty, 1) }
func (p *Page) ClearDirty()   { atomic.StoreInt32(&p.dirty, 0) }
func (p *Page) IsDirty() bool { return atomic.LoadInt32(&p.dirty) != 0 }

// Superseded, set by the MVCC layer once a newer committed version of the
// same page is visible to every active snapshot: such a page is preferred
// for eviction ahead of T1/T2 order.
func (p *Page) Superseded() bool { return atomic.LoadInt32(&p.superseded) != 0 }
func (p *Page) SetSuperseded(v bool) {
	if v {
		atomic.StoreInt32(&p.superseded, 1)
	} else {
		atomic.StoreInt32(&p.superseded, 0)
	}
}

// Fetch loads page bytes on a cache miss. The pager implements this
// against its write-set / version-chain / WAL / file resolution order;
// pagecache itself is storage-agnostic.
type Fetch func(key CacheKey) ([]byte, error)

// Cache is an ARC cache over Page values, with T1 (recency) and T2
// (frequency) resident lists and B1/B2 ghost lists of evicted keys.
type Cache struct {
	mu sync.Mutex

	maxBytes int64
	curBytes int64
	p        int // target size of T1, adapted on ghost hits

	t1, t2   *list.List // *Page elements
	resident map[CacheKey]*Page

	b1, b2 *lru.Cache // CacheKey -> struct{}, ghost lists

	fetch Fetch
}

// New creates an ARC cache bounded by maxBytes, with ghost lists capped at
// ghostCap entries each.
func New(maxBytes int64, ghostCap int, fetch Fetch) (*Cache, error) {
	b1, err := lru.New(ghostCap)
	if err != nil {
		return nil, err
	}
	b2, err := lru.New(ghostCap)
	if err != nil {
		return nil, err
	}
	return &Cache{
		maxBytes: maxBytes,
		t1:       list.New(),
		t2:       list.New(),
		resident: map[CacheKey]*Page{},
		b1:       b1,
		b2:       b2,
		fetch:    fetch,
	}, nil
}

// Get returns the page for key, pinned once on return (callers must
// Unpin). On a resident hit it promotes/refreshes per the ARC algorithm.
// On a miss it loads via fetch and inserts into T1.
func (c *Cache) Get(key CacheKey) (*Page, error) {
	c.mu.Lock()
	if pg, ok := c.resident[key]; ok {
		c.hit(pg)
		pg.Pin()
		c.mu.Unlock()
		return pg, nil
	}
	ghostB1 := c.b1.Contains(key)
	ghostB2 := !ghostB1 && c.b2.Contains(key)
	c.mu.Unlock()

	data, err := c.fetch(key)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if pg, ok := c.resident[key]; ok {
		// Raced with a concurrent fetch of the same key; keep the winner.
		pg.Pin()
		return pg, nil
	}

	pg := &Page{Key: key, Data: data}
	switch {
	case ghostB1:
		if c.p < c.target() {
			c.p++
		}
		c.b1.Remove(key)
		c.insert(pg, c.t2)
	case ghostB2:
		if c.p > 0 {
			c.p--
		}
		c.b2.Remove(key)
		c.insert(pg, c.t2)
	default:
		c.insert(pg, c.t1)
	}
	c.curBytes += int64(len(data))
	c.evictIfNeeded()
	pg.Pin()
	return pg, nil
}

func (c *Cache) target() int {
	// Adaptive target is expressed as a count bound by resident entries,
	// not bytes; ARC's classic formulation.
	n := len(c.resident)
	if n == 0 {
		return 1
	}
	return n
}

func (c *Cache) hit(pg *Page) {
	if pg.elem.Value.(*Page) != pg {
		return
	}
	// A hit in T1 or T2 moves/refreshes the entry to the MRU end of T2.
	list := c.t1
	if c.listOf(pg) == c.t2 {
		list = c.t2
	}
	list.Remove(pg.elem)
	c.t2.PushFront(pg)
	pg.elem = c.t2.Front()
}

func (c *Cache) listOf(pg *Page) *list.List {
	for e := c.t1.Front(); e != nil; e = e.Next() {
		if e == pg.elem {
			return c.t1
		}
	}
	return c.t2
}

func (c *Cache) insert(pg *Page, l *list.List) {
	l.PushFront(pg)
	pg.elem = l.Front()
	c.resident[pg.Key] = pg
}

// MarkDirty looks up key and marks it dirty; it is an error to dirty a page
// not already resident (the pager must have fetched it first).
func (c *Cache) MarkDirty(key CacheKey) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	pg, ok := c.resident[key]
	if !ok {
		return dberr.New(dberr.Internal, "pagecache: mark dirty on absent page %v", key)
	}
	pg.MarkDirty()
	return nil
}

// evictIfNeeded runs the ARC replacement algorithm until
// curBytes is within budget, skipping pinned and dirty pages and preferring
// superseded ones.
func (c *Cache) evictIfNeeded() {
	for c.curBytes > c.maxBytes {
		var from *list.List
		if c.t1.Len() > 0 && (c.t1.Len() > c.p || c.t2.Len() == 0) {
			from = c.t1
		} else if c.t2.Len() > 0 {
			from = c.t2
		} else {
			return
		}
		if !c.evictOneFrom(from) {
			// Nothing evictable on this side (all pinned/dirty); try the
			// other list before giving up for this pass.
			other := c.t2
			if from == c.t2 {
				other = c.t1
			}
			if !c.evictOneFrom(other) {
				return
			}
		}
	}
}

func (c *Cache) evictOneFrom(l *list.List) bool {
	// Prefer a superseded victim anywhere in the list; otherwise take the
	// LRU end, skipping pinned/dirty pages.
	var victim *list.Element
	for e := l.Back(); e != nil; e = e.Prev() {
		pg := e.Value.(*Page)
		if pg.RefCount() > 0 || pg.IsDirty() {
			continue
		}
		if pg.Superseded() {
			victim = e
			break
		}
		if victim == nil {
			victim = e
		}
	}
	if victim == nil {
		return false
	}
	pg := victim.Value.(*Page)
	l.Remove(victim)
	delete(c.resident, pg.Key)
	c.curBytes -= int64(len(pg.Data))
	if l == c.t1 {
		c.b1.Add(pg.Key, struct{}{})
	} else {
		c.b2.Add(pg.Key, struct{}{})
	}
	return true
}

// Invalidate drops key from the resident set, used when checkpoint
// write-back changes the file-resident image a cached baseline was read
// from. A holder that pinned the page before the invalidation keeps its
// (now stale-keyed) buffer; the next Get refetches.
func (c *Cache) Invalidate(key CacheKey) {
	c.mu.Lock()
	defer c.mu.Unlock()
	pg, ok := c.resident[key]
	if !ok {
		return
	}
	c.listOf(pg).Remove(pg.elem)
	delete(c.resident, key)
	c.curBytes -= int64(len(pg.Data))
}

// Len returns the number of resident pages, for tests and diagnostics.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.resident)
}
