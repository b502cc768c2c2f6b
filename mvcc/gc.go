package mvcc

import (
	"sync"
	"time"

	"github.com/google/btree"
)

// DefaultGCInterval is the background sweep cadence.
const DefaultGCInterval = time.Second

// dirtyPage is a btree.Item recording a page touched since the last GC
// sweep, so the walk only visits pages actually written -- work
// proportional to write rate, not database size -- via a
// google/btree.BTree rather than a full scan of every chain head.
type dirtyPage uint32

func (d dirtyPage) Less(than btree.Item) bool { return d < than.(dirtyPage) }

// GC runs the background version-reclamation task.
type GC struct {
	engine   *Engine
	interval time.Duration

	mu    sync.Mutex
	dirty *btree.BTree

	stop chan struct{}
	done chan struct{}
}

// NewGC creates a GC bound to engine, not yet started.
func NewGC(engine *Engine, interval time.Duration) *GC {
	if interval <= 0 {
		interval = DefaultGCInterval
	}
	return &GC{
		engine:   engine,
		interval: interval,
		dirty:    btree.New(32),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// NotePageWritten records pageNo as needing a GC look at the next sweep.
// Called by commit publication for each page it installs a new committed
// version of.
func (g *GC) NotePageWritten(pageNo uint32) {
	g.mu.Lock()
	g.dirty.ReplaceOrInsert(dirtyPage(pageNo))
	g.mu.Unlock()
}

// Start launches the background sweep goroutine.
func (g *GC) Start() {
	go func() {
		defer close(g.done)
		ticker := time.NewTicker(g.interval)
		defer ticker.Stop()
		for {
			select {
			case <-g.stop:
				return
			case <-ticker.C:
				g.Sweep()
			}
		}
	}()
}

// Stop halts the background goroutine and waits for it to exit.
func (g *GC) Stop() {
	close(g.stop)
	<-g.done
}

// Sweep runs one GC pass: compute the horizon, unlink reclaimable version
// nodes on every page touched since the last sweep, then clear the dirty
// set.
func (g *GC) Sweep() (reclaimed int) {
	horizon := g.engine.GCHorizon()
	if g.engine.coord != nil {
		g.engine.coord.SetGCHorizon(uint64(horizon))
	}

	g.mu.Lock()
	pages := make([]uint32, 0, g.dirty.Len())
	g.dirty.Ascend(func(item btree.Item) bool {
		pages = append(pages, uint32(item.(dirtyPage)))
		return true
	})
	g.dirty = btree.New(32)
	g.mu.Unlock()

	for _, pn := range pages {
		reclaimed += g.engine.store.Reclaim(pn, horizon)
	}
	g.engine.siread.ForgetBelow(horizon)
	g.engine.dropRetainedBelow(horizon)
	return reclaimed
}
