package pagecache_test

import (
	"testing"

	"github.com/leftmike/frankensqlite/pagecache"
)

func TestGetFetchesOnMiss(t *testing.T) {
	calls := 0
	c, err := pagecache.New(1<<20, 16, func(key pagecache.CacheKey) ([]byte, error) {
		calls++
		return make([]byte, 4096), nil
	})
	if err != nil {
		t.Fatal(err)
	}

	key := pagecache.CacheKey{PageNo: 1, CommitSeq: 1}
	pg, err := c.Get(key)
	if err != nil {
		t.Fatal(err)
	}
	pg.Unpin()
	if calls != 1 {
		t.Fatalf("got %d fetches, want 1", calls)
	}

	pg2, err := c.Get(key)
	if err != nil {
		t.Fatal(err)
	}
	pg2.Unpin()
	if calls != 1 {
		t.Fatalf("second get should hit cache, got %d fetches", calls)
	}
	if c.Len() != 1 {
		t.Fatalf("got %d resident pages, want 1", c.Len())
	}
}

func TestPinnedPagesSurviveEviction(t *testing.T) {
	c, err := pagecache.New(4096*2, 16, func(key pagecache.CacheKey) ([]byte, error) {
		return make([]byte, 4096), nil
	})
	if err != nil {
		t.Fatal(err)
	}

	pinned, err := c.Get(pagecache.CacheKey{PageNo: 1, CommitSeq: 1})
	if err != nil {
		t.Fatal(err)
	}
	// pinned stays pinned; four more distinct pages force eviction pressure.
	for i := uint32(2); i <= 5; i++ {
		pg, err := c.Get(pagecache.CacheKey{PageNo: i, CommitSeq: 1})
		if err != nil {
			t.Fatal(err)
		}
		pg.Unpin()
	}
	if pinned.RefCount() == 0 {
		t.Fatal("pinned page lost its pin")
	}
	if _, ok := lookup(c, pagecache.CacheKey{PageNo: 1, CommitSeq: 1}); !ok {
		t.Fatal("pinned page was evicted")
	}
}

func lookup(c *pagecache.Cache, key pagecache.CacheKey) (*pagecache.Page, bool) {
	pg, err := c.Get(key)
	if err != nil {
		return nil, false
	}
	pg.Unpin()
	return pg, true
}
