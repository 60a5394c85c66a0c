// Package cache implements the store's fixed-byte-budget page cache
// (spec.md §4.6): a mapping from page.Position to *page.Page, evicted by
// a segmented hot/cold policy that approximates LIRS rather than plain
// recency.
package cache

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2/simplelru"

	"github.com/nainya/chunkstore/pkg/page"
)

// DefaultBudgetBytes is the default fixed cache budget (spec.md §4.6:
// "default 16 MiB").
const DefaultBudgetBytes = 16 << 20

// coldRatio is the fraction of the budget reserved for entries that have
// only been touched once; the remainder is the hot segment for entries
// that have demonstrated reuse. A page promoted out of cold on its
// second access approximates LIRS's distinction between pages with a
// short vs. long inter-reference recency.
const coldRatio = 0.25

// entry pairs a cached page with its cost, so eviction can debit the
// budget by exactly what was charged on insert.
type entry struct {
	pos  page.Position
	pg   *page.Page
	cost int
}

// Cache is a fixed-byte-budget cache keyed by page.Position. It is safe
// for concurrent use: readers calling Get may run in parallel with the
// single writer (spec.md §5), guarded by an internal mutex.
type Cache struct {
	mu sync.Mutex

	budget     int64
	hotBudget  int64
	coldBudget int64
	hotUsed    int64
	coldUsed   int64

	hot  *lru.LRU[page.Position, *entry]
	cold *lru.LRU[page.Position, *entry]
}

// New builds a Cache with the given byte budget. Capacity is expressed
// in item counts to simplelru.LRU internally but every insertion also
// debits byte cost; eviction is driven by whichever limit is hit first,
// with the byte budget the one that matters in practice (entries vary
// widely in size).
func New(budgetBytes int64) *Cache {
	if budgetBytes <= 0 {
		budgetBytes = DefaultBudgetBytes
	}
	c := &Cache{
		budget:     budgetBytes,
		coldBudget: int64(float64(budgetBytes) * coldRatio),
	}
	c.hotBudget = c.budget - c.coldBudget

	// A generous item-count ceiling: the byte budget is what actually
	// governs eviction via evictUntilFits, but simplelru.LRU requires a
	// positive size to construct.
	const maxItems = 1 << 20
	c.hot, _ = lru.NewLRU[page.Position, *entry](maxItems, func(_ page.Position, e *entry) {
		c.hotUsed -= int64(e.cost)
	})
	c.cold, _ = lru.NewLRU[page.Position, *entry](maxItems, func(_ page.Position, e *entry) {
		c.coldUsed -= int64(e.cost)
	})
	return c
}

// Get looks up a page by position. It does not insert — callers that
// miss must read the page from disk and call Put. A hit in the cold
// segment promotes the entry to hot, the segmentation's "proof of
// reuse" signal.
func (c *Cache) Get(pos page.Position) (*page.Page, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.hot.Get(pos); ok {
		return e.pg, true
	}
	if e, ok := c.cold.Get(pos); ok {
		c.cold.Remove(pos)
		c.insertHot(e)
		return e.pg, true
	}
	return nil, false
}

// Put inserts pg under pos, costed by pg.Memory(). New entries land in
// the cold segment; Get promotes them to hot on reuse.
func (c *Cache) Put(pos page.Position, pg *page.Page) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.hot.Contains(pos) || c.cold.Contains(pos) {
		return
	}
	e := &entry{pos: pos, pg: pg, cost: pg.Memory()}
	c.insertCold(e)
}

// Remove evicts a single position, used by removePage (spec.md §4.5).
func (c *Cache) Remove(pos page.Position) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hot.Remove(pos)
	c.cold.Remove(pos)
}

// Clear empties the cache, used on Store.Close (spec.md §4.6).
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hot.Purge()
	c.cold.Purge()
	c.hotUsed, c.coldUsed = 0, 0
}

// Len returns the total number of cached pages, for diagnostics/metrics.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hot.Len() + c.cold.Len()
}

// UsedBytes returns the current total cost charged against the budget.
func (c *Cache) UsedBytes() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hotUsed + c.coldUsed
}

func (c *Cache) insertHot(e *entry) {
	for c.hotUsed+int64(e.cost) > c.hotBudget && c.hot.Len() > 0 {
		c.hot.RemoveOldest()
	}
	c.hot.Add(e.pos, e)
	c.hotUsed += int64(e.cost)
}

func (c *Cache) insertCold(e *entry) {
	for c.coldUsed+int64(e.cost) > c.coldBudget && c.cold.Len() > 0 {
		c.cold.RemoveOldest()
	}
	c.cold.Add(e.pos, e)
	c.coldUsed += int64(e.cost)
}
