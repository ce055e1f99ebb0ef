package vpm

import "container/list"

// pageCache holds resident pages with LRU eviction bounded by maxLoaded, the
// same frame/pin-table shape as the reference buffer pool manager
// (internal/bufferpool.Manager): a map to the list element for O(1) touch,
// and the list itself orders elements most-recently-used-first.
type pageCache struct {
	maxLoaded int
	byKey     map[string]*list.Element
	lru       *list.List // front = most recently used
}

func newPageCache(maxLoaded int) *pageCache {
	if maxLoaded <= 0 {
		maxLoaded = 32
	}
	return &pageCache{
		maxLoaded: maxLoaded,
		byKey:     make(map[string]*list.Element),
		lru:       list.New(),
	}
}

func (c *pageCache) get(key string) (*page, bool) {
	elem, ok := c.byKey[key]
	if !ok {
		return nil, false
	}
	c.lru.MoveToFront(elem)
	return elem.Value.(*page), true
}

// put inserts a newly loaded/created page as most-recently-used. The caller
// is responsible for evicting afterwards if the cache has grown beyond
// capacity (eviction may need to flush via the store, which cache itself
// does not know about).
func (c *pageCache) put(p *page) {
	if elem, ok := c.byKey[p.key]; ok {
		elem.Value = p
		c.lru.MoveToFront(elem)
		return
	}
	elem := c.lru.PushFront(p)
	c.byKey[p.key] = elem
}

// touch marks key as most recently used without requiring a cache hit path.
func (c *pageCache) touch(key string) {
	if elem, ok := c.byKey[key]; ok {
		c.lru.MoveToFront(elem)
	}
}

func (c *pageCache) remove(key string) {
	if elem, ok := c.byKey[key]; ok {
		c.lru.Remove(elem)
		delete(c.byKey, key)
	}
}

func (c *pageCache) len() int { return c.lru.Len() }

// victim returns the least-recently-used resident page, or nil if the cache
// is empty. The caller decides whether it may legally be evicted.
func (c *pageCache) victim() *page {
	elem := c.lru.Back()
	if elem == nil {
		return nil
	}
	return elem.Value.(*page)
}

// victimExcluding returns the LRU page whose key is not in the exclude set,
// walking from the back of the list. Used when the natural victim must stay
// resident (e.g. it is the page the current call just faulted in).
func (c *pageCache) victimExcluding(exclude map[string]bool) *page {
	for elem := c.lru.Back(); elem != nil; elem = elem.Prev() {
		p := elem.Value.(*page)
		if !exclude[p.key] {
			return p
		}
	}
	return nil
}

func (c *pageCache) all() []*page {
	out := make([]*page, 0, c.lru.Len())
	for elem := c.lru.Front(); elem != nil; elem = elem.Next() {
		out = append(out, elem.Value.(*page))
	}
	return out
}
