// Package vpm implements the Virtual Page Manager: paged storage with
// demand loading, eviction, split/merge, and a contiguous virtual address
// index over a flat byte address space (spec §4.1).
package vpm

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/tuannm99/pagebuf/internal/store"
)

const (
	// DefaultPageSize matches spec §6's default of 64 KiB.
	DefaultPageSize = 64 * 1024
	// DefaultMaxLoadedPages matches spec §6's default of 32.
	DefaultMaxLoadedPages = 32

	logPrefix = "vpm: "
)

// ErrOutOfBounds is returned when an address argument falls outside
// [0, totalSize] or start>end (spec §7).
var ErrOutOfBounds = errors.New("vpm: address out of bounds")

// Config configures a Manager. Zero values are replaced with spec §6
// defaults by NewManager.
type Config struct {
	PageSize       int64
	MaxLoadedPages int
}

// SplitEvent is broadcast to the LMM before a mutator that triggered a
// split returns (spec §4.1).
type SplitEvent struct {
	OrigKey     string
	NewKey      string
	SplitOffset int64
}

// MergeEvent is broadcast to the LMM before a mutator that triggered a
// merge returns (spec §4.1).
type MergeEvent struct {
	AbsorbedKey string
	TargetKey   string
	LeftSize    int64
}

// MemStats reports the memory-facing counters from GetMemoryStats (spec §6).
type MemStats struct {
	TotalPages             int
	LoadedPages            int
	DirtyPages             int
	EstimatedResidentBytes int64
}

// PageView exposes the exact, loaded-page newline table for a single page,
// used by line-position queries that need byte-exact answers (spec §4.2:
// "exact byte positions use the loaded page's newline table").
type PageView struct {
	Key              string
	Size             int
	NewlinePositions []int
}

// Manager is the Virtual Page Manager. It exclusively owns pages and the
// Address Index (spec §3 "Ownership and lifecycles").
type Manager struct {
	store     store.PageStore
	pageSize  int64
	maxLoaded int

	idx   *addressIndex
	cache *pageCache

	nextID uint64

	splitListeners []func(SplitEvent)
	mergeListeners []func(MergeEvent)
}

// NewManager constructs a Manager backed by the given PageStore.
func NewManager(cfg Config, pageStore store.PageStore) *Manager {
	if cfg.PageSize <= 0 {
		cfg.PageSize = DefaultPageSize
	}
	if cfg.MaxLoadedPages <= 0 {
		cfg.MaxLoadedPages = DefaultMaxLoadedPages
	}
	return &Manager{
		store:     pageStore,
		pageSize:  cfg.PageSize,
		maxLoaded: cfg.MaxLoadedPages,
		idx:       newAddressIndex(),
		cache:     newPageCache(cfg.MaxLoadedPages),
	}
}

// OnSplit registers a callback invoked synchronously whenever a page split
// occurs, before the triggering mutator returns.
func (m *Manager) OnSplit(fn func(SplitEvent)) {
	m.splitListeners = append(m.splitListeners, fn)
}

// OnMerge registers a callback invoked synchronously whenever a page merge
// occurs, before the triggering mutator returns.
func (m *Manager) OnMerge(fn func(MergeEvent)) {
	m.mergeListeners = append(m.mergeListeners, fn)
}

func (m *Manager) fireSplit(e SplitEvent) {
	slog.Debug(logPrefix+"split", "origKey", e.OrigKey, "newKey", e.NewKey, "splitOffset", e.SplitOffset)
	for _, fn := range m.splitListeners {
		fn(e)
	}
}

func (m *Manager) fireMerge(e MergeEvent) {
	slog.Debug(logPrefix+"merge", "absorbedKey", e.AbsorbedKey, "targetKey", e.TargetKey, "leftSize", e.LeftSize)
	for _, fn := range m.mergeListeners {
		fn(e)
	}
}

func (m *Manager) nextKey() string {
	m.nextID++
	return fmt.Sprintf("pg-%d", m.nextID)
}

// GetTotalSize returns the sum of all resident and non-resident pages'
// VirtualSize.
func (m *Manager) GetTotalSize() int64 {
	return m.idx.totalSize()
}

// PageSize returns the configured target page size P.
func (m *Manager) PageSize() int64 { return m.pageSize }

// Descriptors returns a snapshot of the Address Index in virtual-address
// order.
func (m *Manager) Descriptors() []Descriptor {
	descs := m.idx.getAllPages()
	out := make([]Descriptor, len(descs))
	for i, d := range descs {
		out[i] = *d
	}
	return out
}

// DescriptorByKey looks up a single descriptor by its page key.
func (m *Manager) DescriptorByKey(key string) (Descriptor, bool) {
	i := m.idx.indexOfKey(key)
	if i < 0 {
		return Descriptor{}, false
	}
	return *m.idx.descs[i], true
}

// NextPageKey returns the key of the page immediately following key in
// Address Index order, used by validateAndCleanupMarks (spec §4.2) to
// reposition an out-of-range mark onto "the start of the next page".
func (m *Manager) NextPageKey(key string) (string, bool) {
	i := m.idx.indexOfKey(key)
	if i < 0 || i+1 >= len(m.idx.descs) {
		return "", false
	}
	return m.idx.descs[i+1].PageKey, true
}

// Locate resolves a virtual address to its containing descriptor and the
// offset relative to that page's start.
func (m *Manager) Locate(addr int64) (Descriptor, int64, error) {
	if addr < 0 || addr > m.idx.totalSize() {
		return Descriptor{}, 0, ErrOutOfBounds
	}
	i, ok := m.idx.findPageAt(addr)
	if !ok {
		return Descriptor{}, 0, ErrOutOfBounds
	}
	d := m.idx.descs[i]
	return *d, addr - d.VirtualStart, nil
}

// CachedNewlineCount returns the descriptor's cached newline count without
// faulting the page in. known is false if the page has never been resident
// (spec §4.2, §9 Open Question: unloaded pages contribute zero newlines).
func (m *Manager) CachedNewlineCount(pageKey string) (count int, known bool) {
	i := m.idx.indexOfKey(pageKey)
	if i < 0 {
		return 0, false
	}
	d := m.idx.descs[i]
	if p, ok := m.cache.get(pageKey); ok {
		p.ensureNewlines()
		d.newlineCount = p.newlineCount
		d.newlineKnown = true
	}
	return d.newlineCount, d.newlineKnown
}

// View loads pageKey (if necessary) and returns its exact byte size and
// newline table. This is a suspending call (spec §5).
func (m *Manager) View(pageKey string) (PageView, error) {
	i := m.idx.indexOfKey(pageKey)
	if i < 0 {
		return PageView{}, fmt.Errorf("vpm: unknown page %q", pageKey)
	}
	d := m.idx.descs[i]
	p, err := m.ensurePageLoaded(d)
	if err != nil {
		return PageView{}, err
	}
	p.ensureNewlines()
	d.newlineCount = p.newlineCount
	d.newlineKnown = true
	positions := append([]int(nil), p.newlinePositions...)
	return PageView{Key: p.key, Size: p.size(), NewlinePositions: positions}, nil
}

// GetMemoryStats reports resident/dirty page counters (spec §6).
func (m *Manager) GetMemoryStats() MemStats {
	stats := MemStats{TotalPages: len(m.idx.descs), LoadedPages: m.cache.len()}
	for _, p := range m.cache.all() {
		stats.EstimatedResidentBytes += int64(p.size())
		if p.dirty {
			stats.DirtyPages++
		}
	}
	return stats
}

// LoadContent resets all state and chops data into pages of size P,
// inserted in order (spec §4.1).
func (m *Manager) LoadContent(data []byte) error {
	m.idx.reset()
	m.cache = newPageCache(m.maxLoaded)
	m.nextID = 0

	for offset := 0; offset < len(data); {
		end := offset + int(m.pageSize)
		if end > len(data) {
			end = len(data)
		}
		key := m.nextKey()
		buf := append([]byte(nil), data[offset:end]...)
		p := newPage(key, buf)
		p.dirty = true
		m.cache.put(p)
		m.idx.descs = append(m.idx.descs, &Descriptor{PageKey: key, VirtualSize: int64(len(buf))})
		offset = end
	}
	m.idx.rebuildOffsetsFrom(0)
	return m.evictIfOverCapacity("")
}

// ReadRange returns the byte range [start, end) (spec §4.1).
func (m *Manager) ReadRange(start, end int64) ([]byte, error) {
	total := m.idx.totalSize()
	if start < 0 || end > total || start > end {
		return nil, ErrOutOfBounds
	}
	if start == end {
		return []byte{}, nil
	}

	idx, ok := m.idx.findPageAt(start)
	if !ok {
		return nil, ErrOutOfBounds
	}

	out := make([]byte, 0, end-start)
	cur := start
	remaining := end - start
	for remaining > 0 {
		d := m.idx.descs[idx]
		p, err := m.ensurePageLoaded(d)
		if err != nil {
			return nil, err
		}
		relStart := cur - d.VirtualStart
		avail := d.VirtualSize - relStart
		take := remaining
		if avail < take {
			take = avail
		}
		out = append(out, p.buf[relStart:relStart+take]...)
		cur += take
		remaining -= take
		idx++
	}
	return out, nil
}

// InsertAt splices bytes in at addr, enforcing the split policy (spec
// §4.1).
func (m *Manager) InsertAt(addr int64, data []byte) error {
	total := m.idx.totalSize()
	if addr < 0 || addr > total {
		return ErrOutOfBounds
	}
	if len(data) == 0 {
		return nil
	}

	if len(m.idx.descs) == 0 {
		key := m.nextKey()
		p := newPage(key, append([]byte(nil), data...))
		p.dirty = true
		m.cache.put(p)
		m.idx.descs = append(m.idx.descs, &Descriptor{PageKey: key, VirtualSize: int64(len(data))})
		if err := m.evictIfOverCapacity(key); err != nil {
			return err
		}
		return m.enforceSplit(0)
	}

	idx, ok := m.idx.findPageAt(addr)
	if !ok {
		return ErrOutOfBounds
	}
	d := m.idx.descs[idx]
	p, err := m.ensurePageLoaded(d)
	if err != nil {
		return err
	}

	offset := addr - d.VirtualStart
	newBuf := make([]byte, 0, int64(p.size())+int64(len(data)))
	newBuf = append(newBuf, p.buf[:offset]...)
	newBuf = append(newBuf, data...)
	newBuf = append(newBuf, p.buf[offset:]...)
	p.buf = newBuf
	p.dirty = true
	p.invalidateNewlines()

	d.VirtualSize += int64(len(data))
	m.idx.rebuildOffsetsFrom(idx + 1)

	if err := m.evictIfOverCapacity(d.PageKey); err != nil {
		return err
	}
	return m.enforceSplit(idx)
}

// DeleteRange removes bytes in [start, end), enforcing the merge policy,
// and returns the removed bytes in order (spec §4.1).
func (m *Manager) DeleteRange(start, end int64) ([]byte, error) {
	total := m.idx.totalSize()
	if start < 0 || end > total || start > end {
		return nil, ErrOutOfBounds
	}
	if start == end {
		return []byte{}, nil
	}

	idx, ok := m.idx.findPageAt(start)
	if !ok {
		return nil, ErrOutOfBounds
	}

	removed := make([]byte, 0, end-start)
	cur := start
	remaining := end - start
	for remaining > 0 {
		d := m.idx.descs[idx]
		p, err := m.ensurePageLoaded(d)
		if err != nil {
			return nil, err
		}
		relStart := cur - d.VirtualStart
		avail := d.VirtualSize - relStart
		take := remaining
		if avail < take {
			take = avail
		}
		removed = append(removed, p.buf[relStart:relStart+take]...)
		p.buf = append(p.buf[:relStart], p.buf[relStart+take:]...)
		p.dirty = true
		p.invalidateNewlines()
		d.VirtualSize -= take
		cur += take
		remaining -= take

		if d.VirtualSize == 0 && len(m.idx.descs) > 1 {
			m.cache.remove(d.PageKey)
			m.idx.descs = removeDescAt(m.idx.descs, idx)
		} else {
			idx++
		}
	}

	m.idx.rebuildOffsetsFrom(0)
	return removed, m.enforceMergeGlobal()
}

// OverwriteAt is semantically deleteRange(addr, addr+min(len(data),
// totalSize-addr)) followed by insertAt(addr, data) (spec §4.1). It returns
// the bytes that were overwritten.
func (m *Manager) OverwriteAt(addr int64, data []byte) ([]byte, error) {
	total := m.idx.totalSize()
	if addr < 0 || addr > total {
		return nil, ErrOutOfBounds
	}

	end := addr + int64(len(data))
	if end > total {
		end = total
	}

	removed, err := m.DeleteRange(addr, end)
	if err != nil {
		return nil, err
	}
	if err := m.InsertAt(addr, data); err != nil {
		return removed, err
	}
	return removed, nil
}

// enforceSplit applies the split policy starting at idx, cascading into
// any freshly created right-hand page that itself still exceeds 2P (spec
// §4.1 split policy).
func (m *Manager) enforceSplit(idx int) error {
	for {
		d := m.idx.descs[idx]
		if d.VirtualSize < 2*m.pageSize {
			return nil
		}
		p, ok := m.cache.get(d.PageKey)
		if !ok {
			return fmt.Errorf("vpm: page %s not resident during split", d.PageKey)
		}

		leftSize := m.pageSize
		rightBuf := append([]byte(nil), p.buf[leftSize:]...)
		p.buf = append([]byte(nil), p.buf[:leftSize]...)
		p.dirty = true
		p.invalidateNewlines()

		newKey := m.nextKey()
		newP := newPage(newKey, rightBuf)
		newP.dirty = true
		m.cache.put(newP)

		newDesc := &Descriptor{PageKey: newKey, VirtualSize: int64(len(rightBuf))}
		m.idx.descs = insertDescAt(m.idx.descs, idx+1, newDesc)
		d.VirtualSize = leftSize
		m.idx.rebuildOffsetsFrom(idx)

		m.fireSplit(SplitEvent{OrigKey: d.PageKey, NewKey: newKey, SplitOffset: leftSize})

		if err := m.evictIfOverCapacity(newKey); err != nil {
			return err
		}
		idx++
	}
}

// enforceMergeGlobal scans for adjacent pairs whose combined size is ≤ P
// and merges them, restarting after each merge, until the merge-bound
// invariant holds (spec §4.1, §8).
func (m *Manager) enforceMergeGlobal() error {
	for {
		merged := false
		for idx := 0; idx+1 < len(m.idx.descs); idx++ {
			left := m.idx.descs[idx]
			right := m.idx.descs[idx+1]
			if left.VirtualSize+right.VirtualSize <= m.pageSize {
				if err := m.mergeAt(idx); err != nil {
					return err
				}
				merged = true
				break
			}
		}
		if !merged {
			return nil
		}
	}
}

func (m *Manager) mergeAt(idx int) error {
	target := m.idx.descs[idx]
	absorbed := m.idx.descs[idx+1]

	tp, err := m.ensurePageLoaded(target)
	if err != nil {
		return err
	}
	ap, err := m.ensurePageLoaded(absorbed)
	if err != nil {
		return err
	}

	leftSize := target.VirtualSize
	tp.buf = append(tp.buf, ap.buf...)
	tp.dirty = true
	tp.invalidateNewlines()

	target.VirtualSize += absorbed.VirtualSize
	m.cache.remove(absorbed.PageKey)
	m.idx.descs = removeDescAt(m.idx.descs, idx+1)
	m.idx.rebuildOffsetsFrom(idx)

	m.fireMerge(MergeEvent{AbsorbedKey: absorbed.PageKey, TargetKey: target.PageKey, LeftSize: leftSize})
	return nil
}

// ensurePageLoaded faults a page in from the store if it is not resident,
// then enforces the cache's capacity (spec §4.1 "demand loading and
// eviction").
func (m *Manager) ensurePageLoaded(d *Descriptor) (*page, error) {
	if p, ok := m.cache.get(d.PageKey); ok {
		return p, nil
	}

	data, err := m.store.Load(d.PageKey)
	if err != nil {
		return nil, err
	}
	p := newPage(d.PageKey, data)
	m.cache.put(p)
	if err := m.evictIfOverCapacity(d.PageKey); err != nil {
		return nil, err
	}
	return p, nil
}

// evictIfOverCapacity evicts clean pages in LRU order first, flushing
// dirty pages to the store before dropping them, until the cache is back
// within maxLoaded. keep is never chosen as a victim.
func (m *Manager) evictIfOverCapacity(keep string) error {
	exclude := map[string]bool{keep: true}
	for m.cache.len() > m.maxLoaded {
		victim := m.cache.victimExcluding(exclude)
		if victim == nil {
			return nil
		}
		if victim.dirty {
			if err := m.store.Save(victim.key, victim.buf); err != nil {
				return err
			}
			victim.dirty = false
		}
		// Carry the page's newline cache state onto its descriptor, so a
		// count made stale by an edit is not reported as known once the
		// page is no longer resident.
		if i := m.idx.indexOfKey(victim.key); i >= 0 {
			d := m.idx.descs[i]
			d.newlineCount, d.newlineKnown = victim.newlineCount, victim.newlineCacheOK
		}
		slog.Debug(logPrefix+"evict", "pageKey", victim.key)
		m.cache.remove(victim.key)
	}
	return nil
}

func insertDescAt(descs []*Descriptor, at int, d *Descriptor) []*Descriptor {
	descs = append(descs, nil)
	copy(descs[at+1:], descs[at:])
	descs[at] = d
	return descs
}

func removeDescAt(descs []*Descriptor, at int) []*Descriptor {
	return append(descs[:at], descs[at+1:]...)
}
