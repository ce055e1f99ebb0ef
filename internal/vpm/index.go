package vpm

import "sort"

// Descriptor is the Address Index entry for one page: its stable key and
// its current position in the flat address space. newlineCount/newlineKnown
// mirror the page's cached newline metadata so line queries can answer
// without faulting every page in (spec §4.2, §9 Open Question).
type Descriptor struct {
	PageKey      string
	VirtualStart int64
	VirtualSize  int64

	newlineCount int
	newlineKnown bool // false when the page has never been resident
}

// addressIndex is a dense, ordered list of descriptors sorted by
// VirtualStart, with VirtualStart[i+1] == VirtualStart[i] + VirtualSize[i].
type addressIndex struct {
	descs []*Descriptor
}

func newAddressIndex() *addressIndex {
	return &addressIndex{}
}

func (a *addressIndex) totalSize() int64 {
	var total int64
	for _, d := range a.descs {
		total += d.VirtualSize
	}
	return total
}

func (a *addressIndex) reset() {
	a.descs = nil
}

// findPageAt returns the index of the descriptor whose range contains addr.
// addr == totalSize() resolves to the last descriptor (end-of-buffer marks
// live there at offset == VirtualSize, per spec §3).
func (a *addressIndex) findPageAt(addr int64) (int, bool) {
	n := len(a.descs)
	if n == 0 {
		return -1, false
	}
	// Binary search for the last descriptor with VirtualStart <= addr.
	i := sort.Search(n, func(i int) bool {
		return a.descs[i].VirtualStart > addr
	})
	i--
	if i < 0 {
		return -1, false
	}
	if i == n-1 {
		// Last page: accept addr up to and including its end.
		if addr > a.descs[i].VirtualStart+a.descs[i].VirtualSize {
			return -1, false
		}
		return i, true
	}
	return i, true
}

// rebuildOffsetsFrom recomputes VirtualStart for every descriptor from index
// start onward, given the descriptor at start-1 (or 0 if start == 0).
func (a *addressIndex) rebuildOffsetsFrom(start int) {
	var base int64
	if start > 0 {
		prev := a.descs[start-1]
		base = prev.VirtualStart + prev.VirtualSize
	}
	for i := start; i < len(a.descs); i++ {
		a.descs[i].VirtualStart = base
		base += a.descs[i].VirtualSize
	}
}

func (a *addressIndex) getAllPages() []*Descriptor {
	out := make([]*Descriptor, len(a.descs))
	copy(out, a.descs)
	return out
}

func (a *addressIndex) indexOfKey(key string) int {
	for i, d := range a.descs {
		if d.PageKey == key {
			return i
		}
	}
	return -1
}
