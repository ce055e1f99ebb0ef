package vpm

import "sort"

// page is a resident, in-memory page of bytes. It is owned exclusively by
// the Manager; callers only ever see copies via readRange.
type page struct {
	key  string
	buf  []byte
	dirty bool

	// newline cache: lazily computed, invalidated on every byte mutation.
	newlinePositions []int
	newlineCount     int
	newlineCacheOK   bool
}

func newPage(key string, buf []byte) *page {
	return &page{key: key, buf: buf}
}

// invalidateNewlines must be called by every mutator that touches p.buf.
func (p *page) invalidateNewlines() {
	p.newlineCacheOK = false
	p.newlinePositions = nil
	p.newlineCount = 0
}

// ensureNewlines (re)computes the newline cache if it is stale.
func (p *page) ensureNewlines() {
	if p.newlineCacheOK {
		return
	}
	p.newlinePositions = p.newlinePositions[:0]
	for i, b := range p.buf {
		if b == '\n' {
			p.newlinePositions = append(p.newlinePositions, i)
		}
	}
	p.newlineCount = len(p.newlinePositions)
	p.newlineCacheOK = true
}

// newlinesBefore returns the count of newlines strictly before offset.
func (p *page) newlinesBefore(offset int) int {
	p.ensureNewlines()
	return sort.SearchInts(p.newlinePositions, offset)
}

func (p *page) size() int { return len(p.buf) }
