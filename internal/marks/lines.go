package marks

import "fmt"

// LineInfo describes one line's virtual byte span [Start, End). End points
// just past the line's trailing newline, or to the buffer's end for a final
// line with no trailing newline. IsExact is false when a page the walk
// needed was never resident, in which case Start/End are a best-effort
// underestimate (spec §4.2, §9 Open Question).
type LineInfo struct {
	LineNumber int
	Start      int64
	End        int64
	IsExact    bool
}

// GetTotalLineCount sums cached newline counts across every descriptor and
// adds one (a buffer with zero newlines is one line). This is a
// non-suspending query: pages that have never been resident contribute zero
// and flip exact to false (spec §4.2, §5).
func (m *Manager) GetTotalLineCount() (count int, exact bool) {
	exact = true
	newlines := 0
	for _, d := range m.vp.Descriptors() {
		cnt, known := m.vp.CachedNewlineCount(d.PageKey)
		if !known {
			exact = false
			continue
		}
		newlines += cnt
	}
	return newlines + 1, exact
}

// locateNthNewline returns the absolute address of the n-th newline byte
// (1-indexed) in the buffer. found is false if the buffer has fewer than n
// newlines; exact is false if a page skipped along the way (to avoid
// faulting it in) might hide an earlier newline, making that "fewer than n"
// verdict an underestimate rather than a fact.
func (m *Manager) locateNthNewline(n int) (addr int64, exact bool, found bool) {
	if n <= 0 {
		return 0, true, false
	}
	exact = true
	remaining := n
	var pageStart int64
	for _, d := range m.vp.Descriptors() {
		cnt, known := m.vp.CachedNewlineCount(d.PageKey)
		if !known {
			exact = false
			pageStart += d.VirtualSize
			continue
		}
		if remaining > cnt {
			remaining -= cnt
			pageStart += d.VirtualSize
			continue
		}
		view, err := m.vp.View(d.PageKey)
		if err != nil || remaining-1 >= len(view.NewlinePositions) {
			return 0, false, false
		}
		return pageStart + int64(view.NewlinePositions[remaining-1]), exact, true
	}
	return 0, exact, false
}

// GetLineInfo returns the byte span of the n-th line (1-indexed). This is a
// suspending call: it may load the pages straddling the line's boundaries
// to read their exact newline tables (spec §4.2, §5).
func (m *Manager) GetLineInfo(n int) (LineInfo, error) {
	if n < 1 {
		return LineInfo{}, fmt.Errorf("marks: invalid line number %d", n)
	}

	exact := true
	var start int64
	if n > 1 {
		addr, ex, found := m.locateNthNewline(n - 1)
		if !found {
			return LineInfo{}, fmt.Errorf("marks: line %d not found", n)
		}
		exact = ex
		start = addr + 1
	}

	end := m.vp.GetTotalSize()
	addr, ex, found := m.locateNthNewline(n)
	if found {
		end = addr + 1
	}
	if !ex {
		exact = false
	}

	return LineInfo{LineNumber: n, Start: start, End: end, IsExact: exact}, nil
}

// GetMultipleLines returns line spans for [first, last] inclusive.
func (m *Manager) GetMultipleLines(first, last int) ([]LineInfo, error) {
	if first < 1 || last < first {
		return nil, fmt.Errorf("marks: invalid line range [%d, %d]", first, last)
	}
	out := make([]LineInfo, 0, last-first+1)
	for n := first; n <= last; n++ {
		li, err := m.GetLineInfo(n)
		if err != nil {
			return out, err
		}
		out = append(out, li)
	}
	return out, nil
}

// GetLineNumberFromAddress returns the 1-indexed line containing addr.
func (m *Manager) GetLineNumberFromAddress(addr int64) (line int, exact bool, err error) {
	total := m.vp.GetTotalSize()
	if addr < 0 || addr > total {
		return 0, false, fmt.Errorf("marks: address %d out of bounds", addr)
	}

	exact = true
	newlines := 0
	for _, d := range m.vp.Descriptors() {
		pageEnd := d.VirtualStart + d.VirtualSize
		if addr >= pageEnd {
			cnt, known := m.vp.CachedNewlineCount(d.PageKey)
			if !known {
				exact = false
				continue
			}
			newlines += cnt
			continue
		}
		if addr >= d.VirtualStart {
			view, verr := m.vp.View(d.PageKey)
			if verr != nil {
				return 0, false, verr
			}
			rel := int(addr - d.VirtualStart)
			for _, pos := range view.NewlinePositions {
				if pos < rel {
					newlines++
				} else {
					break
				}
			}
		}
	}
	return newlines + 1, exact, nil
}

// LineCharToBytePosition converts a 1-indexed line and 0-indexed character
// offset within it to an absolute virtual byte address.
func (m *Manager) LineCharToBytePosition(line, char int) (int64, error) {
	if char < 0 {
		return 0, fmt.Errorf("marks: negative char offset %d", char)
	}
	info, err := m.GetLineInfo(line)
	if err != nil {
		return 0, err
	}
	pos := info.Start + int64(char)
	if pos > info.End {
		pos = info.End
	}
	return pos, nil
}

// ByteToLineCharPosition converts an absolute virtual byte address to its
// 1-indexed line number and 0-indexed character offset within that line.
func (m *Manager) ByteToLineCharPosition(addr int64) (line int, char int, err error) {
	line, _, err = m.GetLineNumberFromAddress(addr)
	if err != nil {
		return 0, 0, err
	}
	info, err := m.GetLineInfo(line)
	if err != nil {
		return 0, 0, err
	}
	return line, int(addr - info.Start), nil
}
